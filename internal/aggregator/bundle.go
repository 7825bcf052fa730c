package aggregator

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sort"
	"time"

	"github.com/edgarprofiles/engine/internal/cache"
	"github.com/edgarprofiles/engine/pkg/profile"
)

// encodeBundle serializes a CompanyBundle for cache storage. gob (not
// JSON) is used because Bundle/SubDocument carry their payload bytes
// under json:"-" tags — gob only cares about exported fields, so the
// raw filing bytes round-trip intact (spec §3 "Bundle... owned by the
// Cache while resident").
func encodeBundle(b profile.CompanyBundle) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b); err != nil {
		return nil, fmt.Errorf("aggregator: encode bundle: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeBundle(data []byte) (profile.CompanyBundle, error) {
	var b profile.CompanyBundle
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&b); err != nil {
		return profile.CompanyBundle{}, fmt.Errorf("aggregator: decode bundle: %w", err)
	}
	return b, nil
}

// selectedDocKinds is the set of form types whose primary documents
// the aggregator downloads and caches up front; 8-K references are
// consumed directly (no document fetch, spec §4.C.5).
var selectedDocKinds = []profile.FormType{
	profile.Form4, profile.FormSC13D, profile.FormSC13G,
	profile.FormDEF14A, profile.Form10K, profile.Form10Q,
}

// ensureBundle implements the cache lookup / populate step (spec §4.F
// step 1): on a cache hit, decode and return the stored bundle; on a
// miss, fetch submissions + facts + the capped set of per-form
// documents from EDGAR, then store the bundle (advisory — a cache
// write failure is logged, never fatal, spec §4.B "callers must treat
// cache as advisory").
func (a *Aggregator) ensureBundle(ctx context.Context, cik string) (profile.CompanyBundle, bool, error) {
	lookback := a.Config.LookbackYears
	if lookback <= 0 {
		lookback = 5
	}
	key := cache.Key(cik, lookback)

	if raw, ok := a.Cache.Get(key); ok {
		bundle, err := decodeBundle(raw)
		if err == nil {
			return bundle, true, nil
		}
		a.Log.Warn("aggregator: corrupt cache entry, refetching", zapErr(err))
	}

	company, refs, err := a.Edgar.GetSubmissions(ctx, cik)
	if err != nil {
		return profile.CompanyBundle{}, false, err
	}

	cutoff := time.Now().AddDate(-lookback, 0, 0).Format("2006-01-02")
	var inWindow []profile.FilingReference
	for _, r := range refs {
		if r.FiledDate >= cutoff {
			inWindow = append(inWindow, r)
		}
	}

	bundle := profile.CompanyBundle{
		CIK:           cik,
		LookbackYears: lookback,
		Company:       company,
		Filings:       inWindow,
		Documents:     make(map[string]profile.Bundle),
		FetchedAt:     time.Now(),
	}

	if facts, err := a.Edgar.GetCompanyFacts(ctx, cik); err == nil {
		bundle.FactsJSON, _ = marshalFacts(facts)
	}

	for _, kind := range selectedDocKinds {
		for _, ref := range a.selectRefs(inWindow, kind) {
			if ctx.Err() != nil {
				return bundle, false, ctx.Err()
			}
			doc, err := a.Edgar.FetchArchive(ctx, ref)
			if err != nil {
				continue // non-fatal: the owning task will see it as missing
			}
			bundle.Documents[ref.Accession] = doc
		}
	}

	if encoded, err := encodeBundle(bundle); err != nil {
		a.Log.Warn("aggregator: bundle encode failed, not cached", zapErr(err))
	} else if err := a.Cache.Put(key, encoded); err != nil {
		a.Log.Warn("aggregator: CacheWriteFailed", zapErr(err))
	}

	return bundle, false, nil
}

// selectRefs returns, for one form type, the most recent references up
// to that form's configured detail cap (spec §6 form4_max/def14a_max/
// sc13_max/reports_per_form).
func (a *Aggregator) selectRefs(refs []profile.FilingReference, kind profile.FormType) []profile.FilingReference {
	var matched []profile.FilingReference
	for _, r := range refs {
		if r.FormType == kind {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].FiledDate > matched[j].FiledDate })

	cap := a.capFor(kind)
	if cap > 0 && len(matched) > cap {
		matched = matched[:cap]
	}
	return matched
}

func (a *Aggregator) capFor(kind profile.FormType) int {
	switch kind {
	case profile.Form4:
		return orDefault(a.Config.Form4Max, 100)
	case profile.FormDEF14A:
		return orDefault(a.Config.DEF14AMax, 10)
	case profile.FormSC13D, profile.FormSC13G:
		return orDefault(a.Config.SC13Max, 50)
	case profile.Form10K, profile.Form10Q:
		return orDefault(a.Config.ReportsPerForm, 2)
	default:
		return 0
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
