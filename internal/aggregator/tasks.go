package aggregator

import (
	"context"
	"time"

	"github.com/edgarprofiles/engine/internal/parsers"
	"github.com/edgarprofiles/engine/pkg/profile"
)

// taskFilingMetadata is the cheapest of the 8 tasks: the filing index
// is already resident in the bundle once fetched, so this just wraps
// it (spec §4.F task list, "filing_metadata").
func taskFilingMetadata(bundle profile.CompanyBundle) profile.FilingMetadataPartial {
	if len(bundle.Filings) == 0 {
		return profile.FilingMetadataPartial{PartialBase: profile.Unavailable("no filings in lookback window")}
	}
	return profile.FilingMetadataPartial{
		PartialBase: profile.PartialBase{Available: true},
		Filings:     bundle.Filings,
	}
}

// taskMaterialEvents runs the 8-K reference parser, which never
// fetches a document body (spec §4.C.5).
func taskMaterialEvents(bundle profile.CompanyBundle, now time.Time) profile.MaterialEventsPartial {
	return parsers.Parse8K(bundle.Filings, now)
}

// docsFor returns the cached document bodies belonging to the given
// references, in the same order, skipping any reference whose fetch
// failed or was never attempted.
func docsFor(bundle profile.CompanyBundle, refs []profile.FilingReference) []profile.Bundle {
	out := make([]profile.Bundle, 0, len(refs))
	for _, ref := range refs {
		if b, ok := bundle.Documents[ref.Accession]; ok {
			out = append(out, b)
		}
	}
	return out
}

func filterRefs(refs []profile.FilingReference, kind profile.FormType) []profile.FilingReference {
	var out []profile.FilingReference
	for _, r := range refs {
		if r.FormType == kind {
			out = append(out, r)
		}
	}
	return out
}

// taskGovernance parses every cached DEF 14A document and keeps the
// first (most recent, since bundles are fetched most-recent-first)
// non-zero compensation figures while unioning the board listing
// across filings (spec §4.C.4).
func taskGovernance(bundle profile.CompanyBundle) profile.GovernancePartial {
	refs := filterRefs(bundle.Filings, profile.FormDEF14A)
	docs := docsFor(bundle, refs)
	if len(docs) == 0 {
		return profile.GovernancePartial{PartialBase: profile.Unavailable("no DEF 14A filings available")}
	}

	out := profile.GovernancePartial{PartialBase: profile.PartialBase{Available: true}}
	seenBoard := map[string]bool{}
	haveComp := false

	for _, doc := range docs {
		parsed, err := parsers.ParseDEF14A(doc.PrimaryBody)
		if err != nil {
			out.Warnings = append(out.Warnings, "malformed DEF 14A: "+err.Error())
			continue
		}
		if !haveComp && parsed.Compensation.CEOTotal > 0 {
			out.Compensation = parsed.Compensation
			haveComp = true
		}
		for _, m := range parsed.Board.Members {
			if seenBoard[m.Name] {
				continue
			}
			seenBoard[m.Name] = true
			out.Board.Members = append(out.Board.Members, m)
			out.Board.TotalDirectors++
			if m.Independence == "independent" {
				out.Board.IndependentDirectors++
			}
		}
	}

	if out.Board.TotalDirectors > 0 {
		out.Board.IndependenceRatio = float64(out.Board.IndependentDirectors) / float64(out.Board.TotalDirectors)
	}
	if !haveComp && out.Board.TotalDirectors == 0 {
		return profile.GovernancePartial{PartialBase: profile.Unavailable("DEF 14A parsed but yielded no recognizable data")}
	}
	return out
}

// taskInsiderTrading parses every cached Form 4 document, capped at
// form4_max during the fetch step (spec §4.C.2).
func taskInsiderTrading(bundle profile.CompanyBundle) profile.InsiderTradingPartial {
	refs := filterRefs(bundle.Filings, profile.Form4)
	docs := docsFor(bundle, refs)
	if len(docs) == 0 {
		return profile.InsiderTradingPartial{PartialBase: profile.Unavailable("no Form 4 filings available")}
	}

	out := profile.InsiderTradingPartial{PartialBase: profile.PartialBase{Available: true}}
	for _, doc := range docs {
		rec, err := parsers.ParseForm4(doc.PrimaryBody)
		if err != nil {
			out.Warnings = append(out.Warnings, "malformed Form 4: "+err.Error())
			continue
		}
		out.Insiders = append(out.Insiders, rec)
	}
	if len(out.Insiders) == 0 {
		return profile.InsiderTradingPartial{PartialBase: profile.Unavailable("all Form 4 filings failed to parse")}
	}
	return out
}

// taskInstitutional parses every cached SC 13D/G document, capped at
// sc13_max during the fetch step (spec §4.C.3).
func taskInstitutional(bundle profile.CompanyBundle) profile.InstitutionalOwnershipPartial {
	refs := append(filterRefs(bundle.Filings, profile.FormSC13D), filterRefs(bundle.Filings, profile.FormSC13G)...)
	docs := docsFor(bundle, refs)
	if len(docs) == 0 {
		return profile.InstitutionalOwnershipPartial{PartialBase: profile.Unavailable("no SC 13D/G filings available")}
	}

	out := profile.InstitutionalOwnershipPartial{PartialBase: profile.PartialBase{Available: true}}
	for _, doc := range docs {
		formType := string(doc.Reference.FormType)
		rec, err := parsers.ParseSC13(doc.PrimaryBody, formType)
		if err != nil {
			out.Warnings = append(out.Warnings, "malformed "+formType+": "+err.Error())
			continue
		}
		out.Holders = append(out.Holders, rec)
	}
	if len(out.Holders) == 0 {
		return profile.InstitutionalOwnershipPartial{PartialBase: profile.Unavailable("all SC 13D/G filings failed to parse")}
	}
	return out
}

// taskKeyPersons recomputes the Form 4 / DEF 14A / SC 13D/G partials
// itself from cached raw filing bundles rather than reading another
// task's output (spec §4.F "tasks run independently against cached
// raw bundles, not against each other's results").
func taskKeyPersons(bundle profile.CompanyBundle, now time.Time) profile.KeyPersonsPartial {
	insiders := taskInsiderTrading(bundle)
	governance := taskGovernance(bundle)
	institutional := taskInstitutional(bundle)

	// lastMentioned has no independent source at this layer (key_persons
	// parses raw bundles only, per the comment above); AggregateKeyPersons
	// falls back to asOf for any name with no recorded mention time.
	lastMentioned := map[string]time.Time{}

	return parsers.AggregateKeyPersons(insiders.Insiders, governance.Board.Members, institutional.Holders, lastMentioned, now)
}

// taskFinancialsTimeSeries returns the company's XBRL facts time
// series, decoded from the cached bundle, retrying once against EDGAR
// directly if the original fetch never produced facts (spec §4.C.1).
func taskFinancialsTimeSeries(ctx context.Context, a *Aggregator, bundle profile.CompanyBundle) profile.FinancialTimeSeries {
	series, err := unmarshalFacts(bundle.FactsJSON)
	if err == nil && series.Available {
		return series
	}

	series, err = a.Edgar.GetCompanyFacts(ctx, bundle.CIK)
	if err != nil {
		return profile.FinancialTimeSeries{Available: false, Warnings: []string{err.Error()}}
	}
	return series
}

// narrativeBodies slices the narrative sections of cached 10-K/10-Q
// documents, capped at reports_per_form, for both the
// narrative-analysis partial and the relationship extractor's
// financial-relationship sub-extractor (spec §4.C.6, §4.D.3).
func narrativeBodies(bundle profile.CompanyBundle, reportsPerForm int) (profile.NarrativeAnalysisPartial, map[string]string) {
	byForm := map[string]string{}
	out := profile.NarrativeAnalysisPartial{}

	for _, kind := range []profile.FormType{profile.Form10K, profile.Form10Q} {
		refs := filterRefs(bundle.Filings, kind)
		if reportsPerForm > 0 && len(refs) > reportsPerForm {
			refs = refs[:reportsPerForm]
		}
		var combined []byte
		for _, ref := range refs {
			doc, ok := bundle.Documents[ref.Accession]
			if !ok {
				continue
			}
			section := parsers.ParseNarrative(doc.PrimaryBody, kind, ref.ReportDate)
			out.Reports = append(out.Reports, section)
			combined = append(combined, doc.PrimaryBody...)
			combined = append(combined, '\n')
		}
		if len(combined) > 0 {
			byForm[string(kind)] = string(combined)
		}
	}

	if len(out.Reports) > 0 {
		out.Available = true
	} else {
		out.Warnings = []string{"no 10-K/10-Q narrative sections available"}
	}
	return out, byForm
}
