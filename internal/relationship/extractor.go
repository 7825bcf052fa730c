package relationship

import (
	"context"
	"strings"
	"time"

	"github.com/edgarprofiles/engine/pkg/profile"
)

// Extractor runs the three relationship sub-extractors in order,
// short-circuiting on empty input (spec §4.D).
type Extractor struct {
	Directory      *Directory
	FuzzyThreshold float64
	MinConfidence  float64

	// Searcher corroborates the financial sub-extractor's narrative-mined
	// supplier names against EDGAR full-text search. Nil disables
	// corroboration (spec §9 "global singletons -> injected handles").
	Searcher FilingSearcher
}

// NewExtractor builds an Extractor with the spec's documented
// defaults (fuzzy_threshold=0.82, min_confidence=0.50).
func NewExtractor(dir *Directory, fuzzyThreshold, minConfidence float64) *Extractor {
	if fuzzyThreshold <= 0 {
		fuzzyThreshold = DefaultFuzzyThreshold
	}
	if minConfidence <= 0 {
		minConfidence = minEdgeConfidence
	}
	return &Extractor{Directory: dir, FuzzyThreshold: fuzzyThreshold, MinConfidence: minConfidence}
}

// Result is the output of one extraction run over a company's
// narrative bodies: edges to upsert plus the derived financial
// relationships record.
type Result struct {
	Edges                  []profile.RelationshipEdge
	FinancialRelationships profile.FinancialRelationships
}

// Extract runs mention-finding, relationship-context classification,
// and financial-relationship mining over narrativeByForm, deduping
// edges within this single run so a repeated sentence does not
// double-count mention_count for one extraction (spec §8 idempotence).
func (e *Extractor) Extract(ctx context.Context, sourceCIK string, narrativeByForm map[string]string, now time.Time) Result {
	if len(narrativeByForm) == 0 || e.Directory == nil || len(e.Directory.Entries()) == 0 {
		return Result{}
	}

	dedup := map[string]*profile.RelationshipEdge{}
	for _, text := range narrativeByForm {
		if strings.TrimSpace(text) == "" {
			continue
		}
		for _, edge := range ClassifyEdges(sourceCIK, text, e.Directory, e.FuzzyThreshold, now) {
			if edge.Confidence < e.MinConfidence {
				continue
			}
			key := edge.Key()
			if existing, ok := dedup[key]; ok {
				if edge.Confidence > existing.Confidence {
					existing.Confidence = edge.Confidence
				}
			} else {
				edgeCopy := edge
				dedup[key] = &edgeCopy
			}
		}
	}

	edges := make([]profile.RelationshipEdge, 0, len(dedup))
	for _, e := range dedup {
		edges = append(edges, *e)
	}

	var finRel profile.FinancialRelationships
	for form, text := range narrativeByForm {
		if form == string(profile.Form10K) || form == string(profile.Form10Q) {
			finRel = ExtractFinancialRelationships(ctx, sourceCIK, text, e.Searcher)
			break
		}
	}

	return Result{Edges: edges, FinancialRelationships: finRel}
}
