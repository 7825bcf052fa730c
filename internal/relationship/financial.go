package relationship

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/edgarprofiles/engine/pkg/profile"
)

// FilingSearcher is the subset of internal/edgar.Client the financial
// sub-extractor uses to corroborate a narrative-mined counterparty
// name against EDGAR's full-text search index before trusting it
// (spec §4.D.3). A nil searcher skips corroboration entirely.
type FilingSearcher interface {
	SearchFilings(ctx context.Context, query string) ([]profile.FilingReference, error)
}

// hhiThresholds classify the Herfindahl index (spec §4.D.3).
const (
	hhiModerateThreshold = 1500.0
	hhiHighThreshold     = 2500.0
)

// corroboratedSupplierConfidence is the confidence assigned to a
// narrative-mined supplier name once EDGAR full-text search turns up
// an independent filing naming the same counterparty (spec §4.D.3);
// uncorroborated mentions keep the lower baseline.
const corroboratedSupplierConfidence = 0.9

var customerPattern = regexp.MustCompile(`(?i)([A-Z][\w.&'-]+(?:\s+[A-Z][\w.&'-]*){0,4})\s+represented\s+(?:approximately\s+)?(\d+(?:\.\d+)?)\s*%\s+of\s+(?:our\s+|total\s+)?revenue`)

var supplierListPattern = regexp.MustCompile(`(?i)(?:suppliers?(?:\s+include)?|we (?:source|purchase) (?:materials|components) from)[:\s]+([A-Z][\w.&'-]+(?:,\s*[A-Z][\w.&'-]+)*)`)

var segmentRowPattern = regexp.MustCompile(`(?i)([A-Z][\w &'-]+)\s+segment\s+(?:revenue[s]?\s+of\s+)?\$?([\d,]+(?:\.\d+)?)\s*(million|billion)?`)

// ExtractFinancialRelationships mines 10-K/10-Q narrative text for
// customer concentration, supplier lists, and segment revenue
// disclosures, then derives Herfindahl-index concentration (spec
// §4.D.3).
func ExtractFinancialRelationships(ctx context.Context, cik, text string, searcher FilingSearcher) profile.FinancialRelationships {
	out := profile.FinancialRelationships{CIK: cik, SegmentRevenues: map[string]float64{}}
	if strings.TrimSpace(text) == "" {
		return out
	}

	for _, m := range customerPattern.FindAllStringSubmatch(text, -1) {
		pct, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		out.TopCustomers = append(out.TopCustomers, profile.CustomerConcentration{
			Name: strings.TrimSpace(m[1]), RevenuePercent: pct, Confidence: 0.85,
		})
	}

	for _, m := range supplierListPattern.FindAllStringSubmatch(text, -1) {
		for _, name := range strings.Split(m[1], ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			out.Suppliers = append(out.Suppliers, profile.SupplierRelationship{Name: name, Confidence: 0.75})
		}
	}

	if searcher != nil {
		for i := range out.Suppliers {
			hits, err := searcher.SearchFilings(ctx, out.Suppliers[i].Name+" supply agreement")
			if err == nil && len(hits) > 0 {
				out.Suppliers[i].Confidence = corroboratedSupplierConfidence
			}
		}
	}

	for _, m := range segmentRowPattern.FindAllStringSubmatch(text, -1) {
		val, err := strconv.ParseFloat(strings.ReplaceAll(m[2], ",", ""), 64)
		if err != nil {
			continue
		}
		switch strings.ToLower(m[3]) {
		case "billion":
			val *= 1_000_000_000
		case "million":
			val *= 1_000_000
		}
		out.SegmentRevenues[strings.TrimSpace(m[1])] = val
	}

	out.HerfindahlIndex = herfindahlIndex(out.TopCustomers)
	out.Concentration = classifyConcentration(out.HerfindahlIndex)
	out.Top5Concentration = top5Concentration(out.TopCustomers)
	return out
}

// herfindahlIndex computes H = sum(share_i^2) over %-point shares
// (spec §4.D.3, e.g. a single 100% customer yields H=10000).
func herfindahlIndex(customers []profile.CustomerConcentration) float64 {
	var h float64
	for _, c := range customers {
		h += c.RevenuePercent * c.RevenuePercent
	}
	return h
}

func classifyConcentration(h float64) string {
	switch {
	case h >= hhiHighThreshold:
		return "HIGH"
	case h >= hhiModerateThreshold:
		return "MODERATE"
	default:
		return "LOW"
	}
}

func top5Concentration(customers []profile.CustomerConcentration) float64 {
	sorted := append([]profile.CustomerConcentration(nil), customers...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RevenuePercent > sorted[j].RevenuePercent })

	var sum float64
	for i := 0; i < len(sorted) && i < 5; i++ {
		sum += sorted[i].RevenuePercent
	}
	return sum
}
