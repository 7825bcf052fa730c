package parsers

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/edgarprofiles/engine/pkg/profile"
)

// companyFacts mirrors the subset of data.sec.gov's XBRL company facts
// JSON shape this parser needs.
type companyFacts struct {
	CIK   int                               `json:"cik"`
	Facts map[string]map[string]factConcept `json:"facts"`
}

type factConcept struct {
	Units map[string][]factUnitRow `json:"units"`
}

type factUnitRow struct {
	End   string  `json:"end"`
	Val   float64 `json:"val"`
	Form  string  `json:"form"`
	Filed string  `json:"filed"`
}

// revenueTagChain is the fallback chain of revenue tag aliases (spec
// §4.C.1): the first tag with data wins, in this order.
var revenueTagChain = []string{
	"Revenues",
	"RevenueFromContractWithCustomerExcludingAssessedTax",
	"RevenueFromContractWithCustomerIncludingAssessedTax",
	"SalesRevenueNet",
	"SalesRevenueGoodsNet",
	"SalesRevenueServicesNet",
	"RevenuesNetOfInterestExpense",
	"InterestAndDividendIncomeOperating",
	"TotalRevenuesAndOtherIncome",
	"RevenueMineralSales",
}

// singleTagMetrics maps each remaining recognized metric to its one
// canonical tag (with documented aliases tried in order).
var singleTagMetrics = map[string][]string{
	profile.MetricAssets:             {"Assets"},
	profile.MetricLiabilities:        {"Liabilities"},
	profile.MetricEquity:             {"StockholdersEquity", "StockholdersEquityIncludingPortionAttributableToNoncontrollingInterest"},
	profile.MetricNetIncome:          {"NetIncomeLoss", "ProfitLoss"},
	profile.MetricCash:               {"CashAndCashEquivalentsAtCarryingValue", "CashCashEquivalentsRestrictedCashAndRestrictedCashEquivalents"},
	profile.MetricOperatingIncome:    {"OperatingIncomeLoss"},
	profile.MetricCurrentAssets:      {"AssetsCurrent"},
	profile.MetricCurrentLiabilities: {"LiabilitiesCurrent"},
	profile.MetricLongTermDebt:       {"LongTermDebtNoncurrent", "LongTermDebt"},
	profile.MetricGrossProfit:        {"GrossProfit"},
	profile.MetricCostOfRevenue:      {"CostOfRevenue", "CostOfGoodsAndServicesSold", "CostOfGoodsSold"},
}

// ParseXBRLFacts parses a cached XBRL company-facts JSON document into
// a FinancialTimeSeries, restricted to 10-K/10-Q periods and resolving
// duplicate period values by latest-filed entry (spec §4.C.1).
func ParseXBRLFacts(body []byte) (profile.FinancialTimeSeries, error) {
	var facts companyFacts
	if err := json.Unmarshal(body, &facts); err != nil {
		return profile.FinancialTimeSeries{}, fmt.Errorf("parsers: malformed XBRL facts: %w", err)
	}

	gaap := facts.Facts["us-gaap"]
	out := profile.FinancialTimeSeries{Series: map[string]profile.Series{}}

	if series, ok := firstNonEmptyTag(gaap, revenueTagChain); ok {
		out.Series[profile.MetricRevenue] = series
		out.Available = true
	}
	for metric, tags := range singleTagMetrics {
		if series, ok := firstNonEmptyTag(gaap, tags); ok {
			out.Series[metric] = series
			out.Available = true
		}
	}

	if !out.Available {
		out.Warnings = append(out.Warnings, "no recognized us-gaap concepts present")
	}
	return out, nil
}

func firstNonEmptyTag(gaap map[string]factConcept, tags []string) (profile.Series, bool) {
	for _, tag := range tags {
		concept, ok := gaap[tag]
		if !ok {
			continue
		}
		series := buildSeries(concept)
		if len(series) > 0 {
			return series, true
		}
	}
	return nil, false
}

// buildSeries keeps the latest-filed row per period_end, restricted to
// "USD"-unit facts from 10-K and 10-Q filings, ordered ascending by
// period end.
func buildSeries(concept factConcept) profile.Series {
	latest := map[string]factUnitRow{}
	for _, row := range concept.Units["USD"] {
		if row.Form != "10-K" && row.Form != "10-Q" {
			continue
		}
		existing, ok := latest[row.End]
		if !ok || row.Filed > existing.Filed {
			latest[row.End] = row
		}
	}

	series := make(profile.Series, 0, len(latest))
	for end, row := range latest {
		series = append(series, profile.Point{PeriodEnd: end, Value: row.Val, FiledDate: row.Filed})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].PeriodEnd < series[j].PeriodEnd })
	return series
}
