// Package metrics is the pure, deterministic computation engine (spec
// §4.E): ratios, growth rates, statistical summaries, volatility/trend,
// and the composite health score, all derived from a company's
// financial time series.
package metrics

import "github.com/edgarprofiles/engine/pkg/profile"

// LatestFinancials picks, per metric, the most recent point whose
// period_end is on or before asOf.
func LatestFinancials(series profile.FinancialTimeSeries, asOf string) map[string]float64 {
	out := map[string]float64{}
	for _, metric := range profile.RecognizedMetrics {
		if p, ok := series.Latest(metric, asOf); ok {
			out[metric] = p.Value
		}
	}
	return out
}

// divide returns nil instead of +Inf/NaN when the denominator is zero
// (spec §4.E "division by zero yields null, never infinity").
func divide(num, den float64) *float64 {
	if den == 0 {
		return nil
	}
	v := num / den
	return &v
}

// ComputeRatios derives the latest-period financial ratios from a
// latest-value map (spec §4.E).
func ComputeRatios(latest map[string]float64) profile.FinancialRatios {
	revenue, hasRevenue := latest[profile.MetricRevenue]
	assets, hasAssets := latest[profile.MetricAssets]
	equity, hasEquity := latest[profile.MetricEquity]
	liabilities, hasLiabilities := latest[profile.MetricLiabilities]
	netIncome, hasNetIncome := latest[profile.MetricNetIncome]
	operatingIncome, hasOperatingIncome := latest[profile.MetricOperatingIncome]
	grossProfit, hasGrossProfit := latest[profile.MetricGrossProfit]

	var ratios profile.FinancialRatios
	if hasNetIncome && hasEquity {
		ratios.ROE = divide(netIncome, equity)
	}
	if hasNetIncome && hasAssets {
		ratios.ROA = divide(netIncome, assets)
	}
	if hasLiabilities && hasEquity {
		ratios.DebtToEquity = divide(liabilities, equity)
	}
	if hasNetIncome && hasRevenue {
		ratios.NetMargin = divide(netIncome, revenue)
	}
	if hasOperatingIncome && hasRevenue {
		ratios.OperatingMargin = divide(operatingIncome, revenue)
	}
	if hasGrossProfit && hasRevenue {
		ratios.GrossMargin = divide(grossProfit, revenue)
	}
	if hasRevenue && hasAssets {
		ratios.AssetTurnover = divide(revenue, assets)
	}
	if hasAssets && hasEquity {
		ratios.EquityMultiplier = divide(assets, equity)
	}
	return ratios
}
