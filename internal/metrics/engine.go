package metrics

import "github.com/edgarprofiles/engine/pkg/profile"

// Compute runs the full metrics pipeline over a company's financial
// time series as of asOf (YYYY-MM-DD), producing the MetricsResult the
// aggregator folds into the Unified Profile (spec §4.E).
func Compute(series profile.FinancialTimeSeries, asOf string) profile.MetricsResult {
	latest := LatestFinancials(series, asOf)
	growth := ComputeGrowth(series)

	return profile.MetricsResult{
		LatestFinancials:   latest,
		Ratios:             ComputeRatios(latest),
		Growth:             growth,
		Health:             ComputeHealth(ComputeRatios(latest), growth),
		StatisticalSummary: ComputeStatisticalSummary(series),
		Volatility:         ComputeVolatility(series, growth),
	}
}
