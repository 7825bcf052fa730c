package metrics

import (
	"math"
	"sort"

	"github.com/edgarprofiles/engine/pkg/profile"
)

// ComputeStatisticalSummary computes mean/median/min/max/std_dev/cv per
// metric over its full observed series (spec §4.E).
func ComputeStatisticalSummary(series profile.FinancialTimeSeries) map[string]profile.StatSummary {
	out := map[string]profile.StatSummary{}
	for metric, points := range series.Series {
		if len(points) == 0 {
			continue
		}
		values := make([]float64, len(points))
		for i, p := range points {
			values[i] = p.Value
		}

		m := mean(values)
		sd := stdDev(values, m)
		summary := profile.StatSummary{
			Mean:   m,
			Median: median(values),
			Min:    minOf(values),
			Max:    maxOf(values),
			StdDev: sd,
		}
		if m != 0 {
			summary.CV = sd / math.Abs(m)
		}
		out[metric] = summary
	}
	return out
}

// ComputeVolatility derives, per metric with growth values, the
// std-dev of growth and a qualitative trend via the sign and R^2 of a
// linear-regression fit over the metric's values (spec §4.E).
func ComputeVolatility(series profile.FinancialTimeSeries, growth map[string]profile.GrowthStat) map[string]profile.VolatilityMetric {
	out := map[string]profile.VolatilityMetric{}
	for metric, stat := range growth {
		points := append(profile.Series(nil), series.Series[metric]...)
		sort.Slice(points, func(i, j int) bool { return points[i].PeriodEnd < points[j].PeriodEnd })

		slope, rSquared := linearRegression(points)
		out[metric] = profile.VolatilityMetric{
			StdDevOfGrowth: stat.Volatility,
			Trend:          classifyTrend(slope),
			TrendStrength:  rSquared,
		}
	}
	return out
}

func classifyTrend(slope float64) profile.TrendDirection {
	switch {
	case slope > 0:
		return profile.TrendUp
	case slope < 0:
		return profile.TrendDown
	default:
		return profile.TrendFlat
	}
}

// linearRegression fits y = a + b*x over the series's ordered values
// (x = index), returning the slope and R^2.
func linearRegression(points profile.Series) (slope, rSquared float64) {
	n := len(points)
	if n < 2 {
		return 0, 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, p := range points {
		x := float64(i)
		sumX += x
		sumY += p.Value
		sumXY += x * p.Value
		sumXX += x * x
	}
	nf := float64(n)
	denom := nf*sumXX - sumX*sumX
	if denom == 0 {
		return 0, 0
	}
	slope = (nf*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / nf

	meanY := sumY / nf
	var ssTot, ssRes float64
	for i, p := range points {
		predicted := intercept + slope*float64(i)
		ssRes += (p.Value - predicted) * (p.Value - predicted)
		ssTot += (p.Value - meanY) * (p.Value - meanY)
	}
	if ssTot == 0 {
		return slope, 0
	}
	rSquared = 1 - ssRes/ssTot
	return slope, rSquared
}
