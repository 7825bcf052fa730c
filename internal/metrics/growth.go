package metrics

import (
	"math"
	"sort"

	"github.com/edgarprofiles/engine/pkg/profile"
)

// ComputeGrowth derives period-over-period growth statistics per
// metric. Periods with a null or zero prior value are skipped rather
// than producing infinity (spec §4.E, §8 boundary behaviour).
func ComputeGrowth(series profile.FinancialTimeSeries) map[string]profile.GrowthStat {
	out := map[string]profile.GrowthStat{}
	for metric, points := range series.Series {
		sorted := append(profile.Series(nil), points...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].PeriodEnd < sorted[j].PeriodEnd })

		var values []float64
		for i := 1; i < len(sorted); i++ {
			prior := sorted[i-1].Value
			if prior == 0 {
				continue
			}
			values = append(values, (sorted[i].Value-prior)/prior*100)
		}
		if len(values) == 0 {
			continue
		}

		stat := profile.GrowthStat{Values: values}
		stat.Avg = mean(values)
		stat.Median = median(values)
		stat.Min = minOf(values)
		stat.Max = maxOf(values)
		stat.Volatility = stdDev(values, stat.Avg)
		out[metric] = stat
	}
	return out
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}

func median(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	sorted := append([]float64(nil), v...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

func minOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		if x < m {
			m = x
		}
	}
	return m
}

func maxOf(v []float64) float64 {
	m := v[0]
	for _, x := range v[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

func stdDev(v []float64, m float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sumSq float64
	for _, x := range v {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(v)))
}
