package metrics

import "github.com/edgarprofiles/engine/pkg/profile"

// ComputeHealth derives the composite health score from the latest
// ratios and revenue growth: overall = 0.40*profitability +
// 0.30*leverage + 0.30*growth (spec §4.E). Each sub-score maps its raw
// input through a fixed piecewise-linear curve; inputs absent from the
// profile default to a neutral midpoint rather than dragging the score
// to zero for a company with partial data.
func ComputeHealth(ratios profile.FinancialRatios, growth map[string]profile.GrowthStat) profile.HealthIndicators {
	profitability := scoreProfitability(ratios)
	leverage := scoreLeverage(ratios)
	growthScore := scoreGrowth(growth)

	overall := 0.40*profitability + 0.30*leverage + 0.30*growthScore
	return profile.HealthIndicators{
		Overall:       overall,
		Profitability: profitability,
		Leverage:      leverage,
		Growth:        growthScore,
		Grade:         profile.HealthBand(overall),
	}
}

const neutralScore = 50.0

func scoreProfitability(r profile.FinancialRatios) float64 {
	var scores []float64
	if r.NetMargin != nil {
		scores = append(scores, piecewise(*r.NetMargin, []point{{-0.20, 0}, {0, 30}, {0.05, 55}, {0.15, 80}, {0.30, 95}, {0.50, 100}}))
	}
	if r.ROE != nil {
		scores = append(scores, piecewise(*r.ROE, []point{{-0.20, 0}, {0, 30}, {0.08, 55}, {0.15, 75}, {0.25, 90}, {0.40, 100}}))
	}
	return avgOrNeutral(scores)
}

func scoreLeverage(r profile.FinancialRatios) float64 {
	if r.DebtToEquity == nil {
		return neutralScore
	}
	// Lower debt-to-equity scores higher; curve descends with leverage.
	return piecewise(*r.DebtToEquity, []point{{0, 100}, {0.5, 90}, {1.0, 70}, {2.0, 45}, {4.0, 15}, {8.0, 0}})
}

func scoreGrowth(growth map[string]profile.GrowthStat) float64 {
	stat, ok := growth[profile.MetricRevenue]
	if !ok {
		return neutralScore
	}
	return piecewise(stat.Avg, []point{{-30, 0}, {0, 40}, {10, 70}, {25, 90}, {50, 100}})
}

func avgOrNeutral(scores []float64) float64 {
	if len(scores) == 0 {
		return neutralScore
	}
	return mean(scores)
}

// point is one knot in a piecewise-linear curve (x=raw value, y=score).
type point struct {
	x, y float64
}

// piecewise linearly interpolates y for x across an ascending-x knot
// list, clamping outside the knot range.
func piecewise(x float64, knots []point) float64 {
	if x <= knots[0].x {
		return knots[0].y
	}
	last := knots[len(knots)-1]
	if x >= last.x {
		return last.y
	}
	for i := 1; i < len(knots); i++ {
		if x > knots[i].x {
			continue
		}
		prev := knots[i-1]
		cur := knots[i]
		frac := (x - prev.x) / (cur.x - prev.x)
		return prev.y + frac*(cur.y-prev.y)
	}
	return last.y
}
