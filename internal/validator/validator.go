// Package validator implements the Quality Gate (spec §4.G): a
// deterministic completeness/consistency/order/propriety pass over a
// Unified Profile document, plus the failure tracker for terminal
// aggregation failures.
package validator

import (
	"math"
	"time"

	"github.com/edgarprofiles/engine/pkg/profile"
)

const (
	incompleteDeduction   = 10.0
	incompleteFloorScore  = 40.0
	inconsistentDeduction = 15.0
	outOfOrderDeduction   = 10.0
	improperDeduction     = 20.0

	plausibleRatioBound = 5.0   // ROE/ROA etc. plausible within [-5, 5]
	absurdMagnitude      = 1e13 // currency magnitude ceiling per metric per period
)

// Validate runs the full deterministic check suite over doc and
// returns its Quality verdict (spec §4.G).
func Validate(doc *profile.Document, now time.Time) profile.Quality {
	var issues []profile.Issue

	issues = append(issues, checkCompleteness(doc)...)
	issues = append(issues, checkConsistency(doc)...)
	issues = append(issues, checkOrder(doc, now)...)
	issues = append(issues, checkProperValues(doc)...)

	score := deductScore(issues)
	return profile.Quality{
		Score:  score,
		Grade:  profile.GradeBand(score),
		Issues: issues,
	}
}

func deductScore(issues []profile.Issue) float64 {
	score := 100.0
	incompleteCount := 0

	for _, issue := range issues {
		switch issue.Category {
		case profile.IssueIncomplete:
			incompleteCount++
		case profile.IssueInconsistent:
			score -= inconsistentDeduction
		case profile.IssueOutOfOrder:
			score -= outOfOrderDeduction
		case profile.IssueImproper:
			score -= improperDeduction
		}
	}

	incompleteDeductionTotal := math.Min(float64(incompleteCount)*incompleteDeduction, 100-incompleteFloorScore)
	score -= incompleteDeductionTotal

	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

func checkCompleteness(doc *profile.Document) []profile.Issue {
	var issues []profile.Issue
	for key, available := range doc.AvailableFlags() {
		if !available {
			issues = append(issues, profile.Issue{
				Category: profile.IssueIncomplete,
				Message:  key + " is unavailable",
			})
		}
	}
	return issues
}

func checkConsistency(doc *profile.Document) []profile.Issue {
	var issues []profile.Issue

	for metric, value := range doc.LatestFinancials {
		if metric == profile.MetricNetIncome {
			continue // net income/loss may legitimately be negative
		}
		if value < 0 {
			issues = append(issues, profile.Issue{
				Category: profile.IssueInconsistent,
				Message:  metric + " is negative",
			})
		}
	}

	for name, ratio := range ratioFields(doc.FinancialRatios) {
		if ratio == nil {
			continue
		}
		if *ratio < -plausibleRatioBound || *ratio > plausibleRatioBound {
			issues = append(issues, profile.Issue{
				Category: profile.IssueInconsistent,
				Message:  name + " outside plausible bounds",
			})
		}
	}

	if doc.CorporateGovernance.Compensation.PayRatio < 0 {
		issues = append(issues, profile.Issue{
			Category: profile.IssueInconsistent,
			Message:  "pay_ratio is negative",
		})
	}

	return issues
}

func ratioFields(r profile.FinancialRatios) map[string]*float64 {
	return map[string]*float64{
		"roe":               r.ROE,
		"roa":               r.ROA,
		"debt_to_equity":    r.DebtToEquity,
		"net_margin":        r.NetMargin,
		"operating_margin":  r.OperatingMargin,
		"gross_margin":      r.GrossMargin,
		"asset_turnover":    r.AssetTurnover,
		"equity_multiplier": r.EquityMultiplier,
	}
}

func checkOrder(doc *profile.Document, now time.Time) []profile.Issue {
	var issues []profile.Issue

	for metric, series := range doc.FinancialTimeSeries.Series {
		prev := ""
		for _, p := range series {
			if prev != "" && p.PeriodEnd <= prev {
				issues = append(issues, profile.Issue{
					Category: profile.IssueOutOfOrder,
					Message:  metric + " time series is not strictly ascending",
				})
				break
			}
			prev = p.PeriodEnd
		}
	}

	if doc.GeneratedAt.After(now) {
		issues = append(issues, profile.Issue{
			Category: profile.IssueOutOfOrder,
			Message:  "generated_at is in the future",
		})
	}
	if doc.GeneratedAt.After(doc.LastUpdated) {
		issues = append(issues, profile.Issue{
			Category: profile.IssueOutOfOrder,
			Message:  "generated_at is after last_updated",
		})
	}

	return issues
}

func checkProperValues(doc *profile.Document) []profile.Issue {
	var issues []profile.Issue

	for metric, series := range doc.FinancialTimeSeries.Series {
		for _, p := range series {
			if _, err := time.Parse("2006-01-02", p.PeriodEnd); err != nil {
				issues = append(issues, profile.Issue{
					Category: profile.IssueImproper,
					Message:  metric + " has an unparseable period_end date",
				})
				continue
			}
			if math.Abs(p.Value) >= absurdMagnitude {
				issues = append(issues, profile.Issue{
					Category: profile.IssueImproper,
					Message:  metric + " magnitude is implausibly large",
				})
			}
		}
	}

	return issues
}
