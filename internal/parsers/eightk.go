package parsers

import (
	"fmt"
	"sort"
	"time"

	"github.com/edgarprofiles/engine/pkg/profile"
)

// clusterWindow and clusterThreshold flag a burst of 8-Ks as a risk
// signal; steadyQuarters flags a long run of regular disclosure as a
// positive signal (spec §4.C.5).
const (
	clusterWindow    = 14 // days
	clusterThreshold = 3  // filings within clusterWindow counts as a cluster
	steadyQuarters   = 4
)

// Parse8K summarizes a company's 8-K filing history without fetching
// any document bodies: counts, recency, per-quarter frequency, and
// risk/positive flags.
func Parse8K(refs []profile.FilingReference, asOf time.Time) profile.MaterialEventsPartial {
	var filtered []profile.FilingReference
	for _, r := range refs {
		if r.FormType == profile.Form8K {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == 0 {
		return profile.MaterialEventsPartial{PartialBase: profile.Unavailable("no 8-K filings")}
	}

	out := profile.MaterialEventsPartial{
		PartialBase: profile.PartialBase{Available: true},
		TotalCount:  len(filtered),
		PerQuarter:  map[string]int{},
	}

	dates := make([]time.Time, 0, len(filtered))
	for _, r := range filtered {
		t := r.FiledTime()
		if t.IsZero() {
			continue
		}
		dates = append(dates, t)

		quarter := fmt.Sprintf("%dQ%d", t.Year(), (int(t.Month())-1)/3+1)
		out.PerQuarter[quarter]++

		if asOf.Sub(t) <= 90*24*time.Hour && asOf.Sub(t) >= 0 {
			out.Recent90Day++
		}
	}

	if hasCluster(dates) {
		out.RiskFlags = append(out.RiskFlags, "filing_cluster_detected")
	}
	if out.Recent90Day >= 4 {
		out.RiskFlags = append(out.RiskFlags, "elevated_90day_frequency")
	}
	if len(out.PerQuarter) >= steadyQuarters && isSteady(out.PerQuarter) {
		out.PositiveFlags = append(out.PositiveFlags, "steady_disclosure_pattern")
	}

	return out
}

// hasCluster reports whether clusterThreshold or more filings fall
// within any clusterWindow-day span.
func hasCluster(dates []time.Time) bool {
	sorted := append([]time.Time(nil), dates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })
	for i := 0; i < len(sorted); i++ {
		count := 1
		for j := i + 1; j < len(sorted); j++ {
			if sorted[j].Sub(sorted[i]) <= clusterWindow*24*time.Hour {
				count++
			}
		}
		if count >= clusterThreshold {
			return true
		}
	}
	return false
}

// isSteady reports whether disclosure is regular: no quarter with zero
// filings between the first and last observed quarter.
func isSteady(perQuarter map[string]int) bool {
	first, last := -1, -1
	for q, c := range perQuarter {
		if c == 0 {
			return false
		}
		var year, quarter int
		if _, err := fmt.Sscanf(q, "%dQ%d", &year, &quarter); err != nil {
			return false
		}
		idx := year*4 + quarter - 1
		if first < 0 || idx < first {
			first = idx
		}
		if idx > last {
			last = idx
		}
	}
	return len(perQuarter) == last-first+1
}
