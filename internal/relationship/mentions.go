package relationship

import (
	"regexp"
	"strings"
)

// Mention is one company reference found in a body of text, confident
// enough to seed relationship-context classification.
type Mention struct {
	TargetCIK  string
	TargetName string
	Confidence float64
}

// DefaultFuzzyThreshold is the token-set similarity floor below which a
// mention is not produced (spec §4.D.1, default 0.82, configurable via
// relationship.fuzzy_threshold).
const DefaultFuzzyThreshold = 0.82

var tickerTokenPattern = regexp.MustCompile(`(?:\$)?\b[A-Z]{1,5}\b`)

// FindMentions scans text for references to any company in dir,
// scoring each by match strength, and deduplicates by target CIK
// keeping the highest confidence seen (spec §4.D.1).
func FindMentions(text string, dir *Directory, fuzzyThreshold float64) []Mention {
	if fuzzyThreshold <= 0 {
		fuzzyThreshold = DefaultFuzzyThreshold
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	lower := strings.ToLower(text)
	tickerTokens := map[string]bool{}
	for _, t := range tickerTokenPattern.FindAllString(text, -1) {
		tickerTokens[strings.TrimPrefix(t, "$")] = true
	}

	best := map[string]Mention{}
	for _, entry := range dir.Entries() {
		conf, matched := scoreEntry(entry, lower, tickerTokens, fuzzyThreshold)
		if !matched {
			continue
		}
		if existing, ok := best[entry.CIK]; !ok || conf > existing.Confidence {
			best[entry.CIK] = Mention{TargetCIK: entry.CIK, TargetName: entry.CanonicalName, Confidence: conf}
		}
	}

	out := make([]Mention, 0, len(best))
	for _, m := range best {
		out = append(out, m)
	}
	return out
}

func scoreEntry(entry CompanyDirectoryEntry, lowerText string, tickerTokens map[string]bool, fuzzyThreshold float64) (float64, bool) {
	if entry.CanonicalName != "" && strings.Contains(lowerText, strings.ToLower(entry.CanonicalName)) {
		return 0.99, true
	}
	if entry.Ticker != "" && tickerTokens[strings.ToUpper(entry.Ticker)] {
		return 0.98, true
	}
	for _, alias := range entry.Aliases {
		if alias != "" && strings.Contains(lowerText, strings.ToLower(alias)) {
			return 0.95, true
		}
	}

	sim := tokenSetSimilarity(strings.ToLower(entry.CanonicalName), lowerText)
	if sim >= fuzzyThreshold {
		// Scale 0.80-0.95 linearly from threshold to 1.0 (spec §4.D.1).
		scaled := 0.80 + (sim-fuzzyThreshold)/(1.0-fuzzyThreshold)*0.15
		if scaled > 0.95 {
			scaled = 0.95
		}
		return scaled, true
	}
	return 0, false
}

// tokenSetSimilarity returns the best Jaccard similarity between
// name's token set and any equal-length token window found in text.
func tokenSetSimilarity(name, text string) float64 {
	nameTokens := strings.Fields(name)
	if len(nameTokens) == 0 {
		return 0
	}
	textTokens := strings.Fields(text)
	if len(textTokens) < len(nameTokens) {
		return 0
	}

	nameSet := map[string]bool{}
	for _, t := range nameTokens {
		nameSet[t] = true
	}

	best := 0.0
	for i := 0; i+len(nameTokens) <= len(textTokens); i++ {
		window := textTokens[i : i+len(nameTokens)]
		windowSet := map[string]bool{}
		for _, t := range window {
			windowSet[t] = true
		}
		sim := jaccard(nameSet, windowSet)
		if sim > best {
			best = sim
		}
	}
	return best
}

func jaccard(a, b map[string]bool) float64 {
	inter, union := 0, 0
	seen := map[string]bool{}
	for k := range a {
		seen[k] = true
	}
	for k := range b {
		seen[k] = true
	}
	for k := range seen {
		union++
		if a[k] && b[k] {
			inter++
		}
	}
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
