package relationship

import (
	"regexp"
	"strings"
	"time"

	"github.com/edgarprofiles/engine/pkg/profile"
)

// relationshipPattern is one labeled entry in the pattern bank: a
// regex and its base confidence tier.
type relationshipPattern struct {
	pattern *regexp.Regexp
	base    float64
}

// patternBank maps each relationship type to its strong (0.90) and
// medium (0.65) pattern tiers (spec §4.D.2).
var patternBank = map[profile.RelationshipType][]relationshipPattern{
	profile.RelSupplier: {
		{regexp.MustCompile(`(?i)\bsupplies\b|\bsupplier (to|of)\b|\bprovides? (components|materials|parts) to\b`), 0.90},
		{regexp.MustCompile(`(?i)\bvendor\b|\bsourced from\b`), 0.65},
	},
	profile.RelCustomer: {
		{regexp.MustCompile(`(?i)\bcustomer\b.*\b(purchases|buys|ordered)\b|\bsold to\b`), 0.90},
		{regexp.MustCompile(`(?i)\bclient\b|\baccount\b`), 0.65},
	},
	profile.RelCompetitor: {
		{regexp.MustCompile(`(?i)\bcompetes? (directly )?with\b|\bcompetitor\b`), 0.90},
		{regexp.MustCompile(`(?i)\brival\b|\balternative (provider|vendor)\b`), 0.65},
	},
	profile.RelPartner: {
		{regexp.MustCompile(`(?i)\bjoint venture\b|\bstrategic partnership\b|\bpartnered with\b`), 0.90},
		{regexp.MustCompile(`(?i)\bcollaborat\w*\b|\balliance\b`), 0.65},
	},
	profile.RelInvestor: {
		{regexp.MustCompile(`(?i)\backquired a stake\b|\binvested in\b|\bmajor shareholder of\b`), 0.90},
		{regexp.MustCompile(`(?i)\bholds shares (in|of)\b`), 0.65},
	},
	profile.RelSubsidiary: {
		{regexp.MustCompile(`(?i)\bwholly[- ]owned subsidiary\b|\boperates as a subsidiary of\b`), 0.90},
		{regexp.MustCompile(`(?i)\bsubsidiary\b`), 0.65},
	},
	profile.RelParent: {
		{regexp.MustCompile(`(?i)\bparent company\b|\bholding company of\b`), 0.90},
		{regexp.MustCompile(`(?i)\bowns\b.*\bof\b`), 0.65},
	},
}

// minEdgeConfidence is the floor below which an edge is discarded
// (spec §4.D.2).
const minEdgeConfidence = 0.50

var sentenceSplitPattern = regexp.MustCompile(`(?:[.!?]+\s+|\n+)`)

// ClassifyEdges finds sentences with two or more distinct company
// mentions and classifies the relationship type from the pattern bank,
// emitting one edge per sentence/type match above minEdgeConfidence
// (spec §4.D.2).
func ClassifyEdges(sourceCIK, text string, dir *Directory, fuzzyThreshold float64, now time.Time) []profile.RelationshipEdge {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	var edges []profile.RelationshipEdge
	for _, sentence := range sentenceSplitPattern.Split(text, -1) {
		mentions := FindMentions(sentence, dir, fuzzyThreshold)
		if len(mentions) < 2 {
			continue
		}
		sourceMention, hasSource := findSelfMention(mentions, sourceCIK)
		sourceConf := 1.0
		if hasSource {
			sourceConf = sourceMention.Confidence
		}

		for _, target := range mentions {
			if target.TargetCIK == sourceCIK {
				continue
			}
			for relType, tiers := range patternBank {
				for _, tier := range tiers {
					if !tier.pattern.MatchString(sentence) {
						continue
					}
					conf := tier.base * min64(sourceConf, target.Confidence)
					if conf < minEdgeConfidence {
						continue
					}
					edges = append(edges, profile.RelationshipEdge{
						SourceCIK:        sourceCIK,
						TargetCIK:        target.TargetCIK,
						Type:             relType,
						Confidence:       conf,
						ExtractionMethod: "pattern_match",
						ContextExcerpt:   truncate(strings.TrimSpace(sentence), 300),
						FirstMentioned:   now,
						LastMentioned:    now,
						MentionCount:     1,
					})
					break
				}
			}
		}
	}
	return edges
}

func findSelfMention(mentions []Mention, cik string) (Mention, bool) {
	for _, m := range mentions {
		if m.TargetCIK == cik {
			return m, true
		}
	}
	return Mention{}, false
}

func min64(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
