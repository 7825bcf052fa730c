package parsers

import (
	"regexp"
	"strings"

	"github.com/edgarprofiles/engine/pkg/profile"
)

// narrativeKeywords is the fixed keyword list counted across every
// extracted section (spec §4.C.6).
var narrativeKeywords = []string{
	"risk", "litigation", "cyber", "regulatory", "liquidity",
	"macroeconomic", "revenue", "cash", "debt",
}

// sectionHeadings anchors each item by a regex over its standard 10-K
// heading text; 10-Qs only carry items 1 and 1A in Part II, matched by
// the same patterns since the labels are shared.
var sectionHeadings = map[string]*regexp.Regexp{
	"item_1":  regexp.MustCompile(`(?i)item\s+1\.?\s+business`),
	"item_1a": regexp.MustCompile(`(?i)item\s+1a\.?\s+risk\s+factors`),
	"item_7":  regexp.MustCompile(`(?i)item\s+7\.?\s+management'?s\s+discussion`),
	"item_7a": regexp.MustCompile(`(?i)item\s+7a\.?\s+quantitative`),
	"item_8":  regexp.MustCompile(`(?i)item\s+8\.?\s+financial\s+statements`),
}

// sectionOrder fixes the slicing order so each heading's section runs
// to the next heading found after it.
var sectionOrder = []string{"item_1", "item_1a", "item_7", "item_7a", "item_8"}

// ParseNarrative slices a 10-K/10-Q document body into its standard
// items, word-counts each, and tallies the fixed keyword list.
func ParseNarrative(body []byte, formType profile.FormType, reportDate string) profile.NarrativeSection {
	text := stripTags(string(body))
	section := profile.NarrativeSection{
		FormType:      formType,
		ReportDate:    reportDate,
		WordCounts:    map[string]int{},
		KeywordCounts: map[string]int{},
	}

	offsets := map[string]int{}
	for key, pattern := range sectionHeadings {
		loc := pattern.FindStringIndex(text)
		if loc != nil {
			offsets[key] = loc[0]
		}
	}

	for i, key := range sectionOrder {
		start, ok := offsets[key]
		if !ok {
			continue
		}
		end := len(text)
		for _, nextKey := range sectionOrder[i+1:] {
			if nextStart, ok := offsets[nextKey]; ok && nextStart > start {
				end = nextStart
				break
			}
		}
		content := strings.TrimSpace(text[start:end])
		assignSection(&section, key, content)
		section.WordCounts[key] = len(strings.Fields(content))
	}

	full := strings.ToLower(text)
	for _, kw := range narrativeKeywords {
		section.KeywordCounts[kw] = strings.Count(full, kw)
	}
	return section
}

func assignSection(s *profile.NarrativeSection, key, content string) {
	switch key {
	case "item_1":
		s.Item1 = content
	case "item_1a":
		s.Item1A = content
	case "item_7":
		s.Item7 = content
	case "item_7a":
		s.Item7A = content
	case "item_8":
		s.Item8 = content
	}
}

var tagPattern = regexp.MustCompile(`<[^>]*>`)

// stripTags removes HTML markup from a filing body so section slicing
// operates on plain text.
func stripTags(s string) string {
	return tagPattern.ReplaceAllString(s, " ")
}
