package parsers

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/edgarprofiles/engine/pkg/profile"
)

var currencyPattern = regexp.MustCompile(`\$?([\d,]+(?:\.\d+)?)`)
var payRatioPattern = regexp.MustCompile(`(?i)pay\s+ratio[^\d]{0,40}(\d+(?:\.\d+)?)\s*(?:to|:)\s*1`)

var independenceNearbyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)independent director`),
	regexp.MustCompile(`(?i)does not qualify as independent`),
	regexp.MustCompile(`(?i)not independent`),
}

// ParseDEF14A parses a proxy statement's compensation table and board
// listing (spec §4.C.4).
func ParseDEF14A(body []byte) (def14aPartial, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return def14aPartial{}, fmt.Errorf("parsers: malformed DEF 14A HTML: %w", err)
	}

	comp := parseExecutiveComp(doc)
	board := parseBoardComposition(doc)
	return def14aPartial{Compensation: comp, Board: board}, nil
}

// def14aPartial bundles the two record types the DEF 14A parser
// produces before the aggregator folds them into GovernancePartial.
type def14aPartial struct {
	Compensation profile.ExecutiveComp
	Board        profile.BoardComposition
}

func parseExecutiveComp(doc *goquery.Document) profile.ExecutiveComp {
	var comp profile.ExecutiveComp
	full := doc.Text()

	doc.Find("tr").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		cells := s.Find("td")
		if cells.Length() < 2 {
			return true
		}
		label := strings.ToLower(strings.TrimSpace(cells.Eq(0).Text()))
		if !strings.Contains(label, "chief executive") && !strings.Contains(label, "ceo") {
			return true
		}
		values := rowAmounts(cells)
		if len(values) == 0 {
			return true
		}
		comp.CEOTotal = values[len(values)-1]
		if len(values) >= 4 {
			comp.CEOSalary = values[0]
			comp.CEOBonus = values[1]
			comp.CEOStock = values[2]
		}
		return false
	})

	if m := payRatioPattern.FindStringSubmatch(full); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			comp.PayRatio = v
		}
	}
	if idx := strings.Index(strings.ToLower(full), "median employee"); idx >= 0 {
		window := full[idx:min(idx+200, len(full))]
		if m := currencyPattern.FindStringSubmatch(window); m != nil {
			if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
				comp.MedianEmployee = v
			}
		}
	}
	if comp.PayRatio == 0 && comp.CEOTotal > 0 && comp.MedianEmployee > 0 {
		comp.PayRatio = comp.CEOTotal / comp.MedianEmployee
	}
	return comp
}

func rowAmounts(cells *goquery.Selection) []float64 {
	var out []float64
	cells.Each(func(i int, c *goquery.Selection) {
		if i == 0 {
			return
		}
		m := currencyPattern.FindStringSubmatch(c.Text())
		if m == nil {
			return
		}
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err == nil && v > 0 {
			out = append(out, v)
		}
	})
	return out
}

// directorNamePattern matches a plausible "Jane A. Doe" style name in
// a board-listing table row.
var directorNamePattern = regexp.MustCompile(`^[A-Z][a-zA-Z.'-]+(?:\s+[A-Z][a-zA-Z.'-]*){1,3}$`)

func parseBoardComposition(doc *goquery.Document) profile.BoardComposition {
	var board profile.BoardComposition
	full := doc.Text()
	seen := map[string]bool{}

	doc.Find("tr").Each(func(_ int, s *goquery.Selection) {
		cells := s.Find("td")
		if cells.Length() == 0 {
			return
		}
		name := strings.TrimSpace(cells.Eq(0).Text())
		if !directorNamePattern.MatchString(name) || seen[name] {
			return
		}
		seen[name] = true

		independence := independenceNear(full, name)
		board.Members = append(board.Members, profile.BoardMember{Name: name, Independence: independence})
		board.TotalDirectors++
		if independence == "independent" {
			board.IndependentDirectors++
		}
	})

	if board.TotalDirectors > 0 {
		board.IndependenceRatio = float64(board.IndependentDirectors) / float64(board.TotalDirectors)
	}
	return board
}

// independenceNear looks within +-50 characters of a director's name
// for an independence-status keyword (spec §4.C.4).
func independenceNear(full, name string) string {
	idx := strings.Index(full, name)
	if idx < 0 {
		return "unknown"
	}
	start := max(0, idx-50)
	end := min(len(full), idx+len(name)+50)
	window := full[start:end]

	for _, p := range independenceNearbyPatterns {
		if !p.MatchString(window) {
			continue
		}
		if strings.Contains(strings.ToLower(p.String()), "not independent") || strings.Contains(strings.ToLower(p.String()), "does not qualify") {
			return "not_independent"
		}
		return "independent"
	}
	return "unknown"
}
