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

// investorNameDenyList rejects boilerplate strings that occasionally
// land in the cover-page name field instead of an investor's name.
var investorNameDenyList = []string{
	"name of reporting person",
	"irs identification no",
	"ss or irs",
	"check the appropriate box",
	"see instructions",
	"not applicable",
	"cusip no",
}

var digitRatioPattern = regexp.MustCompile(`\d`)

// validInvestorName applies the deny-list plus the digit-ratio
// heuristic (spec §4.C.3): reject if >30% of characters are digits.
func validInvestorName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	lower := strings.ToLower(name)
	for _, bad := range investorNameDenyList {
		if strings.Contains(lower, bad) {
			return false
		}
	}
	digits := len(digitRatioPattern.FindAllString(name, -1))
	if float64(digits)/float64(len(name)) > 0.30 {
		return false
	}
	return true
}

var ownershipPercentPattern = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*%`)
var sharesPattern = regexp.MustCompile(`([\d,]+)\s+shares`)

// activistIntentPatterns is ordered: the first matching pattern wins
// ties (spec §4.C.3).
var activistIntentPatterns = []struct {
	intent  string
	pattern *regexp.Regexp
}{
	{"acquisition", regexp.MustCompile(`(?i)acquir\w*\s+(additional\s+)?securities|acquisition of`)},
	{"board_governance", regexp.MustCompile(`(?i)board\s+(seat|representation|nomination)|nominate.*director`)},
	{"strategic_alternatives", regexp.MustCompile(`(?i)strategic\s+alternatives|sale of the (issuer|company)|merger`)},
	{"investment_only", regexp.MustCompile(`(?i)investment\s+purposes\s+only|not.*intent.*influence`)},
	{"general_activism", regexp.MustCompile(`(?i)engage\s+in\s+discussions|communicate.*management`)},
}

// ParseSC13 parses an SC 13D/G cover page HTML document (spec §4.C.3).
func ParseSC13(body []byte, formType string) (profile.OwnershipRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return profile.OwnershipRecord{}, fmt.Errorf("parsers: malformed SC 13 HTML: %w", err)
	}

	text := doc.Text()
	rec := profile.OwnershipRecord{FormType: formType}

	name := extractInvestorName(doc)
	if validInvestorName(name) {
		rec.InvestorName = name
	}

	if m := ownershipPercentPattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			rec.OwnershipPercent = v
		}
	}
	if m := sharesPattern.FindStringSubmatch(text); m != nil {
		if v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64); err == nil {
			rec.SharesOwned = v
		}
	}

	rec.IsActivist = formType == "SC 13D"

	item4 := extractItem4(doc)
	rec.PurposeExcerpt = truncate(item4, 400)
	for _, p := range activistIntentPatterns {
		if p.pattern.MatchString(item4) {
			rec.ActivistIntent = p.intent
			break
		}
	}

	return rec, nil
}

// extractInvestorName looks for the cover-page "Name of reporting
// person" row; goquery selectors walk table cells the way SEC's
// standard SC 13 cover-page template lays them out.
func extractInvestorName(doc *goquery.Document) string {
	var candidate string
	doc.Find("tr").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		cells := s.Find("td")
		if cells.Length() < 2 {
			return true
		}
		label := strings.ToLower(strings.TrimSpace(cells.Eq(0).Text()))
		if strings.Contains(label, "name of reporting person") {
			candidate = strings.TrimSpace(cells.Eq(1).Text())
			return false
		}
		return true
	})
	return candidate
}

func extractItem4(doc *goquery.Document) string {
	full := doc.Text()
	idx := strings.Index(strings.ToLower(full), "item 4")
	if idx < 0 {
		return ""
	}
	rest := full[idx:]
	end := strings.Index(strings.ToLower(rest[1:]), "item 5")
	if end < 0 {
		end = len(rest)
	} else {
		end++
	}
	return strings.TrimSpace(rest[:end])
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
