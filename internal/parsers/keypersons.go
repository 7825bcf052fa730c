package parsers

import (
	"regexp"
	"strings"
	"time"

	"github.com/edgarprofiles/engine/pkg/profile"
)

// keyPersonDenyList rejects boilerplate strings that sometimes land in
// a name field instead of an actual person (spec §4.C.7, >=20 patterns).
var keyPersonDenyList = []string{
	"name of reporting person", "see instructions", "not applicable",
	"reporting person", "form type", "signature", "date of report",
	"name and address", "issuer name", "filer information",
	"commission file number", "irs employer", "cusip number",
	"table of contents", "item no", "page intentionally left blank",
	"annual report", "proxy statement", "united states",
	"securities and exchange commission", "washington d c",
}

var executiveTitlePattern = regexp.MustCompile(`(?i)\b(chief executive officer|ceo|chief financial officer|cfo|chief operating officer|coo|chief technology officer|cto|president|chairman|general counsel)\b`)

var allUppercasePattern = regexp.MustCompile(`^[A-Z0-9 .,&'-]+$`)

// validPersonName applies the length, whitespace, deny-list,
// digit-ratio, and all-uppercase-heading checks from spec §4.C.7.
func validPersonName(name string) bool {
	name = strings.TrimSpace(name)
	if len(name) < 5 || len(name) > 50 {
		return false
	}
	if !strings.Contains(name, " ") {
		return false
	}
	lower := strings.ToLower(name)
	for _, bad := range keyPersonDenyList {
		if strings.Contains(lower, bad) {
			return false
		}
	}
	digits := len(digitRatioPattern.FindAllString(name, -1))
	if float64(digits)/float64(len(name)) > 0.30 {
		return false
	}
	if allUppercasePattern.MatchString(name) && name == strings.ToUpper(name) {
		return false
	}
	return true
}

// activeWithin is the recency window for the "active" flag (spec §9
// fixes this at 24 months).
const activeWithin = 24 * 30 * 24 * time.Hour

// AggregateKeyPersons folds already-computed Form 4, DEF 14A, and
// SC 13D/G partials into the key-persons view (spec §4.C.7).
func AggregateKeyPersons(insiders []profile.InsiderRecord, board []profile.BoardMember, holders []profile.OwnershipRecord, lastMentioned map[string]time.Time, asOf time.Time) profile.KeyPersonsPartial {
	out := profile.KeyPersonsPartial{PartialBase: profile.PartialBase{Available: true}}

	seenExec := map[string]bool{}
	holdingsByName := map[string]*profile.InsiderHolding{}

	for _, ins := range insiders {
		if !validPersonName(ins.InsiderName) {
			continue
		}

		if h, ok := holdingsByName[ins.InsiderName]; ok {
			h.Shares += ins.NetShares
			h.NetValue += ins.NetValue
			h.Signal = classifySignal(h.NetValue)
		} else {
			holdingsByName[ins.InsiderName] = &profile.InsiderHolding{
				Name: ins.InsiderName, Shares: ins.NetShares, NetValue: ins.NetValue, Signal: ins.Signal,
			}
		}

		if executiveTitlePattern.MatchString(ins.InsiderTitle) && !seenExec[ins.InsiderName] {
			seenExec[ins.InsiderName] = true
			out.Executives = append(out.Executives, buildKeyPerson(ins.InsiderName, ins.InsiderTitle, lastMentioned, asOf))
		}
	}
	for _, h := range holdingsByName {
		out.InsiderHoldings = append(out.InsiderHoldings, *h)
	}

	for _, b := range board {
		if !validPersonName(b.Name) {
			continue
		}
		out.BoardMembers = append(out.BoardMembers, buildKeyPerson(b.Name, "Director", lastMentioned, asOf))
	}

	for _, h := range holders {
		if !validPersonName(h.InvestorName) {
			continue
		}
		out.InstitutionalInvestors = append(out.InstitutionalInvestors, buildKeyPerson(h.InvestorName, "Institutional Investor", lastMentioned, asOf))
	}

	return out
}

func buildKeyPerson(name, title string, lastMentioned map[string]time.Time, asOf time.Time) profile.KeyPerson {
	last := lastMentioned[name]
	if last.IsZero() {
		last = asOf
	}
	return profile.KeyPerson{
		Name:          name,
		Title:         title,
		LastMentioned: last,
		Active:        asOf.Sub(last) <= activeWithin,
	}
}
