package parsers

import (
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/edgarprofiles/engine/pkg/profile"
)

// form4Document mirrors the subset of SEC's ownershipDocument XML
// schema the insider-trading partial needs.
type form4Document struct {
	XMLName xml.Name `xml:"ownershipDocument"`
	Owner   struct {
		Name         string `xml:"reportingOwnerId>rptOwnerName"`
		Relationship struct {
			IsDirector    string `xml:"isDirector"`
			IsOfficer     string `xml:"isOfficer"`
			IsTenPercent  string `xml:"isTenPercentOwner"`
			OfficerTitle  string `xml:"officerTitle"`
		} `xml:"reportingOwnerRelationship"`
	} `xml:"reportingOwner"`
	NonDerivative struct {
		Transactions []form4Transaction `xml:"nonDerivativeTransaction"`
	} `xml:"nonDerivativeTable"`
}

type form4Transaction struct {
	Date struct {
		Value string `xml:"value"`
	} `xml:"transactionDate"`
	Coding struct {
		Code string `xml:"transactionCode"`
	} `xml:"transactionCoding"`
	Amounts struct {
		Shares struct {
			Value float64 `xml:"value"`
		} `xml:"transactionShares"`
		Price struct {
			Value float64 `xml:"value"`
		} `xml:"transactionPricePerShare"`
		AcquiredDisposed struct {
			Value string `xml:"value"`
		} `xml:"transactionAcquiredDisposedCode"`
	} `xml:"transactionAmounts"`
	SharesOwnedAfter struct {
		Value float64 `xml:"value"`
	} `xml:"postTransactionAmounts>sharesOwnedFollowingTransaction"`
}

// transactionKind maps SEC's single-letter transaction codes to the
// partial's kind enum. Codes not recognized fall back to "other".
func transactionKind(code, acquiredDisposed string) string {
	switch code {
	case "P":
		return "purchase"
	case "S":
		return "sale"
	case "M", "X":
		return "option_exercise"
	case "A", "G":
		return "award"
	default:
		if acquiredDisposed == "A" {
			return "award"
		}
		return "other"
	}
}

// ParseForm4 parses one Form 4 ownership document into an
// InsiderRecord, computing net_shares/net_value and the bullish/
// bearish signal (spec §4.C.2).
func ParseForm4(body []byte) (profile.InsiderRecord, error) {
	var doc form4Document
	if err := xml.Unmarshal(body, &doc); err != nil {
		return profile.InsiderRecord{}, fmt.Errorf("parsers: malformed Form 4 XML: %w", err)
	}

	title := resolveOfficerTitle(doc.Owner.Relationship.OfficerTitle, doc.Owner.Relationship.IsDirector == "1", doc.Owner.Relationship.IsTenPercent == "1")

	record := profile.InsiderRecord{
		InsiderName:  strings.TrimSpace(doc.Owner.Name),
		InsiderTitle: title,
	}

	var netShares, netValue float64
	for _, t := range doc.NonDerivative.Transactions {
		kind := transactionKind(t.Coding.Code, t.Amounts.AcquiredDisposed.Value)
		shares := t.Amounts.Shares.Value
		price := t.Amounts.Price.Value
		signedShares := shares
		if t.Amounts.AcquiredDisposed.Value == "D" {
			signedShares = -shares
		}

		total := signedShares * price
		// Bare option exercises with no cash price move shares but not
		// net_value (spec §4.C.2).
		if kind == "option_exercise" && price == 0 {
			total = 0
		}

		record.Transactions = append(record.Transactions, profile.InsiderTransaction{
			Date:             t.Date.Value,
			Kind:             kind,
			Shares:           shares,
			PricePerShare:    price,
			TotalValue:       total,
			SharesOwnedAfter: t.SharesOwnedAfter.Value,
		})

		netShares += signedShares
		netValue += total
	}

	record.NetShares = netShares
	record.NetValue = netValue
	record.Signal = classifySignal(netValue)
	return record, nil
}

func classifySignal(netValue float64) string {
	switch {
	case netValue > 1_000_000:
		return "strong_bullish"
	case netValue > 100_000:
		return "bullish"
	case netValue < -1_000_000:
		return "strong_bearish"
	case netValue < -100_000:
		return "bearish"
	default:
		return "neutral"
	}
}

func resolveOfficerTitle(title string, isDirector, isTenPercent bool) string {
	title = strings.TrimSpace(title)
	if title != "" {
		return title
	}
	if isDirector {
		return "Director"
	}
	if isTenPercent {
		return "10% Owner"
	}
	return ""
}
