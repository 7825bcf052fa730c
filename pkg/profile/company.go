// Package profile defines the Unified Profile document and the entities
// that feed it: companies, filing references, filing bundles, and
// relationship edges. These are the shapes every component in the
// engine reads or writes; nothing here performs IO.
package profile

import (
	"fmt"
	"strings"
	"time"
)

// Company identifies one SEC registrant. Immutable after creation; CIK
// is the canonical key everywhere else in the engine.
type Company struct {
	CIK    string `json:"cik"`
	Ticker string `json:"ticker"`
	Name   string `json:"name"`
}

// PadCIK pads a numeric CIK string to the 10-digit zero-padded form
// EDGAR uses in its URLs and JSON payloads.
func PadCIK(cik string) string {
	cik = strings.TrimSpace(cik)
	for len(cik) < 10 {
		cik = "0" + cik
	}
	return cik
}

// NormalizeCIK strips leading zeros, for CIKs used as map/log keys.
func NormalizeCIK(cik string) string {
	return strings.TrimLeft(strings.TrimSpace(cik), "0")
}

// FormType is an opaque discriminant for a filing's form. The engine
// never branches on its internal structure, only compares it.
type FormType string

const (
	Form10K    FormType = "10-K"
	Form10Q    FormType = "10-Q"
	Form4      FormType = "4"
	Form3      FormType = "3"
	Form5      FormType = "5"
	FormSC13D  FormType = "SC 13D"
	FormSC13G  FormType = "SC 13G"
	FormDEF14A FormType = "DEF 14A"
	Form8K     FormType = "8-K"
	Form13FHR  FormType = "13F-HR"
)

// FilingReference points at one filing belonging to exactly one
// Company. Immutable once created.
type FilingReference struct {
	CIK                string    `json:"cik"`
	Accession          string    `json:"accession"` // NNNNNNNNNN-NN-NNNNNN
	FormType           FormType  `json:"form_type"`
	FiledDate          string    `json:"filed_date"`  // YYYY-MM-DD
	ReportDate         string    `json:"report_date"` // YYYY-MM-DD, may be empty
	PrimaryDocumentPath string   `json:"primary_document_path"`
}

// AccessionDigitsOnly strips the dashes from an accession number, the
// form EDGAR's archive URLs require.
func AccessionDigitsOnly(accession string) string {
	return strings.ReplaceAll(accession, "-", "")
}

// ArchiveURL builds the canonical EDGAR archive URL for a filing's
// primary document.
func (f FilingReference) ArchiveURL() string {
	cikInt := NormalizeCIK(f.CIK)
	return fmt.Sprintf("https://www.sec.gov/Archives/edgar/data/%s/%s/%s",
		cikInt, AccessionDigitsOnly(f.Accession), f.PrimaryDocumentPath)
}

// FiledTime parses FiledDate, returning the zero time on failure.
func (f FilingReference) FiledTime() time.Time {
	t, _ := time.Parse("2006-01-02", f.FiledDate)
	return t
}

// SubDocument is one additional document referenced from a filing's
// primary document (e.g. exhibits), fetched alongside it.
type SubDocument struct {
	Path string `json:"path"`
	Body []byte `json:"-"`
}

// Bundle is the bytes fetched for one FilingReference: the primary
// document plus any referenced sub-documents. Owned by the Cache while
// resident.
type Bundle struct {
	Reference    FilingReference `json:"reference"`
	PrimaryBody  []byte          `json:"-"`
	SubDocuments []SubDocument   `json:"-"`
	FetchedAt    time.Time       `json:"fetched_at"`
}

// SizeBytes returns the total bytes occupied by this bundle.
func (b Bundle) SizeBytes() int64 {
	n := int64(len(b.PrimaryBody))
	for _, d := range b.SubDocuments {
		n += int64(len(d.Body))
	}
	return n
}

// CompanyBundle is everything fetched for one (cik, lookback_years)
// cache key: the submissions index, the XBRL facts document (if any),
// and the filing bundles selected for parsing.
type CompanyBundle struct {
	CIK             string            `json:"cik"`
	LookbackYears   int               `json:"lookback_years"`
	Company         Company           `json:"company"`
	Filings         []FilingReference `json:"filings"`
	FactsJSON       []byte            `json:"-"`
	Documents       map[string]Bundle `json:"-"` // keyed by accession
	FetchedAt       time.Time         `json:"fetched_at"`
}
