package profile

import "time"

// Partial is the shared shape every form parser and extractor returns:
// a flag saying whether data is present, plus non-fatal warnings. Every
// concrete partial type embeds PartialBase so the aggregator can
// enforce "available is never missing" without reflecting into the
// field (spec §3 Unified Profile invariant).
type PartialBase struct {
	Available bool     `json:"available"`
	Warnings  []string `json:"warnings"`
	Cancelled bool     `json:"cancelled,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// Unavailable builds a PartialBase for a failed or empty extraction.
func Unavailable(warning string) PartialBase {
	if warning == "" {
		return PartialBase{Available: false}
	}
	return PartialBase{Available: false, Warnings: []string{warning}}
}

// --- §4.C.2 Form 4 ---

type InsiderTransaction struct {
	Date              string  `json:"date"`
	Kind              string  `json:"kind"` // purchase|sale|option_exercise|award|other
	Shares            float64 `json:"shares"`
	PricePerShare     float64 `json:"price_per_share"`
	TotalValue        float64 `json:"total_value"`
	SharesOwnedAfter  float64 `json:"shares_owned_after"`
}

type InsiderRecord struct {
	InsiderName  string               `json:"insider_name"`
	InsiderTitle string               `json:"insider_title"`
	Transactions []InsiderTransaction `json:"transactions"`
	NetShares    float64              `json:"net_shares"`
	NetValue     float64              `json:"net_value"`
	Signal       string               `json:"signal"` // strong_bullish|bullish|neutral|bearish|strong_bearish
}

type InsiderTradingPartial struct {
	PartialBase
	Insiders []InsiderRecord `json:"insiders"`
}

// --- §4.C.3 SC 13D/G ---

type OwnershipRecord struct {
	InvestorName     string  `json:"investor_name"`
	OwnershipPercent float64 `json:"ownership_percent"`
	SharesOwned      float64 `json:"shares_owned"`
	IsActivist       bool    `json:"is_activist"`
	ActivistIntent   string  `json:"activist_intent"`
	PurposeExcerpt   string  `json:"purpose_excerpt"`
	FormType         string  `json:"form_type"`
}

type InstitutionalOwnershipPartial struct {
	PartialBase
	Holders []OwnershipRecord `json:"holders"`
}

// --- §4.C.4 DEF 14A ---

type ExecutiveComp struct {
	CEOTotal      float64 `json:"ceo_total"`
	CEOSalary     float64 `json:"ceo_salary"`
	CEOBonus      float64 `json:"ceo_bonus"`
	CEOStock      float64 `json:"ceo_stock"`
	MedianEmployee float64 `json:"median_employee"`
	PayRatio      float64 `json:"pay_ratio"`
}

type BoardMember struct {
	Name         string `json:"name"`
	Independence string `json:"independence"` // independent|not_independent|unknown
}

type BoardComposition struct {
	TotalDirectors       int     `json:"total_directors"`
	IndependentDirectors int     `json:"independent_directors"`
	IndependenceRatio    float64 `json:"independence_ratio"`
	Members              []BoardMember `json:"members"`
}

type GovernancePartial struct {
	PartialBase
	Compensation ExecutiveComp    `json:"compensation"`
	Board        BoardComposition `json:"board"`
}

// --- §4.C.5 8-K references ---

type MaterialEventsPartial struct {
	PartialBase
	TotalCount      int            `json:"total_count"`
	Recent90Day     int            `json:"recent_90day_count"`
	PerQuarter      map[string]int `json:"per_quarter"`
	RiskFlags       []string       `json:"risk_flags"`
	PositiveFlags   []string       `json:"positive_flags"`
}

// --- §4.C.6 10-K/10-Q narrative ---

type NarrativeSection struct {
	FormType      FormType       `json:"form_type"`
	ReportDate    string         `json:"report_date"`
	Item1         string         `json:"item_1,omitempty"`
	Item1A        string         `json:"item_1a,omitempty"`
	Item7         string         `json:"item_7,omitempty"`
	Item7A        string         `json:"item_7a,omitempty"`
	Item8         string         `json:"item_8,omitempty"`
	WordCounts    map[string]int `json:"word_counts"`    // section -> words
	KeywordCounts map[string]int `json:"keyword_counts"` // keyword -> count across sections
}

type NarrativeAnalysisPartial struct {
	PartialBase
	Reports []NarrativeSection `json:"reports"`
}

// --- §4.C.7 key persons ---

type InsiderHolding struct {
	Name     string  `json:"name"`
	Shares   float64 `json:"shares"`
	NetValue float64 `json:"net_value"`
	Signal   string  `json:"signal"`
}

type KeyPerson struct {
	Name            string    `json:"name"`
	Title           string    `json:"title"`
	LastMentioned   time.Time `json:"last_mentioned"`
	Active          bool      `json:"active"`
}

type KeyPersonsPartial struct {
	PartialBase
	Executives             []KeyPerson       `json:"executives"`
	BoardMembers           []KeyPerson       `json:"board_members"`
	InsiderHoldings        []InsiderHolding  `json:"insider_holdings"`
	InstitutionalInvestors []KeyPerson       `json:"institutional_investors"`
}

// --- filing metadata partial: the company's filing references ---

type FilingMetadataPartial struct {
	PartialBase
	Filings []FilingReference `json:"filings"`
}

// --- §4.D relationships ---

type RelationshipsPartial struct {
	PartialBase
	Edges []RelationshipEdge `json:"edges"`
}

// --- §4.D financial relationships (customer/supplier concentration) ---

type CustomerConcentration struct {
	Name           string  `json:"name"`
	RevenuePercent float64 `json:"revenue_percent"`
	Confidence     float64 `json:"confidence"`
}

type SupplierRelationship struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

type FinancialRelationships struct {
	CIK              string                  `json:"cik"`
	TopCustomers     []CustomerConcentration `json:"top_customers"`
	Suppliers        []SupplierRelationship  `json:"suppliers"`
	SegmentRevenues  map[string]float64      `json:"segment_revenues"`
	HerfindahlIndex  float64                 `json:"herfindahl_index"`
	Concentration    string                  `json:"concentration"` // LOW|MODERATE|HIGH
	Top5Concentration float64                `json:"top5_concentration_percent"`
}
