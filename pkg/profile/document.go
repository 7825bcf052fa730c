package profile

import "time"

// Quality is the validator's verdict on a profile (spec §4.G).
type Quality struct {
	Score  float64 `json:"score"`
	Grade  string  `json:"grade"`
	Issues []Issue `json:"issues"`
}

// IssueCategory is the fixed enum of validator issue kinds.
type IssueCategory string

const (
	IssueIncomplete  IssueCategory = "INCOMPLETE"
	IssueInconsistent IssueCategory = "INCONSISTENT"
	IssueOutOfOrder  IssueCategory = "OUT_OF_ORDER"
	IssueImproper    IssueCategory = "IMPROPER"
)

// Issue is one validator finding.
type Issue struct {
	Category IssueCategory `json:"category"`
	Message  string        `json:"message"`
}

// Document is the Unified Profile: the single aggregated document
// produced by the engine for one company (spec §6 "Profile document
// shape"). Every extractor key is a struct field so the compiler
// enforces "missing is never allowed" for Available — the aggregator
// always populates every field, even with Available=false.
type Document struct {
	CIK         string  `json:"cik"`
	CompanyInfo Company `json:"company_info"`

	FilingMetadata         FilingMetadataPartial         `json:"filing_metadata"`
	FinancialTimeSeries    FinancialTimeSeries           `json:"financial_time_series"`
	MaterialEvents         MaterialEventsPartial         `json:"material_events"`
	InsiderTrading         InsiderTradingPartial         `json:"insider_trading"`
	InstitutionalOwnership InstitutionalOwnershipPartial `json:"institutional_ownership"`
	CorporateGovernance    GovernancePartial             `json:"corporate_governance"`
	KeyPersons             KeyPersonsPartial             `json:"key_persons"`
	NarrativeAnalysis      NarrativeAnalysisPartial      `json:"narrative_analysis"`
	Relationships          RelationshipsPartial          `json:"relationships"`

	LatestFinancials   map[string]float64          `json:"latest_financials"`
	FinancialRatios    FinancialRatios             `json:"financial_ratios"`
	GrowthRates        map[string]GrowthStat       `json:"growth_rates"`
	HealthIndicators   HealthIndicators            `json:"health_indicators"`
	StatisticalSummary map[string]StatSummary      `json:"statistical_summary"`
	VolatilityMetrics  map[string]VolatilityMetric `json:"volatility_metrics"`

	// AIAnalysis is present only when the optional local LLM analyzer
	// ran (spec §9 Open Questions). nil means the key is absent, not
	// unavailable — ai is an external collaborator, not an extractor.
	AIAnalysis map[string]any `json:"ai_analysis,omitempty"`

	Quality Quality `json:"quality"`

	GeneratedAt time.Time `json:"generated_at"`
	LastUpdated time.Time `json:"last_updated"`

	TasksCompleted int `json:"tasks_completed"`
}

// ExtractorKeys lists every key the "every extractor key present"
// completeness invariant checks (spec §3, §8).
var ExtractorKeys = []string{
	"filing_metadata",
	"financial_time_series",
	"material_events",
	"insider_trading",
	"institutional_ownership",
	"corporate_governance",
	"key_persons",
	"narrative_analysis",
	"relationships",
}

// AvailableFlags returns the available flag for each extractor key, as a
// map keyed by the ExtractorKeys names, used by the validator's
// completeness check.
func (d *Document) AvailableFlags() map[string]bool {
	return map[string]bool{
		"filing_metadata":         d.FilingMetadata.Available,
		"financial_time_series":   d.FinancialTimeSeries.Available,
		"material_events":         d.MaterialEvents.Available,
		"insider_trading":         d.InsiderTrading.Available,
		"institutional_ownership": d.InstitutionalOwnership.Available,
		"corporate_governance":    d.CorporateGovernance.Available,
		"key_persons":             d.KeyPersons.Available,
		"narrative_analysis":      d.NarrativeAnalysis.Available,
		"relationships":           d.Relationships.Available,
	}
}
