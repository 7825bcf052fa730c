package aggregator

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/edgarprofiles/engine/internal/parsers"
	"github.com/edgarprofiles/engine/internal/relationship"
	"github.com/edgarprofiles/engine/pkg/profile"
)

// EdgarClient is the subset of internal/edgar.Client the aggregator
// needs. Accepting an interface (spec §9 "global singletons -> injected
// handles") lets tests substitute a fake client instead of hitting
// SEC's network.
type EdgarClient interface {
	GetSubmissions(ctx context.Context, cik string) (profile.Company, []profile.FilingReference, error)
	GetCompanyFacts(ctx context.Context, cik string) (profile.FinancialTimeSeries, error)
	FetchArchive(ctx context.Context, ref profile.FilingReference, subPaths ...string) (profile.Bundle, error)
}

// FilingCache is the subset of internal/cache.Cache the aggregator
// needs for the bundle lookup/store step (spec §4.F step 1).
type FilingCache interface {
	Get(key string) ([]byte, bool)
	Put(key string, data []byte) error
}

// ProfileStore is the subset of internal/store.Store the aggregator
// persists through (spec §4.F step 6, §4.H).
type ProfileStore interface {
	UpsertProfile(doc profile.Document) error
	UpsertEdge(edge profile.RelationshipEdge) error
	GetEdge(key string) (profile.RelationshipEdge, bool, error)
	UpsertFinancialRelationships(rec profile.FinancialRelationships) error
	UpsertKeyPersonInterlock(personName, cik string) error
}

// FailureTracker is the subset of validator.Tracker the aggregator
// uses to record and clear terminal failures.
type FailureTracker interface {
	Record(ticker string, reason profile.FailureReasonCode, message string, context map[string]string, now time.Time) error
	Clear(ticker string) error
}

// NarrativeAnalyzer is the optional local LLM analyzer (internal/ai).
// A nil Analyzer on the Aggregator disables this step entirely; a
// non-nil one that errors or times out degrades doc.AIAnalysis to nil
// rather than failing the run (spec §9 Open Question: AI analysis is
// advisory, never load-bearing).
type NarrativeAnalyzer interface {
	Analyze(ctx context.Context, doc *profile.Document) (map[string]any, error)
}

// Config holds the aggregator's tunable knobs (spec §6
// aggregator.*, parsers.*, relationship.*).
type Config struct {
	TaskPoolSize      int // global task-pool bound, spec default 8
	TaskTimeoutSec    int // spec default 60 (45 in this deployment's default config)
	LookbackYears     int // spec default 5
	Form4Max          int // spec default 100
	DEF14AMax         int // spec default 10
	SC13Max           int // spec default 50
	ReportsPerForm    int // spec default 2
	ProgressInterval  int // seconds; spec default 15
}

// DefaultConfig returns the spec's documented defaults.
func DefaultConfig() Config {
	return Config{
		TaskPoolSize:     8,
		TaskTimeoutSec:   60,
		LookbackYears:    5,
		Form4Max:         100,
		DEF14AMax:        10,
		SC13Max:          50,
		ReportsPerForm:   2,
		ProgressInterval: 15,
	}
}

// Aggregator is the Profile Aggregator (spec §4.F): it owns the
// injected handles (cache, edgar client, store, directory, task pool)
// and runs the per-ticker pipeline.
type Aggregator struct {
	Edgar     EdgarClient
	Cache     FilingCache
	Registry  *parsers.Registry
	RelExtr   *relationship.Extractor
	Store     ProfileStore
	Tracker   FailureTracker
	Config    Config
	Log       *zap.Logger
	Analyzer  NarrativeAnalyzer

	pool *taskPool
	ciks *cikLocks
}

// New builds an Aggregator with the given injected dependencies. The
// global task pool and per-cik coalescing locks are constructed here
// so every Aggregate call shares the same bounded resources (spec §5
// "task pool of size W, global across all tickers"). analyzer may be
// nil (spec default: ai.enabled = false).
func New(edgar EdgarClient, cache FilingCache, reg *parsers.Registry, relExtr *relationship.Extractor, store ProfileStore, tracker FailureTracker, analyzer NarrativeAnalyzer, cfg Config, log *zap.Logger) *Aggregator {
	if cfg.TaskPoolSize <= 0 {
		cfg.TaskPoolSize = 8
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{
		Edgar:    edgar,
		Cache:    cache,
		Registry: reg,
		RelExtr:  relExtr,
		Store:    store,
		Tracker:  tracker,
		Analyzer: analyzer,
		Config:   cfg,
		Log:      log,
		pool:     newTaskPool(cfg.TaskPoolSize),
		ciks:     newCIKLocks(),
	}
}
