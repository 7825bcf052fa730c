package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edgarprofiles/engine/internal/logging"
	"github.com/edgarprofiles/engine/internal/metrics"
	"github.com/edgarprofiles/engine/internal/validator"
	"github.com/edgarprofiles/engine/pkg/profile"
)

// Options tunes one Aggregate call (spec §4.I per-ticker options:
// force_refresh bypasses the filing cache).
type Options struct {
	ForceRefresh bool
}

// Aggregate runs the full per-ticker pipeline: cache lookup/populate,
// fan out the 8 per-profile tasks across the bounded global task pool,
// merge under a per-profile mutex, compute metrics, validate, persist,
// and update the failure tracker (spec §4.F). A second call for the
// same cik while one is in flight is coalesced onto the first's result
// (spec §5).
func (a *Aggregator) Aggregate(ctx context.Context, ticker, cik string, opts Options, progress ProgressFunc) (*profile.Document, error) {
	run, owner := a.ciks.claim(cik)
	if !owner {
		select {
		case <-run.done:
			if run.result == nil {
				return nil, fmt.Errorf("aggregator: coalesced run for cik %s produced no result", cik)
			}
			return run.result.doc, run.result.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	doc, err := a.runPipeline(ctx, ticker, cik, opts, progress)
	a.ciks.release(cik, run, &runResult{doc: doc, err: err})
	return doc, err
}

func (a *Aggregator) runPipeline(ctx context.Context, ticker, cik string, opts Options, progress ProgressFunc) (*profile.Document, error) {
	now := time.Now()
	log := logging.With(a.Log, ticker, cik)

	progress.emit(ticker, StateQueued, 0, "queued")

	if opts.ForceRefresh {
		if clearer, ok := a.Cache.(interface{ ClearCompany(string) error }); ok {
			if err := clearer.ClearCompany(cik); err != nil {
				log.Warn("aggregator: force refresh cache clear failed", zapErr(err))
			}
		}
	}

	progress.emit(ticker, StateFetching, 5, "fetching filings")
	bundle, cacheHit, err := a.ensureBundle(ctx, cik)
	if err != nil {
		a.recordFailure(ticker, classifyFetchFailure(err), err.Error(), now)
		return nil, err
	}
	if len(bundle.Filings) == 0 {
		msg := "no filings found within the lookback window"
		a.recordFailure(ticker, profile.FailureNoFilings, msg, now)
		return nil, fmt.Errorf("aggregator: %s", msg)
	}
	if cacheHit {
		progress.emit(ticker, StateCacheStored, 15, "loaded from cache")
	} else {
		progress.emit(ticker, StateCacheStored, 15, "fetched and cached")
	}

	doc := &profile.Document{
		CIK:         cik,
		CompanyInfo: bundle.Company,
		GeneratedAt: now,
	}

	progress.emit(ticker, StateAggregating, 20, "running profile tasks")
	finRel, err := a.runTasks(ctx, doc, bundle, now, ticker, progress)
	if err != nil {
		a.recordFailure(ticker, classifyTaskFailure(err), err.Error(), now)
		return nil, err
	}

	asOf := now.Format("2006-01-02")
	result := metrics.Compute(doc.FinancialTimeSeries, asOf)
	doc.LatestFinancials = result.LatestFinancials
	doc.FinancialRatios = result.Ratios
	doc.GrowthRates = result.Growth
	doc.HealthIndicators = result.Health
	doc.StatisticalSummary = result.StatisticalSummary
	doc.VolatilityMetrics = result.Volatility

	doc.LastUpdated = time.Now()
	doc.TasksCompleted = countAvailable(doc)

	progress.emit(ticker, StateValidating, 85, "validating profile")
	doc.Quality = validator.Validate(doc, doc.LastUpdated)

	if a.Analyzer != nil {
		analysisCtx, cancel := context.WithTimeout(ctx, 120*time.Second)
		analysis, err := a.Analyzer.Analyze(analysisCtx, doc)
		cancel()
		if err != nil {
			log.Warn("aggregator: ai analysis skipped", zapErr(err))
		} else {
			doc.AIAnalysis = analysis
		}
	}

	progress.emit(ticker, StateAggregating, 90, "persisting relationships")
	if err := a.persistRelationships(doc, finRel); err != nil {
		log.Warn("aggregator: relationship persistence failed, profile still saved", zapErr(err))
	}

	if err := a.Store.UpsertProfile(*doc); err != nil {
		a.recordFailure(ticker, profile.FailureProfileSaveError, err.Error(), now)
		return nil, fmt.Errorf("aggregator: persist profile: %w", err)
	}

	if err := a.Tracker.Clear(ticker); err != nil {
		log.Warn("aggregator: failure tracker clear failed", zapErr(err))
	}

	progress.emit(ticker, StatePersisted, 100, "done")
	return doc, nil
}

// runTasks fans the 8 per-profile tasks out across the bounded global
// task pool and merges each result into doc under mu (spec §4.F, §5).
// Per spec, a task's own failure is recorded as an unavailable partial
// with warnings rather than aborting the whole run; only context
// cancellation/deadline and task-pool acquisition failures are fatal.
func (a *Aggregator) runTasks(ctx context.Context, doc *profile.Document, bundle profile.CompanyBundle, now time.Time, ticker string, progress ProgressFunc) (profile.FinancialRelationships, error) {
	var mu sync.Mutex
	var finRel profile.FinancialRelationships
	g, gctx := errgroup.WithContext(ctx)

	timeout := time.Duration(a.Config.TaskTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	run := func(name string, fn func(ctx context.Context) error) {
		g.Go(func() error {
			if err := a.pool.Acquire(gctx); err != nil {
				return fmt.Errorf("aggregator: task pool: %w", err)
			}
			defer a.pool.Release()

			taskCtx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()

			err := fn(taskCtx)
			progress.emit(ticker, StateAggregating, 20, name+" complete")
			return err
		})
	}

	run("filing_metadata", func(ctx context.Context) error {
		p := taskFilingMetadata(bundle)
		mu.Lock()
		doc.FilingMetadata = p
		mu.Unlock()
		return nil
	})

	run("material_events", func(ctx context.Context) error {
		p := taskMaterialEvents(bundle, now)
		mu.Lock()
		doc.MaterialEvents = p
		mu.Unlock()
		return nil
	})

	run("governance", func(ctx context.Context) error {
		p := taskGovernance(bundle)
		mu.Lock()
		doc.CorporateGovernance = p
		mu.Unlock()
		return nil
	})

	run("insider_trading", func(ctx context.Context) error {
		p := taskInsiderTrading(bundle)
		mu.Lock()
		doc.InsiderTrading = p
		mu.Unlock()
		return nil
	})

	run("institutional", func(ctx context.Context) error {
		p := taskInstitutional(bundle)
		mu.Lock()
		doc.InstitutionalOwnership = p
		mu.Unlock()
		return nil
	})

	run("key_persons", func(ctx context.Context) error {
		p := taskKeyPersons(bundle, now)
		mu.Lock()
		doc.KeyPersons = p
		mu.Unlock()
		return nil
	})

	run("financials_timeseries", func(ctx context.Context) error {
		series := taskFinancialsTimeSeries(ctx, a, bundle)
		mu.Lock()
		doc.FinancialTimeSeries = series
		mu.Unlock()
		return nil
	})

	run("relationships", func(ctx context.Context) error {
		narrative, byForm := narrativeBodies(bundle, a.Config.ReportsPerForm)

		var edges []profile.RelationshipEdge
		var extracted profile.FinancialRelationships
		if a.RelExtr != nil {
			result := a.RelExtr.Extract(ctx, bundle.CIK, byForm, now)
			edges = result.Edges
			extracted = result.FinancialRelationships
		}

		relPartial := profile.RelationshipsPartial{PartialBase: profile.PartialBase{Available: len(edges) > 0}}
		relPartial.Edges = edges
		if !relPartial.Available {
			relPartial.Warnings = []string{"no relationships extracted from narrative text"}
		}

		mu.Lock()
		doc.NarrativeAnalysis = narrative
		doc.Relationships = relPartial
		finRel = extracted
		mu.Unlock()
		return nil
	})

	if err := g.Wait(); err != nil {
		return profile.FinancialRelationships{}, err
	}
	return finRel, nil
}

// persistRelationships upserts every relationship edge, the derived
// financial-relationships record, and key-person interlocks (spec
// §4.H). Advisory: a partial failure here does not fail the run.
func (a *Aggregator) persistRelationships(doc *profile.Document, finRel profile.FinancialRelationships) error {
	var firstErr error
	note := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	for _, edge := range doc.Relationships.Edges {
		if existing, ok, err := a.Store.GetEdge(edge.Key()); err == nil && ok {
			existing.MergeUpsert(edge)
			note(a.Store.UpsertEdge(existing))
		} else {
			note(a.Store.UpsertEdge(edge))
		}
	}

	if finRel.CIK != "" {
		note(a.Store.UpsertFinancialRelationships(finRel))
	}

	for _, kp := range doc.KeyPersons.Executives {
		note(a.Store.UpsertKeyPersonInterlock(kp.Name, doc.CIK))
	}
	for _, kp := range doc.KeyPersons.BoardMembers {
		note(a.Store.UpsertKeyPersonInterlock(kp.Name, doc.CIK))
	}

	return firstErr
}

func countAvailable(doc *profile.Document) int {
	count := 0
	for _, available := range doc.AvailableFlags() {
		if available {
			count++
		}
	}
	return count
}

func (a *Aggregator) recordFailure(ticker string, reason profile.FailureReasonCode, message string, now time.Time) {
	if err := a.Tracker.Record(ticker, reason, message, nil, now); err != nil {
		a.Log.Warn("aggregator: failure tracker record failed", zapErr(err))
	}
}

func classifyFetchFailure(err error) profile.FailureReasonCode {
	if errors.Is(err, context.DeadlineExceeded) {
		return profile.FailureTimeoutError
	}
	if errors.Is(err, context.Canceled) {
		return profile.FailureCancelled
	}
	return profile.FailureFilingFetchError
}

func classifyTaskFailure(err error) profile.FailureReasonCode {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return profile.FailureTimeoutError
	case errors.Is(err, context.Canceled):
		return profile.FailureCancelled
	default:
		return profile.FailureDataExtractionError
	}
}
