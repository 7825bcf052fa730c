package aggregator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/edgarprofiles/engine/pkg/profile"
)

// ──────────────────────────────────────────────────────────────────
// fakes
// ──────────────────────────────────────────────────────────────────

type fakeEdgar struct {
	mu        sync.Mutex
	calls     int
	company   profile.Company
	refs      []profile.FilingReference
	facts     profile.FinancialTimeSeries
	factsErr  error
	submitErr error
}

func (f *fakeEdgar) GetSubmissions(ctx context.Context, cik string) (profile.Company, []profile.FilingReference, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.submitErr != nil {
		return profile.Company{}, nil, f.submitErr
	}
	return f.company, f.refs, nil
}

func (f *fakeEdgar) GetCompanyFacts(ctx context.Context, cik string) (profile.FinancialTimeSeries, error) {
	if f.factsErr != nil {
		return profile.FinancialTimeSeries{}, f.factsErr
	}
	return f.facts, nil
}

func (f *fakeEdgar) FetchArchive(ctx context.Context, ref profile.FilingReference, subPaths ...string) (profile.Bundle, error) {
	return profile.Bundle{Reference: ref, FetchedAt: time.Now()}, nil
}

type fakeCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeCache() *fakeCache { return &fakeCache{data: make(map[string][]byte)} }

func (c *fakeCache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok
}

func (c *fakeCache) Put(key string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = data
	return nil
}

func (c *fakeCache) ClearCompany(cik string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, cik)
	return nil
}

type fakeStore struct {
	mu       sync.Mutex
	profiles map[string]profile.Document
	edges    map[string]profile.RelationshipEdge
}

func newFakeStore() *fakeStore {
	return &fakeStore{profiles: make(map[string]profile.Document), edges: make(map[string]profile.RelationshipEdge)}
}

func (s *fakeStore) UpsertProfile(doc profile.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[doc.CIK] = doc
	return nil
}

func (s *fakeStore) UpsertEdge(edge profile.RelationshipEdge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.edges[edge.Key()] = edge
	return nil
}

func (s *fakeStore) GetEdge(key string) (profile.RelationshipEdge, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.edges[key]
	return e, ok, nil
}

func (s *fakeStore) UpsertFinancialRelationships(rec profile.FinancialRelationships) error { return nil }

func (s *fakeStore) UpsertKeyPersonInterlock(personName, cik string) error { return nil }

type fakeTracker struct {
	mu      sync.Mutex
	records []profile.FailureRecord
	cleared []string
}

func (t *fakeTracker) Record(ticker string, reason profile.FailureReasonCode, message string, context map[string]string, now time.Time) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, profile.FailureRecord{Ticker: ticker, ReasonCode: reason, Message: message, Timestamp: now})
	return nil
}

func (t *fakeTracker) Clear(ticker string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleared = append(t.cleared, ticker)
	return nil
}

var _ EdgarClient = (*fakeEdgar)(nil)
var _ FilingCache = (*fakeCache)(nil)
var _ ProfileStore = (*fakeStore)(nil)
var _ FailureTracker = (*fakeTracker)(nil)

// ──────────────────────────────────────────────────────────────────
// helpers
// ──────────────────────────────────────────────────────────────────

func newTestAggregator(edgar *fakeEdgar, store *fakeStore, tracker *fakeTracker) *Aggregator {
	return New(edgar, newFakeCache(), nil, nil, store, tracker, nil, DefaultConfig(), nil)
}

func sampleRefs() []profile.FilingReference {
	return []profile.FilingReference{
		{CIK: "0000320193", Accession: "0000320193-24-000001", FormType: profile.Form10K, FiledDate: time.Now().Format("2006-01-02")},
	}
}

// ──────────────────────────────────────────────────────────────────
// tests
// ──────────────────────────────────────────────────────────────────

func TestAggregateHappyPath(t *testing.T) {
	edgar := &fakeEdgar{
		company: profile.Company{CIK: "0000320193", Ticker: "AAPL", Name: "Apple Inc."},
		refs:    sampleRefs(),
	}
	store := newFakeStore()
	tracker := &fakeTracker{}
	agg := newTestAggregator(edgar, store, tracker)

	doc, err := agg.Aggregate(context.Background(), "AAPL", "0000320193", Options{}, nil)
	if err != nil {
		t.Fatalf("Aggregate returned error: %v", err)
	}
	if doc == nil {
		t.Fatal("Aggregate returned nil document")
	}
	if doc.CIK != "0000320193" {
		t.Errorf("doc.CIK = %q, want 0000320193", doc.CIK)
	}
	if doc.Quality.Grade == "" {
		t.Error("doc.Quality.Grade not set")
	}
	if _, ok := store.profiles["0000320193"]; !ok {
		t.Error("profile was not persisted to the store")
	}
	if len(tracker.cleared) != 1 || tracker.cleared[0] != "AAPL" {
		t.Errorf("expected failure tracker cleared for AAPL, got %v", tracker.cleared)
	}
	if len(tracker.records) != 0 {
		t.Errorf("expected no failure records on a successful run, got %d", len(tracker.records))
	}
}

func TestAggregateNoFilingsFails(t *testing.T) {
	edgar := &fakeEdgar{
		company: profile.Company{CIK: "0000320193", Ticker: "AAPL", Name: "Apple Inc."},
		refs:    nil,
	}
	store := newFakeStore()
	tracker := &fakeTracker{}
	agg := newTestAggregator(edgar, store, tracker)

	doc, err := agg.Aggregate(context.Background(), "AAPL", "0000320193", Options{}, nil)
	if err == nil {
		t.Fatal("expected an error for a company with no filings in the lookback window")
	}
	if doc != nil {
		t.Errorf("expected nil document on failure, got %+v", doc)
	}
	if len(tracker.records) != 1 || tracker.records[0].ReasonCode != profile.FailureNoFilings {
		t.Errorf("expected a FailureNoFilings record, got %v", tracker.records)
	}
}

func TestAggregateSubmissionsFetchFailureIsFatal(t *testing.T) {
	edgar := &fakeEdgar{submitErr: errors.New("edgar: connection refused")}
	store := newFakeStore()
	tracker := &fakeTracker{}
	agg := newTestAggregator(edgar, store, tracker)

	_, err := agg.Aggregate(context.Background(), "AAPL", "0000320193", Options{}, nil)
	if err == nil {
		t.Fatal("expected GetSubmissions failure to propagate as an Aggregate error")
	}
	if len(store.profiles) != 0 {
		t.Error("no profile should be persisted when submissions fetch fails")
	}
	if len(tracker.records) != 1 {
		t.Fatalf("expected exactly one failure record, got %d", len(tracker.records))
	}
	if tracker.records[0].ReasonCode != profile.FailureFilingFetchError {
		t.Errorf("reason code = %v, want FailureFilingFetchError", tracker.records[0].ReasonCode)
	}
}

func TestAggregateCoalescesConcurrentRunsForSameCIK(t *testing.T) {
	edgar := &fakeEdgar{
		company: profile.Company{CIK: "0000320193", Ticker: "AAPL", Name: "Apple Inc."},
		refs:    sampleRefs(),
	}
	store := newFakeStore()
	tracker := &fakeTracker{}
	agg := newTestAggregator(edgar, store, tracker)

	const n = 5
	var wg sync.WaitGroup
	docs := make([]*profile.Document, n)
	errs := make([]error, n)
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			docs[i], errs[i] = agg.Aggregate(context.Background(), "AAPL", "0000320193", Options{}, nil)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("run %d returned error: %v", i, err)
		}
		if docs[i] == nil {
			t.Errorf("run %d returned nil document", i)
		}
	}

	edgar.mu.Lock()
	calls := edgar.calls
	edgar.mu.Unlock()
	if calls != 1 {
		t.Errorf("GetSubmissions called %d times, want exactly 1 (concurrent calls should coalesce)", calls)
	}
}

func TestAggregateSequentialRunsForSameCIKDoNotCoalesce(t *testing.T) {
	edgar := &fakeEdgar{
		company: profile.Company{CIK: "0000320193", Ticker: "AAPL", Name: "Apple Inc."},
		refs:    sampleRefs(),
	}
	store := newFakeStore()
	tracker := &fakeTracker{}
	agg := newTestAggregator(edgar, store, tracker)

	if _, err := agg.Aggregate(context.Background(), "AAPL", "0000320193", Options{}, nil); err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	if _, err := agg.Aggregate(context.Background(), "AAPL", "0000320193", Options{}, nil); err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	// The second run finds the first run's bundle in the filing cache, so
	// EDGAR is hit once; each run still executes its own pipeline and
	// clears the failure tracker itself.
	edgar.mu.Lock()
	calls := edgar.calls
	edgar.mu.Unlock()
	if calls != 1 {
		t.Errorf("GetSubmissions called %d times, want 1 (second run is served from the cache)", calls)
	}
	if len(tracker.cleared) != 2 {
		t.Errorf("failure tracker cleared %d times, want 2 for two sequential (non-overlapping) runs", len(tracker.cleared))
	}
}

func TestAggregateReportsProgress(t *testing.T) {
	edgar := &fakeEdgar{
		company: profile.Company{CIK: "0000320193", Ticker: "AAPL", Name: "Apple Inc."},
		refs:    sampleRefs(),
	}
	store := newFakeStore()
	tracker := &fakeTracker{}
	agg := newTestAggregator(edgar, store, tracker)

	var mu sync.Mutex
	var stages []State
	progress := func(ev ProgressEvent) {
		mu.Lock()
		defer mu.Unlock()
		stages = append(stages, ev.Stage)
	}

	if _, err := agg.Aggregate(context.Background(), "AAPL", "0000320193", Options{}, progress); err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(stages) == 0 {
		t.Fatal("expected at least one progress event")
	}
	if stages[0] != StateQueued {
		t.Errorf("first stage = %v, want StateQueued", stages[0])
	}
	if stages[len(stages)-1] != StatePersisted {
		t.Errorf("last stage = %v, want StatePersisted", stages[len(stages)-1])
	}
}
