package batch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/edgarprofiles/engine/internal/aggregator"
	"github.com/edgarprofiles/engine/pkg/profile"
)

// ──────────────────────────────────────────────────────────────────
// fakes
// ──────────────────────────────────────────────────────────────────

type fakeEdgar struct {
	mu    sync.Mutex
	ciks  map[string]string                       // ticker -> cik
	fail  map[string]bool                         // ticker -> ResolveCIK fails
	calls map[string]int
	feeds map[string][]profile.FilingReference // cik -> discovery feed entries
}

func newFakeEdgar() *fakeEdgar {
	return &fakeEdgar{
		ciks:  make(map[string]string),
		fail:  make(map[string]bool),
		calls: make(map[string]int),
		feeds: make(map[string][]profile.FilingReference),
	}
}

func (f *fakeEdgar) PollDiscoveryFeed(ctx context.Context, cik string) ([]profile.FilingReference, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]profile.FilingReference(nil), f.feeds[cik]...), nil
}

func (f *fakeEdgar) GetSubmissions(ctx context.Context, cik string) (profile.Company, []profile.FilingReference, error) {
	return profile.Company{CIK: cik, Ticker: cik, Name: "Company " + cik},
		[]profile.FilingReference{{CIK: cik, Accession: "0000000000-24-000001", FormType: profile.Form10K, FiledDate: time.Now().Format("2006-01-02")}},
		nil
}

func (f *fakeEdgar) GetCompanyFacts(ctx context.Context, cik string) (profile.FinancialTimeSeries, error) {
	return profile.FinancialTimeSeries{}, nil
}

func (f *fakeEdgar) FetchArchive(ctx context.Context, ref profile.FilingReference, subPaths ...string) (profile.Bundle, error) {
	return profile.Bundle{Reference: ref}, nil
}

func (f *fakeEdgar) ResolveCIK(ctx context.Context, ticker string) (string, error) {
	f.mu.Lock()
	f.calls[ticker]++
	f.mu.Unlock()
	if f.fail[ticker] {
		return "", errors.New("unknown ticker")
	}
	if cik, ok := f.ciks[ticker]; ok {
		return cik, nil
	}
	return "CIK-" + ticker, nil
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

type fakeStore struct {
	mu       sync.Mutex
	profiles map[string]profile.Document
	failures []profile.FailureRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{profiles: make(map[string]profile.Document)}
}

func (s *fakeStore) UpsertProfile(doc profile.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[doc.CIK] = doc
	return nil
}

func (s *fakeStore) UpsertEdge(edge profile.RelationshipEdge) error { return nil }

func (s *fakeStore) GetEdge(key string) (profile.RelationshipEdge, bool, error) {
	return profile.RelationshipEdge{}, false, nil
}

func (s *fakeStore) UpsertFinancialRelationships(rec profile.FinancialRelationships) error { return nil }

func (s *fakeStore) UpsertKeyPersonInterlock(personName, cik string) error { return nil }

func (s *fakeStore) ListFailures() ([]profile.FailureRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]profile.FailureRecord(nil), s.failures...), nil
}

func (s *fakeStore) ListProfilesByQuality(maxGradeRank int, gradeRank func(grade string) int) ([]profile.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []profile.Document
	for _, d := range s.profiles {
		if gradeRank(d.Quality.Grade) <= maxGradeRank {
			out = append(out, d)
		}
	}
	return out, nil
}

type fakeTracker struct {
	mu      sync.Mutex
	cleared []string
}

func (t *fakeTracker) Record(ticker string, reason profile.FailureReasonCode, message string, context map[string]string, now time.Time) error {
	return nil
}

func (t *fakeTracker) Clear(ticker string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleared = append(t.cleared, ticker)
	return nil
}

var _ CIKResolver = (*fakeEdgar)(nil)
var _ discoveryFeed = (*fakeEdgar)(nil)
var _ FailureLister = (*fakeStore)(nil)
var _ ProfileLister = (*fakeStore)(nil)

// ──────────────────────────────────────────────────────────────────
// helpers
// ──────────────────────────────────────────────────────────────────

func newTestController(edgar *fakeEdgar, store *fakeStore, concurrency int) *Controller {
	agg := aggregator.New(edgar, newFakeCache(), nil, nil, store, &fakeTracker{}, nil, aggregator.DefaultConfig(), zap.NewNop())
	return NewController(agg, edgar, store, store, concurrency, zap.NewNop(), nil)
}

// ──────────────────────────────────────────────────────────────────
// tests
// ──────────────────────────────────────────────────────────────────

func TestControllerRunsQueuedTickers(t *testing.T) {
	edgar := newFakeEdgar()
	store := newFakeStore()
	ctrl := newTestController(edgar, store, 4)

	ctrl.AddTicker("AAPL", aggregator.Options{})
	ctrl.AddTicker("MSFT", aggregator.Options{})

	if err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	for _, st := range ctrl.Status() {
		if st.Status != JobDone {
			t.Errorf("ticker %s status = %v, want JobDone", st.Ticker, st.Status)
		}
	}
}

func TestControllerAddTickerIsNoOpWhenAlreadyQueued(t *testing.T) {
	edgar := newFakeEdgar()
	store := newFakeStore()
	ctrl := newTestController(edgar, store, 1)

	ctrl.AddTicker("AAPL", aggregator.Options{})
	ctrl.AddTicker("AAPL", aggregator.Options{})

	if len(ctrl.order) != 1 {
		t.Errorf("expected exactly one queued entry for a re-added ticker, got %d", len(ctrl.order))
	}
}

func TestControllerResolveFailureMarksJobFailed(t *testing.T) {
	edgar := newFakeEdgar()
	edgar.fail["BADTICKER"] = true
	store := newFakeStore()
	ctrl := newTestController(edgar, store, 4)

	ctrl.AddTicker("BADTICKER", aggregator.Options{})
	if err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	states := ctrl.Status()
	if len(states) != 1 || states[0].Status != JobFailed {
		t.Fatalf("expected BADTICKER to be JobFailed, got %+v", states)
	}
}

func TestControllerCompletesAllTickersWithConcurrencyTwo(t *testing.T) {
	edgar := newFakeEdgar()
	store := newFakeStore()
	ctrl := newTestController(edgar, store, 2)

	for _, ticker := range []string{"A", "B", "C", "D", "E", "F"} {
		ctrl.AddTicker(ticker, aggregator.Options{})
	}

	if err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	for _, st := range ctrl.Status() {
		if st.Status != JobDone {
			t.Errorf("ticker %s status = %v, want JobDone", st.Ticker, st.Status)
		}
	}
}

func TestControllerPauseResume(t *testing.T) {
	edgar := newFakeEdgar()
	store := newFakeStore()
	ctrl := newTestController(edgar, store, 1)

	ctrl.Pause()
	ctrl.AddTicker("AAPL", aggregator.Options{})

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(context.Background()) }()

	time.Sleep(20 * time.Millisecond)
	for _, st := range ctrl.Status() {
		if st.Status == JobDone {
			t.Fatal("job should not complete while the controller is paused")
		}
	}

	ctrl.Resume()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not complete after Resume")
	}

	for _, st := range ctrl.Status() {
		if st.Status != JobDone {
			t.Errorf("ticker %s status = %v, want JobDone after resume", st.Ticker, st.Status)
		}
	}
}

func TestControllerCancel(t *testing.T) {
	edgar := newFakeEdgar()
	store := newFakeStore()
	ctrl := newTestController(edgar, store, 1)

	ctrl.Pause()
	ctrl.AddTicker("AAPL", aggregator.Options{})
	ctrl.AddTicker("MSFT", aggregator.Options{})

	done := ctrl.RunAsync(context.Background())
	time.Sleep(10 * time.Millisecond)
	ctrl.Cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run error = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Cancel")
	}

	for _, st := range ctrl.Status() {
		if st.Status != JobCancelled {
			t.Errorf("queued ticker %s status = %v, want JobCancelled", st.Ticker, st.Status)
		}
	}
}

func TestControllerRetryFailed(t *testing.T) {
	edgar := newFakeEdgar()
	store := newFakeStore()
	store.failures = []profile.FailureRecord{
		{Ticker: "AAPL", ReasonCode: profile.FailureFilingFetchError},
		{Ticker: "MSFT", ReasonCode: profile.FailureNoFilings},
	}
	ctrl := newTestController(edgar, store, 4)

	n, err := ctrl.RetryFailed()
	if err != nil {
		t.Fatalf("RetryFailed returned error: %v", err)
	}
	if n != 2 {
		t.Errorf("RetryFailed requeued %d tickers, want 2", n)
	}
	if len(ctrl.order) != 2 {
		t.Errorf("expected 2 queued jobs, got %d", len(ctrl.order))
	}
}

func TestControllerRetryProblematic(t *testing.T) {
	edgar := newFakeEdgar()
	store := newFakeStore()
	store.profiles["CIK1"] = profile.Document{
		CIK:         "CIK1",
		CompanyInfo: profile.Company{Ticker: "BADCO"},
		Quality:     profile.Quality{Grade: "F", Score: 10},
	}
	store.profiles["CIK2"] = profile.Document{
		CIK:         "CIK2",
		CompanyInfo: profile.Company{Ticker: "GOODCO"},
		Quality:     profile.Quality{Grade: "A+", Score: 99},
	}
	ctrl := newTestController(edgar, store, 4)

	n, err := ctrl.RetryProblematic("D")
	if err != nil {
		t.Fatalf("RetryProblematic returned error: %v", err)
	}
	if n != 1 {
		t.Errorf("RetryProblematic requeued %d tickers, want 1 (only the F-grade profile)", n)
	}
	if len(ctrl.order) != 1 || ctrl.order[0] != "BADCO" {
		t.Errorf("expected only BADCO queued, got %v", ctrl.order)
	}
}

func TestControllerPollDiscoveryFirstPollEstablishesBaselineWithoutRequeue(t *testing.T) {
	edgar := newFakeEdgar()
	store := newFakeStore()
	ctrl := newTestController(edgar, store, 4)

	ctrl.Watch("AAPL")
	edgar.feeds["CIK-AAPL"] = []profile.FilingReference{
		{CIK: "CIK-AAPL", FormType: profile.Form8K, FiledDate: "2026-07-01"},
	}

	n, err := ctrl.PollDiscovery(context.Background())
	if err != nil {
		t.Fatalf("PollDiscovery returned error: %v", err)
	}
	if n != 0 {
		t.Errorf("first poll requeued %d tickers, want 0 (baseline-only)", n)
	}
	if len(ctrl.order) != 1 {
		t.Errorf("expected Watch not to queue an aggregation job, got order=%v", ctrl.order)
	}
}

func TestControllerPollDiscoveryRequeuesOnNewerFiling(t *testing.T) {
	edgar := newFakeEdgar()
	store := newFakeStore()
	ctrl := newTestController(edgar, store, 4)

	ctrl.Watch("AAPL")
	edgar.feeds["CIK-AAPL"] = []profile.FilingReference{
		{CIK: "CIK-AAPL", FormType: profile.Form8K, FiledDate: "2026-07-01"},
	}
	if _, err := ctrl.PollDiscovery(context.Background()); err != nil {
		t.Fatalf("first PollDiscovery returned error: %v", err)
	}

	edgar.feeds["CIK-AAPL"] = []profile.FilingReference{
		{CIK: "CIK-AAPL", FormType: profile.Form8K, FiledDate: "2026-07-15"},
	}
	n, err := ctrl.PollDiscovery(context.Background())
	if err != nil {
		t.Fatalf("second PollDiscovery returned error: %v", err)
	}
	if n != 1 {
		t.Errorf("second poll requeued %d tickers, want 1", n)
	}

	if err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	for _, st := range ctrl.Status() {
		if st.Ticker == "AAPL" && st.Status != JobDone {
			t.Errorf("AAPL status = %v, want JobDone after discovery requeue runs", st.Status)
		}
	}
}

func TestControllerPollDiscoveryNoOpWithoutDiscoveryCapableResolver(t *testing.T) {
	store := newFakeStore()
	agg := aggregator.New(plainResolver{}, newFakeCache(), nil, nil, store, &fakeTracker{}, nil, aggregator.DefaultConfig(), zap.NewNop())
	ctrl := NewController(agg, plainResolver{}, store, store, 4, zap.NewNop(), nil)

	ctrl.Watch("AAPL")
	n, err := ctrl.PollDiscovery(context.Background())
	if err != nil {
		t.Fatalf("PollDiscovery returned error: %v", err)
	}
	if n != 0 {
		t.Errorf("PollDiscovery requeued %d tickers against a non-discovery resolver, want 0", n)
	}
}

// plainResolver satisfies CIKResolver and aggregator.EdgarClient but not
// discoveryFeed, exercising PollDiscovery's type-assertion fallback.
type plainResolver struct{}

func (plainResolver) ResolveCIK(ctx context.Context, ticker string) (string, error) {
	return "CIK-" + ticker, nil
}

func (plainResolver) GetSubmissions(ctx context.Context, cik string) (profile.Company, []profile.FilingReference, error) {
	return profile.Company{CIK: cik}, nil, nil
}

func (plainResolver) GetCompanyFacts(ctx context.Context, cik string) (profile.FinancialTimeSeries, error) {
	return profile.FinancialTimeSeries{}, nil
}

func (plainResolver) FetchArchive(ctx context.Context, ref profile.FilingReference, subPaths ...string) (profile.Bundle, error) {
	return profile.Bundle{Reference: ref}, nil
}
