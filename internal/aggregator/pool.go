package aggregator

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/edgarprofiles/engine/pkg/profile"
)

// taskPool bounds the total number of in-flight per-profile tasks
// across every ticker currently aggregating (spec §5 "a task pool of
// size W, global across all tickers... task pool caps total in-flight
// parsing work"). Excess tasks block in Acquire until a slot frees.
type taskPool struct {
	sem *semaphore.Weighted
}

func newTaskPool(size int) *taskPool {
	if size <= 0 {
		size = 8
	}
	return &taskPool{sem: semaphore.NewWeighted(int64(size))}
}

// Acquire blocks until a task slot is available or ctx is cancelled.
func (p *taskPool) Acquire(ctx context.Context) error {
	return p.sem.Acquire(ctx, 1)
}

// Release returns a task slot to the pool.
func (p *taskPool) Release() {
	p.sem.Release(1)
}

// cikLocks serializes concurrent Aggregate calls for the same cik and
// coalesces a later call into the in-flight one (spec §5 "two
// concurrent profiles for the same cik are disallowed... a later
// request for the same cik while one is in flight is coalesced").
type cikLocks struct {
	mu      sync.Mutex
	inFlight map[string]*inFlightRun
}

// inFlightRun is the shared result of one in-progress Aggregate call
// for a cik; later callers for the same cik wait on done and read
// result/err instead of re-running the pipeline.
type inFlightRun struct {
	done   chan struct{}
	result *runResult
}

type runResult struct {
	doc *profile.Document
	err error
}

func newCIKLocks() *cikLocks {
	return &cikLocks{inFlight: make(map[string]*inFlightRun)}
}

// claim registers cik as in-flight and returns (run, true) if this
// caller owns the run, or (existingRun, false) if a concurrent caller
// should instead wait on the returned run.
func (c *cikLocks) claim(cik string) (*inFlightRun, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.inFlight[cik]; ok {
		return existing, false
	}
	run := &inFlightRun{done: make(chan struct{})}
	c.inFlight[cik] = run
	return run, true
}

// release publishes the run's result and removes it from the in-flight
// map so the next caller for this cik starts a fresh run.
func (c *cikLocks) release(cik string, run *inFlightRun, result *runResult) {
	run.result = result
	close(run.done)

	c.mu.Lock()
	delete(c.inFlight, cik)
	c.mu.Unlock()
}
