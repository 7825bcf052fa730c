package validator

import (
	"time"

	"github.com/edgarprofiles/engine/pkg/profile"
)

// FailureStore is the persistence contract the failure tracker needs;
// internal/store provides the badgerhold-backed implementation.
type FailureStore interface {
	SaveFailure(rec profile.FailureRecord) error
	GetFailure(ticker string) (profile.FailureRecord, bool, error)
	ClearFailure(ticker string) error
}

// Tracker records terminal aggregation failures and clears them on a
// successful retry (spec §4.G Failure Tracker).
type Tracker struct {
	store FailureStore
}

// NewTracker builds a Tracker backed by store.
func NewTracker(store FailureStore) *Tracker {
	return &Tracker{store: store}
}

// Record saves or updates the failure for ticker, incrementing
// retry_count if a prior failure record exists.
func (t *Tracker) Record(ticker string, reason profile.FailureReasonCode, message string, context map[string]string, now time.Time) error {
	retryCount := 0
	if existing, ok, err := t.store.GetFailure(ticker); err == nil && ok {
		retryCount = existing.RetryCount + 1
	}

	return t.store.SaveFailure(profile.FailureRecord{
		Ticker:     ticker,
		ReasonCode: reason,
		Message:    message,
		Context:    context,
		RetryCount: retryCount,
		Timestamp:  now,
	})
}

// Clear removes ticker's failure record after a successful persist.
func (t *Tracker) Clear(ticker string) error {
	return t.store.ClearFailure(ticker)
}
