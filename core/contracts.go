package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// EventStore persists emitted events so attempts can re-materialize their
// payload on every try and audits survive the original emit call.
type EventStore interface {
	Save(ctx context.Context, event Event) error
	Get(ctx context.Context, id string) (Event, error)
}

// SubscriptionStore is the read path into subscription storage. ListActive
// returns only active subscriptions covering eventType, ordered by creation
// time so fan-out is deterministic.
type SubscriptionStore interface {
	ListActive(ctx context.Context, eventType string) ([]Subscription, error)
	Get(ctx context.Context, id string) (Subscription, error)
}

// AttemptStore owns delivery-attempt state. Every mutation is a
// compare-and-set keyed by attempt id and expected prior status; a miss
// returns ErrStatusConflict and performs no write.
type AttemptStore interface {
	// CreatePending inserts a pending attempt under dedupeKey. When the key
	// already exists the stored attempt is returned with created=false.
	CreatePending(ctx context.Context, eventID string, subscriptionID string, dedupeKey string) (DeliveryAttempt, bool, error)
	// ClaimNextDue atomically claims one eligible attempt (pending or
	// failed_retryable, next_attempt_at null or due) into in_flight.
	ClaimNextDue(ctx context.Context, now time.Time) (DeliveryAttempt, bool, error)
	MarkSucceeded(ctx context.Context, attemptID string, httpStatus int) error
	MarkRetryable(ctx context.Context, attemptID string, httpStatus int, cause string, nextAttemptAt time.Time) error
	MarkTerminal(ctx context.Context, attemptID string, httpStatus int, cause string) error
	// ReleaseClaim returns an in_flight attempt to pending after an
	// infrastructure error. attempt_count only tracks delivery failures, so
	// the release leaves it untouched and just defers the next claim.
	ReleaseClaim(ctx context.Context, attemptID string, cause string, nextAttemptAt time.Time) error
	// ReclaimExpired returns in_flight attempts whose lease lapsed before
	// cutoff to pending, and reports how many were reclaimed.
	ReclaimExpired(ctx context.Context, cutoff time.Time) (int, error)
	Get(ctx context.Context, id string) (DeliveryAttempt, error)
	List(ctx context.Context, filter DeliveryFilter) (DeliveryPage, error)
}

// DeadLetterStore owns parked failures. Create is idempotent per
// (source_kind, source_ref_id); Transition is a status-guarded
// compare-and-set.
type DeadLetterStore interface {
	Create(ctx context.Context, entry DeadLetterEntry) (DeadLetterEntry, bool, error)
	Get(ctx context.Context, id string) (DeadLetterEntry, error)
	List(ctx context.Context, filter DeadLetterFilter) (DeadLetterPage, error)
	Transition(ctx context.Context, id string, from DeadLetterStatus, to DeadLetterStatus, actor string, at time.Time) error
	Statistics(ctx context.Context) (DeadLetterStatistics, error)
}

type DeliveryOutcome string

const (
	OutcomeSucceeded DeliveryOutcome = "succeeded"
	OutcomeRetryable DeliveryOutcome = "retryable"
	OutcomeTerminal  DeliveryOutcome = "terminal"
)

// DeliveryResult is the classified result of one outbound POST.
type DeliveryResult struct {
	Outcome    DeliveryOutcome
	HTTPStatus int
	Cause      string
}

// DeliveryClient performs the signed HTTP call. It never retries on its own;
// retry ownership lives with the dispatcher.
type DeliveryClient interface {
	Deliver(ctx context.Context, event Event, subscription Subscription) DeliveryResult
}

// Signer produces the tamper-evidence signature for an outbound body.
type Signer interface {
	Sign(secret string, timestamp time.Time, body []byte) string
}

// RetryBackoffScheduler computes the delay before retry number attempt.
type RetryBackoffScheduler interface {
	NextDelay(attempt int) time.Duration
}

// StoreProvider exposes the storage surface a repository factory builds.
type StoreProvider interface {
	EventStore() EventStore
	SubscriptionStore() SubscriptionStore
	AttemptStore() AttemptStore
	DeadLetterStore() DeadLetterStore
}

// RepositoryStoreFactory builds stores from an opaque persistence client.
type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}
