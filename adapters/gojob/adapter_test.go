package gojob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-webhooks/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

func TestRetryPolicyBoundaries(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, MaxDelay: 10 * time.Second}

	if policy.Exhausted(2) {
		t.Fatalf("attempt 2 of 3 must not be exhausted")
	}
	if !policy.Exhausted(3) {
		t.Fatalf("attempt 3 of 3 must be exhausted")
	}
	if (RetryPolicy{}).Exhausted(100) {
		t.Fatalf("unbounded policy never exhausts")
	}

	if got := policy.ClampDelay(30 * time.Second); got != 10*time.Second {
		t.Fatalf("expected delay bounded to 10s, got %s", got)
	}
	if got := policy.ClampDelay(time.Second); got != time.Second {
		t.Fatalf("expected delay below the cap to pass through, got %s", got)
	}
	if got := policy.ClampDelay(-time.Second); got != 0 {
		t.Fatalf("expected negative delay clamped to zero, got %s", got)
	}
}

func TestDeadLetterHookParksFinalFailure(t *testing.T) {
	store := &captureDeadLetterStore{}
	hook := NewDeadLetterHook(store, RetryPolicy{MaxAttempts: 3}, nil)

	hook.OnFailure(context.Background(), worker.Event{
		Message: &job.ExecutionMessage{
			JobID:          JobIDDispatch,
			Parameters:     map[string]any{"batch_size": 50},
			IdempotencyKey: "idem-dispatch",
		},
		Attempt: 3,
		Err:     errors.New("queue backend unavailable"),
	})

	if len(store.entries) != 1 {
		t.Fatalf("expected one parked entry, got %d", len(store.entries))
	}
	entry := store.entries[0]
	if entry.SourceKind != core.SourceKindBackgroundTask {
		t.Fatalf("expected background task source, got %q", entry.SourceKind)
	}
	if entry.SourceRefID != "idem-dispatch" {
		t.Fatalf("expected idempotency key as source ref, got %q", entry.SourceRefID)
	}
	if entry.Status != core.DeadLetterStatusPending {
		t.Fatalf("expected pending entry, got %q", entry.Status)
	}
	if entry.FailureReason != "job_failed: queue backend unavailable" {
		t.Fatalf("unexpected failure reason %q", entry.FailureReason)
	}
	if entry.PayloadSnapshot["job_id"] != JobIDDispatch {
		t.Fatalf("expected job id in snapshot, got %#v", entry.PayloadSnapshot)
	}
	if entry.PayloadSnapshot["attempt"] != 3 {
		t.Fatalf("expected attempt in snapshot, got %#v", entry.PayloadSnapshot)
	}
	params, ok := entry.PayloadSnapshot["parameters"].(map[string]any)
	if !ok || params["batch_size"] != 50 {
		t.Fatalf("expected parameters snapshot, got %#v", entry.PayloadSnapshot["parameters"])
	}
}

func TestDeadLetterHookSkipsNonFinalAttempts(t *testing.T) {
	store := &captureDeadLetterStore{}
	hook := NewDeadLetterHook(store, RetryPolicy{MaxAttempts: 3}, nil)

	hook.OnFailure(context.Background(), worker.Event{
		Message: &job.ExecutionMessage{JobID: JobIDReclaim},
		Attempt: 1,
		Err:     errors.New("transient"),
	})
	hook.OnFailure(context.Background(), worker.Event{
		Message: &job.ExecutionMessage{JobID: JobIDReclaim},
		Attempt: 2,
		Err:     errors.New("transient"),
	})

	if len(store.entries) != 0 {
		t.Fatalf("expected no entries before the final attempt, got %d", len(store.entries))
	}
}

func TestDeadLetterHookFallsBackToJobID(t *testing.T) {
	store := &captureDeadLetterStore{}
	hook := NewDeadLetterHook(store, RetryPolicy{MaxAttempts: 1}, nil)

	hook.OnFailure(context.Background(), worker.Event{
		Message: &job.ExecutionMessage{JobID: JobIDReclaim},
		Attempt: 1,
	})

	if len(store.entries) != 1 {
		t.Fatalf("expected one parked entry, got %d", len(store.entries))
	}
	entry := store.entries[0]
	if entry.SourceRefID != JobIDReclaim {
		t.Fatalf("expected job id fallback, got %q", entry.SourceRefID)
	}
	if entry.FailureReason != "job_failed: unknown error" {
		t.Fatalf("unexpected failure reason %q", entry.FailureReason)
	}
}

func TestDeadLetterHookReadsDeliveryMessage(t *testing.T) {
	store := &captureDeadLetterStore{}
	hook := NewDeadLetterHook(store, RetryPolicy{MaxAttempts: 1}, nil)

	hook.OnFailure(context.Background(), worker.Event{
		Delivery: stubJobDelivery{msg: &job.ExecutionMessage{
			JobID:          JobIDDispatch,
			IdempotencyKey: "idem-queued",
		}},
		Attempt: 1,
		Err:     errors.New("handler panic"),
	})

	if len(store.entries) != 1 {
		t.Fatalf("expected delivery message to be parked, got %d entries", len(store.entries))
	}
	if store.entries[0].SourceRefID != "idem-queued" {
		t.Fatalf("unexpected source ref %q", store.entries[0].SourceRefID)
	}
}

func TestDeadLetterHookIgnoresMessagelessEvents(t *testing.T) {
	store := &captureDeadLetterStore{}
	hook := NewDeadLetterHook(store, RetryPolicy{MaxAttempts: 1}, nil)

	hook.OnFailure(context.Background(), worker.Event{
		Attempt: 1,
		Err:     errors.New("no message attached"),
	})

	if len(store.entries) != 0 {
		t.Fatalf("expected message-less event to be skipped, got %d entries", len(store.entries))
	}
}

type captureDeadLetterStore struct {
	entries []core.DeadLetterEntry
}

func (s *captureDeadLetterStore) Create(_ context.Context, entry core.DeadLetterEntry) (core.DeadLetterEntry, bool, error) {
	s.entries = append(s.entries, entry)
	return entry, true, nil
}

func (s *captureDeadLetterStore) Get(context.Context, string) (core.DeadLetterEntry, error) {
	return core.DeadLetterEntry{}, core.ErrNotFound
}

func (s *captureDeadLetterStore) List(context.Context, core.DeadLetterFilter) (core.DeadLetterPage, error) {
	return core.DeadLetterPage{}, nil
}

func (s *captureDeadLetterStore) Transition(context.Context, string, core.DeadLetterStatus, core.DeadLetterStatus, string, time.Time) error {
	return nil
}

func (s *captureDeadLetterStore) Statistics(context.Context) (core.DeadLetterStatistics, error) {
	return core.DeadLetterStatistics{}, nil
}

type stubJobDelivery struct {
	msg *job.ExecutionMessage
}

func (d stubJobDelivery) Message() *job.ExecutionMessage { return d.msg }

func (d stubJobDelivery) Ack(context.Context) error { return nil }

func (d stubJobDelivery) Nack(context.Context, queue.NackOptions) error { return nil }

var _ queue.Delivery = stubJobDelivery{}
