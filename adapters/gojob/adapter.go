package gojob

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-webhooks/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDDispatch = "webhooks.dispatch"
	JobIDReclaim  = "webhooks.reclaim"
)

// RetryPolicy bounds queue-level retries for scheduled webhook jobs.
type RetryPolicy struct {
	MaxAttempts int
	MaxDelay    time.Duration
}

// Exhausted reports whether attempt has consumed the retry budget.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return p.MaxAttempts > 0 && attempt >= p.MaxAttempts
}

// ClampDelay bounds a requeue delay to the policy maximum.
func (p RetryPolicy) ClampDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

// DeadLetterHook parks background jobs that failed their final attempt as
// dead letter entries, so scheduled work shares the same operator triage
// surface as webhook deliveries.
type DeadLetterHook struct {
	store  core.DeadLetterStore
	policy RetryPolicy
	logger core.Logger
	now    func() time.Time
}

func NewDeadLetterHook(store core.DeadLetterStore, policy RetryPolicy, logger core.Logger) *DeadLetterHook {
	return &DeadLetterHook{
		store:  store,
		policy: policy,
		logger: logger,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (h *DeadLetterHook) OnStart(context.Context, worker.Event) {}

func (h *DeadLetterHook) OnSuccess(context.Context, worker.Event) {}

func (h *DeadLetterHook) OnRetry(context.Context, worker.Event) {}

// OnFailure fires on every failed attempt; only the final one is parked.
func (h *DeadLetterHook) OnFailure(ctx context.Context, event worker.Event) {
	if h == nil || h.store == nil {
		return
	}
	if !h.policy.Exhausted(event.Attempt) {
		return
	}
	message := eventMessage(event)
	if message == nil {
		return
	}

	reason := "job_failed: unknown error"
	if event.Err != nil {
		reason = "job_failed: " + strings.TrimSpace(event.Err.Error())
	}
	entry := core.DeadLetterEntry{
		SourceKind:  core.SourceKindBackgroundTask,
		SourceRefID: sourceRefID(message),
		PayloadSnapshot: map[string]any{
			"job_id":     message.JobID,
			"parameters": copyAnyMap(message.Parameters),
			"attempt":    event.Attempt,
		},
		FailureReason: reason,
		Status:        core.DeadLetterStatusPending,
	}
	if _, _, err := h.store.Create(ctx, entry); err != nil && h.logger != nil {
		h.logger.Error("park failed background job", "job_id", message.JobID, "error", err.Error())
	}
}

func eventMessage(event worker.Event) *job.ExecutionMessage {
	if event.Message != nil {
		return event.Message
	}
	if event.Delivery != nil {
		return event.Delivery.Message()
	}
	return nil
}

// sourceRefID keys the dead letter entry. The idempotency key wins when
// present so re-enqueued jobs collapse into one entry.
func sourceRefID(message *job.ExecutionMessage) string {
	if key := strings.TrimSpace(message.IdempotencyKey); key != "" {
		return key
	}
	return strings.TrimSpace(message.JobID)
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var _ worker.Hook = (*DeadLetterHook)(nil)
