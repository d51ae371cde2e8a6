package core

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DeliveryDispatcher drains the attempt queue: claim one due attempt,
// deliver, and settle the result. Retry ownership lives here — the delivery
// client only classifies a single call.
type DeliveryDispatcher struct {
	events        EventStore
	subscriptions SubscriptionStore
	attempts      AttemptStore
	deadLetters   DeadLetterStore
	client        DeliveryClient
	scheduler     RetryBackoffScheduler
	config        Config
	logger        Logger
	now           func() time.Time
}

type DispatcherDependencies struct {
	Events        EventStore
	Subscriptions SubscriptionStore
	Attempts      AttemptStore
	DeadLetters   DeadLetterStore
	Client        DeliveryClient
	Scheduler     RetryBackoffScheduler
	Logger        Logger
}

func NewDeliveryDispatcher(config Config, deps DispatcherDependencies) (*DeliveryDispatcher, error) {
	if deps.Events == nil {
		return nil, fmt.Errorf("core: event store is required")
	}
	if deps.Subscriptions == nil {
		return nil, fmt.Errorf("core: subscription store is required")
	}
	if deps.Attempts == nil {
		return nil, fmt.Errorf("core: attempt store is required")
	}
	if deps.DeadLetters == nil {
		return nil, fmt.Errorf("core: dead letter store is required")
	}
	if deps.Client == nil {
		return nil, fmt.Errorf("core: delivery client is required")
	}
	scheduler := deps.Scheduler
	if scheduler == nil {
		scheduler = &ExponentialBackoffScheduler{
			Base: config.BaseBackoff(),
			Max:  config.MaxBackoff(),
		}
	}
	if config.MaxAttempts < 1 {
		config.MaxAttempts = DefaultConfig().MaxAttempts
	}
	return &DeliveryDispatcher{
		events:        deps.Events,
		subscriptions: deps.Subscriptions,
		attempts:      deps.Attempts,
		deadLetters:   deps.DeadLetters,
		client:        deps.Client,
		scheduler:     scheduler,
		config:        config,
		logger:        deps.Logger,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// DispatchNext claims and settles one due attempt. It reports false when
// nothing was eligible.
func (d *DeliveryDispatcher) DispatchNext(ctx context.Context) (bool, error) {
	if d == nil || d.attempts == nil {
		return false, fmt.Errorf("core: delivery dispatcher is not configured")
	}
	attempt, claimed, err := d.attempts.ClaimNextDue(ctx, d.now())
	if err != nil {
		return false, err
	}
	if !claimed {
		return false, nil
	}
	return true, d.settle(ctx, attempt)
}

// DispatchDue settles up to limit due attempts and reports cycle stats.
func (d *DeliveryDispatcher) DispatchDue(ctx context.Context, limit int) (DispatchStats, error) {
	if d == nil || d.attempts == nil {
		return DispatchStats{}, fmt.Errorf("core: delivery dispatcher is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	stats := DispatchStats{}
	var cycleErr error
	for i := 0; i < limit; i++ {
		attempt, claimed, err := d.attempts.ClaimNextDue(ctx, d.now())
		if err != nil {
			return stats, joinErrors(cycleErr, err)
		}
		if !claimed {
			break
		}
		stats.Claimed++
		settled, err := d.settleWithResult(ctx, attempt)
		if err != nil {
			cycleErr = joinErrors(cycleErr, err)
			continue
		}
		switch settled {
		case AttemptStatusSucceeded:
			stats.Delivered++
		case AttemptStatusFailedRetryable:
			stats.Retried++
		case AttemptStatusFailedTerminal:
			stats.DeadLettered++
		}
	}
	return stats, cycleErr
}

// Reclaim returns leases held past the configured timeout to the queue.
func (d *DeliveryDispatcher) Reclaim(ctx context.Context) (int, error) {
	if d == nil || d.attempts == nil {
		return 0, fmt.Errorf("core: delivery dispatcher is not configured")
	}
	cutoff := d.now().Add(-d.config.LeaseTimeout())
	reclaimed, err := d.attempts.ReclaimExpired(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if reclaimed > 0 {
		d.logInfo("reclaimed expired delivery leases", map[string]any{
			"reclaimed": reclaimed,
			"cutoff":    cutoff,
		})
	}
	return reclaimed, nil
}

func (d *DeliveryDispatcher) settle(ctx context.Context, attempt DeliveryAttempt) error {
	_, err := d.settleWithResult(ctx, attempt)
	return err
}

func (d *DeliveryDispatcher) settleWithResult(ctx context.Context, attempt DeliveryAttempt) (AttemptStatus, error) {
	event, err := d.events.Get(ctx, attempt.EventID)
	if err != nil {
		return "", d.failClaim(ctx, attempt, fmt.Sprintf("infrastructure: load event %s: %v", attempt.EventID, err))
	}

	subscription, err := d.subscriptions.Get(ctx, attempt.SubscriptionID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return AttemptStatusFailedTerminal, d.finalizeTerminal(ctx, attempt, event, 0, "subscription_gone: subscription was deleted")
		}
		return "", d.failClaim(ctx, attempt, fmt.Sprintf("infrastructure: load subscription %s: %v", attempt.SubscriptionID, err))
	}
	if !subscription.Active {
		return AttemptStatusFailedTerminal, d.finalizeTerminal(ctx, attempt, event, 0, "subscription_inactive: subscription was deactivated")
	}

	result := d.client.Deliver(ctx, event, subscription)
	switch result.Outcome {
	case OutcomeSucceeded:
		if err := d.attempts.MarkSucceeded(ctx, attempt.ID, result.HTTPStatus); err != nil {
			return "", err
		}
		d.logInfo("delivery succeeded", map[string]any{
			"attempt_id":      attempt.ID,
			"event_id":        event.ID,
			"subscription_id": subscription.ID,
			"http_status":     result.HTTPStatus,
			"attempt_count":   attempt.AttemptCount,
		})
		return AttemptStatusSucceeded, nil

	case OutcomeTerminal:
		return AttemptStatusFailedTerminal, d.finalizeTerminal(ctx, attempt, event, result.HTTPStatus, result.Cause)

	default:
		nextCount := attempt.AttemptCount + 1
		if nextCount >= d.config.MaxAttempts {
			cause := fmt.Sprintf("exhausted: %d attempts, last failure %s", nextCount, result.Cause)
			return AttemptStatusFailedTerminal, d.finalizeTerminalWithStatus(ctx, attempt, event, result.HTTPStatus, cause)
		}
		nextAttemptAt := d.now().Add(d.scheduler.NextDelay(nextCount))
		if err := d.attempts.MarkRetryable(ctx, attempt.ID, result.HTTPStatus, result.Cause, nextAttemptAt); err != nil {
			return "", err
		}
		d.logInfo("delivery failed, retry scheduled", map[string]any{
			"attempt_id":      attempt.ID,
			"event_id":        event.ID,
			"subscription_id": subscription.ID,
			"http_status":     result.HTTPStatus,
			"attempt_count":   nextCount,
			"next_attempt_at": nextAttemptAt,
		})
		return AttemptStatusFailedRetryable, nil
	}
}

func (d *DeliveryDispatcher) finalizeTerminal(
	ctx context.Context,
	attempt DeliveryAttempt,
	event Event,
	httpStatus int,
	cause string,
) error {
	return d.finalizeTerminalWithStatus(ctx, attempt, event, httpStatus, cause)
}

func (d *DeliveryDispatcher) finalizeTerminalWithStatus(
	ctx context.Context,
	attempt DeliveryAttempt,
	event Event,
	httpStatus int,
	cause string,
) error {
	if err := d.attempts.MarkTerminal(ctx, attempt.ID, httpStatus, cause); err != nil {
		return err
	}
	entry := DeadLetterEntry{
		SourceKind:  SourceKindDelivery,
		SourceRefID: attempt.ID,
		PayloadSnapshot: map[string]any{
			"event_id":        event.ID,
			"event_type":      event.Type,
			"subscription_id": attempt.SubscriptionID,
			"payload":         copyAnyMap(event.Payload),
		},
		FailureReason: cause,
		Status:        DeadLetterStatusPending,
	}
	if _, _, err := d.deadLetters.Create(ctx, entry); err != nil {
		return fmt.Errorf("core: park attempt %q in dead letter store: %w", attempt.ID, err)
	}
	d.logError("delivery failed terminally", map[string]any{
		"attempt_id":      attempt.ID,
		"event_id":        event.ID,
		"subscription_id": attempt.SubscriptionID,
		"http_status":     httpStatus,
		"cause":           cause,
	})
	return nil
}

// failClaim returns a claimed attempt to the queue after an infrastructure
// error, with a short backoff so the same broken dependency is not hammered.
// The release keeps attempt_count intact: the budget counts delivery
// failures, and nothing was delivered.
func (d *DeliveryDispatcher) failClaim(ctx context.Context, attempt DeliveryAttempt, cause string) error {
	nextAttemptAt := d.now().Add(d.config.BaseBackoff())
	if err := d.attempts.ReleaseClaim(ctx, attempt.ID, cause, nextAttemptAt); err != nil {
		return fmt.Errorf("core: release claim on attempt %q: %w", attempt.ID, err)
	}
	return fmt.Errorf("core: %s", cause)
}

func (d *DeliveryDispatcher) logInfo(message string, fields map[string]any) {
	if d == nil || d.logger == nil {
		return
	}
	logDispatcher(d.logger, false, message, fields)
}

func (d *DeliveryDispatcher) logError(message string, fields map[string]any) {
	if d == nil || d.logger == nil {
		return
	}
	logDispatcher(d.logger, true, message, fields)
}

func joinErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return fmt.Errorf("%w; %v", existing, next)
}
