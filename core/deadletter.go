package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// RetryDeadLetterRequest identifies the entry to retry and who asked for it.
type RetryDeadLetterRequest struct {
	EntryID string
	Actor   string
}

type RetryDeadLetterResult struct {
	Entry   DeadLetterEntry
	Attempt DeliveryAttempt
}

// RetryDeadLetter re-queues a parked delivery. The entry moves pending ->
// retried first, so concurrent operators cannot double-enqueue; only then is
// a fresh pending attempt created for the original event and subscription.
func (s *Service) RetryDeadLetter(ctx context.Context, req RetryDeadLetterRequest) (result RetryDeadLetterResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"entry_id": req.EntryID,
		"actor":    req.Actor,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "retry_dead_letter", err, fields)
	}()

	if s == nil || s.deadLetterStore == nil || s.attemptStore == nil {
		err = s.mapError(fmt.Errorf("core: dead letter store is not configured"))
		return RetryDeadLetterResult{}, err
	}
	entryID := strings.TrimSpace(req.EntryID)
	if entryID == "" {
		err = s.mapError(fmt.Errorf("core: dead letter entry id is required"))
		return RetryDeadLetterResult{}, err
	}

	entry, err := s.deadLetterStore.Get(ctx, entryID)
	if err != nil {
		err = s.mapError(err)
		return RetryDeadLetterResult{}, err
	}
	if entry.SourceKind != SourceKindDelivery {
		err = s.mapError(fmt.Errorf("core: dead letter entry %q is not retryable as a delivery, source kind is %q", entryID, entry.SourceKind))
		return RetryDeadLetterResult{}, err
	}

	eventID := snapshotString(entry.PayloadSnapshot, "event_id")
	subscriptionID := snapshotString(entry.PayloadSnapshot, "subscription_id")
	if eventID == "" || subscriptionID == "" {
		err = s.mapError(fmt.Errorf("core: dead letter entry %q has an invalid payload snapshot", entryID))
		return RetryDeadLetterResult{}, err
	}

	at := s.now()
	if err = s.deadLetterStore.Transition(ctx, entryID, DeadLetterStatusPending, DeadLetterStatusRetried, req.Actor, at); err != nil {
		err = s.mapError(err)
		return RetryDeadLetterResult{}, err
	}
	entry.Status = DeadLetterStatusRetried
	entry.ResolvedAt = &at
	entry.ResolvedBy = strings.TrimSpace(req.Actor)

	// The retry key is scoped to the entry so the fresh attempt does not
	// collide with the exhausted one from the original fan-out.
	attempt, _, err := s.attemptStore.CreatePending(ctx, eventID, subscriptionID, RetryDedupeKey(eventID, subscriptionID, entryID))
	if err != nil {
		err = s.mapError(fmt.Errorf("core: enqueue retry for dead letter entry %q: %w", entryID, err))
		return RetryDeadLetterResult{Entry: entry}, err
	}

	fields["event_id"] = eventID
	fields["subscription_id"] = subscriptionID
	return RetryDeadLetterResult{Entry: entry, Attempt: attempt}, nil
}

// ResolveDeadLetter marks a pending entry as handled outside the system.
func (s *Service) ResolveDeadLetter(ctx context.Context, entryID string, actor string) (DeadLetterEntry, error) {
	return s.closeDeadLetter(ctx, entryID, actor, DeadLetterStatusResolved, "resolve_dead_letter")
}

// IgnoreDeadLetter marks a pending entry as deliberately dismissed.
func (s *Service) IgnoreDeadLetter(ctx context.Context, entryID string, actor string) (DeadLetterEntry, error) {
	return s.closeDeadLetter(ctx, entryID, actor, DeadLetterStatusIgnored, "ignore_dead_letter")
}

func (s *Service) closeDeadLetter(
	ctx context.Context,
	entryID string,
	actor string,
	to DeadLetterStatus,
	operation string,
) (entry DeadLetterEntry, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"entry_id": entryID,
		"actor":    actor,
		"to":       string(to),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, operation, err, fields)
	}()

	if s == nil || s.deadLetterStore == nil {
		err = s.mapError(fmt.Errorf("core: dead letter store is not configured"))
		return DeadLetterEntry{}, err
	}
	entryID = strings.TrimSpace(entryID)
	if entryID == "" {
		err = s.mapError(fmt.Errorf("core: dead letter entry id is required"))
		return DeadLetterEntry{}, err
	}

	at := s.now()
	if err = s.deadLetterStore.Transition(ctx, entryID, DeadLetterStatusPending, to, actor, at); err != nil {
		err = s.mapError(err)
		return DeadLetterEntry{}, err
	}
	entry, err = s.deadLetterStore.Get(ctx, entryID)
	if err != nil {
		err = s.mapError(err)
		return DeadLetterEntry{}, err
	}
	return entry, nil
}

// GetDeadLetter returns a single dead letter entry by id.
func (s *Service) GetDeadLetter(ctx context.Context, id string) (DeadLetterEntry, error) {
	if s == nil || s.deadLetterStore == nil {
		return DeadLetterEntry{}, s.mapError(fmt.Errorf("core: dead letter store is not configured"))
	}
	entry, err := s.deadLetterStore.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return DeadLetterEntry{}, s.mapError(err)
	}
	return entry, nil
}

// ListDeadLetters pages through dead letter entries matching filter.
func (s *Service) ListDeadLetters(ctx context.Context, filter DeadLetterFilter) (page DeadLetterPage, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "list_dead_letters", err, nil)
	}()

	if s == nil || s.deadLetterStore == nil {
		err = s.mapError(fmt.Errorf("core: dead letter store is not configured"))
		return DeadLetterPage{}, err
	}
	page, err = s.deadLetterStore.List(ctx, filter)
	if err != nil {
		err = s.mapError(err)
		return DeadLetterPage{}, err
	}
	return page, nil
}

// DeadLetterStatistics aggregates entry counts by status and failure bucket.
func (s *Service) DeadLetterStatistics(ctx context.Context) (stats DeadLetterStatistics, err error) {
	startedAt := time.Now().UTC()
	defer func() {
		s.observeOperation(ctx, startedAt, "dead_letter_statistics", err, nil)
	}()

	if s == nil || s.deadLetterStore == nil {
		err = s.mapError(fmt.Errorf("core: dead letter store is not configured"))
		return DeadLetterStatistics{}, err
	}
	stats, err = s.deadLetterStore.Statistics(ctx)
	if err != nil {
		err = s.mapError(err)
		return DeadLetterStatistics{}, err
	}
	return stats, nil
}

func snapshotString(snapshot map[string]any, key string) string {
	if snapshot == nil {
		return ""
	}
	value, ok := snapshot[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(value)
}
