package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-webhooks/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	defaultListPerPage = 50
	maxListPerPage     = 500
)

// AttemptStore owns delivery attempt rows. Claims and status marks are
// compare-and-set: the WHERE clause carries the expected prior status, so
// competing workers lose cleanly instead of double-writing.
type AttemptStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryAttemptRecord]
}

func NewAttemptStore(db *bun.DB) (*AttemptStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryAttemptRecord](db, attemptHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid attempt repository wiring: %w", err)
		}
	}
	return &AttemptStore{db: db, repo: repo}, nil
}

func (s *AttemptStore) CreatePending(
	ctx context.Context,
	eventID string,
	subscriptionID string,
	dedupeKey string,
) (core.DeliveryAttempt, bool, error) {
	if s == nil || s.db == nil {
		return core.DeliveryAttempt{}, false, fmt.Errorf("sqlstore: attempt store is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	subscriptionID = strings.TrimSpace(subscriptionID)
	dedupeKey = strings.TrimSpace(dedupeKey)
	if eventID == "" || subscriptionID == "" {
		return core.DeliveryAttempt{}, false, fmt.Errorf("sqlstore: event id and subscription id are required")
	}
	if dedupeKey == "" {
		return core.DeliveryAttempt{}, false, fmt.Errorf("sqlstore: dedupe key is required")
	}

	now := time.Now().UTC()
	record := &deliveryAttemptRecord{
		ID:             uuid.NewString(),
		EventID:        eventID,
		SubscriptionID: subscriptionID,
		DedupeKey:      dedupeKey,
		Status:         string(core.AttemptStatusPending),
		AttemptCount:   0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.getByDedupeKey(ctx, dedupeKey)
			if getErr != nil {
				return core.DeliveryAttempt{}, false, getErr
			}
			return existing, false, nil
		}
		return core.DeliveryAttempt{}, false, err
	}
	return attemptRecordToDomain(record), true, nil
}

// ClaimNextDue claims at most one eligible attempt for this worker. The CTE
// selects the oldest due row; the guarded UPDATE re-checks eligibility so two
// workers racing on the same row cannot both win.
func (s *AttemptStore) ClaimNextDue(ctx context.Context, now time.Time) (core.DeliveryAttempt, bool, error) {
	if s == nil || s.db == nil {
		return core.DeliveryAttempt{}, false, fmt.Errorf("sqlstore: attempt store is not configured")
	}
	now = now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var records []deliveryAttemptRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH claimed AS (
	SELECT id
	FROM webhook_delivery_attempts
	WHERE status IN (?, ?)
	  AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
	ORDER BY created_at ASC
	LIMIT 1
)
UPDATE webhook_delivery_attempts
SET status = ?, claimed_at = ?, updated_at = ?
WHERE id IN (SELECT id FROM claimed)
  AND status IN (?, ?)
RETURNING
	id,
	event_id,
	subscription_id,
	dedupe_key,
	status,
	attempt_count,
	next_attempt_at,
	claimed_at,
	last_http_status,
	last_error,
	created_at,
	updated_at
`
		return tx.NewRaw(
			query,
			string(core.AttemptStatusPending),
			string(core.AttemptStatusFailedRetryable),
			now,
			string(core.AttemptStatusInFlight),
			now,
			now,
			string(core.AttemptStatusPending),
			string(core.AttemptStatusFailedRetryable),
		).Scan(ctx, &records)
	})
	if err != nil {
		return core.DeliveryAttempt{}, false, err
	}
	if len(records) == 0 {
		return core.DeliveryAttempt{}, false, nil
	}
	return attemptRecordToDomain(&records[0]), true, nil
}

func (s *AttemptStore) MarkSucceeded(ctx context.Context, attemptID string, httpStatus int) error {
	return s.markFromInFlight(ctx, attemptID, func(update *bun.UpdateQuery) {
		update.
			Set("status = ?", string(core.AttemptStatusSucceeded)).
			Set("last_http_status = ?", httpStatus).
			Set("last_error = ?", "").
			Set("next_attempt_at = NULL").
			Set("claimed_at = NULL")
	})
}

func (s *AttemptStore) MarkRetryable(
	ctx context.Context,
	attemptID string,
	httpStatus int,
	cause string,
	nextAttemptAt time.Time,
) error {
	return s.markFromInFlight(ctx, attemptID, func(update *bun.UpdateQuery) {
		update.
			Set("status = ?", string(core.AttemptStatusFailedRetryable)).
			Set("attempt_count = attempt_count + 1").
			Set("last_http_status = ?", httpStatus).
			Set("last_error = ?", strings.TrimSpace(cause)).
			Set("next_attempt_at = ?", nextAttemptAt.UTC()).
			Set("claimed_at = NULL")
	})
}

// ReleaseClaim hands an in_flight attempt back to the queue without touching
// attempt_count: the delivery never reached the wire, so the retry budget is
// not consumed. next_attempt_at defers the next claim past the broken
// dependency.
func (s *AttemptStore) ReleaseClaim(
	ctx context.Context,
	attemptID string,
	cause string,
	nextAttemptAt time.Time,
) error {
	return s.markFromInFlight(ctx, attemptID, func(update *bun.UpdateQuery) {
		update.
			Set("status = ?", string(core.AttemptStatusPending)).
			Set("last_error = ?", strings.TrimSpace(cause)).
			Set("next_attempt_at = ?", nextAttemptAt.UTC()).
			Set("claimed_at = NULL")
	})
}

func (s *AttemptStore) MarkTerminal(ctx context.Context, attemptID string, httpStatus int, cause string) error {
	return s.markFromInFlight(ctx, attemptID, func(update *bun.UpdateQuery) {
		update.
			Set("status = ?", string(core.AttemptStatusFailedTerminal)).
			Set("attempt_count = attempt_count + 1").
			Set("last_http_status = ?", httpStatus).
			Set("last_error = ?", strings.TrimSpace(cause)).
			Set("next_attempt_at = NULL").
			Set("claimed_at = NULL")
	})
}

func (s *AttemptStore) markFromInFlight(
	ctx context.Context,
	attemptID string,
	apply func(*bun.UpdateQuery),
) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: attempt store is not configured")
	}
	attemptID = strings.TrimSpace(attemptID)
	if attemptID == "" {
		return fmt.Errorf("sqlstore: attempt id is required")
	}

	update := s.db.NewUpdate().
		Model((*deliveryAttemptRecord)(nil)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", attemptID).
		Where("status = ?", string(core.AttemptStatusInFlight))
	apply(update)

	result, err := update.Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: attempt %q is not in flight: %w", attemptID, core.ErrStatusConflict)
	}
	return nil
}

// ReclaimExpired returns in-flight attempts claimed before cutoff to pending
// so another worker can pick them up.
func (s *AttemptStore) ReclaimExpired(ctx context.Context, cutoff time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlstore: attempt store is not configured")
	}
	result, err := s.db.NewUpdate().
		Model((*deliveryAttemptRecord)(nil)).
		Set("status = ?", string(core.AttemptStatusPending)).
		Set("claimed_at = NULL").
		Set("updated_at = ?", time.Now().UTC()).
		Where("status = ?", string(core.AttemptStatusInFlight)).
		Where("claimed_at IS NOT NULL").
		Where("claimed_at < ?", cutoff.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *AttemptStore) Get(ctx context.Context, id string) (core.DeliveryAttempt, error) {
	if s == nil || s.db == nil {
		return core.DeliveryAttempt{}, fmt.Errorf("sqlstore: attempt store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.DeliveryAttempt{}, fmt.Errorf("sqlstore: attempt id is required")
	}
	record := &deliveryAttemptRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.DeliveryAttempt{}, fmt.Errorf("sqlstore: attempt %q: %w", id, core.ErrNotFound)
		}
		return core.DeliveryAttempt{}, err
	}
	return attemptRecordToDomain(record), nil
}

func (s *AttemptStore) List(ctx context.Context, filter core.DeliveryFilter) (core.DeliveryPage, error) {
	if s == nil || s.db == nil {
		return core.DeliveryPage{}, fmt.Errorf("sqlstore: attempt store is not configured")
	}
	page, perPage := normalizePaging(filter.Page, filter.PerPage)

	query := s.db.NewSelect().Model((*deliveryAttemptRecord)(nil))
	if subscriptionID := strings.TrimSpace(filter.SubscriptionID); subscriptionID != "" {
		query = query.Where("?TableAlias.subscription_id = ?", subscriptionID)
	}
	if eventID := strings.TrimSpace(filter.EventID); eventID != "" {
		query = query.Where("?TableAlias.event_id = ?", eventID)
	}
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		query = query.Where("?TableAlias.status = ?", status)
	}

	var records []deliveryAttemptRecord
	total, err := query.
		Order("created_at DESC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		ScanAndCount(ctx, &records)
	if err != nil {
		return core.DeliveryPage{}, err
	}

	items := make([]core.DeliveryAttempt, 0, len(records))
	for i := range records {
		items = append(items, attemptRecordToDomain(&records[i]))
	}
	return core.DeliveryPage{
		Items:   items,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	}, nil
}

func (s *AttemptStore) getByDedupeKey(ctx context.Context, dedupeKey string) (core.DeliveryAttempt, error) {
	record := &deliveryAttemptRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.dedupe_key = ?", dedupeKey).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.DeliveryAttempt{}, fmt.Errorf("sqlstore: attempt with dedupe key %q: %w", dedupeKey, core.ErrNotFound)
		}
		return core.DeliveryAttempt{}, err
	}
	return attemptRecordToDomain(record), nil
}

func attemptRecordToDomain(record *deliveryAttemptRecord) core.DeliveryAttempt {
	if record == nil {
		return core.DeliveryAttempt{}
	}
	attempt := core.DeliveryAttempt{
		ID:             record.ID,
		EventID:        record.EventID,
		SubscriptionID: record.SubscriptionID,
		Status:         core.AttemptStatus(record.Status),
		AttemptCount:   record.AttemptCount,
		LastHTTPStatus: record.LastHTTPStatus,
		LastError:      record.LastError,
		CreatedAt:      record.CreatedAt,
		UpdatedAt:      record.UpdatedAt,
	}
	if record.NextAttemptAt != nil {
		value := *record.NextAttemptAt
		attempt.NextAttemptAt = &value
	}
	if record.ClaimedAt != nil {
		value := *record.ClaimedAt
		attempt.ClaimedAt = &value
	}
	return attempt
}

func normalizePaging(page int, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultListPerPage
	}
	if perPage > maxListPerPage {
		perPage = maxListPerPage
	}
	return page, perPage
}

var _ core.AttemptStore = (*AttemptStore)(nil)
