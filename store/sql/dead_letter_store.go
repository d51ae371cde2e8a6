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

// DeadLetterStore persists parked failures. Create is idempotent per
// source: the unique (source_kind, source_ref_id) index turns a duplicate
// park into a read of the existing entry.
type DeadLetterStore struct {
	db   *bun.DB
	repo repository.Repository[*deadLetterRecord]
}

func NewDeadLetterStore(db *bun.DB) (*DeadLetterStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deadLetterRecord](db, deadLetterHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid dead letter repository wiring: %w", err)
		}
	}
	return &DeadLetterStore{db: db, repo: repo}, nil
}

func (s *DeadLetterStore) Create(ctx context.Context, entry core.DeadLetterEntry) (core.DeadLetterEntry, bool, error) {
	if s == nil || s.db == nil {
		return core.DeadLetterEntry{}, false, fmt.Errorf("sqlstore: dead letter store is not configured")
	}
	sourceKind := strings.TrimSpace(string(entry.SourceKind))
	sourceRefID := strings.TrimSpace(entry.SourceRefID)
	if sourceKind == "" || sourceRefID == "" {
		return core.DeadLetterEntry{}, false, fmt.Errorf("sqlstore: source kind and source ref id are required")
	}
	status := entry.Status
	if strings.TrimSpace(string(status)) == "" {
		status = core.DeadLetterStatusPending
	}

	record := &deadLetterRecord{
		ID:              strings.TrimSpace(entry.ID),
		SourceKind:      sourceKind,
		SourceRefID:     sourceRefID,
		PayloadSnapshot: copyAnyMap(entry.PayloadSnapshot),
		FailureReason:   strings.TrimSpace(entry.FailureReason),
		Status:          string(status),
		CreatedAt:       time.Now().UTC(),
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if isUniqueViolation(err) {
			existing, getErr := s.getBySource(ctx, sourceKind, sourceRefID)
			if getErr != nil {
				return core.DeadLetterEntry{}, false, getErr
			}
			return existing, false, nil
		}
		return core.DeadLetterEntry{}, false, err
	}
	return deadLetterRecordToDomain(record), true, nil
}

func (s *DeadLetterStore) Get(ctx context.Context, id string) (core.DeadLetterEntry, error) {
	if s == nil || s.db == nil {
		return core.DeadLetterEntry{}, fmt.Errorf("sqlstore: dead letter store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.DeadLetterEntry{}, fmt.Errorf("sqlstore: dead letter entry id is required")
	}
	record := &deadLetterRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.DeadLetterEntry{}, fmt.Errorf("sqlstore: dead letter entry %q: %w", id, core.ErrNotFound)
		}
		return core.DeadLetterEntry{}, err
	}
	return deadLetterRecordToDomain(record), nil
}

func (s *DeadLetterStore) List(ctx context.Context, filter core.DeadLetterFilter) (core.DeadLetterPage, error) {
	if s == nil || s.db == nil {
		return core.DeadLetterPage{}, fmt.Errorf("sqlstore: dead letter store is not configured")
	}
	page, perPage := normalizePaging(filter.Page, filter.PerPage)

	query := s.db.NewSelect().Model((*deadLetterRecord)(nil))
	if status := strings.TrimSpace(string(filter.Status)); status != "" {
		query = query.Where("?TableAlias.status = ?", status)
	}
	if sourceKind := strings.TrimSpace(string(filter.SourceKind)); sourceKind != "" {
		query = query.Where("?TableAlias.source_kind = ?", sourceKind)
	}

	var records []deadLetterRecord
	total, err := query.
		Order("created_at DESC").
		Limit(perPage).
		Offset((page - 1) * perPage).
		ScanAndCount(ctx, &records)
	if err != nil {
		return core.DeadLetterPage{}, err
	}

	items := make([]core.DeadLetterEntry, 0, len(records))
	for i := range records {
		items = append(items, deadLetterRecordToDomain(&records[i]))
	}
	return core.DeadLetterPage{
		Items:   items,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	}, nil
}

// Transition moves an entry from one status to another. The WHERE clause
// carries the expected prior status; a zero-row update means the entry was
// missing or already disposed, reported as a conflict.
func (s *DeadLetterStore) Transition(
	ctx context.Context,
	id string,
	from core.DeadLetterStatus,
	to core.DeadLetterStatus,
	actor string,
	at time.Time,
) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: dead letter store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: dead letter entry id is required")
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	result, err := s.db.NewUpdate().
		Model((*deadLetterRecord)(nil)).
		Set("status = ?", string(to)).
		Set("resolved_at = ?", at.UTC()).
		Set("resolved_by = ?", strings.TrimSpace(actor)).
		Where("id = ?", id).
		Where("status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return getErr
		}
		return fmt.Errorf("sqlstore: dead letter entry %q is not %s: %w", id, from, core.ErrStatusConflict)
	}
	return nil
}

// Statistics aggregates entries by status in SQL and collapses failure
// reasons into their leading bucket in Go, since the bucketing rule lives in
// the domain.
func (s *DeadLetterStore) Statistics(ctx context.Context) (core.DeadLetterStatistics, error) {
	if s == nil || s.db == nil {
		return core.DeadLetterStatistics{}, fmt.Errorf("sqlstore: dead letter store is not configured")
	}

	var statusRows []struct {
		Status string `bun:"status"`
		Count  int    `bun:"count"`
	}
	err := s.db.NewSelect().
		Model((*deadLetterRecord)(nil)).
		ColumnExpr("status").
		ColumnExpr("COUNT(*) AS count").
		GroupExpr("status").
		Scan(ctx, &statusRows)
	if err != nil {
		return core.DeadLetterStatistics{}, err
	}

	var reasonRows []struct {
		FailureReason string `bun:"failure_reason"`
		Count         int    `bun:"count"`
	}
	err = s.db.NewSelect().
		Model((*deadLetterRecord)(nil)).
		ColumnExpr("failure_reason").
		ColumnExpr("COUNT(*) AS count").
		GroupExpr("failure_reason").
		Scan(ctx, &reasonRows)
	if err != nil {
		return core.DeadLetterStatistics{}, err
	}

	stats := core.DeadLetterStatistics{
		ByStatus: map[core.DeadLetterStatus]int{},
		ByReason: map[string]int{},
	}
	for _, row := range statusRows {
		stats.ByStatus[core.DeadLetterStatus(row.Status)] = row.Count
	}
	for _, row := range reasonRows {
		stats.ByReason[core.FailureReasonBucket(row.FailureReason)] += row.Count
	}
	return stats, nil
}

func (s *DeadLetterStore) getBySource(ctx context.Context, sourceKind string, sourceRefID string) (core.DeadLetterEntry, error) {
	record := &deadLetterRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.source_kind = ?", sourceKind).
		Where("?TableAlias.source_ref_id = ?", sourceRefID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.DeadLetterEntry{}, fmt.Errorf(
				"sqlstore: dead letter entry for %s %q: %w",
				sourceKind,
				sourceRefID,
				core.ErrNotFound,
			)
		}
		return core.DeadLetterEntry{}, err
	}
	return deadLetterRecordToDomain(record), nil
}

func deadLetterRecordToDomain(record *deadLetterRecord) core.DeadLetterEntry {
	if record == nil {
		return core.DeadLetterEntry{}
	}
	entry := core.DeadLetterEntry{
		ID:              record.ID,
		SourceKind:      core.DeadLetterSourceKind(record.SourceKind),
		SourceRefID:     record.SourceRefID,
		PayloadSnapshot: copyAnyMap(record.PayloadSnapshot),
		FailureReason:   record.FailureReason,
		Status:          core.DeadLetterStatus(record.Status),
		CreatedAt:       record.CreatedAt,
		ResolvedBy:      record.ResolvedBy,
	}
	if record.ResolvedAt != nil {
		value := *record.ResolvedAt
		entry.ResolvedAt = &value
	}
	return entry
}

var _ core.DeadLetterStore = (*DeadLetterStore)(nil)
