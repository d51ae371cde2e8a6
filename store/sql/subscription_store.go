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

// SubscriptionStore persists subscriptions. The delivery core only reads;
// Save and Deactivate exist for the management layer that owns the records.
type SubscriptionStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookSubscriptionRecord]
}

func NewSubscriptionStore(db *bun.DB) (*SubscriptionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookSubscriptionRecord](db, subscriptionHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid subscription repository wiring: %w", err)
		}
	}
	return &SubscriptionStore{db: db, repo: repo}, nil
}

// ListActive returns active subscriptions in creation order. Wildcard
// patterns cannot be resolved in SQL portably, so this returns every active
// row and leaves the authoritative match to the caller.
func (s *SubscriptionStore) ListActive(ctx context.Context, eventType string) ([]core.Subscription, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	var records []webhookSubscriptionRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.active = ?", true).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.Subscription, 0, len(records))
	for i := range records {
		out = append(out, subscriptionRecordToDomain(&records[i]))
	}
	return out, nil
}

func (s *SubscriptionStore) Get(ctx context.Context, id string) (core.Subscription, error) {
	if s == nil || s.db == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription id is required")
	}
	record := &webhookSubscriptionRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Subscription{}, fmt.Errorf("sqlstore: subscription %q: %w", id, core.ErrNotFound)
		}
		return core.Subscription{}, err
	}
	return subscriptionRecordToDomain(record), nil
}

// Save inserts or fully replaces a subscription.
func (s *SubscriptionStore) Save(ctx context.Context, subscription core.Subscription) (core.Subscription, error) {
	if s == nil || s.db == nil {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription store is not configured")
	}
	if strings.TrimSpace(subscription.TargetURL) == "" {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription target url is required")
	}
	if strings.TrimSpace(subscription.Secret) == "" {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription secret is required")
	}
	if len(subscription.EventTypes) == 0 {
		return core.Subscription{}, fmt.Errorf("sqlstore: subscription event types are required")
	}

	now := time.Now().UTC()
	record := &webhookSubscriptionRecord{
		ID:         strings.TrimSpace(subscription.ID),
		TenantID:   strings.TrimSpace(subscription.TenantID),
		TargetURL:  strings.TrimSpace(subscription.TargetURL),
		Secret:     subscription.Secret,
		EventTypes: append([]string(nil), subscription.EventTypes...),
		Active:     subscription.Active,
		CreatedAt:  subscription.CreatedAt,
		UpdatedAt:  now,
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (id) DO UPDATE").
		Set("tenant_id = EXCLUDED.tenant_id").
		Set("target_url = EXCLUDED.target_url").
		Set("secret = EXCLUDED.secret").
		Set("event_types = EXCLUDED.event_types").
		Set("active = EXCLUDED.active").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return core.Subscription{}, err
	}
	return subscriptionRecordToDomain(record), nil
}

// Deactivate flips a subscription off. Pending attempts for it finalize as
// terminal the next time a worker claims them.
func (s *SubscriptionStore) Deactivate(ctx context.Context, id string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: subscription store is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return fmt.Errorf("sqlstore: subscription id is required")
	}
	result, err := s.db.NewUpdate().
		Model((*webhookSubscriptionRecord)(nil)).
		Set("active = ?", false).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("sqlstore: subscription %q: %w", id, core.ErrNotFound)
	}
	return nil
}

func subscriptionRecordToDomain(record *webhookSubscriptionRecord) core.Subscription {
	if record == nil {
		return core.Subscription{}
	}
	return core.Subscription{
		ID:         record.ID,
		TenantID:   record.TenantID,
		TargetURL:  record.TargetURL,
		Secret:     record.Secret,
		EventTypes: append([]string(nil), record.EventTypes...),
		Active:     record.Active,
		CreatedAt:  record.CreatedAt,
		UpdatedAt:  record.UpdatedAt,
	}
}

var _ core.SubscriptionStore = (*SubscriptionStore)(nil)
