package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type webhookEventRecord struct {
	bun.BaseModel `bun:"table:webhook_events,alias:we"`

	ID         string         `bun:"id,pk"`
	EventType  string         `bun:"event_type,notnull"`
	Payload    map[string]any `bun:"payload,type:jsonb,notnull"`
	OccurredAt time.Time      `bun:"occurred_at,nullzero,notnull"`
	CreatedAt  time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
}

type webhookSubscriptionRecord struct {
	bun.BaseModel `bun:"table:webhook_subscriptions,alias:ws"`

	ID         string    `bun:"id,pk"`
	TenantID   string    `bun:"tenant_id,notnull"`
	TargetURL  string    `bun:"target_url,notnull"`
	Secret     string    `bun:"secret,notnull"`
	EventTypes []string  `bun:"event_types,type:jsonb,notnull"`
	Active     bool      `bun:"active,notnull"`
	CreatedAt  time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt  time.Time `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type deliveryAttemptRecord struct {
	bun.BaseModel `bun:"table:webhook_delivery_attempts,alias:wda"`

	ID             string     `bun:"id,pk"`
	EventID        string     `bun:"event_id,notnull"`
	SubscriptionID string     `bun:"subscription_id,notnull"`
	DedupeKey      string     `bun:"dedupe_key,notnull"`
	Status         string     `bun:"status,notnull"`
	AttemptCount   int        `bun:"attempt_count,notnull"`
	NextAttemptAt  *time.Time `bun:"next_attempt_at,nullzero"`
	ClaimedAt      *time.Time `bun:"claimed_at,nullzero"`
	LastHTTPStatus int        `bun:"last_http_status"`
	LastError      string     `bun:"last_error"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type deadLetterRecord struct {
	bun.BaseModel `bun:"table:webhook_dead_letters,alias:wdl"`

	ID              string         `bun:"id,pk"`
	SourceKind      string         `bun:"source_kind,notnull"`
	SourceRefID     string         `bun:"source_ref_id,notnull"`
	PayloadSnapshot map[string]any `bun:"payload_snapshot,type:jsonb,notnull"`
	FailureReason   string         `bun:"failure_reason,notnull"`
	Status          string         `bun:"status,notnull"`
	CreatedAt       time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	ResolvedAt      *time.Time     `bun:"resolved_at,nullzero"`
	ResolvedBy      string         `bun:"resolved_by"`
}
