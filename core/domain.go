package core

import (
	"strings"
	"time"
)

type AttemptStatus string

const (
	AttemptStatusPending         AttemptStatus = "pending"
	AttemptStatusInFlight        AttemptStatus = "in_flight"
	AttemptStatusSucceeded       AttemptStatus = "succeeded"
	AttemptStatusFailedRetryable AttemptStatus = "failed_retryable"
	AttemptStatusFailedTerminal  AttemptStatus = "failed_terminal"
)

// Terminal reports whether the status permits no further transitions.
func (s AttemptStatus) Terminal() bool {
	return s == AttemptStatusSucceeded || s == AttemptStatusFailedTerminal
}

// Subscription is a tenant-registered endpoint. Managed by the outer layer;
// read-only to the delivery core. The secret never appears in logs or
// delivery listings.
type Subscription struct {
	ID         string
	TenantID   string
	TargetURL  string
	Secret     string
	EventTypes []string
	Active     bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Matches reports whether the subscription covers eventType, either exactly
// or through a wildcard pattern ("user.*" covers "user.created"; "*" covers
// everything).
func (s Subscription) Matches(eventType string) bool {
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		return false
	}
	for _, pattern := range s.EventTypes {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if pattern == "*" || pattern == eventType {
			return true
		}
		if prefix, ok := strings.CutSuffix(pattern, ".*"); ok {
			if strings.HasPrefix(eventType, prefix+".") {
				return true
			}
		}
	}
	return false
}

// DeliveryAttempt is one (event, subscription) delivery with its retry state.
type DeliveryAttempt struct {
	ID             string
	EventID        string
	SubscriptionID string
	Status         AttemptStatus
	AttemptCount   int
	NextAttemptAt  *time.Time
	ClaimedAt      *time.Time
	LastHTTPStatus int
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type DeadLetterSourceKind string

const (
	SourceKindDelivery       DeadLetterSourceKind = "delivery"
	SourceKindBackgroundTask DeadLetterSourceKind = "background_task"
)

type DeadLetterStatus string

const (
	DeadLetterStatusPending  DeadLetterStatus = "pending"
	DeadLetterStatusRetried  DeadLetterStatus = "retried"
	DeadLetterStatusResolved DeadLetterStatus = "resolved"
	DeadLetterStatusIgnored  DeadLetterStatus = "ignored"
)

// Terminal reports whether the status permits no further transitions.
func (s DeadLetterStatus) Terminal() bool {
	return s == DeadLetterStatusResolved || s == DeadLetterStatusIgnored
}

// DeadLetterEntry parks a permanently failed delivery or background task
// until an operator disposes of it.
type DeadLetterEntry struct {
	ID              string
	SourceKind      DeadLetterSourceKind
	SourceRefID     string
	PayloadSnapshot map[string]any
	FailureReason   string
	Status          DeadLetterStatus
	CreatedAt       time.Time
	ResolvedAt      *time.Time
	ResolvedBy      string
}

type DeliveryFilter struct {
	SubscriptionID string
	EventID        string
	Status         AttemptStatus
	Page           int
	PerPage        int
}

type DeliveryPage struct {
	Items   []DeliveryAttempt
	Total   int
	Page    int
	PerPage int
}

type DeadLetterFilter struct {
	Status     DeadLetterStatus
	SourceKind DeadLetterSourceKind
	Page       int
	PerPage    int
}

type DeadLetterPage struct {
	Items   []DeadLetterEntry
	Total   int
	Page    int
	PerPage int
}

// DeadLetterStatistics feeds operational dashboards: entry counts keyed by
// status and by failure-reason bucket.
type DeadLetterStatistics struct {
	ByStatus map[DeadLetterStatus]int
	ByReason map[string]int
}

// FailureReasonBucket collapses a stored failure reason into its leading
// classifier ("http_404", "timeout", "exhausted", ...) for aggregation.
func FailureReasonBucket(reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "unknown"
	}
	if bucket, _, ok := strings.Cut(reason, ":"); ok {
		bucket = strings.TrimSpace(bucket)
		if bucket != "" {
			return bucket
		}
	}
	return reason
}

// FanOutDedupeKey is the natural key that makes fan-out idempotent: one
// attempt per (event, subscription) pair.
func FanOutDedupeKey(eventID string, subscriptionID string) string {
	return strings.TrimSpace(eventID) + ":" + strings.TrimSpace(subscriptionID)
}

// RetryDedupeKey scopes an operator-initiated retry to its dead-letter entry
// so a repeated retry call cannot mint a second attempt.
func RetryDedupeKey(eventID string, subscriptionID string, entryID string) string {
	return FanOutDedupeKey(eventID, subscriptionID) + ":retry:" + strings.TrimSpace(entryID)
}

// DispatchStats summarizes one dispatch cycle.
type DispatchStats struct {
	Claimed      int
	Delivered    int
	Retried      int
	DeadLettered int
}
