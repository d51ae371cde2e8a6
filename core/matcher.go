package core

import (
	"context"
	"fmt"
	"strings"
)

// Matcher resolves which subscriptions receive an event and fans it out into
// delivery attempts. Fan-out is idempotent: re-running it for the same event
// creates nothing new.
type Matcher struct {
	subscriptions SubscriptionStore
	attempts      AttemptStore
}

func NewMatcher(subscriptions SubscriptionStore, attempts AttemptStore) (*Matcher, error) {
	if subscriptions == nil {
		return nil, fmt.Errorf("core: subscription store is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("core: attempt store is required")
	}
	return &Matcher{
		subscriptions: subscriptions,
		attempts:      attempts,
	}, nil
}

// Match returns the active subscriptions covering event.Type, in creation
// order. The store may over-return; the wildcard check here is
// authoritative.
func (m *Matcher) Match(ctx context.Context, event Event) ([]Subscription, error) {
	if m == nil || m.subscriptions == nil {
		return nil, fmt.Errorf("core: matcher is not configured")
	}
	eventType := strings.TrimSpace(event.Type)
	if eventType == "" {
		return nil, fmt.Errorf("core: event type is required")
	}
	candidates, err := m.subscriptions.ListActive(ctx, eventType)
	if err != nil {
		return nil, err
	}
	matched := make([]Subscription, 0, len(candidates))
	for _, candidate := range candidates {
		if !candidate.Active {
			continue
		}
		if candidate.Matches(eventType) {
			matched = append(matched, candidate)
		}
	}
	return matched, nil
}

// FanOut creates one pending attempt per subscription, keyed by the
// (event, subscription) pair. Already-created pairs are returned as-is.
func (m *Matcher) FanOut(ctx context.Context, event Event, subscriptions []Subscription) ([]DeliveryAttempt, error) {
	if m == nil || m.attempts == nil {
		return nil, fmt.Errorf("core: matcher is not configured")
	}
	if strings.TrimSpace(event.ID) == "" {
		return nil, fmt.Errorf("core: event id is required")
	}
	out := make([]DeliveryAttempt, 0, len(subscriptions))
	for _, subscription := range subscriptions {
		key := FanOutDedupeKey(event.ID, subscription.ID)
		attempt, _, err := m.attempts.CreatePending(ctx, event.ID, subscription.ID, key)
		if err != nil {
			return out, fmt.Errorf("core: fan out event %q to subscription %q: %w", event.ID, subscription.ID, err)
		}
		out = append(out, attempt)
	}
	return out, nil
}
