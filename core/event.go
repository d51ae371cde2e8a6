package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TestEventType marks synthetic events produced by TestDelivery.
const TestEventType = "webhook.test"

// Event is an immutable domain event. Its ID doubles as the idempotency key
// propagated to every delivery derived from it.
type Event struct {
	ID         string
	Type       string
	OccurredAt time.Time
	Payload    map[string]any
}

// NewEvent constructs an event with a fresh identity. The payload must be
// JSON-serializable; anything else is a caller error and is never retried.
func NewEvent(eventType string, payload map[string]any) (Event, error) {
	eventType = strings.TrimSpace(eventType)
	if err := validateEventType(eventType); err != nil {
		return Event{}, err
	}
	if payload == nil {
		payload = map[string]any{}
	}
	if _, err := json.Marshal(payload); err != nil {
		return Event{}, fmt.Errorf("core: event payload is not JSON-serializable: %w", err)
	}
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
		Payload:    copyAnyMap(payload),
	}, nil
}

func validateEventType(eventType string) error {
	if eventType == "" {
		return fmt.Errorf("core: event type is required")
	}
	segments := strings.Split(eventType, ".")
	if len(segments) < 2 {
		return fmt.Errorf("core: event type %q must be dot-namespaced", eventType)
	}
	for _, segment := range segments {
		if strings.TrimSpace(segment) == "" {
			return fmt.Errorf("core: event type %q has an empty segment", eventType)
		}
	}
	return nil
}

type eventEnvelope struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	OccurredAt string         `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}

// CanonicalBody renders the wire body for the outbound POST. The same bytes
// feed the signature, so both sides must agree on this form.
func (e Event) CanonicalBody() ([]byte, error) {
	body, err := json.Marshal(eventEnvelope{
		ID:         e.ID,
		Type:       e.Type,
		OccurredAt: e.OccurredAt.UTC().Format(time.RFC3339),
		Payload:    e.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("core: marshal event %q: %w", e.ID, err)
	}
	return body, nil
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
