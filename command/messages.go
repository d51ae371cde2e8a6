package command

import (
	"strings"

	"github.com/goliatone/go-webhooks/core"
)

const (
	TypeEmitEvent         = "webhooks.command.event.emit"
	TypeTestDelivery      = "webhooks.command.delivery.test"
	TypeRetryDeadLetter   = "webhooks.command.dead_letter.retry"
	TypeResolveDeadLetter = "webhooks.command.dead_letter.resolve"
	TypeIgnoreDeadLetter  = "webhooks.command.dead_letter.ignore"
)

type EmitEventMessage struct {
	Request core.EmitRequest
}

func (EmitEventMessage) Type() string { return TypeEmitEvent }

func (m EmitEventMessage) Validate() error {
	if strings.TrimSpace(m.Request.Type) == "" {
		return commandInvalidInputError("command: event type is required")
	}
	return nil
}

type TestDeliveryMessage struct {
	Request core.TestDeliveryRequest
}

func (TestDeliveryMessage) Type() string { return TypeTestDelivery }

func (m TestDeliveryMessage) Validate() error {
	if strings.TrimSpace(m.Request.SubscriptionID) == "" {
		return commandInvalidInputError("command: subscription id is required")
	}
	return nil
}

type RetryDeadLetterMessage struct {
	Request core.RetryDeadLetterRequest
}

func (RetryDeadLetterMessage) Type() string { return TypeRetryDeadLetter }

func (m RetryDeadLetterMessage) Validate() error {
	if strings.TrimSpace(m.Request.EntryID) == "" {
		return commandInvalidInputError("command: dead letter entry id is required")
	}
	return nil
}

type ResolveDeadLetterMessage struct {
	EntryID string
	Actor   string
}

func (ResolveDeadLetterMessage) Type() string { return TypeResolveDeadLetter }

func (m ResolveDeadLetterMessage) Validate() error {
	if strings.TrimSpace(m.EntryID) == "" {
		return commandInvalidInputError("command: dead letter entry id is required")
	}
	return nil
}

type IgnoreDeadLetterMessage struct {
	EntryID string
	Actor   string
}

func (IgnoreDeadLetterMessage) Type() string { return TypeIgnoreDeadLetter }

func (m IgnoreDeadLetterMessage) Validate() error {
	if strings.TrimSpace(m.EntryID) == "" {
		return commandInvalidInputError("command: dead letter entry id is required")
	}
	return nil
}
