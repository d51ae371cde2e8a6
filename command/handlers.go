package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-webhooks/core"
)

type MutatingService interface {
	Emit(ctx context.Context, req core.EmitRequest) (core.EmitResult, error)
	TestDelivery(ctx context.Context, req core.TestDeliveryRequest) (core.DeliveryAttempt, error)
	RetryDeadLetter(ctx context.Context, req core.RetryDeadLetterRequest) (core.RetryDeadLetterResult, error)
	ResolveDeadLetter(ctx context.Context, entryID string, actor string) (core.DeadLetterEntry, error)
	IgnoreDeadLetter(ctx context.Context, entryID string, actor string) (core.DeadLetterEntry, error)
}

type EmitEventCommand struct {
	service MutatingService
}

func NewEmitEventCommand(service MutatingService) *EmitEventCommand {
	return &EmitEventCommand{service: service}
}

func (c *EmitEventCommand) Execute(ctx context.Context, msg EmitEventMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: emit service is required")
	}
	out, err := c.service.Emit(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type TestDeliveryCommand struct {
	service MutatingService
}

func NewTestDeliveryCommand(service MutatingService) *TestDeliveryCommand {
	return &TestDeliveryCommand{service: service}
}

func (c *TestDeliveryCommand) Execute(ctx context.Context, msg TestDeliveryMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: test delivery service is required")
	}
	out, err := c.service.TestDelivery(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RetryDeadLetterCommand struct {
	service MutatingService
}

func NewRetryDeadLetterCommand(service MutatingService) *RetryDeadLetterCommand {
	return &RetryDeadLetterCommand{service: service}
}

func (c *RetryDeadLetterCommand) Execute(ctx context.Context, msg RetryDeadLetterMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dead letter retry service is required")
	}
	out, err := c.service.RetryDeadLetter(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ResolveDeadLetterCommand struct {
	service MutatingService
}

func NewResolveDeadLetterCommand(service MutatingService) *ResolveDeadLetterCommand {
	return &ResolveDeadLetterCommand{service: service}
}

func (c *ResolveDeadLetterCommand) Execute(ctx context.Context, msg ResolveDeadLetterMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dead letter resolve service is required")
	}
	out, err := c.service.ResolveDeadLetter(ctx, msg.EntryID, msg.Actor)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type IgnoreDeadLetterCommand struct {
	service MutatingService
}

func NewIgnoreDeadLetterCommand(service MutatingService) *IgnoreDeadLetterCommand {
	return &IgnoreDeadLetterCommand{service: service}
}

func (c *IgnoreDeadLetterCommand) Execute(ctx context.Context, msg IgnoreDeadLetterMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: dead letter ignore service is required")
	}
	out, err := c.service.IgnoreDeadLetter(ctx, msg.EntryID, msg.Actor)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
