package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-config-monitor/core"
)

type ContextAttacher interface {
	AttachContext(id string)
}

// NotifyByPathCommand stores the refreshed service names as its result.
type NotifyByPathCommand struct {
	service core.NotifyService
}

func NewNotifyByPathCommand(service core.NotifyService) *NotifyByPathCommand {
	return &NotifyByPathCommand{service: service}
}

func (c *NotifyByPathCommand) Execute(ctx context.Context, msg NotifyByPathMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: notify service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	services, err := c.service.NotifyByPath(ctx, msg.Headers, msg.Payload)
	storeResult(ctx, services)
	return err
}

type NotifyByFormCommand struct {
	service core.NotifyService
}

func NewNotifyByFormCommand(service core.NotifyService) *NotifyByFormCommand {
	return &NotifyByFormCommand{service: service}
}

func (c *NotifyByFormCommand) Execute(ctx context.Context, msg NotifyByFormMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: notify service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	services, err := c.service.NotifyByForm(ctx, msg.Headers, msg.Paths)
	storeResult(ctx, services)
	return err
}

// RelayOutboxCommand drains one batch of the refresh outbox and stores the
// dispatch stats as its result.
type RelayOutboxCommand struct {
	dispatcher core.OutboxDispatcher
}

func NewRelayOutboxCommand(dispatcher core.OutboxDispatcher) *RelayOutboxCommand {
	return &RelayOutboxCommand{dispatcher: dispatcher}
}

func (c *RelayOutboxCommand) Execute(ctx context.Context, msg RelayOutboxMessage) error {
	if c == nil || c.dispatcher == nil {
		return commandDependencyError("command: outbox dispatcher is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	stats, err := c.dispatcher.DispatchPending(ctx, msg.BatchSize)
	storeResult(ctx, stats)
	return err
}

type AttachContextCommand struct {
	target ContextAttacher
}

func NewAttachContextCommand(target ContextAttacher) *AttachContextCommand {
	return &AttachContextCommand{target: target}
}

func (c *AttachContextCommand) Execute(_ context.Context, msg AttachContextMessage) error {
	if c == nil || c.target == nil {
		return commandDependencyError("command: context target is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	c.target.AttachContext(msg.ContextID)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
