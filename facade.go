package monitor

import (
	"fmt"

	monitorcommand "github.com/goliatone/go-config-monitor/command"
	"github.com/goliatone/go-config-monitor/core"
	monitorquery "github.com/goliatone/go-config-monitor/query"
)

type Commands struct {
	NotifyByPath  *monitorcommand.NotifyByPathCommand
	NotifyByForm  *monitorcommand.NotifyByFormCommand
	AttachContext *monitorcommand.AttachContextCommand
	RelayOutbox   *monitorcommand.RelayOutboxCommand
}

type Queries struct {
	ResolveServices *monitorquery.ResolveServicesQuery
	ContextID       *monitorquery.ContextIDQuery
	ListOutbox      *monitorquery.ListOutboxQuery
}

// Facade exposes the monitor through go-command handlers. The relay and
// outbox handlers are nil unless an outbox is wired.
type Facade struct {
	monitor  *core.Monitor
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	relay  core.OutboxDispatcher
	outbox monitorquery.OutboxReader
}

func WithRelay(relay core.OutboxDispatcher) FacadeOption {
	return func(options *facadeOptions) {
		options.relay = relay
	}
}

func WithOutboxReader(reader monitorquery.OutboxReader) FacadeOption {
	return func(options *facadeOptions) {
		options.outbox = reader
	}
}

func NewFacade(monitor *core.Monitor, opts ...FacadeOption) (*Facade, error) {
	if monitor == nil {
		return nil, fmt.Errorf("monitor: monitor is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}
	if cfg.outbox == nil {
		cfg.outbox = resolveOutboxReader(cfg.relay)
	}

	facade := &Facade{monitor: monitor}
	facade.commands = Commands{
		NotifyByPath:  monitorcommand.NewNotifyByPathCommand(monitor),
		NotifyByForm:  monitorcommand.NewNotifyByFormCommand(monitor),
		AttachContext: monitorcommand.NewAttachContextCommand(monitor),
	}
	if cfg.relay != nil {
		facade.commands.RelayOutbox = monitorcommand.NewRelayOutboxCommand(cfg.relay)
	}
	facade.queries = Queries{
		ResolveServices: monitorquery.NewResolveServicesQuery(monitor),
		ContextID:       monitorquery.NewContextIDQuery(monitor),
	}
	if cfg.outbox != nil {
		facade.queries.ListOutbox = monitorquery.NewListOutboxQuery(cfg.outbox)
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Monitor() *core.Monitor {
	if f == nil {
		return nil
	}
	return f.monitor
}

// resolveOutboxReader reuses the relay's store when it can list entries.
func resolveOutboxReader(relay core.OutboxDispatcher) monitorquery.OutboxReader {
	provider, ok := relay.(interface{ Store() core.OutboxStore })
	if !ok {
		return nil
	}
	reader, ok := provider.Store().(monitorquery.OutboxReader)
	if !ok {
		return nil
	}
	return reader
}
