package query

import (
	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-config-monitor/core"
)

var (
	_ gocmd.Querier[ResolveServicesMessage, []string]      = (*ResolveServicesQuery)(nil)
	_ gocmd.Querier[ContextIDMessage, string]              = (*ContextIDQuery)(nil)
	_ gocmd.Querier[ListOutboxMessage, []core.OutboxEntry] = (*ListOutboxQuery)(nil)
	_ OutboxReader                                         = (*core.MemoryOutboxStore)(nil)
)
