package query

import (
	"strings"

	"github.com/goliatone/go-config-monitor/core"
)

const (
	TypeResolveServices = "config_monitor.query.services.resolve"
	TypeContextID       = "config_monitor.query.context_id"
	TypeListOutbox      = "config_monitor.query.outbox.list"
)

// ResolveServicesMessage previews the service names for a set of paths
// without publishing anything.
type ResolveServicesMessage struct {
	Paths []string
}

func (ResolveServicesMessage) Type() string { return TypeResolveServices }

func (m ResolveServicesMessage) Validate() error {
	if len(m.Paths) == 0 {
		return queryValidationError("paths", "at least one path is required")
	}
	return nil
}

type ContextIDMessage struct{}

func (ContextIDMessage) Type() string { return TypeContextID }

type ListOutboxMessage struct {
	Status string
	Limit  int
}

func (ListOutboxMessage) Type() string { return TypeListOutbox }

func (m ListOutboxMessage) Validate() error {
	switch strings.TrimSpace(m.Status) {
	case core.OutboxStatusPending, core.OutboxStatusClaimed, core.OutboxStatusDelivered, core.OutboxStatusFailed:
	default:
		return queryValidationError("status", "unknown outbox status")
	}
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	return nil
}
