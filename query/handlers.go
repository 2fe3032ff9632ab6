package query

import (
	"context"

	"github.com/goliatone/go-config-monitor/core"
)

type OutboxReader interface {
	ListByStatus(ctx context.Context, status string, limit int) ([]core.OutboxEntry, error)
}

type ResolveServicesQuery struct {
	resolver core.ResolveService
}

func NewResolveServicesQuery(resolver core.ResolveService) *ResolveServicesQuery {
	return &ResolveServicesQuery{resolver: resolver}
}

func (q *ResolveServicesQuery) Query(ctx context.Context, msg ResolveServicesMessage) ([]string, error) {
	if q == nil || q.resolver == nil {
		return nil, queryDependencyError("query: service resolver is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.resolver.Resolve(ctx, msg.Paths), nil
}

type ContextIDQuery struct {
	resolver core.ResolveService
}

func NewContextIDQuery(resolver core.ResolveService) *ContextIDQuery {
	return &ContextIDQuery{resolver: resolver}
}

func (q *ContextIDQuery) Query(_ context.Context, _ ContextIDMessage) (string, error) {
	if q == nil || q.resolver == nil {
		return "", queryDependencyError("query: service resolver is required")
	}
	return q.resolver.ContextID(), nil
}

type ListOutboxQuery struct {
	reader OutboxReader
}

func NewListOutboxQuery(reader OutboxReader) *ListOutboxQuery {
	return &ListOutboxQuery{reader: reader}
}

func (q *ListOutboxQuery) Query(ctx context.Context, msg ListOutboxMessage) ([]core.OutboxEntry, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: outbox reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.reader.ListByStatus(ctx, msg.Status, msg.Limit)
}
