package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

// NotificationExtractor turns a provider webhook into changed paths. It
// reports false when the request is not a webhook it recognizes.
type NotificationExtractor interface {
	Extract(headers map[string]string, payload map[string]any) (PropertyPathNotification, bool)
}

type NotificationExtractorFunc func(headers map[string]string, payload map[string]any) (PropertyPathNotification, bool)

func (f NotificationExtractorFunc) Extract(headers map[string]string, payload map[string]any) (PropertyPathNotification, bool) {
	if f == nil {
		return PropertyPathNotification{}, false
	}
	return f(headers, payload)
}

// RefreshPublisher delivers refresh signals to the services being refreshed.
type RefreshPublisher interface {
	PublishRefresh(ctx context.Context, signal RefreshSignal) error
}

type RefreshPublisherFunc func(ctx context.Context, signal RefreshSignal) error

func (f RefreshPublisherFunc) PublishRefresh(ctx context.Context, signal RefreshSignal) error {
	if f == nil {
		return nil
	}
	return f(ctx, signal)
}

type InboundHandler interface {
	Handle(ctx context.Context, req InboundRequest) (InboundResult, error)
}

type NotifyService interface {
	NotifyByPath(ctx context.Context, headers map[string]string, payload map[string]any) ([]string, error)
	NotifyByForm(ctx context.Context, headers map[string]string, paths []string) ([]string, error)
}

type ResolveService interface {
	Resolve(ctx context.Context, paths []string) []string
	ContextID() string
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type DispatchStats struct {
	Claimed   int
	Delivered int
	Retried   int
	Failed    int
}

// OutboxStore persists refresh signals until a relay delivers them.
type OutboxStore interface {
	Enqueue(ctx context.Context, signal RefreshSignal) error
	ClaimBatch(ctx context.Context, limit int) ([]OutboxEntry, error)
	Ack(ctx context.Context, signalID string) error
	Retry(ctx context.Context, signalID string, cause error, nextAttemptAt time.Time) error
}

type OutboxEntry struct {
	Signal   RefreshSignal
	Attempts int
}

type OutboxDispatcher interface {
	DispatchPending(ctx context.Context, batchSize int) (DispatchStats, error)
}
