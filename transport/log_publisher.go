package transport

import (
	"context"

	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-config-monitor/core"
)

const KindLog = "log"

// LogPublisher writes refresh signals to the logger. Useful as a dry run bus.
type LogPublisher struct {
	logger core.Logger
}

func NewLogPublisher(logger core.Logger) *LogPublisher {
	return &LogPublisher{logger: glog.Ensure(logger)}
}

func (p *LogPublisher) Kind() string {
	return KindLog
}

func (p *LogPublisher) PublishRefresh(ctx context.Context, signal core.RefreshSignal) error {
	var logger core.Logger = glog.Nop()
	if p != nil {
		logger = glog.Ensure(p.logger)
	}
	logger.WithContext(ctx).Info("refresh signal",
		"id", signal.ID,
		"origin", signal.Origin,
		"context_id", signal.ContextID,
		"destination", signal.Destination,
	)
	return nil
}

var _ core.RefreshPublisher = (*LogPublisher)(nil)
