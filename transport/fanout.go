package transport

import (
	"context"
	"errors"

	"github.com/goliatone/go-config-monitor/core"
)

// FanoutPublisher forwards each signal to every publisher. A failing
// publisher does not stop the others; failures are joined.
type FanoutPublisher struct {
	publishers []core.RefreshPublisher
}

func NewFanoutPublisher(publishers ...core.RefreshPublisher) *FanoutPublisher {
	filtered := make([]core.RefreshPublisher, 0, len(publishers))
	for _, publisher := range publishers {
		if publisher != nil {
			filtered = append(filtered, publisher)
		}
	}
	return &FanoutPublisher{publishers: filtered}
}

func (p *FanoutPublisher) Len() int {
	if p == nil {
		return 0
	}
	return len(p.publishers)
}

func (p *FanoutPublisher) PublishRefresh(ctx context.Context, signal core.RefreshSignal) error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, publisher := range p.publishers {
		if err := publisher.PublishRefresh(ctx, signal); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ core.RefreshPublisher = (*FanoutPublisher)(nil)
