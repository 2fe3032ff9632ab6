package transport

import (
	"context"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-config-monitor/core"
)

// UnsupportedPublisher stands in for a bus kind that is named in
// configuration but cannot be built in this process.
type UnsupportedPublisher struct {
	kind   string
	reason string
}

func NewUnsupportedPublisher(kind string, reason string) *UnsupportedPublisher {
	return &UnsupportedPublisher{
		kind:   normalizeKind(kind),
		reason: strings.TrimSpace(reason),
	}
}

func (p *UnsupportedPublisher) Kind() string {
	if p == nil {
		return ""
	}
	return p.kind
}

func (p *UnsupportedPublisher) PublishRefresh(_ context.Context, signal core.RefreshSignal) error {
	kind := p.Kind()
	message := "transport: " + kind + " publisher is not configured"
	if p != nil && p.reason != "" {
		message += ": " + p.reason
	}
	return transportError(
		message,
		goerrors.CategoryOperation,
		http.StatusServiceUnavailable,
		map[string]any{"kind": kind, "destination": signal.Destination},
	)
}

var _ core.RefreshPublisher = (*UnsupportedPublisher)(nil)
