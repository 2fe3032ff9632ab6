package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-config-monitor/core"
	"github.com/goliatone/go-config-monitor/ratelimit"
)

const DefaultBusRefreshPath = "/actuator/busrefresh"

// ThrottlePolicy gates calls to the bus endpoint and learns from its
// responses.
type ThrottlePolicy interface {
	BeforeCall(ctx context.Context, key ratelimit.Key) error
	AfterCall(ctx context.Context, key ratelimit.Key, res ratelimit.ResponseMeta) error
}

// BusRESTPublisher posts each signal to a bus refresh endpoint. Wildcard
// destinations go to the bare endpoint, everything else is appended as the
// last path segment.
type BusRESTPublisher struct {
	Adapter *RESTAdapter
	BaseURL string
	Path    string
	Headers map[string]string
	Timeout time.Duration
	Policy  ThrottlePolicy
}

func NewBusRESTPublisher(baseURL string, adapter *RESTAdapter) *BusRESTPublisher {
	if adapter == nil {
		adapter = NewRESTAdapter(nil)
	}
	return &BusRESTPublisher{
		Adapter: adapter,
		BaseURL: strings.TrimSpace(baseURL),
		Path:    DefaultBusRefreshPath,
		Headers: map[string]string{},
	}
}

func (p *BusRESTPublisher) Kind() string {
	return KindREST
}

func (p *BusRESTPublisher) PublishRefresh(ctx context.Context, signal core.RefreshSignal) error {
	if p == nil || p.Adapter == nil {
		return transportError(
			"transport: bus rest publisher is not configured",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			nil,
		)
	}
	target, err := p.endpoint(signal.Destination)
	if err != nil {
		return err
	}
	body, err := encodeBusEvent(signal)
	if err != nil {
		return transportWrapError(err, goerrors.CategoryInternal, "transport: encode bus event", http.StatusInternalServerError, nil)
	}

	key := ratelimit.Key{Transport: KindREST, Target: target}
	if p.Policy != nil {
		if err := p.Policy.BeforeCall(ctx, key); err != nil {
			var throttled ratelimit.ThrottledError
			if errors.As(err, &throttled) {
				return throttled.ToMonitorError()
			}
			return err
		}
	}

	headers := map[string]string{"Content-Type": "application/json"}
	for key, value := range p.Headers {
		headers[key] = value
	}
	res, err := p.Adapter.Do(ctx, Request{
		Method:  http.MethodPost,
		URL:     target,
		Headers: headers,
		Body:    body,
		Timeout: p.Timeout,
	})
	if err != nil {
		return err
	}
	if p.Policy != nil {
		if err := p.Policy.AfterCall(ctx, key, ratelimit.ResponseMeta{
			StatusCode: res.StatusCode,
			Headers:    res.Headers,
		}); err != nil {
			return err
		}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return transportError(
			fmt.Sprintf("transport: bus refresh returned status %d", res.StatusCode),
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			map[string]any{"destination": signal.Destination, "status_code": res.StatusCode, "url": target},
		)
	}
	return nil
}

func (p *BusRESTPublisher) endpoint(destination string) (string, error) {
	base, err := url.Parse(strings.TrimSpace(p.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", transportError(
			"transport: bus rest publisher requires an absolute base url",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{"base_url": p.BaseURL},
		)
	}
	path := p.Path
	if strings.TrimSpace(path) == "" {
		path = DefaultBusRefreshPath
	}
	base.Path = strings.TrimSuffix(base.Path, "/") + "/" + strings.Trim(path, "/")
	base.RawPath = ""

	destination = strings.TrimSpace(destination)
	if destination == "" || destination == core.WildcardServiceName {
		return base.String(), nil
	}
	return base.JoinPath(destination).String(), nil
}

var _ core.RefreshPublisher = (*BusRESTPublisher)(nil)
