package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-config-monitor/core"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

// Key names one throttling bucket: a publisher kind and the endpoint it
// talks to.
type Key struct {
	Transport string
	Target    string
}

// ResponseMeta is what a publisher observed from the bus endpoint.
type ResponseMeta struct {
	StatusCode int
	Headers    map[string]string
	RetryAfter *time.Duration
}

type State struct {
	Key            Key
	Limit          int
	Remaining      int
	ResetAt        *time.Time
	RetryAfter     *time.Duration
	ThrottledUntil *time.Time
	LastStatus     int
	Attempts       int
	UpdatedAt      time.Time
}

type StateStore interface {
	Get(ctx context.Context, key Key) (State, error)
	Upsert(ctx context.Context, state State) error
}

type ThrottledError struct {
	Transport  string
	Target     string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf(
		"ratelimit: %s target %q throttled for %s",
		strings.TrimSpace(e.Transport),
		strings.TrimSpace(e.Target),
		e.RetryAfter,
	)
}

func (e ThrottledError) ToMonitorError() *goerrors.Error {
	metadata := map[string]any{
		"transport": strings.TrimSpace(e.Transport),
		"target":    strings.TrimSpace(e.Target),
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.MonitorErrorRateLimited).
		WithMetadata(metadata)
}

// AdaptivePolicy learns throttling windows from bus responses and refuses
// calls while a window is open.
type AdaptivePolicy struct {
	Store            StateStore
	Now              func() time.Time
	InitialBackoff   time.Duration
	MaxBackoff       time.Duration
	DefaultRetryHint time.Duration
}

func NewAdaptivePolicy(store StateStore) *AdaptivePolicy {
	return &AdaptivePolicy{
		Store:            store,
		Now:              func() time.Time { return time.Now().UTC() },
		InitialBackoff:   time.Second,
		MaxBackoff:       time.Minute,
		DefaultRetryHint: 5 * time.Second,
	}
}

func (p *AdaptivePolicy) BeforeCall(ctx context.Context, key Key) error {
	if p == nil || p.Store == nil {
		return nil
	}
	state, err := p.Store.Get(ctx, NormalizeKey(key))
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return err
	}

	now := p.now()
	if until := state.ThrottledUntil; until != nil && now.Before(*until) {
		return ThrottledError{Transport: state.Key.Transport, Target: state.Key.Target, RetryAfter: until.Sub(now)}
	}
	if state.Remaining == 0 && state.ResetAt != nil && now.Before(*state.ResetAt) {
		return ThrottledError{Transport: state.Key.Transport, Target: state.Key.Target, RetryAfter: state.ResetAt.Sub(now)}
	}
	return nil
}

func (p *AdaptivePolicy) AfterCall(ctx context.Context, key Key, res ResponseMeta) error {
	if p == nil || p.Store == nil {
		return nil
	}
	key = NormalizeKey(key)
	state, err := p.Store.Get(ctx, key)
	switch {
	case errors.Is(err, ErrStateNotFound):
		state = State{Key: key}
	case err != nil:
		return err
	}

	now := p.now()
	observed := readRateHeaders(res, now)
	observed.apply(&state)
	state.LastStatus = res.StatusCode
	state.UpdatedAt = now

	if !observed.throttled(res.StatusCode, state.Remaining) {
		state.Attempts = 0
		state.ThrottledUntil = nil
		return p.Store.Upsert(ctx, state)
	}
	state.Attempts++
	delay := p.nextBackoff(state.Attempts)
	if observed.retryAfter != nil {
		delay = *observed.retryAfter
	}
	until := now.Add(delay)
	state.ThrottledUntil = &until
	return p.Store.Upsert(ctx, state)
}

func (p *AdaptivePolicy) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

// nextBackoff doubles InitialBackoff per attempt up to MaxBackoff.
func (p *AdaptivePolicy) nextBackoff(attempt int) time.Duration {
	delay, ceiling := p.InitialBackoff, p.MaxBackoff
	if delay <= 0 {
		delay = time.Second
	}
	if ceiling <= 0 {
		ceiling = time.Minute
	}
	for ; attempt > 1 && delay < ceiling; attempt-- {
		delay *= 2
	}
	switch {
	case delay <= 0:
		if p.DefaultRetryHint > 0 {
			return p.DefaultRetryHint
		}
		return 5 * time.Second
	case delay > ceiling:
		return ceiling
	default:
		return delay
	}
}

// NormalizeKey lower-cases the transport and trims both parts.
func NormalizeKey(key Key) Key {
	return Key{
		Transport: strings.TrimSpace(strings.ToLower(key.Transport)),
		Target:    strings.TrimSpace(key.Target),
	}
}
