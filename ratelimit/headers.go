package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/goliatone/go-config-monitor/core"
)

// rateHeaders holds the X-RateLimit-* and Retry-After values of one
// response. Nil fields were absent or unparseable.
type rateHeaders struct {
	limit      *int
	remaining  *int
	resetAt    *time.Time
	retryAfter *time.Duration
}

func readRateHeaders(res ResponseMeta, now time.Time) rateHeaders {
	return rateHeaders{
		limit:      headerInt(res.Headers, "x-ratelimit-limit"),
		remaining:  headerInt(res.Headers, "x-ratelimit-remaining"),
		resetAt:    headerUnix(res.Headers, "x-ratelimit-reset"),
		retryAfter: retryAfter(res, now),
	}
}

// apply copies the observed values onto state. RetryAfter is replaced even
// when absent so a stale hint does not outlive the response that sent it.
func (h rateHeaders) apply(state *State) {
	if h.limit != nil {
		state.Limit = *h.limit
	}
	if h.remaining != nil {
		state.Remaining = *h.remaining
	}
	if h.resetAt != nil {
		state.ResetAt = h.resetAt
	}
	state.RetryAfter = h.retryAfter
}

// throttled treats a 429 as throttling, never a 5xx, and otherwise an
// exhausted quota reported by any rate header.
func (h rateHeaders) throttled(status int, remaining int) bool {
	switch {
	case status == http.StatusTooManyRequests:
		return true
	case status >= http.StatusInternalServerError:
		return false
	}
	reported := h.limit != nil || h.remaining != nil || h.resetAt != nil || h.retryAfter != nil
	return reported && remaining == 0
}

// retryAfter prefers an explicit hint from the publisher, then Retry-After as
// delta seconds or an HTTP date.
func retryAfter(res ResponseMeta, now time.Time) *time.Duration {
	if res.RetryAfter != nil && *res.RetryAfter > 0 {
		hint := *res.RetryAfter
		return &hint
	}
	raw := core.HeaderValue(res.Headers, "retry-after")
	if raw == "" {
		return nil
	}
	var delay time.Duration
	if seconds, err := strconv.Atoi(raw); err == nil {
		delay = time.Duration(seconds) * time.Second
	} else if at, err := http.ParseTime(raw); err == nil {
		delay = at.Sub(now)
	}
	if delay <= 0 {
		return nil
	}
	return &delay
}

func headerInt(headers map[string]string, key string) *int {
	parsed, err := strconv.Atoi(core.HeaderValue(headers, key))
	if err != nil {
		return nil
	}
	return &parsed
}

func headerUnix(headers map[string]string, key string) *time.Time {
	unix, err := strconv.ParseInt(core.HeaderValue(headers, key), 10, 64)
	if err != nil || unix <= 0 {
		return nil
	}
	at := time.Unix(unix, 0).UTC()
	return &at
}
