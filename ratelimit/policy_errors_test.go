package ratelimit

import (
	"testing"
	"time"

	"github.com/goliatone/go-config-monitor/core"
)

func TestThrottledError_ToMonitorError(t *testing.T) {
	err := ThrottledError{
		Transport:  "rest",
		Target:     "http://config-server:8888/actuator/busrefresh",
		RetryAfter: 3 * time.Second,
	}

	mapped := err.ToMonitorError()
	if mapped == nil {
		t.Fatalf("expected mapped error")
	}
	if mapped.TextCode != core.MonitorErrorRateLimited {
		t.Fatalf("expected %q text code, got %q", core.MonitorErrorRateLimited, mapped.TextCode)
	}
	if mapped.Code != 429 {
		t.Fatalf("expected status code 429, got %d", mapped.Code)
	}
	if mapped.Metadata["retry_after_ms"] != int64(3000) {
		t.Fatalf("expected retry_after_ms metadata, got %#v", mapped.Metadata)
	}
}
