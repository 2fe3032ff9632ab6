package core

import (
	stderrors "errors"
	"net/http"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

func TestMonitorErrorMapper_AssignsStableCodes(t *testing.T) {
	cases := []struct {
		err      error
		textCode string
		status   int
	}{
		{err: stderrors.New("webhooks: signature mismatch"), textCode: MonitorErrorUnauthorized, status: http.StatusUnauthorized},
		{err: stderrors.New("transport: publish to bus failed"), textCode: MonitorErrorPublishFailed, status: http.StatusBadGateway},
		{err: stderrors.New("webhooks: delivery throttled"), textCode: MonitorErrorRateLimited, status: http.StatusTooManyRequests},
		{err: stderrors.New("httpapi: malformed json body"), textCode: MonitorErrorBadInput, status: http.StatusBadRequest},
	}
	for _, tc := range cases {
		mapped := MapError(tc.err)
		if mapped.TextCode != tc.textCode {
			t.Fatalf("%q: expected text code %q, got %q", tc.err, tc.textCode, mapped.TextCode)
		}
		if mapped.Code != tc.status {
			t.Fatalf("%q: expected status %d, got %d", tc.err, tc.status, mapped.Code)
		}
	}
}

func TestMonitorErrorMapper_PreservesEnvelope(t *testing.T) {
	source := goerrors.New("ledger missing", goerrors.CategoryNotFound)
	mapped := MapError(source)
	if mapped.TextCode != MonitorErrorNotFound {
		t.Fatalf("expected not found text code, got %q", mapped.TextCode)
	}
	if mapped.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", mapped.Code)
	}
	if MapError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}

func TestPublishError_WrapsDestination(t *testing.T) {
	err := publishError(stderrors.New("connection refused"), "orders:prod")
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.Category != goerrors.CategoryExternal || richErr.Code != http.StatusBadGateway {
		t.Fatalf("unexpected envelope: %+v", richErr)
	}
	if richErr.Metadata["destination"] != "orders:prod" {
		t.Fatalf("expected destination metadata, got %#v", richErr.Metadata)
	}
}
