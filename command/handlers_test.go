package command

import (
	"context"
	"errors"
	"strings"
	"testing"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-config-monitor/core"
)

type stubNotifyService struct {
	notifyByPathFn func(ctx context.Context, headers map[string]string, payload map[string]any) ([]string, error)
	notifyByFormFn func(ctx context.Context, headers map[string]string, paths []string) ([]string, error)
}

func (s stubNotifyService) NotifyByPath(ctx context.Context, headers map[string]string, payload map[string]any) ([]string, error) {
	if s.notifyByPathFn == nil {
		return []string{}, nil
	}
	return s.notifyByPathFn(ctx, headers, payload)
}

func (s stubNotifyService) NotifyByForm(ctx context.Context, headers map[string]string, paths []string) ([]string, error) {
	if s.notifyByFormFn == nil {
		return []string{}, nil
	}
	return s.notifyByFormFn(ctx, headers, paths)
}

type stubDispatcher struct {
	batchSize int
	stats     core.DispatchStats
	err       error
}

func (d *stubDispatcher) DispatchPending(_ context.Context, batchSize int) (core.DispatchStats, error) {
	d.batchSize = batchSize
	return d.stats, d.err
}

type stubAttacher struct {
	id string
}

func (a *stubAttacher) AttachContext(id string) {
	a.id = id
}

func TestNotifyByPathCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	called := false
	svc := stubNotifyService{
		notifyByPathFn: func(_ context.Context, headers map[string]string, payload map[string]any) ([]string, error) {
			called = true
			if headers["X-GitHub-Event"] != "push" {
				t.Fatalf("expected headers to be forwarded, got %#v", headers)
			}
			if payload["path"] != "orders.yml" {
				t.Fatalf("expected payload to be forwarded, got %#v", payload)
			}
			return []string{"orders"}, nil
		},
	}

	cmd := NewNotifyByPathCommand(svc)
	collector := gocmd.NewResult[[]string]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, NotifyByPathMessage{
		Headers: map[string]string{"X-GitHub-Event": "push"},
		Payload: map[string]any{"path": "orders.yml"},
	})
	if err != nil {
		t.Fatalf("execute notify by path: %v", err)
	}
	if !called {
		t.Fatalf("expected notify service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if strings.Join(result, ",") != "orders" {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestNotifyByPathCommand_RejectsMissingPayload(t *testing.T) {
	cmd := NewNotifyByPathCommand(stubNotifyService{
		notifyByPathFn: func(context.Context, map[string]string, map[string]any) ([]string, error) {
			t.Fatalf("service must not be called for invalid message")
			return nil, nil
		},
	})
	if err := cmd.Execute(context.Background(), NotifyByPathMessage{}); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestNotifyByFormCommand_StoresPartialResultOnError(t *testing.T) {
	publishErr := errors.New("publish refresh failed")
	cmd := NewNotifyByFormCommand(stubNotifyService{
		notifyByFormFn: func(_ context.Context, _ map[string]string, paths []string) ([]string, error) {
			if strings.Join(paths, ",") != "orders.yml,application.yml" {
				t.Fatalf("unexpected paths %v", paths)
			}
			return []string{"orders"}, publishErr
		},
	})
	collector := gocmd.NewResult[[]string]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, NotifyByFormMessage{Paths: []string{"orders.yml", "application.yml"}})
	if !errors.Is(err, publishErr) {
		t.Fatalf("expected publish error, got %v", err)
	}
	result, ok := collector.Load()
	if !ok || strings.Join(result, ",") != "orders" {
		t.Fatalf("expected published names to be stored, got %v", result)
	}
}

func TestRelayOutboxCommand_ExecuteDelegatesAndStoresStats(t *testing.T) {
	dispatcher := &stubDispatcher{stats: core.DispatchStats{Claimed: 3, Delivered: 2, Retried: 1}}
	cmd := NewRelayOutboxCommand(dispatcher)
	collector := gocmd.NewResult[core.DispatchStats]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	if err := cmd.Execute(ctx, RelayOutboxMessage{BatchSize: 10}); err != nil {
		t.Fatalf("execute relay: %v", err)
	}
	if dispatcher.batchSize != 10 {
		t.Fatalf("expected batch size 10, got %d", dispatcher.batchSize)
	}
	stats, ok := collector.Load()
	if !ok || stats.Delivered != 2 || stats.Retried != 1 {
		t.Fatalf("unexpected stats %#v", stats)
	}

	if err := cmd.Execute(context.Background(), RelayOutboxMessage{BatchSize: -1}); err == nil {
		t.Fatalf("expected negative batch size to be rejected")
	}
}

func TestAttachContextCommand_UpdatesTarget(t *testing.T) {
	target := &stubAttacher{}
	cmd := NewAttachContextCommand(target)
	if err := cmd.Execute(context.Background(), AttachContextMessage{ContextID: "config-server:8888"}); err != nil {
		t.Fatalf("execute attach: %v", err)
	}
	if target.id != "config-server:8888" {
		t.Fatalf("expected context id to be attached, got %q", target.id)
	}
	if err := cmd.Execute(context.Background(), AttachContextMessage{ContextID: " "}); err == nil {
		t.Fatalf("expected blank context id to be rejected")
	}
}
