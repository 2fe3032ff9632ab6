package core

import (
	"context"
	"sync"
	"testing"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type testProvider struct {
	id        string
	extractor NotificationExtractor
}

func (p testProvider) ID() string { return p.id }

func (p testProvider) Extractor() NotificationExtractor {
	if p.extractor != nil {
		return p.extractor
	}
	return NotificationExtractorFunc(func(map[string]string, map[string]any) (PropertyPathNotification, bool) {
		return PropertyPathNotification{}, false
	})
}

type capturePublisher struct {
	mu      sync.Mutex
	signals []RefreshSignal
	failFor map[string]error
}

func (p *capturePublisher) PublishRefresh(_ context.Context, signal RefreshSignal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err, ok := p.failFor[signal.Destination]; ok {
		return err
	}
	p.signals = append(p.signals, signal)
	return nil
}

func (p *capturePublisher) destinations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.signals))
	for _, signal := range p.signals {
		out = append(out, signal.Destination)
	}
	return out
}

// pathListExtractor recognizes payloads carrying a "files" list.
func pathListExtractor() NotificationExtractor {
	return NotificationExtractorFunc(func(_ map[string]string, payload map[string]any) (PropertyPathNotification, bool) {
		raw, ok := payload["files"].([]any)
		if !ok {
			return PropertyPathNotification{}, false
		}
		paths := make([]string, 0, len(raw))
		for _, item := range raw {
			if path, ok := item.(string); ok {
				paths = append(paths, path)
			}
		}
		return NewPropertyPathNotification(paths...), true
	})
}

func newTestMonitor(t *testing.T, opts ...Option) *Monitor {
	t.Helper()
	base := []Option{WithLogger(stubLogger{}), WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}})}
	monitor, err := NewMonitor(Config{}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	return monitor
}

func assertNames(t *testing.T, got []string, want ...string) {
	t.Helper()
	if got == nil {
		t.Fatalf("expected non-nil result")
	}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for idx := range want {
		if got[idx] != want[idx] {
			t.Fatalf("unexpected name at index %d: got %v want %v", idx, got, want)
		}
	}
}
