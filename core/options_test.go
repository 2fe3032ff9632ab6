package core

import (
	"context"
	"errors"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

type fixedConfigProvider struct {
	cfg Config
}

func (p *fixedConfigProvider) Load(context.Context, Config) (Config, error) {
	return p.cfg, nil
}

type fixedOptionsResolver struct {
	cfg Config
}

func (r *fixedOptionsResolver) Resolve(Config, Config, Config) (Config, error) {
	return r.cfg, nil
}

func TestNewMonitor_DefaultDependencies(t *testing.T) {
	monitor, err := NewMonitor(Config{})
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	deps := monitor.Dependencies()
	if deps.Logger == nil {
		t.Fatalf("expected default logger")
	}
	if deps.LoggerProvider == nil {
		t.Fatalf("expected default logger provider")
	}
	if deps.ErrorMapper == nil {
		t.Fatalf("expected default error mapper")
	}
	if deps.ConfigProvider == nil {
		t.Fatalf("expected default config provider")
	}
	if deps.OptionsResolver == nil {
		t.Fatalf("expected default options resolver")
	}
	if deps.Publisher != nil || deps.Extractor != nil {
		t.Fatalf("expected no publisher or extractor by default")
	}
	cfg := monitor.Config()
	if cfg.ServiceName != "config-monitor" || cfg.Origin != DefaultOrigin {
		t.Fatalf("unexpected default config: %+v", cfg)
	}
	if cfg.MonitorRoute() != "/monitor" {
		t.Fatalf("expected /monitor route, got %q", cfg.MonitorRoute())
	}
}

func TestNewMonitor_WithXOverrides(t *testing.T) {
	customLogger := stubLogger{}
	customProvider := stubLoggerProvider{logger: customLogger}
	sentinel := errors.New("sentinel")
	customMapper := func(error) *goerrors.Error {
		return goerrors.Wrap(sentinel, goerrors.CategoryOperation, "mapped")
	}
	configProvider := &fixedConfigProvider{cfg: Config{ServiceName: "from-provider", Origin: "o"}}
	optionsResolver := &fixedOptionsResolver{cfg: Config{ServiceName: "resolved", Origin: "resolved-origin"}}
	publisher := &capturePublisher{}

	monitor, err := NewMonitor(Config{ServiceName: "runtime"},
		WithLogger(customLogger),
		WithLoggerProvider(customProvider),
		WithErrorMapper(customMapper),
		WithConfigProvider(configProvider),
		WithOptionsResolver(optionsResolver),
		WithMetricsRecorder(NopMetricsRecorder{}),
		WithPublisher(publisher),
		WithExtractor(pathListExtractor()),
	)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	deps := monitor.Dependencies()
	if deps.ConfigProvider != configProvider {
		t.Fatalf("expected custom config provider")
	}
	if deps.OptionsResolver != optionsResolver {
		t.Fatalf("expected custom options resolver")
	}
	if deps.Publisher != publisher {
		t.Fatalf("expected custom publisher")
	}
	if deps.Extractor == nil {
		t.Fatalf("expected custom extractor")
	}
	if monitor.Config().ServiceName != "resolved" || monitor.Config().Origin != "resolved-origin" {
		t.Fatalf("expected resolver config, got %+v", monitor.Config())
	}
	mapped := deps.ErrorMapper(errors.New("x"))
	if mapped == nil || !errors.Is(mapped, sentinel) {
		t.Fatalf("expected custom mapper to be retained")
	}
}

func TestNewMonitor_LayerPrecedence(t *testing.T) {
	loader := NewStaticConfigLoader(map[string]any{
		"origin":   "from-config",
		"endpoint": map[string]any{"path": "/hooks"},
	})
	monitor, err := NewMonitor(Config{Origin: "from-runtime"},
		WithLogger(stubLogger{}),
		WithConfigProvider(NewCfgxConfigProvider(loader)),
	)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	cfg := monitor.Config()
	if cfg.Origin != "from-runtime" {
		t.Fatalf("expected runtime origin to win, got %q", cfg.Origin)
	}
	if cfg.Endpoint.Path != "/hooks" {
		t.Fatalf("expected loaded endpoint path, got %q", cfg.Endpoint.Path)
	}
	if cfg.MonitorRoute() != "/hooks/monitor" {
		t.Fatalf("unexpected route %q", cfg.MonitorRoute())
	}
}

func TestNewMonitor_InvalidConfigMapsToBadInput(t *testing.T) {
	_, err := NewMonitor(Config{Endpoint: EndpointConfig{Path: "hooks"}}, WithLogger(stubLogger{}))
	if err == nil {
		t.Fatalf("expected validation error")
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		t.Fatalf("expected go-errors type, got %T", err)
	}
	if richErr.TextCode == "" {
		t.Fatalf("expected text code on build error")
	}
}
