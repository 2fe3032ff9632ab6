package monitor

import (
	"github.com/goliatone/go-config-monitor/core"
	"github.com/goliatone/go-config-monitor/extractors"
)

type Config = core.Config

type EndpointConfig = core.EndpointConfig

type Option = core.Option

type Monitor = core.Monitor

type MonitorDependencies = core.MonitorDependencies
type RefreshSignal = core.RefreshSignal
type RefreshPublisher = core.RefreshPublisher
type RefreshPublisherFunc = core.RefreshPublisherFunc
type NotificationExtractor = core.NotificationExtractor
type PropertyPathNotification = core.PropertyPathNotification
type Provider = core.Provider
type OutboxStore = core.OutboxStore
type OutboxRelayConfig = core.OutboxRelayConfig
type DispatchStats = core.DispatchStats

var (
	WithLogger          = core.WithLogger
	WithLoggerProvider  = core.WithLoggerProvider
	WithMetricsRecorder = core.WithMetricsRecorder
	WithErrorMapper     = core.WithErrorMapper
	WithConfigProvider  = core.WithConfigProvider
	WithOptionsResolver = core.WithOptionsResolver
	WithExtractor       = core.WithExtractor
	WithPublisher       = core.WithPublisher
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

// NewMonitor builds a monitor that recognizes every built-in provider unless
// an extractor option overrides it.
func NewMonitor(cfg Config, opts ...Option) (*Monitor, error) {
	withDefaults := make([]Option, 0, len(opts)+1)
	withDefaults = append(withDefaults, core.WithExtractor(DefaultExtractor()))
	withDefaults = append(withDefaults, opts...)
	return core.NewMonitor(cfg, withDefaults...)
}

// ResolveServiceNames previews the services one changed file maps to.
func ResolveServiceNames(path string) []string {
	return core.ResolveServiceNames(path).Values()
}

func DefaultExtractor() NotificationExtractor {
	return extractors.Default()
}
