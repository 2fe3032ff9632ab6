package core

import (
	"context"
	"strings"
	"sync/atomic"

	glog "github.com/goliatone/go-logger/glog"
	"github.com/google/uuid"
)

// Monitor turns changed-file notifications into refresh signals. It is safe
// for concurrent use; the publisher and the context identifier may be swapped
// while requests are in flight.
type Monitor struct {
	config          Config
	logger          Logger
	loggerProvider  LoggerProvider
	metricsRecorder MetricsRecorder
	errorMapper     ErrorMapper
	configProvider  ConfigProvider
	optionsResolver OptionsResolver
	extractor       NotificationExtractor

	publisher atomic.Value
	contextID atomic.Value
}

type MonitorDependencies struct {
	Logger          Logger
	LoggerProvider  LoggerProvider
	MetricsRecorder MetricsRecorder
	ErrorMapper     ErrorMapper
	ConfigProvider  ConfigProvider
	OptionsResolver OptionsResolver
	Extractor       NotificationExtractor
	Publisher       RefreshPublisher
}

// atomic.Value needs a single concrete type across stores.
type publisherSlot struct {
	publisher RefreshPublisher
}

func NewMonitor(cfg Config, opts ...Option) (*Monitor, error) {
	builder := defaultMonitorBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve("config-monitor", builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger("config-monitor"); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	monitor := &Monitor{
		config:          finalConfig,
		logger:          logger,
		loggerProvider:  provider,
		metricsRecorder: builder.metricsRecorder,
		errorMapper:     builder.errorMapper,
		configProvider:  builder.configProvider,
		optionsResolver: builder.optionsResolver,
		extractor:       builder.extractor,
	}
	monitor.publisher.Store(publisherSlot{publisher: builder.publisher})

	contextID := strings.TrimSpace(finalConfig.ContextID)
	if contextID == "" {
		contextID = uuid.NewString()
	}
	monitor.contextID.Store(contextID)
	return monitor, nil
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (m *Monitor) Config() Config {
	if m == nil {
		return Config{}
	}
	return m.config
}

func (m *Monitor) Dependencies() MonitorDependencies {
	if m == nil {
		return MonitorDependencies{}
	}
	return MonitorDependencies{
		Logger:          m.logger,
		LoggerProvider:  m.loggerProvider,
		MetricsRecorder: m.metricsRecorder,
		ErrorMapper:     m.errorMapper,
		ConfigProvider:  m.configProvider,
		OptionsResolver: m.optionsResolver,
		Extractor:       m.extractor,
		Publisher:       m.Publisher(),
	}
}

// AttachPublisher replaces the refresh publisher. A nil publisher turns
// notifications into no-ops.
func (m *Monitor) AttachPublisher(publisher RefreshPublisher) {
	if m == nil {
		return
	}
	m.publisher.Store(publisherSlot{publisher: publisher})
}

func (m *Monitor) DetachPublisher() {
	m.AttachPublisher(nil)
}

func (m *Monitor) Publisher() RefreshPublisher {
	if m == nil {
		return nil
	}
	slot, _ := m.publisher.Load().(publisherSlot)
	return slot.publisher
}

// AttachContext records the identifier of the hosting process context. Blank
// identifiers are ignored.
func (m *Monitor) AttachContext(id string) {
	if m == nil {
		return
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return
	}
	m.contextID.Store(id)
}

func (m *Monitor) ContextID() string {
	if m == nil {
		return ""
	}
	id, _ := m.contextID.Load().(string)
	return id
}

// Resolve previews the service names a set of paths maps to without
// publishing anything.
func (m *Monitor) Resolve(_ context.Context, paths []string) []string {
	return AccumulateServiceNames(paths).Values()
}

// NotifyByPath extracts changed paths from a provider webhook and signals every
// affected service. Unrecognized payloads produce an empty result.
func (m *Monitor) NotifyByPath(
	ctx context.Context,
	headers map[string]string,
	payload map[string]any,
) (services []string, err error) {
	op := startNotify("notify_by_path", SurfaceWebhook)
	defer func() { m.finish(ctx, op, services, err) }()

	if m == nil || m.extractor == nil {
		op.set("recognized", false)
		return []string{}, nil
	}
	notification, ok := m.extractor.Extract(headers, payload)
	op.set("recognized", ok)
	if !ok {
		return []string{}, nil
	}
	op.set("paths", notification.Paths)
	return m.notify(ctx, notification)
}

// NotifyByForm signals the services for paths posted as repeated form fields.
func (m *Monitor) NotifyByForm(
	ctx context.Context,
	_ map[string]string,
	paths []string,
) (services []string, err error) {
	op := startNotify("notify_by_form", SurfaceForm)
	op.set("paths", paths)
	defer func() { m.finish(ctx, op, services, err) }()
	if m == nil {
		return []string{}, nil
	}
	return m.notify(ctx, NewPropertyPathNotification(paths...))
}

func (m *Monitor) notify(ctx context.Context, notification PropertyPathNotification) ([]string, error) {
	names := AccumulateServiceNames(notification.Paths)
	publisher := m.Publisher()
	if publisher == nil {
		return []string{}, nil
	}
	published, err := DispatchRefresh(ctx, names, m.config.Origin, m.ContextID(), publisher)
	for _, name := range published {
		m.announceRefresh(ctx, name)
	}
	return published, err
}

var _ ResolveService = (*Monitor)(nil)
