package transport

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-config-monitor/core"
	"github.com/goliatone/go-config-monitor/ratelimit"
)

// PublisherFactory builds a publisher from its bus configuration block.
type PublisherFactory func(config map[string]any) (core.RefreshPublisher, error)

type Registry struct {
	mu        sync.RWMutex
	factories map[string]PublisherFactory
}

func NewRegistry() *Registry {
	return &Registry{
		factories: map[string]PublisherFactory{},
	}
}

// DefaultOption adjusts the factories installed by NewDefaultRegistry.
type DefaultOption func(*defaultFactories)

type defaultFactories struct {
	throttle ratelimit.StateStore
}

// WithThrottleStore makes REST publishers share one throttle state store
// instead of each keeping an in-memory one.
func WithThrottleStore(store ratelimit.StateStore) DefaultOption {
	return func(d *defaultFactories) {
		d.throttle = store
	}
}

// NewDefaultRegistry knows the log, rest and redis bus kinds.
func NewDefaultRegistry(logger core.Logger, opts ...DefaultOption) *Registry {
	defaults := defaultFactories{}
	for _, opt := range opts {
		if opt != nil {
			opt(&defaults)
		}
	}
	registry := NewRegistry()
	_ = registry.RegisterFactory(KindLog, func(map[string]any) (core.RefreshPublisher, error) {
		return NewLogPublisher(logger), nil
	})
	_ = registry.RegisterFactory(KindREST, defaults.restPublisher)
	_ = registry.RegisterFactory(KindRedis, redisPublisherFactory)
	return registry
}

func (r *Registry) RegisterFactory(kind string, factory PublisherFactory) error {
	if r == nil {
		return fmt.Errorf("transport: registry is nil")
	}
	kind = normalizeKind(kind)
	if kind == "" {
		return fmt.Errorf("transport: publisher kind is required")
	}
	if factory == nil {
		return fmt.Errorf("transport: publisher factory is nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("transport: publisher kind %q already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

func (r *Registry) Build(kind string, config map[string]any) (core.RefreshPublisher, error) {
	if r == nil {
		return nil, fmt.Errorf("transport: registry is nil")
	}
	kind = normalizeKind(kind)
	if kind == "" {
		return nil, fmt.Errorf("transport: publisher kind is required")
	}

	r.mu.RLock()
	factory := r.factories[kind]
	r.mu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("transport: publisher kind %q not registered", kind)
	}
	built, err := factory(cloneMap(config))
	if err != nil {
		return nil, err
	}
	if built == nil {
		return nil, fmt.Errorf("transport: factory for %q returned nil publisher", kind)
	}
	return built, nil
}

// BuildAll builds every kind in order with its own configuration block. A
// single kind is returned as is; several are wrapped in a FanoutPublisher.
func (r *Registry) BuildAll(kinds []string, configs map[string]map[string]any) (core.RefreshPublisher, error) {
	publishers := make([]core.RefreshPublisher, 0, len(kinds))
	seen := map[string]struct{}{}
	for _, kind := range kinds {
		kind = normalizeKind(kind)
		if kind == "" {
			continue
		}
		if _, ok := seen[kind]; ok {
			continue
		}
		seen[kind] = struct{}{}
		publisher, err := r.Build(kind, configs[kind])
		if err != nil {
			return nil, err
		}
		publishers = append(publishers, publisher)
	}
	switch len(publishers) {
	case 0:
		return nil, fmt.Errorf("transport: at least one publisher kind is required")
	case 1:
		return publishers[0], nil
	default:
		return NewFanoutPublisher(publishers...), nil
	}
}

func (r *Registry) Kinds() []string {
	if r == nil {
		return []string{}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func (d defaultFactories) restPublisher(config map[string]any) (core.RefreshPublisher, error) {
	baseURL := stringValue(config, "base_url")
	if baseURL == "" {
		return nil, fmt.Errorf("transport: rest publisher requires base_url")
	}
	publisher := NewBusRESTPublisher(baseURL, nil)
	if path := stringValue(config, "path"); path != "" {
		publisher.Path = path
	}
	if timeout := stringValue(config, "timeout"); timeout != "" {
		parsed, err := time.ParseDuration(timeout)
		if err != nil {
			return nil, fmt.Errorf("transport: invalid rest publisher timeout %q: %w", timeout, err)
		}
		publisher.Timeout = parsed
	}
	if throttle := stringValue(config, "throttle"); throttle == "" || throttle == "true" {
		store := d.throttle
		if store == nil {
			memory, err := ratelimit.NewMemoryStateStore(0)
			if err != nil {
				return nil, err
			}
			store = memory
		}
		publisher.Policy = ratelimit.NewAdaptivePolicy(store)
	}
	return publisher, nil
}

func redisPublisherFactory(config map[string]any) (core.RefreshPublisher, error) {
	addr := stringValue(config, "addr")
	if addr == "" {
		return nil, fmt.Errorf("transport: redis publisher requires addr")
	}
	db := 0
	if raw := stringValue(config, "db"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("transport: invalid redis db %q: %w", raw, err)
		}
		db = parsed
	}
	client := NewRedisClient(addr, stringValue(config, "password"), db)
	return NewRedisPublisher(client, stringValue(config, "channel")), nil
}

func stringValue(config map[string]any, key string) string {
	value, ok := config[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func normalizeKind(kind string) string {
	return strings.TrimSpace(strings.ToLower(kind))
}

func cloneMap(input map[string]any) map[string]any {
	if len(input) == 0 {
		return map[string]any{}
	}
	output := make(map[string]any, len(input))
	for key, value := range input {
		output[key] = value
	}
	return output
}
