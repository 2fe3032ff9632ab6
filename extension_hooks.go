package monitor

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-config-monitor/core"
	"github.com/goliatone/go-config-monitor/extractors"
	"github.com/goliatone/go-config-monitor/transport"
)

// ExtractorPack adds webhook providers for hosts the built-in extractors do
// not cover.
type ExtractorPack struct {
	Name      string
	Providers []core.Provider
}

// PublisherPack adds refresh publisher kinds to a transport registry.
type PublisherPack struct {
	Name      string
	Factories map[string]transport.PublisherFactory
}

type CommandQueryBundleFactory func(facade *Facade) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	extractorPacks map[string]ExtractorPack
	publisherPacks map[string]PublisherPack
	bundles        map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		extractorPacks: map[string]ExtractorPack{},
		publisherPacks: map[string]PublisherPack{},
		bundles:        map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterExtractorPack(pack ExtractorPack) error {
	if h == nil {
		return fmt.Errorf("monitor: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("monitor: extractor pack name is required")
	}
	if len(pack.Providers) == 0 {
		return fmt.Errorf("monitor: extractor pack %q has no providers", name)
	}

	normalized := ExtractorPack{
		Name:      name,
		Providers: append([]core.Provider(nil), pack.Providers...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.extractorPacks[name]; exists {
		return fmt.Errorf("monitor: extractor pack %q already registered", name)
	}
	h.extractorPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterPublisherPack(pack PublisherPack) error {
	if h == nil {
		return fmt.Errorf("monitor: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("monitor: publisher pack name is required")
	}
	if len(pack.Factories) == 0 {
		return fmt.Errorf("monitor: publisher pack %q has no factories", name)
	}

	factories := make(map[string]transport.PublisherFactory, len(pack.Factories))
	for kind, factory := range pack.Factories {
		kind = strings.TrimSpace(strings.ToLower(kind))
		if kind == "" || factory == nil {
			return fmt.Errorf("monitor: publisher pack %q has an invalid factory", name)
		}
		factories[kind] = factory
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.publisherPacks[name]; exists {
		return fmt.Errorf("monitor: publisher pack %q already registered", name)
	}
	h.publisherPacks[name] = PublisherPack{Name: name, Factories: factories}
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("monitor: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("monitor: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("monitor: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("monitor: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

func (h *ExtensionHooks) ApplyExtractorPacks(registry core.Registry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("monitor: registry is required")
	}

	for _, pack := range h.ExtractorPacks() {
		for _, provider := range pack.Providers {
			if provider == nil {
				return fmt.Errorf("monitor: extractor pack %q contains nil provider", pack.Name)
			}
			if err := registry.Register(provider); err != nil {
				return err
			}
		}
	}
	return nil
}

// Extractor combines the built-in providers with every registered pack. Pack
// providers are tried after the built-ins, in pack name order.
func (h *ExtensionHooks) Extractor() (NotificationExtractor, error) {
	registry := core.NewProviderRegistry()
	for _, provider := range extractors.Defaults() {
		if err := registry.Register(provider); err != nil {
			return nil, err
		}
	}
	if err := h.ApplyExtractorPacks(registry); err != nil {
		return nil, err
	}
	return ExtractorFor(registry.Ordered()...), nil
}

func (h *ExtensionHooks) ApplyPublisherPacks(registry *transport.Registry) error {
	if h == nil {
		return nil
	}
	if registry == nil {
		return fmt.Errorf("monitor: publisher registry is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.publisherPacks))
	for name := range h.publisherPacks {
		names = append(names, name)
	}
	packs := make(map[string]PublisherPack, len(h.publisherPacks))
	for name, pack := range h.publisherPacks {
		packs[name] = pack
	}
	h.mu.RUnlock()
	sort.Strings(names)

	for _, name := range names {
		kinds := make([]string, 0, len(packs[name].Factories))
		for kind := range packs[name].Factories {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			if err := registry.RegisterFactory(kind, packs[name].Factories[kind]); err != nil {
				return fmt.Errorf("monitor: publisher pack %q: %w", name, err)
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(facade *Facade) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if facade == nil {
		return nil, fmt.Errorf("monitor: facade is required")
	}

	h.mu.RLock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](facade)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) ExtractorPacks() []ExtractorPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.extractorPacks))
	for name := range h.extractorPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ExtractorPack, 0, len(names))
	for _, name := range names {
		pack := h.extractorPacks[name]
		out = append(out, ExtractorPack{
			Name:      pack.Name,
			Providers: append([]core.Provider(nil), pack.Providers...),
		})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
