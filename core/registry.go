package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Provider bundles the webhook handling for one source-repository host.
type Provider interface {
	ID() string
	Extractor() NotificationExtractor
}

type Registry interface {
	Register(provider Provider) error
	Get(providerID string) (Provider, bool)
	List() []Provider
}

// ProviderRegistry indexes providers by lower-cased id and remembers the
// order they were registered in, which is the order extractors are tried.
type ProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	order     []string
}

func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{providers: make(map[string]Provider)}
}

func (r *ProviderRegistry) Register(provider Provider) error {
	if provider == nil {
		return fmt.Errorf("core: provider is nil")
	}
	id := providerKey(provider.ID())
	if id == "" {
		return fmt.Errorf("core: provider id is required")
	}
	if provider.Extractor() == nil {
		return fmt.Errorf("core: provider %s has no extractor", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[id]; exists {
		return fmt.Errorf("core: provider already registered: %s", id)
	}
	r.providers[id] = provider
	r.order = append(r.order, id)
	return nil
}

func (r *ProviderRegistry) Get(providerID string) (Provider, bool) {
	id := providerKey(providerID)
	if id == "" {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.providers[id]
	return provider, ok
}

// List returns providers sorted by id.
func (r *ProviderRegistry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := append([]string(nil), r.order...)
	sort.Strings(ids)
	return r.collect(ids)
}

// Ordered returns providers in registration order.
func (r *ProviderRegistry) Ordered() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collect(r.order)
}

func (r *ProviderRegistry) collect(ids []string) []Provider {
	out := make([]Provider, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.providers[id])
	}
	return out
}

func providerKey(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
