package core

import (
	"strings"
	"testing"
)

func providerIDs(providers []Provider) string {
	ids := make([]string, 0, len(providers))
	for _, provider := range providers {
		ids = append(ids, provider.ID())
	}
	return strings.Join(ids, ",")
}

func TestProviderRegistry_ListSortedOrderedKeepsRegistration(t *testing.T) {
	registry := NewProviderRegistry()
	for _, id := range []string{"gitlab", "bitbucket", "github"} {
		if err := registry.Register(testProvider{id: id}); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}

	if got := providerIDs(registry.List()); got != "bitbucket,github,gitlab" {
		t.Fatalf("unexpected sorted list %s", got)
	}
	if got := providerIDs(registry.Ordered()); got != "gitlab,bitbucket,github" {
		t.Fatalf("unexpected registration order %s", got)
	}
}

func TestProviderRegistry_RejectsDuplicatesAndBlankIDs(t *testing.T) {
	registry := NewProviderRegistry()
	if err := registry.Register(testProvider{id: "github"}); err != nil {
		t.Fatalf("register provider: %v", err)
	}
	if err := registry.Register(testProvider{id: " GitHub "}); err == nil {
		t.Fatalf("expected case-insensitive duplicate to fail")
	}
	if err := registry.Register(testProvider{id: " "}); err == nil {
		t.Fatalf("expected blank id to fail")
	}
	if err := registry.Register(nil); err == nil {
		t.Fatalf("expected nil provider to fail")
	}
	if _, ok := registry.Get("GITHUB"); !ok {
		t.Fatalf("expected case-insensitive lookup")
	}
	if _, ok := registry.Get(""); ok {
		t.Fatalf("expected blank lookup to miss")
	}
}
