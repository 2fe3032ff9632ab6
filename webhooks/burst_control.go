package webhooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/goliatone/go-config-monitor/core"
)

// BurstMode decides what happens to a push that repeats inside the window.
// Coalesce keeps the window anchored on the first push; debounce slides it
// forward on every repeat.
type BurstMode string

const (
	BurstModeNone     BurstMode = "none"
	BurstModeCoalesce BurstMode = "coalesce"
	BurstModeDebounce BurstMode = "debounce"
)

const (
	defaultBurstWindow     = 2 * time.Second
	defaultBurstMaxEntries = 4096
)

type BurstDecision struct {
	Allow    bool
	Metadata map[string]any
}

type BurstController interface {
	Allow(ctx context.Context, req core.InboundRequest) (BurstDecision, error)
}

// BurstKeyExtractor names the push a request carries. Returning false lets
// the request through unconditionally.
type BurstKeyExtractor func(req core.InboundRequest) (string, bool)

type BurstOptions struct {
	Mode       BurstMode
	Window     time.Duration
	MaxEntries int
	ExtractKey BurstKeyExtractor
	Now        func() time.Time
}

// DefaultBurstController suppresses repeated pushes per key. Keys live in a
// bounded LRU so a flood of distinct pushes cannot grow memory.
type DefaultBurstController struct {
	mode       BurstMode
	window     time.Duration
	extractKey BurstKeyExtractor
	now        func() time.Time

	mu   sync.Mutex
	seen *lru.Cache[string, time.Time]
}

func NewBurstController(opts BurstOptions) (*DefaultBurstController, error) {
	if opts.Window <= 0 {
		opts.Window = defaultBurstWindow
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = defaultBurstMaxEntries
	}
	if opts.ExtractKey == nil {
		opts.ExtractKey = DefaultBurstKeyExtractor
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	seen, err := lru.New[string, time.Time](opts.MaxEntries)
	if err != nil {
		return nil, fmt.Errorf("webhooks: burst cache: %w", err)
	}
	return &DefaultBurstController{
		mode:       parseBurstMode(opts.Mode),
		window:     opts.Window,
		extractKey: opts.ExtractKey,
		now:        opts.Now,
		seen:       seen,
	}, nil
}

func (c *DefaultBurstController) Allow(_ context.Context, req core.InboundRequest) (BurstDecision, error) {
	if c == nil || c.mode == BurstModeNone {
		return BurstDecision{Allow: true}, nil
	}
	key, ok := c.extractKey(req)
	if key = strings.TrimSpace(key); !ok || key == "" {
		return BurstDecision{Allow: true}, nil
	}
	if !c.repeated(key, c.now().UTC()) {
		return BurstDecision{Allow: true}, nil
	}
	return BurstDecision{Metadata: c.suppressed(key)}, nil
}

// repeated records key at now and reports whether it was already seen inside
// the window.
func (c *DefaultBurstController) repeated(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	last, ok := c.seen.Get(key)
	inWindow := ok && now.Sub(last) < c.window
	if !inWindow || c.mode == BurstModeDebounce {
		c.seen.Add(key, now)
	}
	return inWindow
}

func (c *DefaultBurstController) suppressed(key string) map[string]any {
	metadata := map[string]any{
		"burst_mode":      string(c.mode),
		"burst_key":       key,
		"burst_window_ms": c.window.Milliseconds(),
	}
	if c.mode == BurstModeDebounce {
		metadata["debounced"] = true
	} else {
		metadata["coalesced"] = true
	}
	return metadata
}

func (c *DefaultBurstController) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seen.Len()
}

// DefaultBurstKeyExtractor keys a request by provider plus either an explicit
// burst_key metadata value, a digest of the JSON body, or a digest of the
// sorted form paths. Identical redeliveries share a key; distinct pushes do not.
func DefaultBurstKeyExtractor(req core.InboundRequest) (string, bool) {
	provider := strings.ToLower(strings.TrimSpace(req.ProviderID))
	if provider == "" {
		return "", false
	}
	if explicit, ok := req.Metadata["burst_key"].(string); ok && strings.TrimSpace(explicit) != "" {
		return provider + ":" + strings.ToLower(strings.TrimSpace(explicit)), true
	}
	switch {
	case len(req.Body) > 0:
		return provider + ":" + digest(req.Body), true
	case len(req.Form["path"]) > 0:
		paths := append([]string(nil), req.Form["path"]...)
		sort.Strings(paths)
		return provider + ":form:" + digest([]byte(strings.Join(paths, "\n"))), true
	default:
		return "", false
	}
}

func digest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func parseBurstMode(mode BurstMode) BurstMode {
	switch normalized := BurstMode(strings.ToLower(strings.TrimSpace(string(mode)))); normalized {
	case BurstModeCoalesce, BurstModeDebounce:
		return normalized
	default:
		return BurstModeNone
	}
}

var _ BurstController = (*DefaultBurstController)(nil)
