package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	repositorycache "github.com/goliatone/go-repository-cache/cache"

	"github.com/goliatone/go-config-monitor/ratelimit"
)

const throttleStateCacheKeyPrefix = "config-monitor::throttle_state::v1"

// CachedThrottleStateStore reads throttle state through a go-repository-cache
// service and drops the cached bucket on every write. The REST publisher
// checks state before each call, so most reads hit the cache.
type CachedThrottleStateStore struct {
	base  ratelimit.StateStore
	cache repositorycache.CacheService
}

func NewCachedThrottleStateStore(
	base ratelimit.StateStore,
	cacheService repositorycache.CacheService,
) (*CachedThrottleStateStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base throttle state store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: throttle cache service is required")
	}
	return &CachedThrottleStateStore{base: base, cache: cacheService}, nil
}

// NewThrottleCacheService builds the default go-repository-cache service used
// in front of the SQL throttle store.
func NewThrottleCacheService() (repositorycache.CacheService, error) {
	return repositorycache.NewCacheService(repositorycache.DefaultConfig())
}

// ThrottleStateCacheKey is
// config-monitor::throttle_state::v1::<transport>::<target>, with both
// segments path-escaped after normalization.
func ThrottleStateCacheKey(key ratelimit.Key) (string, error) {
	key = ratelimit.NormalizeKey(key)
	if err := validateThrottleKey(key); err != nil {
		return "", err
	}
	return strings.Join([]string{
		throttleStateCacheKeyPrefix,
		url.PathEscape(key.Transport),
		url.PathEscape(key.Target),
	}, "::"), nil
}

func (s *CachedThrottleStateStore) Get(ctx context.Context, key ratelimit.Key) (ratelimit.State, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return ratelimit.State{}, fmt.Errorf("sqlstore: cached throttle state store is not configured")
	}
	key = ratelimit.NormalizeKey(key)
	cacheKey, err := ThrottleStateCacheKey(key)
	if err != nil {
		return ratelimit.State{}, err
	}
	state, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (ratelimit.State, error) {
		return s.base.Get(ctx, key)
	})
	if err != nil {
		return ratelimit.State{}, err
	}
	return copyThrottleState(state), nil
}

func (s *CachedThrottleStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached throttle state store is not configured")
	}
	state.Key = ratelimit.NormalizeKey(state.Key)
	cacheKey, err := ThrottleStateCacheKey(state.Key)
	if err != nil {
		return err
	}
	if err := s.base.Upsert(ctx, state); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

func copyThrottleState(state ratelimit.State) ratelimit.State {
	copied := state
	copied.ResetAt = utcPointer(state.ResetAt)
	copied.ThrottledUntil = utcPointer(state.ThrottledUntil)
	if state.RetryAfter != nil {
		retryAfter := *state.RetryAfter
		copied.RetryAfter = &retryAfter
	}
	return copied
}
