package ratelimit

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultMemoryBuckets = 1024

var errNilStateStore = fmt.Errorf("ratelimit: state store is nil")

// MemoryStateStore keeps the most recently touched buckets in a bounded LRU.
// State is lost on restart; use the SQL store to share it across replicas.
type MemoryStateStore struct {
	buckets *lru.Cache[Key, State]
}

func NewMemoryStateStore(size int) (*MemoryStateStore, error) {
	if size <= 0 {
		size = defaultMemoryBuckets
	}
	buckets, err := lru.New[Key, State](size)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: state cache: %w", err)
	}
	return &MemoryStateStore{buckets: buckets}, nil
}

func (s *MemoryStateStore) Get(_ context.Context, key Key) (State, error) {
	if s == nil || s.buckets == nil {
		return State{}, errNilStateStore
	}
	if state, ok := s.buckets.Get(NormalizeKey(key)); ok {
		return state, nil
	}
	return State{}, ErrStateNotFound
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil || s.buckets == nil {
		return errNilStateStore
	}
	state.Key = NormalizeKey(state.Key)
	s.buckets.Add(state.Key, state)
	return nil
}

func (s *MemoryStateStore) Len() int {
	if s == nil || s.buckets == nil {
		return 0
	}
	return s.buckets.Len()
}
