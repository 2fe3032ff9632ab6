package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	OutboxStatusPending   = "pending"
	OutboxStatusClaimed   = "claimed"
	OutboxStatusDelivered = "delivered"
	OutboxStatusFailed    = "failed"
)

type memoryOutboxRecord struct {
	signal        RefreshSignal
	status        string
	attempts      int
	nextAttemptAt time.Time
	lastError     string
	sequence      uint64
	updatedAt     time.Time
}

const (
	DefaultOutboxRetention  = 24 * time.Hour
	DefaultOutboxClaimLease = 5 * time.Minute
)

// MemoryOutboxStore keeps the outbox in process memory. Entries do not
// survive a restart. Delivered and failed entries are dropped once they are
// older than Retention; a claim not acked or retried within ClaimLease is
// handed out again.
type MemoryOutboxStore struct {
	Retention  time.Duration
	ClaimLease time.Duration

	mu       sync.Mutex
	records  map[string]*memoryOutboxRecord
	sequence uint64
	now      func() time.Time
}

func NewMemoryOutboxStore() *MemoryOutboxStore {
	return &MemoryOutboxStore{
		Retention:  DefaultOutboxRetention,
		ClaimLease: DefaultOutboxClaimLease,
		records:    map[string]*memoryOutboxRecord{},
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemoryOutboxStore) Enqueue(_ context.Context, signal RefreshSignal) error {
	if s == nil {
		return fmt.Errorf("core: outbox store is nil")
	}
	id := strings.TrimSpace(signal.ID)
	if id == "" {
		return fmt.Errorf("core: refresh signal id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.evictSettledLocked(now)
	if _, exists := s.records[id]; exists {
		return nil
	}
	s.sequence++
	s.records[id] = &memoryOutboxRecord{
		signal:        signal,
		status:        OutboxStatusPending,
		nextAttemptAt: now,
		sequence:      s.sequence,
		updatedAt:     now,
	}
	return nil
}

func (s *MemoryOutboxStore) ClaimBatch(_ context.Context, limit int) ([]OutboxEntry, error) {
	if s == nil {
		return nil, fmt.Errorf("core: outbox store is nil")
	}
	if limit <= 0 {
		limit = DefaultOutboxRelayConfig().BatchSize
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.evictSettledLocked(now)
	ready := make([]*memoryOutboxRecord, 0, len(s.records))
	for _, record := range s.records {
		if s.claimableLocked(record, now) {
			ready = append(ready, record)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		return ready[i].sequence < ready[j].sequence
	})
	if len(ready) > limit {
		ready = ready[:limit]
	}
	entries := make([]OutboxEntry, 0, len(ready))
	for _, record := range ready {
		record.status = OutboxStatusClaimed
		record.updatedAt = now
		entries = append(entries, OutboxEntry{Signal: record.signal, Attempts: record.attempts})
	}
	return entries, nil
}

func (s *MemoryOutboxStore) Ack(_ context.Context, signalID string) error {
	return s.update(signalID, func(record *memoryOutboxRecord) {
		record.status = OutboxStatusDelivered
		record.lastError = ""
	})
}

func (s *MemoryOutboxStore) Retry(_ context.Context, signalID string, cause error, nextAttemptAt time.Time) error {
	return s.update(signalID, func(record *memoryOutboxRecord) {
		record.attempts++
		if cause != nil {
			record.lastError = cause.Error()
		}
		if nextAttemptAt.IsZero() {
			record.status = OutboxStatusFailed
			return
		}
		record.status = OutboxStatusPending
		record.nextAttemptAt = nextAttemptAt.UTC()
	})
}

// Status reports the delivery state of a signal.
func (s *MemoryOutboxStore) Status(signalID string) (string, int, bool) {
	if s == nil {
		return "", 0, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[strings.TrimSpace(signalID)]
	if !ok {
		return "", 0, false
	}
	return record.status, record.attempts, true
}

// ListByStatus returns up to limit entries in the given status, oldest first.
func (s *MemoryOutboxStore) ListByStatus(_ context.Context, status string, limit int) ([]OutboxEntry, error) {
	if s == nil {
		return nil, fmt.Errorf("core: outbox store is nil")
	}
	if limit <= 0 {
		limit = DefaultOutboxRelayConfig().BatchSize
	}
	status = strings.TrimSpace(status)
	s.mu.Lock()
	defer s.mu.Unlock()
	matched := make([]*memoryOutboxRecord, 0, len(s.records))
	for _, record := range s.records {
		if record.status == status {
			matched = append(matched, record)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].sequence < matched[j].sequence
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	entries := make([]OutboxEntry, 0, len(matched))
	for _, record := range matched {
		entries = append(entries, OutboxEntry{Signal: record.signal, Attempts: record.attempts})
	}
	return entries, nil
}

func (s *MemoryOutboxStore) update(signalID string, mutate func(*memoryOutboxRecord)) error {
	if s == nil {
		return fmt.Errorf("core: outbox store is nil")
	}
	id := strings.TrimSpace(signalID)
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[id]
	if !ok {
		return fmt.Errorf("core: outbox signal not found: %s", id)
	}
	mutate(record)
	record.updatedAt = s.now()
	return nil
}

// claimableLocked reports whether record is due: pending past its next
// attempt, or claimed by a relay that never came back.
func (s *MemoryOutboxStore) claimableLocked(record *memoryOutboxRecord, now time.Time) bool {
	switch record.status {
	case OutboxStatusPending:
		return !record.nextAttemptAt.After(now)
	case OutboxStatusClaimed:
		return s.ClaimLease > 0 && now.Sub(record.updatedAt) >= s.ClaimLease
	default:
		return false
	}
}

func (s *MemoryOutboxStore) evictSettledLocked(now time.Time) {
	if s.Retention <= 0 {
		return
	}
	for id, record := range s.records {
		if record.status != OutboxStatusDelivered && record.status != OutboxStatusFailed {
			continue
		}
		if now.Sub(record.updatedAt) >= s.Retention {
			delete(s.records, id)
		}
	}
}

// Len reports how many entries the store holds, settled ones included.
func (s *MemoryOutboxStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

var _ OutboxStore = (*MemoryOutboxStore)(nil)
