package core

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

type OutboxRelayConfig struct {
	BatchSize      int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultOutboxRelayConfig() OutboxRelayConfig {
	return OutboxRelayConfig{
		BatchSize:      50,
		MaxAttempts:    5,
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     5 * time.Minute,
	}
}

// OutboxPublisher records refresh signals in an outbox instead of delivering
// them. An OutboxRelay forwards them later.
type OutboxPublisher struct {
	store OutboxStore
}

func NewOutboxPublisher(store OutboxStore) (*OutboxPublisher, error) {
	if store == nil {
		return nil, fmt.Errorf("core: outbox store is required")
	}
	return &OutboxPublisher{store: store}, nil
}

func (p *OutboxPublisher) PublishRefresh(ctx context.Context, signal RefreshSignal) error {
	if p == nil || p.store == nil {
		return fmt.Errorf("core: outbox publisher is not configured")
	}
	if strings.TrimSpace(signal.ID) == "" {
		return fmt.Errorf("core: refresh signal id is required")
	}
	return p.store.Enqueue(ctx, signal)
}

// OutboxRelay drains pending outbox entries into a delegate publisher,
// retrying failures with exponential backoff.
type OutboxRelay struct {
	store     OutboxStore
	publisher RefreshPublisher
	config    OutboxRelayConfig
	now       func() time.Time
}

func NewOutboxRelay(
	store OutboxStore,
	publisher RefreshPublisher,
	config OutboxRelayConfig,
) (*OutboxRelay, error) {
	if store == nil {
		return nil, fmt.Errorf("core: outbox store is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("core: relay publisher is required")
	}
	defaults := DefaultOutboxRelayConfig()
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = defaults.InitialBackoff
	}
	if config.MaxBackoff <= 0 {
		config.MaxBackoff = defaults.MaxBackoff
	}
	return &OutboxRelay{
		store:     store,
		publisher: publisher,
		config:    config,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (r *OutboxRelay) Store() OutboxStore {
	if r == nil {
		return nil
	}
	return r.store
}

func (r *OutboxRelay) DispatchPending(ctx context.Context, batchSize int) (DispatchStats, error) {
	if r == nil || r.store == nil || r.publisher == nil {
		return DispatchStats{}, fmt.Errorf("core: outbox relay is not configured")
	}
	limit := batchSize
	if limit <= 0 {
		limit = r.config.BatchSize
	}
	entries, err := r.store.ClaimBatch(ctx, limit)
	if err != nil {
		return DispatchStats{}, err
	}

	stats := DispatchStats{Claimed: len(entries)}
	var dispatchErr error
	for _, entry := range entries {
		signalID := strings.TrimSpace(entry.Signal.ID)
		if err := r.publisher.PublishRefresh(ctx, entry.Signal); err != nil {
			if retryErr := r.retry(ctx, entry, err); retryErr != nil {
				dispatchErr = errors.Join(dispatchErr, retryErr)
			}
			if entry.Attempts+1 >= r.config.MaxAttempts {
				stats.Failed++
			} else {
				stats.Retried++
			}
			dispatchErr = errors.Join(dispatchErr, publishError(err, entry.Signal.Destination))
			continue
		}
		if err := r.store.Ack(ctx, signalID); err != nil {
			dispatchErr = errors.Join(dispatchErr, err)
			continue
		}
		stats.Delivered++
	}
	return stats, dispatchErr
}

// retry schedules the next attempt. A zero next attempt time tells the store
// the entry has exhausted its attempts.
func (r *OutboxRelay) retry(ctx context.Context, entry OutboxEntry, cause error) error {
	attempt := entry.Attempts
	if attempt < 0 {
		attempt = 0
	}
	signalID := strings.TrimSpace(entry.Signal.ID)
	if attempt+1 >= r.config.MaxAttempts {
		return r.store.Retry(ctx, signalID, cause, time.Time{})
	}
	return r.store.Retry(ctx, signalID, cause, r.now().Add(r.nextBackoffDelay(attempt+1)))
}

func (r *OutboxRelay) nextBackoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(r.config.InitialBackoff)
	multiplier := math.Pow(2, float64(attempt-1))
	next := time.Duration(base * multiplier)
	if next < 0 {
		return r.config.MaxBackoff
	}
	if next > r.config.MaxBackoff {
		return r.config.MaxBackoff
	}
	return next
}

var (
	_ RefreshPublisher = (*OutboxPublisher)(nil)
	_ OutboxDispatcher = (*OutboxRelay)(nil)
)
