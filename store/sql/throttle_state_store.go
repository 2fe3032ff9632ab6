package sqlstore

import (
	"context"
	"fmt"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-config-monitor/ratelimit"
)

// ThrottleStateStore persists REST throttling windows in
// config_monitor_throttle_state so a restarted or second monitor keeps
// honoring a bus endpoint's Retry-After.
type ThrottleStateStore struct {
	db   *bun.DB
	repo repository.Repository[*throttleStateRecord]
	now  func() time.Time
}

func NewThrottleStateStore(db *bun.DB) (*ThrottleStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*throttleStateRecord](db, throttleStateHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid throttle state repository wiring: %w", err)
		}
	}
	return &ThrottleStateStore{
		db:   db,
		repo: repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

func (s *ThrottleStateStore) Get(ctx context.Context, key ratelimit.Key) (ratelimit.State, error) {
	if s == nil || s.repo == nil {
		return ratelimit.State{}, fmt.Errorf("sqlstore: throttle state store is not configured")
	}
	key = ratelimit.NormalizeKey(key)
	if err := validateThrottleKey(key); err != nil {
		return ratelimit.State{}, err
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("transport", "=", key.Transport),
		repository.SelectBy("target", "=", key.Target),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return ratelimit.State{}, err
	}
	if len(records) == 0 {
		return ratelimit.State{}, ratelimit.ErrStateNotFound
	}
	return records[0].toState(), nil
}

// Upsert keeps one row per (transport, target).
func (s *ThrottleStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: throttle state store is not configured")
	}
	state.Key = ratelimit.NormalizeKey(state.Key)
	if err := validateThrottleKey(state.Key); err != nil {
		return err
	}
	now := s.now()
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = now
	}

	record := &throttleStateRecord{
		ID:             uuid.NewString(),
		Transport:      state.Key.Transport,
		Target:         state.Key.Target,
		Limit:          state.Limit,
		Remaining:      state.Remaining,
		ResetAt:        utcPointer(state.ResetAt),
		ThrottledUntil: utcPointer(state.ThrottledUntil),
		LastStatus:     state.LastStatus,
		Attempts:       state.Attempts,
		CreatedAt:      now,
		UpdatedAt:      state.UpdatedAt.UTC(),
	}
	if state.RetryAfter != nil && *state.RetryAfter > 0 {
		ms := state.RetryAfter.Milliseconds()
		record.RetryAfterMS = &ms
	}

	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (transport, target) DO UPDATE").
		Set("limit_value = EXCLUDED.limit_value").
		Set("remaining = EXCLUDED.remaining").
		Set("reset_at = EXCLUDED.reset_at").
		Set("retry_after_ms = EXCLUDED.retry_after_ms").
		Set("throttled_until = EXCLUDED.throttled_until").
		Set("last_status = EXCLUDED.last_status").
		Set("attempts = EXCLUDED.attempts").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (r *throttleStateRecord) toState() ratelimit.State {
	state := ratelimit.State{
		Key:            ratelimit.Key{Transport: r.Transport, Target: r.Target},
		Limit:          r.Limit,
		Remaining:      r.Remaining,
		ResetAt:        utcPointer(r.ResetAt),
		ThrottledUntil: utcPointer(r.ThrottledUntil),
		LastStatus:     r.LastStatus,
		Attempts:       r.Attempts,
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
	if r.RetryAfterMS != nil && *r.RetryAfterMS > 0 {
		retryAfter := time.Duration(*r.RetryAfterMS) * time.Millisecond
		state.RetryAfter = &retryAfter
	}
	return state
}

func validateThrottleKey(key ratelimit.Key) error {
	if key.Transport == "" {
		return fmt.Errorf("sqlstore: throttle transport is required")
	}
	if key.Target == "" {
		return fmt.Errorf("sqlstore: throttle target is required")
	}
	return nil
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	utc := value.UTC()
	return &utc
}
