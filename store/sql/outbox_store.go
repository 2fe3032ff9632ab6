package sqlstore

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-config-monitor/core"
)

// OutboxStore keeps refresh signals in config_monitor_refresh_outbox until a
// relay acknowledges them. A row left claimed for longer than ClaimLease,
// because its relay died before ack or retry, is claimable again.
type OutboxStore struct {
	ClaimLease time.Duration

	db   *bun.DB
	repo repository.Repository[*refreshOutboxRecord]
	now  func() time.Time
}

func NewOutboxStore(db *bun.DB) (*OutboxStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*refreshOutboxRecord](db, outboxHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid outbox repository wiring: %w", err)
		}
	}
	return &OutboxStore{
		ClaimLease: core.DefaultOutboxClaimLease,
		db:         db,
		repo:       repo,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// Enqueue stores the signal once; a second enqueue of the same signal id is
// ignored.
func (s *OutboxStore) Enqueue(ctx context.Context, signal core.RefreshSignal) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: outbox store is not configured")
	}
	if strings.TrimSpace(signal.ID) == "" {
		return fmt.Errorf("sqlstore: outbox signal id is required")
	}
	if strings.TrimSpace(signal.Destination) == "" {
		return fmt.Errorf("sqlstore: outbox destination is required")
	}

	now := s.now()
	occurredAt := signal.OccurredAt.UTC()
	if signal.OccurredAt.IsZero() {
		occurredAt = now
	}
	record := &refreshOutboxRecord{
		ID:          uuid.NewString(),
		SignalID:    strings.TrimSpace(signal.ID),
		Origin:      strings.TrimSpace(signal.Origin),
		ContextID:   strings.TrimSpace(signal.ContextID),
		Destination: strings.TrimSpace(signal.Destination),
		Status:      core.OutboxStatusPending,
		LastError:   "",
		OccurredAt:  occurredAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (signal_id) DO NOTHING").
		Exec(ctx)
	return err
}

func (s *OutboxStore) ClaimBatch(ctx context.Context, limit int) ([]core.OutboxEntry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: outbox store is not configured")
	}
	if limit <= 0 {
		limit = 1
	}
	now := s.now()
	// zero cutoff disables reclaiming
	var staleBefore time.Time
	if s.ClaimLease > 0 {
		staleBefore = now.Add(-s.ClaimLease)
	}
	var records []refreshOutboxRecord
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		query := `
WITH claimed AS (
	SELECT id
	FROM config_monitor_refresh_outbox
	WHERE (status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?))
	   OR (status = ? AND updated_at <= ?)
	ORDER BY occurred_at ASC, created_at ASC
	LIMIT ?
)
UPDATE config_monitor_refresh_outbox
SET status = ?, updated_at = ?
WHERE id IN (SELECT id FROM claimed)
  AND (status = ? OR (status = ? AND updated_at <= ?))
RETURNING
	id,
	signal_id,
	origin,
	context_id,
	destination,
	status,
	attempts,
	next_attempt_at,
	last_error,
	occurred_at,
	created_at,
	updated_at
`
		return tx.NewRaw(
			query,
			core.OutboxStatusPending,
			now,
			core.OutboxStatusClaimed,
			staleBefore,
			limit,
			core.OutboxStatusClaimed,
			now,
			core.OutboxStatusPending,
			core.OutboxStatusClaimed,
			staleBefore,
		).Scan(ctx, &records)
	})
	if err != nil {
		return nil, err
	}

	sortOutboxRecords(records)
	entries := make([]core.OutboxEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, outboxRecordToEntry(record))
	}
	return entries, nil
}

func (s *OutboxStore) Ack(ctx context.Context, signalID string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: outbox store is not configured")
	}
	signalID = strings.TrimSpace(signalID)
	if signalID == "" {
		return fmt.Errorf("sqlstore: signal id is required")
	}
	_, err := s.db.NewUpdate().
		Model((*refreshOutboxRecord)(nil)).
		Set("status = ?", core.OutboxStatusDelivered).
		Set("last_error = ?", "").
		Set("next_attempt_at = NULL").
		Set("updated_at = ?", s.now()).
		Where("signal_id = ?", signalID).
		Exec(ctx)
	return err
}

// Retry returns the signal to pending for nextAttemptAt, or marks it failed
// when nextAttemptAt is zero.
func (s *OutboxStore) Retry(ctx context.Context, signalID string, cause error, nextAttemptAt time.Time) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: outbox store is not configured")
	}
	signalID = strings.TrimSpace(signalID)
	if signalID == "" {
		return fmt.Errorf("sqlstore: signal id is required")
	}
	status := core.OutboxStatusPending
	var next *time.Time
	if !nextAttemptAt.IsZero() {
		nextValue := nextAttemptAt.UTC()
		next = &nextValue
	} else {
		status = core.OutboxStatusFailed
	}

	lastError := ""
	if cause != nil {
		lastError = strings.TrimSpace(cause.Error())
	}
	_, err := s.db.NewUpdate().
		Model((*refreshOutboxRecord)(nil)).
		Set("status = ?", status).
		Set("attempts = attempts + 1").
		Set("next_attempt_at = ?", next).
		Set("last_error = ?", lastError).
		Set("updated_at = ?", s.now()).
		Where("signal_id = ?", signalID).
		Exec(ctx)
	return err
}

// ListByStatus returns up to limit entries in the given status, oldest first.
func (s *OutboxStore) ListByStatus(ctx context.Context, status string, limit int) ([]core.OutboxEntry, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: outbox store is not configured")
	}
	if limit <= 0 {
		limit = 50
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("status", "=", strings.TrimSpace(status)),
		repository.OrderBy("occurred_at ASC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, err
	}
	entries := make([]core.OutboxEntry, 0, len(records))
	for _, record := range records {
		if record == nil {
			continue
		}
		entries = append(entries, outboxRecordToEntry(*record))
	}
	return entries, nil
}

func outboxRecordToEntry(record refreshOutboxRecord) core.OutboxEntry {
	return core.OutboxEntry{
		Signal: core.RefreshSignal{
			ID:          record.SignalID,
			Origin:      record.Origin,
			ContextID:   record.ContextID,
			Destination: record.Destination,
			OccurredAt:  record.OccurredAt,
		},
		Attempts: record.Attempts,
	}
}

// RETURNING does not guarantee the CTE order.
func sortOutboxRecords(records []refreshOutboxRecord) {
	slices.SortStableFunc(records, func(a, b refreshOutboxRecord) int {
		if c := a.OccurredAt.Compare(b.OccurredAt); c != 0 {
			return c
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

