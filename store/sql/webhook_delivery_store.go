package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-config-monitor/webhooks"
)

const defaultClaimLease = 30 * time.Second

var (
	errDeliveryStoreMissing = errors.New("sqlstore: webhook delivery store is not configured")
	errClaimIDRequired      = errors.New("sqlstore: claim id is required")
)

// WebhookDeliveryStore is the SQL backed webhooks.DeliveryLedger. A
// delivery is claimable when it is new, due for retry, or its processing
// lease expired.
type WebhookDeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookDeliveryRecord]
	now  func() time.Time
}

func NewWebhookDeliveryStore(db *bun.DB) (*WebhookDeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookDeliveryRecord](db, webhookDeliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid webhook delivery repository wiring: %w", err)
		}
	}
	return &WebhookDeliveryStore{db: db, repo: repo, now: utcNow}, nil
}

func utcNow() time.Time { return time.Now().UTC() }

// Claim inserts a first attempt or takes over a claimable row. The returned
// record reflects the row after the claim attempt either way.
func (s *WebhookDeliveryStore) Claim(
	ctx context.Context,
	providerID string,
	deliveryID string,
	payload []byte,
	lease time.Duration,
) (webhooks.DeliveryRecord, bool, error) {
	if s == nil || s.db == nil {
		return webhooks.DeliveryRecord{}, false, errDeliveryStoreMissing
	}
	providerID, deliveryID = strings.TrimSpace(providerID), strings.TrimSpace(deliveryID)
	if providerID == "" || deliveryID == "" {
		return webhooks.DeliveryRecord{}, false, fmt.Errorf("sqlstore: provider id and delivery id are required")
	}
	if lease <= 0 {
		lease = defaultClaimLease
	}

	now := s.now()
	claim := deliveryClaim{
		id:        uuid.NewString(),
		now:       now,
		expiresAt: now.Add(lease),
	}
	var claimed bool
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		if claimed, err = claim.insert(ctx, tx, providerID, deliveryID, payload); err != nil || claimed {
			return err
		}
		claimed, err = claim.takeOver(ctx, tx, providerID, deliveryID)
		return err
	})
	if err != nil {
		return webhooks.DeliveryRecord{}, false, err
	}

	record, err := s.Get(ctx, providerID, deliveryID)
	if err != nil {
		return webhooks.DeliveryRecord{}, false, err
	}
	return record, claimed, nil
}

// deliveryClaim is one processing lease identified by id.
type deliveryClaim struct {
	id        string
	now       time.Time
	expiresAt time.Time
}

func (c deliveryClaim) insert(ctx context.Context, tx bun.Tx, providerID, deliveryID string, payload []byte) (bool, error) {
	res, err := tx.NewInsert().
		Model(&webhookDeliveryRecord{
			ID:             uuid.NewString(),
			ProviderID:     providerID,
			DeliveryID:     deliveryID,
			ClaimID:        &c.id,
			Status:         webhooks.DeliveryStatusProcessing,
			Attempts:       1,
			LeaseExpiresAt: &c.expiresAt,
			Payload:        append([]byte(nil), payload...),
			CreatedAt:      c.now,
			UpdatedAt:      c.now,
		}).
		On("CONFLICT (provider_id, delivery_id) DO NOTHING").
		Exec(ctx)
	return touched(res, err)
}

// takeOver claims an existing row that is pending, due for retry, or whose
// lease has lapsed.
func (c deliveryClaim) takeOver(ctx context.Context, tx bun.Tx, providerID, deliveryID string) (bool, error) {
	res, err := tx.NewUpdate().
		Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", webhooks.DeliveryStatusProcessing).
		Set("claim_id = ?", c.id).
		Set("attempts = attempts + 1").
		Set("lease_expires_at = ?", c.expiresAt).
		Set("next_attempt_at = NULL").
		Set("updated_at = ?", c.now).
		Where("provider_id = ?", providerID).
		Where("delivery_id = ?", deliveryID).
		WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.
				Where("status = ?", webhooks.DeliveryStatusPending).
				WhereOr("status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)", webhooks.DeliveryStatusRetryReady, c.now).
				WhereOr("status = ? AND lease_expires_at <= ?", webhooks.DeliveryStatusProcessing, c.now)
		}).
		Exec(ctx)
	return touched(res, err)
}

func touched(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	affected, _ := res.RowsAffected()
	return affected > 0, nil
}

func (s *WebhookDeliveryStore) Get(
	ctx context.Context,
	providerID string,
	deliveryID string,
) (webhooks.DeliveryRecord, error) {
	if s == nil || s.repo == nil {
		return webhooks.DeliveryRecord{}, errDeliveryStoreMissing
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("provider_id", "=", strings.TrimSpace(providerID)),
		repository.SelectBy("delivery_id", "=", strings.TrimSpace(deliveryID)),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return webhooks.DeliveryRecord{}, err
	}
	if len(records) == 0 || records[0] == nil {
		return webhooks.DeliveryRecord{}, fmt.Errorf("sqlstore: no webhook delivery %s/%s", providerID, deliveryID)
	}
	return records[0].toDomain(), nil
}

func (s *WebhookDeliveryStore) Complete(ctx context.Context, claimID string) error {
	claimID, err := s.checkClaim(claimID)
	if err != nil {
		return err
	}
	_, err = s.release(s.db.NewUpdate(), webhooks.DeliveryStatusProcessed, nil, "").
		Where("claim_id = ?", claimID).
		Where("status = ?", webhooks.DeliveryStatusProcessing).
		Exec(ctx)
	return err
}

// Fail releases the claim for a retry at nextAttemptAt, or marks the
// delivery dead once maxAttempts is reached. A claim that is no longer
// processing is ignored.
func (s *WebhookDeliveryStore) Fail(
	ctx context.Context,
	claimID string,
	cause error,
	nextAttemptAt time.Time,
	maxAttempts int,
) error {
	claimID, err := s.checkClaim(claimID)
	if err != nil {
		return err
	}
	if nextAttemptAt.IsZero() {
		nextAttemptAt = s.now()
	}
	lastError := ""
	if cause != nil {
		lastError = strings.TrimSpace(cause.Error())
	}

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		record := &webhookDeliveryRecord{}
		err := tx.NewSelect().
			Model(record).
			Where("?TableAlias.claim_id = ?", claimID).
			Where("?TableAlias.status = ?", webhooks.DeliveryStatusProcessing).
			Limit(1).
			Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}

		status, next := webhooks.DeliveryStatusDead, (*time.Time)(nil)
		if maxAttempts <= 0 || record.Attempts < maxAttempts {
			retryAt := nextAttemptAt.UTC()
			status, next = webhooks.DeliveryStatusRetryReady, &retryAt
		}
		_, err = s.release(tx.NewUpdate(), status, next, lastError).
			Where("id = ?", record.ID).
			Exec(ctx)
		return err
	})
}

// release drops the processing lease and moves the row to status.
func (s *WebhookDeliveryStore) release(q *bun.UpdateQuery, status string, next *time.Time, lastError string) *bun.UpdateQuery {
	return q.Model((*webhookDeliveryRecord)(nil)).
		Set("status = ?", status).
		Set("next_attempt_at = ?", next).
		Set("lease_expires_at = NULL").
		Set("last_error = ?", lastError).
		Set("updated_at = ?", s.now())
}

func (s *WebhookDeliveryStore) checkClaim(claimID string) (string, error) {
	if s == nil || s.db == nil {
		return "", errDeliveryStoreMissing
	}
	if claimID = strings.TrimSpace(claimID); claimID == "" {
		return "", errClaimIDRequired
	}
	return claimID, nil
}

func (r *webhookDeliveryRecord) toDomain() webhooks.DeliveryRecord {
	record := webhooks.DeliveryRecord{
		ID:         r.ID,
		ProviderID: r.ProviderID,
		DeliveryID: r.DeliveryID,
		Status:     r.Status,
		Attempts:   r.Attempts,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.ClaimID != nil {
		record.ClaimID = *r.ClaimID
	}
	if r.NextAttemptAt != nil {
		next := *r.NextAttemptAt
		record.NextAttemptAt = &next
	}
	return record
}
