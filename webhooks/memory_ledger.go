package webhooks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryDeliveryLedger is a process-local DeliveryLedger. Processed
// deliveries are remembered for Retention.
type MemoryDeliveryLedger struct {
	mu        sync.Mutex
	entries   map[string]*DeliveryRecord
	claims    map[string]string
	leases    map[string]time.Time
	nextID    int
	Retention time.Duration
	Now       func() time.Time
}

func NewMemoryDeliveryLedger() *MemoryDeliveryLedger {
	return &MemoryDeliveryLedger{
		entries:   map[string]*DeliveryRecord{},
		claims:    map[string]string{},
		leases:    map[string]time.Time{},
		Retention: 24 * time.Hour,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (l *MemoryDeliveryLedger) Claim(
	_ context.Context,
	providerID string,
	deliveryID string,
	_ []byte,
	lease time.Duration,
) (DeliveryRecord, bool, error) {
	if l == nil {
		return DeliveryRecord{}, false, failInternal.new("webhooks: delivery ledger is nil", nil)
	}
	providerID = strings.TrimSpace(providerID)
	deliveryID = strings.TrimSpace(deliveryID)
	if providerID == "" || deliveryID == "" {
		return DeliveryRecord{}, false, failBadInput.new("webhooks: provider id and delivery id are required", nil)
	}
	if lease <= 0 {
		lease = 30 * time.Second
	}
	now := l.now()
	key := ledgerKey(providerID, deliveryID)

	l.mu.Lock()
	defer l.mu.Unlock()
	l.evictExpiredLocked(now)

	record, exists := l.entries[key]
	if !exists {
		record = &DeliveryRecord{
			ID:         key,
			ProviderID: providerID,
			DeliveryID: deliveryID,
			Status:     DeliveryStatusPending,
			CreatedAt:  now,
		}
		l.entries[key] = record
	}

	switch record.Status {
	case DeliveryStatusProcessed, DeliveryStatusDead:
		return *record, false, nil
	case DeliveryStatusProcessing:
		if now.Before(l.leases[key]) {
			return *record, false, nil
		}
	case DeliveryStatusRetryReady:
		if record.NextAttemptAt != nil && now.Before(*record.NextAttemptAt) {
			return *record, false, nil
		}
	}

	if record.ClaimID != "" {
		delete(l.claims, record.ClaimID)
	}
	l.nextID++
	record.ClaimID = fmt.Sprintf("claim_%d", l.nextID)
	record.Status = DeliveryStatusProcessing
	record.Attempts++
	record.NextAttemptAt = nil
	record.UpdatedAt = now
	l.claims[record.ClaimID] = key
	l.leases[key] = now.Add(lease)
	return *record, true, nil
}

func (l *MemoryDeliveryLedger) Get(_ context.Context, providerID string, deliveryID string) (DeliveryRecord, error) {
	if l == nil {
		return DeliveryRecord{}, failInternal.new("webhooks: delivery ledger is nil", nil)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	record, ok := l.entries[ledgerKey(strings.TrimSpace(providerID), strings.TrimSpace(deliveryID))]
	if !ok {
		return DeliveryRecord{}, failNotFound.new("webhooks: delivery not found",
			map[string]any{"provider_id": providerID, "delivery_id": deliveryID})
	}
	return *record, nil
}

func (l *MemoryDeliveryLedger) Complete(_ context.Context, claimID string) error {
	return l.release(claimID, func(record *DeliveryRecord, _ time.Time) {
		record.Status = DeliveryStatusProcessed
	})
}

func (l *MemoryDeliveryLedger) Fail(
	_ context.Context,
	claimID string,
	_ error,
	nextAttemptAt time.Time,
	maxAttempts int,
) error {
	return l.release(claimID, func(record *DeliveryRecord, now time.Time) {
		if maxAttempts > 0 && record.Attempts >= maxAttempts {
			record.Status = DeliveryStatusDead
			return
		}
		if nextAttemptAt.IsZero() {
			nextAttemptAt = now
		}
		next := nextAttemptAt.UTC()
		record.Status = DeliveryStatusRetryReady
		record.NextAttemptAt = &next
	})
}

func (l *MemoryDeliveryLedger) release(claimID string, mutate func(*DeliveryRecord, time.Time)) error {
	if l == nil {
		return failInternal.new("webhooks: delivery ledger is nil", nil)
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return failBadInput.new("webhooks: claim id is required", nil)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	key, ok := l.claims[claimID]
	if !ok {
		return nil
	}
	delete(l.claims, claimID)
	record, exists := l.entries[key]
	if !exists || record.ClaimID != claimID || record.Status != DeliveryStatusProcessing {
		return nil
	}
	now := l.now()
	mutate(record, now)
	record.UpdatedAt = now
	delete(l.leases, key)
	return nil
}

func (l *MemoryDeliveryLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *MemoryDeliveryLedger) evictExpiredLocked(now time.Time) {
	retention := l.Retention
	if retention <= 0 {
		return
	}
	for key, record := range l.entries {
		if record.Status != DeliveryStatusProcessed && record.Status != DeliveryStatusDead {
			continue
		}
		if now.Sub(record.UpdatedAt) >= retention {
			delete(l.entries, key)
		}
	}
}

func ledgerKey(providerID string, deliveryID string) string {
	return providerID + "|" + deliveryID
}

var _ DeliveryLedger = (*MemoryDeliveryLedger)(nil)
