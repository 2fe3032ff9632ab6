package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type refreshOutboxRecord struct {
	bun.BaseModel `bun:"table:config_monitor_refresh_outbox,alias:cmro"`

	ID          string     `bun:"id,pk"`
	SignalID    string     `bun:"signal_id,notnull"`
	Origin      string     `bun:"origin,notnull"`
	ContextID   string     `bun:"context_id,notnull"`
	Destination string     `bun:"destination,notnull"`
	Status      string     `bun:"status,notnull"`
	Attempts    int        `bun:"attempts,notnull"`
	NextAttempt *time.Time `bun:"next_attempt_at,nullzero"`
	LastError   string     `bun:"last_error,notnull"`
	OccurredAt  time.Time  `bun:"occurred_at,notnull"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type webhookDeliveryRecord struct {
	bun.BaseModel `bun:"table:config_monitor_webhook_deliveries,alias:cmwd"`

	ID             string     `bun:"id,pk"`
	ProviderID     string     `bun:"provider_id,notnull"`
	DeliveryID     string     `bun:"delivery_id,notnull"`
	ClaimID        *string    `bun:"claim_id"`
	Status         string     `bun:"status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	NextAttemptAt  *time.Time `bun:"next_attempt_at,nullzero"`
	LeaseExpiresAt *time.Time `bun:"lease_expires_at,nullzero"`
	LastError      string     `bun:"last_error,notnull"`
	Payload        []byte     `bun:"payload"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type throttleStateRecord struct {
	bun.BaseModel `bun:"table:config_monitor_throttle_state,alias:cmts"`

	ID             string     `bun:"id,pk"`
	Transport      string     `bun:"transport,notnull"`
	Target         string     `bun:"target,notnull"`
	Limit          int        `bun:"limit_value,notnull"`
	Remaining      int        `bun:"remaining,notnull"`
	ResetAt        *time.Time `bun:"reset_at,nullzero"`
	RetryAfterMS   *int64     `bun:"retry_after_ms"`
	ThrottledUntil *time.Time `bun:"throttled_until,nullzero"`
	LastStatus     int        `bun:"last_status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
