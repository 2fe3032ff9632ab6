package sqlstore

import (
	"context"
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/uptrace/bun"
)

// RepositoryFactory owns the delivery ledger, refresh outbox and throttle
// state stores that share one bun database.
type RepositoryFactory struct {
	db         *bun.DB
	outbox     *OutboxStore
	deliveries *WebhookDeliveryStore
	throttle   *ThrottleStateStore
}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client) (*RepositoryFactory, error) {
	if client == nil {
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	}
	return newFactory(client)
}

func NewRepositoryFactoryFromDB(db *bun.DB) (*RepositoryFactory, error) {
	return newFactory(db)
}

func newFactory(source any) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory()
	if err := factory.BuildStores(source); err != nil {
		return nil, err
	}
	return factory, nil
}

// BuildStores accepts a *bun.DB or anything exposing DB() *bun.DB, such as
// a go-persistence-bun client. Calling it again after a successful build is
// a no-op.
func (f *RepositoryFactory) BuildStores(source any) error {
	if f == nil {
		return fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.outbox != nil && f.deliveries != nil && f.throttle != nil {
		return nil
	}
	db, err := bunDBFrom(source)
	if err != nil {
		return err
	}
	outbox, err := NewOutboxStore(db)
	if err != nil {
		return err
	}
	deliveries, err := NewWebhookDeliveryStore(db)
	if err != nil {
		return err
	}
	throttle, err := NewThrottleStateStore(db)
	if err != nil {
		return err
	}
	f.db, f.outbox, f.deliveries, f.throttle = db, outbox, deliveries, throttle
	return nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) OutboxStore() *OutboxStore {
	if f == nil {
		return nil
	}
	return f.outbox
}

func (f *RepositoryFactory) WebhookDeliveryStore() *WebhookDeliveryStore {
	if f == nil {
		return nil
	}
	return f.deliveries
}

func (f *RepositoryFactory) ThrottleStateStore() *ThrottleStateStore {
	if f == nil {
		return nil
	}
	return f.throttle
}

// Ping checks the shared database is reachable.
func (f *RepositoryFactory) Ping(ctx context.Context) error {
	if f == nil || f.db == nil {
		return fmt.Errorf("sqlstore: stores are not built")
	}
	return f.db.PingContext(ctx)
}

func bunDBFrom(source any) (*bun.DB, error) {
	switch typed := source.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		if typed == nil {
			return nil, fmt.Errorf("sqlstore: bun db is nil")
		}
		return typed, nil
	case interface{ DB() *bun.DB }:
		if db := typed.DB(); db != nil {
			return db, nil
		}
		return nil, fmt.Errorf("sqlstore: %T returned a nil bun db", source)
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", source)
	}
}
