package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"sync"
	"testing"
	"time"

	glog "github.com/goliatone/go-logger/glog"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	"github.com/goliatone/go-config-monitor/core"
	monitormigrations "github.com/goliatone/go-config-monitor/migrations"
	"github.com/goliatone/go-config-monitor/ratelimit"
	sqlstore "github.com/goliatone/go-config-monitor/store/sql"
	"github.com/goliatone/go-config-monitor/webhooks"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-config-monitor-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	for _, table := range monitormigrations.Tables {
		var tableName string
		if err := client.DB().NewRaw(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
			table,
		).Scan(context.Background(), &tableName); err != nil {
			t.Fatalf("query sqlite master for %s: %v", table, err)
		}
		if tableName != table {
			t.Fatalf("expected %s table, got %q", table, tableName)
		}
	}
}

func TestRepositoryFactory_BuildsStoresFromPersistenceClient(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	if factory.DB() != client.DB() {
		t.Fatalf("expected factory to reuse the persistence bun db")
	}
	if factory.OutboxStore() == nil || factory.WebhookDeliveryStore() == nil || factory.ThrottleStateStore() == nil {
		t.Fatalf("expected outbox, delivery and throttle stores to be built")
	}
	if err := factory.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if err := sqlstore.NewRepositoryFactory().Ping(context.Background()); err == nil {
		t.Fatalf("expected ping before build to fail")
	}
	if err := sqlstore.NewRepositoryFactory().BuildStores("not-a-db"); err == nil {
		t.Fatalf("expected unsupported persistence client to fail")
	}
	if err := sqlstore.NewRepositoryFactory().BuildStores(nil); err == nil {
		t.Fatalf("expected nil persistence client to fail")
	}
}

func TestOutboxStore_EnqueueClaimAckAndRetry(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewOutboxStore(client.DB())
	if err != nil {
		t.Fatalf("new outbox store: %v", err)
	}

	base := time.Now().UTC().Add(-time.Minute).Truncate(time.Millisecond)
	signals := []core.RefreshSignal{
		{ID: "sig-b", Origin: "config-server", ContextID: "ctx-1", Destination: "billing", OccurredAt: base.Add(2 * time.Second)},
		{ID: "sig-a", Origin: "config-server", ContextID: "ctx-1", Destination: "*", OccurredAt: base},
		{ID: "sig-c", Origin: "config-server", ContextID: "ctx-1", Destination: "orders:prod", OccurredAt: base.Add(4 * time.Second)},
	}
	for _, signal := range signals {
		if err := store.Enqueue(ctx, signal); err != nil {
			t.Fatalf("enqueue %s: %v", signal.ID, err)
		}
	}
	if err := store.Enqueue(ctx, signals[0]); err != nil {
		t.Fatalf("re-enqueue should be ignored, got %v", err)
	}
	if err := store.Enqueue(ctx, core.RefreshSignal{ID: "sig-x"}); err == nil {
		t.Fatalf("expected missing destination to be rejected")
	}

	pending, err := store.ListByStatus(ctx, core.OutboxStatusPending, 0)
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("expected idempotent enqueue to keep 3 entries, got %d", len(pending))
	}

	claimed, err := store.ClaimBatch(ctx, 2)
	if err != nil {
		t.Fatalf("claim batch: %v", err)
	}
	if got := entryIDs(claimed); !slices.Equal(got, []string{"sig-a", "sig-b"}) {
		t.Fatalf("expected oldest entries claimed first, got %v", got)
	}
	if claimed[0].Signal.Destination != "*" || claimed[0].Signal.ContextID != "ctx-1" {
		t.Fatalf("expected signal fields to round trip, got %#v", claimed[0].Signal)
	}

	again, err := store.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim remaining: %v", err)
	}
	if got := entryIDs(again); !slices.Equal(got, []string{"sig-c"}) {
		t.Fatalf("expected claimed entries to be skipped, got %v", got)
	}

	if err := store.Ack(ctx, "sig-a"); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if err := store.Retry(ctx, "sig-b", errors.New("bus down"), time.Now().UTC().Add(-time.Second)); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if err := store.Retry(ctx, "sig-c", errors.New("bus down"), time.Time{}); err != nil {
		t.Fatalf("fail: %v", err)
	}

	assertStatus(t, store, core.OutboxStatusDelivered, "sig-a")
	assertStatus(t, store, core.OutboxStatusFailed, "sig-c")

	retried, err := store.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim retried: %v", err)
	}
	if len(retried) != 1 || retried[0].Signal.ID != "sig-b" || retried[0].Attempts != 1 {
		t.Fatalf("expected sig-b to be due again with one attempt, got %#v", retried)
	}
}

func TestOutboxStore_FutureRetryIsNotClaimed(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewOutboxStore(client.DB())
	if err != nil {
		t.Fatalf("new outbox store: %v", err)
	}
	if err := store.Enqueue(ctx, core.RefreshSignal{ID: "sig-1", Destination: "orders"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := store.ClaimBatch(ctx, 1); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.Retry(ctx, "sig-1", errors.New("later"), time.Now().UTC().Add(time.Hour)); err != nil {
		t.Fatalf("retry: %v", err)
	}
	entries, err := store.ClaimBatch(ctx, 1)
	if err != nil {
		t.Fatalf("claim after retry: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected future retry to stay unclaimed, got %d", len(entries))
	}
}

func TestOutboxStore_ReclaimsClaimPastLease(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewOutboxStore(client.DB())
	if err != nil {
		t.Fatalf("new outbox store: %v", err)
	}
	store.ClaimLease = 10 * time.Millisecond
	if err := store.Enqueue(ctx, core.RefreshSignal{ID: "sig-stuck", Destination: "orders"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if first, err := store.ClaimBatch(ctx, 10); err != nil || len(first) != 1 {
		t.Fatalf("first claim: %d entries, err %v", len(first), err)
	}
	if live, err := store.ClaimBatch(ctx, 10); err != nil || len(live) != 0 {
		t.Fatalf("expected live claim hidden, got %d entries, err %v", len(live), err)
	}

	time.Sleep(30 * time.Millisecond)
	reclaimed, err := store.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if ids := entryIDs(reclaimed); len(ids) != 1 || ids[0] != "sig-stuck" {
		t.Fatalf("expected abandoned claim reclaimed, got %v", ids)
	}
	if err := store.Ack(ctx, "sig-stuck"); err != nil {
		t.Fatalf("ack: %v", err)
	}
	assertStatus(t, store, core.OutboxStatusDelivered, "sig-stuck")
}

func TestOutboxRelay_DrainsSQLOutbox(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewOutboxStore(client.DB())
	if err != nil {
		t.Fatalf("new outbox store: %v", err)
	}
	outboxPublisher, err := core.NewOutboxPublisher(store)
	if err != nil {
		t.Fatalf("new outbox publisher: %v", err)
	}
	monitor, err := core.NewMonitor(core.Config{},
		core.WithLogger(glog.Nop()),
		core.WithPublisher(outboxPublisher),
	)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}

	names, err := monitor.NotifyByForm(ctx, nil, []string{"application.yml", "orders-prod.yml"})
	if err != nil {
		t.Fatalf("notify by form: %v", err)
	}
	if !slices.Equal(names, []string{"*", "orders:prod", "orders-prod"}) {
		t.Fatalf("unexpected names %v", names)
	}

	downstream := &recordingPublisher{failFor: map[string]bool{"orders-prod": true}}
	relay, err := core.NewOutboxRelay(store, downstream, core.OutboxRelayConfig{MaxAttempts: 1})
	if err != nil {
		t.Fatalf("new relay: %v", err)
	}
	stats, err := relay.DispatchPending(ctx, 10)
	if err == nil {
		t.Fatalf("expected downstream failure to surface")
	}
	if stats.Claimed != 3 || stats.Delivered != 2 || stats.Failed != 1 {
		t.Fatalf("unexpected dispatch stats %#v", stats)
	}
	delivered := downstream.destinations()
	slices.Sort(delivered)
	if !slices.Equal(delivered, []string{"*", "orders:prod"}) {
		t.Fatalf("expected wildcard and orders:prod to be delivered, got %v", delivered)
	}

	failed, err := store.ListByStatus(ctx, core.OutboxStatusFailed, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].Signal.Destination != "orders-prod" {
		t.Fatalf("expected orders-prod to be failed, got %#v", failed)
	}
}

func TestWebhookDeliveryStore_ClaimDedupeAndRetryLedger(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	ledger, err := sqlstore.NewWebhookDeliveryStore(client.DB())
	if err != nil {
		t.Fatalf("new webhook delivery store: %v", err)
	}

	record, claimed, err := ledger.Claim(ctx, "github", "delivery-1", []byte(`{"ok":true}`), time.Minute)
	if err != nil {
		t.Fatalf("claim initial delivery: %v", err)
	}
	if !claimed {
		t.Fatalf("expected first claim to succeed")
	}
	if record.Status != webhooks.DeliveryStatusProcessing || record.Attempts != 1 || record.ClaimID == "" {
		t.Fatalf("unexpected initial record %#v", record)
	}

	duplicate, claimed, err := ledger.Claim(ctx, "github", "delivery-1", nil, time.Minute)
	if err != nil {
		t.Fatalf("claim duplicate delivery: %v", err)
	}
	if claimed {
		t.Fatalf("expected in-flight duplicate not to be claimed")
	}
	if duplicate.Attempts != 1 {
		t.Fatalf("expected attempts to remain 1, got %d", duplicate.Attempts)
	}

	if err := ledger.Fail(ctx, record.ClaimID, fmt.Errorf("transient"), time.Now().UTC().Add(-time.Second), 3); err != nil {
		t.Fatalf("fail delivery: %v", err)
	}
	retried, err := ledger.Get(ctx, "github", "delivery-1")
	if err != nil {
		t.Fatalf("get retried delivery: %v", err)
	}
	if retried.Status != webhooks.DeliveryStatusRetryReady || retried.NextAttemptAt == nil {
		t.Fatalf("expected retry_ready with next attempt, got %#v", retried)
	}

	second, claimed, err := ledger.Claim(ctx, "github", "delivery-1", nil, time.Minute)
	if err != nil {
		t.Fatalf("reclaim due delivery: %v", err)
	}
	if !claimed || second.Attempts != 2 || second.ClaimID == record.ClaimID {
		t.Fatalf("expected due retry to be reclaimed with a new claim, got %#v", second)
	}

	if err := ledger.Complete(ctx, record.ClaimID); err != nil {
		t.Fatalf("complete with stale claim: %v", err)
	}
	stale, err := ledger.Get(ctx, "github", "delivery-1")
	if err != nil {
		t.Fatalf("get after stale complete: %v", err)
	}
	if stale.Status != webhooks.DeliveryStatusProcessing {
		t.Fatalf("expected stale claim not to complete delivery, got %q", stale.Status)
	}

	if err := ledger.Complete(ctx, second.ClaimID); err != nil {
		t.Fatalf("complete delivery: %v", err)
	}
	processed, err := ledger.Get(ctx, "github", "delivery-1")
	if err != nil {
		t.Fatalf("get processed delivery: %v", err)
	}
	if processed.Status != webhooks.DeliveryStatusProcessed || processed.NextAttemptAt != nil {
		t.Fatalf("expected processed delivery without next attempt, got %#v", processed)
	}

	if _, claimed, err := ledger.Claim(ctx, "github", "delivery-1", nil, time.Minute); err != nil || claimed {
		t.Fatalf("expected processed delivery never to be reclaimed, claimed=%v err=%v", claimed, err)
	}
}

func TestWebhookDeliveryStore_DeadAfterMaxAttemptsAndLeaseExpiry(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	ledger, err := sqlstore.NewWebhookDeliveryStore(client.DB())
	if err != nil {
		t.Fatalf("new webhook delivery store: %v", err)
	}

	record, _, err := ledger.Claim(ctx, "gitlab", "delivery-dead", nil, time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := ledger.Fail(ctx, record.ClaimID, errors.New("permanent"), time.Time{}, 1); err != nil {
		t.Fatalf("fail: %v", err)
	}
	dead, err := ledger.Get(ctx, "gitlab", "delivery-dead")
	if err != nil {
		t.Fatalf("get dead delivery: %v", err)
	}
	if dead.Status != webhooks.DeliveryStatusDead {
		t.Fatalf("expected dead status, got %q", dead.Status)
	}

	leased, claimed, err := ledger.Claim(ctx, "gitlab", "delivery-lease", nil, time.Millisecond)
	if err != nil || !claimed {
		t.Fatalf("claim leased delivery: claimed=%v err=%v", claimed, err)
	}
	time.Sleep(20 * time.Millisecond)
	reclaimed, claimed, err := ledger.Claim(ctx, "gitlab", "delivery-lease", nil, time.Minute)
	if err != nil {
		t.Fatalf("reclaim expired lease: %v", err)
	}
	if !claimed || reclaimed.ClaimID == leased.ClaimID || reclaimed.Attempts != 2 {
		t.Fatalf("expected expired lease to be reclaimed, got %#v", reclaimed)
	}
}

func TestProcessor_DedupesRedeliveryThroughSQLLedger(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	ledger, err := sqlstore.NewWebhookDeliveryStore(client.DB())
	if err != nil {
		t.Fatalf("new webhook delivery store: %v", err)
	}
	publisher := &recordingPublisher{}
	monitor, err := core.NewMonitor(core.Config{},
		core.WithLogger(glog.Nop()),
		core.WithPublisher(publisher),
	)
	if err != nil {
		t.Fatalf("new monitor: %v", err)
	}
	processor := webhooks.NewProcessor(nil, ledger, webhooks.NewMonitorHandler(monitor))

	req := core.InboundRequest{
		ProviderID: "form",
		Surface:    core.SurfaceForm,
		Form:       map[string][]string{webhooks.FormPathField: {"orders.yml"}},
		Metadata:   map[string]any{"delivery_id": "form-1"},
	}
	first, err := processor.Process(ctx, req)
	if err != nil {
		t.Fatalf("process first delivery: %v", err)
	}
	if !slices.Equal(first.Services, []string{"orders"}) {
		t.Fatalf("unexpected services %v", first.Services)
	}
	second, err := processor.Process(ctx, req)
	if err != nil {
		t.Fatalf("process redelivery: %v", err)
	}
	if len(second.Services) != 0 {
		t.Fatalf("expected redelivery to be deduped, got %v", second.Services)
	}
	if got := publisher.destinations(); !slices.Equal(got, []string{"orders"}) {
		t.Fatalf("expected a single refresh, got %v", got)
	}
}

func TestThrottleStateStore_UpsertKeepsOneRowPerBucket(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	store, err := sqlstore.NewThrottleStateStore(client.DB())
	if err != nil {
		t.Fatalf("new throttle state store: %v", err)
	}
	ctx := context.Background()
	key := ratelimit.Key{Transport: "REST", Target: " http://bus/actuator/busrefresh/orders "}

	if _, err := store.Get(ctx, key); !errors.Is(err, ratelimit.ErrStateNotFound) {
		t.Fatalf("expected state not found, got %v", err)
	}

	until := time.Now().UTC().Add(time.Minute).Truncate(time.Second)
	retryAfter := 60 * time.Second
	if err := store.Upsert(ctx, ratelimit.State{
		Key:            key,
		LastStatus:     429,
		Attempts:       1,
		RetryAfter:     &retryAfter,
		ThrottledUntil: &until,
	}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := store.Upsert(ctx, ratelimit.State{
		Key:            key,
		LastStatus:     429,
		Attempts:       2,
		RetryAfter:     &retryAfter,
		ThrottledUntil: &until,
	}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	state, err := store.Get(ctx, ratelimit.Key{Transport: "rest", Target: "http://bus/actuator/busrefresh/orders"})
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	if state.Attempts != 2 || state.LastStatus != 429 {
		t.Fatalf("unexpected state %+v", state)
	}
	if state.RetryAfter == nil || *state.RetryAfter != retryAfter {
		t.Fatalf("expected retry after %s, got %v", retryAfter, state.RetryAfter)
	}
	if state.ThrottledUntil == nil || !state.ThrottledUntil.Equal(until) {
		t.Fatalf("expected throttled until %s, got %v", until, state.ThrottledUntil)
	}

	var rows int
	if err := client.DB().NewRaw("SELECT COUNT(*) FROM config_monitor_throttle_state").Scan(ctx, &rows); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if rows != 1 {
		t.Fatalf("expected one row per bucket, got %d", rows)
	}
}

func TestThrottleStateStore_BacksAdaptivePolicy(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	base, err := sqlstore.NewThrottleStateStore(client.DB())
	if err != nil {
		t.Fatalf("new throttle state store: %v", err)
	}
	cacheService, err := sqlstore.NewThrottleCacheService()
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	store, err := sqlstore.NewCachedThrottleStateStore(base, cacheService)
	if err != nil {
		t.Fatalf("new cached store: %v", err)
	}

	policy := ratelimit.NewAdaptivePolicy(store)
	key := ratelimit.Key{Transport: "rest", Target: "http://bus/actuator/busrefresh"}
	ctx := context.Background()
	if err := policy.BeforeCall(ctx, key); err != nil {
		t.Fatalf("expected open bucket, got %v", err)
	}
	if err := policy.AfterCall(ctx, key, ratelimit.ResponseMeta{
		StatusCode: 429,
		Headers:    map[string]string{"Retry-After": "30"},
	}); err != nil {
		t.Fatalf("after call: %v", err)
	}

	var throttled ratelimit.ThrottledError
	if err := policy.BeforeCall(ctx, key); !errors.As(err, &throttled) {
		t.Fatalf("expected throttled error, got %v", err)
	}

	fresh := ratelimit.NewAdaptivePolicy(base)
	if err := fresh.BeforeCall(ctx, key); !errors.As(err, &throttled) {
		t.Fatalf("expected persisted window to survive a new policy, got %v", err)
	}
}

func assertStatus(t *testing.T, store *sqlstore.OutboxStore, status string, signalID string) {
	t.Helper()
	entries, err := store.ListByStatus(context.Background(), status, 10)
	if err != nil {
		t.Fatalf("list %s: %v", status, err)
	}
	if !slices.Contains(entryIDs(entries), signalID) {
		t.Fatalf("expected %s in status %s, got %v", signalID, status, entryIDs(entries))
	}
}

func entryIDs(entries []core.OutboxEntry) []string {
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		ids = append(ids, entry.Signal.ID)
	}
	return ids
}

type recordingPublisher struct {
	mu      sync.Mutex
	sent    []string
	failFor map[string]bool
}

func (p *recordingPublisher) PublishRefresh(_ context.Context, signal core.RefreshSignal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor[signal.Destination] {
		return fmt.Errorf("bus rejected %s", signal.Destination)
	}
	p.sent = append(p.sent, signal.Destination)
	return nil
}

func (p *recordingPublisher) destinations() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.sent...)
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:config-monitor-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = monitormigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != monitormigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, monitormigrations.WithDialects(monitormigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}
