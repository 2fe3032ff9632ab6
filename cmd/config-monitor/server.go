package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	gocmd "github.com/goliatone/go-command"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/viper"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	monitor "github.com/goliatone/go-config-monitor"
	"github.com/goliatone/go-config-monitor/adapters/gocommand"
	"github.com/goliatone/go-config-monitor/adapters/kartlogger"
	monitorcommand "github.com/goliatone/go-config-monitor/command"
	"github.com/goliatone/go-config-monitor/core"
	"github.com/goliatone/go-config-monitor/httpapi"
	monitorquery "github.com/goliatone/go-config-monitor/query"
	monitormigrations "github.com/goliatone/go-config-monitor/migrations"
	sqlstore "github.com/goliatone/go-config-monitor/store/sql"
	"github.com/goliatone/go-config-monitor/transport"
	"github.com/goliatone/go-config-monitor/webhooks"
)

type persistenceConfig struct {
	driver      string
	server      string
	debug       bool
	pingTimeout time.Duration
}

func (c persistenceConfig) GetDebug() bool                { return c.debug }
func (c persistenceConfig) GetDriver() string             { return c.driver }
func (c persistenceConfig) GetServer() string             { return c.server }
func (c persistenceConfig) GetPingTimeout() time.Duration { return c.pingTimeout }
func (c persistenceConfig) GetOtelIdentifier() string     { return appName }

// server owns every component the binary wires together.
type server struct {
	opts    Options
	logger  *kartlogger.Logger
	monitor *core.Monitor
	relay   *core.OutboxRelay
	engine  *gin.Engine
	client  *persistence.Client
	subs    *gocommand.MonitorSubscriptions
}

func newServer(ctx context.Context, opts Options, v *viper.Viper, logger *kartlogger.Logger, hooks *monitor.ExtensionHooks) (*server, error) {
	s := &server{opts: opts, logger: logger}

	var (
		ledger       webhooks.DeliveryLedger = webhooks.NewMemoryDeliveryLedger()
		outbox       core.OutboxStore
		registryOpts []transport.DefaultOption
	)
	if opts.Store.Driver != storeDriverNone {
		client, err := openStore(ctx, opts.Store)
		if err != nil {
			return nil, err
		}
		s.client = client
		factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client)
		if err != nil {
			_ = s.close()
			return nil, err
		}
		ledger = factory.WebhookDeliveryStore()
		outbox = factory.OutboxStore()
		cacheService, err := sqlstore.NewThrottleCacheService()
		if err != nil {
			_ = s.close()
			return nil, err
		}
		throttle, err := sqlstore.NewCachedThrottleStateStore(factory.ThrottleStateStore(), cacheService)
		if err != nil {
			_ = s.close()
			return nil, err
		}
		registryOpts = append(registryOpts, transport.WithThrottleStore(throttle))
	} else if opts.Outbox.Enabled {
		outbox = core.NewMemoryOutboxStore()
	}

	registry := transport.NewDefaultRegistry(logger.GetLogger("transport"), registryOpts...)
	if err := hooks.ApplyPublisherPacks(registry); err != nil {
		_ = s.close()
		return nil, err
	}
	bus, err := registry.BuildAll(opts.Bus.Kinds, busConfigs(v, opts.Bus.Kinds))
	if err != nil {
		_ = s.close()
		return nil, err
	}

	publisher := bus
	if opts.Outbox.Enabled {
		outboxPublisher, err := core.NewOutboxPublisher(outbox)
		if err != nil {
			_ = s.close()
			return nil, err
		}
		relay, err := core.NewOutboxRelay(outbox, bus, core.OutboxRelayConfig{
			BatchSize:   opts.Outbox.BatchSize,
			MaxAttempts: opts.Outbox.MaxAttempts,
		})
		if err != nil {
			_ = s.close()
			return nil, err
		}
		s.relay = relay
		publisher = outboxPublisher
	}

	extractor, err := hooks.Extractor()
	if err != nil {
		_ = s.close()
		return nil, err
	}
	m, err := monitor.NewMonitor(core.Config{},
		monitor.WithLogger(logger),
		monitor.WithLoggerProvider(logger),
		monitor.WithConfigProvider(core.NewCfgxConfigProvider(monitorConfigLoader(v))),
		monitor.WithExtractor(extractor),
		monitor.WithPublisher(publisher),
	)
	if err != nil {
		_ = s.close()
		return nil, err
	}
	s.monitor = m

	bindings := gocommand.MonitorBindings{Monitor: m}
	if s.relay != nil {
		bindings.Relay = s.relay
		if reader, ok := s.relay.Store().(monitorquery.OutboxReader); ok {
			bindings.Outbox = reader
		}
	}
	subs, err := gocommand.RegisterMonitor(gocommand.NewRegistryAdapter(nil), bindings)
	if err != nil {
		_ = s.close()
		return nil, err
	}
	s.subs = subs

	processor, err := newProcessor(opts.Webhooks, ledger, m)
	if err != nil {
		_ = s.close()
		return nil, err
	}

	handler := httpapi.NewHandler(processor, httpapi.WithLogger(logger.GetLogger("httpapi")))
	s.engine = httpapi.NewEngine()
	handler.Register(s.engine, m.Config().MonitorRoute())
	return s, nil
}

func newProcessor(opts WebhookOptions, ledger webhooks.DeliveryLedger, m *core.Monitor) (*webhooks.Processor, error) {
	var verifier webhooks.Verifier
	if len(opts.Secrets) > 0 {
		routing, err := webhooks.NewRoutingVerifierFromSecrets(opts.Secrets)
		if err != nil {
			return nil, err
		}
		verifier = routing
	}
	processor := webhooks.NewProcessor(verifier, ledger, webhooks.NewMonitorHandler(m))
	processor.RequireDeliveryID = opts.RequireDeliveryID
	if opts.MaxAttempts > 0 {
		processor.MaxAttempts = opts.MaxAttempts
	}
	mode := webhooks.BurstMode(strings.TrimSpace(opts.Burst.Mode))
	if mode != "" && mode != webhooks.BurstModeNone {
		burst, err := webhooks.NewBurstController(webhooks.BurstOptions{
			Mode:       mode,
			Window:     opts.Burst.Window,
			MaxEntries: opts.Burst.MaxEntries,
		})
		if err != nil {
			return nil, err
		}
		processor.Burst = burst
	}
	return processor, nil
}

func openStore(ctx context.Context, opts StoreOptions) (*persistence.Client, error) {
	migrationName, err := monitormigrations.DialectForDriver(opts.Driver)
	if err != nil {
		return nil, err
	}
	var dialect schema.Dialect = sqlitedialect.New()
	if migrationName == monitormigrations.DialectPostgres {
		dialect = pgdialect.New()
	}

	sqlDB, err := sql.Open(opts.Driver, opts.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", opts.Driver, err)
	}
	if opts.Driver == storeDriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(persistenceConfig{
		driver:      opts.Driver,
		server:      opts.DSN,
		debug:       opts.Debug,
		pingTimeout: opts.PingTimeout,
	}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("persistence client: %w", err)
	}
	if !opts.Migrate {
		return client, nil
	}

	_, err = monitormigrations.Register(ctx, func(_ context.Context, _ string, _ string, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	}, monitormigrations.WithDialects(migrationName))
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return client, nil
}

// run serves the monitor endpoint and, with the outbox enabled, drains it on
// a ticker until ctx is cancelled.
func (s *server) run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.opts.HTTP.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("monitor listening",
			"addr", s.opts.HTTP.Addr,
			"route", s.monitor.Config().MonitorRoute(),
			"context_id", s.monitor.ContextID(),
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	if s.relay != nil {
		go s.relayLoop(ctx)
	}

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.HTTP.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *server) relayLoop(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Outbox.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.relayOnce(ctx); err != nil {
				s.logger.Error("outbox relay failed", "error", err.Error())
			}
		}
	}
}

// relayOnce dispatches the relay command and returns its dispatch stats.
func (s *server) relayOnce(ctx context.Context) (core.DispatchStats, error) {
	if s.relay == nil {
		return core.DispatchStats{}, nil
	}
	collector := gocmd.NewResult[core.DispatchStats]()
	err := gocommand.Dispatch(gocmd.ContextWithResult(ctx, collector), monitorcommand.RelayOutboxMessage{
		BatchSize: s.opts.Outbox.BatchSize,
	})
	stats, _ := collector.Load()
	if stats.Claimed > 0 {
		s.logger.Debug("outbox relayed",
			"claimed", stats.Claimed,
			"delivered", stats.Delivered,
			"retried", stats.Retried,
			"failed", stats.Failed,
		)
	}
	return stats, err
}

func (s *server) close() error {
	s.subs.Unsubscribe()
	var errs []error
	if s.client != nil {
		errs = append(errs, s.client.Close())
	}
	if s.logger != nil {
		errs = append(errs, s.logger.Flush())
	}
	return errors.Join(errs...)
}
