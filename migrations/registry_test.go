package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	_ "github.com/mattn/go-sqlite3"

	monitor "github.com/goliatone/go-config-monitor"
)

func TestSources_ResolvesEveryDialect(t *testing.T) {
	sources, err := Sources(nil)
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	paths := map[string]string{}
	for _, source := range sources {
		paths[source.Dialect] = source.Path
		ups, err := fs.Glob(source.FS, "*.up.sql")
		if err != nil || len(ups) < 2 {
			t.Fatalf("expected %s up migrations, got %v (%v)", source.Dialect, ups, err)
		}
		var schema strings.Builder
		for _, up := range ups {
			content, err := fs.ReadFile(source.FS, up)
			if err != nil {
				t.Fatalf("read %s %s: %v", source.Dialect, up, err)
			}
			schema.Write(content)
		}
		for _, table := range Tables {
			if !strings.Contains(schema.String(), table) {
				t.Fatalf("expected %s schema to create %s", source.Dialect, table)
			}
		}
	}
	if paths[DialectPostgres] != "data/sql/migrations" || paths[DialectSQLite] != "data/sql/migrations/sqlite" {
		t.Fatalf("unexpected source paths %v", paths)
	}
}

func TestSources_RejectsTreesWithoutUsablePairs(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"no up files": {
			"data/sql/migrations/README.md":        {Data: []byte("none")},
			"data/sql/migrations/sqlite/README.md": {Data: []byte("none")},
		},
		"missing down": {
			"data/sql/migrations/00001_x.up.sql":        {Data: []byte("SELECT 1;")},
			"data/sql/migrations/00001_x.down.sql":      {Data: []byte("SELECT 1;")},
			"data/sql/migrations/sqlite/00001_x.up.sql": {Data: []byte("SELECT 1;")},
		},
	}
	for name, tree := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Sources(tree); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestRegister_SelectedDialectsOnly(t *testing.T) {
	var calls []string
	var labels []string
	reg, err := Register(context.Background(), func(_ context.Context, dialect string, label string, _ fs.FS) error {
		calls = append(calls, dialect)
		labels = append(labels, label)
		return nil
	}, WithDialects(" SQLite ", "sqlite"))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(calls) != 1 || calls[0] != DialectSQLite {
		t.Fatalf("expected one sqlite registration, got %v", calls)
	}
	if labels[0] != DefaultSourceLabel || reg.SourceLabel != DefaultSourceLabel {
		t.Fatalf("expected default source label, got %q", labels[0])
	}

	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected error without register function")
	}
	noop := func(context.Context, string, string, fs.FS) error { return nil }
	if _, err := Register(context.Background(), noop, WithDialects("mysql")); err == nil {
		t.Fatalf("expected error for unknown dialect")
	}
}

func TestRegister_CustomSourcesAndLabel(t *testing.T) {
	custom := fstest.MapFS{"00001_x.up.sql": {Data: []byte("SELECT 1;")}}
	var got fs.FS
	_, err := Register(context.Background(), func(_ context.Context, _ string, label string, fsys fs.FS) error {
		if label != "downstream" {
			t.Fatalf("expected custom label, got %q", label)
		}
		got = fsys
		return nil
	},
		WithSources(Source{Dialect: "SQLITE", Path: "custom", FS: custom}),
		WithDialects(DialectSQLite),
		WithSourceLabel("downstream"),
	)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := fs.Stat(got, "00001_x.up.sql"); err != nil {
		t.Fatalf("expected custom source handed to runner: %v", err)
	}
}

func TestDialectForDriver(t *testing.T) {
	cases := map[string]string{
		"sqlite3":  DialectSQLite,
		"SQLite":   DialectSQLite,
		"postgres": DialectPostgres,
		"pgx":      DialectPostgres,
	}
	for driver, want := range cases {
		got, err := DialectForDriver(driver)
		if err != nil || got != want {
			t.Fatalf("driver %q: expected %q, got %q (%v)", driver, want, got, err)
		}
	}
	if _, err := DialectForDriver("mysql"); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
}

func TestCoreMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := monitor.GetMigrationsFS()
	paths := []string{
		"data/sql/migrations/00001_config_monitor_core.up.sql",
		"data/sql/migrations/00001_config_monitor_core.down.sql",
		"data/sql/migrations/sqlite/00001_config_monitor_core.up.sql",
		"data/sql/migrations/sqlite/00001_config_monitor_core.down.sql",
		"data/sql/migrations/00002_config_monitor_throttle_state.up.sql",
		"data/sql/migrations/00002_config_monitor_throttle_state.down.sql",
		"data/sql/migrations/sqlite/00002_config_monitor_throttle_state.up.sql",
		"data/sql/migrations/sqlite/00002_config_monitor_throttle_state.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteCoreMigration_ApplyAndRollback(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-config-monitor-core?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	root := monitor.GetMigrationsFS()
	sqliteMigrations, err := fs.Sub(root, "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	ctx := context.Background()
	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_config_monitor_core.up.sql"); err != nil {
		t.Fatalf("apply core migration up: %v", err)
	}

	insertSignal := `
		INSERT INTO config_monitor_refresh_outbox (id, signal_id, origin, destination, occurred_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := db.ExecContext(ctx, insertSignal, "row-1", "sig-1", "config-monitor", "orders", "2026-01-01T00:00:00Z"); err != nil {
		t.Fatalf("insert signal: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertSignal, "row-2", "sig-1", "config-monitor", "orders", "2026-01-01T00:00:00Z"); err == nil {
		t.Fatalf("expected unique signal id violation")
	}

	insertDelivery := `
		INSERT INTO config_monitor_webhook_deliveries (id, provider_id, delivery_id, status)
		VALUES (?, ?, ?, ?)
	`
	if _, err := db.ExecContext(ctx, insertDelivery, "d-1", "github", "abc", "processing"); err != nil {
		t.Fatalf("insert delivery: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertDelivery, "d-2", "github", "abc", "processing"); err == nil {
		t.Fatalf("expected unique delivery violation")
	}
	if _, err := db.ExecContext(ctx, insertDelivery, "d-3", "gitlab", "abc", "processing"); err != nil {
		t.Fatalf("expected same delivery id for another provider to insert: %v", err)
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_config_monitor_core.down.sql"); err != nil {
		t.Fatalf("apply core migration down: %v", err)
	}
	var tableName string
	err = db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"config_monitor_refresh_outbox",
	).Scan(&tableName)
	if err != sql.ErrNoRows {
		t.Fatalf("expected outbox table to be dropped, got %q (%v)", tableName, err)
	}
}

func TestSQLiteThrottleMigration_OneRowPerBucket(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-config-monitor-throttle?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	sqliteMigrations, err := fs.Sub(monitor.GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	ctx := context.Background()
	if err := execSQLMigration(ctx, db, sqliteMigrations, "00002_config_monitor_throttle_state.up.sql"); err != nil {
		t.Fatalf("apply throttle migration up: %v", err)
	}

	insert := `INSERT INTO config_monitor_throttle_state (id, transport, target) VALUES (?, ?, ?)`
	if _, err := db.ExecContext(ctx, insert, "t-1", "rest", "http://bus/orders"); err != nil {
		t.Fatalf("insert bucket: %v", err)
	}
	if _, err := db.ExecContext(ctx, insert, "t-2", "rest", "http://bus/orders"); err == nil {
		t.Fatalf("expected unique bucket violation")
	}
	if _, err := db.ExecContext(ctx, insert, "t-3", "rest", "http://bus/billing"); err != nil {
		t.Fatalf("expected another target to insert: %v", err)
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "00002_config_monitor_throttle_state.down.sql"); err != nil {
		t.Fatalf("apply throttle migration down: %v", err)
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
