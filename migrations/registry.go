// Package migrations hands the embedded delivery ledger, refresh outbox and
// throttle state schema to a migration runner, one source per SQL dialect.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	monitor "github.com/goliatone/go-config-monitor"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	DefaultSourceLabel = "go-config-monitor"

	schemaRoot = "data/sql/migrations"
)

// Tables created by the embedded schema.
var Tables = []string{
	"config_monitor_refresh_outbox",
	"config_monitor_throttle_state",
	"config_monitor_webhook_deliveries",
}

// dialectDirs maps each dialect to its directory under the schema root.
var dialectDirs = map[string]string{
	DialectPostgres: ".",
	DialectSQLite:   "sqlite",
}

// Source is the migration tree for one dialect.
type Source struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// Registration describes what Register handed to the runner.
type Registration struct {
	SourceLabel string
	Dialects    []string
	Sources     []Source
}

type RegisterFunc func(ctx context.Context, dialect string, sourceLabel string, fsys fs.FS) error

type Option func(*Registration)

func WithSourceLabel(label string) Option {
	return func(r *Registration) {
		if trimmed := strings.TrimSpace(label); trimmed != "" {
			r.SourceLabel = trimmed
		}
	}
}

// WithDialects limits registration to the named dialects. Unknown names are
// reported by Register.
func WithDialects(dialects ...string) Option {
	return func(r *Registration) {
		if normalized := normalizeDialects(dialects); len(normalized) > 0 {
			r.Dialects = normalized
		}
	}
}

// WithSources replaces the embedded schema, mostly for tests.
func WithSources(sources ...Source) Option {
	return func(r *Registration) {
		kept := make([]Source, 0, len(sources))
		for _, source := range sources {
			dialect := strings.ToLower(strings.TrimSpace(source.Dialect))
			if dialect == "" || source.FS == nil {
				continue
			}
			source.Dialect = dialect
			kept = append(kept, source)
		}
		if len(kept) > 0 {
			r.Sources = kept
		}
	}
}

// DialectForDriver maps a database/sql driver name onto a schema dialect.
func DialectForDriver(driver string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "postgresql", "pq", "pgx":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("migrations: no schema for driver %q", driver)
	}
}

// Sources resolves one source per dialect from root, defaulting to the
// embedded schema. Each source must hold at least one up migration and
// every up migration needs its down pair.
func Sources(root fs.FS) ([]Source, error) {
	if root == nil {
		root = monitor.GetMigrationsFS()
	}
	base, err := fs.Sub(root, schemaRoot)
	if err != nil {
		return nil, fmt.Errorf("migrations: open %s: %w", schemaRoot, err)
	}

	dialects := make([]string, 0, len(dialectDirs))
	for dialect := range dialectDirs {
		dialects = append(dialects, dialect)
	}
	sort.Strings(dialects)

	sources := make([]Source, 0, len(dialects))
	for _, dialect := range dialects {
		dir := dialectDirs[dialect]
		fsys := base
		if dir != "." {
			if fsys, err = fs.Sub(base, dir); err != nil {
				return nil, fmt.Errorf("migrations: open %s schema: %w", dialect, err)
			}
		}
		if err := checkPairs(fsys); err != nil {
			return nil, fmt.Errorf("migrations: %s schema: %w", dialect, err)
		}
		sources = append(sources, Source{
			Dialect: dialect,
			Path:    path.Join(schemaRoot, dir),
			FS:      fsys,
		})
	}
	return sources, nil
}

// Register calls fn once for every selected dialect source.
func Register(ctx context.Context, fn RegisterFunc, opts ...Option) (Registration, error) {
	reg := Registration{
		SourceLabel: DefaultSourceLabel,
		Dialects:    []string{DialectPostgres, DialectSQLite},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&reg)
		}
	}
	if fn == nil {
		return reg, fmt.Errorf("migrations: register function is required")
	}
	if len(reg.Sources) == 0 {
		sources, err := Sources(nil)
		if err != nil {
			return reg, err
		}
		reg.Sources = sources
	}

	byDialect := make(map[string]Source, len(reg.Sources))
	for _, source := range reg.Sources {
		byDialect[source.Dialect] = source
	}
	for _, dialect := range reg.Dialects {
		source, ok := byDialect[dialect]
		if !ok {
			return reg, fmt.Errorf("migrations: no schema for dialect %q", dialect)
		}
		if err := fn(ctx, dialect, reg.SourceLabel, source.FS); err != nil {
			return reg, fmt.Errorf("migrations: register %s from %s: %w", dialect, source.Path, err)
		}
	}
	return reg, nil
}

func checkPairs(fsys fs.FS) error {
	ups, err := fs.Glob(fsys, "*.up.sql")
	if err != nil {
		return err
	}
	if len(ups) == 0 {
		return fmt.Errorf("no *.up.sql files")
	}
	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		if _, err := fs.Stat(fsys, down); err != nil {
			return fmt.Errorf("%s has no %s", up, down)
		}
	}
	return nil
}

func normalizeDialects(dialects []string) []string {
	seen := make(map[string]struct{}, len(dialects))
	out := make([]string, 0, len(dialects))
	for _, dialect := range dialects {
		dialect = strings.ToLower(strings.TrimSpace(dialect))
		if dialect == "" {
			continue
		}
		if _, ok := seen[dialect]; ok {
			continue
		}
		seen[dialect] = struct{}{}
		out = append(out, dialect)
	}
	return out
}
