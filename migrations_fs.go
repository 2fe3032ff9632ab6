package monitor

import (
	"embed"
	"io/fs"
)

// migrationsFS holds the SQL schema for the delivery ledger, the refresh
// outbox and REST throttle state, with SQLite variants under
// data/sql/migrations/sqlite.
//
//go:embed data/sql/migrations/*.sql data/sql/migrations/sqlite/*.sql
var migrationsFS embed.FS

// GetMigrationsFS returns the embedded migration tree.
func GetMigrationsFS() fs.FS {
	return migrationsFS
}
