// Package migrations holds one file per schema migration, applied in
// order and tracked in a schema_migrations table, mirroring the
// teacher's internal/storage/sqlite/migrations package.
package migrations

import (
	"database/sql"
	"fmt"
)

// Migration is one named, idempotent schema change.
type Migration struct {
	Name string
	Run  func(db *sql.DB) error
}

// All is the ordered list of migrations applied by Apply.
var All = []Migration{
	{Name: "001_init", Run: MigrateInit},
	{Name: "002_fragment_sync_status", Run: MigrateFragmentSyncStatus},
	{Name: "003_link_prediction", Run: MigrateLinkPrediction},
	{Name: "004_vector_sync_status", Run: MigrateVectorSyncStatus},
}

// Apply runs every migration in All that has not yet been recorded in
// schema_migrations, in order, each in its own transaction.
func Apply(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name       VARCHAR(128) PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("migrations: create schema_migrations: %w", err)
	}

	for _, m := range All {
		var applied int
		err := db.QueryRow(`SELECT COUNT(*) FROM schema_migrations WHERE name = ?`, m.Name).Scan(&applied)
		if err != nil {
			return fmt.Errorf("migrations: check %s: %w", m.Name, err)
		}
		if applied > 0 {
			continue
		}
		if err := m.Run(db); err != nil {
			return fmt.Errorf("migrations: run %s: %w", m.Name, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_migrations (name) VALUES (?)`, m.Name); err != nil {
			return fmt.Errorf("migrations: record %s: %w", m.Name, err)
		}
	}
	return nil
}
