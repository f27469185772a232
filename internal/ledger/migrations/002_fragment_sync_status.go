package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateFragmentSyncStatus adds the fragment_sync_status table used by
// the projection synchronizer (C6) to track the neo4j_synced flag and
// retry state described in spec section 3 ("Sync Status").
func MigrateFragmentSyncStatus(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fragment_sync_status (
			project_id      VARCHAR(64) NOT NULL,
			fragment_id     VARCHAR(128) NOT NULL,
			synced          BOOLEAN NOT NULL DEFAULT FALSE,
			attempts        INT NOT NULL DEFAULT 0,
			last_error      TEXT,
			last_attempt_at TIMESTAMP NULL,
			PRIMARY KEY (project_id, fragment_id)
		)`,
		`CREATE INDEX idx_fragment_sync_status_pending ON fragment_sync_status (project_id, synced)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}
