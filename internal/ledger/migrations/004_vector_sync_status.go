package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateVectorSyncStatus adds the vector_sync_status table used by the
// projection synchronizer (C6) to track, independently of the graph
// store's fragment_sync_status, which fragments already have a current
// embedding MERGEd into the vector store.
func MigrateVectorSyncStatus(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS vector_sync_status (
			project_id      VARCHAR(64) NOT NULL,
			fragment_id     VARCHAR(128) NOT NULL,
			synced          BOOLEAN NOT NULL DEFAULT FALSE,
			attempts        INT NOT NULL DEFAULT 0,
			last_error      TEXT,
			last_attempt_at TIMESTAMP NULL,
			PRIMARY KEY (project_id, fragment_id)
		)`,
		`CREATE INDEX idx_vector_sync_status_pending ON vector_sync_status (project_id, synced)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}
