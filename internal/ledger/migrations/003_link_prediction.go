package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateLinkPrediction adds the link_prediction table: validated
// code-to-code relations surfaced by an external link-prediction
// collaborator, projected as the Code-REL{type, source}->Code edge
// spec section 4.6 names as the last entity kind in sync ordering.
func MigrateLinkPrediction(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS link_prediction (
			id              BIGINT AUTO_INCREMENT PRIMARY KEY,
			project_id      VARCHAR(64) NOT NULL,
			source_code_id  BIGINT NOT NULL,
			target_code_id  BIGINT NOT NULL,
			rel_type        VARCHAR(64) NOT NULL,
			source          VARCHAR(64) NOT NULL,
			state           VARCHAR(16) NOT NULL DEFAULT 'pending',
			synced          BOOLEAN NOT NULL DEFAULT FALSE,
			sync_error      TEXT,
			created_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at      TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uq_link_prediction (project_id, source_code_id, target_code_id, rel_type)
		)`,
		`CREATE INDEX idx_link_prediction_pending ON link_prediction (project_id, state, synced)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}
