package migrations

import (
	"database/sql"
	"fmt"
)

// MigrateInit creates the core schema: catalog, candidate, assignment,
// axial, freeze, idem, and version tables, per spec section 3.
func MigrateInit(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS catalog (
			code_id           BIGINT AUTO_INCREMENT PRIMARY KEY,
			project_id        VARCHAR(64) NOT NULL,
			codigo            VARCHAR(512) NOT NULL,
			status            VARCHAR(16) NOT NULL DEFAULT 'active',
			canonical_code_id BIGINT NULL,
			memo              TEXT,
			created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uq_catalog_project_codigo (project_id, codigo)
		)`,
		`CREATE INDEX idx_catalog_project_status ON catalog (project_id, status)`,
		`CREATE INDEX idx_catalog_canonical ON catalog (project_id, canonical_code_id)`,

		`CREATE TABLE IF NOT EXISTS candidate (
			id          BIGINT AUTO_INCREMENT PRIMARY KEY,
			project_id  VARCHAR(64) NOT NULL,
			codigo      VARCHAR(512) NOT NULL,
			fragment_id VARCHAR(128) NULL,
			source      VARCHAR(16) NOT NULL,
			confidence  DOUBLE NOT NULL DEFAULT 0,
			state       VARCHAR(16) NOT NULL DEFAULT 'pending',
			merged_into VARCHAR(512) NULL,
			memo        TEXT,
			validator   VARCHAR(128),
			created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uq_candidate_project_codigo_fragment (project_id, codigo, fragment_id)
		)`,
		`CREATE INDEX idx_candidate_project_state ON candidate (project_id, state)`,

		`CREATE TABLE IF NOT EXISTS assignment (
			project_id  VARCHAR(64) NOT NULL,
			fragment_id VARCHAR(128) NOT NULL,
			codigo      VARCHAR(512) NOT NULL,
			code_id     BIGINT NULL,
			cita        VARCHAR(2048),
			source_file VARCHAR(512),
			created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (project_id, fragment_id, codigo)
		)`,
		`CREATE INDEX idx_assignment_project_code ON assignment (project_id, code_id)`,

		`CREATE TABLE IF NOT EXISTS axial (
			id         BIGINT AUTO_INCREMENT PRIMARY KEY,
			project_id VARCHAR(64) NOT NULL,
			categoria  VARCHAR(512) NOT NULL,
			codigo     VARCHAR(512) NOT NULL,
			code_id    BIGINT NOT NULL,
			relation   VARCHAR(16) NOT NULL,
			memo       TEXT,
			evidence   JSON NOT NULL,
			state      VARCHAR(16) NOT NULL DEFAULT 'pending',
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE KEY uq_axial_project_cat_cod_rel (project_id, categoria, codigo, relation)
		)`,

		`CREATE TABLE IF NOT EXISTS freeze (
			project_id VARCHAR(64) PRIMARY KEY,
			is_frozen  BOOLEAN NOT NULL DEFAULT FALSE,
			frozen_at  TIMESTAMP NULL,
			frozen_by  VARCHAR(128),
			broken_at  TIMESTAMP NULL,
			broken_by  VARCHAR(128),
			note       TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS idem (
			project_id VARCHAR(64) NOT NULL,
			operation  VARCHAR(64) NOT NULL,
			idem_key   VARCHAR(256) NOT NULL,
			response   MEDIUMBLOB NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			expires_at TIMESTAMP NOT NULL,
			PRIMARY KEY (project_id, operation, idem_key)
		)`,
		`CREATE INDEX idx_idem_expires ON idem (expires_at)`,

		`CREATE TABLE IF NOT EXISTS version (
			id         BIGINT AUTO_INCREMENT PRIMARY KEY,
			project_id VARCHAR(64) NOT NULL,
			codigo     VARCHAR(512) NOT NULL,
			code_id    BIGINT NULL,
			action     VARCHAR(16) NOT NULL,
			actor      VARCHAR(128) NOT NULL,
			previous   TEXT,
			next       TEXT,
			at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX idx_version_project_at ON version (project_id, at)`,
		`CREATE INDEX idx_version_project_action ON version (project_id, action)`,

		`CREATE TABLE IF NOT EXISTS sync_cursor (
			project_id VARCHAR(64) NOT NULL,
			entity     VARCHAR(32) NOT NULL,
			cursor     VARCHAR(256) NOT NULL DEFAULT '',
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (project_id, entity)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	return s
}
