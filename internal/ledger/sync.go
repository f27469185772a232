package ledger

import (
	"context"
	"database/sql"
	"time"
)

// UnsyncedFragments returns up to limit fragment ids not yet marked
// neo4j_synced and with no recorded sync error, ordered so the
// synchronizer projects fragments before codes and axial relations per
// spec section 4.6.
func (s *Store) UnsyncedFragments(ctx context.Context, projectID string, limit int) ([]FragmentSyncStatus, error) {
	var out []FragmentSyncStatus
	err := s.withRetry(ctx, func() error {
		out = nil
		rows, err := s.db.QueryContext(ctx, `
			SELECT project_id, fragment_id, synced, attempts, last_error, last_attempt_at
			FROM fragment_sync_status WHERE project_id = ? AND synced = FALSE AND last_error IS NULL ORDER BY fragment_id LIMIT ?
		`, projectID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var f FragmentSyncStatus
			var lastErr sql.NullString
			var lastAttempt sql.NullTime
			if err := rows.Scan(&f.ProjectID, &f.FragmentID, &f.Synced, &f.Attempts, &lastErr, &lastAttempt); err != nil {
				return err
			}
			f.LastError = lastErr.String
			if lastAttempt.Valid {
				v := lastAttempt.Time
				f.LastAttemptAt = &v
			}
			out = append(out, f)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, scopedErr(err)
	}
	return out, nil
}

// RegisterFragmentSync ensures fragment_sync_status and
// vector_sync_status rows exist for fragmentID, both in the unsynced
// state, so the synchronizer's graph and vector scans both pick it up.
// Called within the same transaction that first gives a fragment a
// definitive assignment (spec section 4.3's promote path), so a
// fragment newly entering the ledger is guaranteed to be scheduled for
// both projection targets.
func (t *Tx) RegisterFragmentSync(fragmentID string) error {
	if fragmentID == "" {
		return nil
	}
	if _, err := t.tx.Exec(`
		INSERT INTO fragment_sync_status (project_id, fragment_id, synced)
		VALUES (?, ?, FALSE)
		ON DUPLICATE KEY UPDATE fragment_id = fragment_id
	`, t.projectID, fragmentID); err != nil {
		return scopedErr(err)
	}
	if _, err := t.tx.Exec(`
		INSERT INTO vector_sync_status (project_id, fragment_id, synced)
		VALUES (?, ?, FALSE)
		ON DUPLICATE KEY UPDATE fragment_id = fragment_id
	`, t.projectID, fragmentID); err != nil {
		return scopedErr(err)
	}
	return nil
}

// MarkFragmentSynced flips synced=true after a successful MERGE into
// the graph store, clearing any prior error.
func (s *Store) MarkFragmentSynced(ctx context.Context, projectID, fragmentID string) error {
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE fragment_sync_status SET synced = TRUE, last_error = NULL, last_attempt_at = CURRENT_TIMESTAMP
			WHERE project_id = ? AND fragment_id = ?
		`, projectID, fragmentID)
		return err
	})
}

// MarkFragmentSyncError records a permanent sync failure (the caller
// has already exhausted backoff): it increments attempts and stores
// errMsg in last_error. synced stays false, and because
// UnsyncedFragments skips rows with last_error set, the row drops out
// of future batches until MarkFragmentSynced clears the error.
func (s *Store) MarkFragmentSyncError(ctx context.Context, projectID, fragmentID, errMsg string) error {
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE fragment_sync_status
			SET attempts = attempts + 1, last_error = ?, last_attempt_at = CURRENT_TIMESTAMP
			WHERE project_id = ? AND fragment_id = ?
		`, errMsg, projectID, fragmentID)
		return err
	})
}

// UnsyncedFragmentVectors returns up to limit fragment ids not yet
// marked as having a current embedding in the vector store, tracked
// independently of fragment_sync_status's graph-sync flag since the two
// projection targets drain at their own pace.
func (s *Store) UnsyncedFragmentVectors(ctx context.Context, projectID string, limit int) ([]FragmentSyncStatus, error) {
	var out []FragmentSyncStatus
	err := s.withRetry(ctx, func() error {
		out = nil
		rows, err := s.db.QueryContext(ctx, `
			SELECT project_id, fragment_id, synced, attempts, last_error, last_attempt_at
			FROM vector_sync_status WHERE project_id = ? AND synced = FALSE AND last_error IS NULL ORDER BY fragment_id LIMIT ?
		`, projectID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var f FragmentSyncStatus
			var lastErr sql.NullString
			var lastAttempt sql.NullTime
			if err := rows.Scan(&f.ProjectID, &f.FragmentID, &f.Synced, &f.Attempts, &lastErr, &lastAttempt); err != nil {
				return err
			}
			f.LastError = lastErr.String
			if lastAttempt.Valid {
				v := lastAttempt.Time
				f.LastAttemptAt = &v
			}
			out = append(out, f)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, scopedErr(err)
	}
	return out, nil
}

// MarkFragmentVectorSynced flips vector_sync_status.synced=true after a
// successful upsert into the vector store, clearing any prior error.
func (s *Store) MarkFragmentVectorSynced(ctx context.Context, projectID, fragmentID string) error {
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE vector_sync_status SET synced = TRUE, last_error = NULL, last_attempt_at = CURRENT_TIMESTAMP
			WHERE project_id = ? AND fragment_id = ?
		`, projectID, fragmentID)
		return err
	})
}

// MarkFragmentVectorSyncError records a failed vector-store sync
// attempt, mirroring MarkFragmentSyncError.
func (s *Store) MarkFragmentVectorSyncError(ctx context.Context, projectID, fragmentID, errMsg string) error {
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE vector_sync_status
			SET attempts = attempts + 1, last_error = ?, last_attempt_at = CURRENT_TIMESTAMP
			WHERE project_id = ? AND fragment_id = ?
		`, errMsg, projectID, fragmentID)
		return err
	})
}

// GetSyncCursor returns the last-synced cursor for (projectID, entity),
// or an empty cursor if none has been recorded yet.
func (s *Store) GetSyncCursor(ctx context.Context, projectID, entity string) (string, error) {
	var cursor string
	err := s.withRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `SELECT cursor FROM sync_cursor WHERE project_id = ? AND entity = ?`, projectID, entity)
		err := row.Scan(&cursor)
		if err == sql.ErrNoRows {
			cursor = ""
			return nil
		}
		return err
	})
	if err != nil {
		return "", scopedErr(err)
	}
	return cursor, nil
}

// SetSyncCursor records the new cursor position for (projectID, entity).
func (s *Store) SetSyncCursor(ctx context.Context, projectID, entity, cursor string) error {
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sync_cursor (project_id, entity, cursor, updated_at) VALUES (?, ?, ?, ?)
			ON DUPLICATE KEY UPDATE cursor = VALUES(cursor), updated_at = VALUES(updated_at)
		`, projectID, entity, cursor, time.Now().UTC())
		return err
	})
}
