package ledger

import (
	"context"
	"database/sql"

	"github.com/qualcode/ontocore/internal/apperr"
)

// SubmitLinkPrediction inserts or upserts a proposed code-to-code
// relation from an external link-prediction collaborator. Resubmission
// of the same (source_code_id, target_code_id, rel_type) triple
// refreshes source (state is left as it was) rather than erroring, the same
// upsert-on-collision shape Candidate submission uses.
func (t *Tx) SubmitLinkPrediction(sourceCodeID, targetCodeID int64, relType, source string) (*LinkPrediction, error) {
	_, err := t.tx.Exec(`
		INSERT INTO link_prediction (project_id, source_code_id, target_code_id, rel_type, source, state)
		VALUES (?, ?, ?, ?, ?, 'pending')
		ON DUPLICATE KEY UPDATE source = VALUES(source), updated_at = CURRENT_TIMESTAMP
	`, t.projectID, sourceCodeID, targetCodeID, relType, source)
	if err != nil {
		return nil, scopedErr(err)
	}
	return t.GetLinkPrediction(sourceCodeID, targetCodeID, relType)
}

// GetLinkPrediction returns one link prediction row.
func (t *Tx) GetLinkPrediction(sourceCodeID, targetCodeID int64, relType string) (*LinkPrediction, error) {
	row := t.tx.QueryRow(`
		SELECT id, project_id, source_code_id, target_code_id, rel_type, source, state, synced, sync_error, created_at, updated_at
		FROM link_prediction WHERE project_id = ? AND source_code_id = ? AND target_code_id = ? AND rel_type = ?
	`, t.projectID, sourceCodeID, targetCodeID, relType)
	return scanLinkPrediction(row)
}

// TransitionLinkPrediction moves a link prediction to validated or
// rejected; only a validated row is ever picked up by sync.
func (t *Tx) TransitionLinkPrediction(id int64, newState LinkPredictionState) error {
	_, err := t.tx.Exec(`UPDATE link_prediction SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE project_id = ? AND id = ?`,
		newState, t.projectID, id)
	return scopedErr(err)
}

func scanLinkPrediction(row *sql.Row) (*LinkPrediction, error) {
	var p LinkPrediction
	var syncErr sql.NullString
	if err := row.Scan(&p.ID, &p.ProjectID, &p.SourceCodeID, &p.TargetCodeID, &p.RelType, &p.Source,
		&p.State, &p.Synced, &syncErr, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("link prediction not found")
		}
		return nil, scopedErr(err)
	}
	p.SyncError = syncErr.String
	return &p, nil
}

// UnsyncedLinkPredictions returns validated, not-yet-synced link
// predictions, ordered so they sync last per spec section 4.6's
// ordering rule (fragments, then codes, then axial relations, then
// link predictions).
func (s *Store) UnsyncedLinkPredictions(ctx context.Context, projectID string, limit int) ([]LinkPrediction, error) {
	var out []LinkPrediction
	err := s.withRetry(ctx, func() error {
		out = nil
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, project_id, source_code_id, target_code_id, rel_type, source, state, synced, sync_error, created_at, updated_at
			FROM link_prediction WHERE project_id = ? AND state = 'validated' AND synced = FALSE AND sync_error IS NULL ORDER BY id LIMIT ?
		`, projectID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var p LinkPrediction
			var syncErr sql.NullString
			if err := rows.Scan(&p.ID, &p.ProjectID, &p.SourceCodeID, &p.TargetCodeID, &p.RelType, &p.Source,
				&p.State, &p.Synced, &syncErr, &p.CreatedAt, &p.UpdatedAt); err != nil {
				return err
			}
			p.SyncError = syncErr.String
			out = append(out, p)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, scopedErr(err)
	}
	return out, nil
}

// MarkLinkPredictionSynced flips synced=true after a successful MERGE
// into the graph store.
func (s *Store) MarkLinkPredictionSynced(ctx context.Context, projectID string, id int64) error {
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE link_prediction SET synced = TRUE, sync_error = NULL, updated_at = CURRENT_TIMESTAMP
			WHERE project_id = ? AND id = ?
		`, projectID, id)
		return err
	})
}

// MarkLinkPredictionSyncError records a permanent sync failure for one
// link prediction row, halting its retries the way fragment sync error
// tracking does.
func (s *Store) MarkLinkPredictionSyncError(ctx context.Context, projectID string, id int64, errMsg string) error {
	return s.withRetry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			UPDATE link_prediction SET sync_error = ?, updated_at = CURRENT_TIMESTAMP WHERE project_id = ? AND id = ?
		`, errMsg, projectID, id)
		return err
	})
}
