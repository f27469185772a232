package ledger

import (
	"context"
	"database/sql"
	"time"
)

// GetFreeze returns the freeze row for projectID, defaulting to an
// unfrozen state when no row exists yet (a project is unfrozen until
// someone freezes it).
func (s *Store) GetFreeze(ctx context.Context, projectID string) (*Freeze, error) {
	var f Freeze
	err := s.withRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `
			SELECT project_id, is_frozen, frozen_at, frozen_by, broken_at, broken_by, note
			FROM freeze WHERE project_id = ?
		`, projectID)
		var frozenAt, brokenAt sql.NullTime
		var frozenBy, brokenBy, note sql.NullString
		err := row.Scan(&f.ProjectID, &f.IsFrozen, &frozenAt, &frozenBy, &brokenAt, &brokenBy, &note)
		if err == sql.ErrNoRows {
			f = Freeze{ProjectID: projectID, IsFrozen: false}
			return nil
		}
		if err != nil {
			return err
		}
		if frozenAt.Valid {
			v := frozenAt.Time
			f.FrozenAt = &v
		}
		if brokenAt.Valid {
			v := brokenAt.Time
			f.BrokenAt = &v
		}
		f.FrozenBy = frozenBy.String
		f.BrokenBy = brokenBy.String
		f.Note = note.String
		return nil
	})
	if err != nil {
		return nil, scopedErr(err)
	}
	return &f, nil
}

// SetFreeze upserts the freeze row, setting is_frozen and the
// frozen_at/by or broken_at/by pair accordingly.
func (t *Tx) SetFreeze(isFrozen bool, actor, note string) (*Freeze, error) {
	now := time.Now().UTC()
	if isFrozen {
		_, err := t.tx.Exec(`
			INSERT INTO freeze (project_id, is_frozen, frozen_at, frozen_by, note)
			VALUES (?, TRUE, ?, ?, ?)
			ON DUPLICATE KEY UPDATE is_frozen = TRUE, frozen_at = VALUES(frozen_at), frozen_by = VALUES(frozen_by), note = VALUES(note)
		`, t.projectID, now, actor, note)
		if err != nil {
			return nil, scopedErr(err)
		}
	} else {
		_, err := t.tx.Exec(`
			INSERT INTO freeze (project_id, is_frozen, broken_at, broken_by, note)
			VALUES (?, FALSE, ?, ?, ?)
			ON DUPLICATE KEY UPDATE is_frozen = FALSE, broken_at = VALUES(broken_at), broken_by = VALUES(broken_by), note = VALUES(note)
		`, t.projectID, now, actor, note)
		if err != nil {
			return nil, scopedErr(err)
		}
	}
	row := t.tx.QueryRow(`
		SELECT project_id, is_frozen, frozen_at, frozen_by, broken_at, broken_by, note
		FROM freeze WHERE project_id = ?
	`, t.projectID)
	var f Freeze
	var frozenAt, brokenAt sql.NullTime
	var frozenBy, brokenBy, noteCol sql.NullString
	if err := row.Scan(&f.ProjectID, &f.IsFrozen, &frozenAt, &frozenBy, &brokenAt, &brokenBy, &noteCol); err != nil {
		return nil, scopedErr(err)
	}
	if frozenAt.Valid {
		v := frozenAt.Time
		f.FrozenAt = &v
	}
	if brokenAt.Valid {
		v := brokenAt.Time
		f.BrokenAt = &v
	}
	f.FrozenBy = frozenBy.String
	f.BrokenBy = brokenBy.String
	f.Note = noteCol.String
	return &f, nil
}
