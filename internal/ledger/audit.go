package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/qualcode/ontocore/internal/apperr"
)

// RecordVersion appends a version event. Per spec section 4.1(c),
// version events are recorded for every ontology-affecting write. An
// insert failure is returned; callers return it from their transaction
// function, so the triggering operation rolls back instead of
// succeeding without its version event.
func (t *Tx) RecordVersion(codigo string, codeID *int64, action VersionAction, actor, previous, next string) error {
	_, err := t.tx.Exec(`
		INSERT INTO version (project_id, codigo, code_id, action, actor, previous, next)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.projectID, codigo, codeID, action, actor, previous, next)
	return scopedErr(err)
}

// VersionFilter narrows a QueryVersions call. Zero values mean
// "unfiltered" for that dimension.
type VersionFilter struct {
	Action   VersionAction // "" = any
	Since    time.Time
	Until    time.Time
	Limit    int
	Offset   int
}

// QueryVersions returns version events matching filter, newest first,
// backing GET /ops/recent and GET /ops/log (spec section 6).
func (s *Store) QueryVersions(ctx context.Context, projectID string, filter VersionFilter) ([]VersionEvent, error) {
	q := `SELECT id, project_id, codigo, code_id, action, actor, previous, next, at FROM version WHERE project_id = ?`
	args := []any{projectID}

	if filter.Action != "" {
		q += ` AND action = ?`
		args = append(args, filter.Action)
	}
	if !filter.Since.IsZero() {
		q += ` AND at >= ?`
		args = append(args, filter.Since)
	}
	if !filter.Until.IsZero() {
		q += ` AND at <= ?`
		args = append(args, filter.Until)
	}
	q += ` ORDER BY at DESC, id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	q += ` LIMIT ? OFFSET ?`
	args = append(args, limit, filter.Offset)

	var out []VersionEvent
	err := s.withRetry(ctx, func() error {
		out = nil
		rows, err := s.db.QueryContext(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var v VersionEvent
			var codeID sql.NullInt64
			if err := rows.Scan(&v.ID, &v.ProjectID, &v.Codigo, &codeID, &v.Action, &v.Actor, &v.Previous, &v.Next, &v.At); err != nil {
				return err
			}
			if codeID.Valid {
				c := codeID.Int64
				v.CodeID = &c
			}
			out = append(out, v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, apperr.Wrap(scopedErr(err))
	}
	return out, nil
}
