package ledger

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/qualcode/ontocore/internal/apperr"
)

// CreateAxialRelation inserts a category-to-code relation. Callers must
// have already checked C4 readiness and evidence cardinality (>= 2)
// before calling, per spec section 4.4's enforcement contract, and
// must pass codeID already resolved to its canonical form (invariant
// I6) — this method persists codeID as given and does not re-resolve it.
func (t *Tx) CreateAxialRelation(categoria, codigo string, codeID int64, relation AxialRelationKind, memo string, evidence []string) (*AxialRelation, error) {
	if len(evidence) < 2 {
		return nil, apperr.InvalidRequest("axial relation requires at least 2 evidence fragments, got %d", len(evidence))
	}
	evJSON, err := json.Marshal(evidence)
	if err != nil {
		return nil, apperr.Internal(err, "marshal evidence")
	}
	res, err := t.tx.Exec(`
		INSERT INTO axial (project_id, categoria, codigo, code_id, relation, memo, evidence, state)
		VALUES (?, ?, ?, ?, ?, ?, ?, 'pending')
	`, t.projectID, categoria, codigo, codeID, relation, memo, evJSON)
	if err != nil {
		if isDuplicateErr(err) {
			return nil, apperr.Conflict("axial relation (%s, %s, %s) already exists", categoria, codigo, relation)
		}
		return nil, scopedErr(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, apperr.Internal(err, "read last insert id")
	}
	return t.GetAxialRelation(id)
}

// GetAxialRelation returns one axial relation row.
func (t *Tx) GetAxialRelation(id int64) (*AxialRelation, error) {
	row := t.tx.QueryRow(`
		SELECT id, project_id, categoria, codigo, code_id, relation, memo, evidence, state, created_at, updated_at
		FROM axial WHERE project_id = ? AND id = ?
	`, t.projectID, id)
	var a AxialRelation
	var memo sql.NullString
	var evJSON []byte
	if err := row.Scan(&a.ID, &a.ProjectID, &a.Categoria, &a.Codigo, &a.CodeID, &a.Relation, &memo, &evJSON, &a.State, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("axial relation not found")
		}
		return nil, scopedErr(err)
	}
	a.Memo = memo.String
	if len(evJSON) > 0 {
		if err := json.Unmarshal(evJSON, &a.Evidence); err != nil {
			return nil, apperr.Internal(err, "unmarshal evidence")
		}
	}
	return &a, nil
}

// TransitionAxialRelation moves an axial relation to a new state.
func (t *Tx) TransitionAxialRelation(id int64, newState AxialState) error {
	_, err := t.tx.Exec(`UPDATE axial SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE project_id = ? AND id = ?`,
		newState, t.projectID, id)
	return scopedErr(err)
}

// UnsyncedAxialRelations returns up to limit validated axial rows for
// projection, ordered by id. Axial rows keep no per-row sync flag, so
// rows already projected are returned again; ordering after codes per
// spec section 4.6 is up to the caller.
func (s *Store) UnsyncedAxialRelations(ctx context.Context, projectID string, limit int) ([]AxialRelation, error) {
	var out []AxialRelation
	err := s.withRetry(ctx, func() error {
		out = nil
		rows, err := s.db.QueryContext(ctx, `
			SELECT id, project_id, categoria, codigo, code_id, relation, memo, evidence, state, created_at, updated_at
			FROM axial WHERE project_id = ? AND state = 'validated' ORDER BY id LIMIT ?
		`, projectID, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var a AxialRelation
			var memo sql.NullString
			var evJSON []byte
			if err := rows.Scan(&a.ID, &a.ProjectID, &a.Categoria, &a.Codigo, &a.CodeID, &a.Relation, &memo, &evJSON, &a.State, &a.CreatedAt, &a.UpdatedAt); err != nil {
				return err
			}
			a.Memo = memo.String
			if len(evJSON) > 0 {
				_ = json.Unmarshal(evJSON, &a.Evidence)
			}
			out = append(out, a)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, scopedErr(err)
	}
	return out, nil
}
