package ledger

import (
	"database/sql"

	"github.com/qualcode/ontocore/internal/apperr"
)

// UpsertCandidate inserts a candidate or, on a (project_id, codigo,
// fragment_id) collision, upserts it back to pending with the higher
// of the old/new confidence, per spec section 4.3's submit contract.
func (t *Tx) UpsertCandidate(codigo string, fragmentID *string, source CandidateSource, confidence float64, memo string) (*Candidate, error) {
	_, err := t.tx.Exec(`
		INSERT INTO candidate (project_id, codigo, fragment_id, source, confidence, state, memo)
		VALUES (?, ?, ?, ?, ?, 'pending', ?)
		ON DUPLICATE KEY UPDATE
			state = 'pending',
			confidence = GREATEST(confidence, VALUES(confidence)),
			source = VALUES(source),
			memo = VALUES(memo),
			updated_at = CURRENT_TIMESTAMP
	`, t.projectID, codigo, fragmentID, source, confidence, memo)
	if err != nil {
		return nil, scopedErr(err)
	}
	return t.getCandidateByKey(codigo, fragmentID)
}

func (t *Tx) getCandidateByKey(codigo string, fragmentID *string) (*Candidate, error) {
	row := t.tx.QueryRow(`
		SELECT id, project_id, codigo, fragment_id, source, confidence, state, merged_into, memo, validator, created_at, updated_at
		FROM candidate WHERE project_id = ? AND codigo = ? AND fragment_id <=> ?
	`, t.projectID, codigo, fragmentID)
	return scanCandidate(row)
}

// GetCandidate returns the candidate row by id.
func (t *Tx) GetCandidate(id int64) (*Candidate, error) {
	row := t.tx.QueryRow(`
		SELECT id, project_id, codigo, fragment_id, source, confidence, state, merged_into, memo, validator, created_at, updated_at
		FROM candidate WHERE project_id = ? AND id = ?
	`, t.projectID, id)
	return scanCandidate(row)
}

func scanCandidate(row *sql.Row) (*Candidate, error) {
	var c Candidate
	var fragmentID, mergedInto, memo, validator sql.NullString
	if err := row.Scan(&c.ID, &c.ProjectID, &c.Codigo, &fragmentID, &c.Source, &c.Confidence,
		&c.State, &mergedInto, &memo, &validator, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("candidate not found")
		}
		return nil, scopedErr(err)
	}
	if fragmentID.Valid {
		v := fragmentID.String
		c.FragmentID = &v
	}
	if mergedInto.Valid {
		v := mergedInto.String
		c.MergedInto = &v
	}
	c.Memo = memo.String
	c.Validator = validator.String
	return &c, nil
}

// TransitionCandidate moves a candidate to newState, recording actor.
// Callers are responsible for the freeze/readiness gating described in
// spec section 4.3; this method only performs the state change.
func (t *Tx) TransitionCandidate(id int64, newState CandidateState, actor string, memo *string) error {
	if memo != nil {
		_, err := t.tx.Exec(`
			UPDATE candidate SET state = ?, validator = ?, memo = ?, updated_at = CURRENT_TIMESTAMP
			WHERE project_id = ? AND id = ?
		`, newState, actor, *memo, t.projectID, id)
		return scopedErr(err)
	}
	_, err := t.tx.Exec(`
		UPDATE candidate SET state = ?, validator = ?, updated_at = CURRENT_TIMESTAMP
		WHERE project_id = ? AND id = ?
	`, newState, actor, t.projectID, id)
	return scopedErr(err)
}

// ReassignCandidate repoints a candidate's codigo and merged_into
// during a merge, keeping its evidence fragment unchanged (step 2 of
// merge_ids when the target does not yet carry that fragment).
func (t *Tx) ReassignCandidate(id int64, targetCodigo string) error {
	_, err := t.tx.Exec(`
		UPDATE candidate SET codigo = ?, merged_into = ?, updated_at = CURRENT_TIMESTAMP
		WHERE project_id = ? AND id = ?
	`, targetCodigo, targetCodigo, t.projectID, id)
	return scopedErr(err)
}

// MarkCandidateMerged marks a source candidate merged without moving
// its fragment (the target already carries that fragment), preserving
// audit per the no-loss invariant I7.
func (t *Tx) MarkCandidateMerged(id int64, targetCodigo string) error {
	_, err := t.tx.Exec(`
		UPDATE candidate SET state = 'merged', merged_into = ?, updated_at = CURRENT_TIMESTAMP
		WHERE project_id = ? AND id = ?
	`, targetCodigo, t.projectID, id)
	return scopedErr(err)
}

// CandidateFragmentExistsForCodigo reports whether a candidate or
// assignment already links fragmentID to targetCodigo, the check
// merge_ids uses to decide between ReassignCandidate and
// MarkCandidateMerged.
func (t *Tx) CandidateFragmentExistsForCodigo(targetCodigo string, fragmentID *string) (bool, error) {
	if fragmentID == nil {
		return false, nil
	}
	var n int
	if err := t.tx.QueryRow(`
		SELECT COUNT(*) FROM candidate WHERE project_id = ? AND codigo = ? AND fragment_id = ? AND state != 'merged'
	`, t.projectID, targetCodigo, *fragmentID).Scan(&n); err != nil {
		return false, scopedErr(err)
	}
	if n > 0 {
		return true, nil
	}
	if err := t.tx.QueryRow(`
		SELECT COUNT(*) FROM assignment WHERE project_id = ? AND codigo = ? AND fragment_id = ?
	`, t.projectID, targetCodigo, *fragmentID).Scan(&n); err != nil {
		return false, scopedErr(err)
	}
	return n > 0, nil
}

// CandidatesByCodigo returns every candidate row matching codigo whose
// state is not merged, used by merge_pairs to find every row that
// needs reassignment for a given source_codigo.
func (t *Tx) CandidatesByCodigo(codigo string) ([]Candidate, error) {
	rows, err := t.tx.Query(`
		SELECT id, project_id, codigo, fragment_id, source, confidence, state, merged_into, memo, validator, created_at, updated_at
		FROM candidate WHERE project_id = ? AND codigo = ? AND state != 'merged'
	`, t.projectID, codigo)
	if err != nil {
		return nil, scopedErr(err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		var fragmentID, mergedInto, memo, validator sql.NullString
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Codigo, &fragmentID, &c.Source, &c.Confidence,
			&c.State, &mergedInto, &memo, &validator, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, scopedErr(err)
		}
		if fragmentID.Valid {
			v := fragmentID.String
			c.FragmentID = &v
		}
		if mergedInto.Valid {
			v := mergedInto.String
			c.MergedInto = &v
		}
		c.Memo = memo.String
		c.Validator = validator.String
		out = append(out, c)
	}
	return out, rows.Err()
}
