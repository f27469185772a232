package ledger

import (
	"database/sql"

	"github.com/qualcode/ontocore/internal/apperr"
)

// UpsertAssignment creates or updates the definitive code-to-fragment
// link, per spec section 3's Assignment uniqueness on
// (project_id, fragment_id, codigo).
func (t *Tx) UpsertAssignment(fragmentID, codigo string, codeID *int64, cita, sourceFile string) error {
	_, err := t.tx.Exec(`
		INSERT INTO assignment (project_id, fragment_id, codigo, code_id, cita, source_file)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			code_id = VALUES(code_id),
			cita = VALUES(cita),
			source_file = VALUES(source_file),
			updated_at = CURRENT_TIMESTAMP
	`, t.projectID, fragmentID, codigo, codeID, cita, sourceFile)
	return scopedErr(err)
}

// GetAssignment returns one assignment row.
func (t *Tx) GetAssignment(fragmentID, codigo string) (*Assignment, error) {
	row := t.tx.QueryRow(`
		SELECT project_id, fragment_id, codigo, code_id, cita, source_file, created_at, updated_at
		FROM assignment WHERE project_id = ? AND fragment_id = ? AND codigo = ?
	`, t.projectID, fragmentID, codigo)
	var a Assignment
	var codeID sql.NullInt64
	if err := row.Scan(&a.ProjectID, &a.FragmentID, &a.Codigo, &codeID, &a.Cita, &a.SourceFile, &a.CreatedAt, &a.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("assignment not found")
		}
		return nil, scopedErr(err)
	}
	if codeID.Valid {
		v := codeID.Int64
		a.CodeID = &v
	}
	return &a, nil
}

// SetAssignmentCodeID backfills the denormalised code_id on one
// assignment row, used by the repair/backfill maintenance operations
// (spec section 4.7) to resolve missing_code_id and
// divergences_text_vs_id readiness blockers.
func (t *Tx) SetAssignmentCodeID(fragmentID, codigo string, codeID int64) error {
	_, err := t.tx.Exec(`
		UPDATE assignment SET code_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE project_id = ? AND fragment_id = ? AND codigo = ?
	`, codeID, t.projectID, fragmentID, codigo)
	return scopedErr(err)
}

// RepointAssignmentCodigo moves every assignment row for codigo to
// targetCodigo and targetCodeID, used when merge_pairs applies to
// already-promoted assignment rows rather than pending candidates.
func (t *Tx) RepointAssignmentCodigo(codigo, targetCodigo string, targetCodeID int64) (int64, error) {
	res, err := t.tx.Exec(`
		UPDATE assignment SET codigo = ?, code_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE project_id = ? AND codigo = ?
	`, targetCodigo, targetCodeID, t.projectID, codigo)
	if err != nil {
		return 0, scopedErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, apperr.Internal(err, "read rows affected")
	}
	return n, nil
}

// AssignmentSnapshotRow is the minimal projection C4's readiness gate
// needs to compute missing_code_id and divergences_text_vs_id.
type AssignmentSnapshotRow struct {
	FragmentID string
	Codigo     string
	CodeID     *int64
}

// AssignmentSnapshot returns every assignment row for the project.
func (t *Tx) AssignmentSnapshot() ([]AssignmentSnapshotRow, error) {
	rows, err := t.tx.Query(`SELECT fragment_id, codigo, code_id FROM assignment WHERE project_id = ?`, t.projectID)
	if err != nil {
		return nil, scopedErr(err)
	}
	defer rows.Close()

	var out []AssignmentSnapshotRow
	for rows.Next() {
		var r AssignmentSnapshotRow
		var codeID sql.NullInt64
		if err := rows.Scan(&r.FragmentID, &r.Codigo, &codeID); err != nil {
			return nil, scopedErr(err)
		}
		if codeID.Valid {
			v := codeID.Int64
			r.CodeID = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
