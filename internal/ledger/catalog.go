package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/qualcode/ontocore/internal/apperr"
)

// GetCatalogByLabel returns the catalog row for codigo, case-insensitive.
func (t *Tx) GetCatalogByLabel(codigo string) (*Catalog, error) {
	row := t.tx.QueryRow(`
		SELECT code_id, project_id, codigo, status, canonical_code_id, memo, created_at, updated_at
		FROM catalog WHERE project_id = ? AND LOWER(codigo) = LOWER(?)
	`, t.projectID, codigo)
	return scanCatalog(row)
}

// GetCatalogByID returns the catalog row for codeID.
func (t *Tx) GetCatalogByID(codeID int64) (*Catalog, error) {
	row := t.tx.QueryRow(`
		SELECT code_id, project_id, codigo, status, canonical_code_id, memo, created_at, updated_at
		FROM catalog WHERE project_id = ? AND code_id = ?
	`, t.projectID, codeID)
	return scanCatalog(row)
}

func scanCatalog(row *sql.Row) (*Catalog, error) {
	var c Catalog
	var canonical sql.NullInt64
	var memo sql.NullString
	if err := row.Scan(&c.CodeID, &c.ProjectID, &c.Codigo, &c.Status, &canonical, &memo, &c.CreatedAt, &c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, apperr.NotFound("catalog row not found")
		}
		return nil, scopedErr(err)
	}
	if canonical.Valid {
		v := canonical.Int64
		c.CanonicalCodeID = &v
	}
	c.Memo = memo.String
	return &c, nil
}

// CreateCatalog mints a new catalog row with a fresh code_id. The new
// row is self-canonical by default (I2).
func (t *Tx) CreateCatalog(codigo, memo string) (*Catalog, error) {
	res, err := t.tx.Exec(`
		INSERT INTO catalog (project_id, codigo, status, memo) VALUES (?, ?, 'active', ?)
	`, t.projectID, codigo, memo)
	if err != nil {
		if isDuplicateErr(err) {
			return nil, apperr.Conflict("codigo %q already exists in project %s", codigo, t.projectID)
		}
		return nil, scopedErr(err)
	}
	codeID, err := res.LastInsertId()
	if err != nil {
		return nil, apperr.Internal(err, "read last insert id")
	}
	if _, err := t.tx.Exec(`UPDATE catalog SET canonical_code_id = ? WHERE project_id = ? AND code_id = ?`,
		codeID, t.projectID, codeID); err != nil {
		return nil, scopedErr(err)
	}
	return t.GetCatalogByID(codeID)
}

// GetOrCreateCatalog resolves codigo to a catalog row, creating one if
// absent. Used by merge_ids/merge_pairs when the destination label does
// not yet have a catalog entry.
func (t *Tx) GetOrCreateCatalog(codigo, memo string) (*Catalog, error) {
	c, err := t.GetCatalogByLabel(codigo)
	if err == nil {
		return c, nil
	}
	if apperr.KindOf(err) != apperr.KindNotFound {
		return nil, err
	}
	return t.CreateCatalog(codigo, memo)
}

// SetCanonical repoints codeID's canonical_code_id, used by promotion
// and by the repair cycle-break policy.
func (t *Tx) SetCanonical(codeID, canonicalCodeID int64) error {
	_, err := t.tx.Exec(`UPDATE catalog SET canonical_code_id = ?, updated_at = CURRENT_TIMESTAMP WHERE project_id = ? AND code_id = ?`,
		canonicalCodeID, t.projectID, codeID)
	return scopedErr(err)
}

// MarkCatalogStatus transitions a catalog row's status (e.g. to merged
// or deprecated), optionally repointing its canonical id in the same
// statement. Marking a row merged with itself as canonical is refused
// as an invariant violation (I2/I3).
func (t *Tx) MarkCatalogStatus(codeID int64, status CatalogStatus, canonicalCodeID *int64) error {
	if status == CatalogMerged && canonicalCodeID != nil && *canonicalCodeID == codeID {
		return apperr.Conflict("invariant violation: code_id %d cannot be merged into itself", codeID)
	}
	_, err := t.tx.Exec(`
		UPDATE catalog SET status = ?, canonical_code_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE project_id = ? AND code_id = ?
	`, status, canonicalCodeID, t.projectID, codeID)
	return scopedErr(err)
}

// CatalogSnapshotRow is the minimal projection the resolver needs.
type CatalogSnapshotRow struct {
	CodeID          int64
	CanonicalCodeID *int64
	Status          CatalogStatus
	Codigo          string
}

// CatalogSnapshot returns every catalog row for projectID, the single
// query C2's StandardResolver-style pure function walks in memory
// (spec section 4.2).
func (s *Store) CatalogSnapshot(ctx context.Context, projectID string) ([]CatalogSnapshotRow, error) {
	var rows []CatalogSnapshotRow
	err := s.withRetry(ctx, func() error {
		rows = nil
		r, err := s.db.QueryContext(ctx, `
			SELECT code_id, canonical_code_id, status, codigo FROM catalog WHERE project_id = ?
		`, projectID)
		if err != nil {
			return err
		}
		defer r.Close()
		for r.Next() {
			var row CatalogSnapshotRow
			var canonical sql.NullInt64
			if err := r.Scan(&row.CodeID, &canonical, &row.Status, &row.Codigo); err != nil {
				return err
			}
			if canonical.Valid {
				v := canonical.Int64
				row.CanonicalCodeID = &v
			}
			rows = append(rows, row)
		}
		return r.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: catalog snapshot: %w", scopedErr(err))
	}
	return rows, nil
}

// RecentCatalogLabels returns up to limit recently created catalog
// labels, used by C3's check_batch token-overlap comparison.
func (s *Store) RecentCatalogLabels(ctx context.Context, projectID string, limit int) ([]string, error) {
	var out []string
	err := s.withRetry(ctx, func() error {
		out = nil
		r, err := s.db.QueryContext(ctx, `
			SELECT codigo FROM catalog WHERE project_id = ? ORDER BY created_at DESC LIMIT ?
		`, projectID, limit)
		if err != nil {
			return err
		}
		defer r.Close()
		for r.Next() {
			var codigo string
			if err := r.Scan(&codigo); err != nil {
				return err
			}
			out = append(out, codigo)
		}
		return r.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("ledger: recent catalog labels: %w", scopedErr(err))
	}
	return out, nil
}

// CatalogSnapshot returns every catalog row for the project visible
// inside the current transaction, for maintenance operations (C7
// backfill/repair) that must see their own uncommitted writes as they
// walk the catalog.
func (t *Tx) CatalogSnapshot() ([]CatalogSnapshotRow, error) {
	rows, err := t.tx.Query(`
		SELECT code_id, canonical_code_id, status, codigo FROM catalog WHERE project_id = ?
	`, t.projectID)
	if err != nil {
		return nil, scopedErr(err)
	}
	defer rows.Close()

	var out []CatalogSnapshotRow
	for rows.Next() {
		var row CatalogSnapshotRow
		var canonical sql.NullInt64
		if err := rows.Scan(&row.CodeID, &canonical, &row.Status, &row.Codigo); err != nil {
			return nil, scopedErr(err)
		}
		if canonical.Valid {
			v := canonical.Int64
			row.CanonicalCodeID = &v
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func isDuplicateErr(err error) bool {
	if err == nil {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "duplicate") || strings.Contains(s, "unique")
}
