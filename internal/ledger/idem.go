package ledger

import (
	"context"
	"database/sql"
	"time"

	"github.com/qualcode/ontocore/internal/apperr"
)

// GetIdempotentResponse looks up a previously stored response for
// (projectID, operation, key). A miss is reported as not_found so
// callers can distinguish "never seen" from a real error.
func (s *Store) GetIdempotentResponse(ctx context.Context, projectID, operation, key string) ([]byte, error) {
	var resp []byte
	err := s.withRetry(ctx, func() error {
		row := s.db.QueryRowContext(ctx, `
			SELECT response FROM idem
			WHERE project_id = ? AND operation = ? AND idem_key = ? AND expires_at > CURRENT_TIMESTAMP
		`, projectID, operation, key)
		return row.Scan(&resp)
	})
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("no idempotent response for key %q", key)
	}
	if err != nil {
		return nil, scopedErr(err)
	}
	return resp, nil
}

// StoreIdempotentResponse records resp under (projectID, operation,
// key) with the given TTL. A collision on an already-stored key is a
// silent no-op: the first writer wins, matching the "identical
// resubmissions return the prior result" contract in spec section 4.7.
func (t *Tx) StoreIdempotentResponse(operation, key string, resp []byte, ttl time.Duration) error {
	_, err := t.tx.Exec(`
		INSERT INTO idem (project_id, operation, idem_key, response, expires_at)
		VALUES (?, ?, ?, ?, DATE_ADD(CURRENT_TIMESTAMP, INTERVAL ? SECOND))
		ON DUPLICATE KEY UPDATE idem_key = idem_key
	`, t.projectID, operation, key, resp, int64(ttl.Seconds()))
	return scopedErr(err)
}

// PurgeExpiredIdempotencyKeys deletes rows whose TTL has elapsed. Meant
// to be called periodically by a maintenance job, not per-request.
func (s *Store) PurgeExpiredIdempotencyKeys(ctx context.Context) (int64, error) {
	var n int64
	err := s.withRetry(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM idem WHERE expires_at <= CURRENT_TIMESTAMP`)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, scopedErr(err)
	}
	return n, nil
}
