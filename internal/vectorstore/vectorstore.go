// Package vectorstore holds fragment embeddings keyed by fragment_id,
// with project_id as an indexed payload column, backed by a
// sqlite-vec virtual table — grounded on the codenerd example's
// internal/store/vector_store.go and internal/store/init_vec.go, which
// register the sqlite-vec extension against mattn/go-sqlite3 and store
// embeddings alongside JSON metadata. Embedding generation itself is
// out of scope (spec section 1); this package only persists and
// queries vectors handed to it by the embedding-generation
// collaborator.
package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
)

func init() {
	// Registers the sqlite-vec extension as auto-loadable for every
	// subsequently opened mattn/go-sqlite3 connection, mirroring
	// codenerd's internal/store/init_vec.go.
	vec.Auto()
}

// Store is a sqlite-vec backed embedding index.
type Store struct {
	db  *sql.DB
	dim int
}

// Open creates (if needed) the vectors table and its vec0 virtual
// table for the given embedding dimensionality.
func Open(path string, dim int) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open: %w", err)
	}
	s := &Store{db: db, dim: dim}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) init() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS fragment_vectors (
			fragment_id TEXT PRIMARY KEY,
			project_id  TEXT NOT NULL,
			embedding   BLOB NOT NULL,
			metadata    TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fragment_vectors_project ON fragment_vectors (project_id)`,
		fmt.Sprintf(`CREATE VIRTUAL TABLE IF NOT EXISTS vec_fragments USING vec0(
			fragment_id TEXT PRIMARY KEY,
			embedding FLOAT[%d]
		)`, s.dim),
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("vectorstore: init: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

// Upsert stores embedding for fragmentID under projectID, replacing
// any prior vector for that fragment — MERGE-by-identity using
// fragment_id as the key, the same idempotent-upsert discipline as the
// graph store's MERGE.
func (s *Store) Upsert(ctx context.Context, projectID, fragmentID string, embedding []float32, metadata map[string]any) error {
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("vectorstore: marshal metadata: %w", err)
	}
	blob, err := vec.SerializeFloat32(embedding)
	if err != nil {
		return fmt.Errorf("vectorstore: serialize embedding: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("vectorstore: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO fragment_vectors (fragment_id, project_id, embedding, metadata)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(fragment_id) DO UPDATE SET project_id = excluded.project_id,
			embedding = excluded.embedding, metadata = excluded.metadata
	`, fragmentID, projectID, blob, string(metaJSON)); err != nil {
		return fmt.Errorf("vectorstore: upsert row: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO vec_fragments (fragment_id, embedding) VALUES (?, ?)
	`, fragmentID, blob); err != nil {
		return fmt.Errorf("vectorstore: upsert vec index: %w", err)
	}
	return tx.Commit()
}

// NearestNeighbor is one ranked result from a similarity search.
type NearestNeighbor struct {
	FragmentID string
	Distance   float64
}

// Search returns the k nearest fragment vectors to query, scoped to
// projectID.
func (s *Store) Search(ctx context.Context, projectID string, query []float32, k int) ([]NearestNeighbor, error) {
	blob, err := vec.SerializeFloat32(query)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: serialize query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.fragment_id, v.distance
		FROM vec_fragments v
		JOIN fragment_vectors fv ON fv.fragment_id = v.fragment_id
		WHERE v.embedding MATCH ? AND k = ? AND fv.project_id = ?
		ORDER BY v.distance
	`, blob, k, projectID)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: search: %w", err)
	}
	defer rows.Close()

	var out []NearestNeighbor
	for rows.Next() {
		var n NearestNeighbor
		if err := rows.Scan(&n.FragmentID, &n.Distance); err != nil {
			return nil, fmt.Errorf("vectorstore: scan: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
