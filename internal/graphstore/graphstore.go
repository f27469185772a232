// Package graphstore is the thin client the projection synchronizer
// (C6) uses to MERGE ledger rows into Neo4j, per spec section 4.6. The
// graph store never originates identity: every write here is a
// MERGE-by-identity upsert keyed by code_id (codes) or a composite key
// (fragments), so replaying the same batch twice is a no-op.
//
// No example in the retrieval pack ships a graph database client, so
// this package is grounded directly in the driver's own documented
// session/MERGE idiom rather than in a pack repo; spec section 4.6 and
// section 9 name Neo4j-style MERGE semantics and neo4j_synced flags
// explicitly, which is why this dependency was picked over leaving
// graph projection unimplemented.
package graphstore

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Client wraps a neo4j.DriverWithContext scoped to one database.
type Client struct {
	driver neo4j.DriverWithContext
}

// Config configures Open.
type Config struct {
	URI      string
	Username string
	Password string
}

// Open connects to a Neo4j (or Neo4j-protocol-compatible) server.
func Open(ctx context.Context, cfg Config) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("graphstore: new driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graphstore: verify connectivity: %w", err)
	}
	return &Client{driver: driver}, nil
}

// Close releases the driver's connection pool.
func (c *Client) Close(ctx context.Context) error { return c.driver.Close(ctx) }

func (c *Client) run(ctx context.Context, cypher string, params map[string]any) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, cypher, params)
	})
	return err
}

// Fragment is the minimal fragment projection per spec section 4.6.
type Fragment struct {
	ID        string
	ProjectID string
	Text      string
	ParIdx    int
	CharLen   int
	Speaker   string
	InterviewID string
}

// UpsertFragment MERGEs a Fragment node (and its Interview-HAS_FRAGMENT
// edge, when InterviewID is set), keyed by the composite (id, project_id).
func (c *Client) UpsertFragment(ctx context.Context, f Fragment) error {
	cypher := `
		MERGE (fr:Fragment {id: $id, project_id: $project_id})
		SET fr.text = $text, fr.par_idx = $par_idx, fr.char_len = $char_len, fr.speaker = $speaker
		WITH fr
		CALL {
			WITH fr
			MATCH (fr)
			WHERE $interview_id IS NOT NULL AND $interview_id <> ''
			MERGE (iv:Interview {id: $interview_id, project_id: $project_id})
			MERGE (iv)-[:HAS_FRAGMENT]->(fr)
			RETURN 1 AS linked
		}
		RETURN fr
	`
	return c.run(ctx, cypher, map[string]any{
		"id": f.ID, "project_id": f.ProjectID, "text": f.Text,
		"par_idx": f.ParIdx, "char_len": f.CharLen, "speaker": f.Speaker,
		"interview_id": f.InterviewID,
	})
}

// Code is the minimal code projection. Match-by-code_id is preferred;
// codigo is carried as a renameable label property, never the match key.
type Code struct {
	CodeID    int64
	Codigo    string
	ProjectID string
}

// UpsertCode MERGEs a Code node keyed by (code_id, project_id).
func (c *Client) UpsertCode(ctx context.Context, code Code) error {
	return c.run(ctx, `
		MERGE (c:Code {code_id: $code_id, project_id: $project_id})
		SET c.codigo = $codigo
	`, map[string]any{"code_id": code.CodeID, "project_id": code.ProjectID, "codigo": code.Codigo})
}

// LinkFragmentCode MERGEs the Fragment-HAS_CODE->Code edge.
func (c *Client) LinkFragmentCode(ctx context.Context, projectID, fragmentID string, codeID int64) error {
	return c.run(ctx, `
		MATCH (fr:Fragment {id: $fragment_id, project_id: $project_id})
		MATCH (c:Code {code_id: $code_id, project_id: $project_id})
		MERGE (fr)-[:HAS_CODE]->(c)
	`, map[string]any{"fragment_id": fragmentID, "project_id": projectID, "code_id": codeID})
}

// Axial is the minimal category-to-code relation projection.
type Axial struct {
	ProjectID string
	Categoria string
	CodeID    int64
	Relation  string
	Memo      string
	Evidence  []string
	UpdatedAt string
}

// UpsertAxial MERGEs the Category node and its Category-REL{...}->Code
// edge, keyed by (categoria, project_id) on the category side and
// code_id on the code side.
func (c *Client) UpsertAxial(ctx context.Context, a Axial) error {
	return c.run(ctx, `
		MERGE (cat:Category {nombre: $categoria, project_id: $project_id})
		WITH cat
		MATCH (code:Code {code_id: $code_id, project_id: $project_id})
		MERGE (cat)-[r:REL {type: $relation}]->(code)
		SET r.memo = $memo, r.evidence = $evidence, r.updated_at = $updated_at
	`, map[string]any{
		"categoria": a.Categoria, "project_id": a.ProjectID, "code_id": a.CodeID,
		"relation": a.Relation, "memo": a.Memo, "evidence": a.Evidence, "updated_at": a.UpdatedAt,
	})
}

// LinkPrediction is a validated code-to-code relation derived from a
// link-prediction model.
type LinkPrediction struct {
	ProjectID    string
	SourceCodeID int64
	TargetCodeID int64
	RelType      string
	Source       string
}

// UpsertLinkPrediction MERGEs the Code-REL{type, source}->Code edge.
func (c *Client) UpsertLinkPrediction(ctx context.Context, p LinkPrediction) error {
	return c.run(ctx, `
		MATCH (a:Code {code_id: $source_code_id, project_id: $project_id})
		MATCH (b:Code {code_id: $target_code_id, project_id: $project_id})
		MERGE (a)-[r:REL {type: $rel_type}]->(b)
		SET r.source = $source
	`, map[string]any{
		"source_code_id": p.SourceCodeID, "target_code_id": p.TargetCodeID,
		"project_id": p.ProjectID, "rel_type": p.RelType, "source": p.Source,
	})
}
