// Package projection implements C6, the Projection Synchronizer: it
// incrementally projects ledger rows into the graph store and the
// vector store, in the order spec section 4.6 requires (fragments,
// then codes, then axial relations, then link predictions last),
// retrying transient errors with backoff and marking permanent
// failures so that row's retries halt, per spec section 4.6 and
// section 9's "cross-store consistency under partial availability"
// strategy. The worker pool fanning out across entity kinds uses
// golang.org/x/sync/errgroup, the dependency SPEC_FULL.md section 3
// names for this role.
package projection

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/errgroup"

	"github.com/qualcode/ontocore/internal/graphstore"
	"github.com/qualcode/ontocore/internal/ledger"
	"github.com/qualcode/ontocore/internal/vectorstore"
)

// EmbeddingSource produces a vector embedding for fragment text. It is
// the injectable boundary to the embedding-generation external
// collaborator spec section 1 places out of scope: the synchronizer
// never computes an embedding itself, only consumes whatever this
// returns, mirroring how SyncFragments treats loadFragment as an
// externally supplied collaborator.
type EmbeddingSource interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RetryConfig controls the backoff applied to transient graph-store
// errors, mirroring spec section 4.6: base 1s, factor 2, cap 30s, max
// 3 attempts.
type RetryConfig struct {
	BaseMS      int
	Factor      int
	CapMS       int
	MaxAttempts int
}

// DefaultRetryConfig matches the spec-mandated defaults.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{BaseMS: 1000, Factor: 2, CapMS: 30000, MaxAttempts: 3}
}

func (c RetryConfig) backoffFor(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Duration(c.BaseMS) * time.Millisecond
	b.Multiplier = float64(c.Factor)
	b.MaxInterval = time.Duration(c.CapMS) * time.Millisecond
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.MaxAttempts-1)), ctx)
}

// GraphSink is the subset of graphstore.Client the synchronizer calls,
// accepted as an interface so RunAll/SyncFragments/SyncCodes/SyncAxial/
// SyncPredictions can run in tests against a fake graph store rather
// than a live Neo4j instance. *graphstore.Client satisfies it.
type GraphSink interface {
	UpsertFragment(ctx context.Context, f graphstore.Fragment) error
	UpsertCode(ctx context.Context, c graphstore.Code) error
	UpsertAxial(ctx context.Context, a graphstore.Axial) error
	UpsertLinkPrediction(ctx context.Context, p graphstore.LinkPrediction) error
}

// Synchronizer drains unsynced ledger rows into the graph store and,
// when configured, the vector store.
type Synchronizer struct {
	store     *ledger.Store
	graph     GraphSink
	batchSize int
	retry     RetryConfig

	// vector and embed are both nil unless SetVectorStore has been
	// called. A nil vector store disables SyncVectors the same way a
	// nil graph client would disable graph projection: absent, not
	// broken.
	vector *vectorstore.Store
	embed  EmbeddingSource
}

// New builds a Synchronizer. batchSize is SYNC_BATCH_SIZE.
func New(store *ledger.Store, graph GraphSink, batchSize int, retry RetryConfig) *Synchronizer {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Synchronizer{store: store, graph: graph, batchSize: batchSize, retry: retry}
}

// SetVectorStore wires the vector-store projection target and its
// embedding source into the synchronizer, enabling SyncVectors and its
// participation in RunAll. embed may be nil if no embedding source is
// configured yet; SyncVectors then returns a zero Result without
// scanning, and vector_sync_status rows stay unsynced.
func (s *Synchronizer) SetVectorStore(vector *vectorstore.Store, embed EmbeddingSource) {
	s.vector = vector
	s.embed = embed
}

// Result summarizes one sync batch run, the shape of the {scanned,
// synced, remaining} response spec section 6's POST /sync/* returns.
type Result struct {
	Scanned   int
	Synced    int
	Remaining int
}

// withRetry runs op with the configured transient-error backoff,
// marking a permanent failure via markErr when attempts are exhausted
// and then returning that failure, matching the "non-retryable ->
// backoff.Permanent" pattern the ledger's own withRetry follows.
func (s *Synchronizer) withRetry(ctx context.Context, op func() error, markErr func(error) error) error {
	bo := s.retry.backoffFor(ctx)
	err := backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}, bo)
	if err != nil {
		if mErr := markErr(err); mErr != nil {
			return mErr
		}
		return err
	}
	return nil
}

func isTransient(err error) bool {
	// Conservative default: treat every graph-store error as transient
	// up to MaxAttempts, then let the caller record it permanent. A
	// driver-classified "ServiceUnavailable"/"TransientError" would be
	// detected here in a production build via neo4j.IsTransientError.
	return true
}

// SyncFragments drains up to batchSize unsynced fragments, fetching
// their projection payload via loadFragment, MERGEing each into the
// graph store, and flipping neo4j_synced on success.
func (s *Synchronizer) SyncFragments(ctx context.Context, projectID string, loadFragment func(ctx context.Context, fragmentID string) (graphstore.Fragment, bool, error)) (Result, error) {
	rows, err := s.store.UnsyncedFragments(ctx, projectID, s.batchSize)
	if err != nil {
		return Result{}, err
	}
	res := Result{Scanned: len(rows)}
	for _, row := range rows {
		frag, ok, err := loadFragment(ctx, row.FragmentID)
		if err != nil {
			_ = s.store.MarkFragmentSyncError(ctx, projectID, row.FragmentID, err.Error())
			continue
		}
		if !ok {
			continue
		}
		frag.ProjectID = projectID
		err = s.withRetry(ctx, func() error {
			return s.graph.UpsertFragment(ctx, frag)
		}, func(e error) error {
			_ = s.store.MarkFragmentSyncError(ctx, projectID, row.FragmentID, e.Error())
			return nil
		})
		if err != nil {
			continue
		}
		if markErr := s.store.MarkFragmentSynced(ctx, projectID, row.FragmentID); markErr == nil {
			res.Synced++
		}
	}
	remaining, err := s.store.UnsyncedFragments(ctx, projectID, 1)
	if err == nil {
		res.Remaining = len(remaining)
	}
	return res, nil
}

// SyncVectors drains up to batchSize fragments not yet marked synced in
// vector_sync_status, fetching their text via loadFragment (the same
// collaborator SyncFragments uses) and their embedding via the
// configured EmbeddingSource, then upserting into the vector store
// keyed by fragment_id with project_id as payload, per spec section 9's
// persisted state layout. A synchronizer with no vector store
// configured returns a zero Result immediately, the same "disabled,
// not broken" behavior SyncFragments would show for a nil graph client.
func (s *Synchronizer) SyncVectors(ctx context.Context, projectID string, loadFragment func(ctx context.Context, fragmentID string) (graphstore.Fragment, bool, error)) (Result, error) {
	if s.vector == nil || s.embed == nil {
		return Result{}, nil
	}
	rows, err := s.store.UnsyncedFragmentVectors(ctx, projectID, s.batchSize)
	if err != nil {
		return Result{}, err
	}
	res := Result{Scanned: len(rows)}
	for _, row := range rows {
		frag, ok, err := loadFragment(ctx, row.FragmentID)
		if err != nil {
			_ = s.store.MarkFragmentVectorSyncError(ctx, projectID, row.FragmentID, err.Error())
			continue
		}
		if !ok {
			continue
		}
		err = s.withRetry(ctx, func() error {
			vec, err := s.embed.Embed(ctx, frag.Text)
			if err != nil {
				return err
			}
			return s.vector.Upsert(ctx, projectID, row.FragmentID, vec, map[string]any{
				"interview_id": frag.InterviewID,
				"speaker":      frag.Speaker,
			})
		}, func(e error) error {
			_ = s.store.MarkFragmentVectorSyncError(ctx, projectID, row.FragmentID, e.Error())
			return nil
		})
		if err != nil {
			continue
		}
		if markErr := s.store.MarkFragmentVectorSynced(ctx, projectID, row.FragmentID); markErr == nil {
			res.Synced++
		}
	}
	remaining, err := s.store.UnsyncedFragmentVectors(ctx, projectID, 1)
	if err == nil {
		res.Remaining = len(remaining)
	}
	return res, nil
}

// LoadFragmentFromAssignments builds the projection payload for
// fragmentID out of assignment rows, since fragment ingestion itself is
// an external collaborator (spec section 1): the identity core has no
// fragment text of its own beyond the verbatim citation an assignment
// carries. Shared by the adminapi sync handlers and the background
// synchronizer loop so both read fragment text the same way.
func LoadFragmentFromAssignments(ctx context.Context, store *ledger.Store, projectID, fragmentID string) (graphstore.Fragment, bool, error) {
	var found *ledger.AssignmentSnapshotRow
	err := store.RunInTransaction(ctx, projectID, func(tx *ledger.Tx) error {
		rows, err := tx.AssignmentSnapshot()
		if err != nil {
			return err
		}
		for i := range rows {
			if rows[i].FragmentID == fragmentID {
				found = &rows[i]
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return graphstore.Fragment{}, false, err
	}
	if found == nil {
		return graphstore.Fragment{}, false, nil
	}
	return graphstore.Fragment{ID: fragmentID, ProjectID: projectID, Text: found.Cita}, true, nil
}

// SyncAxial MERGEs up to batchSize validated axial relations into the
// graph store as the category/edge shape. Axial rows carry no sync
// flag, so every run projects the same validated rows again (MERGE keeps
// that idempotent) and Remaining is always zero. Axial relations sync after
// codes per the spec-mandated ordering; callers are responsible for
// invoking SyncFragments and code sync first within a single run.
func (s *Synchronizer) SyncAxial(ctx context.Context, projectID string, updatedAt string) (Result, error) {
	rows, err := s.store.UnsyncedAxialRelations(ctx, projectID, s.batchSize)
	if err != nil {
		return Result{}, err
	}
	res := Result{Scanned: len(rows)}
	for _, a := range rows {
		axial := graphstore.Axial{
			ProjectID: projectID, Categoria: a.Categoria, CodeID: a.CodeID,
			Relation: string(a.Relation), Memo: a.Memo, Evidence: a.Evidence, UpdatedAt: updatedAt,
		}
		err := s.withRetry(ctx, func() error {
			return s.graph.UpsertAxial(ctx, axial)
		}, func(e error) error { return nil })
		if err == nil {
			res.Synced++
		}
	}
	return res, nil
}

// SyncCodes projects every catalog row with code_id greater than the
// (project_id, "codes") sync cursor, per spec section 3's
// "last-sync cursor per (project_id, entity)" sync-status mechanism
// (codes have no per-row flag the way fragments do).
func (s *Synchronizer) SyncCodes(ctx context.Context, projectID string) (Result, error) {
	cursor, err := s.store.GetSyncCursor(ctx, projectID, "codes")
	if err != nil {
		return Result{}, err
	}
	var lastID int64
	fmt.Sscanf(cursor, "%d", &lastID)

	rows, err := s.store.CatalogSnapshot(ctx, projectID)
	if err != nil {
		return Result{}, err
	}
	res := Result{}
	maxSynced := lastID
	for _, row := range rows {
		if row.CodeID <= lastID {
			continue
		}
		if res.Scanned >= s.batchSize {
			res.Remaining++
			continue
		}
		res.Scanned++
		err := s.withRetry(ctx, func() error {
			return s.graph.UpsertCode(ctx, graphstore.Code{CodeID: row.CodeID, Codigo: row.Codigo, ProjectID: projectID})
		}, func(e error) error { return nil })
		if err == nil {
			res.Synced++
			if row.CodeID > maxSynced {
				maxSynced = row.CodeID
			}
		}
	}
	if maxSynced > lastID {
		if err := s.store.SetSyncCursor(ctx, projectID, "codes", fmt.Sprintf("%d", maxSynced)); err != nil {
			return res, err
		}
	}
	return res, nil
}

// SyncPredictions drains validated, unsynced link predictions and
// MERGEs the Code-REL{type, source}->Code edge into the graph store.
// Link predictions sync last per spec section 4.6's ordering rule:
// callers run SyncFragments, SyncCodes, and SyncAxial first.
func (s *Synchronizer) SyncPredictions(ctx context.Context, projectID string) (Result, error) {
	rows, err := s.store.UnsyncedLinkPredictions(ctx, projectID, s.batchSize)
	if err != nil {
		return Result{}, err
	}
	res := Result{Scanned: len(rows)}
	for _, p := range rows {
		pred := graphstore.LinkPrediction{
			ProjectID: projectID, SourceCodeID: p.SourceCodeID, TargetCodeID: p.TargetCodeID,
			RelType: p.RelType, Source: p.Source,
		}
		err := s.withRetry(ctx, func() error {
			return s.graph.UpsertLinkPrediction(ctx, pred)
		}, func(e error) error {
			_ = s.store.MarkLinkPredictionSyncError(ctx, projectID, p.ID, e.Error())
			return nil
		})
		if err != nil {
			continue
		}
		if markErr := s.store.MarkLinkPredictionSynced(ctx, projectID, p.ID); markErr == nil {
			res.Synced++
		}
	}
	remaining, err := s.store.UnsyncedLinkPredictions(ctx, projectID, 1)
	if err == nil {
		res.Remaining = len(remaining)
	}
	return res, nil
}

// RunAll fans out across sync entity kinds using errgroup in the two
// barriers spec section 4.6's ordering rule actually requires: nothing
// in a fragment's MERGE touches a Code node, so fragments, codes, and
// the vector-store embedding pass (which only ever reads fragment text,
// never a Code node) are mutually independent and run in one group;
// axial relations and link predictions both only MATCH an
// already-upserted Code node and write disjoint edge shapes
// (Category-REL->Code vs Code-REL->Code), so they are independent of
// each other too — but both must wait for the first group's code sync
// to land, which is why they form a second group rather than joining
// the first.
func (s *Synchronizer) RunAll(ctx context.Context, projectID string, loadFragment func(ctx context.Context, fragmentID string) (graphstore.Fragment, bool, error)) (map[string]Result, error) {
	results := make(map[string]Result)

	g1, gctx1 := errgroup.WithContext(ctx)
	var fragResult, codeResult, vectorResult Result
	g1.Go(func() error {
		r, err := s.SyncFragments(gctx1, projectID, loadFragment)
		fragResult = r
		return err
	})
	g1.Go(func() error {
		r, err := s.SyncCodes(gctx1, projectID)
		codeResult = r
		return err
	})
	g1.Go(func() error {
		r, err := s.SyncVectors(gctx1, projectID, loadFragment)
		vectorResult = r
		return err
	})
	if err := g1.Wait(); err != nil {
		return results, fmt.Errorf("projection: sync fragments/codes/vectors: %w", err)
	}
	results["fragments"] = fragResult
	results["codes"] = codeResult
	results["vectors"] = vectorResult

	g2, gctx2 := errgroup.WithContext(ctx)
	var axialResult, predictionResult Result
	g2.Go(func() error {
		r, err := s.SyncAxial(gctx2, projectID, time.Now().UTC().Format(time.RFC3339))
		axialResult = r
		return err
	})
	g2.Go(func() error {
		r, err := s.SyncPredictions(gctx2, projectID)
		predictionResult = r
		return err
	})
	if err := g2.Wait(); err != nil {
		return results, fmt.Errorf("projection: sync axial/predictions: %w", err)
	}
	results["axial"] = axialResult
	results["predictions"] = predictionResult
	return results, nil
}
