//go:build cgo

package projection_test

// Integration test against a real embedded Dolt database and a real
// sqlite-vec vector store, but a fake graph sink standing in for
// Neo4j, mirroring the teacher's dolt_test.go skip-if-unavailable
// pattern applied to the projection synchronizer.

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qualcode/ontocore/internal/advisorylock"
	"github.com/qualcode/ontocore/internal/candidates"
	"github.com/qualcode/ontocore/internal/freezectl"
	"github.com/qualcode/ontocore/internal/graphstore"
	"github.com/qualcode/ontocore/internal/ledger"
	"github.com/qualcode/ontocore/internal/projection"
	"github.com/qualcode/ontocore/internal/vectorstore"
)

func skipIfNoDolt(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("dolt"); err != nil {
		t.Skip("dolt not installed, skipping projection integration test")
	}
}

func uniqueDBDir(t *testing.T) string {
	t.Helper()
	buf := make([]byte, 6)
	_, err := rand.Read(buf)
	require.NoError(t, err)
	dir, err := os.MkdirTemp("", "ontocore-projtest-"+hex.EncodeToString(buf)+"-")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

// fakeGraphSink records every MERGE call instead of talking to Neo4j,
// so RunAll's idempotency can be checked without a live graph database.
type fakeGraphSink struct {
	mu        sync.Mutex
	fragments map[string]int
	codes     map[int64]int
}

func newFakeGraphSink() *fakeGraphSink {
	return &fakeGraphSink{fragments: map[string]int{}, codes: map[int64]int{}}
}

func (f *fakeGraphSink) UpsertFragment(_ context.Context, fr graphstore.Fragment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fragments[fr.ID]++
	return nil
}

func (f *fakeGraphSink) UpsertCode(_ context.Context, c graphstore.Code) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codes[c.CodeID]++
	return nil
}

func (f *fakeGraphSink) UpsertAxial(_ context.Context, _ graphstore.Axial) error { return nil }

func (f *fakeGraphSink) UpsertLinkPrediction(_ context.Context, _ graphstore.LinkPrediction) error {
	return nil
}

// fakeEmbedding stands in for the embedding-generation external
// collaborator (spec section 1 non-goal) with a constant vector.
type fakeEmbedding struct{ dim int }

func (f fakeEmbedding) Embed(_ context.Context, _ string) ([]float32, error) {
	vec := make([]float32, f.dim)
	for i := range vec {
		vec[i] = 0.1
	}
	return vec, nil
}

const testProject = "proj-projection-test"

// TestRunAllDrainTwiceIsNoop covers P8 (projection monotonicity):
// running the synchronizer twice against unchanged ledger state must
// not re-upsert anything into the graph store or the vector store the
// second time.
func TestRunAllDrainTwiceIsNoop(t *testing.T) {
	skipIfNoDolt(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := ledger.Open(ctx, ledger.Config{Mode: ledger.ModeEmbedded, DSN: uniqueDBDir(t)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	locks := advisorylock.New()
	freeze := freezectl.New(store, locks)
	engine := candidates.New(store, freeze)

	fragID := "frag-1"
	cand, err := engine.Submit(ctx, testProject, "escasez de agua", &fragID, ledger.SourceManual, 0.9, "")
	require.NoError(t, err)
	_, err = engine.Transition(ctx, testProject, cand.ID, ledger.CandidateValidated, "alice", nil)
	require.NoError(t, err)
	_, err = engine.Promote(ctx, testProject, cand.ID, "alice")
	require.NoError(t, err)

	graph := newFakeGraphSink()
	vecStore, err := vectorstore.Open(filepath.Join(t.TempDir(), "vectors.db"), 8)
	require.NoError(t, err)
	t.Cleanup(func() { _ = vecStore.Close() })

	sync := projection.New(store, graph, 200, projection.DefaultRetryConfig())
	sync.SetVectorStore(vecStore, fakeEmbedding{dim: 8})

	loadFragment := func(ctx context.Context, fragmentID string) (graphstore.Fragment, bool, error) {
		return projection.LoadFragmentFromAssignments(ctx, store, testProject, fragmentID)
	}

	first, err := sync.RunAll(ctx, testProject, loadFragment)
	require.NoError(t, err)
	require.Equal(t, 1, first["fragments"].Synced)
	require.Equal(t, 1, first["vectors"].Synced)
	require.Equal(t, 1, first["codes"].Synced)

	graph.mu.Lock()
	fragCallsAfterFirst := graph.fragments[fragID]
	codesAfterFirst := len(graph.codes)
	graph.mu.Unlock()
	require.Equal(t, 1, fragCallsAfterFirst)

	second, err := sync.RunAll(ctx, testProject, loadFragment)
	require.NoError(t, err)
	require.Equal(t, 0, second["fragments"].Scanned)
	require.Equal(t, 0, second["fragments"].Synced)
	require.Equal(t, 0, second["vectors"].Scanned)
	require.Equal(t, 0, second["vectors"].Synced)
	require.Equal(t, 0, second["codes"].Scanned)
	require.Equal(t, 0, second["codes"].Synced)

	graph.mu.Lock()
	defer graph.mu.Unlock()
	require.Equal(t, fragCallsAfterFirst, graph.fragments[fragID])
	require.Equal(t, codesAfterFirst, len(graph.codes))
}
