//go:build cgo

package ledger_test

// End-to-end tests against a real embedded Dolt database, exercising
// the identity core's C1-C5 write paths together the way spec section
// 8's scenarios describe. Mirrors the teacher's
// internal/storage/dolt/dolt_test.go: skip if the dolt CLI/embedded
// driver toolchain is unavailable in this environment, one throwaway
// database per test for isolation.

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/qualcode/ontocore/internal/advisorylock"
	"github.com/qualcode/ontocore/internal/candidates"
	"github.com/qualcode/ontocore/internal/freezectl"
	"github.com/qualcode/ontocore/internal/ledger"
	"github.com/qualcode/ontocore/internal/readiness"
)

func skipIfNoDolt(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("dolt"); err != nil {
		t.Skip("dolt not installed, skipping embedded-store integration test")
	}
}

func uniqueDBDir(t *testing.T) string {
	t.Helper()
	buf := make([]byte, 6)
	_, err := rand.Read(buf)
	require.NoError(t, err)
	dir, err := os.MkdirTemp("", "ontocore-test-"+hex.EncodeToString(buf)+"-")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func setupStore(t *testing.T) *ledger.Store {
	t.Helper()
	skipIfNoDolt(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := ledger.Open(ctx, ledger.Config{
		Mode: ledger.ModeEmbedded,
		DSN:  uniqueDBDir(t),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

const testProject = "proj-test"

// TestSubmitValidatePromote covers spec section 8 scenario 1: submit,
// validate, promote mints a code_id and produces one promote version
// event, satisfying P9 (audit completeness).
func TestSubmitValidatePromote(t *testing.T) {
	store := setupStore(t)
	locks := advisorylock.New()
	freeze := freezectl.New(store, locks)
	engine := candidates.New(store, freeze)
	ctx := context.Background()

	frag := "f1"
	c, err := engine.Submit(ctx, testProject, "escasez de agua", &frag, ledger.SourceManual, 0.9, "")
	require.NoError(t, err)

	_, err = engine.Transition(ctx, testProject, c.ID, ledger.CandidateValidated, "alice", nil)
	require.NoError(t, err)

	res, err := engine.Promote(ctx, testProject, c.ID, "alice")
	require.NoError(t, err)
	require.True(t, res.Minted)
	require.NotZero(t, res.CodeID)
	require.Equal(t, "escasez de agua", res.Assignment.Codigo)
	require.NotNil(t, res.Assignment.CodeID)
	require.Equal(t, res.CodeID, *res.Assignment.CodeID)

	events, err := store.QueryVersions(ctx, testProject, ledger.VersionFilter{Limit: 10})
	require.NoError(t, err)

	found := false
	for _, e := range events {
		if e.Action == ledger.ActionPromote {
			found = true
		}
	}
	require.True(t, found, "expected a promote version event")
}

// TestMergeIDs_NoLossAndIdempotent covers spec section 8 scenario 2
// and P4/P5: dry-run reports would-move, confirmed run moves evidence,
// and a repeat with the same idempotency key is a no-op.
func TestMergeIDs_NoLossAndIdempotent(t *testing.T) {
	store := setupStore(t)
	locks := advisorylock.New()
	freeze := freezectl.New(store, locks)
	engine := candidates.New(store, freeze)
	ctx := context.Background()

	err := store.RunInTransaction(ctx, testProject, func(tx *ledger.Tx) error {
		_, err := tx.CreateCatalog("escasez_agua", "")
		return err
	})
	require.NoError(t, err)

	f2, f3 := "f2", "f3"
	c2, err := engine.Submit(ctx, testProject, "Escasez De Agua", &f2, ledger.SourceManual, 0.8, "")
	require.NoError(t, err)
	c3, err := engine.Submit(ctx, testProject, "falta agua", &f3, ledger.SourceManual, 0.7, "")
	require.NoError(t, err)

	dry, err := engine.MergeIDs(ctx, testProject, []int64{c2.ID, c3.ID}, "escasez_agua", "", true, "alice", "")
	require.NoError(t, err)
	require.Equal(t, 2, dry.WouldMove)
	require.Zero(t, dry.Moved)

	key := "idem-merge-1"
	out, err := engine.MergeIDs(ctx, testProject, []int64{c2.ID, c3.ID}, "escasez_agua", "", false, "alice", key)
	require.NoError(t, err)
	require.Equal(t, 2, out.Moved)

	again, err := engine.MergeIDs(ctx, testProject, []int64{c2.ID, c3.ID}, "escasez_agua", "", false, "alice", key)
	require.NoError(t, err)
	require.Equal(t, out.Moved, again.Moved)
	require.Equal(t, out.TargetCodeID, again.TargetCodeID)
}

// TestFreeze_BlocksMergeButAllowsAnalystActions covers spec section 8
// scenario 4 / P7: freezing refuses a confirmed merge but a dry-run
// still describes the would-be effect, and submit/validate keep
// working while frozen.
func TestFreeze_BlocksMergeButAllowsAnalystActions(t *testing.T) {
	store := setupStore(t)
	locks := advisorylock.New()
	freeze := freezectl.New(store, locks)
	engine := candidates.New(store, freeze)
	ctx := context.Background()

	_, err := freeze.Freeze(ctx, testProject, "admin", "coordinated axial pass", "sess-1", 5*time.Second)
	require.NoError(t, err)

	frag := "f9"
	c, err := engine.Submit(ctx, testProject, "nueva categoria", &frag, ledger.SourceManual, 0.5, "")
	require.NoError(t, err)
	_, err = engine.Transition(ctx, testProject, c.ID, ledger.CandidateValidated, "alice", nil)
	require.NoError(t, err)

	dry, err := engine.MergeIDs(ctx, testProject, []int64{c.ID}, "otra", "", true, "alice", "")
	require.NoError(t, err)
	require.Equal(t, 1, dry.WouldMove)

	_, err = engine.MergeIDs(ctx, testProject, []int64{c.ID}, "otra", "", false, "alice", "")
	require.Error(t, err)

	_, err = freeze.Break(ctx, testProject, "admin", "", "sess-2", 5*time.Second)
	require.NoError(t, err)

	out, err := engine.MergeIDs(ctx, testProject, []int64{c.ID}, "otra", "", false, "alice", "")
	require.NoError(t, err)
	require.Equal(t, 1, out.Moved)
}

// TestReadinessGate_MissingCodeIDBlocksThenRepairs covers scenario 3
// of spec section 8.
func TestReadinessGate_MissingCodeIDBlocksThenRepairs(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	var codeID int64
	err := store.RunInTransaction(ctx, testProject, func(tx *ledger.Tx) error {
		cat, err := tx.CreateCatalog("contaminacion", "")
		if err != nil {
			return err
		}
		codeID = cat.CodeID
		return tx.UpsertAssignment("f1", "contaminacion", nil, "", "")
	})
	require.NoError(t, err)

	gate := readiness.NewGate(store, 10)
	rep, err := gate.Evaluate(ctx, testProject)
	require.NoError(t, err)
	require.False(t, rep.AxialReady)
	require.Contains(t, rep.BlockingReasons, string(readiness.ReasonMissingCodeID))

	err = store.RunInTransaction(ctx, testProject, func(tx *ledger.Tx) error {
		return tx.SetAssignmentCodeID("f1", "contaminacion", codeID)
	})
	require.NoError(t, err)

	rep, err = gate.Evaluate(ctx, testProject)
	require.NoError(t, err)
	require.True(t, rep.AxialReady)
}
