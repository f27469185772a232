package readiness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qualcode/ontocore/internal/ledger"
)

func ptr(v int64) *int64 { return &v }

// TestCompute_AllZeroIsReady covers P3: a clean catalog with only
// self-canonical active rows is axial_ready with no blocking reasons.
func TestCompute_AllZeroIsReady(t *testing.T) {
	catalog := []CatalogRow{
		{CodeID: 1, CanonicalCodeID: ptr(1), Status: ledger.CatalogActive, Codigo: "escasez_agua"},
	}
	assignments := []ledger.AssignmentSnapshotRow{
		{FragmentID: "f1", Codigo: "escasez_agua", CodeID: ptr(1)},
	}
	rep := Compute(catalog, assignments, 10)
	assert.True(t, rep.AxialReady)
	assert.Empty(t, rep.BlockingReasons)
	assert.Zero(t, rep.MissingCodeID)
	assert.Zero(t, rep.MissingCanonicalCodeID)
	assert.Zero(t, rep.DivergencesTextVsID)
	assert.Zero(t, rep.CyclesNonTrivial)
}

// TestCompute_MissingCodeID covers an assignment whose code_id is NULL
// but whose codigo exists in the catalog — scenario 3 of spec section
// 8's end-to-end tests.
func TestCompute_MissingCodeID(t *testing.T) {
	catalog := []CatalogRow{
		{CodeID: 1, CanonicalCodeID: ptr(1), Status: ledger.CatalogActive, Codigo: "escasez_agua"},
	}
	assignments := []ledger.AssignmentSnapshotRow{
		{FragmentID: "f1", Codigo: "escasez_agua", CodeID: nil},
	}
	rep := Compute(catalog, assignments, 10)
	assert.False(t, rep.AxialReady)
	assert.Equal(t, 1, rep.MissingCodeID)
	assert.Contains(t, rep.BlockingReasons, string(ReasonMissingCodeID))
}

// TestCompute_MissingCodeID_UnknownCodigoDoesNotCount: an assignment
// whose codigo is not even in the catalog is not a missing_code_id
// case per spec section 4.4's precise definition.
func TestCompute_MissingCodeID_UnknownCodigoDoesNotCount(t *testing.T) {
	assignments := []ledger.AssignmentSnapshotRow{
		{FragmentID: "f1", Codigo: "nonexistent", CodeID: nil},
	}
	rep := Compute(nil, assignments, 10)
	assert.Zero(t, rep.MissingCodeID)
}

// TestCompute_MissingCanonicalCodeID covers a merged row with a NULL
// canonical_code_id and a merged row pointing at a nonexistent row.
func TestCompute_MissingCanonicalCodeID(t *testing.T) {
	catalog := []CatalogRow{
		{CodeID: 1, CanonicalCodeID: nil, Status: ledger.CatalogMerged, Codigo: "a"},
		{CodeID: 2, CanonicalCodeID: ptr(999), Status: ledger.CatalogMerged, Codigo: "b"},
		{CodeID: 3, CanonicalCodeID: ptr(3), Status: ledger.CatalogActive, Codigo: "c"},
	}
	rep := Compute(catalog, nil, 10)
	assert.Equal(t, 2, rep.MissingCanonicalCodeID)
	assert.Contains(t, rep.BlockingReasons, string(ReasonMissingCanonicalCodeID))
}

// TestCompute_DivergenceTextVsID covers an assignment whose codigo and
// code_id resolve to different canonicals.
func TestCompute_DivergenceTextVsID(t *testing.T) {
	catalog := []CatalogRow{
		{CodeID: 1, CanonicalCodeID: ptr(1), Status: ledger.CatalogActive, Codigo: "agua"},
		{CodeID: 2, CanonicalCodeID: ptr(2), Status: ledger.CatalogActive, Codigo: "escasez"},
	}
	assignments := []ledger.AssignmentSnapshotRow{
		// codigo resolves to code_id=1 by label, but the denormalised
		// code_id on the row points at the unrelated code 2.
		{FragmentID: "f1", Codigo: "agua", CodeID: ptr(2)},
	}
	rep := Compute(catalog, assignments, 10)
	assert.Equal(t, 1, rep.DivergencesTextVsID)
	assert.Contains(t, rep.BlockingReasons, string(ReasonDivergenceTextVsID))
}

// TestCompute_CyclesNonTrivial covers scenario 6 of spec section 8:
// A->B->A yields cycles_non_trivial=2 and blocks readiness.
func TestCompute_CyclesNonTrivial(t *testing.T) {
	catalog := []CatalogRow{
		{CodeID: 1, CanonicalCodeID: ptr(2), Status: ledger.CatalogMerged, Codigo: "a"},
		{CodeID: 2, CanonicalCodeID: ptr(1), Status: ledger.CatalogMerged, Codigo: "b"},
	}
	rep := Compute(catalog, nil, 10)
	assert.Equal(t, 2, rep.CyclesNonTrivial)
	assert.False(t, rep.AxialReady)
	assert.Contains(t, rep.BlockingReasons, string(ReasonCyclesNonTrivial))
}

// TestCompute_SelfCanonicalNeverBlocks covers P3 directly against
// Compute: a self-canonical merged-looking row must not trip
// missing_canonical_code_id.
func TestCompute_SelfCanonicalNeverBlocks(t *testing.T) {
	catalog := []CatalogRow{
		{CodeID: 1, CanonicalCodeID: ptr(1), Status: ledger.CatalogActive, Codigo: "a"},
	}
	rep := Compute(catalog, nil, 10)
	assert.True(t, rep.AxialReady)
}

// TestCompute_BlockingReasonsExactlyTheNonZeroCounters covers P6: the
// response lists exactly the non-zero counters, nothing else.
func TestCompute_BlockingReasonsExactlyTheNonZeroCounters(t *testing.T) {
	catalog := []CatalogRow{
		{CodeID: 1, CanonicalCodeID: nil, Status: ledger.CatalogMerged, Codigo: "a"},
	}
	assignments := []ledger.AssignmentSnapshotRow{
		{FragmentID: "f1", Codigo: "unknown", CodeID: nil},
	}
	rep := Compute(catalog, assignments, 10)
	require.Len(t, rep.BlockingReasons, 1)
	assert.Equal(t, string(ReasonMissingCanonicalCodeID), rep.BlockingReasons[0])
}
