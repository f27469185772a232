package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v int64) *int64 { return &v }

// TestResolveCanonical_SelfCanonical covers P3: a row with
// canonical_code_id == code_id does not block and resolves to itself.
func TestResolveCanonical_SelfCanonical(t *testing.T) {
	snap := NewSnapshot([]Row{
		{CodeID: 1, CanonicalCodeID: ptr(1), Active: true, Codigo: "escasez_agua"},
	})
	got, ok := snap.ResolveCanonical(1, 10)
	require.True(t, ok)
	assert.Equal(t, int64(1), got)
}

// TestResolveCanonical_Chain follows a multi-hop chain to its terminal
// NULL-canonical node.
func TestResolveCanonical_Chain(t *testing.T) {
	snap := NewSnapshot([]Row{
		{CodeID: 1, CanonicalCodeID: nil, Active: true, Codigo: "root"},
		{CodeID: 2, CanonicalCodeID: ptr(1), Active: false, Codigo: "mid"},
		{CodeID: 3, CanonicalCodeID: ptr(2), Active: false, Codigo: "leaf"},
	})
	got, ok := snap.ResolveCanonical(3, 10)
	require.True(t, ok)
	assert.Equal(t, int64(1), got)
}

// TestResolveCanonical_MissingInput covers the "missing input code
// returns null" contract of spec section 4.2.
func TestResolveCanonical_MissingInput(t *testing.T) {
	snap := NewSnapshot(nil)
	_, ok := snap.ResolveCanonical(99, 10)
	assert.False(t, ok)
}

// TestResolveCanonical_DanglingPointer covers a canonical_code_id that
// points at a row absent from the snapshot.
func TestResolveCanonical_DanglingPointer(t *testing.T) {
	snap := NewSnapshot([]Row{
		{CodeID: 1, CanonicalCodeID: ptr(2), Active: false, Codigo: "orphan"},
	})
	_, ok := snap.ResolveCanonical(1, 10)
	assert.False(t, ok)
}

// TestResolveCanonical_CycleTerminatesWithinMaxHops covers P1/P2:
// injecting A->B->A yields a null resolution within READINESS_MAX_HOPS,
// never an infinite loop.
func TestResolveCanonical_CycleTerminatesWithinMaxHops(t *testing.T) {
	snap := NewSnapshot([]Row{
		{CodeID: 1, CanonicalCodeID: ptr(2), Active: false, Codigo: "a"},
		{CodeID: 2, CanonicalCodeID: ptr(1), Active: false, Codigo: "b"},
	})
	got, ok := snap.ResolveCanonical(1, 10)
	assert.False(t, ok)
	assert.Equal(t, int64(0), got)
}

// TestResolveCanonical_MaxHopsZeroDefaultsTo10 exercises the
// documented maxHops<=0 fallback.
func TestResolveCanonical_MaxHopsZeroDefaultsTo10(t *testing.T) {
	snap := NewSnapshot([]Row{
		{CodeID: 1, CanonicalCodeID: nil, Active: true, Codigo: "root"},
	})
	got, ok := snap.ResolveCanonical(1, 0)
	require.True(t, ok)
	assert.Equal(t, int64(1), got)
}

func TestCodeIDOfLabel_CaseInsensitive(t *testing.T) {
	snap := NewSnapshot([]Row{
		{CodeID: 7, CanonicalCodeID: ptr(7), Active: true, Codigo: "Escasez De Agua"},
	})
	id, ok := snap.CodeIDOfLabel("escasez de agua")
	require.True(t, ok)
	assert.Equal(t, int64(7), id)

	id, ok = snap.CodeIDOfLabel("ESCASEZ DE AGUA")
	require.True(t, ok)
	assert.Equal(t, int64(7), id)
}

func TestCodeIDOfLabel_Unknown(t *testing.T) {
	snap := NewSnapshot(nil)
	_, ok := snap.CodeIDOfLabel("nope")
	assert.False(t, ok)
}

func TestIsActive(t *testing.T) {
	snap := NewSnapshot([]Row{
		{CodeID: 1, CanonicalCodeID: ptr(1), Active: true, Codigo: "a"},
		{CodeID: 2, CanonicalCodeID: ptr(1), Active: false, Codigo: "b"},
	})
	assert.True(t, snap.IsActive(1))
	assert.False(t, snap.IsActive(2))
	assert.False(t, snap.IsActive(99))
}

// TestCycles_DetectsNonTrivialCycleOnly covers P2: a self-loop never
// counts as a cycle, but a length-2 cycle does.
func TestCycles_DetectsNonTrivialCycleOnly(t *testing.T) {
	snap := NewSnapshot([]Row{
		{CodeID: 1, CanonicalCodeID: ptr(1), Active: true, Codigo: "self"}, // self-loop, not a cycle
		{CodeID: 2, CanonicalCodeID: ptr(3), Active: false, Codigo: "a"},
		{CodeID: 3, CanonicalCodeID: ptr(2), Active: false, Codigo: "b"},
	})
	cycles := snap.Cycles()
	require.Len(t, cycles, 1)
	assert.ElementsMatch(t, []int64{2, 3}, cycles[0])
}

func TestCycles_NoneWhenAcyclic(t *testing.T) {
	snap := NewSnapshot([]Row{
		{CodeID: 1, CanonicalCodeID: nil, Active: true, Codigo: "root"},
		{CodeID: 2, CanonicalCodeID: ptr(1), Active: false, Codigo: "child"},
	})
	assert.Empty(t, snap.Cycles())
}

// TestCycles_MultipleDisjointCycles ensures the global seen-set does
// not let one cycle's members mask another's.
func TestCycles_MultipleDisjointCycles(t *testing.T) {
	snap := NewSnapshot([]Row{
		{CodeID: 1, CanonicalCodeID: ptr(2)},
		{CodeID: 2, CanonicalCodeID: ptr(1)},
		{CodeID: 10, CanonicalCodeID: ptr(11)},
		{CodeID: 11, CanonicalCodeID: ptr(10)},
	})
	cycles := snap.Cycles()
	require.Len(t, cycles, 2)
	var all []int64
	for _, c := range cycles {
		all = append(all, c...)
	}
	assert.ElementsMatch(t, []int64{1, 2, 10, 11}, all)
}

// TestLowestInCycle covers the repair cycle-break policy recorded in
// SPEC_FULL.md section 7 and DESIGN.md: lowest code_id wins.
func TestLowestInCycle(t *testing.T) {
	assert.Equal(t, int64(2), LowestInCycle([]int64{5, 2, 9}))
	assert.Equal(t, int64(1), LowestInCycle([]int64{1}))
}
