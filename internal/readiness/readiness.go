// Package readiness implements C4, the axial readiness gate: the four
// structural counters of spec section 4.4 and the axial_ready boolean
// derived from them. Like the resolver, it is built as a pure function
// over a snapshot so it can be exercised without a live database,
// mirroring the teacher's internal/resolver.StandardResolver shape.
package readiness

import (
	"context"

	"github.com/qualcode/ontocore/internal/ledger"
	"github.com/qualcode/ontocore/internal/resolver"
)

// Reason names one of the four blocking reasons spec section 4.4
// enumerates. Stable strings: they appear verbatim in blocking_reasons.
type Reason string

const (
	ReasonMissingCodeID          Reason = "missing_code_id"
	ReasonMissingCanonicalCodeID Reason = "missing_canonical_code_id"
	ReasonDivergenceTextVsID     Reason = "divergences_text_vs_id"
	ReasonCyclesNonTrivial       Reason = "cycles_non_trivial"
)

// CatalogRow is the minimal catalog view Compute needs: identity,
// canonical pointer, and status (to tell merged rows from active ones).
type CatalogRow struct {
	CodeID          int64
	CanonicalCodeID *int64
	Status          ledger.CatalogStatus
	Codigo          string
}

// Report is the computed readiness state for one project.
type Report struct {
	MissingCodeID          int
	MissingCanonicalCodeID int
	DivergencesTextVsID    int
	CyclesNonTrivial       int
	AxialReady             bool
	BlockingReasons        []string
	Degraded               bool
}

func (r *Report) finalize() {
	r.BlockingReasons = nil
	if r.MissingCodeID > 0 {
		r.BlockingReasons = append(r.BlockingReasons, string(ReasonMissingCodeID))
	}
	if r.MissingCanonicalCodeID > 0 {
		r.BlockingReasons = append(r.BlockingReasons, string(ReasonMissingCanonicalCodeID))
	}
	if r.DivergencesTextVsID > 0 {
		r.BlockingReasons = append(r.BlockingReasons, string(ReasonDivergenceTextVsID))
	}
	if r.CyclesNonTrivial > 0 {
		r.BlockingReasons = append(r.BlockingReasons, string(ReasonCyclesNonTrivial))
	}
	r.AxialReady = len(r.BlockingReasons) == 0
}

// Compute derives a Report from a catalog snapshot and an assignment
// snapshot, per spec section 4.4. maxHops bounds canonical-chain walks
// (READINESS_MAX_HOPS).
func Compute(catalog []CatalogRow, assignments []ledger.AssignmentSnapshotRow, maxHops int) Report {
	resolverRows := make([]resolver.Row, 0, len(catalog))
	byLabel := make(map[string]CatalogRow, len(catalog))
	byID := make(map[int64]CatalogRow, len(catalog))
	for _, c := range catalog {
		resolverRows = append(resolverRows, resolver.Row{
			CodeID:          c.CodeID,
			CanonicalCodeID: c.CanonicalCodeID,
			Active:          c.Status == ledger.CatalogActive,
			Codigo:          c.Codigo,
		})
		byLabel[lower(c.Codigo)] = c
		byID[c.CodeID] = c
	}
	snap := resolver.NewSnapshot(resolverRows)

	var rep Report

	// missing_code_id: assignments whose code_id is NULL but whose
	// codigo exists in the catalog.
	for _, a := range assignments {
		if a.CodeID == nil {
			if _, ok := byLabel[lower(a.Codigo)]; ok {
				rep.MissingCodeID++
			}
		}
	}

	// missing_canonical_code_id: merged rows with NULL canonical_code_id,
	// or pointing to a non-existent row.
	for _, c := range catalog {
		if c.Status != ledger.CatalogMerged {
			continue
		}
		if c.CanonicalCodeID == nil {
			rep.MissingCanonicalCodeID++
			continue
		}
		if _, ok := byID[*c.CanonicalCodeID]; !ok {
			rep.MissingCanonicalCodeID++
		}
	}

	// divergences_text_vs_id: assignments whose codigo and code_id do
	// not both resolve to the same canonical.
	for _, a := range assignments {
		if a.CodeID == nil {
			continue
		}
		byIDCanonical, okID := snap.ResolveCanonical(*a.CodeID, maxHops)
		labelCodeID, okLabel := snap.CodeIDOfLabel(a.Codigo)
		if !okLabel {
			rep.DivergencesTextVsID++
			continue
		}
		byLabelCanonical, okLabelCanon := snap.ResolveCanonical(labelCodeID, maxHops)
		if !okID || !okLabelCanon || byIDCanonical != byLabelCanonical {
			rep.DivergencesTextVsID++
		}
	}

	// cycles_non_trivial: nodes participating in a canonical cycle of
	// length > 1 (self-loops excluded).
	for _, cyc := range snap.Cycles() {
		rep.CyclesNonTrivial += len(cyc)
	}

	rep.finalize()
	return rep
}

func lower(s string) string {
	out := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b >= 'A' && b <= 'Z' {
			b += 'a' - 'A'
		}
		out[i] = b
	}
	return string(out)
}

// Gate loads a fresh Report for projectID from the ledger and is the
// entry point every axial write path (spec section 4.4's enforcement)
// must call before mutating. It is intentionally independent of
// freeze: readiness and freeze are orthogonal per spec.
type Gate struct {
	store   *ledger.Store
	maxHops int
}

// NewGate builds a Gate reading catalog/assignment snapshots from store.
func NewGate(store *ledger.Store, maxHops int) *Gate {
	return &Gate{store: store, maxHops: maxHops}
}

// Snapshot builds the resolver snapshot for projectID without computing
// a full readiness Report. Callers that must resolve a code_id to its
// canonical form before persisting it (spec section 9, invariant I6)
// reuse this instead of re-querying the catalog themselves.
func (g *Gate) Snapshot(ctx context.Context, projectID string) (*resolver.Snapshot, error) {
	catalogRows, err := g.store.CatalogSnapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}
	rows := make([]resolver.Row, 0, len(catalogRows))
	for _, c := range catalogRows {
		rows = append(rows, resolver.Row{
			CodeID:          c.CodeID,
			CanonicalCodeID: c.CanonicalCodeID,
			Active:          c.Status == ledger.CatalogActive,
			Codigo:          c.Codigo,
		})
	}
	return resolver.NewSnapshot(rows), nil
}

// MaxHops returns the configured canonical-chain hop bound, for callers
// that resolve canonical ids outside of Evaluate/Compute.
func (g *Gate) MaxHops() int { return g.maxHops }

// Evaluate computes the current Report for projectID. On a dependency
// failure it returns the error; callers on the read path (GET
// /readiness) should fall back to a cached Report with Degraded=true
// per spec section 7, rather than fail the request.
func (g *Gate) Evaluate(ctx context.Context, projectID string) (Report, error) {
	catalogRows, err := g.store.CatalogSnapshot(ctx, projectID)
	if err != nil {
		return Report{}, err
	}
	rows := make([]CatalogRow, 0, len(catalogRows))
	for _, c := range catalogRows {
		rows = append(rows, CatalogRow{
			CodeID:          c.CodeID,
			CanonicalCodeID: c.CanonicalCodeID,
			Status:          c.Status,
			Codigo:          c.Codigo,
		})
	}

	var assignments []ledger.AssignmentSnapshotRow
	err = g.store.RunInTransaction(ctx, projectID, func(tx *ledger.Tx) error {
		a, err := tx.AssignmentSnapshot()
		if err != nil {
			return err
		}
		assignments = a
		return nil
	})
	if err != nil {
		return Report{}, err
	}

	return Compute(rows, assignments, g.maxHops), nil
}
