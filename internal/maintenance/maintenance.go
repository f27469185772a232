// Package maintenance implements the backfill and repair operations
// named by spec section 4.7's admin operations class ("backfill
// code_id into assignments/candidates, repair canonical chains") and
// exercised by spec section 8's end-to-end scenarios 3 and 6. Both
// operations share the candidates.Engine's shape: freeze-gated,
// dry-run aware, idempotency-key bound, one transaction per call.
package maintenance

import (
	"context"
	"encoding/json"
	"time"

	"github.com/qualcode/ontocore/internal/apperr"
	"github.com/qualcode/ontocore/internal/config"
	"github.com/qualcode/ontocore/internal/freezectl"
	"github.com/qualcode/ontocore/internal/ledger"
	"github.com/qualcode/ontocore/internal/resolver"
)

// Engine is C7's maintenance surface.
type Engine struct {
	store  *ledger.Store
	freeze *freezectl.Controller
}

// New builds an Engine.
func New(store *ledger.Store, freeze *freezectl.Controller) *Engine {
	return &Engine{store: store, freeze: freeze}
}

var idempotencyTTL = config.Defaults().IdempotencyTTL

// SetIdempotencyTTL lets the service wire the live configured TTL
// (IDEMPOTENCY_TTL) into the maintenance engine at startup.
func SetIdempotencyTTL(ttl time.Duration) {
	idempotencyTTL = ttl
}

// BackfillResult reports what Backfill did (or would do, in dry-run).
type BackfillResult struct {
	Scanned      int
	WouldUpdate  int
	Updated      int
	Unresolvable int // no matching catalog row for the assignment's label
	DryRun       bool
}

// Backfill resolves assignment rows whose code_id is missing by
// looking up a catalog row matching the assignment's codigo label
// case-insensitively, per spec section 4.7. It does not touch
// candidates: candidate promotion already mints or resolves a catalog
// row itself (C3.Promote), so only the denormalised assignment.code_id
// column can drift out of sync.
func (e *Engine) Backfill(ctx context.Context, projectID string, dryRun bool, actor, idempotencyKey string) (*BackfillResult, error) {
	if !dryRun {
		if err := e.freeze.CheckMutationAllowed(ctx, projectID); err != nil {
			return nil, err
		}
	}

	if idempotencyKey != "" && !dryRun {
		if cached, ok, err := lookupBackfill(ctx, e.store, projectID, idempotencyKey); err != nil {
			return nil, err
		} else if ok {
			return cached, nil
		}
	}

	var out BackfillResult
	err := e.store.RunInTransaction(ctx, projectID, func(tx *ledger.Tx) error {
		rows, err := tx.AssignmentSnapshot()
		if err != nil {
			return err
		}
		for _, a := range rows {
			out.Scanned++
			if a.CodeID != nil {
				continue
			}
			cat, err := tx.GetCatalogByLabel(a.Codigo)
			if err != nil {
				if apperr.KindOf(err) == apperr.KindNotFound {
					out.Unresolvable++
					continue
				}
				return err
			}
			if dryRun {
				out.WouldUpdate++
				continue
			}
			if err := tx.SetAssignmentCodeID(a.FragmentID, a.Codigo, cat.CodeID); err != nil {
				return err
			}
			if err := tx.RecordVersion(a.Codigo, &cat.CodeID, ledger.ActionCreate, actor, "", a.Codigo); err != nil {
				return err
			}
			out.Updated++
		}
		out.DryRun = dryRun
		return nil
	})
	if err != nil {
		return nil, err
	}

	if idempotencyKey != "" && !dryRun {
		if err := storeBackfill(ctx, e.store, projectID, idempotencyKey, &out); err != nil {
			return nil, err
		}
	}
	return &out, nil
}

// RepairResult reports what Repair did (or would do, in dry-run).
type RepairResult struct {
	CodeIDBackfilled        int
	DivergencesFixed        int
	CanonicalChainsRepaired int
	CyclesBroken            int
	DryRun                  bool
}

// Repair performs the broader maintenance pass spec section 4.7 and
// end-to-end scenario 6 describe: it clears all four of readiness's
// blocking counters in one transaction.
//
//   - missing_code_id / divergences_text_vs_id: assignment.code_id is
//     overwritten to match the catalog row resolved by label, treating
//     the text label as authoritative (the only signal available once
//     code_id has drifted or is absent).
//   - missing_canonical_code_id: a "merged" catalog row whose
//     canonical_code_id is nil or points at a row that no longer
//     exists is reverted to active and made self-canonical again,
//     recorded as an unmerge.
//   - cycles_non_trivial: each cycle resolver.Cycles() finds is broken
//     by the repair cycle-break policy recorded in SPEC_FULL.md section
//     7 — the lowest code_id in the cycle becomes canonical, every
//     other member is repointed at it and marked merged.
func (e *Engine) Repair(ctx context.Context, projectID string, dryRun bool, actor, idempotencyKey string) (*RepairResult, error) {
	if !dryRun {
		if err := e.freeze.CheckMutationAllowed(ctx, projectID); err != nil {
			return nil, err
		}
	}

	if idempotencyKey != "" && !dryRun {
		if cached, ok, err := lookupRepair(ctx, e.store, projectID, idempotencyKey); err != nil {
			return nil, err
		} else if ok {
			return cached, nil
		}
	}

	var out RepairResult
	err := e.store.RunInTransaction(ctx, projectID, func(tx *ledger.Tx) error {
		// --- (a) assignment code_id backfill + divergence correction ---
		rows, err := tx.AssignmentSnapshot()
		if err != nil {
			return err
		}
		for _, a := range rows {
			cat, err := tx.GetCatalogByLabel(a.Codigo)
			if err != nil {
				if apperr.KindOf(err) == apperr.KindNotFound {
					continue
				}
				return err
			}
			if a.CodeID == nil {
				if !dryRun {
					if err := tx.SetAssignmentCodeID(a.FragmentID, a.Codigo, cat.CodeID); err != nil {
						return err
					}
				}
				out.CodeIDBackfilled++
				continue
			}
			if *a.CodeID != cat.CodeID {
				if !dryRun {
					if err := tx.SetAssignmentCodeID(a.FragmentID, a.Codigo, cat.CodeID); err != nil {
						return err
					}
				}
				out.DivergencesFixed++
			}
		}

		// --- (b) + (c): read the catalog once for canonical-chain repair ---
		snapRows, err := tx.CatalogSnapshot()
		if err != nil {
			return err
		}
		byID := make(map[int64]ledger.CatalogSnapshotRow, len(snapRows))
		rrows := make([]resolver.Row, 0, len(snapRows))
		for _, c := range snapRows {
			byID[c.CodeID] = c
			rrows = append(rrows, resolver.Row{
				CodeID: c.CodeID, CanonicalCodeID: c.CanonicalCodeID,
				Active: c.Status != ledger.CatalogMerged, Codigo: c.Codigo,
			})
		}
		snap := resolver.NewSnapshot(rrows)

		// (b) dangling or missing canonical pointer on a merged row: revert
		// to active and self-canonical.
		for _, c := range snapRows {
			if c.Status != ledger.CatalogMerged {
				continue
			}
			dangling := c.CanonicalCodeID == nil
			if !dangling {
				if _, ok := byID[*c.CanonicalCodeID]; !ok {
					dangling = true
				}
			}
			if !dangling {
				continue
			}
			if !dryRun {
				if err := tx.MarkCatalogStatus(c.CodeID, ledger.CatalogActive, &c.CodeID); err != nil {
					return err
				}
				if err := tx.RecordVersion(c.Codigo, &c.CodeID, ledger.ActionUnmerge, actor, "merged", "active"); err != nil {
					return err
				}
			}
			out.CanonicalChainsRepaired++
		}

		// (c) break non-trivial cycles: lowest code_id wins.
		for _, cyc := range snap.Cycles() {
			lowest := resolver.LowestInCycle(cyc)
			lowestRow := byID[lowest]
			if !dryRun {
				if err := tx.SetCanonical(lowest, lowest); err != nil {
					return err
				}
			}
			for _, id := range cyc {
				if id == lowest {
					continue
				}
				member := byID[id]
				if !dryRun {
					if err := tx.MarkCatalogStatus(id, ledger.CatalogMerged, &lowest); err != nil {
						return err
					}
					if err := tx.RecordVersion(member.Codigo, &lowest, ledger.ActionMerge, actor, member.Codigo, lowestRow.Codigo); err != nil {
						return err
					}
				}
				out.CyclesBroken++
			}
		}

		out.DryRun = dryRun
		return nil
	})
	if err != nil {
		return nil, err
	}

	if idempotencyKey != "" && !dryRun {
		if err := storeRepair(ctx, e.store, projectID, idempotencyKey, &out); err != nil {
			return nil, err
		}
	}
	return &out, nil
}

func lookupBackfill(ctx context.Context, store *ledger.Store, projectID, key string) (*BackfillResult, bool, error) {
	raw, err := store.GetIdempotentResponse(ctx, projectID, "backfill", key)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	var out BackfillResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false, apperr.Internal(err, "unmarshal cached idempotent response")
	}
	return &out, true, nil
}

func storeBackfill(ctx context.Context, store *ledger.Store, projectID, key string, out *BackfillResult) error {
	raw, err := json.Marshal(out)
	if err != nil {
		return apperr.Internal(err, "marshal idempotent response")
	}
	return store.RunInTransaction(ctx, projectID, func(tx *ledger.Tx) error {
		return tx.StoreIdempotentResponse("backfill", key, raw, idempotencyTTL)
	})
}

func lookupRepair(ctx context.Context, store *ledger.Store, projectID, key string) (*RepairResult, bool, error) {
	raw, err := store.GetIdempotentResponse(ctx, projectID, "repair", key)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	var out RepairResult
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false, apperr.Internal(err, "unmarshal cached idempotent response")
	}
	return &out, true, nil
}

func storeRepair(ctx context.Context, store *ledger.Store, projectID, key string, out *RepairResult) error {
	raw, err := json.Marshal(out)
	if err != nil {
		return apperr.Internal(err, "marshal idempotent response")
	}
	return store.RunInTransaction(ctx, projectID, func(tx *ledger.Tx) error {
		return tx.StoreIdempotentResponse("repair", key, raw, idempotencyTTL)
	})
}
