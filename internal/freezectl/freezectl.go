// Package freezectl implements C5, the per-project ontology freeze
// controller described in spec section 4.5. It is a thin layer over
// ledger.Freeze plus the ClassFreeze advisory lock: freezing and
// breaking are themselves serialized per project so two concurrent
// "freeze" calls cannot race, and every mutating maintenance call in
// C3/C7 consults CheckMutationAllowed before proceeding.
package freezectl

import (
	"context"
	"time"

	"github.com/qualcode/ontocore/internal/advisorylock"
	"github.com/qualcode/ontocore/internal/apperr"
	"github.com/qualcode/ontocore/internal/ledger"
)

// Controller is the freeze gate every ontology-mutating maintenance
// call checks before proceeding.
type Controller struct {
	store *ledger.Store
	locks *advisorylock.Registry
}

// New builds a Controller over store, sharing locks with the rest of
// the service's advisory-lock registry.
func New(store *ledger.Store, locks *advisorylock.Registry) *Controller {
	return &Controller{store: store, locks: locks}
}

// Get returns the current freeze state for projectID.
func (c *Controller) Get(ctx context.Context, projectID string) (*ledger.Freeze, error) {
	return c.store.GetFreeze(ctx, projectID)
}

// Freeze activates the lock. It does not refuse an already-frozen
// project: freezing again simply updates note/actor (idempotent).
func (c *Controller) Freeze(ctx context.Context, projectID, actor, note, sessionID string, timeout time.Duration) (*ledger.Freeze, error) {
	h, err := c.locks.Acquire(ctx, projectID, advisorylock.ClassFreeze, sessionID, timeout)
	if err != nil {
		return nil, err
	}
	defer h.Release()

	var f *ledger.Freeze
	err = c.store.RunInTransaction(ctx, projectID, func(tx *ledger.Tx) error {
		var err error
		f, err = tx.SetFreeze(true, actor, note)
		if err != nil {
			return err
		}
		return tx.RecordVersion("", nil, ledger.ActionFreeze, actor, "unfrozen", "frozen")
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Break deactivates the lock.
func (c *Controller) Break(ctx context.Context, projectID, actor, note, sessionID string, timeout time.Duration) (*ledger.Freeze, error) {
	h, err := c.locks.Acquire(ctx, projectID, advisorylock.ClassFreeze, sessionID, timeout)
	if err != nil {
		return nil, err
	}
	defer h.Release()

	var f *ledger.Freeze
	err = c.store.RunInTransaction(ctx, projectID, func(tx *ledger.Tx) error {
		var err error
		f, err = tx.SetFreeze(false, actor, note)
		if err != nil {
			return err
		}
		return tx.RecordVersion("", nil, ledger.ActionUnfreeze, actor, "frozen", "unfrozen")
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// CheckMutationAllowed refuses with a frozen error if projectID is
// frozen. Call this at the top of every ontology-mutating maintenance
// operation (merge_ids, merge_pairs, backfill, repair, bulk rename)
// before doing any work, per spec section 4.5. Individual analyst
// actions (submit/validate/reject/promote) must NOT call this: they do
// not alter existing identity chains and remain allowed while frozen.
func (c *Controller) CheckMutationAllowed(ctx context.Context, projectID string) error {
	f, err := c.store.GetFreeze(ctx, projectID)
	if err != nil {
		return err
	}
	if f.IsFrozen {
		return apperr.Frozen("project %s is frozen: ontology-mutating maintenance is refused", projectID)
	}
	return nil
}
