package candidates

import (
	"context"
	"encoding/json"
	"time"

	"github.com/qualcode/ontocore/internal/apperr"
	"github.com/qualcode/ontocore/internal/config"
	"github.com/qualcode/ontocore/internal/ledger"
)

// idempotencyTTL is overridable by SetIdempotencyTTL; defaults to the
// config package's default so unit tests that never call it still get
// a sane TTL.
var idempotencyTTL = config.Defaults().IdempotencyTTL

// SetIdempotencyTTL lets the service wire the live configured TTL
// (IDEMPOTENCY_TTL) into the candidates engine at startup.
func SetIdempotencyTTL(ttl time.Duration) {
	idempotencyTTL = ttl
}

func lookupIdempotent(ctx context.Context, store *ledger.Store, projectID, op, key string) (*MergeOutcome, bool, error) {
	raw, err := store.GetIdempotentResponse(ctx, projectID, op, key)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	var out MergeOutcome
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false, apperr.Internal(err, "unmarshal cached idempotent response")
	}
	return &out, true, nil
}

func storeIdempotent(ctx context.Context, store *ledger.Store, projectID, op, key string, out *MergeOutcome) error {
	raw, err := json.Marshal(out)
	if err != nil {
		return apperr.Internal(err, "marshal idempotent response")
	}
	return store.RunInTransaction(ctx, projectID, func(tx *ledger.Tx) error {
		return tx.StoreIdempotentResponse(op, key, raw, idempotencyTTL)
	})
}

func lookupIdempotentSlice(ctx context.Context, store *ledger.Store, projectID, op, key string) ([]MergeOutcome, bool, error) {
	raw, err := store.GetIdempotentResponse(ctx, projectID, op, key)
	if err != nil {
		if apperr.KindOf(err) == apperr.KindNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	var out []MergeOutcome
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, false, apperr.Internal(err, "unmarshal cached idempotent response")
	}
	return out, true, nil
}

func storeIdempotentSlice(ctx context.Context, store *ledger.Store, projectID, op, key string, out []MergeOutcome) error {
	raw, err := json.Marshal(out)
	if err != nil {
		return apperr.Internal(err, "marshal idempotent response")
	}
	return store.RunInTransaction(ctx, projectID, func(tx *ledger.Tx) error {
		return tx.StoreIdempotentResponse(op, key, raw, idempotencyTTL)
	})
}
