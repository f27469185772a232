package adminapi

import (
	"net/http"

	"github.com/qualcode/ontocore/internal/advisorylock"
	"github.com/qualcode/ontocore/internal/apperr"
	"github.com/qualcode/ontocore/internal/ledger"
	"github.com/qualcode/ontocore/internal/readiness"
)

// --- POST /axial/relations ---------------------------------------------------

type createAxialRequest struct {
	Categoria string   `json:"categoria"`
	Codigo    string   `json:"codigo"`
	Relation  string   `json:"relation"`
	Memo      string   `json:"memo"`
	Evidence  []string `json:"evidence"`
	Actor     string   `json:"actor"`
}

// handleCreateAxial implements POST /axial/relations. Unlike the merge
// endpoints it is not dry-run-gated (it is an individual analyst
// action, per spec section 4.5), but it IS readiness-gated: spec
// section 4.4 refuses every axial write with 409 not_ready when
// axial_ready is false, carrying the exact blocking reasons.
func (s *Server) handleCreateAxial(w http.ResponseWriter, r *http.Request) {
	rc := newRequestCtx(r, "axial.create")
	rc.dryRun = false
	s.logStart(rc)

	var req createAxialRequest
	if err := decodeJSON(r, &req); err != nil {
		s.logEnd(rc, 0, 0, http.StatusBadRequest, classify(err, false), err)
		writeErr(w, rc, err)
		return
	}

	report, err := s.readiness.Evaluate(r.Context(), rc.projectID)
	if err != nil {
		s.logEnd(rc, 1, 0, apperr.HTTPStatus(apperr.KindOf(err)), classify(err, false), err)
		writeErr(w, rc, err)
		return
	}
	if !report.AxialReady {
		nr := apperr.NotReady(report.BlockingReasons)
		s.logEnd(rc, 1, 0, apperr.HTTPStatus(apperr.KindNotReady), classify(nr, false), nr)
		writeErr(w, rc, nr)
		return
	}

	snap, err := s.readiness.Snapshot(r.Context(), rc.projectID)
	if err != nil {
		s.logEnd(rc, 1, 0, apperr.HTTPStatus(apperr.KindOf(err)), classify(err, false), err)
		writeErr(w, rc, err)
		return
	}

	var axial *ledger.AxialRelation
	err = s.withLock(r.Context(), rc.projectID, advisorylock.ClassAxial, rc.sessionID, func() error {
		return s.store.RunInTransaction(r.Context(), rc.projectID, func(tx *ledger.Tx) error {
			catalog, err := tx.GetCatalogByLabel(req.Codigo)
			if err != nil {
				return err
			}
			// Invariant I6: code_id is the sole cross-store identity and
			// every projection MERGEs by it, so a merged/subsumed row's
			// raw code_id must never reach storage — resolve it to its
			// canonical form first.
			canonicalID, ok := snap.ResolveCanonical(catalog.CodeID, s.readiness.MaxHops())
			if !ok {
				return apperr.NotReady([]string{string(readiness.ReasonMissingCanonicalCodeID)})
			}
			a, err := tx.CreateAxialRelation(req.Categoria, req.Codigo, canonicalID, ledger.AxialRelationKind(req.Relation), req.Memo, req.Evidence)
			if err != nil {
				return err
			}
			if err := tx.RecordVersion(req.Codigo, &canonicalID, ledger.ActionCreate, req.Actor, "", string(a.State)); err != nil {
				return err
			}
			axial = a
			return nil
		})
	})
	if err != nil {
		s.logEnd(rc, 1, 0, apperr.HTTPStatus(apperr.KindOf(err)), classify(err, false), err)
		writeErr(w, rc, err)
		return
	}
	s.logEnd(rc, 1, 1, http.StatusOK, OutcomeOK, nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": rc.projectID, "session_id": rc.sessionID, "request_id": rc.requestID,
		"axial_relation": axial,
	})
}
