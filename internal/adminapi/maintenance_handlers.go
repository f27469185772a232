package adminapi

import (
	"net/http"

	"github.com/qualcode/ontocore/internal/advisorylock"
	"github.com/qualcode/ontocore/internal/apperr"
)

// --- POST /admin/backfill -----------------------------------------------------

type maintenanceRequest struct {
	Actor          string `json:"actor"`
	DryRun         *bool  `json:"dry_run"`
	Confirm        bool   `json:"confirm"`
	IdempotencyKey string `json:"idempotency_key"`
}

func (s *Server) handleBackfill(w http.ResponseWriter, r *http.Request) {
	rc := newRequestCtx(r, "admin.backfill")
	s.logStart(rc)

	var req maintenanceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.logEnd(rc, 0, 0, http.StatusBadRequest, classify(err, false), err)
		writeErr(w, rc, err)
		return
	}
	rc.dryRun, rc.confirm = resolveDryRun(req.DryRun, s.cfg), req.Confirm
	if err := requireConfirm(rc.dryRun, rc.confirm, r.Header.Get("X-Session-ID")); err != nil {
		s.logEnd(rc, 0, 0, http.StatusBadRequest, classify(err, false), err)
		writeErr(w, rc, err)
		return
	}

	v, err := s.collapse(rc.projectID, "backfill", req.IdempotencyKey, func() (any, error) {
		var res any
		lockErr := s.withLock(r.Context(), rc.projectID, advisorylock.ClassCatalog, rc.sessionID, func() error {
			out, err := s.maintenance.Backfill(r.Context(), rc.projectID, rc.dryRun, req.Actor, req.IdempotencyKey)
			res = out
			return err
		})
		return res, lockErr
	})
	if err != nil {
		s.logEnd(rc, 0, 0, apperr.HTTPStatus(apperr.KindOf(err)), classify(err, false), err)
		writeErr(w, rc, err)
		return
	}
	s.logEnd(rc, 0, 0, http.StatusOK, classify(nil, rc.dryRun), nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": rc.projectID, "session_id": rc.sessionID, "request_id": rc.requestID,
		"result": v,
	})
}

// --- POST /admin/repair -------------------------------------------------------

func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	rc := newRequestCtx(r, "admin.repair")
	s.logStart(rc)

	var req maintenanceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.logEnd(rc, 0, 0, http.StatusBadRequest, classify(err, false), err)
		writeErr(w, rc, err)
		return
	}
	rc.dryRun, rc.confirm = resolveDryRun(req.DryRun, s.cfg), req.Confirm
	if err := requireConfirm(rc.dryRun, rc.confirm, r.Header.Get("X-Session-ID")); err != nil {
		s.logEnd(rc, 0, 0, http.StatusBadRequest, classify(err, false), err)
		writeErr(w, rc, err)
		return
	}

	// Repair touches canonical chains, so (unlike backfill) it holds
	// both the axial and catalog locks in the fixed order spec section
	// 4.7 requires: freeze < catalog < axial < sync.
	v, err := s.collapse(rc.projectID, "repair", req.IdempotencyKey, func() (any, error) {
		var res any
		lockErr := s.withLock(r.Context(), rc.projectID, advisorylock.ClassCatalog, rc.sessionID, func() error {
			return s.withLock(r.Context(), rc.projectID, advisorylock.ClassAxial, rc.sessionID, func() error {
				out, err := s.maintenance.Repair(r.Context(), rc.projectID, rc.dryRun, req.Actor, req.IdempotencyKey)
				res = out
				return err
			})
		})
		return res, lockErr
	})
	if err != nil {
		s.logEnd(rc, 0, 0, apperr.HTTPStatus(apperr.KindOf(err)), classify(err, false), err)
		writeErr(w, rc, err)
		return
	}
	s.logEnd(rc, 0, 0, http.StatusOK, classify(nil, rc.dryRun), nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": rc.projectID, "session_id": rc.sessionID, "request_id": rc.requestID,
		"result": v,
	})
}
