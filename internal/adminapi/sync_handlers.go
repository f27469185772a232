package adminapi

import (
	"context"
	"net/http"
	"time"

	"github.com/qualcode/ontocore/internal/advisorylock"
	"github.com/qualcode/ontocore/internal/apperr"
	"github.com/qualcode/ontocore/internal/graphstore"
	"github.com/qualcode/ontocore/internal/projection"
)

// loadFragmentFromAssignments builds the projection.SyncFragments and
// projection.SyncVectors loader out of assignment rows, since fragment
// ingestion itself is an external collaborator (spec section 1): the
// identity core has no fragment text of its own beyond the verbatim
// citation an assignment carries.
func (s *Server) loadFragmentFromAssignments(ctx context.Context, projectID, fragmentID string) (graphstore.Fragment, bool, error) {
	return projection.LoadFragmentFromAssignments(ctx, s.store, projectID, fragmentID)
}

// --- POST /sync/fragments ----------------------------------------------------

func (s *Server) handleSyncFragments(w http.ResponseWriter, r *http.Request) {
	rc := newRequestCtx(r, "sync.fragments")
	rc.dryRun = false
	s.logStart(rc)

	var res struct {
		Scanned, Synced, Remaining int
	}
	err := s.withLock(r.Context(), rc.projectID, advisorylock.ClassSync, rc.sessionID, func() error {
		timeout := time.Duration(s.cfg.Current().AdvisoryLockTimeoutMS) * time.Millisecond
		ctx, cancel := context.WithTimeout(r.Context(), timeout*10)
		defer cancel()
		r, err := s.sync.SyncFragments(ctx, rc.projectID, s.loadFragmentFromAssignments)
		if err != nil {
			return err
		}
		res.Scanned, res.Synced, res.Remaining = r.Scanned, r.Synced, r.Remaining
		return nil
	})
	if err != nil {
		s.logEnd(rc, 0, 0, apperr.HTTPStatus(apperr.KindOf(err)), classify(err, false), err)
		writeErr(w, rc, err)
		return
	}
	s.logEnd(rc, res.Scanned, res.Synced, http.StatusOK, classify(nil, res.Synced == 0 && res.Scanned == 0), nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": rc.projectID, "session_id": rc.sessionID, "request_id": rc.requestID,
		"scanned": res.Scanned, "synced": res.Synced, "remaining": res.Remaining,
	})
}

// --- POST /sync/predictions ----------------------------------------------------

func (s *Server) handleSyncPredictions(w http.ResponseWriter, r *http.Request) {
	rc := newRequestCtx(r, "sync.predictions")
	rc.dryRun = false
	s.logStart(rc)

	var res struct {
		Scanned, Synced, Remaining int
	}
	err := s.withLock(r.Context(), rc.projectID, advisorylock.ClassSync, rc.sessionID, func() error {
		r, err := s.sync.SyncPredictions(r.Context(), rc.projectID)
		if err != nil {
			return err
		}
		res.Scanned, res.Synced, res.Remaining = r.Scanned, r.Synced, r.Remaining
		return nil
	})
	if err != nil {
		s.logEnd(rc, 0, 0, apperr.HTTPStatus(apperr.KindOf(err)), classify(err, false), err)
		writeErr(w, rc, err)
		return
	}
	s.logEnd(rc, res.Scanned, res.Synced, http.StatusOK, classify(nil, res.Synced == 0 && res.Scanned == 0), nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": rc.projectID, "session_id": rc.sessionID, "request_id": rc.requestID,
		"scanned": res.Scanned, "synced": res.Synced, "remaining": res.Remaining,
	})
}

// --- POST /sync/vectors ---------------------------------------------------------

func (s *Server) handleSyncVectors(w http.ResponseWriter, r *http.Request) {
	rc := newRequestCtx(r, "sync.vectors")
	rc.dryRun = false
	s.logStart(rc)

	var res struct {
		Scanned, Synced, Remaining int
	}
	err := s.withLock(r.Context(), rc.projectID, advisorylock.ClassSync, rc.sessionID, func() error {
		timeout := time.Duration(s.cfg.Current().AdvisoryLockTimeoutMS) * time.Millisecond
		ctx, cancel := context.WithTimeout(r.Context(), timeout*10)
		defer cancel()
		r, err := s.sync.SyncVectors(ctx, rc.projectID, s.loadFragmentFromAssignments)
		if err != nil {
			return err
		}
		res.Scanned, res.Synced, res.Remaining = r.Scanned, r.Synced, r.Remaining
		return nil
	})
	if err != nil {
		s.logEnd(rc, 0, 0, apperr.HTTPStatus(apperr.KindOf(err)), classify(err, false), err)
		writeErr(w, rc, err)
		return
	}
	s.logEnd(rc, res.Scanned, res.Synced, http.StatusOK, classify(nil, res.Synced == 0 && res.Scanned == 0), nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": rc.projectID, "session_id": rc.sessionID, "request_id": rc.requestID,
		"scanned": res.Scanned, "synced": res.Synced, "remaining": res.Remaining,
	})
}

// --- POST /sync/axial ---------------------------------------------------------

func (s *Server) handleSyncAxial(w http.ResponseWriter, r *http.Request) {
	rc := newRequestCtx(r, "sync.axial")
	rc.dryRun = false
	s.logStart(rc)

	var res struct {
		Scanned, Synced, Remaining int
	}
	err := s.withLock(r.Context(), rc.projectID, advisorylock.ClassSync, rc.sessionID, func() error {
		r, err := s.sync.SyncAxial(r.Context(), rc.projectID, time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return err
		}
		res.Scanned, res.Synced, res.Remaining = r.Scanned, r.Synced, r.Remaining
		return nil
	})
	if err != nil {
		s.logEnd(rc, 0, 0, apperr.HTTPStatus(apperr.KindOf(err)), classify(err, false), err)
		writeErr(w, rc, err)
		return
	}
	s.logEnd(rc, res.Scanned, res.Synced, http.StatusOK, classify(nil, res.Synced == 0 && res.Scanned == 0), nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": rc.projectID, "session_id": rc.sessionID, "request_id": rc.requestID,
		"scanned": res.Scanned, "synced": res.Synced, "remaining": res.Remaining,
	})
}
