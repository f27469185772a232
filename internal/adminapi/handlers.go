package adminapi

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/qualcode/ontocore/internal/apperr"
	"github.com/qualcode/ontocore/internal/config"
	"github.com/qualcode/ontocore/internal/readiness"
)

var sinceParser = func() *when.Parser {
	p := when.New(nil)
	p.Add(en.All...)
	p.Add(common.All...)
	return p
}()

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.InvalidRequest("malformed request body: %v", err)
	}
	return nil
}

// --- GET /readiness ---------------------------------------------------------

// lastReadiness holds, per project id, the last report this process
// computed successfully.
var lastReadiness sync.Map

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	rc := newRequestCtx(r, "readiness.get")
	s.logStart(rc)

	report, err := s.readiness.Evaluate(r.Context(), rc.projectID)
	if err != nil {
		// Degraded-mode read: a dependency hiccup on the read path answers
		// with the last report computed for this project (zero counters
		// if there is none) rather than failing the request outright.
		if cached, ok := lastReadiness.Load(rc.projectID); ok {
			report = cached.(readiness.Report)
		}
		report.Degraded = true
	} else {
		lastReadiness.Store(rc.projectID, report)
	}
	s.logEnd(rc, 0, 0, http.StatusOK, classify(nil, false), nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id":                rc.projectID,
		"session_id":                rc.sessionID,
		"request_id":                rc.requestID,
		"axial_ready":               report.AxialReady,
		"missing_code_id":           report.MissingCodeID,
		"missing_canonical_code_id": report.MissingCanonicalCodeID,
		"divergences_text_vs_id":    report.DivergencesTextVsID,
		"cycles_non_trivial":        report.CyclesNonTrivial,
		"blocking_reasons":          report.BlockingReasons,
		"degraded":                  report.Degraded,
	})
}

// --- GET /freeze, POST /freeze, POST /freeze/break --------------------------

func (s *Server) handleFreezeGet(w http.ResponseWriter, r *http.Request) {
	rc := newRequestCtx(r, "freeze.get")
	s.logStart(rc)

	f, err := s.freeze.Get(r.Context(), rc.projectID)
	if err != nil {
		s.logEnd(rc, 0, 0, apperr.HTTPStatus(apperr.KindOf(err)), classify(err, false), err)
		writeErr(w, rc, err)
		return
	}
	s.logEnd(rc, 0, 0, http.StatusOK, classify(nil, false), nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": rc.projectID, "session_id": rc.sessionID, "request_id": rc.requestID,
		"is_frozen": f.IsFrozen, "frozen_by": f.FrozenBy, "frozen_at": f.FrozenAt, "note": f.Note,
	})
}

type freezeRequest struct {
	Actor   string `json:"actor"`
	Note    string `json:"note"`
	DryRun  *bool  `json:"dry_run"`
	Confirm bool   `json:"confirm"`
}

func (s *Server) handleFreezeSet(w http.ResponseWriter, r *http.Request) {
	rc := newRequestCtx(r, "freeze.set")
	s.logStart(rc)

	var req freezeRequest
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

	if rc.dryRun {
		s.logEnd(rc, 0, 0, http.StatusOK, OutcomeNoop, nil)
		writeJSON(w, http.StatusOK, map[string]any{
			"project_id": rc.projectID, "session_id": rc.sessionID, "request_id": rc.requestID,
			"dry_run": true, "would_freeze": true,
		})
		return
	}

	timeout := time.Duration(s.cfg.Current().AdvisoryLockTimeoutMS) * time.Millisecond
	f, err := s.freeze.Freeze(r.Context(), rc.projectID, req.Actor, req.Note, rc.sessionID, timeout)
	if err != nil {
		s.logEnd(rc, 0, 0, apperr.HTTPStatus(apperr.KindOf(err)), classify(err, false), err)
		writeErr(w, rc, err)
		return
	}
	s.logEnd(rc, 0, 1, http.StatusOK, OutcomeOK, nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": rc.projectID, "session_id": rc.sessionID, "request_id": rc.requestID,
		"is_frozen": f.IsFrozen, "frozen_by": f.FrozenBy, "frozen_at": f.FrozenAt,
	})
}

func (s *Server) handleFreezeBreak(w http.ResponseWriter, r *http.Request) {
	rc := newRequestCtx(r, "freeze.break")
	s.logStart(rc)

	var req freezeRequest
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

	if rc.dryRun {
		s.logEnd(rc, 0, 0, http.StatusOK, OutcomeNoop, nil)
		writeJSON(w, http.StatusOK, map[string]any{
			"project_id": rc.projectID, "session_id": rc.sessionID, "request_id": rc.requestID,
			"dry_run": true, "would_break": true,
		})
		return
	}

	timeout := time.Duration(s.cfg.Current().AdvisoryLockTimeoutMS) * time.Millisecond
	f, err := s.freeze.Break(r.Context(), rc.projectID, req.Actor, req.Note, rc.sessionID, timeout)
	if err != nil {
		s.logEnd(rc, 0, 0, apperr.HTTPStatus(apperr.KindOf(err)), classify(err, false), err)
		writeErr(w, rc, err)
		return
	}
	s.logEnd(rc, 0, 1, http.StatusOK, OutcomeOK, nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": rc.projectID, "session_id": rc.sessionID, "request_id": rc.requestID,
		"is_frozen": f.IsFrozen, "broken_by": f.BrokenBy, "broken_at": f.BrokenAt,
	})
}

// resolveDryRun applies spec section 6's rule that DRY_RUN_DEFAULT
// cannot be disabled globally (config.Store.Current().DryRunDefault is
// always true): an absent dry_run field falls back to that default, but
// an explicit value — true or false — is honored.
func resolveDryRun(requested *bool, cfg *config.Store) bool {
	if requested != nil {
		return *requested
	}
	return cfg.Current().DryRunDefault
}
