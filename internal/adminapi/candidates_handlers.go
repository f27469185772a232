package adminapi

import (
	"net/http"
	"strconv"

	"github.com/qualcode/ontocore/internal/advisorylock"
	"github.com/qualcode/ontocore/internal/apperr"
	"github.com/qualcode/ontocore/internal/candidates"
	"github.com/qualcode/ontocore/internal/ledger"
	"github.com/qualcode/ontocore/internal/semantic"
)

// --- POST /candidates/check-batch --------------------------------------------

type checkBatchRequest struct {
	Labels []string `json:"labels"`
}

func (s *Server) handleCheckBatch(w http.ResponseWriter, r *http.Request) {
	rc := newRequestCtx(r, "candidates.check_batch")
	rc.dryRun = true
	s.logStart(rc)

	var req checkBatchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.logEnd(rc, 0, 0, http.StatusBadRequest, classify(err, false), err)
		writeErr(w, rc, err)
		return
	}

	results, err := s.candidates.CheckBatch(r.Context(), rc.projectID, req.Labels)
	if err != nil {
		s.logEnd(rc, len(req.Labels), 0, apperr.HTTPStatus(apperr.KindOf(err)), classify(err, false), err)
		writeErr(w, rc, err)
		return
	}
	s.logEnd(rc, len(req.Labels), 0, http.StatusOK, OutcomeOK, nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": rc.projectID, "session_id": rc.sessionID, "request_id": rc.requestID,
		"results": results,
	})
}

// --- POST /candidates --------------------------------------------------------

type submitCandidateRequest struct {
	Codigo     string  `json:"codigo"`
	FragmentID *string `json:"fragment_id"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
	Memo       string  `json:"memo"`
}

func (s *Server) handleSubmitCandidate(w http.ResponseWriter, r *http.Request) {
	rc := newRequestCtx(r, "candidates.submit")
	rc.dryRun = false // submission is an analyst action, not gated by dry_run/confirm
	s.logStart(rc)

	var req submitCandidateRequest
	if err := decodeJSON(r, &req); err != nil {
		s.logEnd(rc, 0, 0, http.StatusBadRequest, classify(err, false), err)
		writeErr(w, rc, err)
		return
	}
	if req.Codigo == "" {
		err := apperr.InvalidRequest("codigo is required")
		s.logEnd(rc, 1, 0, http.StatusBadRequest, classify(err, false), err)
		writeErr(w, rc, err)
		return
	}

	c, err := s.candidates.Submit(r.Context(), rc.projectID, req.Codigo, req.FragmentID, ledger.CandidateSource(req.Source), req.Confidence, req.Memo)
	if err != nil {
		s.logEnd(rc, 1, 0, apperr.HTTPStatus(apperr.KindOf(err)), classify(err, false), err)
		writeErr(w, rc, err)
		return
	}
	s.logEnd(rc, 1, 1, http.StatusOK, OutcomeOK, nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": rc.projectID, "session_id": rc.sessionID, "request_id": rc.requestID,
		"candidate": c,
	})
}

// --- POST /candidates/batch --------------------------------------------------

func (s *Server) handleSubmitCandidateBatch(w http.ResponseWriter, r *http.Request) {
	rc := newRequestCtx(r, "candidates.submit_batch")
	rc.dryRun = false
	s.logStart(rc)

	var req struct {
		Candidates []submitCandidateRequest `json:"candidates"`
	}
	if err := decodeJSON(r, &req); err != nil {
		s.logEnd(rc, 0, 0, http.StatusBadRequest, classify(err, false), err)
		writeErr(w, rc, err)
		return
	}

	out := make([]*ledger.Candidate, 0, len(req.Candidates))
	for _, item := range req.Candidates {
		c, err := s.candidates.Submit(r.Context(), rc.projectID, item.Codigo, item.FragmentID, ledger.CandidateSource(item.Source), item.Confidence, item.Memo)
		if err != nil {
			s.logEnd(rc, len(req.Candidates), len(out), apperr.HTTPStatus(apperr.KindOf(err)), classify(err, false), err)
			writeErr(w, rc, err)
			return
		}
		out = append(out, c)
	}
	s.logEnd(rc, len(req.Candidates), len(out), http.StatusOK, OutcomeOK, nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": rc.projectID, "session_id": rc.sessionID, "request_id": rc.requestID,
		"candidates": out,
	})
}

// --- PUT /candidates/{id}/validate, /reject ----------------------------------

type transitionRequest struct {
	Actor string  `json:"actor"`
	Memo  *string `json:"memo"`
}

func (s *Server) handleTransition(target ledger.CandidateState) http.HandlerFunc {
	opName := "candidates.reject"
	if target == ledger.CandidateValidated {
		opName = "candidates.validate"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		rc := newRequestCtx(r, opName)
		rc.dryRun = false
		s.logStart(rc)

		id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
		if err != nil {
			e := apperr.InvalidRequest("invalid candidate id %q", r.PathValue("id"))
			s.logEnd(rc, 1, 0, http.StatusBadRequest, classify(e, false), e)
			writeErr(w, rc, e)
			return
		}
		var req transitionRequest
		if err := decodeJSON(r, &req); err != nil {
			s.logEnd(rc, 1, 0, http.StatusBadRequest, classify(err, false), err)
			writeErr(w, rc, err)
			return
		}

		c, err := s.candidates.Transition(r.Context(), rc.projectID, id, target, req.Actor, req.Memo)
		if err != nil {
			s.logEnd(rc, 1, 0, apperr.HTTPStatus(apperr.KindOf(err)), classify(err, false), err)
			writeErr(w, rc, err)
			return
		}
		s.logEnd(rc, 1, 1, http.StatusOK, OutcomeOK, nil)
		writeJSON(w, http.StatusOK, map[string]any{
			"project_id": rc.projectID, "session_id": rc.sessionID, "request_id": rc.requestID,
			"candidate": c,
		})
	}
}

// --- POST /candidates/merge (merge_ids) --------------------------------------

type mergeIDsRequest struct {
	SourceIDs      []int64 `json:"source_ids"`
	TargetCodigo   string  `json:"target_codigo"`
	Memo           string  `json:"memo"`
	Actor          string  `json:"actor"`
	DryRun         *bool   `json:"dry_run"`
	Confirm        bool    `json:"confirm"`
	IdempotencyKey string  `json:"idempotency_key"`
}

func (s *Server) handleMergeIDs(w http.ResponseWriter, r *http.Request) {
	rc := newRequestCtx(r, "candidates.merge_ids")
	s.logStart(rc)

	var req mergeIDsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.logEnd(rc, 0, 0, http.StatusBadRequest, classify(err, false), err)
		writeErr(w, rc, err)
		return
	}
	rc.dryRun, rc.confirm = resolveDryRun(req.DryRun, s.cfg), req.Confirm
	if err := requireConfirm(rc.dryRun, rc.confirm, r.Header.Get("X-Session-ID")); err != nil {
		s.logEnd(rc, len(req.SourceIDs), 0, http.StatusBadRequest, classify(err, false), err)
		writeErr(w, rc, err)
		return
	}

	// In-process collapsing: two concurrent requests carrying the same
	// idempotency key share one underlying call instead of both racing
	// to acquire the catalog lock, per spec section 4.7's idempotency
	// discipline.
	v, err := s.collapse(rc.projectID, "merge_ids", req.IdempotencyKey, func() (any, error) {
		var o *candidates.MergeOutcome
		err := s.withLock(r.Context(), rc.projectID, advisorylock.ClassCatalog, rc.sessionID, func() error {
			var err error
			o, err = s.candidates.MergeIDs(r.Context(), rc.projectID, req.SourceIDs, req.TargetCodigo, req.Memo, rc.dryRun, req.Actor, req.IdempotencyKey)
			return err
		})
		return o, err
	})
	var out *candidates.MergeOutcome
	if v != nil {
		out = v.(*candidates.MergeOutcome)
	}
	if err != nil {
		s.logEnd(rc, len(req.SourceIDs), 0, apperr.HTTPStatus(apperr.KindOf(err)), classify(err, false), err)
		writeErr(w, rc, err)
		return
	}
	outcome := classify(nil, rc.dryRun)
	s.logEnd(rc, len(req.SourceIDs), out.Moved+out.MarkedMerged, http.StatusOK, outcome, nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": rc.projectID, "session_id": rc.sessionID, "request_id": rc.requestID,
		"outcome": out,
	})
}

// --- POST /candidates/auto-merge (merge_pairs) -------------------------------

type mergePairRequest struct {
	SourceCodigo string `json:"source_codigo"`
	TargetCodigo string `json:"target_codigo"`
}

type mergePairsRequest struct {
	Pairs          []mergePairRequest `json:"pairs"`
	Memo           string             `json:"memo"`
	Actor          string             `json:"actor"`
	DryRun         *bool              `json:"dry_run"`
	Confirm        bool               `json:"confirm"`
	IdempotencyKey string             `json:"idempotency_key"`
}

func (s *Server) handleMergePairs(w http.ResponseWriter, r *http.Request) {
	rc := newRequestCtx(r, "candidates.merge_pairs")
	s.logStart(rc)

	var req mergePairsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.logEnd(rc, 0, 0, http.StatusBadRequest, classify(err, false), err)
		writeErr(w, rc, err)
		return
	}
	rc.dryRun, rc.confirm = resolveDryRun(req.DryRun, s.cfg), req.Confirm
	if err := requireConfirm(rc.dryRun, rc.confirm, r.Header.Get("X-Session-ID")); err != nil {
		s.logEnd(rc, len(req.Pairs), 0, http.StatusBadRequest, classify(err, false), err)
		writeErr(w, rc, err)
		return
	}

	pairs := make([]candidates.Pair, 0, len(req.Pairs))
	for _, p := range req.Pairs {
		pairs = append(pairs, candidates.Pair{SourceCodigo: p.SourceCodigo, TargetCodigo: p.TargetCodigo})
	}

	v, err := s.collapse(rc.projectID, "merge_pairs", req.IdempotencyKey, func() (any, error) {
		var o []candidates.MergeOutcome
		err := s.withLock(r.Context(), rc.projectID, advisorylock.ClassCatalog, rc.sessionID, func() error {
			var err error
			o, err = s.candidates.MergePairs(r.Context(), rc.projectID, pairs, req.Memo, rc.dryRun, req.Actor, req.IdempotencyKey, s.cfg.Current().AllowCatalogPairMerge)
			return err
		})
		return o, err
	})
	var outcomes []candidates.MergeOutcome
	if v != nil {
		outcomes = v.([]candidates.MergeOutcome)
	}
	if err != nil {
		s.logEnd(rc, len(req.Pairs), 0, apperr.HTTPStatus(apperr.KindOf(err)), classify(err, false), err)
		writeErr(w, rc, err)
		return
	}
	updated := 0
	for _, o := range outcomes {
		updated += o.Moved + o.MarkedMerged
	}
	s.logEnd(rc, len(req.Pairs), updated, http.StatusOK, classify(nil, rc.dryRun), nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": rc.projectID, "session_id": rc.sessionID, "request_id": rc.requestID,
		"outcomes": outcomes,
	})
}

// --- POST /candidates/propose -------------------------------------------------

type proposeCandidatesRequest struct {
	FragmentID string `json:"fragment_id"`
	Text       string `json:"text"`
}

// handleProposeCandidates drives the external semantic-runner
// collaborator in-process, submitting every proposal it returns
// through the same candidates.Engine.Submit path a manual submission
// uses. Per spec section 1 this collaborator is out of core scope;
// exposing it as a route is a convenience so the runner never needs
// its own copy of the ledger credentials.
func (s *Server) handleProposeCandidates(w http.ResponseWriter, r *http.Request) {
	rc := newRequestCtx(r, "candidates.propose")
	rc.dryRun = false
	s.logStart(rc)

	if s.semanticRunner == nil {
		err := apperr.Dependency(nil, "semantic runner not configured (no ANTHROPIC_API_KEY at startup)")
		s.logEnd(rc, 0, 0, apperr.HTTPStatus(apperr.KindOf(err)), classify(err, false), err)
		writeErr(w, rc, err)
		return
	}

	var req proposeCandidatesRequest
	if err := decodeJSON(r, &req); err != nil {
		s.logEnd(rc, 0, 0, http.StatusBadRequest, classify(err, false), err)
		writeErr(w, rc, err)
		return
	}
	if req.FragmentID == "" || req.Text == "" {
		err := apperr.InvalidRequest("fragment_id and text are required")
		s.logEnd(rc, 1, 0, http.StatusBadRequest, classify(err, false), err)
		writeErr(w, rc, err)
		return
	}

	created, err := s.semanticRunner.ProposeAndSubmit(r.Context(), rc.projectID, semantic.Fragment{ID: req.FragmentID, Text: req.Text})
	if err != nil {
		e := apperr.Dependency(err, "semantic runner call failed")
		s.logEnd(rc, 1, 0, apperr.HTTPStatus(apperr.KindOf(e)), classify(e, false), e)
		writeErr(w, rc, e)
		return
	}
	s.logEnd(rc, 1, len(created), http.StatusOK, OutcomeOK, nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": rc.projectID, "session_id": rc.sessionID, "request_id": rc.requestID,
		"candidates": created,
	})
}
