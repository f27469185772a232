// Package adminapi implements C7, the Admin Operations API: the HTTP
// surface from spec section 6, structured the way the teacher's
// internal/rpc.HTTPServer wraps a typed core behind net/http, but
// speaking the plain REST routes spec section 6 enumerates instead of
// Connect-RPC-style method dispatch. Every mutating operation shares
// the discipline of spec section 4.7: dry-run by default, explicit
// confirm + fresh session id to actually mutate, a project-scoped
// advisory lock held for the call's duration, idempotency-key binding,
// and structured request.start/request.end logging with outcome
// classification.
package adminapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/qualcode/ontocore/internal/advisorylock"
	"github.com/qualcode/ontocore/internal/apperr"
	"github.com/qualcode/ontocore/internal/candidates"
	"github.com/qualcode/ontocore/internal/config"
	"github.com/qualcode/ontocore/internal/freezectl"
	"github.com/qualcode/ontocore/internal/idgen"
	"github.com/qualcode/ontocore/internal/ledger"
	"github.com/qualcode/ontocore/internal/maintenance"
	"github.com/qualcode/ontocore/internal/projection"
	"github.com/qualcode/ontocore/internal/readiness"
	"github.com/qualcode/ontocore/internal/semantic"
)

// Outcome is the classification spec section 4.7 mandates for every
// logged request.
type Outcome string

const (
	OutcomeOK      Outcome = "OK"
	OutcomeNoop    Outcome = "NOOP"
	OutcomeError   Outcome = "ERROR"
	OutcomeUnknown Outcome = "UNKNOWN"
)

// Server holds every dependency the HTTP handlers need.
type Server struct {
	store       *ledger.Store
	locks       *advisorylock.Registry
	freeze      *freezectl.Controller
	candidates  *candidates.Engine
	readiness   *readiness.Gate
	sync        *projection.Synchronizer
	maintenance *maintenance.Engine
	cfg         *config.Store
	log         *slog.Logger
	sf          singleflight.Group

	// semanticRunner is nil unless an ANTHROPIC_API_KEY was configured
	// at startup; POST /candidates/propose is disabled without one.
	semanticRunner *semantic.Runner
}

// SetSemanticRunner wires the optional external semantic-runner
// collaborator (spec section 1) into POST /candidates/propose. Callers
// that have no ANTHROPIC_API_KEY configured simply never call this,
// leaving the route to answer dependency errors.
func (s *Server) SetSemanticRunner(r *semantic.Runner) {
	s.semanticRunner = r
}

// New builds an adminapi Server.
func New(store *ledger.Store, locks *advisorylock.Registry, freeze *freezectl.Controller, cand *candidates.Engine, gate *readiness.Gate, sync *projection.Synchronizer, maint *maintenance.Engine, cfg *config.Store, log *slog.Logger) *Server {
	return &Server{store: store, locks: locks, freeze: freeze, candidates: cand, readiness: gate, sync: sync, maintenance: maint, cfg: cfg, log: log}
}

// Routes registers every endpoint from spec section 6 onto mux.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /readiness", s.handleReadiness)
	mux.HandleFunc("GET /freeze", s.handleFreezeGet)
	mux.HandleFunc("POST /freeze", s.handleFreezeSet)
	mux.HandleFunc("POST /freeze/break", s.handleFreezeBreak)
	mux.HandleFunc("POST /candidates/check-batch", s.handleCheckBatch)
	mux.HandleFunc("POST /candidates", s.handleSubmitCandidate)
	mux.HandleFunc("POST /candidates/batch", s.handleSubmitCandidateBatch)
	mux.HandleFunc("PUT /candidates/{id}/validate", s.handleTransition(ledger.CandidateValidated))
	mux.HandleFunc("PUT /candidates/{id}/reject", s.handleTransition(ledger.CandidateRejected))
	mux.HandleFunc("POST /candidates/merge", s.handleMergeIDs)
	mux.HandleFunc("POST /candidates/auto-merge", s.handleMergePairs)
	mux.HandleFunc("POST /candidates/propose", s.handleProposeCandidates)
	mux.HandleFunc("POST /axial/relations", s.handleCreateAxial)
	mux.HandleFunc("POST /sync/fragments", s.handleSyncFragments)
	mux.HandleFunc("POST /sync/axial", s.handleSyncAxial)
	mux.HandleFunc("POST /sync/predictions", s.handleSyncPredictions)
	mux.HandleFunc("POST /sync/vectors", s.handleSyncVectors)
	mux.HandleFunc("GET /ops/recent", s.handleOpsRecent)
	mux.HandleFunc("GET /ops/log", s.handleOpsLog)
	mux.HandleFunc("POST /admin/backfill", s.handleBackfill)
	mux.HandleFunc("POST /admin/repair", s.handleRepair)
}

// requestCtx carries the fields every admin call logs.
type requestCtx struct {
	projectID string
	sessionID string
	requestID string
	operation string
	dryRun    bool
	confirm   bool
	start     time.Time
}

func newRequestCtx(r *http.Request, operation string) requestCtx {
	projectID := r.URL.Query().Get("project")
	if projectID == "" {
		projectID = r.Header.Get("X-Project-ID")
	}
	sessionID := r.Header.Get("X-Session-ID")
	if sessionID == "" {
		sessionID = idgen.NewSessionID()
	}
	return requestCtx{
		projectID: projectID,
		sessionID: sessionID,
		requestID: idgen.NewRequestID(),
		operation: operation,
		start:     time.Now(),
	}
}

func (s *Server) logStart(rc requestCtx) {
	s.log.Info("request.start",
		"project_id", rc.projectID, "session_id", rc.sessionID, "request_id", rc.requestID,
		"operation", rc.operation, "dry_run", rc.dryRun, "confirm", rc.confirm)
}

func (s *Server) logEnd(rc requestCtx, batchSize, updatedRows, statusCode int, outcome Outcome, err error) {
	args := []any{
		"project_id", rc.projectID, "session_id", rc.sessionID, "request_id", rc.requestID,
		"operation", rc.operation, "dry_run", rc.dryRun, "confirm", rc.confirm,
		"batch_size", batchSize, "updated_rows", updatedRows,
		"duration_ms", time.Since(rc.start).Milliseconds(), "status_code", statusCode, "outcome", string(outcome),
	}
	if err != nil {
		args = append(args, "error", err.Error())
		s.log.Error("request.end", args...)
		return
	}
	s.log.Info("request.end", args...)
}

// classify derives the outcome per spec section 4.7: an error is always
// ERROR, even when noop is set; otherwise an explicit NOOP (dry_run or
// a short-circuited idempotent replay) yields NOOP, and anything else
// OK. classify never returns UNKNOWN.
func classify(err error, noop bool) Outcome {
	if err != nil {
		return OutcomeError
	}
	if noop {
		return OutcomeNoop
	}
	return OutcomeOK
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, rc requestCtx, err error) {
	e := apperr.Wrap(err)
	status := apperr.HTTPStatus(e.Kind)
	body := map[string]any{
		"error":      e.Kind,
		"message":    e.Message,
		"project_id": rc.projectID,
		"session_id": rc.sessionID,
		"request_id": rc.requestID,
	}
	if e.Details != nil {
		body["details"] = e.Details
		if reasons, ok := e.Details["blocking_reasons"]; ok {
			body["blocking_reasons"] = reasons
		}
	}
	writeJSON(w, status, body)
}

// withLock acquires the (project_id, class) advisory lock for the
// duration of fn, releasing it afterward, and maps a lock-acquisition
// failure straight into the busy response.
func (s *Server) withLock(ctx context.Context, projectID string, class advisorylock.Class, sessionID string, fn func() error) error {
	timeout := time.Duration(s.cfg.Current().AdvisoryLockTimeoutMS) * time.Millisecond
	h, err := s.locks.Acquire(ctx, projectID, class, sessionID, timeout)
	if err != nil {
		return err
	}
	defer h.Release()
	return fn()
}

// collapse runs fn at most once across concurrent callers sharing the
// same (projectID, op, idempotencyKey), per spec section 4.7. A blank
// idempotencyKey disables collapsing: there is nothing to dedup against.
func (s *Server) collapse(projectID, op, idempotencyKey string, fn func() (any, error)) (any, error) {
	if idempotencyKey == "" {
		return fn()
	}
	v, err, _ := s.sf.Do(projectID+"/"+op+"/"+idempotencyKey, fn)
	return v, err
}

func parseDryRunConfirm(r *http.Request) (dryRun, confirm bool) {
	dryRun = true
	if v := r.URL.Query().Get("dry_run"); v != "" {
		dryRun, _ = strconv.ParseBool(v)
	}
	if v := r.URL.Query().Get("confirm"); v != "" {
		confirm, _ = strconv.ParseBool(v)
	}
	return dryRun, confirm
}

// requireConfirm enforces spec section 4.7: dry_run=false requires
// confirm=true and a fresh X-Session-ID. A violation is a safe NOOP,
// reported as invalid_request rather than silently treated as dry-run.
func requireConfirm(dryRun, confirm bool, sessionID string) error {
	if dryRun {
		return nil
	}
	if !confirm {
		return apperr.InvalidRequest("dry_run=false requires confirm=true")
	}
	if sessionID == "" {
		return apperr.InvalidRequest("dry_run=false requires a fresh X-Session-ID")
	}
	return nil
}
