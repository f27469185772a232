package adminapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/qualcode/ontocore/internal/apperr"
	"github.com/qualcode/ontocore/internal/ledger"
)

// --- GET /ops/recent ----------------------------------------------------------

// handleOpsRecent returns the most recent audit version events,
// unfiltered save for an optional limit — the quick "what just
// happened" view, as opposed to /ops/log's filtered query.
func (s *Server) handleOpsRecent(w http.ResponseWriter, r *http.Request) {
	rc := newRequestCtx(r, "ops.recent")
	s.logStart(rc)

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	events, err := s.store.QueryVersions(r.Context(), rc.projectID, ledger.VersionFilter{Limit: limit})
	if err != nil {
		s.logEnd(rc, 0, 0, apperr.HTTPStatus(apperr.KindOf(err)), classify(err, false), err)
		writeErr(w, rc, err)
		return
	}
	s.logEnd(rc, 0, 0, http.StatusOK, OutcomeOK, nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": rc.projectID, "session_id": rc.sessionID, "request_id": rc.requestID,
		"events": events,
	})
}

// --- GET /ops/log --------------------------------------------------------------

// handleOpsLog returns filtered audit version events: action, a
// natural-language "since"/"until" window (parsed the way the CLI
// mirror's `onto ops log --since "3 days ago"` does), and paging.
func (s *Server) handleOpsLog(w http.ResponseWriter, r *http.Request) {
	rc := newRequestCtx(r, "ops.log")
	s.logStart(rc)

	q := r.URL.Query()
	filter := ledger.VersionFilter{
		Action: ledger.VersionAction(q.Get("action")),
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}
	now := time.Now().UTC()
	if v := q.Get("since"); v != "" {
		t, err := parseWhen(v, now)
		if err != nil {
			e := apperr.InvalidRequest("invalid since %q: %v", v, err)
			s.logEnd(rc, 0, 0, http.StatusBadRequest, classify(e, false), e)
			writeErr(w, rc, e)
			return
		}
		filter.Since = t
	}
	if v := q.Get("until"); v != "" {
		t, err := parseWhen(v, now)
		if err != nil {
			e := apperr.InvalidRequest("invalid until %q: %v", v, err)
			s.logEnd(rc, 0, 0, http.StatusBadRequest, classify(e, false), e)
			writeErr(w, rc, e)
			return
		}
		filter.Until = t
	}

	events, err := s.store.QueryVersions(r.Context(), rc.projectID, filter)
	if err != nil {
		s.logEnd(rc, 0, 0, apperr.HTTPStatus(apperr.KindOf(err)), classify(err, false), err)
		writeErr(w, rc, err)
		return
	}
	s.logEnd(rc, 0, 0, http.StatusOK, OutcomeOK, nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"project_id": rc.projectID, "session_id": rc.sessionID, "request_id": rc.requestID,
		"events": events,
	})
}

// parseWhen resolves a natural-language time expression ("3 days ago",
// "yesterday") or a value olebedev/when doesn't recognize as a relative
// phrase but time.RFC3339 does, relative to now.
func parseWhen(expr string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, expr); err == nil {
		return t, nil
	}
	res, err := sinceParser.Parse(expr, now)
	if err != nil {
		return time.Time{}, err
	}
	if res == nil {
		return time.Time{}, apperr.InvalidRequest("could not interpret %q as a time expression", expr)
	}
	return res.Time, nil
}
