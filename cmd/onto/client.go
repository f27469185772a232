package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/qualcode/ontocore/internal/idgen"
)

// client is a thin wrapper around net/http talking to ontod's HTTP
// surface, mirroring how the teacher's cmd/bd daemonClient wraps its
// RPC transport behind a handful of verb methods (cmd/bd/main.go).
type client struct {
	base *url.URL
	hc   *http.Client
}

func newClient() (*client, error) {
	u, err := url.Parse(serverAddr)
	if err != nil {
		return nil, fmt.Errorf("invalid --server %q: %w", serverAddr, err)
	}
	return &client{base: u, hc: &http.Client{Timeout: 30 * time.Second}}, nil
}

// apiError mirrors the {error, message, ...} body writeErr produces.
type apiError struct {
	Kind      string         `json:"error"`
	Message   string         `json:"message"`
	ProjectID string         `json:"project_id"`
	SessionID string         `json:"session_id"`
	RequestID string         `json:"request_id"`
	Details   map[string]any `json:"details"`
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (c *client) do(ctx context.Context, method, path string, query url.Values, body any) (map[string]any, error) {
	u := *c.base
	u.Path = u.Path + path
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if projectID != "" {
		req.Header.Set("X-Project-ID", projectID)
	}
	effectiveSession := sessionID
	if effectiveSession == "" {
		effectiveSession = idgen.NewSessionID()
	}
	req.Header.Set("X-Session-ID", effectiveSession)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	dec := json.NewDecoder(resp.Body)
	if err := dec.Decode(&out); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= 400 {
		ae := &apiError{Kind: "internal", Message: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
		if k, ok := out["error"].(string); ok {
			ae.Kind = k
		}
		if m, ok := out["message"].(string); ok {
			ae.Message = m
		}
		if d, ok := out["details"].(map[string]any); ok {
			ae.Details = d
		}
		return out, ae
	}
	return out, nil
}

func (c *client) get(ctx context.Context, path string, query url.Values) (map[string]any, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

func (c *client) post(ctx context.Context, path string, body any) (map[string]any, error) {
	return c.do(ctx, http.MethodPost, path, nil, body)
}

func (c *client) put(ctx context.Context, path string, body any) (map[string]any, error) {
	return c.do(ctx, http.MethodPut, path, nil, body)
}

// projectQuery returns the url.Values every read endpoint needs to
// scope the request, since GET endpoints carry project_id as a query
// parameter rather than a JSON body.
func projectQuery(extra url.Values) url.Values {
	if extra == nil {
		extra = url.Values{}
	}
	extra.Set("project", projectID)
	return extra
}

// mutationFields are the four fields the dry-run/confirm-gated merge
// and maintenance request bodies embed, matching adminapi's
// mergeIDsRequest/mergePairsRequest/maintenanceRequest shapes.
// freezeRequest has no idempotency_key; freeze.go builds its own body.
type mutationFields struct {
	Actor          string `json:"actor"`
	DryRun         *bool  `json:"dry_run,omitempty"`
	Confirm        bool   `json:"confirm"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

func newMutationFields(confirm bool, idempotencyKey string) mutationFields {
	mf := mutationFields{Actor: actor, Confirm: confirm}
	if confirm {
		dr := false
		mf.DryRun = &dr
	}
	if idempotencyKey != "" {
		mf.IdempotencyKey = idempotencyKey
	} else if confirm {
		mf.IdempotencyKey = idgen.NewIdempotencyKey()
	}
	return mf
}

func printJSON(v any) {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
