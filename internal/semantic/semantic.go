// Package semantic implements the external "semantic runner"
// collaborator spec section 1 carves out of scope for the identity
// core proper: it is not part of C3, but it is the producer that feeds
// C3 candidates with source=semantic by calling the same public
// Submit() API an analyst's manual submission goes through. Grounded
// on the teacher's cmd/bd/find_duplicates.go AI path, which batches
// candidate pairs to anthropic-sdk-go and parses a constrained JSON
// array back out of the response text.
package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/qualcode/ontocore/internal/candidates"
	"github.com/qualcode/ontocore/internal/ledger"
)

// DefaultModel mirrors the teacher's --model default for the
// cheapest model capable of short-form structured extraction.
const DefaultModel = "claude-haiku-4-5-20251001"

// Fragment is the minimal verbatim-citation payload the runner reads;
// fragment text itself belongs to the external qualitative-analysis
// tool (spec section 1), not the identity core.
type Fragment struct {
	ID   string
	Text string
}

// Proposal is one LLM-suggested code label for a fragment, before it
// becomes a ledger candidate.
type Proposal struct {
	Codigo     string  `json:"codigo"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Runner proposes candidates for fragments by calling an LLM, then
// submits each proposal through the ordinary candidate lifecycle
// engine with source=semantic, exactly as spec section 1 requires: the
// runner has no write path into the ledger other than Submit().
type Runner struct {
	client  anthropic.Client
	model   anthropic.Model
	engine  *candidates.Engine
	log     *slog.Logger
	minConf float64
}

// NewRunner builds a Runner. apiKey is read by the caller (typically
// from ANTHROPIC_API_KEY, as the teacher's find-duplicates command
// does) and passed in explicitly so this package never reaches into
// the environment itself.
func NewRunner(apiKey string, engine *candidates.Engine, log *slog.Logger) *Runner {
	return &Runner{
		client:  anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   anthropic.Model(DefaultModel),
		engine:  engine,
		log:     log,
		minConf: 0.6,
	}
}

// WithModel overrides the default model.
func (r *Runner) WithModel(model string) *Runner {
	r.model = anthropic.Model(model)
	return r
}

// WithMinConfidence sets the confidence floor below which a proposal
// is discarded instead of submitted.
func (r *Runner) WithMinConfidence(c float64) *Runner {
	r.minConf = c
	return r
}

// ProposeAndSubmit asks the model for candidate code labels covering
// fragment's text, then submits every proposal at or above the
// confidence floor as a source=semantic candidate via the lifecycle
// engine's Submit, returning the candidates created.
func (r *Runner) ProposeAndSubmit(ctx context.Context, projectID string, fragment Fragment) ([]*ledger.Candidate, error) {
	proposals, err := r.propose(ctx, fragment)
	if err != nil {
		return nil, fmt.Errorf("semantic: propose: %w", err)
	}

	out := make([]*ledger.Candidate, 0, len(proposals))
	for _, p := range proposals {
		if p.Confidence < r.minConf {
			r.log.Debug("semantic.discard", "fragment_id", fragment.ID, "codigo", p.Codigo, "confidence", p.Confidence)
			continue
		}
		fragID := fragment.ID
		c, err := r.engine.Submit(ctx, projectID, p.Codigo, &fragID, ledger.SourceSemantic, p.Confidence, p.Reason)
		if err != nil {
			r.log.Warn("semantic.submit_failed", "fragment_id", fragment.ID, "codigo", p.Codigo, "error", err)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (r *Runner) propose(ctx context.Context, fragment Fragment) ([]Proposal, error) {
	var sb strings.Builder
	sb.WriteString("You are assisting open qualitative coding of an interview fragment.\n")
	sb.WriteString("Propose short, lowercase, underscore-separated code labels (in Spanish, matching the fragment's language) that name concepts present in the fragment.\n")
	sb.WriteString("Respond ONLY with a JSON array of objects with fields: codigo (string), confidence (0.0-1.0), reason (short string).\n")
	sb.WriteString("Propose at most 5 labels. If nothing is codeable, respond with an empty array.\n\n")
	fmt.Fprintf(&sb, "Fragment:\n%s\n", fragment.Text)

	message, err := r.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     r.model,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(sb.String())),
		},
	})
	if err != nil {
		return nil, err
	}
	if len(message.Content) == 0 || message.Content[0].Type != "text" {
		return nil, fmt.Errorf("unexpected response format")
	}

	text := message.Content[0].Text
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("no JSON array found in response")
	}
	var proposals []Proposal
	if err := json.Unmarshal([]byte(text[start:end+1]), &proposals); err != nil {
		return nil, fmt.Errorf("parse proposals: %w", err)
	}
	return proposals, nil
}
