// Package embedding is the thin client side of the embedding-generation
// external collaborator spec section 1 places out of scope for the
// identity core: it calls out to an already-running embedding service
// and returns whatever vector comes back, generating nothing itself.
// Grounded on the codenerd example's internal/embedding.OllamaEngine.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaSource calls a local or remote Ollama server's /api/embeddings
// endpoint, implementing projection.EmbeddingSource.
type OllamaSource struct {
	endpoint string
	model    string
	client   *http.Client
}

// NewOllamaSource builds an OllamaSource. An empty endpoint defaults to
// the standard local Ollama address; an empty model defaults to
// embeddinggemma, matching the codenerd example's defaults.
func NewOllamaSource(endpoint, model string) *OllamaSource {
	if endpoint == "" {
		endpoint = "http://localhost:11434"
	}
	if model == "" {
		model = "embeddinggemma"
	}
	return &OllamaSource{
		endpoint: endpoint,
		model:    model,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed requests a single embedding for text.
func (o *OllamaSource) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(ollamaEmbedRequest{Model: o.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("embedding: marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.endpoint+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("embedding: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding: ollama request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("embedding: ollama returned status %d: %s", resp.StatusCode, string(b))
	}

	var out ollamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("embedding: decode response: %w", err)
	}
	return out.Embedding, nil
}
