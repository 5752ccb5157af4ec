// Package embedder defines the Embedder and Extractor abstraction the
// vector branch and higher curation tiers depend on, plus an
// Ollama-backed Embedder implementation.
package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/agentmem/agentmem/internal/errs"
	"github.com/agentmem/agentmem/internal/vectorindex"
)

// Embedder turns text into a unit-norm vector for the vector index.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Extractor produces candidate memories from arbitrary text, independent
// of the deterministic Tier-0 curator rules; an LLM-backed higher tier
// would implement this.
type Extractor interface {
	Extract(ctx context.Context, text string) ([]string, error)
}

// OllamaConfig configures the Ollama-backed Embedder.
type OllamaConfig struct {
	BaseURL string
	Model   string
	Dim     int
}

// DefaultOllamaConfig mirrors nomic-embed-text's 768-dimensional output.
var DefaultOllamaConfig = OllamaConfig{
	BaseURL: "http://localhost:11434",
	Model:   "nomic-embed-text",
	Dim:     768,
}

// OllamaEmbedder calls a local Ollama server's /api/embeddings endpoint.
type OllamaEmbedder struct {
	cfg        OllamaConfig
	httpClient *http.Client
}

// NewOllamaEmbedder builds an OllamaEmbedder, filling unset fields from
// DefaultOllamaConfig.
func NewOllamaEmbedder(cfg OllamaConfig) *OllamaEmbedder {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultOllamaConfig.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOllamaConfig.Model
	}
	if cfg.Dim == 0 {
		cfg.Dim = DefaultOllamaConfig.Dim
	}
	return &OllamaEmbedder{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

var _ Embedder = (*OllamaEmbedder)(nil)

// Dimensions reports the configured embedding size.
func (o *OllamaEmbedder) Dimensions() int { return o.cfg.Dim }

type embeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed generates a unit-norm embedding for text, retrying transient
// failures with bounded exponential backoff before degrading to an
// errs.Dependency error.
func (o *OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var result []float32

	op := func() error {
		vec, err := o.embedOnce(ctx, text)
		if err != nil {
			return err
		}
		result = vec
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, errs.E("embedder.Embed", errs.Dependency, err)
	}
	return result, nil
}

func (o *OllamaEmbedder) embedOnce(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{Model: o.cfg.Model, Prompt: text})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.BaseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama embeddings request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}

	vec := make([]float32, len(parsed.Embedding))
	for i, f := range parsed.Embedding {
		vec[i] = float32(f)
	}
	return vectorindex.Normalize(vec), nil
}

// IsAvailable probes the Ollama server's /api/tags endpoint with a short
// timeout, without retrying.
func (o *OllamaEmbedder) IsAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := o.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
