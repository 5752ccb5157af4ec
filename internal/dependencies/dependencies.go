// Package dependencies centralizes availability checks and status
// messaging for the optional backends: the Embedder (Ollama) and the
// vector index's external store (Qdrant).
package dependencies

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Status is the reported health of an optional dependency.
type Status string

const (
	StatusAvailable   Status = "available"
	StatusUnavailable Status = "unavailable"
	StatusDisabled    Status = "disabled"
	StatusMissing     Status = "missing"
)

// Info describes one dependency's checked state.
type Info struct {
	Name         string
	Status       Status
	Version      string
	URL          string
	Message      string
	Models       []string // for the Embedder backend, models it reports
	MissingItems []string
}

// CheckResult bundles the two optional backends the engine can run with
// or without.
type CheckResult struct {
	Embedder    Info
	VectorStore Info
}

// EmbedderConfig is the subset of embedder config the check needs.
type EmbedderConfig struct {
	Enabled        bool
	BaseURL        string
	EmbeddingModel string
	ChatModel      string
}

// VectorStoreConfig is the subset of vector-store config the check needs.
type VectorStoreConfig struct {
	Enabled bool
	URL     string
}

// Check probes both optional backends and returns their status. Either
// config may be the zero value (Enabled: false), in which case that
// backend is reported StatusDisabled without any network call.
func Check(embedderCfg EmbedderConfig, vectorCfg VectorStoreConfig) *CheckResult {
	return &CheckResult{
		Embedder:    checkEmbedder(embedderCfg),
		VectorStore: checkVectorStore(vectorCfg),
	}
}

func checkEmbedder(cfg EmbedderConfig) Info {
	info := Info{Name: "Embedder (Ollama)", URL: cfg.BaseURL}

	if !cfg.Enabled {
		info.Status = StatusDisabled
		info.Message = "embedder is disabled; vector search is unavailable"
		return info
	}

	client := &http.Client{Timeout: 5 * time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.BaseURL+"/api/tags", nil)
	if err != nil {
		info.Status = StatusUnavailable
		info.Message = "failed to construct request"
		return info
	}

	resp, err := client.Do(req)
	if err != nil {
		info.Status = StatusMissing
		info.Message = "ollama is not running or not reachable"
		return info
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		info.Status = StatusUnavailable
		info.Message = fmt.Sprintf("ollama returned status %d", resp.StatusCode)
		return info
	}

	var modelsResp struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		info.Status = StatusAvailable
		info.Message = "ollama is running but could not list models"
		return info
	}

	modelSet := map[string]bool{}
	for _, m := range modelsResp.Models {
		info.Models = append(info.Models, m.Name)
		modelSet[m.Name] = true
		modelSet[strings.Split(m.Name, ":")[0]] = true
	}

	for _, model := range []string{cfg.EmbeddingModel, cfg.ChatModel} {
		if model == "" {
			continue
		}
		base := strings.Split(model, ":")[0]
		if !modelSet[model] && !modelSet[base] {
			info.MissingItems = append(info.MissingItems, model)
		}
	}

	info.Status = StatusAvailable
	if len(info.MissingItems) > 0 {
		info.Message = fmt.Sprintf("ollama is running but missing required models: %s", strings.Join(info.MissingItems, ", "))
	} else {
		info.Message = "ollama is running with all required models"
	}
	return info
}

func checkVectorStore(cfg VectorStoreConfig) Info {
	info := Info{Name: "Vector store (Qdrant)", URL: cfg.URL}

	if !cfg.Enabled {
		info.Status = StatusDisabled
		info.Message = "qdrant is disabled; falling back to the embedded flat-scan vector index"
		return info
	}

	client := &http.Client{Timeout: 5 * time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.URL+"/collections", nil)
	if err != nil {
		info.Status = StatusUnavailable
		info.Message = "failed to construct request"
		return info
	}

	resp, err := client.Do(req)
	if err != nil {
		info.Status = StatusMissing
		info.Message = "qdrant is not running or not reachable"
		return info
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		info.Status = StatusUnavailable
		info.Message = fmt.Sprintf("qdrant returned status %d", resp.StatusCode)
		return info
	}

	info.Status = StatusAvailable
	info.Message = "qdrant is running"
	return info
}
