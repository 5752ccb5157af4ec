// Package vectorindex implements the Vector Index: a dense embedding store
// keyed by memory object id, searched by cosine similarity. The default
// backend is an embedded flat scan over a SQLite BLOB column; an optional
// Qdrant-backed implementation exists for deployments that outgrow it.
package vectorindex

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/agentmem/agentmem/internal/errs"
)

// Result is one vector search hit.
type Result struct {
	ID    string
	Score float64 // cosine similarity, [-1,1] in theory, [0,1] for unit-norm embeddings in practice
}

// Index is implemented by each vector backend (sqlite flat-scan, qdrant).
type Index interface {
	// IndexObject embeds are assumed already computed; vec must be unit-norm.
	IndexObject(ctx context.Context, id string, vec []float32) error
	Search(ctx context.Context, vec []float32, k int) ([]Result, error)
	Delete(ctx context.Context, id string) error
}

// Normalize returns a unit-length copy of vec; vec itself is not modified.
// A zero vector is returned as is.
func Normalize(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return vec
	}
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func topK(results []Result, k int) []Result {
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}

func errDimMismatch(op string, want, got int) error {
	return errs.E(op, errs.InvalidInput, fmt.Errorf("vector dimension mismatch: expected %d, got %d", want, got))
}
