package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agentmem/agentmem/internal/errs"
)

// QdrantIndex is the optional external Vector Index backend, selected via
// pkg/config's VectorIdx.Backend="qdrant" for deployments that outgrow the
// embedded flat scan.
type QdrantIndex struct {
	baseURL    string
	collection string
	dim        int
	httpClient *http.Client
}

var _ Index = (*QdrantIndex)(nil)

// NewQdrantIndex builds a client against a running Qdrant instance at
// baseURL. The collection is created lazily on first IndexObject.
func NewQdrantIndex(baseURL string, dim int) *QdrantIndex {
	if baseURL == "" {
		baseURL = "http://localhost:6333"
	}
	return &QdrantIndex{
		baseURL:    baseURL,
		collection: "agentmem-objects",
		dim:        dim,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// IsAvailable reports whether the Qdrant instance is reachable.
func (q *QdrantIndex) IsAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.baseURL+"/collections", nil)
	if err != nil {
		return false
	}
	resp, err := q.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (q *QdrantIndex) ensureCollection(ctx context.Context) error {
	exists, err := q.collectionExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	body, _ := json.Marshal(map[string]interface{}{
		"vectors": map[string]interface{}{
			"size":     q.dim,
			"distance": "Cosine",
		},
		"hnsw_config": map[string]interface{}{
			"m":            16,
			"ef_construct": 100,
		},
	})

	url := fmt.Sprintf("%s/collections/%s", q.baseURL, q.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("create collection failed with status %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

func (q *QdrantIndex) collectionExists(ctx context.Context) (bool, error) {
	url := fmt.Sprintf("%s/collections/%s", q.baseURL, q.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := q.httpClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK, nil
}

// IndexObject upserts a point.
func (q *QdrantIndex) IndexObject(ctx context.Context, id string, vec []float32) error {
	if q.dim > 0 && len(vec) != q.dim {
		return errDimMismatch("vectorindex.IndexObject", q.dim, len(vec))
	}
	if err := q.ensureCollection(ctx); err != nil {
		return errs.E("vectorindex.IndexObject", errs.Dependency, fmt.Errorf("ensure collection: %w", err))
	}

	body, _ := json.Marshal(map[string]interface{}{
		"points": []map[string]interface{}{
			{"id": id, "vector": toFloat64(vec)},
		},
	})

	url := fmt.Sprintf("%s/collections/%s/points", q.baseURL, q.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return errs.E("vectorindex.IndexObject", errs.Dependency, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return errs.E("vectorindex.IndexObject", errs.Dependency, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return errs.E("vectorindex.IndexObject", errs.Dependency, fmt.Errorf("upsert failed with status %d: %s", resp.StatusCode, string(b)))
	}
	return nil
}

// Search performs a cosine similarity search against Qdrant.
func (q *QdrantIndex) Search(ctx context.Context, vec []float32, k int) ([]Result, error) {
	if k <= 0 {
		k = 10
	}
	body, _ := json.Marshal(map[string]interface{}{
		"vector":       toFloat64(vec),
		"limit":        k,
		"with_payload": false,
	})

	url := fmt.Sprintf("%s/collections/%s/points/search", q.baseURL, q.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, errs.E("vectorindex.Search", errs.Dependency, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return nil, errs.E("vectorindex.Search", errs.Dependency, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, errs.E("vectorindex.Search", errs.Dependency, fmt.Errorf("search failed with status %d: %s", resp.StatusCode, string(b)))
	}

	var decoded struct {
		Result []struct {
			ID    interface{} `json:"id"`
			Score float64     `json:"score"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errs.E("vectorindex.Search", errs.Dependency, err)
	}

	out := make([]Result, len(decoded.Result))
	for i, r := range decoded.Result {
		var id string
		switch v := r.ID.(type) {
		case string:
			id = v
		case float64:
			id = fmt.Sprintf("%.0f", v)
		default:
			id = fmt.Sprintf("%v", v)
		}
		out[i] = Result{ID: id, Score: r.Score}
	}
	return out, nil
}

// Delete removes a point by id.
func (q *QdrantIndex) Delete(ctx context.Context, id string) error {
	body, _ := json.Marshal(map[string]interface{}{"points": []string{id}})
	url := fmt.Sprintf("%s/collections/%s/points/delete", q.baseURL, q.collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errs.E("vectorindex.Delete", errs.Dependency, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return errs.E("vectorindex.Delete", errs.Dependency, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return errs.E("vectorindex.Delete", errs.Dependency, fmt.Errorf("delete failed with status %d: %s", resp.StatusCode, string(b)))
	}
	return nil
}

func toFloat64(vec []float32) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}
