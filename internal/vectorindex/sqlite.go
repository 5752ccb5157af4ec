package vectorindex

import (
	"context"
	"database/sql"
	"encoding/binary"
	"math"

	"github.com/agentmem/agentmem/internal/errs"
	"github.com/agentmem/agentmem/internal/store"
)

// SQLiteIndex is the default Vector Index backend: a flat cosine scan over
// the vectors table. Adequate up to roughly 10^5 objects; beyond that an
// approximate index is a drop-in replacement behind the same interface.
type SQLiteIndex struct {
	db  *store.DB
	dim int
}

// NewSQLiteIndex wraps db with a flat-scan vector index. dim is the
// expected embedding dimension (0 accepts any dimension on every write).
func NewSQLiteIndex(db *store.DB, dim int) *SQLiteIndex {
	return &SQLiteIndex{db: db, dim: dim}
}

var _ Index = (*SQLiteIndex)(nil)

// IndexObject upserts vec for id.
func (s *SQLiteIndex) IndexObject(ctx context.Context, id string, vec []float32) error {
	if s.dim > 0 && len(vec) != s.dim {
		return errDimMismatch("vectorindex.IndexObject", s.dim, len(vec))
	}
	_, err := s.db.SQL().ExecContext(ctx, `
		INSERT INTO vectors (object_id, embedding, dim) VALUES (?, ?, ?)
		ON CONFLICT(object_id) DO UPDATE SET embedding = excluded.embedding, dim = excluded.dim
	`, id, encodeVector(vec), len(vec))
	if err != nil {
		return errs.E("vectorindex.IndexObject", errs.Storage, err)
	}
	return nil
}

// Search returns the k nearest objects to vec by cosine similarity.
func (s *SQLiteIndex) Search(ctx context.Context, vec []float32, k int) ([]Result, error) {
	rows, err := s.db.SQL().QueryContext(ctx, `SELECT object_id, embedding FROM vectors`)
	if err != nil {
		return nil, errs.E("vectorindex.Search", errs.Storage, err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, errs.E("vectorindex.Search", errs.Storage, err)
		}
		candidate := decodeVector(blob)
		if len(candidate) != len(vec) {
			continue
		}
		results = append(results, Result{ID: id, Score: cosineSimilarity(vec, candidate)})
	}

	return topK(results, k), nil
}

// Delete removes id's vector, if any.
func (s *SQLiteIndex) Delete(ctx context.Context, id string) error {
	_, err := s.db.SQL().ExecContext(ctx, `DELETE FROM vectors WHERE object_id = ?`, id)
	if err != nil {
		return errs.E("vectorindex.Delete", errs.Storage, err)
	}
	return nil
}

// Count returns how many objects currently have an indexed vector, used by
// callers deciding whether to switch backends at the ~10^5 scale boundary.
func (s *SQLiteIndex) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.SQL().QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&n)
	if err != nil && err != sql.ErrNoRows {
		return 0, errs.E("vectorindex.Count", errs.Storage, err)
	}
	return n, nil
}

// encodeVector packs a float32 slice into a compact little-endian BLOB.
func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// decodeVector is the inverse of encodeVector.
func decodeVector(buf []byte) []float32 {
	n := len(buf) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out
}
