// Package lexical implements the Lexical Index: BM25 full-text search over
// events and memory objects, with a mandatory query sanitizer and score
// normalization to [0,1].
package lexical

import (
	"strings"

	"github.com/agentmem/agentmem/internal/errs"
	"github.com/agentmem/agentmem/internal/store"
)

// Result is one lexical search hit.
type Result struct {
	ID    string
	Score float64 // normalized to [0,1], higher is better
}

// Index searches events_fts and memory_objects_fts.
type Index struct {
	db *store.DB
}

// New wraps db with Lexical Index operations.
func New(db *store.DB) *Index { return &Index{db: db} }

var operatorKeywords = map[string]bool{
	"and": true, "or": true, "not": true, "near": true,
}

// stopwords is a short, English general-purpose list; it is not meant to be
// exhaustive, only to keep common filler out of an OR query.
var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "to": true, "in": true,
	"is": true, "it": true, "on": true, "for": true, "with": true, "as": true,
	"at": true, "by": true, "this": true, "that": true, "be": true, "are": true,
	"was": true, "were": true, "from": true, "or": true,
}

var ftsSpecial = strings.NewReplacer(
	"\"", " ", "*", " ", "(", " ", ")", " ", ":", " ", "^", " ",
	"-", " ", "+", " ", ".", " ", ",", " ", "'", " ",
)

// Sanitize turns a free-form query into an FTS5 MATCH expression: strip
// operators and special characters, lowercase, drop stopwords and operator
// keywords, drop tokens shorter than 2 characters, OR-join what remains. An
// empty result means the caller should skip the lexical branch entirely.
func Sanitize(query string) string {
	cleaned := ftsSpecial.Replace(strings.ToLower(query))
	fields := strings.Fields(cleaned)

	var kept []string
	for _, f := range fields {
		if len(f) < 2 {
			continue
		}
		if operatorKeywords[f] || stopwords[f] {
			continue
		}
		kept = append(kept, f)
	}

	if len(kept) == 0 {
		return ""
	}
	return strings.Join(kept, " OR ")
}

// SearchEvents runs a BM25 search over events_fts, scoped to sessionID if
// non-empty.
func (x *Index) SearchEvents(query, sessionID string, limit int) ([]Result, error) {
	ftsQuery := Sanitize(query)
	if ftsQuery == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	sqlQuery := `
		SELECT e.id, bm25(events_fts) AS relevance
		FROM events_fts fts
		JOIN events e ON e.id = fts.id
		WHERE events_fts MATCH ?`
	args := []interface{}{ftsQuery}
	if sessionID != "" {
		sqlQuery += " AND e.session_id = ?"
		args = append(args, sessionID)
	}
	sqlQuery += " ORDER BY relevance LIMIT ?"
	args = append(args, limit)

	return x.run(sqlQuery, args)
}

// SearchObjects runs a BM25 search over memory_objects_fts, restricted to
// active objects.
func (x *Index) SearchObjects(query string, limit int) ([]Result, error) {
	ftsQuery := Sanitize(query)
	if ftsQuery == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	sqlQuery := `
		SELECT o.id, bm25(memory_objects_fts) AS relevance
		FROM memory_objects_fts fts
		JOIN memory_objects o ON o.id = fts.id
		WHERE memory_objects_fts MATCH ? AND o.status = 'active'
		ORDER BY relevance LIMIT ?`

	return x.run(sqlQuery, []interface{}{ftsQuery, limit})
}

func (x *Index) run(query string, args []interface{}) ([]Result, error) {
	rows, err := x.db.SQL().Query(query, args...)
	if err != nil {
		return nil, errs.E("lexical.search", errs.Storage, err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var id string
		var relevance float64
		if err := rows.Scan(&id, &relevance); err != nil {
			return nil, errs.E("lexical.search", errs.Storage, err)
		}
		out = append(out, Result{ID: id, Score: Normalize(relevance)})
	}
	return out, nil
}

// Normalize converts a raw BM25 score (negative, lower/more-negative is
// better) to [0,1] via |bm25|-style scaling: -10 (best) to 0 (worst) maps to
// 1.0 down to 0.0, clamped.
func Normalize(bm25 float64) float64 {
	n := -bm25 / 10.0
	if n > 1.0 {
		n = 1.0
	}
	if n < 0.0 {
		n = 0.0
	}
	return n
}
