// Package tokenindex implements the Token Index: extraction of code-like
// identifiers from memory object content, and exact/substring lookup over
// them.
package tokenindex

import (
	"regexp"
	"strings"

	"github.com/agentmem/agentmem/internal/errs"
	"github.com/agentmem/agentmem/internal/store"
)

// TokenType classifies an extracted token.
type TokenType string

const (
	TypeIdentifier TokenType = "identifier" // camelCase/PascalCase/snake_case
	TypePath       TokenType = "path"
	TypeInvocation TokenType = "invocation" // `cmd subcmd` style CLI calls
	TypeFlag       TokenType = "flag"
	TypeSemver     TokenType = "semver"
	TypeErrorCode  TokenType = "error_code"
	TypeEnvVar     TokenType = "env_var"
)

var (
	camelRe      = regexp.MustCompile(`\b[a-z]+(?:[A-Z][a-z0-9]*)+\b`)
	pascalRe     = regexp.MustCompile(`\b[A-Z][a-z0-9]*(?:[A-Z][a-z0-9]*)+\b`)
	snakeRe      = regexp.MustCompile(`\b[a-z][a-z0-9]*(?:_[a-z0-9]+)+\b`)
	pathRe       = regexp.MustCompile(`(?:^|[\s"'` + "`" + `])((?:\.{0,2}/)?[\w.-]+(?:/[\w.-]+)+)\b`)
	invocationRe = regexp.MustCompile(`\b([a-z][a-z0-9_-]*\s(?:[a-z][a-z0-9_-]*\s){0,2}--?[a-z][a-z0-9_-]*)\b`)
	flagRe       = regexp.MustCompile(`(?:^|\s)(--?[a-zA-Z][\w-]*)`)
	semverRe     = regexp.MustCompile(`\bv?\d+\.\d+\.\d+(?:-[0-9A-Za-z.-]+)?\b`)
	errorCodeRe  = regexp.MustCompile(`\bE[A-Z]{3,}\b|\b[A-Z]{2,6}-\d{2,}\b|\b[A-Z]\d{3,4}\b`)
	envVarRe     = regexp.MustCompile(`\b[A-Z][A-Z0-9]*(?:_[A-Z0-9]+)+\b`)
)

// Token is one extracted token and its type.
type Token struct {
	Value string
	Type  TokenType
}

// Extract pulls every recognized token type out of content. Overlapping
// matches across categories are kept independently; exact duplicates
// within the same category are deduplicated.
func Extract(content string) []Token {
	var out []Token
	seen := map[string]bool{}

	add := func(matches []string, t TokenType) {
		for _, m := range matches {
			key := string(t) + ":" + m
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, Token{Value: m, Type: t})
		}
	}

	add(uniqueGroups(pathRe, content, 1), TypePath)
	add(invocationRe.FindAllString(content, -1), TypeInvocation)
	add(uniqueGroups(flagRe, content, 1), TypeFlag)
	add(semverRe.FindAllString(content, -1), TypeSemver)
	add(errorCodeRe.FindAllString(content, -1), TypeErrorCode)
	add(filterEnvVars(envVarRe.FindAllString(content, -1)), TypeEnvVar)
	add(camelRe.FindAllString(content, -1), TypeIdentifier)
	add(pascalRe.FindAllString(content, -1), TypeIdentifier)
	add(snakeRe.FindAllString(content, -1), TypeIdentifier)

	return out
}

// uniqueGroups runs re against content and returns capture group n from
// every match.
func uniqueGroups(re *regexp.Regexp, content string, n int) []string {
	matches := re.FindAllStringSubmatch(content, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) > n {
			out = append(out, strings.TrimSpace(m[n]))
		}
	}
	return out
}

// filterEnvVars drops all-caps words that are really error codes or
// acronyms without underscores, which envVarRe already requires, but also
// drops very short (<2 segment) matches like "OK".
func filterEnvVars(matches []string) []string {
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if strings.Contains(m, "_") {
			out = append(out, m)
		}
	}
	return out
}

// Indexer writes extracted tokens to the object_tokens table and answers
// exact/substring lookups.
type Indexer struct {
	db *store.DB
}

// New wraps db with Token Index operations.
func New(db *store.DB) *Indexer { return &Indexer{db: db} }

// IndexObject extracts tokens from content and replaces objectID's token
// rows with the new set, in one transaction.
func (x *Indexer) IndexObject(objectID, content string) error {
	tokens := Extract(content)

	tx, err := x.db.Begin()
	if err != nil {
		return errs.E("tokenindex.IndexObject", errs.Storage, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM object_tokens WHERE object_id = ?`, objectID); err != nil {
		return errs.E("tokenindex.IndexObject", errs.Storage, err)
	}
	for _, tok := range tokens {
		if _, err := tx.Exec(`INSERT INTO object_tokens (object_id, token, type) VALUES (?, ?, ?)`, objectID, tok.Value, string(tok.Type)); err != nil {
			return errs.E("tokenindex.IndexObject", errs.Storage, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.E("tokenindex.IndexObject", errs.Storage, err)
	}
	return nil
}

// Result is one token-index search hit, scored 1.0 on exact match and 0.6
// on substring match (no frequency weighting — token hits are a precision
// signal, not a ranked one).
type Result struct {
	ID    string
	Score float64
}

// Search looks up objects whose tokens exactly or partially match query.
func (x *Indexer) Search(query string, limit int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := x.db.SQL().Query(`
		SELECT DISTINCT t.object_id, t.token
		FROM object_tokens t
		JOIN memory_objects o ON o.id = t.object_id
		WHERE o.status = 'active' AND (t.token = ? OR t.token LIKE ?)
		LIMIT ?
	`, query, "%"+query+"%", limit)
	if err != nil {
		return nil, errs.E("tokenindex.Search", errs.Storage, err)
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var id, token string
		if err := rows.Scan(&id, &token); err != nil {
			return nil, errs.E("tokenindex.Search", errs.Storage, err)
		}
		score := 0.6
		if token == query {
			score = 1.0
		}
		out = append(out, Result{ID: id, Score: score})
	}
	return out, nil
}
