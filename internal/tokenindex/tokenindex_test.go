package tokenindex

import (
	"path/filepath"
	"testing"

	"github.com/agentmem/agentmem/internal/store"
)

func hasToken(tokens []Token, value string, typ TokenType) bool {
	for _, tok := range tokens {
		if tok.Value == value && tok.Type == typ {
			return true
		}
	}
	return false
}

func TestExtractIdentifiers(t *testing.T) {
	content := "renamed getUserName to GetUserName and use snake_case_helper in db_config.go"
	tokens := Extract(content)

	if !hasToken(tokens, "getUserName", TypeIdentifier) {
		t.Error("expected camelCase identifier getUserName")
	}
	if !hasToken(tokens, "GetUserName", TypeIdentifier) {
		t.Error("expected PascalCase identifier GetUserName")
	}
	if !hasToken(tokens, "snake_case_helper", TypeIdentifier) {
		t.Error("expected snake_case identifier snake_case_helper")
	}
}

func TestExtractPathsAndFlags(t *testing.T) {
	content := "run go test ./internal/store/... with --verbose and see internal/store/events.go"
	tokens := Extract(content)

	if !hasToken(tokens, "--verbose", TypeFlag) {
		t.Errorf("expected flag --verbose, got %+v", tokens)
	}

	foundPath := false
	for _, tok := range tokens {
		if tok.Type == TypePath && tok.Value == "internal/store/events.go" {
			foundPath = true
		}
	}
	if !foundPath {
		t.Errorf("expected path internal/store/events.go, got %+v", tokens)
	}
}

func TestExtractSemverAndEnvVar(t *testing.T) {
	content := "upgraded to v1.14.19 after DATABASE_URL was misconfigured"
	tokens := Extract(content)

	if !hasToken(tokens, "v1.14.19", TypeSemver) {
		t.Errorf("expected semver v1.14.19, got %+v", tokens)
	}
	if !hasToken(tokens, "DATABASE_URL", TypeEnvVar) {
		t.Errorf("expected env var DATABASE_URL, got %+v", tokens)
	}
}

func TestIndexerIndexAndSearch(t *testing.T) {
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "memory.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	objects := store.NewObjects(db)
	obj, err := objects.Create(&store.MemoryObject{
		ID:         "obj-1",
		Content:    "fixed parseConfigFile to handle missing DATABASE_URL",
		ObjectType: store.ObjectFact,
		Scope:      store.Scope{Type: store.ScopeProject},
	}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	indexer := New(db)
	if err := indexer.IndexObject(obj.ID, obj.Content); err != nil {
		t.Fatalf("IndexObject: %v", err)
	}

	results, err := indexer.Search("parseConfigFile", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != obj.ID || results[0].Score != 1.0 {
		t.Errorf("expected exact match on parseConfigFile, got %+v", results)
	}

	substr, err := indexer.Search("parseConfig", 10)
	if err != nil {
		t.Fatalf("Search substring: %v", err)
	}
	if len(substr) != 1 || substr[0].Score != 0.6 {
		t.Errorf("expected substring match scored 0.6, got %+v", substr)
	}
}

func TestIndexerSearchEmptyQuery(t *testing.T) {
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "memory.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	indexer := New(db)
	results, err := indexer.Search("  ", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if results != nil {
		t.Errorf("expected nil results for empty query, got %+v", results)
	}
}
