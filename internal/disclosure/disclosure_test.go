package disclosure

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentmem/agentmem/internal/retriever"
	"github.com/agentmem/agentmem/internal/store"
)

func newTestDB(t *testing.T) *store.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "memory.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestGetContextMinimalOnlyIncludesConstraints(t *testing.T) {
	db := newTestDB(t)
	objects := store.NewObjects(db)

	if _, err := objects.Create(&store.MemoryObject{
		Content: "never commit directly to main", ObjectType: store.ObjectConstraint,
	}, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := objects.Create(&store.MemoryObject{
		Content: "the team prefers tabs over spaces", ObjectType: store.ObjectPreference,
	}, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	d := New(db, retriever.New(db, nil, nil))
	pack, err := d.GetContext(context.Background(), Request{Level: store.DisclosureMinimal})
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if len(pack.Objects) != 1 {
		t.Fatalf("expected only the constraint object at minimal level, got %d", len(pack.Objects))
	}
	if pack.Objects[0].ObjectType != store.ObjectConstraint {
		t.Errorf("expected constraint object, got %q", pack.Objects[0].ObjectType)
	}
}

func TestGetContextTaskAddsQueryRelevant(t *testing.T) {
	db := newTestDB(t)
	objects := store.NewObjects(db)
	if _, err := objects.Create(&store.MemoryObject{
		Content: "the deploy pipeline runs on github actions with postgres", ObjectType: store.ObjectFact,
	}, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	d := New(db, retriever.New(db, nil, nil))
	pack, err := d.GetContext(context.Background(), Request{Level: store.DisclosureTask, Query: "deploy pipeline postgres"})
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	if len(pack.Objects) == 0 {
		t.Fatal("expected task-level pack to include query-relevant memories")
	}
}

func TestGetContextDeepAddsDecisions(t *testing.T) {
	db := newTestDB(t)
	objects := store.NewObjects(db)
	if _, err := objects.Create(&store.MemoryObject{
		Content: "the team decided to use postgres for the primary store", ObjectType: store.ObjectDecision,
	}, nil); err != nil {
		t.Fatalf("Create: %v", err)
	}

	d := New(db, retriever.New(db, nil, nil))
	pack, err := d.GetContext(context.Background(), Request{Level: store.DisclosureDeep})
	if err != nil {
		t.Fatalf("GetContext: %v", err)
	}
	found := false
	for _, o := range pack.Objects {
		if o.ObjectType == store.ObjectDecision {
			found = true
		}
	}
	if !found {
		t.Error("expected deep-level pack to include decision objects")
	}
}

func TestGetContextDoesNotReinforce(t *testing.T) {
	db := newTestDB(t)
	objects := store.NewObjects(db)
	created, err := objects.Create(&store.MemoryObject{
		Content: "always use feature branches for changes", ObjectType: store.ObjectConstraint,
	}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	d := New(db, retriever.New(db, nil, nil))
	if _, err := d.GetContext(context.Background(), Request{Level: store.DisclosureTask, Query: "feature branches"}); err != nil {
		t.Fatalf("GetContext: %v", err)
	}

	refetched, err := objects.Get(created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if refetched.AccessCount != 0 {
		t.Errorf("expected disclosure to never reinforce, got access_count=%d", refetched.AccessCount)
	}
}

func TestEvaluateEscalationExplicitQuery(t *testing.T) {
	sig, level, ok := EvaluateEscalation("what did we decide about the database?", &store.Session{}, "")
	if !ok || sig != SignalExplicitQuery || level != store.DisclosureDeep {
		t.Fatalf("expected explicit_query -> deep, got %q %q ok=%v", sig, level, ok)
	}
}

func TestEvaluateEscalationErrorBurst(t *testing.T) {
	sess := &store.Session{ErrorCount: 3, DisclosureLevel: store.DisclosureMinimal}
	sig, level, ok := EvaluateEscalation("looking at this again", sess, "")
	if !ok || sig != SignalErrorBurst || level != store.DisclosureTask {
		t.Fatalf("expected error_burst -> task, got %q %q ok=%v", sig, level, ok)
	}
}

func TestEvaluateEscalationNoSignal(t *testing.T) {
	sess := &store.Session{DisclosureLevel: store.DisclosureMinimal}
	_, _, ok := EvaluateEscalation("just continuing normal work", sess, "")
	if ok {
		t.Error("expected no escalation signal for an ordinary turn")
	}
}

func TestEvaluateEscalationCadence(t *testing.T) {
	sess := &store.Session{
		EventsCount:           20,
		EventsSinceCheckpoint: 20,
		LastDisclosureAt:      timePtr(time.Now().Add(-time.Hour)),
		DisclosureLevel:       store.DisclosureMinimal,
	}
	sig, _, ok := EvaluateEscalation("ordinary turn", sess, "")
	if !ok || sig != SignalCadence {
		t.Fatalf("expected cadence signal once events since disclosure exceed threshold, got %q ok=%v", sig, ok)
	}
}

func timePtr(t time.Time) *time.Time { return &t }
