package store

import (
	"path/filepath"
	"testing"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "memory.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesSchemaAndLock(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memory.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer db.Close()

	version, err := db.GetSchemaVersion()
	if err != nil {
		t.Fatalf("GetSchemaVersion: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("expected schema version %d, got %d", SchemaVersion, version)
	}

	if _, err := Open(path); err == nil {
		t.Fatal("expected second Open on the same root to fail due to the writer lock")
	}
}

func TestEventsAppendAndDedup(t *testing.T) {
	db := newTestDB(t)
	sessions := NewSessions(db)
	events := NewEvents(db)

	sess, err := sessions.Start(&Session{ID: "sess-1", WorkingDirectory: "/tmp/proj"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	first, err := events.Append(&Event{SessionID: sess.ID, EventType: EventTurn, Content: "hello world"})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if first.ID == "" || first.ContentHash == "" {
		t.Fatalf("expected id and content_hash to be assigned, got %+v", first)
	}

	dup, err := events.Append(&Event{SessionID: sess.ID, EventType: EventTurn, Content: "Hello   World"})
	if err != nil {
		t.Fatalf("Append (dup): %v", err)
	}
	if dup.ID != first.ID {
		t.Errorf("expected duplicate content_hash within session to return the prior id %s, got %s", first.ID, dup.ID)
	}

	list, err := events.List(sess.ID, nil, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("expected exactly 1 event after dedup, got %d", len(list))
	}
}

func TestEventsAppendRejectsUnknownType(t *testing.T) {
	db := newTestDB(t)
	events := NewEvents(db)
	NewSessions(db).Start(&Session{ID: "sess-1"})

	_, err := events.Append(&Event{SessionID: "sess-1", EventType: "bogus", Content: "x"})
	if err == nil {
		t.Fatal("expected an error for an unrecognized event_type")
	}
}

func TestEventsSinceCheckpoint(t *testing.T) {
	db := newTestDB(t)
	sessions := NewSessions(db)
	events := NewEvents(db)
	sess, _ := sessions.Start(&Session{ID: "sess-1"})

	for i := 0; i < 5; i++ {
		if _, err := events.Append(&Event{SessionID: sess.ID, EventType: EventTurn, Content: "line " + string(rune('a'+i))}); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	since, err := events.SinceCheckpoint(sess.ID)
	if err != nil {
		t.Fatalf("SinceCheckpoint: %v", err)
	}
	if len(since) != 5 {
		t.Fatalf("expected all 5 events before any checkpoint reset, got %d", len(since))
	}

	if err := events.ResetCheckpointCounter(sess.ID); err != nil {
		t.Fatalf("ResetCheckpointCounter: %v", err)
	}

	if _, err := events.Append(&Event{SessionID: sess.ID, EventType: EventTurn, Content: "after checkpoint"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	since, err = events.SinceCheckpoint(sess.ID)
	if err != nil {
		t.Fatalf("SinceCheckpoint: %v", err)
	}
	if len(since) != 1 || since[0].Content != "after checkpoint" {
		t.Fatalf("expected only the post-reset event, got %+v", since)
	}
}

func TestObjectsCreateGetUpdate(t *testing.T) {
	db := newTestDB(t)
	objects := NewObjects(db)

	obj, err := objects.Create(&MemoryObject{
		Content:          "tests must run against a real database, never a mock",
		ObjectType:       ObjectConstraint,
		Scope:            Scope{Type: ScopeProject},
		Confidence:       ConfidenceHigh,
		EvidenceEventIDs: []string{"evt-1", "evt-2"},
	}, []string{"database", "mock"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if obj.ReviewStatus != ReviewPending {
		t.Errorf("expected default review_status pending, got %q", obj.ReviewStatus)
	}
	if obj.ConfidenceTier != TierObserved {
		t.Errorf("expected tier %q for a pending object with evidence events, got %q", TierObserved, obj.ConfidenceTier)
	}
	if obj.Strength != 1.0 {
		t.Errorf("expected default strength 1.0, got %v", obj.Strength)
	}

	noEvidence, err := objects.Create(&MemoryObject{
		Content:    "hunch with no backing evidence",
		ObjectType: ObjectFact,
		Scope:      Scope{Type: ScopeProject},
	}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if noEvidence.ConfidenceTier != TierHypothesis {
		t.Errorf("expected tier %q for a pending object with no evidence, got %q", TierHypothesis, noEvidence.ConfidenceTier)
	}

	fetched, err := objects.Get(obj.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if fetched.Content != obj.Content {
		t.Errorf("content mismatch: %q vs %q", fetched.Content, obj.Content)
	}

	newContent := "tests must run against a real postgres database, never a mock"
	updated, err := objects.Update(obj.ID, ObjectPatch{Content: &newContent})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.Content != newContent {
		t.Errorf("expected updated content, got %q", updated.Content)
	}
}

func TestObjectsSupersedeLinksBothDirections(t *testing.T) {
	db := newTestDB(t)
	objects := NewObjects(db)

	old, err := objects.Create(&MemoryObject{
		Content:    "uses sqlite for storage",
		ObjectType: ObjectDecision,
		Scope:      Scope{Type: ScopeProject},
	}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	next, err := objects.Supersede(old.ID, &MemoryObject{
		Content:    "uses postgres for storage",
		ObjectType: ObjectDecision,
		Scope:      Scope{Type: ScopeProject},
	}, nil)
	if err != nil {
		t.Fatalf("Supersede: %v", err)
	}

	if len(next.Supersedes) != 1 || next.Supersedes[0] != old.ID {
		t.Errorf("expected new object to list %s in supersedes, got %v", old.ID, next.Supersedes)
	}

	oldAfter, err := objects.Get(old.ID)
	if err != nil {
		t.Fatalf("Get old: %v", err)
	}
	if oldAfter.Status != StatusSuperseded || oldAfter.SupersededBy != next.ID {
		t.Errorf("expected old object superseded by %s, got status=%s superseded_by=%s", next.ID, oldAfter.Status, oldAfter.SupersededBy)
	}
}

func TestObjectsSupersedeRejectsRetired(t *testing.T) {
	db := newTestDB(t)
	objects := NewObjects(db)

	obj, _ := objects.Create(&MemoryObject{Content: "stale fact", ObjectType: ObjectFact, Scope: Scope{Type: ScopeProject}}, nil)
	if err := objects.Retire(obj.ID); err != nil {
		t.Fatalf("Retire: %v", err)
	}

	_, err := objects.Supersede(obj.ID, &MemoryObject{Content: "replacement", ObjectType: ObjectFact, Scope: Scope{Type: ScopeProject}}, nil)
	if err == nil {
		t.Fatal("expected superseding a retired object to fail")
	}
}

func TestObjectsReinforceAndVerify(t *testing.T) {
	db := newTestDB(t)
	objects := NewObjects(db)

	obj, _ := objects.Create(&MemoryObject{Content: "prefers tabs", ObjectType: ObjectPreference, Scope: Scope{Type: ScopeGlobal}}, nil)

	outcome := 0.9
	if err := objects.Reinforce(obj.ID, 1.0, &outcome); err != nil {
		t.Fatalf("Reinforce: %v", err)
	}

	reinforced, err := objects.Get(obj.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if reinforced.AccessCount != 1 {
		t.Errorf("expected access_count 1, got %d", reinforced.AccessCount)
	}
	if reinforced.LastReinforcedAt == nil {
		t.Error("expected last_reinforced_at to be set")
	}

	verified, err := objects.Verify(obj.ID)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if verified.LastVerifiedAt == nil {
		t.Error("expected last_verified_at to be set after Verify")
	}
	if verified.ReviewStatus != ReviewApproved {
		t.Errorf("expected Verify to approve a pending review, got %q", verified.ReviewStatus)
	}
	if verified.ConfidenceTier != TierGrounded {
		t.Errorf("expected Verify to ground a freshly-verified approved object, got %q", verified.ConfidenceTier)
	}
}

func TestSessionsStartEndAndActive(t *testing.T) {
	db := newTestDB(t)
	sessions := NewSessions(db)

	sess, err := sessions.Start(&Session{ID: "sess-x", WorkingDirectory: "/tmp/proj"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.DisclosureLevel != DisclosureMinimal {
		t.Errorf("expected default disclosure level minimal, got %q", sess.DisclosureLevel)
	}

	active, err := sessions.ListActive()
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("expected 1 active session, got %d", len(active))
	}

	if err := sessions.End(sess.ID); err != nil {
		t.Fatalf("End: %v", err)
	}

	active, err = sessions.ListActive()
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected 0 active sessions after End, got %d", len(active))
	}
}

func TestGetStats(t *testing.T) {
	db := newTestDB(t)
	NewSessions(db).Start(&Session{ID: "sess-1"})
	NewEvents(db).Append(&Event{SessionID: "sess-1", EventType: EventTurn, Content: "hi"})
	NewObjects(db).Create(&MemoryObject{Content: "fact one", ObjectType: ObjectFact, Scope: Scope{Type: ScopeProject}}, nil)

	stats, err := db.GetStats()
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.EventCount != 1 || stats.ObjectCount != 1 || stats.ActiveCount != 1 || stats.SessionCount != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
