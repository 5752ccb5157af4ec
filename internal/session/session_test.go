package session

import (
	"path/filepath"
	"testing"

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

func TestSanitizeDirectoryName(t *testing.T) {
	cases := map[string]string{
		"My Project":     "my-project",
		"agentmem_v2":    "agentmem_v2",
		"weird!@#chars":  "weirdchars",
		"Dot.Separated":  "dot-separated",
	}
	for in, want := range cases {
		if got := sanitizeDirectoryName(in); got != want {
			t.Errorf("sanitizeDirectoryName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDetectorManualOverride(t *testing.T) {
	d := NewDetector(StrategyManual)
	d.ManualID = "fixed-session-id"
	if got := d.DetectID(); got != "fixed-session-id" {
		t.Errorf("DetectID() = %q, want fixed-session-id", got)
	}
}

func TestDetectorCachesByWorkingDirectory(t *testing.T) {
	d := NewDetector(StrategyGitDirectory)
	first := d.DetectID()
	second := d.DetectID()
	if first != second {
		t.Errorf("expected cached id to be stable across calls, got %q then %q", first, second)
	}
}

func TestManagerStartEnd(t *testing.T) {
	db := newTestDB(t)
	m := NewManager(db, nil)

	sess, err := m.Start("test-session", "/repo")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if sess.DisclosureLevel != store.DisclosureMinimal {
		t.Errorf("expected default disclosure level minimal, got %q", sess.DisclosureLevel)
	}

	if err := m.End(sess.ID); err != nil {
		t.Fatalf("End: %v", err)
	}
}

func TestManagerMarkInjectedDedupes(t *testing.T) {
	db := newTestDB(t)
	m := NewManager(db, nil)

	sess, err := m.Start("test-session-2", "/repo")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := m.MarkInjected(sess.ID, []string{"a", "b"}); err != nil {
		t.Fatalf("MarkInjected: %v", err)
	}
	if err := m.MarkInjected(sess.ID, []string{"b", "c"}); err != nil {
		t.Fatalf("MarkInjected: %v", err)
	}

	refetched, err := m.sessions.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(refetched.InjectedMemoryIDs) != 3 {
		t.Fatalf("expected 3 deduped injected ids, got %v", refetched.InjectedMemoryIDs)
	}
}

func TestFilterUninjected(t *testing.T) {
	sess := &store.Session{InjectedMemoryIDs: []string{"a", "b"}}
	got := FilterUninjected(sess, []string{"a", "b", "c"})
	if len(got) != 1 || got[0] != "c" {
		t.Errorf("FilterUninjected = %v, want [c]", got)
	}
}

func TestHeatmapOrdersByAccessCount(t *testing.T) {
	db := newTestDB(t)
	objects := store.NewObjects(db)

	hot, err := objects.Create(&store.MemoryObject{Content: "hot memory about deployments", ObjectType: store.ObjectFact}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	cold, err := objects.Create(&store.MemoryObject{Content: "cold memory about fonts", ObjectType: store.ObjectFact}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	for i := 0; i < 5; i++ {
		if err := objects.Reinforce(hot.ID, 1.0, nil); err != nil {
			t.Fatalf("Reinforce: %v", err)
		}
	}
	if err := objects.Reinforce(cold.ID, 1.0, nil); err != nil {
		t.Fatalf("Reinforce: %v", err)
	}

	m := NewManager(db, nil)
	top, err := m.Heatmap(1)
	if err != nil {
		t.Fatalf("Heatmap: %v", err)
	}
	if len(top) != 1 || top[0].ID != hot.ID {
		t.Fatalf("expected hot memory to rank first, got %+v", top)
	}
}
