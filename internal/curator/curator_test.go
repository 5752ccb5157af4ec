package curator

import (
	"path/filepath"
	"testing"
	"time"

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

func exitCode(n int) *int { return &n }

func TestBufferEventThresholdTrigger(t *testing.T) {
	buf := NewBuffer("s1", Config{MinEvents: 3, ToolBurstCount: 100, ToolBurstWindow: time.Minute, ErrorBurstThreshold: 100})
	var last Trigger
	var fired bool
	for i := 0; i < 3; i++ {
		last, fired = buf.AddEvent(&store.Event{ID: "e", EventType: store.EventTurn, Timestamp: time.Now()})
	}
	if !fired || last != TriggerEventThreshold {
		t.Fatalf("expected event_threshold trigger, got %q fired=%v", last, fired)
	}
}

func TestBufferErrorBurstTrigger(t *testing.T) {
	buf := NewBuffer("s1", Config{MinEvents: 100, ToolBurstCount: 100, ToolBurstWindow: time.Minute, ErrorBurstThreshold: 3})
	var last Trigger
	var fired bool
	for i := 0; i < 3; i++ {
		last, fired = buf.AddEvent(&store.Event{
			ID: "e", EventType: store.EventToolOutput, ExitCode: exitCode(1), Timestamp: time.Now(),
		})
	}
	if !fired || last != TriggerErrorBurst {
		t.Fatalf("expected error_burst trigger, got %q fired=%v", last, fired)
	}
}

func TestBufferTaskCompleteTrigger(t *testing.T) {
	buf := NewBuffer("s1", Config{MinEvents: 100, ToolBurstCount: 100, ToolBurstWindow: time.Minute, ErrorBurstThreshold: 100})
	buf.AddEvent(&store.Event{ID: "e1", EventType: store.EventToolOutput, ExitCode: exitCode(1), Timestamp: time.Now()})
	_, fired := buf.AddEvent(&store.Event{ID: "e2", EventType: store.EventToolOutput, ExitCode: exitCode(0), Timestamp: time.Now()})
	if !fired {
		t.Fatal("expected task_complete trigger after exit 1 followed by exit 0")
	}
}

func TestDrainResetsBuffer(t *testing.T) {
	buf := NewBuffer("s1", DefaultConfig)
	buf.AddEvent(&store.Event{ID: "e1", EventType: store.EventTurn, Timestamp: time.Now()})
	events := buf.Drain()
	if len(events) != 1 {
		t.Fatalf("expected 1 drained event, got %d", len(events))
	}
	if buf.Len() != 0 {
		t.Fatalf("expected buffer to be empty after drain, got %d", buf.Len())
	}
}

func TestExecuteExtractsCorrectionCandidate(t *testing.T) {
	db := newTestDB(t)
	c := New(db)
	buf := NewBuffer("s1", DefaultConfig)
	buf.AddEvent(&store.Event{
		ID: "e1", EventType: store.EventTurn,
		Content:   "no, that's wrong, use tabs instead of spaces",
		Timestamp: time.Now(),
	})

	res, err := c.Execute(buf, TriggerManual, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.EpisodeEventCount != 1 {
		t.Errorf("expected 1 episode event, got %d", res.EpisodeEventCount)
	}
	if res.MemoriesCreated != 1 {
		t.Errorf("expected 1 memory created, got %d", res.MemoriesCreated)
	}
}

func TestExecuteDedupsByContentHash(t *testing.T) {
	db := newTestDB(t)
	objects := store.NewObjects(db)
	_, err := objects.Create(&store.MemoryObject{
		Content:    "no, that's wrong, use tabs instead of spaces",
		ObjectType: store.ObjectConstraint,
	}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	c := New(db)
	buf := NewBuffer("s1", DefaultConfig)
	buf.AddEvent(&store.Event{
		ID: "e1", EventType: store.EventTurn,
		Content:   "no, that's wrong, use tabs instead of spaces",
		Timestamp: time.Now(),
	})

	res, err := c.Execute(buf, TriggerManual, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.MemoriesCreated != 0 {
		t.Errorf("expected duplicate candidate to be skipped, created %d", res.MemoriesCreated)
	}
}

func TestExecuteErrorFixPairProducesDecision(t *testing.T) {
	db := newTestDB(t)
	c := New(db)
	buf := NewBuffer("s1", DefaultConfig)
	now := time.Now()
	buf.AddEvent(&store.Event{
		ID: "e1", EventType: store.EventToolOutput, ExitCode: exitCode(1),
		FilePath: "main.go", Content: "compile error", Timestamp: now,
	})
	buf.AddEvent(&store.Event{
		ID: "e2", EventType: store.EventToolOutput, ExitCode: exitCode(0),
		FilePath: "main.go", Content: "build succeeded", Timestamp: now.Add(time.Minute),
	})

	res, err := c.Execute(buf, TriggerManual, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.MemoriesCreated == 0 {
		t.Fatal("expected an error-fix pair to produce a memory")
	}
}

func TestExecuteRepeatedToolProducesConvention(t *testing.T) {
	db := newTestDB(t)
	c := New(db)
	buf := NewBuffer("s1", DefaultConfig)
	now := time.Now()
	for i := 0; i < 3; i++ {
		buf.AddEvent(&store.Event{
			ID: "e", EventType: store.EventToolCall, ToolName: "go test",
			Content: "go test ./...", Timestamp: now.Add(time.Duration(i) * time.Minute),
		})
	}

	res, err := c.Execute(buf, TriggerManual, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.MemoriesCreated == 0 {
		t.Fatal("expected repeated tool calls to produce a convention candidate")
	}
}

func TestExecuteKeepGroundedFavorsExistingGroundedObject(t *testing.T) {
	db := newTestDB(t)
	objects := store.NewObjects(db)
	existing, err := objects.Create(&store.MemoryObject{
		Content:      "use tabs for indentation",
		ObjectType:   store.ObjectConstraint,
		ReviewStatus: store.ReviewApproved,
		CodeRefs:     []store.CodeRef{{Path: "main.go", Line: exitCode(1)}},
	}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if existing.ConfidenceTier != store.TierGrounded {
		t.Fatalf("expected existing object to be grounded, got %q", existing.ConfidenceTier)
	}

	c := New(db)
	buf := NewBuffer("s1", DefaultConfig)
	buf.AddEvent(&store.Event{
		ID: "e1", EventType: store.EventTurn,
		Content:   "no, that's wrong, use spaces for indentation",
		Timestamp: time.Now(),
	})

	res, err := c.Execute(buf, TriggerManual, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.MemoriesCreated != 0 {
		t.Errorf("expected grounded existing object to block the contradicting candidate, created %d", res.MemoriesCreated)
	}

	after, err := objects.Get(existing.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if after.Status != store.StatusActive {
		t.Errorf("expected grounded existing object to remain active, got %q", after.Status)
	}
}

func TestExecuteKeepGroundedRetiresWeakerExisting(t *testing.T) {
	db := newTestDB(t)
	objects := store.NewObjects(db)
	existing, err := objects.Create(&store.MemoryObject{
		Content:    "use tabs for indentation",
		ObjectType: store.ObjectConstraint,
	}, nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if existing.ConfidenceTier != store.TierHypothesis {
		t.Fatalf("expected existing object to be a hypothesis, got %q", existing.ConfidenceTier)
	}

	c := New(db)
	buf := NewBuffer("s1", DefaultConfig)
	buf.AddEvent(&store.Event{
		ID: "e1", EventType: store.EventTurn,
		Content:   "no, that's wrong, use spaces for indentation",
		Timestamp: time.Now(),
	})

	res, err := c.Execute(buf, TriggerManual, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.MemoriesCreated != 1 {
		t.Errorf("expected the observed candidate to win over a bare hypothesis, created %d", res.MemoriesCreated)
	}

	after, err := objects.Get(existing.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if after.Status != store.StatusRetired {
		t.Errorf("expected the weaker existing object to be retired, got %q", after.Status)
	}
}

func TestExecuteEmptyBufferIsNoop(t *testing.T) {
	db := newTestDB(t)
	c := New(db)
	buf := NewBuffer("s1", DefaultConfig)

	res, err := c.Execute(buf, TriggerManual, false)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.EpisodeEventCount != 0 || res.MemoriesCreated != 0 {
		t.Errorf("expected a no-op result for an empty buffer, got %+v", res)
	}
}
