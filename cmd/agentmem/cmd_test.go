package main

import (
	"path/filepath"
	"testing"

	"github.com/agentmem/agentmem/internal/engine"
	"github.com/agentmem/agentmem/internal/store"
)

// setupCLIEnv points config.Load (via openEngine) at a throwaway database
// in a temp directory and disables the embedder, the same way
// internal/engine/engine_test.go's newTestEngine avoids network access.
func setupCLIEnv(t *testing.T) {
	t.Helper()
	t.Setenv("AGENTMEM_DB_PATH", filepath.Join(t.TempDir(), "memory.db"))
	t.Setenv("AGENTMEM_EMBEDDER_DISABLED", "1")
	quiet = false
}

func seedObject(t *testing.T, eng *engine.Engine, content string) *store.MemoryObject {
	t.Helper()
	obj, err := eng.Add(&store.MemoryObject{
		Content:    content,
		ObjectType: store.ObjectFact,
		Scope:      store.Scope{Type: store.ScopeGlobal},
		Confidence: store.ConfidenceHigh,
	})
	if err != nil {
		t.Fatalf("seedObject: %v", err)
	}
	return obj
}

func TestRunSessionStartEnd(t *testing.T) {
	setupCLIEnv(t)

	if err := runSessionStart("cli-sess-1", "/tmp/repo"); err != nil {
		t.Fatalf("runSessionStart: %v", err)
	}
	if err := runSessionEnd("cli-sess-1"); err != nil {
		t.Fatalf("runSessionEnd: %v", err)
	}
}

func TestRunIngestRequiresSession(t *testing.T) {
	setupCLIEnv(t)
	ingestSessionID = ""
	if err := runIngest("hello"); err == nil {
		t.Fatal("expected error for missing --session")
	}
}

func TestRunIngestRejectsUnknownType(t *testing.T) {
	setupCLIEnv(t)
	ingestSessionID = "cli-sess-2"
	ingestType = "not-a-real-type"
	ingestHasExitCode = false
	defer func() { ingestType = string(store.EventTurn) }()

	if err := runSessionStart(ingestSessionID, ""); err != nil {
		t.Fatalf("runSessionStart: %v", err)
	}
	if err := runIngest("some content"); err == nil {
		t.Fatal("expected error for unrecognized event type")
	}
}

func TestRunIngestAndCheckpoint(t *testing.T) {
	setupCLIEnv(t)
	ingestSessionID = "cli-sess-3"
	ingestType = string(store.EventTurn)
	ingestTool = ""
	ingestFilePath = ""
	ingestHasExitCode = false
	ingestSkipEmbedding = true

	if err := runSessionStart(ingestSessionID, ""); err != nil {
		t.Fatalf("runSessionStart: %v", err)
	}
	if err := runIngest("did some work"); err != nil {
		t.Fatalf("runIngest: %v", err)
	}

	checkpointSessionID = ingestSessionID
	checkpointSkipEmbedding = true
	if err := runCheckpoint(); err != nil {
		t.Fatalf("runCheckpoint: %v", err)
	}
}

func TestRunCheckpointRequiresSession(t *testing.T) {
	setupCLIEnv(t)
	checkpointSessionID = ""
	if err := runCheckpoint(); err == nil {
		t.Fatal("expected error for missing --session")
	}
}

func TestRunSearch(t *testing.T) {
	setupCLIEnv(t)

	eng, _, err := openEngine()
	if err != nil {
		t.Fatalf("openEngine: %v", err)
	}
	seedObject(t, eng, "we use sqlite for storage")
	eng.Close()

	searchSessionID = ""
	searchStatus = ""
	searchType = ""
	searchLimit = 10
	searchSkipReinf = true

	if err := runSearch("sqlite"); err != nil {
		t.Fatalf("runSearch: %v", err)
	}
}

func TestRunPackTextAndJSON(t *testing.T) {
	setupCLIEnv(t)

	eng, _, err := openEngine()
	if err != nil {
		t.Fatalf("openEngine: %v", err)
	}
	seedObject(t, eng, "the api key lives in .env")
	eng.Close()

	packSessionID = "cli-sess-pack"
	packLevel = "minimal"
	packQuery = ""
	packFile = ""

	packFormat = "text"
	if err := runPack(); err != nil {
		t.Fatalf("runPack text: %v", err)
	}

	packFormat = "json"
	if err := runPack(); err != nil {
		t.Fatalf("runPack json: %v", err)
	}
}

func TestRunPackRequiresSession(t *testing.T) {
	setupCLIEnv(t)
	packSessionID = ""
	if err := runPack(); err == nil {
		t.Fatal("expected error for missing --session")
	}
}

func TestRunDisclose(t *testing.T) {
	setupCLIEnv(t)
	discloseSessionID = "cli-sess-disclose"
	discloseQuery = "why did the build fail"

	if err := runSessionStart(discloseSessionID, ""); err != nil {
		t.Fatalf("runSessionStart: %v", err)
	}
	if err := runDisclose(); err != nil {
		t.Fatalf("runDisclose: %v", err)
	}
}

func TestRunVerifyAndRetire(t *testing.T) {
	setupCLIEnv(t)

	eng, _, err := openEngine()
	if err != nil {
		t.Fatalf("openEngine: %v", err)
	}
	obj := seedObject(t, eng, "retries use exponential backoff")
	eng.Close()

	if err := runVerify(obj.ID); err != nil {
		t.Fatalf("runVerify: %v", err)
	}
	if err := runRetire(obj.ID); err != nil {
		t.Fatalf("runRetire: %v", err)
	}
}

func TestRunStatsAndCheck(t *testing.T) {
	setupCLIEnv(t)
	statsJSON = false
	if err := runStats(); err != nil {
		t.Fatalf("runStats text: %v", err)
	}
	statsJSON = true
	if err := runStats(); err != nil {
		t.Fatalf("runStats json: %v", err)
	}

	checkJSON = false
	if err := runCheck(); err != nil {
		t.Fatalf("runCheck text: %v", err)
	}
}
