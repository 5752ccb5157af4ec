package normalize

import "testing"

func TestContentHashDeterministicUnderCaseAndWhitespace(t *testing.T) {
	a := ContentHash("Use   Specific Types")
	b := ContentHash("use specific types")
	if a != b {
		t.Fatalf("expected equal hashes, got %q and %q", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("expected 16 hex chars, got %d", len(a))
	}
}

func TestContentHashDiffersOnContent(t *testing.T) {
	a := ContentHash("use specific types")
	b := ContentHash("use any types")
	if a == b {
		t.Fatal("expected different hashes for different content")
	}
}

func TestNormalizeEventShouldBlob(t *testing.T) {
	short := NormalizeEvent("short content", "turn", Meta{}, InlineBlobThreshold)
	if short.ShouldBlob {
		t.Error("short content should not blob")
	}
	if short.Synopsis != "" {
		t.Error("short content should not get a synopsis")
	}

	long := make([]byte, InlineBlobThreshold+1)
	for i := range long {
		long[i] = 'a'
	}
	result := NormalizeEvent(string(long), "turn", Meta{}, InlineBlobThreshold)
	if !result.ShouldBlob {
		t.Error("content over threshold should blob")
	}
	if result.Synopsis == "" {
		t.Error("blobbed content should get a synopsis")
	}
}

func TestExtractSignalsTestCounts(t *testing.T) {
	n := NormalizeEvent("ran suite: 12 passed, 3 failed", "test_summary", Meta{}, InlineBlobThreshold)
	if n.Signals.TestsPassed != 12 {
		t.Errorf("expected 12 passed, got %d", n.Signals.TestsPassed)
	}
	if n.Signals.TestsFailed != 3 {
		t.Errorf("expected 3 failed, got %d", n.Signals.TestsFailed)
	}
}

func TestExtractSignalsFilesChanged(t *testing.T) {
	diff := "diff --git a/main.go b/main.go\n@@ -1,1 +1,1 @@\n-old\n+new\n"
	n := NormalizeEvent(diff, "diff", Meta{}, InlineBlobThreshold)
	if len(n.Signals.FilesChanged) != 1 || n.Signals.FilesChanged[0] != "main.go" {
		t.Errorf("expected [main.go], got %v", n.Signals.FilesChanged)
	}
}

func TestExtractSignalsErrorSignature(t *testing.T) {
	n := NormalizeEvent("running build\npanic: nil pointer dereference\nmore output", "error", Meta{}, InlineBlobThreshold)
	if n.Signals.ErrorSignature == "" {
		t.Error("expected an error signature to be extracted")
	}
}

func TestExcerptPrefersSentenceBoundary(t *testing.T) {
	content := "First sentence is here. Second sentence follows. Third one too."
	got := Excerpt(content, 30)
	if len(got) > 30 {
		// Excerpt is allowed to exceed only when no sentence fits; here one does.
		t.Errorf("expected excerpt <= 30 bytes when a sentence fits, got %d: %q", len(got), got)
	}
}
