package facts

import (
	"testing"
	"time"
)

func TestExtractResolvesSpeakerSubject(t *testing.T) {
	in := Input{
		Utterance: "My favorite editor is neovim.",
		Speaker:   "alex",
	}
	got := Extract(in, 0)
	if len(got) != 1 {
		t.Fatalf("expected 1 fact, got %d: %+v", len(got), got)
	}
	if got[0].Subject != "alex" {
		t.Errorf("expected subject 'alex', got %q", got[0].Subject)
	}
}

func TestExtractDropsPronounWithoutSpeaker(t *testing.T) {
	in := Input{Utterance: "I like Go."}
	got := Extract(in, 0)
	if len(got) != 0 {
		t.Errorf("expected no facts without a known speaker, got %+v", got)
	}
}

func TestExtractProperNounSubject(t *testing.T) {
	in := Input{Utterance: "Priya works at Acme Corp."}
	got := Extract(in, 0)
	if len(got) != 1 {
		t.Fatalf("expected 1 fact, got %d", len(got))
	}
	if got[0].Subject != "Priya" {
		t.Errorf("expected subject 'Priya', got %q", got[0].Subject)
	}
	if got[0].Predicate != "works-at" {
		t.Errorf("expected predicate 'works-at', got %q", got[0].Predicate)
	}
	if got[0].Object != "Acme Corp" {
		t.Errorf("expected object 'Acme Corp', got %q", got[0].Object)
	}
}

func TestExtractObjectSanitizationCutsAtClause(t *testing.T) {
	in := Input{
		Utterance: "I prefer tabs because it's easier to read.",
		Speaker:   "sam",
	}
	got := Extract(in, 0)
	if len(got) != 1 {
		t.Fatalf("expected 1 fact, got %d", len(got))
	}
	if got[0].Object != "tabs" {
		t.Errorf("expected object trimmed to 'tabs', got %q", got[0].Object)
	}
}

func TestExtractExplicitISODate(t *testing.T) {
	in := Input{
		Utterance: "Our deploy is scheduled on 2026-08-01.",
		Speaker:   "ops",
	}
	got := Extract(in, 0)
	if len(got) != 1 {
		t.Fatalf("expected 1 fact, got %d", len(got))
	}
	if got[0].Time != "2026-08-01" {
		t.Errorf("expected explicit ISO date anchor, got %q", got[0].Time)
	}
}

func TestExtractRelativeAgoFallback(t *testing.T) {
	sessionDate := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	in := Input{
		Utterance:   "We deployed 3 days ago.",
		Speaker:     "ops",
		SessionDate: sessionDate,
	}
	got := Extract(in, 0)
	if len(got) != 1 {
		t.Fatalf("expected 1 fact, got %d", len(got))
	}
	want := sessionDate.AddDate(0, 0, -3).Format("2006-01-02")
	if got[0].Time != want {
		t.Errorf("expected relative date %q, got %q", want, got[0].Time)
	}
}

func TestExtractRespectsMaxFacts(t *testing.T) {
	in := Input{
		Utterance: "I like Go. I like Rust. I like Python. I like C.",
		Speaker:   "sam",
	}
	got := Extract(in, 2)
	if len(got) != 2 {
		t.Fatalf("expected exactly 2 facts capped by maxFacts, got %d", len(got))
	}
}

func TestExtractFallsBackToSessionDate(t *testing.T) {
	sessionDate := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	in := Input{
		Utterance:   "I prefer dark mode.",
		Speaker:     "sam",
		SessionDate: sessionDate,
	}
	got := Extract(in, 0)
	if len(got) != 1 {
		t.Fatalf("expected 1 fact, got %d", len(got))
	}
	if got[0].Time != "2026-01-15" {
		t.Errorf("expected fallback to session date, got %q", got[0].Time)
	}
}
