package conflict

import (
	"testing"
	"time"

	"github.com/agentmem/agentmem/internal/store"
)

func obj(id, content string, ot store.ObjectType, tier store.ConfidenceTier, createdAt time.Time) *store.MemoryObject {
	return &store.MemoryObject{
		ID:             id,
		Content:        content,
		ObjectType:     ot,
		Status:         store.StatusActive,
		ConfidenceTier: tier,
		CreatedAt:      createdAt,
	}
}

func TestDetectDirectNegation(t *testing.T) {
	now := time.Now()
	objs := []*store.MemoryObject{
		obj("a", "use tabs for indentation in this project", store.ObjectConvention, store.TierObserved, now),
		obj("b", "don't use tabs for indentation in this project", store.ObjectConvention, store.TierObserved, now),
	}

	findings := Detect(objs)
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d: %+v", len(findings), findings)
	}
	if findings[0].Type != TypeDirect {
		t.Errorf("expected direct conflict, got %q", findings[0].Type)
	}
}

func TestDetectDirectAntonymPair(t *testing.T) {
	now := time.Now()
	objs := []*store.MemoryObject{
		obj("a", "the team decided to use tabs across all source files", store.ObjectDecision, store.TierObserved, now),
		obj("b", "the team decided to use spaces across all source files", store.ObjectDecision, store.TierObserved, now),
	}

	findings := Detect(objs)
	if len(findings) == 0 {
		t.Fatal("expected a conflict to be detected for tabs/spaces antonym pair")
	}
}

func TestDetectImplicitMutuallyExclusive(t *testing.T) {
	now := time.Now()
	objs := []*store.MemoryObject{
		obj("a", "always use react for the frontend framework", store.ObjectDecision, store.TierObserved, now),
		obj("b", "always use vue for the frontend framework", store.ObjectDecision, store.TierObserved, now),
	}

	findings := Detect(objs)
	if len(findings) != 1 || findings[0].Type != TypeImplicit {
		t.Fatalf("expected 1 implicit finding, got %+v", findings)
	}
}

func TestDetectTemporalRequiresAgeGap(t *testing.T) {
	now := time.Now()
	objs := []*store.MemoryObject{
		obj("a", "the database layer now uses postgres for persistence", store.ObjectDecision, store.TierObserved, now),
		obj("b", "the database layer now uses postgres for persistence", store.ObjectDecision, store.TierObserved, now.Add(1*time.Hour)),
	}

	findings := Detect(objs)
	if len(findings) != 0 {
		t.Fatalf("expected no temporal conflict within 24h, got %+v", findings)
	}
}

func TestDetectTemporalOverAgeGap(t *testing.T) {
	now := time.Now()
	objs := []*store.MemoryObject{
		obj("a", "the database layer now uses postgres for persistence layer work", store.ObjectDecision, store.TierObserved, now),
		obj("b", "the database layer now uses postgres for persistence layer work", store.ObjectDecision, store.TierObserved, now.Add(48*time.Hour)),
	}

	findings := Detect(objs)
	if len(findings) != 1 || findings[0].SuggestedResolution != ResolutionKeepNewer {
		t.Fatalf("expected a temporal finding resolved keep_newer, got %+v", findings)
	}
}

func TestEligiblePairExcludesRetiredAndSuperseded(t *testing.T) {
	now := time.Now()
	retired := obj("a", "use tabs for indentation", store.ObjectConvention, store.TierObserved, now)
	retired.Status = store.StatusRetired
	active := obj("b", "don't use tabs for indentation", store.ObjectConvention, store.TierObserved, now)

	findings := Detect([]*store.MemoryObject{retired, active})
	if len(findings) != 0 {
		t.Fatalf("expected retired objects to be excluded from conflict detection, got %+v", findings)
	}

	linked := obj("c", "use tabs for indentation", store.ObjectConvention, store.TierObserved, now)
	linkedSuccessor := obj("d", "don't use tabs for indentation", store.ObjectConvention, store.TierObserved, now)
	linked.SupersededBy = linkedSuccessor.ID
	linkedSuccessor.Supersedes = []string{linked.ID}

	findings = Detect([]*store.MemoryObject{linked, linkedSuccessor})
	if len(findings) != 0 {
		t.Fatalf("expected supersession-linked objects to be excluded, got %+v", findings)
	}
}

func TestResolveDiffersByConfidenceTier(t *testing.T) {
	now := time.Now()
	a := obj("a", "use tabs for indentation", store.ObjectConvention, store.TierGrounded, now)
	b := obj("b", "don't use tabs for indentation", store.ObjectConvention, store.TierHypothesis, now)

	findings := Detect([]*store.MemoryObject{a, b})
	if len(findings) != 1 || findings[0].SuggestedResolution != ResolutionKeepGrounded {
		t.Fatalf("expected keep_grounded resolution when confidence tiers differ, got %+v", findings)
	}
}
