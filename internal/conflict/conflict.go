// Package conflict implements the Conflict Detector: direct, implicit, and
// temporal contradiction detection over the active memory object set.
package conflict

import (
	"regexp"
	"strings"
	"time"

	"github.com/agentmem/agentmem/internal/store"
)

// Type enumerates the kinds of detected conflicts.
type Type string

const (
	TypeDirect   Type = "direct"
	TypeImplicit Type = "implicit"
	TypeTemporal Type = "temporal"
)

// Resolution enumerates the suggested resolution policies.
type Resolution string

const (
	ResolutionKeepGrounded Resolution = "keep_grounded"
	ResolutionKeepNewer    Resolution = "keep_newer"
	ResolutionAskUser      Resolution = "ask_user"
)

// Finding is one detected conflict between two objects.
type Finding struct {
	ObjectIDs           [2]string
	Type                Type
	Description         string
	SuggestedResolution Resolution
	Confidence          float64
}

var negationCues = regexp.MustCompile(`(?i)\b(don't|do not|never|avoid|stop|no longer|isn't|is not|won't)\b`)

// antonymPairs lists words that directly contradict each other.
var antonymPairs = [][2]string{
	{"use", "avoid"}, {"tabs", "spaces"}, {"enable", "disable"},
	{"sync", "async"}, {"mutable", "immutable"}, {"public", "private"},
}

// mutuallyExclusiveSets groups terms that cannot simultaneously be "the"
// chosen option for the same concern.
var mutuallyExclusiveSets = [][]string{
	{"react", "vue", "angular", "svelte"},
	{"postgres", "mysql", "sqlite", "mongodb"},
	{"npm", "yarn", "pnpm"},
	{"jest", "mocha", "vitest", "pytest"},
	{"tabs", "spaces"},
}

var recommendationVerbs = regexp.MustCompile(`(?i)\b(use|prefer|choose|decision|always)\b`)

// Detect compares every pair of active, non-supersession-linked objects in
// objs and returns all findings. Retired objects must be excluded by the
// caller before calling Detect.
func Detect(objs []*store.MemoryObject) []Finding {
	var findings []Finding
	for i := 0; i < len(objs); i++ {
		for j := i + 1; j < len(objs); j++ {
			a, b := objs[i], objs[j]
			if !eligiblePair(a, b) {
				continue
			}
			if f, ok := detectDirect(a, b); ok {
				findings = append(findings, f)
				continue
			}
			if f, ok := detectImplicit(a, b); ok {
				findings = append(findings, f)
				continue
			}
			if f, ok := detectTemporal(a, b); ok {
				findings = append(findings, f)
			}
		}
	}
	return findings
}

// eligiblePair excludes retired objects and objects linked by supersession.
func eligiblePair(a, b *store.MemoryObject) bool {
	if a.Status != store.StatusActive || b.Status != store.StatusActive {
		return false
	}
	if a.SupersededBy == b.ID || b.SupersededBy == a.ID {
		return false
	}
	for _, id := range a.Supersedes {
		if id == b.ID {
			return false
		}
	}
	for _, id := range b.Supersedes {
		if id == a.ID {
			return false
		}
	}
	return true
}

func detectDirect(a, b *store.MemoryObject) (Finding, bool) {
	aNeg := negationCues.MatchString(a.Content)
	bNeg := negationCues.MatchString(b.Content)
	if aNeg != bNeg && jaccard(a.Content, b.Content) > 0.4 {
		return makeFinding(a, b, TypeDirect, "one statement negates the other over overlapping content"), true
	}

	for _, pair := range antonymPairs {
		hasA := containsWord(a.Content, pair[0]) && containsWord(b.Content, pair[1])
		hasB := containsWord(a.Content, pair[1]) && containsWord(b.Content, pair[0])
		if (hasA || hasB) && jaccard(a.Content, b.Content) > 0.3 {
			return makeFinding(a, b, TypeDirect, "antonym pair "+pair[0]+"/"+pair[1]+" with overlapping context"), true
		}
	}

	return Finding{}, false
}

func detectImplicit(a, b *store.MemoryObject) (Finding, bool) {
	if !recommendationVerbs.MatchString(a.Content) || !recommendationVerbs.MatchString(b.Content) {
		return Finding{}, false
	}
	for _, set := range mutuallyExclusiveSets {
		var memberA, memberB string
		for _, term := range set {
			if containsWord(a.Content, term) && memberA == "" {
				memberA = term
			}
			if containsWord(b.Content, term) && memberB == "" {
				memberB = term
			}
		}
		if memberA != "" && memberB != "" && memberA != memberB {
			return makeFinding(a, b, TypeImplicit, "both recommend different members of the same choice set: "+memberA+" vs "+memberB), true
		}
	}
	return Finding{}, false
}

var temporalTypes = map[store.ObjectType]bool{
	store.ObjectDecision:   true,
	store.ObjectConvention: true,
	store.ObjectPreference: true,
}

func detectTemporal(a, b *store.MemoryObject) (Finding, bool) {
	if !temporalTypes[a.ObjectType] || !temporalTypes[b.ObjectType] {
		return Finding{}, false
	}
	if jaccard(a.Content, b.Content) <= 0.5 {
		return Finding{}, false
	}
	age := a.CreatedAt.Sub(b.CreatedAt)
	if age < 0 {
		age = -age
	}
	if age <= 24*time.Hour {
		return Finding{}, false
	}
	return makeFinding(a, b, TypeTemporal, "overlapping statements created more than 24h apart"), true
}

func makeFinding(a, b *store.MemoryObject, t Type, desc string) Finding {
	return Finding{
		ObjectIDs:           [2]string{a.ID, b.ID},
		Type:                t,
		Description:         desc,
		SuggestedResolution: resolve(a, b, t),
		Confidence:          0.7,
	}
}

// resolve applies: temporal -> keep_newer; else confidence_tier differs ->
// keep_grounded; else age differs > 24h -> keep_newer; else ask_user.
func resolve(a, b *store.MemoryObject, t Type) Resolution {
	if t == TypeTemporal {
		return ResolutionKeepNewer
	}
	if a.ConfidenceTier != b.ConfidenceTier {
		return ResolutionKeepGrounded
	}
	age := a.CreatedAt.Sub(b.CreatedAt)
	if age < 0 {
		age = -age
	}
	if age > 24*time.Hour {
		return ResolutionKeepNewer
	}
	return ResolutionAskUser
}

func containsWord(content, word string) bool {
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`).MatchString(content)
}

func jaccard(a, b string) float64 {
	wordsA := wordSet(a)
	wordsB := wordSet(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	intersection := 0
	for w := range wordsA {
		if wordsB[w] {
			intersection++
		}
	}
	union := len(wordsA) + len(wordsB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func wordSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,!?;:\"'()")
		if len(w) > 1 {
			out[w] = true
		}
	}
	return out
}
