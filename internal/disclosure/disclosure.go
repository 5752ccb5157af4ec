// Package disclosure implements Progressive Disclosure: token-budgeted
// context packs at three levels, and the per-turn escalation signals that
// suggest moving between them.
package disclosure

import (
	"context"
	"regexp"
	"strings"

	"github.com/agentmem/agentmem/internal/retriever"
	"github.com/agentmem/agentmem/internal/store"
)

// Budget is the approximate token ceiling for each disclosure level.
var Budget = map[store.DisclosureLevel]int{
	store.DisclosureMinimal: 200,
	store.DisclosureTask:    500,
	store.DisclosureDeep:    1500,
}

// DisclosureThreshold is the default cadence: suggest re-disclosure once
// this many events have accumulated since the last pack.
const DisclosureThreshold = 15

// Pack is the disclosed context returned to a caller.
type Pack struct {
	Level      store.DisclosureLevel
	Objects    []*store.MemoryObject
	TokensUsed int
}

// Request parameterizes a disclosure pull.
type Request struct {
	Level       store.DisclosureLevel
	Query       string
	File        string
	PriorityIDs []string
}

// Discloser builds Packs from the object store and retriever, always with
// reinforcement disabled so packing never feeds back into the heatmap.
type Discloser struct {
	objects   *store.Objects
	retriever *retriever.Retriever
}

// New builds a Discloser.
func New(db *store.DB, r *retriever.Retriever) *Discloser {
	return &Discloser{objects: store.NewObjects(db), retriever: r}
}

// GetContext builds a Pack for req, filling up to req.Level's token budget.
func (d *Discloser) GetContext(ctx context.Context, req Request) (Pack, error) {
	level := req.Level
	if level == "" {
		level = store.DisclosureMinimal
	}
	budget := Budget[level]

	pack := Pack{Level: level}

	constraints, err := d.objects.List(store.ObjectFilter{Status: store.StatusActive, ObjectType: store.ObjectConstraint})
	if err != nil {
		return pack, err
	}
	sortHotFirst(constraints)
	addUntilBudget(&pack, constraints, budget)

	if level == store.DisclosureMinimal {
		return pack, nil
	}

	query := req.Query
	if query == "" {
		query = req.File
	}
	if query != "" && pack.TokensUsed < budget {
		results, err := d.retriever.Search(ctx, query, retriever.Options{
			Limit:             10,
			SkipReinforcement: true,
			PriorityIDs:       req.PriorityIDs,
		})
		if err != nil {
			return pack, err
		}
		objs := make([]*store.MemoryObject, 0, len(results))
		for _, r := range results {
			objs = append(objs, r.Object)
		}
		addUntilBudget(&pack, objs, budget)
	}

	if level == store.DisclosureTask {
		return pack, nil
	}

	decisions, err := d.objects.List(store.ObjectFilter{Status: store.StatusActive, ObjectType: store.ObjectDecision, Limit: 20})
	if err != nil {
		return pack, err
	}
	sortRecentFirst(decisions)
	addUntilBudget(&pack, decisions, budget)

	return pack, nil
}

// sortHotFirst orders by access_count then last_accessed, descending.
func sortHotFirst(objs []*store.MemoryObject) {
	sortStable(objs, func(a, b *store.MemoryObject) bool {
		if a.AccessCount != b.AccessCount {
			return a.AccessCount > b.AccessCount
		}
		return a.LastAccessed.After(b.LastAccessed)
	})
}

func sortRecentFirst(objs []*store.MemoryObject) {
	sortStable(objs, func(a, b *store.MemoryObject) bool {
		return a.CreatedAt.After(b.CreatedAt)
	})
}

func sortStable(objs []*store.MemoryObject, less func(a, b *store.MemoryObject) bool) {
	for i := 1; i < len(objs); i++ {
		for j := i; j > 0 && less(objs[j], objs[j-1]); j-- {
			objs[j], objs[j-1] = objs[j-1], objs[j]
		}
	}
}

// addUntilBudget appends objects not already present in pack, tracking a
// rough len(content)/4 token estimate, and stops once budget is reached.
func addUntilBudget(pack *Pack, candidates []*store.MemoryObject, budget int) {
	seen := map[string]bool{}
	for _, o := range pack.Objects {
		seen[o.ID] = true
	}
	for _, o := range candidates {
		if seen[o.ID] {
			continue
		}
		if pack.TokensUsed >= budget {
			return
		}
		cost := estimateTokens(o.Content)
		pack.Objects = append(pack.Objects, o)
		pack.TokensUsed += cost
		seen[o.ID] = true
	}
}

func estimateTokens(content string) int {
	n := len(content) / 4
	if n == 0 {
		n = 1
	}
	return n
}

// Signal names an escalation recommendation evaluated for the current turn.
type Signal string

const (
	SignalExplicitQuery Signal = "explicit_query"
	SignalErrorBurst    Signal = "error_burst"
	SignalTopicShift    Signal = "topic_shift"
	SignalCadence       Signal = "cadence"
)

var recallCueRe = regexp.MustCompile(`(?i)remind me|what did we decide|previous session|we discussed`)

// EvaluateEscalation inspects the current turn and session state, returning
// the signal that fired (if any) and the disclosure level it suggests.
func EvaluateEscalation(turnText string, sess *store.Session, workingDir string) (Signal, store.DisclosureLevel, bool) {
	if recallCueRe.MatchString(turnText) {
		return SignalExplicitQuery, store.DisclosureDeep, true
	}
	if sess.ErrorCount >= 3 {
		return SignalErrorBurst, nextLevel(sess.DisclosureLevel), true
	}
	if workingDir != "" && sess.LastTopic != "" &&
		filepathDir(workingDir) != filepathDir(sess.LastTopic) &&
		sess.EventsSinceCheckpoint > 5 {
		return SignalTopicShift, store.DisclosureTask, true
	}
	if eventsSinceDisclosure(sess) >= DisclosureThreshold {
		return SignalCadence, sess.DisclosureLevel, true
	}
	return "", "", false
}

func nextLevel(level store.DisclosureLevel) store.DisclosureLevel {
	switch level {
	case store.DisclosureMinimal:
		return store.DisclosureTask
	default:
		return store.DisclosureDeep
	}
}

func eventsSinceDisclosure(sess *store.Session) int {
	if sess.LastDisclosureAt == nil {
		return sess.EventsCount
	}
	return sess.EventsSinceCheckpoint
}

func filepathDir(p string) string {
	idx := strings.LastIndexByte(p, '/')
	if idx < 0 {
		return ""
	}
	return p[:idx]
}
