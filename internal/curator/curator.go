// Package curator implements the Checkpoint / Curator: a per-session
// buffer of events, trigger evaluation, and the deterministic Tier-0 pass
// that turns buffered events into memory-object candidates.
package curator

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agentmem/agentmem/internal/conflict"
	"github.com/agentmem/agentmem/internal/facts"
	"github.com/agentmem/agentmem/internal/normalize"
	"github.com/agentmem/agentmem/internal/ratelimit"
	"github.com/agentmem/agentmem/internal/store"
)

// Trigger names the reason a checkpoint fired.
type Trigger string

const (
	TriggerEventThreshold Trigger = "event_threshold"
	TriggerToolBurst      Trigger = "tool_burst"
	TriggerTaskComplete   Trigger = "task_complete"
	TriggerErrorBurst     Trigger = "error_burst"
	TriggerManual         Trigger = "manual"
)

// Config tunes the auto-trigger thresholds; a zero Config uses defaults.
type Config struct {
	MinEvents          int
	ToolBurstCount     float64
	ToolBurstWindow    time.Duration
	ErrorBurstThreshold int
}

// DefaultConfig mirrors the documented defaults.
var DefaultConfig = Config{
	MinEvents:           10,
	ToolBurstCount:      10,
	ToolBurstWindow:      120 * time.Second,
	ErrorBurstThreshold: 3,
}

// Result summarizes one execute pass.
type Result struct {
	EpisodeEventCount int
	CandidatesExtracted int
	MemoriesCreated   int
	Holds             int
}

// Buffer accumulates events for one session between checkpoints.
type Buffer struct {
	mu sync.Mutex

	sessionID string
	cfg       Config

	events              []*store.Event
	toolBurst           *ratelimit.Bucket
	consecutiveErrors   int
	sawExitCodeOne      bool
}

// NewBuffer creates an empty per-session buffer.
func NewBuffer(sessionID string, cfg Config) *Buffer {
	if cfg.MinEvents <= 0 {
		cfg = DefaultConfig
	}
	return &Buffer{
		sessionID: sessionID,
		cfg:       cfg,
		toolBurst: ratelimit.NewBucket(cfg.ToolBurstCount, cfg.ToolBurstCount/cfg.ToolBurstWindow.Seconds()),
	}
}

// AddEvent appends e to the buffer and evaluates auto-triggers, returning
// the first trigger that fires (if any).
func (b *Buffer) AddEvent(e *store.Event) (Trigger, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, e)

	if e.EventType == store.EventToolOutput || e.EventType == store.EventToolCall {
		b.toolBurst.TryConsume(1)
	}

	if e.EventType == store.EventToolOutput && e.ExitCode != nil {
		if *e.ExitCode == 0 {
			if b.sawExitCodeOne {
				b.sawExitCodeOne = false
				return TriggerTaskComplete, true
			}
			b.consecutiveErrors = 0
		} else {
			b.sawExitCodeOne = true
			b.consecutiveErrors++
			if b.consecutiveErrors >= b.cfg.ErrorBurstThreshold {
				return TriggerErrorBurst, true
			}
		}
	}

	if b.toolBurst.Tokens() < 1 {
		return TriggerToolBurst, true
	}

	if len(b.events) >= b.cfg.MinEvents {
		return TriggerEventThreshold, true
	}

	return "", false
}

// Drain removes and returns all buffered events, resetting burst counters.
func (b *Buffer) Drain() []*store.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	drained := b.events
	b.events = nil
	b.consecutiveErrors = 0
	b.sawExitCodeOne = false
	b.toolBurst.Reset()
	return drained
}

// Len reports the number of buffered events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Candidate is a Tier-0 memory-object candidate awaiting dedup and
// conflict gating.
type Candidate struct {
	ObjectType       store.ObjectType
	Content          string
	EvidenceEventIDs []string
	EvidenceExcerpt  string
	Confidence       store.Confidence
}

// Curator runs Tier-0 extraction and writes survivors to the object store.
type Curator struct {
	objects *store.Objects
}

// New builds a Curator backed by db.
func New(db *store.DB) *Curator {
	return &Curator{objects: store.NewObjects(db)}
}

var negationCues = []string{"no,", "not that", "that's wrong", "don't", "actually,", "incorrect", "instead"}

// tierRank orders confidence tiers from weakest to strongest evidence, used
// to decide which side of a keep_grounded conflict survives.
var tierRank = map[store.ConfidenceTier]int{
	store.TierHypothesis: 0,
	store.TierInferred:   1,
	store.TierObserved:   2,
	store.TierGrounded:   3,
}

// Execute drains buf and runs the Tier-0 pass. interactive controls how
// ask_user conflicts are handled: when false, ask_user candidates are held
// (not written) and counted in Result.Holds. keep_grounded and keep_newer
// resolutions are always enforced: whichever side of the conflict the
// resolution names the winner survives, and the loser is retired (if it was
// the existing object) or the candidate is simply not written (if it was
// the loser).
func (c *Curator) Execute(buf *Buffer, reason Trigger, interactive bool) (Result, error) {
	events := buf.Drain()
	res := Result{EpisodeEventCount: len(events)}
	if len(events) == 0 {
		return res, nil
	}

	candidates := extractCandidates(events)
	res.CandidatesExtracted = len(candidates)

	active, err := c.objects.List(store.ObjectFilter{Status: store.StatusActive})
	if err != nil {
		return res, err
	}

	for _, cand := range candidates {
		hash := normalize.ContentHash(cand.Content)
		if existsByHash(active, hash) {
			continue
		}

		proposed := &store.MemoryObject{
			ObjectType:       cand.ObjectType,
			Content:          cand.Content,
			Status:           store.StatusActive,
			Confidence:       cand.Confidence,
			ReviewStatus:     store.ReviewPending,
			EvidenceEventIDs: cand.EvidenceEventIDs,
			EvidenceExcerpt:  cand.EvidenceExcerpt,
			CreatedAt:        time.Now().UTC(),
		}
		proposedTier := store.DeriveConfidenceTier(proposed.CodeRefs, proposed.EvidenceEventIDs, proposed.ReviewStatus, nil)
		proposed.ConfidenceTier = proposedTier

		findings := conflict.Detect(append(append([]*store.MemoryObject{}, active...), proposed))
		held, skip := false, false
		var retireIDs []string
		for _, f := range findings {
			if f.ObjectIDs[0] != proposed.ID && f.ObjectIDs[1] != proposed.ID {
				continue
			}
			existingID := f.ObjectIDs[0]
			if existingID == proposed.ID {
				existingID = f.ObjectIDs[1]
			}
			existing := findByID(active, existingID)
			if existing == nil {
				continue
			}

			switch f.SuggestedResolution {
			case conflict.ResolutionKeepGrounded:
				if tierRank[existing.ConfidenceTier] >= tierRank[proposedTier] {
					skip = true
				} else {
					retireIDs = append(retireIDs, existing.ID)
				}
			case conflict.ResolutionKeepNewer:
				if proposed.CreatedAt.After(existing.CreatedAt) {
					retireIDs = append(retireIDs, existing.ID)
				} else {
					skip = true
				}
			case conflict.ResolutionAskUser:
				if !interactive {
					held = true
				}
			}
		}
		if held {
			res.Holds++
			continue
		}
		if skip {
			continue
		}

		for _, id := range retireIDs {
			if err := c.objects.Retire(id); err != nil {
				return res, err
			}
			active = removeByID(active, id)
		}

		created, err := c.objects.Create(proposed, nil)
		if err != nil {
			return res, err
		}
		active = append(active, created)
		res.MemoriesCreated++
	}

	return res, nil
}

func existsByHash(objs []*store.MemoryObject, hash string) bool {
	for _, o := range objs {
		if normalize.ContentHash(o.Content) == hash {
			return true
		}
	}
	return false
}

func findByID(objs []*store.MemoryObject, id string) *store.MemoryObject {
	for _, o := range objs {
		if o.ID == id {
			return o
		}
	}
	return nil
}

func removeByID(objs []*store.MemoryObject, id string) []*store.MemoryObject {
	out := make([]*store.MemoryObject, 0, len(objs))
	for _, o := range objs {
		if o.ID != id {
			out = append(out, o)
		}
	}
	return out
}

// extractCandidates runs the deterministic Tier-0 producers over events in
// order: corrections, repeated commands, error-fix pairs, then facts.
func extractCandidates(events []*store.Event) []Candidate {
	var out []Candidate
	out = append(out, correctionCandidates(events)...)
	out = append(out, repeatedCommandCandidates(events)...)
	out = append(out, errorFixCandidates(events)...)
	out = append(out, factCandidates(events)...)
	return out
}

func correctionCandidates(events []*store.Event) []Candidate {
	var out []Candidate
	for _, e := range events {
		if e.EventType != store.EventTurn {
			continue
		}
		lower := strings.ToLower(strings.TrimSpace(e.Content))
		for _, cue := range negationCues {
			if strings.HasPrefix(lower, cue) {
				out = append(out, Candidate{
					ObjectType:       store.ObjectConstraint,
					Content:          strings.TrimSpace(e.Content),
					EvidenceEventIDs: []string{e.ID},
					EvidenceExcerpt:  excerpt(e.Content),
					Confidence:       store.ConfidenceHigh,
				})
				break
			}
		}
	}
	return out
}

// repeatedCommandCandidates groups tool_call events by tool name within a
// short window and proposes a convention when the same tool recurs 3+ times
// in close succession.
func repeatedCommandCandidates(events []*store.Event) []Candidate {
	byTool := map[string][]*store.Event{}
	for _, e := range events {
		if e.EventType != store.EventToolCall || e.ToolName == "" {
			continue
		}
		byTool[e.ToolName] = append(byTool[e.ToolName], e)
	}

	var out []Candidate
	for tool, occs := range byTool {
		if len(occs) < 3 {
			continue
		}
		sort.Slice(occs, func(i, j int) bool { return occs[i].Timestamp.Before(occs[j].Timestamp) })
		span := occs[len(occs)-1].Timestamp.Sub(occs[0].Timestamp)
		if span > 30*time.Minute {
			continue
		}
		ids := make([]string, len(occs))
		for i, o := range occs {
			ids[i] = o.ID
		}
		out = append(out, Candidate{
			ObjectType:       store.ObjectConvention,
			Content:          tool + " is used repeatedly in this session",
			EvidenceEventIDs: ids,
			EvidenceExcerpt:  excerpt(occs[0].Content),
			Confidence:       store.ConfidenceMedium,
		})
	}
	return out
}

// errorFixCandidates finds a failing tool_output followed by a succeeding
// one over the same file_path and proposes a decision candidate.
func errorFixCandidates(events []*store.Event) []Candidate {
	var out []Candidate
	lastFailure := map[string]*store.Event{}
	for _, e := range events {
		if e.EventType != store.EventToolOutput || e.ExitCode == nil || e.FilePath == "" {
			continue
		}
		if *e.ExitCode != 0 {
			lastFailure[e.FilePath] = e
			continue
		}
		if fail, ok := lastFailure[e.FilePath]; ok {
			out = append(out, Candidate{
				ObjectType:       store.ObjectDecision,
				Content:          "resolved a failure in " + e.FilePath,
				EvidenceEventIDs: []string{fail.ID, e.ID},
				EvidenceExcerpt:  excerpt(e.Content),
				Confidence:       store.ConfidenceMedium,
			})
			delete(lastFailure, e.FilePath)
		}
	}
	return out
}

func factCandidates(events []*store.Event) []Candidate {
	var out []Candidate
	for _, e := range events {
		if e.EventType != store.EventTurn {
			continue
		}
		extracted := facts.Extract(facts.Input{
			Utterance:   e.Content,
			Speaker:     "user",
			SessionDate: e.Timestamp,
		}, facts.DefaultMaxFacts)
		for _, f := range extracted {
			content := strings.TrimSpace(f.Subject + " " + f.Predicate + " " + f.Object)
			out = append(out, Candidate{
				ObjectType:       store.ObjectFact,
				Content:          content,
				EvidenceEventIDs: []string{e.ID},
				EvidenceExcerpt:  excerpt(e.Content),
				Confidence:       confidenceForFact(f),
			})
		}
	}
	return out
}

func confidenceForFact(f facts.Fact) store.Confidence {
	if f.Confidence != "" {
		return f.Confidence
	}
	return store.ConfidenceMedium
}

func excerpt(content string) string {
	const max = 200
	if len(content) <= max {
		return content
	}
	return content[:max] + "…"
}
