// Package retriever implements the Retriever: hybrid fan-out search over
// the lexical, vector, and token indices, fused with decay and outcome
// scoring, with optional reinforcement on hit.
package retriever

import (
	"context"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentmem/agentmem/internal/decay"
	"github.com/agentmem/agentmem/internal/errs"
	"github.com/agentmem/agentmem/internal/lexical"
	"github.com/agentmem/agentmem/internal/store"
	"github.com/agentmem/agentmem/internal/tokenindex"
	"github.com/agentmem/agentmem/internal/vectorindex"
)

// Weights controls branch fusion; zero-value Weights uses the defaults.
type Weights struct {
	Lexical float64
	Vector  float64
	Token   float64
}

// DefaultWeights are the default branch weights.
var DefaultWeights = Weights{Lexical: 0.5, Vector: 0.4, Token: 0.1}

// BranchCaps bounds how many candidates each branch contributes before
// fusion.
type BranchCaps struct {
	Lexical int
	Vector  int
	Token   int
}

// DefaultBranchCaps are the default per-branch candidate caps.
var DefaultBranchCaps = BranchCaps{Lexical: 50, Vector: 50, Token: 20}

// PriorityBoost is added to a candidate's effective score when its id
// appears in Options.PriorityIDs.
const PriorityBoost = 0.2

// BranchTimeout bounds how long a single branch may run before it
// contributes zero weight and fusion renormalizes around the survivors.
const BranchTimeout = 3 * time.Second

// Embedder is the minimal capability the vector branch needs; satisfied by
// internal/embedder.Embedder.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Options configures a search call.
type Options struct {
	SessionID         string
	Filters           store.ObjectFilter
	Limit             int
	SkipReinforcement bool
	PriorityIDs       []string
	Weights           Weights
	Caps              BranchCaps
}

// Scored pairs a memory object with its fused score.
type Scored struct {
	Object *store.MemoryObject
	Score  float64
}

// Retriever fans out to the lexical, vector, and token indices.
type Retriever struct {
	db       *store.DB
	objects  *store.Objects
	lexical  *lexical.Index
	vector   vectorindex.Index
	tokens   *tokenindex.Indexer
	embedder Embedder // nil disables the vector branch
}

// New builds a Retriever. vector and embedder may be nil to disable the
// vector branch (e.g. no embedder configured).
func New(db *store.DB, vector vectorindex.Index, embedder Embedder) *Retriever {
	return &Retriever{
		db:       db,
		objects:  store.NewObjects(db),
		lexical:  lexical.New(db),
		vector:   vector,
		tokens:   tokenindex.New(db),
		embedder: embedder,
	}
}

// Search runs the hybrid retrieval pipeline for query under opts.
func (r *Retriever) Search(ctx context.Context, query string, opts Options) ([]Scored, error) {
	weights := opts.Weights
	if weights == (Weights{}) {
		weights = DefaultWeights
	}
	caps := opts.Caps
	if caps == (BranchCaps{}) {
		caps = DefaultBranchCaps
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	branches := r.runBranches(ctx, query, opts.SessionID, caps)

	combined, activeWeight := fuse(branches, weights)
	if activeWeight == 0 {
		return nil, nil
	}

	candidates := make([]string, 0, len(combined))
	for id := range combined {
		candidates = append(candidates, id)
	}

	objs, err := r.fetchObjects(candidates)
	if err != nil {
		return nil, err
	}
	objs = filterObjects(objs, opts.Filters)

	now := time.Now().UTC()
	priority := map[string]bool{}
	for _, id := range opts.PriorityIDs {
		priority[id] = true
	}

	var scored []Scored
	for _, obj := range objs {
		branchScore := combined[obj.ID] / activeWeight

		deltaDays := now.Sub(lastAccessedOrCreated(obj)).Hours() / 24
		strength := decay.DecayedStrength(obj.Strength, deltaDays, 0, 0)
		effective := decay.EffectiveScore(branchScore, strength, obj.OutcomeScore)

		if priority[obj.ID] {
			effective += PriorityBoost
		}

		scored = append(scored, Scored{Object: obj, Score: effective})
	}

	sort.Slice(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	if needsDiversification(query) {
		scored = diversifyBySession(store.NewEvents(r.db), scored)
	}

	if len(scored) > limit {
		scored = scored[:limit]
	}

	if !opts.SkipReinforcement {
		if err := r.reinforce(scored); err != nil {
			return scored, err
		}
	}

	return scored, nil
}

type branchResult struct {
	lexical map[string]float64
	vector  map[string]float64
	token   map[string]float64
}

// runBranches fans out to lexical/vector/token with per-branch timeouts.
// A branch that errors or times out contributes an empty map, which fuse
// treats as absent (renormalizing the remaining weights).
func (r *Retriever) runBranches(ctx context.Context, query, sessionID string, caps BranchCaps) branchResult {
	var res branchResult
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		bctx, cancel := context.WithTimeout(gctx, BranchTimeout)
		defer cancel()
		results, err := r.lexical.SearchObjects(query, caps.Lexical)
		if err != nil || bctx.Err() != nil {
			return nil
		}
		res.lexical = toScoreMap(results)
		return nil
	})

	if r.vector != nil && r.embedder != nil {
		g.Go(func() error {
			bctx, cancel := context.WithTimeout(gctx, BranchTimeout)
			defer cancel()
			vec, err := r.embedder.Embed(bctx, query)
			if err != nil || bctx.Err() != nil {
				return nil
			}
			results, err := r.vector.Search(bctx, vec, caps.Vector)
			if err != nil || bctx.Err() != nil {
				return nil
			}
			m := map[string]float64{}
			for _, v := range results {
				m[v.ID] = normalizeCosine(v.Score)
			}
			res.vector = m
			return nil
		})
	}

	g.Go(func() error {
		bctx, cancel := context.WithTimeout(gctx, BranchTimeout)
		defer cancel()
		results, err := r.tokens.Search(query, caps.Token)
		if err != nil || bctx.Err() != nil {
			return nil
		}
		m := map[string]float64{}
		for _, v := range results {
			m[v.ID] = v.Score
		}
		res.token = m
		return nil
	})

	_ = g.Wait()
	return res
}

func toScoreMap(results []lexical.Result) map[string]float64 {
	m := map[string]float64{}
	for _, r := range results {
		m[r.ID] = r.Score
	}
	return m
}

// normalizeCosine rescales a cosine similarity in [-1,1] to [0,1] so the
// vector branch's scores sit in the same range as the lexical and token
// branches before fusion.
func normalizeCosine(cos float64) float64 {
	return (cos + 1) / 2
}

// fuse combines branch score maps with weights, renormalizing when a
// branch is absent (nil map).
func fuse(b branchResult, w Weights) (map[string]float64, float64) {
	var activeWeight float64
	combined := map[string]float64{}

	apply := func(scores map[string]float64, weight float64) {
		if scores == nil {
			return
		}
		activeWeight += weight
		for id, s := range scores {
			combined[id] += s * weight
		}
	}

	apply(b.lexical, w.Lexical)
	apply(b.vector, w.Vector)
	apply(b.token, w.Token)

	return combined, activeWeight
}

func (r *Retriever) fetchObjects(ids []string) ([]*store.MemoryObject, error) {
	var out []*store.MemoryObject
	for _, id := range ids {
		obj, err := r.objects.Get(id)
		if err != nil {
			if errs.KindOf(err) == errs.NotFound {
				continue
			}
			return nil, err
		}
		if obj.Status != store.StatusActive {
			continue
		}
		out = append(out, obj)
	}
	return out, nil
}

// filterObjects narrows candidates by the caller's ObjectFilter. fetchObjects
// already excludes non-active objects; this only re-applies a Status filter
// when the caller asked for something other than active, which yields an
// empty result (matching fetchObjects' own active-only invariant) rather
// than silently ignoring the request.
func filterObjects(objs []*store.MemoryObject, filter store.ObjectFilter) []*store.MemoryObject {
	if filter.Status == "" && filter.ObjectType == "" && filter.ScopeType == "" && filter.ScopePath == "" {
		return objs
	}
	out := make([]*store.MemoryObject, 0, len(objs))
	for _, obj := range objs {
		if filter.Status != "" && obj.Status != filter.Status {
			continue
		}
		if filter.ObjectType != "" && obj.ObjectType != filter.ObjectType {
			continue
		}
		if filter.ScopeType != "" && obj.Scope.Type != filter.ScopeType {
			continue
		}
		if filter.ScopePath != "" && obj.Scope.Path != filter.ScopePath {
			continue
		}
		out = append(out, obj)
	}
	return out
}

func lastAccessedOrCreated(obj *store.MemoryObject) time.Time {
	if !obj.LastAccessed.IsZero() {
		return obj.LastAccessed
	}
	return obj.CreatedAt
}

var multiHopCues = []string{"all", "every", "how many", "list", "across sessions", "both"}

// needsDiversification reports whether query signals multi-hop or counting
// intent, in which case results are spread across sessions rather than
// letting one session dominate.
func needsDiversification(query string) bool {
	q := strings.ToLower(query)
	for _, cue := range multiHopCues {
		if strings.Contains(q, cue) {
			return true
		}
	}
	return false
}

// diversifyBySession reorders scored so the top result from each session
// comes first, then the remaining tail in original score order.
func diversifyBySession(events *store.Events, scored []Scored) []Scored {
	seen := map[string]bool{}
	var head, tail []Scored
	for _, s := range scored {
		sid := sessionOf(events, s.Object)
		if sid != "" && !seen[sid] {
			seen[sid] = true
			head = append(head, s)
		} else {
			tail = append(tail, s)
		}
	}
	return append(head, tail...)
}

// sessionOf derives a session affinity from the session of the first
// evidence event; memory objects are not themselves scoped to a session, so
// this is best-effort and returns "" when no evidence exists or the event
// cannot be read.
func sessionOf(events *store.Events, obj *store.MemoryObject) string {
	if len(obj.EvidenceEventIDs) == 0 {
		return ""
	}
	ev, err := events.Get(obj.EvidenceEventIDs[0])
	if err != nil {
		return ""
	}
	return ev.SessionID
}

// reinforce bumps access_count, last_accessed, strength, and
// last_reinforced_at for each returned object, in the order objects were
// returned.
func (r *Retriever) reinforce(scored []Scored) error {
	for _, s := range scored {
		newStrength := decay.Reinforce(s.Object.Strength, decay.DefaultBoost)
		if err := r.objects.Reinforce(s.Object.ID, newStrength, nil); err != nil {
			return err
		}
	}
	return nil
}
