// Package engine wires the storage, retrieval, curation, and disclosure
// components into a single programmatic API: session start/end, ingest,
// checkpoint, search, pack, disclose.check, add/verify/retire/supersede,
// and stats.
package engine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentmem/agentmem/internal/curator"
	"github.com/agentmem/agentmem/internal/decay"
	"github.com/agentmem/agentmem/internal/disclosure"
	"github.com/agentmem/agentmem/internal/embedder"
	"github.com/agentmem/agentmem/internal/errs"
	"github.com/agentmem/agentmem/internal/logging"
	"github.com/agentmem/agentmem/internal/normalize"
	"github.com/agentmem/agentmem/internal/retriever"
	"github.com/agentmem/agentmem/internal/session"
	"github.com/agentmem/agentmem/internal/store"
	"github.com/agentmem/agentmem/internal/tokenindex"
	"github.com/agentmem/agentmem/internal/vectorindex"
	"github.com/agentmem/agentmem/pkg/config"
)

var log = logging.GetLogger("engine")

// Engine is the facade over the Storage Kernel and the thirteen components
// built on top of it.
type Engine struct {
	cfg *config.Config
	db  *store.DB

	events   *store.Events
	objects  *store.Objects
	sessions *session.Manager

	tokens     *tokenindex.Indexer
	vector     vectorindex.Index // nil when no vector backend is configured
	embed      embedder.Embedder // nil when the embedder is disabled
	retriever  *retriever.Retriever
	discloser  *disclosure.Discloser
	curator    *curator.Curator
	curatorCfg curator.Config

	buffersMu sync.Mutex
	buffers   map[string]*curator.Buffer

	blobRoot string

	ingestQueue chan ingestJob
	workerDone  chan struct{}
	closeOnce   sync.Once
}

// New opens the memory root named by cfg.Database.Path and wires every
// component according to cfg.
func New(cfg *config.Config) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.EnsureConfigDir(); err != nil {
		return nil, errs.E("engine.New", errs.Storage, err)
	}

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	var vec vectorindex.Index
	var emb embedder.Embedder
	if cfg.Embedder.Enabled {
		switch cfg.VectorIdx.Backend {
		case "qdrant":
			vec = vectorindex.NewQdrantIndex(cfg.VectorIdx.URL, cfg.Embedder.Dimension)
		default:
			vec = vectorindex.NewSQLiteIndex(db, cfg.Embedder.Dimension)
		}
		emb = embedder.NewOllamaEmbedder(embedder.OllamaConfig{
			BaseURL: cfg.Embedder.BaseURL,
			Model:   cfg.Embedder.EmbeddingModel,
			Dim:     cfg.Embedder.Dimension,
		})
	}

	curatorCfg := curator.Config{
		MinEvents:           cfg.Engine.AutoCheckpointThreshold,
		ToolBurstCount:      float64(cfg.Engine.ToolBurstCount),
		ToolBurstWindow:     time.Duration(cfg.Engine.ToolBurstWindowSeconds) * time.Second,
		ErrorBurstThreshold: cfg.Engine.ErrorBurstThreshold,
	}

	e := &Engine{
		cfg:         cfg,
		db:          db,
		events:      store.NewEvents(db),
		objects:     store.NewObjects(db),
		sessions:    session.NewManager(db, session.NewDetector(session.Strategy(cfg.Session.Strategy))),
		tokens:      tokenindex.New(db),
		vector:      vec,
		embed:       emb,
		retriever:   retriever.New(db, vec, retrieverEmbedder(emb)),
		curator:     curator.New(db),
		curatorCfg:  curatorCfg,
		buffers:     map[string]*curator.Buffer{},
		blobRoot:    filepath.Join(filepath.Dir(cfg.Database.Path), "blobs"),
		ingestQueue: make(chan ingestJob, 256),
		workerDone:  make(chan struct{}),
	}
	e.discloser = disclosure.New(db, e.retriever)

	go e.runIngestWorker()

	return e, nil
}

// retrieverEmbedder adapts a possibly-nil embedder.Embedder to the
// possibly-nil retriever.Embedder interface without leaking a typed-nil
// interface value (a typed nil *OllamaEmbedder stored in an interface
// variable is not itself nil, which would wrongly enable the vector
// branch).
func retrieverEmbedder(e embedder.Embedder) retriever.Embedder {
	if e == nil {
		return nil
	}
	return e
}

// Close shuts down the ingest worker (draining whatever is already queued)
// and releases the database.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		close(e.ingestQueue)
	})
	<-e.workerDone
	return e.db.Close()
}

// CloseContext is Close but returns errs.Cancelled if ctx expires before the
// ingest worker finishes draining its queue.
func (e *Engine) CloseContext(ctx context.Context) error {
	e.closeOnce.Do(func() {
		close(e.ingestQueue)
	})
	select {
	case <-e.workerDone:
		return e.db.Close()
	case <-ctx.Done():
		return errs.E("engine.CloseContext", errs.Cancelled, ctx.Err())
	}
}

// SessionStart begins a session, detecting its id unless overrideID is set,
// and primes an in-memory curator Buffer for it.
func (e *Engine) SessionStart(overrideID, workingDirectory string) (*store.Session, error) {
	sess, err := e.sessions.Start(overrideID, workingDirectory)
	if err != nil {
		return nil, err
	}
	e.buffersMu.Lock()
	e.buffers[sess.ID] = curator.NewBuffer(sess.ID, e.curatorCfg)
	e.buffersMu.Unlock()
	return sess, nil
}

// SessionEnd closes a session and forgets its buffer.
func (e *Engine) SessionEnd(id string) error {
	e.buffersMu.Lock()
	delete(e.buffers, id)
	e.buffersMu.Unlock()
	return e.sessions.End(id)
}

func (e *Engine) bufferFor(sessionID string) *curator.Buffer {
	e.buffersMu.Lock()
	defer e.buffersMu.Unlock()
	buf, ok := e.buffers[sessionID]
	if !ok {
		buf = curator.NewBuffer(sessionID, e.curatorCfg)
		e.buffers[sessionID] = buf
	}
	return buf
}

// IngestRequest carries one raw event for the Event Store.
type IngestRequest struct {
	SessionID     string
	Content       string
	Type          store.EventType
	ToolName      string
	FilePath      string
	ExitCode      *int
	SkipEmbedding bool
}

// IngestResult reports the stored event id and, if an auto-trigger fired,
// the checkpoint it ran.
type IngestResult struct {
	EventID    string
	Trigger    curator.Trigger
	Checkpoint *curator.Result
}

// Ingest normalizes and appends one event, then evaluates the session's
// curator buffer for an auto-trigger. A fired trigger runs the checkpoint
// synchronously in non-interactive mode, matching the CLI/daemon's
// fire-and-forget ingestion path once queued through IngestAsync.
func (e *Engine) Ingest(req IngestRequest) (IngestResult, error) {
	if req.SessionID == "" {
		return IngestResult{}, errs.E("engine.Ingest", errs.InvalidInput, fmt.Errorf("session_id is required"))
	}

	norm := normalize.NormalizeEvent(req.Content, string(req.Type), normalize.Meta{ExitCode: req.ExitCode}, e.cfg.Engine.InlineBlobLimitBytes)

	ev := &store.Event{
		SessionID: req.SessionID,
		EventType: req.Type,
		ToolName:  req.ToolName,
		FilePath:  req.FilePath,
		ExitCode:  req.ExitCode,
	}

	if norm.ShouldBlob {
		blobID, err := e.writeBlob(req.Content)
		if err != nil {
			return IngestResult{}, err
		}
		ev.BlobID = blobID
		ev.Content = norm.Synopsis
	} else {
		ev.Content = req.Content
	}
	ev.ContentHash = norm.ContentHash
	ev.TokenCount = norm.Signals.ByteCount / 4

	stored, err := e.events.Append(ev)
	if err != nil {
		return IngestResult{}, err
	}

	result := IngestResult{EventID: stored.ID}

	if req.ExitCode != nil && *req.ExitCode != 0 {
		_ = e.sessions.RecordError(req.SessionID)
	}

	buf := e.bufferFor(req.SessionID)
	trigger, fired := buf.AddEvent(stored)
	if !fired {
		return result, nil
	}
	result.Trigger = trigger

	cpRes, err := e.runCheckpoint(buf, trigger, req.SkipEmbedding)
	if err != nil {
		return result, err
	}
	result.Checkpoint = &cpRes
	return result, nil
}

// writeBlob persists content under the memory root's blobs directory,
// keyed by its content hash so repeated oversized content dedups for free.
func (e *Engine) writeBlob(content string) (string, error) {
	if err := os.MkdirAll(e.blobRoot, 0755); err != nil {
		return "", errs.E("engine.writeBlob", errs.Storage, err)
	}
	sum := sha256.Sum256([]byte(content))
	id := hex.EncodeToString(sum[:])
	path := filepath.Join(e.blobRoot, id)
	if _, err := os.Stat(path); err == nil {
		return id, nil
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", errs.E("engine.writeBlob", errs.Storage, err)
	}
	return id, nil
}

// ReadBlob returns the content stored under blobID.
func (e *Engine) ReadBlob(blobID string) (string, error) {
	b, err := os.ReadFile(filepath.Join(e.blobRoot, blobID))
	if err != nil {
		return "", errs.E("engine.ReadBlob", errs.NotFound, err)
	}
	return string(b), nil
}

// Checkpoint runs a manual (or daemon-driven) checkpoint for sessionID,
// regardless of whether an auto-trigger has fired.
func (e *Engine) Checkpoint(sessionID string, skipEmbedding bool) (curator.Result, error) {
	buf := e.bufferFor(sessionID)
	res, err := e.runCheckpoint(buf, curator.TriggerManual, skipEmbedding)
	if err != nil {
		return res, err
	}
	if err := e.events.ResetCheckpointCounter(sessionID); err != nil {
		log.Warn("checkpoint counter not reset", "session_id", sessionID, "error", err)
	}
	return res, nil
}

// runCheckpoint executes the curator's Tier-0 pass in non-interactive mode
// (ask_user findings are held, not surfaced for interactive resolution —
// the programmatic API has no synchronous human-in-the-loop channel) and
// embeds whatever new objects it created, unless skipEmbedding is set.
func (e *Engine) runCheckpoint(buf *curator.Buffer, trigger curator.Trigger, skipEmbedding bool) (curator.Result, error) {
	before, err := e.objects.List(store.ObjectFilter{Status: store.StatusActive})
	if err != nil {
		return curator.Result{}, err
	}
	beforeIDs := map[string]bool{}
	for _, o := range before {
		beforeIDs[o.ID] = true
	}

	res, err := e.curator.Execute(buf, trigger, false)
	if err != nil {
		return res, err
	}

	if skipEmbedding || res.MemoriesCreated == 0 {
		return res, nil
	}

	after, err := e.objects.List(store.ObjectFilter{Status: store.StatusActive})
	if err != nil {
		return res, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), retriever.BranchTimeout)
	defer cancel()
	for _, o := range after {
		if beforeIDs[o.ID] {
			continue
		}
		e.indexTokensAndVector(ctx, o)
	}
	return res, nil
}

func (e *Engine) indexTokensAndVector(ctx context.Context, obj *store.MemoryObject) {
	if err := e.tokens.IndexObject(obj.ID, obj.Content); err != nil {
		log.Warn("token index failed", "object_id", obj.ID, "error", err)
	}
	if e.embed == nil || e.vector == nil {
		return
	}
	vec, err := e.embed.Embed(ctx, obj.Content)
	if err != nil {
		log.Warn("embedding degraded, vector branch skipped for object", "object_id", obj.ID, "error", err)
		return
	}
	if err := e.vector.IndexObject(ctx, obj.ID, vec); err != nil {
		log.Warn("vector index failed", "object_id", obj.ID, "error", err)
	}
}

// Search runs the Retriever's hybrid fan-out.
func (e *Engine) Search(ctx context.Context, sessionID, query string, filters store.ObjectFilter, limit int, skipReinforcement bool) ([]retriever.Scored, error) {
	return e.retriever.Search(ctx, query, retriever.Options{
		SessionID:         sessionID,
		Filters:           filters,
		Limit:             limit,
		SkipReinforcement: skipReinforcement,
	})
}

// Pack builds a disclosure Pack for req, excluding objects already injected
// into sessionID this session, and records the newly-disclosed ids.
func (e *Engine) Pack(ctx context.Context, sessionID string, req disclosure.Request) (disclosure.Pack, error) {
	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		return disclosure.Pack{}, err
	}

	pack, err := e.discloser.GetContext(ctx, req)
	if err != nil {
		return pack, err
	}

	var newIDs []string
	filtered := make([]*store.MemoryObject, 0, len(pack.Objects))
	injected := map[string]bool{}
	for _, id := range sess.InjectedMemoryIDs {
		injected[id] = true
	}
	tokensUsed := 0
	for _, o := range pack.Objects {
		if injected[o.ID] {
			continue
		}
		filtered = append(filtered, o)
		newIDs = append(newIDs, o.ID)
		tokensUsed += len(o.Content) / 4
	}
	pack.Objects = filtered
	pack.TokensUsed = tokensUsed

	if len(newIDs) > 0 {
		if err := e.sessions.MarkInjected(sessionID, newIDs); err != nil {
			log.Warn("failed to record injected ids", "session_id", sessionID, "error", err)
		}
	}
	return pack, nil
}

// DiscloseCheck evaluates whether the current turn should escalate the
// disclosure level.
func (e *Engine) DiscloseCheck(turnText, sessionID, workingDir string) (disclosure.Signal, store.DisclosureLevel, bool, error) {
	sess, err := e.sessions.Get(sessionID)
	if err != nil {
		return "", "", false, err
	}
	signal, level, needed := disclosure.EvaluateEscalation(turnText, sess, workingDir)
	return signal, level, needed, nil
}

// Add creates a memory object directly (not via the curator), indexing its
// tokens, lexical FTS row, and vector embedding.
func (e *Engine) Add(obj *store.MemoryObject) (*store.MemoryObject, error) {
	toks := tokenindex.Extract(obj.Content)
	values := make([]string, len(toks))
	for i, t := range toks {
		values[i] = t.Value
	}
	created, err := e.objects.Create(obj, values)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), retriever.BranchTimeout)
	defer cancel()
	e.indexVectorOnly(ctx, created)
	return created, nil
}

func (e *Engine) indexVectorOnly(ctx context.Context, obj *store.MemoryObject) {
	if e.embed == nil || e.vector == nil {
		return
	}
	vec, err := e.embed.Embed(ctx, obj.Content)
	if err != nil {
		log.Warn("embedding degraded, vector branch skipped for object", "object_id", obj.ID, "error", err)
		return
	}
	if err := e.vector.IndexObject(ctx, obj.ID, vec); err != nil {
		log.Warn("vector index failed", "object_id", obj.ID, "error", err)
	}
}

// Verify approves an object and bumps its last_verified_at; the confidence
// tier is recomputed in the same update.
func (e *Engine) Verify(id string) (*store.MemoryObject, error) {
	return e.objects.Verify(id)
}

// Retire marks an object retired, excluding it from retrieval.
func (e *Engine) Retire(id string) error {
	return e.objects.Retire(id)
}

// Supersede creates a successor object and links it to oldID.
func (e *Engine) Supersede(oldID string, next *store.MemoryObject) (*store.MemoryObject, error) {
	toks := tokenindex.Extract(next.Content)
	values := make([]string, len(toks))
	for i, t := range toks {
		values[i] = t.Value
	}
	created, err := e.objects.Supersede(oldID, next, values)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), retriever.BranchTimeout)
	defer cancel()
	e.indexVectorOnly(ctx, created)
	return created, nil
}

// Stats returns storage statistics for the `stats` operation.
func (e *Engine) Stats() (*store.Stats, error) {
	return e.db.GetStats()
}

// ContextUsage reports the context-window percentage for totalTokens and
// whether the caller should checkpoint-and-clear.
type ContextUsage struct {
	Percent        float64
	Recommendation string
}

// EvaluateContextUsage implements S6: percentage = total/budget*100, and
// recommends checkpoint_and_clear once it crosses ContextThresholdPercent.
func (e *Engine) EvaluateContextUsage(totalTokens int) ContextUsage {
	budget := e.cfg.Engine.ContextTokenBudget
	if budget <= 0 {
		budget = 200000
	}
	percent := float64(totalTokens) / float64(budget) * 100
	rec := "continue"
	if percent >= float64(e.cfg.Engine.ContextThresholdPercent) {
		rec = "checkpoint_and_clear"
	}
	return ContextUsage{Percent: percent, Recommendation: rec}
}

// Heatmap returns the n most-accessed active memory objects.
func (e *Engine) Heatmap(n int) ([]*store.MemoryObject, error) {
	return e.sessions.Heatmap(n)
}

// DecayAll recomputes and persists strength for every active object whose
// decay has not been applied since last_accessed, archiving (retiring) any
// that fall below the archivable threshold. It is meant to run on a
// schedule (the daemon host driver), not on the hot ingest path.
func (e *Engine) DecayAll() (archived int, err error) {
	active, err := e.objects.List(store.ObjectFilter{Status: store.StatusActive})
	if err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	for _, o := range active {
		deltaDays := now.Sub(lastAccessedOrCreated(o)).Hours() / 24
		newStrength := decay.DecayedStrength(o.Strength, deltaDays, e.cfg.Engine.DecayRate, e.cfg.Engine.DecayFloor)
		if decay.IsArchivable(newStrength, e.cfg.Engine.ArchivableThreshold) {
			if err := e.objects.Retire(o.ID); err != nil {
				return archived, err
			}
			archived++
			continue
		}
		strength := newStrength
		if _, err := e.objects.Update(o.ID, store.ObjectPatch{Strength: &strength}); err != nil {
			return archived, err
		}
	}
	return archived, nil
}

func lastAccessedOrCreated(obj *store.MemoryObject) time.Time {
	if !obj.LastAccessed.IsZero() {
		return obj.LastAccessed
	}
	return obj.CreatedAt
}

type ingestJob struct {
	req IngestRequest
}

// IngestAsync queues req for fire-and-forget ingestion and returns
// immediately with a receipt id. The bounded queue rejects (returning a
// Storage error) rather than blocking the caller when full, matching the
// "submit returns immediately" contract; a full queue signals backpressure
// the caller should surface, not silently swallow.
func (e *Engine) IngestAsync(req IngestRequest) (string, error) {
	receipt := uuid.NewString()
	select {
	case e.ingestQueue <- ingestJob{req: req}:
		return receipt, nil
	default:
		return "", errs.E("engine.IngestAsync", errs.Storage, fmt.Errorf("ingest queue is full"))
	}
}

func (e *Engine) runIngestWorker() {
	defer close(e.workerDone)
	for job := range e.ingestQueue {
		if _, err := e.Ingest(job.req); err != nil {
			log.Warn("async ingest failed", "session_id", job.req.SessionID, "error", err)
		}
	}
}
