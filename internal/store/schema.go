package store

// SchemaVersion is the current schema version.
const SchemaVersion = 1

// CoreSchema contains the relational table definitions for the memory root.
// Tables: events, memory_objects, object_tokens, sessions, vectors,
// schema_version — exactly the persistent state layout the engine promises
// callers.
//
// Virtual FTS tables are created separately (FTSSchema, below) and kept in
// sync by explicit application writes, never by triggers: the writer must
// control ordering and partial-failure semantics across the owning row and
// its FTS shadow, which a trigger-based sync cannot express.
const CoreSchema = `
PRAGMA foreign_keys = ON;

CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER PRIMARY KEY,
	applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- =============================================================================
-- EVENTS: append-only journal
-- =============================================================================
CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	session_id TEXT NOT NULL,
	timestamp DATETIME NOT NULL,
	event_type TEXT NOT NULL CHECK (
		event_type IN ('turn', 'tool_call', 'tool_output', 'error', 'diff', 'test_summary')
	),
	content TEXT,
	blob_id TEXT,
	tool_name TEXT,
	file_path TEXT,
	exit_code INTEGER,
	content_hash TEXT NOT NULL,
	token_count INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_events_session_id ON events(session_id);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
CREATE INDEX IF NOT EXISTS idx_events_event_type ON events(event_type);
CREATE UNIQUE INDEX IF NOT EXISTS idx_events_session_hash ON events(session_id, content_hash);

-- =============================================================================
-- MEMORY OBJECTS: typed, mutable, never hard-deleted
-- =============================================================================
CREATE TABLE IF NOT EXISTS memory_objects (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	object_type TEXT NOT NULL CHECK (
		object_type IN ('constraint', 'decision', 'convention', 'preference', 'environment', 'fact')
	),
	scope_type TEXT NOT NULL DEFAULT 'project' CHECK (scope_type IN ('project', 'global', 'path')),
	scope_path TEXT,
	status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'retired', 'superseded')),
	confidence TEXT NOT NULL DEFAULT 'medium' CHECK (confidence IN ('low', 'medium', 'high')),
	confidence_tier TEXT NOT NULL DEFAULT 'hypothesis' CHECK (
		confidence_tier IN ('hypothesis', 'inferred', 'observed', 'grounded')
	),
	supersedes TEXT DEFAULT '[]',       -- JSON array of object ids
	superseded_by TEXT,
	evidence_event_ids TEXT DEFAULT '[]', -- JSON array of event ids
	evidence_excerpt TEXT,
	code_refs TEXT DEFAULT '[]',        -- JSON array of {path, line}
	review_status TEXT NOT NULL DEFAULT 'pending' CHECK (review_status IN ('pending', 'approved', 'rejected')),
	reviewed_at DATETIME,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	last_accessed DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	access_count INTEGER NOT NULL DEFAULT 0,
	strength REAL NOT NULL DEFAULT 1.0 CHECK (strength >= 0.0 AND strength <= 1.0),
	last_reinforced_at DATETIME,
	outcome_score REAL NOT NULL DEFAULT 0.5 CHECK (outcome_score >= 0.0 AND outcome_score <= 1.0),
	last_verified_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_objects_status ON memory_objects(status);
CREATE INDEX IF NOT EXISTS idx_objects_type ON memory_objects(object_type);
CREATE INDEX IF NOT EXISTS idx_objects_strength ON memory_objects(strength);
CREATE INDEX IF NOT EXISTS idx_objects_last_accessed ON memory_objects(last_accessed);
CREATE INDEX IF NOT EXISTS idx_objects_superseded_by ON memory_objects(superseded_by);

-- =============================================================================
-- OBJECT TOKENS: inverted list of code-like identifiers
-- =============================================================================
CREATE TABLE IF NOT EXISTS object_tokens (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	object_id TEXT NOT NULL,
	token TEXT NOT NULL,
	type TEXT NOT NULL,
	FOREIGN KEY (object_id) REFERENCES memory_objects(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_object_tokens_object ON object_tokens(object_id);
CREATE INDEX IF NOT EXISTS idx_object_tokens_token ON object_tokens(token);

-- =============================================================================
-- VECTORS: dense embedding store, default flat-scan backend
-- =============================================================================
CREATE TABLE IF NOT EXISTS vectors (
	object_id TEXT PRIMARY KEY,
	embedding BLOB NOT NULL,
	dim INT NOT NULL,
	FOREIGN KEY (object_id) REFERENCES memory_objects(id) ON DELETE CASCADE
);

-- =============================================================================
-- SESSIONS
-- =============================================================================
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	started_at DATETIME NOT NULL,
	ended_at DATETIME,
	working_directory TEXT,
	events_count INTEGER NOT NULL DEFAULT 0,
	objects_created INTEGER NOT NULL DEFAULT 0,
	events_since_checkpoint INTEGER NOT NULL DEFAULT 0,
	error_count INTEGER NOT NULL DEFAULT 0,
	injected_memory_ids TEXT DEFAULT '[]',
	disclosure_level TEXT NOT NULL DEFAULT 'minimal' CHECK (disclosure_level IN ('minimal', 'task', 'deep')),
	last_topic TEXT,
	last_disclosure_at DATETIME
);
`

// FTSSchema declares the virtual full-text tables. No triggers: rows are
// inserted/updated by the same transaction that writes the owning row, in
// internal/store/events.go and objects.go. FTS rows are not deleted.
const FTSSchema = `
CREATE VIRTUAL TABLE IF NOT EXISTS events_fts USING fts5(
	id UNINDEXED,
	content,
	tool_name,
	file_path
);

CREATE VIRTUAL TABLE IF NOT EXISTS memory_objects_fts USING fts5(
	id UNINDEXED,
	content,
	evidence_excerpt
);
`
