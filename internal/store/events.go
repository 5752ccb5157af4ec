package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentmem/agentmem/internal/errs"
	"github.com/agentmem/agentmem/internal/normalize"
)

// Events is the Event Store: an append-only journal with explicit FTS sync.
type Events struct {
	db *DB
}

// NewEvents wraps db with Event Store operations.
func NewEvents(db *DB) *Events { return &Events{db: db} }

// Append assigns an id/timestamp if absent, computes content_hash if
// missing, inserts the row and its FTS shadow in one transaction.
// A duplicate content_hash within the same session is discarded silently
// and the prior id is returned.
func (e *Events) Append(ev *Event) (*Event, error) {
	if ev.SessionID == "" {
		return nil, errs.E("store.Events.Append", errs.InvalidInput, fmt.Errorf("session_id is required"))
	}
	if !IsValidEventType(ev.EventType) {
		return nil, errs.E("store.Events.Append", errs.InvalidInput, fmt.Errorf("unknown event_type %q", ev.EventType))
	}

	out := *ev
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	if out.Timestamp.IsZero() {
		out.Timestamp = time.Now().UTC()
	}
	if out.ContentHash == "" {
		out.ContentHash = normalize.ContentHash(out.Content)
	}

	tx, err := e.db.Begin()
	if err != nil {
		return nil, errs.E("store.Events.Append", errs.Storage, err)
	}
	defer tx.Rollback()

	var existingID string
	err = tx.QueryRow(`SELECT id FROM events WHERE session_id = ? AND content_hash = ?`, out.SessionID, out.ContentHash).Scan(&existingID)
	if err == nil {
		_ = tx.Rollback()
		return e.Get(existingID)
	}
	if err != sql.ErrNoRows {
		return nil, errs.E("store.Events.Append", errs.Storage, err)
	}

	_, err = tx.Exec(`
		INSERT INTO events (id, session_id, timestamp, event_type, content, blob_id, tool_name, file_path, exit_code, content_hash, token_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, out.ID, out.SessionID, out.Timestamp, string(out.EventType), nullableString(out.Content), nullableString(out.BlobID),
		nullableString(out.ToolName), nullableString(out.FilePath), nullableInt(out.ExitCode), out.ContentHash, out.TokenCount)
	if err != nil {
		return nil, errs.E("store.Events.Append", errs.Storage, err)
	}

	if _, err := tx.Exec(`INSERT INTO events_fts (id, content, tool_name, file_path) VALUES (?, ?, ?, ?)`,
		out.ID, out.Content, out.ToolName, out.FilePath); err != nil {
		log.Warn("events_fts insert failed", "error", err)
	}

	if _, err := tx.Exec(`UPDATE sessions SET events_count = events_count + 1, events_since_checkpoint = events_since_checkpoint + 1 WHERE id = ?`, out.SessionID); err != nil {
		log.Debug("session counters not updated", "error", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, errs.E("store.Events.Append", errs.Storage, err)
	}

	return &out, nil
}

// Get fetches an event by id.
func (e *Events) Get(id string) (*Event, error) {
	row := e.db.sql.QueryRow(`
		SELECT id, session_id, timestamp, event_type, content, blob_id, tool_name, file_path, exit_code, content_hash, token_count
		FROM events WHERE id = ?
	`, id)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, errs.E("store.Events.Get", errs.NotFound, fmt.Errorf("event %s not found", id))
	}
	if err != nil {
		return nil, errs.E("store.Events.Get", errs.Storage, err)
	}
	return ev, nil
}

// List returns events for a session, optionally since a timestamp, newest
// last (append order), capped at limit.
func (e *Events) List(sessionID string, since *time.Time, limit int) ([]*Event, error) {
	query := `
		SELECT id, session_id, timestamp, event_type, content, blob_id, tool_name, file_path, exit_code, content_hash, token_count
		FROM events WHERE session_id = ?`
	args := []interface{}{sessionID}

	if since != nil {
		query += " AND timestamp > ?"
		args = append(args, *since)
	}
	query += " ORDER BY timestamp ASC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := e.db.sql.Query(query, args...)
	if err != nil {
		return nil, errs.E("store.Events.List", errs.Storage, err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		ev, err := scanEventRows(rows)
		if err != nil {
			return nil, errs.E("store.Events.List", errs.Storage, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

// SinceCheckpoint returns events appended to sessionID since its last
// checkpoint, i.e. the curator's buffer contents if reconstructed from
// durable storage.
func (e *Events) SinceCheckpoint(sessionID string) ([]*Event, error) {
	var lastCheckpoint sql.NullTime
	// sessions table has no explicit "last checkpoint at" column; the
	// curator tracks the buffer in memory and this is a durable fallback
	// that returns everything, bounded by events_since_checkpoint.
	var eventsSince int
	if err := e.db.sql.QueryRow(`SELECT events_since_checkpoint FROM sessions WHERE id = ?`, sessionID).Scan(&eventsSince); err != nil {
		if err == sql.ErrNoRows {
			return nil, errs.E("store.Events.SinceCheckpoint", errs.NotFound, fmt.Errorf("session %s not found", sessionID))
		}
		return nil, errs.E("store.Events.SinceCheckpoint", errs.Storage, err)
	}
	_ = lastCheckpoint

	all, err := e.List(sessionID, nil, 0)
	if err != nil {
		return nil, err
	}
	if eventsSince <= 0 || eventsSince >= len(all) {
		return all, nil
	}
	return all[len(all)-eventsSince:], nil
}

// ResetCheckpointCounter zeroes events_since_checkpoint, called by the
// curator after a successful execute().
func (e *Events) ResetCheckpointCounter(sessionID string) error {
	_, err := e.db.sql.Exec(`UPDATE sessions SET events_since_checkpoint = 0 WHERE id = ?`, sessionID)
	if err != nil {
		return errs.E("store.Events.ResetCheckpointCounter", errs.Storage, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEvent(row rowScanner) (*Event, error) { return scanEventRows(row) }

func scanEventRows(row rowScanner) (*Event, error) {
	var ev Event
	var eventType string
	var content, blobID, toolName, filePath sql.NullString
	var exitCode sql.NullInt64

	err := row.Scan(&ev.ID, &ev.SessionID, &ev.Timestamp, &eventType, &content, &blobID, &toolName, &filePath, &exitCode, &ev.ContentHash, &ev.TokenCount)
	if err != nil {
		return nil, err
	}

	ev.EventType = EventType(eventType)
	ev.Content = content.String
	ev.BlobID = blobID.String
	ev.ToolName = toolName.String
	ev.FilePath = filePath.String
	if exitCode.Valid {
		v := int(exitCode.Int64)
		ev.ExitCode = &v
	}
	return &ev, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}
