package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agentmem/agentmem/internal/errs"
)

// Sessions persists Session rows: one per agent working session.
type Sessions struct {
	db *DB
}

// NewSessions wraps db with session persistence operations.
func NewSessions(db *DB) *Sessions { return &Sessions{db: db} }

// Start inserts a new session row, defaulting StartedAt and
// DisclosureLevel if unset.
func (s *Sessions) Start(sess *Session) (*Session, error) {
	if sess.ID == "" {
		return nil, errs.E("store.Sessions.Start", errs.InvalidInput, fmt.Errorf("session id is required"))
	}

	out := *sess
	if out.StartedAt.IsZero() {
		out.StartedAt = time.Now().UTC()
	}
	if out.DisclosureLevel == "" {
		out.DisclosureLevel = DisclosureMinimal
	}

	_, err := s.db.sql.Exec(`
		INSERT INTO sessions (
			id, started_at, ended_at, working_directory, events_count,
			objects_created, events_since_checkpoint, error_count,
			injected_memory_ids, disclosure_level, last_topic, last_disclosure_at
		) VALUES (?, ?, NULL, ?, 0, 0, 0, 0, ?, ?, ?, NULL)
	`, out.ID, out.StartedAt, out.WorkingDirectory, mustJSON(out.InjectedMemoryIDs), string(out.DisclosureLevel), out.LastTopic)
	if err != nil {
		return nil, errs.E("store.Sessions.Start", errs.Storage, err)
	}

	return &out, nil
}

// End marks a session ended.
func (s *Sessions) End(id string) error {
	now := time.Now().UTC()
	res, err := s.db.sql.Exec(`UPDATE sessions SET ended_at = ? WHERE id = ?`, now, id)
	if err != nil {
		return errs.E("store.Sessions.End", errs.Storage, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errs.E("store.Sessions.End", errs.NotFound, fmt.Errorf("session %s not found", id))
	}
	return nil
}

// Get fetches a session by id.
func (s *Sessions) Get(id string) (*Session, error) {
	row := s.db.sql.QueryRow(sessionSelectQuery+" WHERE id = ?", id)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, errs.E("store.Sessions.Get", errs.NotFound, fmt.Errorf("session %s not found", id))
	}
	if err != nil {
		return nil, errs.E("store.Sessions.Get", errs.Storage, err)
	}
	return sess, nil
}

// ListActive returns sessions with no ended_at, most recently started first.
func (s *Sessions) ListActive() ([]*Session, error) {
	rows, err := s.db.sql.Query(sessionSelectQuery + " WHERE ended_at IS NULL ORDER BY started_at DESC")
	if err != nil {
		return nil, errs.E("store.Sessions.ListActive", errs.Storage, err)
	}
	defer rows.Close()

	var out []*Session
	for rows.Next() {
		sess, err := scanSessionRows(rows)
		if err != nil {
			return nil, errs.E("store.Sessions.ListActive", errs.Storage, err)
		}
		out = append(out, sess)
	}
	return out, nil
}

// RecordError increments error_count, read by Progressive Disclosure's
// error_burst escalation signal.
func (s *Sessions) RecordError(id string) error {
	_, err := s.db.sql.Exec(`UPDATE sessions SET error_count = error_count + 1 WHERE id = ?`, id)
	if err != nil {
		return errs.E("store.Sessions.RecordError", errs.Storage, err)
	}
	return nil
}

// RecordObjectCreated increments objects_created. Nothing in this module
// calls it; the curator does not update the counter.
func (s *Sessions) RecordObjectCreated(id string) error {
	_, err := s.db.sql.Exec(`UPDATE sessions SET objects_created = objects_created + 1 WHERE id = ?`, id)
	if err != nil {
		return errs.E("store.Sessions.RecordObjectCreated", errs.Storage, err)
	}
	return nil
}

// SetDisclosure updates the session's current disclosure level, last topic,
// and injected-memory-id set, called by the Progressive Disclosure and
// Session/Heatmap components.
func (s *Sessions) SetDisclosure(id string, level DisclosureLevel, lastTopic string, injectedIDs []string) error {
	now := time.Now().UTC()
	_, err := s.db.sql.Exec(`
		UPDATE sessions SET disclosure_level = ?, last_topic = ?, last_disclosure_at = ?, injected_memory_ids = ?
		WHERE id = ?
	`, string(level), lastTopic, now, mustJSON(injectedIDs), id)
	if err != nil {
		return errs.E("store.Sessions.SetDisclosure", errs.Storage, err)
	}
	return nil
}

const sessionSelectQuery = `
	SELECT id, started_at, ended_at, working_directory, events_count,
		objects_created, events_since_checkpoint, error_count,
		injected_memory_ids, disclosure_level, last_topic, last_disclosure_at
	FROM sessions`

func scanSession(row rowScanner) (*Session, error) { return scanSessionRows(row) }

func scanSessionRows(row rowScanner) (*Session, error) {
	var sess Session
	var endedAt, lastDisclosureAt sql.NullTime
	var disclosureLevel string
	var injectedJSON string

	err := row.Scan(
		&sess.ID, &sess.StartedAt, &endedAt, &sess.WorkingDirectory, &sess.EventsCount,
		&sess.ObjectsCreated, &sess.EventsSinceCheckpoint, &sess.ErrorCount,
		&injectedJSON, &disclosureLevel, &sess.LastTopic, &lastDisclosureAt,
	)
	if err != nil {
		return nil, err
	}

	sess.DisclosureLevel = DisclosureLevel(disclosureLevel)
	_ = json.Unmarshal([]byte(injectedJSON), &sess.InjectedMemoryIDs)
	if endedAt.Valid {
		sess.EndedAt = &endedAt.Time
	}
	if lastDisclosureAt.Valid {
		sess.LastDisclosureAt = &lastDisclosureAt.Time
	}

	return &sess, nil
}
