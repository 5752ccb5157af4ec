package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "github.com/mattn/go-sqlite3"

	"github.com/agentmem/agentmem/internal/errs"
	"github.com/agentmem/agentmem/internal/logging"
)

var log = logging.GetLogger("store")

// DB is the Storage Kernel: one embedded SQLite database per memory root, a
// process-wide advisory lock enforcing single-writer semantics across
// process instances, and versioned schema migrations run at Open.
type DB struct {
	sql  *sql.DB
	path string
	lock *flock.Flock
	mu   sync.RWMutex
}

// Open opens (creating if absent) the database at path, takes the
// per-root lock file, and ensures schema is current.
func Open(path string) (*DB, error) {
	log.Info("opening memory root", "path", path)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errs.E("store.Open", errs.Storage, fmt.Errorf("create memory root dir: %w", err))
	}

	lock := flock.New(filepath.Join(dir, "LOCK"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, errs.E("store.Open", errs.Storage, fmt.Errorf("acquire writer lock: %w", err))
	}
	if !locked {
		return nil, errs.E("store.Open", errs.Conflict, fmt.Errorf("memory root %s is locked by another process", dir))
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL", path)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		lock.Unlock()
		return nil, errs.E("store.Open", errs.Storage, fmt.Errorf("open sqlite: %w", err))
	}

	// SQLite supports exactly one writer; pin the pool to it so the Go
	// driver never hands two goroutines separate write connections.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		lock.Unlock()
		return nil, errs.E("store.Open", errs.Storage, fmt.Errorf("ping sqlite: %w", err))
	}

	db := &DB{sql: sqlDB, path: path, lock: lock}

	if err := db.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	log.Info("memory root ready", "path", path)
	return db, nil
}

func (d *DB) migrate() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var tableName string
	err := d.sql.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name='events' LIMIT 1`).Scan(&tableName)
	if err == nil && tableName != "" {
		log.Debug("schema already initialized")
		return nil
	}

	tx, err := d.sql.Begin()
	if err != nil {
		return errs.E("store.migrate", errs.Storage, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(CoreSchema); err != nil {
		return errs.E("store.migrate", errs.Storage, fmt.Errorf("core schema: %w", err))
	}

	if _, err := tx.Exec(FTSSchema); err != nil {
		log.Warn("fts5 schema failed, full-text search will be unavailable", "error", err)
	}

	if _, err := tx.Exec(`INSERT OR REPLACE INTO schema_version (version, applied_at) VALUES (?, CURRENT_TIMESTAMP)`, SchemaVersion); err != nil {
		return errs.E("store.migrate", errs.Storage, fmt.Errorf("record schema version: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return errs.E("store.migrate", errs.Storage, err)
	}

	log.Info("schema initialized", "version", SchemaVersion)
	return nil
}

// Close releases the database connection and the writer lock.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var err error
	if d.sql != nil {
		err = d.sql.Close()
	}
	if d.lock != nil {
		d.lock.Unlock()
	}
	return err
}

// SQL returns the underlying *sql.DB for packages that need raw access
// (lexical, vectorindex, tokenindex).
func (d *DB) SQL() *sql.DB { return d.sql }

// Path returns the database file path.
func (d *DB) Path() string { return d.path }

// Begin starts a new transaction.
func (d *DB) Begin() (*sql.Tx, error) { return d.sql.Begin() }

// GetSchemaVersion returns the current schema version.
func (d *DB) GetSchemaVersion() (int, error) {
	var version int
	err := d.sql.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	return version, err
}

// Stats summarizes the database for the `stats` operation.
type Stats struct {
	Path          string
	SchemaVersion int
	EventCount    int
	ObjectCount   int
	ActiveCount   int
	SessionCount  int
	VectorCount   int
	FileSizeBytes int64
}

// GetStats returns database statistics.
func (d *DB) GetStats() (*Stats, error) {
	s := &Stats{Path: d.path}

	version, _ := d.GetSchemaVersion()
	s.SchemaVersion = version

	d.sql.QueryRow("SELECT COUNT(*) FROM events").Scan(&s.EventCount)
	d.sql.QueryRow("SELECT COUNT(*) FROM memory_objects").Scan(&s.ObjectCount)
	d.sql.QueryRow("SELECT COUNT(*) FROM memory_objects WHERE status = 'active'").Scan(&s.ActiveCount)
	d.sql.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&s.SessionCount)
	d.sql.QueryRow("SELECT COUNT(*) FROM vectors").Scan(&s.VectorCount)

	if info, err := os.Stat(d.path); err == nil {
		s.FileSizeBytes = info.Size()
	}

	return s, nil
}

// Vacuum runs VACUUM to reclaim space.
func (d *DB) Vacuum() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.sql.Exec("VACUUM")
	return err
}

// Checkpoint forces a WAL checkpoint.
func (d *DB) Checkpoint() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.sql.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}
