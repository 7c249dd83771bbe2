package storage

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"database/sql"

	// SQLite driver - imported for side effects (registers the driver).
	// modernc.org/sqlite is a pure-Go implementation that doesn't require CGO.
	_ "modernc.org/sqlite"
)

// ErrTaskNotFound is returned when an operation targets a non-existent task.
var ErrTaskNotFound = errors.New("task not found")

// ErrProjectNotFound is returned when a project lookup fails.
var ErrProjectNotFound = errors.New("project not found")

// ErrDeviceNotFound is returned when a device lookup fails.
var ErrDeviceNotFound = errors.New("device not found")

// SQLiteStore persists the session log, tasks, projects, tags, settings and
// paired devices in a single SQLite database.
type SQLiteStore struct {
	db  *sql.DB      // Database connection handle.
	mu  sync.RWMutex // Guards all database operations.
	now func() time.Time
}

// Option configures a SQLiteStore.
type Option func(*SQLiteStore)

// WithNow overrides the time source used for record timestamps.
func WithNow(now func() time.Time) Option {
	return func(s *SQLiteStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSQLiteStore opens or creates a SQLite database at the given path and
// applies any pending migrations.
// Use ":memory:" for an in-memory database (useful for testing).
func NewSQLiteStore(path string, opts ...Option) (*SQLiteStore, error) {
	log.Printf("storage: opening database at %s", path)

	// Foreign keys are required for ON DELETE SET NULL / CASCADE on tasks.
	// busy_timeout covers the CLI and a running host touching the file at once.
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: SQLite has a single writer, and ":memory:" databases
	// are per-connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, now: time.Now}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	log.Printf("storage: database ready (schema version %d)", currentSchemaVersion)
	return store, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	log.Printf("storage: closing database")
	return s.db.Close()
}

// nullString maps "" to NULL.
func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

// nullInt64 maps a nil pointer to NULL.
func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
