package storage

import (
	"fmt"
	"log"
	"time"
)

// currentSchemaVersion is the current database schema version.
// Increment this when making schema changes and add a migration.
const currentSchemaVersion = 4

// migration is one schema step. Each runs once and is recorded in
// schema_version.
type migration struct {
	version     int
	description string
	statements  string
}

var migrations = []migration{
	{
		version:     1,
		description: "session log",
		// Timestamps are epoch seconds. For complete rows timestamp is the
		// time the session ended and started_at = timestamp - elapsed.
		statements: `
			CREATE TABLE IF NOT EXISTS pomodoro_sessions (
				id            INTEGER PRIMARY KEY AUTOINCREMENT,
				task_name     TEXT    NOT NULL,
				action        TEXT    NOT NULL,
				elapsed       INTEGER NOT NULL,
				phase         INTEGER NOT NULL,
				timestamp     INTEGER NOT NULL,
				started_at    INTEGER,
				end_timestamp INTEGER
			);

			CREATE INDEX IF NOT EXISTS idx_sessions_timestamp ON pomodoro_sessions(timestamp);
			CREATE INDEX IF NOT EXISTS idx_sessions_action ON pomodoro_sessions(action, timestamp);
		`,
	},
	{
		version:     2,
		description: "tasks, projects and tags",
		statements: `
			CREATE TABLE IF NOT EXISTS projects (
				id    INTEGER PRIMARY KEY AUTOINCREMENT,
				name  TEXT NOT NULL,
				color TEXT
			);

			CREATE TABLE IF NOT EXISTS tags (
				id    INTEGER PRIMARY KEY AUTOINCREMENT,
				name  TEXT NOT NULL UNIQUE,
				color TEXT
			);

			CREATE TABLE IF NOT EXISTS tasks (
				id           INTEGER PRIMARY KEY AUTOINCREMENT,
				title        TEXT    NOT NULL,
				description  TEXT,
				due_date     INTEGER,
				priority     INTEGER NOT NULL DEFAULT 0,
				status       TEXT    NOT NULL DEFAULT 'todo',
				project_id   INTEGER REFERENCES projects(id) ON DELETE SET NULL,
				parent_id    INTEGER REFERENCES tasks(id)    ON DELETE CASCADE,
				position     INTEGER NOT NULL DEFAULT 0,
				external_id  TEXT,
				source       TEXT,
				created_at   INTEGER NOT NULL,
				completed_at INTEGER
			);

			CREATE INDEX IF NOT EXISTS idx_tasks_external ON tasks(external_id, source);

			CREATE TABLE IF NOT EXISTS task_tags (
				task_id INTEGER NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
				tag_id  INTEGER NOT NULL REFERENCES tags(id)  ON DELETE CASCADE,
				PRIMARY KEY (task_id, tag_id)
			);
		`,
	},
	{
		version:     3,
		description: "settings",
		statements: `
			CREATE TABLE IF NOT EXISTS settings (
				key   TEXT PRIMARY KEY,
				value TEXT NOT NULL
			);
		`,
	},
	{
		version:     4,
		description: "paired devices",
		// token_hash is a bcrypt hash; the raw token is only ever sent to
		// the device once, at pairing time.
		statements: `
			CREATE TABLE IF NOT EXISTS devices (
				id         TEXT PRIMARY KEY,
				name       TEXT NOT NULL,
				token_hash TEXT NOT NULL,
				created_at TEXT NOT NULL,
				last_seen  TEXT NOT NULL
			);
		`,
	},
}

// initSchema applies every migration newer than the recorded version.
func (s *SQLiteStore) initSchema() error {
	const schemaVersionTable = `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		);
	`
	if _, err := s.db.Exec(schemaVersionTable); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return fmt.Errorf("check schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= version {
			continue
		}
		if err := s.migrate(m); err != nil {
			return fmt.Errorf("migrate to v%d: %w", m.version, err)
		}
	}
	return nil
}

func (s *SQLiteStore) migrate(m migration) error {
	log.Printf("storage: applying migration to schema version %d (%s)", m.version, m.description)

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.statements); err != nil {
		return err
	}
	_, err = tx.Exec(
		"INSERT INTO schema_version (version, applied_at) VALUES (?, ?)",
		m.version,
		time.Now().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}
