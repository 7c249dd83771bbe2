package storage

// sessions.go contains SQLiteStore methods for the Pomodoro session log:
// timer actions, completion records and the statistics built on them.

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

// Session log actions.
const (
	ActionStart    = "start"
	ActionPause    = "pause"
	ActionResume   = "resume"
	ActionComplete = "complete"
)

// Record is one row of the session log.
type Record struct {
	ID       int64  `json:"id"`
	TaskName string `json:"task_name"`
	Action   string `json:"action"`
	Elapsed  int64  `json:"elapsed"`
	Phase    int    `json:"phase"`
	// Timestamp is epoch seconds. For complete rows it is the end time.
	Timestamp int64 `json:"timestamp"`
}

// TaskStats aggregates completed time per task.
type TaskStats struct {
	TaskName     string `json:"task_name"`
	Sessions     int64  `json:"sessions"`
	TotalSeconds int64  `json:"total_seconds"`
}

// DailyStats aggregates completed time per task per calendar day (UTC).
type DailyStats struct {
	Day          string `json:"day"` // YYYY-MM-DD
	TaskName     string `json:"task_name"`
	Sessions     int64  `json:"sessions"`
	TotalSeconds int64  `json:"total_seconds"`
}

// LogAction appends a start, pause or resume record.
func (s *SQLiteStore) LogAction(taskName, action string, elapsed int64, phase int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	const query = `
		INSERT INTO pomodoro_sessions (task_name, action, elapsed, phase, timestamp)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := s.db.Exec(query, taskName, action, elapsed, phase, s.now().Unix()); err != nil {
		return fmt.Errorf("log action: %w", err)
	}
	return nil
}

// LogCompletion appends a complete record ending now. The start time is
// derived from the elapsed seconds.
func (s *SQLiteStore) LogCompletion(taskName string, elapsed int64, phase int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	end := s.now().Unix()
	const query = `
		INSERT INTO pomodoro_sessions
			(task_name, action, elapsed, phase, timestamp, started_at, end_timestamp)
		VALUES (?, 'complete', ?, ?, ?, ?, ?)
	`
	if _, err := s.db.Exec(query, taskName, elapsed, phase, end, end-elapsed, end); err != nil {
		return fmt.Errorf("log completion: %w", err)
	}
	log.Printf("storage: logged %ds completion for %q", elapsed, taskName)
	return nil
}

// InsertRecord inserts a raw record with an explicit timestamp. Used by
// CSV import.
func (s *SQLiteStore) InsertRecord(r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.insertRecordLocked(s.db, r)
}

// InsertRecords inserts records in a single transaction.
func (s *SQLiteStore) InsertRecords(records []Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	for _, r := range records {
		if err := s.insertRecordLocked(tx, r); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit import: %w", err)
	}
	log.Printf("storage: imported %d session records", len(records))
	return nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStore) insertRecordLocked(db execer, r Record) error {
	var startedAt, end sql.NullInt64
	if r.Action == ActionComplete {
		startedAt = sql.NullInt64{Int64: r.Timestamp - r.Elapsed, Valid: true}
		end = sql.NullInt64{Int64: r.Timestamp, Valid: true}
	}
	const query = `
		INSERT INTO pomodoro_sessions
			(task_name, action, elapsed, phase, timestamp, started_at, end_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := db.Exec(query, r.TaskName, r.Action, r.Elapsed, r.Phase, r.Timestamp, startedAt, end); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

// RecentRecords returns the newest limit records, newest first.
func (s *SQLiteStore) RecentRecords(limit int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
		SELECT id, task_name, action, elapsed, phase, timestamp
		FROM pomodoro_sessions
		ORDER BY timestamp DESC, id DESC
		LIMIT ?
	`
	return s.queryRecords(query, limit)
}

// AllRecords returns the entire session log, newest first.
func (s *SQLiteStore) AllRecords() ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
		SELECT id, task_name, action, elapsed, phase, timestamp
		FROM pomodoro_sessions
		ORDER BY timestamp DESC, id DESC
	`
	return s.queryRecords(query)
}

// ClearRecords deletes the whole session log and returns how many rows
// were removed.
func (s *SQLiteStore) ClearRecords() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM pomodoro_sessions")
	if err != nil {
		return 0, fmt.Errorf("clear records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("check rows affected: %w", err)
	}
	log.Printf("storage: cleared %d session records", n)
	return n, nil
}

// RecentTaskNames returns up to limit distinct non-blank task names,
// most recently used first.
func (s *SQLiteStore) RecentTaskNames(limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
		SELECT task_name
		FROM pomodoro_sessions
		WHERE TRIM(task_name) != ''
		GROUP BY task_name
		ORDER BY MAX(timestamp) DESC, MAX(id) DESC
		LIMIT ?
	`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("query task names: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan task name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// TaskStats totals completed sessions per named task between start and end
// (inclusive), largest total first.
func (s *SQLiteStore) TaskStats(start, end time.Time) ([]TaskStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
		SELECT task_name, COUNT(*), SUM(elapsed) AS total
		FROM pomodoro_sessions
		WHERE timestamp >= ? AND timestamp <= ?
		  AND TRIM(task_name) != ''
		  AND action = 'complete'
		GROUP BY task_name
		ORDER BY total DESC, task_name ASC
	`
	rows, err := s.db.Query(query, start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("query task stats: %w", err)
	}
	defer rows.Close()

	var stats []TaskStats
	for rows.Next() {
		var st TaskStats
		if err := rows.Scan(&st.TaskName, &st.Sessions, &st.TotalSeconds); err != nil {
			return nil, fmt.Errorf("scan task stats: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// DailyBreakdown is TaskStats split by UTC calendar day, newest day first.
func (s *SQLiteStore) DailyBreakdown(start, end time.Time) ([]DailyStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	const query = `
		SELECT DATE(timestamp, 'unixepoch') AS day, task_name, COUNT(*), SUM(elapsed) AS total
		FROM pomodoro_sessions
		WHERE timestamp >= ? AND timestamp <= ?
		  AND TRIM(task_name) != ''
		  AND action = 'complete'
		GROUP BY day, task_name
		ORDER BY day DESC, total DESC, task_name ASC
	`
	rows, err := s.db.Query(query, start.Unix(), end.Unix())
	if err != nil {
		return nil, fmt.Errorf("query daily breakdown: %w", err)
	}
	defer rows.Close()

	var stats []DailyStats
	for rows.Next() {
		var st DailyStats
		if err := rows.Scan(&st.Day, &st.TaskName, &st.Sessions, &st.TotalSeconds); err != nil {
			return nil, fmt.Errorf("scan daily stats: %w", err)
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func (s *SQLiteStore) queryRecords(query string, args ...any) ([]Record, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.TaskName, &r.Action, &r.Elapsed, &r.Phase, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate record rows: %w", err)
	}
	return records, nil
}
