package storage

// tasks.go contains SQLiteStore methods for task CRUD, search and tag
// linking.

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
)

// Task statuses.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusDone       = "done"
)

// Task is a to-do item that sessions can be started against.
type Task struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	DueDate     *int64 `json:"due_date,omitempty"`
	Priority    int    `json:"priority"`
	Status      string `json:"status"`
	ProjectID   *int64 `json:"project_id,omitempty"`
	ParentID    *int64 `json:"parent_id,omitempty"`
	Position    int    `json:"position"`
	// ExternalID and Source identify a task imported from an issue tracker.
	ExternalID  string `json:"external_id,omitempty"`
	Source      string `json:"source,omitempty"`
	CreatedAt   int64  `json:"created_at"`
	CompletedAt *int64 `json:"completed_at,omitempty"`
	Tags        []Tag  `json:"tags"`
}

// TaskFilter narrows ListTasks. Zero values mean "any".
type TaskFilter struct {
	ProjectID *int64
	TagID     *int64
	Status    string
}

const taskColumns = `t.id, t.title, t.description, t.due_date, t.priority, t.status,
	t.project_id, t.parent_id, t.position, t.external_id, t.source,
	t.created_at, t.completed_at`

// CreateTask inserts a task with its tags and returns the new id.
func (s *SQLiteStore) CreateTask(task *Task) (int64, error) {
	if task == nil {
		return 0, errors.New("task cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin create task: %w", err)
	}
	defer tx.Rollback()

	id, err := s.insertTaskTx(tx, task)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit create task: %w", err)
	}

	log.Printf("storage: created task %d (%q)", id, task.Title)
	return id, nil
}

func (s *SQLiteStore) insertTaskTx(tx *sql.Tx, task *Task) (int64, error) {
	status := task.Status
	if status == "" {
		status = StatusTodo
	}
	var completedAt sql.NullInt64
	if status == StatusDone {
		completedAt = sql.NullInt64{Int64: s.now().Unix(), Valid: true}
	}

	const query = `
		INSERT INTO tasks
			(title, description, due_date, priority, status, project_id, parent_id,
			 position, external_id, source, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := tx.Exec(query,
		task.Title,
		nullString(task.Description),
		nullInt64(task.DueDate),
		task.Priority,
		status,
		nullInt64(task.ProjectID),
		nullInt64(task.ParentID),
		task.Position,
		nullString(task.ExternalID),
		nullString(task.Source),
		s.now().Unix(),
		completedAt,
	)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("task id: %w", err)
	}
	if err := setTaskTags(tx, id, task.Tags); err != nil {
		return 0, err
	}
	return id, nil
}

// SaveExternalTask upserts a task by (ExternalID, Source). An existing task
// only has its title and description refreshed; status, position and tags
// are left alone. Returns the task id.
func (s *SQLiteStore) SaveExternalTask(task *Task) (int64, error) {
	if task == nil {
		return 0, errors.New("task cannot be nil")
	}
	if task.ExternalID == "" || task.Source == "" {
		return s.CreateTask(task)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin save external task: %w", err)
	}
	defer tx.Rollback()

	var id int64
	err = tx.QueryRow(
		"SELECT id FROM tasks WHERE external_id = ? AND source = ?",
		task.ExternalID, task.Source,
	).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		id, err = s.insertTaskTx(tx, task)
		if err != nil {
			return 0, err
		}
	case err != nil:
		return 0, fmt.Errorf("find external task: %w", err)
	default:
		_, err = tx.Exec(
			"UPDATE tasks SET title = ?, description = ? WHERE id = ?",
			task.Title, nullString(task.Description), id,
		)
		if err != nil {
			return 0, fmt.Errorf("refresh external task: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit save external task: %w", err)
	}
	return id, nil
}

// IsExternalTaskImported reports whether a task with this external id and
// source already exists.
func (s *SQLiteStore) IsExternalTaskImported(externalID, source string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM tasks WHERE external_id = ? AND source = ?",
		externalID, source,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check external task: %w", err)
	}
	return n > 0, nil
}

// UpdateTask overwrites the editable fields of a task and replaces its tags.
// completed_at is stamped the first time a task becomes done, preserved on
// later edits while it stays done, and cleared when it leaves done.
func (s *SQLiteStore) UpdateTask(task *Task) error {
	if task == nil {
		return errors.New("task cannot be nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin update task: %w", err)
	}
	defer tx.Rollback()

	var existing sql.NullInt64
	err = tx.QueryRow("SELECT completed_at FROM tasks WHERE id = ?", task.ID).Scan(&existing)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("load task: %w", err)
	}

	var completedAt sql.NullInt64
	if task.Status == StatusDone {
		completedAt = existing
		if !completedAt.Valid {
			completedAt = sql.NullInt64{Int64: s.now().Unix(), Valid: true}
		}
	}
	status := task.Status
	if status == "" {
		status = StatusTodo
	}

	const query = `
		UPDATE tasks
		SET title = ?, description = ?, due_date = ?, priority = ?, status = ?,
		    project_id = ?, parent_id = ?, position = ?, completed_at = ?
		WHERE id = ?
	`
	_, err = tx.Exec(query,
		task.Title,
		nullString(task.Description),
		nullInt64(task.DueDate),
		task.Priority,
		status,
		nullInt64(task.ProjectID),
		nullInt64(task.ParentID),
		task.Position,
		completedAt,
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM task_tags WHERE task_id = ?", task.ID); err != nil {
		return fmt.Errorf("clear task tags: %w", err)
	}
	if err := setTaskTags(tx, task.ID, task.Tags); err != nil {
		return err
	}
	return tx.Commit()
}

// DeleteTask removes a task. Subtasks and tag links go with it.
func (s *SQLiteStore) DeleteTask(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log.Printf("storage: deleting task %d", id)
	if _, err := s.db.Exec("DELETE FROM tasks WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// GetTask returns a task by id, or ErrTaskNotFound.
func (s *SQLiteStore) GetTask(id int64) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks, err := s.queryTasks("SELECT "+taskColumns+" FROM tasks t WHERE t.id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, ErrTaskNotFound
	}
	return &tasks[0], nil
}

// ListTasks returns tasks matching every set field of filter, ordered by
// position then newest first.
func (s *SQLiteStore) ListTasks(filter TaskFilter) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		b     strings.Builder
		where []string
		args  []any
	)
	b.WriteString("SELECT " + taskColumns + " FROM tasks t")
	if filter.TagID != nil {
		b.WriteString(" JOIN task_tags tt ON tt.task_id = t.id")
		where = append(where, "tt.tag_id = ?")
		args = append(args, *filter.TagID)
	}
	if filter.ProjectID != nil {
		where = append(where, "t.project_id = ?")
		args = append(args, *filter.ProjectID)
	}
	if filter.Status != "" {
		where = append(where, "t.status = ?")
		args = append(args, filter.Status)
	}
	if len(where) > 0 {
		b.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	b.WriteString(" ORDER BY t.position ASC, t.created_at DESC, t.id DESC")

	return s.queryTasks(b.String(), args...)
}

// SearchTasks matches query against titles and descriptions.
func (s *SQLiteStore) SearchTasks(query string) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pattern := "%" + query + "%"
	return s.queryTasks(
		"SELECT "+taskColumns+" FROM tasks t WHERE t.title LIKE ? OR t.description LIKE ? ORDER BY t.position ASC, t.created_at DESC, t.id DESC",
		pattern, pattern,
	)
}

// queryTasks runs a task SELECT and attaches tags. The task rows are
// drained before tags are loaded; the store holds a single connection.
func (s *SQLiteStore) queryTasks(query string, args ...any) ([]Task, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}

	var tasks []Task
	for rows.Next() {
		var (
			t                                     Task
			desc, extID, source                   sql.NullString
			due, projectID, parentID, completedAt sql.NullInt64
		)
		err := rows.Scan(&t.ID, &t.Title, &desc, &due, &t.Priority, &t.Status,
			&projectID, &parentID, &t.Position, &extID, &source,
			&t.CreatedAt, &completedAt)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Description = desc.String
		t.ExternalID = extID.String
		t.Source = source.String
		t.DueDate = int64Ptr(due)
		t.ProjectID = int64Ptr(projectID)
		t.ParentID = int64Ptr(parentID)
		t.CompletedAt = int64Ptr(completedAt)
		t.Tags = []Tag{}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate task rows: %w", err)
	}
	rows.Close()

	for i := range tasks {
		tags, err := s.tagsForTask(tasks[i].ID)
		if err != nil {
			return nil, err
		}
		tasks[i].Tags = tags
	}
	return tasks, nil
}

func setTaskTags(tx *sql.Tx, taskID int64, tags []Tag) error {
	for _, tag := range tags {
		_, err := tx.Exec("INSERT OR IGNORE INTO task_tags (task_id, tag_id) VALUES (?, ?)", taskID, tag.ID)
		if err != nil {
			return fmt.Errorf("link tag %d: %w", tag.ID, err)
		}
	}
	return nil
}
