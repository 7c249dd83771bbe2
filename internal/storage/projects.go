package storage

// projects.go contains SQLiteStore methods for projects and tags.

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
)

// Project groups tasks.
type Project struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// Tag labels tasks. Names are unique.
type Tag struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// CreateProject inserts a project and returns its id.
func (s *SQLiteStore) CreateProject(name, color string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.createProjectLocked(name, color)
}

func (s *SQLiteStore) createProjectLocked(name, color string) (int64, error) {
	res, err := s.db.Exec("INSERT INTO projects (name, color) VALUES (?, ?)", name, nullString(color))
	if err != nil {
		return 0, fmt.Errorf("create project: %w", err)
	}
	log.Printf("storage: created project %q", name)
	return res.LastInsertId()
}

// FindOrCreateProject returns the id of the project called name, creating
// it when missing.
func (s *SQLiteStore) FindOrCreateProject(name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var id int64
	err := s.db.QueryRow("SELECT id FROM projects WHERE name = ? ORDER BY id LIMIT 1", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("find project: %w", err)
	}
	return s.createProjectLocked(name, "")
}

// ListProjects returns all projects ordered by name.
func (s *SQLiteStore) ListProjects() ([]Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT id, name, color FROM projects ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("query projects: %w", err)
	}
	defer rows.Close()

	var projects []Project
	for rows.Next() {
		var (
			p     Project
			color sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Name, &color); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.Color = color.String
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// DeleteProject removes a project. Its tasks are kept and unassigned.
func (s *SQLiteStore) DeleteProject(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProjectNotFound
	}
	return nil
}

// CreateTag returns the id of the tag called name, creating it when
// missing. An existing tag keeps its color.
func (s *SQLiteStore) CreateTag(name, color string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("INSERT OR IGNORE INTO tags (name, color) VALUES (?, ?)", name, nullString(color)); err != nil {
		return 0, fmt.Errorf("create tag: %w", err)
	}
	var id int64
	if err := s.db.QueryRow("SELECT id FROM tags WHERE name = ?", name).Scan(&id); err != nil {
		return 0, fmt.Errorf("find tag: %w", err)
	}
	return id, nil
}

// ListTags returns all tags ordered by name.
func (s *SQLiteStore) ListTags() ([]Tag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryTags("SELECT id, name, color FROM tags ORDER BY name")
}

// DeleteTag removes a tag and unlinks it from every task.
func (s *SQLiteStore) DeleteTag(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM tags WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete tag: %w", err)
	}
	return nil
}

func (s *SQLiteStore) tagsForTask(taskID int64) ([]Tag, error) {
	tags, err := s.queryTags(`
		SELECT tags.id, tags.name, tags.color
		FROM tags JOIN task_tags ON tags.id = task_tags.tag_id
		WHERE task_tags.task_id = ?
		ORDER BY tags.name`, taskID)
	if err != nil {
		return nil, err
	}
	if tags == nil {
		tags = []Tag{}
	}
	return tags, nil
}

func (s *SQLiteStore) queryTags(query string, args ...any) ([]Tag, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var (
			t     Tag
			color sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Name, &color); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		t.Color = color.String
		tags = append(tags, t)
	}
	return tags, rows.Err()
}
