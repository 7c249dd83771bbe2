// Package templates stores reusable task templates in a YAML file.
package templates

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	apperrors "github.com/codechrono/chrono/internal/errors"
	"github.com/codechrono/chrono/internal/storage"
)

// Template is a blueprint for a new task.
type Template struct {
	ID          string  `yaml:"id" json:"id"`
	Name        string  `yaml:"name" json:"name"`
	Title       string  `yaml:"title" json:"title"`
	Priority    int     `yaml:"priority" json:"priority"`
	ProjectID   *int64  `yaml:"project_id,omitempty" json:"project_id,omitempty"`
	Description string  `yaml:"description,omitempty" json:"description,omitempty"`
	TagIDs      []int64 `yaml:"tag_ids,omitempty" json:"tag_ids,omitempty"`
}

type file struct {
	Templates []Template `yaml:"templates"`
}

// Store is a YAML-backed template list. A missing file is an empty list.
type Store struct {
	path string
	mu   sync.Mutex
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// List returns all templates in file order.
func (s *Store) List() ([]Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Get returns the template with the given id or name.
func (s *Store) Get(ref string) (Template, error) {
	list, err := s.List()
	if err != nil {
		return Template{}, err
	}
	for _, t := range list {
		if t.ID == ref || strings.EqualFold(t.Name, ref) {
			return t, nil
		}
	}
	return Template{}, apperrors.NotFound("template " + ref)
}

// Add appends a template and assigns it an id. Names must be unique.
func (s *Store) Add(t Template) (Template, error) {
	if strings.TrimSpace(t.Name) == "" {
		return Template{}, errors.New("template name is required")
	}
	if strings.TrimSpace(t.Title) == "" {
		t.Title = t.Name
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load()
	if err != nil {
		return Template{}, err
	}
	for _, existing := range list {
		if strings.EqualFold(existing.Name, t.Name) {
			return Template{}, apperrors.New(apperrors.CodeStorageAlreadyExists,
				fmt.Sprintf("template %q already exists", t.Name))
		}
	}
	t.ID = uuid.NewString()
	list = append(list, t)
	return t, s.save(list)
}

// Remove deletes the template with the given id or name.
func (s *Store) Remove(ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load()
	if err != nil {
		return err
	}
	for i, t := range list {
		if t.ID == ref || strings.EqualFold(t.Name, ref) {
			return s.save(append(list[:i], list[i+1:]...))
		}
	}
	return apperrors.NotFound("template " + ref)
}

// Task builds a todo task from the template.
func (t Template) Task() *storage.Task {
	task := &storage.Task{
		Title:       t.Title,
		Description: t.Description,
		Priority:    t.Priority,
		Status:      storage.StatusTodo,
		ProjectID:   t.ProjectID,
	}
	for _, id := range t.TagIDs {
		task.Tags = append(task.Tags, storage.Tag{ID: id})
	}
	return task
}

func (s *Store) load() ([]Template, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read templates: %w", err)
	}
	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse templates %s: %w", s.path, err)
	}
	return f.Templates, nil
}

func (s *Store) save(list []Template) error {
	data, err := yaml.Marshal(file{Templates: list})
	if err != nil {
		return fmt.Errorf("encode templates: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create templates dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write templates: %w", err)
	}
	return os.Rename(tmp, s.path)
}
