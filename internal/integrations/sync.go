package integrations

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/codechrono/chrono/internal/storage"
)

// Syncer previews upstream issues against the local task list and imports
// the selected ones.
type Syncer struct {
	store *storage.SQLiteStore
}

func NewSyncer(store *storage.SQLiteStore) *Syncer {
	return &Syncer{store: store}
}

// Preview fetches assigned issues and marks those already imported.
func (s *Syncer) Preview(ctx context.Context, p Provider) ([]Issue, error) {
	issues, err := p.FetchAssigned(ctx)
	if err != nil {
		return nil, err
	}
	for i := range issues {
		imported, err := s.store.IsExternalTaskImported(issues[i].ID, issues[i].Source)
		if err != nil {
			return nil, err
		}
		issues[i].AlreadyImported = imported
	}
	return issues, nil
}

// ImportSelected saves issues as todo tasks. Re-importing an issue refreshes
// its title and description in place. When withProjects is set each issue's
// project is looked up by its short name and created if missing.
func (s *Syncer) ImportSelected(issues []Issue, withProjects bool) (int, error) {
	projects := make(map[string]int64)
	imported := 0
	for _, is := range issues {
		task := &storage.Task{
			Title:       is.Title,
			Description: is.Description,
			Priority:    1,
			Status:      storage.StatusTodo,
			ExternalID:  is.ID,
			Source:      is.Source,
		}

		if name := shortProjectName(is.Project); withProjects && name != "" {
			id, ok := projects[name]
			if !ok {
				var err error
				id, err = s.store.FindOrCreateProject(name)
				if err != nil {
					return imported, fmt.Errorf("resolve project %q: %w", name, err)
				}
				projects[name] = id
			}
			task.ProjectID = &id
		}

		if _, err := s.store.SaveExternalTask(task); err != nil {
			return imported, fmt.Errorf("import %s: %w", is.ID, err)
		}
		imported++
	}
	log.Printf("sync: imported %d issues", imported)
	return imported, nil
}

// Select returns the issues whose ids are in ids, preserving issue order.
func Select(issues []Issue, ids []string) []Issue {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var out []Issue
	for _, is := range issues {
		if want[is.ID] {
			out = append(out, is)
		}
	}
	return out
}

// shortProjectName returns the last path segment of an upstream project.
func shortProjectName(project string) string {
	project = strings.TrimRight(project, "/")
	if i := strings.LastIndex(project, "/"); i >= 0 {
		return project[i+1:]
	}
	return project
}
