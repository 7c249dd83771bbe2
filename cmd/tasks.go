package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/codechrono/chrono/internal/storage"
	"github.com/codechrono/chrono/internal/templates"
)

func newTasksCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tasks",
		Aliases: []string{"task"},
		Short:   "Manage tasks",
	}
	cmd.AddCommand(
		newTasksListCmd(a),
		newTasksAddCmd(a),
		newTasksStatusCmd(a, "done", storage.StatusDone, "Mark a task done"),
		newTasksStatusCmd(a, "reopen", storage.StatusTodo, "Move a task back to todo"),
		newTasksStatusCmd(a, "doing", storage.StatusInProgress, "Mark a task in progress"),
		newTasksDeleteCmd(a),
		newTasksSearchCmd(a),
	)
	return cmd
}

func newTasksListCmd(a *app) *cobra.Command {
	var (
		project    string
		tag        string
		status     string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			var filter storage.TaskFilter
			if project != "" {
				id, err := lookupProject(store, project)
				if err != nil {
					return err
				}
				filter.ProjectID = &id
			}
			if tag != "" {
				id, err := lookupTag(store, tag)
				if err != nil {
					return err
				}
				filter.TagID = &id
			}
			filter.Status = status

			tasks, err := store.ListTasks(filter)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(a, tasks)
			}
			printTasks(a, tasks)
			return nil
		},
	}
	cmd.Flags().StringVarP(&project, "project", "p", "", "Only tasks in this project (name or id)")
	cmd.Flags().StringVar(&tag, "tag", "", "Only tasks with this tag (name or id)")
	cmd.Flags().StringVarP(&status, "status", "s", "", "Only tasks with this status (todo, in_progress, done)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

func newTasksAddCmd(a *app) *cobra.Command {
	var (
		priority    int
		project     string
		tags        []string
		description string
		template    string
	)
	cmd := &cobra.Command{
		Use:   "add [title]",
		Short: "Add a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			task := &storage.Task{Status: storage.StatusTodo}
			if template != "" {
				cfg, err := a.config()
				if err != nil {
					return err
				}
				t, err := templates.NewStore(cfg.TemplatesPath).Get(template)
				if err != nil {
					return err
				}
				task = t.Task()
			}

			fs := cmd.Flags()
			if title := strings.TrimSpace(strings.Join(args, " ")); title != "" {
				task.Title = title
			}
			if task.Title == "" {
				return fmt.Errorf("a task title is required")
			}
			if fs.Changed("priority") {
				task.Priority = priority
			}
			if fs.Changed("description") {
				task.Description = description
			}
			if project != "" {
				id, err := store.FindOrCreateProject(project)
				if err != nil {
					return err
				}
				task.ProjectID = &id
			}
			for _, name := range tags {
				id, err := store.CreateTag(name, "")
				if err != nil {
					return err
				}
				task.Tags = append(task.Tags, storage.Tag{ID: id, Name: name})
			}

			id, err := store.CreateTask(task)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Created task %d: %s\n", id, task.Title)
			return nil
		},
	}
	fs := cmd.Flags()
	fs.IntVar(&priority, "priority", 0, "Priority (higher is more important)")
	fs.StringVarP(&project, "project", "p", "", "Project name, created if missing")
	fs.StringSliceVar(&tags, "tag", nil, "Tag name, created if missing (repeatable)")
	fs.StringVarP(&description, "description", "d", "", "Description")
	fs.StringVarP(&template, "template", "t", "", "Start from a template (name or id)")
	return cmd
}

func newTasksStatusCmd(a *app, use, status, short string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			task, err := store.GetTask(id)
			if err != nil {
				return err
			}
			task.Status = status
			if err := store.UpdateTask(task); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Task %d is now %s\n", id, status)
			return nil
		},
	}
}

func newTasksDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>",
		Aliases: []string{"rm"},
		Short:   "Delete a task and its subtasks",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if _, err := store.GetTask(id); err != nil {
				return err
			}
			if err := store.DeleteTask(id); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Deleted task %d\n", id)
			return nil
		},
	}
}

func newTasksSearchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search task titles and descriptions",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			tasks, err := store.SearchTasks(strings.Join(args, " "))
			if err != nil {
				return err
			}
			printTasks(a, tasks)
			return nil
		},
	}
}

func printTasks(a *app, tasks []storage.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(a.stdout, "No tasks found.")
		return
	}
	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tPRI\tTITLE\tTAGS")
	for _, t := range tasks {
		names := make([]string, len(t.Tags))
		for i, tag := range t.Tags {
			names[i] = tag.Name
		}
		title := t.Title
		if t.Source != "" {
			title += " [" + t.Source + "]"
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", t.ID, t.Status, t.Priority, title, strings.Join(names, ","))
	}
	w.Flush()
}

func newProjectsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "projects",
		Aliases: []string{"project"},
		Short:   "Manage projects",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			projects, err := store.ListProjects()
			if err != nil {
				return err
			}
			if len(projects) == 0 {
				fmt.Fprintln(a.stdout, "No projects found.")
				return nil
			}
			w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCOLOR")
			for _, p := range projects {
				fmt.Fprintf(w, "%d\t%s\t%s\n", p.ID, p.Name, p.Color)
			}
			return w.Flush()
		},
	}

	var color string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := store.CreateProject(args[0], color)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Created project %d: %s\n", id, args[0])
			return nil
		},
	}
	add.Flags().StringVar(&color, "color", "", "Display color, e.g. #7D56F4")

	del := &cobra.Command{
		Use:     "delete <name|id>",
		Aliases: []string{"rm"},
		Short:   "Delete a project; its tasks are kept",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := lookupProject(store, args[0])
			if err != nil {
				return err
			}
			if err := store.DeleteProject(id); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Deleted project %d\n", id)
			return nil
		},
	}

	cmd.AddCommand(list, add, del)
	return cmd
}

func newTagsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "tags",
		Aliases: []string{"tag"},
		Short:   "Manage tags",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List tags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			tags, err := store.ListTags()
			if err != nil {
				return err
			}
			if len(tags) == 0 {
				fmt.Fprintln(a.stdout, "No tags found.")
				return nil
			}
			w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCOLOR")
			for _, t := range tags {
				fmt.Fprintf(w, "%d\t%s\t%s\n", t.ID, t.Name, t.Color)
			}
			return w.Flush()
		},
	}

	var color string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Create a tag (no-op if it exists)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := store.CreateTag(args[0], color)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Tag %d: %s\n", id, args[0])
			return nil
		},
	}
	add.Flags().StringVar(&color, "color", "", "Display color")

	del := &cobra.Command{
		Use:     "delete <name|id>",
		Aliases: []string{"rm"},
		Short:   "Delete a tag and unlink it from tasks",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := lookupTag(store, args[0])
			if err != nil {
				return err
			}
			if err := store.DeleteTag(id); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Deleted tag %d\n", id)
			return nil
		},
	}

	cmd.AddCommand(list, add, del)
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// lookupProject resolves a project by id or case-insensitive name.
func lookupProject(store *storage.SQLiteStore, ref string) (int64, error) {
	projects, err := store.ListProjects()
	if err != nil {
		return 0, err
	}
	for _, p := range projects {
		if strconv.FormatInt(p.ID, 10) == ref || strings.EqualFold(p.Name, ref) {
			return p.ID, nil
		}
	}
	return 0, fmt.Errorf("project %q not found", ref)
}

// lookupTag resolves a tag by id or case-insensitive name.
func lookupTag(store *storage.SQLiteStore, ref string) (int64, error) {
	tags, err := store.ListTags()
	if err != nil {
		return 0, err
	}
	for _, t := range tags {
		if strconv.FormatInt(t.ID, 10) == ref || strings.EqualFold(t.Name, ref) {
			return t.ID, nil
		}
	}
	return 0, fmt.Errorf("tag %q not found", ref)
}
