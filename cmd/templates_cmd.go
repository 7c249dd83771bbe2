package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/codechrono/chrono/internal/templates"
)

func newTemplatesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "templates",
		Aliases: []string{"template"},
		Short:   "Manage task templates",
	}

	store := func() (*templates.Store, error) {
		cfg, err := a.config()
		if err != nil {
			return nil, err
		}
		return templates.NewStore(cfg.TemplatesPath), nil
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store()
			if err != nil {
				return err
			}
			list, err := s.List()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(a.stdout, "No templates found.")
				return nil
			}
			w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTITLE\tPRI\tID")
			for _, t := range list {
				fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", t.Name, t.Title, t.Priority, t.ID)
			}
			return w.Flush()
		},
	}

	var (
		t       templates.Template
		project string
		tags    []string
	)
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store()
			if err != nil {
				return err
			}
			t.Name = args[0]

			if project != "" || len(tags) > 0 {
				db, err := a.openStore()
				if err != nil {
					return err
				}
				defer db.Close()
				if project != "" {
					id, err := db.FindOrCreateProject(project)
					if err != nil {
						return err
					}
					t.ProjectID = &id
				}
				for _, name := range tags {
					id, err := db.CreateTag(name, "")
					if err != nil {
						return err
					}
					t.TagIDs = append(t.TagIDs, id)
				}
			}

			added, err := s.Add(t)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Added template %q (%s)\n", added.Name, added.ID)
			return nil
		},
	}
	fs := add.Flags()
	fs.StringVar(&t.Title, "title", "", "Task title (default: the template name)")
	fs.IntVar(&t.Priority, "priority", 0, "Task priority")
	fs.StringVarP(&t.Description, "description", "d", "", "Task description")
	fs.StringVarP(&project, "project", "p", "", "Project name, created if missing")
	fs.StringSliceVar(&tags, "tag", nil, "Tag name, created if missing (repeatable)")

	remove := &cobra.Command{
		Use:     "remove <name|id>",
		Aliases: []string{"rm"},
		Short:   "Remove a template",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store()
			if err != nil {
				return err
			}
			if err := s.Remove(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Removed template %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, add, remove)
	return cmd
}
