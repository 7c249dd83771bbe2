package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/codechrono/chrono/internal/config"
	"github.com/codechrono/chrono/internal/integrations"
)

type syncOptions struct {
	all      bool
	ids      []string
	projects bool
	timeout  time.Duration
}

func newSyncCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Import assigned issues as tasks",
		Long: `Fetch open issues assigned to you and import them as tasks.

Without --all or --select the issues are only listed. Issues imported
before are refreshed in place, never duplicated.`,
	}

	providers := []struct {
		use   string
		short string
		build func(*config.Config) integrations.Provider
	}{
		{"github", "Sync issues from GitHub", func(c *config.Config) integrations.Provider {
			return integrations.NewGitHub(c.GitHub.Token, c.GitHub.Repo)
		}},
		{"gitlab", "Sync issues from GitLab", func(c *config.Config) integrations.Provider {
			return integrations.NewGitLab(c.GitLab.Token, c.GitLab.Host, c.GitLab.Project)
		}},
		{"jira", "Sync issues from Jira", func(c *config.Config) integrations.Provider {
			return integrations.NewJira(c.Jira.Domain, c.Jira.Email, c.Jira.Token)
		}},
	}

	for _, p := range providers {
		var o syncOptions
		build := p.build
		sub := &cobra.Command{
			Use:   p.use,
			Short: p.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := a.config()
				if err != nil {
					return err
				}
				return runSync(cmd.Context(), a, build(cfg), o)
			},
		}
		fs := sub.Flags()
		fs.BoolVar(&o.all, "all", false, "Import every issue not imported yet")
		fs.StringSliceVar(&o.ids, "select", nil, "Import the issues with these ids (comma separated)")
		fs.BoolVar(&o.projects, "projects", false, "File tasks under a project named after the upstream project")
		fs.DurationVar(&o.timeout, "timeout", time.Minute, "Give up fetching after this long")
		sub.MarkFlagsMutuallyExclusive("all", "select")
		cmd.AddCommand(sub)
	}
	return cmd
}

func runSync(ctx context.Context, a *app, p integrations.Provider, o syncOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	syncer := integrations.NewSyncer(store)
	issues, err := syncer.Preview(ctx, p)
	if err != nil {
		return err
	}
	if len(issues) == 0 {
		fmt.Fprintf(a.stdout, "No open %s issues assigned to you.\n", p.Source())
		return nil
	}

	var selected []integrations.Issue
	switch {
	case o.all:
		for _, is := range issues {
			if !is.AlreadyImported {
				selected = append(selected, is)
			}
		}
	case len(o.ids) > 0:
		selected = integrations.Select(issues, o.ids)
		if len(selected) != len(o.ids) {
			fmt.Fprintf(a.stderr, "Warning: %d of the selected ids were not found\n", len(o.ids)-len(selected))
		}
	default:
		printIssues(a, issues)
		fmt.Fprintln(a.stdout, mutedStyle.Render("Import with --all or --select <id,...>"))
		return nil
	}

	if len(selected) == 0 {
		fmt.Fprintln(a.stdout, "Nothing to import.")
		return nil
	}
	n, err := syncer.ImportSelected(selected, o.projects)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Imported %d %s issue(s)\n", n, p.Source())
	return nil
}

func printIssues(a *app, issues []integrations.Issue) {
	w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tIMPORTED\tPROJECT\tTITLE")
	for _, is := range issues {
		imported := ""
		if is.AlreadyImported {
			imported = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", is.ID, imported, is.Project, is.Title)
	}
	w.Flush()
}
