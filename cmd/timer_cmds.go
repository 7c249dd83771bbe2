package main

import (
	"encoding/json"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codechrono/chrono/internal/server"
	"github.com/codechrono/chrono/internal/templates"
)

func newStartCmd(a *app) *cobra.Command {
	var (
		minutes  int
		template string
	)
	cmd := &cobra.Command{
		Use:   "start [task name]",
		Short: "Start a work session",
		Long: `Start a work session on the running host.

A session already in progress is finished first and its elapsed time is
credited to its task.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args, " ")
			if template != "" {
				cfg, err := a.config()
				if err != nil {
					return err
				}
				t, err := templates.NewStore(cfg.TemplatesPath).Get(template)
				if err != nil {
					return err
				}
				if name == "" {
					name = t.Title
				}
			}
			return runTimerCommand(a, server.CommandPayload{
				Command:  server.CommandStart,
				TaskName: name,
				Minutes:  minutes,
			})
		},
	}
	cmd.Flags().IntVarP(&minutes, "minutes", "m", 0, "Session length (default from config)")
	cmd.Flags().StringVarP(&template, "template", "t", "", "Take the task name from a template")
	return cmd
}

func newBreakCmd(a *app) *cobra.Command {
	var minutes int
	cmd := &cobra.Command{
		Use:       "break [short|long]",
		Short:     "Start a break",
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"short", "long"},
		RunE: func(cmd *cobra.Command, args []string) error {
			phase := "short"
			if len(args) == 1 {
				phase = args[0]
			}
			return runTimerCommand(a, server.CommandPayload{
				Command: server.CommandBreak,
				Phase:   phase,
				Minutes: minutes,
			})
		},
	}
	cmd.Flags().IntVarP(&minutes, "minutes", "m", 0, "Break length (default from config)")
	return cmd
}

func newToggleCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "pause",
		Aliases: []string{"resume", "toggle"},
		Short:   "Pause or resume the current session",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTimerCommand(a, server.CommandPayload{Command: server.CommandToggle})
		},
	}
}

func newResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Stop the current session, crediting time spent on its task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTimerCommand(a, server.CommandPayload{Command: server.CommandReset})
		},
	}
}

func newActivityCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "activity",
		Short: "Report user activity so the session is not auto-paused",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.host()
			if err != nil {
				return err
			}
			_, err = c.Command(server.CommandPayload{Command: server.CommandActivity})
			return err
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the timer and host status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.host()
			if err != nil {
				return err
			}
			st, err := c.Status()
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(a, st)
			}
			renderStatus(a.stdout, st)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

func runTimerCommand(a *app, payload server.CommandPayload) error {
	c, err := a.host()
	if err != nil {
		return err
	}
	snap, err := c.Command(payload)
	if err != nil {
		return err
	}
	renderSnapshot(a.stdout, snap)
	return nil
}

func writeJSON(a *app, v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
