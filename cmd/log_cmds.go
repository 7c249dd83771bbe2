package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/codechrono/chrono/internal/csvlog"
	"github.com/codechrono/chrono/internal/timer"
)

func newStatsCmd(a *app) *cobra.Command {
	var (
		days       int
		daily      bool
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show time spent per task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return fmt.Errorf("--days must be positive")
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			end := time.Now()
			start := end.AddDate(0, 0, -days)

			if daily {
				rows, err := store.DailyBreakdown(start, end)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(a, rows)
				}
				fmt.Fprintln(a.stdout, titleStyle.Render(fmt.Sprintf("Daily breakdown, last %d days", days)))
				w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "DAY\tTASK\tSESSIONS\tTIME")
				for _, r := range rows {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", r.Day, r.TaskName, r.Sessions, formatTotal(r.TotalSeconds))
				}
				return w.Flush()
			}

			stats, err := store.TaskStats(start, end)
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(a, stats)
			}
			fmt.Fprintln(a.stdout, titleStyle.Render(fmt.Sprintf("Focus time, last %d days", days)))
			if len(stats) == 0 {
				fmt.Fprintln(a.stdout, mutedStyle.Render("No completed sessions."))
				return nil
			}

			var total, longest int64
			for _, s := range stats {
				total += s.TotalSeconds
				if s.TotalSeconds > longest {
					longest = s.TotalSeconds
				}
			}
			w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			for _, s := range stats {
				width := 0
				if longest > 0 {
					width = int(20 * s.TotalSeconds / longest)
				}
				fmt.Fprintf(w, "%s\t%s\t%d sessions\t%s\n", s.TaskName, formatTotal(s.TotalSeconds),
					s.Sessions, barStyle.Render(strings.Repeat("█", width)))
			}
			w.Flush()
			fmt.Fprintln(a.stdout, labelStyle.Render("Total")+formatTotal(total))
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "Window size in days")
	cmd.Flags().BoolVar(&daily, "daily", false, "Break the totals down per day")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}

func newHistoryCmd(a *app) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent session log entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.RecentRecords(limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Fprintln(a.stdout, "The session log is empty.")
				return nil
			}
			w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tACTION\tPHASE\tELAPSED\tTASK")
			for _, r := range records {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
					time.Unix(r.Timestamp, 0).Format("2006-01-02 15:04"),
					r.Action,
					phaseLabel(timer.Phase(r.Phase)),
					formatClock(r.Elapsed),
					r.TaskName,
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries")
	return cmd
}

func newExportCmd(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the session log as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			records, err := store.AllRecords()
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				return csvlog.Export(a.stdout, records)
			}

			f, err := os.OpenFile(out, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
			if err != nil {
				return err
			}
			if err := csvlog.Export(f, records); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(a.stderr, "Exported %d records to %s\n", len(records), out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default: stdout)")
	return cmd
}

func newImportCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Import session log records from CSV",
		Long: `Import session log records from a CSV file written by chrono export.

The file is validated first; nothing is imported if any row is invalid.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := csvlog.Import(store, f)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Imported %d records\n", n)
			return nil
		},
	}
}

func newClearLogCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear-log",
		Short: "Delete every session log record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to clear the session log without --yes")
			}
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.ClearRecords()
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Deleted %d records\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm deletion")
	return cmd
}
