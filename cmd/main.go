// Command chrono runs the Pomodoro timer host and talks to it.
//
// `chrono serve` owns the timer, the session log and the WebSocket stream.
// Timer commands (start, break, pause, reset, status) go to the running
// host over its loopback API. Task, statistics and sync commands work on
// the database directly and do not need the host.
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/codechrono/chrono/internal/certs"
	"github.com/codechrono/chrono/internal/config"
	apperrors "github.com/codechrono/chrono/internal/errors"
	"github.com/codechrono/chrono/internal/storage"
)

// Version is set at build time via -ldflags.
// Example: go build -ldflags="-X main.Version=v0.1.0" -o chrono ./cmd
var Version = "dev"

func main() {
	os.Exit(run(os.Args, os.Stdout, os.Stderr))
}

// run executes the CLI and returns the process exit code. args[0] is the
// program name.
func run(args []string, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetArgs(args[1:])
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", errorText(err))
		return 1
	}
	return 0
}

// errorText prefers the human message of coded errors.
func errorText(err error) string {
	code, msg := apperrors.ToCodeAndMessage(err)
	if code == apperrors.CodeUnknown {
		return err.Error()
	}
	return fmt.Sprintf("%s (%s)", msg, code)
}

// app holds the global flags and the lazily loaded config shared by every
// subcommand.
type app struct {
	stdout, stderr io.Writer

	configPath string
	addr       string
	dbPath     string

	cfg *config.Config
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:           "chrono",
		Short:         "chrono - a Pomodoro timer host for the terminal and your devices",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "Config file (default: ~/.chrono/config.toml)")
	pf.StringVar(&a.addr, "addr", "", "Host address (default from config: 127.0.0.1:7878)")
	pf.StringVar(&a.dbPath, "db", "", "Database path (default: ~/.chrono/chrono.db)")

	root.AddCommand(
		newServeCmd(a),
		newStartCmd(a),
		newBreakCmd(a),
		newToggleCmd(a),
		newResetCmd(a),
		newActivityCmd(a),
		newStatusCmd(a),
		newTasksCmd(a),
		newProjectsCmd(a),
		newTagsCmd(a),
		newTemplatesCmd(a),
		newStatsCmd(a),
		newHistoryCmd(a),
		newExportCmd(a),
		newImportCmd(a),
		newClearLogCmd(a),
		newSyncCmd(a),
		newPairCmd(a),
		newDevicesCmd(a),
		newDiscoverCmd(a),
		newInitConfigCmd(a),
	)
	return root
}

// config loads the config file once, applies defaults and then the global
// flag overrides.
func (a *app) config() (*config.Config, error) {
	if a.cfg != nil {
		return a.cfg, nil
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return nil, err
	}
	if a.addr != "" {
		cfg.Addr = a.addr
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}
	if err := cfg.ApplyDefaults(); err != nil {
		return nil, err
	}
	a.cfg = cfg
	return cfg, nil
}

// openStore opens the configured database, creating its directory.
func (a *app) openStore() (*storage.SQLiteStore, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	return openStore(cfg.DBPath)
}

func openStore(path string) (*storage.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := storage.NewSQLiteStore(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// host returns a client for the running host.
func (a *app) host() (*hostClient, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	if cfg.TLS {
		certPath, _ := certs.Paths(cfg.CertDir)
		return newTLSHostClient(cfg.Addr, certPath)
	}
	return newHostClient(cfg.Addr), nil
}
