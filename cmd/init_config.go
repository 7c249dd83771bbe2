package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codechrono/chrono/internal/config"
)

func newInitConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Write a commented default config file",
		Long: `Write a commented default config file to --config or
~/.chrono/config.toml. An existing file is never overwritten.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.configPath
			if path == "" {
				var err error
				path, err = config.DefaultConfigPath()
				if err != nil {
					return err
				}
			}
			if _, err := os.Stat(path); err == nil {
				fmt.Fprintf(a.stdout, "Config already exists at %s\n", path)
				return nil
			}
			if err := config.WriteDefault(path); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Wrote %s\n", path)
			return nil
		},
	}
}
