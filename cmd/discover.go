package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/codechrono/chrono/internal/mdns"
)

func newDiscoverCmd(a *app) *cobra.Command {
	var (
		timeout    time.Duration
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find chrono hosts on the local network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			hosts, err := mdns.Discover(ctx)
			if err != nil {
				return err
			}
			if jsonOutput {
				if hosts == nil {
					hosts = []mdns.Host{}
				}
				return writeJSON(a, hosts)
			}
			if len(hosts) == 0 {
				fmt.Fprintln(a.stdout, "No chrono hosts found.")
				return nil
			}
			w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tURL\tVERSION\tAUTH")
			for _, h := range hosts {
				auth := "open"
				if h.AuthRequired {
					auth = "required"
				}
				scheme := "ws"
				if h.TLS {
					scheme = "wss"
				}
				url := scheme + "://" + net.JoinHostPort(h.Addr, strconv.Itoa(h.Port)) + h.Path
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", h.Name, url, h.Version, auth)
			}
			return w.Flush()
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "How long to browse")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	return cmd
}
