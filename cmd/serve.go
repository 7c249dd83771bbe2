package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/codechrono/chrono/internal/auth"
	"github.com/codechrono/chrono/internal/certs"
	"github.com/codechrono/chrono/internal/config"
	"github.com/codechrono/chrono/internal/keepawake"
	"github.com/codechrono/chrono/internal/mdns"
	"github.com/codechrono/chrono/internal/metrics"
	"github.com/codechrono/chrono/internal/notify"
	"github.com/codechrono/chrono/internal/server"
	"github.com/codechrono/chrono/internal/storage"
	"github.com/codechrono/chrono/internal/timer"
)

type serveOptions struct {
	requireAuth    bool
	mdns           bool
	keepAwake      bool
	tls            bool
	notifications  bool
	logFile        string
	defaultMinutes int
	idleTimeout    int
}

func newServeCmd(a *app) *cobra.Command {
	var o serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the timer host",
		Long: `Run the timer host in the foreground.

The host owns the timer, writes the session log and streams the timer
state to WebSocket clients at /ws. Stop it with Ctrl-C.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			applyServeFlags(cmd.Flags(), cfg, o)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, a.stderr)
		},
	}

	fs := cmd.Flags()
	fs.BoolVar(&o.requireAuth, "require-auth", false, "Require a paired device token for LAN clients")
	fs.BoolVar(&o.mdns, "mdns", false, "Advertise the host on the local network")
	fs.BoolVar(&o.tls, "tls", false, "Serve HTTPS and WSS with a self-signed certificate")
	fs.BoolVar(&o.keepAwake, "keep-awake", false, "Keep the machine awake while a session runs")
	fs.BoolVar(&o.notifications, "notifications", true, "Show desktop notifications when a session ends")
	fs.StringVar(&o.logFile, "log-file", "", "Write the log to this file instead of stderr")
	fs.IntVar(&o.defaultMinutes, "default-minutes", 0, "Default work session length")
	fs.IntVar(&o.idleTimeout, "idle-timeout", 0, "Seconds without activity before a session is paused")
	return cmd
}

// applyServeFlags copies explicitly set flags over the config file values.
func applyServeFlags(fs *pflag.FlagSet, cfg *config.Config, o serveOptions) {
	if fs.Changed("require-auth") {
		cfg.RequireAuth = o.requireAuth
	}
	if fs.Changed("mdns") {
		cfg.MdnsEnabled = o.mdns
	}
	if fs.Changed("tls") {
		cfg.TLS = o.tls
	}
	if fs.Changed("keep-awake") {
		cfg.KeepAwake = o.keepAwake
	}
	if fs.Changed("notifications") {
		enabled := o.notifications
		cfg.Notifications = &enabled
	}
	if fs.Changed("log-file") {
		cfg.LogFile = o.logFile
	}
	if fs.Changed("default-minutes") {
		cfg.DefaultMinutes = o.defaultMinutes
	}
	if fs.Changed("idle-timeout") {
		cfg.IdleTimeoutSeconds = o.idleTimeout
	}
}

// serve runs the host until ctx is cancelled.
func serve(ctx context.Context, cfg *config.Config, stderr io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		defer f.Close()
		log.SetOutput(f)
		defer log.SetOutput(stderr)
	}

	store, err := openStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	m := metrics.New()
	journal := storage.NewJournal(store)
	journal.OnFailure = func(err error) {
		log.Printf("storage: dropping session log write: %v", err)
		m.LogWriteFailed(err)
	}

	// srv and follower are set before the first command can run, so the
	// snapshot handler never sees them nil.
	var (
		srv      *server.Server
		follower *keepawake.Follower
	)
	notifiers := notify.Multi{notify.Func(func(title, body string) error {
		return srv.Notify(title, body)
	})}
	if cfg.NotificationsEnabled() {
		notifiers = append(notifiers, notify.Logged(notify.NewDesktop()))
	}

	ctrl := timer.New(timer.Options{
		Log:      journal,
		Notifier: notifiers,
		OnSnapshot: func(s timer.Snapshot) {
			srv.BroadcastSnapshot(s)
			m.ObserveSnapshot(s)
			if follower != nil {
				follower.Observe(s)
			}
		},
		IdleTimeout:       cfg.IdleTimeout(),
		DefaultMinutes:    cfg.DefaultMinutes,
		ShortBreakMinutes: cfg.ShortBreakMinutes,
		LongBreakMinutes:  cfg.LongBreakMinutes,
	})
	defer ctrl.Close()

	srv = server.NewServer(cfg.Addr, ctrl)
	srv.SetMetrics(m)
	srv.SetAuth(auth.NewValidator(store), cfg.RequireAuth)
	srv.SetPairer(auth.NewPairer(auth.PairingConfig{Store: store}), func(d *auth.Device) {
		log.Printf("auth: device %q paired", d.Name)
	})

	if cfg.TLS {
		var hosts []string
		if ip := preferredOutboundIP(); ip != "" {
			hosts = append(hosts, ip)
		}
		info, err := certs.Ensure(cfg.CertDir, hosts)
		if err != nil {
			return err
		}
		tlsConfig, err := certs.ServerConfig(info.CertPath, info.KeyPath)
		if err != nil {
			return err
		}
		srv.SetTLS(tlsConfig)
		log.Printf("certs: fingerprint %s", info.Fingerprint)
	}

	followerDone := make(chan struct{})
	followCtx, stopFollower := context.WithCancel(context.Background())
	if cfg.KeepAwake {
		mgr := keepawake.NewManager(keepawake.NewDefaultAdapter(), time.Now)
		mgr.OnChange = func(st keepawake.Status) {
			log.Printf("keepawake: %s %s", st.State, st.Reason)
		}
		follower = keepawake.NewFollower(mgr, keepawake.NewDefaultPowerSource(), keepawake.DefaultBatteryFloor)
		srv.SetKeepAwakeStatus(mgr.Status)
		go func() {
			defer close(followerDone)
			follower.Run(followCtx)
		}()
	} else {
		close(followerDone)
	}
	defer func() {
		stopFollower()
		<-followerDone
	}()

	if err := <-srv.StartAsync(); err != nil {
		return err
	}
	defer srv.Stop()

	if cfg.MdnsEnabled {
		adv := mdns.NewAdvertiser(mdns.Config{
			Port:         portOf(srv.Addr()),
			AuthRequired: cfg.RequireAuth,
			TLS:          cfg.TLS,
		})
		if err := adv.Start(); err != nil {
			log.Printf("mdns: advertisement failed: %v", err)
		} else {
			defer adv.Stop()
		}
	}

	fmt.Fprintf(stderr, "chrono host listening on %s\n", srv.Addr())
	<-ctx.Done()
	log.Printf("chrono: shutting down")
	return nil
}

func portOf(addr string) int {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	n, _ := strconv.Atoi(port)
	return n
}
