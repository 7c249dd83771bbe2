package main

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/codechrono/chrono/internal/certs"
)

func newPairCmd(a *app) *cobra.Command {
	var (
		showQR      bool
		displayAddr string
	)
	cmd := &cobra.Command{
		Use:   "pair",
		Short: "Generate a one-time code for pairing a device",
		Long: `Ask the running host for a six digit pairing code.

The code is valid for five minutes and can be redeemed once at POST /pair.
The device receives a token it sends as a bearer token afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			c, err := a.host()
			if err != nil {
				return err
			}
			resp, err := c.GenerateCode()
			if err != nil {
				return err
			}

			addr := displayAddr
			if addr == "" {
				addr = lanAddr(cfg.Addr)
			}
			if isLoopbackAddr(cfg.Addr) {
				fmt.Fprintf(a.stderr, "Warning: the host listens on %s only; serve with --addr 0.0.0.0:<port> to accept LAN devices\n", cfg.Addr)
			}

			info := pairingInfo{code: resp.Code, expiry: resp.Expiry, addr: addr}
			if cfg.TLS {
				certPath, keyPath := certs.Paths(cfg.CertDir)
				ci, err := certs.Load(certPath, keyPath)
				if err != nil {
					return err
				}
				info.fingerprint = ci.Fingerprint
			}

			if showQR {
				displayQRCode(a.stdout, info)
			} else {
				displayPairingCode(a.stdout, info)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showQR, "qr", false, "Show the pairing information as a QR code")
	cmd.Flags().StringVar(&displayAddr, "display-addr", "", "Address devices should connect to (default: LAN IP and host port)")
	return cmd
}

// pairingInfo is what a device needs to pair. fingerprint is empty
// without TLS.
type pairingInfo struct {
	code        string
	expiry      time.Time
	addr        string
	fingerprint string
}

func displayPairingCode(w io.Writer, p pairingInfo) {
	fmt.Fprintln(w, titleStyle.Render("Pairing code"))
	fmt.Fprintln(w, clockStyle.Render(formatCodeWithSpaces(p.code)))
	fmt.Fprintln(w, labelStyle.Render("Host")+p.addr)
	if p.fingerprint != "" {
		fmt.Fprintln(w, labelStyle.Render("Fingerprint")+p.fingerprint)
	}
	fmt.Fprintln(w, labelStyle.Render("Expires")+p.expiry.Local().Format("15:04:05"))
}

func displayQRCode(w io.Writer, p pairingInfo) {
	qr, err := qrcode.New(pairURL(p), qrcode.Medium)
	if err != nil {
		fmt.Fprintf(w, "Error generating QR code: %v\n\n", err)
		displayPairingCode(w, p)
		return
	}
	fmt.Fprintln(w, titleStyle.Render("Scan to pair"))
	// Compact half-block rendering without a quiet zone border.
	fmt.Fprint(w, qr.ToSmallString(false))
	displayPairingCode(w, p)
}

// pairURL is the payload encoded in the QR code.
func pairURL(p pairingInfo) string {
	v := url.Values{}
	v.Set("host", p.addr)
	v.Set("code", p.code)
	if p.fingerprint != "" {
		v.Set("fp", p.fingerprint)
	}
	return "chrono://pair?" + v.Encode()
}

// formatCodeWithSpaces spaces out digits: "123456" -> "1 2 3 4 5 6".
func formatCodeWithSpaces(code string) string {
	return strings.Join(strings.Split(code, ""), " ")
}

// lanAddr replaces the host of a listen address with the preferred outbound
// IP, keeping the port.
func lanAddr(listen string) string {
	_, port, err := net.SplitHostPort(listen)
	if err != nil {
		return listen
	}
	ip := preferredOutboundIP()
	if ip == "" {
		return dialAddr(listen)
	}
	return net.JoinHostPort(ip, port)
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// preferredOutboundIP asks the routing table which local address would be
// used for outbound traffic. Dialing UDP sends no packets.
func preferredOutboundIP() string {
	conn, err := net.Dial("udp4", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String()
}

func newDevicesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "devices",
		Aliases: []string{"device"},
		Short:   "Manage paired devices",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List paired devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			devices, err := store.ListDevices()
			if err != nil {
				return fmt.Errorf("failed to list devices: %w", err)
			}
			if len(devices) == 0 {
				fmt.Fprintln(a.stdout, "No paired devices found.")
				return nil
			}

			w := tabwriter.NewWriter(a.stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "DEVICE ID\tNAME\tCREATED\tLAST SEEN")
			now := time.Now()
			for _, d := range devices {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.Name,
					formatAgo(now.Sub(d.CreatedAt)), formatAgo(now.Sub(d.LastSeen)))
			}
			return w.Flush()
		},
	}

	revoke := &cobra.Command{
		Use:   "revoke <device-id>",
		Short: "Revoke a device's token and disconnect it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			device, err := store.GetDevice(id)
			if err != nil {
				return err
			}
			if device == nil {
				return fmt.Errorf("device not found: %s", id)
			}
			if err := store.DeleteDevice(id); err != nil {
				return fmt.Errorf("failed to revoke device: %w", err)
			}
			fmt.Fprintf(a.stdout, "Revoked device %s (%s)\n", device.ID, device.Name)

			// The token is already invalid; this only drops live connections.
			c, err := a.host()
			if err != nil {
				return nil
			}
			if n, err := c.RevokeDevice(id); err == nil && n > 0 {
				fmt.Fprintf(a.stdout, "Closed %d open connection(s)\n", n)
			}
			return nil
		},
	}

	cmd.AddCommand(list, revoke)
	return cmd
}
