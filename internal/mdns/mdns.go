// Package mdns advertises the chrono server on the local network with
// DNS-SD so phone widgets and remote UIs can find it without typing an IP.
//
// Advertisement is opt-in. Discovery only reveals presence; a paired token
// is still required when the server has require_auth set.
package mdns

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/grandcat/zeroconf"
)

// ServiceType is the DNS-SD service type for chrono servers.
const ServiceType = "_chrono._tcp"

// ProtocolVersion is bumped when the WebSocket message format changes.
const ProtocolVersion = "1"

// Config describes what to advertise.
type Config struct {
	Port int
	// Name defaults to the hostname.
	Name string
	// AuthRequired tells clients they must pair first.
	AuthRequired bool
	// TLS tells clients to connect with wss.
	TLS bool
}

type server interface {
	Shutdown()
}

// Advertiser registers and unregisters the service. Start and Stop are
// idempotent.
type Advertiser struct {
	cfg Config

	mu     sync.Mutex
	server server

	register func(instance, service, domain string, port int, txt []string) (server, error)
}

func NewAdvertiser(cfg Config) *Advertiser {
	return &Advertiser{
		cfg: cfg,
		register: func(instance, service, domain string, port int, txt []string) (server, error) {
			return zeroconf.Register(instance, service, domain, port, txt, nil)
		},
	}
}

func (a *Advertiser) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		return nil
	}

	name := a.instanceName()
	s, err := a.register(name, ServiceType, "local.", a.cfg.Port, a.txt(name))
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}
	a.server = s
	log.Printf("mdns: advertising %q as %s on port %d", name, ServiceType, a.cfg.Port)
	return nil
}

func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

func (a *Advertiser) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

func (a *Advertiser) instanceName() string {
	if a.cfg.Name != "" {
		return a.cfg.Name
	}
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "chrono"
}

func (a *Advertiser) txt(name string) []string {
	auth := "none"
	if a.cfg.AuthRequired {
		auth = "required"
	}
	txt := []string{
		"version=" + ProtocolVersion,
		"name=" + name,
		"path=/ws",
		"auth=" + auth,
	}
	if a.cfg.TLS {
		txt = append(txt, "tls=1")
	}
	return txt
}

// Host is a chrono server found by Discover.
type Host struct {
	Name         string `json:"name"`
	Addr         string `json:"addr"`
	Port         int    `json:"port"`
	Version      string `json:"version"`
	Path         string `json:"path"`
	AuthRequired bool   `json:"auth_required"`
	TLS          bool   `json:"tls"`
}

// Discover browses for chrono servers until ctx is done.
func Discover(ctx context.Context) ([]Host, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var (
		hosts []Host
		wg    sync.WaitGroup
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for e := range entries {
			h := parseTXT(e.Text)
			if h.Name == "" {
				h.Name = e.Instance
			}
			h.Port = e.Port
			if len(e.AddrIPv4) > 0 {
				h.Addr = e.AddrIPv4[0].String()
			} else if len(e.AddrIPv6) > 0 {
				h.Addr = e.AddrIPv6[0].String()
			}
			hosts = append(hosts, h)
		}
	}()

	if err := resolver.Browse(ctx, ServiceType, "local.", entries); err != nil {
		return nil, fmt.Errorf("mdns browse: %w", err)
	}
	<-ctx.Done()
	// zeroconf closes entries once ctx is done.
	wg.Wait()
	return hosts, nil
}

func parseTXT(records []string) Host {
	var h Host
	for _, rec := range records {
		key, val, ok := strings.Cut(rec, "=")
		if !ok {
			continue
		}
		switch key {
		case "version":
			h.Version = val
		case "name":
			h.Name = val
		case "path":
			h.Path = val
		case "auth":
			h.AuthRequired = val == "required"
		case "tls":
			h.TLS = val == "1"
		}
	}
	return h
}
