// Package server is the network face of the chrono host. It streams timer
// snapshots to WebSocket clients, accepts timer commands from them, and
// serves the loopback JSON API used by the chrono CLI.
package server

import (
	"crypto/tls"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/codechrono/chrono/internal/auth"
	"github.com/codechrono/chrono/internal/keepawake"
	"github.com/codechrono/chrono/internal/metrics"
	"github.com/codechrono/chrono/internal/timer"
)

// channelBufferSize is the size of the broadcast queue and of each
// client's send queue.
const channelBufferSize = 256

// Per-client command limits.
const (
	commandRate  = 10
	commandBurst = 20
)

// Timer is the command surface of the timer engine. timer.Controller
// implements it.
type Timer interface {
	Start(taskName string, minutes int) error
	StartBreak(phase timer.Phase, minutes int) error
	PauseOrResume() error
	Reset() error
	RecordActivity()
	Snapshot() timer.Snapshot
}

var _ Timer = (*timer.Controller)(nil)

// Server fans timer snapshots out to WebSocket clients and routes their
// commands to the Timer.
type Server struct {
	addr     string
	timer    Timer
	upgrader websocket.Upgrader

	mu        sync.RWMutex
	clients   map[*Client]bool
	broadcast chan Message
	stopped   bool

	httpServer *http.Server
	listener   net.Listener
	startTime  time.Time

	// Optional collaborators, set before Start.
	metrics     *metrics.Metrics
	validator   *auth.Validator
	requireAuth bool
	pairer      *auth.Pairer
	onPaired    func(*auth.Device)
	keepAwake   func() keepawake.Status
	tlsConfig   *tls.Config
}

// Client is one WebSocket connection.
type Client struct {
	conn *websocket.Conn

	// send queues outgoing messages for writePump.
	send chan Message

	// done is closed exactly once, via closeSend, to stop the client.
	done     chan struct{}
	sendOnce sync.Once

	server *Server

	// deviceID is the paired device behind this connection, or "" for
	// loopback and unauthenticated clients.
	deviceID string

	limiter *rate.Limiter
}

// NewServer creates a server that will listen on addr and drive t.
func NewServer(addr string, t Timer) *Server {
	return &Server{
		addr:      addr,
		timer:     t,
		clients:   make(map[*Client]bool),
		broadcast: make(chan Message, channelBufferSize),
		upgrader: websocket.Upgrader{
			// Browser UIs are served from anywhere; access is gated by auth.
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// SetTLS makes StartAsync serve HTTPS and WSS with cfg.
func (s *Server) SetTLS(cfg *tls.Config) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tlsConfig = cfg
}

// SetMetrics enables /metrics and command and client accounting.
func (s *Server) SetMetrics(m *metrics.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

// SetAuth installs the token validator. When required is set, non-loopback
// requests to /ws and /api must carry a valid device token.
func (s *Server) SetAuth(v *auth.Validator, required bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validator = v
	s.requireAuth = required
}

// SetPairer enables /pair and /pair/generate. onPaired may be nil.
func (s *Server) SetPairer(p *auth.Pairer, onPaired func(*auth.Device)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pairer = p
	s.onPaired = onPaired
}

// SetKeepAwakeStatus reports keep-awake state on /status.
func (s *Server) SetKeepAwakeStatus(fn func() keepawake.Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keepAwake = fn
}

// Addr returns the bound listen address once started, otherwise the
// configured one.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// CloseDeviceConnections disconnects every client of a revoked device and
// returns how many were closed.
func (s *Server) CloseDeviceConnections(deviceID string) int {
	if deviceID == "" {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var closed int
	for client := range s.clients {
		if client.deviceID == deviceID {
			client.closeSend()
			closed++
		}
	}
	if closed > 0 {
		log.Printf("server: closed %d connection(s) for revoked device %s", closed, deviceID)
	}
	return closed
}

func (s *Server) addClient(c *Client) int {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		c.closeSend()
		return 0
	}
	s.clients[c] = true
	n := len(s.clients)
	m := s.metrics
	s.mu.Unlock()
	if m != nil {
		m.SetClients(n)
	}
	return n
}

func (s *Server) removeClient(c *Client) int {
	s.mu.Lock()
	delete(s.clients, c)
	n := len(s.clients)
	m := s.metrics
	s.mu.Unlock()
	if m != nil {
		m.SetClients(n)
	}
	return n
}
