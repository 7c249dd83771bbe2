package server

import (
	"net/http"
	"time"

	"github.com/codechrono/chrono/internal/auth"
	apperrors "github.com/codechrono/chrono/internal/errors"
	"github.com/codechrono/chrono/internal/keepawake"
	"github.com/codechrono/chrono/internal/timer"
)

// StatusResponse is the body of GET /status, read by `chrono status`.
type StatusResponse struct {
	ListeningAddress string            `json:"listening_address"`
	ConnectedClients int               `json:"connected_clients"`
	UptimeSeconds    int64             `json:"uptime_seconds"`
	RequireAuth      bool              `json:"require_auth"`
	PairingActive    bool              `json:"pairing_active"`
	TLS              bool              `json:"tls"`
	Timer            timer.Snapshot    `json:"timer"`
	KeepAwake        *keepawake.Status `json:"keep_awake,omitempty"`
}

// Status assembles the current host status.
func (s *Server) Status() StatusResponse {
	s.mu.RLock()
	started := s.startTime
	requireAuth := s.requireAuth
	pairer := s.pairer
	keepAwake := s.keepAwake
	tlsEnabled := s.tlsConfig != nil
	s.mu.RUnlock()

	resp := StatusResponse{
		ListeningAddress: s.Addr(),
		ConnectedClients: s.ClientCount(),
		RequireAuth:      requireAuth,
		TLS:              tlsEnabled,
		Timer:            s.timer.Snapshot(),
	}
	if !started.IsZero() {
		resp.UptimeSeconds = int64(time.Since(started).Seconds())
	}
	if pairer != nil {
		resp.PairingActive = pairer.Active()
	}
	if keepAwake != nil {
		st := keepAwake()
		resp.KeepAwake = &st
	}
	return resp
}

// handleStatus serves GET /status to loopback callers only.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !auth.IsLoopback(r) {
		auth.WriteError(w, http.StatusForbidden, apperrors.New(apperrors.CodeAuthRequired,
			"status is only available from this machine"))
		return
	}
	writeJSON(w, http.StatusOK, s.Status())
}
