package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/codechrono/chrono/internal/auth"
	apperrors "github.com/codechrono/chrono/internal/errors"
)

const maxBodyBytes = 4096

// createMux builds the HTTP routes. Optional routes are registered only
// when their collaborator was set.
func (s *Server) createMux() http.Handler {
	s.mu.RLock()
	m := s.metrics
	validator := s.validator
	requireAuth := s.requireAuth
	pairer := s.pairer
	onPaired := s.onPaired
	s.mu.RUnlock()

	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	var api http.Handler = http.HandlerFunc(s.handleCommand)
	var state http.Handler = http.HandlerFunc(s.handleState)
	if validator != nil {
		api = auth.Middleware(validator, requireAuth, api)
		state = auth.Middleware(validator, requireAuth, state)
	}
	mux.Handle("POST /api/timer/{command}", api)
	mux.Handle("GET /api/timer/state", state)

	mux.HandleFunc("GET /status", s.handleStatus)
	mux.HandleFunc("POST /devices/{id}/revoke", s.handleRevoke)

	if pairer != nil {
		pair := auth.NewPairHandler(pairer)
		pair.OnPaired = onPaired
		mux.Handle("/pair", pair)
		mux.Handle("/pair/generate", auth.NewGenerateCodeHandler(pairer))
	}

	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
		return m.Middleware(mux)
	}
	return mux
}

// handleWebSocket authenticates and upgrades a /ws request, sends the
// current timer state, and starts the client's pumps.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	requireAuth := s.requireAuth
	validator := s.validator
	s.mu.RUnlock()

	var deviceID string
	if validator != nil && !auth.IsLoopback(r) {
		device, err := validator.Validate(auth.TokenFromRequest(r))
		switch {
		case err == nil:
			deviceID = device.ID
		case requireAuth:
			log.Printf("server: websocket rejected from %s: %v", r.RemoteAddr, err)
			auth.WriteError(w, http.StatusUnauthorized, err)
			return
		}
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: websocket upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn:     conn,
		send:     make(chan Message, channelBufferSize),
		done:     make(chan struct{}),
		server:   s,
		deviceID: deviceID,
		limiter:  rate.NewLimiter(rate.Limit(commandRate), commandBurst),
	}

	// Queue the current state before registering so it is the first thing
	// the client sees. A broadcast racing with this may arrive later with a
	// higher revision; clients keep whichever revision is newest.
	client.send <- NewTimerStateMessage(s.timer.Snapshot())
	n := s.addClient(client)
	if deviceID != "" {
		log.Printf("server: client connected for device %s (%d total)", deviceID, n)
	} else {
		log.Printf("server: client connected (%d total)", n)
	}

	go client.writePump()
	go client.readPump()
}

// handleCommand serves POST /api/timer/{command}. The body is an optional
// CommandPayload; its command field is ignored in favour of the path.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var cmd CommandPayload
	err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&cmd)
	if err != nil && !errors.Is(err, io.EOF) {
		auth.WriteError(w, http.StatusBadRequest, apperrors.InvalidMessage("invalid JSON body"))
		return
	}
	cmd.Command = r.PathValue("command")

	snap, err := s.execute(cmd)
	if err != nil {
		auth.WriteError(w, commandStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.timer.Snapshot())
}

// handleRevoke serves POST /devices/{id}/revoke. The CLI deletes the
// device from the database and then calls this so open connections of the
// device are dropped at once.
func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	if !auth.IsLoopback(r) {
		auth.WriteError(w, http.StatusForbidden, apperrors.New(apperrors.CodeAuthRequired,
			"devices can only be revoked from this machine"))
		return
	}
	closed := s.CloseDeviceConnections(r.PathValue("id"))
	writeJSON(w, http.StatusOK, map[string]int{"closed": closed})
}

func commandStatus(err error) int {
	switch apperrors.GetCode(err) {
	case apperrors.CodeTimerInvalidDuration, apperrors.CodeTimerInvalidPhase,
		apperrors.CodeServerInvalidMessage:
		return http.StatusBadRequest
	case apperrors.CodeTimerClosed:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("server: failed to write response: %v", err)
	}
}
