package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codechrono/chrono/internal/auth"
	"github.com/codechrono/chrono/internal/certs"
	"github.com/codechrono/chrono/internal/clock"
	apperrors "github.com/codechrono/chrono/internal/errors"
	"github.com/codechrono/chrono/internal/metrics"
	"github.com/codechrono/chrono/internal/storage"
	"github.com/codechrono/chrono/internal/timer"
)

type received struct {
	Type    MessageType     `json:"type"`
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

func newTestServer(t *testing.T) (*Server, *timer.Controller, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC))

	var srv *Server
	ctrl := timer.New(timer.Options{
		Clock:      fake,
		OnSnapshot: func(s timer.Snapshot) { srv.BroadcastSnapshot(s) },
	})
	srv = NewServer("127.0.0.1:0", ctrl)
	t.Cleanup(ctrl.Close)
	return srv, ctrl, fake
}

func startServer(t *testing.T, srv *Server) {
	t.Helper()
	if err := <-srv.StartAsync(); err != nil {
		t.Fatalf("StartAsync failed: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })
}

func dial(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg received
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return msg
}

// readUntil discards messages until one satisfies match.
func readUntil(t *testing.T, conn *websocket.Conn, match func(received) bool) received {
	t.Helper()
	for i := 0; i < 50; i++ {
		if msg := readMessage(t, conn); match(msg) {
			return msg
		}
	}
	t.Fatal("no matching message")
	return received{}
}

func send(t *testing.T, conn *websocket.Conn, id string, cmd CommandPayload) {
	t.Helper()
	err := conn.WriteJSON(map[string]any{
		"type":    MessageTypeTimerCommand,
		"id":      id,
		"payload": cmd,
	})
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func decodeSnapshot(t *testing.T, raw json.RawMessage) timer.Snapshot {
	t.Helper()
	var s timer.Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		t.Fatalf("bad snapshot %s: %v", raw, err)
	}
	return s
}

func decodeError(t *testing.T, raw json.RawMessage) ErrorPayload {
	t.Helper()
	var e ErrorPayload
	if err := json.Unmarshal(raw, &e); err != nil {
		t.Fatalf("bad error payload %s: %v", raw, err)
	}
	return e
}

func TestWebSocket_StateOnConnect(t *testing.T) {
	srv, _, _ := newTestServer(t)
	startServer(t, srv)
	conn := dial(t, srv)

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeTimerState {
		t.Fatalf("first message type = %s", msg.Type)
	}
	s := decodeSnapshot(t, msg.Payload)
	if !s.Paused || s.TaskActive || s.Remaining != 25*60 {
		t.Errorf("initial snapshot = %+v", s)
	}
	if n := srv.ClientCount(); n != 1 {
		t.Errorf("ClientCount = %d, want 1", n)
	}
}

func TestWebSocket_CommandsAndTicks(t *testing.T) {
	srv, _, fake := newTestServer(t)
	startServer(t, srv)
	conn := dial(t, srv)
	readMessage(t, conn)

	send(t, conn, "1", CommandPayload{Command: CommandStart, TaskName: "Write report", Minutes: 1})
	result := readUntil(t, conn, func(m received) bool { return m.Type == MessageTypeCommandResult })
	if result.ID != "1" {
		t.Errorf("result id = %q", result.ID)
	}
	var payload CommandResultPayload
	json.Unmarshal(result.Payload, &payload)
	if payload.Command != CommandStart || payload.State.ActiveTaskName != "Write report" ||
		payload.State.Remaining != 60 || payload.State.Paused {
		t.Errorf("result = %+v", payload)
	}

	fake.Advance(time.Second)
	tick := readUntil(t, conn, func(m received) bool {
		return m.Type == MessageTypeTimerState && decodeSnapshot(t, m.Payload).Event == timer.EventTick
	})
	if s := decodeSnapshot(t, tick.Payload); s.Remaining != 59 {
		t.Errorf("tick remaining = %d, want 59", s.Remaining)
	}

	send(t, conn, "2", CommandPayload{Command: CommandToggle})
	paused := readUntil(t, conn, func(m received) bool { return m.ID == "2" })
	json.Unmarshal(paused.Payload, &payload)
	if !payload.State.Paused || payload.State.Remaining != 59 {
		t.Errorf("after toggle = %+v", payload.State)
	}
}

func TestWebSocket_Errors(t *testing.T) {
	srv, _, _ := newTestServer(t)
	startServer(t, srv)
	conn := dial(t, srv)
	readMessage(t, conn)

	tests := []struct {
		name string
		raw  string
		id   string
		code string
	}{
		{"not json", `{`, "", apperrors.CodeServerInvalidMessage},
		{"unknown type", `{"type":"chess.move","id":"a"}`, "a", apperrors.CodeServerHandlerMissing},
		{"missing payload", `{"type":"timer.command","id":"b"}`, "b", apperrors.CodeServerInvalidMessage},
		{"unknown command", `{"type":"timer.command","id":"c","payload":{"command":"jump"}}`, "c", apperrors.CodeServerInvalidMessage},
		{"bad duration", `{"type":"timer.command","id":"d","payload":{"command":"start","minutes":-5}}`, "d", apperrors.CodeTimerInvalidDuration},
		{"bad phase", `{"type":"timer.command","id":"e","payload":{"command":"break","phase":"nap"}}`, "e", apperrors.CodeTimerInvalidPhase},
		{"work is not a break", `{"type":"timer.command","id":"f","payload":{"command":"break","phase":"work"}}`, "f", apperrors.CodeTimerInvalidPhase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.raw)); err != nil {
				t.Fatal(err)
			}
			msg := readUntil(t, conn, func(m received) bool { return m.Type == MessageTypeError })
			if msg.ID != tt.id {
				t.Errorf("id = %q, want %q", msg.ID, tt.id)
			}
			if e := decodeError(t, msg.Payload); e.Code != tt.code {
				t.Errorf("code = %q, want %q (%s)", e.Code, tt.code, e.Message)
			}
		})
	}
}

func TestWebSocket_RateLimited(t *testing.T) {
	srv, _, _ := newTestServer(t)
	startServer(t, srv)
	conn := dial(t, srv)
	readMessage(t, conn)

	for i := 0; i < commandBurst+10; i++ {
		send(t, conn, "", CommandPayload{Command: CommandState})
	}
	msg := readUntil(t, conn, func(m received) bool { return m.Type == MessageTypeError })
	if e := decodeError(t, msg.Payload); e.Code != apperrors.CodeServerRateLimited {
		t.Errorf("code = %q, want rate limited", e.Code)
	}
}

func TestNotify_ReachesClients(t *testing.T) {
	srv, _, _ := newTestServer(t)
	startServer(t, srv)
	conn := dial(t, srv)
	readMessage(t, conn)

	if err := srv.Notify(timer.NotificationTitle, "Work session done!"); err != nil {
		t.Fatal(err)
	}
	msg := readUntil(t, conn, func(m received) bool { return m.Type == MessageTypeNotification })
	var n NotificationPayload
	json.Unmarshal(msg.Payload, &n)
	if n.Title != timer.NotificationTitle || n.Body != "Work session done!" {
		t.Errorf("notification = %+v", n)
	}
}

func TestStop(t *testing.T) {
	srv, _, _ := newTestServer(t)
	startServer(t, srv)
	conn := dial(t, srv)
	readMessage(t, conn)

	if err := srv.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	// Late broadcasts and a second Stop are harmless.
	srv.BroadcastSnapshot(timer.Snapshot{})
	if err := srv.Stop(); err != nil {
		t.Errorf("second Stop = %v", err)
	}
	if srv.ClientCount() != 0 {
		t.Errorf("ClientCount = %d after Stop", srv.ClientCount())
	}
}

func TestStartAsync_PortInUse(t *testing.T) {
	first, _, _ := newTestServer(t)
	startServer(t, first)

	second := NewServer(first.Addr(), nil)
	if err := <-second.StartAsync(); err == nil {
		second.Stop()
		t.Fatal("expected listen error")
	}
}

func apiRequest(t *testing.T, h http.Handler, method, path, body, remote string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHTTP_TimerAPI(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.createMux()
	const local = "127.0.0.1:4000"

	rec := apiRequest(t, h, http.MethodPost, "/api/timer/start", `{"task_name":"Review","minutes":10}`, local)
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body.String())
	}
	var s timer.Snapshot
	json.NewDecoder(rec.Body).Decode(&s)
	if s.ActiveTaskName != "Review" || s.Remaining != 600 || s.Paused {
		t.Errorf("start snapshot = %+v", s)
	}

	rec = apiRequest(t, h, http.MethodPost, "/api/timer/toggle", "", local)
	json.NewDecoder(rec.Body).Decode(&s)
	if rec.Code != http.StatusOK || !s.Paused {
		t.Errorf("toggle = %d %+v", rec.Code, s)
	}

	rec = apiRequest(t, h, http.MethodPost, "/api/timer/break", `{"phase":"long"}`, local)
	json.NewDecoder(rec.Body).Decode(&s)
	if rec.Code != http.StatusOK || s.Phase != timer.LongBreak || s.Remaining != 15*60 {
		t.Errorf("break = %d %+v", rec.Code, s)
	}

	rec = apiRequest(t, h, http.MethodPost, "/api/timer/reset", "", local)
	json.NewDecoder(rec.Body).Decode(&s)
	if rec.Code != http.StatusOK || s.TaskActive || !s.Paused {
		t.Errorf("reset = %d %+v", rec.Code, s)
	}

	rec = apiRequest(t, h, http.MethodGet, "/api/timer/state", "", local)
	if rec.Code != http.StatusOK {
		t.Errorf("state status = %d", rec.Code)
	}
}

func TestHTTP_TimerAPIErrors(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.createMux()

	tests := []struct {
		name   string
		path   string
		body   string
		status int
		code   string
	}{
		{"unknown command", "/api/timer/jump", "", http.StatusBadRequest, apperrors.CodeServerInvalidMessage},
		{"bad json", "/api/timer/start", "{", http.StatusBadRequest, apperrors.CodeServerInvalidMessage},
		{"too long", "/api/timer/start", `{"minutes":5000}`, http.StatusBadRequest, apperrors.CodeTimerInvalidDuration},
		{"bad phase", "/api/timer/break", `{"phase":"nap"}`, http.StatusBadRequest, apperrors.CodeTimerInvalidPhase},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := apiRequest(t, h, http.MethodPost, tt.path, tt.body, "127.0.0.1:4000")
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
			var e auth.ErrorResponse
			json.NewDecoder(rec.Body).Decode(&e)
			if e.Code != tt.code {
				t.Errorf("code = %q, want %q", e.Code, tt.code)
			}
		})
	}
}

func TestHTTP_ClosedTimer(t *testing.T) {
	srv, ctrl, _ := newTestServer(t)
	ctrl.Close()
	rec := apiRequest(t, srv.createMux(), http.MethodPost, "/api/timer/start", "", "127.0.0.1:4000")
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestHTTP_Status(t *testing.T) {
	srv, _, _ := newTestServer(t)
	h := srv.createMux()

	rec := apiRequest(t, h, http.MethodGet, "/status", "", "10.0.0.5:4000")
	if rec.Code != http.StatusForbidden {
		t.Errorf("remote status = %d, want 403", rec.Code)
	}

	rec = apiRequest(t, h, http.MethodGet, "/status", "", "127.0.0.1:4000")
	if rec.Code != http.StatusOK {
		t.Fatalf("local status = %d", rec.Code)
	}
	var st StatusResponse
	json.NewDecoder(rec.Body).Decode(&st)
	if st.ListeningAddress != "127.0.0.1:0" || st.Timer.Remaining != 25*60 || st.KeepAwake != nil {
		t.Errorf("status = %+v", st)
	}

	rec = apiRequest(t, h, http.MethodGet, "/health", "", "10.0.0.5:4000")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Errorf("health = %d %q", rec.Code, rec.Body.String())
	}
}

func TestHTTP_AuthRequired(t *testing.T) {
	srv, _, _ := newTestServer(t)
	store, err := storage.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	srv.SetAuth(auth.NewValidator(store), true)
	srv.SetPairer(auth.NewPairer(auth.PairingConfig{Store: store, BcryptCost: 4}), nil)
	h := srv.createMux()

	if rec := apiRequest(t, h, http.MethodGet, "/ws", "", "10.0.0.5:4000"); rec.Code != http.StatusUnauthorized {
		t.Errorf("remote /ws without token = %d, want 401", rec.Code)
	}
	if rec := apiRequest(t, h, http.MethodPost, "/api/timer/toggle", "", "10.0.0.5:4000"); rec.Code != http.StatusUnauthorized {
		t.Errorf("remote api without token = %d, want 401", rec.Code)
	}
	if rec := apiRequest(t, h, http.MethodPost, "/api/timer/toggle", "", "127.0.0.1:4000"); rec.Code != http.StatusOK {
		t.Errorf("local api = %d, want 200", rec.Code)
	}

	// Pair from the LAN with a code minted locally, then use the token.
	rec := apiRequest(t, h, http.MethodPost, "/pair/generate", "", "127.0.0.1:4000")
	var code auth.CodeResponse
	json.NewDecoder(rec.Body).Decode(&code)
	body, _ := json.Marshal(auth.PairRequest{Code: code.Code, DeviceName: "Phone"})
	rec = apiRequest(t, h, http.MethodPost, "/pair", string(body), "10.0.0.5:4000")
	var paired auth.PairResponse
	json.NewDecoder(rec.Body).Decode(&paired)
	if paired.Token == "" {
		t.Fatalf("pair failed: %d %s", rec.Code, rec.Body.String())
	}

	req := httptest.NewRequest(http.MethodPost, "/api/timer/toggle", bytes.NewReader(nil))
	req.RemoteAddr = "10.0.0.5:4000"
	req.Header.Set("Authorization", "Bearer "+paired.Token)
	out := httptest.NewRecorder()
	h.ServeHTTP(out, req)
	if out.Code != http.StatusOK {
		t.Errorf("remote api with token = %d: %s", out.Code, out.Body.String())
	}

	if rec := apiRequest(t, h, http.MethodGet, "/status", "", "127.0.0.1:4000"); rec.Code == http.StatusOK {
		var st StatusResponse
		json.NewDecoder(rec.Body).Decode(&st)
		if !st.RequireAuth || st.PairingActive {
			t.Errorf("status = %+v", st)
		}
	}
}

func TestCloseDeviceConnections(t *testing.T) {
	srv, _, _ := newTestServer(t)
	phone := &Client{done: make(chan struct{}), send: make(chan Message, 1), deviceID: "phone"}
	laptop := &Client{done: make(chan struct{}), send: make(chan Message, 1), deviceID: "laptop"}
	srv.clients[phone] = true
	srv.clients[laptop] = true

	if n := srv.CloseDeviceConnections("phone"); n != 1 {
		t.Errorf("closed = %d, want 1", n)
	}
	select {
	case <-phone.done:
	default:
		t.Error("phone client not closed")
	}
	select {
	case <-laptop.done:
		t.Error("laptop client closed")
	default:
	}

	rec := apiRequest(t, srv.createMux(), http.MethodPost, "/devices/laptop/revoke", "", "10.0.0.5:4000")
	if rec.Code != http.StatusForbidden {
		t.Errorf("remote revoke = %d, want 403", rec.Code)
	}
	rec = apiRequest(t, srv.createMux(), http.MethodPost, "/devices/laptop/revoke", "", "127.0.0.1:4000")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"closed":1`) {
		t.Errorf("local revoke = %d %s", rec.Code, rec.Body.String())
	}
}

func TestMetrics(t *testing.T) {
	srv, _, _ := newTestServer(t)
	srv.SetMetrics(metrics.New())
	h := srv.createMux()

	apiRequest(t, h, http.MethodPost, "/api/timer/start", `{"task_name":"x"}`, "127.0.0.1:4000")
	apiRequest(t, h, http.MethodPost, "/api/timer/start", `{"minutes":-1}`, "127.0.0.1:4000")

	rec := apiRequest(t, h, http.MethodGet, "/metrics", "", "127.0.0.1:4000")
	body := rec.Body.String()
	for _, want := range []string{
		`chrono_commands_total{command="start",result="ok"} 1`,
		`chrono_commands_total{command="start",result="error"} 1`,
		`chrono_http_responses_total{code="400"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestTLS(t *testing.T) {
	srv, _, _ := newTestServer(t)
	info, err := certs.Ensure(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Ensure failed: %v", err)
	}
	serverCfg, err := certs.ServerConfig(info.CertPath, info.KeyPath)
	if err != nil {
		t.Fatalf("ServerConfig failed: %v", err)
	}
	srv.SetTLS(serverCfg)
	startServer(t, srv)

	clientCfg, err := certs.ClientConfig(info.CertPath)
	if err != nil {
		t.Fatalf("ClientConfig failed: %v", err)
	}
	dialer := websocket.Dialer{TLSClientConfig: clientCfg, HandshakeTimeout: 2 * time.Second}
	conn, _, err := dialer.Dial("wss://"+srv.Addr()+"/ws", nil)
	if err != nil {
		t.Fatalf("wss dial failed: %v", err)
	}
	defer conn.Close()
	if msg := readMessage(t, conn); msg.Type != MessageTypeTimerState {
		t.Fatalf("first message = %s, want timer.state", msg.Type)
	}

	if _, _, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/ws", nil); err == nil {
		t.Error("plain ws dial should fail against a TLS listener")
	}
	if !srv.Status().TLS {
		t.Error("status should report TLS")
	}
}
