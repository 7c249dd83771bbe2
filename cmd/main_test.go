package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/codechrono/chrono/internal/auth"
	"github.com/codechrono/chrono/internal/certs"
	apperrors "github.com/codechrono/chrono/internal/errors"
	"github.com/codechrono/chrono/internal/server"
	"github.com/codechrono/chrono/internal/storage"
	"github.com/codechrono/chrono/internal/timer"
)

// testEnv points HOME at a temp dir so nothing touches the real ~/.chrono,
// and returns a database path for --db.
func testEnv(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return filepath.Join(home, "data", "chrono.db")
}

func runWithArgs(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(append([]string{"chrono"}, args...), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestRunUsage(t *testing.T) {
	testEnv(t)
	code, out, _ := runWithArgs()
	if code != 0 {
		t.Fatalf("expected exit code 0, got %d", code)
	}
	if !strings.Contains(out, "Usage:") {
		t.Fatalf("expected usage output, got %q", out)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	testEnv(t)
	code, _, errOut := runWithArgs("nope")
	if code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(errOut, "unknown command") {
		t.Fatalf("expected unknown command error, got %q", errOut)
	}
}

func TestErrorText(t *testing.T) {
	if got := errorText(errors.New("plain")); got != "plain" {
		t.Errorf("plain error: got %q", got)
	}
	coded := apperrors.New(apperrors.CodeTimerInvalidDuration, "minutes must be between 1 and 240")
	want := "minutes must be between 1 and 240 (timer.invalid_duration)"
	if got := errorText(coded); got != want {
		t.Errorf("coded error: got %q, want %q", got, want)
	}
}

func TestDialAddr(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"127.0.0.1:7878", "127.0.0.1:7878"},
		{"0.0.0.0:7878", "127.0.0.1:7878"},
		{":7878", "127.0.0.1:7878"},
		{"[::]:7878", "127.0.0.1:7878"},
		{"192.168.1.5:9000", "192.168.1.5:9000"},
		{"garbage", "garbage"},
	}
	for _, tt := range tests {
		if got := dialAddr(tt.in); got != tt.want {
			t.Errorf("dialAddr(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		seconds int64
		want    string
	}{
		{-3, "00:00"},
		{0, "00:00"},
		{59, "00:59"},
		{25 * 60, "25:00"},
		{3600 + 62, "1:01:02"},
	}
	for _, tt := range tests {
		if got := formatClock(tt.seconds); got != tt.want {
			t.Errorf("formatClock(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestFormatTotal(t *testing.T) {
	if got := formatTotal(12 * 60); got != "12m" {
		t.Errorf("got %q", got)
	}
	if got := formatTotal(3600 + 5*60); got != "1h 05m" {
		t.Errorf("got %q", got)
	}
}

func TestFormatAgo(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "just now"},
		{59 * time.Second, "just now"},
		{5 * time.Minute, "5m ago"},
		{2 * time.Hour, "2h ago"},
		{48 * time.Hour, "2d ago"},
		{-5 * time.Minute, "in the future"},
	}
	for _, tt := range tests {
		if got := formatAgo(tt.d); got != tt.want {
			t.Errorf("formatAgo(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestPairHelpers(t *testing.T) {
	if got := formatCodeWithSpaces("123456"); got != "1 2 3 4 5 6" {
		t.Errorf("formatCodeWithSpaces = %q", got)
	}
	p := pairingInfo{code: "123456", addr: "10.0.0.2:7878"}
	if got := pairURL(p); got != "chrono://pair?code=123456&host=10.0.0.2%3A7878" {
		t.Errorf("pairURL = %q", got)
	}
	p.fingerprint = "AA:BB"
	if got := pairURL(p); got != "chrono://pair?code=123456&fp=AA%3ABB&host=10.0.0.2%3A7878" {
		t.Errorf("pairURL with fingerprint = %q", got)
	}

	var buf bytes.Buffer
	displayQRCode(&buf, p)
	if !strings.Contains(buf.String(), "1 2 3 4 5 6") || !strings.Contains(buf.String(), "AA:BB") {
		t.Errorf("QR output missing plain-text fallback: %q", buf.String())
	}
	if !isLoopbackAddr("127.0.0.1:7878") || !isLoopbackAddr("localhost:1") {
		t.Error("expected loopback addresses")
	}
	if isLoopbackAddr("0.0.0.0:7878") {
		t.Error("wildcard is not loopback")
	}
}

func TestTasksAddAndList(t *testing.T) {
	db := testEnv(t)

	code, out, errOut := runWithArgs("--db", db, "tasks", "add", "Write", "report", "-p", "work", "--tag", "urgent", "--priority", "2")
	if code != 0 {
		t.Fatalf("add failed: %s", errOut)
	}
	if !strings.Contains(out, "Created task 1: Write report") {
		t.Fatalf("unexpected add output %q", out)
	}

	code, out, errOut = runWithArgs("--db", db, "tasks", "list", "--project", "work")
	if code != 0 {
		t.Fatalf("list failed: %s", errOut)
	}
	if !strings.Contains(out, "Write report") || !strings.Contains(out, "urgent") {
		t.Fatalf("expected task in list, got %q", out)
	}

	code, _, errOut = runWithArgs("--db", db, "tasks", "done", "1")
	if code != 0 {
		t.Fatalf("done failed: %s", errOut)
	}
	code, out, _ = runWithArgs("--db", db, "tasks", "list", "--status", storage.StatusTodo)
	if code != 0 || !strings.Contains(out, "No tasks found.") {
		t.Fatalf("expected no todo tasks, got %q", out)
	}

	code, _, errOut = runWithArgs("--db", db, "tasks", "done", "99")
	if code != 1 || errOut == "" {
		t.Fatalf("expected error for missing task, code %d", code)
	}
}

func TestTasksAddRequiresTitle(t *testing.T) {
	db := testEnv(t)
	code, _, errOut := runWithArgs("--db", db, "tasks", "add")
	if code != 1 || !strings.Contains(errOut, "title is required") {
		t.Fatalf("expected title error, got %d %q", code, errOut)
	}
}

func TestTemplatesRoundTrip(t *testing.T) {
	db := testEnv(t)

	code, out, errOut := runWithArgs("--db", db, "templates", "add", "standup", "--title", "Daily standup", "--priority", "1")
	if code != 0 {
		t.Fatalf("templates add failed: %s", errOut)
	}
	if !strings.Contains(out, `Added template "standup"`) {
		t.Fatalf("unexpected output %q", out)
	}

	_, out, _ = runWithArgs("--db", db, "templates", "list")
	if !strings.Contains(out, "Daily standup") {
		t.Fatalf("expected template in list, got %q", out)
	}

	code, out, errOut = runWithArgs("--db", db, "tasks", "add", "-t", "standup")
	if code != 0 {
		t.Fatalf("tasks add from template failed: %s", errOut)
	}
	if !strings.Contains(out, "Daily standup") {
		t.Fatalf("expected template title, got %q", out)
	}

	if code, _, errOut := runWithArgs("--db", db, "templates", "remove", "standup"); code != 0 {
		t.Fatalf("remove failed: %s", errOut)
	}
	_, out, _ = runWithArgs("--db", db, "templates", "list")
	if !strings.Contains(out, "No templates found.") {
		t.Fatalf("expected empty list, got %q", out)
	}
}

func TestExportImportClear(t *testing.T) {
	db := testEnv(t)

	store, err := openStore(db)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.LogAction("Write report", storage.ActionStart, 0, 0); err != nil {
		t.Fatalf("LogAction: %v", err)
	}
	if err := store.LogCompletion("Write report", 1500, 0); err != nil {
		t.Fatalf("LogCompletion: %v", err)
	}
	store.Close()

	csvPath := filepath.Join(t.TempDir(), "log.csv")
	code, _, errOut := runWithArgs("--db", db, "export", "--out", csvPath)
	if code != 0 {
		t.Fatalf("export failed: %s", errOut)
	}
	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(data), "Write report") {
		t.Fatalf("export missing records: %q", data)
	}

	code, _, errOut = runWithArgs("--db", db, "clear-log")
	if code != 1 || !strings.Contains(errOut, "--yes") {
		t.Fatalf("expected confirmation error, got %d %q", code, errOut)
	}
	code, out, _ := runWithArgs("--db", db, "clear-log", "--yes")
	if code != 0 || !strings.Contains(out, "Deleted 2 records") {
		t.Fatalf("unexpected clear output %d %q", code, out)
	}

	code, out, errOut = runWithArgs("--db", db, "import", csvPath)
	if code != 0 {
		t.Fatalf("import failed: %s", errOut)
	}
	if !strings.Contains(out, "Imported 2 records") {
		t.Fatalf("unexpected import output %q", out)
	}

	_, out, _ = runWithArgs("--db", db, "history")
	if !strings.Contains(out, "complete") || !strings.Contains(out, "25:00") {
		t.Fatalf("expected completion in history, got %q", out)
	}

	_, out, _ = runWithArgs("--db", db, "stats", "--days", "1")
	if !strings.Contains(out, "Write report") || !strings.Contains(out, "25m") {
		t.Fatalf("expected stats for task, got %q", out)
	}
}

func TestImportRejectsBadFile(t *testing.T) {
	db := testEnv(t)
	bad := filepath.Join(t.TempDir(), "bad.csv")
	if err := os.WriteFile(bad, []byte("not,a,log\n"), 0600); err != nil {
		t.Fatal(err)
	}
	code, _, errOut := runWithArgs("--db", db, "import", bad)
	if code != 1 || !strings.Contains(errOut, apperrors.CodeImportInvalidHeader) {
		t.Fatalf("expected header error, got %d %q", code, errOut)
	}
}

func TestInitConfig(t *testing.T) {
	testEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	code, out, errOut := runWithArgs("--config", path, "init-config")
	if code != 0 {
		t.Fatalf("init-config failed: %s", errOut)
	}
	if !strings.Contains(out, "Wrote "+path) {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config not written: %v", err)
	}

	_, out, _ = runWithArgs("--config", path, "init-config")
	if !strings.Contains(out, "already exists") {
		t.Fatalf("expected existing file to be kept, got %q", out)
	}

	// The generated file must load.
	if code, _, errOut := runWithArgs("--config", path, "--db", filepath.Join(t.TempDir(), "c.db"), "tasks", "list"); code != 0 {
		t.Fatalf("generated config did not load: %s", errOut)
	}
}

func TestDevicesListAndRevoke(t *testing.T) {
	db := testEnv(t)

	store, err := openStore(db)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	now := time.Now()
	if err := store.SaveDevice(&storage.Device{
		ID: "device-001", Name: "Phone", TokenHash: "hash",
		CreatedAt: now.Add(-48 * time.Hour), LastSeen: now.Add(-5 * time.Minute),
	}); err != nil {
		t.Fatalf("SaveDevice: %v", err)
	}
	store.Close()

	_, out, _ := runWithArgs("--db", db, "devices", "list")
	if !strings.Contains(out, "device-001") || !strings.Contains(out, "2d ago") || !strings.Contains(out, "5m ago") {
		t.Fatalf("unexpected devices list %q", out)
	}

	// No host is running on this address; revoke still succeeds.
	code, out, errOut := runWithArgs("--db", db, "--addr", "127.0.0.1:1", "devices", "revoke", "device-001")
	if code != 0 {
		t.Fatalf("revoke failed: %s", errOut)
	}
	if !strings.Contains(out, "Revoked device device-001") {
		t.Fatalf("unexpected revoke output %q", out)
	}

	code, _, errOut = runWithArgs("--db", db, "devices", "revoke", "device-001")
	if code != 1 || !strings.Contains(errOut, "not found") {
		t.Fatalf("expected not found, got %d %q", code, errOut)
	}
}

func TestTimerCommandsAgainstHost(t *testing.T) {
	testEnv(t)

	ctrl := timer.New(timer.Options{})
	defer ctrl.Close()
	srv := server.NewServer("127.0.0.1:0", ctrl)
	if err := <-srv.StartAsync(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	defer srv.Stop()
	addr := srv.Addr()

	code, out, errOut := runWithArgs("--addr", addr, "start", "Write", "docs", "-m", "10")
	if code != 0 {
		t.Fatalf("start failed: %s", errOut)
	}
	if !strings.Contains(out, "Write docs") || !strings.Contains(out, "running") {
		t.Fatalf("unexpected start output %q", out)
	}

	code, out, _ = runWithArgs("--addr", addr, "pause")
	if code != 0 || !strings.Contains(out, "paused") {
		t.Fatalf("unexpected pause output %d %q", code, out)
	}

	code, _, errOut = runWithArgs("--addr", addr, "start", "-m", "5000")
	if code != 1 || !strings.Contains(errOut, apperrors.CodeTimerInvalidDuration) {
		t.Fatalf("expected invalid duration, got %d %q", code, errOut)
	}

	code, out, errOut = runWithArgs("--addr", addr, "status", "--json")
	if code != 0 {
		t.Fatalf("status failed: %s", errOut)
	}
	var st server.StatusResponse
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode status: %v (%q)", err, out)
	}
	if st.Timer.ActiveTaskName != "Write docs" || !st.Timer.Paused {
		t.Fatalf("unexpected timer state %+v", st.Timer)
	}

	code, out, _ = runWithArgs("--addr", addr, "reset")
	if code != 0 || !strings.Contains(out, "idle") {
		t.Fatalf("unexpected reset output %d %q", code, out)
	}
}

func TestStatusOverTLS(t *testing.T) {
	testEnv(t)
	certDir := t.TempDir()
	info, err := certs.Ensure(certDir, nil)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	tlsConfig, err := certs.ServerConfig(info.CertPath, info.KeyPath)
	if err != nil {
		t.Fatalf("ServerConfig: %v", err)
	}

	ctrl := timer.New(timer.Options{})
	defer ctrl.Close()
	srv := server.NewServer("127.0.0.1:0", ctrl)
	srv.SetTLS(tlsConfig)
	if err := <-srv.StartAsync(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	defer srv.Stop()

	cfgPath := filepath.Join(t.TempDir(), "config.toml")
	body := "tls = true\ncert_dir = " + strconv.Quote(certDir) + "\n"
	if err := os.WriteFile(cfgPath, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}

	code, out, errOut := runWithArgs("--config", cfgPath, "--addr", srv.Addr(), "status", "--json")
	if code != 0 {
		t.Fatalf("status over TLS failed: %s", errOut)
	}
	var st server.StatusResponse
	if err := json.Unmarshal([]byte(out), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !st.TLS {
		t.Error("expected TLS in status")
	}

	// Without tls in the config the CLI speaks plain HTTP and fails.
	code, _, _ = runWithArgs("--addr", srv.Addr(), "status")
	if code != 1 {
		t.Error("plain HTTP against a TLS host should fail")
	}
}

func TestHostUnreachable(t *testing.T) {
	testEnv(t)
	code, _, errOut := runWithArgs("--addr", "127.0.0.1:1", "status")
	if code != 1 || !strings.Contains(errOut, "chrono serve") {
		t.Fatalf("expected unreachable hint, got %d %q", code, errOut)
	}
}

func TestHostClientErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/pair/generate":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(auth.CodeResponse{Code: "123456", Expiry: time.Now().Add(5 * time.Minute)})
		case "/api/timer/break":
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(auth.ErrorResponse{Code: apperrors.CodeTimerInvalidPhase, Message: "bad phase"})
		default:
			w.WriteHeader(http.StatusTeapot)
		}
	}))
	defer ts.Close()

	c := newHostClient(strings.TrimPrefix(ts.URL, "http://"))

	resp, err := c.GenerateCode()
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if resp.Code != "123456" {
		t.Fatalf("unexpected code %q", resp.Code)
	}

	_, err = c.Command(server.CommandPayload{Command: server.CommandBreak, Phase: "work"})
	if !apperrors.IsCode(err, apperrors.CodeTimerInvalidPhase) {
		t.Fatalf("expected invalid phase, got %v", err)
	}

	_, err = c.State()
	if err == nil || !strings.Contains(err.Error(), "418") {
		t.Fatalf("expected status error, got %v", err)
	}
}
