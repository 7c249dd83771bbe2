package timer

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/codechrono/chrono/internal/clock"
	apperrors "github.com/codechrono/chrono/internal/errors"
)

type logEntry struct {
	Task    string
	Action  Action
	Elapsed int64
	Phase   Phase
}

type memLog struct {
	mu      sync.Mutex
	entries []logEntry
	fail    error
	// flush waits for the controller's queued writes before reading.
	flush func()
}

func (l *memLog) AppendAction(task string, action Action, elapsed int64, phase Phase) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return l.fail
	}
	l.entries = append(l.entries, logEntry{task, action, elapsed, phase})
	return nil
}

func (l *memLog) AppendCompletion(task string, elapsed int64, phase Phase) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fail != nil {
		return l.fail
	}
	l.entries = append(l.entries, logEntry{task, ActionComplete, elapsed, phase})
	return nil
}

func (l *memLog) all() []logEntry {
	if l.flush != nil {
		l.flush()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]logEntry(nil), l.entries...)
}

func (l *memLog) completions() []logEntry {
	var out []logEntry
	for _, e := range l.all() {
		if e.Action == ActionComplete {
			out = append(out, e)
		}
	}
	return out
}

func (l *memLog) actions() []Action {
	var out []Action
	for _, e := range l.all() {
		out = append(out, e.Action)
	}
	return out
}

type memNotifier struct {
	mu     sync.Mutex
	bodies []string
}

func (n *memNotifier) Notify(title, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.bodies = append(n.bodies, title+": "+body)
	return errors.New("notifications are not available in tests")
}

func (n *memNotifier) all() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.bodies...)
}

type snapRecorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *snapRecorder) record(s Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
}

func (r *snapRecorder) all() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

type harness struct {
	c     *Controller
	clock *clock.Fake
	log   *memLog
	note  *memNotifier
	snaps *snapRecorder
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock: clock.NewFake(time.Unix(1_700_000_000, 0)),
		log:   &memLog{},
		note:  &memNotifier{},
		snaps: &snapRecorder{},
	}
	h.c = New(Options{
		Clock:      h.clock,
		Log:        h.log,
		Notifier:   h.note,
		OnSnapshot: h.snaps.record,
	})
	h.log.flush = h.c.Flush
	t.Cleanup(h.c.Close)
	return h
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func (h *harness) waitRemaining(t *testing.T, want int64) {
	t.Helper()
	waitFor(t, "remaining to settle", func() bool { return h.c.Snapshot().Remaining == want })
}

func checkInvariants(t *testing.T, s Snapshot) {
	t.Helper()
	if s.Remaining > s.SessionDuration {
		t.Errorf("remaining %d > session duration %d", s.Remaining, s.SessionDuration)
	}
	if !s.TaskActive && (s.ActiveTaskName != "" || !s.Paused) {
		t.Errorf("inactive snapshot with name=%q paused=%v", s.ActiveTaskName, s.Paused)
	}
}

func TestInitialState(t *testing.T) {
	h := newHarness(t)
	s := h.c.Snapshot()
	want := Snapshot{Remaining: 1500, SessionDuration: 1500, Paused: true, Phase: Work, Event: EventState}
	if s != want {
		t.Errorf("initial snapshot = %+v, want %+v", s, want)
	}
	if h.clock.Tickers() != 0 {
		t.Errorf("tickers = %d, want 0", h.clock.Tickers())
	}
}

func TestStartValidatesDuration(t *testing.T) {
	h := newHarness(t)
	for _, minutes := range []int{-1, MaxMinutes + 1} {
		if err := h.c.Start("x", minutes); !apperrors.IsCode(err, apperrors.CodeTimerInvalidDuration) {
			t.Errorf("Start(%d) error = %v, want %s", minutes, err, apperrors.CodeTimerInvalidDuration)
		}
	}
	if err := h.c.StartBreak(Work, 5); !apperrors.IsCode(err, apperrors.CodeTimerInvalidPhase) {
		t.Errorf("StartBreak(Work) error = %v", err)
	}
	if len(h.log.all()) != 0 {
		t.Errorf("rejected commands wrote log entries: %v", h.log.all())
	}
}

func TestStartDefaultMinutes(t *testing.T) {
	h := newHarness(t)
	if err := h.c.Start("read", 0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s := h.c.Snapshot()
	if s.SessionDuration != 1500 || s.Remaining != 1500 || s.Paused || !s.TaskActive || s.ActiveTaskName != "read" {
		t.Errorf("snapshot after start = %+v", s)
	}
	got := h.log.all()
	want := []logEntry{{"read", ActionStart, 0, Work}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("log = %v, want %v", got, want)
	}
}

func TestNoDoubleLoop(t *testing.T) {
	h := newHarness(t)
	if err := h.c.Start("a", 25); err != nil {
		t.Fatal(err)
	}
	if err := h.c.Start("b", 25); err != nil {
		t.Fatal(err)
	}
	if err := h.c.PauseOrResume(); err != nil {
		t.Fatal(err)
	}
	if err := h.c.PauseOrResume(); err != nil {
		t.Fatal(err)
	}
	if n := h.clock.Tickers(); n != 1 {
		t.Fatalf("tickers = %d, want exactly 1 loop", n)
	}

	h.clock.Advance(time.Second)
	h.waitRemaining(t, 1499)
	h.clock.Advance(time.Second)
	h.waitRemaining(t, 1498)
}

func TestConcurrentStartsKeepOneLoop(t *testing.T) {
	h := newHarness(t)
	for round := 0; round < 10; round++ {
		if err := h.c.Reset(); err != nil {
			t.Fatal(err)
		}
		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := h.c.Start("race", 25); err != nil {
					t.Error(err)
				}
			}()
		}
		wg.Wait()
	}

	// Loops left behind by Reset exit on their next tick.
	h.clock.Advance(time.Second)
	h.waitRemaining(t, 1499)
	waitFor(t, "stale loops to exit", func() bool { return h.clock.Tickers() == 1 })
	if s := h.c.Snapshot(); s.Remaining != 1499 {
		t.Fatalf("remaining = %d after one second, want 1499", s.Remaining)
	}

	for want := int64(1498); want >= 1495; want-- {
		h.clock.Advance(time.Second)
		h.waitRemaining(t, want)
		if n := h.clock.Tickers(); n != 1 {
			t.Fatalf("tickers = %d, want 1", n)
		}
	}
}

func TestResetThenStartDoesNotDoubleDecrement(t *testing.T) {
	h := newHarness(t)
	if err := h.c.Start("a", 25); err != nil {
		t.Fatal(err)
	}
	if err := h.c.Reset(); err != nil {
		t.Fatal(err)
	}
	if err := h.c.Start("b", 25); err != nil {
		t.Fatal(err)
	}

	h.clock.Advance(time.Second)
	h.waitRemaining(t, 1499)
	waitFor(t, "stale loop to exit", func() bool { return h.clock.Tickers() == 1 })

	h.clock.Advance(time.Second)
	h.waitRemaining(t, 1498)
}

func TestResetCreditsElapsed(t *testing.T) {
	h := newHarness(t)
	if err := h.c.Start("draft", 1); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		h.clock.Advance(time.Second)
	}
	h.waitRemaining(t, 50)

	if err := h.c.Reset(); err != nil {
		t.Fatal(err)
	}

	got := h.log.completions()
	want := []logEntry{{"draft", ActionComplete, 10, Work}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("completions = %v, want %v", got, want)
	}

	s := h.c.Snapshot()
	if s.Remaining != 60 || s.SessionDuration != 60 || !s.Paused || s.TaskActive || s.ActiveTaskName != "" {
		t.Errorf("snapshot after reset = %+v", s)
	}
	snaps := h.snaps.all()
	if last := snaps[len(snaps)-1]; last.Event != EventReset || last.Credited != 10 {
		t.Errorf("last published = %+v, want reset crediting 10", last)
	}
}

func TestResetWithoutProgressWritesNothing(t *testing.T) {
	h := newHarness(t)
	if err := h.c.Start("idle", 5); err != nil {
		t.Fatal(err)
	}
	if err := h.c.Reset(); err != nil {
		t.Fatal(err)
	}
	if err := h.c.Reset(); err != nil {
		t.Fatal(err)
	}
	if c := h.log.completions(); len(c) != 0 {
		t.Errorf("completions = %v, want none", c)
	}
}

func TestRestartFinalizesPreviousSession(t *testing.T) {
	h := newHarness(t)
	if err := h.c.Start("A", 25); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(3 * time.Second)
	h.waitRemaining(t, 1497)

	if err := h.c.Start("B", 25); err != nil {
		t.Fatal(err)
	}

	got := h.log.all()
	want := []logEntry{
		{"A", ActionStart, 0, Work},
		{"A", ActionComplete, 3, Work},
		{"B", ActionStart, 0, Work},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("log = %v, want %v", got, want)
	}
	if s := h.c.Snapshot(); s.ActiveTaskName != "B" || s.Remaining != 1500 {
		t.Errorf("snapshot = %+v", s)
	}
}

func TestIdleAutoPause(t *testing.T) {
	h := newHarness(t)
	if err := h.c.Start("deep work", 25); err != nil {
		t.Fatal(err)
	}

	h.clock.Advance(120 * time.Second)
	h.waitRemaining(t, 1380)
	if s := h.c.Snapshot(); s.Paused {
		t.Fatal("paused after exactly the idle timeout")
	}

	h.clock.Advance(time.Second)
	waitFor(t, "idle pause", func() bool { return h.c.Snapshot().Paused })

	s := h.c.Snapshot()
	if s.Remaining != 1380 || !s.TaskActive || s.ActiveTaskName != "deep work" {
		t.Errorf("snapshot after idle pause = %+v", s)
	}
	waitFor(t, "loop exit", func() bool { return h.clock.Tickers() == 0 })

	snaps := h.snaps.all()
	if last := snaps[len(snaps)-1]; last.Event != EventIdle {
		t.Errorf("last event = %s, want %s", last.Event, EventIdle)
	}
	if got := h.log.actions(); !reflect.DeepEqual(got, []Action{ActionStart}) {
		t.Errorf("idle pause should not write to the log, got %v", got)
	}
}

func TestRecordActivityPostponesIdle(t *testing.T) {
	h := newHarness(t)
	if err := h.c.Start("focus", 25); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(100 * time.Second)
	h.waitRemaining(t, 1400)
	h.c.RecordActivity()
	h.clock.Advance(100 * time.Second)
	h.waitRemaining(t, 1300)

	if s := h.c.Snapshot(); s.Paused {
		t.Errorf("paused despite recorded activity: %+v", s)
	}
}

func TestWorkSessionRunsToCompletion(t *testing.T) {
	h := newHarness(t)
	if err := h.c.Start("write report", 1); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 60; i++ {
		h.clock.Advance(time.Second)
	}
	waitFor(t, "completion", func() bool { return !h.c.Snapshot().TaskActive })

	s := h.c.Snapshot()
	if s.Remaining != 0 || s.TaskActive || !s.Paused || s.ActiveTaskName != "" {
		t.Errorf("snapshot after completion = %+v", s)
	}

	got := h.log.completions()
	want := []logEntry{{"write report", ActionComplete, 60, Work}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("completions = %v, want %v", got, want)
	}

	waitFor(t, "notification", func() bool { return len(h.note.all()) == 1 })
	if n := h.note.all()[0]; n != "Chrono: Work session done!" {
		t.Errorf("notification = %q", n)
	}
	waitFor(t, "loop exit", func() bool { return h.clock.Tickers() == 0 })

	ticks := 0
	for _, snap := range h.snaps.all() {
		checkInvariants(t, snap)
		if snap.Event == EventTick {
			ticks++
		}
	}
	if ticks != 59 {
		t.Errorf("tick snapshots = %d, want 59 plus one completion", ticks)
	}
}

func TestBreakCompletionNotification(t *testing.T) {
	h := newHarness(t)
	if err := h.c.StartBreak(ShortBreak, 1); err != nil {
		t.Fatal(err)
	}
	if s := h.c.Snapshot(); s.Phase != ShortBreak || s.ActiveTaskName != "" || !s.TaskActive {
		t.Fatalf("snapshot = %+v", s)
	}
	h.clock.Advance(60 * time.Second)
	waitFor(t, "notification", func() bool { return len(h.note.all()) == 1 })

	if n := h.note.all()[0]; n != "Chrono: Break over!" {
		t.Errorf("notification = %q", n)
	}
	got := h.log.all()
	want := []logEntry{
		{"", ActionStart, 0, ShortBreak},
		{"", ActionComplete, 60, ShortBreak},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("log = %v, want %v", got, want)
	}
}

func TestPauseResumeRoundTrip(t *testing.T) {
	h := newHarness(t)
	if err := h.c.Start("t", 25); err != nil {
		t.Fatal(err)
	}
	if err := h.c.PauseOrResume(); err != nil {
		t.Fatal(err)
	}
	if s := h.c.Snapshot(); !s.Paused {
		t.Fatal("not paused after first toggle")
	}

	h.clock.Advance(time.Second)
	waitFor(t, "paused loop exit", func() bool { return h.clock.Tickers() == 0 })
	if s := h.c.Snapshot(); s.Remaining != 1500 {
		t.Errorf("remaining moved while paused: %d", s.Remaining)
	}

	if err := h.c.PauseOrResume(); err != nil {
		t.Fatal(err)
	}
	if h.clock.Tickers() != 1 {
		t.Fatalf("resume did not start a loop")
	}
	h.clock.Advance(time.Second)
	h.waitRemaining(t, 1499)

	want := []Action{ActionStart, ActionPause, ActionResume}
	if got := h.log.actions(); !reflect.DeepEqual(got, want) {
		t.Errorf("actions = %v, want %v", got, want)
	}
}

func TestResumeAfterResetReactivates(t *testing.T) {
	h := newHarness(t)
	if err := h.c.Start("x", 2); err != nil {
		t.Fatal(err)
	}
	if err := h.c.Reset(); err != nil {
		t.Fatal(err)
	}
	if err := h.c.PauseOrResume(); err != nil {
		t.Fatal(err)
	}

	s := h.c.Snapshot()
	if !s.TaskActive || s.Paused || s.Remaining != 120 || s.ActiveTaskName != "" {
		t.Errorf("snapshot after resume = %+v", s)
	}
	h.clock.Advance(time.Second)
	h.waitRemaining(t, 119)
}

func TestToggleAfterCompletionIsNoop(t *testing.T) {
	h := newHarness(t)
	if err := h.c.Start("x", 1); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(60 * time.Second)
	waitFor(t, "completion", func() bool { return !h.c.Snapshot().TaskActive })

	before := h.c.Snapshot()
	entries := len(h.log.all())
	if err := h.c.PauseOrResume(); err != nil {
		t.Fatal(err)
	}
	if after := h.c.Snapshot(); after != before {
		t.Errorf("toggle changed state: %+v -> %+v", before, after)
	}
	if len(h.log.all()) != entries {
		t.Error("toggle after completion wrote to the log")
	}
	if h.clock.Tickers() != 0 {
		t.Error("toggle after completion started a loop")
	}
}

func TestSnapshotsArriveInRevisionOrder(t *testing.T) {
	h := newHarness(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				switch (i + j) % 3 {
				case 0:
					_ = h.c.Start("race", 5)
				case 1:
					_ = h.c.PauseOrResume()
				default:
					_ = h.c.Reset()
				}
			}
		}(i)
	}
	wg.Wait()

	var last int64
	for _, s := range h.snaps.all() {
		checkInvariants(t, s)
		if s.Event == EventState {
			continue
		}
		if s.Revision <= last {
			t.Fatalf("revision %d published after %d", s.Revision, last)
		}
		last = s.Revision
	}
}

func TestLogFailuresAreNotFatal(t *testing.T) {
	h := newHarness(t)
	h.log.fail = errors.New("disk full")

	if err := h.c.Start("x", 1); err != nil {
		t.Fatalf("Start should swallow log errors: %v", err)
	}
	h.clock.Advance(60 * time.Second)
	waitFor(t, "completion", func() bool { return !h.c.Snapshot().TaskActive })
}

// stuckLog blocks every write until release is closed.
type stuckLog struct {
	memLog
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newStuckLog() *stuckLog {
	return &stuckLog{entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (l *stuckLog) block() {
	select {
	case l.entered <- struct{}{}:
	default:
	}
	<-l.release
}

func (l *stuckLog) unblock() { l.once.Do(func() { close(l.release) }) }

func (l *stuckLog) AppendAction(task string, action Action, elapsed int64, phase Phase) error {
	l.block()
	return l.memLog.AppendAction(task, action, elapsed, phase)
}

func (l *stuckLog) AppendCompletion(task string, elapsed int64, phase Phase) error {
	l.block()
	return l.memLog.AppendCompletion(task, elapsed, phase)
}

// within fails the test if fn does not return in time.
func within(t *testing.T, what string, fn func()) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("%s stalled behind a session log write", what)
	}
}

func TestSlowLogDoesNotStallTimer(t *testing.T) {
	fake := clock.NewFake(time.Unix(1_700_000_000, 0))
	sl := newStuckLog()
	c := New(Options{Clock: fake, Log: sl})
	t.Cleanup(c.Close)
	t.Cleanup(sl.unblock)

	within(t, "Start", func() {
		if err := c.Start("a", 25); err != nil {
			t.Error(err)
		}
	})
	select {
	case <-sl.entered:
	case <-time.After(time.Second):
		t.Fatal("start record was never written")
	}

	within(t, "Snapshot", func() {
		if s := c.Snapshot(); s.ActiveTaskName != "a" || s.Paused {
			t.Errorf("snapshot = %+v", s)
		}
	})
	within(t, "pause", func() {
		if err := c.PauseOrResume(); err != nil {
			t.Error(err)
		}
	})
	within(t, "resume", func() {
		if err := c.PauseOrResume(); err != nil {
			t.Error(err)
		}
	})
	within(t, "RecordActivity", c.RecordActivity)
	within(t, "ticks", func() {
		fake.Advance(3 * time.Second)
	})
	waitFor(t, "decrements", func() bool { return c.Snapshot().Remaining == 1497 })

	sl.unblock()
	c.Flush()
	want := []Action{ActionStart, ActionPause, ActionResume}
	if got := sl.actions(); !reflect.DeepEqual(got, want) {
		t.Errorf("actions = %v, want %v", got, want)
	}
}

func TestCloseWritesQueuedRecords(t *testing.T) {
	h := newHarness(t)
	if err := h.c.Start("a", 25); err != nil {
		t.Fatal(err)
	}
	h.clock.Advance(2 * time.Second)
	h.waitRemaining(t, 1498)
	if err := h.c.Reset(); err != nil {
		t.Fatal(err)
	}
	h.c.Close()

	want := []logEntry{{"a", ActionStart, 0, Work}, {"a", ActionComplete, 2, Work}}
	if got := h.log.all(); !reflect.DeepEqual(got, want) {
		t.Errorf("log after Close = %v, want %v", got, want)
	}
}

func TestCommandsAfterClose(t *testing.T) {
	h := newHarness(t)
	if err := h.c.Start("x", 5); err != nil {
		t.Fatal(err)
	}
	h.c.Close()
	if h.clock.Tickers() != 0 {
		t.Errorf("loop still running after Close")
	}
	if err := h.c.Start("y", 5); !apperrors.IsCode(err, apperrors.CodeTimerClosed) {
		t.Errorf("Start after Close = %v", err)
	}
	if err := h.c.Reset(); !apperrors.IsCode(err, apperrors.CodeTimerClosed) {
		t.Errorf("Reset after Close = %v", err)
	}
}

type panickyClock struct {
	clock.Clock
	mu    sync.Mutex
	armed bool
}

func (p *panickyClock) Now() time.Time {
	p.mu.Lock()
	armed := p.armed
	p.mu.Unlock()
	if armed {
		panic("clock exploded")
	}
	return p.Clock.Now()
}

func TestPanicLeavesControllerUnavailable(t *testing.T) {
	pc := &panickyClock{Clock: clock.NewFake(time.Unix(0, 0))}
	c := New(Options{Clock: pc})
	defer c.Close()

	pc.mu.Lock()
	pc.armed = true
	pc.mu.Unlock()

	if err := c.Start("x", 5); !apperrors.IsCode(err, apperrors.CodeInternal) {
		t.Fatalf("Start with panicking clock = %v", err)
	}
	pc.mu.Lock()
	pc.armed = false
	pc.mu.Unlock()
	if err := c.Reset(); !apperrors.IsCode(err, apperrors.CodeInternal) {
		t.Errorf("Reset after panic = %v", err)
	}
}

func TestParsePhase(t *testing.T) {
	tests := []struct {
		in   string
		want Phase
		ok   bool
	}{
		{"work", Work, true},
		{"short", ShortBreak, true},
		{"long_break", LongBreak, true},
		{"LONG", LongBreak, true},
		{"nap", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParsePhase(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParsePhase(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
