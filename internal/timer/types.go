// Package timer implements the Pomodoro session engine: one shared session
// state driven by a one-tick-per-second loop and mutated concurrently by
// user commands.
//
// All state lives behind Controller.mu. Session log writes, snapshot
// publication and notifications happen after the lock is released, in the
// same order as the transitions that produced them.
package timer

import (
	"strings"
	"time"

	"github.com/codechrono/chrono/internal/clock"
)

// Phase identifies the kind of session.
type Phase int

const (
	// Work is a focus session.
	Work Phase = 0
	// ShortBreak is a short rest between focus sessions.
	ShortBreak Phase = 1
	// LongBreak is a long rest, usually after several focus sessions.
	LongBreak Phase = 2
)

// String returns the wire name of the phase.
func (p Phase) String() string {
	switch p {
	case Work:
		return "work"
	case ShortBreak:
		return "short_break"
	case LongBreak:
		return "long_break"
	default:
		return "unknown"
	}
}

// Valid reports whether p is one of the known phases.
func (p Phase) Valid() bool {
	return p == Work || p == ShortBreak || p == LongBreak
}

// ParsePhase accepts a phase wire name ("work", "short_break", "long_break")
// or the short aliases "short" and "long".
func ParsePhase(s string) (Phase, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "work", "":
		return Work, true
	case "short_break", "short":
		return ShortBreak, true
	case "long_break", "long":
		return LongBreak, true
	}
	return 0, false
}

// Action is the kind of an action record in the session log.
type Action string

const (
	ActionStart    Action = "start"
	ActionPause    Action = "pause"
	ActionResume   Action = "resume"
	ActionComplete Action = "complete"
)

// Event names the transition that produced a snapshot.
type Event string

const (
	EventState    Event = "state"
	EventStart    Event = "start"
	EventBreak    Event = "break"
	EventPause    Event = "pause"
	EventResume   Event = "resume"
	EventReset    Event = "reset"
	EventTick     Event = "tick"
	EventIdle     Event = "idle"
	EventComplete Event = "complete"
)

// Snapshot is an immutable copy of the externally visible timer state.
type Snapshot struct {
	Remaining       int64  `json:"remaining"`
	SessionDuration int64  `json:"session_duration"`
	Paused          bool   `json:"paused"`
	Phase           Phase  `json:"phase"`
	TaskActive      bool   `json:"task_active"`
	ActiveTaskName  string `json:"active_task_name"`

	// Revision increments on every observable change. Clients drop
	// snapshots older than the last one they applied.
	Revision int64 `json:"revision"`
	// Event is the transition that produced this snapshot.
	Event Event `json:"event"`
	// Credited is the elapsed seconds written to the session log by this
	// transition, if any.
	Credited int64 `json:"credited,omitempty"`
}

// SessionLog is the append-only log of timer actions and completions.
// Calls come from one goroutine, in transition order.
type SessionLog interface {
	AppendAction(taskName string, action Action, elapsed int64, phase Phase) error
	AppendCompletion(taskName string, elapsed int64, phase Phase) error
}

// Notifier delivers a user-visible notification. Errors are ignored.
type Notifier interface {
	Notify(title, body string) error
}

// SnapshotHandler receives every published snapshot, in transition order.
// Handlers must not block and must not call back into the Controller.
type SnapshotHandler func(Snapshot)

// Defaults.
const (
	DefaultWorkMinutes       = 25
	DefaultShortBreakMinutes = 5
	DefaultLongBreakMinutes  = 15
	DefaultIdleTimeout       = 120 * time.Second

	// MaxMinutes bounds a single session to one day.
	MaxMinutes = 24 * 60

	// NotificationTitle is the title of completion notifications.
	NotificationTitle = "Chrono"
)

// Options configures a Controller.
type Options struct {
	// Clock defaults to the system clock.
	Clock clock.Clock
	// Log receives action and completion records. Nil discards them.
	Log SessionLog
	// Notifier receives completion notifications. Nil disables them.
	Notifier Notifier
	// OnSnapshot receives every published snapshot.
	OnSnapshot SnapshotHandler

	// IdleTimeout pauses a running session when no activity has been
	// recorded for longer than this. Defaults to DefaultIdleTimeout.
	IdleTimeout time.Duration

	DefaultMinutes    int
	ShortBreakMinutes int
	LongBreakMinutes  int
}

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultIdleTimeout
	}
	if o.DefaultMinutes <= 0 {
		o.DefaultMinutes = DefaultWorkMinutes
	}
	if o.ShortBreakMinutes <= 0 {
		o.ShortBreakMinutes = DefaultShortBreakMinutes
	}
	if o.LongBreakMinutes <= 0 {
		o.LongBreakMinutes = DefaultLongBreakMinutes
	}
	return o
}

// CompletionMessage returns the notification body for a finished phase.
func CompletionMessage(p Phase) string {
	if p == Work {
		return "Work session done!"
	}
	return "Break over!"
}
