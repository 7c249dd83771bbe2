package timer

import "time"

// state is the single mutable session record. Every field is guarded by
// Controller.mu.
//
// Invariants:
//   - remaining <= sessionDuration
//   - loopRunning is true iff the loop of the current generation
//     (Controller.loopGen) is alive. Loops of older generations may linger
//     until their next tick but exit on it without touching the record.
//   - !taskActive implies activeTaskName == "" and paused
type state struct {
	remaining       int64
	sessionDuration int64
	paused          bool
	phase           Phase
	taskActive      bool
	activeTaskName  string
	loopRunning     bool

	sessionStart time.Time
	lastActivity time.Time

	revision int64
}

func newState(defaultMinutes int, now time.Time) state {
	d := int64(defaultMinutes) * 60
	return state{
		remaining:       d,
		sessionDuration: d,
		paused:          true,
		phase:           Work,
		lastActivity:    now,
	}
}

// elapsed is the number of seconds run so far in the current session.
func (s *state) elapsed() int64 {
	return s.sessionDuration - s.remaining
}

// begin resets the record for a new running session. It does not touch
// loopRunning.
func (s *state) begin(name string, phase Phase, seconds int64, now time.Time) {
	s.remaining = seconds
	s.sessionDuration = seconds
	s.sessionStart = now
	s.lastActivity = now
	s.paused = false
	s.phase = phase
	s.taskActive = true
	s.activeTaskName = name
}

// idle returns the record to the inactive state keeping the last duration.
func (s *state) idle() {
	s.remaining = s.sessionDuration
	s.sessionStart = time.Time{}
	s.paused = true
	s.phase = Work
	s.taskActive = false
	s.activeTaskName = ""
}

// finish marks the session complete after the countdown reached zero.
func (s *state) finish() {
	s.taskActive = false
	s.activeTaskName = ""
	s.paused = true
	s.loopRunning = false
}

// canRun reports whether a loop should be ticking for this record.
func (s *state) canRun() bool {
	return !s.paused && s.taskActive && s.remaining > 0
}

func (s *state) snapshot(ev Event) Snapshot {
	return Snapshot{
		Remaining:       s.remaining,
		SessionDuration: s.sessionDuration,
		Paused:          s.paused,
		Phase:           s.phase,
		TaskActive:      s.taskActive,
		ActiveTaskName:  s.activeTaskName,
		Revision:        s.revision,
		Event:           ev,
	}
}
