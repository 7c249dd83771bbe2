package timer

import (
	"fmt"
	"log"
	"sync"
	"time"

	apperrors "github.com/codechrono/chrono/internal/errors"
)

// Controller owns the timer state and is the only way to mutate it.
//
// Lock order is mu, then emitMu. Session log records are queued under mu
// and written by a single writer goroutine, so storage latency never holds
// mu.
type Controller struct {
	mu      sync.Mutex
	st      state
	loopGen uint64
	closed  bool
	broken  bool

	// emitMu is taken before mu is released so that snapshots leave the
	// controller in transition order.
	emitMu sync.Mutex
	queue  *logQueue

	opts       Options
	done       chan struct{}
	wg         sync.WaitGroup
	writerDone chan struct{}
}

// record is one pending session log write.
type record struct {
	completion bool
	task       string
	action     Action
	elapsed    int64
	phase      Phase
}

// effects are the outbound consequences of a transition, applied after
// the state lock is released.
type effects struct {
	records []record
	snap    Snapshot
	notify  string
	spawn   bool
}

// New creates a Controller in the initial idle state.
func New(opts Options) *Controller {
	opts = opts.withDefaults()
	c := &Controller{
		st:         newState(opts.DefaultMinutes, opts.Clock.Now()),
		queue:      newLogQueue(),
		opts:       opts,
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// Start begins a work session for taskName lasting minutes (0 selects the
// configured default). A session already in progress is finalized first:
// its elapsed time is credited before the new start is recorded.
func (c *Controller) Start(taskName string, minutes int) error {
	if minutes == 0 {
		minutes = c.opts.DefaultMinutes
	}
	if minutes < 0 || minutes > MaxMinutes {
		return apperrors.InvalidDuration(minutes)
	}
	return c.begin(EventStart, taskName, Work, minutes)
}

// StartBreak begins a short or long break lasting minutes (0 selects the
// configured default for that phase). Breaks carry no task name.
func (c *Controller) StartBreak(phase Phase, minutes int) error {
	switch phase {
	case ShortBreak:
		if minutes == 0 {
			minutes = c.opts.ShortBreakMinutes
		}
	case LongBreak:
		if minutes == 0 {
			minutes = c.opts.LongBreakMinutes
		}
	default:
		return apperrors.InvalidPhase(int(phase))
	}
	if minutes < 0 || minutes > MaxMinutes {
		return apperrors.InvalidDuration(minutes)
	}
	return c.begin(EventBreak, "", phase, minutes)
}

func (c *Controller) begin(ev Event, name string, phase Phase, minutes int) error {
	return c.apply(string(ev), func(now time.Time) effects {
		var eff effects
		st := &c.st

		if st.taskActive && st.activeTaskName != "" {
			if elapsed := st.elapsed(); elapsed > 0 {
				eff.records = append(eff.records, record{
					completion: true,
					task:       st.activeTaskName,
					elapsed:    elapsed,
					phase:      st.phase,
				})
				eff.snap.Credited = elapsed
			}
		}

		st.begin(name, phase, int64(minutes)*60, now)
		eff.spawn = !st.loopRunning
		st.loopRunning = true

		eff.records = append(eff.records, record{task: name, action: ActionStart, phase: phase})
		c.publishLocked(&eff, ev)
		return eff
	})
}

// PauseOrResume toggles the paused flag of the current session. Resuming an
// idle timer that still has time left reactivates it.
func (c *Controller) PauseOrResume() error {
	return c.apply("toggle", func(now time.Time) effects {
		var eff effects
		st := &c.st

		if !st.taskActive && st.remaining == 0 {
			eff.snap = st.snapshot(EventState)
			return eff
		}

		ev, action := EventPause, ActionPause
		if st.paused {
			ev, action = EventResume, ActionResume
			if !st.taskActive {
				st.taskActive = true
				if st.sessionStart.IsZero() {
					st.sessionStart = now
				}
			}
			st.lastActivity = now
			st.paused = false
		} else {
			st.paused = true
		}
		eff.records = append(eff.records, record{task: st.activeTaskName, action: action, phase: st.phase})

		if st.canRun() && !st.loopRunning {
			st.loopRunning = true
			eff.spawn = true
		}
		c.publishLocked(&eff, ev)
		return eff
	})
}

// Reset stops the current session and returns to idle, keeping the last
// session duration. Partial progress on a named task is credited.
func (c *Controller) Reset() error {
	return c.apply("reset", func(now time.Time) effects {
		var eff effects
		st := &c.st

		if st.taskActive && st.activeTaskName != "" {
			if elapsed := st.elapsed(); elapsed > 0 {
				eff.records = append(eff.records, record{
					completion: true,
					task:       st.activeTaskName,
					elapsed:    elapsed,
					phase:      st.phase,
				})
				eff.snap.Credited = elapsed
			}
		}

		st.idle()
		st.loopRunning = false
		// Any loop still waiting for its next tick belongs to the session
		// that was just reset.
		c.loopGen++
		c.publishLocked(&eff, EventReset)
		return eff
	})
}

// RecordActivity marks the user as active now, postponing idle auto-pause.
func (c *Controller) RecordActivity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.st.lastActivity = c.opts.Clock.Now()
}

// Snapshot returns a copy of the externally visible state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.st.snapshot(EventState)
}

// Flush blocks until every session log record queued so far has been
// handed to the log.
func (c *Controller) Flush() {
	c.queue.wait()
}

// Close stops the tick loop, waits for it to exit and then for the queued
// session log records to be written. Commands issued after Close fail with
// timer.closed.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.st.loopRunning = false
	close(c.done)
	c.mu.Unlock()

	c.wg.Wait()
	c.queue.close()
	<-c.writerDone
}

// publishLocked bumps the revision and stamps the outgoing snapshot.
func (c *Controller) publishLocked(eff *effects, ev Event) {
	c.st.revision++
	credited := eff.snap.Credited
	eff.snap = c.st.snapshot(ev)
	eff.snap.Credited = credited
}

// apply runs fn under the state lock, starts a loop if fn asked for one and
// then flushes the effects. A panic inside fn leaves the state unusable:
// this and every later command fail with error.internal.
func (c *Controller) apply(op string, fn func(now time.Time) effects) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperrors.Closed()
	}
	if c.broken {
		c.mu.Unlock()
		return apperrors.Internal("timer state is unavailable", nil)
	}

	eff, err := c.guard(op, fn)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	if eff.spawn {
		c.spawnLocked()
	}
	c.flushLocked(eff)
	return nil
}

func (c *Controller) guard(op string, fn func(now time.Time) effects) (eff effects, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.broken = true
			log.Printf("timer: %s panicked: %v", op, r)
			err = apperrors.Internal(fmt.Sprintf("%s failed", op), fmt.Errorf("%v", r))
		}
	}()
	return fn(c.opts.Clock.Now()), nil
}

// flushLocked must be called with mu held and releases it. Log records are
// queued for the writer, then the snapshot is published, then any
// notification is sent.
func (c *Controller) flushLocked(eff effects) {
	c.queue.push(eff.records)

	c.emitMu.Lock()
	c.mu.Unlock()
	if c.opts.OnSnapshot != nil {
		c.opts.OnSnapshot(eff.snap)
	}
	c.emitMu.Unlock()

	if eff.notify != "" && c.opts.Notifier != nil {
		if err := c.opts.Notifier.Notify(NotificationTitle, eff.notify); err != nil {
			log.Printf("timer: notification failed: %v", err)
		}
	}
}

func (c *Controller) write(r record) {
	if c.opts.Log == nil {
		return
	}
	var err error
	if r.completion {
		err = c.opts.Log.AppendCompletion(r.task, r.elapsed, r.phase)
	} else {
		err = c.opts.Log.AppendAction(r.task, r.action, r.elapsed, r.phase)
	}
	if err != nil {
		log.Printf("timer: session log write failed (task=%q action=%s): %v", r.task, r.kind(), err)
	}
}

func (r record) kind() Action {
	if r.completion {
		return ActionComplete
	}
	return r.action
}
