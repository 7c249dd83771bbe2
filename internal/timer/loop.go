package timer

import (
	"log"
	"time"

	"github.com/codechrono/chrono/internal/clock"
)

// tickInterval is the countdown resolution.
const tickInterval = time.Second

// spawnLocked starts a new tick loop. The ticker is created before the
// goroutine so the first tick is measured from the transition that asked
// for the loop. Must be called with mu held and loopRunning already set.
func (c *Controller) spawnLocked() {
	c.loopGen++
	gen := c.loopGen
	t := c.opts.Clock.NewTicker(tickInterval)
	c.wg.Add(1)
	go c.loop(t, gen)
}

func (c *Controller) loop(t *clock.Ticker, gen uint64) {
	defer c.wg.Done()
	defer t.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-t.C:
		}
		if !c.tick(gen) {
			return
		}
	}
}

// tick runs one loop iteration and reports whether the loop should keep
// going. Exactly one of exit, idle pause, decrement or completion happens,
// checked in that order. A decrement that reaches zero completes the
// session on the same tick.
func (c *Controller) tick(gen uint64) bool {
	c.mu.Lock()
	st := &c.st

	if c.closed || gen != c.loopGen {
		c.mu.Unlock()
		return false
	}
	if st.paused || !st.taskActive {
		st.loopRunning = false
		c.mu.Unlock()
		return false
	}

	now := c.opts.Clock.Now()
	if idle := now.Sub(st.lastActivity); idle > c.opts.IdleTimeout {
		st.paused = true
		st.loopRunning = false
		log.Printf("timer: no activity for %s, pausing %q with %ds left", idle.Round(time.Second), st.activeTaskName, st.remaining)
		var eff effects
		c.publishLocked(&eff, EventIdle)
		c.flushLocked(eff)
		return false
	}

	if st.remaining > 0 {
		st.remaining--
		if st.remaining > 0 {
			var eff effects
			c.publishLocked(&eff, EventTick)
			c.flushLocked(eff)
			return true
		}
	}

	name, phase, duration := st.activeTaskName, st.phase, st.sessionDuration
	st.finish()
	eff := effects{
		records: []record{{completion: true, task: name, elapsed: duration, phase: phase}},
		notify:  CompletionMessage(phase),
	}
	eff.snap.Credited = duration
	c.publishLocked(&eff, EventComplete)
	log.Printf("timer: %s session %q complete (%ds)", phase, name, duration)
	c.flushLocked(eff)
	return false
}
