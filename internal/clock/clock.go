// Package clock abstracts the time source used by the timer engine so the
// one-second tick loop can be driven deterministically in tests.
package clock

import (
	"sync"
	"time"
)

// Clock is the time source for the timer engine.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// NewTicker returns a Ticker that delivers ticks on its C channel
	// every d. Panics if d <= 0.
	NewTicker(d time.Duration) *Ticker
}

// Ticker delivers periodic ticks on C until Stop is called.
// Stop does not close C.
type Ticker struct {
	C <-chan time.Time

	stop func()
}

// Stop turns off the ticker. No more ticks are delivered after Stop returns.
func (t *Ticker) Stop() { t.stop() }

// Real returns the system clock.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) NewTicker(d time.Duration) *Ticker {
	t := time.NewTicker(d)
	return &Ticker{C: t.C, stop: t.Stop}
}

// Fake is a manually advanced clock. Ticks are delivered synchronously from
// Advance: each send blocks until the ticker's reader receives it or the
// ticker is stopped, so a loop that processes one tick at a time never
// falls behind the fake time.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers map[*fakeTicker]struct{}
}

type fakeTicker struct {
	c       chan time.Time
	period  time.Duration
	next    time.Time
	stopped chan struct{}
	once    sync.Once
}

// NewFake creates a fake clock set to start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start, tickers: make(map[*fakeTicker]struct{})}
}

// Now returns the fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// NewTicker registers a ticker that fires every d of fake time.
func (f *Fake) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	ft := &fakeTicker{
		c:       make(chan time.Time),
		period:  d,
		stopped: make(chan struct{}),
	}

	f.mu.Lock()
	ft.next = f.now.Add(d)
	f.tickers[ft] = struct{}{}
	f.mu.Unlock()

	return &Ticker{
		C: ft.c,
		stop: func() {
			ft.once.Do(func() { close(ft.stopped) })
			f.mu.Lock()
			delete(f.tickers, ft)
			f.mu.Unlock()
		},
	}
}

// Tickers reports how many tickers are currently active.
func (f *Fake) Tickers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}

// Advance moves the fake time forward by d, one tick period at a time,
// delivering every tick that falls due along the way.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		var due *fakeTicker
		for ft := range f.tickers {
			if !ft.next.After(target) && (due == nil || ft.next.Before(due.next)) {
				due = ft
			}
		}
		if due == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		at := due.next
		due.next = at.Add(due.period)
		f.now = at
		f.mu.Unlock()

		select {
		case due.c <- at:
		case <-due.stopped:
		}
	}
}
