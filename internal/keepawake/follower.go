package keepawake

import (
	"context"
	"sync"
	"time"

	"github.com/codechrono/chrono/internal/timer"
)

// DefaultBatteryFloor is the battery percentage below which keep-awake is
// skipped while running on battery.
const DefaultBatteryFloor = 20

// Follower keeps the inhibitor held exactly while a session is counting
// down. Observe is safe to call from a timer snapshot handler; the
// inhibitor itself is started and stopped on the Run goroutine.
type Follower struct {
	m     *Manager
	power PowerSource
	floor int

	mu   sync.Mutex
	want bool
	wake chan struct{}
}

// NewFollower drives m from timer snapshots. power may be nil; floor <= 0
// disables the battery check.
func NewFollower(m *Manager, power PowerSource, floor int) *Follower {
	return &Follower{m: m, power: power, floor: floor, wake: make(chan struct{}, 1)}
}

// Observe records whether s is a running session. It never blocks.
func (f *Follower) Observe(s timer.Snapshot) {
	running := s.TaskActive && !s.Paused && s.Remaining > 0

	f.mu.Lock()
	changed := running != f.want
	f.want = running
	f.mu.Unlock()

	if changed {
		select {
		case f.wake <- struct{}{}:
		default:
		}
	}
}

// Run reconciles until ctx is cancelled, then closes the manager.
func (f *Follower) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			_ = f.m.Close(closeCtx)
			cancel()
			return
		case <-f.wake:
			f.reconcile(ctx)
		}
	}
}

func (f *Follower) reconcile(ctx context.Context) Status {
	f.mu.Lock()
	want := f.want
	f.mu.Unlock()

	if !want {
		return f.m.Release(ctx)
	}
	if f.lowBattery() {
		return f.m.Skip(ctx, ReasonLowBattery)
	}
	return f.m.Hold(ctx)
}

func (f *Follower) lowBattery() bool {
	if f.power == nil || f.floor <= 0 {
		return false
	}
	p := f.power.Read()
	return p.OnBattery != nil && *p.OnBattery && p.Percent != nil && *p.Percent < f.floor
}
