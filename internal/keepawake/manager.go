package keepawake

import (
	"context"
	"log"
	"sync"
	"time"

	apperrors "github.com/codechrono/chrono/internal/errors"
)

// Manager holds at most one inhibitor and reports its state.
type Manager struct {
	mu sync.Mutex

	adapter Adapter
	now     func() time.Time

	status Status
	handle Handle
	closed bool
	// gen invalidates watchers of replaced handles.
	gen uint64

	// OnChange, when set, receives every status transition. It is called
	// with the manager lock released.
	OnChange func(Status)
}

// NewManager returns a manager in the off state. now may be nil.
func NewManager(adapter Adapter, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		adapter: adapter,
		now:     now,
		status:  Status{State: StateOff, UpdatedAt: now()},
	}
}

// Status returns the current status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Hold acquires an inhibitor unless one is already running.
func (m *Manager) Hold(ctx context.Context) Status {
	m.mu.Lock()
	if m.closed {
		defer m.mu.Unlock()
		return m.status
	}
	if m.handle != nil {
		select {
		case <-m.handle.Done():
			m.dropLocked(ReasonLost, exitMessage(m.handle))
		default:
			defer m.mu.Unlock()
			return m.status
		}
	}
	m.status.Wanted = true
	m.setLocked(StatePending, "", "")
	m.mu.Unlock()
	m.changed()

	h, err := m.adapter.Acquire(ctx)

	m.mu.Lock()
	switch {
	case err != nil:
		reason := ReasonAcquireFailed
		if apperrors.IsCode(err, apperrors.CodeKeepAwakeUnsupported) {
			reason = ReasonUnsupported
		}
		m.setLocked(StateDegraded, reason, err.Error())
	case !m.status.Wanted || m.closed:
		// Let go was called while acquiring.
		m.mu.Unlock()
		_ = h.Release(context.Background())
		m.mu.Lock()
		m.setLocked(StateOff, "", "")
	default:
		m.handle = h
		m.gen++
		go m.watch(h, m.gen)
		m.setLocked(StateOn, "", "")
	}
	st := m.status
	m.mu.Unlock()
	m.changed()
	return st
}

// Skip records that the inhibitor is deliberately not held, releasing one
// if running.
func (m *Manager) Skip(ctx context.Context, reason Reason) Status {
	return m.release(ctx, StateDegraded, reason)
}

// Release lets go of the inhibitor.
func (m *Manager) Release(ctx context.Context) Status {
	return m.release(ctx, StateOff, "")
}

func (m *Manager) release(ctx context.Context, next State, reason Reason) Status {
	m.mu.Lock()
	if m.closed {
		defer m.mu.Unlock()
		return m.status
	}
	if m.status.State == next && m.status.Reason == reason && m.handle == nil {
		defer m.mu.Unlock()
		return m.status
	}
	h := m.handle
	m.handle = nil
	m.gen++
	m.status.Wanted = false
	m.setLocked(next, reason, "")
	m.mu.Unlock()

	if h != nil {
		if err := h.Release(ctx); err != nil {
			log.Printf("keepawake: release failed: %v", err)
			m.mu.Lock()
			m.status.LastError = err.Error()
			m.status.Revision++
			m.mu.Unlock()
		}
	}
	m.changed()
	return m.Status()
}

// Close releases any inhibitor. Later calls are no-ops.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	h := m.handle
	m.handle = nil
	m.gen++
	m.status.Wanted = false
	m.setLocked(StateOff, "", "")
	m.mu.Unlock()

	if h == nil {
		return nil
	}
	return h.Release(ctx)
}

func (m *Manager) watch(h Handle, gen uint64) {
	<-h.Done()

	m.mu.Lock()
	if m.handle != h || m.gen != gen || m.closed {
		m.mu.Unlock()
		return
	}
	m.dropLocked(ReasonLost, exitMessage(h))
	m.mu.Unlock()

	log.Printf("keepawake: inhibitor exited while held")
	m.changed()
}

func (m *Manager) dropLocked(reason Reason, msg string) {
	m.handle = nil
	m.gen++
	m.setLocked(StateDegraded, reason, msg)
}

func (m *Manager) setLocked(next State, reason Reason, lastErr string) {
	m.status.State = next
	m.status.Reason = reason
	m.status.LastError = lastErr
	m.status.UpdatedAt = m.now()
	m.status.Revision++
}

func (m *Manager) changed() {
	if m.OnChange != nil {
		m.OnChange(m.Status())
	}
}

func exitMessage(h Handle) string {
	if err := h.Err(); err != nil {
		return err.Error()
	}
	return "inhibitor exited unexpectedly"
}
