// Package keepawake stops the machine from idling to sleep while a focus
// session is counting down.
//
// A Manager owns one OS inhibitor process at a time. A Follower drives the
// Manager from timer snapshots so the inhibitor is held only while a session
// is running.
package keepawake

import (
	"context"
	"time"
)

// State is the inhibitor lifecycle state.
type State string

const (
	StateOff      State = "off"
	StatePending  State = "pending"
	StateOn       State = "on"
	StateDegraded State = "degraded"
)

// Reason explains a degraded state.
type Reason string

const (
	ReasonUnsupported   Reason = "unsupported"
	ReasonAcquireFailed Reason = "acquire_failed"
	// ReasonLost means the inhibitor exited while it was still wanted.
	ReasonLost Reason = "lost"
	// ReasonLowBattery means holding was skipped to save power.
	ReasonLowBattery Reason = "low_battery"
)

// Status is a point-in-time view of the manager.
type Status struct {
	State     State     `json:"state"`
	Wanted    bool      `json:"wanted"`
	Reason    Reason    `json:"reason,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
	Revision  int64     `json:"revision"`
}

// Handle is a running inhibitor.
type Handle interface {
	// Done is closed when the inhibitor exits.
	Done() <-chan struct{}
	// Err is the exit error once Done is closed.
	Err() error
	Release(ctx context.Context) error
}

// Adapter starts inhibitors for the current OS.
type Adapter interface {
	Acquire(ctx context.Context) (Handle, error)
}

// Power is a reading of the host power source. Nil fields are unknown.
type Power struct {
	OnBattery *bool
	Percent   *int
}

// PowerSource reads the host power state.
type PowerSource interface {
	Read() Power
}

// PowerFunc adapts a function to PowerSource.
type PowerFunc func() Power

func (f PowerFunc) Read() Power { return f() }
