// Package auth pairs client devices with the chrono server and checks their
// bearer tokens.
//
// Pairing:
//  1. `chrono pair` asks the server for a 6-digit code (valid 2 minutes).
//  2. The client POSTs the code and a device name to /pair.
//  3. The server stores a bcrypt hash of a fresh token and returns the
//     token once.
//  4. The client sends the token as "Authorization: Bearer <token>" (or
//     ?token= on the WebSocket URL).
//
// Codes are single use and attempts are rate limited. Loopback requests
// never need a token.
package auth

import (
	"time"

	"github.com/codechrono/chrono/internal/storage"
)

// Device is a paired client.
type Device = storage.Device

// DeviceStore persists paired devices. storage.SQLiteStore implements it.
type DeviceStore interface {
	SaveDevice(device *Device) error
	// GetDevice returns nil, nil for unknown ids.
	GetDevice(id string) (*Device, error)
	ListDevices() ([]*Device, error)
	DeleteDevice(id string) error
	UpdateLastSeen(id string, t time.Time) error
}

var _ DeviceStore = (*storage.SQLiteStore)(nil)
