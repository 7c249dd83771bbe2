package auth

import (
	"crypto/sha256"
	"log"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/codechrono/chrono/internal/errors"
)

// Validator checks bearer tokens against paired devices.
//
// bcrypt makes every comparison slow, so a successful match is remembered
// by token digest. The cache is re-checked against the store on every hit,
// so revoking a device takes effect immediately.
type Validator struct {
	store DeviceStore
	now   func() time.Time

	mu    sync.Mutex
	cache map[[sha256.Size]byte]string
}

func NewValidator(store DeviceStore) *Validator {
	return &Validator{
		store: store,
		now:   time.Now,
		cache: make(map[[sha256.Size]byte]string),
	}
}

// Validate returns the device owning token and bumps its last-seen time.
func (v *Validator) Validate(token string) (*Device, error) {
	if token == "" {
		return nil, apperrors.New(apperrors.CodeAuthRequired, "authentication required")
	}
	key := sha256.Sum256([]byte(token))

	v.mu.Lock()
	id, ok := v.cache[key]
	v.mu.Unlock()

	if ok {
		device, err := v.store.GetDevice(id)
		if err != nil {
			return nil, err
		}
		if device == nil {
			v.forget(key)
			return nil, apperrors.New(apperrors.CodeAuthDeviceRevoked, "device has been revoked")
		}
		v.touch(device)
		return device, nil
	}

	devices, err := v.store.ListDevices()
	if err != nil {
		return nil, err
	}
	for _, device := range devices {
		if bcrypt.CompareHashAndPassword([]byte(device.TokenHash), []byte(token)) == nil {
			v.mu.Lock()
			v.cache[key] = device.ID
			v.mu.Unlock()
			v.touch(device)
			return device, nil
		}
	}

	log.Printf("auth: token validation failed (no matching device)")
	return nil, apperrors.New(apperrors.CodeAuthInvalid, "invalid token")
}

func (v *Validator) forget(key [sha256.Size]byte) {
	v.mu.Lock()
	delete(v.cache, key)
	v.mu.Unlock()
}

func (v *Validator) touch(device *Device) {
	if err := v.store.UpdateLastSeen(device.ID, v.now()); err != nil {
		log.Printf("auth: failed to update last_seen for device %s: %v", device.ID, err)
	}
}
