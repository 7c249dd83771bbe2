package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"

	apperrors "github.com/codechrono/chrono/internal/errors"
)

const (
	codeLength        = 6
	tokenBytes        = 32
	defaultCodeExpiry = 2 * time.Minute
	defaultAttempts   = 5
)

// PairingConfig configures a Pairer.
type PairingConfig struct {
	Store DeviceStore
	// CodeExpiry defaults to 2 minutes.
	CodeExpiry time.Duration
	// AttemptsPerMinute bounds redemption attempts. Default 5.
	AttemptsPerMinute int
	// Now defaults to time.Now.
	Now func() time.Time
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// Pairer issues pairing codes and redeems them for device tokens. Only one
// code is live at a time.
type Pairer struct {
	mu sync.Mutex

	cfg     PairingConfig
	limiter *rate.Limiter

	code      string
	expiresAt time.Time
	used      bool
}

func NewPairer(cfg PairingConfig) *Pairer {
	if cfg.CodeExpiry == 0 {
		cfg.CodeExpiry = defaultCodeExpiry
	}
	if cfg.AttemptsPerMinute == 0 {
		cfg.AttemptsPerMinute = defaultAttempts
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Pairer{
		cfg:     cfg,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.AttemptsPerMinute)), cfg.AttemptsPerMinute),
	}
}

// NewCode replaces any live code with a fresh one and returns it with its
// expiry.
func (p *Pairer) NewCode() (string, time.Time, error) {
	code, err := randomDigits(codeLength)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate code: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.code = code
	p.expiresAt = p.cfg.Now().Add(p.cfg.CodeExpiry)
	p.used = false

	log.Printf("auth: generated pairing code (expires at %s)", p.expiresAt.Format(time.RFC3339))
	return code, p.expiresAt, nil
}

// Redeem exchanges a live code for a new device and its token. The token is
// returned only here; the store keeps its bcrypt hash.
func (p *Pairer) Redeem(code, deviceName string) (*Device, string, error) {
	p.mu.Lock()
	now := p.cfg.Now()

	if !p.limiter.AllowN(now, 1) {
		p.mu.Unlock()
		log.Printf("auth: pairing rate limit exceeded")
		return nil, "", apperrors.New(apperrors.CodeAuthRateLimited, "too many pairing attempts, try again later")
	}
	switch {
	case p.code == "" || p.used:
		p.mu.Unlock()
		return nil, "", apperrors.New(apperrors.CodeAuthInvalid, "no active pairing code")
	case now.After(p.expiresAt):
		p.mu.Unlock()
		return nil, "", apperrors.New(apperrors.CodeAuthExpired, "pairing code has expired")
	case code != p.code:
		p.mu.Unlock()
		log.Printf("auth: pairing attempt with incorrect code")
		return nil, "", apperrors.New(apperrors.CodeAuthInvalid, "invalid pairing code")
	}
	// Burn the code before the slow part so it cannot be replayed.
	p.used = true
	cost := p.cfg.BcryptCost
	p.mu.Unlock()

	token, err := randomToken()
	if err != nil {
		return nil, "", apperrors.Internal("failed to generate token", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		return nil, "", apperrors.Internal("failed to hash token", err)
	}

	if deviceName == "" {
		deviceName = "Unknown device"
	}
	device := &Device{
		ID:        uuid.NewString(),
		Name:      deviceName,
		TokenHash: string(hash),
		CreatedAt: now,
		LastSeen:  now,
	}
	if err := p.cfg.Store.SaveDevice(device); err != nil {
		return nil, "", apperrors.WriteFailed("device", err)
	}

	log.Printf("auth: paired device %s (%s)", device.ID, device.Name)
	return device, token, nil
}

// Active reports whether an unused, unexpired code exists.
func (p *Pairer) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code != "" && !p.used && p.cfg.Now().Before(p.expiresAt)
}

func randomDigits(n int) (string, error) {
	out := make([]byte, n)
	ten := big.NewInt(10)
	for i := range out {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		out[i] = byte('0' + d.Int64())
	}
	return string(out), nil
}

func randomToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
