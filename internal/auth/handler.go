package auth

import (
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/codechrono/chrono/internal/errors"
)

// PairRequest is the body of POST /pair.
type PairRequest struct {
	Code       string `json:"code"`
	DeviceName string `json:"device_name"`
}

// PairResponse carries the device token. It is only ever sent once.
type PairResponse struct {
	DeviceID string `json:"device_id"`
	Token    string `json:"token"`
}

// CodeResponse is the body returned by POST /pair/generate.
type CodeResponse struct {
	Code   string    `json:"code"`
	Expiry time.Time `json:"expiry"`
}

// ErrorResponse is the JSON error body used by every auth endpoint.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PairHandler serves POST /pair.
type PairHandler struct {
	pairer *Pairer
	// OnPaired, when set, is called after a device pairs.
	OnPaired func(*Device)
}

func NewPairHandler(p *Pairer) *PairHandler {
	return &PairHandler{pairer: p}
}

func (h *PairHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, apperrors.InvalidMessage("only POST is allowed"))
		return
	}

	var req PairRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, apperrors.InvalidMessage("invalid JSON body"))
		return
	}
	if req.Code == "" {
		WriteError(w, http.StatusBadRequest, apperrors.InvalidMessage("pairing code is required"))
		return
	}

	device, token, err := h.pairer.Redeem(req.Code, req.DeviceName)
	if err != nil {
		WriteError(w, statusFor(err), err)
		return
	}
	if h.OnPaired != nil {
		h.OnPaired(device)
	}
	writeJSON(w, http.StatusOK, PairResponse{DeviceID: device.ID, Token: token})
}

// GenerateCodeHandler serves POST /pair/generate. Only loopback callers may
// mint codes, otherwise a LAN attacker could race the user to redeem one.
type GenerateCodeHandler struct {
	pairer *Pairer
}

func NewGenerateCodeHandler(p *Pairer) *GenerateCodeHandler {
	return &GenerateCodeHandler{pairer: p}
}

func (h *GenerateCodeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !IsLoopback(r) {
		log.Printf("auth: rejected /pair/generate from %s", r.RemoteAddr)
		WriteError(w, http.StatusForbidden, apperrors.New(apperrors.CodeAuthRequired,
			"pairing codes can only be generated from this machine"))
		return
	}
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, apperrors.InvalidMessage("only POST is allowed"))
		return
	}
	code, expiry, err := h.pairer.NewCode()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, apperrors.Internal("failed to generate pairing code", err))
		return
	}
	writeJSON(w, http.StatusOK, CodeResponse{Code: code, Expiry: expiry})
}

// Middleware rejects non-loopback requests without a valid token when
// required is set.
func Middleware(v *Validator, required bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !required || IsLoopback(r) {
			next.ServeHTTP(w, r)
			return
		}
		if _, err := v.Validate(TokenFromRequest(r)); err != nil {
			WriteError(w, statusFor(err), err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// TokenFromRequest reads a bearer token from the Authorization header or,
// for browsers opening a WebSocket, the token query parameter.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
		return ""
	}
	return r.URL.Query().Get("token")
}

// IsLoopback reports whether r came from this machine.
func IsLoopback(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// WriteError writes err as {code, message}.
func WriteError(w http.ResponseWriter, status int, err error) {
	code, msg := apperrors.ToCodeAndMessage(err)
	writeJSON(w, status, ErrorResponse{Code: code, Message: msg})
}

func statusFor(err error) int {
	switch apperrors.GetCode(err) {
	case apperrors.CodeAuthRequired, apperrors.CodeAuthInvalid,
		apperrors.CodeAuthExpired, apperrors.CodeAuthDeviceRevoked:
		return http.StatusUnauthorized
	case apperrors.CodeAuthRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("auth: failed to write response: %v", err)
	}
}
