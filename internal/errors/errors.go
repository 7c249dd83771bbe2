// Package errors provides standardized error codes for the chrono host.
//
// Error codes follow the format {domain}.{error} where:
//   - domain: The subsystem that generated the error (timer, storage, server, auth, sync, ...)
//   - error: The specific error type within that domain
//
// These codes are stable and can be used by clients for programmatic
// error handling. Human-readable messages are provided alongside codes.
package errors

import (
	"errors"
	"fmt"
)

// Error codes by domain.
const (
	// Timer domain - command validation and controller lifecycle
	CodeTimerInvalidDuration = "timer.invalid_duration" // Minutes out of range
	CodeTimerInvalidPhase    = "timer.invalid_phase"    // Unknown phase for a break
	CodeTimerClosed          = "timer.closed"           // Controller shut down

	// Storage domain - database and persistence errors
	CodeStorageNotFound      = "storage.not_found"      // Task, project or record not found
	CodeStorageAlreadyExists = "storage.already_exists" // Resource already exists
	CodeStorageOpenFailed    = "storage.open_failed"    // Database open failed
	CodeStorageQueryFailed   = "storage.query_failed"   // Database query failed
	CodeStorageWriteFailed   = "storage.write_failed"   // Failed to persist a record

	// Notify domain - desktop notifications
	CodeNotifyFailed      = "notify.failed"      // Notifier command failed
	CodeNotifyUnsupported = "notify.unsupported" // No notifier on this platform

	// Keep-awake domain - sleep inhibitors
	CodeKeepAwakeUnsupported   = "keepawake.unsupported"    // No inhibitor available on this host
	CodeKeepAwakeAcquireFailed = "keepawake.acquire_failed" // Inhibitor process failed to start

	// Server domain - WebSocket and HTTP API errors
	CodeServerUpgradeFailed  = "server.upgrade_failed"  // WebSocket upgrade failed
	CodeServerInvalidMessage = "server.invalid_message" // Malformed or invalid message
	CodeServerHandlerMissing = "server.handler_missing" // No handler for message type
	CodeServerRateLimited    = "server.rate_limited"    // Too many commands per second

	// Auth domain - pairing and device tokens
	CodeAuthRequired      = "auth.required"       // Authentication required
	CodeAuthInvalid       = "auth.invalid"        // Invalid token or credentials
	CodeAuthExpired       = "auth.expired"        // Pairing code expired
	CodeAuthDeviceRevoked = "auth.device_revoked" // Device has been revoked
	CodeAuthRateLimited   = "auth.rate_limited"   // Too many failed pairing attempts

	// Sync domain - issue tracker imports
	CodeSyncNotConfigured = "sync.not_configured" // Missing token or project settings
	CodeSyncRequestFailed = "sync.request_failed" // Upstream API request failed
	CodeSyncBadResponse   = "sync.bad_response"   // Upstream API returned an unexpected payload

	// Import domain - CSV session log import
	CodeImportInvalidHeader = "import.invalid_header" // Header row does not match
	CodeImportInvalidRow    = "import.invalid_row"    // A data row could not be parsed

	// General domain - catch-all errors
	CodeUnknown  = "error.unknown"  // Unknown error
	CodeInternal = "error.internal" // Internal error
)

// CodedError wraps an error with a stable error code.
// This allows errors to carry both a code for programmatic handling
// and a message for human consumption.
type CodedError struct {
	Code    string // Stable error code (e.g., "timer.invalid_duration")
	Message string // Human-readable error message
	Cause   error  // Underlying error (may be nil)
}

// Error implements the error interface.
func (e *CodedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CodedError) Unwrap() error {
	return e.Cause
}

// New creates a new CodedError with the given code and message.
func New(code, message string) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a new CodedError wrapping an existing error.
func Wrap(code, message string, cause error) *CodedError {
	return &CodedError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// GetCode extracts the error code from an error.
// Falls back to CodeUnknown for errors that carry no code.
func GetCode(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code
	}

	return CodeUnknown
}

// GetMessage extracts a human-readable message from an error.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Message
	}

	return err.Error()
}

// ToCodeAndMessage extracts both code and message from an error.
// This is the primary function for converting errors to client responses.
func ToCodeAndMessage(err error) (code, message string) {
	if err == nil {
		return "", ""
	}

	var coded *CodedError
	if errors.As(err, &coded) {
		return coded.Code, coded.Message
	}

	return CodeUnknown, err.Error()
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code string) bool {
	return GetCode(err) == code
}

// Common error constructors for frequently used error types.

// NotFound creates a "storage.not_found" error.
func NotFound(resource string) *CodedError {
	return New(CodeStorageNotFound, fmt.Sprintf("%s not found", resource))
}

// InvalidDuration creates a "timer.invalid_duration" error.
func InvalidDuration(minutes int) *CodedError {
	return New(CodeTimerInvalidDuration, fmt.Sprintf("invalid duration: %d minutes", minutes))
}

// InvalidPhase creates a "timer.invalid_phase" error.
func InvalidPhase(phase int) *CodedError {
	return New(CodeTimerInvalidPhase, fmt.Sprintf("invalid phase for a break: %d", phase))
}

// Closed creates a "timer.closed" error.
func Closed() *CodedError {
	return New(CodeTimerClosed, "timer controller is closed")
}

// WriteFailed creates a "storage.write_failed" error.
func WriteFailed(what string, cause error) *CodedError {
	return Wrap(CodeStorageWriteFailed, fmt.Sprintf("failed to write %s", what), cause)
}

// InvalidMessage creates a "server.invalid_message" error.
func InvalidMessage(reason string) *CodedError {
	return New(CodeServerInvalidMessage, reason)
}

// SyncNotConfigured creates a "sync.not_configured" error.
// The message names the settings the user still has to provide.
func SyncNotConfigured(source, missing string) *CodedError {
	return New(CodeSyncNotConfigured, fmt.Sprintf("%s is not configured: %s", source, missing))
}

// SyncRequestFailed creates a "sync.request_failed" error.
func SyncRequestFailed(source string, cause error) *CodedError {
	return Wrap(CodeSyncRequestFailed, fmt.Sprintf("%s request failed", source), cause)
}

// Internal creates an "error.internal" error.
func Internal(message string, cause error) *CodedError {
	return Wrap(CodeInternal, message, cause)
}
