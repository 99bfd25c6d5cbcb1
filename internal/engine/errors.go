package engine

import (
	"errors"
	"fmt"
)

// SyncError is returned to local callers that misuse the coordinator.
//
// Remote input never produces a SyncError; it is dropped and logged.
type SyncError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// SessionID identifies the affected session, if any.
	SessionID string
}

// ErrorCode categorizes sync errors.
type ErrorCode string

const (
	// ErrCodeNotOwner indicates an owner-only operation was called by a
	// participant without the owner role.
	ErrCodeNotOwner ErrorCode = "NOT_OWNER"

	// ErrCodeUnknownSession indicates the session has no known definition.
	ErrCodeUnknownSession ErrorCode = "UNKNOWN_SESSION"

	// ErrCodeInvalidDefinition indicates a definition failed validation.
	ErrCodeInvalidDefinition ErrorCode = "INVALID_DEFINITION"

	// ErrCodeInvalidState indicates a state does not fit the definition.
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"

	// ErrCodeStopped indicates the coordinator no longer accepts work.
	ErrCodeStopped ErrorCode = "STOPPED"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("%s: %s (session=%s)", e.Code, e.Message, e.SessionID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newSyncError(code ErrorCode, sessionID, format string, args ...any) *SyncError {
	return &SyncError{Code: code, Message: fmt.Sprintf(format, args...), SessionID: sessionID}
}

func hasCode(err error, code ErrorCode) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsNotOwner reports whether err is a NOT_OWNER SyncError.
func IsNotOwner(err error) bool { return hasCode(err, ErrCodeNotOwner) }

// IsUnknownSession reports whether err is an UNKNOWN_SESSION SyncError.
func IsUnknownSession(err error) bool { return hasCode(err, ErrCodeUnknownSession) }

// IsInvalidDefinition reports whether err is an INVALID_DEFINITION SyncError.
func IsInvalidDefinition(err error) bool { return hasCode(err, ErrCodeInvalidDefinition) }

// IsInvalidState reports whether err is an INVALID_STATE SyncError.
func IsInvalidState(err error) bool { return hasCode(err, ErrCodeInvalidState) }

// IsStopped reports whether err is a STOPPED SyncError.
func IsStopped(err error) bool { return hasCode(err, ErrCodeStopped) }
