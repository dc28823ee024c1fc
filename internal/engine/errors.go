package engine

import (
	"errors"
	"fmt"
)

// LoopError is a failure of one reconciliation cycle.
type LoopError struct {
	// Code identifies the error category.
	Code LoopErrorCode

	// Message names the step that failed.
	Message string

	// Err is the underlying cause.
	Err error
}

// LoopErrorCode categorizes loop errors.
type LoopErrorCode string

const (
	// ErrCodeAuthFailed means the inbox rejected our credentials. The loop
	// stops; re-authentication is up to the caller.
	ErrCodeAuthFailed LoopErrorCode = "AUTH_FAILED"

	// ErrCodeTransient covers network and server failures. The cycle is
	// retried after a backoff.
	ErrCodeTransient LoopErrorCode = "TRANSIENT"

	// ErrCodeStore means the tip store could not be read or written.
	ErrCodeStore LoopErrorCode = "STORE"
)

// Error implements the error interface.
func (e *LoopError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *LoopError) Unwrap() error {
	return e.Err
}

// IsAuthError returns true if err is an authentication failure.
// Uses errors.As to handle wrapped errors.
func IsAuthError(err error) bool {
	var le *LoopError
	if errors.As(err, &le) {
		return le.Code == ErrCodeAuthFailed
	}
	return false
}

// IsTransient returns true if err is a retryable network failure.
func IsTransient(err error) bool {
	var le *LoopError
	if errors.As(err, &le) {
		return le.Code == ErrCodeTransient
	}
	return false
}

// IsStoreError returns true if err is a persistence failure.
func IsStoreError(err error) bool {
	var le *LoopError
	if errors.As(err, &le) {
		return le.Code == ErrCodeStore
	}
	return false
}

func transientError(message string, err error) *LoopError {
	return &LoopError{Code: ErrCodeTransient, Message: message, Err: err}
}

func storeError(message string, err error) *LoopError {
	return &LoopError{Code: ErrCodeStore, Message: message, Err: err}
}
