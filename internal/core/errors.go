package core

import "errors"

// Error codes for orchestrator domain errors.
const (
	ErrCodeInvalidState     = "invalid_state"
	ErrCodeUnknownCall      = "unknown_call"
	ErrCodeUnknownClient    = "unknown_client"
	ErrCodePermissionDenied = "permission_denied"
	ErrCodeDuplicateRequest = "duplicate_request"
	ErrCodeAllocationFailed = "allocation_failed"
	ErrCodeClosed           = "manager_closed"
)

var (
	ErrInvalidState     = errors.New("operation not valid in current state")
	ErrUnknownCall      = errors.New("call id does not match any tracked session")
	ErrUnknownClient    = errors.New("client id does not match any tracked client")
	ErrPermissionDenied = errors.New("caller lacks admin role for this client")
	ErrDuplicateRequest = errors.New("request id already pending")
	ErrAllocationFailed = errors.New("client allocation failed")
	ErrClosed           = errors.New("call manager is closed")
)

// CoreError wraps a code, a human-readable message and the matching sentinel.
type CoreError struct {
	Code    string
	Message string
	Err     error
}

func (e *CoreError) Error() string {
	return e.Message
}

func (e *CoreError) Unwrap() error {
	return e.Err
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg, Err: sentinelFor(code)}
}

func sentinelFor(code string) error {
	switch code {
	case ErrCodeInvalidState:
		return ErrInvalidState
	case ErrCodeUnknownCall:
		return ErrUnknownCall
	case ErrCodeUnknownClient:
		return ErrUnknownClient
	case ErrCodePermissionDenied:
		return ErrPermissionDenied
	case ErrCodeDuplicateRequest:
		return ErrDuplicateRequest
	case ErrCodeAllocationFailed:
		return ErrAllocationFailed
	case ErrCodeClosed:
		return ErrClosed
	}
	return nil
}
