package extension

import (
	"errors"
	"fmt"
)

// Stable error codes reported to the peer.
const (
	ErrCodeNotPermitted = "ENOTPERMITTED"
	ErrCodeBadUpdate    = "EBADUPDATE"
	ErrCodeUnknownID    = "EUNKNOWNID"
)

// PermissionError is returned when the user may not perform a mutation.
type PermissionError struct {
	Operation string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("not permitted: %s", e.Operation)
}

// ErrorCode implements the coded-error convention of the channel.
func (e *PermissionError) ErrorCode() string {
	return ErrCodeNotPermitted
}

// BackendError wraps a failed document write or backend call.
type BackendError struct {
	Operation string
	Err       error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Operation, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// ErrorCode implements the coded-error convention of the channel.
func (e *BackendError) ErrorCode() string {
	return ErrCodeBadUpdate
}

// ErrorData returns the underlying failure detail. Errors that carry their
// own data (HTTP-shaped backend errors) keep it; others are reduced to
// their message.
func (e *BackendError) ErrorData() any {
	var withData interface{ ErrorData() any }
	if errors.As(e.Err, &withData) {
		if data := withData.ErrorData(); data != nil {
			return data
		}
	}
	return map[string]any{"message": e.Err.Error()}
}

// UnknownIDError is returned when a peer call names a field or locale that
// has no internal counterpart.
type UnknownIDError struct {
	Kind string
	ID   string
}

func (e *UnknownIDError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Kind, e.ID)
}

// ErrorCode implements the coded-error convention of the channel.
func (e *UnknownIDError) ErrorCode() string {
	return ErrCodeUnknownID
}
