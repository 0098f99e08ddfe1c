package entitystate

import (
	"errors"
	"fmt"
)

// TransitionError is a planning error detected before any backend call.
type TransitionError struct {
	Code    TransitionErrorCode
	Message string
	From    State
	To      State
}

// TransitionErrorCode categorizes planning errors.
type TransitionErrorCode string

const (
	// ErrCodeInvalidTarget indicates a target that cannot be commanded, i.e. Changed.
	ErrCodeInvalidTarget TransitionErrorCode = "INVALID_TARGET"

	// ErrCodeEntityDeleted indicates the entity is already deleted.
	ErrCodeEntityDeleted TransitionErrorCode = "ENTITY_DELETED"

	// ErrCodeUnknownAction indicates an action name outside the enumeration.
	ErrCodeUnknownAction TransitionErrorCode = "UNKNOWN_ACTION"

	// ErrCodeUnknownState indicates a state name outside the enumeration.
	ErrCodeUnknownState TransitionErrorCode = "UNKNOWN_STATE"

	// ErrCodeMissingSys indicates the backend returned no metadata mid-plan.
	ErrCodeMissingSys TransitionErrorCode = "MISSING_SYS"
)

// Sentinels for errors.Is matching against a TransitionError code.
var (
	ErrInvalidTarget = &TransitionError{Code: ErrCodeInvalidTarget}
	ErrEntityDeleted = &TransitionError{Code: ErrCodeEntityDeleted}
)

func (e *TransitionError) Error() string {
	if e.From != "" || e.To != "" {
		return fmt.Sprintf("%s: %s (from=%s, to=%s)", e.Code, e.Message, e.From, e.To)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ErrorCode exposes the code to RPC error serialization.
func (e *TransitionError) ErrorCode() string {
	return string(e.Code)
}

// Is matches any TransitionError with the same code.
func (e *TransitionError) Is(target error) bool {
	var te *TransitionError
	if errors.As(target, &te) {
		return te.Code == e.Code
	}
	return false
}
