package store

import (
	"errors"
	"fmt"
	"net/http"
)

// API error codes, matching the remote content API.
const (
	CodeNotFound         = "NotFound"
	CodeVersionMismatch  = "VersionMismatch"
	CodeBadRequest       = "BadRequest"
	CodeValidationFailed = "ValidationFailed"
)

// APIError is an HTTP-shaped backend failure.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// ErrorData exposes the failure detail to RPC error serialization.
func (e *APIError) ErrorData() any {
	return map[string]any{
		"status":  e.Status,
		"code":    e.Code,
		"message": e.Message,
	}
}

// IsNotFound reports whether err is a NotFound API error.
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsVersionMismatch reports whether err is a VersionMismatch API error.
func IsVersionMismatch(err error) bool {
	return hasCode(err, CodeVersionMismatch)
}

func hasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

func notFound(id string) *APIError {
	return &APIError{Status: http.StatusNotFound, Code: CodeNotFound, Message: fmt.Sprintf("entity %q not found", id)}
}

func versionMismatch(id string, got, want int64) *APIError {
	return &APIError{
		Status:  http.StatusConflict,
		Code:    CodeVersionMismatch,
		Message: fmt.Sprintf("entity %q is at version %d, request was based on %d", id, want, got),
	}
}

func badRequest(format string, args ...any) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: CodeBadRequest, Message: fmt.Sprintf(format, args...)}
}
