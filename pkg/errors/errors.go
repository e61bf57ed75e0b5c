package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorType represents different types of application errors
type ErrorType string

const (
	ErrorTypeValidation       ErrorType = "validation"
	ErrorTypeNotFound         ErrorType = "not_found"
	ErrorTypeInternal         ErrorType = "internal"
	ErrorTypeStoreUnavailable ErrorType = "store_unavailable"
	ErrorTypeShapeMismatch    ErrorType = "shape_mismatch"
	ErrorTypeTimeout          ErrorType = "timeout"
	ErrorTypeMethodNotAllowed ErrorType = "method_not_allowed"
)

// AppError represents a structured application error
type AppError struct {
	Type       ErrorType              `json:"type"`
	Message    string                 `json:"message"`
	StatusCode int                    `json:"status_code"`
	Internal   error                  `json:"-"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (%s)", e.Type, e.Message, e.Internal.Error())
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Internal
}

// NewValidationError creates a new validation error
func NewValidationError(message string, details map[string]interface{}) *AppError {
	return &AppError{
		Type:       ErrorTypeValidation,
		Message:    message,
		StatusCode: http.StatusBadRequest,
		Details:    details,
	}
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string) *AppError {
	return &AppError{
		Type:       ErrorTypeNotFound,
		Message:    message,
		StatusCode: http.StatusNotFound,
	}
}

// NewInternalError creates a new internal server error
func NewInternalError(message string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeInternal,
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   internal,
	}
}

// NewMethodNotAllowedError reports a request method the route does not serve.
func NewMethodNotAllowedError(method string, allowed ...string) *AppError {
	return &AppError{
		Type:       ErrorTypeMethodNotAllowed,
		Message:    method + " is not allowed on this endpoint",
		StatusCode: http.StatusMethodNotAllowed,
		Details: map[string]interface{}{
			"allowed": allowed,
		},
	}
}

// NewStoreUnavailableError wraps a connection or protocol failure of the counter store.
func NewStoreUnavailableError(message string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeStoreUnavailable,
		Message:    message,
		StatusCode: http.StatusServiceUnavailable,
		Internal:   internal,
	}
}

// NewShapeMismatchError reports a stored record whose type is neither the
// legacy scalar nor the structured hash.
func NewShapeMismatchError(key, storedType string) *AppError {
	return &AppError{
		Type:       ErrorTypeShapeMismatch,
		Message:    "unexpected record shape",
		StatusCode: http.StatusInternalServerError,
		Details: map[string]interface{}{
			"key":  key,
			"type": storedType,
		},
	}
}

// NewTimeoutError reports a step that did not finish within its budget.
func NewTimeoutError(step string, internal error) *AppError {
	return &AppError{
		Type:       ErrorTypeTimeout,
		Message:    step + " timed out",
		StatusCode: http.StatusGatewayTimeout,
		Internal:   internal,
	}
}

// KindOf returns the ErrorType of the first AppError in err's chain,
// or ErrorTypeInternal for any other non-nil error.
func KindOf(err error) ErrorType {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeInternal
}

// IsKind reports whether err carries an AppError of type t.
func IsKind(err error, t ErrorType) bool {
	return err != nil && KindOf(err) == t
}

// ErrorResponse represents the JSON error response
type ErrorResponse struct {
	Error struct {
		Type      ErrorType              `json:"type"`
		Message   string                 `json:"message"`
		Details   map[string]interface{} `json:"details,omitempty"`
		RequestID string                 `json:"request_id,omitempty"`
		Timestamp string                 `json:"timestamp"`
	} `json:"error"`
}
