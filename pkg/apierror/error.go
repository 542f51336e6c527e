package apierror

import (
	"encoding/json"
	"net/http"
)

// Error is an HTTP-facing failure. StatusCode and RetryAfter drive the
// response headers and never appear in the body.
type Error struct {
	StatusCode int          `json:"-"`
	Code       string       `json:"code"`
	Message    string       `json:"message"`
	Details    []FieldError `json:"details,omitempty"`
	RetryAfter int          `json:"-"`
}

// FieldError represents a validation error for a specific field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// ToJSON renders the error in the {success:false, error, code} envelope
// the game client expects.
func (e *Error) ToJSON() []byte {
	body := map[string]interface{}{
		"success": false,
		"error":   e.Message,
		"code":    e.Code,
	}
	if len(e.Details) > 0 {
		body["details"] = e.Details
	}

	data, _ := json.Marshal(body)
	return data
}

func newError(status int, code, message, fallback string) *Error {
	if message == "" {
		message = fallback
	}
	return &Error{StatusCode: status, Code: code, Message: message}
}

// BadRequest is a 400 for malformed input.
func BadRequest(message string) *Error {
	return newError(http.StatusBadRequest, "BAD_REQUEST", message, "Bad request")
}

// ValidationError is a 400 carrying per-field details.
func ValidationError(message string, details ...FieldError) *Error {
	e := newError(http.StatusBadRequest, "VALIDATION_ERROR", message, "Validation failed")
	e.Details = details
	return e
}

func Unauthorized(message string) *Error {
	return newError(http.StatusUnauthorized, "UNAUTHORIZED", message, "Authentication required")
}

func Forbidden(message string) *Error {
	return newError(http.StatusForbidden, "FORBIDDEN", message, "Access denied")
}

func NotFound(message string) *Error {
	return newError(http.StatusNotFound, "NOT_FOUND", message, "Resource not found")
}

// TooManyRequests is a 429. retryAfter is in seconds; zero omits the header.
func TooManyRequests(message string, retryAfter int) *Error {
	e := newError(http.StatusTooManyRequests, "RATE_LIMITED", message, "Too many requests, slow down")
	e.RetryAfter = retryAfter
	return e
}

// InternalError is a 500. The message must be safe to show a client.
func InternalError(message string) *Error {
	return newError(http.StatusInternalServerError, "INTERNAL_ERROR", message, "An unexpected error occurred")
}

func ServiceUnavailable(message string) *Error {
	return newError(http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", message, "Service temporarily unavailable")
}

// WithCode overrides the machine-readable code while keeping the status.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}
