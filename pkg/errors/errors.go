package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an application error. The set is closed: every error that
// reaches the HTTP boundary is translated through exactly one Kind.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthFailed
	KindForbidden
	KindConflict
	KindNotFound
)

// String returns the wire code for the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindAuthFailed:
		return "AUTH_FAILED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindConflict:
		return "CONFLICT"
	case KindNotFound:
		return "NOT_FOUND"
	default:
		return "INTERNAL_ERROR"
	}
}

// Status returns the HTTP status code for the kind.
func (k Kind) Status() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthFailed:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindConflict:
		return http.StatusConflict
	case KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// Sentinels for errors.Is matching. An *AppError matches the sentinel of its Kind.
var (
	ErrValidation = errors.New("validation error")
	ErrAuthFailed = errors.New("authentication failed")
	ErrForbidden  = errors.New("forbidden")
	ErrConflict   = errors.New("conflict")
	ErrNotFound   = errors.New("resource not found")
	ErrInternal   = errors.New("internal error")
)

var sentinels = map[Kind]error{
	KindValidation: ErrValidation,
	KindAuthFailed: ErrAuthFailed,
	KindForbidden:  ErrForbidden,
	KindConflict:   ErrConflict,
	KindNotFound:   ErrNotFound,
	KindInternal:   ErrInternal,
}

// AppError represents a structured application error with HTTP status mapping.
type AppError struct {
	Kind    Kind              `json:"-"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Status  int               `json:"-"`
	Fields  map[string]string `json:"fields,omitempty"`
	Err     error             `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's Kind.
func (e *AppError) Is(target error) bool {
	return sentinels[e.Kind] == target
}

func newError(kind Kind, message string, err error) *AppError {
	return &AppError{
		Kind:    kind,
		Code:    kind.String(),
		Message: message,
		Status:  kind.Status(),
		Err:     err,
	}
}

// Validation creates a 400 error for malformed input.
func Validation(message string) *AppError {
	return newError(KindValidation, message, nil)
}

// ValidationFields creates a 400 error carrying per-field messages.
func ValidationFields(message string, fields map[string]string) *AppError {
	e := newError(KindValidation, message, nil)
	e.Fields = fields
	return e
}

// AuthFailed creates a 401 error. Keep the message generic: it is shown to
// unauthenticated callers.
func AuthFailed(message string) *AppError {
	return newError(KindAuthFailed, message, nil)
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return newError(KindForbidden, message, nil)
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return newError(KindConflict, message, nil)
}

// NotFound creates a 404 error.
func NotFound(resource, id string) *AppError {
	return newError(KindNotFound, fmt.Sprintf("%s with id %s not found", resource, id), nil)
}

// Internal creates a 500 error. The cause is kept for logging and never
// rendered as the message.
func Internal(err error) *AppError {
	return newError(KindInternal, "an internal error occurred", err)
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	return fmt.Errorf("%s: %w", message, err)
}

// KindOf returns the Kind of the first *AppError in err's chain, or
// KindInternal when there is none.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	return KindOf(err).Status()
}
