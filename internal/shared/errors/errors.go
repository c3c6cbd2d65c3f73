package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error types for different domains
type ErrorType string

const (
	ErrorTypeValidation     ErrorType = "VALIDATION_ERROR"
	ErrorTypeSchema         ErrorType = "SCHEMA_ERROR"
	ErrorTypeArgument       ErrorType = "ARGUMENT_ERROR"
	ErrorTypePath           ErrorType = "PATH_ERROR"
	ErrorTypeInfrastructure ErrorType = "INFRASTRUCTURE_ERROR"
	ErrorTypeAuthentication ErrorType = "AUTHENTICATION_ERROR"
	ErrorTypeNotFound       ErrorType = "NOT_FOUND_ERROR"
	ErrorTypeInternal       ErrorType = "INTERNAL_ERROR"
)

// DAO errors. AppError values built by the constructors below match these with errors.Is.
var (
	ErrMissingIdentifier = errors.New("missing path identifier")
	ErrInvalidIdentifier = errors.New("invalid path identifier")
	ErrUnknownField      = errors.New("field not declared in model")
	ErrValidation        = errors.New("form is invalid")
	ErrIncompatiblePath  = errors.New("path does not match collection template")
	ErrMissingArgument   = errors.New("required argument missing")
	ErrNotFound          = errors.New("resource not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrCacheCleared      = errors.New("cached read cleared")
)

// AppError represents a custom application error with context
type AppError struct {
	Type      ErrorType              `json:"type"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	HTTPCode  int                    `json:"-"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Cause     error                  `json:"-"`
	Component string                 `json:"component,omitempty"`

	sentinel error
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the wrapped error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel this error was built from.
func (e *AppError) Is(target error) bool {
	return e.sentinel != nil && target == e.sentinel
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, message string, httpCode int) *AppError {
	return &AppError{
		Type:     errorType,
		Message:  message,
		HTTPCode: httpCode,
		Details:  make(map[string]interface{}),
	}
}

// WithCode adds an error code
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// WithCause adds the underlying cause
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithComponent adds the component name
func (e *AppError) WithComponent(component string) *AppError {
	e.Component = component
	return e
}

// WithDetail adds a detail field
func (e *AppError) WithDetail(key string, value interface{}) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

func (e *AppError) withSentinel(sentinel error) *AppError {
	e.sentinel = sentinel
	return e
}

// NewMissingIdentifierError reports a template that needs more positional ids than supplied.
func NewMissingIdentifierError(template string, want, got int) *AppError {
	return NewAppError(ErrorTypeArgument, fmt.Sprintf("path %q needs %d identifiers, got %d", template, want, got), http.StatusBadRequest).
		WithCode("MISSING_IDENTIFIER").
		WithDetail("template", template).
		WithDetail("required", want).
		WithDetail("supplied", got).
		withSentinel(ErrMissingIdentifier)
}

// NewInvalidIdentifierError reports an identifier that cannot be a single path segment.
func NewInvalidIdentifierError(template, id string, position int) *AppError {
	return NewAppError(ErrorTypeArgument, fmt.Sprintf("identifier %q for %q must be a non-empty segment without '/'", id, template), http.StatusBadRequest).
		WithCode("INVALID_IDENTIFIER").
		WithDetail("template", template).
		WithDetail("identifier", id).
		WithDetail("position", position).
		withSentinel(ErrInvalidIdentifier)
}

// NewUnknownFieldError reports a write carrying a key the model does not declare.
func NewUnknownFieldError(modelType, field string) *AppError {
	return NewAppError(ErrorTypeSchema, fmt.Sprintf("try to update/add an attribute that is not defined in the model = %s", field), http.StatusBadRequest).
		WithCode("UNKNOWN_FIELD").
		WithDetail("model", modelType).
		WithDetail("field", field).
		withSentinel(ErrUnknownField)
}

// NewValidationError creates a validation error carrying the form's error set
func NewValidationError(message string, formErrors map[string]interface{}) *AppError {
	e := NewAppError(ErrorTypeValidation, message, http.StatusUnprocessableEntity).
		WithCode("INVALID_FORM").
		withSentinel(ErrValidation)
	if formErrors != nil {
		e.Details["errors"] = formErrors
	}
	return e
}

// NewIncompatiblePathError reports a document path outside a DAO's template.
func NewIncompatiblePathError(template, path string) *AppError {
	return NewAppError(ErrorTypePath, fmt.Sprintf("path %q is not compatible with %q", path, template), http.StatusBadRequest).
		WithCode("INCOMPATIBLE_PATH").
		WithDetail("template", template).
		WithDetail("path", path).
		withSentinel(ErrIncompatiblePath)
}

// NewMissingArgumentError names the required arguments that were absent.
func NewMissingArgumentError(args ...string) *AppError {
	return NewAppError(ErrorTypeArgument, "required attrs", http.StatusBadRequest).
		WithCode("MISSING_ARGUMENT").
		WithDetail("arguments", args).
		withSentinel(ErrMissingArgument)
}

// NewCacheClearedError ends a subscription whose cached read was cleared. The
// subscriber may read again to observe fresh data.
func NewCacheClearedError(key string) *AppError {
	return NewAppError(ErrorTypeInfrastructure, "cached read cleared", http.StatusGone).
		WithCode("CACHE_CLEARED").
		WithDetail("key", key).
		withSentinel(ErrCacheCleared)
}

// NewInfrastructureError creates an infrastructure error
func NewInfrastructureError(message string) *AppError {
	return NewAppError(ErrorTypeInfrastructure, message, http.StatusInternalServerError)
}

// NewAuthenticationError creates an authentication error
func NewAuthenticationError(message string) *AppError {
	return NewAppError(ErrorTypeAuthentication, message, http.StatusUnauthorized).withSentinel(ErrUnauthorized)
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource string) *AppError {
	return NewAppError(ErrorTypeNotFound, fmt.Sprintf("%s not found", resource), http.StatusNotFound).withSentinel(ErrNotFound)
}

// NewInternalError creates an internal server error
func NewInternalError(message string) *AppError {
	return NewAppError(ErrorTypeInternal, message, http.StatusInternalServerError)
}

// WrapError wraps a collaborator error with operation context, keeping AppErrors as they are.
func WrapError(err error, message string) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return NewInfrastructureError(message).WithCause(err)
}

// HTTPStatus returns the status code carried by err, 500 for foreign errors.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.HTTPCode != 0 {
		return appErr.HTTPCode
	}
	return http.StatusInternalServerError
}

// IsMissingIdentifier checks if an error is a missing path identifier error
func IsMissingIdentifier(err error) bool {
	return errors.Is(err, ErrMissingIdentifier)
}

// IsInvalidIdentifier checks if an error is an invalid path identifier error
func IsInvalidIdentifier(err error) bool {
	return errors.Is(err, ErrInvalidIdentifier)
}

// IsUnknownField checks if an error is an unknown field schema error
func IsUnknownField(err error) bool {
	return errors.Is(err, ErrUnknownField)
}

// IsValidation checks if an error is a form validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsIncompatiblePath checks if an error is an incompatible path error
func IsIncompatiblePath(err error) bool {
	return errors.Is(err, ErrIncompatiblePath)
}

// IsMissingArgument checks if an error is a missing argument error
func IsMissingArgument(err error) bool {
	return errors.Is(err, ErrMissingArgument)
}

// IsNotFound checks if an error is a not found error
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsAuthentication checks if an error is an authentication error
func IsAuthentication(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsCacheCleared checks if an error ended a subscription because its cache was cleared
func IsCacheCleared(err error) bool {
	return errors.Is(err, ErrCacheCleared)
}
