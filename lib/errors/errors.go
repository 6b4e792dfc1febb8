// Package errors provides structured error types for the regionpool gateway.
// All errors are designed to be safe to return to clients without exposing
// internal implementation details.
//
// This package provides:
//   - Sentinel errors for common error conditions
//   - Pool and manager errors that wrap those sentinels
//   - Error codes for API response categorization
//   - Error wrapping with context preservation
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for categorizing errors. These align with JSON-RPC 2.0 error codes
// where applicable, with custom codes in the -32000 to -32099 range.
const (
	// Standard JSON-RPC 2.0 error codes
	CodeInvalidRequest = -32600 // Invalid request object
	CodeInvalidParams  = -32602 // Invalid parameters
	CodeInternal       = -32603 // Internal error

	// Application-specific error codes (-32000 to -32099)
	CodeNotFound      = -32003 // Resource not found
	CodeRateLimited   = -32004 // Rate limit exceeded
	CodeTimeout       = -32005 // Acquire timed out
	CodeUnavailable   = -32007 // Service unavailable
	CodeValidation    = -32008 // Validation failed
	CodeState         = -32010 // Invalid state
	CodeDestroyed     = -32011 // Pool or manager destroyed
	CodeNoCapacity    = -32012 // No healthy region
	CodeCapacity      = -32013 // Pool at maximum size
	CodeCircuitOpen   = -32014 // Region circuit open
	CodeConfiguration = -32015 // Configuration error
)

// Sentinel errors for common error conditions.
// Use errors.Is() to check for these conditions.
var (
	// ErrNotFound indicates a resource was not found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates invalid input was provided.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrUnavailable indicates a service is unavailable.
	ErrUnavailable = errors.New("service unavailable")

	// ErrRateLimited indicates a rate limit was exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrDestroyed indicates a pool or manager has been torn down.
	ErrDestroyed = errors.New("destroyed")

	// ErrCapacity indicates a bounded resource is full.
	ErrCapacity = errors.New("at capacity")

	// ErrNoCapacity indicates no region can take the request.
	ErrNoCapacity = errors.New("no capacity")

	// ErrInvalidState indicates an invalid state transition.
	ErrInvalidState = errors.New("invalid state")

	// ErrInternal indicates an internal error.
	ErrInternal = errors.New("internal error")

	// ErrConfiguration indicates a configuration error.
	ErrConfiguration = errors.New("configuration error")

	// ErrCircuitOpen indicates the circuit breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// Pool errors
var (
	// ErrPoolDestroyed is returned by any pool operation after Destroy.
	ErrPoolDestroyed = fmt.Errorf("pool: %w", ErrDestroyed)

	// ErrPoolCapacity is returned when a pool already holds its maximum
	// number of connections.
	ErrPoolCapacity = fmt.Errorf("pool: connection limit reached: %w", ErrCapacity)

	// ErrAcquireTimeout is returned when a pending request is not matched
	// within the connection timeout.
	ErrAcquireTimeout = fmt.Errorf("pool: acquire %w", ErrTimeout)

	// ErrPoolConfig is returned for an invalid pool configuration.
	ErrPoolConfig = fmt.Errorf("pool: %w", ErrConfiguration)

	// ErrInvalidTier is returned when a tier name is not recognised.
	ErrInvalidTier = fmt.Errorf("pool: tier %w", ErrInvalidInput)
)

// Manager errors
var (
	// ErrManagerShutdown is returned by manager operations after Shutdown.
	ErrManagerShutdown = fmt.Errorf("manager: %w", ErrDestroyed)

	// ErrNoHealthyRegion is returned when region selection finds no
	// healthy region.
	ErrNoHealthyRegion = fmt.Errorf("manager: no healthy region: %w", ErrNoCapacity)

	// ErrUnknownRegion is returned when a region is not configured.
	ErrUnknownRegion = fmt.Errorf("manager: region %w", ErrNotFound)

	// ErrRequesterRateLimited is returned when a requester exceeds its
	// admission rate.
	ErrRequesterRateLimited = fmt.Errorf("manager: %w", ErrRateLimited)
)

// Gateway errors
var (
	// ErrGatewayNotRunning indicates the gateway has not been started.
	ErrGatewayNotRunning = fmt.Errorf("gateway: not running: %w", ErrInvalidState)

	// ErrGatewayAlreadyRunning indicates Start was called twice.
	ErrGatewayAlreadyRunning = fmt.Errorf("gateway: already running: %w", ErrInvalidState)

	// ErrLeaseNotFound indicates an unknown lease id.
	ErrLeaseNotFound = fmt.Errorf("lease %w", ErrNotFound)
)

// Error is a structured error with a code and safe message.
// It implements the error interface and provides methods for
// error handling and response generation.
type Error struct {
	// Code is the error code for categorization
	Code int `json:"code"`
	// Message is a safe, user-facing error message
	Message string `json:"message"`
	// Err is the underlying error (not exposed to clients)
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// SafeMessage returns a client-safe error message without internal details.
func (e *Error) SafeMessage() string {
	return e.Message
}

// HTTPStatus maps the error code to an HTTP status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeInvalidRequest, CodeInvalidParams, CodeValidation:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeRateLimited:
		return http.StatusTooManyRequests
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeUnavailable, CodeDestroyed, CodeNoCapacity, CodeCapacity, CodeCircuitOpen:
		return http.StatusServiceUnavailable
	case CodeState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// New creates a new structured error with the given code and message.
// The message should be safe to return to clients.
func New(code int, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with a code and safe message.
// The original error is preserved for debugging but not exposed to clients.
func Wrap(code int, message string, err error) *Error {
	if err != nil {
		log.WithField("code", code).WithError(err).Debug("wrapping error")
	}
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WrapInternal wraps an internal error with a generic message.
func WrapInternal(err error) *Error {
	if err != nil {
		log.WithError(err).Debug("wrapping internal error")
	}
	return &Error{
		Code:    CodeInternal,
		Message: "internal error",
		Err:     err,
	}
}

// FromSentinel creates a structured error from a sentinel error.
// It automatically assigns an appropriate error code based on the error type.
func FromSentinel(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}

	return &Error{
		Code:    codeFromError(err),
		Message: err.Error(),
		Err:     err,
	}
}

// codeFromError maps sentinel errors to error codes.
func codeFromError(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrDestroyed):
		return CodeDestroyed
	case errors.Is(err, ErrNoCapacity):
		return CodeNoCapacity
	case errors.Is(err, ErrCapacity):
		return CodeCapacity
	case errors.Is(err, ErrCircuitOpen):
		return CodeCircuitOpen
	case errors.Is(err, ErrUnavailable):
		return CodeUnavailable
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidParams
	case errors.Is(err, ErrConfiguration):
		return CodeConfiguration
	case errors.Is(err, ErrInvalidState):
		return CodeState
	default:
		return CodeInternal
	}
}

// IsNotFound returns true if the error indicates a resource was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsTimeout returns true if the error indicates a timeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

// IsDestroyed returns true if the error comes from a destroyed pool or manager.
func IsDestroyed(err error) bool {
	return errors.Is(err, ErrDestroyed)
}

// IsNoCapacity returns true if no region could serve the request.
func IsNoCapacity(err error) bool {
	return errors.Is(err, ErrNoCapacity)
}

// IsCapacity returns true if a pool was at its connection limit.
func IsCapacity(err error) bool {
	return errors.Is(err, ErrCapacity)
}

// IsRateLimited returns true if the error indicates rate limiting.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// IsInvalidInput returns true if the error indicates invalid input.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsInvalidState returns true if the error indicates an invalid state.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// Join combines multiple errors into a single error.
// Returns nil if all errors are nil.
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// Is reports whether any error in err's tree matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target,
// and if so, sets target to that error value and returns true.
func As(err error, target any) bool {
	return errors.As(err, target)
}
