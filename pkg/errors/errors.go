package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors shared by every storefront package.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrConflict       = errors.New("conflict")
	ErrServiceUnavail = errors.New("service unavailable")
	ErrOrderRejected  = errors.New("order rejected")
	ErrRateLimited    = errors.New("rate limited")
)

// kind ties a sentinel to its wire code, HTTP status and the message shown
// when only the bare sentinel reaches the response writer.
type kind struct {
	sentinel error
	code     string
	status   int
	message  string
}

// Checked in order; the first sentinel found in the chain wins.
var kinds = []kind{
	{ErrNotFound, "NOT_FOUND", http.StatusNotFound, "resource not found"},
	{ErrConflict, "CONFLICT", http.StatusConflict, "conflict"},
	{ErrInvalidInput, "INVALID_INPUT", http.StatusBadRequest, ""},
	{ErrUnauthorized, "UNAUTHORIZED", http.StatusUnauthorized, "unauthorized"},
	{ErrOrderRejected, "ORDER_REJECTED", http.StatusUnprocessableEntity, "order rejected"},
	{ErrServiceUnavail, "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, "service temporarily unavailable"},
	{ErrRateLimited, "RATE_LIMITED", http.StatusTooManyRequests, "too many requests"},
}

var internalKind = kind{code: "INTERNAL_ERROR", status: http.StatusInternalServerError, message: "an internal error occurred"}

func kindOf(err error) kind {
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			return k
		}
	}
	return internalKind
}

// AppError carries a machine-readable code and the HTTP status it maps to.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
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

func newAppError(sentinel error, message string) *AppError {
	k := kindOf(sentinel)
	return &AppError{Code: k.code, Message: message, Status: k.status, Err: sentinel}
}

// NotFound reports a missing resource, e.g. a cart line that was never added.
func NotFound(resource, id string) *AppError {
	return newAppError(ErrNotFound, fmt.Sprintf("%s with id %s not found", resource, id))
}

func InvalidInput(message string) *AppError { return newAppError(ErrInvalidInput, message) }

func Unauthorized(message string) *AppError { return newAppError(ErrUnauthorized, message) }

func Conflict(message string) *AppError { return newAppError(ErrConflict, message) }

// ServiceUnavailable is returned when the order backend cannot be reached or
// its circuit is open.
func ServiceUnavailable(message string) *AppError {
	return newAppError(ErrServiceUnavail, message)
}

// OrderRejected is a 422 for an order the backend refused.
func OrderRejected(message string) *AppError { return newAppError(ErrOrderRejected, message) }

func RateLimited(message string) *AppError { return newAppError(ErrRateLimited, message) }

// HTTPStatus returns the HTTP status code for the given error.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return kindOf(err).status
}

// Describe returns the code, client-facing message and status for err.
// AppErrors report their own fields; bare sentinels get a fixed message,
// except invalid input, which echoes the error text. Anything else is an
// opaque 500.
func Describe(err error) (code, message string, status int) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code, appErr.Message, appErr.Status
	}
	k := kindOf(err)
	if k.sentinel == ErrInvalidInput {
		return k.code, err.Error(), k.status
	}
	return k.code, k.message, k.status
}
