package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes. Provider-specific codes (AUTH_ERROR, QUOTA_EXCEEDED,
// VALIDATION_ERROR, SERVER_ERROR, NETWORK_ERROR, API_ERROR) are shared
// with the classifier in the provider package; local-only codes cover
// everything that can go wrong before or after the provider call.
const (
	CodeValidation    = "VALIDATION_ERROR"
	CodeAuth          = "AUTH_ERROR"
	CodeForbidden     = "FORBIDDEN_ERROR"
	CodeNotFound      = "NOT_FOUND"
	CodeConflict      = "CONFLICT_ERROR"
	CodeRateLimited   = "RATE_LIMITED"
	CodeQuotaExceeded = "QUOTA_EXCEEDED"
	CodeNetwork       = "NETWORK_ERROR"
	CodeAPI           = "API_ERROR"
	CodeUpstream      = "UPSTREAM_ERROR"
	CodeArchive       = "ARCHIVE_ERROR"
	CodeServer        = "SERVER_ERROR"
)

// Upstream carries diagnostics about a failed provider call. BodySnippet
// is truncated and redacted before it gets here.
type Upstream struct {
	Endpoint    string `json:"endpoint"`
	Status      int    `json:"status"`
	BodySnippet string `json:"bodySnippet,omitempty"`
}

// Error is the single tagged error type used across the service. Every
// failure path returns one of these (wrapped or bare) so call sites can
// branch on Code instead of on error class hierarchies.
type Error struct {
	Code     string    `json:"code"`
	Message  string    `json:"message"`
	Detail   string    `json:"detail,omitempty"`
	Upstream *Upstream `json:"upstream,omitempty"`
	cause    error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New builds a tagged error.
func New(code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap tags an underlying error with a code and message.
func Wrap(code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

// WithDetail attaches structured detail text.
func (e *Error) WithDetail(detail string) *Error {
	e.Detail = detail
	return e
}

// WithUpstream attaches provider call diagnostics.
func (e *Error) WithUpstream(u *Upstream) *Error {
	e.Upstream = u
	return e
}

// From extracts an *Error from err, wrapping unknown errors as
// SERVER_ERROR so handlers always have a code to respond with.
func From(err error) *Error {
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}
	return Wrap(CodeServer, "internal error", err)
}

// HTTPStatus maps an error code to the response status.
func HTTPStatus(code string) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodeAuth:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimited, CodeQuotaExceeded:
		return http.StatusTooManyRequests
	case CodeUpstream, CodeNetwork, CodeAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
