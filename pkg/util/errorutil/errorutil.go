package util

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes surfaced to API clients. Callers are expected to retry only
// CONCURRENT_MODIFICATION, after re-reading the ticket.
const (
	CodeValidationFailed       = "VALIDATION_FAILED"
	CodeInvalidTransition      = "INVALID_TRANSITION"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodePendencyAlreadyOpen    = "PENDENCY_ALREADY_OPEN"
	CodeNotFound               = "NOT_FOUND"
	CodeInternal               = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

// NewInvalidTransition signals a trigger illegal for the current status.
func NewInvalidTransition(trigger, status string) error {
	return NewDomainError(CodeInvalidTransition,
		fmt.Sprintf("trigger %s not allowed from status %s", trigger, status),
		http.StatusConflict,
		map[string]any{"trigger": trigger, "status": status})
}

// NewConcurrentModification signals an optimistic version mismatch. The
// caller must re-read the ticket and retry.
func NewConcurrentModification(expected, actual int64) error {
	return NewDomainError(CodeConcurrentModification,
		"ticket was modified concurrently",
		http.StatusConflict,
		map[string]any{"expected_version": expected, "actual_version": actual})
}

// NewPendencyAlreadyOpen signals that a pendency of the same kind is still
// unresolved on the ticket.
func NewPendencyAlreadyOpen(kind string) error {
	return NewDomainError(CodePendencyAlreadyOpen,
		fmt.Sprintf("an open %s pendency already exists", kind),
		http.StatusConflict,
		map[string]any{"kind": kind})
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err is a DomainError with the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}
