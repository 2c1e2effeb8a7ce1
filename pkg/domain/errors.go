package domain

import (
	"errors"
	"fmt"
)

// ErrorCode is the machine-readable failure reason surfaced to callers as
// `{ok:false, error:<code>}`.
type ErrorCode string

// Failure codes.
const (
	CodeNotFound          ErrorCode = "not_found"
	CodeDuplicateID       ErrorCode = "duplicate_id"
	CodeDuplicateEmail    ErrorCode = "duplicate_email"
	CodeDuplicateCode     ErrorCode = "duplicate_code"
	CodeProtectedBaseType ErrorCode = "protected_base_type"
	CodeInvalidRequest    ErrorCode = "invalid_request"
	CodeInvalidRole       ErrorCode = "invalid_role"
	CodeStorageFailure    ErrorCode = "storage_failure"
	CodeInternal          ErrorCode = "internal_error"
)

// Error is an expected, classified failure. Two Errors match under
// errors.Is when their codes are equal.
type Error struct {
	Code   ErrorCode
	Entity string
	ID     string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Entity != "" && e.ID != "":
		return fmt.Sprintf("%s %s: %s", e.Entity, e.ID, e.Code)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on code so callers can test against the sentinels below.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrDuplicateID       = &Error{Code: CodeDuplicateID}
	ErrDuplicateEmail    = &Error{Code: CodeDuplicateEmail}
	ErrDuplicateCode     = &Error{Code: CodeDuplicateCode}
	ErrProtectedBaseType = &Error{Code: CodeProtectedBaseType}
	ErrInvalidRequest    = &Error{Code: CodeInvalidRequest}
	ErrInvalidRole       = &Error{Code: CodeInvalidRole}
)

// NotFound builds a not_found error for an entity id.
func NotFound(entity, id string) error {
	return &Error{Code: CodeNotFound, Entity: entity, ID: id}
}

// Invalid builds an invalid_request error with a reason.
func Invalid(format string, args ...any) error {
	return &Error{Code: CodeInvalidRequest, Err: fmt.Errorf(format, args...)}
}

// StorageFailure wraps a durable-store error.
func StorageFailure(err error) error {
	if err == nil {
		return nil
	}
	var coded *Error
	if errors.As(err, &coded) {
		return err
	}
	return &Error{Code: CodeStorageFailure, Err: err}
}

// CodeOf classifies err. Unclassified errors count as storage failures.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var coded *Error
	if errors.As(err, &coded) {
		return coded.Code
	}
	return CodeStorageFailure
}
