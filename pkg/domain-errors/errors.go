// Package domainerrors provides coded application errors. Services return
// these; the HTTP layer maps codes to status lines and infrastructure code
// wraps driver failures as CodeInternal so callers never branch on driver
// error strings.
package domainerrors

import (
	"errors"
	"fmt"
)

// Code classifies an error for transport mapping and caller branching.
type Code string

const (
	CodeBadRequest        Code = "bad_request"
	CodeUnauthorized      Code = "unauthorized"
	CodeForbidden         Code = "forbidden"
	CodeValidation        Code = "validation_failed"
	CodeInvalidVocabulary Code = "invalid_vocabulary"
	CodeNotFound          Code = "not_found"
	CodeConflict          Code = "conflict"
	CodeAuditFailure      Code = "audit_failure"
	CodeInternal          Code = "internal_error"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a coded error with a fixed message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf builds a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and context message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Validation reports a constraint violation on a named field.
func Validation(field, constraint string) *Error {
	return Newf(CodeValidation, "%s %s", field, constraint)
}

// NotFound reports a missing entity by its identifier.
func NotFound(entity, id string) *Error {
	return Newf(CodeNotFound, "%s %s not found", entity, id)
}

// CodeOf extracts the code from err. Errors without a code report
// CodeInternal so unclassified failures never leak detail outward.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	return errors.As(err, &de) && de.Code == code
}
