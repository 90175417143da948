// Package apperr defines the stable error taxonomy shared by all luma
// domain services: not-found, conflict, validation, integrity and
// bad-request. Every error carries a machine-readable kind; handlers map
// kinds to transport status codes without string matching.
package apperr

import (
	"errors"
	"fmt"
	"strings"
)

type BadRequestError struct {
	msg string
}

func (e *BadRequestError) Error() string { return e.msg }

func NewBadRequest(format string, args ...any) error {
	return &BadRequestError{msg: fmt.Sprintf(format, args...)}
}

func IsBadRequest(err error) bool {
	var target *BadRequestError
	ok := errors.As(err, &target)
	return ok
}

type NotFoundError struct {
	msg string
}

func (e *NotFoundError) Error() string { return e.msg }

func NewNotFound(format string, args ...any) error {
	return &NotFoundError{msg: fmt.Sprintf(format, args...)}
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	ok := errors.As(err, &target)
	return ok
}

type ConflictError struct {
	msg string
}

func (e *ConflictError) Error() string { return e.msg }

func NewConflict(format string, args ...any) error {
	return &ConflictError{msg: fmt.Sprintf(format, args...)}
}

func IsConflict(err error) bool {
	var target *ConflictError
	ok := errors.As(err, &target)
	return ok
}

// FieldError is one per-field validation failure. Reason is a stable code
// ("required", "invalid_number", ...), never prose.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+":"+f.Reason)
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func NewValidation(fields []FieldError) error {
	return &ValidationError{Fields: fields}
}

func NewFieldValidation(field string, reason string) error {
	return &ValidationError{Fields: []FieldError{{Field: field, Reason: reason}}}
}

func IsValidation(err error) bool {
	var target *ValidationError
	ok := errors.As(err, &target)
	return ok
}

// ValidationFields returns the ordered field error list, or nil when err is
// not a ValidationError.
func ValidationFields(err error) []FieldError {
	var ve *ValidationError
	ok := errors.As(err, &ve)
	if !ok {
		return nil
	}
	return ve.Fields
}

// IntegrityError marks a fatal storage inconsistency that requires operator
// intervention. It is never retried and never downgraded to a user error.
type IntegrityError struct {
	msg string
}

func (e *IntegrityError) Error() string { return e.msg }

func NewIntegrity(format string, args ...any) error {
	return &IntegrityError{msg: fmt.Sprintf(format, args...)}
}

func IsIntegrity(err error) bool {
	var target *IntegrityError
	ok := errors.As(err, &target)
	return ok
}
