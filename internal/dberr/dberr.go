// Package dberr defines the error surface shared by every core component.
//
// Errors for SQL-level and transaction-state conditions carry a
// five-character SQLSTATE code so that a caller can distinguish "retry the
// transaction" (40001) from "fix your SQL" (42601) without string-matching
// messages. I/O and page-decoding failures from the pager and b-tree are
// plain github.com/pkg/errors wraps; CodeOf reports "" for them.
package dberr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is a SQLSTATE identifier, e.g. "40001".
type Code string

const (
	CodeActiveTransaction    Code = "25001" // START TRANSACTION while already active
	CodeInFailedTransaction  Code = "25P02" // statement issued while aborted
	CodeInvalidTermination   Code = "2D000" // COMMIT/ROLLBACK with no active transaction
	CodeSerializationFailure Code = "40001" // two in-flight versions of the same key
	CodeSyntaxOrArgument     Code = "42601" // malformed statement or bad argument
	CodeUndefinedTable       Code = "42P01" // table does not exist
	CodeDuplicateTable       Code = "42P07" // CREATE TABLE on an existing name
	CodeNotNullViolation     Code = "23502" // NULL into a NOT NULL column
	CodeDivisionByZero       Code = "22012" // division by zero in an expression
	CodeUndefinedFunction    Code = "42883" // unknown function in an expression
)

// Error is the concrete type returned for every SQLSTATE-carrying failure.
type Error struct {
	code Code
	msg  string
	// cause is retained separately from the wrapped message so Unwrap
	// keeps working through errors.Is/errors.As against *Error values or
	// any sentinel the caller compares with.
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.msg, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.msg)
}

func (e *Error) Unwrap() error { return e.cause }

// CodeOf returns the SQLSTATE of err, or "" if err does not carry one.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return ""
}

// Is lets errors.Is(err, dberr.New(code, "")) match on code alone,
// ignoring message and cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.code == e.code
}

// New builds a SQLSTATE error with no wrapped cause.
func New(code Code, format string, args ...any) *Error {
	return &Error{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a SQLSTATE code to an underlying error, preserving a stack
// trace from the point cause originated via github.com/pkg/errors so that
// I/O failures (spec §7, taxonomy 5) remain diagnosable without changing
// the SQLSTATE the caller observes.
func Wrap(code Code, cause error, format string, args ...any) *Error {
	if cause == nil {
		return New(code, format, args...)
	}
	return &Error{code: code, msg: fmt.Sprintf(format, args...), cause: errors.WithStack(cause)}
}
