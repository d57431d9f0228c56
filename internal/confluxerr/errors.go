// Package confluxerr defines the error taxonomy shared by every Conflux
// component: Transient, Caller, Integrity and Fatal kinds, as described by
// the error handling design. Errors carry a Kind plus a cockroachdb/errors
// wrapped cause so stack traces survive across component boundaries the
// same way pebble's own errors do.
package confluxerr

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

// Kind classifies an error for retry/alerting decisions. Callers branch on
// category far more often than on specific cause, so the category is a
// first-class field rather than a sentinel-error comparison.
type Kind int

const (
	// KindTransient errors are retriable by the caller without changing the request.
	KindTransient Kind = iota
	// KindCaller errors indicate a bad request; retrying unchanged will not help.
	KindCaller
	// KindIntegrity errors indicate a bug or damaged data; they raise an alert.
	KindIntegrity
	// KindFatal errors require the node to halt to preserve safety.
	KindFatal
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindCaller:
		return "caller"
	case KindIntegrity:
		return "integrity"
	case KindFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Code is a specific, named condition within a Kind. The zero value is never
// used on a constructed Error.
type Code string

const (
	CodeNotLeader         Code = "NOT_LEADER"
	CodeTimeout           Code = "TIMEOUT"
	CodeResourceExhausted Code = "RESOURCE_EXHAUSTED"
	CodeUnavailable       Code = "UNAVAILABLE"
	CodeForwardExhausted  Code = "FORWARD_EXHAUSTED"

	CodeInvalidArgument    Code = "INVALID_ARGUMENT"
	CodeNotFound           Code = "NOT_FOUND"
	CodeAlreadyExists      Code = "ALREADY_EXISTS"
	CodePreconditionFailed Code = "PRECONDITION_FAILED"
	CodePermissionDenied   Code = "PERMISSION_DENIED"

	CodeSchemaMismatch     Code = "SCHEMA_MISMATCH"
	CodeCorruption         Code = "CORRUPTION"
	CodeInvariantViolation Code = "INVARIANT_VIOLATION"

	CodeStorageFailure   Code = "STORAGE_FAILURE"
	CodeConsensusFailure Code = "CONSENSUS_FAILURE"
)

var codeKind = map[Code]Kind{
	CodeNotLeader:         KindTransient,
	CodeTimeout:           KindTransient,
	CodeResourceExhausted: KindTransient,
	CodeUnavailable:       KindTransient,
	CodeForwardExhausted:  KindTransient,

	CodeInvalidArgument:    KindCaller,
	CodeNotFound:           KindCaller,
	CodeAlreadyExists:      KindCaller,
	CodePreconditionFailed: KindCaller,
	CodePermissionDenied:   KindCaller,

	CodeSchemaMismatch:     KindIntegrity,
	CodeCorruption:         KindIntegrity,
	CodeInvariantViolation: KindIntegrity,

	CodeStorageFailure:   KindFatal,
	CodeConsensusFailure: KindFatal,
}

// Error is the concrete error type returned across component boundaries.
type Error struct {
	Code    Code
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Code, e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s (%s): %s", e.Code, e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates an Error of the given code, deriving its Kind from the code.
func New(code Code, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Kind:    codeKind[code],
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap attaches a Code to an existing error, preserving it as the cause via
// cockroachdb/errors so the original stack trace is not lost.
func Wrap(code Code, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Kind:    codeKind[code],
		Message: fmt.Sprintf(format, args...),
		cause:   errors.Wrap(cause, "conflux"),
	}
}

// KindOf returns the Kind of err if it is (or wraps) a *Error, and
// KindTransient otherwise so an unrecognized error defaults to "safe to retry
// with backoff" rather than silently escalating to Fatal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindTransient
}

// CodeOf returns the Code of err if it is (or wraps) a *Error.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return "", false
}

// IsFatal reports whether err should halt the node.
func IsFatal(err error) bool {
	return err != nil && KindOf(err) == KindFatal
}
