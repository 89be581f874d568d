// Package custodyerr defines the error taxonomy shared across the custody
// engine. Every package in this module returns *Error (or wraps one) instead
// of panicking or returning ad hoc sentinel values, so that callers can
// branch on Kind with errors.As regardless of which component raised it.
package custodyerr

import (
	"errors"
	"fmt"
)

// Kind classifies the failure so that callers (RPC handlers, CLI, tests) can
// decide how to react without string-matching error messages.
type Kind int

const (
	// Unknown is the zero value and should never be returned deliberately.
	Unknown Kind = iota
	// InvalidArgument means a caller-supplied value failed validation.
	InvalidArgument
	// NotFound means the referenced DID, vault, group or session does not exist.
	NotFound
	// AlreadyExists means a create/register call collided with an existing record.
	AlreadyExists
	// Busy means the target DID or vault already has an in-flight session.
	Busy
	// Timeout means a DKG or signing round did not complete before its deadline.
	Timeout
	// Incomplete means a cohort did not reach the threshold of participants needed.
	Incomplete
	// CryptoFailure means a cryptographic check (signature, VSS proof, MAC) failed.
	CryptoFailure
	// Faulted means a session transitioned into a terminal faulted state and
	// cannot be resumed.
	Faulted
	// Internal means an invariant inside the engine itself was violated.
	Internal
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case NotFound:
		return "not_found"
	case AlreadyExists:
		return "already_exists"
	case Busy:
		return "busy"
	case Timeout:
		return "timeout"
	case Incomplete:
		return "incomplete"
	case CryptoFailure:
		return "crypto_failure"
	case Faulted:
		return "faulted"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// Error is the concrete error type returned by every custody engine package.
type Error struct {
	Kind Kind
	Op   string // the operation that failed, e.g. "vault.StoreRecord"
	Msg  string
	Err  error // optional wrapped cause
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Op, e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, custodyerr.New(Busy, "", "")) style comparisons
// that only check Kind, ignoring Op/Msg/Err.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error with no wrapped cause.
func New(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Newf constructs an *Error with a formatted message.
func Newf(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches op/msg context to an existing error, classifying it under kind.
// If err is already a *Error, its Kind is preserved unless the caller's kind
// is more specific (non-Unknown); this lets lower layers set the Kind once.
func Wrap(err error, kind Kind, op, msg string) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) && kind == Unknown {
		kind = existing.Kind
	}
	return &Error{Kind: kind, Op: op, Msg: msg, Err: err}
}

// KindOf extracts the Kind of err, returning Unknown if err is not (or does
// not wrap) a *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
