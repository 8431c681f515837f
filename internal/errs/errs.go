// Package errs holds the structured fatal-error type shared by the root
// cxlsim package and any internal package (config, watchdog) that needs to
// return one without creating an import cycle back through the root
// package. The root package re-exports these names verbatim via type
// aliases so external callers see no difference.
package errs

import (
	"errors"
	"fmt"
)

// Error is the structured error type returned by fatal simulator paths
// (invariant violations and configuration errors). Admission back-pressure
// is never surfaced as an error value; it is a plain `false` return from the
// hot-path Insert*/Push* calls, exactly as the original model returns bool.
type Error struct {
	Op    string    // component/operation that failed, e.g. "vc.insert", "config.validate"
	Cycle uint64    // simulator cycle at detection time, 0 if not applicable
	Code  ErrorCode // high-level error category
	Msg   string    // human-readable detail
	Inner error     // wrapped error, if any
}

func (e *Error) Error() string {
	if e.Cycle != 0 {
		return fmt.Sprintf("cxlsim: %s: %s (cycle=%d)", e.Op, e.Msg, e.Cycle)
	}
	return fmt.Sprintf("cxlsim: %s: %s", e.Op, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Inner
}

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode categorizes fatal failures per the error taxonomy: admission
// back-pressure is intentionally absent here since it is never wrapped in an
// Error value.
type ErrorCode string

const (
	// Invariant violations: the simulator or its configuration has a bug.
	ErrCodeInvariantViolation ErrorCode = "invariant violation"
	ErrCodeLanesNotPow2       ErrorCode = "lane count not a power of two"
	ErrCodeCompositionLimit   ErrorCode = "flit composition limit exceeded"
	ErrCodeUnknownDRAMReply   ErrorCode = "dram callback for unknown request"
	ErrCodeForwardProgress    ErrorCode = "forward progress watchdog tripped"

	// Configuration errors: fatal at init.
	ErrCodeConfigInvalid ErrorCode = "invalid configuration"
)

// NewError creates a new structured fatal error.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewErrorAt is NewError stamped with the simulator cycle at detection time.
func NewErrorAt(op string, cycle uint64, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Cycle: cycle, Code: code, Msg: msg}
}

// WrapError wraps an existing error with cxlsim operation context.
func WrapError(op string, code ErrorCode, inner error) *Error {
	if inner == nil {
		return nil
	}
	return &Error{Op: op, Code: code, Msg: inner.Error(), Inner: inner}
}

// IsCode reports whether err is (or wraps) a *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
