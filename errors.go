package cxlsim

import "github.com/joonho3020/CXLSim/internal/errs"

// Error is the structured error type returned by fatal simulator paths
// (invariant violations and configuration errors). Admission back-pressure
// is never surfaced as an error value; it is a plain `false` return from the
// hot-path Insert*/Push* calls, exactly as the original model returns bool.
//
// Defined in internal/errs and aliased here so that internal packages
// (config, watchdog) needing to construct one don't import this root
// package back and create a cycle.
type Error = errs.Error

// ErrorCode categorizes fatal failures per the error taxonomy: admission
// back-pressure is intentionally absent here since it is never wrapped in an
// Error value.
type ErrorCode = errs.ErrorCode

const (
	// Invariant violations: the simulator or its configuration has a bug.
	ErrCodeInvariantViolation = errs.ErrCodeInvariantViolation
	ErrCodeLanesNotPow2       = errs.ErrCodeLanesNotPow2
	ErrCodeCompositionLimit   = errs.ErrCodeCompositionLimit
	ErrCodeUnknownDRAMReply   = errs.ErrCodeUnknownDRAMReply
	ErrCodeForwardProgress    = errs.ErrCodeForwardProgress

	// Configuration errors: fatal at init.
	ErrCodeConfigInvalid = errs.ErrCodeConfigInvalid
)

// NewError creates a new structured fatal error.
func NewError(op string, code ErrorCode, msg string) *Error {
	return errs.NewError(op, code, msg)
}

// NewErrorAt is NewError stamped with the simulator cycle at detection time.
func NewErrorAt(op string, cycle uint64, code ErrorCode, msg string) *Error {
	return errs.NewErrorAt(op, cycle, code, msg)
}

// WrapError wraps an existing error with cxlsim operation context.
func WrapError(op string, code ErrorCode, inner error) *Error {
	return errs.WrapError(op, code, inner)
}

// IsCode reports whether err is (or wraps) a *Error with the given code.
func IsCode(err error, code ErrorCode) bool {
	return errs.IsCode(err, code)
}
