// Package errs provides the rejection taxonomy shared by every stage of the
// ledger engine.
package errs

import (
	"errors"
	"fmt"
)

// Reason names why a record or transaction was rejected.
type Reason uint8

// Set of known rejection reasons.
const (
	None Reason = iota
	MalformedRecord
	UnknownVersion
	SchemaViolation
	InvalidSignature
	SequenceMismatch
	UnknownAccount
	InsufficientFunds
	CapacityExceeded
	StoreCorruption
	Timeout
	Cancelled
	Shutdown
)

var reasonNames = map[Reason]string{
	None:              "none",
	MalformedRecord:   "malformed record",
	UnknownVersion:    "unknown version",
	SchemaViolation:   "schema violation",
	InvalidSignature:  "invalid signature",
	SequenceMismatch:  "sequence mismatch",
	UnknownAccount:    "unknown account",
	InsufficientFunds: "insufficient funds",
	CapacityExceeded:  "capacity exceeded",
	StoreCorruption:   "store corruption",
	Timeout:           "timeout",
	Cancelled:         "cancelled",
	Shutdown:          "shutdown",
}

// String implements the fmt.Stringer interface.
func (r Reason) String() string {
	if name, exists := reasonNames[r]; exists {
		return name
	}
	return fmt.Sprintf("reason(%d)", uint8(r))
}

// Error implements the error interface so a Reason can be used as a sentinel
// with errors.Is.
func (r Reason) Error() string {
	return r.String()
}

// Retryable reports whether a caller may resubmit the same transaction
// unchanged and expect a different outcome.
func (r Reason) Retryable() bool {
	return r == CapacityExceeded
}

// Fatal reports whether the reason stops the engine from accepting writes.
func (r Reason) Fatal() bool {
	return r == StoreCorruption
}

// =============================================================================

// Error is used to pass a rejection through the engine with the reason that
// will be surfaced to the caller.
type Error struct {
	Reason Reason
	Err    error
}

// New constructs an error for the specified reason.
func New(reason Reason, format string, args ...any) error {
	return &Error{Reason: reason, Err: fmt.Errorf(format, args...)}
}

// Wrap attaches a reason to an existing error.
func Wrap(reason Reason, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Reason: reason, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Reason.String()
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Err)
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is makes errors.Is(err, errs.SequenceMismatch) work for wrapped errors.
func (e *Error) Is(target error) bool {
	r, ok := target.(Reason)
	return ok && r == e.Reason
}

// ReasonOf returns the reason carried by the error chain, None for a nil
// error and StoreCorruption for an error the engine does not understand.
func ReasonOf(err error) Reason {
	if err == nil {
		return None
	}

	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}

	return StoreCorruption
}
