package identity

import (
	"context"
	"errors"
	"fmt"
)

// Fault classifies a store failure.
type Fault uint8

const (
	FaultOther Fault = iota
	FaultUniqueViolation
	FaultNotFound
	FaultUnavailable
)

func (f Fault) String() string {
	switch f {
	case FaultUniqueViolation:
		return "unique_violation"
	case FaultNotFound:
		return "not_found"
	case FaultUnavailable:
		return "unavailable"
	default:
		return "other"
	}
}

// StoreError is returned by every store adapter (record, graph and cache).
// Err carries the driver error for logs; it must never reach a client.
type StoreError struct {
	Op    string
	Fault Fault
	// Field names the logical field of a unique violation ("email_hash").
	Field string
	Err   error
}

func (e *StoreError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Fault)
	if e.Field != "" {
		msg += ": " + e.Field
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is maps faults onto the package sentinels.
func (e *StoreError) Is(target error) bool {
	switch target {
	case ErrConflict:
		return e.Fault == FaultUniqueViolation
	case ErrNotFound:
		return e.Fault == FaultNotFound
	case ErrUnavailable:
		return e.Fault == FaultUnavailable
	}
	return false
}

// Fail builds a *StoreError.
func Fail(op string, fault Fault, err error) error {
	return &StoreError{Op: op, Fault: fault, Err: err}
}

// FaultOf classifies any error. Context deadline counts as unavailability;
// errors that are not *StoreError are FaultOther.
func FaultOf(err error) Fault {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Fault
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FaultUnavailable
	}
	return FaultOther
}

// IsConflict reports whether err is a unique violation.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsNotFound reports whether err is a missing row/node/key.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsUnavailable reports whether err is a transient store failure.
func IsUnavailable(err error) bool { return FaultOf(err) == FaultUnavailable }
