package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// AdapterError wraps a failed market data or balance fetch. It is always
// transient: the caller skips the current tick and retries on the next one.
type AdapterError struct {
	Op  string
	Err error
}

func (e *AdapterError) Error() string {
	return fmt.Sprintf("adapter: %s: %v", e.Op, e.Err)
}

func (e *AdapterError) Unwrap() error { return e.Err }

// OrderErrorKind distinguishes order failures whose fill status is unknown
// from orders the exchange explicitly refused
type OrderErrorKind int

const (
	// OrderErrTransient means the request may or may not have reached the
	// exchange; the actual outcome must be reconciled against balances
	OrderErrTransient OrderErrorKind = iota

	// OrderErrRejected means the exchange refused the order; nothing filled
	OrderErrRejected
)

// OrderError represents a failed order placement
type OrderError struct {
	Kind     OrderErrorKind
	Pair     string
	Side     SideType
	Quantity decimal.Decimal
	Err      error
}

func (e *OrderError) Error() string {
	kind := "transient"
	if e.Kind == OrderErrRejected {
		kind = "rejected"
	}
	return fmt.Sprintf("order %s (%s %s): %v", kind, e.Side, e.Pair, e.Err)
}

func (e *OrderError) Unwrap() error { return e.Err }

// Rejected reports whether the exchange explicitly refused the order
func (e *OrderError) Rejected() bool { return e.Kind == OrderErrRejected }

// StateCorruptionError indicates the persisted position state is unreadable
// or violates an invariant. Recovery falls back to the default state.
type StateCorruptionError struct {
	Reason string
	Err    error
}

func (e *StateCorruptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("state corruption: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("state corruption: %s", e.Reason)
}

func (e *StateCorruptionError) Unwrap() error { return e.Err }

// IsCorruptState reports whether err carries a StateCorruptionError
func IsCorruptState(err error) bool {
	var sce *StateCorruptionError
	return errors.As(err, &sce)
}
