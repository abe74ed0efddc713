package torm

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionClosed is returned by every operation on a closed session.
	ErrSessionClosed = errors.New("torm: session is closed")

	// ErrNoActiveTransaction is returned by Begin(Mandatory) outside a transaction.
	ErrNoActiveTransaction = errors.New("torm: MANDATORY propagation requires an active transaction")

	// ErrUnexpectedTransaction is returned by Begin(Never) inside a transaction.
	ErrUnexpectedTransaction = errors.New("torm: NEVER propagation found an active transaction")

	// ErrNestedTransaction is returned by Begin(NotRequired) inside a transaction.
	ErrNestedTransaction = errors.New("torm: NOT_REQUIRED propagation cannot be nested in an active transaction")
)

// UnsupportedPropagationError reports a propagation value Begin does not know.
type UnsupportedPropagationError struct {
	Propagation Propagation
}

func (e *UnsupportedPropagationError) Error() string {
	return fmt.Sprintf("torm: unsupported propagation %s", e.Propagation)
}

// ConnectionAcquisitionError wraps a failure of the Connector.
type ConnectionAcquisitionError struct {
	Link string
	Err  error
}

func (e *ConnectionAcquisitionError) Error() string {
	return fmt.Sprintf("torm: acquire connection for %s: %v", redactLink(e.Link), e.Err)
}

func (e *ConnectionAcquisitionError) Unwrap() error {
	return e.Err
}

// DecodeError reports that a result could not be converted to the
// requested type.
type DecodeError struct {
	Type string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("torm: decode %s: %v", e.Type, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// TooManyRowsError is returned when a single record was requested and the
// statement produced more than one row.
type TooManyRowsError struct {
	Type string
	Rows int
}

func (e *TooManyRowsError) Error() string {
	return fmt.Sprintf("torm: decode %s: expected at most one row, got %d", e.Type, e.Rows)
}
