package dsrouter

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoHealthyCandidate is returned by a balancer for an empty candidate
	// set. Reads recover from it by falling back to the master.
	ErrNoHealthyCandidate = errors.New("can't find healthy candidate")
	ErrEmptyRegistry      = errors.New("registry has no datasources")
	ErrClosed             = errors.New("pool is closed")
	ErrEmptyDataSourceID  = errors.New("datasource id should not be empty")
)

// ConfigError is returned for an invalid or duplicate registry entry and
// for invalid configuration. It is fatal at start-up.
type ConfigError struct {
	ID  string
	Msg string
}

func (e *ConfigError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("config error: %s", e.Msg)
	}
	return fmt.Sprintf("config error: datasource %q: %s", e.ID, e.Msg)
}

// NotFoundError is returned when an unknown datasource id is requested.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return "datasource not found"
	}
	return fmt.Sprintf("datasource %q not found", e.ID)
}

// WriteRoutingViolation is returned when a write is forced to a slave. It is
// a programmer error and must never be retried.
type WriteRoutingViolation struct {
	ID   string
	Role Role
}

func (e *WriteRoutingViolation) Error() string {
	return fmt.Sprintf("write can't be routed to %s datasource %q", e.Role, e.ID)
}

// ConnectionAcquisitionError is returned when a physical connection can't be
// borrowed from a datasource pool: the pool is exhausted, the acquire timeout
// expired or the pool failed to dial.
type ConnectionAcquisitionError struct {
	ID      string
	Timeout time.Duration
	Err     error
}

func (e *ConnectionAcquisitionError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("failed to acquire connection to %q within %s: %s",
			e.ID, e.Timeout, e.Err)
	}
	return fmt.Sprintf("failed to acquire connection to %q: %s", e.ID, e.Err)
}

func (e *ConnectionAcquisitionError) Unwrap() error {
	return e.Err
}

// CancellationError is returned when the caller cancels an operation. Err is
// the context error.
type CancellationError struct {
	ID  string
	Err error
}

func (e *CancellationError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("operation was canceled: %s", e.Err)
	}
	return fmt.Sprintf("operation on %q was canceled: %s", e.ID, e.Err)
}

func (e *CancellationError) Unwrap() error {
	return e.Err
}
