package sql

import "errors"

var (
	// ErrUnresolvedAddress is returned by Connect when no provider accepts the address.
	ErrUnresolvedAddress = errors.New("dbcleaner: no provider accepts address")

	// ErrUnderlyingConnect wraps a provider failure to open a real connection.
	ErrUnderlyingConnect = errors.New("dbcleaner: underlying connect failed")

	// ErrForceStart wraps a failure to start the forced transaction on a shared connection.
	ErrForceStart = errors.New("dbcleaner: force start failed")

	// ErrForceSweep wraps a per-instance failure during a commit or rollback sweep.
	ErrForceSweep = errors.New("dbcleaner: force sweep failed")

	// ErrConnClosed is returned when a closed connection is used.
	ErrConnClosed = errors.New("dbcleaner: connection is closed")

	// ErrAutoCommit is returned by Commit and Rollback in autocommit mode.
	ErrAutoCommit = errors.New("dbcleaner: connection is in autocommit mode")
)
