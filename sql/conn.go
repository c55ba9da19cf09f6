package sql

import (
	"context"
	"database/sql/driver"
)

// Conn is the transaction control surface of every connection handed out by
// dbcleaner. Reach it from application code through sql.Conn.Raw:
//
//	err := conn.Raw(func(dc any) error {
//	    return dc.(cleanersql.Conn).SetAutoCommit(false)
//	})
type Conn interface {
	// SetAutoCommit switches between autocommit and manual-commit mode.
	// Leaving autocommit begins a transaction; entering it commits the open one.
	SetAutoCommit(on bool) error

	// AutoCommit reports the current mode.
	AutoCommit() bool

	// Commit commits the open transaction and begins the next one.
	Commit() error

	// Rollback rolls back the open transaction and begins the next one.
	Rollback() error

	// Close releases the connection.
	Close() error

	// IsClosed reports whether Close has released the connection.
	IsClosed() bool
}

// Forceable is implemented by connections that take part in the forced
// transaction driven by a Coordinator.
type Forceable interface {
	// ForceStart puts the connection into the forced transaction.
	ForceStart(ctx context.Context) error

	// ForceCommit leaves the forced transaction, committing it for shared connections.
	ForceCommit(ctx context.Context) error

	// ForceRollback leaves the forced transaction, rolling it back for shared connections.
	ForceRollback(ctx context.Context) error
}

// delegate is what a ProxyConn forwards to: either its private session or
// its SharedConn.
type delegate interface {
	Conn

	prepare(ctx context.Context, query string) (driver.Stmt, error)
	exec(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error)
	query(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error)
	ping(ctx context.Context) error
	resetSession(ctx context.Context) error
	isValid() bool
	checkNamedValue(nv *driver.NamedValue) error

	// beginTx leaves autocommit for an application transaction.
	beginTx(ctx context.Context, opts driver.TxOptions) error
	// endTx finishes an application transaction and returns to autocommit.
	endTx(commit bool) error
}
