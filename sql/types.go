package sql

import (
	"database/sql/driver"
)

// DriverConn is the real connection surface dbcleaner consumes, mocked in tests.
type DriverConn interface {
	driver.Conn
	driver.ConnPrepareContext
	driver.ConnBeginTx
	driver.ExecerContext
	driver.QueryerContext
	driver.Pinger
}

// DriverTx represents a real transaction for testing.
type DriverTx interface {
	Commit() error
	Rollback() error
}

// DriverStmt represents a prepared statement for testing.
type DriverStmt interface {
	driver.Stmt
	driver.StmtExecContext
	driver.StmtQueryContext
}
