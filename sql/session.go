package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
)

// Compile-time interface check.
var _ delegate = (*session)(nil)

// session adds JDBC-style autocommit handling to a driver.Conn. In manual
// mode a driver transaction is always open. A session is not safe for
// concurrent use; its owner serializes access.
type session struct {
	conn       driver.Conn
	isolation  driver.IsolationLevel
	autoCommit bool
	tx         driver.Tx
	closed     bool
}

// newSession wraps conn in autocommit mode. Transactions begun by
// SetAutoCommit use isolation.
func newSession(conn driver.Conn, isolation sql.IsolationLevel) *session {
	return &session{
		conn:       conn,
		isolation:  driver.IsolationLevel(isolation),
		autoCommit: true,
	}
}

// SetAutoCommit implements Conn.
func (s *session) SetAutoCommit(on bool) error {
	return s.setAutoCommit(context.Background(), on)
}

func (s *session) setAutoCommit(ctx context.Context, on bool) error {
	if s.closed {
		return ErrConnClosed
	}
	if on == s.autoCommit {
		return nil
	}

	if on {
		err := s.finish(true)
		s.autoCommit = true
		return err
	}

	if err := s.begin(ctx, driver.TxOptions{Isolation: s.isolation}); err != nil {
		return err
	}
	s.autoCommit = false
	return nil
}

// AutoCommit implements Conn.
func (s *session) AutoCommit() bool {
	return s.autoCommit
}

// Commit implements Conn.
func (s *session) Commit() error {
	return s.end(true)
}

// Rollback implements Conn.
func (s *session) Rollback() error {
	return s.end(false)
}

// Close implements Conn. An open transaction is rolled back first.
func (s *session) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true

	rbErr := s.finish(false)
	s.autoCommit = true
	if err := s.conn.Close(); err != nil {
		return err
	}
	return rbErr
}

// IsClosed implements Conn.
func (s *session) IsClosed() bool {
	return s.closed
}

// end finishes the open transaction and begins the next one.
func (s *session) end(commit bool) error {
	if s.closed {
		return ErrConnClosed
	}
	if s.autoCommit {
		return ErrAutoCommit
	}

	err := s.finish(commit)
	if beginErr := s.begin(context.Background(), driver.TxOptions{Isolation: s.isolation}); beginErr != nil {
		s.autoCommit = true
		return errors.Join(err, beginErr)
	}
	return err
}

// begin opens a driver transaction.
func (s *session) begin(ctx context.Context, opts driver.TxOptions) error {
	var tx driver.Tx
	var err error

	if beginner, ok := s.conn.(driver.ConnBeginTx); ok {
		tx, err = beginner.BeginTx(ctx, opts)
	} else {
		if opts.Isolation != driver.IsolationLevel(sql.LevelDefault) || opts.ReadOnly {
			return errors.New("dbcleaner: driver does not support transaction options")
		}
		tx, err = s.conn.Begin() //nolint:staticcheck // Fallback for older drivers
	}

	if err != nil {
		return err
	}
	s.tx = tx
	return nil
}

// finish commits or rolls back the open transaction, if any.
func (s *session) finish(commit bool) error {
	tx := s.tx
	s.tx = nil
	if tx == nil {
		return nil
	}
	if commit {
		return tx.Commit()
	}
	return tx.Rollback()
}

func (s *session) beginTx(ctx context.Context, opts driver.TxOptions) error {
	if s.closed {
		return ErrConnClosed
	}
	if !s.autoCommit {
		// Already inside a transaction: the application joins it.
		return nil
	}

	if opts.Isolation == driver.IsolationLevel(sql.LevelDefault) {
		opts.Isolation = s.isolation
	}
	if err := s.begin(ctx, opts); err != nil {
		return err
	}
	s.autoCommit = false
	return nil
}

func (s *session) endTx(commit bool) error {
	if s.closed {
		return ErrConnClosed
	}
	if s.autoCommit {
		return nil
	}
	err := s.finish(commit)
	s.autoCommit = true
	return err
}

func (s *session) prepare(ctx context.Context, query string) (driver.Stmt, error) {
	if s.closed {
		return nil, ErrConnClosed
	}
	if preparer, ok := s.conn.(driver.ConnPrepareContext); ok {
		return preparer.PrepareContext(ctx, query)
	}
	return s.conn.Prepare(query)
}

func (s *session) exec(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if s.closed {
		return nil, ErrConnClosed
	}
	if execer, ok := s.conn.(driver.ExecerContext); ok {
		return execer.ExecContext(ctx, query, args)
	}
	// Fallback: let database/sql prepare and execute
	return nil, driver.ErrSkip
}

func (s *session) query(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if s.closed {
		return nil, ErrConnClosed
	}
	if queryer, ok := s.conn.(driver.QueryerContext); ok {
		return queryer.QueryContext(ctx, query, args)
	}
	return nil, driver.ErrSkip
}

func (s *session) ping(ctx context.Context) error {
	if s.closed {
		return driver.ErrBadConn
	}
	if pinger, ok := s.conn.(driver.Pinger); ok {
		return pinger.Ping(ctx)
	}
	return nil
}

func (s *session) resetSession(ctx context.Context) error {
	if s.closed {
		return driver.ErrBadConn
	}
	if resetter, ok := s.conn.(driver.SessionResetter); ok {
		return resetter.ResetSession(ctx)
	}
	return nil
}

func (s *session) isValid() bool {
	if s.closed {
		return false
	}
	if validator, ok := s.conn.(driver.Validator); ok {
		return validator.IsValid()
	}
	return true
}

func (s *session) checkNamedValue(nv *driver.NamedValue) error {
	if checker, ok := s.conn.(driver.NamedValueChecker); ok {
		return checker.CheckNamedValue(nv)
	}
	return driver.ErrSkip
}
