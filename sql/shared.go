package sql

import (
	"context"
	"database/sql/driver"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Compile-time interface checks.
var (
	_ Conn      = (*SharedConn)(nil)
	_ Forceable = (*SharedConn)(nil)
	_ delegate  = (*SharedConn)(nil)
)

// SharedConn owns the single real connection kept for one Identity. Every
// ProxyConn of that identity routes to it once forced.
//
// While forced, SetAutoCommit, Commit and Rollback are no-ops so that all
// work collapses into the transaction the Coordinator later commits or
// rolls back. Close is always a no-op; only ForceClose releases the real
// connection.
type SharedConn struct {
	mu       sync.Mutex
	id       uuid.UUID
	identity Identity
	sess     *session
	forced   bool
	coord    *Coordinator
}

func newSharedConn(identity Identity, sess *session, coord *Coordinator) *SharedConn {
	return &SharedConn{
		id:       uuid.New(),
		identity: identity,
		sess:     sess,
		coord:    coord,
	}
}

// ID returns the opaque id the connection is registered under.
func (c *SharedConn) ID() uuid.UUID {
	return c.id
}

// Identity returns the identity the connection was opened for.
func (c *SharedConn) Identity() Identity {
	return c.identity
}

// Forced reports whether the forced transaction is open on this connection.
func (c *SharedConn) Forced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.forced
}

// ForceStart implements Forceable. It switches the real connection to
// manual-commit mode; a failure is wrapped in ErrForceStart.
func (c *SharedConn) ForceStart(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.sess.setAutoCommit(ctx, false); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrForceStart, c.identity, err)
	}
	c.forced = true
	return nil
}

// ForceCommit implements Forceable. It commits the real transaction and
// returns the real connection to autocommit.
func (c *SharedConn) ForceCommit(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.forced = false
	return c.sess.endTx(true)
}

// ForceRollback implements Forceable. It rolls back the real transaction and
// returns the real connection to autocommit.
func (c *SharedConn) ForceRollback(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.forced = false
	return c.sess.endTx(false)
}

// ForceClose deregisters the connection and closes the real connection.
// Use it for teardown between independent test runs.
func (c *SharedConn) ForceClose() error {
	c.coord.shared.deregister(c.id)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.forced = false
	return c.sess.Close()
}

// SetAutoCommit implements Conn.
func (c *SharedConn) SetAutoCommit(on bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.forced {
		return nil
	}
	return c.sess.SetAutoCommit(on)
}

// AutoCommit implements Conn.
func (c *SharedConn) AutoCommit() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.AutoCommit()
}

// Commit implements Conn.
func (c *SharedConn) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.forced {
		return nil
	}
	return c.sess.Commit()
}

// Rollback implements Conn.
func (c *SharedConn) Rollback() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.forced {
		return nil
	}
	return c.sess.Rollback()
}

// Close implements Conn. The shared connection outlives its users.
func (c *SharedConn) Close() error {
	return nil
}

// IsClosed implements Conn.
func (c *SharedConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.IsClosed()
}

func (c *SharedConn) beginTx(ctx context.Context, opts driver.TxOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.forced {
		return nil
	}
	return c.sess.beginTx(ctx, opts)
}

func (c *SharedConn) endTx(commit bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.forced {
		return nil
	}
	return c.sess.endTx(commit)
}

func (c *SharedConn) prepare(ctx context.Context, query string) (driver.Stmt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.prepare(ctx, query)
}

func (c *SharedConn) exec(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.exec(ctx, query, args)
}

// query reads the whole result before unlocking, because the real
// connection cannot serve another proxy while its rows are open.
func (c *SharedConn) query(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	rows, err := c.sess.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	return bufferRows(rows)
}

func (c *SharedConn) ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.ping(ctx)
}

// resetSession leaves the shared session alone; other proxies are using it.
func (c *SharedConn) resetSession(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess.IsClosed() {
		return driver.ErrBadConn
	}
	return nil
}

func (c *SharedConn) isValid() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.isValid()
}

func (c *SharedConn) checkNamedValue(nv *driver.NamedValue) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.checkNamedValue(nv)
}

// locker returns the mutex statements prepared on the shared connection hold
// while they run.
func (c *SharedConn) locker() sync.Locker {
	return &c.mu
}
