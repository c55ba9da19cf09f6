package sql

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"sync"
)

// errBeginRefused is returned by memdb stores configured to refuse transactions.
var errBeginRefused = errors.New("memdb: begin refused")

// errResultSetOpen is returned for any command issued on a connection whose
// last result set has not been closed, as wire-protocol drivers do.
var errResultSetOpen = errors.New("memdb: command issued while result set open")

// memDriver is a transactional key/value driver for tests. Each DSN names
// an independent store. Statements:
//
//	PUT <key> <value>   (exec, two args)
//	DELETE <key>        (exec, one arg)
//	GET <key>           (query, one arg, one "value" column)
//
// Like a wire-protocol driver, a connection refuses every command while a
// result set it returned is still open.
type memDriver struct {
	mu     sync.Mutex
	stores map[string]*memStore
}

func newMemDriver() *memDriver {
	return &memDriver{stores: make(map[string]*memStore)}
}

func (d *memDriver) store(dsn string) *memStore {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, ok := d.stores[dsn]
	if !ok {
		s = &memStore{committed: make(map[string]string)}
		d.stores[dsn] = s
	}
	return s
}

// Open implements driver.Driver.
func (d *memDriver) Open(dsn string) (driver.Conn, error) {
	s := d.store(dsn)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOpen {
		return nil, fmt.Errorf("memdb: %s unavailable", dsn)
	}
	s.opened++
	return &memConn{store: s}, nil
}

type memStore struct {
	mu         sync.Mutex
	committed  map[string]string
	opened     int
	closed     int
	failOpen   bool
	failBegin  bool
	isolations []driver.IsolationLevel
}

// get reads the committed value of key.
func (s *memStore) get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.committed[key]
	return v, ok
}

func (s *memStore) set(fn func(s *memStore)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(s)
}

func (s *memStore) counts() (opened, closed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened, s.closed
}

func (s *memStore) begins() []driver.IsolationLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]driver.IsolationLevel(nil), s.isolations...)
}

type memConn struct {
	store    *memStore
	tx       *memTx
	closed   bool
	openRows bool
}

func (c *memConn) Prepare(query string) (driver.Stmt, error) {
	return &memStmt{conn: c, query: query}, nil
}

func (c *memConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	c.tx = nil
	c.store.set(func(s *memStore) { s.closed++ })
	return nil
}

func (c *memConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *memConn) BeginTx(_ context.Context, opts driver.TxOptions) (driver.Tx, error) {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	if c.store.failBegin {
		return nil, errBeginRefused
	}
	if c.openRows {
		return nil, errResultSetOpen
	}
	if c.tx != nil {
		return nil, errors.New("memdb: transaction already open")
	}
	c.store.isolations = append(c.store.isolations, opts.Isolation)
	c.tx = &memTx{conn: c, pending: make(map[string]*string)}
	return c.tx, nil
}

func (c *memConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if c.closed {
		return nil, driver.ErrBadConn
	}
	if c.openRows {
		return nil, errResultSetOpen
	}

	switch query {
	case "PUT":
		if len(args) != 2 {
			return nil, errors.New("memdb: PUT takes a key and a value")
		}
		value := fmt.Sprint(args[1].Value)
		c.write(fmt.Sprint(args[0].Value), &value)
	case "DELETE":
		if len(args) != 1 {
			return nil, errors.New("memdb: DELETE takes a key")
		}
		c.write(fmt.Sprint(args[0].Value), nil)
	default:
		return nil, fmt.Errorf("memdb: unknown statement %q", query)
	}
	return driver.RowsAffected(1), nil
}

func (c *memConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if c.closed {
		return nil, driver.ErrBadConn
	}
	if c.openRows {
		return nil, errResultSetOpen
	}
	if query != "GET" || len(args) != 1 {
		return nil, fmt.Errorf("memdb: unknown query %q", query)
	}

	c.openRows = true
	rows := &memRows{conn: c}
	if v, ok := c.read(fmt.Sprint(args[0].Value)); ok {
		rows.values = []string{v}
	}
	return rows, nil
}

func (c *memConn) write(key string, value *string) {
	if c.tx != nil {
		c.tx.pending[key] = value
		return
	}
	c.store.set(func(s *memStore) {
		if value == nil {
			delete(s.committed, key)
			return
		}
		s.committed[key] = *value
	})
}

func (c *memConn) read(key string) (string, bool) {
	if c.tx != nil {
		if v, ok := c.tx.pending[key]; ok {
			if v == nil {
				return "", false
			}
			return *v, true
		}
	}
	return c.store.get(key)
}

type memTx struct {
	conn    *memConn
	pending map[string]*string
}

func (t *memTx) Commit() error {
	if t.conn.tx != t {
		return errors.New("memdb: transaction is not open")
	}
	t.conn.tx = nil
	t.conn.store.set(func(s *memStore) {
		for k, v := range t.pending {
			if v == nil {
				delete(s.committed, k)
				continue
			}
			s.committed[k] = *v
		}
	})
	return nil
}

func (t *memTx) Rollback() error {
	if t.conn.tx != t {
		return errors.New("memdb: transaction is not open")
	}
	t.conn.tx = nil
	return nil
}

type memStmt struct {
	conn  *memConn
	query string
}

func (s *memStmt) Close() error  { return nil }
func (s *memStmt) NumInput() int { return -1 }

func (s *memStmt) Exec(args []driver.Value) (driver.Result, error) {
	return s.conn.ExecContext(context.Background(), s.query, valuesToNamed(args))
}

func (s *memStmt) Query(args []driver.Value) (driver.Rows, error) {
	return s.conn.QueryContext(context.Background(), s.query, valuesToNamed(args))
}

func valuesToNamed(args []driver.Value) []driver.NamedValue {
	named := make([]driver.NamedValue, len(args))
	for i, v := range args {
		named[i] = driver.NamedValue{Ordinal: i + 1, Value: v}
	}
	return named
}

type memRows struct {
	conn   *memConn
	values []string
	pos    int
}

func (r *memRows) Columns() []string { return []string{"value"} }

func (r *memRows) Close() error {
	if r.conn != nil {
		r.conn.openRows = false
	}
	return nil
}

func (r *memRows) Next(dest []driver.Value) error {
	if r.pos >= len(r.values) {
		return io.EOF
	}
	dest[0] = r.values[r.pos]
	r.pos++
	return nil
}
