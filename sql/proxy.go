package sql

import (
	"context"
	"database/sql/driver"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Compile-time interface checks.
var (
	_ driver.Conn               = (*ProxyConn)(nil)
	_ driver.ConnPrepareContext = (*ProxyConn)(nil)
	_ driver.ConnBeginTx        = (*ProxyConn)(nil)
	_ driver.ExecerContext      = (*ProxyConn)(nil)
	_ driver.QueryerContext     = (*ProxyConn)(nil)
	_ driver.Pinger             = (*ProxyConn)(nil)
	_ driver.SessionResetter    = (*ProxyConn)(nil)
	_ driver.Validator          = (*ProxyConn)(nil)
	_ driver.NamedValueChecker  = (*ProxyConn)(nil)
	_ Conn                      = (*ProxyConn)(nil)
	_ Forceable                 = (*ProxyConn)(nil)
)

// ProxyConn is the connection handed to callers. It forwards to a private
// real connection until the forced transaction starts, then to the
// SharedConn of its identity. The switch happens once and is never undone.
type ProxyConn struct {
	mu      sync.Mutex
	id      uuid.UUID
	private *session
	shared  *SharedConn
	active  delegate
	forced  bool
	closed  bool
	coord   *Coordinator
	cfg     *config
}

// newProxyConn creates a proxy over private, or over shared when private is nil.
func newProxyConn(private *session, shared *SharedConn, coord *Coordinator, cfg *config) *ProxyConn {
	p := &ProxyConn{
		id:      uuid.New(),
		private: private,
		shared:  shared,
		coord:   coord,
		cfg:     cfg,
	}
	if private != nil {
		p.active = private
	} else {
		p.active = shared
		p.forced = true
	}
	return p
}

// ID returns the opaque id the proxy is registered under.
func (p *ProxyConn) ID() uuid.UUID {
	return p.id
}

// Shared returns the SharedConn this proxy routes to once forced.
func (p *ProxyConn) Shared() *SharedConn {
	return p.shared
}

// Routed reports whether the proxy currently forwards to its SharedConn.
func (p *ProxyConn) Routed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.routeLocked() == routeShared
}

// Forced reports whether the proxy has been put into a forced transaction
// that has not been committed or rolled back yet.
func (p *ProxyConn) Forced() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.forced
}

func (p *ProxyConn) routeLocked() string {
	if p.active == delegate(p.shared) {
		return routeShared
	}
	return routePrivate
}

// ForceStart implements Forceable. The proxy switches to its SharedConn and
// releases the private connection, rolling back any uncommitted private work.
func (p *ProxyConn) ForceStart(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.forced = true
	p.active = p.shared

	private := p.private
	p.private = nil
	if private == nil || private.IsClosed() {
		return nil
	}

	if err := private.Close(); err != nil {
		p.cfg.Logger.Warn().
			Err(err).
			Str("proxy_id", p.id.String()).
			Str("identity", p.shared.identity.String()).
			Msg("closing private connection failed")
	}
	return nil
}

// ForceCommit implements Forceable. Proxies own no part of the forced
// transaction, so only the forced flag changes.
func (p *ProxyConn) ForceCommit(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forced = false
	return nil
}

// ForceRollback implements Forceable.
func (p *ProxyConn) ForceRollback(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.forced = false
	return nil
}

// SetAutoCommit implements Conn.
func (p *ProxyConn) SetAutoCommit(on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrConnClosed
	}
	return p.active.SetAutoCommit(on)
}

// AutoCommit implements Conn.
func (p *ProxyConn) AutoCommit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active.AutoCommit()
}

// Commit implements Conn.
func (p *ProxyConn) Commit() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrConnClosed
	}
	return p.active.Commit()
}

// Rollback implements Conn.
func (p *ProxyConn) Rollback() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrConnClosed
	}
	return p.active.Rollback()
}

// Close implements driver.Conn. It closes the private connection, if held,
// and never the SharedConn.
func (p *ProxyConn) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	p.coord.proxies.deregister(p.id)

	if p.private != nil {
		return p.private.Close()
	}
	return nil
}

// IsClosed implements Conn.
func (p *ProxyConn) IsClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Prepare implements driver.Conn.
func (p *ProxyConn) Prepare(query string) (driver.Stmt, error) {
	return p.PrepareContext(context.Background(), query)
}

// PrepareContext implements driver.ConnPrepareContext.
func (p *ProxyConn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, driver.ErrBadConn
	}
	route := p.routeLocked()
	stmt, err := p.active.prepare(ctx, query)
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}

	var lock sync.Locker
	if route == routeShared {
		lock = p.shared.locker()
	}
	return newProxyStmt(stmt, p.cfg, query, route, lock), nil
}

// Begin implements driver.Conn.
// Deprecated: Use BeginTx instead. This exists for driver.Conn interface compatibility.
func (p *ProxyConn) Begin() (driver.Tx, error) {
	return p.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx implements driver.ConnBeginTx. The application transaction is
// mapped onto manual-commit mode of the active delegate.
func (p *ProxyConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	start := time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, driver.ErrBadConn
	}
	route := p.routeLocked()
	d := p.active

	ctx, span := p.cfg.Tracer.Start(ctx, "BEGIN",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(p.cfg.baseAttributes(route)...),
	)
	defer span.End()

	err := d.beginTx(ctx, opts)
	p.mu.Unlock()

	p.cfg.Metrics.recordQueryDuration(ctx, time.Since(start), "BEGIN", p.cfg.baseAttributes(route), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return &proxyTx{conn: p, d: d, route: route}, nil
}

// ExecContext implements driver.ExecerContext.
func (p *ProxyConn) ExecContext(
	ctx context.Context,
	query string,
	args []driver.NamedValue,
) (driver.Result, error) {
	start := time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, driver.ErrBadConn
	}
	route := p.routeLocked()

	ctx, span := p.cfg.Tracer.Start(ctx, spanName(query),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(p.cfg.queryAttributes(query, route)...),
	)
	defer span.End()

	result, err := p.active.exec(ctx, query, args)
	p.mu.Unlock()

	if errors.Is(err, driver.ErrSkip) {
		return nil, err
	}

	p.cfg.Metrics.recordQueryDuration(ctx, time.Since(start), extractOperation(query),
		p.cfg.baseAttributes(route), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return result, nil
}

// QueryContext implements driver.QueryerContext.
func (p *ProxyConn) QueryContext(
	ctx context.Context,
	query string,
	args []driver.NamedValue,
) (driver.Rows, error) {
	start := time.Now()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, driver.ErrBadConn
	}
	route := p.routeLocked()

	ctx, span := p.cfg.Tracer.Start(ctx, spanName(query),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(p.cfg.queryAttributes(query, route)...),
	)
	defer span.End()

	rows, err := p.active.query(ctx, query, args)
	p.mu.Unlock()

	if errors.Is(err, driver.ErrSkip) {
		return nil, err
	}

	p.cfg.Metrics.recordQueryDuration(ctx, time.Since(start), extractOperation(query),
		p.cfg.baseAttributes(route), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return rows, nil
}

// Ping implements driver.Pinger.
func (p *ProxyConn) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return driver.ErrBadConn
	}
	return p.active.ping(ctx)
}

// ResetSession implements driver.SessionResetter.
func (p *ProxyConn) ResetSession(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return driver.ErrBadConn
	}
	return p.active.resetSession(ctx)
}

// IsValid implements driver.Validator.
func (p *ProxyConn) IsValid() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.closed && p.active.isValid()
}

// CheckNamedValue implements driver.NamedValueChecker.
func (p *ProxyConn) CheckNamedValue(nv *driver.NamedValue) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active.checkNamedValue(nv)
}
