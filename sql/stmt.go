package sql

import (
	"context"
	"database/sql/driver"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Compile-time interface checks.
var (
	_ driver.Stmt             = (*proxyStmt)(nil)
	_ driver.StmtExecContext  = (*proxyStmt)(nil)
	_ driver.StmtQueryContext = (*proxyStmt)(nil)
)

// proxyStmt wraps a statement prepared on a private or shared connection.
// Statements prepared on a SharedConn hold its lock while they run, and
// their rows are buffered before the lock is released.
type proxyStmt struct {
	stmt  driver.Stmt
	cfg   *config
	query string
	route string
	lock  sync.Locker
}

func newProxyStmt(stmt driver.Stmt, cfg *config, query, route string, lock sync.Locker) *proxyStmt {
	if lock == nil {
		lock = noopLocker{}
	}
	return &proxyStmt{
		stmt:  stmt,
		cfg:   cfg,
		query: query,
		route: route,
		lock:  lock,
	}
}

// Close implements driver.Stmt.
func (s *proxyStmt) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.stmt.Close()
}

// NumInput implements driver.Stmt.
func (s *proxyStmt) NumInput() int {
	return s.stmt.NumInput()
}

// Exec implements driver.Stmt.
// Deprecated: Use ExecContext instead. This exists for driver.Stmt interface compatibility.
func (s *proxyStmt) Exec(args []driver.Value) (driver.Result, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.stmt.Exec(args) //nolint:staticcheck // Required for driver.Stmt interface
}

// Query implements driver.Stmt.
// Deprecated: Use QueryContext instead. This exists for driver.Stmt interface compatibility.
func (s *proxyStmt) Query(args []driver.Value) (driver.Rows, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	rows, err := s.stmt.Query(args) //nolint:staticcheck // Required for driver.Stmt interface
	if err != nil {
		return nil, err
	}
	return s.detach(rows)
}

// ExecContext implements driver.StmtExecContext.
func (s *proxyStmt) ExecContext(
	ctx context.Context,
	args []driver.NamedValue,
) (driver.Result, error) {
	start := time.Now()
	ctx, span := s.cfg.Tracer.Start(ctx, spanName(s.query),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(s.cfg.queryAttributes(s.query, s.route)...),
	)
	defer span.End()

	s.lock.Lock()
	var result driver.Result
	var err error
	if execer, ok := s.stmt.(driver.StmtExecContext); ok {
		result, err = execer.ExecContext(ctx, args)
	} else {
		result, err = s.stmt.Exec(namedValueToValue(args)) //nolint:staticcheck // Fallback for older drivers
	}
	s.lock.Unlock()

	s.cfg.Metrics.recordQueryDuration(ctx, time.Since(start), extractOperation(s.query),
		s.cfg.baseAttributes(s.route), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return result, nil
}

// QueryContext implements driver.StmtQueryContext.
func (s *proxyStmt) QueryContext(
	ctx context.Context,
	args []driver.NamedValue,
) (driver.Rows, error) {
	start := time.Now()
	ctx, span := s.cfg.Tracer.Start(ctx, spanName(s.query),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(s.cfg.queryAttributes(s.query, s.route)...),
	)
	defer span.End()

	s.lock.Lock()
	var rows driver.Rows
	var err error
	if queryer, ok := s.stmt.(driver.StmtQueryContext); ok {
		rows, err = queryer.QueryContext(ctx, args)
	} else {
		rows, err = s.stmt.Query(namedValueToValue(args)) //nolint:staticcheck // Fallback for older drivers
	}
	if err == nil {
		rows, err = s.detach(rows)
	}
	s.lock.Unlock()

	s.cfg.Metrics.recordQueryDuration(ctx, time.Since(start), extractOperation(s.query),
		s.cfg.baseAttributes(s.route), err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return rows, nil
}

// detach buffers rows read from the shared connection. Private rows stream.
func (s *proxyStmt) detach(rows driver.Rows) (driver.Rows, error) {
	if s.route != routeShared {
		return rows, nil
	}
	return bufferRows(rows)
}

// namedValueToValue converts NamedValue slice to Value slice.
func namedValueToValue(named []driver.NamedValue) []driver.Value {
	values := make([]driver.Value, len(named))
	for i, nv := range named {
		values[i] = nv.Value
	}
	return values
}

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}
