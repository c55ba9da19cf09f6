package sql

import (
	"context"
	"database/sql/driver"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Compile-time interface check.
var _ driver.Tx = (*proxyTx)(nil)

// proxyTx is the transaction database/sql sees. It ends on the delegate it
// was begun on; on a forced SharedConn both outcomes are discarded.
type proxyTx struct {
	conn  *ProxyConn
	d     delegate
	route string
}

// Commit implements driver.Tx.
func (t *proxyTx) Commit() error {
	return t.end("COMMIT", true)
}

// Rollback implements driver.Tx.
func (t *proxyTx) Rollback() error {
	return t.end("ROLLBACK", false)
}

func (t *proxyTx) end(name string, commit bool) error {
	cfg := t.conn.cfg
	_, span := cfg.Tracer.Start(context.Background(), name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(cfg.baseAttributes(t.route)...),
	)
	defer span.End()

	t.conn.mu.Lock()
	err := t.d.endTx(commit)
	t.conn.mu.Unlock()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
