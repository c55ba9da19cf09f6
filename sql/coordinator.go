package sql

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Sweep operations.
const (
	OperationStart    = "start"
	OperationCommit   = "commit"
	OperationRollback = "rollback"
)

// Instance kinds reported in sweep outcomes.
const (
	KindShared = "shared"
	KindProxy  = "proxy"
)

// Coordinator drives the forced transaction across every live SharedConn
// and ProxyConn attached to it.
//
// The state machine is Idle -> Forced -> Idle and may be re-entered. Once a
// forced transaction has been started, connections opened afterwards are
// born routed to their SharedConn, even after the transaction has been
// committed or rolled back.
type Coordinator struct {
	mu            sync.Mutex
	active        atomic.Bool
	everActivated atomic.Bool

	shared  *instanceRegistry[*SharedConn]
	proxies *instanceRegistry[*ProxyConn]

	// cache holds the SharedConn of each identity for every Driver attached
	// to this Coordinator. cacheMu is taken before mu.
	cacheMu sync.Mutex
	cache   map[Identity]*SharedConn

	cfg *config
}

// NewCoordinator creates an idle Coordinator.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		shared:  newInstanceRegistry[*SharedConn](),
		proxies: newInstanceRegistry[*ProxyConn](),
		cache:   make(map[Identity]*SharedConn),
		cfg:     newConfig(opts...),
	}

	if err := c.cfg.Metrics.registerInstanceMetrics(c.cfg.Meter, c); err != nil {
		c.cfg.Logger.Warn().Err(err).Msg("registering instance metrics failed")
	}

	return c
}

// Outcome is the result of one force operation during a sweep.
type Outcome struct {
	ID   uuid.UUID
	Kind string
	Err  error
}

// SweepResult lists the per-instance outcomes of a commit or rollback sweep.
// A sweep always completes; callers decide whether partial failure matters.
type SweepResult struct {
	Operation string
	Outcomes  []Outcome
}

// Failed returns the outcomes that carry an error.
func (r SweepResult) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// Err joins the errors of all failed outcomes, or returns nil.
func (r SweepResult) Err() error {
	var errs []error
	for _, o := range r.Failed() {
		errs = append(errs, o.Err)
	}
	return errors.Join(errs...)
}

// Stats is a point-in-time view of a Coordinator.
type Stats struct {
	Active            bool `json:"active"`
	Forced            bool `json:"forced"`
	SharedConnections int  `json:"shared_connections"`
	ProxyConnections  int  `json:"proxy_connections"`
}

// IsForced reports whether a forced transaction has ever been started.
// New connections are born routed to their SharedConn while this is true.
func (c *Coordinator) IsForced() bool {
	return c.everActivated.Load()
}

// IsActive reports whether a forced transaction is currently open.
func (c *Coordinator) IsActive() bool {
	return c.active.Load()
}

// Stats returns the current state and live instance counts.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Active:            c.active.Load(),
		Forced:            c.everActivated.Load(),
		SharedConnections: c.shared.len(),
		ProxyConnections:  c.proxies.len(),
	}
}

// SharedConns returns the live shared connections in registration order.
func (c *Coordinator) SharedConns() []*SharedConn {
	return c.shared.snapshot()
}

// ProxyConns returns the live proxy connections in registration order.
func (c *Coordinator) ProxyConns() []*ProxyConn {
	return c.proxies.snapshot()
}

// StartTransactions opens the forced transaction on every live SharedConn,
// then routes every live ProxyConn to its SharedConn. It is a no-op while a
// forced transaction is already open.
//
// The first failure aborts the sweep: shared connections started so far are
// rolled back and the Coordinator stays idle.
func (c *Coordinator) StartTransactions(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active.Load() {
		return nil
	}

	start := time.Now()
	ctx, span := c.startSpan(ctx, OperationStart)
	defer span.End()

	err := c.startLocked(ctx)
	c.cfg.Metrics.recordSweep(ctx, time.Since(start), OperationStart, 0, err)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.cfg.Logger.Error().Err(err).Msg("starting forced transaction failed")
		return err
	}

	c.active.Store(true)
	c.everActivated.Store(true)

	c.cfg.Logger.Debug().
		Int("shared", c.shared.len()).
		Int("proxies", c.proxies.len()).
		Msg("forced transaction started")
	return nil
}

func (c *Coordinator) startLocked(ctx context.Context) error {
	var started []*SharedConn
	for _, s := range c.shared.snapshot() {
		if err := s.ForceStart(ctx); err != nil {
			for _, done := range started {
				if rbErr := done.ForceRollback(ctx); rbErr != nil {
					c.cfg.Logger.Error().
						Err(rbErr).
						Str("shared_id", done.ID().String()).
						Msg("rolling back after failed start")
				}
			}
			return err
		}
		started = append(started, s)
	}

	for _, p := range c.proxies.snapshot() {
		if err := p.ForceStart(ctx); err != nil {
			return fmt.Errorf("%w: proxy %s: %w", ErrForceStart, p.ID(), err)
		}
	}
	return nil
}

// CommitTransactions commits the forced transaction on every SharedConn and
// returns to idle. It is a no-op when idle.
func (c *Coordinator) CommitTransactions(ctx context.Context) SweepResult {
	return c.sweep(ctx, OperationCommit, Forceable.ForceCommit)
}

// RollbackTransactions rolls back the forced transaction on every SharedConn
// and returns to idle. It is a no-op when idle.
func (c *Coordinator) RollbackTransactions(ctx context.Context) SweepResult {
	return c.sweep(ctx, OperationRollback, Forceable.ForceRollback)
}

// sweep applies op to every live instance. Failures are logged and
// collected; they never stop the sweep.
func (c *Coordinator) sweep(
	ctx context.Context,
	operation string,
	op func(Forceable, context.Context) error,
) SweepResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := SweepResult{Operation: operation}
	if !c.active.Load() {
		return result
	}

	start := time.Now()
	ctx, span := c.startSpan(ctx, operation)
	defer span.End()

	apply := func(id uuid.UUID, kind string, f Forceable) {
		outcome := Outcome{ID: id, Kind: kind}
		if err := op(f, ctx); err != nil {
			outcome.Err = fmt.Errorf("%w: %s %s %s: %w", ErrForceSweep, operation, kind, id, err)
			c.cfg.Logger.Error().
				Err(err).
				Str("operation", operation).
				Str("kind", kind).
				Str("id", id.String()).
				Msg("force operation failed")
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	for _, s := range c.shared.snapshot() {
		apply(s.ID(), KindShared, s)
	}
	for _, p := range c.proxies.snapshot() {
		apply(p.ID(), KindProxy, p)
	}

	c.active.Store(false)

	failed := len(result.Failed())
	c.cfg.Metrics.recordSweep(ctx, time.Since(start), operation, failed, nil)
	if failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d instances failed", failed))
	}
	span.SetAttributes(
		attribute.Int("dbcleaner.instances", len(result.Outcomes)),
		attribute.Int("dbcleaner.failures", failed),
	)

	return result
}

// sharedConn returns the live SharedConn cached for identity. On first use,
// or after the cached one was force-closed, open supplies the real session
// and the new SharedConn is admitted.
func (c *Coordinator) sharedConn(
	ctx context.Context,
	identity Identity,
	open func(context.Context) (*session, error),
) (s *SharedConn, created bool, err error) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	if s, ok := c.cache[identity]; ok {
		if !s.IsClosed() {
			return s, false, nil
		}
		delete(c.cache, identity)
	}

	sess, err := open(ctx)
	if err != nil {
		return nil, false, err
	}

	s = newSharedConn(identity, sess, c)
	if err := c.admitShared(ctx, s); err != nil {
		_ = sess.Close()
		return nil, false, err
	}
	c.cache[identity] = s
	return s, true, nil
}

// SharedConn returns the live SharedConn cached for identity, if any.
func (c *Coordinator) SharedConn(identity Identity) (*SharedConn, bool) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	s, ok := c.cache[identity]
	if !ok || s.IsClosed() {
		return nil, false
	}
	return s, true
}

// cachedSharedConns returns the live cached shared connections ordered by
// identity.
func (c *Coordinator) cachedSharedConns() []*SharedConn {
	c.cacheMu.Lock()
	out := make([]*SharedConn, 0, len(c.cache))
	for _, s := range c.cache {
		if !s.IsClosed() {
			out = append(out, s)
		}
	}
	c.cacheMu.Unlock()

	slices.SortFunc(out, func(a, b *SharedConn) int {
		return strings.Compare(a.identity.String(), b.identity.String())
	})
	return out
}

// ForceCloseAll force-closes every cached shared connection and empties the
// cache. Any open forced transaction on them is rolled back.
func (c *Coordinator) ForceCloseAll() error {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	var errs []error
	for identity, s := range c.cache {
		if err := s.ForceClose(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", identity, err))
		}
		delete(c.cache, identity)
	}
	return errors.Join(errs...)
}

// admitShared registers a new SharedConn. If a forced transaction is open
// the connection joins it before anyone can use it.
func (c *Coordinator) admitShared(ctx context.Context, s *SharedConn) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active.Load() {
		if err := s.ForceStart(ctx); err != nil {
			return err
		}
	}
	c.shared.register(s.ID(), s)
	return nil
}

// admitProxy registers a new ProxyConn, routing it to its SharedConn first
// when a forced transaction has ever been started.
func (c *Coordinator) admitProxy(ctx context.Context, p *ProxyConn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.everActivated.Load() {
		// Cannot fail for proxies.
		_ = p.ForceStart(ctx)
	}
	c.proxies.register(p.ID(), p)
}

func (c *Coordinator) startSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return c.cfg.Tracer.Start(ctx, "dbcleaner."+operation,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("dbcleaner.operation", operation)),
	)
}

// defaultCoordinator is the process-wide Coordinator used by Default.
var defaultCoordinator = sync.OnceValue(func() *Coordinator {
	return NewCoordinator()
})

// DefaultCoordinator returns the process-wide Coordinator.
func DefaultCoordinator() *Coordinator {
	return defaultCoordinator()
}

// StartTransactions starts the forced transaction on the process-wide Coordinator.
func StartTransactions(ctx context.Context) error {
	return DefaultCoordinator().StartTransactions(ctx)
}

// CommitTransactions commits the forced transaction on the process-wide Coordinator.
func CommitTransactions(ctx context.Context) SweepResult {
	return DefaultCoordinator().CommitTransactions(ctx)
}

// RollbackTransactions rolls back the forced transaction on the process-wide Coordinator.
func RollbackTransactions(ctx context.Context) SweepResult {
	return DefaultCoordinator().RollbackTransactions(ctx)
}

// IsForced reports whether the process-wide Coordinator has ever been started.
func IsForced() bool {
	return DefaultCoordinator().IsForced()
}
