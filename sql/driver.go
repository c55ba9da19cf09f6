package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// Compile-time interface checks.
var (
	_ driver.Driver        = (*Driver)(nil)
	_ driver.DriverContext = (*Driver)(nil)
	_ driver.Connector     = (*connector)(nil)
)

// AddressPrefix marks addresses served by dbcleaner. The rest of the address
// is handed to the first provider that accepts it.
const AddressPrefix = "dbcleaner:"

// DriverName is the name Register uses when none is given.
const DriverName = "dbcleaner"

// Driver resolves dbcleaner addresses to providers and hands out a ProxyConn
// per connect call. The SharedConn of each Identity is kept by the
// Coordinator, so every Driver attached to one Coordinator shares it.
//
// A Driver can be used directly, through database/sql via OpenDB or
// Connector, or registered under a name with Register.
type Driver struct {
	cfg   *config
	coord *Coordinator

	providersMu sync.RWMutex
	providers   []Provider
}

// NewDriver creates a Driver. Without WithCoordinator the Driver gets its own
// Coordinator built from the same options.
//
// Example:
//
//	drv := cleanersql.NewDriver(
//	    cleanersql.WithProvider(cleanersql.NewDriverProvider("pgx", stdlib.GetDefaultDriver())),
//	    cleanersql.WithLogger(logger),
//	)
func NewDriver(opts ...Option) *Driver {
	cfg := newConfig(opts...)

	coord := cfg.Coordinator
	if coord == nil {
		coord = NewCoordinator(opts...)
	}

	return &Driver{
		cfg:       cfg,
		coord:     coord,
		providers: slices.Clone(cfg.Providers),
	}
}

// Coordinator returns the Coordinator the Driver's connections belong to.
func (d *Driver) Coordinator() *Coordinator {
	return d.coord
}

// RegisterProvider appends p to the providers tried by Resolve.
func (d *Driver) RegisterProvider(p Provider) {
	d.providersMu.Lock()
	defer d.providersMu.Unlock()
	d.providers = append(d.providers, p)
}

// Resolve strips AddressPrefix from address and returns the first provider
// that accepts the remainder. Addresses without the prefix never resolve.
//
// When no registered provider accepts the address, the part before the first
// ':' is looked up among the drivers registered with database/sql and, if
// found, served through a DriverProvider that is kept for later calls.
func (d *Driver) Resolve(address string) (Provider, string, bool) {
	target, ok := strings.CutPrefix(address, AddressPrefix)
	if !ok {
		return nil, "", false
	}

	d.providersMu.RLock()
	for _, p := range d.providers {
		if p.AcceptsAddress(target) {
			d.providersMu.RUnlock()
			return p, target, true
		}
	}
	d.providersMu.RUnlock()

	p := lookupRegisteredDriver(target)
	if p == nil {
		return nil, "", false
	}
	d.RegisterProvider(p)
	return p, target, true
}

// lookupRegisteredDriver builds a DriverProvider for the database/sql driver
// named by the scheme of target. dbcleaner drivers are skipped.
func lookupRegisteredDriver(target string) *DriverProvider {
	scheme, _, ok := strings.Cut(target, ":")
	if !ok || scheme == "" || !slices.Contains(sql.Drivers(), scheme) {
		return nil
	}

	// Get the original driver without connecting.
	db, err := sql.Open(scheme, "")
	if err != nil {
		return nil
	}
	drv := db.Driver()
	_ = db.Close()

	if _, self := drv.(*Driver); self {
		return nil
	}
	return NewDriverProvider(scheme, drv)
}

// Connect returns a new ProxyConn for address and cfg.
//
// The SharedConn of the identity is created on first use by any Driver of
// the Coordinator. Unless a forced
// transaction has ever been started, a private real connection is opened as
// well; afterwards proxies are born routed to the SharedConn.
func (d *Driver) Connect(ctx context.Context, address string, cfg Configuration) (*ProxyConn, error) {
	provider, target, ok := d.Resolve(address)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnresolvedAddress, address)
	}

	level, isolation, recognized := resolveIsolation(cfg)
	if !recognized {
		d.cfg.Logger.Warn().
			Str("address", target).
			Str("value", cfg[IsolationKey]).
			Msg("unrecognized transaction isolation, using provider default")
	}
	providerCfg := augmentConfiguration(cfg, isolation)
	identity := NewIdentity(target, cfg)

	shared, err := d.ensureShared(ctx, identity, provider, providerCfg, level)
	if err != nil {
		return nil, err
	}

	var private *session
	if !d.coord.IsForced() {
		conn, err := provider.Connect(ctx, target, providerCfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrUnderlyingConnect, target, err)
		}
		private = newSession(conn, level)
	}

	p := newProxyConn(private, shared, d.coord, d.cfg)
	d.coord.admitProxy(ctx, p)

	d.cfg.Logger.Debug().
		Str("proxy_id", p.ID().String()).
		Str("shared_id", shared.ID().String()).
		Bool("routed", private == nil || p.Routed()).
		Msg("connection opened")

	return p, nil
}

// ensureShared returns the Coordinator's SharedConn for identity, opening
// the real connection through provider on first use.
func (d *Driver) ensureShared(
	ctx context.Context,
	identity Identity,
	provider Provider,
	cfg Configuration,
	level sql.IsolationLevel,
) (*SharedConn, error) {
	s, created, err := d.coord.sharedConn(ctx, identity, func(ctx context.Context) (*session, error) {
		conn, err := provider.Connect(ctx, identity.Address(), cfg)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrUnderlyingConnect, identity.Address(), err)
		}
		return newSession(conn, level), nil
	})
	if err != nil {
		return nil, err
	}

	if created {
		d.cfg.Logger.Debug().
			Str("shared_id", s.ID().String()).
			Str("identity", identity.String()).
			Msg("shared connection created")
	}
	return s, nil
}

// SharedConn returns the live SharedConn cached for address and cfg, if any.
func (d *Driver) SharedConn(address string, cfg Configuration) (*SharedConn, bool) {
	return d.coord.SharedConn(NewIdentity(strings.TrimPrefix(address, AddressPrefix), cfg))
}

// SharedConns returns the live shared connections of the Driver's
// Coordinator, ordered by identity.
func (d *Driver) SharedConns() []*SharedConn {
	return d.coord.cachedSharedConns()
}

// ForceCloseAll force-closes every shared connection of the Driver's
// Coordinator. Any open forced transaction on them is rolled back.
func (d *Driver) ForceCloseAll() error {
	return d.coord.ForceCloseAll()
}

// Open implements driver.Driver. name is a dbcleaner address.
func (d *Driver) Open(name string) (driver.Conn, error) {
	return d.Connector(name, nil).Connect(context.Background())
}

// OpenConnector implements driver.DriverContext.
func (d *Driver) OpenConnector(name string) (driver.Connector, error) {
	if _, _, ok := d.Resolve(name); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnresolvedAddress, name)
	}
	return d.Connector(name, nil), nil
}

// Connector returns a driver.Connector for address and cfg, for use with
// sql.OpenDB.
func (d *Driver) Connector(address string, cfg Configuration) driver.Connector {
	return &connector{
		driver:  d,
		address: address,
		cfg:     cfg.Clone(),
	}
}

// OpenDB opens a *sql.DB whose connections are ProxyConns for address and cfg.
//
// Example:
//
//	db := drv.OpenDB("dbcleaner:pgx:postgres://localhost/app_test", cleanersql.Configuration{
//	    cleanersql.IsolationKey: cleanersql.IsolationSerializable,
//	})
//	defer db.Close()
func (d *Driver) OpenDB(address string, cfg Configuration) *sql.DB {
	return sql.OpenDB(d.Connector(address, cfg))
}

// connector binds an address and configuration to a Driver.
type connector struct {
	driver  *Driver
	address string
	cfg     Configuration
}

// Connect implements driver.Connector.
func (c *connector) Connect(ctx context.Context) (driver.Conn, error) {
	p, err := c.driver.Connect(ctx, c.address, c.cfg)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Driver implements driver.Connector.
func (c *connector) Driver() driver.Driver {
	return c.driver
}

// defaultDriver is attached to the process-wide Coordinator.
var defaultDriver = sync.OnceValue(func() *Driver {
	return NewDriver(WithCoordinator(DefaultCoordinator()))
})

// Default returns the process-wide Driver. Its connections are driven by
// the package-level StartTransactions, CommitTransactions and
// RollbackTransactions.
func Default() *Driver {
	return defaultDriver()
}

var (
	registeredMu sync.Mutex
	registered   = make(map[string]bool)
)

// Register registers the Default driver with database/sql under name, or
// DriverName when name is empty. Registering the same name twice is a no-op.
//
// Example:
//
//	cleanersql.Register("")
//	db, err := sql.Open("dbcleaner", "dbcleaner:postgres:postgres://localhost/app_test")
func Register(name string) {
	if name == "" {
		name = DriverName
	}

	registeredMu.Lock()
	defer registeredMu.Unlock()

	if registered[name] {
		return
	}
	sql.Register(name, Default())
	registered[name] = true
}

// Open opens a *sql.DB for a dbcleaner address. Without options the Default
// driver is used; with options a new Driver attached to the process-wide
// Coordinator is created.
//
// Example:
//
//	db, err := cleanersql.Open("dbcleaner:postgres:postgres://localhost/app_test",
//	    cleanersql.WithLogger(logger),
//	)
func Open(address string, opts ...Option) (*sql.DB, error) {
	drv := Default()
	if len(opts) > 0 {
		drv = NewDriver(append([]Option{WithCoordinator(DefaultCoordinator())}, opts...)...)
	}

	if _, _, ok := drv.Resolve(address); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnresolvedAddress, address)
	}
	return drv.OpenDB(address, nil), nil
}
