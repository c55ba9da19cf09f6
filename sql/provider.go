package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"strings"
)

// Compile-time interface check.
var _ Provider = (*DriverProvider)(nil)

// IsolationKey is the configuration entry selecting the isolation level of
// the forced transaction.
const IsolationKey = "dbcleaner.transactionisolation"

// Isolation level names accepted under IsolationKey.
const (
	IsolationReadCommitted   = "read_committed"
	IsolationReadUncommitted = "read_uncommitted"
	IsolationRepeatableRead  = "repeatable_read"
	IsolationSerializable    = "serializable"
)

// isolationLevels maps configuration values to database/sql isolation levels.
var isolationLevels = map[string]sql.IsolationLevel{
	IsolationReadCommitted:   sql.LevelReadCommitted,
	IsolationReadUncommitted: sql.LevelReadUncommitted,
	IsolationRepeatableRead:  sql.LevelRepeatableRead,
	IsolationSerializable:    sql.LevelSerializable,
}

// Provider opens the real connections dbcleaner wraps.
type Provider interface {
	// AcceptsAddress reports whether the provider can open address.
	AcceptsAddress(address string) bool

	// Connect opens a new real connection.
	Connect(ctx context.Context, address string, cfg Configuration) (driver.Conn, error)
}

// DriverProvider serves addresses of the form "<name>:<dsn>" from a
// database/sql driver.
//
// Example:
//
//	p := cleanersql.NewDriverProvider("pgx", stdlib.GetDefaultDriver())
//	p.AcceptsAddress("pgx:postgres://localhost/app") // true
type DriverProvider struct {
	name   string
	driver driver.Driver
}

// NewDriverProvider creates a provider for the given driver. name is the
// scheme that addresses must start with.
func NewDriverProvider(name string, d driver.Driver) *DriverProvider {
	return &DriverProvider{name: name, driver: d}
}

// Name returns the address scheme served by the provider.
func (p *DriverProvider) Name() string {
	return p.name
}

// AcceptsAddress implements Provider.
func (p *DriverProvider) AcceptsAddress(address string) bool {
	return strings.HasPrefix(address, p.name+":")
}

// Connect implements Provider. Configuration entries are not part of a
// driver DSN and are ignored here; the isolation entry is applied by the
// shared connection when its transaction begins.
func (p *DriverProvider) Connect(ctx context.Context, address string, _ Configuration) (driver.Conn, error) {
	dsn := strings.TrimPrefix(address, p.name+":")

	if dc, ok := p.driver.(driver.DriverContext); ok {
		connector, err := dc.OpenConnector(dsn)
		if err != nil {
			return nil, err
		}
		return connector.Connect(ctx)
	}

	return p.driver.Open(dsn)
}

// resolveIsolation returns the isolation level selected by cfg and the
// name handed on to the provider. ok is false for unrecognized values, which
// keep the provider's default level.
func resolveIsolation(cfg Configuration) (level sql.IsolationLevel, name string, ok bool) {
	value, set := cfg[IsolationKey]
	if !set || value == "" {
		return sql.LevelReadCommitted, IsolationReadCommitted, true
	}

	level, ok = isolationLevels[value]
	if !ok {
		return sql.LevelDefault, IsolationReadCommitted, false
	}
	return level, value, true
}

// augmentConfiguration copies cfg with the isolation entry set to name.
func augmentConfiguration(cfg Configuration, name string) Configuration {
	out := cfg.Clone()
	out[IsolationKey] = name
	return out
}
