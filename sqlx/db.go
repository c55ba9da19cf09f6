package sqlx

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	cleanersql "github.com/kroma-labs/dbcleaner-go/sql"
)

// ErrNestedIsolate is returned by Isolate when a forced transaction is
// already open on the coordinator. Rolling back would discard the outer
// transaction's work.
var ErrNestedIsolate = errors.New("dbcleaner: forced transaction already open, nested Isolate is not supported")

// DB wraps *sqlx.DB opened on a dbcleaner address. Every sqlx method works
// as usual; the connections underneath are proxies of the Driver.
type DB struct {
	*sqlx.DB
	driver  *cleanersql.Driver
	address string
	cfg     cleanersql.Configuration
}

// Open opens a sqlx database for a dbcleaner address. The bind type is taken
// from the scheme after the "dbcleaner:" prefix.
//
// Without options the process-wide driver is used; with options a new driver
// attached to the process-wide coordinator is created.
//
// Example:
//
//	db, err := cleanersqlx.Open("dbcleaner:postgres:postgres://localhost/app_test")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
func Open(address string, opts ...cleanersql.Option) (*DB, error) {
	drv := cleanersql.Default()
	if len(opts) > 0 {
		drv = cleanersql.NewDriver(append(
			[]cleanersql.Option{cleanersql.WithCoordinator(cleanersql.DefaultCoordinator())},
			opts...,
		)...)
	}

	if _, _, ok := drv.Resolve(address); !ok {
		return nil, fmt.Errorf("%w: %q", cleanersql.ErrUnresolvedAddress, address)
	}
	return NewDB(drv, address, nil), nil
}

// Connect opens a sqlx database and verifies it with a ping.
func Connect(ctx context.Context, address string, opts ...cleanersql.Option) (*DB, error) {
	db, err := Open(address, opts...)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// NewDB opens a sqlx database for address and cfg on an existing driver.
// No connection is made until the database is used.
//
// Example:
//
//	drv := cleanersql.NewDriver(cleanersql.WithProvider(provider))
//	db := cleanersqlx.NewDB(drv, "dbcleaner:postgres:postgres://localhost/app_test", nil)
func NewDB(drv *cleanersql.Driver, address string, cfg cleanersql.Configuration) *DB {
	return &DB{
		DB:      sqlx.NewDb(drv.OpenDB(address, cfg), BindDriverName(address)),
		driver:  drv,
		address: address,
		cfg:     cfg.Clone(),
	}
}

// MustOpen is like Open but panics on error.
func MustOpen(address string, opts ...cleanersql.Option) *DB {
	db, err := Open(address, opts...)
	if err != nil {
		panic(err)
	}
	return db
}

// MustConnect is like Connect but panics on error.
func MustConnect(ctx context.Context, address string, opts ...cleanersql.Option) *DB {
	db, err := Connect(ctx, address, opts...)
	if err != nil {
		panic(err)
	}
	return db
}

// Driver returns the dbcleaner driver serving the database.
func (db *DB) Driver() *cleanersql.Driver {
	return db.driver
}

// Coordinator returns the coordinator driving the database's connections.
func (db *DB) Coordinator() *cleanersql.Coordinator {
	return db.driver.Coordinator()
}

// SharedConn returns the shared connection of the database's identity once
// it has been created.
func (db *DB) SharedConn() (*cleanersql.SharedConn, bool) {
	return db.driver.SharedConn(db.address, db.cfg)
}

// Isolate starts forced transactions on the database's coordinator, runs fn
// and rolls everything back, whatever fn returns. It returns
// ErrNestedIsolate without running fn when a forced transaction is already
// open.
//
// Example:
//
//	err := db.Isolate(ctx, func(ctx context.Context) error {
//	    _, err := db.ExecContext(ctx, "INSERT INTO users (name) VALUES ($1)", "alice")
//	    return err
//	})
func (db *DB) Isolate(ctx context.Context, fn func(ctx context.Context) error) error {
	coord := db.Coordinator()
	if coord.IsActive() {
		return ErrNestedIsolate
	}
	if err := coord.StartTransactions(ctx); err != nil {
		return err
	}

	err := fn(ctx)
	return errors.Join(err, coord.RollbackTransactions(ctx).Err())
}

// BindDriverName returns the database/sql driver name sqlx should use to pick
// the bind type of address: the scheme following the "dbcleaner:" prefix.
func BindDriverName(address string) string {
	target := strings.TrimPrefix(address, cleanersql.AddressPrefix)
	scheme, _, _ := strings.Cut(target, ":")
	return scheme
}

// BindType returns the sqlx bind type for address.
func BindType(address string) int {
	return sqlx.BindType(BindDriverName(address))
}
