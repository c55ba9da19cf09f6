package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/kroma-labs/dbcleaner-go/sql/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// globalMemDB registers a memdb driver with database/sql once per test binary.
var globalMemDB = sync.OnceValue(func() *memDriver {
	d := newMemDriver()
	sql.Register("memdb-global", d)
	return d
})

func TestDriver_Resolve(t *testing.T) {
	globalMemDB()
	Register("")

	tests := []struct {
		name       string
		address    string
		wantOK     bool
		wantTarget string
	}{
		{
			name:       "given prefixed address of registered provider, then resolves",
			address:    "dbcleaner:memdb:app",
			wantOK:     true,
			wantTarget: "memdb:app",
		},
		{
			name:    "given address without prefix, then does not resolve",
			address: "memdb:app",
			wantOK:  false,
		},
		{
			name:    "given unknown scheme, then does not resolve",
			address: "dbcleaner:oracle:app",
			wantOK:  false,
		},
		{
			name:       "given scheme registered with database/sql, then resolves through it",
			address:    "dbcleaner:memdb-global:app",
			wantOK:     true,
			wantTarget: "memdb-global:app",
		},
		{
			name:    "given dbcleaner scheme, then does not resolve to itself",
			address: "dbcleaner:dbcleaner:memdb:app",
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drv := NewDriver(WithProvider(NewDriverProvider("memdb", newMemDriver())))

			p, target, ok := drv.Resolve(tt.address)

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantTarget, target)
			if ok {
				assert.True(t, p.AcceptsAddress(target))
			}
		})
	}

	t.Run("given several accepting providers, then first registered wins", func(t *testing.T) {
		first := NewMockProvider(t)
		second := NewMockProvider(t)
		first.EXPECT().AcceptsAddress("memdb:app").Return(true).Once()

		drv := NewDriver(WithProvider(first), WithProvider(second))

		p, _, ok := drv.Resolve("dbcleaner:memdb:app")

		require.True(t, ok)
		assert.Same(t, first, p)
	})
}

func TestDriver_Connect(t *testing.T) {
	t.Run("given unresolved address, then returns unresolved error", func(t *testing.T) {
		drv := NewDriver()

		p, err := drv.Connect(context.Background(), "dbcleaner:nope:app", nil)

		assert.ErrorIs(t, err, ErrUnresolvedAddress)
		assert.Nil(t, p)
	})

	t.Run("given provider failure, then returns underlying connect error", func(t *testing.T) {
		provider := NewMockProvider(t)
		provider.EXPECT().AcceptsAddress("memdb:app").Return(true)
		provider.EXPECT().Connect(mock.Anything, "memdb:app", mock.Anything).Return(nil, assert.AnError).Once()

		drv := NewDriver(WithProvider(provider))

		_, err := drv.Connect(context.Background(), appAddress, nil)

		assert.ErrorIs(t, err, ErrUnderlyingConnect)
		assert.ErrorIs(t, err, assert.AnError)
		assert.Empty(t, drv.SharedConns())
	})

	t.Run("given private connect failure, then shared connection stays cached", func(t *testing.T) {
		shared := mocks.NewDriverConn(t)
		provider := NewMockProvider(t)
		provider.EXPECT().AcceptsAddress("memdb:app").Return(true)
		provider.EXPECT().Connect(mock.Anything, "memdb:app", mock.Anything).Return(shared, nil).Once()
		provider.EXPECT().Connect(mock.Anything, "memdb:app", mock.Anything).Return(nil, assert.AnError).Once()

		drv := NewDriver(WithProvider(provider))

		_, err := drv.Connect(context.Background(), appAddress, nil)

		assert.ErrorIs(t, err, ErrUnderlyingConnect)
		assert.Len(t, drv.SharedConns(), 1)
		assert.Zero(t, drv.Coordinator().Stats().ProxyConnections)
	})

	t.Run("given caller configuration, then provider receives isolation entry", func(t *testing.T) {
		provider := NewMockProvider(t)
		provider.EXPECT().AcceptsAddress("memdb:app").Return(true)
		provider.EXPECT().
			Connect(mock.Anything, "memdb:app", Configuration{"user": "app", IsolationKey: IsolationReadCommitted}).
			RunAndReturn(func(context.Context, string, Configuration) (driver.Conn, error) {
				return mocks.NewDriverConn(t), nil
			}).Twice()

		drv := NewDriver(WithProvider(provider))
		cfg := Configuration{"user": "app"}

		_, err := drv.Connect(context.Background(), appAddress, cfg)

		require.NoError(t, err)
		assert.NotContains(t, cfg, IsolationKey)
	})

	t.Run("given unrecognized isolation, then provider receives read committed", func(t *testing.T) {
		provider := NewMockProvider(t)
		provider.EXPECT().AcceptsAddress("memdb:app").Return(true)
		provider.EXPECT().
			Connect(mock.Anything, "memdb:app", Configuration{IsolationKey: IsolationReadCommitted}).
			RunAndReturn(func(context.Context, string, Configuration) (driver.Conn, error) {
				return mocks.NewDriverConn(t), nil
			}).Twice()

		drv := NewDriver(WithProvider(provider))

		_, err := drv.Connect(context.Background(), appAddress, Configuration{IsolationKey: "chaos"})

		require.NoError(t, err)
	})
}

func TestDriver_SharedConnCache(t *testing.T) {
	t.Run("given same identity, then one shared connection serves every proxy", func(t *testing.T) {
		ctx := context.Background()
		drv, mem := newTestDriver(t)

		p1, err := drv.Connect(ctx, appAddress, Configuration{"user": "app"})
		require.NoError(t, err)
		p2, err := drv.Connect(ctx, appAddress, Configuration{"user": "app"})
		require.NoError(t, err)

		assert.Same(t, p1.Shared(), p2.Shared())
		opened, _ := mem.store("app").counts()
		assert.Equal(t, 3, opened)

		s, ok := drv.SharedConn(appAddress, Configuration{"user": "app"})
		require.True(t, ok)
		assert.Same(t, p1.Shared(), s)
	})

	t.Run("given different configuration, then shared connections differ", func(t *testing.T) {
		ctx := context.Background()
		drv, _ := newTestDriver(t)

		p1, err := drv.Connect(ctx, appAddress, nil)
		require.NoError(t, err)
		p2, err := drv.Connect(ctx, appAddress, Configuration{"user": "reporting"})
		require.NoError(t, err)

		assert.NotSame(t, p1.Shared(), p2.Shared())
		assert.Len(t, drv.SharedConns(), 2)
	})

	t.Run("given force-closed shared connection, then next connect replaces it", func(t *testing.T) {
		ctx := context.Background()
		drv, _ := newTestDriver(t)

		p1, err := drv.Connect(ctx, appAddress, nil)
		require.NoError(t, err)
		require.NoError(t, p1.Shared().ForceClose())

		p2, err := drv.Connect(ctx, appAddress, nil)
		require.NoError(t, err)

		assert.NotSame(t, p1.Shared(), p2.Shared())
		assert.Len(t, drv.Coordinator().SharedConns(), 1)
	})
}

func TestDriver_SharedConnAcrossDrivers(t *testing.T) {
	t.Run("given two drivers on one coordinator, then an identity has one shared connection", func(t *testing.T) {
		ctx := context.Background()
		mem := newMemDriver()
		coord := NewCoordinator()
		first := NewDriver(WithCoordinator(coord), WithProvider(NewDriverProvider("memdb", mem)))
		second := NewDriver(WithCoordinator(coord), WithProvider(NewDriverProvider("memdb", mem)))
		t.Cleanup(func() { _ = coord.ForceCloseAll() })

		db1 := openTestDB(t, first, appAddress, nil)
		db2 := openTestDB(t, second, appAddress, nil)

		s1, ok := first.SharedConn(appAddress, nil)
		require.True(t, ok)
		s2, ok := second.SharedConn(appAddress, nil)
		require.True(t, ok)
		assert.Same(t, s1, s2)
		assert.Len(t, coord.SharedConns(), 1)
		assert.Equal(t, first.SharedConns(), second.SharedConns())

		require.NoError(t, coord.StartTransactions(ctx))
		putKey(t, db1, "user:1", "alice")

		got, ok := getKey(t, db2, "user:1")
		require.True(t, ok)
		assert.Equal(t, "alice", got)

		require.NoError(t, coord.RollbackTransactions(ctx).Err())

		_, ok = getKey(t, db2, "user:1")
		assert.False(t, ok)
	})

	t.Run("given force close through one driver, then the other driver reopens the identity", func(t *testing.T) {
		ctx := context.Background()
		coord := NewCoordinator()
		provider := NewDriverProvider("memdb", newMemDriver())
		first := NewDriver(WithCoordinator(coord), WithProvider(provider))
		second := NewDriver(WithCoordinator(coord), WithProvider(provider))
		t.Cleanup(func() { _ = coord.ForceCloseAll() })

		p1, err := first.Connect(ctx, appAddress, nil)
		require.NoError(t, err)
		require.NoError(t, first.ForceCloseAll())

		_, ok := second.SharedConn(appAddress, nil)
		assert.False(t, ok)

		p2, err := second.Connect(ctx, appAddress, nil)
		require.NoError(t, err)
		assert.NotSame(t, p1.Shared(), p2.Shared())
		assert.Len(t, coord.SharedConns(), 1)
	})
}

func TestDriver_ForceCloseAll(t *testing.T) {
	t.Run("given forced shared connections, then closes them and rolls back", func(t *testing.T) {
		ctx := context.Background()
		drv, mem := newTestDriver(t)
		db := drv.OpenDB(appAddress, nil)
		require.NoError(t, db.PingContext(ctx))

		require.NoError(t, drv.Coordinator().StartTransactions(ctx))
		putKey(t, db, "user:1", "alice")
		require.NoError(t, db.Close())

		require.NoError(t, drv.ForceCloseAll())

		assert.Empty(t, drv.SharedConns())
		assert.Empty(t, drv.Coordinator().SharedConns())
		_, committed := mem.store("app").get("user:1")
		assert.False(t, committed)

		_, ok := drv.SharedConn(appAddress, nil)
		assert.False(t, ok)
	})
}

func TestDriver_DatabaseSQL(t *testing.T) {
	t.Run("given Open with address, then returns proxy connection", func(t *testing.T) {
		drv, _ := newTestDriver(t)

		conn, err := drv.Open(appAddress)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })

		assert.IsType(t, &ProxyConn{}, conn)
	})

	t.Run("given Open with unresolved address, then returns error", func(t *testing.T) {
		drv, _ := newTestDriver(t)

		conn, err := drv.Open("dbcleaner:nope:app")

		assert.ErrorIs(t, err, ErrUnresolvedAddress)
		assert.Nil(t, conn)
	})

	t.Run("given OpenConnector, then connector belongs to driver", func(t *testing.T) {
		drv, _ := newTestDriver(t)

		connector, err := drv.OpenConnector(appAddress)
		require.NoError(t, err)
		assert.Same(t, drv, connector.Driver())

		_, err = drv.OpenConnector("memdb:app")
		assert.ErrorIs(t, err, ErrUnresolvedAddress)
	})

	t.Run("given package Open, then serves registered database/sql driver", func(t *testing.T) {
		mem := globalMemDB()
		ctx := context.Background()

		db, err := Open("dbcleaner:memdb-global:package-open")
		require.NoError(t, err)
		defer db.Close()

		_, err = db.ExecContext(ctx, "PUT", "k", "v")
		require.NoError(t, err)

		got, ok := mem.store("package-open").get("k")
		require.True(t, ok)
		assert.Equal(t, "v", got)

		_, err = Open("postgres://localhost/app")
		assert.ErrorIs(t, err, ErrUnresolvedAddress)
	})

	t.Run("given package Open twice with options, then both databases share one transaction", func(t *testing.T) {
		mem := globalMemDB()
		ctx := context.Background()
		address := "dbcleaner:memdb-global:package-twice"

		db1, err := Open(address, WithInstanceName("orders"))
		require.NoError(t, err)
		defer db1.Close()
		db2, err := Open(address, WithInstanceName("billing"))
		require.NoError(t, err)
		defer db2.Close()

		var shared []*SharedConn
		for _, db := range []*sql.DB{db1, db2} {
			conn, err := db.Conn(ctx)
			require.NoError(t, err)
			require.NoError(t, conn.Raw(func(dc any) error {
				shared = append(shared, dc.(*ProxyConn).Shared())
				return nil
			}))
			require.NoError(t, conn.Close())
		}
		require.Len(t, shared, 2)
		assert.Same(t, shared[0], shared[1])
		t.Cleanup(func() { _ = shared[0].ForceClose() })

		require.NoError(t, StartTransactions(ctx))
		putKey(t, db1, "user:1", "alice")

		got, ok := getKey(t, db2, "user:1")
		require.True(t, ok)
		assert.Equal(t, "alice", got)

		require.NoError(t, RollbackTransactions(ctx).Err())

		_, committed := mem.store("package-twice").get("user:1")
		assert.False(t, committed)
	})

	t.Run("given package Open with options, then driver joins default coordinator", func(t *testing.T) {
		globalMemDB()

		db, err := Open("dbcleaner:memdb-global:package-options", WithInstanceName("orders"))
		require.NoError(t, err)
		defer db.Close()

		conn, err := db.Conn(context.Background())
		require.NoError(t, err)
		defer conn.Close()

		require.NoError(t, conn.Raw(func(dc any) error {
			assert.Same(t, DefaultCoordinator(), dc.(*ProxyConn).coord)
			return nil
		}))
	})

	t.Run("given Register called twice, then does not panic", func(t *testing.T) {
		assert.NotPanics(t, func() {
			Register("dbcleaner-twice")
			Register("dbcleaner-twice")
		})
		assert.Contains(t, sql.Drivers(), "dbcleaner-twice")
	})
}

func TestDriver_SQLMock(t *testing.T) {
	t.Run("given sqlmock connection, then forced transaction wraps application statements", func(t *testing.T) {
		ctx := context.Background()
		mockDB, sqlMock, err := sqlmock.NewWithDSN("dbcleaner_forced_rollback")
		require.NoError(t, err)
		defer mockDB.Close()

		drv := NewDriver()
		db := drv.OpenDB("dbcleaner:sqlmock:dbcleaner_forced_rollback", nil)
		defer db.Close()
		require.NoError(t, db.PingContext(ctx))

		sqlMock.ExpectBegin()
		sqlMock.ExpectClose()
		sqlMock.ExpectExec("INSERT INTO users").
			WithArgs("alice").
			WillReturnResult(sqlmock.NewResult(1, 1))
		sqlMock.ExpectRollback()

		require.NoError(t, drv.Coordinator().StartTransactions(ctx))

		tx, err := db.BeginTx(ctx, nil)
		require.NoError(t, err)
		_, err = tx.ExecContext(ctx, "INSERT INTO users (name) VALUES (?)", "alice")
		require.NoError(t, err)
		require.NoError(t, tx.Commit())

		require.NoError(t, drv.Coordinator().RollbackTransactions(ctx).Err())

		assert.NoError(t, sqlMock.ExpectationsWereMet())
	})
}
