package sqlx

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cleanersql "github.com/kroma-labs/dbcleaner-go/sql"
)

func TestBindDriverName(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    string
	}{
		{
			name:    "given postgres address, then returns postgres",
			address: "dbcleaner:postgres:postgres://localhost/app",
			want:    "postgres",
		},
		{
			name:    "given mysql address, then returns mysql",
			address: "dbcleaner:mysql:user@tcp(localhost:3306)/app",
			want:    "mysql",
		},
		{
			name:    "given sqlite address with empty dsn part, then returns sqlite3",
			address: "dbcleaner:sqlite3::memory:",
			want:    "sqlite3",
		},
		{
			name:    "given address without prefix, then returns its scheme",
			address: "pgx:postgres://localhost/app",
			want:    "pgx",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BindDriverName(tt.address))
		})
	}
}

func TestBindType(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    int
	}{
		{
			name:    "given postgres scheme, then uses dollar placeholders",
			address: "dbcleaner:postgres:postgres://localhost/app",
			want:    sqlx.DOLLAR,
		},
		{
			name:    "given mysql scheme, then uses question placeholders",
			address: "dbcleaner:mysql:app",
			want:    sqlx.QUESTION,
		},
		{
			name:    "given sqlserver scheme, then uses at placeholders",
			address: "dbcleaner:sqlserver:app",
			want:    sqlx.AT,
		},
		{
			name:    "given godror scheme, then uses named placeholders",
			address: "dbcleaner:godror:app",
			want:    sqlx.NAMED,
		},
		{
			name:    "given unknown scheme, then bind type is unknown",
			address: "dbcleaner:memdb:app",
			want:    sqlx.UNKNOWN,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BindType(tt.address))
		})
	}
}

func TestNewDB(t *testing.T) {
	t.Run("given postgres address, then rebinds to dollar placeholders", func(t *testing.T) {
		drv := cleanersql.NewDriver()

		db := NewDB(drv, "dbcleaner:postgres:postgres://localhost/app", nil)
		defer db.Close()

		assert.Equal(t, "postgres", db.DriverName())
		assert.Equal(t, "SELECT * FROM users WHERE id = $1 AND name = $2",
			db.Rebind("SELECT * FROM users WHERE id = ? AND name = ?"))
		assert.Same(t, drv, db.Driver())
		assert.Same(t, drv.Coordinator(), db.Coordinator())
	})

	t.Run("given unused database, then no shared connection exists", func(t *testing.T) {
		db := NewDB(cleanersql.NewDriver(), "dbcleaner:postgres:postgres://localhost/app", nil)
		defer db.Close()

		_, ok := db.SharedConn()
		assert.False(t, ok)
	})
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name           string
		address        string
		opts           []cleanersql.Option
		wantErr        assert.ErrorAssertionFunc
		wantDriverName string
	}{
		{
			name:           "given address of registered database/sql driver, then returns DB",
			address:        "dbcleaner:sqlmock:sqlx_open",
			wantErr:        assert.NoError,
			wantDriverName: "sqlmock",
		},
		{
			name:           "given options, then returns DB on a new driver",
			address:        "dbcleaner:sqlmock:sqlx_open",
			opts:           []cleanersql.Option{cleanersql.WithInstanceName("orders")},
			wantErr:        assert.NoError,
			wantDriverName: "sqlmock",
		},
		{
			name:    "given unresolved address, then returns error",
			address: "dbcleaner:nonexistent_driver:app",
			wantErr: assert.Error,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := Open(tt.address, tt.opts...)

			tt.wantErr(t, err)
			if err != nil {
				assert.ErrorIs(t, err, cleanersql.ErrUnresolvedAddress)
				assert.Nil(t, db)
				return
			}
			defer db.Close()

			assert.Equal(t, tt.wantDriverName, db.DriverName())
			assert.Same(t, cleanersql.DefaultCoordinator(), db.Coordinator())
			if len(tt.opts) == 0 {
				assert.Same(t, cleanersql.Default(), db.Driver())
			} else {
				assert.NotSame(t, cleanersql.Default(), db.Driver())
			}
		})
	}
}

func TestMustOpen_Panic(t *testing.T) {
	assert.Panics(t, func() {
		MustOpen("postgres://localhost/app")
	})
}

func TestConnect(t *testing.T) {
	t.Run("given reachable database, then pings and returns DB", func(t *testing.T) {
		mockDB, _, err := sqlmock.NewWithDSN("sqlx_connect")
		require.NoError(t, err)
		defer mockDB.Close()

		db, err := Connect(context.Background(), "dbcleaner:sqlmock:sqlx_connect")
		require.NoError(t, err)
		defer db.Close()

		s, ok := db.SharedConn()
		require.True(t, ok)
		assert.Equal(t, "sqlmock:sqlx_connect", s.Identity().Address())
	})

	t.Run("given two opens with options, then they share the identity's connection", func(t *testing.T) {
		ctx := context.Background()
		mockDB, _, err := sqlmock.NewWithDSN("sqlx_connect_twice")
		require.NoError(t, err)
		defer mockDB.Close()

		first, err := Connect(ctx, "dbcleaner:sqlmock:sqlx_connect_twice", cleanersql.WithInstanceName("orders"))
		require.NoError(t, err)
		defer first.Close()
		second, err := Connect(ctx, "dbcleaner:sqlmock:sqlx_connect_twice", cleanersql.WithInstanceName("billing"))
		require.NoError(t, err)
		defer second.Close()

		s1, ok := first.SharedConn()
		require.True(t, ok)
		s2, ok := second.SharedConn()
		require.True(t, ok)

		assert.NotSame(t, first.Driver(), second.Driver())
		assert.Same(t, s1, s2)
	})

	t.Run("given unresolved address, then returns error", func(t *testing.T) {
		db, err := Connect(context.Background(), "dbcleaner:nonexistent_driver:app")

		assert.ErrorIs(t, err, cleanersql.ErrUnresolvedAddress)
		assert.Nil(t, db)
	})

	t.Run("given unresolved address, then MustConnect panics", func(t *testing.T) {
		assert.Panics(t, func() {
			MustConnect(context.Background(), "dbcleaner:nonexistent_driver:app")
		})
	})
}

func TestDB_Isolate(t *testing.T) {
	t.Run("given query inside isolation, then runs on shared transaction and rolls back", func(t *testing.T) {
		ctx := context.Background()
		mockDB, mock, err := sqlmock.NewWithDSN("sqlx_isolate")
		require.NoError(t, err)
		defer mockDB.Close()

		db := NewDB(cleanersql.NewDriver(), "dbcleaner:sqlmock:sqlx_isolate", nil)
		defer db.Close()
		require.NoError(t, db.PingContext(ctx))

		mock.ExpectBegin()
		mock.ExpectClose()
		mock.ExpectQuery("SELECT name FROM users").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("alice"))
		mock.ExpectRollback()

		var name string
		err = db.Isolate(ctx, func(ctx context.Context) error {
			assert.True(t, db.Coordinator().IsActive())
			return db.GetContext(ctx, &name, "SELECT name FROM users WHERE id = ?", 1)
		})

		require.NoError(t, err)
		assert.Equal(t, "alice", name)
		assert.False(t, db.Coordinator().IsActive())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("given function error, then still rolls back and returns it", func(t *testing.T) {
		ctx := context.Background()
		mockDB, mock, err := sqlmock.NewWithDSN("sqlx_isolate_error")
		require.NoError(t, err)
		defer mockDB.Close()

		db := NewDB(cleanersql.NewDriver(), "dbcleaner:sqlmock:sqlx_isolate_error", nil)
		defer db.Close()
		require.NoError(t, db.PingContext(ctx))

		mock.ExpectBegin()
		mock.ExpectClose()
		mock.ExpectRollback()

		err = db.Isolate(ctx, func(context.Context) error {
			return assert.AnError
		})

		assert.ErrorIs(t, err, assert.AnError)
		assert.False(t, db.Coordinator().IsActive())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("given forced transaction already open, then refuses and leaves it open", func(t *testing.T) {
		ctx := context.Background()
		mockDB, mock, err := sqlmock.NewWithDSN("sqlx_isolate_nested")
		require.NoError(t, err)
		defer mockDB.Close()

		db := NewDB(cleanersql.NewDriver(), "dbcleaner:sqlmock:sqlx_isolate_nested", nil)
		defer db.Close()
		require.NoError(t, db.PingContext(ctx))

		mock.ExpectBegin()
		mock.ExpectClose()
		require.NoError(t, db.Coordinator().StartTransactions(ctx))

		called := false
		err = db.Isolate(ctx, func(context.Context) error {
			called = true
			return nil
		})

		assert.ErrorIs(t, err, ErrNestedIsolate)
		assert.False(t, called)
		assert.True(t, db.Coordinator().IsActive())

		mock.ExpectRollback()
		require.NoError(t, db.Coordinator().RollbackTransactions(ctx).Err())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("given begin failure, then function is not run", func(t *testing.T) {
		ctx := context.Background()
		mockDB, mock, err := sqlmock.NewWithDSN("sqlx_isolate_begin")
		require.NoError(t, err)
		defer mockDB.Close()

		db := NewDB(cleanersql.NewDriver(), "dbcleaner:sqlmock:sqlx_isolate_begin", nil)
		defer db.Close()
		require.NoError(t, db.PingContext(ctx))

		mock.ExpectBegin().WillReturnError(assert.AnError)

		called := false
		err = db.Isolate(ctx, func(context.Context) error {
			called = true
			return nil
		})

		assert.ErrorIs(t, err, assert.AnError)
		assert.False(t, called)
		assert.False(t, db.Coordinator().IsActive())
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
