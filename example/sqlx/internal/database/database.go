package database

import (
	"context"
	"fmt"
	"time"

	_ "github.com/lib/pq" // Register postgres driver
	"github.com/rs/zerolog"

	"github.com/kroma-labs/dbcleaner-go/example/sqlx/internal/config"
	cleanersql "github.com/kroma-labs/dbcleaner-go/sql"
	cleanersqlx "github.com/kroma-labs/dbcleaner-go/sqlx"
)

// DB wraps the dbcleaner sqlx database.
type DB struct {
	*cleanersqlx.DB
	logger zerolog.Logger
}

// New opens the database through dbcleaner. Every connection the pool opens
// joins the process-wide coordinator, so the admin API can force them into
// one shared transaction.
func New(ctx context.Context, logger zerolog.Logger) (*DB, error) {
	drv := cleanersql.NewDriver(
		cleanersql.WithCoordinator(cleanersql.DefaultCoordinator()),
		cleanersql.WithInstanceName(config.DefaultInstance),
		cleanersql.WithLogger(logger),
	)

	db := cleanersqlx.NewDB(drv, config.DefaultAddress, cleanersql.Configuration{
		cleanersql.IsolationKey: config.DefaultIsolation,
	})

	db.SetMaxOpenConns(config.DefaultMaxOpen)
	db.SetMaxIdleConns(config.DefaultMaxIdle)
	db.SetConnMaxLifetime(time.Duration(config.DefaultMaxLifetime) * time.Second)
	db.SetConnMaxIdleTime(time.Duration(config.DefaultMaxIdleTime) * time.Second)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{DB: db, logger: logger}, nil
}
