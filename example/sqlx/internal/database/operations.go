package database

import (
	"context"
)

// User represents a user in the database
type User struct {
	ID    int    `db:"id"`
	Name  string `db:"name"`
	Email string `db:"email"`
}

// CreateTable creates the users table if it doesn't exist
func (db *DB) CreateTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS users (
			id SERIAL PRIMARY KEY,
			name VARCHAR(100),
			email VARCHAR(100) UNIQUE
		)
	`
	_, err := db.ExecContext(ctx, query)
	return err
}

// InsertUsers inserts sample users.
func (db *DB) InsertUsers(ctx context.Context) error {
	users := []User{
		{Name: "Alice", Email: "alice@example.com"},
		{Name: "Bob", Email: "bob@example.com"},
		{Name: "Charlie", Email: "charlie@example.com"},
	}

	for _, user := range users {
		_, err := db.NamedExecContext(ctx,
			"INSERT INTO users (name, email) VALUES (:name, :email) ON CONFLICT DO NOTHING",
			user,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// CountUsers returns the number of rows in users. While a forced transaction
// is open it includes rows that will disappear on rollback.
func (db *DB) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := db.GetContext(ctx, &n, "SELECT COUNT(*) FROM users")
	return n, err
}

// QueryUsers lists users with SelectContext.
func (db *DB) QueryUsers(ctx context.Context) ([]User, error) {
	var users []User
	err := db.SelectContext(ctx, &users, "SELECT id, name, email FROM users ORDER BY id LIMIT 10")
	if err != nil {
		return nil, err
	}
	db.logger.Debug().Int("users", len(users)).Msg("queried users")
	return users, nil
}

// GetUser fetches a single user with GetContext.
func (db *DB) GetUser(ctx context.Context, name string) (*User, error) {
	var user User
	err := db.GetContext(ctx, &user, db.Rebind("SELECT id, name, email FROM users WHERE name = ?"), name)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// InsertWithTransaction runs an application transaction. Under a forced
// transaction its commit becomes a no-op and the row stays pending until the
// test harness commits or rolls back.
func (db *DB) InsertWithTransaction(ctx context.Context) (err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	_, err = tx.ExecContext(ctx,
		tx.Rebind("INSERT INTO users (name, email) VALUES (?, ?) ON CONFLICT DO NOTHING"),
		"Transaction User",
		"tx@example.com",
	)
	if err != nil {
		return err
	}

	var user User
	err = tx.GetContext(ctx, &user,
		tx.Rebind("SELECT id, name, email FROM users WHERE email = ?"),
		"tx@example.com",
	)
	if err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	db.logger.Debug().Str("email", user.Email).Msg("transaction committed")
	return nil
}
