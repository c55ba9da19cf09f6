// Package sqlx opens jmoiron/sqlx databases on dbcleaner addresses.
//
// # Quick Start
//
//	import cleanersqlx "github.com/kroma-labs/dbcleaner-go/sqlx"
//
//	db, err := cleanersqlx.Open("dbcleaner:postgres:postgres://localhost/app_test")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
// The bind type follows the scheme after the "dbcleaner:" prefix, so
// db.Rebind turns "?" placeholders into "$1" for postgres addresses.
//
// # Struct Scanning
//
//	type User struct {
//	    ID   int    `db:"id"`
//	    Name string `db:"name"`
//	}
//
//	var user User
//	err := db.GetContext(ctx, &user, db.Rebind("SELECT id, name FROM users WHERE id = ?"), 1)
//
// # Isolating a Test
//
// Isolate starts forced transactions, runs the function and rolls everything
// back:
//
//	err := db.Isolate(ctx, func(ctx context.Context) error {
//	    _, err := db.NamedExecContext(ctx,
//	        "INSERT INTO users (name) VALUES (:name)", User{Name: "alice"})
//	    return err
//	})
//
// Statements are traced and measured by the underlying dbcleaner driver.
package sqlx
