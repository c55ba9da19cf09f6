// Package sql makes every database connection opened by a process share one
// transaction per connection identity, so that a test can discard all of its
// writes with a single rollback.
//
// # How It Works
//
// Connections are requested with addresses prefixed by "dbcleaner:". For
// each distinct (address, configuration) pair the Driver keeps one
// SharedConn holding a real connection. Every connect call returns a
// ProxyConn which, until a forced transaction is started, forwards to a
// private real connection of its own.
//
// StartTransactions opens a transaction on every SharedConn and reroutes
// every ProxyConn to its SharedConn. From then on commit, rollback and
// autocommit changes requested by the application are ignored on the shared
// connection. CommitTransactions or RollbackTransactions finish the forced
// transaction for everyone at once.
//
// # Quick Start
//
//	import cleanersql "github.com/kroma-labs/dbcleaner-go/sql"
//
//	db, err := cleanersql.Open("dbcleaner:pgx:postgres://localhost/app_test")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := cleanersql.StartTransactions(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer cleanersql.RollbackTransactions(ctx)
//
//	// Code under test uses db, or any other *sql.DB opened with a
//	// dbcleaner address, as usual.
//
// Addresses resolve through providers registered with WithProvider. When
// none accepts an address, the scheme after the prefix is looked up among
// the drivers registered with database/sql.
//
// # Autocommit Control
//
// Every connection implements Conn, reachable through sql.Conn.Raw:
//
//	conn, _ := db.Conn(ctx)
//	_ = conn.Raw(func(dc any) error {
//	    return dc.(cleanersql.Conn).SetAutoCommit(false)
//	})
//
// Application transactions begun with db.BeginTx map onto manual-commit mode
// of whichever connection the proxy currently forwards to.
//
// # Isolation
//
// The isolation of the forced transaction is chosen with the
// "dbcleaner.transactionisolation" configuration entry (see IsolationKey).
// It defaults to read_committed.
//
// # Observability
//
// Traces:
//   - Span per proxied statement, with "dbcleaner.route" set to private or shared
//   - Span per sweep: dbcleaner.start, dbcleaner.commit, dbcleaner.rollback
//
// Metrics:
//   - dbcleaner.sweep.duration (histogram by operation)
//   - dbcleaner.sweep.failures (counter)
//   - dbcleaner.connections.shared, dbcleaner.connections.proxy, dbcleaner.forced (gauges)
//   - db.client.operation.duration (histogram by operation and route)
//
// # Limitations
//
// Rows returned by a query on a SharedConn are iterated without holding the
// shared connection's lock. Tests that share one connection between
// goroutines must finish reading rows before issuing the next statement.
package sql
