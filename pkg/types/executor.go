package types

import "context"

// Dialect selects the SQL flavour rendered by the query builder.
type Dialect string

// Supported dialects.
const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
)

// Executor is the backend surface the catalog, registry and data access
// layers call through. Each call acquires its own connection and releases it
// before returning.
type Executor interface {
	// Read runs a query and returns its rows.
	Read(ctx context.Context, query string) (*Result, error)

	// Write runs the statements on one connection inside a transaction,
	// committing when all succeed and rolling back otherwise.
	Write(ctx context.Context, stmts ...string) error

	// Begin returns an exclusive connection handle with an open transaction.
	// The caller must finish it with CommitAndClose or RollbackAndClose.
	Begin(ctx context.Context) (Conn, error)

	// TableExists probes the backend's table directory.
	TableExists(ctx context.Context, table string) (bool, error)

	// Dialect reports the SQL dialect of the backend.
	Dialect() Dialect
}

// Conn is an exclusively owned connection with an open transaction.
type Conn interface {
	Exec(ctx context.Context, stmt string) error
	Query(ctx context.Context, query string) (*Result, error)
	CommitAndClose() error
	RollbackAndClose() error

	// Close rolls back when the handle is still open. It is idempotent and
	// safe to defer after CommitAndClose.
	Close() error
}
