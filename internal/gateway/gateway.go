// Package gateway owns the backend connection pool and hands out exclusive
// connection handles. Every handle carries an open transaction that is
// committed and closed on success or rolled back and closed on failure.
package gateway

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/trajstore/internal/errors"
	"github.com/mesh-intelligence/trajstore/internal/logging"
	"github.com/mesh-intelligence/trajstore/internal/metrics"
	"github.com/mesh-intelligence/trajstore/internal/sqlbuild"
	"github.com/mesh-intelligence/trajstore/pkg/types"
)

var _ types.Executor = (*Gateway)(nil)

// sqlitePragmas are applied to every pooled sqlite connection.
const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"

// driverNames maps backends to database/sql driver names.
var driverNames = map[string]string{
	types.BackendSQLite:   "sqlite",
	types.BackendPostgres: "postgres",
	types.BackendMySQL:    "mysql",
}

// Gateway implements types.Executor over a database/sql pool.
type Gateway struct {
	mu       sync.RWMutex
	attached bool
	config   types.Config
	dialect  types.Dialect
	driver   string
	dsn      string
	db       *sql.DB
	log      *slog.Logger

	migrateOnce sync.Mutex
	migrated    bool
}

// New creates a detached gateway; call Attach to open the pool.
func New() *Gateway {
	return &Gateway{log: logging.WithComponent("gateway")}
}

// Attach validates config, opens the pool and checks that the backend is
// reachable. Returns ErrAlreadyAttached if already attached.
func (g *Gateway) Attach(ctx context.Context, config types.Config) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.attached {
		return ErrAlreadyAttached
	}
	if err := config.Validate(); err != nil {
		return err
	}

	dsn, err := dataSourceName(config)
	if err != nil {
		return errors.WithKind(types.KindConnection, err)
	}
	driver := driverNames[config.Backend]

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return errors.WithKind(types.KindConnection, err)
	}
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return errors.WithKind(types.KindConnection, errors.Wrapf(err, "connecting to %s backend", config.Backend))
	}

	g.db = db
	g.config = config
	g.dialect = config.Dialect()
	g.driver = driver
	g.dsn = dsn
	g.attached = true
	g.log.Debug("attached", "backend", config.Backend)
	return nil
}

// Detach closes the pool. Detach is idempotent.
func (g *Gateway) Detach() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.attached {
		return nil
	}
	g.attached = false
	if g.db != nil {
		if err := g.db.Close(); err != nil {
			return err
		}
		g.db = nil
	}
	return nil
}

// Dialect reports the SQL dialect of the attached backend.
func (g *Gateway) Dialect() types.Dialect {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dialect
}

// Begin acquires a connection from the pool and opens a transaction on it.
func (g *Gateway) Begin(ctx context.Context) (types.Conn, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if !g.attached {
		return nil, errors.WithKind(types.KindConnection, ErrDetached)
	}
	conn, err := g.db.Conn(ctx)
	if err != nil {
		return nil, errors.WithKind(types.KindConnection, errors.Wrap(err, "acquiring connection"))
	}
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		conn.Close()
		return nil, errors.WithKind(types.KindConnection, errors.Wrap(err, "beginning transaction"))
	}
	metrics.Connections.Inc()
	return &handle{conn: conn, tx: tx, log: g.log}, nil
}

// Read runs query on a fresh handle and commits-and-closes it.
func (g *Gateway) Read(ctx context.Context, query string) (*types.Result, error) {
	h, err := g.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer h.Close()

	res, err := h.Query(ctx, query)
	if err != nil {
		h.RollbackAndClose()
		return nil, err
	}
	if err := h.CommitAndClose(); err != nil {
		return nil, err
	}
	return res, nil
}

// Write runs stmts in one transaction on a fresh handle. The first failing
// statement rolls the transaction back.
func (g *Gateway) Write(ctx context.Context, stmts ...string) error {
	h, err := g.Begin(ctx)
	if err != nil {
		return err
	}
	defer h.Close()

	for _, stmt := range stmts {
		if err := h.Exec(ctx, stmt); err != nil {
			h.RollbackAndClose()
			return err
		}
	}
	return h.CommitAndClose()
}

// TableExists reports whether table is listed in the backend's table
// directory.
func (g *Gateway) TableExists(ctx context.Context, table string) (bool, error) {
	res, err := g.Read(ctx, sqlbuild.TableNames(g.Dialect()))
	if err != nil {
		return false, err
	}
	for _, name := range res.Strings(0) {
		if name == table || (g.Dialect() == types.DialectMySQL && strings.EqualFold(name, table)) {
			return true, nil
		}
	}
	return false, nil
}

// dataSourceName builds the driver DSN. For sqlite the database file lives in
// DataDir, which is created when missing.
func dataSourceName(config types.Config) (string, error) {
	if config.Backend != types.BackendSQLite {
		return config.DSN, nil
	}
	if config.DSN != "" {
		return config.DSN, nil
	}
	dataDir := config.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", err
	}
	return "file:" + filepath.Join(dataDir, types.SQLiteFileName) + "?" + sqlitePragmas, nil
}
