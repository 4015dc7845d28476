package gateway

import (
	"context"
	"database/sql"
	"embed"
	stderrors "errors"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/mesh-intelligence/trajstore/internal/errors"
	"github.com/mesh-intelligence/trajstore/pkg/types"
)

//go:embed migrations
var migrationsFS embed.FS

// EnsureDataTable applies the data-table migrations for the attached
// dialect. Migrations run on a dedicated pool so that closing the migrate
// instance leaves the gateway's pool open. After the first success in this
// gateway's lifetime the call is a no-op.
func (g *Gateway) EnsureDataTable(ctx context.Context) error {
	g.migrateOnce.Lock()
	defer g.migrateOnce.Unlock()
	if g.migrated {
		return nil
	}

	g.mu.RLock()
	attached, driver, dsn, dialect := g.attached, g.driver, g.dsn, g.dialect
	g.mu.RUnlock()
	if !attached {
		return errors.WithKind(types.KindConnection, ErrDetached)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return errors.WithKind(types.KindConnection, err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return errors.WithKind(types.KindConnection, err)
	}

	m, err := newMigrate(db, dialect)
	if err != nil {
		db.Close()
		return errors.WithKind(types.KindQuery, errors.Wrap(err, "preparing migrations"))
	}
	defer m.Close()

	if err := m.Up(); err != nil && !stderrors.Is(err, migrate.ErrNoChange) {
		return errors.WithKind(types.KindQuery, errors.Wrap(err, "migrating data table"))
	}
	g.migrated = true
	g.log.Info("data table ready", "table", types.DataTable)
	return nil
}

// MigrationVersion returns the applied migration version and dirty state.
// Returns 0, false, nil when nothing has been applied yet.
func (g *Gateway) MigrationVersion(ctx context.Context) (uint, bool, error) {
	g.mu.RLock()
	driver, dsn, dialect := g.driver, g.dsn, g.dialect
	g.mu.RUnlock()

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return 0, false, errors.WithKind(types.KindConnection, err)
	}
	m, err := newMigrate(db, dialect)
	if err != nil {
		db.Close()
		return 0, false, errors.WithKind(types.KindQuery, err)
	}
	defer m.Close()

	version, dirty, err := m.Version()
	if stderrors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// newMigrate builds a migrate instance over db. Closing the instance closes db.
func newMigrate(db *sql.DB, dialect types.Dialect) (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations/"+string(dialect))
	if err != nil {
		return nil, err
	}
	var driver database.Driver
	switch dialect {
	case types.DialectPostgres:
		driver, err = migratepostgres.WithInstance(db, &migratepostgres.Config{})
	case types.DialectMySQL:
		driver, err = migratemysql.WithInstance(db, &migratemysql.Config{})
	default:
		driver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
	}
	if err != nil {
		return nil, err
	}
	return migrate.NewWithInstance("iofs", src, string(dialect), driver)
}
