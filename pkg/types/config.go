package types

import (
	"errors"
	"path/filepath"
)

// Config holds backend selection and parameters for trajstore.Open.
type Config struct {
	Backend      string `json:"backend" yaml:"backend"`
	DataDir      string `json:"data_dir" yaml:"data_dir"`
	DSN          string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
	MaxOpenConns int    `json:"max_open_conns,omitempty" yaml:"max_open_conns,omitempty"`
	LogLevel     string `json:"log_level,omitempty" yaml:"log_level,omitempty"`
	LogFormat    string `json:"log_format,omitempty" yaml:"log_format,omitempty"`
}

// Supported backend names.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendMySQL    = "mysql"
)

// SQLiteFileName is the database file created inside DataDir for the sqlite backend.
const SQLiteFileName = "trajstore.db"

// Config validation errors.
var (
	ErrBackendEmpty   = errors.New("backend must not be empty")
	ErrBackendUnknown = errors.New("unknown backend")
	ErrDSNRequired    = errors.New("dsn is required for network backends")
	ErrMaxConnsNeg    = errors.New("max open connections must not be negative")
)

// knownBackends maps the backends that Validate accepts to their SQL dialect.
var knownBackends = map[string]Dialect{
	BackendSQLite:   DialectSQLite,
	BackendPostgres: DialectPostgres,
	BackendMySQL:    DialectMySQL,
}

// Validate checks that the Config is well-formed. It returns a sentinel error
// from this package on failure.
func (c Config) Validate() error {
	if c.Backend == "" {
		return ErrBackendEmpty
	}
	if _, ok := knownBackends[c.Backend]; !ok {
		return ErrBackendUnknown
	}
	if c.Backend != BackendSQLite && c.DSN == "" {
		return ErrDSNRequired
	}
	if c.MaxOpenConns < 0 {
		return ErrMaxConnsNeg
	}
	return nil
}

// Dialect returns the SQL dialect of the configured backend. The zero
// Dialect is returned for unknown backends.
func (c Config) Dialect() Dialect {
	return knownBackends[c.Backend]
}

// Location identifies the database c points at: the DSN when one is set,
// otherwise the sqlite data directory.
func (c Config) Location() string {
	if c.Backend == BackendSQLite && c.DSN == "" {
		return c.Backend + ":" + filepath.Clean(c.DataDir)
	}
	return c.Backend + ":" + c.DSN
}
