package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/mesh-intelligence/trajstore/internal/paths"
	"github.com/mesh-intelligence/trajstore/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	// Config keys.
	cfgKeyBackend      = "backend"
	cfgKeyDataDir      = "data_dir"
	cfgKeyDSN          = "dsn"
	cfgKeyMaxOpenConns = "max_open_conns"
	cfgKeyLogLevel     = "log_level"
	cfgKeyLogFormat    = "log_format"

	defaultBackend  = types.BackendSQLite
	defaultLogLevel = "warn"

	// envPrefix makes every key settable as TRAJSTORE_<KEY>.
	envPrefix = "TRAJSTORE"
)

// defaultConfigYAML is written to config.yaml on first run.
const defaultConfigYAML = `# trajstore configuration

# Backend: sqlite, postgres or mysql
backend: sqlite

# Data directory for the sqlite backend (optional; overridable by --data-dir)
# data_dir:

# Connection string for postgres and mysql
# dsn:

log_level: warn
log_format: text
`

// loadConfig reads config.yaml from the resolved config directory, creating
// the directory and a default file on first run. Environment variables
// override file values.
func (a *app) loadConfig(logOut io.Writer) error {
	configDir, err := paths.ResolveConfigDir(a.configDir)
	if err != nil {
		return sysErr("resolve config dir: %v", err)
	}
	a.configDir = configDir

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return sysErr("ensure config dir: %v", err)
	}
	if err := ensureDefaultConfigFile(configDir); err != nil {
		return sysErr("ensure default config: %v", err)
	}

	v := viper.New()
	v.SetDefault(cfgKeyBackend, defaultBackend)
	v.SetDefault(cfgKeyLogLevel, defaultLogLevel)
	v.SetDefault(cfgKeyLogFormat, "text")
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)
	v.SetEnvPrefix(envPrefix)
	for _, key := range []string{cfgKeyBackend, cfgKeyDSN, cfgKeyMaxOpenConns, cfgKeyLogLevel, cfgKeyLogFormat} {
		if err := v.BindEnv(key); err != nil {
			return sysErr("bind %s: %v", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return userErr("read config: %v", err)
		}
	}
	a.v = v
	a.initLogging(logOut)
	return nil
}

// ensureDefaultConfigFile creates a default config.yaml if the file does not
// exist in the config directory.
func ensureDefaultConfigFile(configDir string) error {
	path := filepath.Join(configDir, configFileExt)

	_, err := os.Stat(path)
	if err == nil {
		return nil
	}
	if !os.IsNotExist(err) {
		return fmt.Errorf("stat config file: %w", err)
	}
	return os.WriteFile(path, []byte(defaultConfigYAML), 0o644)
}

// storeConfig merges flags over the loaded configuration. Flags win.
func (a *app) storeConfig() (types.Config, error) {
	cfg := types.Config{
		Backend:      a.v.GetString(cfgKeyBackend),
		DSN:          a.v.GetString(cfgKeyDSN),
		MaxOpenConns: a.v.GetInt(cfgKeyMaxOpenConns),
		LogLevel:     a.v.GetString(cfgKeyLogLevel),
		LogFormat:    a.v.GetString(cfgKeyLogFormat),
	}
	if a.backend != "" {
		cfg.Backend = a.backend
	}
	if a.dsn != "" {
		cfg.DSN = a.dsn
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	if cfg.Backend == types.BackendSQLite {
		dir, err := paths.ResolveDataDir(a.dataDir, a.v.GetString(cfgKeyDataDir))
		if err != nil {
			return types.Config{}, fmt.Errorf("resolve data dir: %w", err)
		}
		cfg.DataDir = dir
	}
	return cfg, cfg.Validate()
}
