// Package paths resolves the trajstore configuration and data directories.
//
// Each directory follows a precedence chain. The configuration directory is
// --config-dir, then TRAJSTORE_CONFIG_DIR, then the platform default. The
// data directory is --data-dir, then data_dir from config.yaml, then
// TRAJSTORE_DATA_DIR, then .trajstore-db under the working directory.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName is the directory name used under platform config and data roots.
const AppName = "trajstore"

// DefaultDataDirName is the working-directory-relative data directory.
const DefaultDataDirName = ".trajstore-db"

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "TRAJSTORE_CONFIG_DIR"
	EnvDataDir   = "TRAJSTORE_DATA_DIR"
)

// platformDir holds platform-detection functions that tests may override.
var platformDir = struct {
	homeDir       func() (string, error)
	userConfigDir func() (string, error)
}{
	homeDir:       os.UserHomeDir,
	userConfigDir: os.UserConfigDir,
}

// xdgDir returns $xdgEnv/trajstore, or ~/<fallback...>/trajstore when the
// variable is unset.
func xdgDir(xdgEnv string, fallback ...string) (string, error) {
	if xdg := os.Getenv(xdgEnv); xdg != "" {
		return filepath.Join(xdg, AppName), nil
	}
	home, err := platformDir.homeDir()
	if err != nil {
		return "", err
	}
	parts := append([]string{home}, fallback...)
	return filepath.Join(append(parts, AppName)...), nil
}

func userConfigDir() (string, error) {
	dir, err := platformDir.userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName), nil
}

// DefaultConfigDir returns the platform configuration directory.
//
// Linux:   $XDG_CONFIG_HOME/trajstore (fallback ~/.config/trajstore)
// macOS:   ~/Library/Application Support/trajstore
// Windows: %APPDATA%/trajstore
func DefaultConfigDir() (string, error) {
	if runtime.GOOS == "linux" {
		return xdgDir("XDG_CONFIG_HOME", ".config")
	}
	return userConfigDir()
}

// DefaultDataDir returns the platform data directory.
//
// Linux:   $XDG_DATA_HOME/trajstore (fallback ~/.local/share/trajstore)
// macOS and Windows: same as DefaultConfigDir
func DefaultDataDir() (string, error) {
	if runtime.GOOS == "linux" {
		return xdgDir("XDG_DATA_HOME", ".local", "share")
	}
	return userConfigDir()
}

// ResolveConfigDir returns the configuration directory as an absolute path.
func ResolveConfigDir(flag string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if env := os.Getenv(EnvConfigDir); env != "" {
		return filepath.Abs(env)
	}
	return DefaultConfigDir()
}

// ResolveDataDir returns the data directory as an absolute path.
// configValue is the data_dir entry of config.yaml, if any.
func ResolveDataDir(flag, configValue string) (string, error) {
	for _, dir := range []string{flag, configValue, os.Getenv(EnvDataDir)} {
		if dir != "" {
			return filepath.Abs(dir)
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, DefaultDataDirName), nil
}
