package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/trajstore/pkg/types"
)

// configFile holds the structure init writes to config.yaml.
type configFile struct {
	Backend   string `yaml:"backend"`
	DataDir   string `yaml:"data_dir,omitempty"`
	DSN       string `yaml:"dsn,omitempty"`
	LogLevel  string `yaml:"log_level,omitempty"`
	LogFormat string `yaml:"log_format,omitempty"`
}

func newInitCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize trajstore storage",
		Long:  "Write config.yaml with the effective settings, then create the catalog and data tables.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.storeConfig()
			if err != nil {
				return userErr("%v", err)
			}
			if err := writeConfig(filepath.Join(a.configDir, configFileExt), cfg); err != nil {
				return sysErr("write config: %v", err)
			}

			store, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.Gateway().EnsureDataTable(cmd.Context()); err != nil {
				return sysErr("create data table: %v", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), "trajstore initialized successfully")
			return nil
		},
	}
}

// writeConfig replaces config.yaml with cfg's backend settings.
func writeConfig(path string, cfg types.Config) error {
	data, err := yaml.Marshal(&configFile{
		Backend:   cfg.Backend,
		DataDir:   cfg.DataDir,
		DSN:       cfg.DSN,
		LogLevel:  cfg.LogLevel,
		LogFormat: cfg.LogFormat,
	})
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
