// Package cli implements the trajstore command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/trajstore/internal/errsink"
	"github.com/mesh-intelligence/trajstore/internal/logging"
	"github.com/mesh-intelligence/trajstore/internal/paths"
	"github.com/mesh-intelligence/trajstore/pkg/trajstore"
	"github.com/mesh-intelligence/trajstore/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// exitError carries the process exit code of a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func userErr(format string, args ...any) error {
	return &exitError{code: exitUserError, err: fmt.Errorf(format, args...)}
}

func sysErr(format string, args ...any) error {
	return &exitError{code: exitSysError, err: fmt.Errorf(format, args...)}
}

// exitCode maps a command error to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitUserError
}

// app holds the global flag values and the loaded configuration of one
// command invocation.
type app struct {
	configDir string
	dataDir   string
	backend   string
	dsn       string
	logLevel  string
	jsonMode  bool
	metrics   bool

	v *viper.Viper
}

// NewRootCmd creates the top-level "trajstore" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "trajstore",
		Short:         "A trajectory dataset store",
		Long:          "Trajstore keeps named datasets of trajectory points in a SQL backend\nand answers filtered queries over the datasets you select.",
		Version:       trajstore.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return a.loadConfig(cmd.ErrOrStderr())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if !a.metrics {
				return nil
			}
			return printMetrics(cmd.ErrOrStderr())
		},
	}

	root.PersistentFlags().StringVar(&a.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	root.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "data directory for the sqlite backend (default: $(CWD)/"+paths.DefaultDataDirName+")")
	root.PersistentFlags().StringVar(&a.backend, "backend", "", "backend: sqlite, postgres or mysql (default from config.yaml)")
	root.PersistentFlags().StringVar(&a.dsn, "dsn", "", "connection string for postgres and mysql")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug, info, warn or error")
	root.PersistentFlags().BoolVar(&a.jsonMode, "json", false, "output as JSON")
	root.PersistentFlags().BoolVar(&a.metrics, "metrics", false, "print collector values to stderr after a successful command")

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd(a))
	root.AddCommand(newImportCmd(a))
	root.AddCommand(newListCmd(a))
	root.AddCommand(newCheckCmd(a))
	root.AddCommand(newDeleteCmd(a))
	root.AddCommand(newResizeCmd(a))
	root.AddCommand(newQueryCmd(a))
	root.AddCommand(newDistinctCmd(a))
	root.AddCommand(newTrajectoriesCmd(a))
	root.AddCommand(newExportCmd(a))

	return root
}

// Execute runs the root command and exits with the appropriate code.
func Execute() {
	root := NewRootCmd()
	err := root.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, "trajstore:", err)
	}
	os.Exit(exitCode(err))
}

// open attaches the configured store. The caller must Close it.
func (a *app) open(ctx context.Context) (*trajstore.Store, error) {
	cfg, err := a.storeConfig()
	if err != nil {
		return nil, userErr("%v", err)
	}
	store, err := trajstore.Open(ctx, cfg, trajstore.Options{})
	if err != nil {
		if errors.Is(err, types.ErrBackendUnknown) || errors.Is(err, types.ErrDSNRequired) {
			return nil, userErr("open store: %v", err)
		}
		return nil, sysErr("open store: %v", err)
	}
	return store, nil
}

// failure drains the store's sink into a command error. Connection
// failures are system errors; everything else is the caller's.
func failure(store *trajstore.Store, what string) error {
	records := store.Drain()
	code := exitUserError
	for _, r := range records {
		if r.Kind == types.KindConnection {
			code = exitSysError
		}
	}
	if len(records) == 0 {
		return &exitError{code: code, err: errors.New(what)}
	}
	return &exitError{code: code, err: fmt.Errorf("%s: %w", what, errsink.Err(records))}
}

// warnRecords prints records left in the sink after a successful operation.
func warnRecords(w io.Writer, store *trajstore.Store) {
	for _, r := range store.Drain() {
		fmt.Fprintln(w, "warning:", r)
	}
}

func (a *app) initLogging(w io.Writer) {
	level := a.logLevel
	if level == "" {
		level = a.v.GetString(cfgKeyLogLevel)
	}
	logging.Init(logging.Config{Level: level, Format: a.v.GetString(cfgKeyLogFormat), Output: w})
}
