// Command zarrctl inspects and edits zarr hierarchies held in a directory or
// sqlite database.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	zarr "github.com/qri-io/boundless-zarr"
)

// settings are read from the environment and overridden by flags
type settings struct {
	Store    string `env:"ZARR_STORE" envDefault:"."`
	LogLevel string `env:"ZARR_LOG_LEVEL" envDefault:"info"`
	SyncDir  string `env:"ZARR_SYNC_DIR"`
}

var (
	// Global flags
	verbose  bool
	storeArg string
	syncDir  string

	cfg    settings
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "zarrctl",
	Short: "Inspect and edit zarr v2 hierarchies",
	Long: `zarrctl works on a zarr v2 hierarchy kept in a directory or, with a
"sqlite:" prefix, in a sqlite database:

  zarrctl --store ./data.zarr tree
  zarrctl --store sqlite:data.db mkgroup -p a/b/c

Boundless arrays are addressed relative to their center with --boundless,
so negative coordinates reach "behind" the origin. Put "--" before a
selection that starts with a negative number.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := env.Parse(&cfg); err != nil {
			return fmt.Errorf("parse env: %w", err)
		}
		if !cmd.Flags().Changed("store") {
			storeArg = cfg.Store
		}
		if !cmd.Flags().Changed("sync-dir") {
			syncDir = cfg.SyncDir
		}

		config := zap.NewProductionConfig()
		level, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
		}
		if verbose {
			level = zapcore.DebugLevel
		}
		config.Level = zap.NewAtomicLevelAt(level)
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&storeArg, "store", "s", ".", "Store directory, or sqlite:<file> (env ZARR_STORE)")
	rootCmd.PersistentFlags().StringVar(&syncDir, "sync-dir", "", "Directory for chunk lock files shared between processes (env ZARR_SYNC_DIR)")

	rootCmd.AddCommand(
		treeCmd,
		mkgroupCmd,
		createCmd,
		infoCmd,
		getCmd,
		setCmd,
		consolidateCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// openStore opens the store named by arg: "sqlite:<file>" or a directory
func openStore(arg string) (zarr.Store, func() error, error) {
	if strings.HasPrefix(arg, "sqlite:") {
		s, err := zarr.NewSQLiteStore(strings.TrimPrefix(arg, "sqlite:"))
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}
	s, err := zarr.NewLocalStore(arg)
	if err != nil {
		return nil, nil, err
	}
	return s, func() error { return nil }, nil
}

func withStore(fn func(store zarr.Store) error) error {
	store, closeStore, err := openStore(storeArg)
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(store)
}

// withRoot runs fn with the root group of the configured store, creating it
// when missing
func withRoot(fn func(root *zarr.Group) error) error {
	return withStore(func(store zarr.Store) error {
		root, err := zarr.OpenGroupStore(store, "", zarr.ModeReadWriteCreate, zarr.WithLogger(logger))
		if err != nil {
			return err
		}
		return fn(root)
	})
}

// arrayOptions adds the configured synchronizer to opts
func arrayOptions(opts ...zarr.Option) ([]zarr.Option, error) {
	if syncDir == "" {
		return opts, nil
	}
	sync, err := zarr.NewProcessSynchronizer(syncDir)
	if err != nil {
		return nil, err
	}
	return append(opts, zarr.WithSynchronizer(sync)), nil
}
