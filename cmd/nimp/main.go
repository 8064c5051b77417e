package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"nimp/internal/config"
	"nimp/internal/logging"
)

var (
	// Global flags
	verbose    bool
	workspace  string
	configPath string
	timeout    time.Duration
	plain      bool

	// Logger
	logger *zap.Logger

	// Loaded in PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "nimp",
	Short: "nimp - smoke-call generator for Nim libraries",
	Long: `nimp produces a minimal call for every exported procedure of a Nim
library and compiles the result, commenting out calls the compiler rejects
until the file builds.

Unknown types are classified once (interactively, from seeds, by default or
with Gemini) and remembered in the knowledge base.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		ws, err := resolveWorkspace()
		if err != nil {
			return err
		}
		if err := logging.Initialize(ws); err != nil {
			logger.Warn("file logging disabled", zap.Error(err))
		}

		path := configPath
		if path == "" {
			path = filepath.Join(ws, config.DefaultFileName)
		}
		cfg, err = config.Load(path)
		if err != nil {
			return err
		}
		if !filepath.IsAbs(cfg.Knowledge.Path) {
			cfg.Knowledge.Path = filepath.Join(ws, cfg.Knowledge.Path)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config %s: %w", path, err)
		}
		logger.Debug("config loaded", zap.String("path", path), zap.String("nim", cfg.NimBinary()))
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: <workspace>/nimp.yaml)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Overall timeout (0 = none)")
	rootCmd.PersistentFlags().BoolVar(&plain, "plain", false, "Print reports as plain markdown")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(kbCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func resolveWorkspace() (string, error) {
	if workspace != "" {
		return filepath.Abs(workspace)
	}
	return os.Getwd()
}

// commandContext returns a context cancelled on SIGINT/SIGTERM and after the
// --timeout, if one is set.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	if timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}
