package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/agentmem/agentmem/internal/engine"
	"github.com/agentmem/agentmem/internal/errs"
	"github.com/agentmem/agentmem/internal/logging"
	"github.com/agentmem/agentmem/pkg/config"
)

// cmdContext is the background context used by CLI commands that call
// context-aware engine operations; the CLI has no cancellation source of
// its own beyond process exit.
func cmdContext() context.Context {
	return context.Background()
}

// Version is set during build.
var Version = "0.1.0"

var (
	cfgPath  string
	logLevel string
	quiet    bool
)

var rootCmd = &cobra.Command{
	Use:     "agentmem",
	Short:   "Persistent agent memory engine",
	Version: Version,
	Long: `agentmem is a persistent memory engine for long-running agent sessions:
it journals turns and tool activity, distills them into durable memory
objects on checkpoint, and serves them back through hybrid search and
progressive disclosure.`,
}

// Execute runs the root command, exiting with the failing command's mapped
// exit code (0/1/2/3 per internal/errs.Kind.ExitCode).
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")
}

func exitCodeFor(err error) int {
	return errs.KindOf(err).ExitCode()
}

// openEngine loads configuration and opens the engine, used by every
// command that touches the memory root.
func openEngine() (*engine.Engine, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	logging.Init(logging.Config{
		Level:  logLevel,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	eng, err := engine.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return eng, cfg, nil
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(exitCodeFor(err))
}

func printUnlessQuiet(format string, args ...interface{}) {
	if quiet {
		return
	}
	fmt.Printf(format, args...)
}
