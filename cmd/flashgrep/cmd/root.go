// Package cmd provides the flashgrep CLI's cobra command tree.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/flashgrep/flashgrep/internal/logging"
	"github.com/flashgrep/flashgrep/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd builds the root flashgrep command and its full subcommand
// tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "flashgrep",
		Short:         "Local, incremental code search for autonomous coding agents",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("flashgrep version {{.Version}}\n")

	root.PersistentFlags().BoolVar(&debugMode, "debug", false, "Log at debug level and also to stderr (the log file is ~/.flashgrep/logs/flashgrep.log; nothing is written under <repo>/.flashgrep/logs/)")
	root.PersistentPreRunE = startLogging
	root.PersistentPostRunE = stopLogging

	root.AddCommand(newIndexCmd())
	root.AddCommand(newStartCmd())
	root.AddCommand(newStopCmd())
	root.AddCommand(newWatchersCmd())
	root.AddCommand(newQueryCmd())
	root.AddCommand(newFilesCmd())
	root.AddCommand(newSymbolCmd())
	root.AddCommand(newSliceCmd())
	root.AddCommand(newMCPCmd())
	root.AddCommand(newMCPStdioCmd())
	root.AddCommand(newStatsCmd())
	root.AddCommand(newClearCmd())
	root.AddCommand(newLogsCmd())

	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func startLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}
	cfg.WriteToStderr = debugMode

	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		// Logging is ambient, not load-bearing: fall back to the default
		// logger rather than failing the command.
		return nil
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}
