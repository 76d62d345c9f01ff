// Package cmd provides the CLI commands for irisd.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/amanmcp/internal/logging"
	"github.com/Aman-CERP/amanmcp/pkg/version"
)

// Debug logging flag.
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the irisd CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "irisd",
		Short: "Embeddable hybrid search engine: lexical + dense vector, fused",
		Long: `irisd is a hybrid search engine combining BM25 lexical search with
dense vector nearest-neighbor search, fused via RRF or weighted sum.

Run 'irisd serve' to expose the engine as an MCP tool surface, or
'irisd repl' for an interactive query shell.`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			return cmd.Help()
		},
	}

	cmd.SetVersionTemplate("irisd version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&storageRoot, "storage", "", "storage root directory (default: config/XDG default)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging to the irisd log file")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newReplCmd())
	cmd.AddCommand(newStatsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// storageRoot overrides internal/config's default storage root when set.
var storageRoot string

func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		slog.Info("debug logging stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
