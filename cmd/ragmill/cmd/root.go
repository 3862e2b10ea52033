// Package cmd provides the CLI commands for ragmill.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ragmill/ragmill/internal/config"
	"github.com/ragmill/ragmill/internal/logging"
	"github.com/ragmill/ragmill/internal/profiling"
	"github.com/ragmill/ragmill/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()

	profileCPU   string
	profileMem   string
	profileTrace string
	cpuStop      func()
	traceStop    func()
)

// NewRootCmd creates the root command for the ragmill CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ragmill",
		Short: "Web crawling and RAG server for AI agents",
		Long: `Ragmill crawls documentation sites, chunks and embeds the content into
a local vector store, and serves retrieval plus an optional Neo4j code
graph over the Model Context Protocol.

Running 'ragmill' with no arguments starts the MCP server on the
transport named in the environment (stdio by default).`,
		Version: version.Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return cmd.Help()
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, string(cfg.Transport), cfg.SSEAddr)
		},
	}

	cmd.SetVersionTemplate("ragmill version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.ragmill/logs/")
	cmd.PersistentFlags().StringVar(&profileCPU, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileMem, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileTrace, "profile-trace", "", "Write execution trace to file")
	cmd.PersistentPreRunE = startDiagnostics
	cmd.PersistentPostRunE = stopDiagnostics

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newSourcesCmd())
	cmd.AddCommand(newParseCmd())
	cmd.AddCommand(newCheckCmd())
	cmd.AddCommand(newDoctorCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startDiagnostics installs the process logger and starts any requested
// profiles. Stdout stays clean for the MCP protocol; logs go to stderr and,
// in debug mode, to the log file.
func startDiagnostics(_ *cobra.Command, _ []string) error {
	cfg := logging.StderrOnly("info")
	if debugMode {
		cfg = logging.DebugConfig()
	}
	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	loggingCleanup = cleanup
	if debugMode {
		slog.Info("debug logging enabled", slog.String("log_file", logging.DefaultLogPath()))
	}

	if profileCPU != "" {
		if cpuStop, err = profiling.StartCPU(profileCPU); err != nil {
			return err
		}
	}
	if profileTrace != "" {
		if traceStop, err = profiling.StartTrace(profileTrace); err != nil {
			if cpuStop != nil {
				cpuStop()
				cpuStop = nil
			}
			return err
		}
	}
	return nil
}

func stopDiagnostics(_ *cobra.Command, _ []string) error {
	if cpuStop != nil {
		cpuStop()
		cpuStop = nil
	}
	if traceStop != nil {
		traceStop()
		traceStop = nil
	}
	if profileMem != "" {
		if err := profiling.WriteHeap(profileMem); err != nil {
			return err
		}
	}
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}
