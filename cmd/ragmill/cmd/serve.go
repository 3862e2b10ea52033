package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ragmill/ragmill/internal/config"
	"github.com/ragmill/ragmill/internal/mcp"
)

// newServeCmd creates the serve command.
func newServeCmd() *cobra.Command {
	var transport string
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server on stdio or SSE.

In stdio mode standard output carries protocol bytes only; all logging
goes to stderr. In SSE mode the server listens on the given address.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if transport == "" {
				transport = string(cfg.Transport)
			}
			if addr == "" {
				addr = cfg.SSEAddr
			}
			return runServe(cmd.Context(), cfg, transport, addr)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "", "Transport: stdio or sse (default from TRANSPORT)")
	cmd.Flags().StringVar(&addr, "addr", "", "SSE listen address (default from SSE_ADDR)")
	return cmd
}

// runServe wires the engine and blocks until the transport closes or a
// shutdown signal arrives.
func runServe(ctx context.Context, cfg *config.Config, transport, addr string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	eng, cleanup, err := buildEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	srv, err := mcp.NewServer(eng.mcpDeps())
	if err != nil {
		return err
	}
	return srv.Serve(ctx, transport, addr)
}
