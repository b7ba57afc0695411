package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/paperqa/internal/ingest"
	"github.com/fyrsmithlabs/paperqa/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve paperqa tools to an MCP client over stdio",
		Long: `Run an MCP server on stdin/stdout exposing the ask_papers and
ingest_status tools. Logs go to stderr.

Example client configuration:
  {"mcpServers": {"paperqa": {"command": "paperqa", "args": ["mcp"]}}}`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMCP(cmd.Context())
		},
	}
}

func runMCP(ctx context.Context) error {
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	idx, err := a.index(ctx)
	if err != nil {
		return err
	}
	pipe, err := a.pipeline(ctx, idx)
	if err != nil {
		return err
	}

	srv, err := mcp.NewServer(&mcp.Config{
		Name:    "paperqa",
		Version: version,
		Logger:  a.logger,
	}, pipe, ingest.NewDirs(a.cfg.Dirs))
	if err != nil {
		return fmt.Errorf("failed to create mcp server: %w", err)
	}

	fmt.Fprintf(os.Stderr, "paperqa mcp server started (%s)\n", version)
	return srv.Run(ctx)
}
