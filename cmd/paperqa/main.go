// Paperqa answers questions over a local library of scientific PDFs.
//
// Usage:
//
//	# Run the HTTP API and the ingestion worker
//	paperqa serve --config paperqa.yaml
//
//	# Ingest everything in the pending directory once
//	paperqa ingest
//
//	# Ask a question from the command line
//	paperqa ask --section Methods "How was the model trained?"
//
//	# Serve MCP tools over stdio
//	paperqa mcp
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

// configPath is the optional YAML configuration file.
var configPath string

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "paperqa",
		Short: "Question answering over scientific PDFs",
		Long: `paperqa ingests scientific PDFs into a vector index and answers
questions from them, citing the source, page and section of every piece
of evidence.

Configuration is read from an optional YAML file and PAPERQA_ environment
variables, e.g. PAPERQA_SERVER_PORT=9000.`,
		Version:      fmt.Sprintf("%s (commit %s, built %s)", version, gitCommit, buildDate),
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file")

	root.AddCommand(
		newServeCmd(),
		newIngestCmd(),
		newAskCmd(),
		newStatusCmd(),
		newMCPCmd(),
	)
	return root
}
