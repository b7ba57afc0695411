package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/paperqa/internal/ingest"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show ingestion directory counts and index size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func runStatus(ctx context.Context, out io.Writer) error {
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	counts, err := ingest.NewDirs(a.cfg.Dirs).Counts()
	if err != nil {
		return err
	}

	chunks := -1
	idx, err := a.index(ctx)
	if err == nil {
		chunks, err = idx.Count(ctx)
	}
	if err != nil {
		a.logger.Warn("index unavailable", zap.Error(err))
		chunks = -1
	}

	printStatus(out, counts, chunks)
	return nil
}

func printStatus(out io.Writer, c ingest.Counts, chunks int) {
	fmt.Fprintf(out, "pending:   %d\n", c.Pending)
	fmt.Fprintf(out, "processed: %d\n", c.Processed)
	fmt.Fprintf(out, "failed:    %d\n", c.Failed)
	if chunks < 0 {
		fmt.Fprintln(out, "chunks:    unknown")
		return
	}
	fmt.Fprintf(out, "chunks:    %d\n", chunks)
}
