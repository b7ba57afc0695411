package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/paperqa/internal/ingest"
)

func newIngestCmd() *cobra.Command {
	var watch bool
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Ingest PDFs from the pending directory",
		Long: `Process every PDF in the pending directory and print one line per
document. Successful documents are copied to the processed directory;
documents that cannot be indexed are moved to the failed directory.

With --watch the command keeps running as an ingestion worker, consuming
jobs from the configured queue until interrupted.

Examples:
  # One pass over data/pending
  paperqa ingest

  # Standalone worker sharing a NATS queue group with other workers
  PAPERQA_QUEUE_BACKEND=nats paperqa ingest --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIngest(cmd.Context(), cmd.OutOrStdout(), watch)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep consuming new documents until interrupted")
	return cmd
}

func runIngest(ctx context.Context, out io.Writer, watch bool) error {
	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	idx, err := a.index(ctx)
	if err != nil {
		return err
	}
	proc, err := a.processor(idx)
	if err != nil {
		return err
	}

	if watch {
		g, gctx := errgroup.WithContext(ctx)
		if err := startWorker(gctx, g, a, proc); err != nil {
			return err
		}
		return g.Wait()
	}

	paths, err := proc.Dirs().PendingPDFs()
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		fmt.Fprintln(out, "no pending documents")
		return nil
	}

	pool := ingest.NewPool(proc, a.cfg.Ingest.Workers, a.logger)
	results := pool.Run(ctx, paths)
	printResults(out, results)

	if n := countFailed(results); n > 0 {
		return fmt.Errorf("%d of %d documents were not ingested", n, len(results))
	}
	return nil
}

func printResults(out io.Writer, results []ingest.Result) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DOCUMENT\tOUTCOME\tREASON\tLANG\tPAGES\tCHUNKS\tADDED\tDURATION")
	for _, r := range results {
		reason := r.Reason
		if reason == "" {
			reason = "-"
		}
		if r.Degraded {
			reason += " (no ocr)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.Source, r.Outcome, reason, r.Language, r.Pages, r.Chunks, r.ChunksAdded, r.Duration.Round(time.Millisecond))
	}
	_ = w.Flush()
}

func countFailed(results []ingest.Result) int {
	n := 0
	for _, r := range results {
		if r.Outcome != ingest.OutcomeSucceeded {
			n++
		}
	}
	return n
}
