package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/paperqa/internal/config"
	"github.com/fyrsmithlabs/paperqa/internal/pipeline"
)

func newAskCmd() *cobra.Command {
	var (
		section  string
		asJSON   bool
		showDocs bool
	)
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a question from the indexed papers",
		Long: `Retrieve evidence for a question, rerank it and print the answer.

Examples:
  paperqa ask "What sample size was used?"
  paperqa ask --section Methods --evidence "How was the model trained?"
  paperqa ask --json "Which datasets were used?" | jq .answer`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := pipeline.Query{Question: strings.Join(args, " "), Section: section}
			return runAsk(cmd.Context(), cmd.OutOrStdout(), q, asJSON, showDocs)
		},
	}
	cmd.Flags().StringVarP(&section, "section", "s", config.AllSections, "restrict evidence to one section")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full result as JSON")
	cmd.Flags().BoolVarP(&showDocs, "evidence", "e", false, "print the evidence after the answer")
	return cmd
}

func runAsk(ctx context.Context, out io.Writer, q pipeline.Query, asJSON, showDocs bool) error {
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

	res, err := pipe.Ask(ctx, q)
	if err != nil {
		return err
	}
	return printAnswer(out, res, asJSON, showDocs)
}

func printAnswer(out io.Writer, res *pipeline.Result, asJSON, showDocs bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Fprintln(out, res.Answer)
	if len(res.ContextDocs) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "Sources:")
	for i, d := range res.ContextDocs {
		fmt.Fprintf(out, "  [%d] %s, page %d, %s\n", i+1, d.Metadata.Source, d.Metadata.Page, d.Metadata.Section)
	}
	if showDocs {
		fmt.Fprintln(out)
		fmt.Fprintln(out, res.FormattedContext)
	}
	return nil
}
