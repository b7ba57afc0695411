package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/paperqa/internal/pipeline"
)

type askPapersInput struct {
	Question string `json:"question" jsonschema:"The question to answer from the indexed papers"`
	Section  string `json:"section,omitempty" jsonschema:"Restrict evidence to one section label (Abstract, Özet, Giriş, Introduction, Methods, Methodology, Yöntemler, Results, Bulgular, Sonuçlar, Discussion, Tartışma, Conclusion, Unknown) or all (default)"`
}

type evidence struct {
	Text          string `json:"text" jsonschema:"Chunk text"`
	Source        string `json:"source" jsonschema:"Source PDF file name"`
	Page          int    `json:"page" jsonschema:"1-based page number"`
	Section       string `json:"section" jsonschema:"Section the page belongs to"`
	ContainsImage bool   `json:"contains_image" jsonschema:"Whether the page has an embedded image"`
	ContainsTable bool   `json:"contains_table" jsonschema:"Whether the page looks like it holds a table"`
}

type askPapersOutput struct {
	Answer           string     `json:"answer" jsonschema:"Extractive answer or the not-found sentinel"`
	ContextDocs      []evidence `json:"context_docs" jsonschema:"Reranked evidence chunks"`
	FormattedContext string     `json:"formatted_context" jsonschema:"Evidence as given to the answer model"`
}

type ingestStatusInput struct{}

type ingestStatusOutput struct {
	Pending   int `json:"pending" jsonschema:"PDFs waiting to be processed"`
	Processed int `json:"processed" jsonschema:"PDFs processed successfully"`
	Failed    int `json:"failed" jsonschema:"PDFs quarantined after a terminal failure"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ask_papers",
		Description: "Answer a question from the indexed scientific papers, optionally restricted to one section",
	}, s.askPapers)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ingest_status",
		Description: "Report how many PDFs are pending, processed and failed",
	}, s.ingestStatus)
}

func (s *Server) askPapers(ctx context.Context, _ *mcp.CallToolRequest, args askPapersInput) (*mcp.CallToolResult, askPapersOutput, error) {
	done := s.metrics.track(ctx, "ask_papers")
	res, err := s.asker.Ask(ctx, pipeline.Query{Question: args.Question, Section: args.Section})
	done(err)
	if err != nil {
		s.logger.Warn("ask_papers failed", zap.Error(err))
		return nil, askPapersOutput{}, fmt.Errorf("ask failed: %w", err)
	}

	out := askPapersOutput{
		Answer:           res.Answer,
		ContextDocs:      make([]evidence, 0, len(res.ContextDocs)),
		FormattedContext: res.FormattedContext,
	}
	for _, d := range res.ContextDocs {
		out.ContextDocs = append(out.ContextDocs, evidence{
			Text:          d.Text,
			Source:        d.Metadata.Source,
			Page:          d.Metadata.Page,
			Section:       d.Metadata.Section,
			ContainsImage: d.Metadata.ContainsImage,
			ContainsTable: d.Metadata.ContainsTable,
		})
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: out.Answer},
		},
	}, out, nil
}

func (s *Server) ingestStatus(ctx context.Context, _ *mcp.CallToolRequest, _ ingestStatusInput) (*mcp.CallToolResult, ingestStatusOutput, error) {
	done := s.metrics.track(ctx, "ingest_status")
	counts, err := s.status.Counts()
	done(err)
	if err != nil {
		return nil, ingestStatusOutput{}, fmt.Errorf("reading ingestion directories: %w", err)
	}

	out := ingestStatusOutput{Pending: counts.Pending, Processed: counts.Processed, Failed: counts.Failed}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: fmt.Sprintf("pending=%d processed=%d failed=%d", out.Pending, out.Processed, out.Failed)},
		},
	}, out, nil
}
