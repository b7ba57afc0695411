// Package mcp exposes paper question answering and ingestion status as MCP
// tools over stdio.
package mcp

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/paperqa/internal/ingest"
	"github.com/fyrsmithlabs/paperqa/internal/pipeline"
)

// Asker answers questions.
type Asker interface {
	Ask(ctx context.Context, q pipeline.Query) (*pipeline.Result, error)
}

// StatusCounter reports ingestion directory counts.
type StatusCounter interface {
	Counts() (ingest.Counts, error)
}

// Server is an MCP server backed by the retrieval pipeline.
type Server struct {
	mcp     *mcp.Server
	asker   Asker
	status  StatusCounter
	metrics *Metrics
	logger  *zap.Logger
}

// Config configures the MCP server.
type Config struct {
	// Name is the server implementation name (default: "paperqa")
	Name string

	// Version is the server version (default: "1.0.0")
	Version string

	// Logger for structured logging
	Logger *zap.Logger

	// Metrics is optional; nil uses the global meter.
	Metrics *Metrics
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:    "paperqa",
		Version: "1.0.0",
		Logger:  zap.NewNop(),
	}
}

// NewServer creates a new MCP server.
func NewServer(cfg *Config, asker Asker, status StatusCounter) (*Server, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if asker == nil {
		return nil, fmt.Errorf("asker is required")
	}
	if status == nil {
		return nil, fmt.Errorf("status counter is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(nil, cfg.Logger)
	}

	s := &Server{
		mcp: mcp.NewServer(
			&mcp.Implementation{
				Name:    cfg.Name,
				Version: cfg.Version,
			},
			nil,
		),
		asker:   asker,
		status:  status,
		metrics: cfg.Metrics,
		logger:  cfg.Logger,
	}
	s.registerTools()
	return s, nil
}

// Run starts the MCP server on the stdio transport.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting MCP server on stdio transport")
	if err := s.mcp.Run(ctx, &mcp.StdioTransport{}); err != nil {
		return fmt.Errorf("server run failed: %w", err)
	}
	return nil
}

// Connect serves one session over transport, for in-process clients.
func (s *Server) Connect(ctx context.Context, transport mcp.Transport) (*mcp.ServerSession, error) {
	return s.mcp.Connect(ctx, transport, nil)
}
