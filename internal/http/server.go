// Package http serves the question-answering API, ingestion status and
// Prometheus metrics.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/paperqa/internal/ingest"
	"github.com/fyrsmithlabs/paperqa/internal/logging"
	"github.com/fyrsmithlabs/paperqa/internal/pipeline"
)

// maxUploadBytes bounds a single uploaded PDF.
const maxUploadBytes = 100 << 20

// Asker answers questions.
type Asker interface {
	Ask(ctx context.Context, q pipeline.Query) (*pipeline.Result, error)
}

// ChunkCounter reports how many chunks are indexed.
type ChunkCounter interface {
	Count(ctx context.Context) (int, error)
}

// Deps are the services behind the API.
type Deps struct {
	Asker Asker
	Dirs  ingest.Dirs
	// Index is optional; without it status reports chunks as -1.
	Index ChunkCounter
	// Metrics is optional; nil uses the global meter.
	Metrics *HTTPMetrics
}

// Server provides HTTP endpoints for paperqa.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger *zap.Logger
	config *Config
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// NewServer creates a new HTTP server.
func NewServer(deps Deps, logger *zap.Logger, cfg *Config) (*Server, error) {
	if deps.Asker == nil {
		return nil, fmt.Errorf("asker cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg == nil {
		cfg = &Config{
			Host: "127.0.0.1",
			Port: 8000,
		}
	}
	if deps.Metrics == nil {
		deps.Metrics = NewHTTPMetrics(nil, logger)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(accessLog(logger))
	e.Use(deps.Metrics.MetricsMiddleware())

	s := &Server{
		echo:   e,
		deps:   deps,
		logger: logger,
		config: cfg,
	}
	s.registerRoutes()
	return s, nil
}

// accessLog logs each request and carries the request ID into the
// request context.
func accessLog(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			req := c.Request()
			c.SetRequest(req.WithContext(logging.WithRequestID(req.Context(), rid)))

			err := next(c)

			logger.Info("http request",
				zap.String("method", req.Method),
				zap.String("uri", req.RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", rid),
			)
			return err
		}
	}
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	v1 := s.echo.Group("/api/v1")
	v1.POST("/ask", s.handleAsk)
	v1.GET("/documents/status", s.handleDocumentStatus)
	v1.POST("/documents", s.handleUpload)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleAsk(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid ask request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
	}

	ctx := c.Request().Context()
	res, err := s.deps.Asker.Ask(ctx, pipeline.Query{Question: req.Question, Section: req.Section})
	if err != nil {
		return s.askError(c, err)
	}

	docs := make([]ContextDoc, 0, len(res.ContextDocs))
	for _, d := range res.ContextDocs {
		docs = append(docs, ContextDoc{Text: d.Text, Metadata: d.Metadata})
	}
	return c.JSON(http.StatusOK, AskResponse{
		Answer:           res.Answer,
		ContextDocs:      docs,
		FormattedContext: res.FormattedContext,
	})
}

func (s *Server) askError(c echo.Context, err error) error {
	var stageErr *pipeline.StageError
	switch {
	case errors.Is(err, pipeline.ErrEmptyQuestion):
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: "request cancelled"})
	case errors.As(err, &stageErr):
		s.logger.Error("query failed",
			zap.String("stage", string(stageErr.Stage)),
			zap.String("request_id", logging.RequestIDFromContext(c.Request().Context())),
			zap.Error(stageErr.Err),
		)
		return c.JSON(http.StatusBadGateway, ErrorResponse{
			Error: stageErr.Err.Error(),
			Stage: string(stageErr.Stage),
		})
	default:
		s.logger.Error("query failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func (s *Server) handleDocumentStatus(c echo.Context) error {
	counts, err := s.deps.Dirs.Counts()
	if err != nil {
		s.logger.Error("failed to count documents", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to read ingestion directories"})
	}

	chunks := -1
	if s.deps.Index != nil {
		if n, err := s.deps.Index.Count(c.Request().Context()); err == nil {
			chunks = n
		} else {
			s.logger.Warn("failed to count indexed chunks", zap.Error(err))
		}
	}

	return c.JSON(http.StatusOK, DocumentStatusResponse{
		Pending:   counts.Pending,
		Processed: counts.Processed,
		Failed:    counts.Failed,
		Chunks:    chunks,
	})
}

// handleUpload stores a PDF in the pending directory, where the watcher
// picks it up.
func (s *Server) handleUpload(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "multipart field \"file\" is required"})
	}
	name := filepath.Base(fh.Filename)
	if !ingest.IsPDF(name) || name == "." || name == string(filepath.Separator) {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "only .pdf files are accepted"})
	}
	if fh.Size > maxUploadBytes {
		return c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{Error: "file too large"})
	}

	src, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unreadable upload"})
	}
	defer src.Close()

	if err := writePending(s.deps.Dirs.Pending, name, src); err != nil {
		s.logger.Error("failed to store upload", zap.String("file", name), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "failed to store upload"})
	}
	s.logger.Info("document uploaded", zap.String("file", name), zap.Int64("bytes", fh.Size))
	return c.JSON(http.StatusAccepted, UploadResponse{File: name, Status: "pending"})
}

// writePending writes to a hidden temp file and renames it into place so
// the watcher only sees complete files.
func writePending(dir, name string, src io.Reader) error {
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, io.LimitReader(src, maxUploadBytes)); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(dir, name))
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
