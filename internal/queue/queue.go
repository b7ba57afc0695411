// Package queue carries ingestion jobs from producers (the pending-directory
// watcher, the CLI) to workers.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/paperqa/internal/config"
)

// ErrClosed is returned by operations on a closed queue.
var ErrClosed = errors.New("queue closed")

// Job asks a worker to ingest one pending PDF.
type Job struct {
	ID         string    `json:"id"`
	Path       string    `json:"path"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// NewJob creates a job for path.
func NewJob(path string) Job {
	return Job{ID: uuid.New().String(), Path: path, EnqueuedAt: time.Now().UTC()}
}

// Handler processes one job. Errors are logged by the queue; the job is
// not redelivered.
type Handler func(ctx context.Context, job Job) error

// Queue delivers each published job to exactly one consumer.
type Queue interface {
	Publish(ctx context.Context, job Job) error

	// Consume calls handler for every job until ctx is cancelled or the
	// queue is closed.
	Consume(ctx context.Context, handler Handler) error

	Close() error
}

// New creates the queue selected by cfg.Backend.
func New(cfg config.QueueConfig, logger *zap.Logger) (Queue, error) {
	switch cfg.Backend {
	case "", "local":
		return NewLocalQueue(cfg.Buffer, logger), nil
	case "nats":
		return NewNATSQueue(NATSConfig{
			URL:     cfg.URL,
			Subject: cfg.Subject,
			Group:   cfg.Group,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported queue backend %q", cfg.Backend)
	}
}
