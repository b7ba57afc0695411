package queue

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// DefaultBuffer is the LocalQueue capacity when none is configured.
const DefaultBuffer = 64

// LocalQueue is an in-process queue backed by a buffered channel.
type LocalQueue struct {
	jobs   chan Job
	done   chan struct{}
	once   sync.Once
	logger *zap.Logger
}

// NewLocalQueue creates a queue holding up to buffer jobs.
func NewLocalQueue(buffer int, logger *zap.Logger) *LocalQueue {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalQueue{
		jobs:   make(chan Job, buffer),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// Publish enqueues job, blocking while the buffer is full.
func (q *LocalQueue) Publish(ctx context.Context, job Job) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}

	select {
	case q.jobs <- job:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume delivers jobs to handler one at a time.
func (q *LocalQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-q.done:
			return nil
		case job := <-q.jobs:
			if err := handler(ctx, job); err != nil {
				q.logger.Warn("job handler failed",
					zap.String("job_id", job.ID),
					zap.String("path", job.Path),
					zap.Error(err),
				)
			}
		}
	}
}

// Len returns the number of buffered jobs.
func (q *LocalQueue) Len() int {
	return len(q.jobs)
}

// Close stops consumers and rejects further publishes. Buffered jobs are
// dropped.
func (q *LocalQueue) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}
