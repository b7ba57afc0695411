package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const flushTimeout = 5 * time.Second

// NATSConfig configures the NATS transport.
type NATSConfig struct {
	URL     string
	Subject string
	Group   string
}

// ApplyDefaults fills empty fields.
func (c *NATSConfig) ApplyDefaults() {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.Subject == "" {
		c.Subject = "paperqa.ingest"
	}
	if c.Group == "" {
		c.Group = "paperqa-workers"
	}
}

// NATSQueue publishes JSON jobs on a subject. Consumers join a queue group
// so each job reaches one worker.
type NATSQueue struct {
	conn   *nats.Conn
	config NATSConfig
	logger *zap.Logger

	closed    chan struct{}
	closeOnce sync.Once
}

// NewNATSQueue connects to the NATS server at cfg.URL.
func NewNATSQueue(cfg NATSConfig, logger *zap.Logger) (*NATSQueue, error) {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("paperqa"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}
	logger.Info("connected to NATS",
		zap.String("url", cfg.URL),
		zap.String("subject", cfg.Subject),
	)
	return &NATSQueue{conn: conn, config: cfg, logger: logger, closed: make(chan struct{})}, nil
}

// Publish sends job and flushes the connection.
func (q *NATSQueue) Publish(ctx context.Context, job Job) error {
	if q.conn.IsClosed() {
		return ErrClosed
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	if err := q.conn.Publish(q.config.Subject, data); err != nil {
		return fmt.Errorf("publishing job: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return q.conn.FlushTimeout(flushTimeout)
}

// Consume subscribes in the queue group and blocks until ctx is cancelled
// or the queue is closed.
// Messages are handled sequentially on the subscription goroutine.
func (q *NATSQueue) Consume(ctx context.Context, handler Handler) error {
	if q.conn.IsClosed() {
		return ErrClosed
	}
	sub, err := q.conn.QueueSubscribe(q.config.Subject, q.config.Group, func(msg *nats.Msg) {
		var job Job
		if err := json.Unmarshal(msg.Data, &job); err != nil {
			q.logger.Warn("dropping malformed job", zap.Error(err))
			return
		}
		if err := handler(ctx, job); err != nil {
			q.logger.Warn("job handler failed",
				zap.String("job_id", job.ID),
				zap.String("path", job.Path),
				zap.Error(err),
			)
		}
	})
	if err != nil {
		return fmt.Errorf("subscribing to %s: %w", q.config.Subject, err)
	}
	if err := q.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("flushing subscription: %w", err)
	}

	select {
	case <-ctx.Done():
	case <-q.closed:
		return nil
	}
	if err := sub.Drain(); err != nil && !q.conn.IsClosed() {
		return fmt.Errorf("draining subscription: %w", err)
	}
	return nil
}

// Close closes the connection.
func (q *NATSQueue) Close() error {
	q.closeOnce.Do(func() {
		close(q.closed)
		q.conn.Close()
	})
	return nil
}
