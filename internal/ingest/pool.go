package ingest

import (
	"context"
	"errors"
	"os"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fyrsmithlabs/paperqa/internal/queue"
)

// DefaultWorkers is the pool size when none is configured.
const DefaultWorkers = 2

// Pool processes documents concurrently, one document per task. A failing
// document never blocks the others.
type Pool struct {
	proc    *Processor
	workers int
	logger  *zap.Logger

	// OnResult, when set, is called after each document finishes.
	OnResult func(Result)

	mu       sync.Mutex
	inflight map[string]bool
}

// NewPool creates a pool running up to workers documents at once.
func NewPool(proc *Processor, workers int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		proc:     proc,
		workers:  workers,
		logger:   logger,
		inflight: make(map[string]bool),
	}
}

// Run processes paths and returns their results in input order.
func (p *Pool) Run(ctx context.Context, paths []string) []Result {
	results := make([]Result, len(paths))
	g := new(errgroup.Group)
	g.SetLimit(p.workers)
	for i, path := range paths {
		g.Go(func() error {
			results[i] = p.proc.Process(ctx, path)
			p.report(results[i])
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// Serve consumes jobs from q until ctx is cancelled or q is closed, then
// waits for running documents to finish.
func (p *Pool) Serve(ctx context.Context, q queue.Queue) error {
	g := new(errgroup.Group)
	g.SetLimit(p.workers)

	err := q.Consume(ctx, func(jobCtx context.Context, job queue.Job) error {
		if !p.claim(job.Path) {
			p.logger.Debug("document already in flight", zap.String("path", job.Path))
			return nil
		}
		g.Go(func() error {
			defer p.release(job.Path)
			if _, err := os.Stat(job.Path); errors.Is(err, os.ErrNotExist) {
				p.logger.Debug("skipping job for missing file",
					zap.String("job_id", job.ID),
					zap.String("path", job.Path),
				)
				return nil
			}
			p.report(p.proc.Process(jobCtx, job.Path))
			return nil
		})
		return nil
	})

	_ = g.Wait()
	return err
}

func (p *Pool) claim(path string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.inflight[path] {
		return false
	}
	p.inflight[path] = true
	return true
}

func (p *Pool) release(path string) {
	p.mu.Lock()
	delete(p.inflight, path)
	p.mu.Unlock()
}

func (p *Pool) report(res Result) {
	if p.OnResult != nil {
		p.OnResult(res)
	}
}
