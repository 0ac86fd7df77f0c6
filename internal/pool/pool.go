// Package pool runs the orchestrator over a worklist with a fixed number of
// workers, each owning an interleaved slice of the list.
package pool

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lepinkainen/libris/internal/acquire"
	"github.com/lepinkainen/libris/internal/worklist"
	"golang.org/x/sync/errgroup"
)

var (
	ErrAlreadyStarted = errors.New("pool already started")
	ErrNotStarted     = errors.New("pool not started")
)

// Processor handles one book. *acquire.Orchestrator implements it.
type Processor interface {
	Process(ctx context.Context, item worklist.Item) acquire.Result
}

// Summary describes a finished run.
type Summary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Workers    int
	Total      int
	Succeeded  int
	Exhausted  int
	Errors     int
	Results    []acquire.Result
}

// Pool owns the worker goroutines of one run.
type Pool struct {
	proc    Processor
	workers int
	logger  *slog.Logger

	mu        sync.Mutex
	started   bool
	group     *errgroup.Group
	results   []acquire.Result
	runID     string
	startedAt time.Time
}

// Partition splits items into n interleaved partitions: partition k holds the
// items at indices k, k+n, k+2n and so on. n below 1 is treated as 1.
func Partition[T any](items []T, n int) [][]T {
	if n < 1 {
		n = 1
	}
	parts := make([][]T, n)
	for i, item := range items {
		parts[i%n] = append(parts[i%n], item)
	}
	return parts
}

// New creates a pool of workers processing with proc. Nothing runs until Start.
func New(proc Processor, workers int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{proc: proc, workers: workers, logger: logger}
}

// Start launches one worker per non-empty partition of items. A pool runs
// once; a second Start returns ErrAlreadyStarted.
func (p *Pool) Start(ctx context.Context, items []worklist.Item) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true
	p.runID = uuid.NewString()
	p.startedAt = time.Now()
	p.results = make([]acquire.Result, len(items))
	p.group = new(errgroup.Group)

	p.logger.Info("Attempting to download books", "count", len(items), "workers", p.workers, "run_id", p.runID)

	for k, part := range Partition(items, p.workers) {
		if len(part) == 0 {
			continue
		}
		p.group.Go(func() error {
			return p.work(ctx, k, part)
		})
	}
	return nil
}

// work processes one partition in order. Result slots are disjoint between
// workers, so no locking is needed to store them.
func (p *Pool) work(ctx context.Context, k int, part []worklist.Item) error {
	logger := p.logger.With("worker", k)
	logger.Debug("Worker started", "books", len(part))

	for j, item := range part {
		if err := ctx.Err(); err != nil {
			logger.Warn("Worker stopped", "remaining", len(part)-j)
			return err
		}
		p.results[k+j*p.workers] = p.proc.Process(ctx, item)
	}

	logger.Debug("Worker finished")
	return nil
}

// Wait blocks until every worker is done and summarises the run. The error is
// the context error if the run was cancelled.
func (p *Pool) Wait() (Summary, error) {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return Summary{}, ErrNotStarted
	}
	group := p.group
	p.mu.Unlock()

	err := group.Wait()

	summary := Summary{
		RunID:      p.runID,
		StartedAt:  p.startedAt,
		FinishedAt: time.Now(),
		Workers:    p.workers,
	}
	for _, result := range p.results {
		// books never reached after cancellation have no result
		if result.BookID == "" {
			continue
		}
		summary.Results = append(summary.Results, result)
		summary.Total++
		if result.Status == acquire.Success {
			summary.Succeeded++
		} else {
			summary.Exhausted++
		}
		if result.Err != nil {
			summary.Errors++
		}
	}

	p.logger.Info("Run finished",
		"run_id", summary.RunID,
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"exhausted", summary.Exhausted,
		"errors", summary.Errors,
		"duration", summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond),
	)
	return summary, err
}
