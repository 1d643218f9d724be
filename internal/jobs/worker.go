// Package jobs consumes queued resolve tasks and fills in their placeholder
// snapshots.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maltedev/product-resolver/internal/fetch"
	"github.com/maltedev/product-resolver/internal/models"
	"github.com/maltedev/product-resolver/internal/queue"
	"github.com/maltedev/product-resolver/internal/snapshot"
)

const popErrorBackoff = time.Second

type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (*models.ResolvedProduct, error)
}

type HostLimiter interface {
	Wait(ctx context.Context, host string) error
}

type Config struct {
	Concurrency  int
	TaskDeadline time.Duration
}

type Stats struct {
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

type Worker struct {
	queue    queue.Queue
	resolver Resolver
	store    snapshot.Store
	limiter  HostLimiter
	logger   *slog.Logger
	config   Config

	processed atomic.Int64
	failed    atomic.Int64
}

func NewWorker(q queue.Queue, resolver Resolver, store snapshot.Store, limiter HostLimiter, logger *slog.Logger, config Config) *Worker {
	if config.Concurrency <= 0 {
		config.Concurrency = 1
	}
	if config.TaskDeadline <= 0 {
		config.TaskDeadline = time.Minute
	}
	return &Worker{
		queue:    q,
		resolver: resolver,
		store:    store,
		limiter:  limiter,
		logger:   logger.With("component", "resolve_worker"),
		config:   config,
	}
}

// Start runs the consumers until ctx is cancelled or the queue is closed.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("worker started", "concurrency", w.config.Concurrency)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.config.Concurrency; i++ {
		id := i
		g.Go(func() error {
			return w.consume(gctx, id)
		})
	}

	err := g.Wait()
	w.logger.Info("worker stopped",
		"processed", w.processed.Load(),
		"failed", w.failed.Load())
	return err
}

func (w *Worker) Stats() Stats {
	return Stats{Processed: w.processed.Load(), Failed: w.failed.Load()}
}

func (w *Worker) consume(ctx context.Context, id int) error {
	logger := w.logger.With("consumer", id)

	for {
		task, err := w.queue.Pop(ctx)
		switch {
		case err == nil:
			w.process(ctx, task)
		case errors.Is(err, queue.ErrQueueClosed):
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			logger.Error("failed to pop task", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(popErrorBackoff):
			}
		}
	}
}

// process resolves one task. Failures are logged and leave the placeholder
// snapshot untouched.
func (w *Worker) process(ctx context.Context, task *queue.Task) {
	logger := w.logger.With("task_id", task.ID, "snapshot_id", task.SnapshotID, "url", task.URL)

	u, err := fetch.ParseURL(task.URL)
	if err != nil {
		w.failed.Add(1)
		logger.Warn("dropping task with invalid url", "error", err)
		return
	}

	if err := w.limiter.Wait(ctx, u.Hostname()); err != nil {
		w.failed.Add(1)
		logger.Warn("rate limit wait aborted", "error", err)
		return
	}

	taskCtx, cancel := context.WithTimeout(ctx, w.config.TaskDeadline)
	defer cancel()

	start := time.Now()
	product, err := w.resolver.Resolve(taskCtx, task.URL)
	if err != nil {
		w.failed.Add(1)
		logger.Warn("resolve failed", "error", err, "duration", time.Since(start))
		return
	}

	if _, err := w.store.UpdateResolved(taskCtx, task.SnapshotID, product); err != nil {
		w.failed.Add(1)
		logger.Error("failed to store resolved snapshot", "error", err)
		return
	}

	w.processed.Add(1)
	logger.Info("task resolved",
		"title", product.Title,
		"duration", time.Since(start))
}
