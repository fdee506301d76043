// Package worker drains pending index queue items into a document sink.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dbsmedya/goindexq/internal/config"
	"github.com/dbsmedya/goindexq/internal/document"
	"github.com/dbsmedya/goindexq/internal/logger"
	"github.com/dbsmedya/goindexq/internal/queue"
)

// Store is the part of the index queue a worker needs.
type Store interface {
	ClaimPending(ctx context.Context, claimID string, rootPageID int64, limit int) ([]queue.Item, error)
	MarkIndexed(ctx context.Context, item queue.Item) error
	MarkFailed(ctx context.Context, item queue.Item, message string) error
	RenewClaims(ctx context.Context, claimID string) (int64, error)
	ReleaseStaleClaims(ctx context.Context, before time.Time) (int64, error)
	Statistics(ctx context.Context, rootPageID int64) (queue.Statistic, error)
}

// Builder turns a queue item into a document.
type Builder interface {
	Build(ctx context.Context, item queue.Item) (*document.Document, error)
}

// Sink receives built documents.
type Sink interface {
	Write(ctx context.Context, doc *document.Document) error
}

// Metrics records worker outcomes. *metrics.Collector implements it.
type Metrics interface {
	ObserveIndexed(n int)
	ObserveFailed(n int)
	SetStatistic(stat queue.Statistic)
}

// Options controls a drain run.
type Options struct {
	Workers    int
	BatchSize  int
	MaxItems   int           // 0 drains until no pending items remain
	StaleClaim time.Duration // claim lease; 0 never releases or renews claims
	RootPageID int64         // 0 drains all sites
}

// OptionsFromConfig builds options from the worker configuration.
func OptionsFromConfig(cfg config.WorkerConfig) Options {
	return Options{
		Workers:    cfg.Workers,
		BatchSize:  cfg.BatchSize,
		MaxItems:   cfg.MaxItems,
		StaleClaim: time.Duration(cfg.StaleClaimSeconds) * time.Second,
	}
}

// Result summarizes a drain run.
type Result struct {
	Indexed   int
	Failed    int
	Released  int64
	Statistic queue.Statistic
}

// Worker claims pending items, builds their documents and hands them to the sink.
// Items are claimed atomically in the store, so concurrent workers in this or
// other processes never index the same item twice.
type Worker struct {
	store   Store
	builder Builder
	sink    Sink
	metrics Metrics
	opts    Options
	logger  *logger.Logger
	now     func() time.Time
}

// New creates a worker. metrics may be nil.
func New(store Store, builder Builder, sink Sink, metrics Metrics, opts Options, log *logger.Logger) (*Worker, error) {
	if store == nil {
		return nil, fmt.Errorf("queue store is nil")
	}
	if builder == nil {
		return nil, fmt.Errorf("document builder is nil")
	}
	if sink == nil {
		return nil, fmt.Errorf("document sink is nil")
	}
	if opts.Workers <= 0 {
		return nil, fmt.Errorf("workers must be positive, got %d", opts.Workers)
	}
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Worker{
		store:   store,
		builder: builder,
		sink:    sink,
		metrics: metrics,
		opts:    opts,
		logger:  log,
		now:     time.Now,
	}, nil
}

// budget hands out the remaining item allowance of a run.
type budget struct {
	mu        sync.Mutex
	unlimited bool
	remaining int
}

func (b *budget) take(n int) int {
	if b.unlimited {
		return n
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if n > b.remaining {
		n = b.remaining
	}
	b.remaining -= n
	return n
}

func (b *budget) refund(n int) {
	if b.unlimited || n <= 0 {
		return
	}
	b.mu.Lock()
	b.remaining += n
	b.mu.Unlock()
}

type tally struct {
	mu      sync.Mutex
	indexed int
	failed  int
}

func (t *tally) add(indexed, failed int) {
	t.mu.Lock()
	t.indexed += indexed
	t.failed += failed
	t.mu.Unlock()
}

// RunOnce drains the queue until no pending items remain or MaxItems is reached.
// An item whose document cannot be built or written is marked failed and the run
// continues; store errors abort the run.
func (w *Worker) RunOnce(ctx context.Context) (Result, error) {
	var result Result
	start := w.now()

	if w.opts.StaleClaim > 0 {
		released, err := w.store.ReleaseStaleClaims(ctx, start.Add(-w.opts.StaleClaim))
		if err != nil {
			return result, err
		}
		result.Released = released
	}

	runID := uuid.NewString()
	b := &budget{unlimited: w.opts.MaxItems <= 0, remaining: w.opts.MaxItems}
	counts := &tally{}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < w.opts.Workers; i++ {
		claimID := fmt.Sprintf("%s-%d", runID, i)
		log := w.logger.WithWorker(claimID)
		g.Go(func() error {
			return w.drain(gctx, claimID, b, counts, log)
		})
	}
	err := g.Wait()

	result.Indexed, result.Failed = counts.indexed, counts.failed
	if err != nil {
		return result, err
	}

	stat, err := w.store.Statistics(ctx, w.opts.RootPageID)
	if err != nil {
		return result, err
	}
	result.Statistic = stat
	if w.metrics != nil {
		w.metrics.SetStatistic(stat)
	}

	w.logger.Infow("Queue drain finished",
		"indexed", result.Indexed,
		"failed", result.Failed,
		"released_claims", result.Released,
		"pending", stat.PendingCount,
		"duration", w.now().Sub(start).String(),
	)
	return result, nil
}

func (w *Worker) drain(ctx context.Context, claimID string, b *budget, counts *tally, log *logger.Logger) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		limit := b.take(w.opts.BatchSize)
		if limit == 0 {
			return nil
		}

		items, err := w.store.ClaimPending(ctx, claimID, w.opts.RootPageID, limit)
		if err != nil {
			return err
		}
		b.refund(limit - len(items))
		if len(items) == 0 {
			return nil
		}
		log.Debugf("Claimed %d items", len(items))

		renewed := w.now()
		for _, item := range items {
			// Renew at half the lease so no other process sees these claims as stale.
			if w.opts.StaleClaim > 0 && w.now().Sub(renewed) >= w.opts.StaleClaim/2 {
				if _, err := w.store.RenewClaims(ctx, claimID); err != nil {
					return err
				}
				renewed = w.now()
			}
			indexed, err := w.process(ctx, item, log)
			if err != nil {
				return err
			}
			if indexed {
				counts.add(1, 0)
				if w.metrics != nil {
					w.metrics.ObserveIndexed(1)
				}
			} else {
				counts.add(0, 1)
				if w.metrics != nil {
					w.metrics.ObserveFailed(1)
				}
			}
		}
	}
}

// process indexes one item. It returns false when the item was marked failed.
func (w *Worker) process(ctx context.Context, item queue.Item, log *logger.Logger) (bool, error) {
	doc, err := w.builder.Build(ctx, item)
	if err == nil {
		err = w.sink.Write(ctx, doc)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		log.WithRecord(item.TableName, item.TableUID).Warnw("Indexing failed", "root_page", item.RootPageID, "error", err)
		if markErr := w.store.MarkFailed(ctx, item, err.Error()); markErr != nil {
			return false, markErr
		}
		return false, nil
	}
	if err := w.store.MarkIndexed(ctx, item); err != nil {
		return false, err
	}
	return true, nil
}
