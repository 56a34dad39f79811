// Package dispatcher runs a bounded pool of crawl workers over an input list.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-contact-crawler/internal/crawler"
	"github.com/JakeFAU/profile-contact-crawler/internal/queue/memory"
	"github.com/JakeFAU/profile-contact-crawler/internal/worker"
)

// Summary describes a finished run.
type Summary struct {
	RunID     string        `json:"run_id"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Duration  time.Duration `json:"duration"`
}

// Progress is a point-in-time view of the current run.
type Progress struct {
	RunID      string `json:"run_id"`
	Total      int64  `json:"total"`
	Dispatched int64  `json:"dispatched"`
	InFlight   int64  `json:"in_flight"`
	Succeeded  int64  `json:"succeeded"`
	Failed     int64  `json:"failed"`
	Done       bool   `json:"done"`
}

// Dispatcher fans profile tasks out to a pool of workers.
type Dispatcher struct {
	deps   worker.Dependencies
	ids    crawler.IDGenerator
	logger *zap.Logger

	mu    sync.RWMutex
	runID string
	done  bool

	total      atomic.Int64
	dispatched atomic.Int64
	inFlight   atomic.Int64
	succeeded  atomic.Int64
	failed     atomic.Int64
}

// New creates a Dispatcher. deps.Observer, if set, still receives every
// transition.
func New(deps worker.Dependencies, ids crawler.IDGenerator, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{deps: deps, ids: ids, logger: logger}
}

// Run crawls every URL with at most concurrency tasks in flight and returns
// once each URL has produced exactly one record. An empty list or a
// concurrency below one fails with *crawler.ConfigurationError before any
// task starts. Canceling ctx stops dispatch; records already emitted stand.
func (d *Dispatcher) Run(ctx context.Context, urls []string, concurrency int) (Summary, error) {
	if len(urls) == 0 {
		return Summary{}, &crawler.ConfigurationError{Reason: "profiles", Err: crawler.ErrNoProfiles}
	}
	if concurrency < 1 {
		return Summary{}, &crawler.ConfigurationError{
			Reason: fmt.Sprintf("maxConcurrency=%d", concurrency),
			Err:    crawler.ErrInvalidConcurrency,
		}
	}

	runID, err := d.newRunID()
	if err != nil {
		return Summary{}, err
	}
	d.reset(runID, len(urls))
	defer d.finish()

	start := time.Now()
	logger := d.logger.With(zap.String("run_id", runID))

	queue := memory.NewQueue(len(urls))
	for i, url := range urls {
		if err := queue.Enqueue(ctx, crawler.ProfileTask{URL: url, RunID: runID, Index: i}); err != nil {
			queue.Close()
			return d.summary(runID, start), fmt.Errorf("seed queue: %w", err)
		}
	}
	queue.Close()

	deps := d.deps
	deps.Observer = worker.ObserverFunc(d.observe)
	w, err := worker.New(deps, d.logger.Named("worker"))
	if err != nil {
		return Summary{}, fmt.Errorf("build worker: %w", err)
	}

	poolSize := min(concurrency, len(urls))
	logger.Info("run started", zap.Int("profiles", len(urls)), zap.Int("workers", poolSize))

	var wg sync.WaitGroup
	for id := range poolSize {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx, queue, id)
		}()
	}
	wg.Wait()

	summary := d.summary(runID, start)
	if err := ctx.Err(); err != nil {
		logger.Warn("run canceled", zap.Int("completed", summary.Succeeded+summary.Failed), zap.Int("total", summary.Total))
		return summary, fmt.Errorf("run canceled: %w", err)
	}
	return summary, nil
}

// Progress returns counters for the current or most recent run.
func (d *Dispatcher) Progress() Progress {
	d.mu.RLock()
	runID, done := d.runID, d.done
	d.mu.RUnlock()
	return Progress{
		RunID:      runID,
		Total:      d.total.Load(),
		Dispatched: d.dispatched.Load(),
		InFlight:   d.inFlight.Load(),
		Succeeded:  d.succeeded.Load(),
		Failed:     d.failed.Load(),
		Done:       done,
	}
}

func (d *Dispatcher) observe(task crawler.ProfileTask, from, to worker.State) {
	switch {
	case from == worker.StatePending:
		d.dispatched.Add(1)
		d.inFlight.Add(1)
	case to == worker.StateDone:
		d.inFlight.Add(-1)
		d.succeeded.Add(1)
	case to == worker.StateFailed:
		d.inFlight.Add(-1)
		d.failed.Add(1)
	}
	if d.deps.Observer != nil {
		d.deps.Observer.Transition(task, from, to)
	}
}

func (d *Dispatcher) newRunID() (string, error) {
	if d.ids == nil {
		return "", nil
	}
	id, err := d.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id, nil
}

func (d *Dispatcher) reset(runID string, total int) {
	d.mu.Lock()
	d.runID = runID
	d.done = false
	d.mu.Unlock()
	d.total.Store(int64(total))
	d.dispatched.Store(0)
	d.inFlight.Store(0)
	d.succeeded.Store(0)
	d.failed.Store(0)
}

func (d *Dispatcher) finish() {
	d.mu.Lock()
	d.done = true
	d.mu.Unlock()
}

func (d *Dispatcher) summary(runID string, start time.Time) Summary {
	return Summary{
		RunID:     runID,
		Total:     int(d.total.Load()),
		Succeeded: int(d.succeeded.Load()),
		Failed:    int(d.failed.Load()),
		Duration:  time.Since(start),
	}
}
