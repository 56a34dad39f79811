// Package worker implements the per-profile crawl task.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-contact-crawler/internal/crawler"
	"github.com/JakeFAU/profile-contact-crawler/internal/emails"
	"github.com/JakeFAU/profile-contact-crawler/internal/metrics"
)

// State is a crawl task's position in its lifecycle.
type State int

// Task states. Done and Failed are terminal.
const (
	StatePending State = iota
	StateRendering
	StateExtracting
	StateFetchingSiteEmails
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRendering:
		return "rendering"
	case StateExtracting:
		return "extracting"
	case StateFetchingSiteEmails:
		return "fetching_site_emails"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s ends a task.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Observer is notified as tasks move through their states. Calls for a single
// task are sequential; calls for different tasks may be concurrent.
type Observer interface {
	Transition(task crawler.ProfileTask, from, to State)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(task crawler.ProfileTask, from, to State)

// Transition calls f.
func (f ObserverFunc) Transition(task crawler.ProfileTask, from, to State) {
	f(task, from, to)
}

// emitTimeout bounds delivery of a terminal record to the sinks.
const emitTimeout = 10 * time.Second

// Dependencies are the capabilities a Worker drives.
type Dependencies struct {
	Renderer   crawler.Renderer
	Extractor  crawler.ProfileExtractor
	SiteEmails crawler.SiteEmailFetcher
	Sink       crawler.Sink
	Clock      crawler.Clock
	Observer   Observer
}

// Worker runs crawl tasks end-to-end and emits exactly one record per task.
type Worker struct {
	deps   Dependencies
	logger *zap.Logger
}

// New constructs a Worker.
func New(deps Dependencies, logger *zap.Logger) (*Worker, error) {
	switch {
	case deps.Renderer == nil:
		return nil, errors.New("worker: renderer is required")
	case deps.Extractor == nil:
		return nil, errors.New("worker: extractor is required")
	case deps.Sink == nil:
		return nil, errors.New("worker: sink is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{deps: deps, logger: logger}, nil
}

// Run blocks, consuming tasks until the queue is drained or the context ends.
func (w *Worker) Run(ctx context.Context, queue crawler.Queue, id int) {
	logger := w.logger.With(zap.Int("worker", id))
	for {
		task, err := queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() == nil {
				logger.Debug("worker exiting", zap.Error(err))
			}
			return
		}
		w.Process(ctx, task)
	}
}

// Process runs one task through Rendering, Extracting, and FetchingSiteEmails
// and emits its record. Render failures produce a failure record; nothing
// else can fail the task.
func (w *Worker) Process(ctx context.Context, task crawler.ProfileTask) crawler.ProfileRecord {
	start := time.Now()
	metrics.IncTasksInFlight()
	defer func() {
		metrics.DecTasksInFlight()
		metrics.ObserveTask(time.Since(start))
	}()

	logger := w.logger.With(zap.String("url", task.URL), zap.String("run_id", task.RunID))
	state := StatePending
	advance := func(next State) {
		w.notify(task, state, next)
		logger.Debug("task transition", zap.Stringer("from", state), zap.Stringer("state", next))
		state = next
	}

	advance(StateRendering)
	page, err := w.deps.Renderer.Render(ctx, task.URL)
	if err != nil {
		logger.Warn("render failed", zap.String("reason", renderReason(err)), zap.Error(err))
		record := crawler.NewFailureRecord(task.URL)
		w.stamp(&record, task)
		advance(StateFailed)
		w.emit(ctx, logger, record)
		return record
	}

	advance(StateExtracting)
	content := w.deps.Extractor.Extract(page)
	found := emails.NewSet()
	found.AddText(content.Bio)
	metrics.ObserveEmails("bio", found.Len())

	if content.Website != "" && w.deps.SiteEmails != nil {
		advance(StateFetchingSiteEmails)
		before := found.Len()
		found.Add(w.deps.SiteEmails.FetchSiteEmails(ctx, content.Website)...)
		metrics.ObserveEmails("site", found.Len()-before)
	}

	record := crawler.NewSuccessRecord(task.URL, content, found.Values())
	w.stamp(&record, task)
	advance(StateDone)
	logger.Info("profile crawled",
		zap.Bool("has_name", content.Name != ""),
		zap.Bool("has_website", content.Website != ""),
		zap.Int("emails", len(record.FoundEmails)),
	)
	w.emit(ctx, logger, record)
	return record
}

func (w *Worker) stamp(record *crawler.ProfileRecord, task crawler.ProfileTask) {
	record.RunID = task.RunID
	record.Index = task.Index
	if w.deps.Clock != nil {
		record.CrawledAt = w.deps.Clock.Now()
	}
}

// emit delivers record once. Sink failures are logged and counted but never
// change the task outcome. The record outlives a canceled run: it is
// delivered on a detached context bounded by emitTimeout.
func (w *Worker) emit(ctx context.Context, logger *zap.Logger, record crawler.ProfileRecord) {
	status := "success"
	if record.Failed() {
		status = "failed"
	}
	metrics.ObserveRecord(record.SourceURL(), status)
	emitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), emitTimeout)
	defer cancel()
	if err := w.deps.Sink.Emit(emitCtx, record); err != nil {
		logger.Error("sink emit failed", zap.Error(err))
	}
}

func (w *Worker) notify(t crawler.ProfileTask, from, to State) {
	if w.deps.Observer != nil {
		w.deps.Observer.Transition(t, from, to)
	}
}

func renderReason(err error) string {
	var renderErr *crawler.RenderError
	if errors.As(err, &renderErr) {
		return renderErr.Reason
	}
	return "unknown"
}
