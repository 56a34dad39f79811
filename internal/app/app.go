// Package app wires configuration into the long-lived services of a crawl
// run: renderer, secondary fetcher, sinks, dispatcher, and status server.
package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-contact-crawler/internal/api"
	"github.com/JakeFAU/profile-contact-crawler/internal/clock/system"
	"github.com/JakeFAU/profile-contact-crawler/internal/config"
	"github.com/JakeFAU/profile-contact-crawler/internal/crawler"
	"github.com/JakeFAU/profile-contact-crawler/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/profile-contact-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/profile-contact-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/profile-contact-crawler/internal/id/uuid"
	"github.com/JakeFAU/profile-contact-crawler/internal/metrics"
	"github.com/JakeFAU/profile-contact-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/profile-contact-crawler/internal/profile"
	"github.com/JakeFAU/profile-contact-crawler/internal/sink"
	gcssink "github.com/JakeFAU/profile-contact-crawler/internal/sink/gcs"
	"github.com/JakeFAU/profile-contact-crawler/internal/sink/jsonl"
	localsink "github.com/JakeFAU/profile-contact-crawler/internal/sink/local"
	"github.com/JakeFAU/profile-contact-crawler/internal/sink/memory"
	pgsink "github.com/JakeFAU/profile-contact-crawler/internal/sink/postgres"
	pubsubsink "github.com/JakeFAU/profile-contact-crawler/internal/sink/pubsub"
	"github.com/JakeFAU/profile-contact-crawler/internal/siteemails"
	"github.com/JakeFAU/profile-contact-crawler/internal/verify"
	"github.com/JakeFAU/profile-contact-crawler/internal/worker"
)

// App holds the services built for one run.
type App struct {
	cfg        config.Config
	logger     *zap.Logger
	dispatch   *dispatcher.Dispatcher
	apiServer  *api.Server
	buffer     *memory.Buffer
	stdout     io.Writer
	sinkCount  int
	closers    []func() error
	serverAddr string
}

type options struct {
	renderer crawler.Renderer
	pages    crawler.PageFetcher
	stdout   io.Writer
	sinks    []sink.Named
}

// Option customizes New.
type Option func(*options)

// WithRenderer replaces the headless Chrome renderer.
func WithRenderer(r crawler.Renderer) Option {
	return func(o *options) { o.renderer = r }
}

// WithPageFetcher replaces the colly fetcher used for linked websites.
func WithPageFetcher(f crawler.PageFetcher) Option {
	return func(o *options) { o.pages = f }
}

// WithStdout redirects record output away from os.Stdout.
func WithStdout(w io.Writer) Option {
	return func(o *options) { o.stdout = w }
}

// WithSink adds an extra sink to the fan-out.
func WithSink(name string, s crawler.Sink) Option {
	return func(o *options) { o.sinks = append(o.sinks, sink.Named{Name: name, Sink: s}) }
}

// New builds every service cfg asks for. Partially built services are
// released when a later step fails.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := options{stdout: os.Stdout}
	for _, opt := range opts {
		opt(&o)
	}
	metrics.Init()

	a := &App{cfg: cfg, logger: logger, stdout: o.stdout}
	logger.Info("building application",
		zap.Int("profiles", len(cfg.Profiles)),
		zap.Int("max_concurrency", cfg.MaxConcurrency),
		zap.String("email_provider", cfg.EmailProvider),
		zap.Bool("verify_emails", cfg.VerifyEmails),
	)

	renderer, err := a.setupRenderer(o.renderer)
	if err != nil {
		a.Close()
		return nil, err
	}

	pages := o.pages
	if pages == nil {
		pages = collyfetcher.New(collyfetcher.Config{
			UserAgent:     cfg.SiteFetch.UserAgent,
			RespectRobots: cfg.SiteFetch.RespectRobots,
			Timeout:       cfg.SiteFetch.Timeout,
			MaxBodySize:   cfg.SiteFetch.MaxBodyBytes,
		})
	}

	out, err := a.setupSinks(ctx, o.sinks)
	if err != nil {
		a.Close()
		return nil, err
	}

	deps := dispatcherDeps(cfg, renderer, pages, out, logger)
	a.dispatch = dispatcher.New(deps, uuid.New(), logger.Named("dispatcher"))

	if cfg.Server.ListenAddr != "" {
		a.apiServer = api.NewServer(a.dispatch, logger.Named("api"))
	}
	return a, nil
}

func dispatcherDeps(
	cfg config.Config,
	renderer crawler.Renderer,
	pages crawler.PageFetcher,
	out crawler.Sink,
	logger *zap.Logger,
) worker.Dependencies {
	return worker.Dependencies{
		Renderer:   renderer,
		Extractor:  profile.New(profile.Config{PlatformDomains: cfg.Renderer.PlatformDomains}),
		SiteEmails: siteemails.New(pages, logger.Named("siteemails")),
		Sink:       out,
		Clock:      system.New(),
	}
}

func (a *App) setupRenderer(override crawler.Renderer) (crawler.Renderer, error) {
	if override != nil {
		return override, nil
	}
	rc := a.cfg.Renderer
	var rendererOpts []headless.Option
	if rc.DomainQPS > 0 {
		rendererOpts = append(rendererOpts, headless.WithDomainLimiter(ratelimit.New(ratelimit.Config{
			DefaultRPS:   rc.DomainQPS,
			DefaultBurst: 1,
		})))
		a.logger.Info("render rate limit enabled", zap.Float64("domain_qps", rc.DomainQPS))
	}
	renderer, err := headless.NewChromedp(headless.Config{
		MaxParallel:        a.cfg.MaxConcurrency,
		UserAgent:          rc.UserAgent,
		NavigationTimeout:  rc.NavigationTimeout,
		SettleDelay:        rc.SettleDelay,
		StablePollInterval: rc.StablePollInterval,
		StableTimeout:      rc.StableTimeout,
		Headless:           rc.Headless,
	}, a.logger.Named("renderer"), rendererOpts...)
	if err != nil {
		return nil, fmt.Errorf("renderer init failed: %w", err)
	}
	a.closers = append(a.closers, func() error {
		renderer.Close()
		return nil
	})
	return renderer, nil
}

//nolint:gocognit // one branch per configured sink
func (a *App) setupSinks(ctx context.Context, extra []sink.Named) (crawler.Sink, error) {
	out := a.cfg.Output
	named := append([]sink.Named(nil), extra...)

	if out.Stdout {
		if out.StdoutFormat == config.StdoutArray {
			a.buffer = memory.NewBuffer()
			named = append(named, sink.Named{Name: "stdout", Sink: a.buffer})
		} else {
			named = append(named, sink.Named{Name: "stdout", Sink: jsonl.New(a.stdout)})
		}
		a.logger.Debug("stdout sink enabled", zap.String("format", out.StdoutFormat))
	}

	if out.LocalDir != "" {
		local, err := localsink.New(localsink.Config{BaseDir: out.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local sink init failed: %w", err)
		}
		named = append(named, sink.Named{Name: "local", Sink: local})
		a.logger.Info("local sink enabled", zap.String("dir", out.LocalDir))
	}

	if out.GCSBucket != "" {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		gcs, err := gcssink.New(client, gcssink.Config{Bucket: out.GCSBucket, Prefix: out.GCSPrefix})
		if err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("gcs sink init failed: %w", err)
		}
		a.closers = append(a.closers, gcs.Close)
		named = append(named, sink.Named{Name: "gcs", Sink: gcs})
		a.logger.Info("gcs sink enabled", zap.String("bucket", out.GCSBucket), zap.String("prefix", out.GCSPrefix))
	}

	if out.PostgresDSN != "" {
		pg, err := pgsink.New(ctx, pgsink.Config{DSN: out.PostgresDSN, Table: out.PostgresTable})
		if err != nil {
			return nil, fmt.Errorf("postgres sink init failed: %w", err)
		}
		a.closers = append(a.closers, func() error {
			pg.Close()
			return nil
		})
		named = append(named, sink.Named{Name: "postgres", Sink: pg})
		a.logger.Info("postgres sink enabled", zap.String("table", out.PostgresTable))
	}

	if out.PubSubTopic != "" {
		ps, err := pubsubsink.New(ctx, out.PubSubProject, out.PubSubTopic, a.logger.Named("pubsub"))
		if err != nil {
			return nil, fmt.Errorf("pubsub sink init failed: %w", err)
		}
		a.closers = append(a.closers, ps.Close)
		named = append(named, sink.Named{Name: "pubsub", Sink: ps})
		a.logger.Info("pubsub sink enabled",
			zap.String("project", out.PubSubProject),
			zap.String("topic", out.PubSubTopic),
		)
	}

	fanout := sink.NewFanout(named...)
	a.sinkCount = fanout.Len()
	if a.sinkCount == 0 {
		a.logger.Warn("no output configured, records will be discarded")
	}

	if !a.cfg.VerificationEnabled() {
		return fanout, nil
	}
	verifier, err := verify.New(a.cfg.EmailProvider)
	if err != nil {
		return nil, fmt.Errorf("email verifier init failed: %w", err)
	}
	a.logger.Info("email verification enabled", zap.String("provider", a.cfg.EmailProvider))
	return verify.NewSink(fanout, verifier, a.logger.Named("verify")), nil
}

// SinkCount reports how many sinks records fan out to.
func (a *App) SinkCount() int {
	return a.sinkCount
}

// ServerAddr is the bound status server address once Run has started it.
func (a *App) ServerAddr() string {
	return a.serverAddr
}

// Dispatcher exposes the run's dispatcher for progress queries.
func (a *App) Dispatcher() *dispatcher.Dispatcher {
	return a.dispatch
}

// Run crawls cfg.Profiles, serving status while it runs when configured, and
// prints the buffered array output once every record is in.
func (a *App) Run(ctx context.Context) (dispatcher.Summary, error) {
	if a.apiServer != nil {
		addr, err := a.apiServer.Start(a.cfg.Server.ListenAddr)
		if err != nil {
			return dispatcher.Summary{}, fmt.Errorf("start status server: %w", err)
		}
		a.serverAddr = addr
		a.logger.Info("status server started", zap.String("addr", addr))
		defer a.stopServer()
	}

	summary, runErr := a.dispatch.Run(ctx, a.cfg.Profiles, a.cfg.MaxConcurrency)
	if runErr != nil && summary.Total == 0 {
		return summary, runErr
	}
	if a.buffer != nil {
		if err := a.writeArray(); err != nil {
			return summary, errors.Join(runErr, err)
		}
	}
	return summary, runErr
}

func (a *App) writeArray() error {
	records := a.buffer.InputOrder(a.cfg.Profiles)
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	if _, err := fmt.Fprintln(a.stdout, string(data)); err != nil {
		return fmt.Errorf("write records: %w", err)
	}
	return nil
}

func (a *App) stopServer() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.apiServer.Shutdown(ctx); err != nil {
		a.logger.Warn("status server shutdown failed", zap.Error(err))
	}
}

// Close releases every service in reverse construction order.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.logger.Sync()
}
