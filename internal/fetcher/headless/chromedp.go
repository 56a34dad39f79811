// Package headless renders profile pages in headless Chrome.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-contact-crawler/internal/crawler"
	"github.com/JakeFAU/profile-contact-crawler/internal/metrics"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultSettleDelay       = time.Second
	defaultStableTimeout     = 5 * time.Second
)

// Config controls the behavior of the headless renderer.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// SettleDelay is the fixed wait after the body is ready. Ignored when
	// StablePollInterval is positive.
	SettleDelay time.Duration
	// StablePollInterval enables polling the DOM size until two consecutive
	// samples match or StableTimeout elapses.
	StablePollInterval time.Duration
	StableTimeout      time.Duration
	Headless           bool
}

// DomainLimiter paces renders per host.
type DomainLimiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Renderer implements crawler.Renderer using chromedp and headless Chrome.
type Renderer struct {
	cfg         Config
	limiter     chan struct{}
	domains     DomainLimiter
	logger      *zap.Logger
	allocator   context.Context
	allocCancel context.CancelFunc
}

// Option customizes a Renderer.
type Option func(*Renderer)

// WithDomainLimiter paces navigations per host.
func WithDomainLimiter(l DomainLimiter) Option {
	return func(r *Renderer) {
		r.domains = l
	}
}

// NewChromedp creates a renderer backed by chromedp. Chrome is launched lazily
// on the first Render.
func NewChromedp(cfg Config, logger *zap.Logger, opts ...Option) (*Renderer, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.SettleDelay < 0 {
		cfg.SettleDelay = defaultSettleDelay
	}
	if cfg.StableTimeout <= 0 {
		cfg.StableTimeout = defaultStableTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.Headless {
		allocOpts = append(allocOpts, chromedp.Flag("headless", "new"))
	} else {
		allocOpts = append(allocOpts, chromedp.Flag("headless", false))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	r := &Renderer{
		cfg:         cfg,
		limiter:     limiter,
		logger:      logger,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Close shuts down the browser.
func (r *Renderer) Close() {
	r.allocCancel()
}

// Render navigates to url, waits for the body and the settle condition, and
// returns the serialized DOM. Failures are reported as *crawler.RenderError.
func (r *Renderer) Render(ctx context.Context, url string) (crawler.RenderedPage, error) {
	start := time.Now()
	page, err := r.render(ctx, url)
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	metrics.ObserveRender(url, outcome, time.Since(start))
	return page, err
}

func (r *Renderer) render(ctx context.Context, url string) (crawler.RenderedPage, error) {
	if !crawler.IsHTTPURL(url) {
		return crawler.RenderedPage{}, crawler.NewRenderError(url, "invalid url", nil)
	}
	if r.domains != nil {
		if err := r.domains.Wait(ctx, url); err != nil {
			return crawler.RenderedPage{}, crawler.NewRenderError(url, "rate limit", err)
		}
	}
	if err := r.acquire(ctx); err != nil {
		return crawler.RenderedPage{}, crawler.NewRenderError(url, "slot wait", err)
	}
	defer r.release()

	tabCtx, tabCancel := chromedp.NewContext(r.allocator)
	defer tabCancel()

	taskCtx, cancel := context.WithTimeout(tabCtx, r.cfg.NavigationTimeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	html, finalURL, err := r.runHeadless(taskCtx, url)
	if err != nil {
		reason := "navigation"
		switch {
		case ctx.Err() != nil:
			reason = "canceled"
			err = errors.Join(ctx.Err(), err)
		case errors.Is(taskCtx.Err(), context.DeadlineExceeded):
			reason = "timeout"
		}
		r.logger.Debug("render failed", zap.String("url", url), zap.String("reason", reason), zap.Error(err))
		return crawler.RenderedPage{}, crawler.NewRenderError(url, reason, err)
	}

	status, responseURL := meta.snapshotWithFallbacks(url, finalURL)
	if status >= http.StatusBadRequest {
		return crawler.RenderedPage{}, crawler.NewRenderError(url, fmt.Sprintf("status %d", status), nil)
	}

	return crawler.RenderedPage{
		URL:        url,
		FinalURL:   responseURL,
		StatusCode: status,
		HTML:       html,
		Duration:   time.Since(start),
	}, nil
}

func (r *Renderer) runHeadless(ctx context.Context, url string) (string, string, error) {
	var (
		html     string
		finalURL string
	)
	actions := []chromedp.Action{
		r.networkSetupAction(),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		r.settleAction(),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return "", "", fmt.Errorf("chromedp run: %w", err)
	}
	return html, finalURL, nil
}

func (r *Renderer) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if r.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(r.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		return nil
	})
}

// settleAction waits for client-side rendering to finish, either for a fixed
// delay or until the DOM size stops changing.
func (r *Renderer) settleAction() chromedp.Action {
	if r.cfg.StablePollInterval <= 0 {
		return chromedp.Sleep(r.cfg.SettleDelay)
	}
	return chromedp.ActionFunc(func(ctx context.Context) error {
		return waitStable(ctx, r.cfg.StablePollInterval, r.cfg.StableTimeout, func(ctx context.Context) (int, error) {
			var size int
			err := chromedp.Evaluate(`document.documentElement.outerHTML.length`, &size).Do(ctx)
			return size, err
		})
	})
}

// waitStable samples until two consecutive readings match. Reaching the
// timeout is not an error: the page is captured as-is.
func waitStable(ctx context.Context, interval, timeout time.Duration, sample func(context.Context) (int, error)) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := -1
	for {
		size, err := sample(ctx)
		if err != nil {
			return fmt.Errorf("sample dom size: %w", err)
		}
		if size == last {
			return nil
		}
		last = size

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-ticker.C:
		}
	}
}

func (r *Renderer) acquire(ctx context.Context) error {
	if r.limiter == nil {
		return nil
	}
	select {
	case r.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (r *Renderer) release() {
	if r.limiter == nil {
		return
	}
	select {
	case <-r.limiter:
	default:
	}
}

type responseMeta struct {
	mu     sync.RWMutex
	status int
	url    string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{}
}

// capture keeps the first document response so redirects report the
// original status and the final URL comes from Location.
func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status != 0 {
		return
	}
	m.status = int(event.Response.Status)
	m.url = event.Response.URL
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, string) {
	m.mu.RLock()
	status, url := m.status, m.url
	m.mu.RUnlock()

	switch {
	case finalURL != "":
		url = finalURL
	case url != "":
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, url
}
