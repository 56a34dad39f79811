// Package collyfetcher implements crawler.PageFetcher using gocolly. It backs
// the secondary website fetch performed during email discovery.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/profile-contact-crawler/internal/crawler"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultMaxBodySize = 5 * 1024 * 1024

	acceptHeader = "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5"
)

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	MaxBodySize   int
}

// Fetcher implements crawler.PageFetcher. Every Fetch runs on its own clone of
// a shared base collector so concurrent workers never share callbacks.
type Fetcher struct {
	cfg       Config
	transport http.RoundTripper
	base      *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = defaultMaxBodySize
	}

	var transport http.RoundTripper = newHTTPTransport()
	if cfg.RespectRobots {
		transport = newRobotsTransport(transport)
	}

	base := colly.NewCollector(colly.Async(false))
	// Several profiles may link the same website.
	base.AllowURLRevisit = true
	// Error pages are still pages: hand their bodies back to the caller.
	base.ParseHTTPErrorResponse = true
	base.WithTransport(transport)

	return &Fetcher{cfg: cfg, transport: transport, base: base}
}

// Fetch performs one GET of url. Responses of any status are returned with
// their body. Transport failures and robots.txt denials are errors.
func (f *Fetcher) Fetch(ctx context.Context, url string) (crawler.FetchResponse, error) {
	v := &visit{start: time.Now()}
	collector := f.collectorFor(ctx)
	v.attach(collector)

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return crawler.FetchResponse{}, fmt.Errorf("site fetch canceled: %w", ctx.Err())
	case err := <-done:
		return v.outcome(url, err)
	}
}

func (f *Fetcher) collectorFor(ctx context.Context) *colly.Collector {
	c := f.base.Clone()
	c.Context = ctx
	if f.cfg.UserAgent != "" {
		c.UserAgent = f.cfg.UserAgent
	}
	c.IgnoreRobotsTxt = !f.cfg.RespectRobots
	c.MaxBodySize = f.cfg.MaxBodySize
	c.SetRequestTimeout(f.cfg.Timeout)
	c.WithTransport(f.transport)
	return c
}

// visit collects the callbacks of a single Fetch.
type visit struct {
	start time.Time

	mu     sync.Mutex
	resp   crawler.FetchResponse
	status int
	err    error
}

func (v *visit) attach(hooks collectorHooks) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", acceptHeader)
	})
	hooks.OnResponse(func(r *colly.Response) {
		v.mu.Lock()
		defer v.mu.Unlock()
		v.resp = toFetchResponse(r, time.Since(v.start))
	})
	hooks.OnError(func(r *colly.Response, err error) {
		v.mu.Lock()
		defer v.mu.Unlock()
		if r != nil {
			v.status = r.StatusCode
		}
		v.err = err
	})
}

func (v *visit) outcome(url string, visitErr error) (crawler.FetchResponse, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch {
	case visitErr != nil:
		return crawler.FetchResponse{}, fmt.Errorf("visit %s: %w", url, visitErr)
	case v.err != nil && v.status != 0:
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s: status %d: %w", url, v.status, v.err)
	case v.err != nil:
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s: %w", url, v.err)
	case v.resp.URL == "":
		return crawler.FetchResponse{}, fmt.Errorf("fetch %s: no response", url)
	}
	return v.resp, nil
}

func toFetchResponse(r *colly.Response, elapsed time.Duration) crawler.FetchResponse {
	headers := http.Header{}
	if r.Headers != nil {
		headers = r.Headers.Clone()
	}
	out := crawler.FetchResponse{
		StatusCode:  r.StatusCode,
		ContentType: headers.Get("Content-Type"),
		Headers:     headers,
		Body:        append([]byte(nil), r.Body...),
		Duration:    elapsed,
	}
	if r.Request != nil && r.Request.URL != nil {
		out.URL = r.Request.URL.String()
	}
	return out
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   5 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		MaxIdleConns:          50,
		MaxIdleConnsPerHost:   2,
		IdleConnTimeout:       60 * time.Second,
	}
}
