// Package siteemails performs the best-effort secondary fetch of a profile's
// linked website and scans the body for email addresses. Every failure is
// recovered here: callers only ever see a (possibly empty) address list.
package siteemails

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/profile-contact-crawler/internal/crawler"
	"github.com/JakeFAU/profile-contact-crawler/internal/emails"
	"github.com/JakeFAU/profile-contact-crawler/internal/metrics"
)

// Fetcher implements crawler.SiteEmailFetcher on top of a PageFetcher.
type Fetcher struct {
	pages  crawler.PageFetcher
	logger *zap.Logger
}

// New wraps pages. A nil logger is replaced with a no-op logger.
func New(pages crawler.PageFetcher, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{pages: pages, logger: logger}
}

// FetchSiteEmails fetches url once and returns the emails found in the body.
// The body is scanned whatever the status. Network errors, timeouts, and
// non-text bodies degrade to an empty result with a warning.
func (f *Fetcher) FetchSiteEmails(ctx context.Context, url string) []string {
	body, err := f.fetchText(ctx, url)
	if err != nil {
		metrics.ObserveSiteFetchFailure()
		f.logger.Warn("site email fetch failed", zap.String("url", url), zap.Error(err))
		return []string{}
	}
	return emails.Extract(body)
}

func (f *Fetcher) fetchText(ctx context.Context, url string) (string, error) {
	if f.pages == nil {
		return "", &crawler.SecondaryFetchError{URL: url, Err: errors.New("no page fetcher configured")}
	}
	if !crawler.IsHTTPURL(url) {
		return "", &crawler.SecondaryFetchError{URL: url, Err: errors.New("not an absolute http(s) url")}
	}
	resp, err := f.pages.Fetch(ctx, url)
	if err != nil {
		return "", &crawler.SecondaryFetchError{URL: url, Err: err}
	}
	if !isTextual(resp.ContentType) {
		return "", &crawler.SecondaryFetchError{URL: url, Err: fmt.Errorf("non-text content type %q", resp.ContentType)}
	}
	return string(resp.Body), nil
}

// isTextual accepts an empty content type so servers that omit the header are
// still scanned.
func isTextual(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.ToLower(strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0]))
	}
	switch {
	case strings.HasPrefix(mediaType, "text/"):
		return true
	case strings.Contains(mediaType, "html"), strings.Contains(mediaType, "xml"), strings.Contains(mediaType, "json"):
		return true
	default:
		return false
	}
}
