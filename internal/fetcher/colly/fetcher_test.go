package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"
)

func TestFetchReturnsBodyAndContentType(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.UserAgent() != "contact-bot" {
			http.Error(w, "unexpected user agent", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, `<html><body>write to hello@site.test</body></html>`)
	}))
	defer srv.Close()

	f := New(Config{UserAgent: "contact-bot", Timeout: time.Second})
	resp, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/html; charset=utf-8", resp.ContentType)
	require.Contains(t, string(resp.Body), "hello@site.test")
}

func TestFetchSameURLTwice(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "ok")
	}))
	defer srv.Close()

	f := New(Config{})
	for i := 0; i < 2; i++ {
		_, err := f.Fetch(context.Background(), srv.URL)
		require.NoError(t, err, "attempt %d", i)
	}
}

func TestFetchReturnsErrorStatusBody(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "<p>lost? write to help@owner.test</p>")
	}))
	defer srv.Close()

	resp, err := New(Config{}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "text/html; charset=utf-8", resp.ContentType)
	require.Contains(t, string(resp.Body), "help@owner.test")
}

func TestFetchHonorsContextCancel(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		fmt.Fprint(w, "late")
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New(Config{Timeout: 5 * time.Second}).Fetch(ctx, srv.URL)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetchInvalidURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}).Fetch(context.Background(), "://nope")
	require.Error(t, err)
}

type markerKey struct{}

func TestCollectorForAppliesConfig(t *testing.T) {
	t.Parallel()

	ctx := context.WithValue(context.Background(), markerKey{}, "marker")
	f := New(Config{UserAgent: "coverage-agent", RespectRobots: true, Timeout: time.Second, MaxBodySize: 1024})
	collector := f.collectorFor(ctx)
	require.Equal(t, "coverage-agent", collector.UserAgent)
	require.False(t, collector.IgnoreRobotsTxt)
	require.Equal(t, 1024, collector.MaxBodySize)
	require.True(t, collector.AllowURLRevisit)
	require.True(t, collector.ParseHTTPErrorResponse)
	require.Equal(t, ctx, collector.Context)

	_, ok := f.transport.(*robotsTransport)
	require.True(t, ok, "expected robots-aware transport when robots are respected")

	plain := New(Config{})
	require.True(t, plain.collectorFor(context.Background()).IgnoreRobotsTxt)
	_, ok = plain.transport.(*robotsTransport)
	require.False(t, ok)
}

func TestVisitRecordsCallbacks(t *testing.T) {
	t.Parallel()

	v := &visit{start: time.Now()}
	hooks := &stubHooks{}
	v.attach(hooks)
	require.NotNil(t, hooks.onRequest)
	require.NotNil(t, hooks.onResponse)
	require.NotNil(t, hooks.onError)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Contains(t, collyReq.Headers.Get("Accept"), "text/html")

	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Headers:    &http.Header{"Content-Type": {"text/plain"}},
		Request:    &colly.Request{URL: mustParseURL(t, "https://example.com")},
	})
	resp, err := v.outcome("https://example.com", nil)
	require.NoError(t, err)
	require.Equal(t, "body", string(resp.Body))
	require.Equal(t, "text/plain", resp.ContentType)
	require.Equal(t, "https://example.com", resp.URL)

	hooks.onError(&colly.Response{StatusCode: http.StatusForbidden}, errors.New("Forbidden"))
	_, err = v.outcome("https://example.com", nil)
	require.ErrorContains(t, err, "status 403")
}

func TestVisitWithoutResponseFails(t *testing.T) {
	t.Parallel()

	v := &visit{start: time.Now()}
	_, err := v.outcome("https://example.com", nil)
	require.ErrorContains(t, err, "no response")

	_, err = v.outcome("https://example.com", errors.New("URL already visited"))
	require.ErrorContains(t, err, "already visited")
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("failed to parse url %q: %v", raw, err)
	}
	return u
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}
