package siteemails

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/profile-contact-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/profile-contact-crawler/internal/fetcher/colly"
)

type fakePageFetcher struct {
	resp  crawler.FetchResponse
	err   error
	calls int
}

func (f *fakePageFetcher) Fetch(_ context.Context, url string) (crawler.FetchResponse, error) {
	f.calls++
	if f.err != nil {
		return crawler.FetchResponse{}, f.err
	}
	resp := f.resp
	resp.URL = url
	return resp, nil
}

func TestFetchSiteEmailsExtractsFromBody(t *testing.T) {
	t.Parallel()

	pages := &fakePageFetcher{resp: crawler.FetchResponse{
		StatusCode:  http.StatusOK,
		ContentType: "text/html; charset=utf-8",
		Body:        []byte(`<footer>Press: Press@Acme.IO | press@acme.io | jobs@acme.io</footer>`),
	}}
	got := New(pages, zap.NewNop()).FetchSiteEmails(context.Background(), "https://acme.io")
	require.Equal(t, []string{"press@acme.io", "jobs@acme.io"}, got)
	require.Equal(t, 1, pages.calls)
}

func TestFetchSiteEmailsScansErrorPages(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		status int
	}{
		{"not found", http.StatusNotFound},
		{"unavailable", http.StatusServiceUnavailable},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			pages := &fakePageFetcher{resp: crawler.FetchResponse{
				StatusCode:  tc.status,
				ContentType: "text/html",
				Body:        []byte(`<p>Page moved. Contact z@z.com</p>`),
			}}
			core, logs := observer.New(zap.WarnLevel)
			got := New(pages, zap.New(core)).FetchSiteEmails(context.Background(), "https://moved.test")
			require.Equal(t, []string{"z@z.com"}, got)
			require.Zero(t, logs.Len())
		})
	}
}

func TestFetchSiteEmailsReadsNotFoundPageOverHTTP(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `<html><body>Nothing here. Mail Webmaster@Owner.test</body></html>`)
	}))
	defer srv.Close()

	got := New(collyfetcher.New(collyfetcher.Config{}), zap.NewNop()).FetchSiteEmails(context.Background(), srv.URL)
	require.Equal(t, []string{"webmaster@owner.test"}, got)
}

func TestFetchSiteEmailsRecoversFailures(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		pages *fakePageFetcher
		url   string
	}{
		{"network error", &fakePageFetcher{err: errors.New("dial tcp: connection refused")}, "https://down.test"},
		{"timeout", &fakePageFetcher{err: context.DeadlineExceeded}, "https://slow.test"},
		{"binary body", &fakePageFetcher{resp: crawler.FetchResponse{StatusCode: 200, ContentType: "image/png", Body: []byte("a@b.com")}}, "https://img.test/logo.png"},
		{"not http", &fakePageFetcher{}, "mailto:a@b.com"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			core, logs := observer.New(zap.WarnLevel)
			got := New(tc.pages, zap.New(core)).FetchSiteEmails(context.Background(), tc.url)
			require.NotNil(t, got)
			require.Empty(t, got)
			require.Equal(t, 1, logs.FilterMessage("site email fetch failed").Len())
		})
	}
}

func TestFetchSiteEmailsWithoutFetcher(t *testing.T) {
	t.Parallel()

	got := New(nil, nil).FetchSiteEmails(context.Background(), "https://acme.io")
	require.Empty(t, got)
}

func TestIsTextual(t *testing.T) {
	t.Parallel()

	require.True(t, isTextual(""))
	require.True(t, isTextual("text/plain"))
	require.True(t, isTextual("application/xhtml+xml"))
	require.True(t, isTextual("application/json; charset=utf-8"))
	require.True(t, isTextual("TEXT/HTML"))
	require.False(t, isTextual("application/pdf"))
	require.False(t, isTextual("image/jpeg"))
}
