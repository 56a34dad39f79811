package headless

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-contact-crawler/internal/crawler"
)

func TestNewChromedpLimiterValidation(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1}, nil)
	require.Error(t, err)

	renderer, err := NewChromedp(Config{MaxParallel: 2}, zap.NewNop())
	require.NoError(t, err)
	defer renderer.Close()
	require.Equal(t, 2, cap(renderer.limiter))
	require.Equal(t, defaultNavigationTimeout, renderer.cfg.NavigationTimeout)
	require.Equal(t, defaultStableTimeout, renderer.cfg.StableTimeout)
}

func TestResponseMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.capture(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 404, URL: "https://x.com/ghost"},
	})
	meta.capture(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200, URL: "https://x.com/iframe"},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeScript,
		Response: &network.Response{Status: 500, URL: "https://cdn.test/app.js"},
	})
	status, url := meta.snapshotWithFallbacks("https://req", "")
	require.Equal(t, 404, status)
	require.Equal(t, "https://x.com/ghost", url)

	meta = newResponseMeta()
	status, url = meta.snapshotWithFallbacks("https://req", "https://final")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "https://final", url)

	status, url = meta.snapshotWithFallbacks("https://req", "")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "https://req", url)
}

func TestWaitStableStopsOnMatchingSamples(t *testing.T) {
	t.Parallel()

	samples := []int{10, 20, 30, 30, 40}
	calls := 0
	err := waitStable(context.Background(), time.Millisecond, time.Second, func(context.Context) (int, error) {
		v := samples[calls]
		calls++
		return v, nil
	})
	require.NoError(t, err)
	require.Equal(t, 4, calls)
}

func TestWaitStableBoundedByTimeout(t *testing.T) {
	t.Parallel()

	size := 0
	start := time.Now()
	err := waitStable(context.Background(), 5*time.Millisecond, 50*time.Millisecond, func(context.Context) (int, error) {
		size++
		return size, nil
	})
	require.NoError(t, err)
	require.Less(t, time.Since(start), time.Second)
}

func TestWaitStablePropagatesSampleError(t *testing.T) {
	t.Parallel()

	boom := errors.New("target closed")
	err := waitStable(context.Background(), time.Millisecond, time.Second, func(context.Context) (int, error) {
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
}

type recordingLimiter struct {
	urls []string
	err  error
}

func (l *recordingLimiter) Wait(_ context.Context, rawURL string) error {
	l.urls = append(l.urls, rawURL)
	return l.err
}

func TestRenderRejectsBeforeLaunchingBrowser(t *testing.T) {
	t.Parallel()

	limiter := &recordingLimiter{err: errors.New("budget exhausted")}
	renderer, err := NewChromedp(Config{MaxParallel: 1}, nil, WithDomainLimiter(limiter))
	require.NoError(t, err)
	defer renderer.Close()

	_, err = renderer.Render(context.Background(), "not a url")
	var renderErr *crawler.RenderError
	require.ErrorAs(t, err, &renderErr)
	require.Equal(t, "invalid url", renderErr.Reason)
	require.Empty(t, limiter.urls)

	_, err = renderer.Render(context.Background(), "https://x.com/alice")
	require.ErrorAs(t, err, &renderErr)
	require.Equal(t, "rate limit", renderErr.Reason)
	require.Equal(t, []string{"https://x.com/alice"}, limiter.urls)
}

func TestRenderSlotWaitHonorsContext(t *testing.T) {
	t.Parallel()

	renderer, err := NewChromedp(Config{MaxParallel: 1}, nil)
	require.NoError(t, err)
	defer renderer.Close()
	renderer.limiter <- struct{}{}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = renderer.Render(ctx, "https://x.com/alice")
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func chromeAvailable() bool {
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}

func TestRenderIntegration(t *testing.T) {
	if testing.Short() || !chromeAvailable() {
		t.Skip("chrome not available")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><body><div id="root"></div>
<script>document.getElementById('root').innerHTML = '<div data-testid="UserName"><span>Alice</span></div>';</script>
</body></html>`))
	}))
	defer srv.Close()

	renderer, err := NewChromedp(Config{MaxParallel: 1, Headless: true, SettleDelay: 100 * time.Millisecond}, zap.NewNop())
	require.NoError(t, err)
	defer renderer.Close()

	page, err := renderer.Render(context.Background(), srv.URL+"/alice")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, page.StatusCode)
	require.Contains(t, page.HTML, "Alice")

	_, err = renderer.Render(context.Background(), srv.URL+"/missing")
	var renderErr *crawler.RenderError
	require.ErrorAs(t, err, &renderErr)
	require.Equal(t, "status 404", renderErr.Reason)
}
