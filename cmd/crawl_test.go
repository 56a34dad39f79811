package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/profile-contact-crawler/internal/app"
	"github.com/JakeFAU/profile-contact-crawler/internal/config"
	"github.com/JakeFAU/profile-contact-crawler/internal/crawler"
)

type stubRenderer struct{}

func (stubRenderer) Render(_ context.Context, url string) (crawler.RenderedPage, error) {
	if strings.Contains(url, "broken") {
		return crawler.RenderedPage{}, crawler.NewRenderError(url, "status 404", nil)
	}
	return crawler.RenderedPage{
		URL:        url,
		FinalURL:   url,
		StatusCode: http.StatusOK,
		HTML:       `<div data-testid="UserName"><span>Stub</span></div><div data-testid="UserDescription">hi@stub.io</div>`,
	}, nil
}

// useStubApp swaps the factory for one that never launches a browser. Tests
// using it must not run in parallel.
func useStubApp(t *testing.T, out *bytes.Buffer) {
	t.Helper()
	orig := newApp
	newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
		return app.New(ctx, cfg, logger, app.WithRenderer(stubRenderer{}), app.WithStdout(out))
	}
	t.Cleanup(func() { newApp = orig })
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestCrawlUsesProfileFlags(t *testing.T) {
	var out bytes.Buffer
	useStubApp(t, &out)

	root := newRootCmd()
	root.SetArgs([]string{
		"--config", writeConfig(t, "max_concurrency: 1\n"),
		"crawl",
		"--profile", "https://x.com/one",
		"--profile", " https://x.com/broken ",
		"--max-concurrency", "3",
	})
	require.NoError(t, root.ExecuteContext(context.Background()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)
	got := map[string]map[string]any{}
	for _, line := range lines {
		var rec map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		if u, ok := rec["profileUrl"].(string); ok {
			got[u] = rec
		} else {
			got[rec["url"].(string)] = rec
		}
	}
	require.Equal(t, []any{"hi@stub.io"}, got["https://x.com/one"]["foundEmails"])
	require.Equal(t, "failed", got["https://x.com/broken"]["error"])
}

func TestCrawlWithoutProfilesFails(t *testing.T) {
	var out bytes.Buffer
	useStubApp(t, &out)

	root := newRootCmd()
	root.SetArgs([]string{"--config", writeConfig(t, "profiles: []\n"), "crawl"})
	root.SetErr(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	require.ErrorIs(t, err, crawler.ErrNoProfiles)
	require.Empty(t, out.String())
}

func TestCrawlRejectsNegativeConcurrencyFlag(t *testing.T) {
	var out bytes.Buffer
	useStubApp(t, &out)

	root := newRootCmd()
	root.SetArgs([]string{
		"--config", writeConfig(t, "profiles: [\"https://x.com/one\"]\n"),
		"crawl", "--max-concurrency", "-1",
	})
	root.SetErr(&bytes.Buffer{})
	require.Error(t, root.ExecuteContext(context.Background()))
	require.Empty(t, out.String())
}

func TestCrawlReadsProfilesFromConfigAlias(t *testing.T) {
	var out bytes.Buffer
	useStubApp(t, &out)

	path := filepath.Join(t.TempDir(), "input.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"profileUrls":["https://x.com/one"],"maxConcurrency":0}`), 0o600))

	root := newRootCmd()
	root.SetArgs([]string{"--config", path, "crawl"})
	require.NoError(t, root.ExecuteContext(context.Background()))
	require.Contains(t, out.String(), `"profileUrl":"https://x.com/one"`)
}

func TestMissingConfigFileFails(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml"), "crawl"})
	root.SetErr(&bytes.Buffer{})
	require.Error(t, root.ExecuteContext(context.Background()))
}
