package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/JakeFAU/profile-contact-crawler/internal/crawler"
	"github.com/JakeFAU/profile-contact-crawler/internal/sink"
)

type upload struct {
	path  string
	name  string
	body  string
	query string
}

// newTestSink points a storage client at handler, simulating the JSON API.
func newTestSink(t *testing.T, handler http.Handler) *Sink {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)

	s, err := New(client, Config{Bucket: "test-bucket", Prefix: "profiles"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestEmitUploadsObject(t *testing.T) {
	t.Parallel()

	uploads := make(chan upload, 1)
	s := newTestSink(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		name := r.URL.Query().Get("name")
		uploads <- upload{path: r.URL.Path, name: name, body: string(body), query: r.URL.Query().Get("uploadType")}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"bucket":"test-bucket","name":%q}`, name)
	}))

	record := crawler.NewSuccessRecord("https://x.com/alice", crawler.PageContent{Name: "Alice"}, []string{"alice@example.com"})
	record.RunID = "run-1"
	require.NoError(t, s.Emit(context.Background(), record))

	got := <-uploads
	require.Contains(t, got.path, "/upload/storage/v1/b/test-bucket/o")
	require.Equal(t, "multipart", got.query)
	require.Equal(t, sink.ObjectName("profiles", record), got.name)
	require.Contains(t, got.body, `"profileUrl":"https://x.com/alice"`)
	require.Contains(t, got.body, "application/json")
}

func TestEmitServerError(t *testing.T) {
	t.Parallel()

	s := newTestSink(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	require.Error(t, s.Emit(context.Background(), crawler.NewFailureRecord("https://x.test/bob")))
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close()
	_, err = New(client, Config{})
	require.Error(t, err)
}
