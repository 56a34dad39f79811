package crawler

import (
	"context"
	"time"
)

// Renderer fetches a profile URL and returns content representative of the
// fully loaded page. Failures are reported as *RenderError.
type Renderer interface {
	Render(ctx context.Context, url string) (RenderedPage, error)
}

// PageFetcher performs a single best-effort GET for secondary pages.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// ProfileExtractor turns a rendered page into structured profile fields.
type ProfileExtractor interface {
	Extract(page RenderedPage) PageContent
}

// SiteEmailFetcher discovers emails on a linked website. It never fails; any
// problem degrades to an empty result.
type SiteEmailFetcher interface {
	FetchSiteEmails(ctx context.Context, url string) []string
}

// Sink receives each completed or failed record. Implementations must be
// safe for concurrent use and treat each Emit as one atomic unit.
type Sink interface {
	Emit(ctx context.Context, record ProfileRecord) error
}

// Queue provides the pending URL queue shared by scheduler workers.
type Queue interface {
	Enqueue(ctx context.Context, task ProfileTask) error
	Dequeue(ctx context.Context) (ProfileTask, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
