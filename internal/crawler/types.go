package crawler

import (
	"encoding/json"
	"net/http"
	"time"
)

// FailedMarker is the error text carried by every failure record.
const FailedMarker = "failed"

// ProfileTask is the unit of scheduling: one input profile URL.
type ProfileTask struct {
	URL   string
	RunID string
	// Index is the position of URL in the run's input.
	Index int
}

// RenderedPage is the fully loaded DOM returned by a Renderer.
type RenderedPage struct {
	URL        string
	FinalURL   string
	StatusCode int
	HTML       string
	Duration   time.Duration
}

// PageContent is the structured data pulled out of a rendered profile page.
// Each field is either a non-empty trimmed string or empty, meaning absent.
type PageContent struct {
	Name    string
	Bio     string
	Website string
}

// FetchResponse is returned by a PageFetcher for secondary fetches.
type FetchResponse struct {
	URL         string
	StatusCode  int
	ContentType string
	Headers     http.Header
	Body        []byte
	Duration    time.Duration
}

// ProfileRecord is delivered to the sink exactly once per input URL. Error is
// set only on failure records; on success FoundEmails is never nil.
// VerifiedEmails is nil unless verification ran, in which case it is
// rendered even when empty.
type ProfileRecord struct {
	ProfileURL     string
	Name           string
	Bio            string
	Website        string
	FoundEmails    []string
	VerifiedEmails []string
	RunID          string
	CrawledAt      time.Time
	// Index is the position of the source URL in the run's input. It is not
	// part of the JSON document.
	Index int

	URL   string
	Error string
}

// NewSuccessRecord builds the record emitted when a profile reaches Done.
func NewSuccessRecord(profileURL string, content PageContent, emails []string) ProfileRecord {
	if emails == nil {
		emails = []string{}
	}
	return ProfileRecord{
		ProfileURL:  profileURL,
		Name:        content.Name,
		Bio:         content.Bio,
		Website:     content.Website,
		FoundEmails: emails,
	}
}

// NewFailureRecord builds the record emitted when rendering a profile fails.
func NewFailureRecord(url string) ProfileRecord {
	return ProfileRecord{URL: url, Error: FailedMarker}
}

// Failed reports whether r is a failure record.
func (r ProfileRecord) Failed() bool {
	return r.Error != ""
}

// SourceURL returns the input URL the record was produced for.
func (r ProfileRecord) SourceURL() string {
	if r.Failed() {
		return r.URL
	}
	return r.ProfileURL
}

type successJSON struct {
	ProfileURL     string     `json:"profileUrl"`
	Name           *string    `json:"name"`
	Bio            *string    `json:"bio"`
	Website        *string    `json:"website"`
	FoundEmails    []string   `json:"foundEmails"`
	VerifiedEmails *[]string  `json:"verifiedEmails,omitempty"`
	RunID          string     `json:"runId,omitempty"`
	CrawledAt      *time.Time `json:"crawledAt,omitempty"`
}

type failureJSON struct {
	URL   string `json:"url"`
	Error string `json:"error"`
}

// MarshalJSON renders failure records as exactly {url, error} and success
// records with absent fields as null.
func (r ProfileRecord) MarshalJSON() ([]byte, error) {
	if r.Failed() {
		return json.Marshal(failureJSON{URL: r.URL, Error: r.Error})
	}
	out := successJSON{
		ProfileURL:     r.ProfileURL,
		Name:           optional(r.Name),
		Bio:            optional(r.Bio),
		Website:        optional(r.Website),
		FoundEmails:    r.FoundEmails,
		RunID:          r.RunID,
	}
	if out.FoundEmails == nil {
		out.FoundEmails = []string{}
	}
	if r.VerifiedEmails != nil {
		verified := r.VerifiedEmails
		out.VerifiedEmails = &verified
	}
	if !r.CrawledAt.IsZero() {
		ts := r.CrawledAt
		out.CrawledAt = &ts
	}
	return json.Marshal(out)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
