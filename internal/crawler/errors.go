package crawler

import (
	"errors"
	"fmt"
)

var (
	// ErrNoProfiles is wrapped by the ConfigurationError raised for an empty input list.
	ErrNoProfiles = errors.New("no profile urls provided")
	// ErrInvalidConcurrency is wrapped when the concurrency bound is below one.
	ErrInvalidConcurrency = errors.New("concurrency must be >= 1")
)

// ConfigurationError is fatal and aborts a run before any task is dispatched.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// RenderError reports a navigation, timeout, or blocked-page failure for one profile.
type RenderError struct {
	URL    string
	Reason string
	Err    error
}

// NewRenderError wraps err with the URL and a short reason.
func NewRenderError(url, reason string, err error) *RenderError {
	return &RenderError{URL: url, Reason: reason, Err: err}
}

func (e *RenderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("render %s: %s", e.URL, e.Reason)
	}
	return fmt.Sprintf("render %s: %s: %v", e.URL, e.Reason, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// SecondaryFetchError reports a failed website fetch during email discovery.
// It is always recovered inside the site-email fetcher.
type SecondaryFetchError struct {
	URL string
	Err error
}

func (e *SecondaryFetchError) Error() string {
	return fmt.Sprintf("fetch site %s: %v", e.URL, e.Err)
}

func (e *SecondaryFetchError) Unwrap() error {
	return e.Err
}
