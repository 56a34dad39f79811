// Package sink contains record sink composition helpers. Concrete sinks live
// in subpackages.
package sink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/JakeFAU/profile-contact-crawler/internal/crawler"
	"github.com/JakeFAU/profile-contact-crawler/internal/hash/sha256"
	"github.com/JakeFAU/profile-contact-crawler/internal/metrics"
)

// Func adapts a function to crawler.Sink.
type Func func(ctx context.Context, record crawler.ProfileRecord) error

// Emit calls f.
func (f Func) Emit(ctx context.Context, record crawler.ProfileRecord) error {
	return f(ctx, record)
}

// Named pairs a sink with the label used in metrics and errors.
type Named struct {
	Name string
	Sink crawler.Sink
}

// Fanout delivers each record to every child sink. A failing child does not
// stop delivery to the others.
type Fanout struct {
	sinks []Named
}

// NewFanout builds a Fanout over sinks, skipping nil entries.
func NewFanout(sinks ...Named) *Fanout {
	out := make([]Named, 0, len(sinks))
	for _, s := range sinks {
		if s.Sink != nil {
			out = append(out, s)
		}
	}
	return &Fanout{sinks: out}
}

// Len reports the number of child sinks.
func (f *Fanout) Len() int {
	return len(f.sinks)
}

// Emit sends record to every child and joins their errors.
func (f *Fanout) Emit(ctx context.Context, record crawler.ProfileRecord) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Sink.Emit(ctx, record); err != nil {
			metrics.ObserveSinkError(s.Name)
			errs = append(errs, fmt.Errorf("%s sink: %w", s.Name, err))
		}
	}
	return errors.Join(errs...)
}

// Encode renders record as its canonical JSON document.
func Encode(record crawler.ProfileRecord) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal record: %w", err)
	}
	return data, nil
}

var invalidNameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// ObjectName returns a stable, filesystem- and bucket-safe name for record:
// <prefix>/<run id>/<host>_<path>_<hash>_<index>.json. The input index keeps
// duplicate URLs within one run from overwriting each other.
func ObjectName(prefix string, record crawler.ProfileRecord) string {
	raw := record.SourceURL()
	base := sha256.Short(raw, 0)
	if u, err := url.Parse(raw); err == nil && u.Hostname() != "" {
		host := invalidNameChars.ReplaceAllString(u.Hostname(), "_")
		p := strings.Trim(u.EscapedPath(), "/")
		if p == "" {
			p = "root"
		}
		p = invalidNameChars.ReplaceAllString(p, "_")
		base = fmt.Sprintf("%s_%s_%s", host, p, sha256.Short(raw, 16))
	}

	run := record.RunID
	if run == "" {
		run = "adhoc"
	}
	base = fmt.Sprintf("%s_%d", base, record.Index)
	return path.Join(strings.Trim(prefix, "/"), invalidNameChars.ReplaceAllString(run, "_"), base+".json")
}
