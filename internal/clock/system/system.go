// Package system provides the wall clock used to stamp records.
package system

import "time"

// Clock implements crawler.Clock using time.Now in UTC, truncated to
// Precision when set.
type Clock struct {
	Precision time.Duration
}

// New creates a Clock with millisecond precision, matching the resolution
// downstream consumers of crawledAt expect.
func New() *Clock {
	return &Clock{Precision: time.Millisecond}
}

// Now returns the current time.
func (c Clock) Now() time.Time {
	now := time.Now().UTC()
	if c.Precision > 0 {
		now = now.Truncate(c.Precision)
	}
	return now
}
