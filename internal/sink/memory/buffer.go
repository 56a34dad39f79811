// Package memory provides an in-process record sink.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/profile-contact-crawler/internal/crawler"
)

// Buffer collects records in arrival order.
type Buffer struct {
	mu      sync.Mutex
	records []crawler.ProfileRecord
}

// NewBuffer creates an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Emit appends record.
func (b *Buffer) Emit(_ context.Context, record crawler.ProfileRecord) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, record)
	return nil
}

// Records returns a copy of the collected records.
func (b *Buffer) Records() []crawler.ProfileRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]crawler.ProfileRecord, len(b.records))
	copy(out, b.records)
	return out
}

// Len reports how many records have been collected.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// InputOrder returns the records rearranged to follow urls, the run's input.
// Records for URLs that appear more than once are matched in arrival order.
// Records not matched to any input URL are appended at the end.
func (b *Buffer) InputOrder(urls []string) []crawler.ProfileRecord {
	pending := make(map[string][]crawler.ProfileRecord)
	for _, r := range b.Records() {
		pending[r.SourceURL()] = append(pending[r.SourceURL()], r)
	}
	out := make([]crawler.ProfileRecord, 0, b.Len())
	for _, u := range urls {
		queue := pending[u]
		if len(queue) == 0 {
			continue
		}
		out = append(out, queue[0])
		pending[u] = queue[1:]
	}
	for _, u := range urls {
		out = append(out, pending[u]...)
		delete(pending, u)
	}
	for _, rest := range pending {
		out = append(out, rest...)
	}
	return out
}
