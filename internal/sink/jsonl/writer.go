// Package jsonl streams records as newline-delimited JSON.
package jsonl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/JakeFAU/profile-contact-crawler/internal/crawler"
	"github.com/JakeFAU/profile-contact-crawler/internal/sink"
)

// Writer writes one JSON document per line. Each Emit writes and flushes a
// whole line under the lock, so concurrent records never interleave.
type Writer struct {
	mu  sync.Mutex
	out *bufio.Writer
}

// New wraps w.
func New(w io.Writer) *Writer {
	return &Writer{out: bufio.NewWriter(w)}
}

// Emit writes record as a single line.
func (w *Writer) Emit(ctx context.Context, record crawler.ProfileRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("emit canceled: %w", err)
	}
	data, err := sink.Encode(record)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := w.out.Flush(); err != nil {
		return fmt.Errorf("flush record: %w", err)
	}
	return nil
}
