// Package local writes each record to its own JSON file on disk.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/profile-contact-crawler/internal/crawler"
	"github.com/JakeFAU/profile-contact-crawler/internal/sink"
)

// Config captures the parameters for the local filesystem sink.
type Config struct {
	// BaseDir is the root directory records are written under.
	BaseDir string `mapstructure:"base_dir"`
}

// Sink writes records beneath a base directory.
type Sink struct {
	baseDir string
}

// New creates the sink, creating BaseDir if needed and verifying it is writable.
func New(cfg Config) (*Sink, error) {
	if strings.TrimSpace(cfg.BaseDir) == "" {
		return nil, fmt.Errorf("base directory is required")
	}

	info, err := os.Stat(cfg.BaseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(cfg.BaseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create base directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat base directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("base directory path is not a directory")
	}

	marker := filepath.Join(cfg.BaseDir, ".writable_test")
	if err := os.WriteFile(marker, []byte("test"), 0o600); err != nil {
		return nil, fmt.Errorf("base directory is not writable: %w", err)
	}
	if err := os.Remove(marker); err != nil {
		return nil, fmt.Errorf("clean up marker file: %w", err)
	}

	return &Sink{baseDir: filepath.Clean(cfg.BaseDir)}, nil
}

// Emit writes record to <base>/<run id>/<name>.json. The file is written to a
// temporary name first and renamed so readers never see a partial document.
func (s *Sink) Emit(ctx context.Context, record crawler.ProfileRecord) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("emit canceled: %w", err)
	}
	target, err := s.pathFor(sink.ObjectName("", record))
	if err != nil {
		return err
	}
	data, err := sink.Encode(record)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return fmt.Errorf("create record dir for %s: %w", target, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(target), ".record-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write record %s: %w", target, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close record %s: %w", target, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("rename record %s: %w", target, err)
	}
	return nil
}

// pathFor joins name under the base dir and rejects traversal.
func (s *Sink) pathFor(name string) (string, error) {
	full := filepath.Clean(filepath.Join(s.baseDir, filepath.FromSlash(name)))
	if !strings.HasPrefix(full, s.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected")
	}
	return full, nil
}
