// Package postgres persists records as rows in Postgres.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/profile-contact-crawler/internal/crawler"
)

const defaultTable = "profile_records"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for record rows.
//
// Expected schema:
//
//	CREATE TABLE profile_records (
//		run_id          TEXT NOT NULL,
//		input_url       TEXT NOT NULL,
//		failed          BOOLEAN NOT NULL,
//		name            TEXT,
//		bio             TEXT,
//		website         TEXT,
//		found_emails    TEXT[] NOT NULL,
//		verified_emails TEXT[],
//		crawled_at      TIMESTAMPTZ
//	);
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Sink writes one row per record.
type Sink struct {
	pool  execCloser
	table string
	query string
}

// New creates a Postgres-backed sink using the provided config.
func New(ctx context.Context, cfg Config) (*Sink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("output.postgres_dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s, err := NewWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewWithPool constructs a sink from an existing pool (primarily for testing).
func NewWithPool(pool execCloser, table string) (*Sink, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = defaultTable
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Sink{pool: pool, table: table, query: insertQuery(table)}, nil
}

func insertQuery(table string) string {
	return fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	input_url,
	failed,
	name,
	bio,
	website,
	found_emails,
	verified_emails,
	crawled_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)`, table)
}

// Close releases the underlying pool resources.
func (s *Sink) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Emit inserts record. Absent fields are stored as NULL.
func (s *Sink) Emit(ctx context.Context, record crawler.ProfileRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("postgres sink is not configured")
	}
	found := record.FoundEmails
	if found == nil {
		found = []string{}
	}
	var crawledAt any
	if !record.CrawledAt.IsZero() {
		crawledAt = record.CrawledAt
	}
	args := []any{
		record.RunID,
		record.SourceURL(),
		record.Failed(),
		nullable(record.Name),
		nullable(record.Bio),
		nullable(record.Website),
		found,
		record.VerifiedEmails,
		crawledAt,
	}
	if _, err := s.pool.Exec(ctx, s.query, args...); err != nil {
		return fmt.Errorf("insert profile record: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
