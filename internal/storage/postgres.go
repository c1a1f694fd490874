package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/deusflow/newspulse/internal/models"
	"github.com/deusflow/newspulse/internal/retry"
)

const schema = `
CREATE TABLE IF NOT EXISTS rss_feeds (
	url          TEXT PRIMARY KEY,
	is_active    BOOLEAN NOT NULL DEFAULT TRUE,
	last_checked TIMESTAMPTZ,
	last_error   TEXT,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_rss_feeds_active ON rss_feeds(is_active);
`

// PostgresRegistry stores feeds in the rss_feeds table.
type PostgresRegistry struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewPostgresRegistry connects, retrying a few times, and creates the
// schema if needed.
func NewPostgresRegistry(ctx context.Context, dsn string, log *slog.Logger) (*PostgresRegistry, error) {
	if log == nil {
		log = slog.Default()
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}

	var pool *pgxpool.Pool
	err = retry.WithRetry(ctx, retry.RetryConfig{MaxAttempts: 3, Delay: 2 * time.Second, Backoff: true}, func() error {
		p, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	log.Info("postgres feed registry ready")
	return &PostgresRegistry{pool: pool, log: log}, nil
}

func (p *PostgresRegistry) Close() {
	p.pool.Close()
}

func (p *PostgresRegistry) query(ctx context.Context, where string) ([]models.FeedDescriptor, error) {
	rows, err := p.pool.Query(ctx, `SELECT url, is_active, last_checked, COALESCE(last_error, '') FROM rss_feeds `+where+` ORDER BY created_at, url`)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	defer rows.Close()

	var feeds []models.FeedDescriptor
	for rows.Next() {
		var f models.FeedDescriptor
		if err := rows.Scan(&f.URL, &f.IsActive, &f.LastChecked, &f.LastError); err != nil {
			return nil, fmt.Errorf("failed to scan feed: %w", err)
		}
		feeds = append(feeds, f)
	}
	return feeds, rows.Err()
}

func (p *PostgresRegistry) ListFeeds(ctx context.Context) ([]models.FeedDescriptor, error) {
	return p.query(ctx, "")
}

func (p *PostgresRegistry) ListActiveFeeds(ctx context.Context) ([]models.FeedDescriptor, error) {
	return p.query(ctx, "WHERE is_active")
}

func (p *PostgresRegistry) AddFeed(ctx context.Context, url string) error {
	url = strings.TrimSpace(url)
	if !validFeedURL(url) {
		return ErrInvalidURL
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO rss_feeds (url, is_active) VALUES ($1, TRUE)
		ON CONFLICT (url) DO UPDATE SET is_active = TRUE`, url)
	if err != nil {
		return fmt.Errorf("failed to add feed: %w", err)
	}
	return nil
}

func (p *PostgresRegistry) SetActive(ctx context.Context, url string, active bool) error {
	tag, err := p.pool.Exec(ctx, `UPDATE rss_feeds SET is_active = $2 WHERE url = $1`, url, active)
	if err != nil {
		return fmt.Errorf("failed to update feed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFeedNotFound
	}
	return nil
}

func (p *PostgresRegistry) RecordPollResult(ctx context.Context, url string, pollErr error, checkedAt time.Time) error {
	var lastError *string
	if pollErr != nil {
		msg := pollErr.Error()
		lastError = &msg
	}
	tag, err := p.pool.Exec(ctx, `UPDATE rss_feeds SET last_checked = $2, last_error = $3 WHERE url = $1`, url, checkedAt.UTC(), lastError)
	if err != nil {
		return fmt.Errorf("failed to record poll result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFeedNotFound
	}
	return nil
}

// Feed returns one feed by url.
func (p *PostgresRegistry) Feed(ctx context.Context, url string) (models.FeedDescriptor, error) {
	var f models.FeedDescriptor
	err := p.pool.QueryRow(ctx, `SELECT url, is_active, last_checked, COALESCE(last_error, '') FROM rss_feeds WHERE url = $1`, url).
		Scan(&f.URL, &f.IsActive, &f.LastChecked, &f.LastError)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return f, ErrFeedNotFound
		}
		return f, fmt.Errorf("failed to load feed: %w", err)
	}
	return f, nil
}
