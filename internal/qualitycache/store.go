// Package qualitycache remembers the last probed dimensions and size of
// remote video URLs so repeated subscription runs need not re-probe them.
package qualitycache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mediathekdl/mediathekdl/internal/database/sqlc"
	"github.com/mediathekdl/mediathekdl/internal/history"
)

// ErrNotFound is returned when the URL has no cached entry.
var ErrNotFound = errors.New("quality cache entry not found")

// Entry is the cached probe result for one URL.
type Entry struct {
	URLHash     string    `json:"urlHash"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	Size        int64     `json:"size"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Pixels returns the frame area used for quality comparisons.
func (e *Entry) Pixels() int {
	return e.Width * e.Height
}

// Store persists quality cache entries keyed by URL hash.
type Store struct {
	queries *sqlc.Queries
	logger  zerolog.Logger
	now     func() time.Time
}

// NewStore creates a new quality cache store.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		queries: sqlc.New(db),
		logger:  logger.With().Str("component", "qualitycache").Logger(),
		now:     time.Now,
	}
}

// Get returns the cached entry for url.
func (s *Store) Get(ctx context.Context, url string) (*Entry, error) {
	row, err := s.queries.GetQualityCache(ctx, history.HashURL(url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get quality cache entry: %w", err)
	}
	return &Entry{
		URLHash:     row.UrlHash,
		Width:       int(row.Width),
		Height:      int(row.Height),
		Size:        row.Size,
		LastUpdated: row.LastUpdated,
	}, nil
}

// Put inserts or replaces the entry for url.
func (s *Store) Put(ctx context.Context, url string, width, height int, size int64) error {
	err := s.queries.UpsertQualityCache(ctx, sqlc.UpsertQualityCacheParams{
		UrlHash:     history.HashURL(url),
		Width:       int64(width),
		Height:      int64(height),
		Size:        size,
		LastUpdated: s.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to store quality cache entry: %w", err)
	}
	s.logger.Debug().Str("url", url).Int("width", width).Int("height", height).Int64("size", size).Msg("cached quality")
	return nil
}

// Remove deletes the entry for url, if any.
func (s *Store) Remove(ctx context.Context, url string) error {
	if err := s.queries.DeleteQualityCache(ctx, history.HashURL(url)); err != nil {
		return fmt.Errorf("failed to remove quality cache entry: %w", err)
	}
	return nil
}
