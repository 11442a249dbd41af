package history

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mediathekdl/mediathekdl/internal/database/sqlc"
)

// ErrNotFound is returned when no history entry matches.
var ErrNotFound = errors.New("history entry not found")

// HashURL returns the key under which a video URL is stored.
func HashURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Store persists the download history.
type Store struct {
	queries *sqlc.Queries
	logger  zerolog.Logger
	now     func() time.Time
}

// NewStore creates a new history store.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		queries: sqlc.New(db),
		logger:  logger.With().Str("component", "history").Logger(),
		now:     time.Now,
	}
}

// Add records a downloaded item. The URL hash and timestamp are filled in.
func (s *Store) Add(ctx context.Context, e Entry) (*Entry, error) {
	downloadedAt := e.DownloadedAt
	if downloadedAt.IsZero() {
		downloadedAt = s.now()
	}

	row, err := s.queries.CreateDownloadHistory(ctx, sqlc.CreateDownloadHistoryParams{
		SubscriptionID: nullableUUID(e.SubscriptionID),
		VideoUrl:       e.VideoURL,
		VideoUrlHash:   HashURL(e.VideoURL),
		DownloadPath:   e.DownloadPath,
		ItemID:         e.ItemID,
		Title:          e.Title,
		Language:       e.Language,
		DownloadedAt:   downloadedAt.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to insert history entry: %w", err)
	}

	s.logger.Debug().Str("url", e.VideoURL).Str("path", e.DownloadPath).Msg("recorded download")
	return toEntry(row), nil
}

// Exists reports whether the URL has been downloaded before.
func (s *Store) Exists(ctx context.Context, url string) (bool, error) {
	n, err := s.queries.CountDownloadHistoryByURLHash(ctx, HashURL(url))
	if err != nil {
		return false, fmt.Errorf("failed to query history: %w", err)
	}
	return n > 0, nil
}

// GetByURL returns the most recent entry for a URL.
func (s *Store) GetByURL(ctx context.Context, url string) (*Entry, error) {
	row, err := s.queries.GetLatestDownloadHistoryByURLHash(ctx, HashURL(url))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history entry: %w", err)
	}
	return toEntry(row), nil
}

// GetByItemID returns the most recent entry for an upstream item id.
func (s *Store) GetByItemID(ctx context.Context, itemID string) (*Entry, error) {
	row, err := s.queries.GetLatestDownloadHistoryByItemID(ctx, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get history entry: %w", err)
	}
	return toEntry(row), nil
}

// HasItem reports whether an upstream item was downloaded for a subscription.
func (s *Store) HasItem(ctx context.Context, itemID string, subscriptionID uuid.UUID) (bool, error) {
	n, err := s.queries.CountDownloadHistoryByItemAndSubscription(ctx, sqlc.CountDownloadHistoryByItemAndSubscriptionParams{
		ItemID:         itemID,
		SubscriptionID: nullableUUID(&subscriptionID),
	})
	if err != nil {
		return false, fmt.Errorf("failed to query history: %w", err)
	}
	return n > 0, nil
}

// ListBySubscription returns all entries recorded for a subscription, newest first.
func (s *Store) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID) ([]*Entry, error) {
	rows, err := s.queries.ListDownloadHistoryBySubscription(ctx, nullableUUID(&subscriptionID))
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return toEntries(rows), nil
}

// List lists history entries with pagination.
func (s *Store) List(ctx context.Context, opts ListOptions) (*ListResponse, error) {
	if opts.Page < 1 {
		opts.Page = 1
	}
	if opts.PageSize < 1 {
		opts.PageSize = 50
	}
	if opts.PageSize > 100 {
		opts.PageSize = 100
	}

	subID := nullableUUID(opts.SubscriptionID)
	total, err := s.queries.CountDownloadHistory(ctx, subID)
	if err != nil {
		return nil, fmt.Errorf("failed to count history: %w", err)
	}

	rows, err := s.queries.ListDownloadHistoryPaginated(ctx, sqlc.ListDownloadHistoryPaginatedParams{
		SubscriptionID: subID,
		Limit:          int64(opts.PageSize),
		Offset:         int64((opts.Page - 1) * opts.PageSize),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}

	totalPages := int(total) / opts.PageSize
	if int(total)%opts.PageSize > 0 {
		totalPages++
	}

	return &ListResponse{
		Items:      toEntries(rows),
		Page:       opts.Page,
		PageSize:   opts.PageSize,
		TotalCount: total,
		TotalPages: totalPages,
	}, nil
}

func toEntry(row sqlc.DownloadHistory) *Entry {
	e := &Entry{
		ID:           row.ID,
		VideoURL:     row.VideoUrl,
		VideoURLHash: row.VideoUrlHash,
		DownloadPath: row.DownloadPath,
		ItemID:       row.ItemID,
		Title:        row.Title,
		Language:     row.Language,
		DownloadedAt: row.DownloadedAt,
	}
	if row.SubscriptionID.Valid {
		if id, err := uuid.Parse(row.SubscriptionID.String); err == nil {
			e.SubscriptionID = &id
		}
	}
	return e
}

func toEntries(rows []sqlc.DownloadHistory) []*Entry {
	entries := make([]*Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, toEntry(row))
	}
	return entries
}

func nullableUUID(id *uuid.UUID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}
