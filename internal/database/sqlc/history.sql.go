package sqlc

import (
	"context"
	"database/sql"
	"time"
)

const countDownloadHistory = `-- name: CountDownloadHistory :one
SELECT COUNT(1) FROM download_history
WHERE (?1 IS NULL OR subscription_id = ?1)
`

func (q *Queries) CountDownloadHistory(ctx context.Context, subscriptionID sql.NullString) (int64, error) {
	row := q.db.QueryRowContext(ctx, countDownloadHistory, subscriptionID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const countDownloadHistoryByItemAndSubscription = `-- name: CountDownloadHistoryByItemAndSubscription :one
SELECT COUNT(1) FROM download_history
WHERE item_id = ? AND subscription_id = ?
`

type CountDownloadHistoryByItemAndSubscriptionParams struct {
	ItemID         string         `json:"item_id"`
	SubscriptionID sql.NullString `json:"subscription_id"`
}

func (q *Queries) CountDownloadHistoryByItemAndSubscription(ctx context.Context, arg CountDownloadHistoryByItemAndSubscriptionParams) (int64, error) {
	row := q.db.QueryRowContext(ctx, countDownloadHistoryByItemAndSubscription, arg.ItemID, arg.SubscriptionID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const countDownloadHistoryByURLHash = `-- name: CountDownloadHistoryByURLHash :one
SELECT COUNT(1) FROM download_history WHERE video_url_hash = ?
`

func (q *Queries) CountDownloadHistoryByURLHash(ctx context.Context, videoUrlHash string) (int64, error) {
	row := q.db.QueryRowContext(ctx, countDownloadHistoryByURLHash, videoUrlHash)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const createDownloadHistory = `-- name: CreateDownloadHistory :one
INSERT INTO download_history (
    subscription_id, video_url, video_url_hash, download_path, item_id, title, language, downloaded_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
RETURNING id, subscription_id, video_url, video_url_hash, download_path, item_id, title, language, downloaded_at
`

type CreateDownloadHistoryParams struct {
	SubscriptionID sql.NullString `json:"subscription_id"`
	VideoUrl       string         `json:"video_url"`
	VideoUrlHash   string         `json:"video_url_hash"`
	DownloadPath   string         `json:"download_path"`
	ItemID         string         `json:"item_id"`
	Title          string         `json:"title"`
	Language       string         `json:"language"`
	DownloadedAt   time.Time      `json:"downloaded_at"`
}

func (q *Queries) CreateDownloadHistory(ctx context.Context, arg CreateDownloadHistoryParams) (DownloadHistory, error) {
	row := q.db.QueryRowContext(ctx, createDownloadHistory,
		arg.SubscriptionID,
		arg.VideoUrl,
		arg.VideoUrlHash,
		arg.DownloadPath,
		arg.ItemID,
		arg.Title,
		arg.Language,
		arg.DownloadedAt,
	)
	return scanDownloadHistory(row)
}

const getLatestDownloadHistoryByItemID = `-- name: GetLatestDownloadHistoryByItemID :one
SELECT id, subscription_id, video_url, video_url_hash, download_path, item_id, title, language, downloaded_at FROM download_history
WHERE item_id = ?
ORDER BY downloaded_at DESC, id DESC
LIMIT 1
`

func (q *Queries) GetLatestDownloadHistoryByItemID(ctx context.Context, itemID string) (DownloadHistory, error) {
	row := q.db.QueryRowContext(ctx, getLatestDownloadHistoryByItemID, itemID)
	return scanDownloadHistory(row)
}

const getLatestDownloadHistoryByURLHash = `-- name: GetLatestDownloadHistoryByURLHash :one
SELECT id, subscription_id, video_url, video_url_hash, download_path, item_id, title, language, downloaded_at FROM download_history
WHERE video_url_hash = ?
ORDER BY downloaded_at DESC, id DESC
LIMIT 1
`

func (q *Queries) GetLatestDownloadHistoryByURLHash(ctx context.Context, videoUrlHash string) (DownloadHistory, error) {
	row := q.db.QueryRowContext(ctx, getLatestDownloadHistoryByURLHash, videoUrlHash)
	return scanDownloadHistory(row)
}

const listDownloadHistoryBySubscription = `-- name: ListDownloadHistoryBySubscription :many
SELECT id, subscription_id, video_url, video_url_hash, download_path, item_id, title, language, downloaded_at FROM download_history
WHERE subscription_id = ?
ORDER BY downloaded_at DESC, id DESC
`

func (q *Queries) ListDownloadHistoryBySubscription(ctx context.Context, subscriptionID sql.NullString) ([]DownloadHistory, error) {
	rows, err := q.db.QueryContext(ctx, listDownloadHistoryBySubscription, subscriptionID)
	if err != nil {
		return nil, err
	}
	return collectDownloadHistory(rows)
}

const listDownloadHistoryPaginated = `-- name: ListDownloadHistoryPaginated :many
SELECT id, subscription_id, video_url, video_url_hash, download_path, item_id, title, language, downloaded_at FROM download_history
WHERE (?1 IS NULL OR subscription_id = ?1)
ORDER BY downloaded_at DESC, id DESC
LIMIT ?2 OFFSET ?3
`

type ListDownloadHistoryPaginatedParams struct {
	SubscriptionID sql.NullString `json:"subscription_id"`
	Limit          int64          `json:"limit"`
	Offset         int64          `json:"offset"`
}

func (q *Queries) ListDownloadHistoryPaginated(ctx context.Context, arg ListDownloadHistoryPaginatedParams) ([]DownloadHistory, error) {
	rows, err := q.db.QueryContext(ctx, listDownloadHistoryPaginated, arg.SubscriptionID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	return collectDownloadHistory(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDownloadHistory(row rowScanner) (DownloadHistory, error) {
	var i DownloadHistory
	err := row.Scan(
		&i.ID,
		&i.SubscriptionID,
		&i.VideoUrl,
		&i.VideoUrlHash,
		&i.DownloadPath,
		&i.ItemID,
		&i.Title,
		&i.Language,
		&i.DownloadedAt,
	)
	return i, err
}

func collectDownloadHistory(rows *sql.Rows) ([]DownloadHistory, error) {
	defer rows.Close()
	items := []DownloadHistory{}
	for rows.Next() {
		i, err := scanDownloadHistory(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
