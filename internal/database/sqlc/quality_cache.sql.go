package sqlc

import (
	"context"
	"time"
)

const deleteQualityCache = `-- name: DeleteQualityCache :exec
DELETE FROM quality_cache WHERE url_hash = ?
`

func (q *Queries) DeleteQualityCache(ctx context.Context, urlHash string) error {
	_, err := q.db.ExecContext(ctx, deleteQualityCache, urlHash)
	return err
}

const getQualityCache = `-- name: GetQualityCache :one
SELECT url_hash, width, height, size, last_updated FROM quality_cache WHERE url_hash = ?
`

func (q *Queries) GetQualityCache(ctx context.Context, urlHash string) (QualityCache, error) {
	row := q.db.QueryRowContext(ctx, getQualityCache, urlHash)
	var i QualityCache
	err := row.Scan(
		&i.UrlHash,
		&i.Width,
		&i.Height,
		&i.Size,
		&i.LastUpdated,
	)
	return i, err
}

const upsertQualityCache = `-- name: UpsertQualityCache :exec
INSERT INTO quality_cache (url_hash, width, height, size, last_updated)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(url_hash) DO UPDATE SET
    width = excluded.width,
    height = excluded.height,
    size = excluded.size,
    last_updated = excluded.last_updated
`

type UpsertQualityCacheParams struct {
	UrlHash     string    `json:"url_hash"`
	Width       int64     `json:"width"`
	Height      int64     `json:"height"`
	Size        int64     `json:"size"`
	LastUpdated time.Time `json:"last_updated"`
}

func (q *Queries) UpsertQualityCache(ctx context.Context, arg UpsertQualityCacheParams) error {
	_, err := q.db.ExecContext(ctx, upsertQualityCache,
		arg.UrlHash,
		arg.Width,
		arg.Height,
		arg.Size,
		arg.LastUpdated,
	)
	return err
}
