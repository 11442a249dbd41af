package sqlc

import (
	"database/sql"
	"time"
)

type DownloadHistory struct {
	ID             int64          `json:"id"`
	SubscriptionID sql.NullString `json:"subscription_id"`
	VideoUrl       string         `json:"video_url"`
	VideoUrlHash   string         `json:"video_url_hash"`
	DownloadPath   string         `json:"download_path"`
	ItemID         string         `json:"item_id"`
	Title          string         `json:"title"`
	Language       string         `json:"language"`
	DownloadedAt   time.Time      `json:"downloaded_at"`
}

type QualityCache struct {
	UrlHash     string    `json:"url_hash"`
	Width       int64     `json:"width"`
	Height      int64     `json:"height"`
	Size        int64     `json:"size"`
	LastUpdated time.Time `json:"last_updated"`
}
