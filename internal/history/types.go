package history

import (
	"time"

	"github.com/google/uuid"
)

// Entry records one successfully downloaded item.
type Entry struct {
	ID             int64      `json:"id"`
	SubscriptionID *uuid.UUID `json:"subscriptionId,omitempty"`
	VideoURL       string     `json:"videoUrl"`
	VideoURLHash   string     `json:"videoUrlHash"`
	DownloadPath   string     `json:"downloadPath"`
	ItemID         string     `json:"itemId"`
	Title          string     `json:"title"`
	Language       string     `json:"language"`
	DownloadedAt   time.Time  `json:"downloadedAt"`
}

// ListOptions contains options for listing history.
type ListOptions struct {
	SubscriptionID *uuid.UUID
	Page           int
	PageSize       int
}

// ListResponse contains paginated history results.
type ListResponse struct {
	Items      []*Entry `json:"items"`
	Page       int      `json:"page"`
	PageSize   int      `json:"pageSize"`
	TotalCount int64    `json:"totalCount"`
	TotalPages int      `json:"totalPages"`
}
