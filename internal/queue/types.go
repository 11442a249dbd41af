package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/mediathekdl/mediathekdl/internal/downloader"
)

// Status is the lifecycle state of a queued download.
type Status string

const (
	StatusQueued      Status = "queued"
	StatusDownloading Status = "downloading"
	StatusProcessing  Status = "processing"
	StatusFinished    Status = "finished"
	StatusFailed      Status = "failed"
	StatusCancelled   Status = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusFailed || s == StatusCancelled
}

// canMoveTo enforces Queued -> {Downloading, Processing} -> terminal.
func (s Status) canMoveTo(next Status) bool {
	switch s {
	case StatusQueued:
		return next != StatusQueued
	case StatusDownloading:
		return next != StatusQueued && next != StatusDownloading
	case StatusProcessing:
		return next.Terminal()
	default:
		return false
	}
}

// ActiveDownload is a snapshot of one registry entry.
type ActiveDownload struct {
	ID             uuid.UUID       `json:"id"`
	SubscriptionID *uuid.UUID      `json:"subscriptionId,omitempty"`
	Job            *downloader.Job `json:"job"`
	Status         Status          `json:"status"`
	Progress       float64         `json:"progress"`
	Error          string          `json:"error,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	FinishedAt     *time.Time      `json:"finishedAt,omitempty"`
}

// StatusEvent is broadcast whenever an entry changes.
type StatusEvent struct {
	ID       uuid.UUID `json:"id"`
	Title    string    `json:"title"`
	Status   Status    `json:"status"`
	Progress float64   `json:"progress"`
	Error    string    `json:"error,omitempty"`
}
