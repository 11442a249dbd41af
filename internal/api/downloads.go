package api

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/mediathekdl/mediathekdl/internal/downloader"
	"github.com/mediathekdl/mediathekdl/internal/queue"
)

// EnqueueRequest is the body of POST /downloads.
type EnqueueRequest struct {
	ItemID         string                 `json:"itemId"`
	Title          string                 `json:"title"`
	SubscriptionID *uuid.UUID             `json:"subscriptionId,omitempty"`
	VideoInfo      downloader.VideoInfo   `json:"videoInfo"`
	NFO            *downloader.NFOPayload `json:"nfo,omitempty"`
	Items          []downloader.Item      `json:"items"`
}

// PruneRequest is the body of POST /downloads/prune.
type PruneRequest struct {
	OlderThanMinutes int `json:"olderThanMinutes"`
}

func (s *Server) validateEnqueue(req *EnqueueRequest) error {
	if req.Title == "" {
		return errors.New("title is required")
	}
	if len(req.Items) == 0 {
		return errors.New("at least one item is required")
	}
	for i, it := range req.Items {
		if !it.Type.Valid() {
			return fmt.Errorf("item %d: unknown type %q", i, it.Type)
		}
		if !filepath.IsAbs(it.DestinationPath) {
			return fmt.Errorf("item %d: destination must be an absolute path", i)
		}
		if it.ReplacePath != "" && !filepath.IsAbs(it.ReplacePath) {
			return fmt.Errorf("item %d: replace path must be an absolute path", i)
		}
		if s.deps.URLs != nil {
			if _, err := s.deps.URLs.Check(it.SourceURL); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
	}
	if req.NFO != nil && !filepath.IsAbs(req.NFO.FilePath) {
		return errors.New("nfo path must be an absolute path")
	}
	return nil
}

// enqueueDownload submits a job.
// POST /api/v1/downloads
func (s *Server) enqueueDownload(c echo.Context) error {
	var req EnqueueRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if err := s.validateEnqueue(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	job := downloader.NewJob(req.ItemID, req.Title, req.VideoInfo, req.NFO, req.Items...)
	id := s.deps.Queue.Enqueue(job, req.SubscriptionID)

	a, err := s.deps.Queue.Get(id)
	if err != nil {
		return c.JSON(http.StatusCreated, map[string]string{"id": id.String()})
	}
	return c.JSON(http.StatusCreated, a)
}

// listDownloads returns every tracked download, newest first.
// GET /api/v1/downloads
func (s *Server) listDownloads(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Queue.ListActive())
}

// getDownload returns one download.
// GET /api/v1/downloads/:id
func (s *Server) getDownload(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	a, err := s.deps.Queue.Get(id)
	if err != nil {
		return c.JSON(queueErrorStatus(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, a)
}

// cancelDownload cancels a queued or running download.
// DELETE /api/v1/downloads/:id
func (s *Server) cancelDownload(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid id"})
	}

	if err := s.deps.Queue.Cancel(id); err != nil {
		return c.JSON(queueErrorStatus(err), map[string]string{"error": err.Error()})
	}
	return c.NoContent(http.StatusNoContent)
}

// pruneDownloads drops terminal downloads from the list.
// POST /api/v1/downloads/prune
func (s *Server) pruneDownloads(c echo.Context) error {
	var req PruneRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		}
	}
	if req.OlderThanMinutes < 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "olderThanMinutes must not be negative"})
	}

	removed := s.deps.Queue.Prune(time.Duration(req.OlderThanMinutes) * time.Minute)
	return c.JSON(http.StatusOK, map[string]int{"removed": removed})
}

func queueErrorStatus(err error) int {
	switch {
	case errors.Is(err, queue.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, queue.ErrAlreadyTerminal):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
