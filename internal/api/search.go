package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/mediathekdl/mediathekdl/internal/mediathek"
)

const maxSearchSize = 200

// search runs one query against the search service.
// POST /api/v1/search
func (s *Server) search(c echo.Context) error {
	var q mediathek.Query
	if err := c.Bind(&q); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if len(q.Queries) == 0 {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "at least one query is required"})
	}
	if q.Size <= 0 {
		q.Size = s.cfg.Search.PageSize
	}
	if q.Size > maxSearchSize {
		q.Size = maxSearchSize
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	res, err := s.deps.Search.Search(c.Request().Context(), q)
	if err != nil {
		return c.JSON(searchErrorStatus(err), map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, res)
}

// searchHealth reports the circuit breaker state.
// GET /api/v1/health/search
func (s *Server) searchHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Breaker.State())
}

func searchErrorStatus(err error) int {
	var (
		statusErr *mediathek.APIStatusError
		parseErr  *mediathek.ParsingError
		connErr   *mediathek.ConnectionError
	)
	switch {
	case errors.Is(err, mediathek.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &statusErr), errors.As(err, &parseErr), errors.As(err, &connErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
