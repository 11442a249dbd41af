// Package api exposes search, the download queue and live status over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/mediathekdl/mediathekdl/internal/api/handlers"
	apimw "github.com/mediathekdl/mediathekdl/internal/api/middleware"
	"github.com/mediathekdl/mediathekdl/internal/api/ratelimit"
	"github.com/mediathekdl/mediathekdl/internal/config"
	"github.com/mediathekdl/mediathekdl/internal/downloader"
	"github.com/mediathekdl/mediathekdl/internal/history"
	"github.com/mediathekdl/mediathekdl/internal/logger"
	"github.com/mediathekdl/mediathekdl/internal/mediathek"
	"github.com/mediathekdl/mediathekdl/internal/queue"
	"github.com/mediathekdl/mediathekdl/internal/scheduler"
	"github.com/mediathekdl/mediathekdl/internal/websocket"
)

// Searcher runs one search page.
type Searcher interface {
	Search(ctx context.Context, q mediathek.Query) (*mediathek.QueryResult, error)
}

// BreakerReporter exposes the search circuit state.
type BreakerReporter interface {
	State() mediathek.BreakerSnapshot
}

// Queue is the download queue as seen by the API.
type Queue interface {
	Enqueue(job *downloader.Job, subscriptionID *uuid.UUID) uuid.UUID
	Cancel(id uuid.UUID) error
	Get(id uuid.UUID) (queue.ActiveDownload, error)
	ListActive() []queue.ActiveDownload
	Prune(olderThan time.Duration) int
}

// URLChecker validates remote URLs against the network policy.
type URLChecker interface {
	Check(raw string) (*url.URL, error)
}

// LogsProvider returns recent log entries.
type LogsProvider interface {
	Recent() []logger.Entry
}

// Deps are the services the API serves. Scheduler, Logs, History and Hub
// may be nil; their routes are then not registered.
type Deps struct {
	Search    Searcher
	Breaker   BreakerReporter
	Queue     Queue
	URLs      URLChecker
	History   *history.Store
	Hub       *websocket.Hub
	Scheduler *scheduler.Scheduler
	Logs      LogsProvider
}

// Server handles HTTP requests for the mediathekdl API.
type Server struct {
	echo    *echo.Echo
	deps    Deps
	cfg     *config.Config
	logger  zerolog.Logger
	limiter *ratelimit.IPLimiter
	started time.Time
}

// NewServer creates a new API server instance.
func NewServer(deps Deps, cfg *config.Config, logger zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		echo:    e,
		deps:    deps,
		cfg:     cfg,
		logger:  logger.With().Str("component", "api").Logger(),
		limiter: ratelimit.NewIPLimiter(ratelimit.DefaultRequestsPerWindow, ratelimit.DefaultWindow),
		started: time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.RequestID())
	s.echo.Use(apimw.SecurityHeaders(apimw.SecurityConfig{NoStorePrefix: "/api"}))
	s.echo.Use(middleware.BodyLimit("2M"))

	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogMethod:   true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Err(v.Error).
					Msg("request error")
			} else {
				s.logger.Debug().
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Msg("request")
			}
			return nil
		},
	}))

	s.echo.Use(middleware.GzipWithConfig(middleware.GzipConfig{
		Level: 5,
		Skipper: func(c echo.Context) bool {
			return c.Request().Header.Get("Upgrade") == "websocket"
		},
	}))
}

func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.healthCheck)

	api := s.echo.Group("/api/v1")
	api.GET("/status", s.getStatus)

	api.POST("/search", s.search, s.limiter.Middleware())
	api.GET("/health/search", s.searchHealth)

	downloads := api.Group("/downloads")
	downloads.GET("", s.listDownloads)
	downloads.POST("", s.enqueueDownload)
	downloads.POST("/prune", s.pruneDownloads)
	downloads.GET("/:id", s.getDownload)
	downloads.DELETE("/:id", s.cancelDownload)

	if s.deps.History != nil {
		history.NewHandlers(s.deps.History).RegisterRoutes(api.Group("/history"))
	}
	if s.deps.Scheduler != nil {
		handlers.NewSchedulerHandler(s.deps.Scheduler).RegisterRoutes(api.Group("/scheduler/tasks"))
	}
	if s.deps.Logs != nil {
		api.GET("/logs", s.recentLogs)
	}
	if s.deps.Hub != nil {
		api.GET("/ws", s.deps.Hub.HandleWebSocket)
	}
}

// Start serves until Shutdown is called.
func (s *Server) Start(address string) error {
	s.logger.Info().Str("address", address).Msg("Starting HTTP server")
	if err := s.echo.Start(address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// StartBackground starts periodic housekeeping of the request limiter.
func (s *Server) StartBackground(ctx context.Context) {
	s.limiter.StartCleanup(ctx, 5*time.Minute)
}

func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getStatus(c echo.Context) error {
	active := s.deps.Queue.ListActive()
	counts := make(map[queue.Status]int)
	for _, a := range active {
		counts[a.Status]++
	}
	return c.JSON(http.StatusOK, map[string]any{
		"version":   config.Version,
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"downloads": counts,
		"search":    s.deps.Breaker.State(),
	})
}

func (s *Server) recentLogs(c echo.Context) error {
	logs := s.deps.Logs.Recent()
	if logs == nil {
		logs = []logger.Entry{}
	}
	return c.JSON(http.StatusOK, logs)
}
