// Package api exposes the review engine over HTTP: synchronous review runs,
// queued runs, state lookup, and store maintenance.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/quorumreview/internal/jobqueue"
	"github.com/quorumreview/internal/review"
	"github.com/quorumreview/internal/state"
	"github.com/quorumreview/internal/strategy"
)

// Server represents the API server.
type Server struct {
	echo  *echo.Echo
	port  int
	svc   *review.Service
	store state.Store
	queue *jobqueue.Queue
	log   zerolog.Logger
}

// NewServer creates the API server. queue may be nil, in which case async
// review requests are refused.
func NewServer(port int, svc *review.Service, store state.Store, queue *jobqueue.Queue, log zerolog.Logger) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo:  e,
		port:  port,
		svc:   svc,
		store: store,
		queue: queue,
		log:   log,
	}

	server.setupRoutes()

	return server
}

// setupRoutes configures all API endpoints.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status": "healthy",
		})
	})

	v1 := s.echo.Group("/api/v1")

	v1.POST("/reviews", s.createReview)
	v1.GET("/reviews/:platform/:owner/:repo/:pr", s.getReview)
	v1.POST("/state/cleanup", s.cleanupStates)
}

// Start begins the API server and blocks until an interrupt, then shuts
// down gracefully.
func (s *Server) Start() error {
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.log.Fatal().Err(err).Msg("shutting down the server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}

// Handler returns the underlying HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

type createReviewRequest struct {
	review.Request
	Async bool `json:"async"`
}

type asyncReviewResponse struct {
	RunID  string `json:"run_id"`
	JobID  int64  `json:"job_id"`
	Status string `json:"status"`
}

// createReview runs a review synchronously, or queues it when async is set.
func (s *Server) createReview(c echo.Context) error {
	var req createReviewRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.PRID == "" || req.Platform == "" || req.Repository == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error": "pr_id, platform and repository are required",
		})
	}

	if req.Async {
		if s.queue == nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"error": "async reviews require the job queue; start the server with a database",
			})
		}
		runID := uuid.NewString()
		jobID, err := s.queue.EnqueueReview(c.Request().Context(), runID, req.Request)
		if err != nil {
			s.log.Error().Err(err).Msg("failed to enqueue review")
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to queue review"})
		}
		return c.JSON(http.StatusAccepted, asyncReviewResponse{RunID: runID, JobID: jobID, Status: "queued"})
	}

	report, err := s.svc.Run(c.Request().Context(), req.Request)
	if err != nil {
		return s.reviewError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// reviewError maps pipeline errors onto HTTP statuses.
func (s *Server) reviewError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, strategy.ErrInvalidInput),
		errors.Is(err, strategy.ErrEmptyChange),
		errors.Is(err, strategy.ErrZeroLOC),
		errors.Is(err, strategy.ErrGeneratedOnly):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, review.ErrChangeTooLarge):
		return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
	default:
		s.log.Error().Err(err).Msg("review failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "review failed"})
	}
}

// getReview returns the persisted state for one review.
func (s *Server) getReview(c echo.Context) error {
	key := state.Key{
		PRID:       c.Param("pr"),
		Platform:   c.Param("platform"),
		Repository: c.Param("owner") + "/" + c.Param("repo"),
	}

	st, err := s.store.Load(c.Request().Context(), key)
	if err != nil {
		if errors.Is(err, state.ErrNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": "review not found"})
		}
		s.log.Error().Err(err).Str("key", key.String()).Msg("failed to load review state")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to load review"})
	}

	return c.JSON(http.StatusOK, st)
}

// cleanupStates removes states older than max_age_days (default 30).
func (s *Server) cleanupStates(c echo.Context) error {
	maxAgeDays := 30
	if raw := c.QueryParam("max_age_days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "max_age_days must be a positive integer"})
		}
		maxAgeDays = n
	}

	removed, err := s.store.CleanupOldStates(c.Request().Context(), maxAgeDays)
	if err != nil {
		s.log.Error().Err(err).Msg("state cleanup failed")
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
	}

	return c.JSON(http.StatusOK, map[string]int{"removed": removed})
}
