// Package server exposes the expert orchestration pipeline over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/hrygo/ensemble/ai/metrics"
	"github.com/hrygo/ensemble/ai/orchestrator"
	"github.com/hrygo/ensemble/internal/profile"
)

// QueryProcessor runs a query through the routing and aggregation pipeline.
// Satisfied by *orchestrator.Orchestrator; narrowed here so handlers can be
// tested with a stub.
type QueryProcessor interface {
	Process(ctx context.Context, query string, callback orchestrator.EventCallback) *orchestrator.Result
}

type Server struct {
	e       *echo.Echo
	Profile *profile.Profile

	processor QueryProcessor
	exporter  *metrics.Exporter
}

func NewServer(_ context.Context, instanceProfile *profile.Profile, processor QueryProcessor, exporter *metrics.Exporter) (*Server, error) {
	e := echo.New()
	e.Debug = true
	e.HideBanner = true
	e.HidePort = true

	s := &Server{
		e:         e,
		Profile:   instanceProfile,
		processor: processor,
		exporter:  exporter,
	}

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string {
			return uuid.NewString()
		},
	}))
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			slog.Info("http request",
				"uri", v.URI,
				"status", v.Status,
				"request_id", v.RequestID,
				"duration_ms", v.Latency.Milliseconds(),
			)
			return nil
		},
	}))
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.GET("/healthz", s.healthzHandler)

	if exporter != nil {
		e.GET("/metrics", echo.WrapHandler(exporter.Handler()))
	}

	queryGroup := e.Group("/api/v1")
	queryGroup.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(rate.Limit(10))))
	queryGroup.POST("/query", s.queryHandler)
	queryGroup.GET("/query/stream", s.streamQueryHandler)
	queryGroup.POST("/query/stream", s.streamQueryHandler)

	return s, nil
}

func (s *Server) Start(_ context.Context) error {
	address := fmt.Sprintf("%s:%d", s.Profile.Addr, s.Profile.Port)
	go func() {
		if err := s.e.Start(address); err != nil && err != http.ErrServerClosed {
			slog.Error("failed to start echo server", "error", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.e.Shutdown(ctx); err != nil {
		slog.Error("failed to shutdown server", "error", err)
	}

	slog.Info("ensemble stopped properly")
}

// Echo returns the underlying echo instance, used by tests.
func (s *Server) Echo() *echo.Echo {
	return s.e
}

func (s *Server) healthzHandler(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.Profile.Version,
	})
}
