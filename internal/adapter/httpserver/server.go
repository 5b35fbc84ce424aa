// Package httpserver exposes the HTTP API: report and feedback operations,
// the ad-hoc notification trigger, the WebSocket endpoint, and health probes.
package httpserver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/roadwatch/backend/internal/config"
	"github.com/roadwatch/backend/internal/domain"
)

type appService interface {
	SubmitReport(ctx context.Context, report *domain.Report) (*domain.Report, error)
	GetReport(ctx context.Context, id uuid.UUID) (*domain.Report, error)
	ListReports(ctx context.Context, status string, limit int) ([]*domain.Report, error)
	SaveAnalysis(ctx context.Context, id uuid.UUID, analysis []byte) (*domain.Report, error)
	ReviewReport(ctx context.Context, id uuid.UUID, reviewedBy, severity, recommendedAction string) (*domain.Report, error)
	CreateFeedback(ctx context.Context, fb *domain.Feedback) (*domain.Feedback, error)
	UpdateFeedbackStatus(ctx context.Context, id uuid.UUID, status string) (*domain.Feedback, error)
	ReplyFeedback(ctx context.Context, id uuid.UUID, reply string) (*domain.Feedback, error)
	Notify(target, title, message string, details map[string]any)
}

type Server struct {
	echo   *echo.Echo
	config *config.Config

	app       appService
	wsHandler echo.HandlerFunc

	healthChecks []HealthCheck
	startTime    time.Time
}

// NewServer wires the HTTP surface. wsHandler serves the WebSocket endpoint.
func NewServer(cfg *config.Config, app appService, wsHandler echo.HandlerFunc, healthChecks []HealthCheck) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	srv := &Server{
		echo:         e,
		config:       cfg,
		app:          app,
		wsHandler:    wsHandler,
		healthChecks: healthChecks,
		startTime:    time.Now(),
	}

	srv.registerRoutes()
	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}
