package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/roadwatch/backend/internal/adapter/httpserver"
	"github.com/roadwatch/backend/internal/adapter/postgres"
	"github.com/roadwatch/backend/internal/adapter/websocket"
	"github.com/roadwatch/backend/internal/app"
	"github.com/roadwatch/backend/internal/config"
	"github.com/roadwatch/backend/internal/dispatch"
	"github.com/roadwatch/backend/internal/email"
	"github.com/roadwatch/backend/internal/identity"
	"github.com/roadwatch/backend/internal/notify"
	"github.com/roadwatch/backend/internal/platform/logging"
	"github.com/roadwatch/backend/internal/registry"
	"github.com/roadwatch/backend/internal/session"
	"github.com/roadwatch/backend/internal/vision"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func runGracefulShutdown(srv *httpserver.Server, appSvc *app.Service) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		appSvc.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logger := logging.Init(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	// Realtime core
	reg := registry.New()
	classifier := identity.NewClassifier(cfg.AdminPrefix)
	strategy, err := notify.ParseStrategy(cfg.DeliveryStrategy)
	if err != nil {
		slog.Error("Invalid delivery strategy", "strategy", cfg.DeliveryStrategy, "error", err)
		os.Exit(1)
	}
	router := notify.NewRouter(reg, classifier, strategy)
	dispatcher := dispatch.New(router, classifier)
	sessions := session.NewManager(reg, classifier, cfg.AuthTimeout, clock)

	// Domain collaborators
	detector := vision.NewRunner(cfg.VisionPython, cfg.VisionScript, cfg.VisionTimeout, logger)

	var mailer app.Mailer
	if cfg.SMTPHost != "" {
		mailer = email.New(email.Config{
			Host:       cfg.SMTPHost,
			Port:       cfg.SMTPPort,
			Username:   cfg.SMTPUsername,
			Password:   cfg.SMTPPassword,
			FromAddr:   cfg.SMTPFrom,
			FromName:   "RoadWatch",
			Encryption: email.ParseEncryptionMode(cfg.SMTPEncryption),
		}, logger)
	}

	reportRepo := postgres.NewReportRepo(pool)
	feedbackRepo := postgres.NewFeedbackRepo(pool)
	appSvc := app.NewService(reportRepo, feedbackRepo, detector, mailer, dispatcher, logger)

	// WebSocket endpoint
	limits := websocket.NewConnectionLimits(cfg.WSMaxConnections, cfg.WSMaxPerIP, cfg.WSConnectRate, cfg.WSConnectBurst)
	checkOrigin := websocket.NewCheckOrigin(cfg.AppURL, cfg.AppEnv != "production")
	wsHandler := websocket.NewHandler(sessions, limits, checkOrigin, logger)

	healthChecks := []httpserver.HealthCheck{
		{Name: "database", Check: pool.Ping},
	}

	srv := httpserver.NewServer(cfg, appSvc, wsHandler.Handle, healthChecks)

	done := runGracefulShutdown(srv, appSvc)

	slog.Info("Server starting", "port", cfg.Port)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
