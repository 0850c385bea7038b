package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lendery/internal/config"
	"lendery/internal/database"
	"lendery/internal/email"
	"lendery/internal/handlers"
	"lendery/internal/live"
	"lendery/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	logger.Initialize(logger.ParseLevel(cfg.LogLevel), cfg.IsDevelopment())
	if envErr != nil {
		logger.Info("No .env file found, using system environment variables")
	}

	db, err := database.Initialize(cfg.DatabasePath)
	if err != nil {
		logger.Error("Failed to initialize database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := database.Migrate(db); err != nil {
		logger.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	emailService := email.NewService(cfg)
	if emailService.IsEnabled() {
		logger.Info("Email service enabled with Mailgun")
	} else {
		logger.Info("Email service disabled - Mailgun not configured")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := live.NewHub()
	go hub.Run(ctx)

	go cleanupSessions(ctx, db)

	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	handlers.SetupRoutes(r, db, cfg, emailService, hub)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Server starting", "port", cfg.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
}

// cleanupSessions deletes expired sessions once an hour until ctx is done.
func cleanupSessions(ctx context.Context, db *sql.DB) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := database.CleanupExpiredSessions(db)
			if err != nil {
				logger.Warn("Failed to clean up sessions", "error", err)
				continue
			}
			if removed > 0 {
				logger.Debug("Expired sessions removed", "count", removed)
			}
		}
	}
}
