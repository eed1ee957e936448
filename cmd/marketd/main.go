package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"servicemarket/internal/app"
	"servicemarket/internal/config"
	"servicemarket/internal/database"
	"servicemarket/internal/logger"
	"servicemarket/internal/orders"
	"servicemarket/internal/repository"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logger.Logger.Fatal().Err(err).Msg("failed to load .env")
	}

	cfg, err := config.LoadServerConfig()
	if err != nil {
		logger.Init(logger.Config{Level: "info"})
		logger.Logger.Fatal().Err(err).Msg("invalid configuration")
	}
	logger.Init(logger.Config{Level: cfg.LogLevel, JSONOutput: cfg.LogJSON})
	log := logger.WithComponent("marketd")

	if cfg.AppEnv != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("database connection failed")
	}
	if err := repository.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}

	completion, err := orders.ParseCompletionPolicy(cfg.CompletionPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid completion policy")
	}

	a := app.New(db, app.Options{
		JWTSecret:          cfg.JWTSecret,
		AccessTTL:          cfg.JWTAccessTTL,
		RefreshTTL:         cfg.RefreshTTL,
		RefreshTokenPepper: cfg.RefreshTokenPepper,
		Completion:         completion,
		AuthRateLimit:      cfg.AuthRateLimit,
		AuthRateBurst:      cfg.AuthRateBurst,
		CORSOrigins:        cfg.CORSOrigins,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.SeedDemoData {
		if err := a.Seed(ctx); err != nil {
			log.Fatal().Err(err).Msg("seeding demo data failed")
		}
	}

	go purgeRefreshTokens(ctx, repository.NewRefreshTokenRepository(db))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           a.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("env", cfg.AppEnv).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errCh:
		log.Error().Err(err).Msg("server failed")
	}

	a.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info().Msg("shutdown complete")
}

// purgeRefreshTokens deletes expired refresh tokens once an hour.
func purgeRefreshTokens(ctx context.Context, repo *repository.RefreshTokenRepository) {
	log := logger.WithComponent("token-cleanup")
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		if err := repo.DeleteExpired(ctx); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("refresh token cleanup failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
