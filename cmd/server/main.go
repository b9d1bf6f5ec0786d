package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"

	"diabetesrisk/docs"
	"diabetesrisk/internal/artifact"
	"diabetesrisk/internal/auth"
	"diabetesrisk/internal/cache"
	"diabetesrisk/internal/config"
	"diabetesrisk/internal/db"
	"diabetesrisk/internal/handler"
	"diabetesrisk/internal/logger"
	"diabetesrisk/internal/repository"
	"diabetesrisk/internal/router"
	"diabetesrisk/internal/service"
)

// @title Diabetes Risk API
// @version 1.0
// @description Diabetes risk prediction with per-user history and JWT authentication.
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		fatal("invalid configuration", err)
	}

	// The model is loaded once, before anything listens.
	pair, err := artifact.Load(cfg.ArtifactDir)
	if err != nil {
		fatal("model artifacts", err)
	}
	meta := pair.Metadata()
	slog.Info("model loaded", "dir", cfg.ArtifactDir, "run_id", meta.RunID, "algorithm", pair.Algorithm(), "accuracy", meta.Accuracy)

	gormDB, err := db.Open(cfg)
	if err != nil {
		fatal("database init", err)
	}
	if err := db.Migrate(gormDB, cfg.ResetDB); err != nil {
		fatal("database migrate", err)
	}

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cacheClient.Close()
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	if err := cacheClient.Ping(pingCtx); err != nil {
		slog.Warn("redis unavailable, running without cache", "addr", cfg.RedisAddr, "err", err)
	}
	cancel()

	// Initialize repositories
	userRepo := repository.NewUserRepository(gormDB)
	historyRepo := repository.NewHistoryRepository(gormDB)

	// Initialize auth components
	jwtService := auth.NewJWTService(cfg.JWTSecret)
	tokenStore := auth.NewTokenStore(cacheClient)

	// Initialize services
	authService := service.NewAuthService(userRepo, jwtService, tokenStore)
	userService := service.NewUserService(userRepo, cacheClient)
	predictionService := service.NewPredictionService(pair, historyRepo, cacheClient,
		service.WithRecordingPolicy(cfg.RecordingPolicy),
	)

	e := echo.New()
	e.HideBanner = true
	router.Register(e, cfg, router.Handlers{
		Auth:       handler.NewAuthHandler(authService),
		User:       handler.NewUserHandler(userService),
		Prediction: handler.NewPredictionHandler(predictionService),
	})

	if cfg.SwaggerHost != "" {
		docs.SwaggerInfo.Host = strings.TrimPrefix(strings.TrimPrefix(cfg.SwaggerHost, "https://"), "http://")
	}
	slog.Info("swagger documentation", "path", "/swagger/index.html")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := ":" + cfg.ServerPort
	go func() {
		slog.Info("server listening", "addr", addr, "recording_policy", cfg.RecordingPolicy)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("server start", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown", "err", err)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
