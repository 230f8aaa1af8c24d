package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/newsdesk/analytics-back/internal/config"
	httpserver "github.com/newsdesk/analytics-back/internal/http"
	"github.com/newsdesk/analytics-back/internal/http/handlers"
	"github.com/newsdesk/analytics-back/internal/queue"
	"github.com/newsdesk/analytics-back/internal/repository"
	"github.com/newsdesk/analytics-back/internal/service"
	"github.com/newsdesk/analytics-back/internal/worker"
)

func main() {
	logger := log.New(os.Stdout, "[analytics-back] ", log.LstdFlags|log.LUTC|log.Lmicroseconds)
	if err := config.LoadDotEnv(".env", ".env.local"); err != nil {
		logger.Printf("failed loading .env files: %v", err)
	}
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dedupWindow := time.Duration(cfg.ReadDedupWindowSeconds) * time.Second

	repo, repoCloser := setupRepository(ctx, cfg, dedupWindow, logger)
	defer repoCloser()

	repo, guardCloser := setupReadGuard(ctx, cfg, repo, dedupWindow, logger)
	defer guardCloser()

	// Background work outlives the signal context so reads served during graceful
	// shutdown are still recorded and the queue can finish within the drain timeout.
	workCtx, stopWork := context.WithCancel(context.Background())
	defer stopWork()

	processor := worker.NewProcessor(repo, logger)
	aggregationQueue := queue.NewAggregationQueue(workCtx, processor.Process, logger)

	analytics := service.NewAnalyticsService(service.AnalyticsDependencies{
		Store:           repo,
		Scheduler:       aggregationQueue,
		Logger:          logger,
		BaseContext:     workCtx,
		TrackingEnabled: cfg.TrackingEnabled,
	})
	if !cfg.TrackingEnabled {
		logger.Printf("read tracking disabled by configuration")
	}

	api := handlers.NewAPI(analytics, aggregationQueue)
	handler := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		AuthToken:      cfg.AuthToken,
		CORSOrigins:    cfg.CORSAllowedOrigins,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
	})

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Printf("api listening on :%s", cfg.Port)
		errChan <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Printf("shutdown signal received")
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Printf("server failed: %v", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("graceful shutdown failed: %v", err)
	}

	drainBackgroundWork(
		analytics,
		aggregationQueue,
		stopWork,
		time.Duration(cfg.ShutdownDrainTimeoutMS)*time.Millisecond,
		logger,
	)
}

func setupRepository(
	ctx context.Context,
	cfg config.Config,
	dedupWindow time.Duration,
	logger *log.Logger,
) (repository.AnalyticsRepository, func()) {
	if cfg.DatabaseURL == "" {
		logger.Printf("DATABASE_URL not configured, using in-memory repository")
		return repository.NewMemoryAnalyticsRepository(dedupWindow), func() {}
	}

	pgRepo, err := repository.NewPostgresAnalyticsRepository(ctx, cfg.DatabaseURL, dedupWindow)
	if err != nil {
		logger.Printf("failed to initialize postgres repository, fallback to memory: %v", err)
		return repository.NewMemoryAnalyticsRepository(dedupWindow), func() {}
	}
	logger.Printf("postgres repository initialized")
	return pgRepo, func() {
		pgRepo.Close()
	}
}

func setupReadGuard(
	ctx context.Context,
	cfg config.Config,
	repo repository.AnalyticsRepository,
	dedupWindow time.Duration,
	logger *log.Logger,
) (repository.AnalyticsRepository, func()) {
	if cfg.RedisAddr == "" || dedupWindow <= 0 {
		return repo, func() {}
	}

	guard, err := repository.NewRedisReadGuard(ctx, repo, repository.RedisReadGuardConfig{
		Addr:      cfg.RedisAddr,
		Password:  cfg.RedisPassword,
		DB:        cfg.RedisDB,
		KeyPrefix: cfg.RedisKeyPrefix,
		Window:    dedupWindow,
	}, logger)
	if err != nil {
		logger.Printf("failed to initialize redis read guard, using repository policy only: %v", err)
		return repo, func() {}
	}
	logger.Printf("redis read guard initialized window=%s", dedupWindow)
	return guard, func() {
		_ = guard.Close()
	}
}
