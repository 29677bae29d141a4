package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/insight-tool/internal/api/router"
	"github.com/wolfman30/insight-tool/internal/app/bootstrap"
	appconfig "github.com/wolfman30/insight-tool/internal/config"
	httpmiddleware "github.com/wolfman30/insight-tool/internal/http/middleware"
	"github.com/wolfman30/insight-tool/internal/observability/metrics"
	"github.com/wolfman30/insight-tool/internal/redaction"
	"github.com/wolfman30/insight-tool/internal/research"
	"github.com/wolfman30/insight-tool/pkg/logging"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting insight API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"store", cfg.StoreBackend,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

type app struct {
	handler http.Handler
	limiter *httpmiddleware.RateLimiter
	close   func()
}

// buildApp wires stores, detectors and HTTP routes from config.
func buildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (*app, error) {
	store, err := bootstrap.BuildStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	redisClient := bootstrap.BuildRedisClient(ctx, cfg, logger, true)
	detector, err := bootstrap.BuildDetector(ctx, cfg, redisClient, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	pipelineMetrics := metrics.NewPipelineMetrics(reg)

	scanner := redaction.NewScanner(detector,
		redaction.WithThreshold(cfg.AutoRedactThreshold),
		redaction.WithLogger(logger),
	)
	var svcOpts []research.ServiceOption
	if store.Auditor != nil {
		svcOpts = append(svcOpts, research.WithAuditor(store.Auditor))
	}
	svc := research.NewService(store.Repo, scanner, pipelineMetrics, logger, svcOpts...)
	limiter := httpmiddleware.NewRateLimiter(2, 10)

	handler := router.New(&router.Config{
		Logger:              logger,
		ResearchHandler:     research.NewHandler(svc, logger, cfg.MaxUploadBytes()),
		MetricsHandler:      promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		HealthCheck:         store.Health,
		CORSAllowedOrigins:  cfg.CORSAllowedOrigins,
		ResearcherJWTSecret: cfg.ResearcherJWTSecret,
		ScanLimiter:         limiter,
	})

	return &app{
		handler: handler,
		limiter: limiter,
		close: func() {
			if redisClient != nil {
				_ = redisClient.Close()
			}
			store.Close()
		},
	}, nil
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	if cfg.ResearcherJWTSecret == "" {
		logger.Warn("RESEARCHER_JWT_SECRET not set; /projects is unauthenticated")
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      a.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go evictLoop(ctx, a.limiter)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func evictLoop(ctx context.Context, limiter *httpmiddleware.RateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Evict(10 * time.Minute)
		}
	}
}
