package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	api "foodlog/searchservice/internal/api/http"
	"foodlog/searchservice/internal/app"
	"foodlog/searchservice/internal/metrics"
	"foodlog/searchservice/internal/providers/edamam"
	"foodlog/searchservice/internal/providers/openfoodfacts"
	"foodlog/searchservice/internal/providers/usdafdc"
	"foodlog/searchservice/internal/search"
	"foodlog/searchservice/internal/telemetry"
)

func main() {
	cfg := app.LoadConfig()
	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, "foodsearch")
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
	}

	registry := prometheus.NewRegistry()
	metrics.Register(registry)

	httpClient := &http.Client{
		Timeout:   cfg.RequestTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	providers := []search.Provider{
		openfoodfacts.New(cfg.OFFSearchEndpoint, cfg.OFFProductEndpoint, httpClient, cfg.UserAgent),
	}
	if cfg.USDAAPIKey != "" {
		providers = append(providers, usdafdc.New(cfg.USDAEndpoint, cfg.USDAAPIKey, httpClient, cfg.UserAgent))
	} else {
		logger.Warn("usdafdc provider disabled, USDA_API_KEY not set")
	}
	if cfg.EdamamAppID != "" && cfg.EdamamAppKey != "" {
		providers = append(providers, edamam.New(cfg.EdamamEndpoint, cfg.EdamamAppID, cfg.EdamamAppKey, httpClient, cfg.UserAgent))
	} else {
		logger.Warn("edamam provider disabled, EDAMAM_APP_ID/EDAMAM_APP_KEY not set")
	}

	orch := search.NewOrchestrator(providers,
		search.WithLogger(logger),
		search.WithPageSize(cfg.DefaultPageSize),
		search.WithSearchTimeout(cfg.RequestTimeout),
		search.WithProviderRate(cfg.ProviderRatePerSec, cfg.ProviderRateBurst),
	)

	history := newHistoryStore(cfg, logger)
	server := api.NewServer(cfg, orch, history, registry, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error("http server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if shutdownTracing != nil {
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}
}

func newLogger(cfg app.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func newHistoryStore(cfg app.Config, logger *slog.Logger) search.HistoryStore {
	if cfg.RedisURL == "" {
		return search.NewMemoryHistory(cfg.HistoryMaxEntries)
	}
	store, err := search.NewRedisHistory(cfg.RedisURL, cfg.HistoryMaxEntries, logger)
	if err != nil {
		logger.Warn("redis history unavailable, using in-memory store", "error", err)
		return search.NewMemoryHistory(cfg.HistoryMaxEntries)
	}
	logger.Info("selection history backed by redis")
	return store
}
