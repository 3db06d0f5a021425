package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/szarkamarci/modularai/internal/api"
	"github.com/szarkamarci/modularai/internal/cache"
	"github.com/szarkamarci/modularai/internal/config"
	"github.com/szarkamarci/modularai/internal/engine"
	"github.com/szarkamarci/modularai/internal/insights"
	"github.com/szarkamarci/modularai/internal/metrics"
	"github.com/szarkamarci/modularai/internal/registry"
	"github.com/szarkamarci/modularai/internal/repo"
	"github.com/szarkamarci/modularai/internal/retrieval"
	"github.com/szarkamarci/modularai/internal/scheduler"
	"github.com/szarkamarci/modularai/internal/services"
	"github.com/szarkamarci/modularai/internal/storage"
	"github.com/szarkamarci/modularai/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting inventory-engine", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var cacheProvider cache.Provider = cache.NoopProvider{}
	var valkeyCloser cache.Provider
	if cfg.Cache.Enabled && cfg.Cache.Addr != "" {
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         cfg.Cache.Addr,
			Username:     cfg.Cache.Username,
			Password:     cfg.Cache.Password,
			DB:           cfg.Cache.DB,
			DialTimeout:  cfg.Cache.DialTimeout,
			ReadTimeout:  cfg.Cache.ReadTimeout,
			WriteTimeout: cfg.Cache.WriteTimeout,
			MaxRetries:   cfg.Cache.MaxRetries,
			TLS:          cfg.Cache.TLS,
		})
		if err != nil {
			logger.Warn("valkey cache unavailable, falling back to in-process cache", slog.Any("error", err))
			cacheProvider = cache.NewMemoryProvider()
		} else {
			cacheProvider = provider
			valkeyCloser = provider
		}
	} else if cfg.Cache.Enabled {
		cacheProvider = cache.NewMemoryProvider()
	}
	if valkeyCloser != nil {
		defer valkeyCloser.Close()
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		logger.Error("failed to open storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()

	posClient := repo.NewPOSClient(repo.POSClientOptions{
		BaseURL:          cfg.Clients.POS.BaseURL,
		TransactionsPath: cfg.Clients.POS.TransactionsPath,
		SnapshotPath:     cfg.Clients.POS.SnapshotPath,
		ProductsPath:     cfg.Clients.POS.ProductsPath,
		Timeout:          cfg.Clients.POS.Timeout,
		Cache:            cacheProvider,
		SnapshotTTL:      cfg.Cache.SnapshotTTL,
		CatalogTTL:       cfg.Cache.CatalogTTL,
		MaxRetries:       cfg.Clients.POS.MaxRetries,
		RetryBackoff:     cfg.Clients.POS.RetryBackoff,
	})
	embedderClient := repo.NewEmbedderClient(cfg.Clients.Embedder.Endpoint, cfg.Clients.Embedder.Timeout)

	ruleEngine, err := engine.NewRuleEngine(cfg.Rules.Path, logger)
	if err != nil {
		logger.Error("failed to load rule pack", slog.Any("error", err))
		os.Exit(1)
	}

	modelRegistry := registry.New(store, logger)
	indexer := retrieval.NewIndexer(store, embedderClient, logger)
	orchestrator := retrieval.NewOrchestrator(store, embedderClient, retrieval.OrchestratorConfig{
		MaxTopK:       cfg.Retrieval.MaxTopK,
		SnippetLength: cfg.Retrieval.SnippetLength,
	}, logger)

	svc := services.NewIntelligenceService(services.IntelligenceServiceParams{
		Logger:     logger,
		POS:        posClient,
		Store:      store,
		Registry:   modelRegistry,
		Aggregator: engine.NewAggregator(posClient, cfg.Forecast.Granularity),
		Forecaster: engine.NewForecaster(engine.ForecasterConfig{
			SeasonLength:     cfg.Forecast.SeasonLength,
			MinHistoryCycles: cfg.Forecast.MinHistoryCycles,
			MaxHorizon:       cfg.Forecast.MaxHorizon,
			IntervalZ:        cfg.Forecast.IntervalZ,
		}, logger),
		Evaluator: engine.NewStockoutEvaluator(engine.StockoutConfig{
			CriticalFraction: cfg.Alerts.CriticalFraction,
			WarningFraction:  cfg.Alerts.WarningFraction,
			TrackNegative:    cfg.Alerts.TrackNegative,
		}, logger),
		Rules:           ruleEngine,
		Searcher:        orchestrator,
		Indexer:         indexer,
		Miner:           insights.NewMiner(logger),
		Cache:           cacheProvider,
		ForecastConfig:  cfg.Forecast,
		RetrievalConfig: cfg.Retrieval,
	})

	handler := api.NewHandler(api.Deps{Service: svc, Models: modelRegistry, Logger: logger})
	server, err := api.NewServer(cfg.Server, handler)
	if err != nil {
		logger.Error("failed to create HTTP server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		metricsServer = api.NewMetricsServer(cfg.Server.MetricsAddress, prometheus.DefaultGatherer)
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	if cfg.Scheduler.Enabled {
		sched := scheduler.New(svc, cfg.Scheduler, logger)
		go func() {
			if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("scheduler exited", slog.Any("error", err))
			}
		}()
	}

	go func() {
		logger.Info("HTTP server listening", slog.String("address", server.Addr()))
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("HTTP server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	if err := server.Shutdown(context.Background()); err != nil {
		logger.Warn("server shutdown", slog.Any("error", err))
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("inventory-engine stopped")
}
