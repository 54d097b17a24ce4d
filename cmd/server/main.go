package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"demand-forecast/internal/config"
	"demand-forecast/internal/forecast"
	"demand-forecast/internal/handlers"
	"demand-forecast/internal/repository"
	"demand-forecast/internal/services"
	"demand-forecast/internal/storage"
	"demand-forecast/pkg/logging"
	"demand-forecast/pkg/metrics"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := logging.NewStructuredLogger("forecast-api", version, logging.ParseLevel(cfg.Logging.Level))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info(ctx, "[STARTUP] Starting demand forecast API server", logging.Fields{
		"version":     version,
		"server_host": cfg.Server.Host,
		"server_port": cfg.Server.Port,
		"db_driver":   cfg.Database.Driver,
		"storage_dir": cfg.Storage.BaseDir,
	})

	// Metrics go to a private registry so /metrics shows only this process.
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsCollector := metrics.NewCollector("demand_forecast", registry)

	layout := storage.New(cfg.Storage)
	if err := layout.Ensure(); err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to prepare storage", logging.Fields{}, err)
	}

	store, err := repository.Open(ctx, cfg.Database, logger, metricsCollector)
	if err != nil {
		logger.Fatal(ctx, "[STARTUP_ERROR] Failed to open registries", logging.Fields{}, err)
	}
	defer store.Close()

	// Initialize services
	datasets := services.NewDatasetService(store, layout, cfg.Training, logger, metricsCollector)
	training := services.NewTrainingService(store, forecast.NewRegistry(), layout, cfg.Training, logger, metricsCollector)
	svc := handlers.Services{
		Store:     store,
		Datasets:  datasets,
		Training:  training,
		Models:    services.NewModelService(store, datasets, logger, metricsCollector),
		Dashboard: services.NewDashboardService(store, datasets, logger),
	}

	router := handlers.NewRouter(svc, cfg.API, layout.MaxUploadBytes(), version, registry, logger, metricsCollector)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return training.Runner().Run(gctx)
	})

	g.Go(func() error {
		logger.Info(ctx, "[SERVER_START] HTTP server listening", logging.Fields{
			"address": server.Addr,
		})
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info(ctx, "[SHUTDOWN] Shutting down server...", logging.Fields{})

		// Graceful shutdown with timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error(ctx, "[SHUTDOWN_ERROR] Server stopped with error", logging.Fields{}, err)
		os.Exit(1)
	}

	logger.Info(ctx, "[SHUTDOWN_COMPLETE] Server stopped", logging.Fields{})
}
