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

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/medrex/glucose-tracker/internal/entries"
	"github.com/medrex/glucose-tracker/pkg/config"
	"github.com/medrex/glucose-tracker/pkg/database"
	"github.com/medrex/glucose-tracker/pkg/interfaces"
	"github.com/medrex/glucose-tracker/pkg/logger"
	"github.com/medrex/glucose-tracker/pkg/monitoring"
)

const serviceName = "glucose-entries-service"

func main() {
	cfg, err := config.LoadFile(os.Getenv("GLUCOSE_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	if err := run(cfg, log); err != nil {
		log.WithError(err).Fatal("Entries service stopped")
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx := context.Background()
	metrics := monitoring.NewMetricsCollector(serviceName)
	health := monitoring.NewHealthManager(serviceName)

	var repo interfaces.EntryRepository
	switch cfg.Database.Driver {
	case "postgres":
		db, err := database.NewConnection(ctx, &cfg.Database, log)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := db.CreateSchema(ctx); err != nil {
			return err
		}
		repo = entries.NewPostgresRepository(db.DB, log, metrics)
		health.RegisterChecker("database", monitoring.NewDatabaseHealthChecker(db.DB))
	default:
		repo = entries.NewMemoryRepository()
	}

	svc := entries.NewService(repo, cfg.Recommendations, log, metrics)

	var limiter *entries.WriteLimiter
	if cfg.Server.WriteRateLimit > 0 {
		limiter = entries.NewWriteLimiter(cfg.Server.WriteRateLimit, time.Minute)
		pruneCtx, stopPruner := context.WithCancel(ctx)
		defer stopPruner()
		go limiter.RunPruner(pruneCtx, 10*time.Minute)
	}
	router := newRouter(cfg, svc, log, metrics, health, limiter)

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithFields(map[string]interface{}{
			"addr":   server.Addr,
			"driver": cfg.Database.Driver,
		}).Info("Starting entries service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Shutting down entries service")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	log.Info("Entries service stopped")
	return nil
}

// newRouter wires the entries API, health, metrics and middleware. A nil
// limiter leaves writes unlimited.
func newRouter(cfg *config.Config, svc interfaces.EntriesService, log *logger.Logger, metrics *monitoring.MetricsCollector, health *monitoring.HealthManager, limiter *entries.WriteLimiter) http.Handler {
	router := mux.NewRouter()

	mm := monitoring.NewMonitoringMiddleware(metrics, monitoring.NewTracingManager(serviceName), log)
	router.Use(mm.HTTPMiddleware)
	if limiter != nil {
		router.Use(limiter.Middleware(log))
	}

	entries.NewHandler(svc, log, cfg.Store.TotalCountHeader).RegisterRoutes(router)

	if cfg.Monitoring.Enabled {
		router.Handle(cfg.Monitoring.MetricsPath, metrics.Handler()).Methods(http.MethodGet)
	}
	router.HandleFunc(cfg.Monitoring.HealthPath, health.HTTPHandler()).Methods(http.MethodGet)

	cors := handlers.CORS(
		handlers.AllowedOrigins(cfg.Server.AllowOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "X-Request-ID", "traceparent"}),
		handlers.ExposedHeaders([]string{cfg.Store.TotalCountHeader}),
	)

	return handlers.RecoveryHandler(handlers.PrintRecoveryStack(false))(cors(router))
}
