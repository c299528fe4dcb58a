package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/JonMunkholm/parque/internal/config"
	"github.com/JonMunkholm/parque/internal/core"
	"github.com/JonMunkholm/parque/internal/logging"
	"github.com/JonMunkholm/parque/internal/metrics"
	"github.com/JonMunkholm/parque/internal/store"
	"github.com/JonMunkholm/parque/internal/web"
)

func main() {
	// Overload lets a local .env win over the inherited environment.
	envLoaded := godotenv.Overload() == nil

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("configuration loaded", "env_file", envLoaded, "config", cfg.String())

	ctx := context.Background()
	reg := metrics.NewRegistry(true)

	deps := core.Dependencies{
		Metrics: reg.Pipeline(),
		Logger:  logger,
	}
	var ready func(context.Context) error

	if cfg.Database.Enabled() {
		pool, err := store.Connect(ctx, cfg.Database.URL, store.PoolOptions{
			MaxConns:        cfg.Database.MaxConns,
			MinConns:        cfg.Database.MinConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		})
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		if err := store.Migrate(ctx, pool); err != nil {
			logger.Error("failed to migrate database", "error", err)
			os.Exit(1)
		}
		deps.Errors = store.NewErrorStore(pool)
		deps.Sink = store.NewRecordSink(pool)
		ready = pool.Ping
		logger.Info("connected to database", "tables", store.Tables)
	} else {
		logger.Warn("DATABASE_URL not set, error ledger kept in memory and records not persisted")
	}

	rules, err := core.LoadRuleSet(cfg.ETL.RulesFile)
	if err != nil {
		logger.Error("failed to load business rules", "file", cfg.ETL.RulesFile, "error", err)
		os.Exit(1)
	}
	logger.Info("business rules loaded", "count", len(rules.All()), "file", cfg.ETL.RulesFile)

	service := core.NewService(core.ServiceConfig{
		Workers:           cfg.ETL.Workers,
		StrictMode:        cfg.ETL.StrictMode,
		MaxFileSize:       cfg.ETL.MaxFileSize,
		MaxConcurrentJobs: cfg.ETL.MaxConcurrentJobs,
		MaxWaitTime:       cfg.ETL.MaxWaitTime,
		JobTimeout:        cfg.ETL.JobTimeout,
		JobRetention:      cfg.ETL.JobRetention,
		Rules:             rules,
	}, deps)

	server := web.NewServer(service, web.Options{
		MaxUploadSize:  cfg.ETL.MaxFileSize,
		RequestTimeout: cfg.Server.RequestTimeout,
		TrustedProxies: cfg.Server.TrustedProxies,
		RateLimit:      cfg.Rate,
		Metrics:        reg,
		Logger:         logger,
		Ready:          ready,
	})

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	go service.StartRetentionSweeper(bgCtx, core.RetentionConfig{
		ResolvedErrorDays: cfg.Retention.ResolvedErrorDays,
		CheckInterval:     cfg.Retention.CheckInterval,
	})

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		logger.Info("shutting down...")
		stopBackground()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}

		if n := service.Limiter().Active; n > 0 {
			logger.Info("waiting for jobs to complete", "active", n)
		}
		if err := service.WaitForJobs(shutdownCtx); err != nil {
			logger.Warn("jobs did not complete in time, cancelling", "error", err)
			service.CancelAll()
		}
	}()

	if err := server.Start(cfg.Server); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}

	// Start returns as soon as the listener closes; give the shutdown
	// goroutine its window to drain jobs.
	waitCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	_ = service.WaitForJobs(waitCtx)
	logger.Info("server stopped")
}
