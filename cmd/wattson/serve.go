package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jharkins/wattson/internal/auth"
	"github.com/jharkins/wattson/internal/config"
	"github.com/jharkins/wattson/internal/events"
	"github.com/jharkins/wattson/internal/export"
	"github.com/jharkins/wattson/internal/server"
	"github.com/jharkins/wattson/internal/stats"
	"github.com/jharkins/wattson/internal/store/postgres"
	"github.com/jharkins/wattson/internal/tracker"
	"github.com/jharkins/wattson/internal/workflow"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the tracker HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		// Load configuration.
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		loc, err := cfg.Location()
		if err != nil {
			return err
		}

		// Connect to Postgres.
		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}

		// Create event publisher.
		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				store.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = &events.NoopPublisher{}
			logger.Info("events disabled (WATTSON_NATS_URL not set)")
		}

		// Role policy.
		policy := auth.Checker(auth.DefaultPolicy())
		if cfg.RolesFile != "" {
			p, err := auth.LoadPolicy(cfg.RolesFile)
			if err != nil {
				publisher.Close()
				store.Close()
				return err
			}
			policy = p
			logger.Info("role policy loaded", "path", cfg.RolesFile)
		}

		// Display names for exports.
		resolver := export.UsernameResolver(export.StaticResolver{})
		if cfg.UsersFile != "" {
			r, err := export.LoadUsers(cfg.UsersFile)
			if err != nil {
				publisher.Close()
				store.Close()
				return err
			}
			resolver = r
			logger.Info("user directory loaded", "path", cfg.UsersFile)
		}

		// Assemble the service.
		generator := export.NewGenerator(store, resolver)
		aggregator := stats.NewAggregator(store, loc)
		deleter := workflow.NewDeleter(store, generator, resolver, publisher, workflow.NewCollector(), logger)
		service := tracker.NewService(store, publisher, policy, aggregator, generator, deleter, logger)

		// Start HTTP server.
		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: server.New(service, logger).NewHTTPHandler(cfg.AuthToken),
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Start the backup scheduler if a destination is configured.
		var scheduler *export.Scheduler
		if cfg.BackupInterval > 0 && cfg.BackupS3Bucket != "" {
			s3Dest, err := export.NewS3Destination(
				context.Background(),
				cfg.BackupS3Bucket,
				cfg.BackupS3Prefix,
				cfg.BackupS3Region,
				cfg.BackupS3Endpoint,
			)
			if err != nil {
				logger.Error("failed to create S3 backup destination", "err", err)
			} else {
				scheduler = export.NewScheduler(generator, []export.Destination{s3Dest}, cfg.BackupInterval, logger)
				scheduler.Start()
				logger.Info("backup scheduler started",
					"interval", cfg.BackupInterval, "bucket", cfg.BackupS3Bucket)
			}
		}

		logger.Info("wattson server started", "http_addr", cfg.HTTPAddr, "tz", loc.String())

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown.
		if scheduler != nil {
			scheduler.Stop()
			logger.Info("backup scheduler stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "err", err)
		}
		logger.Info("HTTP server stopped")

		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "err", err)
		}
		if err := store.Close(); err != nil {
			logger.Error("error closing store", "err", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}
