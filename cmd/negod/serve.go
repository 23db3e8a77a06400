package main

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/nego/internal/archive"
	"github.com/alfredjeanlab/nego/internal/config"
	"github.com/alfredjeanlab/nego/internal/events"
	"github.com/alfredjeanlab/nego/internal/handoff"
	"github.com/alfredjeanlab/nego/internal/lobby"
	"github.com/alfredjeanlab/nego/internal/onboarding"
	"github.com/alfredjeanlab/nego/internal/presence"
	"github.com/alfredjeanlab/nego/internal/scoring"
	"github.com/alfredjeanlab/nego/internal/server"
	"github.com/alfredjeanlab/nego/internal/store/postgres"
	"github.com/alfredjeanlab/nego/internal/workers"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the negotiation server",
	GroupID: "system",
	// Override PersistentPreRunE so we don't create a client connection.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

		// Load configuration.
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		task := config.DefaultTask()
		if cfg.TaskFile != "" {
			if task, err = config.LoadTask(cfg.TaskFile); err != nil {
				return err
			}
			logger.Info("task loaded", "file", cfg.TaskFile)
		}

		// Connect to Postgres.
		store, err := postgres.New(cfg.DatabaseURL)
		if err != nil {
			return err
		}

		// Create event publisher. Every event also reaches SSE watchers.
		hub := server.NewEventHub()
		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				store.Close()
				return err
			}
			publisher = events.Fanout{pub, hub}
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = events.Fanout{&events.NoopPublisher{}, hub}
			logger.Info("NATS events disabled (NEGO_NATS_URL not set)")
		}

		// Worker platform.
		var directory workers.Directory
		if cfg.WorkersURL != "" {
			directory = workers.NewHTTPDirectory(cfg.WorkersURL, cfg.WorkersToken, workers.BreakerSettings{})
			logger.Info("worker platform enabled", "url", cfg.WorkersURL)
		} else {
			directory = &workers.LogDirectory{Logger: logger}
			logger.Info("worker platform disabled (NEGO_WORKERS_URL not set)")
		}

		// Create server components.
		finisher := handoff.New(handoff.Config{
			Scoring:            scoring.ParamsFromTask(task),
			FallbackBonus:      task.FallbackBonus,
			FallbackReason:     task.FallbackReason,
			BlockQualification: task.BlockQualification,
			ReleaseTimeout:     cfg.ReleaseTimeout,
		}, store, directory, publisher, logger)
		onboard := onboarding.New(onboarding.Config{
			Task:    task,
			Timeout: cfg.OnboardingTimeout,
			Logger:  logger,
		})

		tracker := presence.New()
		negoServer := server.NewNegoServer(store, hub, tracker, nil, logger)
		lb := lobby.New(lobby.Config{
			Task:           task,
			TurnTimeout:    cfg.TurnTimeout,
			ReleaseTimeout: cfg.ReleaseTimeout,
			Publisher:      publisher,
			Logger:         logger,
			OnMatched:      negoServer.SessionMatched,
			OnFinished:     negoServer.SessionFinished,
			OnDropped:      negoServer.ParticipantDropped,
		}, onboard, finisher)
		negoServer.SetLobby(lb)

		tracker.StartReaper(&presence.ReaperConfig{
			DeadThreshold: cfg.PresenceDeadAfter,
			OnDead:        negoServer.AbandonParticipant,
		})

		grpcServer := server.NewGRPCServer(negoServer, cfg.AuthToken)

		// Start gRPC listener.
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			lb.Close()
			tracker.Stop()
			publisher.Close()
			store.Close()
			return err
		}

		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "err", err)
			}
		}()

		// Start HTTP server.
		httpServer := &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: negoServer.NewHTTPHandler(cfg.AuthToken),
		}

		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP server error", "err", err)
			}
		}()

		// Start archive scheduler if a bucket is configured.
		var scheduler *archive.Scheduler
		if cfg.ArchiveInterval > 0 && cfg.ArchiveS3Bucket != "" {
			s3Dest, err := archive.NewS3Destination(context.Background(), archive.S3Options{
				Bucket:   cfg.ArchiveS3Bucket,
				Key:      cfg.ArchiveS3Key,
				Region:   cfg.ArchiveS3Region,
				Endpoint: cfg.ArchiveS3Endpoint,
			})
			if err != nil {
				logger.Error("failed to create S3 archive destination", "err", err)
			} else {
				scheduler = archive.NewScheduler(store, map[string]archive.Destination{"s3": s3Dest}, cfg.ArchiveInterval, logger)
				scheduler.Start()
				logger.Info("archive scheduler started", "interval", cfg.ArchiveInterval,
					"bucket", cfg.ArchiveS3Bucket, "key", cfg.ArchiveS3Key)
			}
		}

		logger.Info("negotiation server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"turn_timeout", cfg.TurnTimeout,
		)

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Graceful shutdown. Running sessions are cancelled and handed off
		// before the store goes away.
		lb.Close()
		logger.Info("lobby closed")

		tracker.Stop()

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("archive scheduler stopped")
		}

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

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
