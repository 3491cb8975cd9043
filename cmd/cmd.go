package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"syscall"
	"time"

	"github.com/USA-RedDragon/logcapture-server/internal/config"
	"github.com/USA-RedDragon/logcapture-server/internal/db"
	"github.com/USA-RedDragon/logcapture-server/internal/ingest"
	"github.com/USA-RedDragon/logcapture-server/internal/metrics"
	"github.com/USA-RedDragon/logcapture-server/internal/server"
	"github.com/USA-RedDragon/logcapture-server/internal/storage"
	"github.com/USA-RedDragon/logcapture-server/internal/tracing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/ztrue/shutdown"
	"golang.org/x/sync/errgroup"
)

func NewCommand(version, commit string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "logcapture-server",
		Version: fmt.Sprintf("%s - %s", version, commit),
		Annotations: map[string]string{
			"version": version,
			"commit":  commit,
		},
		RunE:          run,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.RegisterFlags(cmd)
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	slog.Info("logcapture-server", "version", cmd.Annotations["version"], "commit", cmd.Annotations["commit"])

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	config, err := config.LoadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	err = config.Validate()
	if err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	err = ingest.PrepareWorkRoot(config.Ingest.WorkDir)
	if err != nil {
		return fmt.Errorf("failed to prepare work directory: %w", err)
	}

	shutdownTracing := func(context.Context) error { return nil }
	if config.HTTP.Tracing.Enabled {
		shutdownTracing, err = tracing.Setup(ctx, config.HTTP.Tracing.OTLPEndpoint, cmd.Annotations["version"])
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}
	}

	db, err := db.MakeDB(config)
	if err != nil {
		return fmt.Errorf("failed to make database: %w", err)
	}
	slog.Info("Database connection established")

	var archives storage.ArchiveStore
	if config.Persistence.Archives.Enabled {
		archives, err = storage.NewArchiveStore(ctx, config)
		if err != nil {
			return fmt.Errorf("failed to open archive storage: %w", err)
		}
		slog.Info("Archive retention enabled", "driver", config.Persistence.Archives.Driver)
	}

	var collectors *metrics.Metrics
	if config.HTTP.Metrics.Enabled {
		collectors = metrics.NewMetrics(prometheus.DefaultRegisterer)
	}

	pipeline := ingest.NewPipeline(db, config.Ingest.WorkDir, archives, collectors)

	slog.Info("Starting HTTP server")
	server := server.NewServer(config, db, pipeline)
	err = server.Start()
	if err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	stop := func(_ os.Signal) {
		slog.Info("Shutting down")

		errGrp := errgroup.Group{}

		errGrp.Go(func() error {
			return server.Stop()
		})

		err := errGrp.Wait()
		if err != nil {
			slog.Error("Shutdown error", "error", err.Error())
		}

		if archives != nil {
			if err := archives.Close(); err != nil {
				slog.Error("Failed to close archive storage", "error", err.Error())
			}
		}

		sqlDB, err := db.DB()
		if err == nil {
			if err := sqlDB.Close(); err != nil {
				slog.Error("Failed to close database", "error", err.Error())
			}
		}

		tracingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := shutdownTracing(tracingCtx); err != nil {
			slog.Error("Failed to flush traces", "error", err.Error())
		}

		if err := ingest.RemoveWorkRoot(config.Ingest.WorkDir); err != nil {
			slog.Error("Failed to remove work directory", "error", err.Error())
		}
		slog.Info("Shutdown complete")
	}

	if cmd.Annotations["version"] == "testing" {
		doneChannel := make(chan struct{})
		go func() {
			slog.Info("Sleeping for 5 seconds")
			time.Sleep(5 * time.Second)
			slog.Info("Sending SIGTERM")
			stop(syscall.SIGTERM)
			doneChannel <- struct{}{}
		}()
		<-doneChannel
	} else {
		shutdown.AddWithParam(stop)
		shutdown.Listen(syscall.SIGINT, syscall.SIGKILL, syscall.SIGTERM, syscall.SIGQUIT)
	}

	return nil
}
