package main

import (
	"context"
	"errors"
	"os"
	"time"

	"ricorrenti/internal/cli"
	applog "ricorrenti/internal/log"
	"ricorrenti/internal/services"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentWorker)

	logger.Info("Starting timeline-worker")

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	amqpClient := cli.InitAMQP(logger, cfg, true)
	defer amqpClient.Close()

	setupCtx, cancelSetup := context.WithTimeout(context.Background(), 30*time.Second)
	exporter := cli.InitExporter(setupCtx, logger, cfg)
	cancelSetup()

	timelineOpts, err := cfg.TimelineOptions()
	if err != nil {
		logger.Error("Invalid timeline options", "error", err)
		os.Exit(1)
	}

	// uncached: the server owns the cached read path
	timeline := services.NewTimelineService(repo, timelineOpts, nil)
	processor := services.NewSnapshotProcessor(timeline, repo, exporter, services.SnapshotProcessorConfig{
		RefreshInterval: cfg.SnapshotInterval,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := processor.Stop(shutdownCtx); err != nil {
			logger.Error("Snapshot processor shutdown error", "error", err)
		}
	})

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start snapshot processor", "error", err)
		os.Exit(1)
	}

	go func() {
		err := amqpClient.ConsumeExpenseEvents(ctx, processor.HandleMessage)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", "error", err)
		}
	}()

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}
