package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"ricorrenti/internal/cache"
	"ricorrenti/internal/cli"
	"ricorrenti/internal/core"
	apphttp "ricorrenti/internal/http"
	applog "ricorrenti/internal/log"
	"ricorrenti/internal/services"
)

// timelineCacheSize bounds the number of cached log versions.
const timelineCacheSize = 16

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, applog.ComponentApp)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	var publisher services.EventPublisher
	amqpClient := cli.InitAMQP(logger, cfg, false)
	if amqpClient != nil {
		defer amqpClient.Close()
		publisher = amqpClient
	}

	timelineOpts, err := cfg.TimelineOptions()
	if err != nil {
		logger.Error("Invalid timeline options", "error", err)
		os.Exit(1)
	}

	timelineCache := cache.NewLRUCache[[]core.TimelinePoint](timelineCacheSize, cfg.CacheTTL)
	cacheManager := cache.NewManager()
	cacheManager.Register("timeline", timelineCache)

	srv := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Expenses: services.NewExpenseService(repo, publisher),
		Timeline: services.NewTimelineService(repo, timelineOpts, timelineCache),
		Pinger:   repo,
		Format:   cfg.FormatOptions(),
		Logger:   logger,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cacheManager.Stop()
	})
	cacheManager.StartCleanup(ctx, 10*time.Minute)

	logger.Info("Starting ricorrenti server",
		"port", cfg.Port,
		"timeline_months", cfg.TimelineMonths,
		"timezone", cfg.Timezone,
		"amqp", amqpClient != nil)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
