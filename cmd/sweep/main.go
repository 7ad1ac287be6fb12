// Command sweep runs one lifecycle sweep and exits, for use from cron.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"letters/api/internal/app"
	"letters/api/internal/config"
	"letters/api/internal/logging"
	"letters/api/internal/telemetry"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("config: %v", err)
		return 1
	}
	logger, err := logging.New(cfg.Env)
	if err != nil {
		log.Printf("logger: %v", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "letters-sweep", cfg.OTelEndpoint)
	if err != nil {
		logger.Warn("tracing disabled", zap.Error(err))
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	runtime, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", zap.Error(err))
		return 1
	}
	defer func() { _ = runtime.Close() }()

	report, err := runtime.Lifecycle.Sweep(ctx)
	if err != nil {
		logger.Error("sweep failed", zap.Error(err))
		return 1
	}
	logger.Info("sweep complete",
		zap.Int("expired", report.Expired),
		zap.Int("reminded", report.Reminded),
		zap.Int("delivery_failures", report.DeliveryFailures),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Bool("lock_held", report.LockHeld),
	)
	if report.Failed > 0 {
		return 1
	}
	return 0
}
