package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/app"
	"github.com/hackgods/clinic-slot-scheduling/internal/availability"
	"github.com/hackgods/clinic-slot-scheduling/internal/config"
	"github.com/hackgods/clinic-slot-scheduling/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load error", zap.Error(err))
	}

	logger := logging.New(cfg.Env).Named("expiry-worker")
	defer func() { _ = logger.Sync() }()

	logger.Info("expiry-worker starting up", zap.String("env", cfg.Env), zap.Duration("interval", cfg.SweepInterval))

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := app.NewContainer(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("startup error", zap.Error(err))
	}
	defer c.Close()

	// Run once at startup
	runOnce(rootCtx, c.Sweeper, logger)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping expiry worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, c.Sweeper, logger)
		}
	}
}

// runOnce is a single sweep. A sweep already in flight finishes even when a
// shutdown signal arrives.
func runOnce(ctx context.Context, sweeper *availability.Sweeper, logger *zap.Logger) {
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 20*time.Second)
	defer cancel()

	start := time.Now()
	released, err := sweeper.Sweep(runCtx, start)
	if err != nil {
		logger.Error("expiry run error", zap.Error(err))
		return
	}
	logger.Info("expiry run complete", zap.Int("released", released), zap.Duration("took", time.Since(start)))
}
