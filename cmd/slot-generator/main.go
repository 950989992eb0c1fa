package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/app"
	"github.com/hackgods/clinic-slot-scheduling/internal/config"
	"github.com/hackgods/clinic-slot-scheduling/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		zap.NewExample().Fatal("config load error", zap.Error(err))
	}

	logger := logging.New(cfg.Env).Named("slot-generator")
	defer func() { _ = logger.Sync() }()

	logger.Info("slot-generator starting up",
		zap.String("env", cfg.Env),
		zap.Duration("interval", cfg.GenerationInterval),
		zap.Int("horizon_days", cfg.GenerationHorizonDays),
		zap.Int("workers", cfg.GenerationWorkers),
		zap.String("timezone", cfg.Location.String()),
	)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := app.NewContainer(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal("startup error", zap.Error(err))
	}
	defer c.Close()

	// Run once at startup
	runOnce(rootCtx, c, logger)

	ticker := time.NewTicker(cfg.GenerationInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info("shutdown signal received, stopping slot generator")
			return
		case <-ticker.C:
			runOnce(rootCtx, c, logger)
		}
	}
}

// runOnce generates the rolling horizon. A run in flight always completes;
// the shutdown signal is only observed between runs.
func runOnce(ctx context.Context, c *app.Container, logger *zap.Logger) {
	start := time.Now()
	req := c.HorizonRequest(start)

	summary, err := c.Generator.Run(context.WithoutCancel(ctx), req)
	if err != nil {
		logger.Error("generation run error", zap.Error(err))
		return
	}

	logger.Info("generation run complete",
		zap.Int("rules_processed", summary.RulesProcessed),
		zap.Int("rules_failed", summary.RulesFailed),
		zap.Int("total_slots_created", summary.TotalSlotsCreated),
		zap.Duration("took", time.Since(start)),
	)
}
