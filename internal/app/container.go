package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/clinic-slot-scheduling/internal/availability"
	"github.com/hackgods/clinic-slot-scheduling/internal/config"
	"github.com/hackgods/clinic-slot-scheduling/internal/db"
	"github.com/hackgods/clinic-slot-scheduling/internal/lock"
	redisclient "github.com/hackgods/clinic-slot-scheduling/internal/redis"
)

// Container holds the wired scheduling core shared by every binary.
type Container struct {
	Config config.Config
	Logger *zap.Logger

	// Nil when the corresponding backend is not in use.
	Pool  *pgxpool.Pool
	Redis *redis.Client

	Store      availability.Store
	Writer     *availability.BatchWriter
	Generator  *availability.Generator
	Sweeper    *availability.Sweeper
	Reconciler *availability.Reconciler
	Booking    *availability.BookingService
}

type Option func(*options)

type options struct {
	progress func(availability.RuleResult)
}

// WithProgress forwards per-rule results of every generation run.
func WithProgress(fn func(availability.RuleResult)) Option {
	return func(o *options) { o.progress = fn }
}

// NewContainer connects the configured backends and builds the services.
// The caller owns the container and must Close it.
func NewContainer(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*Container, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	c := &Container{Config: cfg, Logger: logger}

	switch cfg.StoreBackend {
	case config.StorePostgres:
		pgCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		pool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.DBMaxConns)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("postgres connection: %w", err)
		}
		c.Pool = pool
		c.Store = availability.NewPgRepository(pool)
		logger.Info("connected to postgres")
	default:
		c.Store = availability.NewMemoryStore()
		logger.Warn("using in-memory store, data is lost on exit")
	}

	var pairLocker, slotLocker lock.Locker
	switch cfg.LockBackend {
	case config.LockRedis:
		rdb, err := redisclient.NewRedisClient(ctx, redisclient.Options{
			Addr:     cfg.RedisAddr,
			Username: cfg.RedisUsername,
			Password: cfg.RedisPassword,
			PoolSize: max(10, 2*cfg.GenerationWorkers),
		}, logger)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("redis connection: %w", err)
		}
		c.Redis = rdb
		pairLocker = lock.NewRedisLocker(rdb, cfg.GenerationLockTTL)
		slotLocker = lock.NewRedisLocker(rdb, cfg.SlotLockTTL)
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
	default:
		local := lock.NewLocalLocker()
		pairLocker, slotLocker = local, local
		logger.Warn("using in-process locks, do not run more than one instance")
	}

	c.Writer = availability.NewBatchWriter(c.Store, pairLocker, cfg.InsertBatchSize, logger)

	genOpts := []availability.GeneratorOption{
		availability.WithWorkers(cfg.GenerationWorkers),
		availability.WithLocation(cfg.Location),
	}
	if o.progress != nil {
		genOpts = append(genOpts, availability.WithProgress(o.progress))
	}
	c.Generator = availability.NewGenerator(c.Store, c.Store, c.Writer, logger, genOpts...)
	c.Sweeper = availability.NewSweeper(c.Store, logger)
	c.Reconciler = availability.NewReconciler(c.Store, logger)
	c.Booking = availability.NewBookingService(c.Store, c.Writer, slotLocker, cfg.ReservationTTL, logger)

	return c, nil
}

// HorizonRequest covers [today, today + GENERATION_HORIZON_DAYS] for every
// facility and doctor, in the configured time zone.
func (c *Container) HorizonRequest(now time.Time) availability.GenerateRequest {
	start := availability.StartOfDay(now.In(c.Config.Location))
	return availability.GenerateRequest{
		Start: start,
		End:   start.AddDate(0, 0, c.Config.GenerationHorizonDays),
	}
}

func (c *Container) Close() {
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			c.Logger.Warn("error closing redis", zap.Error(err))
		}
	}
	if c.Pool != nil {
		c.Pool.Close()
	}
}
