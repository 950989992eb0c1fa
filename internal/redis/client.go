package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultPingTimeout = 5 * time.Second

// Options configures the client shared by the pair and slot lockers.
type Options struct {
	Addr        string
	Username    string
	Password    string
	PoolSize    int
	PingTimeout time.Duration
}

// NewRedisClient connects and pings once. The caller owns the client.
func NewRedisClient(ctx context.Context, opts Options, logger *zap.Logger) (*redis.Client, error) {
	if opts.PoolSize <= 0 {
		opts.PoolSize = 10
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = defaultPingTimeout
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     opts.PoolSize,
		MinIdleConns: 1,
	})

	pingCtx, cancel := context.WithTimeout(ctx, opts.PingTimeout)
	defer cancel()

	start := time.Now()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", opts.Addr, err)
	}

	logger.Debug("redis ping ok",
		zap.String("addr", opts.Addr),
		zap.Int("pool_size", opts.PoolSize),
		zap.Duration("latency", time.Since(start)),
	)
	return rdb, nil
}
