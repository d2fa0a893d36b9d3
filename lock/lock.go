// Package lock chooses the per-user Locker for the configured deployment.
package lock

import (
	"context"

	"go.uber.org/zap"

	"github.com/warp/worktime-engine/config"
	"github.com/warp/worktime-engine/lock/redislock"
	"github.com/warp/worktime-engine/worktime"
)

// FromConfig returns a Redis locker when Redis is enabled, otherwise an
// in-process keyed mutex. The in-process locker only serializes writers
// inside one process.
func FromConfig(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (worktime.Locker, func(), error) {
	if !cfg.Enabled {
		return worktime.NewKeyedMutex(), func() {}, nil
	}

	rdb, err := redislock.Connect(ctx, cfg.Addr, cfg.Password, cfg.DB)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("using redis locks", zap.String("addr", cfg.Addr), zap.Duration("ttl", cfg.LockTTL))

	l := redislock.New(rdb, redislock.Options{TTL: cfg.LockTTL}, logger.Named("redislock"))
	return l, func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("close redis client", zap.Error(err))
		}
	}, nil
}
