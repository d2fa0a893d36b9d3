// Package redislock implements worktime.Locker on Redis so several server
// instances serialize writes for the same user.
//
// A lock is a key set with NX and a TTL holding a random token. Release
// deletes the key only if it still holds our token, so a lock that expired
// and was taken by another instance is never released by mistake.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/warp/worktime-engine/worktime"
)

const keyPrefix = "worktime:lock:"

var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Options struct {
	TTL        time.Duration // lock lifetime if the holder dies
	RetryDelay time.Duration // wait between attempts while the key is held
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = 30 * time.Second
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 25 * time.Millisecond
	}
	return o
}

// Locker is a worktime.Locker backed by a Redis client.
type Locker struct {
	rdb    goredis.UniversalClient
	opts   Options
	logger *zap.Logger
}

var _ worktime.Locker = (*Locker)(nil)

func New(rdb goredis.UniversalClient, opts Options, logger *zap.Logger) *Locker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locker{rdb: rdb, opts: opts.withDefaults(), logger: logger}
}

// Connect creates a client and checks it with a ping.
func Connect(ctx context.Context, addr, password string, db int) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return rdb, nil
}

// Lock polls until the key is acquired or ctx is done.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := keyPrefix + key
	token := uuid.NewString()

	for {
		ok, err := l.rdb.SetNX(ctx, redisKey, token, l.opts.TTL).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("acquire %s: %w", key, err)
		}
		if ok {
			break
		}

		timer := time.NewTimer(l.opts.RetryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}

	return func() { l.release(redisKey, token) }, nil
}

// release runs on its own context so a cancelled request still frees the key.
func (l *Locker) release(redisKey, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := releaseScript.Run(ctx, l.rdb, []string{redisKey}, token).Int()
	if err != nil && !errors.Is(err, goredis.Nil) {
		l.logger.Error("redis lock release failed", zap.String("key", redisKey), zap.Error(err))
		return
	}
	if n == 0 {
		l.logger.Warn("redis lock expired before release", zap.String("key", redisKey))
	}
}
