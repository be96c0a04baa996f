package redislock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/neurobridge-studygen/internal/platform/envutil"
	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
)

// ErrLocked is returned when another holder owns the key.
var ErrLocked = errors.New("lock held")

// Locker hands out exclusive, non-blocking leases keyed by string.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
}

// compare-and-delete so an expired lease never releases someone else's lock
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type redisLocker struct {
	log    *logger.Logger
	rdb    *goredis.Client
	prefix string
}

// NewFromEnv returns a Redis-backed locker when REDIS_ADDR is set and an
// in-process one otherwise.
func NewFromEnv(log *logger.Logger) (Locker, error) {
	if log == nil {
		return nil, fmt.Errorf("redislock: logger required")
	}
	addr := envutil.String("REDIS_ADDR", "")
	if addr == "" {
		log.Info("REDIS_ADDR unset; using in-process run locks")
		return NewLocal(), nil
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    envutil.String("REDIS_PASSWORD", ""),
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedis(log, rdb, envutil.String("REDIS_LOCK_PREFIX", "studygen:lock:")), nil
}

func NewRedis(log *logger.Logger, rdb *goredis.Client, prefix string) Locker {
	return &redisLocker{log: log.With("service", "RedisLocker"), rdb: rdb, prefix: prefix}
}

func (l *redisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	full := l.prefix + key
	ok, err := l.rdb.SetNX(ctx, full, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx %s: %w", full, err)
	}
	if !ok {
		return nil, ErrLocked
	}
	return func() {
		relCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := releaseScript.Run(relCtx, l.rdb, []string{full}, token).Err(); err != nil {
			l.log.Warn("redis lock release failed", "key", full, "error", err)
		}
	}, nil
}

type localLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
}

func NewLocal() Locker {
	return &localLocker{held: map[string]time.Time{}}
}

func (l *localLocker) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if exp, ok := l.held[key]; ok && (ttl <= 0 || now.Before(exp)) {
		return nil, ErrLocked
	}
	exp := now.Add(ttl)
	l.held[key] = exp
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			if cur, ok := l.held[key]; ok && cur.Equal(exp) {
				delete(l.held, key)
			}
			l.mu.Unlock()
		})
	}, nil
}
