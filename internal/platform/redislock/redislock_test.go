package redislock

import (
	"context"
	"os"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/neurobridge-studygen/internal/platform/logger"
)

func TestLocalLocker(t *testing.T) {
	l := NewLocal()
	ctx := context.Background()

	release, err := l.Acquire(ctx, "pack:flashcards", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "pack:flashcards", time.Minute)
	require.ErrorIs(t, err, ErrLocked)

	other, err := l.Acquire(ctx, "pack:quiz", time.Minute)
	require.NoError(t, err)
	other()

	release()
	release()
	again, err := l.Acquire(ctx, "pack:flashcards", time.Minute)
	require.NoError(t, err)
	again()
}

func TestLocalLockerExpiry(t *testing.T) {
	l := NewLocal()
	_, err := l.Acquire(context.Background(), "k", time.Millisecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	release, err := l.Acquire(context.Background(), "k", time.Minute)
	require.NoError(t, err)
	release()
}

func TestRedisLocker(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set TEST_REDIS_ADDR to run redis lock tests")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	defer rdb.Close()

	l := NewRedis(logger.Nop(), rdb, "studygen:test:")
	ctx := context.Background()
	release, err := l.Acquire(ctx, "pack:mindmap", 5*time.Second)
	require.NoError(t, err)
	_, err = l.Acquire(ctx, "pack:mindmap", 5*time.Second)
	require.ErrorIs(t, err, ErrLocked)
	release()
	release2, err := l.Acquire(ctx, "pack:mindmap", 5*time.Second)
	require.NoError(t, err)
	release2()
}
