package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Redis tests need a live server; set QUOTAGATE_TEST_REDIS_ADDR to run them.
func newTestRedisBackend(t *testing.T) *RedisBackend {
	t.Helper()
	addr := os.Getenv("QUOTAGATE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("QUOTAGATE_TEST_REDIS_ADDR not set")
	}
	b, err := NewRedisBackend(context.Background(), RedisOptions{Addr: addr})
	if err != nil {
		t.Fatalf("NewRedisBackend: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestKeyedStoreRedis(t *testing.T) {
	runKeyedSuite(t, newTestRedisBackend(t))
}

func TestRedisBackendTTL(t *testing.T) {
	b := newTestRedisBackend(t)
	ctx := context.Background()
	id := uuid.NewString()

	if err := b.Save(ctx, id, "payload", 2*time.Second); err != nil {
		t.Fatalf("Save: %v", err)
	}
	ttl, err := b.client.TTL(ctx, redisKeyPrefix+id).Result()
	if err != nil {
		t.Fatalf("TTL: %v", err)
	}
	if ttl <= 0 || ttl > 2*time.Second {
		t.Errorf("TTL = %v, want (0, 2s]", ttl)
	}

	if err := b.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := b.Load(ctx, id); !errors.Is(err, errNotFound) {
		t.Errorf("expected errNotFound after delete, got %v", err)
	}
}

func TestNewRedisBackendUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	// Port 1 on loopback is never a redis server.
	if _, err := NewRedisBackend(ctx, RedisOptions{Addr: "127.0.0.1:1"}); err == nil {
		t.Fatal("expected connection error")
	}
}
