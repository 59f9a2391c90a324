package emulator

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisRefreshStore(t *testing.T) (*RedisRefreshStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		cache.Close()
		mr.Close()
	})
	return NewRedisRefreshStore(cache), mr
}

func TestRedisRefreshStoreConsumeIsSingleUse(t *testing.T) {
	store, _ := newRedisRefreshStore(t)
	ctx := context.Background()

	token, err := store.Issue(ctx, "user-1", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	userID, err := store.Consume(ctx, token)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("consumed user = %q", userID)
	}

	if _, err := store.Consume(ctx, token); err != ErrNotFound {
		t.Fatalf("second consume err = %v, want ErrNotFound", err)
	}
}

func TestRedisRefreshStoreExpires(t *testing.T) {
	store, mr := newRedisRefreshStore(t)
	ctx := context.Background()

	token, err := store.Issue(ctx, "user-1", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.Consume(ctx, token); err != ErrNotFound {
		t.Fatalf("expired consume err = %v, want ErrNotFound", err)
	}
}

func TestRedisRefreshStoreRevoke(t *testing.T) {
	store, _ := newRedisRefreshStore(t)
	ctx := context.Background()

	token, err := store.Issue(ctx, "user-1", time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := store.Revoke(ctx, token); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := store.Consume(ctx, token); err != ErrNotFound {
		t.Fatalf("revoked consume err = %v, want ErrNotFound", err)
	}
}

func TestMemoryRefreshStoreExpires(t *testing.T) {
	store := NewMemoryRefreshStore()
	ctx := context.Background()

	token, err := store.Issue(ctx, "user-1", -time.Second)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := store.Consume(ctx, token); err != ErrNotFound {
		t.Fatalf("expired consume err = %v, want ErrNotFound", err)
	}
}
