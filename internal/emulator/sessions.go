package emulator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const refreshPrefix = "refresh:v1:"

// RefreshStore tracks issued refresh tokens. Consume is single-use:
// reading a token removes it, which is what forces rotation.
type RefreshStore interface {
	Issue(ctx context.Context, userID string, ttl time.Duration) (string, error)
	Consume(ctx context.Context, token string) (string, error)
	Revoke(ctx context.Context, token string) error
}

func newRefreshToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// RedisRefreshStore keeps refresh tokens in Redis with their TTL, so a
// restarted dev backend does not invalidate live sessions.
type RedisRefreshStore struct {
	cache *redis.Client
}

func NewRedisRefreshStore(cache *redis.Client) *RedisRefreshStore {
	return &RedisRefreshStore{cache: cache}
}

func (s *RedisRefreshStore) Issue(ctx context.Context, userID string, ttl time.Duration) (string, error) {
	token, err := newRefreshToken()
	if err != nil {
		return "", err
	}
	if err := s.cache.Set(ctx, refreshPrefix+token, userID, ttl).Err(); err != nil {
		return "", err
	}
	return token, nil
}

func (s *RedisRefreshStore) Consume(ctx context.Context, token string) (string, error) {
	userID, err := s.cache.GetDel(ctx, refreshPrefix+token).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

func (s *RedisRefreshStore) Revoke(ctx context.Context, token string) error {
	return s.cache.Del(ctx, refreshPrefix+token).Err()
}

// MemoryRefreshStore is the in-process fallback used when no Redis URL is
// configured.
type MemoryRefreshStore struct {
	mu     sync.Mutex
	tokens map[string]refreshEntry
}

type refreshEntry struct {
	userID    string
	expiresAt time.Time
}

func NewMemoryRefreshStore() *MemoryRefreshStore {
	return &MemoryRefreshStore{tokens: make(map[string]refreshEntry)}
}

func (s *MemoryRefreshStore) Issue(_ context.Context, userID string, ttl time.Duration) (string, error) {
	token, err := newRefreshToken()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	s.tokens[token] = refreshEntry{userID: userID, expiresAt: time.Now().Add(ttl)}
	s.mu.Unlock()
	return token, nil
}

func (s *MemoryRefreshStore) Consume(_ context.Context, token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tokens[token]
	if !ok {
		return "", ErrNotFound
	}
	delete(s.tokens, token)
	if time.Now().After(entry.expiresAt) {
		return "", ErrNotFound
	}
	return entry.userID, nil
}

func (s *MemoryRefreshStore) Revoke(_ context.Context, token string) error {
	s.mu.Lock()
	delete(s.tokens, token)
	s.mu.Unlock()
	return nil
}

var (
	_ RefreshStore = (*RedisRefreshStore)(nil)
	_ RefreshStore = (*MemoryRefreshStore)(nil)
)
