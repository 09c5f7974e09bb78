package ratelimit

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient defines the Redis operations needed by RedisStore.
type RedisClient interface {
	// Get returns "" without error when the key does not exist
	Get(ctx context.Context, key string) (string, error)
	// PTTL returns the remaining TTL; negative when missing or persistent
	PTTL(ctx context.Context, key string) (time.Duration, error)
	// SetPX sets key to value with a millisecond-precision TTL
	SetPX(ctx context.Context, key, value string, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	// Del removes keys and returns how many existed
	Del(ctx context.Context, keys ...string) (int64, error)
	// Scan returns every key matching pattern
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// RedisGoAdapter adapts go-redis/v9 to RedisClient.
type RedisGoAdapter struct {
	Client *redis.Client
}

// NewRedisGoAdapter creates a new adapter for ledger operations
func NewRedisGoAdapter(client *redis.Client) *RedisGoAdapter {
	return &RedisGoAdapter{Client: client}
}

func (a *RedisGoAdapter) Get(ctx context.Context, key string) (string, error) {
	result, err := a.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return result, err
}

func (a *RedisGoAdapter) PTTL(ctx context.Context, key string) (time.Duration, error) {
	return a.Client.PTTL(ctx, key).Result()
}

func (a *RedisGoAdapter) SetPX(ctx context.Context, key, value string, ttl time.Duration) error {
	return a.Client.Set(ctx, key, value, ttl).Err()
}

func (a *RedisGoAdapter) Incr(ctx context.Context, key string) (int64, error) {
	return a.Client.Incr(ctx, key).Result()
}

func (a *RedisGoAdapter) Del(ctx context.Context, keys ...string) (int64, error) {
	return a.Client.Del(ctx, keys...).Result()
}

func (a *RedisGoAdapter) Scan(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	iter := a.Client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	return keys, iter.Err()
}

// RedisStoreConfig configures a RedisStore.
type RedisStoreConfig struct {
	// KeyPrefix is prepended to every ledger key
	KeyPrefix string
	// KeyHashSecret, when set, replaces caller keys with an HMAC-SHA256 digest
	// so client IPs and user ids are not stored in cleartext.
	KeyHashSecret []byte
}

// RedisStore is a Store shared by every instance pointed at the same Redis.
type RedisStore struct {
	client RedisClient
	config RedisStoreConfig
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed ledger.
func NewRedisStore(client RedisClient, config RedisStoreConfig) *RedisStore {
	return &RedisStore{client: client, config: config, now: time.Now}
}

func (s *RedisStore) buildKey(key string) string {
	if len(s.config.KeyHashSecret) > 0 {
		key = hashKey(key, s.config.KeyHashSecret)
	}
	return s.config.KeyPrefix + key
}

// hashKey returns the first 32 hex characters of HMAC-SHA256(key).
func hashKey(key string, secret []byte) string {
	h := hmac.New(sha256.New, secret)
	h.Write([]byte(key))
	return hex.EncodeToString(h.Sum(nil))[:32]
}

func (s *RedisStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	return s.read(ctx, s.buildKey(key))
}

func (s *RedisStore) read(ctx context.Context, redisKey string) (Entry, bool, error) {
	raw, err := s.client.Get(ctx, redisKey)
	if err != nil {
		return Entry{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if raw == "" {
		return Entry{}, false, nil
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		count = 0
	}
	ttl, err := s.client.PTTL(ctx, redisKey)
	if err != nil {
		return Entry{}, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	now := s.now()
	resetAt := now
	if ttl > 0 {
		resetAt = now.Add(ttl)
	}
	return Entry{Count: count, ResetAt: resetAt}, true, nil
}

func (s *RedisStore) Start(ctx context.Context, key string, resetAt time.Time) error {
	ttl := resetAt.Sub(s.now())
	if ttl < time.Millisecond {
		ttl = time.Millisecond
	}
	if err := s.client.SetPX(ctx, s.buildKey(key), "1", ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Increment uses INCR; a key that expired in between is recreated without a
// TTL, which read reports as an ended window.
func (s *RedisStore) Increment(ctx context.Context, key string) (int, error) {
	n, err := s.client.Incr(ctx, s.buildKey(key))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return int(n), nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if _, err := s.client.Del(ctx, s.buildKey(key)); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// Remove deletes the entry named by key, which is either a ledger key or a
// key as returned by List. With KeyHashSecret set the two differ: List only
// knows digests, which are deleted as they are rather than hashed again.
func (s *RedisStore) Remove(ctx context.Context, key string) (bool, error) {
	keys := []string{s.buildKey(key)}
	if listed := s.config.KeyPrefix + key; listed != keys[0] {
		keys = append(keys, listed)
	}
	n, err := s.client.Del(ctx, keys...)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

// List returns every entry under the prefix, keyed without the prefix.
// Keys are digests when KeyHashSecret is set.
func (s *RedisStore) List(ctx context.Context) (map[string]Entry, error) {
	keys, err := s.client.Scan(ctx, s.config.KeyPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	out := make(map[string]Entry, len(keys))
	for _, k := range keys {
		e, ok, err := s.read(ctx, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out[strings.TrimPrefix(k, s.config.KeyPrefix)] = e
		}
	}
	return out, nil
}
