package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const scanBatch = 100

type Config struct {
	Enabled bool
	TTL     time.Duration
	Prefix  string
}

// Store is the Redis-backed key/value store. Response entries live under
// Prefix and their operations degrade to absent/false on failure. Hash
// operations back the registry and report failures to the caller.
type Store struct {
	client  redis.UniversalClient
	enabled bool
	ttl     time.Duration
	prefix  string
}

func NewStore(client redis.UniversalClient, cfg Config) *Store {
	return &Store{
		client:  client,
		enabled: cfg.Enabled,
		ttl:     cfg.TTL,
		prefix:  cfg.Prefix,
	}
}

func (s *Store) Enabled() bool {
	return s.enabled
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	if !s.enabled {
		return nil, false
	}

	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.WarnContext(ctx, "cache get failed", slog.String("key", key), slog.Any("error", err))
		}
		return nil, false
	}
	return data, true
}

// Set stores value under key. A non-positive ttl falls back to the store
// default; a non-positive default stores without expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) bool {
	if !s.enabled {
		return false
	}

	if ttl <= 0 {
		ttl = s.ttl
	}
	if ttl < 0 {
		ttl = 0
	}

	if err := s.client.Set(ctx, s.key(key), value, ttl).Err(); err != nil {
		slog.WarnContext(ctx, "cache set failed", slog.String("key", key), slog.Any("error", err))
		return false
	}
	return true
}

// GetJSON decodes the entry under key into out.
func (s *Store) GetJSON(ctx context.Context, key string, out any) bool {
	data, ok := s.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		slog.WarnContext(ctx, "cache entry decode failed", slog.String("key", key), slog.Any("error", err))
		return false
	}
	return true
}

// SetJSON serializes v fully before storing it. A marshal failure is
// returned since it is a caller error, not a store failure.
func (s *Store) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return false, fmt.Errorf("cache value for %s is not serializable: %w", key, err)
	}
	return s.Set(ctx, key, data, ttl), nil
}

func (s *Store) Delete(ctx context.Context, key string) bool {
	if !s.enabled {
		return false
	}

	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		slog.WarnContext(ctx, "cache delete failed", slog.String("key", key), slog.Any("error", err))
		return false
	}
	return true
}

// DeleteByPattern removes every entry whose key matches the glob pattern.
func (s *Store) DeleteByPattern(ctx context.Context, pattern string) bool {
	if !s.enabled {
		return false
	}

	deleted, err := s.deleteMatching(ctx, s.key(pattern))
	if err != nil {
		slog.WarnContext(ctx, "cache pattern delete failed", slog.String("pattern", pattern), slog.Any("error", err))
		return false
	}
	slog.DebugContext(ctx, "cache entries invalidated", slog.String("pattern", pattern), slog.Int("deleted", deleted))
	return true
}

// Clear removes every response entry. Keys outside the prefix, such as the
// registry hash, are left alone.
func (s *Store) Clear(ctx context.Context) bool {
	if !s.enabled {
		return false
	}

	deleted, err := s.deleteMatching(ctx, s.key("*"))
	if err != nil {
		slog.WarnContext(ctx, "cache clear failed", slog.Any("error", err))
		return false
	}
	slog.InfoContext(ctx, "cache cleared", slog.Int("deleted", deleted))
	return true
}

func (s *Store) deleteMatching(ctx context.Context, match string) (int, error) {
	var (
		cursor  uint64
		deleted int
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, match, scanBatch).Result()
		if err != nil {
			return deleted, err
		}
		if len(keys) > 0 {
			n, err := s.client.Del(ctx, keys...).Result()
			if err != nil {
				return deleted, err
			}
			deleted += int(n)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

func (s *Store) HashSet(ctx context.Context, key, field string, value []byte) error {
	return s.client.HSet(ctx, key, field, value).Err()
}

var hsetIfExists = redis.NewScript(`
if redis.call("HEXISTS", KEYS[1], ARGV[1]) == 1 then
	redis.call("HSET", KEYS[1], ARGV[1], ARGV[2])
	return 1
end
return 0
`)

// HashSetIfExists overwrites field only when it is already present. The
// check and the write run atomically on the server.
func (s *Store) HashSetIfExists(ctx context.Context, key, field string, value []byte) (bool, error) {
	n, err := hsetIfExists.Run(ctx, s.client, []string{key}, field, value).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// HashGet reports (nil, false, nil) for a missing field.
func (s *Store) HashGet(ctx context.Context, key, field string) ([]byte, bool, error) {
	data, err := s.client.HGet(ctx, key, field).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (s *Store) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	return s.client.HGetAll(ctx, key).Result()
}

func (s *Store) HashDelete(ctx context.Context, key, field string) error {
	return s.client.HDel(ctx, key, field).Err()
}

func (s *Store) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + ":" + k
}
