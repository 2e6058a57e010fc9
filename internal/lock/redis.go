package lock

import (
	"context"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/opencode-ai/promptchain/internal/models"
)

// RedisClient is the subset of Redis operations the RedisStore needs.
type RedisClient interface {
	// Eval runs a Lua script and returns its integer reply.
	Eval(ctx context.Context, script string, keys []string, args ...any) (int64, error)
	// HGetAll returns every field of a hash, empty when the key is missing.
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	// Del deletes keys.
	Del(ctx context.Context, keys ...string) error
	// Close shuts down the client.
	Close() error
}

const (
	acquireScript = `
local owner = redis.call('HGET', KEYS[1], 'owner')
local ts = tonumber(redis.call('HGET', KEYS[1], 'ts') or '0')
if (not owner) or owner == ARGV[1] or ts <= tonumber(ARGV[3]) then
  redis.call('HSET', KEYS[1], 'owner', ARGV[1], 'ts', ARGV[2])
  redis.call('PEXPIRE', KEYS[1], ARGV[4])
  return 1
end
return 0`

	renewScript = `
if redis.call('HGET', KEYS[1], 'owner') == ARGV[1] then
  redis.call('HSET', KEYS[1], 'ts', ARGV[2])
  redis.call('PEXPIRE', KEYS[1], ARGV[3])
  return 1
end
return 0`

	releaseScript = `
if redis.call('HGET', KEYS[1], 'owner') == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0`
)

// RedisStore keeps lock records in Redis hashes so instances on different
// hosts share one lock. Keys expire after a few TTLs so abandoned records
// do not linger.
type RedisStore struct {
	client RedisClient
	prefix string
	expiry time.Duration
}

// NewRedisStore creates a store using client. Keys are prefixed with prefix.
func NewRedisStore(client RedisClient, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "promptchain:lock:"
	}
	if ttl <= 0 {
		ttl = 15 * time.Second
	}
	return &RedisStore{client: client, prefix: prefix, expiry: 4 * ttl}
}

// DialRedis connects to url and returns a RedisClient.
func DialRedis(ctx context.Context, url string) (RedisClient, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &redisAdapter{client: client}, nil
}

func (s *RedisStore) key(name string) string {
	return s.prefix + name
}

func (s *RedisStore) Get(ctx context.Context, name string) (*models.LockRecord, error) {
	fields, err := s.client.HGetAll(ctx, s.key(name))
	if err != nil {
		return nil, fmt.Errorf("read lock %q: %w", name, err)
	}
	owner, ok := fields["owner"]
	if !ok {
		return nil, nil
	}
	ms, err := strconv.ParseInt(fields["ts"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("lock %q has a bad timestamp: %w", name, err)
	}
	return &models.LockRecord{OwnerID: owner, Timestamp: time.UnixMilli(ms).UTC()}, nil
}

func (s *RedisStore) TryAcquire(ctx context.Context, name, owner string, now time.Time, ttl time.Duration) (bool, error) {
	n, err := s.client.Eval(ctx, acquireScript, []string{s.key(name)},
		owner, now.UnixMilli(), now.Add(-ttl).UnixMilli(), s.expiry.Milliseconds())
	if err != nil {
		return false, fmt.Errorf("acquire lock %q: %w", name, err)
	}
	return n == 1, nil
}

func (s *RedisStore) Renew(ctx context.Context, name, owner string, now time.Time) (bool, error) {
	n, err := s.client.Eval(ctx, renewScript, []string{s.key(name)}, owner, now.UnixMilli(), s.expiry.Milliseconds())
	if err != nil {
		return false, fmt.Errorf("renew lock %q: %w", name, err)
	}
	return n == 1, nil
}

func (s *RedisStore) Release(ctx context.Context, name, owner string) (bool, error) {
	n, err := s.client.Eval(ctx, releaseScript, []string{s.key(name)}, owner)
	if err != nil {
		return false, fmt.Errorf("release lock %q: %w", name, err)
	}
	return n == 1, nil
}

func (s *RedisStore) ForceRelease(ctx context.Context, name string) error {
	if err := s.client.Del(ctx, s.key(name)); err != nil {
		return fmt.Errorf("release lock %q: %w", name, err)
	}
	return nil
}

// redisAdapter wraps a go-redis client to implement RedisClient.
type redisAdapter struct {
	client *goredis.Client
}

func (r *redisAdapter) Eval(ctx context.Context, script string, keys []string, args ...any) (int64, error) {
	return r.client.Eval(ctx, script, keys, args...).Int64()
}

func (r *redisAdapter) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.client.HGetAll(ctx, key).Result()
}

func (r *redisAdapter) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func (r *redisAdapter) Close() error {
	return r.client.Close()
}
