// ABOUTME: Redis implementation of the ephemeral Store interface
// ABOUTME: Uses SET EX, GETDEL, INCR+EXPIRE, and set commands from go-redis v9

package ephemeral

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements the Store interface backed by a Redis server
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// Ensure RedisStore implements the Store interface
var _ Store = (*RedisStore)(nil)

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	logger := slog.Default().With("component", "ephemeral")

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to ephemeral store: %w", err)
	}

	logger.Info("ephemeral store connected", "addr", addr, "db", db)
	return &RedisStore{client: client, logger: logger}, nil
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Set stores value under key with the given TTL.
func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return wrapErr(s.client.Set(ctx, key, value, ttl).Err())
}

// Get retrieves the value at key.
func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		return "", wrapErr(err)
	}
	return val, nil
}

// GetDel atomically reads and deletes key.
func (s *RedisStore) GetDel(ctx context.Context, key string) (string, error) {
	val, err := s.client.GetDel(ctx, key).Result()
	if err != nil {
		return "", wrapErr(err)
	}
	return val, nil
}

// Delete removes key.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	return wrapErr(s.client.Del(ctx, key).Err())
}

// Exists reports whether key is present.
func (s *RedisStore) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, wrapErr(err)
	}
	return n > 0, nil
}

// Incr increments the counter at key, attaching ttl on first creation so the
// window slides from the first request.
func (s *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, wrapErr(err)
	}
	if n == 1 && ttl > 0 {
		if err := s.client.Expire(ctx, key, ttl).Err(); err != nil {
			return n, wrapErr(err)
		}
	}
	return n, nil
}

// SetAdd adds member to the set at key.
func (s *RedisStore) SetAdd(ctx context.Context, key string, member string) error {
	return wrapErr(s.client.SAdd(ctx, key, member).Err())
}

// SetRemove removes member from the set at key.
func (s *RedisStore) SetRemove(ctx context.Context, key string, member string) error {
	return wrapErr(s.client.SRem(ctx, key, member).Err())
}

// SetMembers returns all members of the set at key.
func (s *RedisStore) SetMembers(ctx context.Context, key string) ([]string, error) {
	members, err := s.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, wrapErr(err)
	}
	return members, nil
}

// Ping verifies the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return wrapErr(s.client.Ping(ctx).Err())
}

// Close releases the client connection pool.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
