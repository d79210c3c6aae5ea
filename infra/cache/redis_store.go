package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/amirasaad/remittance/pkg/config"
	"github.com/amirasaad/remittance/pkg/kvstore"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements kvstore.Store on a Redis client.
type RedisStore struct {
	client *redis.Client
	prefix string
	logger *slog.Logger
}

// NewRedisStore connects using cfg and verifies the connection with PING.
func NewRedisStore(ctx context.Context, cfg *config.Redis, logger *slog.Logger) (*RedisStore, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("redis store: invalid URL: %w", err)
	}
	opt.PoolSize = cfg.PoolSize
	opt.DialTimeout = cfg.DialTimeout
	opt.ReadTimeout = cfg.ReadTimeout
	opt.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis store: connection failed: %w", err)
	}
	return NewRedisStoreWithClient(client, cfg.KeyPrefix, logger), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{client: client, prefix: prefix, logger: logger.With("store", "redis")}
}

// Client exposes the connection so the event bus can share it.
func (r *RedisStore) Client() *redis.Client { return r.client }

func (r *RedisStore) key(key string) string {
	return r.prefix + key
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := r.client.Get(ctx, r.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		r.logger.Debug("Redis cache miss", "key", key)
		return nil, kvstore.ErrMiss
	}
	if err != nil {
		r.logger.Error("Redis cache get error", "key", key, "error", err)
		return nil, err
	}
	return val, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		r.logger.Error("Redis cache set error", "key", key, "error", err)
		return err
	}
	return nil
}

func (r *RedisStore) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, r.key(key), value, ttl).Result()
	if err != nil {
		r.logger.Error("Redis cache setnx error", "key", key, "error", err)
		return false, err
	}
	return ok, nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		r.logger.Error("Redis cache delete error", "key", key, "error", err)
		return err
	}
	return nil
}

// Close releases the underlying client.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

var _ kvstore.Store = (*RedisStore)(nil)
