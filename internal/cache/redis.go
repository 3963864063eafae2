package cache

import (
	"context"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/halcyon-lab/swing-trading/pkg/errors"
)

// RedisConfig configures the redis-backed store.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
}

// RedisStore implements Store on a redis server.
type RedisStore struct {
	client *goredis.Client
}

// NewRedisStore connects to redis and pings it to fail fast on a bad
// address.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeCacheUnavailable, err, "redis ping failed: %s", cfg.Addr)
	}

	return &RedisStore{client: client}, nil
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if err == goredis.Nil {
		return nil, errors.Newf(errors.ErrCodeCacheMiss, "key not found: %s", key)
	}

	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeCacheUnavailable, err, "redis get failed: %s", key)
	}

	return val, nil
}

// SetWithTTL implements Store.
func (s *RedisStore) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return errors.Wrapf(errors.ErrCodeCacheUnavailable, err, "redis set failed: %s", key)
	}

	return nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return errors.Wrapf(errors.ErrCodeCacheUnavailable, err, "redis del failed: %s", key)
	}

	return nil
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}
