package session

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const defaultRedisTimeout = 2 * time.Second

// RedisStorage keeps keys in Redis under a common prefix. Each call is bounded
// by its own timeout because the Storage contract is synchronous.
type RedisStorage struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

var _ Storage = (*RedisStorage)(nil)

type RedisOption func(*RedisStorage)

func WithRedisKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStorage) {
		s.prefix = prefix
	}
}

func WithRedisTimeout(timeout time.Duration) RedisOption {
	return func(s *RedisStorage) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// NewRedisStorage wraps an existing client. The caller owns the client and
// closes it.
func NewRedisStorage(client redis.UniversalClient, options ...RedisOption) *RedisStorage {
	s := &RedisStorage{
		client:  client,
		timeout: defaultRedisTimeout,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

func (s *RedisStorage) Get(key string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	value, err := s.client.Get(ctx, s.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrapf(err, "redis get %s", key)
	}
	return value, nil
}

func (s *RedisStorage) Set(key, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.client.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return errors.Wrapf(err, "redis set %s", key)
	}
	return nil
}

func (s *RedisStorage) Remove(key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return errors.Wrapf(err, "redis del %s", key)
	}
	return nil
}
