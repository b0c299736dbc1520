package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
	"github.com/rs/zerolog/log"
)

// ErrKeyNotFound is returned by ephemeral stores for missing or expired keys.
var ErrKeyNotFound = errors.New("key not found")

// RedisStore is the ephemeral key-value store backing bot test sessions.
type RedisStore struct {
	pool *redis.Pool
}

// NewRedisStore builds a connection pool for addr. Connections are opened
// lazily, so an unreachable server only surfaces on use.
func NewRedisStore(addr, password string) *RedisStore {
	pool := &redis.Pool{
		MaxIdle:     4,
		IdleTimeout: 240 * time.Second,
		Dial: func() (redis.Conn, error) {
			opts := []redis.DialOption{
				redis.DialConnectTimeout(5 * time.Second),
				redis.DialReadTimeout(5 * time.Second),
				redis.DialWriteTimeout(5 * time.Second),
			}
			if password != "" {
				opts = append(opts, redis.DialPassword(password))
			}
			return redis.Dial("tcp", addr, opts...)
		},
		TestOnBorrow: func(c redis.Conn, t time.Time) error {
			if time.Since(t) < time.Minute {
				return nil
			}
			_, err := c.Do("PING")
			return err
		},
	}
	log.Info().Str("addr", addr).Msg("Redis pool configured")
	return &RedisStore{pool: pool}
}

// SetEx stores value under key with the given expiry.
func (s *RedisStore) SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	rc, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis unavailable: %w", err)
	}
	defer rc.Close()

	if _, err := redis.DoContext(rc, ctx, "SET", key, value, "EX", int(ttl.Seconds())); err != nil {
		return fmt.Errorf("redis SET %s failed: %w", key, err)
	}
	return nil
}

// Get returns the value of key or ErrKeyNotFound.
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.pool.GetContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("redis unavailable: %w", err)
	}
	defer rc.Close()

	value, err := redis.Bytes(redis.DoContext(rc, ctx, "GET", key))
	if errors.Is(err, redis.ErrNil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis GET %s failed: %w", key, err)
	}
	return value, nil
}

// Ping checks that the server answers.
func (s *RedisStore) Ping(ctx context.Context) error {
	rc, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis unavailable: %w", err)
	}
	defer rc.Close()
	_, err = redis.DoContext(rc, ctx, "PING")
	return err
}

func (s *RedisStore) Close() error {
	return s.pool.Close()
}
