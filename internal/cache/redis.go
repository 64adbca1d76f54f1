package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lyrebird/internal/config"

	"github.com/go-redis/redis/v8"
)

// RedisStore keeps fallback entries in redis so several players on one
// machine (or a home server) share fetched lyrics and covers.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(redisOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	return NewRedisStoreFromClient(client, cfg.Prefix), nil
}

// Lookups run on the playback path, so the client must give up quickly
// instead of using the library's multi-second defaults.
func redisOptions(cfg config.RedisConfig) *redis.Options {
	retries := cfg.MaxRetries
	if retries == 0 {
		// go-redis treats 0 as "use the default"
		retries = -1
	}
	return &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout(),
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.ReadTimeout(),
		MaxRetries:   retries,
	}
}

// NewRedisStoreFromClient wraps an existing client
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "lyrebird"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) redisKey(key string, kind Kind) string {
	return s.prefix + ":" + string(kind) + ":" + key
}

func (s *RedisStore) Get(ctx context.Context, key string, kind Kind) ([]byte, error) {
	data, err := s.client.Get(ctx, s.redisKey(key, kind)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrNotFound
	}
	return data, nil
}

// Put stores the entry without expiry
func (s *RedisStore) Put(ctx context.Context, key string, kind Kind, data []byte) error {
	return s.client.Set(ctx, s.redisKey(key, kind), data, 0).Err()
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
