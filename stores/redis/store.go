package redis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/Indrakargaurav/codeweave/core"
	goredis "github.com/redis/go-redis/v9"
)

type redisStore struct {
	client *goredis.Client
}

// NewStore creates a Redis-backed TTL store. Expiry handling is delegated
// entirely to Redis.
func NewStore(addr string) *redisStore {
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("could not connect to Redis at %s: %v", addr, err)
	}
	return &redisStore{client: client}
}

func (s *redisStore) SetWithExpiry(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (s *redisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return "", core.ErrNotFound
		}
		return "", fmt.Errorf("redis get %s: %w", key, err)
	}
	return val, nil
}
