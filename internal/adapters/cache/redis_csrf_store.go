package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCSRFStore shares single-use CSRF tokens across API instances.
type RedisCSRFStore struct {
	client *redis.Client
}

func NewRedisCSRFStore(client *redis.Client) *RedisCSRFStore {
	return &RedisCSRFStore{client: client}
}

func (s *RedisCSRFStore) Put(ctx context.Context, token string, now, expiresAt time.Time) error {
	ttl := expiresAt.Sub(now)
	if ttl <= 0 {
		return nil
	}
	return s.client.Set(ctx, csrfKey(token), expiresAt.UnixMilli(), ttl).Err()
}

// Consume uses GETDEL so a token can only be redeemed by one request.
func (s *RedisCSRFStore) Consume(ctx context.Context, token string, now time.Time) (bool, error) {
	raw, err := s.client.GetDel(ctx, csrfKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	expiresMs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, nil
	}
	return now.UnixMilli() < expiresMs, nil
}

func csrfKey(token string) string {
	return "auth:csrf:" + token
}
