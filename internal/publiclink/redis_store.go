package publiclink

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const noncePrefix = "publiclink:nonce:"

// RedisNonceStore backs nonce tracking with Redis. SetNX guards against
// duplicate issuance, GetDel makes redemption single-use.
type RedisNonceStore struct {
	client *redis.Client
}

// NewRedisNonceStore builds the store.
func NewRedisNonceStore(client *redis.Client) *RedisNonceStore {
	return &RedisNonceStore{client: client}
}

func (s *RedisNonceStore) Save(ctx context.Context, nonce string, ttl time.Duration) error {
	ok, err := s.client.SetNX(ctx, noncePrefix+nonce, "1", ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("nonce collision")
	}
	return nil
}

func (s *RedisNonceStore) Consume(ctx context.Context, nonce string) (bool, error) {
	_, err := s.client.GetDel(ctx, noncePrefix+nonce).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
