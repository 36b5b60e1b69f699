package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisSlotStore keeps slots in Redis under a namespace prefix, for hubs
// where several field devices share one cache host.
type RedisSlotStore struct {
	client    *redis.Client
	namespace string
}

func NewRedisSlotStore(client *redis.Client, namespace string) *RedisSlotStore {
	return &RedisSlotStore{client: client, namespace: namespace}
}

func (s *RedisSlotStore) key(key string) string {
	if s.namespace == "" {
		return key
	}
	return s.namespace + ":" + key
}

// Load returns the blob stored under key, or (nil, nil) if there is none.
func (s *RedisSlotStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load slot %q: %w", key, err)
	}
	return data, nil
}

// Save writes the blob without expiry; pending records must outlive restarts.
func (s *RedisSlotStore) Save(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, s.key(key), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save slot %q: %w", key, err)
	}
	return nil
}
