package redis

import (
	"context"

	"github.com/kidwatch/vigil/internal/storage"
	"github.com/redis/go-redis/v9"
)

type settingsStore struct {
	client *redis.Client
}

func (s *settingsStore) Get(ctx context.Context, key string) (string, error) {
	value, err := s.client.HGet(ctx, keySettings, key).Result()
	if err == redis.Nil {
		return "", storage.ErrNotFound
	}
	return value, err
}

func (s *settingsStore) Set(ctx context.Context, key, value string) error {
	return s.client.HSet(ctx, keySettings, key, value).Err()
}

func (s *settingsStore) SetBatch(ctx context.Context, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	flat := make([]any, 0, len(values)*2)
	for key, value := range values {
		flat = append(flat, key, value)
	}
	return s.client.HSet(ctx, keySettings, flat...).Err()
}

func (s *settingsStore) All(ctx context.Context) (map[string]string, error) {
	return s.client.HGetAll(ctx, keySettings).Result()
}
