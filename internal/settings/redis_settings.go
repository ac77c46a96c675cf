package settings

import (
	"context"
	"encoding/json"

	redis "github.com/redis/go-redis/v9"

	"smartpos/engine/internal/domain"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string, password string, db int) *RedisStore {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisStore{client: client}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) Load(ctx context.Context) (domain.Settings, bool, error) {
	val, err := s.client.Get(ctx, Key).Result()
	if err == redis.Nil {
		return domain.Settings{}, false, nil
	}
	if err != nil {
		return domain.Settings{}, false, err
	}

	var blob domain.Settings
	if err := json.Unmarshal([]byte(val), &blob); err != nil {
		return domain.Settings{}, false, err
	}
	return blob, true, nil
}

func (s *RedisStore) Save(ctx context.Context, blob domain.Settings) error {
	payload, err := json.Marshal(blob)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, Key, payload, 0).Err()
}
