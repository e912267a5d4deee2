package donchian

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/krobus00/donchian-service/internal/entity"
	"github.com/redis/go-redis/v9"
)

// StateSnapshot is the persisted view of a strategy. A restart with a
// snapshot present resumes tracking the outstanding order or the open
// position instead of starting flat.
type StateSnapshot struct {
	State               string              `json:"state"`
	OutstandingID       string              `json:"outstanding_id,omitempty"`
	Request             entity.OrderRequest `json:"request,omitempty"`
	OutstandingQuantity int64               `json:"outstanding_quantity"`
	FilledLots          int64               `json:"filled_lots"`
	Position            Position            `json:"position"`
}

type StateStore interface {
	Load(ctx context.Context, key string) (StateSnapshot, bool, error)
	Save(ctx context.Context, key string, snapshot StateSnapshot) error
	Delete(ctx context.Context, key string) error
}

type RedisStateStore struct {
	client *redis.Client
}

func NewRedisStateStore(cacheDSN string) (*RedisStateStore, error) {
	if cacheDSN == "" {
		return nil, fmt.Errorf("redis cache_dsn is required")
	}

	options, err := redis.ParseURL(cacheDSN)
	if err != nil {
		return nil, fmt.Errorf("parse redis cache_dsn: %w", err)
	}

	return &RedisStateStore{client: redis.NewClient(options)}, nil
}

func (s *RedisStateStore) Load(ctx context.Context, key string) (StateSnapshot, bool, error) {
	rawSnapshot, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return StateSnapshot{}, false, nil
		}
		return StateSnapshot{}, false, err
	}

	var snapshot StateSnapshot
	if err := json.Unmarshal([]byte(rawSnapshot), &snapshot); err != nil {
		return StateSnapshot{}, false, err
	}

	return snapshot, true, nil
}

func (s *RedisStateStore) Save(ctx context.Context, key string, snapshot StateSnapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}

	return s.client.Set(ctx, key, payload, 0).Err()
}

func (s *RedisStateStore) Delete(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}

func (s *RedisStateStore) Close() error {
	return s.client.Close()
}
