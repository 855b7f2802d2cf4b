package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"kintai/internal/config"
	"kintai/internal/models"

	"github.com/redis/go-redis/v9"
)

// redisTTL: strategy knowledge is month-scoped, so entries expire on their
// own well after the month has rolled over.
const redisTTL = 45 * 24 * time.Hour

type RedisStrategyStore struct {
	client *redis.Client
}

// NewRedisClient builds a client from config.
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
}

func NewRedisStrategyStore(client *redis.Client) *RedisStrategyStore {
	return &RedisStrategyStore{client: client}
}

// Ping verifies the redis connection.
func Ping(ctx context.Context, client *redis.Client) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return client.Ping(pingCtx).Err()
}

func redisKey(month string, op models.OperationType) string {
	return fmt.Sprintf("strategy:%s:%s", month, op)
}

func (s *RedisStrategyStore) Get(ctx context.Context, month string, op models.OperationType) (*models.StrategyCacheEntry, error) {
	if s.client == nil {
		return nil, errors.New("redis client is nil")
	}

	val, err := s.client.Get(ctx, redisKey(month, op)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get strategy from redis: %w", err)
	}

	var entry models.StrategyCacheEntry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, fmt.Errorf("unmarshal strategy entry: %w", err)
	}
	return &entry, nil
}

func (s *RedisStrategyStore) Set(ctx context.Context, entry *models.StrategyCacheEntry) error {
	if s.client == nil {
		return errors.New("redis client is nil")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal strategy entry: %w", err)
	}

	if err := s.client.Set(ctx, redisKey(entry.Month, entry.Operation), data, redisTTL).Err(); err != nil {
		return fmt.Errorf("set strategy in redis: %w", err)
	}
	return nil
}
