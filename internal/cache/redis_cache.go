package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"bakerypos/backend/internal/domain"
)

type RedisForecastCache struct {
	client *redis.Client
}

func NewRedisForecastCache(addr string, password string, db int) *RedisForecastCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisForecastCache{client: client}
}

func (c *RedisForecastCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisForecastCache) Close() error {
	return c.client.Close()
}

func (c *RedisForecastCache) Get(ctx context.Context, key string) (*domain.ForecastReport, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var report domain.ForecastReport
	if err := json.Unmarshal(val, &report); err != nil {
		return nil, false, err
	}
	return &report, true, nil
}

func (c *RedisForecastCache) Set(ctx context.Context, key string, value *domain.ForecastReport, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
