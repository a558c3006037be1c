// Package cache stores short-lived gateway probe results in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/metinatakli/hostel-booking/internal/domain"
	"github.com/redis/go-redis/v9"
)

type RedisAvailabilityCache struct {
	client redis.UniversalClient
}

func NewRedisAvailabilityCache(client redis.UniversalClient) *RedisAvailabilityCache {
	return &RedisAvailabilityCache{
		client: client,
	}
}

func availabilityKey(method domain.PaymentMethod) string {
	return fmt.Sprintf("payment_method_availability:%s", method)
}

func (c *RedisAvailabilityCache) Get(ctx context.Context, method domain.PaymentMethod) (*domain.Availability, bool, error) {
	data, err := c.client.Get(ctx, availabilityKey(method)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}

		return nil, false, err
	}

	var availability domain.Availability

	err = json.Unmarshal(data, &availability)
	if err != nil {
		return nil, false, fmt.Errorf("decode cached availability of %s: %w", method, err)
	}

	return &availability, true, nil
}

func (c *RedisAvailabilityCache) Set(
	ctx context.Context,
	method domain.PaymentMethod,
	availability domain.Availability,
	ttl time.Duration) error {

	data, err := json.Marshal(availability)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, availabilityKey(method), data, ttl).Err()
}
