// Package cache holds advisory balance snapshots. A snapshot is only trusted
// when its last_entry_id still matches the newest entry in the ledger.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chris/debt-ledger-bot/pkg/models"
	"github.com/redis/go-redis/v9"
)

// BalanceCache stores balance snapshots keyed by (phone, currency).
type BalanceCache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, phone string, currency models.Currency) (*models.Balance, error)
	Set(ctx context.Context, balance *models.Balance) error
	Invalidate(ctx context.Context, phone string) error
}

// RedisBalanceCache implements BalanceCache using Redis.
type RedisBalanceCache struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisClient connects to addr and checks the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisBalanceCache creates a cache with an existing client.
func NewRedisBalanceCache(client *redis.Client, keyPrefix string, ttl time.Duration) *RedisBalanceCache {
	if keyPrefix == "" {
		keyPrefix = "ledger:balance:"
	}
	return &RedisBalanceCache{client: client, keyPrefix: keyPrefix, ttl: ttl}
}

func (c *RedisBalanceCache) key(phone string, currency models.Currency) string {
	return c.keyPrefix + phone + ":" + string(currency)
}

func (c *RedisBalanceCache) Get(ctx context.Context, phone string, currency models.Currency) (*models.Balance, error) {
	data, err := c.client.Get(ctx, c.key(phone, currency)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance snapshot: %w", err)
	}
	var b models.Balance
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("failed to unmarshal balance snapshot: %w", err)
	}
	return &b, nil
}

func (c *RedisBalanceCache) Set(ctx context.Context, balance *models.Balance) error {
	data, err := json.Marshal(balance)
	if err != nil {
		return fmt.Errorf("failed to marshal balance snapshot: %w", err)
	}
	if err := c.client.Set(ctx, c.key(balance.Phone, balance.Currency), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set balance snapshot: %w", err)
	}
	return nil
}

func (c *RedisBalanceCache) Invalidate(ctx context.Context, phone string) error {
	keys := make([]string, 0, len(models.SupportedCurrencies))
	for _, cur := range models.SupportedCurrencies {
		keys = append(keys, c.key(phone, cur))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to invalidate balance snapshots: %w", err)
	}
	return nil
}

// Close closes the Redis client
func (c *RedisBalanceCache) Close() error {
	return c.client.Close()
}

// Ensure RedisBalanceCache implements BalanceCache
var _ BalanceCache = (*RedisBalanceCache)(nil)
