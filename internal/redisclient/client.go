package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"storefront/internal/models"
)

const orderCacheTTL = 24 * time.Hour

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// GetCachedOrder returns the cached order for an idempotency key, or
// (nil, nil) on a cache miss. The cache is only a fast path for duplicate
// confirmations; the database unique index remains the source of truth.
func (c *Client) GetCachedOrder(ctx context.Context, idempotencyKey string) (*models.Order, error) {
	raw, err := c.rdb.Get(ctx, orderKey(idempotencyKey)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var order models.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("corrupt cached order: %w", err)
	}
	return &order, nil
}

// SetCachedOrder stores an order under its idempotency key
func (c *Client) SetCachedOrder(ctx context.Context, order *models.Order) error {
	raw, err := json.Marshal(order)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, orderKey(order.IdempotencyKey), raw, orderCacheTTL).Err()
}

// PaymentSeen reports whether a gateway payment id has been marked processed
func (c *Client) PaymentSeen(ctx context.Context, paymentID string) (bool, error) {
	n, err := c.rdb.Exists(ctx, paymentKey(paymentID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkPaymentSeen records a gateway payment id with a TTL. Returns true when
// this call was the first to see it. Callers mark a payment only after its
// order is durably stored, so a PaymentSeen hit always has an order behind it.
func (c *Client) MarkPaymentSeen(ctx context.Context, paymentID string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, paymentKey(paymentID), "1", ttl).Result()
}

func paymentKey(paymentID string) string {
	return fmt.Sprintf("payment:%s", paymentID)
}

func orderKey(idempotencyKey string) string {
	return fmt.Sprintf("order:%s", idempotencyKey)
}
