package redisx

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

// Cache is a thin, best-effort layer over Redis. Every miss or Redis error
// degrades to "not cached" / "not seen"; correctness always lives in Postgres.
type Cache struct{ R *redis.Client }

type statusBlob struct {
	Status        string `json:"status"`
	PaymentStatus string `json:"payment_status"`
}

func (c *Cache) GetOrderStatus(ctx context.Context, orderID string) (status, paymentStatus string, ok bool) {
	s, err := c.R.Get(ctx, fmt.Sprintf(KeyOrderStatus, orderID)).Result()
	if err != nil {
		return "", "", false
	}
	var b statusBlob
	if err := json.Unmarshal([]byte(s), &b); err != nil {
		return "", "", false
	}
	return b.Status, b.PaymentStatus, true
}

func (c *Cache) SetOrderStatus(ctx context.Context, orderID, status, paymentStatus string) {
	b, err := json.Marshal(statusBlob{Status: status, PaymentStatus: paymentStatus})
	if err != nil {
		return
	}
	_ = c.R.Set(ctx, fmt.Sprintf(KeyOrderStatus, orderID), b, TTLStatusCache).Err()
}

// SeenEvent reports whether the event id was already marked for the scope.
// It never marks: consumers mark only after their own state change is durable,
// so a transient failure leaves the event eligible for redelivery.
func (c *Cache) SeenEvent(ctx context.Context, scope, eventID string) bool {
	n, err := c.R.Exists(ctx, fmt.Sprintf(KeyDedup, scope, eventID)).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// MarkEvent records a durably applied event id.
func (c *Cache) MarkEvent(ctx context.Context, scope, eventID string) {
	_ = c.R.Set(ctx, fmt.Sprintf(KeyDedup, scope, eventID), "1", TTLDedup).Err()
}
