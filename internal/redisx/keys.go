package redisx

import "time"

const (
	// Order status cache: order_status:{order_id} -> {"status":..,"payment_status":..}
	KeyOrderStatus = "order_status:%s"

	// Event dedup: dedup:{scope}:{event_id}. Scope is the consuming component
	// (webhook reconciler, notifier) so each dedups independently.
	KeyDedup = "dedup:%s:%s"
)

var (
	TTLStatusCache = 5 * time.Minute
	TTLDedup       = 48 * time.Hour
)
