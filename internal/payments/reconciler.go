package payments

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/mkarsono/go-order-fulfillment/internal/kafka"
	"github.com/mkarsono/go-order-fulfillment/internal/orders"
	"github.com/mkarsono/go-order-fulfillment/internal/postgres"
)

// Deduper is a best-effort duplicate filter. A false "not seen" only costs a
// no-op transaction; the watermark check below is what guarantees idempotency.
// MarkEvent must only be called once the event is durably applied, otherwise a
// transient failure would eat the gateway's redelivery.
type Deduper interface {
	SeenEvent(ctx context.Context, scope, eventID string) bool
	MarkEvent(ctx context.Context, scope, eventID string)
}

const dedupScope = "webhook"

// Reconciler maps gateway webhook events onto order payment state. It never
// trusts delivery order: an event older than the recorded watermark on the
// order is dropped, and re-delivering the same event is a no-op.
type Reconciler struct {
	DB          postgres.DB
	Dedup       Deduper
	Cache       orders.StatusCache
	Producer    orders.EventPublisher
	Logger      *zap.Logger
	ServiceName string
}

var errUnknownIntent = errors.New("payments: no order for intent")

// HandleEvent applies one verified gateway event. Unknown event types and
// events for unknown intents are logged and dropped, not errors: the gateway
// must not keep redelivering them.
func (r *Reconciler) HandleEvent(ctx context.Context, ev Event) error {
	var target orders.PaymentStatus
	switch ev.Type {
	case EventIntentSucceeded:
		target = orders.PaymentCompleted
	case EventIntentFailed:
		target = orders.PaymentFailed
	case EventChargeRefunded:
		target = orders.PaymentRefunded
	default:
		r.Logger.Debug("ignoring webhook event type", zap.String("event_type", ev.Type))
		return nil
	}

	if r.Dedup != nil && r.Dedup.SeenEvent(ctx, dedupScope, ev.ID) {
		r.Logger.Info("duplicate webhook event", zap.String("event_id", ev.ID))
		return nil
	}

	var updated *orders.Order
	err := postgres.WithTx(ctx, r.DB, func(ctx context.Context, tx pgx.Tx) error {
		o, err := orders.LockOrderByIntent(ctx, tx, ev.IntentID)
		if err != nil {
			if errors.Is(err, orders.ErrOrderNotFound) {
				return errUnknownIntent
			}
			return err
		}

		// Stale or replayed delivery: the recorded watermark is at least as
		// new as this event, so the order already reflects gateway truth.
		if o.GatewayEventAt != nil && !ev.CreatedAt.After(*o.GatewayEventAt) {
			return nil
		}

		status := o.Status
		if ev.Type == EventIntentSucceeded && o.Status == orders.StatusPending {
			status = orders.StatusProcessing
		}
		if o.PaymentStatus == target && status == o.Status {
			// Same state, newer event: advance the watermark only.
			return orders.ApplyGatewayEventTx(ctx, tx, o.ID, target, status, ev.CreatedAt)
		}

		if err := orders.ApplyGatewayEventTx(ctx, tx, o.ID, target, status, ev.CreatedAt); err != nil {
			return err
		}
		o.PaymentStatus = target
		o.Status = status
		updated = o
		return nil
	})
	if err != nil {
		if errors.Is(err, errUnknownIntent) {
			r.Logger.Warn("webhook event for unknown intent",
				zap.String("event_id", ev.ID), zap.String("intent_id", ev.IntentID))
			return nil
		}
		return err
	}

	// The event is committed (or was provably stale); only now is it safe to
	// remember it.
	if r.Dedup != nil {
		r.Dedup.MarkEvent(ctx, dedupScope, ev.ID)
	}
	if updated == nil {
		return nil
	}

	if r.Cache != nil {
		r.Cache.SetOrderStatus(ctx, updated.ID, string(updated.Status), string(updated.PaymentStatus))
	}
	r.publishPaymentUpdated(updated)
	r.Logger.Info("payment reconciled",
		zap.String("order_id", updated.ID),
		zap.String("event_id", ev.ID),
		zap.String("payment_status", string(updated.PaymentStatus)),
		zap.String("status", string(updated.Status)))
	return nil
}

func (r *Reconciler) publishPaymentUpdated(o *orders.Order) {
	if r.Producer == nil {
		return
	}
	ev, err := orders.NewEnvelope(orders.EventPaymentUpdated, r.ServiceName, o.ID, orders.PaymentUpdatedPayload{
		OrderID:       o.ID,
		UserID:        o.UserID,
		OrderStatus:   o.Status,
		PaymentStatus: o.PaymentStatus,
	})
	if err != nil {
		r.Logger.Error("marshal payment event", zap.Error(err))
		return
	}
	r.Producer.Publish(orders.TopicPaymentUpdated, orders.PartitionKey(o.ID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventPaymentUpdated)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
