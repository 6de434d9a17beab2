package notifier

import (
	"context"
	"encoding/json"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/mkarsono/go-order-fulfillment/internal/kafka"
	"github.com/mkarsono/go-order-fulfillment/internal/orders"
)

// Mailer is the outbound notification port. Delivery is best-effort by
// contract; implementations must not be load-bearing for order correctness.
type Mailer interface {
	SendOrderConfirmation(ctx context.Context, userID, orderID string, totalCents int64) error
	SendOrderCancelled(ctx context.Context, userID, orderID string) error
	SendPaymentUpdate(ctx context.Context, userID, orderID string, status orders.PaymentStatus) error
}

type Deduper interface {
	SeenEvent(ctx context.Context, scope, eventID string) bool
	MarkEvent(ctx context.Context, scope, eventID string)
}

const dedupScope = "notifier"

// Service consumes order domain events and fans them out as customer
// notifications.
type Service struct {
	Mailer Mailer
	Dedup  Deduper
	Logger *zap.Logger
}

// HandleEvent is mounted as the consumer handler. Malformed envelopes are
// dropped (returning an error would just redeliver the same bytes). Events are
// marked seen only after the notification went out, so a failed send is
// retried on redelivery.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		s.Logger.Warn("malformed event envelope", zap.Error(err))
		return nil
	}
	if s.Dedup != nil && s.Dedup.SeenEvent(ctx, dedupScope, env.EventID) {
		return nil
	}

	if err := s.dispatch(ctx, env); err != nil {
		return err
	}
	if s.Dedup != nil {
		s.Dedup.MarkEvent(ctx, dedupScope, env.EventID)
	}
	return nil
}

func (s *Service) dispatch(ctx context.Context, env orders.Envelope) error {
	switch env.EventType {
	case orders.EventOrderCreated:
		p, err := kafkax.UnwrapPayload[orders.OrderCreatedPayload](env.Payload)
		if err != nil {
			s.Logger.Warn("bad OrderCreated payload", zap.Error(err))
			return nil
		}
		return s.Mailer.SendOrderConfirmation(ctx, p.UserID, p.OrderID, p.TotalCents)
	case orders.EventOrderCancelled:
		p, err := kafkax.UnwrapPayload[orders.OrderCancelledPayload](env.Payload)
		if err != nil {
			s.Logger.Warn("bad OrderCancelled payload", zap.Error(err))
			return nil
		}
		return s.Mailer.SendOrderCancelled(ctx, p.UserID, p.OrderID)
	case orders.EventPaymentUpdated:
		p, err := kafkax.UnwrapPayload[orders.PaymentUpdatedPayload](env.Payload)
		if err != nil {
			s.Logger.Warn("bad PaymentUpdated payload", zap.Error(err))
			return nil
		}
		return s.Mailer.SendPaymentUpdate(ctx, p.UserID, p.OrderID, p.PaymentStatus)
	default:
		return nil
	}
}

// LogMailer is the default Mailer: it records the notification instead of
// talking to a real mail provider.
type LogMailer struct{ Logger *zap.Logger }

func (m *LogMailer) SendOrderConfirmation(_ context.Context, userID, orderID string, totalCents int64) error {
	m.Logger.Info("order confirmation sent",
		zap.String("user_id", userID), zap.String("order_id", orderID), zap.Int64("total_cents", totalCents))
	return nil
}

func (m *LogMailer) SendOrderCancelled(_ context.Context, userID, orderID string) error {
	m.Logger.Info("order cancellation notice sent",
		zap.String("user_id", userID), zap.String("order_id", orderID))
	return nil
}

func (m *LogMailer) SendPaymentUpdate(_ context.Context, userID, orderID string, status orders.PaymentStatus) error {
	m.Logger.Info("payment update sent",
		zap.String("user_id", userID), zap.String("order_id", orderID), zap.String("payment_status", string(status)))
	return nil
}
