package payments

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/mkarsono/go-order-fulfillment/internal/orders"
	"github.com/mkarsono/go-order-fulfillment/internal/postgres"
)

// Service covers the payment operations outside order creation: re-creating
// an intent after a failed attempt and confirming a card intent.
type Service struct {
	DB       postgres.DB
	Repo     *orders.Repo
	Gateway  Gateway
	Logger   *zap.Logger
	Currency string
}

// CreatePayment provisions a fresh gateway intent for an order whose previous
// attempt failed (or that has none yet), and re-arms the payment lifecycle.
func (s *Service) CreatePayment(ctx context.Context, orderID, userID string) (*orders.PaymentIntent, error) {
	var intent *orders.PaymentIntent
	err := postgres.WithTx(ctx, s.DB, func(ctx context.Context, tx pgx.Tx) error {
		o, err := orders.LockOrderByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return orders.ErrOrderNotFound
		}
		if !o.PaymentMethod.RequiresGateway() {
			return fmt.Errorf("order pays by %s: %w", o.PaymentMethod, orders.ErrInvalidPaymentMethod)
		}
		switch o.PaymentStatus {
		case orders.PaymentCompleted, orders.PaymentRefunded:
			return ErrNoPaymentDue
		}
		if o.PaymentStatus == orders.PaymentPending && o.PaymentIntentID != "" {
			// Intent already outstanding; hand it back instead of minting
			// another one against the same order.
			intent, err = s.Gateway.RetrieveIntent(ctx, o.PaymentIntentID)
			return err
		}

		// Amount comes from the order, never re-derived from the gateway.
		intent, err = s.Gateway.CreateIntent(ctx, o.TotalCents, s.Currency)
		if err != nil {
			return err
		}
		if err := orders.SetPaymentIntentTx(ctx, tx, o.ID, intent.ID); err != nil {
			return err
		}
		return orders.UpdatePaymentStatusTx(ctx, tx, o.ID, orders.PaymentPending)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.Info("payment intent ready",
		zap.String("order_id", orderID), zap.String("intent_id", intent.ID))
	return intent, nil
}

// ConfirmPayment confirms the order's outstanding card intent at the gateway.
// Settlement still arrives through the webhook; this only kicks it off.
func (s *Service) ConfirmPayment(ctx context.Context, orderID, userID string) (*orders.PaymentIntent, error) {
	o, err := s.Repo.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, orders.ErrOrderNotFound
	}
	if o.PaymentIntentID == "" {
		return nil, fmt.Errorf("order %s has no payment intent: %w", orderID, ErrNoPaymentDue)
	}
	return s.Gateway.Confirm(ctx, o.PaymentIntentID, o.PaymentMethod)
}
