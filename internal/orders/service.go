package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	kafkax "github.com/mkarsono/go-order-fulfillment/internal/kafka"
	"github.com/mkarsono/go-order-fulfillment/internal/postgres"
)

// PaymentGateway is the slice of the gateway adapter order creation needs.
// The call happens inside the order transaction: if it fails, the whole unit
// of work rolls back, stock decrements included.
type PaymentGateway interface {
	CreateIntent(ctx context.Context, amountCents int64, currency string) (*PaymentIntent, error)
}

// StatusCache is a best-effort read cache for order status lookups. Nil is a
// valid value; the database stays the source of truth either way.
type StatusCache interface {
	GetOrderStatus(ctx context.Context, orderID string) (status, paymentStatus string, ok bool)
	SetOrderStatus(ctx context.Context, orderID, status, paymentStatus string)
}

type EventPublisher interface {
	Publish(topic string, key, value []byte, headers ...kafkago.Header)
}

// Service is the order transaction manager: it composes the inventory ledger,
// the order store and the payment gateway into all-or-nothing use cases.
type Service struct {
	DB          postgres.DB
	Repo        *Repo
	Gateway     PaymentGateway
	Cache       StatusCache
	Producer    EventPublisher
	Logger      *zap.Logger
	Currency    string
	ServiceName string
}

// CreateOrder validates stock, decrements it, creates the gateway intent for
// card payments and persists the order with its items, all in one transaction.
func (s *Service) CreateOrder(ctx context.Context, userID, addressID string, items []ItemInput, method PaymentMethod) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrInvalidItems
	}
	for _, it := range items {
		if it.ProductID == "" || it.Qty <= 0 {
			return nil, ErrInvalidItems
		}
	}
	if !ValidPaymentMethod(method) {
		return nil, ErrInvalidPaymentMethod
	}

	order := &Order{
		ID:            uuid.NewString(),
		UserID:        userID,
		AddressID:     addressID,
		Status:        StatusPending,
		PaymentStatus: PaymentPending,
		PaymentMethod: method,
		CreatedAt:     time.Now().UTC(),
	}
	order.UpdatedAt = order.CreatedAt

	err := postgres.WithTx(ctx, s.DB, func(ctx context.Context, tx pgx.Tx) error {
		ids := make([]string, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.ProductID)
		}
		products, err := LockProducts(ctx, tx, ids)
		if err != nil {
			return err
		}

		for _, it := range items {
			p, ok := products[it.ProductID]
			if !ok {
				return fmt.Errorf("product %s: %w", it.ProductID, ErrProductNotFound)
			}
			if !p.IsActive {
				return fmt.Errorf("product %s: %w", it.ProductID, ErrProductInactive)
			}
			if p.Stock < it.Qty {
				return fmt.Errorf("product %s: %w", it.ProductID, ErrInsufficientStock)
			}
			order.TotalCents += p.PriceCents * int64(it.Qty)
			order.Items = append(order.Items, OrderItem{
				OrderID:    order.ID,
				ProductID:  it.ProductID,
				Qty:        it.Qty,
				PriceCents: p.PriceCents,
			})
		}

		for _, it := range order.Items {
			if err := DecrementStock(ctx, tx, it.ProductID, it.Qty); err != nil {
				return err
			}
		}

		// Gateway call before commit: a failed or timed-out intent aborts the
		// order and the rollback undoes every stock decrement above.
		if method.RequiresGateway() {
			intent, err := s.Gateway.CreateIntent(ctx, order.TotalCents, s.Currency)
			if err != nil {
				return fmt.Errorf("create payment intent: %w", err)
			}
			order.PaymentIntentID = intent.ID
		}

		if err := InsertOrder(ctx, tx, order); err != nil {
			return err
		}
		return InsertItems(ctx, tx, order.ID, order.Items)
	})
	if err != nil {
		return nil, err
	}

	s.cacheStatus(ctx, order)
	s.publish(TopicOrderCreated, EventOrderCreated, order.ID, OrderCreatedPayload{
		OrderID:       order.ID,
		UserID:        order.UserID,
		Items:         itemQtys(order.Items),
		TotalCents:    order.TotalCents,
		PaymentMethod: order.PaymentMethod,
	})
	s.Logger.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("user_id", userID),
		zap.Int64("total_cents", order.TotalCents),
		zap.String("payment_method", string(method)))
	return order, nil
}

// CancelOrder restores every item's stock and marks the order CANCELLED.
// Only the owner's PENDING orders qualify; the guard and the mutation run on
// the same locked row.
func (s *Service) CancelOrder(ctx context.Context, orderID, userID string) (*Order, error) {
	var order *Order
	err := postgres.WithTx(ctx, s.DB, func(ctx context.Context, tx pgx.Tx) error {
		o, err := LockOrderByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.UserID != userID {
			return ErrOrderNotFound
		}
		if o.Status != StatusPending {
			return fmt.Errorf("order %s is %s: %w", o.ID, o.Status, ErrNotCancellable)
		}

		items, err := loadItems(ctx, tx, o.ID)
		if err != nil {
			return err
		}
		for _, it := range items {
			if err := RestoreStock(ctx, tx, it.ProductID, it.Qty); err != nil {
				return err
			}
		}
		if err := UpdateStatusTx(ctx, tx, o.ID, StatusCancelled); err != nil {
			return err
		}
		o.Status = StatusCancelled
		o.Items = items
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.cacheStatus(ctx, order)
	s.publish(TopicOrderCancelled, EventOrderCancelled, order.ID, OrderCancelledPayload{
		OrderID: order.ID,
		UserID:  order.UserID,
		Items:   itemQtys(order.Items),
	})
	s.Logger.Info("order cancelled", zap.String("order_id", order.ID), zap.String("user_id", userID))
	return order, nil
}

func (s *Service) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	return s.Repo.GetByID(ctx, orderID)
}

// GetOrderStatus serves the hot status lookup from cache when possible.
func (s *Service) GetOrderStatus(ctx context.Context, orderID string) (Status, PaymentStatus, error) {
	if s.Cache != nil {
		if st, ps, ok := s.Cache.GetOrderStatus(ctx, orderID); ok {
			return Status(st), PaymentStatus(ps), nil
		}
	}
	st, ps, err := s.Repo.GetStatus(ctx, orderID)
	if err != nil {
		return "", "", err
	}
	if s.Cache != nil {
		s.Cache.SetOrderStatus(ctx, orderID, string(st), string(ps))
	}
	return st, ps, nil
}

func (s *Service) ListUserOrders(ctx context.Context, userID string, page, pageSize int) ([]Order, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.Repo.ListByUser(ctx, userID, pageSize, (page-1)*pageSize)
}

// UpdateOrderStatus applies a fulfillment transition (e.g. PROCESSING→SHIPPED)
// validated against the lifecycle table, on the locked row.
func (s *Service) UpdateOrderStatus(ctx context.Context, orderID string, to Status) (*Order, error) {
	var order *Order
	err := postgres.WithTx(ctx, s.DB, func(ctx context.Context, tx pgx.Tx) error {
		o, err := LockOrderByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !CanTransition(o.Status, to) {
			return fmt.Errorf("%s -> %s: %w", o.Status, to, ErrInvalidTransition)
		}
		if err := UpdateStatusTx(ctx, tx, o.ID, to); err != nil {
			return err
		}
		o.Status = to
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cacheStatus(ctx, order)
	return order, nil
}

func (s *Service) UpdatePaymentStatus(ctx context.Context, orderID string, to PaymentStatus) (*Order, error) {
	if !ValidPaymentStatus(to) {
		return nil, ErrInvalidPaymentStatus
	}
	var order *Order
	err := postgres.WithTx(ctx, s.DB, func(ctx context.Context, tx pgx.Tx) error {
		o, err := LockOrderByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if err := UpdatePaymentStatusTx(ctx, tx, o.ID, to); err != nil {
			return err
		}
		o.PaymentStatus = to
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.cacheStatus(ctx, order)
	return order, nil
}

func (s *Service) cacheStatus(ctx context.Context, o *Order) {
	if s.Cache != nil {
		s.Cache.SetOrderStatus(ctx, o.ID, string(o.Status), string(o.PaymentStatus))
	}
}

// publish is fire-and-forget: losing a notification event never fails the
// request that produced it.
func (s *Service) publish(topic, eventType, orderID string, payload any) {
	if s.Producer == nil {
		return
	}
	ev, err := NewEnvelope(eventType, s.ServiceName, orderID, payload)
	if err != nil {
		s.Logger.Error("marshal event", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	s.Producer.Publish(topic, PartitionKey(orderID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func itemQtys(items []OrderItem) []ItemQty {
	out := make([]ItemQty, 0, len(items))
	for _, it := range items {
		out = append(out, ItemQty{ProductID: it.ProductID, Qty: it.Qty})
	}
	return out
}
