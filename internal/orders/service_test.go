package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubGateway struct {
	intent *PaymentIntent
	err    error
	calls  int
}

func (g *stubGateway) CreateIntent(ctx context.Context, amountCents int64, currency string) (*PaymentIntent, error) {
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	g.intent.AmountCents = amountCents
	g.intent.Currency = currency
	return g.intent, nil
}

type stubCache struct {
	status, payment string
	hit             bool
	sets            int
}

func (c *stubCache) GetOrderStatus(ctx context.Context, orderID string) (string, string, bool) {
	return c.status, c.payment, c.hit
}

func (c *stubCache) SetOrderStatus(ctx context.Context, orderID, status, paymentStatus string) {
	c.status, c.payment = status, paymentStatus
	c.sets++
}

func newTestService(t *testing.T) (*Service, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	return &Service{
		DB:          mock,
		Repo:        &Repo{DB: mock},
		Logger:      zap.NewNop(),
		Currency:    "usd",
		ServiceName: "order-api-test",
	}, mock
}

func productRows(stock int) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "name", "price_cents", "stock", "is_active"}).
		AddRow("p1", "Widget", int64(1000), stock, true)
}

func orderRow(id, userID string, status Status, payment PaymentStatus, method PaymentMethod, intentID string, total int64) *pgxmock.Rows {
	now := time.Now().UTC()
	return pgxmock.NewRows([]string{
		"id", "user_id", "address_id", "status", "payment_status", "payment_method",
		"payment_intent_id", "total_cents", "gateway_event_at", "created_at", "updated_at",
	}).AddRow(id, userID, "addr-1", status, payment, method, intentID, total, nil, now, now)
}

func TestCreateOrderCashOnDelivery(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, name, price_cents, stock, is_active`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(productRows(5))
	mock.ExpectExec(`UPDATE products SET stock = stock - \$2`).
		WithArgs("p1", 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO orders`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO order_items`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	order, err := svc.CreateOrder(context.Background(), "user-a", "addr-1",
		[]ItemInput{{ProductID: "p1", Qty: 3}}, MethodCashOnDelivery)
	require.NoError(t, err)

	assert.Equal(t, int64(3000), order.TotalCents)
	assert.Equal(t, StatusPending, order.Status)
	assert.Equal(t, PaymentPending, order.PaymentStatus)
	assert.Empty(t, order.PaymentIntentID)
	assert.Len(t, order.Items, 1)
	assert.Equal(t, int64(1000), order.Items[0].PriceCents)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderCardStoresIntent(t *testing.T) {
	svc, mock := newTestService(t)
	gw := &stubGateway{intent: &PaymentIntent{ID: "pi_123", Status: "requires_confirmation"}}
	svc.Gateway = gw

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, name, price_cents, stock, is_active`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(productRows(5))
	mock.ExpectExec(`UPDATE products SET stock = stock - \$2`).
		WithArgs("p1", 2).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO orders`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO order_items`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	order, err := svc.CreateOrder(context.Background(), "user-a", "addr-1",
		[]ItemInput{{ProductID: "p1", Qty: 2}}, MethodCard)
	require.NoError(t, err)

	assert.Equal(t, "pi_123", order.PaymentIntentID)
	assert.Equal(t, 1, gw.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderInsufficientStock(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, name, price_cents, stock, is_active`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(productRows(1))
	mock.ExpectRollback()

	_, err := svc.CreateOrder(context.Background(), "user-a", "addr-1",
		[]ItemInput{{ProductID: "p1", Qty: 2}}, MethodCashOnDelivery)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// The conditional UPDATE is the last line of defense against overselling:
// even when the locked read showed enough stock, zero rows affected means the
// guard refused the decrement and the whole order must fail.
func TestCreateOrderDecrementGuardRefuses(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, name, price_cents, stock, is_active`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(productRows(5))
	mock.ExpectExec(`UPDATE products SET stock = stock - \$2`).
		WithArgs("p1", 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	_, err := svc.CreateOrder(context.Background(), "user-a", "addr-1",
		[]ItemInput{{ProductID: "p1", Qty: 3}}, MethodCashOnDelivery)
	assert.ErrorIs(t, err, ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderProductNotFound(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, name, price_cents, stock, is_active`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "price_cents", "stock", "is_active"}))
	mock.ExpectRollback()

	_, err := svc.CreateOrder(context.Background(), "user-a", "addr-1",
		[]ItemInput{{ProductID: "ghost", Qty: 1}}, MethodCashOnDelivery)
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A failed gateway call must roll the whole unit of work back: the stock
// decrement ran inside the same transaction, so nothing survives.
func TestCreateOrderGatewayFailureRollsBack(t *testing.T) {
	svc, mock := newTestService(t)
	svc.Gateway = &stubGateway{err: errors.New("gateway timeout")}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, name, price_cents, stock, is_active`).
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(productRows(5))
	mock.ExpectExec(`UPDATE products SET stock = stock - \$2`).
		WithArgs("p1", 1).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectRollback()

	_, err := svc.CreateOrder(context.Background(), "user-a", "addr-1",
		[]ItemInput{{ProductID: "p1", Qty: 1}}, MethodCard)
	assert.ErrorContains(t, err, "create payment intent")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateOrderValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateOrder(context.Background(), "u", "a", nil, MethodCard)
	assert.ErrorIs(t, err, ErrInvalidItems)

	_, err = svc.CreateOrder(context.Background(), "u", "a",
		[]ItemInput{{ProductID: "p1", Qty: 0}}, MethodCard)
	assert.ErrorIs(t, err, ErrInvalidItems)

	_, err = svc.CreateOrder(context.Background(), "u", "a",
		[]ItemInput{{ProductID: "p1", Qty: 1}}, PaymentMethod("WIRE"))
	assert.ErrorIs(t, err, ErrInvalidPaymentMethod)
}

func TestCancelOrderRestoresStock(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM orders WHERE id=\$1 FOR UPDATE`).
		WithArgs("o1").
		WillReturnRows(orderRow("o1", "user-a", StatusPending, PaymentPending, MethodCashOnDelivery, "", 3000))
	mock.ExpectQuery(`FROM order_items WHERE order_id=\$1`).
		WithArgs("o1").
		WillReturnRows(pgxmock.NewRows([]string{"id", "order_id", "product_id", "qty", "price_cents"}).
			AddRow(int64(1), "o1", "p1", 3, int64(1000)))
	mock.ExpectExec(`UPDATE products SET stock = stock \+ \$2`).
		WithArgs("p1", 3).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE orders SET status=\$2`).
		WithArgs("o1", StatusCancelled).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	order, err := svc.CancelOrder(context.Background(), "o1", "user-a")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, order.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// Cancelling a shipped order must fail without touching stock.
func TestCancelOrderGuard(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM orders WHERE id=\$1 FOR UPDATE`).
		WithArgs("o1").
		WillReturnRows(orderRow("o1", "user-a", StatusShipped, PaymentCompleted, MethodCard, "pi_1", 3000))
	mock.ExpectRollback()

	_, err := svc.CancelOrder(context.Background(), "o1", "user-a")
	assert.ErrorIs(t, err, ErrNotCancellable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelOrderWrongOwner(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM orders WHERE id=\$1 FOR UPDATE`).
		WithArgs("o1").
		WillReturnRows(orderRow("o1", "user-a", StatusPending, PaymentPending, MethodCard, "pi_1", 3000))
	mock.ExpectRollback()

	_, err := svc.CancelOrder(context.Background(), "o1", "user-b")
	assert.ErrorIs(t, err, ErrOrderNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateOrderStatusRejectsInvalidTransition(t *testing.T) {
	svc, mock := newTestService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM orders WHERE id=\$1 FOR UPDATE`).
		WithArgs("o1").
		WillReturnRows(orderRow("o1", "user-a", StatusDelivered, PaymentCompleted, MethodCard, "pi_1", 3000))
	mock.ExpectRollback()

	_, err := svc.UpdateOrderStatus(context.Background(), "o1", StatusShipped)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderStatusUsesCache(t *testing.T) {
	svc, mock := newTestService(t)
	svc.Cache = &stubCache{status: string(StatusProcessing), payment: string(PaymentCompleted), hit: true}

	st, ps, err := svc.GetOrderStatus(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, st)
	assert.Equal(t, PaymentCompleted, ps)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOrderStatusFallsBackToDB(t *testing.T) {
	svc, mock := newTestService(t)
	cache := &stubCache{}
	svc.Cache = cache

	mock.ExpectQuery(`SELECT status, payment_status FROM orders`).
		WithArgs("o1").
		WillReturnRows(pgxmock.NewRows([]string{"status", "payment_status"}).
			AddRow(StatusPending, PaymentPending))

	st, ps, err := svc.GetOrderStatus(context.Background(), "o1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, st)
	assert.Equal(t, PaymentPending, ps)
	assert.Equal(t, 1, cache.sets)
	assert.NoError(t, mock.ExpectationsWereMet())
}
