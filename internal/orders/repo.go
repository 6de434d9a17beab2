package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mkarsono/go-order-fulfillment/internal/postgres"
)

const orderColumns = `id, user_id, address_id, status, payment_status, payment_method,
	COALESCE(payment_intent_id, ''), total_cents, gateway_event_at, created_at, updated_at`

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repo is the order aggregate store. Reads run against the pool; writes that
// belong to a unit of work go through the tx-scoped functions below.
type Repo struct{ DB postgres.DB }

func scanOrder(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.UserID, &o.AddressID, &o.Status, &o.PaymentStatus,
		&o.PaymentMethod, &o.PaymentIntentID, &o.TotalCents, &o.GatewayEventAt,
		&o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &o, nil
}

func (r *Repo) GetByID(ctx context.Context, id string) (*Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if err != nil {
		return nil, err
	}
	items, err := loadItems(ctx, r.DB, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (r *Repo) GetStatus(ctx context.Context, id string) (Status, PaymentStatus, error) {
	var s Status
	var ps PaymentStatus
	err := r.DB.QueryRow(ctx, `SELECT status, payment_status FROM orders WHERE id=$1`, id).Scan(&s, &ps)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", "", ErrOrderNotFound
		}
		return "", "", err
	}
	return s, ps, nil
}

// ListByUser returns a page of the user's orders, newest first, items expanded.
func (r *Repo) ListByUser(ctx context.Context, userID string, limit, offset int) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE user_id=$1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Order
	for rows.Next() {
		var o Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.AddressID, &o.Status, &o.PaymentStatus,
			&o.PaymentMethod, &o.PaymentIntentID, &o.TotalCents, &o.GatewayEventAt,
			&o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		items, err := loadItems(ctx, r.DB, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Items = items
	}
	return out, nil
}

func loadItems(ctx context.Context, q querier, orderID string) ([]OrderItem, error) {
	rows, err := q.Query(ctx, `
		SELECT id, order_id, product_id, qty, price_cents
		FROM order_items WHERE order_id=$1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []OrderItem
	for rows.Next() {
		var it OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Qty, &it.PriceCents); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// InsertOrder persists a freshly built order header inside the caller's tx.
func InsertOrder(ctx context.Context, tx pgx.Tx, o *Order) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO orders(id, user_id, address_id, status, payment_status, payment_method,
			payment_intent_id, total_cents, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,NULLIF($7,''),$8,$9,$9)`,
		o.ID, o.UserID, o.AddressID, o.Status, o.PaymentStatus, o.PaymentMethod,
		o.PaymentIntentID, o.TotalCents, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

func InsertItems(ctx context.Context, tx pgx.Tx, orderID string, items []OrderItem) error {
	for _, it := range items {
		_, err := tx.Exec(ctx, `
			INSERT INTO order_items(order_id, product_id, qty, price_cents)
			VALUES ($1,$2,$3,$4)`, orderID, it.ProductID, it.Qty, it.PriceCents)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}
	return nil
}

// LockOrderByID loads the order FOR UPDATE so the status check and the
// mutation that follows are one atomic step, not check-then-act.
func LockOrderByID(ctx context.Context, tx pgx.Tx, id string) (*Order, error) {
	return scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1 FOR UPDATE`, id))
}

// LockOrderByIntent correlates a gateway event back to its order.
func LockOrderByIntent(ctx context.Context, tx pgx.Tx, intentID string) (*Order, error) {
	return scanOrder(tx.QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE payment_intent_id=$1 FOR UPDATE`, intentID))
}

func UpdateStatusTx(ctx context.Context, tx pgx.Tx, id string, to Status) error {
	_, err := tx.Exec(ctx, `UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, id, to)
	return err
}

func UpdatePaymentStatusTx(ctx context.Context, tx pgx.Tx, id string, to PaymentStatus) error {
	_, err := tx.Exec(ctx, `UPDATE orders SET payment_status=$2, updated_at=now() WHERE id=$1`, id, to)
	return err
}

// ApplyGatewayEventTx records the reconciled payment state together with the
// gateway event watermark that produced it.
func ApplyGatewayEventTx(ctx context.Context, tx pgx.Tx, id string, ps PaymentStatus, st Status, eventAt time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE orders SET payment_status=$2, status=$3, gateway_event_at=$4, updated_at=now()
		WHERE id=$1`, id, ps, st, eventAt)
	return err
}

// SetPaymentIntentTx attaches a (re)created gateway intent to an order.
func SetPaymentIntentTx(ctx context.Context, tx pgx.Tx, id, intentID string) error {
	_, err := tx.Exec(ctx, `UPDATE orders SET payment_intent_id=$2, updated_at=now() WHERE id=$1`, id, intentID)
	return err
}
