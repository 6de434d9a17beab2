package orders

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"
)

// Inventory ledger. Stock is only ever mutated here, inside a caller-owned
// transaction, so partial decrements are never visible to concurrent readers.

// LockProducts loads and row-locks the given products (FOR UPDATE), returning
// them keyed by id. Ids are locked in sorted order to keep concurrent orders
// from deadlocking each other.
func LockProducts(ctx context.Context, tx pgx.Tx, ids []string) (map[string]Product, error) {
	sorted := make([]string, len(ids))
	copy(sorted, ids)
	sort.Strings(sorted)

	rows, err := tx.Query(ctx, `
		SELECT id, name, price_cents, stock, is_active
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE`, sorted)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}
	defer rows.Close()

	out := make(map[string]Product, len(ids))
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.PriceCents, &p.Stock, &p.IsActive); err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

// DecrementStock applies a conditional decrement. Zero rows affected means the
// stock guard failed, never that stock went negative.
func DecrementStock(ctx context.Context, tx pgx.Tx, productID string, qty int) error {
	ct, err := tx.Exec(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2`, productID, qty)
	if err != nil {
		return fmt.Errorf("decrement stock %s: %w", productID, err)
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("product %s: %w", productID, ErrInsufficientStock)
	}
	return nil
}

// RestoreStock is the inverse of DecrementStock, used on cancellation.
func RestoreStock(ctx context.Context, tx pgx.Tx, productID string, qty int) error {
	ct, err := tx.Exec(ctx, `
		UPDATE products SET stock = stock + $2, updated_at = now()
		WHERE id = $1`, productID, qty)
	if err != nil {
		return fmt.Errorf("restore stock %s: %w", productID, err)
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("restore stock: product %s: %w", productID, ErrProductNotFound)
	}
	return nil
}
