package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/payflow/internal/domain/order"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, order_number, user_id, status, subtotal, discount, tax, shipping,
		total, currency, discount_code, notes, shipping_address, billing_address, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	insertOrderItemSQL = `INSERT INTO order_items (id, order_id, name, description, sku, quantity,
		unit_price, total, tax_amount, discount_amount, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	selectOrderSQL = `SELECT id, order_number, user_id, status, subtotal, discount, tax, shipping, total,
		TRIM(currency), COALESCE(discount_code, ''), COALESCE(notes, ''),
		COALESCE(shipping_address, ''), COALESCE(billing_address, ''), version, created_at, updated_at
		FROM orders`

	selectOrderItemsSQL = `SELECT id, order_id, name, description, sku, quantity, unit_price, total,
		tax_amount, discount_amount
		FROM order_items WHERE order_id = ANY($1) ORDER BY order_id, position`

	updateOrderSQL = `UPDATE orders SET status = $3, subtotal = $4, discount = $5, tax = $6, shipping = $7,
		total = $8, discount_code = $9, notes = $10, shipping_address = $11, billing_address = $12,
		version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2`

	updateOrderStatusSQL = `UPDATE orders SET status = $2, version = version + 1, updated_at = now()
		WHERE id = $1`

	deleteOrderItemsSQL = `DELETE FROM order_items WHERE order_id = $1`
	deleteOrderSQL      = `DELETE FROM orders WHERE id = $1`

	uniqueViolationCode = "23505"
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order together with all of its items in one
// transaction. A duplicate order number maps to order.ErrNumberCollision.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create order: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, insertOrderSQL,
		o.ID, o.Number, o.UserID, string(o.Status), o.Subtotal, o.Discount, o.Tax, o.Shipping,
		o.Total, o.Currency, nullable(o.DiscountCode), nullable(o.Notes),
		nullable(o.ShippingAddress), nullable(o.BillingAddress), o.Version,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return order.ErrNumberCollision
		}
		return fmt.Errorf("creating order %q: %w", o.ID, err)
	}

	if err := insertItems(ctx, tx, o.ID, o.Items); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create order %q: %w", o.ID, err)
	}
	return nil
}

// GetByID returns a fully materialized order including items.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, selectOrderSQL+` WHERE id = $1`, id)
}

// GetByNumber returns the order with the given order number.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.getOne(ctx, selectOrderSQL+` WHERE order_number = $1`, number)
}

// Update replaces the order header and, when o.Items is non-nil, all items.
// The write is guarded by a compare-and-swap on o.Version; a lost race maps
// to order.ErrNotFound only when the row is gone, otherwise the version
// mismatch surfaces as a conflict.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update order: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, updateOrderSQL,
		o.ID, o.Version, string(o.Status), o.Subtotal, o.Discount, o.Tax, o.Shipping,
		o.Total, nullable(o.DiscountCode), nullable(o.Notes),
		nullable(o.ShippingAddress), nullable(o.BillingAddress),
	)
	if err != nil {
		return fmt.Errorf("updating order %q: %w", o.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}

	if o.Items != nil {
		if _, err := tx.Exec(ctx, deleteOrderItemsSQL, o.ID); err != nil {
			return fmt.Errorf("replacing items of order %q: %w", o.ID, err)
		}
		if err := insertItems(ctx, tx, o.ID, o.Items); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update order %q: %w", o.ID, err)
	}
	o.Version++
	return nil
}

// UpdateStatus overwrites the order status.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status order.Status) error {
	tag, err := r.pool.Exec(ctx, updateOrderStatusSQL, id, string(status))
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// Delete removes the order; items go with it via ON DELETE CASCADE.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, deleteOrderSQL, id)
	if err != nil {
		return fmt.Errorf("deleting order %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}
	return nil
}

// List returns all orders with their items.
func (r *OrderRepository) List(ctx context.Context) ([]order.Order, error) {
	return r.getMany(ctx, selectOrderSQL+` ORDER BY created_at DESC`)
}

// ListByUser returns all orders of the given user with their items.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	return r.getMany(ctx, selectOrderSQL+` WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *OrderRepository) getOne(ctx context.Context, query string, args ...any) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("scanning order: %w", err)
	}
	orders := []order.Order{o}
	if err := r.attachItems(ctx, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func (r *OrderRepository) getMany(ctx context.Context, query string, args ...any) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying orders: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, fmt.Errorf("scanning orders: %w", err)
	}
	if err := r.attachItems(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// attachItems loads the items of all given orders in a single batch query.
func (r *OrderRepository) attachItems(ctx context.Context, orders []order.Order) error {
	if len(orders) == 0 {
		return nil
	}
	ids := make([]string, len(orders))
	index := make(map[string]*order.Order, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
		index[orders[i].ID] = &orders[i]
	}

	rows, err := r.pool.Query(ctx, selectOrderItemsSQL, ids)
	if err != nil {
		return fmt.Errorf("querying order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			item    order.Item
			orderID string
		)
		err := rows.Scan(&item.ID, &orderID, &item.Name, &item.Description, &item.SKU,
			&item.Quantity, &item.UnitPrice, &item.Total, &item.TaxAmount, &item.DiscountAmount)
		if err != nil {
			return fmt.Errorf("scanning order item: %w", err)
		}
		if o, ok := index[orderID]; ok {
			o.Items = append(o.Items, item)
		}
	}
	return rows.Err()
}

func insertItems(ctx context.Context, tx pgx.Tx, orderID string, items []order.Item) error {
	for i, item := range items {
		_, err := tx.Exec(ctx, insertOrderItemSQL,
			item.ID, orderID, item.Name, item.Description, item.SKU, item.Quantity,
			item.UnitPrice, item.Total, item.TaxAmount, item.DiscountAmount, i,
		)
		if err != nil {
			return fmt.Errorf("creating item %q of order %q: %w", item.SKU, orderID, err)
		}
	}
	return nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o      order.Order
		status string
	)
	err := row.Scan(&o.ID, &o.Number, &o.UserID, &status, &o.Subtotal, &o.Discount, &o.Tax,
		&o.Shipping, &o.Total, &o.Currency, &o.DiscountCode, &o.Notes,
		&o.ShippingAddress, &o.BillingAddress, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	o.Status = order.Status(status)
	return o, err
}

// nullable maps empty strings to NULL for optional text columns.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode
}
