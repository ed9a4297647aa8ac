package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/payflow/internal/domain/order"
	"github.com/xenking/payflow/internal/domain/payment"
)

const (
	insertPaymentSQL = `INSERT INTO payments (id, payment_reference, order_id, user_id, provider, status,
		amount, currency, external_payment_id, checkout_url, success_url, failure_url, cancel_url,
		metadata, error_message, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`

	selectPaymentSQL = `SELECT id, payment_reference, order_id, user_id, provider, status, amount,
		TRIM(currency), COALESCE(external_payment_id, ''), COALESCE(checkout_url, ''),
		COALESCE(success_url, ''), COALESCE(failure_url, ''), COALESCE(cancel_url, ''),
		metadata, error_message, authorized_at, captured_at, refunded_at, version, created_at, updated_at
		FROM payments`

	updatePaymentSQL = `UPDATE payments SET status = $3, external_payment_id = $4, checkout_url = $5,
		error_message = $6, authorized_at = $7, captured_at = $8, refunded_at = $9,
		version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2`

	hasLivePaymentSQL = `SELECT EXISTS (
		SELECT 1 FROM payments WHERE order_id = $1 AND status IN ('authorized', 'captured'))`
)

var (
	_ payment.Repository       = (*PaymentRepository)(nil)
	_ order.LivePaymentChecker = (*PaymentRepository)(nil)
)

// PaymentRepository implements payment.Repository backed by PostgreSQL. It
// also satisfies order.LivePaymentChecker for the order deletion guard.
type PaymentRepository struct {
	pool *pgxpool.Pool
}

// NewPaymentRepository returns a PaymentRepository that uses the given pool.
func NewPaymentRepository(pool *pgxpool.Pool) *PaymentRepository {
	return &PaymentRepository{pool: pool}
}

// Create persists a new payment.
func (r *PaymentRepository) Create(ctx context.Context, p *payment.Payment) error {
	metadata, err := marshalMetadata(p.Metadata)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, insertPaymentSQL,
		p.ID, p.Reference, p.OrderID, p.UserID, p.Provider, string(p.Status),
		p.Amount, p.Currency, nullable(p.ExternalID), nullable(p.CheckoutURL),
		nullable(p.SuccessURL), nullable(p.FailureURL), nullable(p.CancelURL),
		metadata, p.ErrorMessage, p.Version,
	)
	if err != nil {
		return fmt.Errorf("creating payment %q: %w", p.ID, err)
	}
	return nil
}

// GetByID returns the payment with the given identifier.
func (r *PaymentRepository) GetByID(ctx context.Context, id string) (*payment.Payment, error) {
	return r.getOne(ctx, selectPaymentSQL+` WHERE id = $1`, id)
}

// GetByReference returns the payment with the given payment reference.
func (r *PaymentRepository) GetByReference(ctx context.Context, reference string) (*payment.Payment, error) {
	return r.getOne(ctx, selectPaymentSQL+` WHERE payment_reference = $1`, reference)
}

// GetByExternalID returns the payment correlated with a gateway-assigned id.
func (r *PaymentRepository) GetByExternalID(ctx context.Context, externalID string) (*payment.Payment, error) {
	return r.getOne(ctx, selectPaymentSQL+` WHERE external_payment_id = $1`, externalID)
}

// List returns all payments.
func (r *PaymentRepository) List(ctx context.Context) ([]payment.Payment, error) {
	return r.getMany(ctx, selectPaymentSQL+` ORDER BY created_at DESC`)
}

// ListByOrder returns all payments made against the given order.
func (r *PaymentRepository) ListByOrder(ctx context.Context, orderID string) ([]payment.Payment, error) {
	return r.getMany(ctx, selectPaymentSQL+` WHERE order_id = $1 ORDER BY created_at DESC`, orderID)
}

// ListByUser returns all payments of the given user.
func (r *PaymentRepository) ListByUser(ctx context.Context, userID string) ([]payment.Payment, error) {
	return r.getMany(ctx, selectPaymentSQL+` WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

// Update writes the payment's mutable fields with a compare-and-swap on its
// version. A lost race yields payment.ErrVersionConflict.
func (r *PaymentRepository) Update(ctx context.Context, p *payment.Payment) error {
	tag, err := r.pool.Exec(ctx, updatePaymentSQL, updateArgs(p)...)
	if err != nil {
		return fmt.Errorf("updating payment %q: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrVersionConflict
	}
	p.Version++
	return nil
}

// UpdateWithOrderStatus writes the payment and mirrors orderStatus onto the
// owning order inside a single transaction. Both writes bump their row's
// version; the payment write is a compare-and-swap.
func (r *PaymentRepository) UpdateWithOrderStatus(ctx context.Context, p *payment.Payment, orderStatus order.Status) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin payment transition: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, updatePaymentSQL, updateArgs(p)...)
	if err != nil {
		return fmt.Errorf("updating payment %q: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return payment.ErrVersionConflict
	}

	tag, err = tx.Exec(ctx, updateOrderStatusSQL, p.OrderID, string(orderStatus))
	if err != nil {
		return fmt.Errorf("updating status of order %q: %w", p.OrderID, err)
	}
	if tag.RowsAffected() == 0 {
		return order.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit payment transition %q: %w", p.ID, err)
	}
	p.Version++
	return nil
}

// HasLivePayment implements order.LivePaymentChecker.
func (r *PaymentRepository) HasLivePayment(ctx context.Context, orderID string) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, hasLivePaymentSQL, orderID).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking live payments of order %q: %w", orderID, err)
	}
	return exists, nil
}

func (r *PaymentRepository) getOne(ctx context.Context, query string, args ...any) (*payment.Payment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying payment: %w", err)
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, payment.ErrNotFound
		}
		return nil, fmt.Errorf("scanning payment: %w", err)
	}
	return &p, nil
}

func (r *PaymentRepository) getMany(ctx context.Context, query string, args ...any) ([]payment.Payment, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying payments: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanPayment)
	if err != nil {
		return nil, fmt.Errorf("scanning payments: %w", err)
	}
	return out, nil
}

func updateArgs(p *payment.Payment) []any {
	return []any{
		p.ID, p.Version, string(p.Status), nullable(p.ExternalID), nullable(p.CheckoutURL),
		p.ErrorMessage, p.AuthorizedAt, p.CapturedAt, p.RefundedAt,
	}
}

func scanPayment(row pgx.CollectableRow) (payment.Payment, error) {
	var (
		p        payment.Payment
		status   string
		metadata []byte
	)
	err := row.Scan(&p.ID, &p.Reference, &p.OrderID, &p.UserID, &p.Provider, &status, &p.Amount,
		&p.Currency, &p.ExternalID, &p.CheckoutURL, &p.SuccessURL, &p.FailureURL, &p.CancelURL,
		&metadata, &p.ErrorMessage, &p.AuthorizedAt, &p.CapturedAt, &p.RefundedAt,
		&p.Version, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.Status = payment.Status(status)
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return p, fmt.Errorf("decoding metadata of payment %q: %w", p.ID, err)
		}
	}
	return p, nil
}

func marshalMetadata(md map[string]string) ([]byte, error) {
	if len(md) == 0 {
		return nil, nil
	}
	out, err := json.Marshal(md)
	if err != nil {
		return nil, fmt.Errorf("encoding payment metadata: %w", err)
	}
	return out, nil
}
