package payment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/payflow/internal/domain/order"
	"github.com/xenking/payflow/internal/gateway"
)

// CreateRequest holds the input for creating a payment against an order.
type CreateRequest struct {
	OrderID    string
	Provider   string
	Amount     decimal.Decimal
	Currency   string
	SuccessURL string
	FailureURL string
	CancelURL  string
	Metadata   map[string]string
}

// Service owns the Payment state machine, orchestrates calls into the
// gateway strategies, and mirrors payment transitions onto the owning order.
type Service struct {
	payments Repository
	orders   order.Repository
	gateways *gateway.Registry
	locks    *keyedMutex
	now      func() time.Time
}

// NewService creates a payment Service with the required dependencies.
func NewService(payments Repository, orders order.Repository, gateways *gateway.Registry) *Service {
	return &Service{
		payments: payments,
		orders:   orders,
		gateways: gateways,
		locks:    newKeyedMutex(),
		now:      time.Now,
	}
}

// Create persists a pending payment for the order, opens a hosted checkout
// at the provider, and moves the order to awaiting_payment. A gateway
// failure marks the payment failed with the captured error message and is
// re-signaled to the caller; the order is left unchanged and remains
// payable via a new payment.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (*Payment, error) {
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	o, err := s.orders.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, ErrNotOrderOwner
	}

	existing, err := s.payments.ListByOrder(ctx, req.OrderID)
	if err != nil {
		return nil, errors.Wrap(err, "list payments for order")
	}
	for _, p := range existing {
		if p.Status.Successful() {
			return nil, ErrOrderAlreadyPaid
		}
	}

	currency := req.Currency
	if currency == "" {
		currency = o.Currency
	}

	p := &Payment{
		ID:         uuid.New().String(),
		Reference:  s.generateReference(),
		OrderID:    req.OrderID,
		UserID:     userID,
		Provider:   strings.ToLower(req.Provider),
		Status:     StatusPending,
		Amount:     req.Amount,
		Currency:   currency,
		SuccessURL: req.SuccessURL,
		FailureURL: req.FailureURL,
		CancelURL:  req.CancelURL,
		Metadata:   req.Metadata,
		Version:    1,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, errors.Wrap(err, "create payment")
	}

	checkout, err := s.createCheckout(ctx, p, o)
	if err != nil {
		s.markFailed(ctx, p, err)
		return nil, err
	}

	p.CheckoutURL = checkout.URL
	p.ExternalID = checkout.ExternalID
	if err := s.payments.UpdateWithOrderStatus(ctx, p, order.StatusAwaitingPayment); err != nil {
		return nil, errors.Wrap(err, "record checkout")
	}

	zctx.From(ctx).Info("Payment created",
		zap.String("payment_reference", p.Reference),
		zap.String("order_number", o.Number),
		zap.String("provider", p.Provider),
	)
	return p, nil
}

func (s *Service) createCheckout(ctx context.Context, p *Payment, o *order.Order) (*gateway.Checkout, error) {
	strategy, err := s.gateways.Get(p.Provider)
	if err != nil {
		return nil, err
	}

	items := make([]gateway.Item, len(o.Items))
	for i, item := range o.Items {
		items[i] = gateway.Item{
			ID:             item.ID,
			Name:           item.Name,
			SKU:            item.SKU,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			TaxAmount:      item.TaxAmount,
			DiscountAmount: item.DiscountAmount,
			Total:          item.Total,
		}
	}

	return strategy.CreateCheckout(ctx, gateway.CheckoutRequest{
		Reference:    p.Reference,
		OrderNumber:  o.Number,
		Amount:       p.Amount,
		Currency:     p.Currency,
		Items:        items,
		Shipping:     o.Shipping,
		Tax:          o.Tax,
		Discount:     o.Discount,
		DiscountCode: o.DiscountCode,
		SuccessURL:   p.SuccessURL,
		FailureURL:   p.FailureURL,
		CancelURL:    p.CancelURL,
		Metadata:     p.Metadata,
	})
}

// Authorize confirms funds are reserved at the provider. Requires the
// payment to be pending.
func (s *Service) Authorize(ctx context.Context, paymentID string) (*Payment, error) {
	unlock := s.locks.Lock(paymentID)
	defer unlock()

	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusPending {
		return nil, &InvalidStateError{Op: "authorize", Status: p.Status}
	}

	strategy, err := s.gateways.Get(p.Provider)
	if err != nil {
		return nil, err
	}
	if err := strategy.Authorize(ctx, p.ExternalID); err != nil {
		s.markFailed(ctx, p, err)
		return nil, err
	}

	now := s.now()
	p.Status = StatusAuthorized
	p.AuthorizedAt = &now
	if err := s.payments.UpdateWithOrderStatus(ctx, p, order.StatusPaymentAuthorized); err != nil {
		return nil, errors.Wrap(err, "record authorization")
	}

	zctx.From(ctx).Info("Payment authorized", zap.String("payment_reference", p.Reference))
	return p, nil
}

// Capture collects funds, in full or partially. Requires the payment to be
// authorized, or pending for providers whose flow captures without a
// separate authorize step.
func (s *Service) Capture(ctx context.Context, paymentID string, amount *decimal.Decimal) (*Payment, error) {
	unlock := s.locks.Lock(paymentID)
	defer unlock()

	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusAuthorized && p.Status != StatusPending {
		return nil, &InvalidStateError{Op: "capture", Status: p.Status}
	}
	if amount != nil && (!amount.IsPositive() || amount.GreaterThan(p.Amount)) {
		return nil, ErrInvalidAmount
	}

	strategy, err := s.gateways.Get(p.Provider)
	if err != nil {
		return nil, err
	}
	captureAmount := p.Amount
	if amount != nil {
		captureAmount = *amount
	}
	err = strategy.Capture(ctx, gateway.CaptureRequest{
		ExternalID: p.ExternalID,
		Amount:     &captureAmount,
		Currency:   p.Currency,
	})
	if err != nil {
		s.markFailed(ctx, p, err)
		return nil, err
	}

	now := s.now()
	p.Status = StatusCaptured
	p.CapturedAt = &now
	if err := s.payments.UpdateWithOrderStatus(ctx, p, order.StatusProcessing); err != nil {
		return nil, errors.Wrap(err, "record capture")
	}

	zctx.From(ctx).Info("Payment captured", zap.String("payment_reference", p.Reference))
	return p, nil
}

// Cancel voids a not-yet-captured payment and cancels the order. Captured
// payments must be refunded instead.
func (s *Service) Cancel(ctx context.Context, paymentID string) (*Payment, error) {
	unlock := s.locks.Lock(paymentID)
	defer unlock()

	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status == StatusCaptured || p.Status == StatusCancelled {
		return nil, &InvalidStateError{Op: "cancel", Status: p.Status}
	}

	strategy, err := s.gateways.Get(p.Provider)
	if err != nil {
		return nil, err
	}
	if err := strategy.Cancel(ctx, p.ExternalID); err != nil {
		return nil, err
	}

	p.Status = StatusCancelled
	if err := s.payments.UpdateWithOrderStatus(ctx, p, order.StatusCancelled); err != nil {
		return nil, errors.Wrap(err, "record cancellation")
	}

	zctx.From(ctx).Info("Payment cancelled", zap.String("payment_reference", p.Reference))
	return p, nil
}

// Refund returns funds on a captured payment. An amount strictly less than
// the original marks the payment (and order) partially refunded; omitting
// the amount refunds in full.
func (s *Service) Refund(ctx context.Context, paymentID string, amount *decimal.Decimal, reason string) (*Payment, error) {
	unlock := s.locks.Lock(paymentID)
	defer unlock()

	p, err := s.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusCaptured {
		return nil, &InvalidStateError{Op: "refund", Status: p.Status}
	}
	if amount != nil && (!amount.IsPositive() || amount.GreaterThan(p.Amount)) {
		return nil, ErrInvalidAmount
	}

	strategy, err := s.gateways.Get(p.Provider)
	if err != nil {
		return nil, err
	}
	refundAmount := p.Amount
	if amount != nil {
		refundAmount = *amount
	}
	err = strategy.Refund(ctx, gateway.RefundRequest{
		ExternalID: p.ExternalID,
		Amount:     &refundAmount,
		Currency:   p.Currency,
		Reason:     reason,
	})
	if err != nil {
		return nil, err
	}

	partial := amount != nil && amount.LessThan(p.Amount)
	now := s.now()
	p.RefundedAt = &now
	orderStatus := order.StatusRefunded
	p.Status = StatusRefunded
	if partial {
		p.Status = StatusPartiallyRefunded
		orderStatus = order.StatusPartiallyRefunded
	}
	if err := s.payments.UpdateWithOrderStatus(ctx, p, orderStatus); err != nil {
		return nil, errors.Wrap(err, "record refund")
	}

	zctx.From(ctx).Info("Payment refunded",
		zap.String("payment_reference", p.Reference),
		zap.Bool("partial", partial),
	)
	return p, nil
}

// FindByID returns a payment by its identifier.
func (s *Service) FindByID(ctx context.Context, id string) (*Payment, error) {
	return s.payments.GetByID(ctx, id)
}

// FindByReference returns a payment by its human-traceable reference.
func (s *Service) FindByReference(ctx context.Context, reference string) (*Payment, error) {
	return s.payments.GetByReference(ctx, reference)
}

// List returns all payments.
func (s *Service) List(ctx context.Context) ([]Payment, error) {
	return s.payments.List(ctx)
}

// ListByOrder returns all payments made against the given order.
func (s *Service) ListByOrder(ctx context.Context, orderID string) ([]Payment, error) {
	return s.payments.ListByOrder(ctx, orderID)
}

// ListByUser returns all payments belonging to the given user.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Payment, error) {
	return s.payments.ListByUser(ctx, userID)
}

// Providers returns the provider names payments can be created with.
func (s *Service) Providers() []string {
	return s.gateways.Providers()
}

// markFailed records a failed gateway attempt on the payment for audit. The
// original error still propagates to the caller; a write failure here is
// logged but must not mask it.
func (s *Service) markFailed(ctx context.Context, p *Payment, cause error) {
	p.Status = StatusFailed
	p.ErrorMessage = cause.Error()
	if err := s.payments.Update(ctx, p); err != nil {
		zctx.From(ctx).Error("Failed to record payment failure",
			zap.String("payment_id", p.ID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
	}
}

// generateReference produces a human-traceable payment reference; the
// unique index on payment_reference backstops the random suffix.
func (s *Service) generateReference() string {
	return fmt.Sprintf("PAY-%d-%03d", s.now().UnixMilli(), rand.IntN(1000))
}
