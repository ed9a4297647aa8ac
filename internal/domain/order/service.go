package order

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultCurrency = "SAR"

// CreateItem is the caller-supplied input for one order line.
type CreateItem struct {
	Name           string
	Description    string
	SKU            string
	Quantity       int
	UnitPrice      decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
}

// CreateRequest holds the input for creating an order.
type CreateRequest struct {
	Items           []CreateItem
	Discount        decimal.Decimal
	Tax             decimal.Decimal
	Shipping        decimal.Decimal
	Currency        string
	DiscountCode    string
	Notes           string
	ShippingAddress string
	BillingAddress  string
}

// UpdateRequest holds the input for replacing mutable order fields. A nil
// Items slice leaves the existing items untouched; a non-empty one replaces
// them all and recomputes totals.
type UpdateRequest struct {
	Items           []CreateItem
	Discount        *decimal.Decimal
	Tax             *decimal.Decimal
	Shipping        *decimal.Decimal
	DiscountCode    *string
	Notes           *string
	ShippingAddress *string
	BillingAddress  *string
}

// Service owns the Order state machine and its items.
type Service struct {
	orders   Repository
	payments LivePaymentChecker
	now      func() time.Time
}

// NewService creates an order Service with the required dependencies.
func NewService(orders Repository, payments LivePaymentChecker) *Service {
	return &Service{
		orders:   orders,
		payments: payments,
		now:      time.Now,
	}
}

// Create validates and persists a new order in StatusPending, computing line
// and order totals. A collision on the generated order number surfaces as
// ErrNumberCollision, which callers may retry.
func (s *Service) Create(ctx context.Context, userID string, req CreateRequest) (*Order, error) {
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	items := make([]Item, len(req.Items))
	for i, in := range req.Items {
		if in.Quantity < 1 {
			return nil, &InvalidItemError{SKU: in.SKU, Reason: "quantity must be at least 1"}
		}
		if !in.UnitPrice.IsPositive() {
			return nil, &InvalidItemError{SKU: in.SKU, Reason: "unit price must be greater than 0"}
		}
		items[i] = Item{
			ID:             uuid.New().String(),
			Name:           in.Name,
			Description:    in.Description,
			SKU:            in.SKU,
			Quantity:       in.Quantity,
			UnitPrice:      in.UnitPrice,
			Total:          ItemTotal(in.Quantity, in.UnitPrice, in.DiscountAmount),
			TaxAmount:      in.TaxAmount,
			DiscountAmount: in.DiscountAmount,
		}
	}

	subtotal, total := CalculateTotals(items, req.Discount, req.Tax, req.Shipping)
	if subtotal.IsNegative() || total.IsNegative() {
		return nil, ErrNegativeTotal
	}

	currency := req.Currency
	if currency == "" {
		currency = defaultCurrency
	}

	o := &Order{
		ID:              uuid.New().String(),
		Number:          s.generateNumber(),
		UserID:          userID,
		Status:          StatusPending,
		Items:           items,
		Subtotal:        subtotal,
		Discount:        req.Discount,
		Tax:             req.Tax,
		Shipping:        req.Shipping,
		Total:           total,
		Currency:        currency,
		DiscountCode:    req.DiscountCode,
		Notes:           req.Notes,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		Version:         1,
	}

	if err := s.orders.Create(ctx, o); err != nil {
		if errors.Is(err, ErrNumberCollision) {
			return nil, ErrNumberCollision
		}
		return nil, errors.Wrap(err, "create order")
	}

	zctx.From(ctx).Info("Order created",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.Number),
		zap.String("total", o.Total.String()),
	)
	return o, nil
}

// Update replaces the mutable header fields and, when items are supplied,
// all line items with recomputed totals. Terminal orders are rejected.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status.Terminal() {
		return nil, ErrTerminalStatus
	}

	if req.Discount != nil {
		o.Discount = *req.Discount
	}
	if req.Tax != nil {
		o.Tax = *req.Tax
	}
	if req.Shipping != nil {
		o.Shipping = *req.Shipping
	}
	if req.DiscountCode != nil {
		o.DiscountCode = *req.DiscountCode
	}
	if req.Notes != nil {
		o.Notes = *req.Notes
	}
	if req.ShippingAddress != nil {
		o.ShippingAddress = *req.ShippingAddress
	}
	if req.BillingAddress != nil {
		o.BillingAddress = *req.BillingAddress
	}

	if req.Items != nil {
		if len(req.Items) == 0 {
			return nil, ErrEmptyItems
		}
		items := make([]Item, len(req.Items))
		for i, in := range req.Items {
			if in.Quantity < 1 {
				return nil, &InvalidItemError{SKU: in.SKU, Reason: "quantity must be at least 1"}
			}
			if !in.UnitPrice.IsPositive() {
				return nil, &InvalidItemError{SKU: in.SKU, Reason: "unit price must be greater than 0"}
			}
			items[i] = Item{
				ID:             uuid.New().String(),
				Name:           in.Name,
				Description:    in.Description,
				SKU:            in.SKU,
				Quantity:       in.Quantity,
				UnitPrice:      in.UnitPrice,
				Total:          ItemTotal(in.Quantity, in.UnitPrice, in.DiscountAmount),
				TaxAmount:      in.TaxAmount,
				DiscountAmount: in.DiscountAmount,
			}
		}
		o.Items = items
	}

	subtotal, total := CalculateTotals(o.Items, o.Discount, o.Tax, o.Shipping)
	if subtotal.IsNegative() || total.IsNegative() {
		return nil, ErrNegativeTotal
	}
	o.Subtotal = subtotal
	o.Total = total

	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrap(err, "update order")
	}
	return o, nil
}

// UpdateStatus overwrites the order status. It is called by the payment
// service as a side effect of payment transitions; transitions out of a
// terminal status are refused.
func (s *Service) UpdateStatus(ctx context.Context, id string, status Status) error {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if o.Status.Terminal() && o.Status != status {
		return ErrTerminalStatus
	}
	if err := s.orders.UpdateStatus(ctx, id, status); err != nil {
		return errors.Wrap(err, "update order status")
	}
	return nil
}

// Delete removes an order. It is refused while any payment in an authorized
// or captured status references the order.
func (s *Service) Delete(ctx context.Context, id string) error {
	if _, err := s.orders.GetByID(ctx, id); err != nil {
		return err
	}
	live, err := s.payments.HasLivePayment(ctx, id)
	if err != nil {
		return errors.Wrap(err, "check live payments")
	}
	if live {
		return ErrHasLivePayment
	}
	return s.orders.Delete(ctx, id)
}

// FindByID returns a fully materialized order including items.
func (s *Service) FindByID(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// FindByNumber returns the order with the given human-readable number.
func (s *Service) FindByNumber(ctx context.Context, number string) (*Order, error) {
	return s.orders.GetByNumber(ctx, number)
}

// List returns all orders.
func (s *Service) List(ctx context.Context) ([]Order, error) {
	return s.orders.List(ctx)
}

// ListByUser returns all orders belonging to the given user.
func (s *Service) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	return s.orders.ListByUser(ctx, userID)
}

// generateNumber produces a human-readable order number. The millisecond
// timestamp keeps numbers roughly monotonic; the random suffix narrows the
// collision window. The unique index on order_number catches the rest.
func (s *Service) generateNumber() string {
	return fmt.Sprintf("ORD-%d-%03d", s.now().UnixMilli(), rand.IntN(1000))
}
