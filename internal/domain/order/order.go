package order

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending           Status = "pending"
	StatusAwaitingPayment   Status = "awaiting_payment"
	StatusPaymentAuthorized Status = "payment_authorized"
	StatusProcessing        Status = "processing"
	StatusCompleted         Status = "completed"
	StatusCancelled         Status = "cancelled"
	StatusRefunded          Status = "refunded"
	StatusPartiallyRefunded Status = "partially_refunded"
)

// Terminal reports whether no further transition may leave this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusRefunded:
		return true
	}
	return false
}

// Order represents a customer's purchase with priced line items.
type Order struct {
	ID              string
	Number          string
	UserID          string
	Status          Status
	Items           []Item
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	Tax             decimal.Decimal
	Shipping        decimal.Decimal
	Total           decimal.Decimal
	Currency        string
	DiscountCode    string
	Notes           string
	ShippingAddress string
	BillingAddress  string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Item is a single purchased line. Items are created together with their
// order and are immutable afterwards; changes go through whole-order
// replacement.
type Item struct {
	ID             string
	Name           string
	Description    string
	SKU            string
	Quantity       int
	UnitPrice      decimal.Decimal
	Total          decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
}

// Sentinel errors for order validation and lifecycle checks.
var (
	ErrNotFound        = fmt.Errorf("order not found")
	ErrEmptyItems      = fmt.Errorf("order must contain at least one item")
	ErrNegativeTotal   = fmt.Errorf("order total must not be negative")
	ErrNumberCollision = fmt.Errorf("order number already exists")
	ErrHasLivePayment  = fmt.Errorf("order has an authorized or captured payment")
	ErrTerminalStatus  = fmt.Errorf("order is in a terminal status")
)

// InvalidItemError indicates a line item failed validation.
type InvalidItemError struct {
	SKU    string
	Reason string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("invalid item %q: %s", e.SKU, e.Reason)
}

// Repository defines persistence operations for orders. Reads return
// ErrNotFound when no order matches; they never fabricate empty orders.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	// Update replaces the order header and, when o.Items is non-nil, all of
	// its items. The write is guarded by a compare-and-swap on o.Version.
	Update(ctx context.Context, o *Order) error
	UpdateStatus(ctx context.Context, id string, status Status) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Order, error)
	ListByUser(ctx context.Context, userID string) ([]Order, error)
}

// LivePaymentChecker reports whether an order is referenced by a payment in
// a successful (authorized or captured) status. Implemented by the payment
// store; declared here so the order service does not depend on the payment
// package.
type LivePaymentChecker interface {
	HasLivePayment(ctx context.Context, orderID string) (bool, error)
}
