package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/payflow/internal/domain/order"
)

// Status is the lifecycle state of a payment attempt.
type Status string

const (
	StatusPending           Status = "pending"
	StatusAuthorized        Status = "authorized"
	StatusCaptured          Status = "captured"
	StatusFailed            Status = "failed"
	StatusCancelled         Status = "cancelled"
	StatusRefunded          Status = "refunded"
	StatusPartiallyRefunded Status = "partially_refunded"
)

// Successful reports whether the payment currently holds funds for its
// order. At most one payment per order may be in a successful status.
func (s Status) Successful() bool {
	return s == StatusAuthorized || s == StatusCaptured
}

// statusRank is the documented total order over payment statuses used for
// webhook application. A notification is applied only when it would move the
// status strictly forward along this order; money never "un-captures".
// StatusFailed and StatusCancelled are sinks: ranked above the
// pre-capture states so a decline can land on a pending or authorized
// payment, but nothing is ever applied on top of them via webhook.
var statusRank = map[Status]int{
	StatusPending:           0,
	StatusAuthorized:        1,
	StatusFailed:            2,
	StatusCancelled:         2,
	StatusCaptured:          3,
	StatusPartiallyRefunded: 4,
	StatusRefunded:          5,
}

// webhookSink reports whether webhook notifications must never transition
// the payment out of this status.
func (s Status) webhookSink() bool {
	return s == StatusFailed || s == StatusCancelled
}

// Payment represents one attempt to collect money for an order via a named
// provider.
type Payment struct {
	ID           string
	Reference    string
	OrderID      string
	UserID       string
	Provider     string
	Status       Status
	Amount       decimal.Decimal
	Currency     string
	ExternalID   string
	CheckoutURL  string
	SuccessURL   string
	FailureURL   string
	CancelURL    string
	Metadata     map[string]string
	ErrorMessage string
	AuthorizedAt *time.Time
	CapturedAt   *time.Time
	RefundedAt   *time.Time
	Version      int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Sentinel errors for payment validation and lifecycle checks.
var (
	ErrNotFound            = fmt.Errorf("payment not found")
	ErrInvalidAmount       = fmt.Errorf("payment amount must be greater than 0")
	ErrNotOrderOwner       = fmt.Errorf("payments can only be created for your own orders")
	ErrOrderAlreadyPaid    = fmt.Errorf("order already has a successful payment")
	ErrVersionConflict     = fmt.Errorf("payment was modified concurrently")
	ErrWebhookAuthenticity = fmt.Errorf("webhook token verification failed")
)

// InvalidStateError indicates an operation is not legal from the payment's
// current lifecycle state.
type InvalidStateError struct {
	Op     string
	Status Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s payment in status %q", e.Op, e.Status)
}

// Repository defines persistence operations for payments. Reads return
// ErrNotFound when no payment matches. Update and UpdateWithOrderStatus are
// compare-and-swap writes on Version; a lost race yields ErrVersionConflict.
type Repository interface {
	Create(ctx context.Context, p *Payment) error
	GetByID(ctx context.Context, id string) (*Payment, error)
	GetByReference(ctx context.Context, reference string) (*Payment, error)
	GetByExternalID(ctx context.Context, externalID string) (*Payment, error)
	List(ctx context.Context) ([]Payment, error)
	ListByOrder(ctx context.Context, orderID string) ([]Payment, error)
	ListByUser(ctx context.Context, userID string) ([]Payment, error)
	Update(ctx context.Context, p *Payment) error
	// UpdateWithOrderStatus writes the payment and mirrors orderStatus onto
	// the owning order inside a single transaction, so a crash can never
	// leave the pair observably half-updated.
	UpdateWithOrderStatus(ctx context.Context, p *Payment, orderStatus order.Status) error
}
