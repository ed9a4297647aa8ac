// Package gateway defines the capability set every payment provider is
// plugged in behind, and the registry that selects an implementation by
// provider name.
package gateway

import (
	"context"

	"github.com/shopspring/decimal"
)

// Item is a priced order line forwarded to the provider during checkout.
type Item struct {
	ID             string
	Name           string
	SKU            string
	Quantity       int
	UnitPrice      decimal.Decimal
	TaxAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
}

// CheckoutRequest carries everything a provider needs to open a hosted
// payment flow. It is a snapshot; the strategy never reads local state.
type CheckoutRequest struct {
	Reference    string
	OrderNumber  string
	Amount       decimal.Decimal
	Currency     string
	Items        []Item
	Shipping     decimal.Decimal
	Tax          decimal.Decimal
	Discount     decimal.Decimal
	DiscountCode string
	SuccessURL   string
	FailureURL   string
	CancelURL    string
	Metadata     map[string]string
}

// Checkout is the provider's answer to a checkout request.
type Checkout struct {
	URL        string
	ExternalID string
}

// CaptureRequest collects funds on a provider-side payment. A nil Amount
// captures the full original amount.
type CaptureRequest struct {
	ExternalID string
	Amount     *decimal.Decimal
	Currency   string
}

// RefundRequest returns funds on a captured provider-side payment. A nil
// Amount refunds in full.
type RefundRequest struct {
	ExternalID string
	Amount     *decimal.Decimal
	Currency   string
	Reason     string
}

// Strategy is the uniform capability set implemented once per provider.
// Every call is a network round trip; failures are reported as *Error and
// never silently swallowed.
type Strategy interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	Authorize(ctx context.Context, externalID string) error
	Capture(ctx context.Context, req CaptureRequest) error
	Cancel(ctx context.Context, externalID string) error
	Refund(ctx context.Context, req RefundRequest) error
	GetStatus(ctx context.Context, externalID string) (string, error)
	// VerifyWebhook validates an inbound notification token without touching
	// local state. An invalid token yields (false, nil); only transport-level
	// failures return an error.
	VerifyWebhook(ctx context.Context, token string) (bool, error)
}
