// Package tamara implements the gateway.Strategy capability set against the
// Tamara buy-now-pay-later API.
package tamara

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/payflow/internal/gateway"
)

// Name is the provider name the strategy registers under.
const Name = "tamara"

const defaultTimeout = 30 * time.Second

// Config holds the Tamara API credentials and endpoints.
type Config struct {
	// APIURL is the base URL of the Tamara API, e.g.
	// https://api-sandbox.tamara.co.
	APIURL string
	// APIToken is the bearer token for API calls.
	APIToken string
	// NotificationToken is the shared HS256 secret webhook tokens are
	// signed with.
	NotificationToken string
	// NotificationURL is the merchant webhook endpoint sent with each
	// checkout, e.g. https://shop.example.com/api/payments/webhook/tamara.
	NotificationURL string
	// Timeout bounds each API round trip. Zero means defaultTimeout.
	Timeout time.Duration
}

var _ gateway.Strategy = (*Strategy)(nil)

// Strategy talks to the Tamara API. It is stateless aside from the
// underlying connection pool and safe for concurrent use.
type Strategy struct {
	cfg    Config
	client *http.Client
}

// New creates a Tamara strategy from the given configuration.
func New(cfg Config) *Strategy {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &Strategy{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// amount is Tamara's {amount, currency} money object.
type amount struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

type checkoutItem struct {
	ReferenceID    string `json:"reference_id"`
	Type           string `json:"type"`
	Name           string `json:"name"`
	SKU            string `json:"sku"`
	Quantity       int    `json:"quantity"`
	UnitPrice      amount `json:"unit_price"`
	TaxAmount      amount `json:"tax_amount"`
	DiscountAmount amount `json:"discount_amount"`
	TotalAmount    amount `json:"total_amount"`
}

type consumer struct {
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number"`
}

type discount struct {
	Name   string `json:"name"`
	Amount amount `json:"amount"`
}

type merchantURL struct {
	Success      string `json:"success"`
	Failure      string `json:"failure"`
	Cancel       string `json:"cancel"`
	Notification string `json:"notification"`
}

type checkoutRequest struct {
	OrderReferenceID string         `json:"order_reference_id"`
	TotalAmount      amount         `json:"total_amount"`
	Description      string         `json:"description"`
	CountryCode      string         `json:"country_code"`
	PaymentType      string         `json:"payment_type"`
	Locale           string         `json:"locale"`
	Items            []checkoutItem `json:"items"`
	Consumer         consumer       `json:"consumer"`
	ShippingAmount   amount         `json:"shipping_amount"`
	TaxAmount        amount         `json:"tax_amount"`
	Discount         *discount      `json:"discount,omitempty"`
	MerchantURL      merchantURL    `json:"merchant_url"`
}

type checkoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
	OrderID     string `json:"order_id"`
}

// CreateCheckout opens a hosted Tamara checkout session and returns its URL
// together with the Tamara-side order id.
func (s *Strategy) CreateCheckout(ctx context.Context, req gateway.CheckoutRequest) (*gateway.Checkout, error) {
	items := make([]checkoutItem, len(req.Items))
	for i, item := range req.Items {
		items[i] = checkoutItem{
			ReferenceID:    item.ID,
			Type:           "physical",
			Name:           item.Name,
			SKU:            item.SKU,
			Quantity:       item.Quantity,
			UnitPrice:      amount{Amount: item.UnitPrice, Currency: req.Currency},
			TaxAmount:      amount{Amount: item.TaxAmount, Currency: req.Currency},
			DiscountAmount: amount{Amount: item.DiscountAmount, Currency: req.Currency},
			TotalAmount:    amount{Amount: item.Total, Currency: req.Currency},
		}
	}

	payload := checkoutRequest{
		OrderReferenceID: req.OrderNumber,
		TotalAmount:      amount{Amount: req.Amount, Currency: req.Currency},
		Description:      fmt.Sprintf("Order %s", req.OrderNumber),
		CountryCode:      "SA",
		PaymentType:      "PAY_BY_INSTALMENTS",
		Locale:           "en_US",
		Items:            items,
		Consumer:         consumerFromMetadata(req.Metadata),
		ShippingAmount:   amount{Amount: req.Shipping, Currency: req.Currency},
		TaxAmount:        amount{Amount: req.Tax, Currency: req.Currency},
		MerchantURL: merchantURL{
			Success:      req.SuccessURL,
			Failure:      req.FailureURL,
			Cancel:       req.CancelURL,
			Notification: s.cfg.NotificationURL,
		},
	}
	if req.DiscountCode != "" {
		payload.Discount = &discount{
			Name:   req.DiscountCode,
			Amount: amount{Amount: req.Discount, Currency: req.Currency},
		}
	}

	zctx.From(ctx).Debug("Creating Tamara checkout", zap.String("reference", req.Reference))

	var resp checkoutResponse
	if err := s.post(ctx, "/checkout", payload, &resp); err != nil {
		return nil, err
	}
	if resp.CheckoutURL == "" || resp.OrderID == "" {
		return nil, gateway.Errorf(Name, "checkout response missing checkout_url or order_id")
	}

	return &gateway.Checkout{URL: resp.CheckoutURL, ExternalID: resp.OrderID}, nil
}

// Authorize confirms funds are reserved for the Tamara order.
func (s *Strategy) Authorize(ctx context.Context, externalID string) error {
	return s.post(ctx, "/orders/"+externalID+"/authorise", struct{}{}, nil)
}

type captureRequest struct {
	OrderID      string       `json:"order_id"`
	TotalAmount  amount       `json:"total_amount"`
	ShippingInfo shippingInfo `json:"shipping_info"`
}

type shippingInfo struct {
	ShippedAt       string `json:"shipped_at"`
	ShippingCompany string `json:"shipping_company"`
}

// Capture collects funds on an authorized Tamara order. A nil amount means
// the caller's original payment amount is unknown here, so the request must
// always carry one; the payment service fills in the full amount.
func (s *Strategy) Capture(ctx context.Context, req gateway.CaptureRequest) error {
	if req.Amount == nil {
		return gateway.Errorf(Name, "capture amount is required")
	}
	return s.post(ctx, "/payments/capture", captureRequest{
		OrderID:     req.ExternalID,
		TotalAmount: amount{Amount: *req.Amount, Currency: req.Currency},
		ShippingInfo: shippingInfo{
			ShippedAt:       time.Now().UTC().Format(time.RFC3339),
			ShippingCompany: "N/A",
		},
	}, nil)
}

// Cancel voids a not-yet-captured Tamara order.
func (s *Strategy) Cancel(ctx context.Context, externalID string) error {
	return s.post(ctx, "/orders/"+externalID+"/cancel", struct{}{}, nil)
}

type refundRequest struct {
	OrderID     string `json:"order_id"`
	TotalAmount amount `json:"total_amount"`
	Comment     string `json:"comment"`
}

// Refund returns funds on a captured Tamara order.
func (s *Strategy) Refund(ctx context.Context, req gateway.RefundRequest) error {
	if req.Amount == nil {
		return gateway.Errorf(Name, "refund amount is required")
	}
	comment := req.Reason
	if comment == "" {
		comment = "Customer requested refund"
	}
	return s.post(ctx, "/payments/simplified-refund", refundRequest{
		OrderID:     req.ExternalID,
		TotalAmount: amount{Amount: *req.Amount, Currency: req.Currency},
		Comment:     comment,
	}, nil)
}

// GetStatus reads the current Tamara-side status of an order.
func (s *Strategy) GetStatus(ctx context.Context, externalID string) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := s.get(ctx, "/orders/"+externalID, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// VerifyWebhook validates the HS256 JWT Tamara attaches to each
// notification against the configured notification token. A token that
// fails to parse or verify yields (false, nil); this is an authenticity
// outcome, not a transport failure.
func (s *Strategy) VerifyWebhook(ctx context.Context, token string) (bool, error) {
	_, err := jwt.Parse(token,
		func(*jwt.Token) (any, error) { return []byte(s.cfg.NotificationToken), nil },
		jwt.WithValidMethods([]string{"HS256"}),
	)
	if err != nil {
		zctx.From(ctx).Debug("Webhook token rejected", zap.Error(err))
		return false, nil
	}
	return true, nil
}

func (s *Strategy) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return gateway.NewError(Name, errors.Wrap(err, "encode request"))
	}
	return s.do(ctx, http.MethodPost, path, bytes.NewReader(body), out)
}

func (s *Strategy) get(ctx context.Context, path string, out any) error {
	return s.do(ctx, http.MethodGet, path, nil, out)
}

func (s *Strategy) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, s.cfg.APIURL+path, body)
	if err != nil {
		return gateway.NewError(Name, errors.Wrap(err, "build request"))
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return gateway.NewError(Name, errors.Wrapf(err, "%s %s", method, path))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return gateway.Errorf(Name, "%s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return gateway.NewError(Name, errors.Wrap(err, "decode response"))
	}
	return nil
}

func consumerFromMetadata(md map[string]string) consumer {
	c := consumer{
		Email:       "customer@example.com",
		FirstName:   "Customer",
		LastName:    "Name",
		PhoneNumber: "+966500000000",
	}
	if v := md["customerEmail"]; v != "" {
		c.Email = v
	}
	if v := md["customerFirstName"]; v != "" {
		c.FirstName = v
	}
	if v := md["customerLastName"]; v != "" {
		c.LastName = v
	}
	if v := md["customerPhone"]; v != "" {
		c.PhoneNumber = v
	}
	return c
}
