package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/payflow/internal/domain/payment"
)

type createPaymentRequest struct {
	OrderID    string            `json:"orderId"`
	Provider   string            `json:"provider"`
	Amount     float64           `json:"amount"`
	Currency   string            `json:"currency,omitempty"`
	SuccessURL string            `json:"successUrl,omitempty"`
	FailureURL string            `json:"failureUrl,omitempty"`
	CancelURL  string            `json:"cancelUrl,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type captureRequest struct {
	Amount *float64 `json:"amount"`
}

type refundRequest struct {
	Amount *float64 `json:"amount"`
	Reason string   `json:"reason,omitempty"`
}

type paymentResponse struct {
	ID               string            `json:"id"`
	PaymentReference string            `json:"paymentReference"`
	OrderID          string            `json:"orderId"`
	UserID           string            `json:"userId"`
	Provider         string            `json:"provider"`
	Status           string            `json:"status"`
	Amount           float64           `json:"amount"`
	Currency         string            `json:"currency"`
	ExternalID       string            `json:"externalId,omitempty"`
	CheckoutURL      string            `json:"checkoutUrl,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	ErrorMessage     string            `json:"errorMessage,omitempty"`
	AuthorizedAt     *time.Time        `json:"authorizedAt,omitempty"`
	CapturedAt       *time.Time        `json:"capturedAt,omitempty"`
	RefundedAt       *time.Time        `json:"refundedAt,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

func toPaymentResponse(p *payment.Payment) paymentResponse {
	return paymentResponse{
		ID:               p.ID,
		PaymentReference: p.Reference,
		OrderID:          p.OrderID,
		UserID:           p.UserID,
		Provider:         p.Provider,
		Status:           string(p.Status),
		Amount:           p.Amount.InexactFloat64(),
		Currency:         p.Currency,
		ExternalID:       p.ExternalID,
		CheckoutURL:      p.CheckoutURL,
		Metadata:         p.Metadata,
		ErrorMessage:     p.ErrorMessage,
		AuthorizedAt:     p.AuthorizedAt,
		CapturedAt:       p.CapturedAt,
		RefundedAt:       p.RefundedAt,
		CreatedAt:        p.CreatedAt,
		UpdatedAt:        p.UpdatedAt,
	}
}

func optionalAmount(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v)
	return &d
}

// CreatePayment handles POST /payments.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.payments.Create(r.Context(), UserIDFromContext(r.Context()), payment.CreateRequest{
		OrderID:    req.OrderID,
		Provider:   req.Provider,
		Amount:     decimal.NewFromFloat(req.Amount),
		Currency:   req.Currency,
		SuccessURL: req.SuccessURL,
		FailureURL: req.FailureURL,
		CancelURL:  req.CancelURL,
		Metadata:   req.Metadata,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toPaymentResponse(p))
}

// ListPayments handles GET /payments, scoped to the authenticated user.
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.payments.ListByUser(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponses(payments))
}

// ListProviders handles GET /payments/methods.
func (h *Handler) ListProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"providers": h.payments.Providers()})
}

// GetPayment handles GET /payments/{id}.
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

// GetPaymentByReference handles GET /payments/reference/{reference}.
func (h *Handler) GetPaymentByReference(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.FindByReference(r.Context(), chi.URLParam(r, "reference"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

// ListPaymentsByOrder handles GET /payments/order/{orderId}.
func (h *Handler) ListPaymentsByOrder(w http.ResponseWriter, r *http.Request) {
	payments, err := h.payments.ListByOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponses(payments))
}

// AuthorizePayment handles POST /payments/{id}/authorize.
func (h *Handler) AuthorizePayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.Authorize(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

// CapturePayment handles POST /payments/{id}/capture. An omitted amount
// captures in full.
func (h *Handler) CapturePayment(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	p, err := h.payments.Capture(r.Context(), chi.URLParam(r, "id"), optionalAmount(req.Amount))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

// CancelPayment handles POST /payments/{id}/cancel.
func (h *Handler) CancelPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.payments.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

// RefundPayment handles POST /payments/{id}/refund. An omitted amount
// refunds in full; a smaller amount records a partial refund.
func (h *Handler) RefundPayment(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	p, err := h.payments.Refund(r.Context(), chi.URLParam(r, "id"), optionalAmount(req.Amount), req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPaymentResponse(p))
}

func toPaymentResponses(payments []payment.Payment) []paymentResponse {
	resp := make([]paymentResponse, len(payments))
	for i := range payments {
		resp[i] = toPaymentResponse(&payments[i])
	}
	return resp
}
