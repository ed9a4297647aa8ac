// Package handler exposes the order/payment engine over HTTP and maps
// domain errors to stable response categories.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/payflow/internal/domain/auth"
	"github.com/xenking/payflow/internal/domain/order"
	"github.com/xenking/payflow/internal/domain/payment"
)

// Handler wires the domain services to HTTP routes.
type Handler struct {
	orders   *order.Service
	payments *payment.Service
}

// NewHandler constructs a Handler with the required domain services.
func NewHandler(orders *order.Service, payments *payment.Service) *Handler {
	return &Handler{
		orders:   orders,
		payments: payments,
	}
}

// Routes builds the API router. All routes except the webhook endpoint are
// guarded by API key authentication; webhooks are authenticated by the
// provider-specific token instead.
func (h *Handler) Routes(apikeys auth.Repository, pepper []byte) http.Handler {
	r := chi.NewRouter()

	r.Post("/payments/webhook/{provider}", h.HandleWebhook)

	r.Group(func(r chi.Router) {
		r.Use(APIKeyAuth(apikeys, pepper))

		r.Post("/orders", h.CreateOrder)
		r.Get("/orders", h.ListOrders)
		r.Get("/orders/{id}", h.GetOrder)
		r.Get("/orders/number/{orderNumber}", h.GetOrderByNumber)
		r.Put("/orders/{id}", h.UpdateOrder)
		r.Delete("/orders/{id}", h.DeleteOrder)

		r.Post("/payments", h.CreatePayment)
		r.Get("/payments", h.ListPayments)
		r.Get("/payments/methods", h.ListProviders)
		r.Get("/payments/reference/{reference}", h.GetPaymentByReference)
		r.Get("/payments/order/{orderId}", h.ListPaymentsByOrder)
		r.Get("/payments/{id}", h.GetPayment)
		r.Post("/payments/{id}/authorize", h.AuthorizePayment)
		r.Post("/payments/{id}/capture", h.CapturePayment)
		r.Post("/payments/{id}/cancel", h.CancelPayment)
		r.Post("/payments/{id}/refund", h.RefundPayment)
	})

	return r
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Code: status, Message: msg})
}
