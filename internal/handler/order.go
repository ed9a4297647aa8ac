package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/xenking/payflow/internal/domain/order"
)

type orderItemRequest struct {
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	SKU            string  `json:"sku"`
	Quantity       int     `json:"quantity"`
	UnitPrice      float64 `json:"unitPrice"`
	TaxAmount      float64 `json:"taxAmount,omitempty"`
	DiscountAmount float64 `json:"discountAmount,omitempty"`
}

type createOrderRequest struct {
	Items           []orderItemRequest `json:"items"`
	Discount        float64            `json:"discount,omitempty"`
	Tax             float64            `json:"tax,omitempty"`
	Shipping        float64            `json:"shipping,omitempty"`
	Currency        string             `json:"currency,omitempty"`
	DiscountCode    string             `json:"discountCode,omitempty"`
	Notes           string             `json:"notes,omitempty"`
	ShippingAddress string             `json:"shippingAddress,omitempty"`
	BillingAddress  string             `json:"billingAddress,omitempty"`
}

type updateOrderRequest struct {
	Items           []orderItemRequest `json:"items"`
	Discount        *float64           `json:"discount"`
	Tax             *float64           `json:"tax"`
	Shipping        *float64           `json:"shipping"`
	DiscountCode    *string            `json:"discountCode"`
	Notes           *string            `json:"notes"`
	ShippingAddress *string            `json:"shippingAddress"`
	BillingAddress  *string            `json:"billingAddress"`
}

type orderItemResponse struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Description    string  `json:"description,omitempty"`
	SKU            string  `json:"sku"`
	Quantity       int     `json:"quantity"`
	UnitPrice      float64 `json:"unitPrice"`
	Total          float64 `json:"total"`
	TaxAmount      float64 `json:"taxAmount"`
	DiscountAmount float64 `json:"discountAmount"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	OrderNumber     string              `json:"orderNumber"`
	UserID          string              `json:"userId"`
	Status          string              `json:"status"`
	Items           []orderItemResponse `json:"items"`
	Subtotal        float64             `json:"subtotal"`
	Discount        float64             `json:"discount"`
	Tax             float64             `json:"tax"`
	Shipping        float64             `json:"shipping"`
	Total           float64             `json:"total"`
	Currency        string              `json:"currency"`
	DiscountCode    string              `json:"discountCode,omitempty"`
	Notes           string              `json:"notes,omitempty"`
	ShippingAddress string              `json:"shippingAddress,omitempty"`
	BillingAddress  string              `json:"billingAddress,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

func toOrderResponse(o *order.Order) orderResponse {
	items := make([]orderItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemResponse{
			ID:             it.ID,
			Name:           it.Name,
			Description:    it.Description,
			SKU:            it.SKU,
			Quantity:       it.Quantity,
			UnitPrice:      it.UnitPrice.InexactFloat64(),
			Total:          it.Total.InexactFloat64(),
			TaxAmount:      it.TaxAmount.InexactFloat64(),
			DiscountAmount: it.DiscountAmount.InexactFloat64(),
		}
	}
	return orderResponse{
		ID:              o.ID,
		OrderNumber:     o.Number,
		UserID:          o.UserID,
		Status:          string(o.Status),
		Items:           items,
		Subtotal:        o.Subtotal.InexactFloat64(),
		Discount:        o.Discount.InexactFloat64(),
		Tax:             o.Tax.InexactFloat64(),
		Shipping:        o.Shipping.InexactFloat64(),
		Total:           o.Total.InexactFloat64(),
		Currency:        o.Currency,
		DiscountCode:    o.DiscountCode,
		Notes:           o.Notes,
		ShippingAddress: o.ShippingAddress,
		BillingAddress:  o.BillingAddress,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func toCreateItems(in []orderItemRequest) []order.CreateItem {
	items := make([]order.CreateItem, len(in))
	for i, it := range in {
		items[i] = order.CreateItem{
			Name:           it.Name,
			Description:    it.Description,
			SKU:            it.SKU,
			Quantity:       it.Quantity,
			UnitPrice:      decimal.NewFromFloat(it.UnitPrice),
			TaxAmount:      decimal.NewFromFloat(it.TaxAmount),
			DiscountAmount: decimal.NewFromFloat(it.DiscountAmount),
		}
	}
	return items
}

// CreateOrder handles POST /orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	o, err := h.orders.Create(r.Context(), UserIDFromContext(r.Context()), order.CreateRequest{
		Items:           toCreateItems(req.Items),
		Discount:        decimal.NewFromFloat(req.Discount),
		Tax:             decimal.NewFromFloat(req.Tax),
		Shipping:        decimal.NewFromFloat(req.Shipping),
		Currency:        req.Currency,
		DiscountCode:    req.DiscountCode,
		Notes:           req.Notes,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrderResponse(o))
}

// ListOrders handles GET /orders, scoped to the authenticated user.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByUser(r.Context(), UserIDFromContext(r.Context()))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	resp := make([]orderResponse, len(orders))
	for i := range orders {
		resp[i] = toOrderResponse(&orders[i])
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetOrder handles GET /orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// GetOrderByNumber handles GET /orders/number/{orderNumber}.
func (h *Handler) GetOrderByNumber(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.FindByNumber(r.Context(), chi.URLParam(r, "orderNumber"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// UpdateOrder handles PUT /orders/{id}.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	upd := order.UpdateRequest{
		DiscountCode:    req.DiscountCode,
		Notes:           req.Notes,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
	}
	if req.Items != nil {
		upd.Items = toCreateItems(req.Items)
	}
	if req.Discount != nil {
		d := decimal.NewFromFloat(*req.Discount)
		upd.Discount = &d
	}
	if req.Tax != nil {
		t := decimal.NewFromFloat(*req.Tax)
		upd.Tax = &t
	}
	if req.Shipping != nil {
		sh := decimal.NewFromFloat(*req.Shipping)
		upd.Shipping = &sh
	}

	o, err := h.orders.Update(r.Context(), chi.URLParam(r, "id"), upd)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponse(o))
}

// DeleteOrder handles DELETE /orders/{id}.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
