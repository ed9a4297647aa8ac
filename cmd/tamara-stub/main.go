// Command tamara-stub is a minimal in-memory stand-in for the Tamara API.
// The integration suite points the server at it so payment flows can run
// end to end without sandbox credentials. It tracks order status across
// calls and rejects out-of-sequence operations.
package main

import (
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func main() {
	var (
		addr     string
		apiToken string
	)

	flag.StringVar(&addr, "addr", "0.0.0.0:9090", "listen address")
	flag.StringVar(&apiToken, "api-token", "", "expected bearer token; empty disables the check")
	flag.Parse()

	s := &stub{
		token:  apiToken,
		orders: make(map[string]string),
	}

	slog.Info("tamara stub listening", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, s.routes()); err != nil {
		slog.Error("server failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

type stub struct {
	token string

	mu     sync.Mutex
	orders map[string]string
}

func (s *stub) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requireBearer)
	r.Post("/checkout", s.createCheckout)
	r.Post("/orders/{orderId}/authorise", s.authorise)
	r.Post("/orders/{orderId}/cancel", s.cancel)
	r.Post("/payments/capture", s.capture)
	r.Post("/payments/simplified-refund", s.refund)
	r.Get("/orders/{orderId}", s.getOrder)
	return r
}

func (s *stub) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("Authorization") != "Bearer "+s.token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *stub) createCheckout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OrderReferenceID string `json:"order_reference_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderReferenceID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "order_reference_id is required"})
		return
	}

	id := uuid.New().String()
	s.mu.Lock()
	s.orders[id] = "new"
	s.mu.Unlock()

	slog.Info("checkout created", slog.String("order_id", id), slog.String("reference", req.OrderReferenceID))
	writeJSON(w, http.StatusOK, map[string]string{
		"order_id":     id,
		"checkout_url": "https://checkout.tamara.test/" + id,
		"status":       "new",
	})
}

func (s *stub) authorise(w http.ResponseWriter, r *http.Request) {
	s.transition(w, chi.URLParam(r, "orderId"), "authorised", "new")
}

func (s *stub) cancel(w http.ResponseWriter, r *http.Request) {
	s.transition(w, chi.URLParam(r, "orderId"), "canceled", "new", "authorised")
}

func (s *stub) capture(w http.ResponseWriter, r *http.Request) {
	id, ok := s.orderIDFromBody(w, r)
	if !ok {
		return
	}
	s.transition(w, id, "fully_captured", "authorised")
}

func (s *stub) refund(w http.ResponseWriter, r *http.Request) {
	id, ok := s.orderIDFromBody(w, r)
	if !ok {
		return
	}
	s.transition(w, id, "fully_refunded", "fully_captured", "fully_refunded")
}

func (s *stub) getOrder(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "orderId")

	s.mu.Lock()
	status, ok := s.orders[id]
	s.mu.Unlock()

	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "order not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"order_id": id, "status": status})
}

func (s *stub) orderIDFromBody(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req struct {
		OrderID string `json:"order_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.OrderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"message": "order_id is required"})
		return "", false
	}
	return req.OrderID, true
}

// transition moves the order to next when its current status is one of from,
// mirroring the sequencing the real API enforces.
func (s *stub) transition(w http.ResponseWriter, id, next string, from ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "order not found"})
		return
	}
	allowed := false
	for _, f := range from {
		if current == f {
			allowed = true
			break
		}
	}
	if !allowed {
		writeJSON(w, http.StatusConflict, map[string]string{
			"message": "invalid transition from " + current + " to " + next,
		})
		return
	}

	s.orders[id] = next
	slog.Info("order transitioned", slog.String("order_id", id), slog.String("status", next))
	writeJSON(w, http.StatusOK, map[string]string{"order_id": id, "status": next})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
