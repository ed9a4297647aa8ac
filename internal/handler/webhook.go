package handler

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/payflow/internal/domain/payment"
)

// webhookToken extracts the provider authenticity token. Tamara puts it in
// the tamaraToken query parameter; a bearer Authorization header is accepted
// as a fallback for providers that sign headers instead.
func webhookToken(r *http.Request) string {
	if token := r.URL.Query().Get("tamaraToken"); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return after
	}
	return ""
}

// parseWebhookPayload pulls the external order id and its reported status
// out of the notification body, ignoring all other fields.
func parseWebhookPayload(body []byte) (payment.WebhookEvent, error) {
	var ev payment.WebhookEvent
	d := jx.DecodeBytes(body)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "order_id":
			v, err := d.Str()
			if err != nil {
				return err
			}
			ev.ExternalID = v
		case "order_status":
			v, err := d.Str()
			if err != nil {
				return err
			}
			ev.ProviderStatus = v
		default:
			return d.Skip()
		}
		return nil
	})
	return ev, err
}

// HandleWebhook handles POST /payments/webhook/{provider}. Ignored outcomes
// still acknowledge with 200 so the provider stops redelivering.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable request body")
		return
	}

	ev, err := parseWebhookPayload(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "malformed webhook payload")
		return
	}
	if ev.ExternalID == "" || ev.ProviderStatus == "" {
		writeError(w, http.StatusBadRequest, "webhook payload missing order_id or order_status")
		return
	}

	outcome, err := h.payments.HandleWebhook(r.Context(), chi.URLParam(r, "provider"), webhookToken(r), ev)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": string(outcome)})
}
