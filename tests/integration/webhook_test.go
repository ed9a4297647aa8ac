//go:build integration

package integration

import (
	"net/http"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// The webhook secret must match PAYFLOW_TAMARA_NOTIFICATION_TOKEN in
// docker-compose.test.yml.
const notificationToken = "test-notification-token"

func signWebhookToken(t *testing.T, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": "Tamara",
		"iat": time.Now().Unix(),
	}).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func TestWebhook_InvalidToken(t *testing.T) {
	body := map[string]string{"order_id": "ext-1", "order_status": "approved"}
	token := signWebhookToken(t, "wrong-secret")

	resp := doPost(t, "/api/payments/webhook/tamara?tamaraToken="+token, body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestWebhook_MalformedPayload(t *testing.T) {
	token := signWebhookToken(t, notificationToken)

	resp := doPost(t, "/api/payments/webhook/tamara?tamaraToken="+token, map[string]string{
		"order_status": "approved",
	})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestWebhook_UnknownPaymentAcknowledged(t *testing.T) {
	token := signWebhookToken(t, notificationToken)
	body := map[string]string{"order_id": "ext-does-not-exist", "order_status": "approved"}

	resp := doPost(t, "/api/payments/webhook/tamara?tamaraToken="+token, body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	out := decodeJSON[webhookResponse](t, resp)
	if out.Status != "ignored" {
		t.Errorf("status: got %q, want ignored", out.Status)
	}
}

func TestWebhook_UnsupportedProvider(t *testing.T) {
	token := signWebhookToken(t, notificationToken)
	body := map[string]string{"order_id": "ext-1", "order_status": "approved"}

	resp := doPost(t, "/api/payments/webhook/stripe?tamaraToken="+token, body)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
