package handlers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/escrowdesk/backend/internal/http/dto"
	"github.com/escrowdesk/backend/internal/providers"
	"github.com/escrowdesk/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

const testPaystackSecret = "sk_test_webhooks"

func newWebhookTestApp(t *testing.T) *fiber.App {
	t.Helper()
	log := zap.NewNop()
	h := NewWebhookHandler(
		providers.NewPaystack(testPaystackSecret, log),
		providers.NewMonnify("monnify-secret"),
		providers.NewCryptoPay("cryptopay-token"),
		services.NewReconciler(nil, nil, nil, log),
		log,
	)
	app := fiber.New()
	app.Post("/webhooks/paystack", h.Paystack)
	return app
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestPaystackWebhookRejectsBadSignature(t *testing.T) {
	app := newWebhookTestApp(t)

	body := []byte(`{"event":"charge.success"}`)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", bytes.NewReader(body))
	req.Header.Set(providers.PaystackSignatureHeader, signBody("wrong-secret", body))

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
}

func TestPaystackWebhookAcksMalformedPayload(t *testing.T) {
	app := newWebhookTestApp(t)

	// Authentically signed but unparseable. Redelivering the same bytes can
	// never succeed, so the delivery must be acknowledged, not rejected.
	for _, body := range [][]byte{
		[]byte("not json at all"),
		[]byte(`{"event":"charge.success","data":{"reference":""}}`),
	} {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/paystack", bytes.NewReader(body))
		req.Header.Set(providers.PaystackSignatureHeader, signBody(testPaystackSecret, body))

		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d, want 200", resp.StatusCode)
		}
		var out dto.WebhookResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
		resp.Body.Close()
		if out.Status != "ok" || out.Action != services.ReconcileMalformed {
			t.Errorf("response = %+v, want status ok action malformed", out)
		}
	}
}
