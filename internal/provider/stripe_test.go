package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"bookpay/internal/config"
)

const testWebhookSecret = "whsec_test"

func signedStripeHeader(payload []byte, ts int64, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.%s", ts, payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func testStripe() *Stripe {
	return NewStripe(config.StripeConfig{
		APIKey:        "sk_test",
		WebhookSecret: testWebhookSecret,
		BaseURL:       "https://api.example.test",
	}, &http.Client{})
}

func TestStripe_ValidateWebhookAcceptsSignedEvent(t *testing.T) {
	t.Parallel()

	s := testStripe()
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_123"}}}`)
	headers := http.Header{}
	headers.Set("Stripe-Signature", signedStripeHeader(payload, time.Now().Unix(), testWebhookSecret))

	validation, err := s.ValidateWebhook(context.Background(), payload, headers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !validation.Valid {
		t.Error("expected valid")
	}
	if validation.EventID != "evt_1" {
		t.Errorf("expected evt_1, got %s", validation.EventID)
	}
	if validation.EventType != EventPaymentSucceeded {
		t.Errorf("expected payment_succeeded, got %s", validation.EventType)
	}
	if validation.ExternalTransactionID != "pi_123" {
		t.Errorf("expected pi_123, got %s", validation.ExternalTransactionID)
	}
}

func TestStripe_ValidateWebhookRejectsBadSignature(t *testing.T) {
	t.Parallel()

	s := testStripe()
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)

	headers := http.Header{}
	headers.Set("Stripe-Signature", signedStripeHeader(payload, time.Now().Unix(), "whsec_other"))
	if _, err := s.ValidateWebhook(context.Background(), payload, headers); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("wrong secret: expected ErrInvalidSignature, got %v", err)
	}

	// Missing header.
	if _, err := s.ValidateWebhook(context.Background(), payload, http.Header{}); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("missing header: expected ErrInvalidSignature, got %v", err)
	}

	// Tampered payload under a valid signature of the original.
	headers.Set("Stripe-Signature", signedStripeHeader(payload, time.Now().Unix(), testWebhookSecret))
	tampered := []byte(`{"id":"evt_1","type":"payment_intent.succeeded","data":{"object":{"id":"pi_evil"}}}`)
	if _, err := s.ValidateWebhook(context.Background(), tampered, headers); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("tampered payload: expected ErrInvalidSignature, got %v", err)
	}
}

func TestStripe_ValidateWebhookRejectsStaleTimestamp(t *testing.T) {
	t.Parallel()

	s := testStripe()
	payload := []byte(`{"id":"evt_1","type":"payment_intent.succeeded"}`)
	stale := time.Now().Add(-10 * time.Minute).Unix()

	headers := http.Header{}
	headers.Set("Stripe-Signature", signedStripeHeader(payload, stale, testWebhookSecret))
	if _, err := s.ValidateWebhook(context.Background(), payload, headers); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("expected ErrInvalidSignature for stale timestamp, got %v", err)
	}
}

func TestStripe_ValidateWebhookNormalizesRefunds(t *testing.T) {
	t.Parallel()

	// Gateway amounts arrive in minor units, whose meaning depends on the
	// currency exponent: 450 is $4.50 but ¥450.
	tests := []struct {
		currency     string
		refunded     int64
		wantAmount   string
		wantCurrency string
	}{
		{"usd", 450, "4.50", "USD"},
		{"jpy", 500, "500", "JPY"},
		{"kwd", 1234, "1.234", "KWD"},
	}

	s := testStripe()
	for _, tt := range tests {
		payload := fmt.Appendf(nil,
			`{"id":"evt_2","type":"charge.refunded","data":{"object":{"id":"ch_1","payment_intent":"pi_123","currency":%q,"amount_refunded":%d}}}`,
			tt.currency, tt.refunded)
		headers := http.Header{}
		headers.Set("Stripe-Signature", signedStripeHeader(payload, time.Now().Unix(), testWebhookSecret))

		validation, err := s.ValidateWebhook(context.Background(), payload, headers)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.currency, err)
		}
		if validation.EventType != EventRefund {
			t.Errorf("%s: expected refund, got %s", tt.currency, validation.EventType)
		}
		if validation.ExternalTransactionID != "pi_123" {
			t.Errorf("%s: refunds must resolve the payment intent, got %s", tt.currency, validation.ExternalTransactionID)
		}
		if validation.Data["amount"] != tt.wantAmount {
			t.Errorf("%s: expected amount %s, got %s", tt.currency, tt.wantAmount, validation.Data["amount"])
		}
		if validation.Data["currency"] != tt.wantCurrency {
			t.Errorf("%s: expected currency %s, got %s", tt.currency, tt.wantCurrency, validation.Data["currency"])
		}
	}
}

func TestStripe_ValidateWebhookUnknownEventType(t *testing.T) {
	t.Parallel()

	s := testStripe()
	payload := []byte(`{"id":"evt_3","type":"customer.created","data":{"object":{"id":"cus_1"}}}`)
	headers := http.Header{}
	headers.Set("Stripe-Signature", signedStripeHeader(payload, time.Now().Unix(), testWebhookSecret))

	validation, err := s.ValidateWebhook(context.Background(), payload, headers)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if validation.EventType != EventUnknown {
		t.Errorf("expected unknown, got %s", validation.EventType)
	}
}

func TestStripe_StatusMapDefaultsToUnknown(t *testing.T) {
	t.Parallel()

	tests := []struct {
		native string
		want   Status
	}{
		{"succeeded", StatusCompleted},
		{"processing", StatusProcessing},
		{"requires_action", StatusRequiresAction},
		{"canceled", StatusFailed},
		{"some_future_status", StatusUnknown},
		{"", StatusUnknown},
	}
	for _, tt := range tests {
		if got := mapStripeStatus(tt.native); got != tt.want {
			t.Errorf("mapStripeStatus(%q) = %s, want %s", tt.native, got, tt.want)
		}
	}
}

func TestStripe_ParseSignatureHeader(t *testing.T) {
	t.Parallel()

	ts, sigs, err := parseStripeSignature("t=1492774577,v1=abc,v1=def")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ts != 1492774577 {
		t.Errorf("expected 1492774577, got %d", ts)
	}
	if len(sigs) != 2 || sigs[0] != "abc" || sigs[1] != "def" {
		t.Errorf("unexpected signatures %v", sigs)
	}

	if _, _, err := parseStripeSignature(""); err == nil {
		t.Error("expected error for empty header")
	}
	if _, _, err := parseStripeSignature("v1=abc"); err == nil {
		t.Error("expected error for missing timestamp")
	}
	if _, _, err := parseStripeSignature("t=abc,v1=def"); err == nil {
		t.Error("expected error for malformed timestamp")
	}
}
