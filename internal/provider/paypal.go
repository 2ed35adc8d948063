package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"bookpay/internal/config"
	"bookpay/internal/domain"
)

// paypalOrderStatusMap translates order statuses to the engine's
// vocabulary. Anything absent here maps to StatusUnknown.
var paypalOrderStatusMap = map[string]Status{
	"CREATED":               StatusRequiresAction,
	"SAVED":                 StatusPending,
	"PAYER_ACTION_REQUIRED": StatusRequiresAction,
	"APPROVED":              StatusProcessing,
	"COMPLETED":             StatusCompleted,
	"VOIDED":                StatusFailed,
}

var paypalRefundStatusMap = map[string]Status{
	"COMPLETED": StatusCompleted,
	"PENDING":   StatusProcessing,
	"CANCELLED": StatusFailed,
	"FAILED":    StatusFailed,
}

// PayPal is the wallet/redirect-gateway processor. Initiation creates an
// order and hands back an approval URL; settlement is confirmed by webhook
// after the payer approves.
type PayPal struct {
	cfg    config.PayPalConfig
	client *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewPayPal creates the wallet-gateway processor.
func NewPayPal(cfg config.PayPalConfig, client *http.Client) *PayPal {
	return &PayPal{cfg: cfg, client: client}
}

// Name identifies the network.
func (p *PayPal) Name() domain.Provider { return domain.ProviderPayPal }

// ProcessPayment creates a checkout order and returns the approval URL.
// The payer still has to approve, so the result is always requires_action
// unless order creation itself failed.
func (p *PayPal) ProcessPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"custom_id":   req.PaymentRequestID(),
			"description": req.Description,
			"amount": map[string]string{
				"currency_code": req.Amount.Currency(),
				"value":         req.Amount.StringFixed(),
			},
		}},
		"application_context": map[string]string{
			"return_url": p.cfg.ReturnURL,
			"cancel_url": p.cfg.CancelURL,
		},
	}

	var order paypalOrder
	if err := p.call(ctx, http.MethodPost, "/v2/checkout/orders", body, &order); err != nil {
		return nil, fmt.Errorf("paypal: create order: %w", err)
	}

	status := mapPayPalOrderStatus(order.Status)
	result := &PaymentResult{
		Success:               status != StatusFailed && status != StatusUnknown,
		PaymentID:             req.PaymentRequestID(),
		ExternalTransactionID: order.ID,
		Status:                status,
	}
	for _, link := range order.Links {
		if link.Rel == "approve" || link.Rel == "payer-action" {
			result.RedirectURL = link.Href
			break
		}
	}

	return result, nil
}

// ProcessRefund refunds a captured order. The capture id is not stored
// locally, so it is first resolved from the order; a failure after the
// refund call was issued is reported as an ambiguous outcome so operators
// reconcile manually instead of retrying into a double refund.
func (p *PayPal) ProcessRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	captureID, err := p.resolveCaptureID(ctx, req.ExternalTransactionID)
	if err != nil {
		return nil, fmt.Errorf("paypal: resolve capture id: %w", err)
	}

	body := map[string]any{
		"amount": map[string]string{
			"currency_code": req.Amount.Currency(),
			"value":         req.Amount.StringFixed(),
		},
		"note_to_payer": req.Reason,
	}

	var refund paypalRefund
	path := "/v2/payments/captures/" + url.PathEscape(captureID) + "/refund"
	if err := p.call(ctx, http.MethodPost, path, body, &refund); err != nil {
		return nil, fmt.Errorf("paypal: refund capture: %w", err)
	}
	if refund.ID == "" || refund.Status == "" {
		// The network took the request but the response is unusable.
		return nil, fmt.Errorf("paypal: refund capture %s: %w", captureID, ErrAmbiguousOutcome)
	}

	status := mapPayPalRefundStatus(refund.Status)
	now := time.Now().UTC()
	return &RefundResult{
		Success:          status == StatusCompleted || status == StatusProcessing,
		ExternalRefundID: refund.ID,
		Status:           status,
		ProcessedAt:      &now,
	}, nil
}

// ValidateWebhook authenticates the event through the verify-webhook-signature
// API, then extracts the normalized event. The order id is recovered from
// the capture's related ids so it matches the stored external transaction id.
func (p *PayPal) ValidateWebhook(ctx context.Context, payload []byte, headers http.Header) (*WebhookValidation, error) {
	var event paypalEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("paypal: malformed webhook payload: %w", err)
	}

	verifyBody := map[string]any{
		"auth_algo":         headers.Get("Paypal-Auth-Algo"),
		"cert_url":          headers.Get("Paypal-Cert-Url"),
		"transmission_id":   headers.Get("Paypal-Transmission-Id"),
		"transmission_sig":  headers.Get("Paypal-Transmission-Sig"),
		"transmission_time": headers.Get("Paypal-Transmission-Time"),
		"webhook_id":        p.cfg.WebhookID,
		"webhook_event":     json.RawMessage(payload),
	}

	var verification struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := p.call(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", verifyBody, &verification); err != nil {
		return nil, fmt.Errorf("paypal: verify webhook signature: %w", err)
	}
	if verification.VerificationStatus != "SUCCESS" {
		return nil, ErrInvalidSignature
	}

	validation := &WebhookValidation{
		Valid:   true,
		EventID: event.ID,
		Data:    map[string]string{"event_type": event.EventType},
	}

	orderID := event.Resource.SupplementaryData.RelatedIDs.OrderID
	if orderID == "" {
		orderID = event.Resource.ID
	}

	switch event.EventType {
	case "PAYMENT.CAPTURE.COMPLETED", "CHECKOUT.ORDER.COMPLETED":
		validation.EventType = EventPaymentSucceeded
		validation.ExternalTransactionID = orderID
	case "PAYMENT.CAPTURE.DENIED", "PAYMENT.CAPTURE.DECLINED":
		validation.EventType = EventPaymentFailed
		validation.ExternalTransactionID = orderID
		validation.Data["failure_reason"] = event.Summary
	case "PAYMENT.CAPTURE.REFUNDED", "PAYMENT.CAPTURE.REVERSED":
		validation.EventType = EventRefund
		validation.ExternalTransactionID = orderID
		validation.Data["amount"] = event.Resource.Amount.Value
		validation.Data["currency"] = event.Resource.Amount.CurrencyCode
	default:
		validation.EventType = EventUnknown
	}

	return validation, nil
}

// GetPaymentStatus fetches the current order status.
func (p *PayPal) GetPaymentStatus(ctx context.Context, externalTransactionID string) (Status, error) {
	var order paypalOrder
	path := "/v2/checkout/orders/" + url.PathEscape(externalTransactionID)
	if err := p.call(ctx, http.MethodGet, path, nil, &order); err != nil {
		return StatusUnknown, fmt.Errorf("paypal: get order: %w", err)
	}
	return mapPayPalOrderStatus(order.Status), nil
}

// resolveCaptureID looks up the capture created when the order completed.
func (p *PayPal) resolveCaptureID(ctx context.Context, orderID string) (string, error) {
	var order paypalOrder
	path := "/v2/checkout/orders/" + url.PathEscape(orderID)
	if err := p.call(ctx, http.MethodGet, path, nil, &order); err != nil {
		return "", err
	}

	for _, unit := range order.PurchaseUnits {
		for _, capture := range unit.Payments.Captures {
			if capture.ID != "" {
				return capture.ID, nil
			}
		}
	}
	return "", fmt.Errorf("order %s has no capture", orderID)
}

func (p *PayPal) call(ctx context.Context, method, path string, body any, out any) error {
	token, err := p.token(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Message string `json:"message"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Message != "" {
			return fmt.Errorf("api error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return fmt.Errorf("api error (%d)", resp.StatusCode)
	}

	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

// token returns a cached client-credentials token, refreshing when expired.
func (p *PayPal) token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.accessToken != "" && time.Now().Before(p.tokenExpiry) {
		return p.accessToken, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/v1/oauth2/token",
		bytes.NewReader([]byte("grant_type=client_credentials")))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(p.cfg.ClientID, p.cfg.Secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("paypal: oauth token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("paypal: oauth token: api error (%d)", resp.StatusCode)
	}

	var token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("paypal: oauth token: %w", err)
	}

	p.accessToken = token.AccessToken
	// Renew a minute early to avoid using a token at the edge of expiry.
	p.tokenExpiry = time.Now().Add(time.Duration(token.ExpiresIn-60) * time.Second)

	return p.accessToken, nil
}

func mapPayPalOrderStatus(native string) Status {
	if status, ok := paypalOrderStatusMap[native]; ok {
		return status
	}
	return StatusUnknown
}

func mapPayPalRefundStatus(native string) Status {
	if status, ok := paypalRefundStatusMap[native]; ok {
		return status
	}
	return StatusUnknown
}

type paypalOrder struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Links         []paypalLink `json:"links"`
	PurchaseUnits []struct {
		Payments struct {
			Captures []struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type paypalRefund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type paypalEvent struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Summary   string `json:"summary"`
	Resource  struct {
		ID     string `json:"id"`
		Amount struct {
			CurrencyCode string `json:"currency_code"`
			Value        string `json:"value"`
		} `json:"amount"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	} `json:"resource"`
}

var _ Processor = (*PayPal)(nil)
