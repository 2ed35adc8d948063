package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"bookpay/internal/config"
	"bookpay/internal/domain"
)

const stripeSignatureTolerance = 5 * time.Minute

// stripeStatusMap translates payment-intent statuses to the engine's
// vocabulary. Anything absent here maps to StatusUnknown.
var stripeStatusMap = map[string]Status{
	"succeeded":               StatusCompleted,
	"processing":              StatusProcessing,
	"requires_payment_method": StatusRequiresAction,
	"requires_confirmation":   StatusRequiresAction,
	"requires_action":         StatusRequiresAction,
	"requires_capture":        StatusProcessing,
	"canceled":                StatusFailed,
}

var stripeRefundStatusMap = map[string]Status{
	"succeeded":       StatusCompleted,
	"pending":         StatusProcessing,
	"requires_action": StatusRequiresAction,
	"failed":          StatusFailed,
	"canceled":        StatusFailed,
}

// Stripe is the card-gateway processor. Charges are authorized and
// captured in one step, so initiation may complete synchronously.
type Stripe struct {
	cfg    config.StripeConfig
	client *http.Client
}

// NewStripe creates the card-gateway processor.
func NewStripe(cfg config.StripeConfig, client *http.Client) *Stripe {
	return &Stripe{cfg: cfg, client: client}
}

// Name identifies the network.
func (s *Stripe) Name() domain.Provider { return domain.ProviderStripe }

// ProcessPayment creates and confirms a payment intent.
func (s *Stripe) ProcessPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(req.Amount.MinorUnits(), 10))
	form.Set("currency", strings.ToLower(req.Amount.Currency()))
	form.Set("payment_method", req.PaymentMethod)
	form.Set("confirm", "true")
	form.Set("description", req.Description)
	for k, v := range req.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	var intent stripeIntent
	if err := s.call(ctx, http.MethodPost, "/v1/payment_intents", form, &intent); err != nil {
		return nil, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	status := mapStripeStatus(intent.Status)
	result := &PaymentResult{
		Success:               status != StatusFailed && status != StatusUnknown,
		PaymentID:             req.PaymentRequestID(),
		ExternalTransactionID: intent.ID,
		Status:                status,
	}
	if intent.NextAction != nil && intent.NextAction.RedirectToURL != nil {
		result.RedirectURL = intent.NextAction.RedirectToURL.URL
	}
	if intent.LastPaymentError != nil {
		result.ErrorMessage = intent.LastPaymentError.Message
	}

	return result, nil
}

// ProcessRefund refunds part or all of a captured payment intent.
func (s *Stripe) ProcessRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	form := url.Values{}
	form.Set("payment_intent", req.ExternalTransactionID)
	form.Set("amount", strconv.FormatInt(req.Amount.MinorUnits(), 10))
	if req.Reason != "" {
		form.Set("metadata[reason]", req.Reason)
	}

	var refund stripeRefund
	if err := s.call(ctx, http.MethodPost, "/v1/refunds", form, &refund); err != nil {
		return nil, fmt.Errorf("stripe: create refund: %w", err)
	}

	status := mapStripeRefundStatus(refund.Status)
	now := time.Now().UTC()
	return &RefundResult{
		Success:          status == StatusCompleted || status == StatusProcessing,
		ExternalRefundID: refund.ID,
		Status:           status,
		ProcessedAt:      &now,
	}, nil
}

// ValidateWebhook checks the Stripe-Signature header (HMAC-SHA256 over
// "<timestamp>.<payload>") within a tolerance window, then extracts the
// normalized event.
func (s *Stripe) ValidateWebhook(ctx context.Context, payload []byte, headers http.Header) (*WebhookValidation, error) {
	header := headers.Get("Stripe-Signature")
	ts, signatures, err := parseStripeSignature(header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	if d := time.Since(time.Unix(ts, 0)); d > stripeSignatureTolerance || d < -stripeSignatureTolerance {
		return nil, fmt.Errorf("%w: timestamp outside tolerance", ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(s.cfg.WebhookSecret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	verified := false
	for _, sig := range signatures {
		if hmac.Equal([]byte(sig), []byte(expected)) {
			verified = true
			break
		}
	}
	if !verified {
		return nil, ErrInvalidSignature
	}

	var event stripeEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("stripe: malformed webhook payload: %w", err)
	}

	validation := &WebhookValidation{
		Valid:   true,
		EventID: event.ID,
		Data:    map[string]string{"event_type": event.Type},
	}

	obj := event.Data.Object
	switch event.Type {
	case "payment_intent.succeeded":
		validation.EventType = EventPaymentSucceeded
		validation.ExternalTransactionID = obj.ID
	case "payment_intent.payment_failed", "payment_intent.canceled":
		validation.EventType = EventPaymentFailed
		validation.ExternalTransactionID = obj.ID
		if obj.LastPaymentError != nil {
			validation.Data["failure_reason"] = obj.LastPaymentError.Message
		} else {
			validation.Data["failure_reason"] = event.Type
		}
	case "charge.refunded", "charge.dispute.funds_withdrawn":
		validation.EventType = EventRefund
		validation.ExternalTransactionID = obj.PaymentIntent
		amount, err := domain.NewMoneyFromMinorUnits(obj.AmountRefunded, obj.Currency)
		if err != nil {
			return nil, fmt.Errorf("stripe: refund amount: %w", err)
		}
		validation.Data["amount"] = amount.StringFixed()
		validation.Data["currency"] = amount.Currency()
	default:
		validation.EventType = EventUnknown
	}

	return validation, nil
}

// GetPaymentStatus fetches the current intent status.
func (s *Stripe) GetPaymentStatus(ctx context.Context, externalTransactionID string) (Status, error) {
	var intent stripeIntent
	path := "/v1/payment_intents/" + url.PathEscape(externalTransactionID)
	if err := s.call(ctx, http.MethodGet, path, nil, &intent); err != nil {
		return StatusUnknown, fmt.Errorf("stripe: get payment intent: %w", err)
	}
	return mapStripeStatus(intent.Status), nil
}

func (s *Stripe) call(ctx context.Context, method, path string, form url.Values, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, s.cfg.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		var apiErr stripeAPIError
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("api error (%d): %s", resp.StatusCode, apiErr.Error.Message)
		}
		return fmt.Errorf("api error (%d)", resp.StatusCode)
	}

	return json.Unmarshal(data, out)
}

func mapStripeStatus(native string) Status {
	if status, ok := stripeStatusMap[native]; ok {
		return status
	}
	return StatusUnknown
}

func mapStripeRefundStatus(native string) Status {
	if status, ok := stripeRefundStatusMap[native]; ok {
		return status
	}
	return StatusUnknown
}

// parseStripeSignature splits "t=1492774577,v1=abc,v1=def" into the
// timestamp and candidate signatures.
func parseStripeSignature(header string) (int64, []string, error) {
	if header == "" {
		return 0, nil, fmt.Errorf("missing signature header")
	}

	var ts int64 = -1
	var signatures []string
	for _, part := range strings.Split(header, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "t":
			parsed, err := strconv.ParseInt(kv[1], 10, 64)
			if err != nil {
				return 0, nil, fmt.Errorf("bad timestamp: %v", err)
			}
			ts = parsed
		case "v1":
			signatures = append(signatures, kv[1])
		}
	}

	if ts < 0 || len(signatures) == 0 {
		return 0, nil, fmt.Errorf("signature header missing t or v1")
	}
	return ts, signatures, nil
}

type stripeIntent struct {
	ID               string             `json:"id"`
	Status           string             `json:"status"`
	NextAction       *stripeNextAction  `json:"next_action"`
	LastPaymentError *stripeErrorDetail `json:"last_payment_error"`
}

type stripeNextAction struct {
	RedirectToURL *struct {
		URL string `json:"url"`
	} `json:"redirect_to_url"`
}

type stripeErrorDetail struct {
	Message string `json:"message"`
}

type stripeRefund struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

type stripeEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID               string             `json:"id"`
			PaymentIntent    string             `json:"payment_intent"`
			Currency         string             `json:"currency"`
			AmountRefunded   int64              `json:"amount_refunded"`
			LastPaymentError *stripeErrorDetail `json:"last_payment_error"`
		} `json:"object"`
	} `json:"data"`
}

type stripeAPIError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

var _ Processor = (*Stripe)(nil)
