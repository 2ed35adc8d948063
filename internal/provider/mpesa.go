package provider

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"bookpay/internal/config"
	"bookpay/internal/domain"
)

// mpesaQueryResultMap translates STK query result codes to the engine's
// vocabulary. Anything absent here maps to StatusUnknown.
var mpesaQueryResultMap = map[string]Status{
	"0":    StatusCompleted,
	"1":    StatusFailed, // insufficient balance
	"1032": StatusFailed, // cancelled by user
	"1037": StatusPending, // prompt timed out, user may retry
	"2001": StatusFailed, // wrong PIN
}

// Mpesa is the mobile-money processor. Initiation pushes a payment prompt
// to the payer's handset, so a payment always starts pending and completes
// only via callback. The network has no programmatic refund; reversals are
// back-office only.
type Mpesa struct {
	cfg    config.MpesaConfig
	client *http.Client
}

// NewMpesa creates the mobile-money processor.
func NewMpesa(cfg config.MpesaConfig, client *http.Client) *Mpesa {
	return &Mpesa{cfg: cfg, client: client}
}

// Name identifies the network.
func (m *Mpesa) Name() domain.Provider { return domain.ProviderMpesa }

// ProcessPayment sends an STK push to the phone number given as the
// payment method reference.
func (m *Mpesa) ProcessPayment(ctx context.Context, req PaymentRequest) (*PaymentResult, error) {
	token, err := m.token(ctx)
	if err != nil {
		return nil, err
	}

	timestamp := time.Now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString(
		[]byte(m.cfg.ShortCode + m.cfg.Passkey + timestamp))

	// The STK API bills whole currency units only.
	body := map[string]any{
		"BusinessShortCode": m.cfg.ShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            req.Amount.Amount().Round(0).IntPart(),
		"PartyA":            req.PaymentMethod,
		"PartyB":            m.cfg.ShortCode,
		"PhoneNumber":       req.PaymentMethod,
		"CallBackURL":       m.cfg.CallbackURL,
		"AccountReference":  req.PaymentRequestID(),
		"TransactionDesc":   req.Description,
	}

	var push struct {
		CheckoutRequestID   string `json:"CheckoutRequestID"`
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
	}
	if err := m.call(ctx, token, "/mpesa/stkpush/v1/processrequest", body, &push); err != nil {
		return nil, fmt.Errorf("mpesa: stk push: %w", err)
	}

	if push.ResponseCode != "0" {
		return &PaymentResult{
			Success:      false,
			PaymentID:    req.PaymentRequestID(),
			Status:       StatusFailed,
			ErrorMessage: push.ResponseDescription,
		}, nil
	}

	return &PaymentResult{
		Success:               true,
		PaymentID:             req.PaymentRequestID(),
		ExternalTransactionID: push.CheckoutRequestID,
		Status:                StatusPending,
	}, nil
}

// ProcessRefund always reports that a manual reversal is required; the
// network exposes no refund API for STK payments.
func (m *Mpesa) ProcessRefund(ctx context.Context, req RefundRequest) (*RefundResult, error) {
	return nil, fmt.Errorf("mpesa: refund of %s: %w", req.ExternalTransactionID, ErrManualRefundRequired)
}

// ValidateWebhook authenticates the callback with the shared callback
// token (the network does not sign payloads) and extracts the result.
func (m *Mpesa) ValidateWebhook(ctx context.Context, payload []byte, headers http.Header) (*WebhookValidation, error) {
	token := headers.Get("X-Callback-Token")
	if m.cfg.CallbackToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(m.cfg.CallbackToken)) != 1 {
		return nil, ErrInvalidSignature
	}

	var callback mpesaCallback
	if err := json.Unmarshal(payload, &callback); err != nil {
		return nil, fmt.Errorf("mpesa: malformed callback payload: %w", err)
	}

	stk := callback.Body.StkCallback
	if stk.CheckoutRequestID == "" {
		return nil, fmt.Errorf("mpesa: callback missing CheckoutRequestID")
	}

	validation := &WebhookValidation{
		Valid: true,
		// The network sends no event id; the checkout id plus result code
		// identifies a delivery for replay detection.
		EventID:               stk.CheckoutRequestID + ":" + strconv.Itoa(stk.ResultCode),
		ExternalTransactionID: stk.CheckoutRequestID,
		Data: map[string]string{
			"result_code": strconv.Itoa(stk.ResultCode),
			"result_desc": stk.ResultDesc,
		},
	}

	if stk.ResultCode == 0 {
		validation.EventType = EventPaymentSucceeded
		for _, item := range stk.CallbackMetadata.Item {
			if item.Name == "MpesaReceiptNumber" {
				validation.Data["receipt_number"] = fmt.Sprint(item.Value)
			}
		}
	} else {
		validation.EventType = EventPaymentFailed
		validation.Data["failure_reason"] = stk.ResultDesc
	}

	return validation, nil
}

// GetPaymentStatus queries the STK push result.
func (m *Mpesa) GetPaymentStatus(ctx context.Context, externalTransactionID string) (Status, error) {
	token, err := m.token(ctx)
	if err != nil {
		return StatusUnknown, err
	}

	timestamp := time.Now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString(
		[]byte(m.cfg.ShortCode + m.cfg.Passkey + timestamp))

	body := map[string]any{
		"BusinessShortCode": m.cfg.ShortCode,
		"Password":          password,
		"Timestamp":         timestamp,
		"CheckoutRequestID": externalTransactionID,
	}

	var query struct {
		ResultCode string `json:"ResultCode"`
	}
	if err := m.call(ctx, token, "/mpesa/stkpushquery/v1/query", body, &query); err != nil {
		return StatusUnknown, fmt.Errorf("mpesa: stk query: %w", err)
	}

	if status, ok := mpesaQueryResultMap[query.ResultCode]; ok {
		return status, nil
	}
	return StatusUnknown, nil
}

func (m *Mpesa) call(ctx context.Context, token, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respData, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("api error (%d): %s", resp.StatusCode, string(respData))
	}

	return json.Unmarshal(respData, out)
}

func (m *Mpesa) token(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		m.cfg.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(m.cfg.ConsumerKey, m.cfg.ConsumerSecret)

	resp, err := m.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("mpesa: oauth token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("mpesa: oauth token: api error (%d)", resp.StatusCode)
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return "", fmt.Errorf("mpesa: oauth token: %w", err)
	}

	return token.AccessToken, nil
}

type mpesaCallback struct {
	Body struct {
		StkCallback struct {
			MerchantRequestID string `json:"MerchantRequestID"`
			CheckoutRequestID string `json:"CheckoutRequestID"`
			ResultCode        int    `json:"ResultCode"`
			ResultDesc        string `json:"ResultDesc"`
			CallbackMetadata  struct {
				Item []struct {
					Name  string `json:"Name"`
					Value any    `json:"Value"`
				} `json:"Item"`
			} `json:"CallbackMetadata"`
		} `json:"stkCallback"`
	} `json:"Body"`
}

var _ Processor = (*Mpesa)(nil)
