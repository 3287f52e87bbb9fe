package payment

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const razorpayBaseURL = "https://api.razorpay.com/v1"

// RazorpayGateway talks to the Razorpay REST API with basic auth. Payment
// verification is offline: the signature is an HMAC-SHA256 of
// "orderId|paymentId" under the key secret, so no network call is needed.
type RazorpayGateway struct {
	keyID     string
	keySecret string
	baseURL   string
	client    *http.Client
}

func NewRazorpayGateway(keyID, keySecret string) *RazorpayGateway {
	return &RazorpayGateway{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   razorpayBaseURL,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

type razorpayOrderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type razorpayRefundResponse struct {
	ID string `json:"id"`
}

type razorpayErrorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

func (g *RazorpayGateway) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*GatewayOrder, error) {
	if req.AmountMinor <= 0 {
		return nil, ErrInvalidAmount
	}

	payload := map[string]any{
		"amount":   req.AmountMinor,
		"currency": req.Currency,
		"receipt":  req.OrderID,
	}
	if len(req.Notes) > 0 {
		payload["notes"] = req.Notes
	}

	var resp razorpayOrderResponse
	if err := g.post(ctx, "/orders", payload, &resp); err != nil {
		return nil, err
	}
	return &GatewayOrder{
		GatewayOrderID: resp.ID,
		AmountMinor:    resp.Amount,
		Currency:       resp.Currency,
		KeyID:          g.keyID,
	}, nil
}

func (g *RazorpayGateway) VerifyPayment(ctx context.Context, req *VerifyPaymentRequest) error {
	if req.GatewayOrderID == "" || req.GatewayPaymentID == "" || req.Signature == "" {
		return fmt.Errorf("%w: missing order, payment, or signature", ErrVerificationFailed)
	}

	mac := hmac.New(sha256.New, []byte(g.keySecret))
	mac.Write([]byte(req.GatewayOrderID + "|" + req.GatewayPaymentID))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(req.Signature)) {
		return fmt.Errorf("%w: signature mismatch", ErrVerificationFailed)
	}
	return nil
}

func (g *RazorpayGateway) Refund(ctx context.Context, paymentID string, amountMinor int64, notes map[string]string) (string, error) {
	if amountMinor <= 0 {
		return "", ErrInvalidAmount
	}

	payload := map[string]any{"amount": amountMinor}
	if len(notes) > 0 {
		payload["notes"] = notes
	}

	var resp razorpayRefundResponse
	if err := g.post(ctx, "/payments/"+paymentID+"/refund", payload, &resp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefundFailed, err)
	}
	return resp.ID, nil
}

func (g *RazorpayGateway) post(ctx context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode razorpay request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build razorpay request: %w", err)
	}
	req.SetBasicAuth(g.keyID, g.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProviderDown, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read razorpay response: %w", err)
	}

	if resp.StatusCode >= http.StatusInternalServerError {
		return ErrProviderDown
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr razorpayErrorResponse
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error.Description != "" {
			return fmt.Errorf("%w: %s (%s)", ErrPaymentFailed, apiErr.Error.Description, apiErr.Error.Code)
		}
		return fmt.Errorf("%w: razorpay returned %d", ErrPaymentFailed, resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode razorpay response: %w", err)
	}
	return nil
}
