package payment

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// StripeGateway adapts Stripe PaymentIntents to the Gateway interface.
// Verification ignores the client signature and asks Stripe directly for
// the intent status, which is the stronger check anyway.
type StripeGateway struct {
	client *client.API
}

func NewStripeGateway(apiKey string) *StripeGateway {
	sc := &client.API{}
	sc.Init(apiKey, nil)
	return &StripeGateway{client: sc}
}

func (g *StripeGateway) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*GatewayOrder, error) {
	if req.AmountMinor <= 0 {
		return nil, ErrInvalidAmount
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountMinor),
		Currency: stripe.String(req.Currency),
	}
	// The order ID doubles as the idempotency key so a retried create
	// never opens a second intent.
	if req.OrderID != "" {
		params.IdempotencyKey = stripe.String("order_" + req.OrderID)
	}
	if len(req.Notes) > 0 {
		params.Metadata = make(map[string]string, len(req.Notes))
		for k, v := range req.Notes {
			params.Metadata[k] = v
		}
	}
	params.Context = ctx

	pi, err := g.client.PaymentIntents.New(params)
	if err != nil {
		return nil, g.mapStripeError(err)
	}
	return &GatewayOrder{
		GatewayOrderID: pi.ID,
		AmountMinor:    pi.Amount,
		Currency:       string(pi.Currency),
	}, nil
}

func (g *StripeGateway) VerifyPayment(ctx context.Context, req *VerifyPaymentRequest) error {
	if req.GatewayOrderID == "" {
		return fmt.Errorf("%w: missing payment intent id", ErrVerificationFailed)
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := g.client.PaymentIntents.Get(req.GatewayOrderID, params)
	if err != nil {
		return g.mapStripeError(err)
	}
	if pi.Status != stripe.PaymentIntentStatusSucceeded {
		return fmt.Errorf("%w: intent status is %s", ErrVerificationFailed, pi.Status)
	}
	return nil
}

func (g *StripeGateway) Refund(ctx context.Context, paymentID string, amountMinor int64, notes map[string]string) (string, error) {
	if amountMinor <= 0 {
		return "", ErrInvalidAmount
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(paymentID),
		Amount:        stripe.Int64(amountMinor),
	}
	if len(notes) > 0 {
		params.Metadata = make(map[string]string, len(notes))
		for k, v := range notes {
			params.Metadata[k] = v
		}
	}
	params.Context = ctx

	ref, err := g.client.Refunds.New(params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrRefundFailed, g.mapStripeError(err))
	}
	return ref.ID, nil
}

// mapStripeError translates stripe-go errors into domain errors so the
// library never leaks past this file.
func (g *StripeGateway) mapStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Code {
		case stripe.ErrorCodeCardDeclined:
			return fmt.Errorf("%w: card was declined (%s)", ErrPaymentFailed, stripeErr.Msg)
		case stripe.ErrorCodeExpiredCard:
			return fmt.Errorf("%w: card has expired", ErrPaymentFailed)
		case stripe.ErrorCodeBalanceInsufficient:
			return fmt.Errorf("%w: insufficient funds", ErrPaymentFailed)
		}
		if stripeErr.HTTPStatusCode >= http.StatusInternalServerError {
			return ErrProviderDown
		}
	}
	return fmt.Errorf("gateway error: %w", err)
}
