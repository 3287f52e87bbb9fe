package payment

import "context"

// Gateway abstracts the external money mover. Implementations translate
// their library's errors into the domain errors in types.go so nothing
// provider-specific leaks into the service layer.
type Gateway interface {
	// CreateOrder opens a gateway-side payment for the given amount.
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*GatewayOrder, error)

	// VerifyPayment checks the client's proof of payment. Returns
	// ErrVerificationFailed when the proof does not hold.
	VerifyPayment(ctx context.Context, req *VerifyPaymentRequest) error

	// Refund returns money to the original payment source and reports the
	// gateway's refund identifier.
	Refund(ctx context.Context, paymentID string, amountMinor int64, notes map[string]string) (string, error)
}
