package payment

import (
	"fmt"

	"github.com/KoushikPanda1729/billing-service/internal/config"
)

// NewGateway builds the adapter selected by configuration.
func NewGateway(cfg *config.Config) (Gateway, error) {
	switch cfg.PaymentGateway {
	case "razorpay":
		return NewRazorpayGateway(cfg.RazorpayKeyID, cfg.RazorpayKeySecret), nil
	case "stripe":
		return NewStripeGateway(cfg.StripeSecretKey), nil
	default:
		return nil, fmt.Errorf("unsupported payment gateway %q", cfg.PaymentGateway)
	}
}
