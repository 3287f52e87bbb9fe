package payment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/KoushikPanda1729/billing-service/internal/order"
	"github.com/KoushikPanda1729/billing-service/internal/wallet"
	"github.com/KoushikPanda1729/billing-service/pkg/logging"
)

// WalletLedger is the slice of the wallet service payments need.
type WalletLedger interface {
	RefundToWallet(ctx context.Context, userID string, amount float64, orderID string) (*wallet.Transaction, error)
	CompleteRedemption(ctx context.Context, orderID string) error
	RollbackRedemption(ctx context.Context, userID, orderID string) error
	AddCashback(ctx context.Context, userID, orderID string, orderAmount, walletAmountUsed float64) (*wallet.Transaction, error)
}

// EventPublisher emits order-lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, key string, value interface{}) error
}

// Service drives gateway payments and refunds for settled orders.
// Singleflight collapses concurrent initiate/verify calls for the same
// order into one gateway round trip.
type Service struct {
	orders    order.Store
	wallet    WalletLedger
	gateway   Gateway
	publisher EventPublisher
	logger    *logging.Logger
	currency  string
	retry     RetryPolicy

	sf singleflight.Group
}

func NewService(orders order.Store, walletLedger WalletLedger, gateway Gateway,
	publisher EventPublisher, logger *logging.Logger, currency string) *Service {
	return &Service{
		orders:    orders,
		wallet:    walletLedger,
		gateway:   gateway,
		publisher: publisher,
		logger:    logger,
		currency:  currency,
		retry:     DefaultRetryPolicy(),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// InitiatePayment opens a gateway payment for the order's payable amount.
func (s *Service) InitiatePayment(ctx context.Context, orderID string) (*GatewayOrder, error) {
	v, err, _ := s.sf.Do("initiate_"+orderID, func() (interface{}, error) {
		return s.initiatePayment(ctx, orderID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*GatewayOrder), nil
}

func (s *Service) initiatePayment(ctx context.Context, orderID string) (*GatewayOrder, error) {
	o, err := s.orders.ByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus == order.PaymentPaid {
		return nil, ErrAlreadyPaid
	}
	if o.FinalTotal <= 0 {
		return nil, ErrNotPayable
	}

	var gw *GatewayOrder
	err = s.retry.Do(ctx, func() error {
		var gwErr error
		gw, gwErr = s.gateway.CreateOrder(ctx, &CreateOrderRequest{
			OrderID:     o.ID,
			AmountMinor: ToMinor(o.FinalTotal),
			Currency:    s.currency,
			Notes: map[string]string{
				"order_id":  o.ID,
				"tenant_id": o.TenantID,
			},
		})
		return gwErr
	})
	if err != nil {
		return nil, err
	}

	if err := s.orders.SetGatewayOrder(ctx, o.ID, gw.GatewayOrderID); err != nil {
		return nil, err
	}

	s.logger.Info(logging.Fields{
		OrderID: o.ID,
		Step:    "payment_initiated",
		Amount:  fmt.Sprintf("%.2f", o.FinalTotal),
	})
	return gw, nil
}

// VerifyPayment settles the order from the client's proof of payment.
//
// Success marks the order paid, finalizes the pending wallet redemption,
// grants cashback, and publishes order-payment-completed. A failed proof
// marks the payment failed, returns any redeemed credits, and publishes
// order-payment-failed.
func (s *Service) VerifyPayment(ctx context.Context, req *VerifyPaymentRequest) (*order.Order, error) {
	v, err, _ := s.sf.Do("verify_"+req.OrderID, func() (interface{}, error) {
		return s.verifyPayment(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*order.Order), nil
}

func (s *Service) verifyPayment(ctx context.Context, req *VerifyPaymentRequest) (*order.Order, error) {
	o, err := s.orders.ByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	// A replayed verification of a paid order is a success, not an error.
	if o.PaymentStatus == order.PaymentPaid {
		return o, nil
	}

	if err := s.gateway.VerifyPayment(ctx, req); err != nil {
		if errors.Is(err, ErrVerificationFailed) || errors.Is(err, ErrPaymentFailed) {
			s.failPayment(ctx, o)
		}
		return nil, err
	}

	if err := s.orders.UpdatePaymentStatus(ctx, o.ID, order.PaymentPaid, req.GatewayPaymentID); err != nil {
		return nil, err
	}
	o.PaymentStatus = order.PaymentPaid
	o.PaymentID = req.GatewayPaymentID

	// Post-commit steps are best-effort; the payment itself is settled.
	if o.WalletCreditsApplied > 0 {
		if err := s.wallet.CompleteRedemption(ctx, o.ID); err != nil {
			s.logger.Error(logging.Fields{OrderID: o.ID, Step: "complete_redemption"}, err)
		}
	}
	if _, err := s.wallet.AddCashback(ctx, o.CustomerID, o.ID, o.Total, o.WalletCreditsApplied); err != nil {
		s.logger.Error(logging.Fields{OrderID: o.ID, Step: "add_cashback"}, err)
	}
	s.publish(ctx, order.EventPaymentCompleted, o)

	s.logger.Info(logging.Fields{
		OrderID: o.ID,
		UserID:  o.CustomerID,
		Step:    "payment_verified",
		Amount:  fmt.Sprintf("%.2f", o.FinalTotal),
	})
	return o, nil
}

// ConfirmPayment settles an order from a trusted gateway webhook, where
// the gateway itself already vouched for the payment. Idempotent on paid
// orders.
func (s *Service) ConfirmPayment(ctx context.Context, orderID, gatewayPaymentID string) (*order.Order, error) {
	v, err, _ := s.sf.Do("verify_"+orderID, func() (interface{}, error) {
		o, err := s.orders.ByID(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if o.PaymentStatus == order.PaymentPaid {
			return o, nil
		}
		if err := s.orders.UpdatePaymentStatus(ctx, o.ID, order.PaymentPaid, gatewayPaymentID); err != nil {
			return nil, err
		}
		o.PaymentStatus = order.PaymentPaid
		o.PaymentID = gatewayPaymentID

		if o.WalletCreditsApplied > 0 {
			if err := s.wallet.CompleteRedemption(ctx, o.ID); err != nil {
				s.logger.Error(logging.Fields{OrderID: o.ID, Step: "complete_redemption"}, err)
			}
		}
		if _, err := s.wallet.AddCashback(ctx, o.CustomerID, o.ID, o.Total, o.WalletCreditsApplied); err != nil {
			s.logger.Error(logging.Fields{OrderID: o.ID, Step: "add_cashback"}, err)
		}
		s.publish(ctx, order.EventPaymentCompleted, o)
		return o, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*order.Order), nil
}

// MarkPaymentFailed is the public entry used by the reconciliation worker
// for orders whose payment never completed.
func (s *Service) MarkPaymentFailed(ctx context.Context, orderID string) error {
	o, err := s.orders.ByID(ctx, orderID)
	if err != nil {
		return err
	}
	if o.PaymentStatus != order.PaymentPending {
		return nil
	}
	s.failPayment(ctx, o)
	return nil
}

func (s *Service) failPayment(ctx context.Context, o *order.Order) {
	if err := s.orders.UpdatePaymentStatus(ctx, o.ID, order.PaymentFailed, ""); err != nil {
		s.logger.Error(logging.Fields{OrderID: o.ID, Step: "mark_payment_failed"}, err)
		return
	}
	o.PaymentStatus = order.PaymentFailed
	if o.WalletCreditsApplied > 0 {
		if err := s.wallet.RollbackRedemption(ctx, o.CustomerID, o.ID); err != nil {
			s.logger.Error(logging.Fields{OrderID: o.ID, Step: "rollback_redemption"}, err)
		}
	}
	s.publish(ctx, order.EventPaymentFailed, o)
}

// RefundOrder splits a refund across wallet and gateway proportionally to
// how the order was paid, enforcing the cumulative cap.
//
// The whole operation runs with the order row locked, so concurrent refunds
// of one order queue up and each sees the books as the previous one left
// them. The wallet leg runs first and is idempotent on (order, amount); the
// gateway leg runs second. A gateway failure rolls the bookkeeping back, so
// a retry recomputes the identical split and the wallet leg deduplicates
// itself.
func (s *Service) RefundOrder(ctx context.Context, req *RefundRequest) (*RefundResult, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}
	amount := round2(req.Amount)

	var result *RefundResult
	var refunded *order.Order
	err := s.orders.WithRefundLock(ctx, req.OrderID, func(o *order.Order) error {
		if o.PaymentStatus != order.PaymentPaid {
			return fmt.Errorf("%w: payment status is %s", ErrNotRefundable, o.PaymentStatus)
		}

		// Amounts carry two decimals throughout, so the cap is exact.
		remaining := round2(o.Total - o.TotalRefunded())
		if amount > remaining {
			return fmt.Errorf("%w: refund %.2f exceeds remaining refundable %.2f", ErrRefundFailed, amount, remaining)
		}

		// Proportional split. The rounding remainder rides on the gateway
		// leg so the two parts always sum to the requested amount.
		var walletRefund, gatewayRefund float64
		switch {
		case o.FinalTotal == 0:
			walletRefund = amount
		case o.WalletCreditsApplied > 0:
			walletRefund = round2(amount * o.WalletCreditsApplied / o.Total)
			gatewayRefund = round2(amount - walletRefund)
		default:
			gatewayRefund = amount
		}

		result = &RefundResult{
			OrderID:       o.ID,
			Amount:        amount,
			WalletRefund:  walletRefund,
			GatewayRefund: gatewayRefund,
		}

		if walletRefund > 0 {
			if _, err := s.wallet.RefundToWallet(ctx, o.CustomerID, walletRefund, o.ID); err != nil {
				return err
			}
		}

		if gatewayRefund > 0 {
			if o.PaymentID == "" {
				return fmt.Errorf("%w: order has no gateway payment to refund against", ErrRefundFailed)
			}
			var refundID string
			err := s.retry.Do(ctx, func() error {
				var gwErr error
				refundID, gwErr = s.gateway.Refund(ctx, o.PaymentID, ToMinor(gatewayRefund), map[string]string{
					"order_id": o.ID,
					"reason":   req.Reason,
				})
				return gwErr
			})
			if err != nil {
				// The wallet leg already landed but is idempotent; the
				// cumulative total stays unchanged so a retry re-runs the
				// same split.
				s.logger.Error(logging.Fields{
					OrderID: o.ID,
					Step:    "gateway_refund",
					Amount:  fmt.Sprintf("%.2f", gatewayRefund),
				}, err)
				return err
			}
			result.GatewayRefundID = refundID
		}

		if o.RefundDetails == nil {
			o.RefundDetails = &order.RefundDetails{}
		}
		o.RefundDetails.Refunds = append(o.RefundDetails.Refunds, order.RefundEntry{
			Amount:          amount,
			WalletAmount:    walletRefund,
			GatewayAmount:   gatewayRefund,
			GatewayRefundID: result.GatewayRefundID,
			Reason:          req.Reason,
			CreatedAt:       time.Now().UTC(),
		})
		o.RefundDetails.TotalRefunded = round2(o.RefundDetails.TotalRefunded + amount)
		result.TotalRefunded = o.RefundDetails.TotalRefunded
		result.FullRefund = round2(o.Total-o.RefundDetails.TotalRefunded) <= 0
		if result.FullRefund {
			o.PaymentStatus = order.PaymentRefunded
		}
		refunded = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, order.EventRefunded, refunded)
	s.logger.Info(logging.Fields{
		OrderID: refunded.ID,
		UserID:  refunded.CustomerID,
		Step:    "refund_processed",
		Amount:  fmt.Sprintf("%.2f", result.Amount),
		Message: fmt.Sprintf("wallet %.2f, gateway %.2f", result.WalletRefund, result.GatewayRefund),
	})
	return result, nil
}

func (s *Service) publish(ctx context.Context, eventName string, o *order.Order) {
	err := s.publisher.Publish(ctx, o.ID, order.Event{
		Event:         eventName,
		OrderID:       o.ID,
		CustomerID:    o.CustomerID,
		TenantID:      o.TenantID,
		Total:         o.Total,
		FinalTotal:    o.FinalTotal,
		PaymentMode:   o.PaymentMode,
		PaymentStatus: o.PaymentStatus,
		Timestamp:     time.Now().UTC(),
	})
	if err != nil {
		s.logger.Error(logging.Fields{OrderID: o.ID, Step: "publish_" + eventName}, err)
	}
}
