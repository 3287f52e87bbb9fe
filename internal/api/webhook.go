package api

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/KoushikPanda1729/billing-service/pkg/logging"
)

var timeNow = time.Now

type razorpayWebhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
				Notes   struct {
					OrderID string `json:"order_id"`
				} `json:"notes"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// RazorpayWebhook settles orders from gateway callbacks, covering clients
// that paid but never reached the verify endpoint. The body is
// authenticated with the webhook secret before anything is trusted.
func (h *Handler) RazorpayWebhook(c *fiber.Ctx) error {
	if h.razorpayWebhookSecret == "" {
		return c.Status(fiber.StatusNotImplemented).JSON(fiber.Map{"error": "webhook not configured"})
	}

	body := c.Body()
	mac := hmac.New(sha256.New, []byte(h.razorpayWebhookSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(c.Get("x-razorpay-signature"))) {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid webhook signature"})
	}

	var event razorpayWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return badRequest(c, "invalid webhook payload")
	}

	entity := event.Payload.Payment.Entity
	orderID := entity.Notes.OrderID
	if orderID == "" {
		// Not one of ours; acknowledge so the gateway stops retrying.
		return c.SendStatus(fiber.StatusOK)
	}

	switch event.Event {
	case "payment.captured":
		if _, err := h.payments.ConfirmPayment(c.Context(), orderID, entity.ID); err != nil {
			h.logger.Error(logging.Fields{OrderID: orderID, Step: "webhook_capture"}, err)
			return c.SendStatus(fiber.StatusInternalServerError)
		}
	case "payment.failed":
		if err := h.payments.MarkPaymentFailed(c.Context(), orderID); err != nil {
			h.logger.Error(logging.Fields{OrderID: orderID, Step: "webhook_failure"}, err)
			return c.SendStatus(fiber.StatusInternalServerError)
		}
	default:
		h.logger.Info(logging.Fields{Step: "webhook_ignored", Message: event.Event})
	}
	return c.SendStatus(fiber.StatusOK)
}
