package api

import (
	"github.com/gofiber/fiber/v2"

	"github.com/KoushikPanda1729/billing-service/internal/idempotency"
)

// RegisterRoutes mounts the billing API. The gateway webhook is the only
// unauthenticated route; everything else requires a bearer token.
func RegisterRoutes(app *fiber.App, h *Handler, jwtSecret string, idemStore idempotency.Store) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Post("/payments/webhook/razorpay", h.RazorpayWebhook)

	auth := Auth(jwtSecret)

	orders := app.Group("/orders", auth)
	orders.Post("/", idempotency.Middleware(idemStore, true), h.CreateOrder)
	orders.Get("/", h.ListOrders)
	orders.Get("/:id", h.GetOrder)
	orders.Get("/:id/refunds", h.ListRefunds)
	orders.Post("/:id/cancel", h.CancelOrder)
	orders.Patch("/:id/status", RequireRole("manager", "admin"), h.UpdateOrderStatus)
	orders.Delete("/:id", RequireRole("manager", "admin"), h.DeleteOrder)

	payments := app.Group("/payments", auth)
	payments.Post("/initiate", h.InitiatePayment)
	payments.Post("/verify", h.VerifyPayment)
	payments.Post("/refund", RequireRole("manager", "admin"), h.RefundOrder)

	walletGroup := app.Group("/wallet", auth)
	walletGroup.Get("/", h.WalletBalance)
	walletGroup.Get("/transactions", h.WalletTransactions)
	walletGroup.Get("/cashback-preview", h.CashbackPreview)

	coupons := app.Group("/coupons", auth)
	coupons.Post("/", RequireRole("manager", "admin"), h.CreateCoupon)
	coupons.Post("/verify", h.VerifyCoupon)
}
