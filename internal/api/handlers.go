package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/KoushikPanda1729/billing-service/internal/coupon"
	"github.com/KoushikPanda1729/billing-service/internal/idempotency"
	"github.com/KoushikPanda1729/billing-service/internal/order"
	"github.com/KoushikPanda1729/billing-service/internal/payment"
	"github.com/KoushikPanda1729/billing-service/internal/wallet"
	"github.com/KoushikPanda1729/billing-service/pkg/logging"
)

// Handler wires the HTTP surface to the domain services.
type Handler struct {
	orders   *order.Service
	payments *payment.Service
	wallet   *wallet.Service
	coupons  coupon.Store
	logger   *logging.Logger

	razorpayWebhookSecret string
}

func NewHandler(orders *order.Service, payments *payment.Service, walletSvc *wallet.Service,
	coupons coupon.Store, logger *logging.Logger, razorpayWebhookSecret string) *Handler {
	return &Handler{
		orders:                orders,
		payments:              payments,
		wallet:                walletSvc,
		coupons:               coupons,
		logger:                logger,
		razorpayWebhookSecret: razorpayWebhookSecret,
	}
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

func internalError(c *fiber.Ctx, logger *logging.Logger, step string, err error) error {
	logger.Error(logging.Fields{Step: step}, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal error"})
}

// --- orders ---

func (h *Handler) CreateOrder(c *fiber.Ctx) error {
	userID, role, tenant := caller(c)

	var req order.CreateOrderRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	// Tenant staff always order within their own tenant.
	if role == "manager" && tenant != "" {
		req.TenantID = tenant
	}

	idemKey, idemEndpoint, _ := idempotency.FromContext(c)

	o, err := h.orders.CreateOrder(c.Context(), userID, &req, idemKey, idemEndpoint)
	if err != nil {
		var vErr *order.ValidationError
		switch {
		case errors.As(err, &vErr):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error":           "order validation failed",
				"priceValidation": vErr.Result,
			})
		case errors.Is(err, idempotency.ErrDuplicateKey):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "request with this idempotency key is already being processed",
			})
		case errors.Is(err, coupon.ErrNotFound):
			return badRequest(c, err.Error())
		default:
			return internalError(c, h.logger, "create_order", err)
		}
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"order": o})
}

func (h *Handler) GetOrder(c *fiber.Ctx) error {
	userID, role, tenant := caller(c)

	o, err := h.orders.GetOrder(c.Context(), c.Params("id"), userID, role, tenant)
	if errors.Is(err, order.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order not found"})
	}
	if errors.Is(err, order.ErrForbidden) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not your order"})
	}
	if err != nil {
		return internalError(c, h.logger, "get_order", err)
	}
	return c.JSON(fiber.Map{"order": o})
}

func (h *Handler) ListOrders(c *fiber.Ctx) error {
	userID, role, tenant := caller(c)
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	orders, err := h.orders.ListOrders(c.Context(), userID, role, tenant, limit, offset)
	if err != nil {
		return internalError(c, h.logger, "list_orders", err)
	}
	if orders == nil {
		orders = []order.Order{}
	}
	return c.JSON(fiber.Map{"orders": orders})
}

func (h *Handler) CancelOrder(c *fiber.Ctx) error {
	userID, _, _ := caller(c)

	o, err := h.orders.CancelOrder(c.Context(), c.Params("id"), userID)
	switch {
	case errors.Is(err, order.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order not found"})
	case errors.Is(err, order.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not your order"})
	case errors.Is(err, order.ErrNotCancellable):
		return badRequest(c, err.Error())
	case err != nil:
		return internalError(c, h.logger, "cancel_order", err)
	}
	return c.JSON(fiber.Map{"order": o})
}

func (h *Handler) ListRefunds(c *fiber.Ctx) error {
	userID, role, tenant := caller(c)

	o, err := h.orders.GetOrder(c.Context(), c.Params("id"), userID, role, tenant)
	if errors.Is(err, order.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order not found"})
	}
	if errors.Is(err, order.ErrForbidden) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not your order"})
	}
	if err != nil {
		return internalError(c, h.logger, "list_refunds", err)
	}

	details := o.RefundDetails
	if details == nil {
		details = &order.RefundDetails{Refunds: []order.RefundEntry{}}
	}
	return c.JSON(fiber.Map{
		"orderId":       o.ID,
		"totalRefunded": details.TotalRefunded,
		"refunds":       details.Refunds,
	})
}

func (h *Handler) UpdateOrderStatus(c *fiber.Ctx) error {
	_, role, tenant := caller(c)

	var body struct {
		Status order.Status `json:"status"`
	}
	if err := c.BodyParser(&body); err != nil || body.Status == "" {
		return badRequest(c, "status is required")
	}

	o, err := h.orders.UpdateStatus(c.Context(), c.Params("id"), body.Status, role, tenant)
	if errors.Is(err, order.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order not found"})
	}
	if errors.Is(err, order.ErrForbidden) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not your tenant's order"})
	}
	if err != nil {
		return internalError(c, h.logger, "update_order_status", err)
	}
	return c.JSON(fiber.Map{"order": o})
}

func (h *Handler) DeleteOrder(c *fiber.Ctx) error {
	_, role, tenant := caller(c)

	err := h.orders.DeleteOrder(c.Context(), c.Params("id"), role, tenant)
	switch {
	case errors.Is(err, order.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order not found"})
	case errors.Is(err, order.ErrForbidden):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "not your tenant's order"})
	case err != nil:
		return internalError(c, h.logger, "delete_order", err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// --- payments ---

func (h *Handler) InitiatePayment(c *fiber.Ctx) error {
	var body struct {
		OrderID string `json:"orderId"`
	}
	if err := c.BodyParser(&body); err != nil || body.OrderID == "" {
		return badRequest(c, "orderId is required")
	}

	gw, err := h.payments.InitiatePayment(c.Context(), body.OrderID)
	switch {
	case errors.Is(err, order.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order not found"})
	case errors.Is(err, payment.ErrAlreadyPaid), errors.Is(err, payment.ErrNotPayable):
		return badRequest(c, err.Error())
	case err != nil:
		return internalError(c, h.logger, "initiate_payment", err)
	}
	return c.JSON(fiber.Map{"payment": gw})
}

func (h *Handler) VerifyPayment(c *fiber.Ctx) error {
	var req payment.VerifyPaymentRequest
	if err := c.BodyParser(&req); err != nil || req.OrderID == "" {
		return badRequest(c, "orderId is required")
	}

	o, err := h.payments.VerifyPayment(c.Context(), &req)
	switch {
	case errors.Is(err, order.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order not found"})
	case errors.Is(err, payment.ErrVerificationFailed), errors.Is(err, payment.ErrPaymentFailed):
		return badRequest(c, err.Error())
	case err != nil:
		return internalError(c, h.logger, "verify_payment", err)
	}
	return c.JSON(fiber.Map{"order": o})
}

func (h *Handler) RefundOrder(c *fiber.Ctx) error {
	var req payment.RefundRequest
	if err := c.BodyParser(&req); err != nil || req.OrderID == "" {
		return badRequest(c, "orderId is required")
	}

	result, err := h.payments.RefundOrder(c.Context(), &req)
	switch {
	case errors.Is(err, order.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "order not found"})
	case errors.Is(err, payment.ErrInvalidAmount),
		errors.Is(err, payment.ErrNotRefundable),
		errors.Is(err, payment.ErrRefundFailed):
		return badRequest(c, err.Error())
	case err != nil:
		return internalError(c, h.logger, "refund_order", err)
	}
	return c.JSON(fiber.Map{"refund": result})
}

// --- wallet ---

func (h *Handler) WalletBalance(c *fiber.Ctx) error {
	userID, _, _ := caller(c)

	w, err := h.wallet.Balance(c.Context(), userID)
	if err != nil {
		return internalError(c, h.logger, "wallet_balance", err)
	}
	return c.JSON(fiber.Map{"wallet": w})
}

func (h *Handler) WalletTransactions(c *fiber.Ctx) error {
	userID, _, _ := caller(c)
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	offset, _ := strconv.Atoi(c.Query("offset", "0"))

	txns, err := h.wallet.Transactions(c.Context(), userID, limit, offset)
	if err != nil {
		return internalError(c, h.logger, "wallet_transactions", err)
	}
	if txns == nil {
		txns = []wallet.Transaction{}
	}
	return c.JSON(fiber.Map{"transactions": txns})
}

func (h *Handler) CashbackPreview(c *fiber.Ctx) error {
	amount, err := strconv.ParseFloat(c.Query("amount"), 64)
	if err != nil || amount <= 0 {
		return badRequest(c, "amount query parameter is required")
	}
	credits, _ := strconv.ParseFloat(c.Query("walletCredits", "0"), 64)

	return c.JSON(fiber.Map{"cashback": h.wallet.CalculateCashback(amount, credits)})
}

// --- coupons ---

func (h *Handler) CreateCoupon(c *fiber.Ctx) error {
	_, role, tenant := caller(c)

	var cpn coupon.Coupon
	if err := c.BodyParser(&cpn); err != nil || cpn.Code == "" || cpn.Discount <= 0 {
		return badRequest(c, "code and a positive discount are required")
	}
	if role == "manager" && tenant != "" {
		cpn.TenantID = tenant
	}
	if cpn.TenantID == "" {
		return badRequest(c, "tenantId is required")
	}

	if err := h.coupons.Create(c.Context(), &cpn); err != nil {
		if errors.Is(err, coupon.ErrDuplicateCode) {
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
		}
		return internalError(c, h.logger, "create_coupon", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"coupon": cpn})
}

func (h *Handler) VerifyCoupon(c *fiber.Ctx) error {
	var body struct {
		Code     string `json:"code"`
		TenantID string `json:"tenantId"`
	}
	if err := c.BodyParser(&body); err != nil || body.Code == "" || body.TenantID == "" {
		return badRequest(c, "code and tenantId are required")
	}

	cpn, err := h.coupons.ByCode(c.Context(), body.Code, body.TenantID)
	if errors.Is(err, coupon.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"valid": false, "error": "coupon not found"})
	}
	if err != nil {
		return internalError(c, h.logger, "verify_coupon", err)
	}

	if cpn.Expired(timeNow()) {
		return c.JSON(fiber.Map{"valid": false, "error": "coupon has expired"})
	}
	return c.JSON(fiber.Map{"valid": true, "discount": cpn.Discount})
}
