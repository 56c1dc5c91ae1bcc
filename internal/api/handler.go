package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"storefront/internal/models"
	"storefront/internal/payments"
	"storefront/internal/service"
	"storefront/internal/util"
)

// checkoutTag is the order tag the checkout session stashes the cart payload
// in; the gateway echoes it back on the webhook so the webhook path can
// confirm without a client round trip.
const checkoutTag = "checkout_payload"

// paymentSeenTTL covers the gateway's webhook retry window
const paymentSeenTTL = 24 * time.Hour

// PaymentDeduper short-circuits webhook retries for a payment id already
// processed. The marker must be written only after the order is durable:
// a PaymentSeen hit is an ack without re-processing, so a marker for an
// unconfirmed order would swallow the provider's retries.
type PaymentDeduper interface {
	PaymentSeen(ctx context.Context, paymentID string) (bool, error)
	MarkPaymentSeen(ctx context.Context, paymentID string, ttl time.Duration) (bool, error)
}

// Handler contains HTTP handlers
type Handler struct {
	engine        *service.ReconciliationEngine
	wallet        *service.WalletLedger
	verifier      *payments.Verifier
	gateway       *payments.GatewayClient
	deduper       PaymentDeduper
	walletSecret  string
	verifyPayment bool
	logger        *zap.Logger
}

// NewHandler creates a new HTTP handler. gateway and deduper are optional.
func NewHandler(
	engine *service.ReconciliationEngine,
	wallet *service.WalletLedger,
	verifier *payments.Verifier,
	gateway *payments.GatewayClient,
	deduper PaymentDeduper,
	walletSecret string,
	verifyPayment bool,
) *Handler {
	return &Handler{
		engine:        engine,
		wallet:        wallet,
		verifier:      verifier,
		gateway:       gateway,
		deduper:       deduper,
		walletSecret:  walletSecret,
		verifyPayment: verifyPayment,
		logger:        util.GetLogger(),
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.POST("/webhooks/payment/:provider", h.paymentWebhook)
	router.POST("/webhooks/wallet", h.walletWebhook)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/orders/confirm", h.confirmOrder)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/status", h.updateOrderStatus)
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "time": time.Now().Unix()})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready", "time": time.Now().Unix()})
}

// paymentWebhook handles gateway payment webhooks. The provider's retry SLA
// requires a fast 2xx, so duplicates and unknown event types are acked with
// 200 {received:true} without further processing.
func (h *Handler) paymentWebhook(c *gin.Context) {
	provider := payments.Provider(c.Param("provider"))

	// signature is computed over the exact raw bytes received
	rawBody, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if !h.verifier.Verify(provider, rawBody, c.Request.Header) {
		util.WebhooksRejectedTotal.WithLabelValues(string(provider), "signature").Inc()
		// no detail about why: don't help an attacker probe the scheme
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var webhook models.PaymentWebhook
	if err := json.Unmarshal(rawBody, &webhook); err != nil {
		util.WebhooksRejectedTotal.WithLabelValues(string(provider), "malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed payload"})
		return
	}

	eventType, err := models.ParseWebhookEventType(webhook.Type)
	if err != nil {
		h.logger.Info("Ignoring unknown webhook type",
			zap.String("provider", string(provider)),
			zap.String("type", webhook.Type))
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	switch eventType {
	case models.WebhookPaymentSuccess:
		h.handlePaymentSuccess(c, provider, &webhook)

	case models.WebhookPaymentFailed:
		h.logger.Info("Payment failed webhook received",
			zap.String("provider", string(provider)),
			zap.String("order_id", webhook.Data.Order.OrderID),
			zap.String("payment_id", webhook.Data.Payment.PaymentID))
		c.JSON(http.StatusOK, gin.H{"received": true})

	case models.WebhookPaymentUserDropped:
		h.logger.Info("User dropped checkout",
			zap.String("provider", string(provider)),
			zap.String("order_id", webhook.Data.Order.OrderID))
		c.JSON(http.StatusOK, gin.H{"received": true})
	}
}

func (h *Handler) handlePaymentSuccess(c *gin.Context, provider payments.Provider, webhook *models.PaymentWebhook) {
	gatewayOrderID := webhook.Data.Order.OrderID
	if gatewayOrderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing order id"})
		return
	}

	// cheap retry short-circuit; a cache outage just falls through to the
	// engine, which is idempotent anyway
	paymentID := webhook.Data.Payment.PaymentID
	if h.deduper != nil && paymentID != "" {
		seen, err := h.deduper.PaymentSeen(c.Request.Context(), paymentID)
		if err == nil && seen {
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
	}

	payload, ok := webhook.Data.Order.OrderTags[checkoutTag]
	if !ok || payload == "" {
		// nothing to build the order from; the client backup call carries
		// the cart and will confirm under the same key
		h.logger.Warn("Success webhook without checkout payload, relying on backup path",
			zap.String("provider", string(provider)),
			zap.String("order_id", gatewayOrderID))
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	var req service.ConfirmOrderRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		util.WebhooksRejectedTotal.WithLabelValues(string(provider), "malformed").Inc()
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed checkout payload"})
		return
	}
	// the gateway-issued id is the idempotency key on both paths
	req.IdempotencyKey = gatewayOrderID
	req.PaymentMethod = models.PaymentMethodOnline

	if h.verifyPayment && h.gateway != nil {
		paid, err := h.gateway.IsOrderPaid(c.Request.Context(), gatewayOrderID)
		if err != nil {
			h.logger.Warn("Gateway payment verification unavailable, trusting signed webhook",
				zap.String("order_id", gatewayOrderID),
				zap.Error(err))
		} else if !paid {
			h.logger.Warn("Signed success webhook for unpaid order, ignoring",
				zap.String("order_id", gatewayOrderID))
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
	}

	_, _, err := h.engine.ConfirmOrder(c.Request.Context(), &req, service.SourceWebhook)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Msg})
			return
		}
		// storage failure: 500 so the provider retries; nothing was marked
		// seen, so the retry reaches the idempotent engine again
		h.logger.Error("Webhook confirmation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	// arm the short-circuit only now that the order is durable
	if h.deduper != nil && paymentID != "" {
		if _, err := h.deduper.MarkPaymentSeen(c.Request.Context(), paymentID, paymentSeenTTL); err != nil {
			h.logger.Warn("Failed to mark payment processed",
				zap.String("payment_id", paymentID),
				zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// confirmOrder is the client-side backup confirmation path. It may race the
// webhook for the same idempotency key; both converge on one order.
func (h *Handler) confirmOrder(c *gin.Context) {
	var req service.ConfirmOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	order, created, err := h.engine.ConfirmOrder(c.Request.Context(), &req, service.SourceClient)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Msg})
			return
		}
		h.logger.Error("Order confirmation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to confirm order"})
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, order)
}

// walletWebhook credits an admin balance. Guarded by a pre-shared secret,
// checked in constant time before any lookup.
func (h *Handler) walletWebhook(c *gin.Context) {
	secret := c.GetHeader("x-wallet-webhook-secret")
	if h.walletSecret == "" ||
		subtle.ConstantTimeCompare([]byte(secret), []byte(h.walletSecret)) != 1 {
		util.WebhooksRejectedTotal.WithLabelValues("wallet", "secret").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var req struct {
		OrderID string `json:"orderId" binding:"required"`
		AdminID string `json:"adminId" binding:"required"`
		Amount  int64  `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	_, _, err := h.wallet.Credit(c.Request.Context(), req.OrderID, req.AdminID, req.Amount)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Msg})
			return
		}
		h.logger.Error("Wallet credit failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"credited": true})
}

// getOrder handles get order by ID
func (h *Handler) getOrder(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	order, items, err := h.engine.GetOrder(c.Request.Context(), orderID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"order": order, "items": items})
}

// updateOrderStatus moves an order along its status chain
func (h *Handler) updateOrderStatus(c *gin.Context) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid order id"})
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	order, err := h.engine.TransitionStatus(c.Request.Context(), orderID, req.Status)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Msg})
			return
		}
		c.JSON(http.StatusNotFound, gin.H{"error": "order not found"})
		return
	}

	c.JSON(http.StatusOK, order)
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
