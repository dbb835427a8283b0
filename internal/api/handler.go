package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"payment-service/internal/ratelimit"
	"payment-service/internal/service"
	"payment-service/internal/store"
	"payment-service/internal/util"
	"payment-service/internal/webhook"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	orderService   *service.OrderService
	webhookService *service.WebhookService
	fulfillment    *service.FulfillmentService
	binancePay     *webhook.BinancePayVerifier
	walletPay      *webhook.WalletPayVerifier
	limiter        *ratelimit.Limiter
	adminToken     string
}

// NewHandler creates a new HTTP handler
func NewHandler(
	orderService *service.OrderService,
	webhookService *service.WebhookService,
	fulfillment *service.FulfillmentService,
	binancePay *webhook.BinancePayVerifier,
	walletPay *webhook.WalletPayVerifier,
	limiter *ratelimit.Limiter,
	adminToken string,
) *Handler {
	return &Handler{
		orderService:   orderService,
		webhookService: webhookService,
		fulfillment:    fulfillment,
		binancePay:     binancePay,
		walletPay:      walletPay,
		limiter:        limiter,
		adminToken:     adminToken,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider callbacks authenticate themselves by signature.
	router.POST("/webhook/binancepay", h.binancePayWebhook)
	router.POST("/webhook/walletpay", h.walletPayWebhook)

	v1 := router.Group("/api/v1")
	v1.Use(userAuth())
	{
		v1.POST("/checkout/crypto", h.limiter.Middleware(), h.createCheckout)
		v1.GET("/crypto/orders", h.listOrders)
		v1.GET("/crypto/order-info", h.getOrderInfo)
		v1.GET("/crypto/check-payment", h.limiter.Middleware(), h.checkPayment)
	}

	admin := router.Group("/api/v1/admin")
	admin.Use(h.adminAuth())
	{
		admin.POST("/orders/:id/complete", h.adminCompleteOrder)
		admin.POST("/orders/:id/expire", h.adminExpireOrder)
		admin.GET("/payments/:provider/:payment_id", h.adminGetPayment)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// CreateCheckoutRequest is the body of POST /checkout/crypto.
type CreateCheckoutRequest struct {
	Target string `json:"target" binding:"required"`
}

// createCheckout opens a crypto order with a disambiguated amount
func (h *Handler) createCheckout(c *gin.Context) {
	var req CreateCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	resp, err := h.orderService.CreateCheckout(c.Request.Context(), currentUserID(c), req.Target)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Failed to create checkout",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

// listOrders returns the caller's order history
func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orderService.ListOrders(c.Request.Context(), currentUserID(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list orders"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"orders": orders,
		"count":  len(orders),
	})
}

// getOrderInfo returns the amount, receiving addresses and deadline of an
// order owned by the caller
func (h *Handler) getOrderInfo(c *gin.Context) {
	orderID := c.Query("order")
	if orderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing order parameter"})
		return
	}

	info, err := h.orderService.GetOrderInfo(c.Request.Context(), currentUserID(c), orderID)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load order"})
		return
	}

	c.JSON(http.StatusOK, info)
}

// checkPayment triggers one reconciliation pass for an order owned by the
// caller
func (h *Handler) checkPayment(c *gin.Context) {
	orderID := c.Query("order")
	if orderID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing order parameter"})
		return
	}

	result, err := h.orderService.CheckPayment(c.Request.Context(), currentUserID(c), orderID)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check payment"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// AdminCompleteRequest carries the explicit transaction reference an
// administrator confirms a payment with.
type AdminCompleteRequest struct {
	TxHash string `json:"tx_hash" binding:"required"`
	Chain  string `json:"chain" binding:"required"`
}

func (h *Handler) adminCompleteOrder(c *gin.Context) {
	var req AdminCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	result, err := h.orderService.AdminCompleteOrder(c.Request.Context(), c.Param("id"), req.TxHash, req.Chain)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
		case errors.Is(err, store.ErrTxHashClaimed):
			c.JSON(http.StatusConflict, gin.H{"error": "Transaction already credited to another order"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to complete order"})
		}
		return
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) adminExpireOrder(c *gin.Context) {
	result, err := h.orderService.AdminExpireOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Order not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to expire order"})
		return
	}

	c.JSON(http.StatusOK, result)
}

// adminGetPayment looks up a ledger row by its provider-side id, for
// manual review of a delivery or a flagged transaction.
func (h *Handler) adminGetPayment(c *gin.Context) {
	tx, err := h.fulfillment.PaymentByProviderID(c.Request.Context(), c.Param("provider"), c.Param("payment_id"))
	if err != nil {
		if errors.Is(err, store.ErrPaymentNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Payment not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load payment"})
		return
	}

	c.JSON(http.StatusOK, tx)
}

// userAuth trusts the user identity injected by the upstream auth proxy.
// Session issuance lives outside this service.
func userAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
		if err != nil || userID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		c.Set("user_id", strconv.FormatInt(userID, 10))
		c.Set("user_id_int", userID)
		c.Next()
	}
}

func currentUserID(c *gin.Context) int64 {
	return c.GetInt64("user_id_int")
}

func (h *Handler) adminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.adminToken == "" || c.GetHeader("X-Admin-Token") != h.adminToken {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}
		c.Next()
	}
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
