package api

import (
	"io"
	"net/http"

	"payment-service/internal/util"

	"github.com/gin-gonic/gin"
)

// binancePayWebhook ingests Binance Pay notifications. The response is
// always the provider's success envelope once the request authenticates:
// the provider retries indefinitely on anything else, and duplicates are
// the dedup log's problem, not the transport's.
func (h *Handler) binancePayWebhook(c *gin.Context) {
	util.WebhooksReceivedTotal.WithLabelValues("binancepay").Inc()

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable body"})
		return
	}

	if err := h.binancePay.Verify(
		c.GetHeader("BinancePay-Timestamp"),
		c.GetHeader("BinancePay-Nonce"),
		c.GetHeader("BinancePay-Signature"),
		body,
	); err != nil {
		util.WebhooksRejectedTotal.WithLabelValues("binancepay").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"returnCode": "FAIL", "returnMessage": "invalid signature"})
		return
	}

	event, actionable, err := h.binancePay.ParseNotification(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"returnCode": "FAIL", "returnMessage": "malformed notification"})
		return
	}
	if !actionable {
		binancePaySuccess(c)
		return
	}

	if _, err := h.webhookService.HandleConfirmed(c.Request.Context(), event); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"returnCode": "FAIL", "returnMessage": "processing failed"})
		return
	}

	binancePaySuccess(c)
}

func binancePaySuccess(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"returnCode": "SUCCESS", "returnMessage": nil})
}

// walletPayWebhook ingests WalletPay charge events. Signature covers the
// id query parameter, the request id header and the timestamp.
func (h *Handler) walletPayWebhook(c *gin.Context) {
	util.WebhooksReceivedTotal.WithLabelValues("walletpay").Inc()

	id := c.Query("id")
	if err := h.walletPay.Verify(
		c.GetHeader("Webhook-Signature"),
		id,
		c.GetHeader("X-Request-ID"),
	); err != nil {
		util.WebhooksRejectedTotal.WithLabelValues("walletpay").Inc()
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unreadable body"})
		return
	}

	event, actionable, err := h.walletPay.ParseEvent(id, body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed event"})
		return
	}
	if !actionable {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if _, err := h.webhookService.HandleConfirmed(c.Request.Context(), event); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "processing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
