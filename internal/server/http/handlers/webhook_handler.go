package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/polkiloo/bookshop/internal/domain/model"
	"github.com/polkiloo/bookshop/internal/server/http/dto"
)

const (
	headerSerial    = "Wechatpay-Serial"
	headerNonce     = "Wechatpay-Nonce"
	headerTimestamp = "Wechatpay-Timestamp"
	headerSignature = "Wechatpay-Signature"

	ackSuccess = "SUCCESS"
	ackFail    = "FAIL"
)

// WebhookHandler receives payment and refund notifications from the gateway.
// Once a notification is authentic the gateway always gets a success ack.
type WebhookHandler struct {
	facade WebhookFacade
}

// NewWebhookHandler constructs WebhookHandler.
func NewWebhookHandler(facade WebhookFacade) *WebhookHandler {
	return &WebhookHandler{facade: facade}
}

// Payment handles POST /pay/notify.
func (h *WebhookHandler) Payment(c *gin.Context) {
	h.handle(c, h.facade.HandlePayment)
}

// Refund handles POST /pay/refund/notify.
func (h *WebhookHandler) Refund(c *gin.Context) {
	h.handle(c, h.facade.HandleRefund)
}

func (h *WebhookHandler) handle(c *gin.Context, fn func(context.Context, model.NotificationHeaders, []byte) error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, dto.WebhookAck{Code: ackFail, Message: "read body failed"})
		return
	}
	headers := model.NotificationHeaders{
		Serial:    c.GetHeader(headerSerial),
		Nonce:     c.GetHeader(headerNonce),
		Timestamp: c.GetHeader(headerTimestamp),
		Signature: c.GetHeader(headerSignature),
	}
	if err := fn(c.Request.Context(), headers, body); err != nil {
		c.JSON(http.StatusInternalServerError, dto.WebhookAck{Code: ackFail, Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, dto.WebhookAck{Code: ackSuccess, Message: "OK"})
}
