package handler

import (
	"marketplace-payments/internal/core/ports"
	"marketplace-payments/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// GatewaySignatureHeader carries the HMAC of the webhook body.
const GatewaySignatureHeader = "X-Gateway-Signature"

// WebhookHandler receives payment confirmations from the card gateway.
type WebhookHandler struct {
	paymentSvc ports.PaymentService
	log        zerolog.Logger
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(paymentSvc ports.PaymentService, log zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{paymentSvc: paymentSvc, log: log}
}

// HandleGatewayWebhook handles POST /api/v1/webhook/gateway. The signature
// is verified over the exact raw bytes received. A non-2xx status makes the
// gateway redeliver, so transient failures (database down, lost lock race)
// must surface as errors while duplicates must return 200.
func (h *WebhookHandler) HandleGatewayWebhook(c *gin.Context) {
	rawBody, err := c.GetRawData()
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to read webhook body")
		response.Error(c, err)
		return
	}

	signature := c.GetHeader(GatewaySignatureHeader)

	if err := h.paymentSvc.HandleGatewayEvent(c.Request.Context(), rawBody, signature); err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, gin.H{"status": "processed"})
}
