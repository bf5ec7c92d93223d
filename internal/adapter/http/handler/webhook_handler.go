package handler

import (
	"io"

	"payment-core/internal/core/domain"
	"payment-core/internal/core/ports"
	"payment-core/pkg/apperror"
	"payment-core/pkg/response"

	"github.com/gin-gonic/gin"
)

// WebhookHandler receives provider callbacks.
type WebhookHandler struct {
	reconciler ports.ReconcilerService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(reconciler ports.ReconcilerService) *WebhookHandler {
	return &WebhookHandler{reconciler: reconciler}
}

// HandleWebhook handles POST /webhooks/:gateway. The raw body goes to
// the gateway adapter untouched; signature verification needs the exact
// bytes the provider signed.
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	gateway, ok := domain.ParseGatewayName(c.Param("gateway"))
	if !ok {
		response.Error(c, apperror.ErrUnknownGateway(c.Param("gateway")))
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, apperror.Validation("unreadable request body"))
		return
	}

	headers := make(map[string]string, len(c.Request.Header))
	for k := range c.Request.Header {
		headers[k] = c.Request.Header.Get(k)
	}

	if err := h.reconciler.HandleWebhook(c.Request.Context(), gateway, body, headers); err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"received": true})
}
