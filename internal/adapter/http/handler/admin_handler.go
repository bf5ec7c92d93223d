package handler

import (
	"strconv"
	"time"

	"payment-core/internal/adapter/http/dto"
	"payment-core/internal/core/ports"
	"payment-core/pkg/response"

	"github.com/gin-gonic/gin"
)

// AdminHandler handles operator endpoints.
type AdminHandler struct {
	ledger     ports.LedgerService
	reconciler ports.ReconcilerService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(ledger ports.LedgerService, reconciler ports.ReconcilerService) *AdminHandler {
	return &AdminHandler{ledger: ledger, reconciler: reconciler}
}

// ConfirmBankTransfer handles POST /api/v1/admin/bank-transfers/:reference/confirm.
// The operator attests that the wired funds arrived.
func (h *AdminHandler) ConfirmBankTransfer(c *gin.Context) {
	txn, err := h.ledger.ConfirmBankTransfer(c.Request.Context(), c.Param("reference"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toTransactionResponse(txn))
}

// ListOrphanEvents handles GET /api/v1/admin/orphan-events.
func (h *AdminHandler) ListOrphanEvents(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	events, err := h.reconciler.ListOrphans(c.Request.Context(), limit)
	if err != nil {
		response.Error(c, err)
		return
	}

	out := make([]dto.OrphanEventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, dto.OrphanEventResponse{
			ID:                ev.ID.String(),
			Gateway:           string(ev.Gateway),
			ExternalReference: ev.ExternalReference,
			ProviderEventID:   ev.ProviderEventID,
			Kind:              string(ev.Kind),
			ReceivedAt:        ev.ReceivedAt.Format(time.RFC3339),
		})
	}
	response.OK(c, out)
}
