package handler

import (
	"time"

	"payment-core/internal/adapter/http/dto"
	"payment-core/internal/core/domain"
	"payment-core/internal/core/ports"
	"payment-core/pkg/apperror"
	"payment-core/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CheckoutHandler handles the payment and refund endpoints.
type CheckoutHandler struct {
	checkout ports.CheckoutService
	ledger   ports.LedgerService
	registry ports.GatewayRegistry
}

// NewCheckoutHandler creates a new CheckoutHandler.
func NewCheckoutHandler(checkout ports.CheckoutService, ledger ports.LedgerService, registry ports.GatewayRegistry) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, ledger: ledger, registry: registry}
}

// ListGateways handles GET /api/v1/gateways.
func (h *CheckoutHandler) ListGateways(c *gin.Context) {
	caps := h.registry.List()
	out := make([]dto.GatewayResponse, 0, len(caps))
	for _, cap := range caps {
		out = append(out, dto.GatewayResponse{
			Name:                 string(cap.Name),
			Currencies:           cap.Currencies,
			SupportsRefunds:      cap.SupportsRefunds,
			SupportsRecurring:    cap.SupportsRecurring,
			RequiresManualReview: cap.RequiresManualReview,
		})
	}
	response.OK(c, out)
}

// StartPayment handles POST /api/v1/payments.
func (h *CheckoutHandler) StartPayment(c *gin.Context) {
	var req dto.PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	sessionID, err := uuid.Parse(req.SessionID)
	if err != nil {
		response.Error(c, apperror.Validation("invalid session id"))
		return
	}
	gateway, ok := domain.ParseGatewayName(req.Gateway)
	if !ok {
		response.Error(c, apperror.ErrUnknownGateway(req.Gateway))
		return
	}
	amount, err := domain.NewMoney(req.Amount, req.Currency)
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	out, err := h.checkout.StartPayment(c.Request.Context(), ports.StartPaymentInput{
		SessionID:         sessionID,
		ExternalReference: req.ExternalReference,
		Gateway:           gateway,
		Amount:            amount,
		Purpose:           req.Purpose,
		ClientMeta: ports.ClientMeta{
			IP:            c.ClientIP(),
			UserAgent:     c.Request.UserAgent(),
			PayloadFields: req.PayloadFields,
		},
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	resp := dto.PaymentResponse{
		Transaction:  toTransactionResponse(out.Transaction),
		Continuation: string(out.Continuation),
		ClientToken:  out.ClientToken,
		RedirectURL:  out.RedirectURL,
		Instructions: out.Instructions,
		Replayed:     out.Replayed,
	}
	if out.Replayed {
		response.OK(c, resp)
		return
	}
	response.Created(c, resp)
}

// GetPayment handles GET /api/v1/payments/:id.
func (h *CheckoutHandler) GetPayment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid transaction id"))
		return
	}

	txn, err := h.checkout.GetPayment(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toTransactionResponse(txn))
}

// RequestRefund handles POST /api/v1/payments/:id/refunds.
func (h *CheckoutHandler) RequestRefund(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid transaction id"))
		return
	}

	var req dto.RefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	reason, ok := domain.ParseRefundReason(req.Reason)
	if !ok {
		response.Error(c, apperror.Validation("unknown refund reason"))
		return
	}
	amount, err := domain.NewMoney(req.Amount, req.Currency)
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	refund, err := h.ledger.RequestRefund(c.Request.Context(), id, amount, reason)
	if err != nil {
		response.Error(c, err)
		return
	}
	if refund.Status == domain.RefundStatusPending {
		// Completion arrives via webhook.
		response.Accepted(c, toRefundResponse(refund))
		return
	}
	response.Created(c, toRefundResponse(refund))
}

// ListRefunds handles GET /api/v1/payments/:id/refunds.
func (h *CheckoutHandler) ListRefunds(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid transaction id"))
		return
	}

	refunds, err := h.ledger.ListRefunds(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]dto.RefundResponse, 0, len(refunds))
	for i := range refunds {
		out = append(out, toRefundResponse(&refunds[i]))
	}
	response.OK(c, out)
}

func toTransactionResponse(txn *domain.Transaction) dto.TransactionResponse {
	resp := dto.TransactionResponse{
		ID:                txn.ID.String(),
		ExternalReference: txn.ExternalReference,
		Gateway:           string(txn.Gateway),
		Amount:            txn.Amount.Amount.StringFixed(2),
		Currency:          txn.Amount.Currency,
		Purpose:           txn.Purpose,
		Status:            string(txn.Status),
		RefundedAmount:    txn.RefundedAmount.Amount.StringFixed(2),
		Disputed:          txn.Disputed,
		ReviewFlagged:     txn.ReviewFlagged,
		CreatedAt:         txn.CreatedAt.Format(time.RFC3339),
	}
	if txn.ProcessedAt != nil {
		s := txn.ProcessedAt.Format(time.RFC3339)
		resp.ProcessedAt = &s
	}
	if txn.ExpiresAt != nil {
		s := txn.ExpiresAt.Format(time.RFC3339)
		resp.ExpiresAt = &s
	}
	return resp
}

func toRefundResponse(r *domain.Refund) dto.RefundResponse {
	resp := dto.RefundResponse{
		ID:              r.ID.String(),
		TransactionID:   r.TransactionID.String(),
		Amount:          r.Amount.Amount.StringFixed(2),
		Currency:        r.Amount.Currency,
		Reason:          string(r.Reason),
		Status:          string(r.Status),
		GatewayRefundID: r.GatewayRefundID,
		CreatedAt:       r.CreatedAt.Format(time.RFC3339),
	}
	if r.ProcessedAt != nil {
		s := r.ProcessedAt.Format(time.RFC3339)
		resp.ProcessedAt = &s
	}
	return resp
}
