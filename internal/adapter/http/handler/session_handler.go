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

// SessionHandler handles checkout session endpoints.
type SessionHandler struct {
	sessions ports.SessionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions ports.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// CreateSession handles POST /api/v1/sessions.
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req dto.SessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}
	dto.SanitizeStruct(&req)

	amount, err := domain.NewMoney(req.Amount, req.Currency)
	if err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	sess, err := h.sessions.Create(c.Request.Context(), req.OwnerIdentity, amount)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, toSessionResponse(sess))
}

// GetSession handles GET /api/v1/sessions/:id.
func (h *SessionHandler) GetSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid session id"))
		return
	}

	sess, err := h.sessions.Get(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, toSessionResponse(sess))
}

// CancelSession handles DELETE /api/v1/sessions/:id.
func (h *SessionHandler) CancelSession(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid session id"))
		return
	}

	if err := h.sessions.Cancel(c.Request.Context(), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func toSessionResponse(sess *domain.PaymentSession) dto.SessionResponse {
	return dto.SessionResponse{
		SessionID:     sess.SessionID.String(),
		OwnerIdentity: sess.OwnerIdentity,
		Amount:        sess.Amount.Amount.StringFixed(2),
		Currency:      sess.Amount.Currency,
		ChosenGateway: string(sess.ChosenGateway),
		Attempts:      sess.Attempts,
		CreatedAt:     sess.CreatedAt.Format(time.RFC3339),
		ExpiresAt:     sess.ExpiresAt.Format(time.RFC3339),
	}
}
