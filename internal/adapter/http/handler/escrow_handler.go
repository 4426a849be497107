package handler

import (
	"marketplace-payments/internal/adapter/http/dto"
	"marketplace-payments/internal/adapter/http/middleware"
	"marketplace-payments/internal/core/ports"
	"marketplace-payments/pkg/apperror"
	"marketplace-payments/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// EscrowHandler handles the per-order escrow endpoints.
type EscrowHandler struct {
	escrowSvc ports.EscrowService
}

// NewEscrowHandler creates a new EscrowHandler.
func NewEscrowHandler(escrowSvc ports.EscrowService) *EscrowHandler {
	return &EscrowHandler{escrowSvc: escrowSvc}
}

// GetEscrowStatus handles GET /api/v1/orders/:id/escrow-status.
func (h *EscrowHandler) GetEscrowStatus(c *gin.Context) {
	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid order id"))
		return
	}

	view, err := h.escrowSvc.Status(c.Request.Context(), orderID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, view)
}

// ConfirmQuality handles POST /api/v1/orders/:id/confirm-quality. Only the
// buyer of the order may confirm.
func (h *EscrowHandler) ConfirmQuality(c *gin.Context) {
	buyerID, _, ok := authedUser(c)
	if !ok {
		return
	}

	orderID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Error(c, apperror.Validation("invalid order id"))
		return
	}

	var req dto.ConfirmQualityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	view, err := h.escrowSvc.ConfirmQuality(c.Request.Context(), orderID, buyerID, req.Rating, req.Notes)
	if err != nil {
		response.Error(c, err)
		return
	}

	middleware.RecordEscrowReleased("buyer_confirmed")
	response.OK(c, view)
}
