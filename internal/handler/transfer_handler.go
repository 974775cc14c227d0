package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mgthompo1/payeez-sub001/internal/models"
	"github.com/mgthompo1/payeez-sub001/internal/service"
)

type TransferHandler struct {
	risk       *service.RiskService
	settlement *service.SettlementService
	logger     *zap.Logger
}

func NewTransferHandler(risk *service.RiskService, settlement *service.SettlementService, logger *zap.Logger) *TransferHandler {
	return &TransferHandler{
		risk:       risk,
		settlement: settlement,
		logger:     logger,
	}
}

// CreateTransfer handles POST /api/v1/transfers. Every transfer passes
// risk assessment before it is accepted.
func (h *TransferHandler) CreateTransfer(c *gin.Context) {
	tenantID := tenantFrom(c)
	if tenantID == "" {
		return
	}

	var req models.TransferCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.risk.Assess(c.Request.Context(), service.RiskRequest{
		TenantID:      tenantID,
		BankAccountID: req.BankAccountID,
		Amount:        req.Amount,
		Direction:     models.TransferDirection(req.Direction),
	})
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Bank account not found"})
			return
		}
		h.logger.Error("risk assessment failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to assess transfer"})
		return
	}
	if !result.Approved {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error":      "Transfer blocked by risk assessment",
			"risk_score": result.Score,
			"flags":      result.Flags,
		})
		return
	}

	transfer, created, err := h.settlement.CreateTransfer(c.Request.Context(), &req, tenantID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Bank account not found"})
		case errors.Is(err, service.ErrValidation):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		default:
			h.logger.Error("failed to create transfer", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create transfer"})
		}
		return
	}

	status := http.StatusCreated
	if !created {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"transfer": transfer})
}

// GetTransfer handles GET /api/v1/transfers/:id
func (h *TransferHandler) GetTransfer(c *gin.Context) {
	tenantID := tenantFrom(c)
	if tenantID == "" {
		return
	}

	transfer, attempts, err := h.settlement.GetTransfer(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Transfer not found"})
			return
		}
		h.logger.Error("failed to load transfer", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load transfer"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"transfer": transfer, "attempts": attempts})
}

// CancelTransfer handles POST /api/v1/transfers/:id/cancel
func (h *TransferHandler) CancelTransfer(c *gin.Context) {
	tenantID := tenantFrom(c)
	if tenantID == "" {
		return
	}

	err := h.settlement.CancelTransfer(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrTerminalState) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("failed to cancel transfer", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel transfer"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Transfer cancelled"})
}
