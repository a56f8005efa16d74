package handler

import (
	"net/http"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/usecase"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/api/dto"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/api/middleware"
	"github.com/gin-gonic/gin"
)

// DashboardHandler serves participant views spanning both origination flows
type DashboardHandler struct {
	dashboard usecase.DashboardUseCase
	logger    coreport.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(dashboard usecase.DashboardUseCase, logger coreport.Logger) *DashboardHandler {
	return &DashboardHandler{
		dashboard: dashboard,
		logger:    logger,
	}
}

// ListTransactions handles GET /api/v1/users/:userId/transactions?role=buyer|seller
func (h *DashboardHandler) ListTransactions(c *gin.Context) {
	userID := c.Param("userId")
	role := entity.ActorRole(c.Query("role"))

	txs, err := h.dashboard.ListTransactions(c.Request.Context(), userID, role)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	resp := dto.TransactionListResponse{
		UserID:       userID,
		Role:         string(role),
		Transactions: make([]dto.TransactionResponse, 0, len(txs)),
	}
	for _, tx := range txs {
		resp.Transactions = append(resp.Transactions, dto.FromTransaction(tx))
	}
	c.JSON(http.StatusOK, resp)
}

// Summary handles GET /api/v1/users/:userId/summary
func (h *DashboardHandler) Summary(c *gin.Context) {
	summary, err := h.dashboard.Summary(c.Request.Context(), c.Param("userId"))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromSummary(summary))
}
