package handler

import (
	"net/http"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/usecase"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/api/dto"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/api/middleware"
	"github.com/gin-gonic/gin"
)

// TransactionHandler handles buyer and seller actions on transactions
type TransactionHandler struct {
	transactions usecase.TransactionUseCase
	logger       coreport.Logger
}

// NewTransactionHandler creates a new transaction handler instance
func NewTransactionHandler(transactions usecase.TransactionUseCase, logger coreport.Logger) *TransactionHandler {
	return &TransactionHandler{
		transactions: transactions,
		logger:       logger,
	}
}

// Create handles POST /api/v1/transactions; the caller is the buyer
func (h *TransactionHandler) Create(c *gin.Context) {
	var req dto.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("Invalid create transaction request", map[string]any{
			"error":      err.Error(),
			"request_id": middleware.RequestID(c),
		})
		middleware.RespondError(c, errs.NewValidationError("body", err.Error()))
		return
	}

	var amount int64
	switch {
	case req.AmountTotal != nil:
		amount = *req.AmountTotal
	case req.Amount != "":
		parsed, err := entity.ParseMajorUnits(req.Amount, req.Currency)
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		amount = parsed
	default:
		middleware.RespondError(c, errs.NewValidationError("amountTotal", "is required"))
		return
	}

	tx, err := h.transactions.Create(c.Request.Context(), usecase.CreateTransactionRequest{
		BuyerID:            middleware.UserID(c),
		Items:              dto.ToItems(req.Items),
		AmountTotal:        amount,
		Currency:           req.Currency,
		PaymentMethod:      entity.PaymentMethod(req.PaymentMethod),
		ExternalPaymentRef: req.ExternalPaymentRef,
		Origin:             entity.Origin(req.Origin),
	})
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.CreateTransactionResponse{
		TransactionID:             tx.ID,
		Status:                    string(tx.Status),
		CancellationEligibleUntil: tx.CancellationEligibleUntil,
	})
}

// Get handles GET /api/v1/transactions/:id
func (h *TransactionHandler) Get(c *gin.Context) {
	tx, err := h.transactions.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.FromTransaction(tx))
}

// Accept handles POST /api/v1/transactions/:id/accept; the caller is the seller
func (h *TransactionHandler) Accept(c *gin.Context) {
	h.respondTransition(c)(h.transactions.Accept(c.Request.Context(), c.Param("id"), middleware.UserID(c)))
}

// Ship handles POST /api/v1/transactions/:id/ship
func (h *TransactionHandler) Ship(c *gin.Context) {
	h.respondTransition(c)(h.transactions.MarkShipped(c.Request.Context(), c.Param("id"), middleware.UserID(c)))
}

// ConfirmReceipt handles POST /api/v1/transactions/:id/confirm-receipt; the caller is the buyer
func (h *TransactionHandler) ConfirmReceipt(c *gin.Context) {
	h.respondTransition(c)(h.transactions.ConfirmReceipt(c.Request.Context(), c.Param("id"), middleware.UserID(c)))
}

// Cancel handles POST /api/v1/transactions/:id/cancel
func (h *TransactionHandler) Cancel(c *gin.Context) {
	var req dto.CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondError(c, errs.NewValidationError("actorRole", "is required"))
		return
	}

	h.respondTransition(c)(h.transactions.Cancel(
		c.Request.Context(), c.Param("id"), middleware.UserID(c), entity.ActorRole(req.ActorRole)))
}

// Events handles GET /api/v1/transactions/:id/events
func (h *TransactionHandler) Events(c *gin.Context) {
	events, err := h.transactions.Events(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	resp := make([]dto.EventResponse, 0, len(events))
	for _, ev := range events {
		resp = append(resp, dto.FromEvent(ev))
	}
	c.JSON(http.StatusOK, gin.H{"events": resp})
}

func (h *TransactionHandler) respondTransition(c *gin.Context) func(*usecase.TransitionResult, error) {
	return func(result *usecase.TransitionResult, err error) {
		if err != nil {
			middleware.RespondError(c, err)
			return
		}
		c.JSON(http.StatusOK, dto.FromTransitionResult(result))
	}
}
