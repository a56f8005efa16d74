package handler

import (
	"errors"
	"io"
	"net/http"

	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/usecase"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/api/dto"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/api/middleware"
	"github.com/gin-gonic/gin"
)

// SignatureHeader carries the processor's HMAC signature
const SignatureHeader = "Payment-Signature"

// maxWebhookBody bounds the payload read before verification
const maxWebhookBody = 1 << 20

// WebhookHandler receives payment processor notifications
type WebhookHandler struct {
	reconciler usecase.WebhookUseCase
	logger     coreport.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(reconciler usecase.WebhookUseCase, logger coreport.Logger) *WebhookHandler {
	return &WebhookHandler{
		reconciler: reconciler,
		logger:     logger,
	}
}

// Payments handles POST /api/v1/webhooks/payments.
// Anything the processor should not redeliver is acknowledged with 200;
// storage failures answer 500 so the delivery is retried.
func (h *WebhookHandler) Payments(c *gin.Context) {
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		middleware.RespondError(c, errs.ErrMalformedPayload)
		return
	}

	outcome, err := h.reconciler.Handle(c.Request.Context(), payload, c.GetHeader(SignatureHeader))
	if err != nil {
		if errors.Is(err, errs.ErrSignatureInvalid) || errors.Is(err, errs.ErrMalformedPayload) {
			middleware.RespondError(c, err)
			return
		}

		h.logger.Error("Webhook processing failed, processor will redeliver", map[string]any{
			"error":      err.Error(),
			"request_id": middleware.RequestID(c),
		})
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, dto.ErrorResponse{
			Code:      errs.ErrorCode(err),
			Message:   http.StatusText(http.StatusInternalServerError),
			RequestID: middleware.RequestID(c),
		})
		return
	}

	c.JSON(http.StatusOK, dto.FromWebhookOutcome(outcome))
}
