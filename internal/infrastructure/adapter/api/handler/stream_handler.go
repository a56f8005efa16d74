package handler

import (
	"io"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/api/middleware"
	"github.com/gin-gonic/gin"
)

// EventSource hands out subscriptions to committed transaction events
type EventSource interface {
	Subscribe(buffer int) (<-chan *entity.TransactionEvent, func())
}

// StreamHandler pushes change notifications to dashboards over server-sent events
type StreamHandler struct {
	source EventSource
	buffer int
	logger coreport.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(source EventSource, buffer int, logger coreport.Logger) *StreamHandler {
	return &StreamHandler{
		source: source,
		buffer: buffer,
		logger: logger,
	}
}

// Transactions handles GET /api/v1/stream/transactions.
// The optional transactionId query parameter narrows the stream to one transaction.
func (h *StreamHandler) Transactions(c *gin.Context) {
	filter := c.Query("transactionId")
	events, cancel := h.source.Subscribe(h.buffer)
	defer cancel()

	h.logger.Debug("Stream subscriber connected", map[string]any{
		"request_id":     middleware.RequestID(c),
		"transaction_id": filter,
	})

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return false
			}
			if filter != "" && ev.TransactionID != filter {
				return true
			}
			c.Render(-1, sseEvent(ev))
			return true
		}
	})
}
