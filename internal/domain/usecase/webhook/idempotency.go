package webhook

import (
	"context"
	"fmt"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/persistence"
)

// IdempotencyHandler short-circuits redelivered webhook events. It is an
// optimisation only: the lifecycle rules already make every event idempotent.
type IdempotencyHandler struct {
	uow          persistence.UnitOfWork
	timeProvider coreport.TimeProvider
}

// NewIdempotencyHandler creates a new IdempotencyHandler
func NewIdempotencyHandler(uow persistence.UnitOfWork, timeProvider coreport.TimeProvider) *IdempotencyHandler {
	return &IdempotencyHandler{
		uow:          uow,
		timeProvider: timeProvider,
	}
}

// CheckIdempotency reports whether the delivery was already processed
func (h *IdempotencyHandler) CheckIdempotency(ctx context.Context, deliveryID string) (bool, error) {
	seen, err := h.uow.GetWebhookDeliveryRepository(ctx).Seen(ctx, deliveryID)
	if err != nil {
		return false, fmt.Errorf("failed to check webhook delivery: %w", err)
	}
	return seen, nil
}

// Remember records a processed delivery
func (h *IdempotencyHandler) Remember(ctx context.Context, deliveryID, eventType, paymentRef, result string) error {
	err := h.uow.GetWebhookDeliveryRepository(ctx).Record(ctx, &entity.WebhookDelivery{
		DeliveryID:  deliveryID,
		EventType:   eventType,
		PaymentRef:  paymentRef,
		Result:      result,
		ProcessedAt: h.timeProvider.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to record webhook delivery: %w", err)
	}
	return nil
}
