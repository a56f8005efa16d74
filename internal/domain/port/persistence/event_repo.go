package persistence

import (
	"context"
	"time"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
)

// EventRepository is the append-only audit log that doubles as the change-notification outbox
type EventRepository interface {
	Append(ctx context.Context, event *entity.TransactionEvent) error
	ListByTransaction(ctx context.Context, transactionID string) ([]*entity.TransactionEvent, error)
	ListUnpublished(ctx context.Context, limit int) ([]*entity.TransactionEvent, error)
	MarkPublished(ctx context.Context, ids []uint64, at time.Time) error
}

// WebhookDeliveryRepository remembers processed webhook deliveries so redeliveries can short-circuit
type WebhookDeliveryRepository interface {
	// Seen reports whether the delivery id was already processed
	Seen(ctx context.Context, deliveryID string) (bool, error)
	// Record stores a processed delivery; recording the same id twice is not an error
	Record(ctx context.Context, delivery *entity.WebhookDelivery) error
}
