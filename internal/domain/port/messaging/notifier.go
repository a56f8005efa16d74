package messaging

import (
	"context"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
)

// Notifier delivers committed lifecycle events to read-model subscribers.
// Delivery is at-least-once; subscribers key on the event ID.
type Notifier interface {
	Publish(ctx context.Context, event *entity.TransactionEvent) error
}
