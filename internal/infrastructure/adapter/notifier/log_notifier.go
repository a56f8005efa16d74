package notifier

import (
	"context"
	"errors"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/messaging"
)

// LogNotifier writes every event as a structured log entry
type LogNotifier struct {
	logger coreport.Logger
}

// NewLogNotifier creates a new log notifier
func NewLogNotifier(logger coreport.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Publish implements messaging.Notifier
func (n *LogNotifier) Publish(_ context.Context, event *entity.TransactionEvent) error {
	n.logger.Info("Transaction event", map[string]any{
		"event_id":       event.ID,
		"transaction_id": event.TransactionID,
		"event":          event.Event,
		"from":           event.FromStatus,
		"to":             event.ToStatus,
		"actor_id":       event.ActorID,
		"actor_role":     event.ActorRole,
		"occurred_at":    event.OccurredAt,
	})
	return nil
}

// Multi publishes to every notifier and joins their errors
type Multi []messaging.Notifier

// Publish implements messaging.Notifier
func (m Multi) Publish(ctx context.Context, event *entity.TransactionEvent) error {
	var errs []error
	for _, n := range m {
		if err := n.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
