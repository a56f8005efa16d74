// Package outbox forwards committed lifecycle events to read-model subscribers
package outbox

import (
	"context"
	"time"

	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/messaging"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/persistence"
)

// Relay polls unpublished audit events and hands them to a notifier.
// Delivery is at-least-once: a crash between publish and mark repeats the batch.
type Relay struct {
	uow          persistence.UnitOfWork
	notifier     messaging.Notifier
	timeProvider coreport.TimeProvider
	logger       coreport.Logger
	interval     time.Duration
	batchSize    int
}

// NewRelay creates a new outbox relay
func NewRelay(
	uow persistence.UnitOfWork,
	notifier messaging.Notifier,
	timeProvider coreport.TimeProvider,
	logger coreport.Logger,
	interval time.Duration,
	batchSize int,
) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		uow:          uow,
		notifier:     notifier,
		timeProvider: timeProvider,
		logger:       logger,
		interval:     interval,
		batchSize:    batchSize,
	}
}

// Run relays events every interval until ctx is cancelled
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Outbox relay stopped", nil)
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
				r.logger.Error("Outbox relay pass failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

// RunOnce publishes one batch in event order and returns how many were marked.
// Publishing stops at the first failure so subscribers never see a gap.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	events := r.uow.GetEventRepository(ctx)

	pending, err := events.ListUnpublished(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}

	ids := make([]uint64, 0, len(pending))
	var publishErr error
	for _, ev := range pending {
		if err := r.notifier.Publish(ctx, ev); err != nil {
			publishErr = err
			r.logger.Warn("Failed to publish transaction event", map[string]any{
				"event_id":       ev.ID,
				"transaction_id": ev.TransactionID,
				"error":          err.Error(),
			})
			break
		}
		ids = append(ids, ev.ID)
	}

	if err := events.MarkPublished(ctx, ids, r.timeProvider.Now().UTC()); err != nil {
		return 0, err
	}
	return len(ids), publishErr
}
