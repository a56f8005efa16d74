package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
)

// EventRepository implements persistence.EventRepository in memory
type EventRepository struct {
	store   *Store
	session *session
}

// Append stages an audit event; its ID is assigned on commit
func (r *EventRepository) Append(ctx context.Context, event *entity.TransactionEvent) error {
	if r.session == nil {
		return r.store.commit(&session{events: []*entity.TransactionEvent{event}})
	}

	r.session.mu.Lock()
	defer r.session.mu.Unlock()
	if r.session.closed {
		return fmt.Errorf("transaction has already been committed or rolled back")
	}
	r.session.events = append(r.session.events, event)
	return nil
}

// ListByTransaction returns committed events of the transaction, oldest first
func (r *EventRepository) ListByTransaction(ctx context.Context, transactionID string) ([]*entity.TransactionEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var result []*entity.TransactionEvent
	for _, ev := range r.store.events {
		if ev.TransactionID == transactionID {
			result = append(result, cloneEvent(ev))
		}
	}
	return result, nil
}

// ListUnpublished returns committed events not yet delivered to subscribers
func (r *EventRepository) ListUnpublished(ctx context.Context, limit int) ([]*entity.TransactionEvent, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var result []*entity.TransactionEvent
	for _, ev := range r.store.events {
		if ev.PublishedAt != nil {
			continue
		}
		result = append(result, cloneEvent(ev))
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

// MarkPublished records delivery of the events
func (r *EventRepository) MarkPublished(ctx context.Context, ids []uint64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	if r.session == nil {
		return r.store.commit(&session{published: []publishMark{{ids: ids, at: at}}})
	}

	r.session.mu.Lock()
	defer r.session.mu.Unlock()
	r.session.published = append(r.session.published, publishMark{ids: ids, at: at})
	return nil
}

// markPublished is applied under the store write lock
func (st *Store) markPublished(ids []uint64, at time.Time) {
	wanted := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	for _, ev := range st.events {
		if _, ok := wanted[ev.ID]; ok && ev.PublishedAt == nil {
			t := at
			ev.PublishedAt = &t
		}
	}
}

// WebhookDeliveryRepository implements persistence.WebhookDeliveryRepository in memory
type WebhookDeliveryRepository struct {
	store   *Store
	session *session
}

// Seen reports whether the delivery was recorded
func (r *WebhookDeliveryRepository) Seen(ctx context.Context, deliveryID string) (bool, error) {
	r.store.mu.RLock()
	_, ok := r.store.deliveries[deliveryID]
	r.store.mu.RUnlock()
	if ok || r.session == nil {
		return ok, nil
	}

	r.session.mu.Lock()
	defer r.session.mu.Unlock()
	for _, d := range r.session.deliveries {
		if d.DeliveryID == deliveryID {
			return true, nil
		}
	}
	return false, nil
}

// Record stages the delivery; a duplicate id is ignored
func (r *WebhookDeliveryRepository) Record(ctx context.Context, delivery *entity.WebhookDelivery) error {
	if r.session == nil {
		return r.store.commit(&session{deliveries: []*entity.WebhookDelivery{delivery}})
	}

	r.session.mu.Lock()
	defer r.session.mu.Unlock()
	if r.session.closed {
		return fmt.Errorf("transaction has already been committed or rolled back")
	}
	r.session.deliveries = append(r.session.deliveries, delivery)
	return nil
}
