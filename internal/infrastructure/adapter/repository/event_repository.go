package repository

import (
	"context"
	"time"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EventRepository implements EventRepository interface using GORM
type EventRepository struct {
	db     *gorm.DB
	logger coreport.Logger
}

// NewEventRepository creates a new EventRepository instance
func NewEventRepository(db *gorm.DB, logger coreport.Logger) *EventRepository {
	return &EventRepository{
		db:     db,
		logger: logger,
	}
}

// Append inserts an audit event and sets its ID
func (r *EventRepository) Append(ctx context.Context, event *entity.TransactionEvent) error {
	m := &model.TransactionEvent{
		TransactionID: event.TransactionID,
		Event:         string(event.Event),
		FromStatus:    string(event.FromStatus),
		ToStatus:      string(event.ToStatus),
		ActorID:       event.ActorID,
		ActorRole:     string(event.ActorRole),
		Payload:       datatypes.JSONMap(event.Payload),
		OccurredAt:    event.OccurredAt,
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		r.logger.Error("Failed to append transaction event", map[string]any{
			"transaction_id": event.TransactionID,
			"event":          event.Event,
			"error":          err.Error(),
		})
		return mapDBError(err)
	}
	event.ID = m.ID
	return nil
}

// ListByTransaction returns the audit trail, oldest first
func (r *EventRepository) ListByTransaction(ctx context.Context, transactionID string) ([]*entity.TransactionEvent, error) {
	return r.find(r.db.WithContext(ctx).Where("transaction_id = ?", transactionID).Order("id ASC"))
}

// ListUnpublished returns outbox rows in commit order
func (r *EventRepository) ListUnpublished(ctx context.Context, limit int) ([]*entity.TransactionEvent, error) {
	q := r.db.WithContext(ctx).Where("published_at IS NULL").Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return r.find(q)
}

// MarkPublished stamps the events as delivered
func (r *EventRepository) MarkPublished(ctx context.Context, ids []uint64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&model.TransactionEvent{}).
		Where("id IN ? AND published_at IS NULL", ids).
		Update("published_at", at).Error
	if err != nil {
		return mapDBError(err)
	}
	return nil
}

func (r *EventRepository) find(q *gorm.DB) ([]*entity.TransactionEvent, error) {
	var rows []model.TransactionEvent
	if err := q.Find(&rows).Error; err != nil {
		return nil, mapDBError(err)
	}

	events := make([]*entity.TransactionEvent, len(rows))
	for i, m := range rows {
		events[i] = &entity.TransactionEvent{
			ID:            m.ID,
			TransactionID: m.TransactionID,
			Event:         entity.EventType(m.Event),
			FromStatus:    entity.Status(m.FromStatus),
			ToStatus:      entity.Status(m.ToStatus),
			ActorID:       m.ActorID,
			ActorRole:     entity.ActorRole(m.ActorRole),
			Payload:       map[string]any(m.Payload),
			OccurredAt:    m.OccurredAt.UTC(),
			PublishedAt:   utcPtr(m.PublishedAt),
		}
	}
	return events, nil
}

// WebhookDeliveryRepository implements WebhookDeliveryRepository interface using GORM
type WebhookDeliveryRepository struct {
	db *gorm.DB
}

// NewWebhookDeliveryRepository creates a new WebhookDeliveryRepository instance
func NewWebhookDeliveryRepository(db *gorm.DB) *WebhookDeliveryRepository {
	return &WebhookDeliveryRepository{db: db}
}

// Seen reports whether the delivery id was already processed
func (r *WebhookDeliveryRepository) Seen(ctx context.Context, deliveryID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.WebhookDelivery{}).
		Where("delivery_id = ?", deliveryID).
		Count(&count).Error
	if err != nil {
		return false, mapDBError(err)
	}
	return count > 0, nil
}

// Record stores a processed delivery; a duplicate id is ignored
func (r *WebhookDeliveryRepository) Record(ctx context.Context, delivery *entity.WebhookDelivery) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.WebhookDelivery{
			DeliveryID:  delivery.DeliveryID,
			EventType:   delivery.EventType,
			PaymentRef:  delivery.PaymentRef,
			Result:      delivery.Result,
			ProcessedAt: delivery.ProcessedAt,
		}).Error
	if err != nil {
		return mapDBError(err)
	}
	return nil
}
