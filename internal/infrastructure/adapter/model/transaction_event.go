package model

import (
	"time"

	"gorm.io/datatypes"
)

// TransactionEvent is an audit row; rows with a NULL published_at form the outbox
type TransactionEvent struct {
	ID            uint64 `gorm:"primaryKey;autoIncrement"`
	TransactionID string `gorm:"not null;size:64;index"`
	Event         string `gorm:"not null;size:40"`
	FromStatus    string `gorm:"not null;size:30;default:''"`
	ToStatus      string `gorm:"not null;size:30"`
	ActorID       string `gorm:"not null;size:64;default:''"`
	ActorRole     string `gorm:"not null;size:20"`
	Payload       datatypes.JSONMap
	OccurredAt    time.Time  `gorm:"not null"`
	PublishedAt   *time.Time `gorm:"index"`
}

// TableName specifies the table name for TransactionEvent
func (TransactionEvent) TableName() string {
	return "transaction_events"
}

// WebhookDelivery remembers a processed payment-processor delivery
type WebhookDelivery struct {
	DeliveryID  string    `gorm:"primaryKey;size:255"`
	EventType   string    `gorm:"not null;size:100"`
	PaymentRef  string    `gorm:"not null;size:255;default:''"`
	Result      string    `gorm:"not null;size:40"`
	ProcessedAt time.Time `gorm:"not null"`
}

// TableName specifies the table name for WebhookDelivery
func (WebhookDelivery) TableName() string {
	return "webhook_deliveries"
}
