package entity

import "time"

// EventType names a lifecycle event
type EventType string

// Lifecycle events
const (
	EventCreated               EventType = "Created"
	EventPaymentConfirmed      EventType = "PaymentConfirmed"
	EventPaymentFailed         EventType = "PaymentFailed"
	EventPaymentExpired        EventType = "PaymentExpired"
	EventSellerAccepted        EventType = "SellerAccepted"
	EventMarkShipped           EventType = "MarkShipped"
	EventBuyerConfirmedReceipt EventType = "BuyerConfirmedReceipt"
	EventBuyerCancelled        EventType = "BuyerCancelled"
	EventSellerCancelled       EventType = "SellerCancelled"
)

// TransactionEvent is an append-only audit row. Rows with a nil PublishedAt are
// pending change notifications for read models.
type TransactionEvent struct {
	ID            uint64
	TransactionID string
	Event         EventType
	FromStatus    Status
	ToStatus      Status
	ActorID       string
	ActorRole     ActorRole
	Payload       map[string]any
	OccurredAt    time.Time
	PublishedAt   *time.Time
}

// WebhookDelivery records a processed payment-processor notification
type WebhookDelivery struct {
	DeliveryID  string
	EventType   string
	PaymentRef  string
	Result      string
	ProcessedAt time.Time
}
