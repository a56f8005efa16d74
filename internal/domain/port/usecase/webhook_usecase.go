package usecase

import (
	"context"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
)

// WebhookResult tells the processor-facing handler what happened to a delivery
type WebhookResult string

// Webhook results; all of them are acknowledged to the processor
const (
	WebhookProcessed           WebhookResult = "processed"
	WebhookNoOp                WebhookResult = "no_op"
	WebhookDuplicate           WebhookResult = "duplicate"
	WebhookIgnored             WebhookResult = "ignored"
	WebhookTransactionNotFound WebhookResult = "transaction_not_found"
	WebhookRejected            WebhookResult = "rejected"
)

// WebhookOutcome summarizes a processed webhook delivery
type WebhookOutcome struct {
	DeliveryID    string
	EventType     string
	Result        WebhookResult
	TransactionID string
	Status        entity.Status
}

// WebhookUseCase reconciles signed payment-processor notifications
type WebhookUseCase interface {
	// Handle verifies, parses and applies one delivery.
	//
	// Possible errors:
	// - ErrSignatureInvalid: If the signature header does not match the payload
	// - ErrMalformedPayload: If the payload is not a recognizable event
	// - ErrDatabaseConnection: If the store is unavailable; the processor should redeliver
	Handle(ctx context.Context, payload []byte, signatureHeader string) (*WebhookOutcome, error)
}
