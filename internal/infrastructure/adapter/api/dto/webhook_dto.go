package dto

import "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/usecase"

// WebhookAckResponse acknowledges a processor delivery
type WebhookAckResponse struct {
	Received      bool   `json:"received"`
	DeliveryID    string `json:"deliveryId,omitempty"`
	Result        string `json:"result"`
	TransactionID string `json:"transactionId,omitempty"`
	Status        string `json:"status,omitempty"`
}

// FromWebhookOutcome renders the outcome of a delivery
func FromWebhookOutcome(o *usecase.WebhookOutcome) WebhookAckResponse {
	return WebhookAckResponse{
		Received:      true,
		DeliveryID:    o.DeliveryID,
		Result:        string(o.Result),
		TransactionID: o.TransactionID,
		Status:        string(o.Status),
	}
}
