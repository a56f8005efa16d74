package dto

import (
	"time"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/usecase"
)

// LineItem is one requested item in API payloads
type LineItem struct {
	Name          string `json:"name" binding:"required"`
	Quantity      int    `json:"quantity" binding:"required,gt=0"`
	UnitPrice     int64  `json:"unitPrice" binding:"gte=0"`
	SourceCountry string `json:"sourceCountry,omitempty"`
}

// CreateTransactionRequest is the body of POST /transactions.
// AmountTotal is in minor units; Amount is the same value as a decimal string
// in major units and is used only when AmountTotal is absent.
type CreateTransactionRequest struct {
	Items              []LineItem `json:"items" binding:"required,min=1,dive"`
	AmountTotal        *int64     `json:"amountTotal"`
	Amount             string     `json:"amount"`
	Currency           string     `json:"currency"`
	PaymentMethod      string     `json:"paymentMethod" binding:"required,oneof=prepaid_online cash_on_delivery"`
	ExternalPaymentRef string     `json:"externalPaymentRef"`
	Origin             string     `json:"origin" binding:"omitempty,oneof=request checkout"`
}

// CancelRequest is the body of POST /transactions/:id/cancel
type CancelRequest struct {
	ActorRole string `json:"actorRole" binding:"required"`
}

// CreateTransactionResponse is returned by POST /transactions
type CreateTransactionResponse struct {
	TransactionID             string    `json:"transactionId"`
	Status                    string    `json:"status"`
	CancellationEligibleUntil time.Time `json:"cancellationEligibleUntil"`
}

// TransactionResponse is the canonical view of a transaction
type TransactionResponse struct {
	ID                        string     `json:"id"`
	BuyerID                   string     `json:"buyerId"`
	SellerID                  string     `json:"sellerId,omitempty"`
	Origin                    string     `json:"origin"`
	Items                     []LineItem `json:"items"`
	AmountTotal               int64      `json:"amountTotal"`
	Amount                    string     `json:"amount"`
	Currency                  string     `json:"currency"`
	PaymentMethod             string     `json:"paymentMethod"`
	Status                    string     `json:"status"`
	EscrowHeld                bool       `json:"escrowHeld"`
	ExternalPaymentRef        string     `json:"externalPaymentRef,omitempty"`
	CreatedAt                 time.Time  `json:"createdAt"`
	StatusChangedAt           time.Time  `json:"statusChangedAt"`
	CancellationEligibleUntil time.Time  `json:"cancellationEligibleUntil"`
	PaidAt                    *time.Time `json:"paidAt,omitempty"`
	AcceptedAt                *time.Time `json:"acceptedAt,omitempty"`
	ShippedAt                 *time.Time `json:"shippedAt,omitempty"`
	ReceivedAt                *time.Time `json:"receivedAt,omitempty"`
	CompletedAt               *time.Time `json:"completedAt,omitempty"`
	CancelledAt               *time.Time `json:"cancelledAt,omitempty"`
	CancelledBy               string     `json:"cancelledBy,omitempty"`
	RefundPath                string     `json:"refundPath,omitempty"`
	Version                   int64      `json:"version"`
}

// TransitionResponse is returned by the action endpoints
type TransitionResponse struct {
	Transaction TransactionResponse `json:"transaction"`
	From        string              `json:"from"`
	Path        []string            `json:"path,omitempty"`
	NoOp        bool                `json:"noOp,omitempty"`
}

// EventResponse is one audit trail entry
type EventResponse struct {
	ID            uint64         `json:"id"`
	TransactionID string         `json:"transactionId"`
	Event         string         `json:"event"`
	From          string         `json:"from,omitempty"`
	To            string         `json:"to"`
	ActorID       string         `json:"actorId,omitempty"`
	ActorRole     string         `json:"actorRole"`
	Payload       map[string]any `json:"payload,omitempty"`
	OccurredAt    time.Time      `json:"occurredAt"`
}

// ToItems converts API line items into domain items
func ToItems(items []LineItem) []entity.LineItem {
	out := make([]entity.LineItem, 0, len(items))
	for _, it := range items {
		out = append(out, entity.LineItem{
			Name:          it.Name,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice,
			SourceCountry: it.SourceCountry,
		})
	}
	return out
}

// FromTransaction renders a transaction
func FromTransaction(tx *entity.Transaction) TransactionResponse {
	items := make([]LineItem, 0, len(tx.Items))
	for _, it := range tx.Items {
		items = append(items, LineItem{
			Name:          it.Name,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice,
			SourceCountry: it.SourceCountry,
		})
	}

	return TransactionResponse{
		ID:                        tx.ID,
		BuyerID:                   tx.BuyerID,
		SellerID:                  tx.SellerID,
		Origin:                    string(tx.Origin),
		Items:                     items,
		AmountTotal:               tx.AmountTotal,
		Amount:                    entity.FormatMinorUnits(tx.AmountTotal, tx.Currency),
		Currency:                  tx.Currency,
		PaymentMethod:             string(tx.PaymentMethod),
		Status:                    string(tx.Status),
		EscrowHeld:                tx.EscrowHeld(),
		ExternalPaymentRef:        tx.PaymentRef(),
		CreatedAt:                 tx.CreatedAt,
		StatusChangedAt:           tx.StatusChangedAt,
		CancellationEligibleUntil: tx.CancellationEligibleUntil,
		PaidAt:                    tx.PaidAt,
		AcceptedAt:                tx.AcceptedAt,
		ShippedAt:                 tx.ShippedAt,
		ReceivedAt:                tx.ReceivedAt,
		CompletedAt:               tx.CompletedAt,
		CancelledAt:               tx.CancelledAt,
		CancelledBy:               string(tx.CancelledBy),
		RefundPath:                string(tx.RefundPath),
		Version:                   tx.Version,
	}
}

// FromTransitionResult renders the result of an action
func FromTransitionResult(result *usecase.TransitionResult) TransitionResponse {
	path := make([]string, 0, len(result.Path))
	for _, s := range result.Path {
		path = append(path, string(s))
	}
	return TransitionResponse{
		Transaction: FromTransaction(result.Transaction),
		From:        string(result.From),
		Path:        path,
		NoOp:        result.NoOp,
	}
}

// FromEvent renders an audit entry
func FromEvent(ev *entity.TransactionEvent) EventResponse {
	return EventResponse{
		ID:            ev.ID,
		TransactionID: ev.TransactionID,
		Event:         string(ev.Event),
		From:          string(ev.FromStatus),
		To:            string(ev.ToStatus),
		ActorID:       ev.ActorID,
		ActorRole:     string(ev.ActorRole),
		Payload:       ev.Payload,
		OccurredAt:    ev.OccurredAt,
	}
}
