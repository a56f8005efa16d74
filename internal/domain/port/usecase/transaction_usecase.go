package usecase

import (
	"context"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
)

// CreateTransactionRequest carries a buyer's new purchase
type CreateTransactionRequest struct {
	BuyerID            string
	Items              []entity.LineItem
	AmountTotal        int64
	Currency           string
	PaymentMethod      entity.PaymentMethod
	ExternalPaymentRef string
	Origin             entity.Origin
}

// TransitionResult describes a completed lifecycle action
type TransitionResult struct {
	Transaction *entity.Transaction
	From        entity.Status
	Path        []entity.Status
	// NoOp is true when the event was valid but changed nothing
	NoOp bool
}

// TransactionUseCase defines the buyer and seller actions on a transaction.
// Every method takes the acting identity explicitly.
type TransactionUseCase interface {
	// Create validates and stores a new transaction in its initial status
	Create(ctx context.Context, req CreateTransactionRequest) (*entity.Transaction, error)

	// Get returns the transaction with its status in the canonical vocabulary
	Get(ctx context.Context, id string) (*entity.Transaction, error)

	// Accept assigns the seller; the first acceptance wins
	Accept(ctx context.Context, id, sellerID string) (*TransitionResult, error)

	// MarkShipped records that the assigned seller shipped the goods
	MarkShipped(ctx context.Context, id, sellerID string) (*TransitionResult, error)

	// ConfirmReceipt completes the transaction and releases escrow to the seller
	ConfirmReceipt(ctx context.Context, id, buyerID string) (*TransitionResult, error)

	// Cancel cancels on behalf of the buyer or the assigned seller
	Cancel(ctx context.Context, id, actorID string, role entity.ActorRole) (*TransitionResult, error)

	// Events returns the audit trail of the transaction, oldest first
	Events(ctx context.Context, id string) ([]*entity.TransactionEvent, error)
}
