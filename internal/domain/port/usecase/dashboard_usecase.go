package usecase

import (
	"context"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
)

// StatusCount is the number and value of a user's transactions in one status
// and currency, in minor units
type StatusCount struct {
	Status   entity.Status
	Currency string
	Count    int
	Amount   int64
}

// CurrencySummary aggregates escrow figures for one currency, in minor units
type CurrencySummary struct {
	Currency   string
	EscrowHeld int64
	Released   int64
	Refunded   int64
}

// UserSummary is the dashboard view of one user across both origination flows
type UserSummary struct {
	UserID     string
	ByStatus   []StatusCount
	ByCurrency []CurrencySummary
}

// DashboardUseCase serves read models that span request and checkout transactions
type DashboardUseCase interface {
	// ListTransactions returns the user's transactions, newest first; role may be empty for both sides
	ListTransactions(ctx context.Context, userID string, role entity.ActorRole) ([]*entity.Transaction, error)

	// Summary returns per-status counts and escrow totals for the user
	Summary(ctx context.Context, userID string) (*UserSummary, error)
}
