// Package dashboard serves the buyer and seller read models. Every read goes
// through the record store, which normalizes legacy request and checkout
// statuses, so the aggregation here only ever sees canonical states.
package dashboard

import (
	"context"
	"sort"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/persistence"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/usecase"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/usecase/escrow"
)

// DefaultListLimit caps dashboard listings
const DefaultListLimit = 200

// Service implements usecase.DashboardUseCase
type Service struct {
	uow    persistence.UnitOfWork
	escrow *escrow.Controller
	logger coreport.Logger
	limit  int
}

var _ usecase.DashboardUseCase = (*Service)(nil)

// NewService creates a new dashboard service
func NewService(uow persistence.UnitOfWork, escrowController *escrow.Controller, logger coreport.Logger, limit int) *Service {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return &Service{
		uow:    uow,
		escrow: escrowController,
		logger: logger,
		limit:  limit,
	}
}

// ListTransactions returns the user's transactions from both origination flows
func (s *Service) ListTransactions(ctx context.Context, userID string, role entity.ActorRole) ([]*entity.Transaction, error) {
	if userID == "" {
		return nil, errs.NewValidationError("userId", "is required")
	}
	switch role {
	case "", entity.RoleBuyer, entity.RoleSeller:
	default:
		return nil, errs.NewValidationError("role", "must be buyer or seller")
	}

	txs, err := s.uow.GetTransactionRepository(ctx).ListByParticipant(ctx, userID, role, s.limit)
	if err != nil {
		s.logger.Error("Failed to list transactions", map[string]any{
			"user_id": userID,
			"role":    role,
			"error":   err.Error(),
		})
		return nil, err
	}
	return txs, nil
}

// Summary aggregates per-status counts and escrow totals
func (s *Service) Summary(ctx context.Context, userID string) (*usecase.UserSummary, error) {
	txs, err := s.ListTransactions(ctx, userID, "")
	if err != nil {
		return nil, err
	}

	type statusKey struct {
		status   entity.Status
		currency string
	}
	byStatus := make(map[statusKey]*usecase.StatusCount)
	byCurrency := make(map[string]*usecase.CurrencySummary)
	currency := func(code string) *usecase.CurrencySummary {
		c, ok := byCurrency[code]
		if !ok {
			c = &usecase.CurrencySummary{Currency: code}
			byCurrency[code] = c
		}
		return c
	}

	for _, tx := range txs {
		key := statusKey{tx.Status, tx.Currency}
		sc, ok := byStatus[key]
		if !ok {
			sc = &usecase.StatusCount{Status: tx.Status, Currency: tx.Currency}
			byStatus[key] = sc
		}
		sc.Count++
		sc.Amount += tx.AmountTotal

		if tx.EscrowHeld() {
			currency(tx.Currency).EscrowHeld += tx.AmountTotal
		}
	}

	balances, err := s.escrow.Balances(ctx, userID)
	if err != nil {
		return nil, err
	}
	for code, b := range balances {
		c := currency(code)
		c.Released = b.Released
		c.Refunded = b.Refunded
	}

	summary := &usecase.UserSummary{UserID: userID}
	for _, sc := range byStatus {
		summary.ByStatus = append(summary.ByStatus, *sc)
	}
	// lifecycle order, then currency
	rank := make(map[entity.Status]int, len(entity.AllStatuses))
	for i, status := range entity.AllStatuses {
		rank[status] = i
	}
	sort.Slice(summary.ByStatus, func(i, j int) bool {
		a, b := summary.ByStatus[i], summary.ByStatus[j]
		if a.Status != b.Status {
			return rank[a.Status] < rank[b.Status]
		}
		return a.Currency < b.Currency
	})
	for _, c := range byCurrency {
		summary.ByCurrency = append(summary.ByCurrency, *c)
	}
	sort.Slice(summary.ByCurrency, func(i, j int) bool {
		return summary.ByCurrency[i].Currency < summary.ByCurrency[j].Currency
	})

	return summary, nil
}
