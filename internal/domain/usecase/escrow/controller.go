// Package escrow moves buyer funds between the buyer, the escrow account and
// the seller's payable balance as lifecycle outcomes require.
package escrow

import (
	"context"
	"fmt"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/lifecycle"
	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/persistence"
)

// Controller executes escrow effects against the ledger
type Controller struct {
	uow          persistence.UnitOfWork
	timeProvider coreport.TimeProvider
	logger       coreport.Logger
}

// NewController creates a new escrow controller
func NewController(uow persistence.UnitOfWork, timeProvider coreport.TimeProvider, logger coreport.Logger) *Controller {
	return &Controller{
		uow:          uow,
		timeProvider: timeProvider,
		logger:       logger,
	}
}

// Execute records the ledger movements the outcome carries. ctx must be the
// unit-of-work context of the status write so both commit or neither does.
// Repeated execution of the same outcome records nothing new.
func (c *Controller) Execute(ctx context.Context, out *lifecycle.Outcome) ([]*entity.LedgerEntry, error) {
	if len(out.Effects) == 0 {
		return nil, nil
	}

	ledger := c.uow.GetLedgerRepository(ctx)
	tx := out.Next

	var recorded []*entity.LedgerEntry
	for _, effect := range out.Effects {
		entry, err := c.entryFor(tx, effect)
		if err != nil {
			return nil, err
		}

		if entry.Kind != entity.LedgerHold {
			if err := c.ensureNotSettled(ctx, ledger, tx, entry.Kind); err != nil {
				return nil, err
			}
		}

		applied, err := ledger.Record(ctx, entry)
		if err != nil {
			return nil, fmt.Errorf("failed to record %s for transaction %s: %w", entry.Kind, tx.ID, err)
		}
		if !applied {
			c.logger.Info("Escrow movement already recorded", map[string]any{
				"transaction_id": tx.ID,
				"kind":           entry.Kind,
			})
			continue
		}

		c.logger.Info("Escrow movement recorded", map[string]any{
			"transaction_id": tx.ID,
			"kind":           entry.Kind,
			"debit":          entry.DebitAccount,
			"credit":         entry.CreditAccount,
			"amount":         entity.FormatMinorUnits(entry.Amount, entry.Currency),
			"currency":       entry.Currency,
		})
		recorded = append(recorded, entry)
	}

	return recorded, nil
}

func (c *Controller) entryFor(tx *entity.Transaction, effect lifecycle.Effect) (*entity.LedgerEntry, error) {
	entry := &entity.LedgerEntry{
		TransactionID: tx.ID,
		Amount:        tx.AmountTotal,
		Currency:      tx.Currency,
		CreatedAt:     c.timeProvider.Now().UTC(),
	}

	switch effect {
	case lifecycle.EffectHoldEscrow:
		entry.Kind = entity.LedgerHold
		entry.DebitAccount = entity.BuyerAccount(tx.BuyerID)
		entry.CreditAccount = entity.AccountEscrow
	case lifecycle.EffectReleaseEscrow:
		if tx.SellerID == "" {
			return nil, fmt.Errorf("%w: release without an assigned seller on %s", errs.ErrInternalServer, tx.ID)
		}
		entry.Kind = entity.LedgerRelease
		entry.DebitAccount = entity.AccountEscrow
		entry.CreditAccount = entity.SellerAccount(tx.SellerID)
	case lifecycle.EffectRefundBuyer:
		entry.Kind = entity.LedgerRefund
		entry.DebitAccount = entity.AccountEscrow
		entry.CreditAccount = entity.BuyerAccount(tx.BuyerID)
	default:
		return nil, fmt.Errorf("%w: unknown escrow effect %q", errs.ErrInternalServer, effect)
	}

	return entry, nil
}

// ensureNotSettled guards the rule that escrow is either released or refunded, never both
func (c *Controller) ensureNotSettled(ctx context.Context, ledger persistence.LedgerRepository, tx *entity.Transaction, kind entity.LedgerKind) error {
	entries, err := ledger.ListByTransaction(ctx, tx.ID)
	if err != nil {
		return fmt.Errorf("failed to read ledger for transaction %s: %w", tx.ID, err)
	}

	held := false
	for _, e := range entries {
		switch {
		case e.Kind == entity.LedgerHold:
			held = true
		case e.Kind != kind:
			c.logger.Error("Escrow already settled the other way", map[string]any{
				"transaction_id": tx.ID,
				"settled_as":     e.Kind,
				"requested":      kind,
			})
			return fmt.Errorf("%w: escrow for %s already settled as %s", errs.ErrInternalServer, tx.ID, e.Kind)
		}
	}

	if !held {
		c.logger.Warn("Settling escrow without a recorded hold", map[string]any{
			"transaction_id": tx.ID,
			"kind":           kind,
		})
	}
	return nil
}

// Balance is a user's settled escrow figures in one currency, in minor units
type Balance struct {
	Currency string
	Released int64
	Refunded int64
}

// Balances returns what was released to the user as seller and refunded to
// the user as buyer, per currency
func (c *Controller) Balances(ctx context.Context, userID string) (map[string]*Balance, error) {
	ledger := c.uow.GetLedgerRepository(ctx)
	balances := make(map[string]*Balance)

	get := func(currency string) *Balance {
		b, ok := balances[currency]
		if !ok {
			b = &Balance{Currency: currency}
			balances[currency] = b
		}
		return b
	}

	sellerEntries, err := ledger.ListByAccount(ctx, entity.SellerAccount(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to read seller ledger: %w", err)
	}
	for _, e := range sellerEntries {
		if e.Kind == entity.LedgerRelease {
			get(e.Currency).Released += e.Amount
		}
	}

	buyerEntries, err := ledger.ListByAccount(ctx, entity.BuyerAccount(userID))
	if err != nil {
		return nil, fmt.Errorf("failed to read buyer ledger: %w", err)
	}
	for _, e := range buyerEntries {
		if e.Kind == entity.LedgerRefund {
			get(e.Currency).Refunded += e.Amount
		}
	}

	return balances, nil
}
