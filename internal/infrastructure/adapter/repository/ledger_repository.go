package repository

import (
	"context"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LedgerRepository implements LedgerRepository interface using GORM
type LedgerRepository struct {
	db     *gorm.DB
	logger coreport.Logger
}

// NewLedgerRepository creates a new LedgerRepository instance
func NewLedgerRepository(db *gorm.DB, logger coreport.Logger) *LedgerRepository {
	return &LedgerRepository{
		db:     db,
		logger: logger,
	}
}

// Record inserts the entry unless one of the same kind exists for the transaction
func (r *LedgerRepository) Record(ctx context.Context, entry *entity.LedgerEntry) (bool, error) {
	m := &model.LedgerEntry{
		TransactionID: entry.TransactionID,
		Kind:          string(entry.Kind),
		DebitAccount:  entry.DebitAccount,
		CreditAccount: entry.CreditAccount,
		Amount:        entry.Amount,
		Currency:      entry.Currency,
		CreatedAt:     entry.CreatedAt,
	}

	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "transaction_id"}, {Name: "kind"}},
			DoNothing: true,
		}).
		Create(m)
	if result.Error != nil {
		r.logger.Error("Failed to record ledger entry", map[string]any{
			"transaction_id": entry.TransactionID,
			"kind":           entry.Kind,
			"error":          result.Error.Error(),
		})
		return false, mapDBError(result.Error)
	}

	if result.RowsAffected == 0 {
		return false, nil
	}
	entry.ID = m.ID
	return true, nil
}

// ListByTransaction returns the transaction's entries in insertion order
func (r *LedgerRepository) ListByTransaction(ctx context.Context, transactionID string) ([]*entity.LedgerEntry, error) {
	return r.find(r.db.WithContext(ctx).Where("transaction_id = ?", transactionID))
}

// ListByAccount returns entries debiting or crediting account
func (r *LedgerRepository) ListByAccount(ctx context.Context, account string) ([]*entity.LedgerEntry, error) {
	return r.find(r.db.WithContext(ctx).Where("debit_account = ? OR credit_account = ?", account, account))
}

func (r *LedgerRepository) find(q *gorm.DB) ([]*entity.LedgerEntry, error) {
	var rows []model.LedgerEntry
	if err := q.Order("id ASC").Find(&rows).Error; err != nil {
		return nil, mapDBError(err)
	}

	entries := make([]*entity.LedgerEntry, len(rows))
	for i, m := range rows {
		entries[i] = &entity.LedgerEntry{
			ID:            m.ID,
			TransactionID: m.TransactionID,
			Kind:          entity.LedgerKind(m.Kind),
			DebitAccount:  m.DebitAccount,
			CreditAccount: m.CreditAccount,
			Amount:        m.Amount,
			Currency:      m.Currency,
			CreatedAt:     m.CreatedAt.UTC(),
		}
	}
	return entries, nil
}
