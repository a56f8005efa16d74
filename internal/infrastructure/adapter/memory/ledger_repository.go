package memory

import (
	"context"
	"fmt"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
)

// LedgerRepository implements persistence.LedgerRepository in memory
type LedgerRepository struct {
	store   *Store
	session *session
}

// Record stages entry unless an entry of the same kind exists for the transaction
func (r *LedgerRepository) Record(ctx context.Context, entry *entity.LedgerEntry) (bool, error) {
	key := ledgerKey(entry.TransactionID, entry.Kind)

	r.store.mu.RLock()
	_, exists := r.store.ledgerKeys[key]
	r.store.mu.RUnlock()
	if exists {
		return false, nil
	}

	if r.session == nil {
		r.store.mu.Lock()
		defer r.store.mu.Unlock()
		if _, exists := r.store.ledgerKeys[key]; exists {
			return false, nil
		}
		r.store.ledgerSeq++
		entry.ID = r.store.ledgerSeq
		stored := *entry
		r.store.ledger = append(r.store.ledger, &stored)
		r.store.ledgerKeys[key] = struct{}{}
		return true, nil
	}

	r.session.mu.Lock()
	defer r.session.mu.Unlock()
	if r.session.closed {
		return false, fmt.Errorf("transaction has already been committed or rolled back")
	}
	for _, staged := range r.session.ledger {
		if ledgerKey(staged.TransactionID, staged.Kind) == key {
			return false, nil
		}
	}
	r.session.ledger = append(r.session.ledger, entry)
	return true, nil
}

// ListByTransaction returns the transaction's entries in insertion order
func (r *LedgerRepository) ListByTransaction(ctx context.Context, transactionID string) ([]*entity.LedgerEntry, error) {
	return r.filter(func(e *entity.LedgerEntry) bool {
		return e.TransactionID == transactionID
	}), nil
}

// ListByAccount returns entries debiting or crediting account
func (r *LedgerRepository) ListByAccount(ctx context.Context, account string) ([]*entity.LedgerEntry, error) {
	return r.filter(func(e *entity.LedgerEntry) bool {
		return e.DebitAccount == account || e.CreditAccount == account
	}), nil
}

func (r *LedgerRepository) filter(match func(*entity.LedgerEntry) bool) []*entity.LedgerEntry {
	var result []*entity.LedgerEntry

	r.store.mu.RLock()
	for _, e := range r.store.ledger {
		if match(e) {
			c := *e
			result = append(result, &c)
		}
	}
	r.store.mu.RUnlock()

	if r.session != nil {
		r.session.mu.Lock()
		for _, e := range r.session.ledger {
			if match(e) {
				c := *e
				result = append(result, &c)
			}
		}
		r.session.mu.Unlock()
	}
	return result
}
