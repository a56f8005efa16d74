package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/lifecycle"
)

// TransactionRepository implements persistence.TransactionRepository in memory
type TransactionRepository struct {
	store   *Store
	session *session
}

// Create stages a new transaction at version 1. Only canonical statuses are
// accepted; legacy values go through ImportLegacy.
func (r *TransactionRepository) Create(ctx context.Context, tx *entity.Transaction) error {
	if !tx.Status.IsValid() {
		return errs.NewValidationError("status", fmt.Sprintf("%q is not a canonical status", tx.Status))
	}
	if tx.Version == 0 {
		tx.Version = 1
	}
	return r.stage(&stagedTx{
		kind:       writeCreate,
		tx:         tx.Clone(),
		vocabulary: entity.VocabularyCanonical,
		rawStatus:  string(tx.Status),
	})
}

// ImportLegacy stages a record that keeps its original status vocabulary
func (r *TransactionRepository) ImportLegacy(ctx context.Context, tx *entity.Transaction, vocabulary entity.Vocabulary, legacyStatus string) error {
	if _, err := lifecycle.Normalize(vocabulary, legacyStatus); err != nil {
		return err
	}
	if tx.Version == 0 {
		tx.Version = 1
	}
	return r.stage(&stagedTx{
		kind:       writeImport,
		tx:         tx.Clone(),
		vocabulary: vocabulary,
		rawStatus:  legacyStatus,
	})
}

// GetByID returns the transaction with the given id
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*entity.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	rec, ok := r.lookup(id)
	if !ok {
		return nil, errs.ErrTransactionNotFound
	}
	return rec.canonical()
}

// GetByExternalPaymentRef returns the transaction correlated to ref
func (r *TransactionRepository) GetByExternalPaymentRef(ctx context.Context, ref string) (*entity.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	if r.session != nil {
		r.session.mu.Lock()
		for i := len(r.session.txs) - 1; i >= 0; i-- {
			w := r.session.txs[i]
			if w.tx.PaymentRef() == ref {
				id := w.tx.ID
				r.session.mu.Unlock()
				rec, _ := r.lookup(id)
				return rec.canonical()
			}
		}
		r.session.mu.Unlock()
	}

	id, ok := r.store.byPaymentRef[ref]
	if !ok {
		return nil, errs.ErrTransactionNotFound
	}
	rec, ok := r.lookup(id)
	if !ok {
		return nil, errs.ErrTransactionNotFound
	}
	return rec.canonical()
}

// Update stages a version-fenced write of the lifecycle fields
func (r *TransactionRepository) Update(ctx context.Context, tx *entity.Transaction, expectedVersion int64) error {
	r.store.mu.RLock()
	current, ok := r.lookup(tx.ID)
	r.store.mu.RUnlock()

	if !ok {
		return errs.ErrTransactionNotFound
	}
	if current.tx.Version != expectedVersion {
		return fmt.Errorf("%w: transaction %s at version %d, expected %d",
			errs.ErrConcurrencyConflict, tx.ID, current.tx.Version, expectedVersion)
	}

	if err := r.stage(&stagedTx{kind: writeUpdate, tx: tx.Clone(), expected: expectedVersion}); err != nil {
		return err
	}
	tx.Version = expectedVersion + 1
	return nil
}

// ListByParticipant returns the user's transactions, newest first
func (r *TransactionRepository) ListByParticipant(ctx context.Context, userID string, role entity.ActorRole, limit int) ([]*entity.Transaction, error) {
	return r.list(limit, sortNewestFirst, func(tx *entity.Transaction) bool {
		switch role {
		case entity.RoleBuyer:
			return tx.BuyerID == userID
		case entity.RoleSeller:
			return tx.SellerID == userID
		default:
			return tx.BuyerID == userID || tx.SellerID == userID
		}
	})
}

// ListStalePending returns pending_payment transactions past their deadline, oldest deadline first
func (r *TransactionRepository) ListStalePending(ctx context.Context, now time.Time, limit int) ([]*entity.Transaction, error) {
	return r.list(limit, func(txs []*entity.Transaction) {
		sort.SliceStable(txs, func(i, j int) bool {
			return txs[i].CancellationEligibleUntil.Before(txs[j].CancellationEligibleUntil)
		})
	}, func(tx *entity.Transaction) bool {
		return tx.Status == entity.StatusPendingPayment && tx.CancellationEligibleUntil.Before(now)
	})
}

func (r *TransactionRepository) list(limit int, order func([]*entity.Transaction), match func(*entity.Transaction) bool) ([]*entity.Transaction, error) {
	r.store.mu.RLock()
	ids := make([]string, 0, len(r.store.transactions))
	for id := range r.store.transactions {
		ids = append(ids, id)
	}
	var result []*entity.Transaction
	for _, id := range ids {
		rec, _ := r.lookup(id)
		tx, err := rec.canonical()
		if err != nil {
			r.store.mu.RUnlock()
			return nil, err
		}
		if match(tx) {
			result = append(result, tx)
		}
	}
	r.store.mu.RUnlock()

	order(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// lookup returns the record as this session sees it. The caller holds the store read lock.
func (r *TransactionRepository) lookup(id string) (*record, bool) {
	rec, ok := r.store.transactions[id]
	if r.session == nil {
		return rec, ok
	}

	r.session.mu.Lock()
	defer r.session.mu.Unlock()
	for _, w := range r.session.txs {
		if w.tx.ID != id {
			continue
		}
		switch w.kind {
		case writeCreate, writeImport:
			rec = &record{tx: w.tx, vocabulary: w.vocabulary, rawStatus: w.rawStatus}
			ok = true
		case writeUpdate:
			if !ok {
				continue
			}
			next := rec.tx.Clone()
			copyLifecycle(next, w.tx)
			next.Version = w.expected + 1
			rec = &record{tx: next, vocabulary: entity.VocabularyCanonical, rawStatus: string(next.Status)}
		}
	}
	return rec, ok
}

func (r *TransactionRepository) stage(w *stagedTx) error {
	if r.session == nil {
		return r.store.commit(&session{txs: []*stagedTx{w}})
	}

	r.session.mu.Lock()
	defer r.session.mu.Unlock()
	if r.session.closed {
		return fmt.Errorf("transaction has already been committed or rolled back")
	}
	r.session.txs = append(r.session.txs, w)
	return nil
}
