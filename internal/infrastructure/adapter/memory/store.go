// Package memory is an in-process implementation of the persistence ports.
// It backs the default development driver and the use-case tests. A unit of
// work stages its writes and applies them atomically on commit, re-checking
// every version fence under the store lock.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/lifecycle"
	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/persistence"
)

// record is a stored transaction with the vocabulary of its status string
type record struct {
	tx         *entity.Transaction
	vocabulary entity.Vocabulary
	rawStatus  string
}

// Store holds every table in memory
type Store struct {
	mu sync.RWMutex

	transactions map[string]*record
	byPaymentRef map[string]string

	ledger     []*entity.LedgerEntry
	ledgerKeys map[string]struct{}
	ledgerSeq  uint64

	events   []*entity.TransactionEvent
	eventSeq uint64

	deliveries map[string]*entity.WebhookDelivery
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		transactions: make(map[string]*record),
		byPaymentRef: make(map[string]string),
		ledgerKeys:   make(map[string]struct{}),
		deliveries:   make(map[string]*entity.WebhookDelivery),
	}
}

type writeKind int

const (
	writeCreate writeKind = iota
	writeUpdate
	writeImport
)

type stagedTx struct {
	kind       writeKind
	tx         *entity.Transaction
	expected   int64
	vocabulary entity.Vocabulary
	rawStatus  string
}

// session is the staged write set of one unit of work
type session struct {
	mu         sync.Mutex
	txs        []*stagedTx
	ledger     []*entity.LedgerEntry
	events     []*entity.TransactionEvent
	deliveries []*entity.WebhookDelivery
	published  []publishMark
	closed     bool
}

type publishMark struct {
	ids []uint64
	at  time.Time
}

type sessionKey struct{}

func sessionFrom(ctx context.Context) *session {
	s, _ := ctx.Value(sessionKey{}).(*session)
	return s
}

func ledgerKey(transactionID string, kind entity.LedgerKind) string {
	return transactionID + "/" + string(kind)
}

// commit validates the staged writes against current state and applies all of them or none
func (st *Store) commit(s *session) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := st.validate(s); err != nil {
		return err
	}

	for _, w := range s.txs {
		st.applyTx(w)
	}
	for _, e := range s.ledger {
		key := ledgerKey(e.TransactionID, e.Kind)
		if _, dup := st.ledgerKeys[key]; dup {
			continue
		}
		st.ledgerSeq++
		e.ID = st.ledgerSeq
		stored := *e
		st.ledger = append(st.ledger, &stored)
		st.ledgerKeys[key] = struct{}{}
	}
	for _, ev := range s.events {
		st.eventSeq++
		ev.ID = st.eventSeq
		st.events = append(st.events, cloneEvent(ev))
	}
	for _, d := range s.deliveries {
		if _, dup := st.deliveries[d.DeliveryID]; dup {
			continue
		}
		stored := *d
		st.deliveries[d.DeliveryID] = &stored
	}
	for _, m := range s.published {
		st.markPublished(m.ids, m.at)
	}
	return nil
}

func (st *Store) validate(s *session) error {
	seen := make(map[string]int64)
	for _, w := range s.txs {
		switch w.kind {
		case writeCreate, writeImport:
			if _, exists := st.transactions[w.tx.ID]; exists {
				return fmt.Errorf("%w: id %s", errs.ErrDuplicateTransaction, w.tx.ID)
			}
			if ref := w.tx.PaymentRef(); ref != "" {
				if _, exists := st.byPaymentRef[ref]; exists {
					return fmt.Errorf("%w: %s", errs.ErrDuplicateTransaction, ref)
				}
			}
			seen[w.tx.ID] = w.tx.Version
		case writeUpdate:
			current, staged := seen[w.tx.ID]
			if !staged {
				rec, ok := st.transactions[w.tx.ID]
				if !ok {
					return errs.ErrTransactionNotFound
				}
				current = rec.tx.Version
			}
			if current != w.expected {
				return fmt.Errorf("%w: transaction %s at version %d, expected %d",
					errs.ErrConcurrencyConflict, w.tx.ID, current, w.expected)
			}
			seen[w.tx.ID] = w.expected + 1
		}
	}
	return nil
}

func (st *Store) applyTx(w *stagedTx) {
	switch w.kind {
	case writeCreate, writeImport:
		st.transactions[w.tx.ID] = &record{
			tx:         w.tx.Clone(),
			vocabulary: w.vocabulary,
			rawStatus:  w.rawStatus,
		}
		if ref := w.tx.PaymentRef(); ref != "" {
			st.byPaymentRef[ref] = w.tx.ID
		}
	case writeUpdate:
		rec := st.transactions[w.tx.ID]
		next := rec.tx.Clone()
		copyLifecycle(next, w.tx.Clone())
		next.Version = w.expected + 1
		rec.tx = next
		rec.vocabulary = entity.VocabularyCanonical
		rec.rawStatus = string(next.Status)
	}
}

// copyLifecycle copies the fields an update may change
func copyLifecycle(dst, src *entity.Transaction) {
	dst.SellerID = src.SellerID
	dst.Status = src.Status
	dst.StatusChangedAt = src.StatusChangedAt
	dst.PaidAt = src.PaidAt
	dst.AcceptedAt = src.AcceptedAt
	dst.ShippedAt = src.ShippedAt
	dst.ReceivedAt = src.ReceivedAt
	dst.CompletedAt = src.CompletedAt
	dst.CancelledAt = src.CancelledAt
	dst.CancelledBy = src.CancelledBy
	dst.RefundPath = src.RefundPath
}

// canonical returns a normalized copy of the record
func (r *record) canonical() (*entity.Transaction, error) {
	status, err := lifecycle.Normalize(r.vocabulary, r.rawStatus)
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", r.tx.ID, err)
	}
	tx := r.tx.Clone()
	tx.Status = status
	return tx, nil
}

func cloneEvent(ev *entity.TransactionEvent) *entity.TransactionEvent {
	c := *ev
	if ev.Payload != nil {
		c.Payload = make(map[string]any, len(ev.Payload))
		for k, v := range ev.Payload {
			c.Payload[k] = v
		}
	}
	if ev.PublishedAt != nil {
		t := *ev.PublishedAt
		c.PublishedAt = &t
	}
	return &c
}

func sortNewestFirst(txs []*entity.Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
}

// UnitOfWork implements persistence.UnitOfWork over a Store
type UnitOfWork struct {
	store  *Store
	logger coreport.Logger
}

// NewUnitOfWork creates a unit of work over store
func NewUnitOfWork(store *Store, logger coreport.Logger) persistence.UnitOfWork {
	return &UnitOfWork{store: store, logger: logger}
}

// Begin starts a new staged session
func (u *UnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	if sessionFrom(ctx) != nil {
		return ctx, fmt.Errorf("unit of work already in progress")
	}
	u.logger.Debug("Beginning in-memory unit of work", nil)
	return context.WithValue(ctx, sessionKey{}, &session{}), nil
}

// Commit applies the staged writes atomically
func (u *UnitOfWork) Commit(ctx context.Context) error {
	s := sessionFrom(ctx)
	if s == nil {
		return fmt.Errorf("no transaction found in context")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("transaction has already been committed or rolled back")
	}
	s.closed = true

	if err := u.store.commit(s); err != nil {
		u.logger.Debug("In-memory commit rejected", map[string]any{"error": err.Error()})
		return err
	}
	return nil
}

// Rollback discards the staged writes
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	s := sessionFrom(ctx)
	if s == nil {
		return fmt.Errorf("no transaction found in context")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		u.logger.Warn("Transaction has already been committed or rolled back", nil)
		return nil
	}
	s.closed = true
	return nil
}

// GetTransactionRepository returns a transaction repository in the current session
func (u *UnitOfWork) GetTransactionRepository(ctx context.Context) persistence.TransactionRepository {
	return &TransactionRepository{store: u.store, session: sessionFrom(ctx)}
}

// GetLedgerRepository returns a ledger repository in the current session
func (u *UnitOfWork) GetLedgerRepository(ctx context.Context) persistence.LedgerRepository {
	return &LedgerRepository{store: u.store, session: sessionFrom(ctx)}
}

// GetEventRepository returns an event repository in the current session
func (u *UnitOfWork) GetEventRepository(ctx context.Context) persistence.EventRepository {
	return &EventRepository{store: u.store, session: sessionFrom(ctx)}
}

// GetWebhookDeliveryRepository returns a delivery repository in the current session
func (u *UnitOfWork) GetWebhookDeliveryRepository(ctx context.Context) persistence.WebhookDeliveryRepository {
	return &WebhookDeliveryRepository{store: u.store, session: sessionFrom(ctx)}
}
