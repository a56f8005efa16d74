package transaction

import (
	"context"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/lifecycle"
	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/persistence"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/usecase"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/usecase/escrow"
)

// DefaultConflictRetries is how many times a transition is retried with a fresh
// snapshot after losing an optimistic-concurrency race
const DefaultConflictRetries = 1

// Lookup loads the snapshot an event applies to, inside the unit of work
type Lookup func(ctx context.Context, repo persistence.TransactionRepository) (*entity.Transaction, error)

// ByID looks a transaction up by its identifier
func ByID(id string) Lookup {
	return func(ctx context.Context, repo persistence.TransactionRepository) (*entity.Transaction, error) {
		return repo.GetByID(ctx, id)
	}
}

// ByPaymentRef looks a transaction up by the processor's session reference
func ByPaymentRef(ref string) Lookup {
	return func(ctx context.Context, repo persistence.TransactionRepository) (*entity.Transaction, error) {
		return repo.GetByExternalPaymentRef(ctx, ref)
	}
}

// Decide builds the event for a fresh snapshot. Returning ok=false skips the
// write and reports a no-op. It is called again on every retry.
type Decide func(snapshot *entity.Transaction) (ev lifecycle.Event, ok bool, err error)

// Fixed always applies ev
func Fixed(ev lifecycle.Event) Decide {
	return func(*entity.Transaction) (lifecycle.Event, bool, error) {
		return ev, true, nil
	}
}

// TransactionManager runs each lifecycle transition as one unit of work:
// read snapshot, apply the state machine, write with version fencing, record
// escrow movements and the audit event, commit.
type TransactionManager struct {
	uow             persistence.UnitOfWork
	escrow          *escrow.Controller
	timeProvider    coreport.TimeProvider
	logger          coreport.Logger
	conflictRetries int
}

// NewTransactionManager creates a new transaction manager
func NewTransactionManager(
	uow persistence.UnitOfWork,
	escrowController *escrow.Controller,
	timeProvider coreport.TimeProvider,
	logger coreport.Logger,
) *TransactionManager {
	if escrowController == nil {
		panic("escrow controller cannot be nil")
	}

	return &TransactionManager{
		uow:             uow,
		escrow:          escrowController,
		timeProvider:    timeProvider,
		logger:          logger,
		conflictRetries: DefaultConflictRetries,
	}
}

// WithConflictRetries sets how many fresh-snapshot retries follow a concurrency conflict
func (m *TransactionManager) WithConflictRetries(retries int) *TransactionManager {
	if retries >= 0 {
		m.conflictRetries = retries
	}
	return m
}

// Create stores a new transaction together with its creation audit event
func (m *TransactionManager) Create(ctx context.Context, tx *entity.Transaction, actorID string) error {
	txCtx, err := m.uow.Begin(ctx)
	if err != nil {
		return err
	}

	if err := m.uow.GetTransactionRepository(txCtx).Create(txCtx, tx); err != nil {
		m.rollback(txCtx)
		return err
	}

	created := &entity.TransactionEvent{
		TransactionID: tx.ID,
		Event:         entity.EventCreated,
		ToStatus:      tx.Status,
		ActorID:       actorID,
		ActorRole:     entity.RoleBuyer,
		Payload: map[string]any{
			"origin":        string(tx.Origin),
			"paymentMethod": string(tx.PaymentMethod),
			"amountTotal":   tx.AmountTotal,
			"currency":      tx.Currency,
		},
		OccurredAt: tx.CreatedAt,
	}
	if err := m.uow.GetEventRepository(txCtx).Append(txCtx, created); err != nil {
		m.rollback(txCtx)
		return err
	}

	return m.uow.Commit(txCtx)
}

// ApplyEvent runs one transition. A lost optimistic-concurrency race is retried
// with a fresh snapshot up to the configured number of times; every other
// error is returned unchanged.
func (m *TransactionManager) ApplyEvent(ctx context.Context, lookup Lookup, decide Decide) (*usecase.TransitionResult, error) {
	for attempt := 0; ; attempt++ {
		result, err := m.applyOnce(ctx, lookup, decide)
		if err == nil {
			return result, nil
		}
		if !errs.IsConcurrencyConflict(err) || attempt >= m.conflictRetries {
			return nil, err
		}

		m.logger.Warn("Concurrent modification detected, retrying with fresh snapshot", map[string]any{
			"attempt":     attempt + 1,
			"max_retries": m.conflictRetries,
			"request_id":  coreport.RequestIDFrom(ctx),
		})
	}
}

func (m *TransactionManager) applyOnce(ctx context.Context, lookup Lookup, decide Decide) (*usecase.TransitionResult, error) {
	txCtx, err := m.uow.Begin(ctx)
	if err != nil {
		return nil, err
	}

	repo := m.uow.GetTransactionRepository(txCtx)
	snapshot, err := lookup(txCtx, repo)
	if err != nil {
		m.rollback(txCtx)
		return nil, err
	}

	ev, ok, err := decide(snapshot)
	if err != nil {
		m.rollback(txCtx)
		return nil, err
	}
	if !ok {
		m.rollback(txCtx)
		return &usecase.TransitionResult{Transaction: snapshot, From: snapshot.Status, NoOp: true}, nil
	}
	if ev.At.IsZero() {
		ev.At = m.timeProvider.Now().UTC()
	}

	out, err := lifecycle.Apply(snapshot, ev)
	if err != nil {
		m.rollback(txCtx)
		return nil, err
	}
	if out.NoOp {
		m.rollback(txCtx)
		m.logger.Info("Event had no effect", map[string]any{
			"transaction_id": snapshot.ID,
			"event":          ev.Type,
			"status":         snapshot.Status,
		})
		return &usecase.TransitionResult{Transaction: out.Next, From: out.From, NoOp: true}, nil
	}

	if err := repo.Update(txCtx, out.Next, snapshot.Version); err != nil {
		m.rollback(txCtx)
		return nil, err
	}

	if _, err := m.escrow.Execute(txCtx, out); err != nil {
		m.rollback(txCtx)
		return nil, err
	}

	if err := m.uow.GetEventRepository(txCtx).Append(txCtx, auditEvent(out)); err != nil {
		m.rollback(txCtx)
		return nil, err
	}

	if err := m.uow.Commit(txCtx); err != nil {
		return nil, err
	}

	m.logger.Info("Transaction transitioned", map[string]any{
		"transaction_id": out.Next.ID,
		"event":          ev.Type,
		"from":           out.From,
		"to":             out.To(),
		"actor_id":       ev.ActorID,
		"version":        out.Next.Version,
		"request_id":     coreport.RequestIDFrom(ctx),
	})

	return &usecase.TransitionResult{
		Transaction: out.Next,
		From:        out.From,
		Path:        out.Path,
	}, nil
}

func (m *TransactionManager) rollback(txCtx context.Context) {
	if err := m.uow.Rollback(txCtx); err != nil {
		m.logger.Error("Failed to roll back unit of work", map[string]any{
			"error": err.Error(),
		})
	}
}

func auditEvent(out *lifecycle.Outcome) *entity.TransactionEvent {
	payload := map[string]any{
		"version": out.Next.Version,
	}
	if len(out.Path) > 1 {
		path := make([]string, len(out.Path))
		for i, s := range out.Path {
			path[i] = string(s)
		}
		payload["path"] = path
	}
	if len(out.Effects) > 0 {
		effects := make([]string, len(out.Effects))
		for i, e := range out.Effects {
			effects[i] = string(e)
		}
		payload["effects"] = effects
	}
	if out.Cancellation != nil {
		payload["refundPath"] = string(out.Cancellation.RefundPath)
	}

	role := out.Event.ActorRole
	if role == "" {
		role = entity.RoleSystem
	}

	return &entity.TransactionEvent{
		TransactionID: out.Next.ID,
		Event:         out.Event.Type,
		FromStatus:    out.From,
		ToStatus:      out.To(),
		ActorID:       out.Event.ActorID,
		ActorRole:     role,
		Payload:       payload,
		OccurredAt:    out.Event.At,
	}
}
