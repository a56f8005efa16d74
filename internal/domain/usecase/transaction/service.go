package transaction

import (
	"context"
	"errors"
	"time"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/lifecycle"
	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/persistence"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/usecase"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/usecase/escrow"
)

// Options tune the transaction service
type Options struct {
	CancellationWindow time.Duration
	ConflictRetries    int
	DefaultCurrency    string
}

// Service implements usecase.TransactionUseCase
type Service struct {
	uow          persistence.UnitOfWork
	manager      *TransactionManager
	validator    *TransactionValidator
	timeProvider coreport.TimeProvider
	logger       coreport.Logger
	opts         Options
}

var _ usecase.TransactionUseCase = (*Service)(nil)

// NewTransactionService creates a new transaction service
func NewTransactionService(
	uow persistence.UnitOfWork,
	escrowController *escrow.Controller,
	timeProvider coreport.TimeProvider,
	logger coreport.Logger,
	opts Options,
) *Service {
	if opts.CancellationWindow <= 0 {
		opts.CancellationWindow = entity.DefaultCancellationWindow
	}
	if opts.ConflictRetries < 0 {
		opts.ConflictRetries = DefaultConflictRetries
	}

	manager := NewTransactionManager(uow, escrowController, timeProvider, logger).
		WithConflictRetries(opts.ConflictRetries)

	return &Service{
		uow:          uow,
		manager:      manager,
		validator:    NewTransactionValidator(),
		timeProvider: timeProvider,
		logger:       logger,
		opts:         opts,
	}
}

// Manager exposes the transition runner to other use cases sharing the same store
func (s *Service) Manager() *TransactionManager {
	return s.manager
}

// Create validates and stores a new transaction
func (s *Service) Create(ctx context.Context, req usecase.CreateTransactionRequest) (*entity.Transaction, error) {
	if err := s.validator.ValidateCreate(req); err != nil {
		return nil, err
	}

	currency := req.Currency
	if currency == "" {
		currency = s.opts.DefaultCurrency
	}

	tx, err := entity.NewTransaction(entity.NewTransactionParams{
		BuyerID:            req.BuyerID,
		Items:              req.Items,
		AmountTotal:        req.AmountTotal,
		Currency:           currency,
		PaymentMethod:      req.PaymentMethod,
		ExternalPaymentRef: req.ExternalPaymentRef,
		Origin:             req.Origin,
	}, s.timeProvider, s.opts.CancellationWindow)
	if err != nil {
		return nil, err
	}

	if err := s.manager.Create(ctx, tx, req.BuyerID); err != nil {
		s.logFailure(ctx, "create", tx.ID, err)
		return nil, err
	}

	s.logger.Info("Transaction created", map[string]any{
		"transaction_id": tx.ID,
		"buyer_id":       tx.BuyerID,
		"status":         tx.Status,
		"payment_method": tx.PaymentMethod,
		"amount":         entity.FormatMinorUnits(tx.AmountTotal, tx.Currency),
		"currency":       tx.Currency,
		"request_id":     coreport.RequestIDFrom(ctx),
	})

	return tx, nil
}

// Get returns a transaction by id
func (s *Service) Get(ctx context.Context, id string) (*entity.Transaction, error) {
	if err := s.validator.ValidateTransactionID(id); err != nil {
		return nil, err
	}
	return s.uow.GetTransactionRepository(ctx).GetByID(ctx, id)
}

// Accept assigns sellerID to the transaction
func (s *Service) Accept(ctx context.Context, id, sellerID string) (*usecase.TransitionResult, error) {
	return s.act(ctx, "accept", id, "sellerId", lifecycle.Event{
		Type:      entity.EventSellerAccepted,
		ActorID:   sellerID,
		ActorRole: entity.RoleSeller,
	})
}

// MarkShipped records shipment by the assigned seller
func (s *Service) MarkShipped(ctx context.Context, id, sellerID string) (*usecase.TransitionResult, error) {
	return s.act(ctx, "ship", id, "sellerId", lifecycle.Event{
		Type:      entity.EventMarkShipped,
		ActorID:   sellerID,
		ActorRole: entity.RoleSeller,
	})
}

// ConfirmReceipt completes the transaction on the buyer's confirmation
func (s *Service) ConfirmReceipt(ctx context.Context, id, buyerID string) (*usecase.TransitionResult, error) {
	return s.act(ctx, "confirm_receipt", id, "buyerId", lifecycle.Event{
		Type:      entity.EventBuyerConfirmedReceipt,
		ActorID:   buyerID,
		ActorRole: entity.RoleBuyer,
	})
}

// Cancel cancels the transaction as the buyer or the assigned seller
func (s *Service) Cancel(ctx context.Context, id, actorID string, role entity.ActorRole) (*usecase.TransitionResult, error) {
	role, err := s.validator.ParseActorRole(string(role))
	if err != nil {
		return nil, err
	}

	eventType := entity.EventBuyerCancelled
	if role == entity.RoleSeller {
		eventType = entity.EventSellerCancelled
	}

	return s.act(ctx, "cancel", id, "actorId", lifecycle.Event{
		Type:      eventType,
		ActorID:   actorID,
		ActorRole: role,
	})
}

// Events returns the audit trail of a transaction
func (s *Service) Events(ctx context.Context, id string) ([]*entity.TransactionEvent, error) {
	if err := s.validator.ValidateTransactionID(id); err != nil {
		return nil, err
	}

	if _, err := s.uow.GetTransactionRepository(ctx).GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.uow.GetEventRepository(ctx).ListByTransaction(ctx, id)
}

func (s *Service) act(ctx context.Context, action, id, actorField string, ev lifecycle.Event) (*usecase.TransitionResult, error) {
	if err := s.validator.ValidateTransactionID(id); err != nil {
		return nil, err
	}
	if err := s.validator.ValidateIdentifier(actorField, ev.ActorID); err != nil {
		return nil, err
	}

	result, err := s.manager.ApplyEvent(ctx, ByID(id), Fixed(ev))
	if err != nil {
		s.logFailure(ctx, action, id, err)
		return nil, err
	}
	return result, nil
}

func (s *Service) logFailure(ctx context.Context, action, id string, err error) {
	fields := map[string]any{
		"action":         action,
		"transaction_id": id,
		"error":          err.Error(),
		"error_code":     errs.ErrorCode(err),
		"request_id":     coreport.RequestIDFrom(ctx),
	}

	var te *errs.TransitionError
	if errors.As(err, &te) {
		for k, v := range te.LogFields() {
			fields[k] = v
		}
	}

	if errs.IsClientError(err) {
		s.logger.Warn("Transaction action rejected", fields)
		return
	}
	s.logger.Error("Transaction action failed", fields)
}
