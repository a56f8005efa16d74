package database

import (
	"context"
	"fmt"
	"strings"

	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/persistence"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/repository"
	"gorm.io/gorm"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

// Context keys
const txKey contextKey = "tx"

// UnitOfWork implements the unit of work pattern for database transactions.
// Isolation stays at the driver default; lost updates are prevented by the
// version fence in TransactionRepository.Update and the unique ledger key.
type UnitOfWork struct {
	db          *gorm.DB
	logger      coreport.Logger
	errorMapper *ErrorMapper
	metrics     *MetricsCollector
	retry       RetryConfig
}

// NewUnitOfWork creates a new UnitOfWork instance
func NewUnitOfWork(db *gorm.DB, logger coreport.Logger, timeProvider coreport.TimeProvider) persistence.UnitOfWork {
	return &UnitOfWork{
		db:          db,
		logger:      logger,
		errorMapper: NewErrorMapper(),
		metrics:     NewMetricsCollector(logger, timeProvider),
		retry:       DefaultRetryConfig(),
	}
}

// Begin starts a new database transaction
func (u *UnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	if existing, ok := ctx.Value(txKey).(*gorm.DB); ok && existing != nil {
		return ctx, fmt.Errorf("unit of work already in progress")
	}

	u.logger.Debug("Beginning database transaction", nil)

	var tx *gorm.DB
	err := RetryOnTransientError(ctx, u.retry, func() error {
		tx = u.db.WithContext(ctx).Begin()
		return tx.Error
	}, u.logger)
	if err != nil {
		u.logger.Error("Failed to begin transaction", map[string]any{"error": err.Error()})
		return ctx, u.errorMapper.MapError(err, "begin")
	}

	return context.WithValue(ctx, txKey, tx), nil
}

// Commit commits the current transaction
func (u *UnitOfWork) Commit(ctx context.Context) error {
	tx, ok := ctx.Value(txKey).(*gorm.DB)
	if !ok || tx == nil {
		return fmt.Errorf("no transaction found in context")
	}

	u.logger.Debug("Committing database transaction", nil)
	_, err := u.metrics.Measure("commit", func() error {
		return tx.Commit().Error
	})
	if err != nil {
		mapped := u.errorMapper.MapError(err, "commit")
		u.logger.Error("Failed to commit transaction", map[string]any{
			"error":      err.Error(),
			"request_id": coreport.RequestIDFrom(ctx),
		})
		return mapped
	}

	return nil
}

// Rollback rolls back the current transaction
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	tx, ok := ctx.Value(txKey).(*gorm.DB)
	if !ok || tx == nil {
		return fmt.Errorf("no transaction found in context")
	}

	u.logger.Debug("Rolling back database transaction", nil)

	err := tx.Rollback().Error

	// already finished: warn, not fail
	if err != nil && strings.Contains(err.Error(), "already been committed or rolled back") {
		u.logger.Warn("Transaction has already been committed or rolled back", map[string]any{
			"error": err.Error(),
		})
		return nil
	}

	if err != nil {
		u.logger.Error("Failed to rollback transaction", map[string]any{
			"error": err.Error(),
		})
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	return nil
}

// GetTransactionRepository returns a transaction repository in the current transaction
func (u *UnitOfWork) GetTransactionRepository(ctx context.Context) persistence.TransactionRepository {
	return repository.NewTransactionRepository(u.getDbFromContext(ctx), u.logger)
}

// GetLedgerRepository returns a ledger repository in the current transaction
func (u *UnitOfWork) GetLedgerRepository(ctx context.Context) persistence.LedgerRepository {
	return repository.NewLedgerRepository(u.getDbFromContext(ctx), u.logger)
}

// GetEventRepository returns an event repository in the current transaction
func (u *UnitOfWork) GetEventRepository(ctx context.Context) persistence.EventRepository {
	return repository.NewEventRepository(u.getDbFromContext(ctx), u.logger)
}

// GetWebhookDeliveryRepository returns a delivery repository in the current transaction
func (u *UnitOfWork) GetWebhookDeliveryRepository(ctx context.Context) persistence.WebhookDeliveryRepository {
	return repository.NewWebhookDeliveryRepository(u.getDbFromContext(ctx))
}

// getDbFromContext retrieves the database instance from context
func (u *UnitOfWork) getDbFromContext(ctx context.Context) *gorm.DB {
	tx, ok := ctx.Value(txKey).(*gorm.DB)
	if ok && tx != nil {
		return tx
	}
	return u.db.WithContext(ctx)
}
