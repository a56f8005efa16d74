package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/lifecycle"
	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TransactionRepository implements TransactionRepository interface using GORM
type TransactionRepository struct {
	db     *gorm.DB
	logger coreport.Logger
}

// NewTransactionRepository creates a new TransactionRepository instance
func NewTransactionRepository(db *gorm.DB, logger coreport.Logger) *TransactionRepository {
	return &TransactionRepository{
		db:     db,
		logger: logger,
	}
}

// entityToModel converts a transaction entity to a database model
func (r *TransactionRepository) entityToModel(tx *entity.Transaction, vocabulary entity.Vocabulary, status string) *model.Transaction {
	items := make(datatypes.JSONSlice[model.LineItem], len(tx.Items))
	for i, it := range tx.Items {
		items[i] = model.LineItem{
			Name:          it.Name,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice,
			SourceCountry: it.SourceCountry,
		}
	}

	return &model.Transaction{
		ID:                        tx.ID,
		BuyerID:                   tx.BuyerID,
		SellerID:                  tx.SellerID,
		Origin:                    string(tx.Origin),
		Items:                     items,
		AmountTotal:               tx.AmountTotal,
		Currency:                  tx.Currency,
		PaymentMethod:             string(tx.PaymentMethod),
		Status:                    status,
		StatusVocabulary:          string(vocabulary),
		ExternalPaymentRef:        tx.ExternalPaymentRef,
		CreatedAt:                 tx.CreatedAt,
		StatusChangedAt:           tx.StatusChangedAt,
		CancellationEligibleUntil: tx.CancellationEligibleUntil,
		PaidAt:                    tx.PaidAt,
		AcceptedAt:                tx.AcceptedAt,
		ShippedAt:                 tx.ShippedAt,
		ReceivedAt:                tx.ReceivedAt,
		CompletedAt:               tx.CompletedAt,
		CancelledAt:               tx.CancelledAt,
		CancelledBy:               string(tx.CancelledBy),
		RefundPath:                string(tx.RefundPath),
		Version:                   tx.Version,
	}
}

// modelToEntity converts a row to an entity, translating legacy statuses
func (r *TransactionRepository) modelToEntity(m *model.Transaction) (*entity.Transaction, error) {
	status, err := lifecycle.Normalize(entity.Vocabulary(m.StatusVocabulary), m.Status)
	if err != nil {
		r.logger.Error("Stored transaction has an unmapped status", map[string]any{
			"transaction_id": m.ID,
			"vocabulary":     m.StatusVocabulary,
			"status":         m.Status,
		})
		return nil, fmt.Errorf("transaction %s: %w", m.ID, err)
	}

	items := make([]entity.LineItem, len(m.Items))
	for i, it := range m.Items {
		items[i] = entity.LineItem{
			Name:          it.Name,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice,
			SourceCountry: it.SourceCountry,
		}
	}

	return &entity.Transaction{
		ID:                        m.ID,
		BuyerID:                   m.BuyerID,
		SellerID:                  m.SellerID,
		Origin:                    entity.Origin(m.Origin),
		Items:                     items,
		AmountTotal:               m.AmountTotal,
		Currency:                  m.Currency,
		PaymentMethod:             entity.PaymentMethod(m.PaymentMethod),
		Status:                    status,
		ExternalPaymentRef:        m.ExternalPaymentRef,
		CreatedAt:                 m.CreatedAt.UTC(),
		StatusChangedAt:           m.StatusChangedAt.UTC(),
		CancellationEligibleUntil: m.CancellationEligibleUntil.UTC(),
		PaidAt:                    utcPtr(m.PaidAt),
		AcceptedAt:                utcPtr(m.AcceptedAt),
		ShippedAt:                 utcPtr(m.ShippedAt),
		ReceivedAt:                utcPtr(m.ReceivedAt),
		CompletedAt:               utcPtr(m.CompletedAt),
		CancelledAt:               utcPtr(m.CancelledAt),
		CancelledBy:               entity.ActorRole(m.CancelledBy),
		RefundPath:                entity.RefundPath(m.RefundPath),
		Version:                   m.Version,
	}, nil
}

// Create saves a new transaction at version 1. Only canonical statuses are
// accepted; legacy values go through ImportLegacy.
func (r *TransactionRepository) Create(ctx context.Context, tx *entity.Transaction) error {
	if !tx.Status.IsValid() {
		return errs.NewValidationError("status", fmt.Sprintf("%q is not a canonical status", tx.Status))
	}
	if tx.Version == 0 {
		tx.Version = 1
	}
	return r.insert(ctx, r.entityToModel(tx, entity.VocabularyCanonical, string(tx.Status)))
}

// ImportLegacy inserts a record that keeps its original status vocabulary
func (r *TransactionRepository) ImportLegacy(ctx context.Context, tx *entity.Transaction, vocabulary entity.Vocabulary, legacyStatus string) error {
	if _, err := lifecycle.Normalize(vocabulary, legacyStatus); err != nil {
		return err
	}
	if tx.Version == 0 {
		tx.Version = 1
	}
	return r.insert(ctx, r.entityToModel(tx, vocabulary, legacyStatus))
}

func (r *TransactionRepository) insert(ctx context.Context, m *model.Transaction) error {
	r.logger.Debug("Creating transaction", map[string]any{
		"transaction_id": m.ID,
		"vocabulary":     m.StatusVocabulary,
	})

	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		if isDuplicateKey(err) {
			r.logger.Warn("Duplicate transaction detected", map[string]any{
				"transaction_id": m.ID,
			})
			return errs.ErrDuplicateTransaction
		}

		r.logger.Error("Failed to create transaction", map[string]any{
			"transaction_id": m.ID,
			"error":          err.Error(),
		})
		return mapDBError(err)
	}
	return nil
}

// GetByID retrieves a transaction by its identifier
func (r *TransactionRepository) GetByID(ctx context.Context, id string) (*entity.Transaction, error) {
	return r.first(ctx, "id = ?", id)
}

// GetByExternalPaymentRef retrieves the transaction correlated to a processor session
func (r *TransactionRepository) GetByExternalPaymentRef(ctx context.Context, ref string) (*entity.Transaction, error) {
	return r.first(ctx, "external_payment_ref = ?", ref)
}

func (r *TransactionRepository) first(ctx context.Context, query string, arg any) (*entity.Transaction, error) {
	var m model.Transaction
	err := r.db.WithContext(ctx).Where(query, arg).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrTransactionNotFound
		}
		r.logger.Error("Failed to get transaction", map[string]any{
			"query": query,
			"arg":   arg,
			"error": err.Error(),
		})
		return nil, mapDBError(err)
	}
	return r.modelToEntity(&m)
}

// Update writes the lifecycle fields if the stored version is still expectedVersion.
// The row is rewritten in the canonical vocabulary.
func (r *TransactionRepository) Update(ctx context.Context, tx *entity.Transaction, expectedVersion int64) error {
	result := r.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("id = ? AND version = ?", tx.ID, expectedVersion).
		Updates(map[string]any{
			"seller_id":         tx.SellerID,
			"status":            string(tx.Status),
			"status_vocabulary": string(entity.VocabularyCanonical),
			"status_changed_at": tx.StatusChangedAt,
			"paid_at":           tx.PaidAt,
			"accepted_at":       tx.AcceptedAt,
			"shipped_at":        tx.ShippedAt,
			"received_at":       tx.ReceivedAt,
			"completed_at":      tx.CompletedAt,
			"cancelled_at":      tx.CancelledAt,
			"cancelled_by":      string(tx.CancelledBy),
			"refund_path":       string(tx.RefundPath),
			"version":           gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		r.logger.Error("Failed to update transaction", map[string]any{
			"transaction_id": tx.ID,
			"error":          result.Error.Error(),
		})
		return mapDBError(result.Error)
	}

	if result.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&model.Transaction{}).Where("id = ?", tx.ID).Count(&count).Error; err != nil {
			return mapDBError(err)
		}
		if count == 0 {
			return errs.ErrTransactionNotFound
		}
		r.logger.Debug("Version fence rejected update", map[string]any{
			"transaction_id":   tx.ID,
			"expected_version": expectedVersion,
		})
		return fmt.Errorf("%w: transaction %s moved past version %d",
			errs.ErrConcurrencyConflict, tx.ID, expectedVersion)
	}

	tx.Version = expectedVersion + 1
	return nil
}

// ListByParticipant returns transactions where the user is buyer or seller, newest first
func (r *TransactionRepository) ListByParticipant(ctx context.Context, userID string, role entity.ActorRole, limit int) ([]*entity.Transaction, error) {
	q := r.db.WithContext(ctx).Model(&model.Transaction{})
	switch role {
	case entity.RoleBuyer:
		q = q.Where("buyer_id = ?", userID)
	case entity.RoleSeller:
		q = q.Where("seller_id = ?", userID)
	default:
		q = q.Where("buyer_id = ? OR seller_id = ?", userID, userID)
	}
	q = q.Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return r.find(q)
}

// ListStalePending returns pending_payment transactions whose deadline is before now.
// Only the canonical and checkout vocabularies spell pending_payment this way.
func (r *TransactionRepository) ListStalePending(ctx context.Context, now time.Time, limit int) ([]*entity.Transaction, error) {
	q := r.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("status = ? AND status_vocabulary IN ?", string(entity.StatusPendingPayment),
			[]string{string(entity.VocabularyCanonical), string(entity.VocabularyCheckout)}).
		Where("cancellation_eligible_until < ?", now).
		Order("cancellation_eligible_until ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return r.find(q)
}

func (r *TransactionRepository) find(q *gorm.DB) ([]*entity.Transaction, error) {
	var rows []model.Transaction
	if err := q.Find(&rows).Error; err != nil {
		r.logger.Error("Failed to list transactions", map[string]any{"error": err.Error()})
		return nil, mapDBError(err)
	}

	result := make([]*entity.Transaction, 0, len(rows))
	for i := range rows {
		tx, err := r.modelToEntity(&rows[i])
		if err != nil {
			return nil, err
		}
		result = append(result, tx)
	}
	return result, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
