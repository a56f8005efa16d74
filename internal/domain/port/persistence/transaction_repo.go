package persistence

import (
	"context"
	"time"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
)

// TransactionRepository is the Transaction Record Store.
// Reads always return canonical statuses; legacy rows are translated on the way out.
type TransactionRepository interface {
	// Create saves a new transaction with version 1
	//
	// Possible errors:
	// - ErrDuplicateTransaction: If another transaction already uses the external payment reference
	// - ErrDatabaseConnection: If database connection fails
	Create(ctx context.Context, tx *entity.Transaction) error

	// GetByID retrieves a transaction by its identifier
	//
	// Possible errors:
	// - ErrTransactionNotFound: If transaction with the given ID doesn't exist
	// - ErrUnknownLegacyStatus: If a legacy row carries an unmapped status string
	// - ErrDatabaseConnection: If database connection fails
	GetByID(ctx context.Context, id string) (*entity.Transaction, error)

	// GetByExternalPaymentRef retrieves the transaction correlated to a processor session
	//
	// Possible errors:
	// - ErrTransactionNotFound: If no transaction carries the reference
	// - ErrDatabaseConnection: If database connection fails
	GetByExternalPaymentRef(ctx context.Context, ref string) (*entity.Transaction, error)

	// Update writes the lifecycle fields of tx if the stored version still equals
	// expectedVersion, then sets tx.Version to the new version. Identity fields,
	// amounts and the external payment reference are never written.
	//
	// Possible errors:
	// - ErrConcurrencyConflict: If the stored version moved on
	// - ErrTransactionNotFound: If transaction with the given ID doesn't exist
	// - ErrDatabaseConnection: If database connection fails
	Update(ctx context.Context, tx *entity.Transaction, expectedVersion int64) error

	// ListByParticipant returns transactions where the user is buyer or seller, newest first
	ListByParticipant(ctx context.Context, userID string, role entity.ActorRole, limit int) ([]*entity.Transaction, error)

	// ListStalePending returns pending_payment transactions whose cancellation deadline is before now
	ListStalePending(ctx context.Context, now time.Time, limit int) ([]*entity.Transaction, error)

	// ImportLegacy inserts a record that keeps its original status vocabulary
	//
	// Possible errors:
	// - ErrDuplicateTransaction: If the ID or external payment reference already exists
	ImportLegacy(ctx context.Context, tx *entity.Transaction, vocabulary entity.Vocabulary, legacyStatus string) error
}
