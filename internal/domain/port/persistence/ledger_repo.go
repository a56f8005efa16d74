package persistence

import (
	"context"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
)

// LedgerRepository stores escrow movements. Record is idempotent per (transaction, kind):
// a repeated call returns applied=false and leaves balances untouched.
type LedgerRepository interface {
	Record(ctx context.Context, entry *entity.LedgerEntry) (applied bool, err error)
	ListByTransaction(ctx context.Context, transactionID string) ([]*entity.LedgerEntry, error)
	ListByAccount(ctx context.Context, account string) ([]*entity.LedgerEntry, error)
}
