package migration

import (
	"context"

	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"gorm.io/gorm"
)

// AdvancedIndexManager manages PostgreSQL-specific advanced indexes
type AdvancedIndexManager struct {
	db     *gorm.DB
	logger coreport.Logger
}

// NewAdvancedIndexManager creates a new advanced index manager
func NewAdvancedIndexManager(db *gorm.DB, logger coreport.Logger) *AdvancedIndexManager {
	return &AdvancedIndexManager{
		db:     db,
		logger: logger,
	}
}

type indexStatement struct {
	name string
	sql  string
}

var advancedIndexes = []indexStatement{
	{
		// sweeper scan: only pending rows are ever expired
		name: "idx_transactions_stale_pending",
		sql: `CREATE INDEX IF NOT EXISTS idx_transactions_stale_pending
			ON transactions (cancellation_eligible_until)
			WHERE status = 'pending_payment'`,
	},
	{
		// outbox relay scan
		name: "idx_transaction_events_unpublished",
		sql: `CREATE INDEX IF NOT EXISTS idx_transaction_events_unpublished
			ON transaction_events (id)
			WHERE published_at IS NULL`,
	},
	{
		name: "idx_transaction_events_occurred_brin",
		sql: `CREATE INDEX IF NOT EXISTS idx_transaction_events_occurred_brin
			ON transaction_events USING BRIN (occurred_at)
			WITH (pages_per_range = 32)`,
	},
	{
		name: "idx_webhook_deliveries_processed_brin",
		sql: `CREATE INDEX IF NOT EXISTS idx_webhook_deliveries_processed_brin
			ON webhook_deliveries USING BRIN (processed_at)`,
	},
}

// CreateAdvancedIndexes creates partial and BRIN indexes
func (m *AdvancedIndexManager) CreateAdvancedIndexes(ctx context.Context) error {
	m.logger.Info("Creating advanced PostgreSQL indexes", nil)

	for _, idx := range advancedIndexes {
		if err := m.db.WithContext(ctx).Exec(idx.sql).Error; err != nil {
			m.logger.Error("Failed to create index", map[string]any{
				"index": idx.name,
				"error": err.Error(),
			})
			return err
		}
	}

	m.logger.Info("Advanced PostgreSQL indexes created successfully", nil)
	return nil
}

// CreatePerformanceTweaks applies PostgreSQL storage settings; failures are logged only
func (m *AdvancedIndexManager) CreatePerformanceTweaks(ctx context.Context) {
	m.logger.Info("Applying PostgreSQL performance tweaks", nil)

	// transaction rows are updated in place on every transition
	if err := m.db.WithContext(ctx).Exec(`ALTER TABLE transactions SET (fillfactor = 85)`).Error; err != nil {
		m.logger.Warn("Failed to set fillfactor for transactions table", map[string]any{
			"error": err.Error(),
		})
	}

	if err := m.db.WithContext(ctx).Exec(`ALTER TABLE transactions ALTER COLUMN buyer_id SET STATISTICS 1000`).Error; err != nil {
		m.logger.Warn("Failed to set statistics target for buyer_id", map[string]any{
			"error": err.Error(),
		})
	}
}
