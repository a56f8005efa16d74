package migration

import (
	"context"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"gorm.io/gorm"
)

// BackfillStatusVocabulary tags rows written before status_vocabulary existed.
// Those rows hold the strings of whichever flow created them; a row whose
// status is not a canonical string is tagged with its origin's vocabulary.
// Canonical-looking strings mean the same thing in every vocabulary, so
// those rows stay canonical. Running it twice is harmless.
type BackfillStatusVocabulary struct {
	db     *gorm.DB
	logger coreport.Logger
}

// NewBackfillStatusVocabulary creates a new migration instance
func NewBackfillStatusVocabulary(db *gorm.DB, logger coreport.Logger) *BackfillStatusVocabulary {
	return &BackfillStatusVocabulary{
		db:     db,
		logger: logger,
	}
}

// Run executes the migration
func (m *BackfillStatusVocabulary) Run(ctx context.Context) error {
	m.logger.Info("Backfilling status_vocabulary on legacy transactions", nil)

	canonical := make([]string, 0, len(entity.AllStatuses))
	for _, s := range entity.AllStatuses {
		canonical = append(canonical, string(s))
	}

	targets := map[entity.Origin]entity.Vocabulary{
		entity.OriginRequest:  entity.VocabularyRequest,
		entity.OriginCheckout: entity.VocabularyCheckout,
	}

	for origin, vocabulary := range targets {
		result := m.db.WithContext(ctx).
			Table("transactions").
			Where("origin = ? AND status_vocabulary = ? AND status NOT IN ?",
				string(origin), string(entity.VocabularyCanonical), canonical).
			Update("status_vocabulary", string(vocabulary))
		if result.Error != nil {
			m.logger.Error("Failed to backfill status_vocabulary", map[string]any{
				"origin": origin,
				"error":  result.Error.Error(),
			})
			return result.Error
		}

		m.logger.Info("Backfilled status_vocabulary", map[string]any{
			"origin":     origin,
			"vocabulary": vocabulary,
			"rows":       result.RowsAffected,
		})
	}

	return nil
}
