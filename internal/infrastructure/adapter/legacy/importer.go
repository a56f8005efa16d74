// Package legacy loads records written by the two older origination flows and
// stores them with their original status vocabulary.
package legacy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/lifecycle"
	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/persistence"
)

// File is the import document
type File struct {
	Records []Record `yaml:"records"`
}

// Item is a legacy line item
type Item struct {
	Name          string `yaml:"name"`
	Quantity      int    `yaml:"quantity"`
	UnitPrice     int64  `yaml:"unitPrice"`
	SourceCountry string `yaml:"sourceCountry"`
}

// Record is one Request or CheckoutOrder row. Status is kept exactly as the
// old flow wrote it; Vocabulary says which flow that was.
type Record struct {
	ID                        string     `yaml:"id"`
	Vocabulary                string     `yaml:"vocabulary"`
	Status                    string     `yaml:"status"`
	BuyerID                   string     `yaml:"buyerId"`
	SellerID                  string     `yaml:"sellerId"`
	PaymentMethod             string     `yaml:"paymentMethod"`
	Items                     []Item     `yaml:"items"`
	AmountTotal               int64      `yaml:"amountTotal"`
	Currency                  string     `yaml:"currency"`
	ExternalPaymentRef        string     `yaml:"externalPaymentRef"`
	CreatedAt                 time.Time  `yaml:"createdAt"`
	StatusChangedAt           *time.Time `yaml:"statusChangedAt"`
	CancellationEligibleUntil *time.Time `yaml:"cancellationEligibleUntil"`
}

// Load decodes an import document
func Load(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, fmt.Errorf("decode legacy records: %w", err)
	}
	return &f, nil
}

// ToTransaction validates the record and builds the transaction it describes.
// The returned status is the normalized one; the raw string is stored alongside.
func (rec Record) ToTransaction(window time.Duration) (*entity.Transaction, entity.Vocabulary, error) {
	vocabulary := entity.Vocabulary(strings.ToLower(strings.TrimSpace(rec.Vocabulary)))
	if vocabulary != entity.VocabularyRequest && vocabulary != entity.VocabularyCheckout {
		return nil, "", errs.NewValidationError("vocabulary", "must be request or checkout")
	}
	if strings.TrimSpace(rec.ID) == "" {
		return nil, "", errs.NewValidationError("id", "is required")
	}
	if strings.TrimSpace(rec.BuyerID) == "" {
		return nil, "", errs.NewValidationError("buyerId", "is required")
	}
	if rec.AmountTotal <= 0 {
		return nil, "", errs.NewValidationError("amountTotal", "must be positive")
	}
	if rec.CreatedAt.IsZero() {
		return nil, "", errs.NewValidationError("createdAt", "is required")
	}

	status, err := lifecycle.Normalize(vocabulary, rec.Status)
	if err != nil {
		return nil, "", err
	}

	origin := entity.OriginRequest
	method := entity.PaymentCashOnDelivery
	if vocabulary == entity.VocabularyCheckout {
		origin = entity.OriginCheckout
		method = entity.PaymentPrepaidOnline
	}
	if rec.PaymentMethod != "" {
		method = entity.PaymentMethod(rec.PaymentMethod)
		if !method.IsValid() {
			return nil, "", errs.NewValidationError("paymentMethod", "must be prepaid_online or cash_on_delivery")
		}
	}

	currency := strings.ToUpper(strings.TrimSpace(rec.Currency))
	if len(currency) != 3 {
		return nil, "", errs.NewValidationError("currency", "must be a 3-letter ISO code")
	}

	items := make([]entity.LineItem, len(rec.Items))
	for i, it := range rec.Items {
		items[i] = entity.LineItem{
			Name:          it.Name,
			Quantity:      it.Quantity,
			UnitPrice:     it.UnitPrice,
			SourceCountry: it.SourceCountry,
		}
	}

	if window <= 0 {
		window = entity.DefaultCancellationWindow
	}
	createdAt := rec.CreatedAt.UTC()
	changedAt := createdAt
	if rec.StatusChangedAt != nil {
		changedAt = rec.StatusChangedAt.UTC()
	}
	deadline := createdAt.Add(window)
	if rec.CancellationEligibleUntil != nil {
		deadline = rec.CancellationEligibleUntil.UTC()
	}

	tx := &entity.Transaction{
		ID:                        rec.ID,
		BuyerID:                   rec.BuyerID,
		SellerID:                  rec.SellerID,
		Origin:                    origin,
		Items:                     items,
		AmountTotal:               rec.AmountTotal,
		Currency:                  currency,
		PaymentMethod:             method,
		Status:                    status,
		CreatedAt:                 createdAt,
		StatusChangedAt:           changedAt,
		CancellationEligibleUntil: deadline,
	}
	if ref := strings.TrimSpace(rec.ExternalPaymentRef); ref != "" {
		tx.ExternalPaymentRef = &ref
	}
	return tx, vocabulary, nil
}

// Report counts what an import did
type Report struct {
	Imported   int
	Duplicates int
	Failed     int
	Errors     []error
}

// Importer stores legacy records, each in its own unit of work together with
// an audit event marking the import
type Importer struct {
	uow          persistence.UnitOfWork
	timeProvider coreport.TimeProvider
	logger       coreport.Logger
	window       time.Duration
}

// NewImporter creates a new importer
func NewImporter(uow persistence.UnitOfWork, timeProvider coreport.TimeProvider, logger coreport.Logger, window time.Duration) *Importer {
	return &Importer{
		uow:          uow,
		timeProvider: timeProvider,
		logger:       logger,
		window:       window,
	}
}

// Import stores every record. A duplicate id is counted and skipped; any other
// failure is collected and the import carries on.
func (im *Importer) Import(ctx context.Context, records []Record) (*Report, error) {
	report := &Report{}
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		err := im.importOne(ctx, rec)
		switch {
		case err == nil:
			report.Imported++
		case errors.Is(err, errs.ErrDuplicateTransaction):
			report.Duplicates++
			im.logger.Info("Legacy record already imported", map[string]any{"id": rec.ID})
		default:
			report.Failed++
			report.Errors = append(report.Errors, fmt.Errorf("record %d (%s): %w", i, rec.ID, err))
			im.logger.Warn("Failed to import legacy record", map[string]any{
				"id":         rec.ID,
				"vocabulary": rec.Vocabulary,
				"status":     rec.Status,
				"error":      err.Error(),
			})
		}
	}

	im.logger.Info("Legacy import finished", map[string]any{
		"imported":   report.Imported,
		"duplicates": report.Duplicates,
		"failed":     report.Failed,
	})
	return report, nil
}

func (im *Importer) importOne(ctx context.Context, rec Record) error {
	tx, vocabulary, err := rec.ToTransaction(im.window)
	if err != nil {
		return err
	}

	txCtx, err := im.uow.Begin(ctx)
	if err != nil {
		return err
	}

	if err := im.uow.GetTransactionRepository(txCtx).ImportLegacy(txCtx, tx, vocabulary, rec.Status); err != nil {
		_ = im.uow.Rollback(txCtx)
		return err
	}

	err = im.uow.GetEventRepository(txCtx).Append(txCtx, &entity.TransactionEvent{
		TransactionID: tx.ID,
		Event:         entity.EventCreated,
		ToStatus:      tx.Status,
		ActorID:       tx.BuyerID,
		ActorRole:     entity.RoleSystem,
		Payload: map[string]any{
			"imported":     true,
			"vocabulary":   string(vocabulary),
			"legacyStatus": rec.Status,
			"importedAt":   im.timeProvider.Now().UTC().Format(time.RFC3339),
		},
		OccurredAt: tx.CreatedAt,
	})
	if err != nil {
		_ = im.uow.Rollback(txCtx)
		return err
	}

	return im.uow.Commit(txCtx)
}
