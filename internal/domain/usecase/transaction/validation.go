package transaction

import (
	"strings"
	"unicode"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/usecase"
)

const (
	maxIdentifierLength = 64
	maxItems            = 50
	maxItemNameLength   = 200
)

// TransactionValidator checks request shape before anything reaches the state machine
type TransactionValidator struct{}

// NewTransactionValidator creates a new TransactionValidator
func NewTransactionValidator() *TransactionValidator {
	return &TransactionValidator{}
}

// ValidateCreate validates a create request. Amount, currency and payment
// method rules live in entity.NewTransaction; this only bounds the input.
func (v *TransactionValidator) ValidateCreate(req usecase.CreateTransactionRequest) error {
	if err := v.ValidateIdentifier("buyerId", req.BuyerID); err != nil {
		return err
	}

	if len(req.Items) > maxItems {
		return errs.NewValidationError("items", "too many items")
	}
	for _, item := range req.Items {
		if len(item.Name) > maxItemNameLength {
			return errs.NewValidationError("items.name", "is too long")
		}
	}

	if req.ExternalPaymentRef != "" && len(req.ExternalPaymentRef) > 255 {
		return errs.NewValidationError("externalPaymentRef", "is too long")
	}

	return nil
}

// ValidateTransactionID checks a transaction identifier. Imported legacy
// records keep their original identifiers, so UUID format is not required.
func (v *TransactionValidator) ValidateTransactionID(id string) error {
	return v.ValidateIdentifier("transactionId", id)
}

// ValidateIdentifier checks an opaque identifier
func (v *TransactionValidator) ValidateIdentifier(field, id string) error {
	if id == "" {
		return errs.NewValidationError(field, "is required")
	}
	if len(id) > maxIdentifierLength {
		return errs.NewValidationError(field, "is too long")
	}
	if strings.IndexFunc(id, unicode.IsSpace) >= 0 {
		return errs.NewValidationError(field, "cannot contain whitespace")
	}
	return nil
}

// ParseActorRole converts the caller-declared role of a cancellation
func (v *TransactionValidator) ParseActorRole(role string) (entity.ActorRole, error) {
	switch entity.ActorRole(strings.ToLower(strings.TrimSpace(role))) {
	case entity.RoleBuyer:
		return entity.RoleBuyer, nil
	case entity.RoleSeller:
		return entity.RoleSeller, nil
	default:
		return "", errs.NewValidationError("role", "must be buyer or seller")
	}
}
