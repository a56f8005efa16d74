package entity

import (
	"slices"
	"strings"
	"time"

	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
	tport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/google/uuid"
)

// Status is the canonical lifecycle state of a transaction
type Status string

// Canonical statuses
const (
	StatusCreated        Status = "created"
	StatusPendingPayment Status = "pending_payment"
	StatusPaid           Status = "paid"
	StatusAccepted       Status = "accepted"
	StatusShipped        Status = "shipped"
	StatusReceived       Status = "received"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

// AllStatuses lists every canonical status in lifecycle order
var AllStatuses = []Status{
	StatusCreated,
	StatusPendingPayment,
	StatusPaid,
	StatusAccepted,
	StatusShipped,
	StatusReceived,
	StatusCompleted,
	StatusCancelled,
}

// IsValid reports whether s is one of the canonical statuses
func (s Status) IsValid() bool {
	return slices.Contains(AllStatuses, s)
}

// IsTerminal reports whether no further transition may leave the status
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsPreShipment reports whether goods have not yet left the seller
func (s Status) IsPreShipment() bool {
	switch s {
	case StatusCreated, StatusPendingPayment, StatusPaid, StatusAccepted:
		return true
	}
	return false
}

// PaymentMethod describes how the buyer pays
type PaymentMethod string

// Payment methods
const (
	PaymentPrepaidOnline  PaymentMethod = "prepaid_online"
	PaymentCashOnDelivery PaymentMethod = "cash_on_delivery"
)

// IsValid reports whether the payment method is known
func (m PaymentMethod) IsValid() bool {
	return m == PaymentPrepaidOnline || m == PaymentCashOnDelivery
}

// Origin records which historical shape created the transaction
type Origin string

// Origins
const (
	// OriginRequest is a buyer want accepted later by a traveler
	OriginRequest Origin = "request"
	// OriginCheckout is an order paid up front through the payment processor
	OriginCheckout Origin = "checkout"
)

// IsValid reports whether the origin is known
func (o Origin) IsValid() bool {
	return o == OriginRequest || o == OriginCheckout
}

// Vocabulary names the status strings a stored record uses
type Vocabulary string

// Status vocabularies
const (
	VocabularyCanonical Vocabulary = "canonical"
	VocabularyRequest   Vocabulary = "request"
	VocabularyCheckout  Vocabulary = "checkout"
)

// ActorRole identifies who issued an action
type ActorRole string

// Actor roles
const (
	RoleBuyer  ActorRole = "buyer"
	RoleSeller ActorRole = "seller"
	RoleSystem ActorRole = "system"
)

// RefundPath describes the monetary consequence of a cancellation
type RefundPath string

// Refund paths
const (
	RefundNone RefundPath = "none"
	RefundFull RefundPath = "full_refund"
)

// DefaultCancellationWindow is the fixed period after creation during which a buyer may cancel
const DefaultCancellationWindow = 48 * time.Hour

// LineItem is a single item the buyer wants brought from abroad
type LineItem struct {
	Name          string `json:"name" yaml:"name"`
	Quantity      int    `json:"quantity" yaml:"quantity"`
	UnitPrice     int64  `json:"unitPrice" yaml:"unitPrice"`
	SourceCountry string `json:"sourceCountry,omitempty" yaml:"sourceCountry,omitempty"`
}

// Transaction is the single record of a purchase from creation to settlement or reversal
type Transaction struct {
	ID                 string
	BuyerID            string
	SellerID           string // empty until accepted
	Origin             Origin
	Items              []LineItem
	AmountTotal        int64 // minor currency units
	Currency           string
	PaymentMethod      PaymentMethod
	Status             Status
	ExternalPaymentRef *string

	CreatedAt                 time.Time
	StatusChangedAt           time.Time
	CancellationEligibleUntil time.Time
	PaidAt                    *time.Time
	AcceptedAt                *time.Time
	ShippedAt                 *time.Time
	ReceivedAt                *time.Time
	CompletedAt               *time.Time
	CancelledAt               *time.Time
	CancelledBy               ActorRole
	RefundPath                RefundPath

	Version int64
}

// NewTransactionParams carries the buyer's input for a new transaction
type NewTransactionParams struct {
	BuyerID            string
	Items              []LineItem
	AmountTotal        int64
	Currency           string
	PaymentMethod      PaymentMethod
	ExternalPaymentRef string
	Origin             Origin
}

// NewTransaction validates the buyer's input and builds a transaction in its initial status.
// Prepaid orders start in pending_payment waiting for the processor; cash-on-delivery
// orders start in created.
func NewTransaction(p NewTransactionParams, timeProvider tport.TimeProvider, window time.Duration) (*Transaction, error) {
	if strings.TrimSpace(p.BuyerID) == "" {
		return nil, errs.NewValidationError("buyerId", "is required")
	}
	if len(p.Items) == 0 {
		return nil, errs.NewValidationError("items", "must contain at least one item")
	}
	for _, item := range p.Items {
		if strings.TrimSpace(item.Name) == "" {
			return nil, errs.NewValidationError("items.name", "is required")
		}
		if item.Quantity <= 0 {
			return nil, errs.NewValidationError("items.quantity", "must be positive")
		}
		if item.UnitPrice < 0 {
			return nil, errs.NewValidationError("items.unitPrice", "cannot be negative")
		}
	}
	if p.AmountTotal <= 0 {
		return nil, errs.NewValidationError("amountTotal", "must be positive")
	}
	if p.AmountTotal > maxAmount {
		return nil, errs.NewValidationError("amountTotal", "is too large")
	}
	if !p.PaymentMethod.IsValid() {
		return nil, errs.NewValidationError("paymentMethod", "must be prepaid_online or cash_on_delivery")
	}

	ref := strings.TrimSpace(p.ExternalPaymentRef)
	if p.PaymentMethod == PaymentPrepaidOnline && ref == "" {
		return nil, errs.NewValidationError("externalPaymentRef", "is required for prepaid_online")
	}

	origin := p.Origin
	if origin == "" {
		origin = OriginRequest
		if p.PaymentMethod == PaymentPrepaidOnline {
			origin = OriginCheckout
		}
	}
	if !origin.IsValid() {
		return nil, errs.NewValidationError("origin", "must be request or checkout")
	}

	currency := strings.ToUpper(strings.TrimSpace(p.Currency))
	if currency == "" || len(currency) != 3 {
		return nil, errs.NewValidationError("currency", "must be a 3-letter ISO code")
	}

	if window <= 0 {
		window = DefaultCancellationWindow
	}

	now := timeProvider.Now().UTC()
	tx := &Transaction{
		ID:                        uuid.NewString(),
		BuyerID:                   strings.TrimSpace(p.BuyerID),
		Origin:                    origin,
		Items:                     append([]LineItem(nil), p.Items...),
		AmountTotal:               p.AmountTotal,
		Currency:                  currency,
		PaymentMethod:             p.PaymentMethod,
		Status:                    StatusCreated,
		CreatedAt:                 now,
		StatusChangedAt:           now,
		CancellationEligibleUntil: now.Add(window),
	}
	if ref != "" {
		tx.ExternalPaymentRef = &ref
	}
	if p.PaymentMethod == PaymentPrepaidOnline {
		tx.Status = StatusPendingPayment
	}

	return tx, nil
}

// EscrowHeld reports whether buyer funds are currently withheld from the seller
func (t *Transaction) EscrowHeld() bool {
	if t.PaymentMethod != PaymentPrepaidOnline {
		return false
	}
	switch t.Status {
	case StatusPaid, StatusAccepted, StatusShipped, StatusReceived:
		return true
	}
	return false
}

// PaymentRef returns the external payment reference or an empty string
func (t *Transaction) PaymentRef() string {
	if t.ExternalPaymentRef == nil {
		return ""
	}
	return *t.ExternalPaymentRef
}

// Clone returns a deep copy safe to mutate
func (t *Transaction) Clone() *Transaction {
	c := *t
	c.Items = append([]LineItem(nil), t.Items...)
	c.ExternalPaymentRef = clonePtr(t.ExternalPaymentRef)
	c.PaidAt = clonePtr(t.PaidAt)
	c.AcceptedAt = clonePtr(t.AcceptedAt)
	c.ShippedAt = clonePtr(t.ShippedAt)
	c.ReceivedAt = clonePtr(t.ReceivedAt)
	c.CompletedAt = clonePtr(t.CompletedAt)
	c.CancelledAt = clonePtr(t.CancelledAt)
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
