package model

import (
	"time"

	"gorm.io/datatypes"
)

// LineItem is the stored shape of one requested item
type LineItem struct {
	Name          string `json:"name"`
	Quantity      int    `json:"quantity"`
	UnitPrice     int64  `json:"unitPrice"`
	SourceCountry string `json:"sourceCountry,omitempty"`
}

// Transaction represents the database model for transactions.
// Status holds a string of StatusVocabulary; legacy rows keep their original strings.
type Transaction struct {
	ID                 string                        `gorm:"primaryKey;size:64"`
	BuyerID            string                        `gorm:"not null;size:64;index"`
	SellerID           string                        `gorm:"not null;size:64;default:'';index"`
	Origin             string                        `gorm:"not null;size:20"`
	Items              datatypes.JSONSlice[LineItem] `gorm:"not null"`
	AmountTotal        int64                         `gorm:"not null"`
	Currency           string                        `gorm:"not null;size:3"`
	PaymentMethod      string                        `gorm:"not null;size:30"`
	Status             string                        `gorm:"not null;size:30;index"`
	StatusVocabulary   string                        `gorm:"not null;size:20;default:'canonical'"`
	ExternalPaymentRef *string                       `gorm:"uniqueIndex;size:255"`

	CreatedAt                 time.Time `gorm:"not null;index"`
	StatusChangedAt           time.Time `gorm:"not null"`
	CancellationEligibleUntil time.Time `gorm:"not null;index"`
	PaidAt                    *time.Time
	AcceptedAt                *time.Time
	ShippedAt                 *time.Time
	ReceivedAt                *time.Time
	CompletedAt               *time.Time
	CancelledAt               *time.Time
	CancelledBy               string `gorm:"not null;size:20;default:''"`
	RefundPath                string `gorm:"not null;size:20;default:''"`

	Version int64 `gorm:"not null;default:1"`
}

// TableName specifies the table name for Transaction
func (Transaction) TableName() string {
	return "transactions"
}
