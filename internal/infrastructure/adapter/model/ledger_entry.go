package model

import "time"

// LedgerEntry is one escrow movement; (transaction_id, kind) is unique
type LedgerEntry struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	TransactionID string    `gorm:"not null;size:64;uniqueIndex:idx_ledger_tx_kind,priority:1"`
	Kind          string    `gorm:"not null;size:20;uniqueIndex:idx_ledger_tx_kind,priority:2"`
	DebitAccount  string    `gorm:"not null;size:80;index"`
	CreditAccount string    `gorm:"not null;size:80;index"`
	Amount        int64     `gorm:"not null"`
	Currency      string    `gorm:"not null;size:3"`
	CreatedAt     time.Time `gorm:"not null"`
}

// TableName specifies the table name for LedgerEntry
func (LedgerEntry) TableName() string {
	return "ledger_entries"
}
