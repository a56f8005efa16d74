package entity

import "time"

// LedgerKind is the escrow movement recorded for a transaction
type LedgerKind string

// Ledger kinds; each may be recorded at most once per transaction
const (
	// LedgerHold moves buyer funds into escrow when the processor confirms payment
	LedgerHold LedgerKind = "hold"
	// LedgerRelease moves escrowed funds to the seller's payable balance
	LedgerRelease LedgerKind = "release"
	// LedgerRefund returns escrowed funds to the buyer
	LedgerRefund LedgerKind = "refund"
)

// Ledger account names
const (
	AccountEscrow       = "escrow"
	sellerAccountPrefix = "seller:"
	buyerAccountPrefix  = "buyer:"
)

// SellerAccount returns the payable account for a seller
func SellerAccount(sellerID string) string {
	return sellerAccountPrefix + sellerID
}

// BuyerAccount returns the refund account for a buyer
func BuyerAccount(buyerID string) string {
	return buyerAccountPrefix + buyerID
}

// LedgerEntry is one idempotent escrow movement keyed by (TransactionID, Kind)
type LedgerEntry struct {
	ID            uint64
	TransactionID string
	Kind          LedgerKind
	DebitAccount  string
	CreditAccount string
	Amount        int64
	Currency      string
	CreatedAt     time.Time
}
