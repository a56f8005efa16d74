package dto

import (
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/usecase"
)

// TransactionListResponse is a participant's merged transaction list
type TransactionListResponse struct {
	UserID       string                `json:"userId"`
	Role         string                `json:"role,omitempty"`
	Transactions []TransactionResponse `json:"transactions"`
}

// StatusCountResponse is one row of the per-status breakdown
type StatusCountResponse struct {
	Status   string `json:"status"`
	Currency string `json:"currency"`
	Count    int    `json:"count"`
	Amount   string `json:"amount"`
}

// CurrencySummaryResponse carries escrow totals as decimal strings
type CurrencySummaryResponse struct {
	Currency   string `json:"currency"`
	EscrowHeld string `json:"escrowHeld"`
	Released   string `json:"released"`
	Refunded   string `json:"refunded"`
}

// SummaryResponse is the dashboard summary of one user
type SummaryResponse struct {
	UserID     string                    `json:"userId"`
	ByStatus   []StatusCountResponse     `json:"byStatus"`
	ByCurrency []CurrencySummaryResponse `json:"byCurrency"`
}

// FromSummary renders a dashboard summary
func FromSummary(s *usecase.UserSummary) SummaryResponse {
	resp := SummaryResponse{
		UserID:     s.UserID,
		ByStatus:   make([]StatusCountResponse, 0, len(s.ByStatus)),
		ByCurrency: make([]CurrencySummaryResponse, 0, len(s.ByCurrency)),
	}
	for _, sc := range s.ByStatus {
		resp.ByStatus = append(resp.ByStatus, StatusCountResponse{
			Status:   string(sc.Status),
			Currency: sc.Currency,
			Count:    sc.Count,
			Amount:   entity.FormatMinorUnits(sc.Amount, sc.Currency),
		})
	}
	for _, cs := range s.ByCurrency {
		resp.ByCurrency = append(resp.ByCurrency, CurrencySummaryResponse{
			Currency:   cs.Currency,
			EscrowHeld: entity.FormatMinorUnits(cs.EscrowHeld, cs.Currency),
			Released:   entity.FormatMinorUnits(cs.Released, cs.Currency),
			Refunded:   entity.FormatMinorUnits(cs.Refunded, cs.Currency),
		})
	}
	return resp
}
