package lifecycle

import (
	"time"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
)

// CancellationDecision is the approved outcome of a cancellation request
type CancellationDecision struct {
	RefundPath entity.RefundPath
}

// EvaluateCancellation decides whether a buyer may cancel at now.
// The deadline is inclusive: a request at exactly CancellationEligibleUntil is accepted.
func EvaluateCancellation(tx *entity.Transaction, now time.Time) (CancellationDecision, error) {
	if tx.Status.IsTerminal() || !tx.Status.IsPreShipment() {
		return CancellationDecision{}, errs.NewTransitionError(
			tx.ID, string(tx.Status), string(entity.EventBuyerCancelled),
			"goods shipped or transaction closed", errs.ErrCancellationWindowClosed)
	}
	if now.After(tx.CancellationEligibleUntil) {
		return CancellationDecision{}, errs.NewTransitionError(
			tx.ID, string(tx.Status), string(entity.EventBuyerCancelled),
			"deadline "+tx.CancellationEligibleUntil.UTC().Format(time.RFC3339)+" passed",
			errs.ErrCancellationWindowClosed)
	}
	return refundDecision(tx), nil
}

func refundDecision(tx *entity.Transaction) CancellationDecision {
	if tx.EscrowHeld() {
		return CancellationDecision{RefundPath: entity.RefundFull}
	}
	return CancellationDecision{RefundPath: entity.RefundNone}
}
