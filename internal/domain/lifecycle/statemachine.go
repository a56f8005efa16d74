// Package lifecycle holds the pure rules of the transaction lifecycle: the
// transition function, the cancellation policy and the mapping of the two
// legacy status vocabularies onto the canonical states. Nothing here touches
// storage or the clock; callers pass the snapshot and the time of the event.
package lifecycle

import (
	"time"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
)

// Effect is a side effect the caller must execute atomically with the status write
type Effect string

// Effects
const (
	EffectHoldEscrow    Effect = "hold_escrow"
	EffectReleaseEscrow Effect = "release_escrow"
	EffectRefundBuyer   Effect = "refund_buyer"
)

// Event is an actor's request to move a transaction forward
type Event struct {
	Type      entity.EventType
	ActorID   string
	ActorRole entity.ActorRole
	At        time.Time
}

// Outcome describes the result of applying an event to a snapshot
type Outcome struct {
	Event Event
	From  entity.Status
	// Next is the transaction after the transition; equal to the snapshot for a no-op
	Next *entity.Transaction
	// Path lists every status entered, in order; empty for a no-op
	Path    []entity.Status
	Effects []Effect
	NoOp    bool
	// Cancellation is set when the event cancelled the transaction
	Cancellation *CancellationDecision
}

// To returns the status the transaction ends in
func (o *Outcome) To() entity.Status {
	return o.Next.Status
}

// HasEffect reports whether the outcome carries the effect
func (o *Outcome) HasEffect(effect Effect) bool {
	for _, e := range o.Effects {
		if e == effect {
			return true
		}
	}
	return false
}

// Apply is the transition function (snapshot, event) -> outcome | error.
// It never mutates snapshot and performs no I/O.
func Apply(snapshot *entity.Transaction, ev Event) (*Outcome, error) {
	switch ev.Type {
	case entity.EventPaymentConfirmed:
		return applyPaymentConfirmed(snapshot, ev)
	case entity.EventSellerAccepted:
		return applySellerAccepted(snapshot, ev)
	case entity.EventMarkShipped:
		return applyMarkShipped(snapshot, ev)
	case entity.EventBuyerConfirmedReceipt:
		return applyBuyerConfirmedReceipt(snapshot, ev)
	case entity.EventBuyerCancelled:
		return applyBuyerCancelled(snapshot, ev)
	case entity.EventSellerCancelled:
		return applySellerCancelled(snapshot, ev)
	case entity.EventPaymentFailed:
		return applyPaymentFailed(snapshot, ev)
	case entity.EventPaymentExpired:
		return applyPaymentExpired(snapshot, ev)
	default:
		return nil, reject(snapshot, ev, "unknown event", errs.ErrInvalidTransition)
	}
}

func applyPaymentConfirmed(tx *entity.Transaction, ev Event) (*Outcome, error) {
	switch tx.Status {
	case entity.StatusCreated, entity.StatusPendingPayment:
		next := advance(tx, ev, entity.StatusPaid)
		next.PaidAt = timePtr(ev.At)
		out := outcome(tx, ev, next, entity.StatusPaid)
		if tx.PaymentMethod == entity.PaymentPrepaidOnline {
			out.Effects = append(out.Effects, EffectHoldEscrow)
		}
		return out, nil
	case entity.StatusPaid, entity.StatusAccepted, entity.StatusShipped,
		entity.StatusReceived, entity.StatusCompleted:
		return noOp(tx, ev), nil
	default:
		return nil, reject(tx, ev, "payment confirmed after cancellation", errs.ErrInvalidTransition)
	}
}

func applySellerAccepted(tx *entity.Transaction, ev Event) (*Outcome, error) {
	if ev.ActorID == "" {
		return nil, errs.NewValidationError("sellerId", "is required")
	}
	if ev.ActorID == tx.BuyerID {
		return nil, errs.NewValidationError("sellerId", "cannot be the buyer")
	}
	if tx.SellerID != "" && tx.SellerID != ev.ActorID {
		return nil, reject(tx, ev, "held by "+tx.SellerID, errs.ErrAlreadyAccepted)
	}

	acceptable := tx.Status == entity.StatusPaid ||
		(tx.Status == entity.StatusCreated && tx.PaymentMethod == entity.PaymentCashOnDelivery)
	if !acceptable {
		return nil, reject(tx, ev, "", errs.ErrInvalidTransition)
	}

	next := advance(tx, ev, entity.StatusAccepted)
	next.SellerID = ev.ActorID
	next.AcceptedAt = timePtr(ev.At)
	return outcome(tx, ev, next, entity.StatusAccepted), nil
}

func applyMarkShipped(tx *entity.Transaction, ev Event) (*Outcome, error) {
	if tx.Status != entity.StatusAccepted {
		return nil, reject(tx, ev, "", errs.ErrInvalidTransition)
	}
	if ev.ActorID == "" || ev.ActorID != tx.SellerID {
		return nil, reject(tx, ev, "only the assigned seller may ship", errs.ErrForbidden)
	}

	next := advance(tx, ev, entity.StatusShipped)
	next.ShippedAt = timePtr(ev.At)
	return outcome(tx, ev, next, entity.StatusShipped), nil
}

func applyBuyerConfirmedReceipt(tx *entity.Transaction, ev Event) (*Outcome, error) {
	if tx.Status != entity.StatusShipped {
		return nil, reject(tx, ev, "", errs.ErrInvalidTransition)
	}
	if ev.ActorID != tx.BuyerID {
		return nil, reject(tx, ev, "only the buyer may confirm receipt", errs.ErrForbidden)
	}

	// received and completed are entered together: release runs in the same unit of work
	next := advance(tx, ev, entity.StatusCompleted)
	next.ReceivedAt = timePtr(ev.At)
	next.CompletedAt = timePtr(ev.At)
	out := outcome(tx, ev, next, entity.StatusReceived, entity.StatusCompleted)
	if tx.PaymentMethod == entity.PaymentPrepaidOnline {
		out.Effects = append(out.Effects, EffectReleaseEscrow)
	}
	return out, nil
}

func applyBuyerCancelled(tx *entity.Transaction, ev Event) (*Outcome, error) {
	if ev.ActorID != tx.BuyerID {
		return nil, reject(tx, ev, "only the buyer may cancel as buyer", errs.ErrForbidden)
	}

	decision, err := EvaluateCancellation(tx, ev.At)
	if err != nil {
		return nil, err
	}
	return cancel(tx, ev, entity.RoleBuyer, decision), nil
}

func applySellerCancelled(tx *entity.Transaction, ev Event) (*Outcome, error) {
	if !tx.Status.IsPreShipment() {
		return nil, reject(tx, ev, "", errs.ErrInvalidTransition)
	}
	if tx.SellerID == "" || ev.ActorID != tx.SellerID {
		return nil, reject(tx, ev, "only the assigned seller may cancel as seller", errs.ErrForbidden)
	}
	return cancel(tx, ev, entity.RoleSeller, refundDecision(tx)), nil
}

func applyPaymentFailed(tx *entity.Transaction, ev Event) (*Outcome, error) {
	if !tx.Status.IsPreShipment() {
		return nil, reject(tx, ev, "", errs.ErrInvalidTransition)
	}
	return cancel(tx, ev, entity.RoleSystem, refundDecision(tx)), nil
}

func applyPaymentExpired(tx *entity.Transaction, ev Event) (*Outcome, error) {
	if tx.Status != entity.StatusPendingPayment {
		return nil, reject(tx, ev, "", errs.ErrInvalidTransition)
	}
	if !ev.At.After(tx.CancellationEligibleUntil) {
		return nil, reject(tx, ev, "deadline not reached", errs.ErrInvalidTransition)
	}
	return cancel(tx, ev, entity.RoleSystem, CancellationDecision{RefundPath: entity.RefundNone}), nil
}

func cancel(tx *entity.Transaction, ev Event, by entity.ActorRole, decision CancellationDecision) *Outcome {
	next := advance(tx, ev, entity.StatusCancelled)
	next.CancelledAt = timePtr(ev.At)
	next.CancelledBy = by
	next.RefundPath = decision.RefundPath

	out := outcome(tx, ev, next, entity.StatusCancelled)
	out.Cancellation = &decision
	if decision.RefundPath == entity.RefundFull {
		out.Effects = append(out.Effects, EffectRefundBuyer)
	}
	return out
}

func advance(tx *entity.Transaction, ev Event, to entity.Status) *entity.Transaction {
	next := tx.Clone()
	next.Status = to
	next.StatusChangedAt = ev.At
	return next
}

func outcome(tx *entity.Transaction, ev Event, next *entity.Transaction, path ...entity.Status) *Outcome {
	return &Outcome{
		Event: ev,
		From:  tx.Status,
		Next:  next,
		Path:  path,
	}
}

func noOp(tx *entity.Transaction, ev Event) *Outcome {
	return &Outcome{
		Event: ev,
		From:  tx.Status,
		Next:  tx.Clone(),
		NoOp:  true,
	}
}

func reject(tx *entity.Transaction, ev Event, reason string, base error) error {
	return errs.NewTransitionError(tx.ID, string(tx.Status), string(ev.Type), reason, base)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
