// Package webhook reconciles payment-processor notifications with the
// transaction lifecycle. Deliveries may arrive late, twice or out of order;
// every decision is taken against a fresh snapshot.
package webhook

import (
	"context"
	"errors"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/lifecycle"
	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/persistence"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/usecase"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/usecase/transaction"
)

// Reconciler implements usecase.WebhookUseCase
type Reconciler struct {
	verifier     coreport.SignatureVerifier
	manager      *transaction.TransactionManager
	idempotency  *IdempotencyHandler
	timeProvider coreport.TimeProvider
	logger       coreport.Logger
}

var _ usecase.WebhookUseCase = (*Reconciler)(nil)

// NewReconciler creates a new webhook reconciler
func NewReconciler(
	uow persistence.UnitOfWork,
	verifier coreport.SignatureVerifier,
	manager *transaction.TransactionManager,
	timeProvider coreport.TimeProvider,
	logger coreport.Logger,
) *Reconciler {
	return &Reconciler{
		verifier:     verifier,
		manager:      manager,
		idempotency:  NewIdempotencyHandler(uow, timeProvider),
		timeProvider: timeProvider,
		logger:       logger,
	}
}

// Handle verifies, parses and applies one delivery
func (r *Reconciler) Handle(ctx context.Context, payload []byte, signatureHeader string) (*usecase.WebhookOutcome, error) {
	if err := r.verifier.Verify(payload, signatureHeader); err != nil {
		r.logger.Warn("Rejected webhook with invalid signature", map[string]any{
			"security_event": "webhook_signature_invalid",
			"reason":         err.Error(),
			"payload_bytes":  len(payload),
			"request_id":     coreport.RequestIDFrom(ctx),
		})
		return &usecase.WebhookOutcome{Result: usecase.WebhookRejected}, err
	}

	ev, err := parseEvent(payload)
	if err != nil {
		r.logger.Warn("Rejected malformed webhook payload", map[string]any{
			"error":      err.Error(),
			"request_id": coreport.RequestIDFrom(ctx),
		})
		return &usecase.WebhookOutcome{Result: usecase.WebhookRejected}, err
	}

	out := &usecase.WebhookOutcome{DeliveryID: ev.ID, EventType: ev.Type}
	log := r.logger.With(map[string]any{
		"delivery_id": ev.ID,
		"event_type":  ev.Type,
		"request_id":  coreport.RequestIDFrom(ctx),
	})

	seen, err := r.idempotency.CheckIdempotency(ctx, ev.ID)
	if err != nil {
		// the lifecycle rules keep a reprocessed delivery harmless
		log.Warn("Delivery lookup failed, processing anyway", map[string]any{"error": err.Error()})
	}
	if seen {
		log.Info("Duplicate webhook delivery acknowledged", nil)
		out.Result = usecase.WebhookDuplicate
		return out, nil
	}

	act := classify(ev.Type)
	if act == actionIgnore {
		log.Debug("Ignoring webhook event type", nil)
		out.Result = usecase.WebhookIgnored
		r.remember(ctx, log, ev, out.Result)
		return out, nil
	}

	ref := ev.paymentRef()
	result, err := r.manager.ApplyEvent(ctx, transaction.ByPaymentRef(ref), r.decider(act, ev, log))
	switch {
	case err == nil:
		out.TransactionID = result.Transaction.ID
		out.Status = result.Transaction.Status
		out.Result = usecase.WebhookProcessed
		if result.NoOp {
			out.Result = usecase.WebhookNoOp
		}
	case errs.IsNotFoundError(err):
		log.Warn("Webhook references unknown payment session", map[string]any{
			"operational_alert": "webhook_transaction_not_found",
			"payment_ref":       ref,
		})
		out.Result = usecase.WebhookTransactionNotFound
	case errs.IsClientError(err):
		// redelivery cannot change a business-rule rejection
		fields := map[string]any{"payment_ref": ref, "error": err.Error()}
		var te *errs.TransitionError
		if errors.As(err, &te) {
			fields = te.LogFields()
			fields["payment_ref"] = ref
		}
		log.Error("Webhook event rejected by lifecycle rules", fields)
		out.Result = usecase.WebhookRejected
	default:
		log.Error("Webhook processing failed", map[string]any{
			"payment_ref": ref,
			"error":       err.Error(),
		})
		return out, err
	}

	r.remember(ctx, log, ev, out.Result)
	return out, nil
}

// decider picks the lifecycle event for the fresh snapshot
func (r *Reconciler) decider(act action, ev *processorEvent, log coreport.Logger) transaction.Decide {
	occurred := r.timeProvider.Now().UTC()

	return func(snapshot *entity.Transaction) (lifecycle.Event, bool, error) {
		switch act {
		case actionConfirm:
			if snapshot.Status == entity.StatusCancelled {
				log.Error("Payment confirmed for cancelled transaction, manual refund required", map[string]any{
					"operational_alert": "payment_after_cancellation",
					"transaction_id":    snapshot.ID,
					"amount":            entity.FormatMinorUnits(snapshot.AmountTotal, snapshot.Currency),
					"currency":          snapshot.Currency,
				})
				return lifecycle.Event{}, false, nil
			}
			if amount := ev.Data.Object.AmountTotal; amount != nil && *amount != snapshot.AmountTotal {
				log.Warn("Processor amount differs from transaction amount", map[string]any{
					"transaction_id":   snapshot.ID,
					"processor_amount": *amount,
					"amount_total":     snapshot.AmountTotal,
				})
			}
			return lifecycle.Event{
				Type:      entity.EventPaymentConfirmed,
				ActorID:   ev.ID,
				ActorRole: entity.RoleSystem,
				At:        occurred,
			}, true, nil

		case actionFail:
			// a failure notice that arrives after the payment was confirmed is stale
			if snapshot.Status != entity.StatusCreated && snapshot.Status != entity.StatusPendingPayment {
				log.Info("Ignoring payment failure for settled status", map[string]any{
					"transaction_id": snapshot.ID,
					"status":         snapshot.Status,
				})
				return lifecycle.Event{}, false, nil
			}
			return lifecycle.Event{
				Type:      entity.EventPaymentFailed,
				ActorID:   ev.ID,
				ActorRole: entity.RoleSystem,
				At:        occurred,
			}, true, nil
		}
		return lifecycle.Event{}, false, nil
	}
}

func (r *Reconciler) remember(ctx context.Context, log coreport.Logger, ev *processorEvent, result usecase.WebhookResult) {
	if err := r.idempotency.Remember(ctx, ev.ID, ev.Type, ev.paymentRef(), string(result)); err != nil {
		log.Warn("Failed to record webhook delivery", map[string]any{"error": err.Error()})
	}
}
