package webhook

import (
	"encoding/json"
	"fmt"

	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
)

// Processor event types this service reacts to
const (
	TypeCheckoutCompleted     = "checkout.session.completed"
	TypeAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	TypeAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	TypeCheckoutExpired       = "checkout.session.expired"
	TypePaymentIntentFailed   = "payment_intent.payment_failed"
)

type action int

const (
	actionIgnore action = iota
	actionConfirm
	actionFail
)

func classify(eventType string) action {
	switch eventType {
	case TypeCheckoutCompleted, TypeAsyncPaymentSucceeded:
		return actionConfirm
	case TypeAsyncPaymentFailed, TypeCheckoutExpired, TypePaymentIntentFailed:
		return actionFail
	default:
		return actionIgnore
	}
}

// processorEvent is the subset of the processor's event envelope we read
type processorEvent struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object struct {
			ID            string `json:"id"`
			PaymentStatus string `json:"payment_status"`
			AmountTotal   *int64 `json:"amount_total"`
			Currency      string `json:"currency"`
			// Metadata carries the checkout session id on payment intent events
			Metadata map[string]string `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

// paymentRef is the checkout session id the event correlates to
func (e *processorEvent) paymentRef() string {
	if ref := e.Data.Object.Metadata["checkout_session_id"]; ref != "" {
		return ref
	}
	return e.Data.Object.ID
}

func parseEvent(payload []byte) (*processorEvent, error) {
	var ev processorEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformedPayload, err)
	}
	if ev.ID == "" || ev.Type == "" {
		return nil, fmt.Errorf("%w: missing id or type", errs.ErrMalformedPayload)
	}
	if classify(ev.Type) != actionIgnore && ev.Data.Object.ID == "" {
		return nil, fmt.Errorf("%w: missing data.object.id", errs.ErrMalformedPayload)
	}
	return &ev, nil
}
