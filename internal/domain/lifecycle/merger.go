package lifecycle

import (
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
)

// requestVocabulary maps statuses written by the direct buyer/seller request flow
var requestVocabulary = map[string]entity.Status{
	"pending":   entity.StatusCreated,
	"Accepted":  entity.StatusAccepted,
	"Shipped":   entity.StatusShipped,
	"Received":  entity.StatusReceived,
	"Completed": entity.StatusCompleted,
	"Cancelled": entity.StatusCancelled,
}

// checkoutVocabulary maps statuses written by the processor checkout flow
var checkoutVocabulary = map[string]entity.Status{
	"pending_payment": entity.StatusPendingPayment,
	"paid":            entity.StatusPaid,
	"accepted":        entity.StatusAccepted,
	"shipped":         entity.StatusShipped,
	"delivered":       entity.StatusCompleted,
	"cancelled":       entity.StatusCancelled,
}

var canonicalVocabulary = func() map[string]entity.Status {
	m := make(map[string]entity.Status, len(entity.AllStatuses))
	for _, s := range entity.AllStatuses {
		m[string(s)] = s
	}
	return m
}()

// Normalize translates a stored status string into the canonical lifecycle.
// Unmapped strings fail with ErrUnknownLegacyStatus; nothing is coerced.
func Normalize(vocabulary entity.Vocabulary, status string) (entity.Status, error) {
	var table map[string]entity.Status
	switch vocabulary {
	case entity.VocabularyCanonical, "":
		table = canonicalVocabulary
	case entity.VocabularyRequest:
		table = requestVocabulary
	case entity.VocabularyCheckout:
		table = checkoutVocabulary
	default:
		return "", &errs.UnknownLegacyStatusError{Vocabulary: string(vocabulary), Status: status}
	}

	s, ok := table[status]
	if !ok {
		return "", &errs.UnknownLegacyStatusError{Vocabulary: string(vocabulary), Status: status}
	}
	return s, nil
}

// VocabularyFor returns the legacy vocabulary a given origin historically wrote
func VocabularyFor(origin entity.Origin) entity.Vocabulary {
	if origin == entity.OriginCheckout {
		return entity.VocabularyCheckout
	}
	return entity.VocabularyRequest
}
