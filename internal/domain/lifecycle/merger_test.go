package lifecycle

import (
	"testing"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		vocabulary entity.Vocabulary
		status     string
		want       entity.Status
	}{
		{entity.VocabularyRequest, "pending", entity.StatusCreated},
		{entity.VocabularyRequest, "Accepted", entity.StatusAccepted},
		{entity.VocabularyRequest, "Shipped", entity.StatusShipped},
		{entity.VocabularyRequest, "Received", entity.StatusReceived},
		{entity.VocabularyRequest, "Completed", entity.StatusCompleted},
		{entity.VocabularyRequest, "Cancelled", entity.StatusCancelled},
		{entity.VocabularyCheckout, "pending_payment", entity.StatusPendingPayment},
		{entity.VocabularyCheckout, "paid", entity.StatusPaid},
		{entity.VocabularyCheckout, "accepted", entity.StatusAccepted},
		{entity.VocabularyCheckout, "shipped", entity.StatusShipped},
		{entity.VocabularyCheckout, "delivered", entity.StatusCompleted},
		{entity.VocabularyCheckout, "cancelled", entity.StatusCancelled},
	}

	for _, tt := range tests {
		t.Run(string(tt.vocabulary)+"/"+tt.status, func(t *testing.T) {
			got, err := Normalize(tt.vocabulary, tt.status)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNormalize_CanonicalIsIdentity(t *testing.T) {
	for _, s := range entity.AllStatuses {
		got, err := Normalize(entity.VocabularyCanonical, string(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
}

func TestNormalize_RejectsUnmappedValues(t *testing.T) {
	cases := []struct {
		vocabulary entity.Vocabulary
		status     string
	}{
		{entity.VocabularyRequest, "accepted"},  // case matters in the request flow
		{entity.VocabularyCheckout, "Accepted"}, // and in the checkout flow
		{entity.VocabularyCheckout, "refunded"},
		{entity.VocabularyRequest, ""},
		{entity.VocabularyCanonical, "delivered"},
		{"marketplace", "paid"},
	}

	for _, c := range cases {
		_, err := Normalize(c.vocabulary, c.status)
		require.Error(t, err)
		assert.ErrorIs(t, err, errs.ErrUnknownLegacyStatus)

		var ule *errs.UnknownLegacyStatusError
		require.ErrorAs(t, err, &ule)
		assert.Equal(t, c.status, ule.Status)
	}
}

func TestVocabularyFor(t *testing.T) {
	assert.Equal(t, entity.VocabularyCheckout, VocabularyFor(entity.OriginCheckout))
	assert.Equal(t, entity.VocabularyRequest, VocabularyFor(entity.OriginRequest))
}
