package lifecycle

import (
	"math/rand"
	"testing"
	"time"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

const (
	buyerID  = "buyer-1"
	sellerID = "seller-1"
	rivalID  = "seller-2"
)

func fixture(method entity.PaymentMethod, status entity.Status) *entity.Transaction {
	ref := "cs_test_123"
	tx := &entity.Transaction{
		ID:                        "tx-1",
		BuyerID:                   buyerID,
		Origin:                    entity.OriginCheckout,
		Items:                     []entity.LineItem{{Name: "Sneakers", Quantity: 1, UnitPrice: 12000}},
		AmountTotal:               12000,
		Currency:                  "USD",
		PaymentMethod:             method,
		Status:                    status,
		CreatedAt:                 baseTime,
		StatusChangedAt:           baseTime,
		CancellationEligibleUntil: baseTime.Add(entity.DefaultCancellationWindow),
		Version:                   1,
	}
	if method == entity.PaymentPrepaidOnline {
		tx.ExternalPaymentRef = &ref
	} else {
		tx.Origin = entity.OriginRequest
	}
	switch status {
	case entity.StatusAccepted, entity.StatusShipped, entity.StatusReceived, entity.StatusCompleted:
		tx.SellerID = sellerID
	}
	return tx
}

func event(t entity.EventType, actor string, at time.Time) Event {
	return Event{Type: t, ActorID: actor, At: at}
}

func TestApply_Transitions(t *testing.T) {
	at := baseTime.Add(time.Hour)

	tests := []struct {
		name        string
		tx          *entity.Transaction
		ev          Event
		wantStatus  entity.Status
		wantPath    []entity.Status
		wantEffects []Effect
		wantNoOp    bool
		wantErr     error
	}{
		{
			name:        "payment confirmed moves pending payment to paid and holds escrow",
			tx:          fixture(entity.PaymentPrepaidOnline, entity.StatusPendingPayment),
			ev:          event(entity.EventPaymentConfirmed, "", at),
			wantStatus:  entity.StatusPaid,
			wantPath:    []entity.Status{entity.StatusPaid},
			wantEffects: []Effect{EffectHoldEscrow},
		},
		{
			name:       "payment confirmed on paid is a no-op",
			tx:         fixture(entity.PaymentPrepaidOnline, entity.StatusPaid),
			ev:         event(entity.EventPaymentConfirmed, "", at),
			wantStatus: entity.StatusPaid,
			wantNoOp:   true,
		},
		{
			name:       "payment confirmed on completed is a no-op",
			tx:         fixture(entity.PaymentPrepaidOnline, entity.StatusCompleted),
			ev:         event(entity.EventPaymentConfirmed, "", at),
			wantStatus: entity.StatusCompleted,
			wantNoOp:   true,
		},
		{
			name:    "payment confirmed on cancelled is rejected",
			tx:      fixture(entity.PaymentPrepaidOnline, entity.StatusCancelled),
			ev:      event(entity.EventPaymentConfirmed, "", at),
			wantErr: errs.ErrInvalidTransition,
		},
		{
			name:       "seller accepts paid order",
			tx:         fixture(entity.PaymentPrepaidOnline, entity.StatusPaid),
			ev:         event(entity.EventSellerAccepted, sellerID, at),
			wantStatus: entity.StatusAccepted,
			wantPath:   []entity.Status{entity.StatusAccepted},
		},
		{
			name:       "seller accepts cash on delivery request",
			tx:         fixture(entity.PaymentCashOnDelivery, entity.StatusCreated),
			ev:         event(entity.EventSellerAccepted, sellerID, at),
			wantStatus: entity.StatusAccepted,
			wantPath:   []entity.Status{entity.StatusAccepted},
		},
		{
			name:    "seller cannot accept unpaid prepaid order",
			tx:      fixture(entity.PaymentPrepaidOnline, entity.StatusPendingPayment),
			ev:      event(entity.EventSellerAccepted, sellerID, at),
			wantErr: errs.ErrInvalidTransition,
		},
		{
			name:    "second seller gets already accepted",
			tx:      fixture(entity.PaymentPrepaidOnline, entity.StatusAccepted),
			ev:      event(entity.EventSellerAccepted, rivalID, at),
			wantErr: errs.ErrAlreadyAccepted,
		},
		{
			name:    "same seller accepting twice is an invalid transition",
			tx:      fixture(entity.PaymentPrepaidOnline, entity.StatusAccepted),
			ev:      event(entity.EventSellerAccepted, sellerID, at),
			wantErr: errs.ErrInvalidTransition,
		},
		{
			name:    "buyer cannot accept own order",
			tx:      fixture(entity.PaymentPrepaidOnline, entity.StatusPaid),
			ev:      event(entity.EventSellerAccepted, buyerID, at),
			wantErr: errs.ErrValidation,
		},
		{
			name:       "assigned seller ships",
			tx:         fixture(entity.PaymentPrepaidOnline, entity.StatusAccepted),
			ev:         event(entity.EventMarkShipped, sellerID, at),
			wantStatus: entity.StatusShipped,
			wantPath:   []entity.Status{entity.StatusShipped},
		},
		{
			name:    "other user cannot ship",
			tx:      fixture(entity.PaymentPrepaidOnline, entity.StatusAccepted),
			ev:      event(entity.EventMarkShipped, rivalID, at),
			wantErr: errs.ErrForbidden,
		},
		{
			name:    "cannot ship before acceptance",
			tx:      fixture(entity.PaymentPrepaidOnline, entity.StatusPaid),
			ev:      event(entity.EventMarkShipped, sellerID, at),
			wantErr: errs.ErrInvalidTransition,
		},
		{
			name:        "buyer confirms receipt and escrow is released",
			tx:          fixture(entity.PaymentPrepaidOnline, entity.StatusShipped),
			ev:          event(entity.EventBuyerConfirmedReceipt, buyerID, at),
			wantStatus:  entity.StatusCompleted,
			wantPath:    []entity.Status{entity.StatusReceived, entity.StatusCompleted},
			wantEffects: []Effect{EffectReleaseEscrow},
		},
		{
			name:       "cash on delivery receipt completes without release",
			tx:         fixture(entity.PaymentCashOnDelivery, entity.StatusShipped),
			ev:         event(entity.EventBuyerConfirmedReceipt, buyerID, at),
			wantStatus: entity.StatusCompleted,
			wantPath:   []entity.Status{entity.StatusReceived, entity.StatusCompleted},
		},
		{
			name:    "confirm receipt before shipping is rejected",
			tx:      fixture(entity.PaymentPrepaidOnline, entity.StatusAccepted),
			ev:      event(entity.EventBuyerConfirmedReceipt, buyerID, at),
			wantErr: errs.ErrInvalidTransition,
		},
		{
			name:    "seller cannot confirm receipt",
			tx:      fixture(entity.PaymentPrepaidOnline, entity.StatusShipped),
			ev:      event(entity.EventBuyerConfirmedReceipt, sellerID, at),
			wantErr: errs.ErrForbidden,
		},
		{
			name:        "buyer cancels paid order with refund",
			tx:          fixture(entity.PaymentPrepaidOnline, entity.StatusPaid),
			ev:          event(entity.EventBuyerCancelled, buyerID, at),
			wantStatus:  entity.StatusCancelled,
			wantPath:    []entity.Status{entity.StatusCancelled},
			wantEffects: []Effect{EffectRefundBuyer},
		},
		{
			name:       "buyer cancels unpaid order without refund",
			tx:         fixture(entity.PaymentPrepaidOnline, entity.StatusPendingPayment),
			ev:         event(entity.EventBuyerCancelled, buyerID, at),
			wantStatus: entity.StatusCancelled,
			wantPath:   []entity.Status{entity.StatusCancelled},
		},
		{
			name:    "buyer cannot cancel shipped order",
			tx:      fixture(entity.PaymentPrepaidOnline, entity.StatusShipped),
			ev:      event(entity.EventBuyerCancelled, buyerID, at),
			wantErr: errs.ErrCancellationWindowClosed,
		},
		{
			name:    "seller cannot cancel as buyer",
			tx:      fixture(entity.PaymentPrepaidOnline, entity.StatusAccepted),
			ev:      event(entity.EventBuyerCancelled, sellerID, at),
			wantErr: errs.ErrForbidden,
		},
		{
			name:        "assigned seller cancels accepted order with refund",
			tx:          fixture(entity.PaymentPrepaidOnline, entity.StatusAccepted),
			ev:          event(entity.EventSellerCancelled, sellerID, at),
			wantStatus:  entity.StatusCancelled,
			wantPath:    []entity.Status{entity.StatusCancelled},
			wantEffects: []Effect{EffectRefundBuyer},
		},
		{
			name:    "unassigned seller cannot cancel",
			tx:      fixture(entity.PaymentPrepaidOnline, entity.StatusPaid),
			ev:      event(entity.EventSellerCancelled, sellerID, at),
			wantErr: errs.ErrForbidden,
		},
		{
			name:       "payment failure cancels pending order",
			tx:         fixture(entity.PaymentPrepaidOnline, entity.StatusPendingPayment),
			ev:         event(entity.EventPaymentFailed, "", at),
			wantStatus: entity.StatusCancelled,
			wantPath:   []entity.Status{entity.StatusCancelled},
		},
		{
			name:    "payment failure after shipping is rejected",
			tx:      fixture(entity.PaymentPrepaidOnline, entity.StatusShipped),
			ev:      event(entity.EventPaymentFailed, "", at),
			wantErr: errs.ErrInvalidTransition,
		},
		{
			name:       "payment expiry cancels after the deadline",
			tx:         fixture(entity.PaymentPrepaidOnline, entity.StatusPendingPayment),
			ev:         event(entity.EventPaymentExpired, "", baseTime.Add(entity.DefaultCancellationWindow+time.Second)),
			wantStatus: entity.StatusCancelled,
			wantPath:   []entity.Status{entity.StatusCancelled},
		},
		{
			name:    "payment expiry before the deadline is rejected",
			tx:      fixture(entity.PaymentPrepaidOnline, entity.StatusPendingPayment),
			ev:      event(entity.EventPaymentExpired, "", at),
			wantErr: errs.ErrInvalidTransition,
		},
		{
			name:    "unknown event is rejected",
			tx:      fixture(entity.PaymentPrepaidOnline, entity.StatusPaid),
			ev:      event("Teleported", buyerID, at),
			wantErr: errs.ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := tt.tx.Clone()

			out, err := Apply(tt.tx, tt.ev)

			assert.Equal(t, before, tt.tx, "snapshot must not be mutated")
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, out)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, out.To())
			assert.Equal(t, tt.wantNoOp, out.NoOp)
			assert.Equal(t, tt.wantPath, out.Path)
			assert.Equal(t, tt.wantEffects, out.Effects)
			assert.Equal(t, tt.tx.Version, out.Next.Version, "version is bumped by the store")
			if !out.NoOp {
				assert.Equal(t, tt.ev.At, out.Next.StatusChangedAt)
			}
		})
	}
}

func TestApply_RecordsTimestampsAndActors(t *testing.T) {
	at := baseTime.Add(2 * time.Hour)

	out, err := Apply(fixture(entity.PaymentPrepaidOnline, entity.StatusPaid), event(entity.EventSellerAccepted, sellerID, at))
	require.NoError(t, err)
	assert.Equal(t, sellerID, out.Next.SellerID)
	require.NotNil(t, out.Next.AcceptedAt)
	assert.Equal(t, at, *out.Next.AcceptedAt)

	out, err = Apply(fixture(entity.PaymentPrepaidOnline, entity.StatusShipped), event(entity.EventBuyerConfirmedReceipt, buyerID, at))
	require.NoError(t, err)
	require.NotNil(t, out.Next.ReceivedAt)
	require.NotNil(t, out.Next.CompletedAt)
	assert.Equal(t, at, *out.Next.ReceivedAt)

	out, err = Apply(fixture(entity.PaymentPrepaidOnline, entity.StatusAccepted), event(entity.EventSellerCancelled, sellerID, at))
	require.NoError(t, err)
	assert.Equal(t, entity.RoleSeller, out.Next.CancelledBy)
	assert.Equal(t, entity.RefundFull, out.Next.RefundPath)
	require.NotNil(t, out.Cancellation)
	assert.Equal(t, entity.RefundFull, out.Cancellation.RefundPath)
}

func TestApply_TransitionErrorCarriesContext(t *testing.T) {
	_, err := Apply(fixture(entity.PaymentPrepaidOnline, entity.StatusCreated), event(entity.EventMarkShipped, sellerID, baseTime))
	require.Error(t, err)

	var te *errs.TransitionError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "tx-1", te.TransactionID)
	assert.Equal(t, string(entity.StatusCreated), te.From)
	assert.Equal(t, string(entity.EventMarkShipped), te.Event)
}

// allowedEdges is every (from, to) pair a successful non-no-op transition may produce
var allowedEdges = map[[2]entity.Status]bool{
	{entity.StatusCreated, entity.StatusPaid}:             true,
	{entity.StatusPendingPayment, entity.StatusPaid}:      true,
	{entity.StatusPaid, entity.StatusAccepted}:            true,
	{entity.StatusCreated, entity.StatusAccepted}:         true,
	{entity.StatusAccepted, entity.StatusShipped}:         true,
	{entity.StatusShipped, entity.StatusCompleted}:        true,
	{entity.StatusCreated, entity.StatusCancelled}:        true,
	{entity.StatusPendingPayment, entity.StatusCancelled}: true,
	{entity.StatusPaid, entity.StatusCancelled}:           true,
	{entity.StatusAccepted, entity.StatusCancelled}:       true,
}

func TestApply_RandomSequencesStayInsideTheTable(t *testing.T) {
	events := []entity.EventType{
		entity.EventPaymentConfirmed,
		entity.EventPaymentFailed,
		entity.EventPaymentExpired,
		entity.EventSellerAccepted,
		entity.EventMarkShipped,
		entity.EventBuyerConfirmedReceipt,
		entity.EventBuyerCancelled,
		entity.EventSellerCancelled,
	}
	actors := []string{buyerID, sellerID, rivalID, ""}
	rng := rand.New(rand.NewSource(42))

	for run := 0; run < 500; run++ {
		method := entity.PaymentPrepaidOnline
		initial := entity.StatusPendingPayment
		if rng.Intn(2) == 0 {
			method = entity.PaymentCashOnDelivery
			initial = entity.StatusCreated
		}
		tx := fixture(method, initial)

		holds, settlements := 0, 0
		for step := 0; step < 12; step++ {
			offset := time.Duration(rng.Intn(96)) * time.Hour
			ev := event(events[rng.Intn(len(events))], actors[rng.Intn(len(actors))], baseTime.Add(offset))

			out, err := Apply(tx, ev)
			if err != nil {
				assert.Truef(t, errs.IsClientError(err), "unexpected error kind %v", err)
				continue
			}
			if out.NoOp {
				assert.Equal(t, tx.Status, out.Next.Status)
				continue
			}

			edge := [2]entity.Status{out.From, out.To()}
			require.Truef(t, allowedEdges[edge], "illegal edge %s -> %s via %s", edge[0], edge[1], ev.Type)
			assert.False(t, out.From.IsTerminal())

			for _, e := range out.Effects {
				switch e {
				case EffectHoldEscrow:
					holds++
				case EffectReleaseEscrow, EffectRefundBuyer:
					settlements++
				}
			}
			require.LessOrEqual(t, holds, 1)
			require.LessOrEqual(t, settlements, holds, "no release or refund without a hold")

			next := out.Next
			next.Version++
			tx = next
		}
	}
}
