package transaction

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/lifecycle"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/persistence"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/usecase"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/usecase/escrow"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/logger"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/memory"
	coremocks "github.com/amirhossein-jamali/escrow-engine/mocks/port/core"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	svc   *Service
	uow   persistence.UnitOfWork
	mu    sync.Mutex
	clock time.Time
}

func (h *harness) advance(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clock = h.clock.Add(d)
}

func (h *harness) now() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clock
}

func newHarness(t *testing.T, uowWrap func(persistence.UnitOfWork) persistence.UnitOfWork, retries int) *harness {
	t.Helper()

	h := &harness{clock: t0}
	tp := coremocks.NewMockTimeProvider(t)
	tp.EXPECT().Now().RunAndReturn(h.now).Maybe()

	log := logger.NewNoopLogger()
	uow := memory.NewUnitOfWork(memory.NewStore(), log)
	if uowWrap != nil {
		uow = uowWrap(uow)
	}
	h.uow = uow

	controller := escrow.NewController(uow, tp, log)
	h.svc = NewTransactionService(uow, controller, tp, log, Options{
		CancellationWindow: 48 * time.Hour,
		ConflictRetries:    retries,
		DefaultCurrency:    "USD",
	})
	return h
}

func prepaidRequest(ref string) usecase.CreateTransactionRequest {
	return usecase.CreateTransactionRequest{
		BuyerID:            "buyer-b",
		Items:              []entity.LineItem{{Name: "Camera lens", Quantity: 1, UnitPrice: 1100, SourceCountry: "JP"}},
		AmountTotal:        1100,
		Currency:           "USD",
		PaymentMethod:      entity.PaymentPrepaidOnline,
		ExternalPaymentRef: ref,
	}
}

func codRequest() usecase.CreateTransactionRequest {
	return usecase.CreateTransactionRequest{
		BuyerID:       "buyer-b",
		Items:         []entity.LineItem{{Name: "Sneakers", Quantity: 2, UnitPrice: 4500}},
		AmountTotal:   9000,
		PaymentMethod: entity.PaymentCashOnDelivery,
	}
}

func (h *harness) confirmPayment(t *testing.T, ref string) *usecase.TransitionResult {
	t.Helper()
	res, err := h.svc.Manager().ApplyEvent(context.Background(), ByPaymentRef(ref), Fixed(lifecycle.Event{
		Type:      entity.EventPaymentConfirmed,
		ActorRole: entity.RoleSystem,
	}))
	require.NoError(t, err)
	return res
}

func (h *harness) ledger(t *testing.T, id string) []*entity.LedgerEntry {
	t.Helper()
	ctx := context.Background()
	entries, err := h.uow.GetLedgerRepository(ctx).ListByTransaction(ctx, id)
	require.NoError(t, err)
	return entries
}

func TestPrepaidHappyPath(t *testing.T) {
	h := newHarness(t, nil, DefaultConflictRetries)
	ctx := context.Background()

	tx, err := h.svc.Create(ctx, prepaidRequest("cs_test_1"))
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPendingPayment, tx.Status)
	assert.Equal(t, entity.OriginCheckout, tx.Origin)
	assert.Equal(t, t0.Add(48*time.Hour), tx.CancellationEligibleUntil)

	h.advance(time.Minute)
	paid := h.confirmPayment(t, "cs_test_1")
	assert.Equal(t, entity.StatusPaid, paid.Transaction.Status)
	assert.True(t, paid.Transaction.EscrowHeld())

	h.advance(time.Hour)
	accepted, err := h.svc.Accept(ctx, tx.ID, "seller-s")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAccepted, accepted.Transaction.Status)
	assert.Equal(t, "seller-s", accepted.Transaction.SellerID)

	h.advance(24 * time.Hour)
	shipped, err := h.svc.MarkShipped(ctx, tx.ID, "seller-s")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusShipped, shipped.Transaction.Status)

	h.advance(72 * time.Hour)
	done, err := h.svc.ConfirmReceipt(ctx, tx.ID, "buyer-b")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusShipped, done.From)
	assert.Equal(t, []entity.Status{entity.StatusReceived, entity.StatusCompleted}, done.Path)
	assert.Equal(t, entity.StatusCompleted, done.Transaction.Status)
	assert.Equal(t, int64(5), done.Transaction.Version)

	entries := h.ledger(t, tx.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, entity.LedgerHold, entries[0].Kind)
	assert.Equal(t, entity.LedgerRelease, entries[1].Kind)
	assert.Equal(t, entity.SellerAccount("seller-s"), entries[1].CreditAccount)
	assert.Equal(t, int64(1100), entries[1].Amount)

	// a repeated confirmation is rejected and releases nothing more
	_, err = h.svc.ConfirmReceipt(ctx, tx.ID, "buyer-b")
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)
	assert.Len(t, h.ledger(t, tx.ID), 2)

	events, err := h.svc.Events(ctx, tx.ID)
	require.NoError(t, err)
	var types []entity.EventType
	for _, ev := range events {
		types = append(types, ev.Event)
	}
	assert.Equal(t, []entity.EventType{
		entity.EventCreated,
		entity.EventPaymentConfirmed,
		entity.EventSellerAccepted,
		entity.EventMarkShipped,
		entity.EventBuyerConfirmedReceipt,
	}, types)
	assert.Equal(t, entity.StatusShipped, events[4].FromStatus)
	assert.Equal(t, entity.StatusCompleted, events[4].ToStatus)
}

func TestCashOnDeliveryCancellationWindow(t *testing.T) {
	h := newHarness(t, nil, DefaultConflictRetries)
	ctx := context.Background()

	late, err := h.svc.Create(ctx, codRequest())
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCreated, late.Status)
	assert.Equal(t, "USD", late.Currency)

	_, err = h.svc.Accept(ctx, late.ID, "seller-s")
	require.NoError(t, err)

	h.advance(50 * time.Hour)
	_, err = h.svc.Cancel(ctx, late.ID, "buyer-b", entity.RoleBuyer)
	require.ErrorIs(t, err, errs.ErrCancellationWindowClosed)
	assert.Contains(t, err.Error(), "deadline")

	got, err := h.svc.Get(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAccepted, got.Status)

	early, err := h.svc.Create(ctx, codRequest())
	require.NoError(t, err)
	_, err = h.svc.Accept(ctx, early.ID, "seller-s")
	require.NoError(t, err)

	h.advance(10 * time.Hour)
	res, err := h.svc.Cancel(ctx, early.ID, "buyer-b", entity.RoleBuyer)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCancelled, res.Transaction.Status)
	assert.Equal(t, entity.RefundNone, res.Transaction.RefundPath)
	assert.Equal(t, entity.RoleBuyer, res.Transaction.CancelledBy)
	assert.Empty(t, h.ledger(t, early.ID))
}

func TestPrepaidBuyerCancellationRefunds(t *testing.T) {
	h := newHarness(t, nil, DefaultConflictRetries)
	ctx := context.Background()

	tx, err := h.svc.Create(ctx, prepaidRequest("cs_refund"))
	require.NoError(t, err)
	h.confirmPayment(t, "cs_refund")

	res, err := h.svc.Cancel(ctx, tx.ID, "buyer-b", entity.RoleBuyer)
	require.NoError(t, err)
	assert.Equal(t, entity.RefundFull, res.Transaction.RefundPath)

	entries := h.ledger(t, tx.ID)
	require.Len(t, entries, 2)
	assert.Equal(t, entity.LedgerRefund, entries[1].Kind)
	assert.Equal(t, entity.BuyerAccount("buyer-b"), entries[1].CreditAccount)

	events, err := h.svc.Events(ctx, tx.ID)
	require.NoError(t, err)
	last := events[len(events)-1]
	assert.Equal(t, "full_refund", last.Payload["refundPath"])
}

func TestDuplicatePaymentConfirmationHoldsOnce(t *testing.T) {
	h := newHarness(t, nil, DefaultConflictRetries)

	tx, err := h.svc.Create(context.Background(), prepaidRequest("cs_dup"))
	require.NoError(t, err)

	first := h.confirmPayment(t, "cs_dup")
	assert.False(t, first.NoOp)
	second := h.confirmPayment(t, "cs_dup")
	assert.True(t, second.NoOp)
	assert.Equal(t, entity.StatusPaid, second.Transaction.Status)

	entries := h.ledger(t, tx.ID)
	require.Len(t, entries, 1)
	assert.Equal(t, entity.LedgerHold, entries[0].Kind)
}

func TestConcurrentAcceptFirstWins(t *testing.T) {
	for i := 0; i < 20; i++ {
		h := newHarness(t, nil, DefaultConflictRetries)
		ctx := context.Background()

		tx, err := h.svc.Create(ctx, codRequest())
		require.NoError(t, err)

		sellers := []string{"seller-1", "seller-2"}
		results := make([]error, len(sellers))
		start := make(chan struct{})
		var wg sync.WaitGroup
		for idx, seller := range sellers {
			wg.Add(1)
			go func(idx int, seller string) {
				defer wg.Done()
				<-start
				_, results[idx] = h.svc.Accept(ctx, tx.ID, seller)
			}(idx, seller)
		}
		close(start)
		wg.Wait()

		wins := 0
		for _, err := range results {
			if err == nil {
				wins++
				continue
			}
			assert.ErrorIs(t, err, errs.ErrAlreadyAccepted)
		}
		assert.Equal(t, 1, wins)

		got, err := h.svc.Get(ctx, tx.ID)
		require.NoError(t, err)
		assert.Equal(t, entity.StatusAccepted, got.Status)
		assert.Contains(t, sellers, got.SellerID)
		assert.Equal(t, int64(2), got.Version)
	}
}

// conflictingUoW fails the first n commits with a concurrency conflict
type conflictingUoW struct {
	persistence.UnitOfWork
	mu        sync.Mutex
	remaining int
	commits   int
}

func (u *conflictingUoW) Commit(ctx context.Context) error {
	u.mu.Lock()
	u.commits++
	fail := u.remaining > 0
	if fail {
		u.remaining--
	}
	u.mu.Unlock()

	if fail {
		_ = u.UnitOfWork.Rollback(ctx)
		return errs.ErrConcurrencyConflict
	}
	return u.UnitOfWork.Commit(ctx)
}

func TestCommitConflictIsRetriedWithFreshSnapshot(t *testing.T) {
	var wrapped *conflictingUoW
	h := newHarness(t, func(inner persistence.UnitOfWork) persistence.UnitOfWork {
		wrapped = &conflictingUoW{UnitOfWork: inner}
		return wrapped
	}, 1)
	ctx := context.Background()

	tx, err := h.svc.Create(ctx, codRequest())
	require.NoError(t, err)

	wrapped.remaining = 1
	res, err := h.svc.Accept(ctx, tx.ID, "seller-s")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusAccepted, res.Transaction.Status)
	assert.Equal(t, 3, wrapped.commits)
}

func TestConflictSurfacesWhenRetriesExhausted(t *testing.T) {
	var wrapped *conflictingUoW
	h := newHarness(t, func(inner persistence.UnitOfWork) persistence.UnitOfWork {
		wrapped = &conflictingUoW{UnitOfWork: inner}
		return wrapped
	}, 0)
	ctx := context.Background()

	tx, err := h.svc.Create(ctx, codRequest())
	require.NoError(t, err)

	wrapped.remaining = 1
	_, err = h.svc.Accept(ctx, tx.ID, "seller-s")
	assert.ErrorIs(t, err, errs.ErrConcurrencyConflict)

	got, err := h.svc.Get(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCreated, got.Status)
}

func TestSellerActions(t *testing.T) {
	h := newHarness(t, nil, DefaultConflictRetries)
	ctx := context.Background()

	tx, err := h.svc.Create(ctx, codRequest())
	require.NoError(t, err)

	_, err = h.svc.Accept(ctx, tx.ID, "buyer-b")
	assert.ErrorIs(t, err, errs.ErrValidation)

	_, err = h.svc.MarkShipped(ctx, tx.ID, "seller-s")
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)

	_, err = h.svc.Accept(ctx, tx.ID, "seller-s")
	require.NoError(t, err)

	_, err = h.svc.MarkShipped(ctx, tx.ID, "seller-x")
	assert.ErrorIs(t, err, errs.ErrForbidden)

	_, err = h.svc.Cancel(ctx, tx.ID, "seller-x", entity.RoleSeller)
	assert.ErrorIs(t, err, errs.ErrForbidden)

	res, err := h.svc.Cancel(ctx, tx.ID, "seller-s", entity.RoleSeller)
	require.NoError(t, err)
	assert.Equal(t, entity.RoleSeller, res.Transaction.CancelledBy)
}

func TestInputValidation(t *testing.T) {
	h := newHarness(t, nil, DefaultConflictRetries)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"missing buyer", func() error {
			req := codRequest()
			req.BuyerID = ""
			_, err := h.svc.Create(ctx, req)
			return err
		}, errs.ErrValidation},
		{"prepaid without reference", func() error {
			_, err := h.svc.Create(ctx, prepaidRequest(""))
			return err
		}, errs.ErrValidation},
		{"empty seller id", func() error {
			_, err := h.svc.Accept(ctx, "tx-1", "")
			return err
		}, errs.ErrValidation},
		{"unknown role", func() error {
			_, err := h.svc.Cancel(ctx, "tx-1", "someone", entity.RoleSystem)
			return err
		}, errs.ErrValidation},
		{"missing transaction", func() error {
			_, err := h.svc.Accept(ctx, "tx-missing", "seller-s")
			return err
		}, errs.ErrTransactionNotFound},
		{"events of missing transaction", func() error {
			_, err := h.svc.Events(ctx, "tx-missing")
			return err
		}, errs.ErrTransactionNotFound},
		{"duplicate payment reference", func() error {
			if _, err := h.svc.Create(ctx, prepaidRequest("cs_same")); err != nil {
				return err
			}
			_, err := h.svc.Create(ctx, prepaidRequest("cs_same"))
			return err
		}, errs.ErrDuplicateTransaction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), tt.want)
		})
	}
}

func TestDecideSkipReportsNoOp(t *testing.T) {
	h := newHarness(t, nil, DefaultConflictRetries)
	ctx := context.Background()

	tx, err := h.svc.Create(ctx, codRequest())
	require.NoError(t, err)

	res, err := h.svc.Manager().ApplyEvent(ctx, ByID(tx.ID), func(*entity.Transaction) (lifecycle.Event, bool, error) {
		return lifecycle.Event{}, false, nil
	})
	require.NoError(t, err)
	assert.True(t, res.NoOp)
	assert.Equal(t, entity.StatusCreated, res.From)
}
