package escrow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	errs "github.com/amirhossein-jamali/escrow-engine/internal/domain/error"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/lifecycle"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/persistence"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/logger"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/memory"
	coremocks "github.com/amirhossein-jamali/escrow-engine/mocks/port/core"
)

var fixedTime = time.Date(2025, 5, 10, 8, 30, 0, 0, time.UTC)

func newController(t *testing.T) (*Controller, persistence.UnitOfWork) {
	t.Helper()
	tp := coremocks.NewMockTimeProvider(t)
	tp.EXPECT().Now().Return(fixedTime).Maybe()

	log := logger.NewNoopLogger()
	uow := memory.NewUnitOfWork(memory.NewStore(), log)
	return NewController(uow, tp, log), uow
}

func prepaid(id, seller string, amount int64, currency string) *entity.Transaction {
	return &entity.Transaction{
		ID:            id,
		BuyerID:       "buyer-1",
		SellerID:      seller,
		AmountTotal:   amount,
		Currency:      currency,
		PaymentMethod: entity.PaymentPrepaidOnline,
		Status:        entity.StatusPaid,
	}
}

func outcomeWith(tx *entity.Transaction, effects ...lifecycle.Effect) *lifecycle.Outcome {
	return &lifecycle.Outcome{Next: tx, Effects: effects}
}

func TestExecuteRecordsDoubleEntryMovements(t *testing.T) {
	c, _ := newController(t)
	ctx := context.Background()
	tx := prepaid("tx-1", "seller-1", 1100, "USD")

	held, err := c.Execute(ctx, outcomeWith(tx, lifecycle.EffectHoldEscrow))
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, entity.LedgerHold, held[0].Kind)
	assert.Equal(t, entity.BuyerAccount("buyer-1"), held[0].DebitAccount)
	assert.Equal(t, entity.AccountEscrow, held[0].CreditAccount)
	assert.Equal(t, fixedTime, held[0].CreatedAt)

	released, err := c.Execute(ctx, outcomeWith(tx, lifecycle.EffectReleaseEscrow))
	require.NoError(t, err)
	require.Len(t, released, 1)
	assert.Equal(t, entity.AccountEscrow, released[0].DebitAccount)
	assert.Equal(t, entity.SellerAccount("seller-1"), released[0].CreditAccount)
	assert.Equal(t, int64(1100), released[0].Amount)
}

func TestExecuteIsIdempotent(t *testing.T) {
	c, uow := newController(t)
	ctx := context.Background()
	tx := prepaid("tx-1", "seller-1", 1100, "USD")

	_, err := c.Execute(ctx, outcomeWith(tx, lifecycle.EffectHoldEscrow))
	require.NoError(t, err)
	again, err := c.Execute(ctx, outcomeWith(tx, lifecycle.EffectHoldEscrow))
	require.NoError(t, err)
	assert.Empty(t, again)

	entries, err := uow.GetLedgerRepository(ctx).ListByTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestExecuteNoEffects(t *testing.T) {
	c, _ := newController(t)
	entries, err := c.Execute(context.Background(), outcomeWith(prepaid("tx-1", "", 10, "USD")))
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestReleaseAndRefundAreExclusive(t *testing.T) {
	c, _ := newController(t)
	ctx := context.Background()
	tx := prepaid("tx-1", "seller-1", 1100, "USD")

	_, err := c.Execute(ctx, outcomeWith(tx, lifecycle.EffectHoldEscrow))
	require.NoError(t, err)
	_, err = c.Execute(ctx, outcomeWith(tx, lifecycle.EffectRefundBuyer))
	require.NoError(t, err)

	_, err = c.Execute(ctx, outcomeWith(tx, lifecycle.EffectReleaseEscrow))
	assert.ErrorIs(t, err, errs.ErrInternalServer)
}

func TestReleaseRequiresSeller(t *testing.T) {
	c, _ := newController(t)
	_, err := c.Execute(context.Background(), outcomeWith(prepaid("tx-1", "", 1100, "USD"), lifecycle.EffectReleaseEscrow))
	assert.ErrorIs(t, err, errs.ErrInternalServer)
}

func TestUnknownEffect(t *testing.T) {
	c, _ := newController(t)
	_, err := c.Execute(context.Background(), outcomeWith(prepaid("tx-1", "s", 1, "USD"), lifecycle.Effect("teleport")))
	assert.ErrorIs(t, err, errs.ErrInternalServer)
}

func TestBalances(t *testing.T) {
	c, _ := newController(t)
	ctx := context.Background()

	sold := []*entity.Transaction{
		prepaid("tx-1", "seller-1", 1100, "USD"),
		prepaid("tx-2", "seller-1", 900, "USD"),
		prepaid("tx-3", "seller-1", 50000, "JPY"),
	}
	for _, tx := range sold {
		_, err := c.Execute(ctx, outcomeWith(tx, lifecycle.EffectHoldEscrow))
		require.NoError(t, err)
		_, err = c.Execute(ctx, outcomeWith(tx, lifecycle.EffectReleaseEscrow))
		require.NoError(t, err)
	}

	refunded := prepaid("tx-4", "", 700, "USD")
	refunded.BuyerID = "seller-1"
	_, err := c.Execute(ctx, outcomeWith(refunded, lifecycle.EffectHoldEscrow, lifecycle.EffectRefundBuyer))
	require.NoError(t, err)

	balances, err := c.Balances(ctx, "seller-1")
	require.NoError(t, err)
	require.Len(t, balances, 2)
	assert.Equal(t, int64(2000), balances["USD"].Released)
	assert.Equal(t, int64(700), balances["USD"].Refunded)
	assert.Equal(t, int64(50000), balances["JPY"].Released)

	empty, err := c.Balances(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
