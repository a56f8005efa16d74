package database_test

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
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/usecase"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/usecase/escrow"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/usecase/transaction"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/database"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/database/migration"
	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/logger"
)

var baseTime = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newTx(id, ref string) *entity.Transaction {
	tx := &entity.Transaction{
		ID:                        id,
		BuyerID:                   "buyer-1",
		Origin:                    entity.OriginCheckout,
		Items:                     []entity.LineItem{{Name: "Headphones", Quantity: 1, UnitPrice: 1100, SourceCountry: "JP"}},
		AmountTotal:               1100,
		Currency:                  "USD",
		PaymentMethod:             entity.PaymentPrepaidOnline,
		Status:                    entity.StatusPendingPayment,
		CreatedAt:                 baseTime,
		StatusChangedAt:           baseTime,
		CancellationEligibleUntil: baseTime.Add(48 * time.Hour),
	}
	if ref != "" {
		tx.ExternalPaymentRef = &ref
	}
	return tx
}

func setup(t *testing.T) (*database.TestDBManager, persistence.UnitOfWork) {
	t.Helper()
	m := database.NewTestDBManager(t, logger.NewNoopLogger())
	m.Connect(t)
	return m, m.Manager.CreateUnitOfWork()
}

func TestMigrationRecordsSchemaVersion(t *testing.T) {
	m, _ := setup(t)
	ctx := context.Background()

	mgr := migration.NewMigrationManager(m.Manager.DB(), m.Logger, m.TimeProvider)
	version, err := mgr.GetCurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, migration.CurrentSchemaVersion, version)

	// a second run is a no-op
	require.NoError(t, m.Manager.Migrate(ctx))
	require.NoError(t, m.Manager.Ping(ctx))
}

func TestPoolMetricsSampledOnConnect(t *testing.T) {
	m, _ := setup(t)

	require.NoError(t, m.Manager.Ping(context.Background()))
	metrics := m.Manager.PoolMetrics()
	assert.Equal(t, 1, metrics.MaxOpenConnections, "sqlite is pinned to a single connection")
}

func TestTransactionRoundTrip(t *testing.T) {
	_, uow := setup(t)
	ctx := context.Background()
	repo := uow.GetTransactionRepository(ctx)

	tx := newTx("tx-1", "cs_1")
	require.NoError(t, repo.Create(ctx, tx))
	assert.Equal(t, int64(1), tx.Version)

	got, err := repo.GetByID(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPendingPayment, got.Status)
	assert.Equal(t, "cs_1", got.PaymentRef())
	require.Len(t, got.Items, 1)
	assert.Equal(t, "JP", got.Items[0].SourceCountry)
	assert.True(t, got.CancellationEligibleUntil.Equal(baseTime.Add(48*time.Hour)))

	byRef, err := repo.GetByExternalPaymentRef(ctx, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, "tx-1", byRef.ID)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, errs.ErrTransactionNotFound)

	err = repo.Create(ctx, newTx("tx-1", "cs_2"))
	assert.ErrorIs(t, err, errs.ErrDuplicateTransaction)
}

func TestCreateRejectsNonCanonicalStatus(t *testing.T) {
	_, uow := setup(t)
	ctx := context.Background()
	repo := uow.GetTransactionRepository(ctx)

	for _, status := range []entity.Status{"", "Shipped", "delivered"} {
		tx := newTx("tx-"+string(status), "")
		tx.Status = status
		err := repo.Create(ctx, tx)
		assert.ErrorIs(t, err, errs.ErrValidation, "status %q", status)
	}

	// a rejected write never reaches the participant listing
	list, err := repo.ListByParticipant(ctx, "buyer-1", "", 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpdateVersionFence(t *testing.T) {
	_, uow := setup(t)
	ctx := context.Background()
	repo := uow.GetTransactionRepository(ctx)
	require.NoError(t, repo.Create(ctx, newTx("tx-1", "cs_1")))

	snap, err := repo.GetByID(ctx, "tx-1")
	require.NoError(t, err)

	next := snap.Clone()
	next.Status = entity.StatusPaid
	paidAt := baseTime.Add(time.Minute)
	next.PaidAt = &paidAt
	require.NoError(t, repo.Update(ctx, next, snap.Version))
	assert.Equal(t, int64(2), next.Version)

	stale := snap.Clone()
	stale.Status = entity.StatusCancelled
	err = repo.Update(ctx, stale, snap.Version)
	assert.ErrorIs(t, err, errs.ErrConcurrencyConflict)

	err = repo.Update(ctx, newTx("ghost", ""), 1)
	assert.ErrorIs(t, err, errs.ErrTransactionNotFound)

	got, err := repo.GetByID(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusPaid, got.Status)
	require.NotNil(t, got.PaidAt)
	assert.True(t, got.PaidAt.Equal(paidAt))
}

func TestRollbackDiscardsEverything(t *testing.T) {
	_, uow := setup(t)
	ctx := context.Background()

	txCtx, err := uow.Begin(ctx)
	require.NoError(t, err)

	_, err = uow.Begin(txCtx)
	assert.Error(t, err, "nested begin must be rejected")

	require.NoError(t, uow.GetTransactionRepository(txCtx).Create(txCtx, newTx("tx-1", "cs_1")))
	require.NoError(t, uow.GetEventRepository(txCtx).Append(txCtx, &entity.TransactionEvent{
		TransactionID: "tx-1",
		Event:         entity.EventCreated,
		ToStatus:      entity.StatusPendingPayment,
		ActorRole:     entity.RoleBuyer,
		OccurredAt:    baseTime,
	}))
	require.NoError(t, uow.Rollback(txCtx))

	_, err = uow.GetTransactionRepository(ctx).GetByID(ctx, "tx-1")
	assert.ErrorIs(t, err, errs.ErrTransactionNotFound)

	events, err := uow.GetEventRepository(ctx).ListByTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestLedgerRecordIsIdempotent(t *testing.T) {
	_, uow := setup(t)
	ctx := context.Background()
	ledger := uow.GetLedgerRepository(ctx)

	hold := func() *entity.LedgerEntry {
		return &entity.LedgerEntry{
			TransactionID: "tx-1",
			Kind:          entity.LedgerHold,
			DebitAccount:  entity.BuyerAccount("buyer-1"),
			CreditAccount: entity.AccountEscrow,
			Amount:        1100,
			Currency:      "USD",
			CreatedAt:     baseTime,
		}
	}

	inserted, err := ledger.Record(ctx, hold())
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = ledger.Record(ctx, hold())
	require.NoError(t, err)
	assert.False(t, inserted)

	entries, err := ledger.ListByTransaction(ctx, "tx-1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	byAccount, err := ledger.ListByAccount(ctx, entity.AccountEscrow)
	require.NoError(t, err)
	assert.Len(t, byAccount, 1)
}

func TestLegacyImportNormalizesAndRewrites(t *testing.T) {
	_, uow := setup(t)
	ctx := context.Background()
	repo := uow.GetTransactionRepository(ctx)

	legacy := newTx("legacy-1", "")
	legacy.PaymentMethod = entity.PaymentCashOnDelivery
	legacy.Origin = entity.OriginRequest
	require.NoError(t, repo.ImportLegacy(ctx, legacy, entity.VocabularyRequest, "Accepted"))

	snap, err := repo.GetByID(ctx, "legacy-1")
	require.NoError(t, err)
	require.Equal(t, entity.StatusAccepted, snap.Status)

	next := snap.Clone()
	next.Status = entity.StatusShipped
	require.NoError(t, repo.Update(ctx, next, snap.Version))

	got, err := repo.GetByID(ctx, "legacy-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusShipped, got.Status)

	err = repo.ImportLegacy(ctx, newTx("legacy-2", ""), entity.VocabularyCheckout, "Delivered")
	assert.ErrorIs(t, err, errs.ErrUnknownLegacyStatus)
}

func TestListQueries(t *testing.T) {
	_, uow := setup(t)
	ctx := context.Background()
	repo := uow.GetTransactionRepository(ctx)

	stale := newTx("stale", "cs_stale")
	require.NoError(t, repo.Create(ctx, stale))

	fresh := newTx("fresh", "cs_fresh")
	fresh.CancellationEligibleUntil = baseTime.Add(96 * time.Hour)
	require.NoError(t, repo.Create(ctx, fresh))

	other := newTx("other", "cs_other")
	other.BuyerID = "buyer-2"
	other.SellerID = "buyer-1"
	other.Status = entity.StatusAccepted
	require.NoError(t, repo.Create(ctx, other))

	pending, err := repo.ListStalePending(ctx, baseTime.Add(72*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "stale", pending[0].ID)

	all, err := repo.ListByParticipant(ctx, "buyer-1", "", 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	asSeller, err := repo.ListByParticipant(ctx, "buyer-1", entity.RoleSeller, 10)
	require.NoError(t, err)
	require.Len(t, asSeller, 1)
	assert.Equal(t, "other", asSeller[0].ID)
}

func TestEventOutbox(t *testing.T) {
	_, uow := setup(t)
	ctx := context.Background()
	events := uow.GetEventRepository(ctx)

	for _, ev := range []entity.EventType{entity.EventCreated, entity.EventPaymentConfirmed} {
		require.NoError(t, events.Append(ctx, &entity.TransactionEvent{
			TransactionID: "tx-1",
			Event:         ev,
			ToStatus:      entity.StatusPaid,
			ActorRole:     entity.RoleSystem,
			Payload:       map[string]any{"version": 2},
			OccurredAt:    baseTime,
		}))
	}

	pending, err := events.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, entity.EventCreated, pending[0].Event)
	assert.Less(t, pending[0].ID, pending[1].ID)

	require.NoError(t, events.MarkPublished(ctx, []uint64{pending[0].ID}, baseTime))

	pending, err = events.ListUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, entity.EventPaymentConfirmed, pending[0].Event)
}

func TestWebhookDeliveries(t *testing.T) {
	_, uow := setup(t)
	ctx := context.Background()
	deliveries := uow.GetWebhookDeliveryRepository(ctx)

	seen, err := deliveries.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	d := &entity.WebhookDelivery{
		DeliveryID:  "evt_1",
		EventType:   "checkout.session.completed",
		PaymentRef:  "cs_1",
		Result:      "processed",
		ProcessedAt: baseTime,
	}
	require.NoError(t, deliveries.Record(ctx, d))
	require.NoError(t, deliveries.Record(ctx, d))

	seen, err = deliveries.Seen(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestLifecycleOverSQLite(t *testing.T) {
	m, uow := setup(t)
	ctx := context.Background()
	log := m.Logger

	controller := escrow.NewController(uow, m.TimeProvider, log)
	txs := transaction.NewTransactionService(uow, controller, m.TimeProvider, log, transaction.Options{
		CancellationWindow: 48 * time.Hour,
		ConflictRetries:    1,
		DefaultCurrency:    "USD",
	})

	created, err := txs.Create(ctx, newCreateRequest())
	require.NoError(t, err)

	_, err = txs.Manager().ApplyEvent(ctx, transaction.ByPaymentRef("cs_sqlite"), transaction.Fixed(paymentConfirmed()))
	require.NoError(t, err)

	_, err = txs.Accept(ctx, created.ID, "seller-1")
	require.NoError(t, err)
	_, err = txs.MarkShipped(ctx, created.ID, "seller-1")
	require.NoError(t, err)
	result, err := txs.ConfirmReceipt(ctx, created.ID, "buyer-1")
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, result.Transaction.Status)

	entries, err := uow.GetLedgerRepository(ctx).ListByTransaction(ctx, created.ID)
	require.NoError(t, err)
	kinds := make([]entity.LedgerKind, 0, len(entries))
	for _, e := range entries {
		kinds = append(kinds, e.Kind)
	}
	assert.ElementsMatch(t, []entity.LedgerKind{entity.LedgerHold, entity.LedgerRelease}, kinds)

	trail, err := txs.Events(ctx, created.ID)
	require.NoError(t, err)
	assert.Len(t, trail, 5)
}

func newCreateRequest() usecase.CreateTransactionRequest {
	return usecase.CreateTransactionRequest{
		BuyerID:            "buyer-1",
		Items:              []entity.LineItem{{Name: "Camera", Quantity: 1, UnitPrice: 25000}},
		AmountTotal:        25000,
		Currency:           "EUR",
		PaymentMethod:      entity.PaymentPrepaidOnline,
		ExternalPaymentRef: "cs_sqlite",
	}
}

func paymentConfirmed() lifecycle.Event {
	return lifecycle.Event{
		Type:      entity.EventPaymentConfirmed,
		ActorRole: entity.RoleSystem,
	}
}
