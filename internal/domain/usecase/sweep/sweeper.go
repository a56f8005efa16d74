// Package sweep expires prepaid transactions whose payment never arrived
package sweep

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/entity"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/lifecycle"
	coreport "github.com/amirhossein-jamali/escrow-engine/internal/domain/port/core"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/port/persistence"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/usecase/transaction"
)

// Config tunes the sweeper
type Config struct {
	Interval    time.Duration
	BatchSize   int
	Parallelism int
}

// Report counts what one pass did
type Report struct {
	Scanned int
	Expired int
	Skipped int
	Failed  int
}

// Sweeper applies PaymentExpired to stale pending_payment transactions. It is
// safe to run next to itself and next to webhook deliveries: each expiry is a
// version-fenced transition decided on a fresh snapshot.
type Sweeper struct {
	uow          persistence.UnitOfWork
	manager      *transaction.TransactionManager
	timeProvider coreport.TimeProvider
	logger       coreport.Logger
	cfg          Config
}

// NewSweeper creates a new sweeper
func NewSweeper(
	uow persistence.UnitOfWork,
	manager *transaction.TransactionManager,
	timeProvider coreport.TimeProvider,
	logger coreport.Logger,
	cfg Config,
) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 4
	}
	return &Sweeper{
		uow:          uow,
		manager:      manager,
		timeProvider: timeProvider,
		logger:       logger,
		cfg:          cfg,
	}
}

// Run sweeps every interval until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	s.logger.Info("Stale payment sweeper started", map[string]any{
		"interval":    s.cfg.Interval.String(),
		"batch_size":  s.cfg.BatchSize,
		"parallelism": s.cfg.Parallelism,
	})

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Stale payment sweeper stopped", nil)
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("Sweep pass failed", map[string]any{"error": err.Error()})
			}
		}
	}
}

// RunOnce expires one batch of stale transactions
func (s *Sweeper) RunOnce(ctx context.Context) (*Report, error) {
	now := s.timeProvider.Now().UTC()

	stale, err := s.uow.GetTransactionRepository(ctx).ListStalePending(ctx, now, s.cfg.BatchSize)
	if err != nil {
		return nil, err
	}

	var expired, skipped, failed atomic.Int64

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Parallelism)
	for _, tx := range stale {
		id := tx.ID
		g.Go(func() error {
			result, err := s.manager.ApplyEvent(gctx, transaction.ByID(id), func(snapshot *entity.Transaction) (lifecycle.Event, bool, error) {
				// paid or cancelled since the listing
				if snapshot.Status != entity.StatusPendingPayment {
					return lifecycle.Event{}, false, nil
				}
				return lifecycle.Event{
					Type:      entity.EventPaymentExpired,
					ActorRole: entity.RoleSystem,
					At:        now,
				}, true, nil
			})
			switch {
			case err != nil:
				failed.Add(1)
				s.logger.Warn("Failed to expire transaction", map[string]any{
					"transaction_id": id,
					"error":          err.Error(),
				})
			case result.NoOp:
				skipped.Add(1)
			default:
				expired.Add(1)
			}
			// one failure must not stop the batch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	report := &Report{
		Scanned: len(stale),
		Expired: int(expired.Load()),
		Skipped: int(skipped.Load()),
		Failed:  int(failed.Load()),
	}
	if report.Scanned > 0 {
		s.logger.Info("Sweep pass finished", map[string]any{
			"scanned": report.Scanned,
			"expired": report.Expired,
			"skipped": report.Skipped,
			"failed":  report.Failed,
		})
	}
	return report, nil
}
