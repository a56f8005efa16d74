package main

import (
	"fmt"

	"github.com/amirhossein-jamali/escrow-engine/internal/domain/usecase/escrow"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/usecase/sweep"
	"github.com/amirhossein-jamali/escrow-engine/internal/domain/usecase/transaction"
	"github.com/spf13/cobra"
)

func sweepCmd() *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Expire unpaid transactions past their deadline (one pass)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := open()
			if err != nil {
				return err
			}
			defer rt.close()

			uow := rt.db.CreateUnitOfWork()
			txs := transaction.NewTransactionService(uow, escrow.NewController(uow, rt.tp, rt.log), rt.tp, rt.log, transaction.Options{
				CancellationWindow: rt.cfg.Lifecycle.CancellationWindow,
				ConflictRetries:    rt.cfg.Lifecycle.ConflictRetries,
				DefaultCurrency:    rt.cfg.Currency,
			})

			size := rt.cfg.Lifecycle.SweepBatchSize
			if batchSize > 0 {
				size = batchSize
			}
			sweeper := sweep.NewSweeper(uow, txs.Manager(), rt.tp, rt.log, sweep.Config{
				BatchSize:   size,
				Parallelism: rt.cfg.Lifecycle.SweepParallelism,
			})

			report, err := sweeper.RunOnce(cmd.Context())
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "scanned %d, expired %d, skipped %d, failed %d\n",
				report.Scanned, report.Expired, report.Skipped, report.Failed)
			return nil
		},
	}

	cmd.Flags().IntVarP(&batchSize, "batch-size", "n", 0, "maximum transactions to examine (defaults to lifecycle.sweepBatchSize)")
	return cmd
}
