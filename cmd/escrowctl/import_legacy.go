package main

import (
	"fmt"
	"os"

	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/legacy"
	"github.com/spf13/cobra"
)

func importLegacyCmd() *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "import-legacy [file.yaml]",
		Short: "Import Request and CheckoutOrder records from the older flows",
		Long: `Insert records exported from the direct request flow and the checkout flow.

Each record keeps the status string its flow wrote, tagged with the vocabulary
(request or checkout). Reads translate it to the lifecycle status and the first
transition rewrites it.

Examples:
  escrowctl import-legacy exports/requests.yaml
  escrowctl import-legacy exports/orders.yaml --dry-run`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			doc, err := legacy.Load(f)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "found %d records\n", len(doc.Records))

			if dryRun {
				invalid := 0
				for i, rec := range doc.Records {
					if _, _, err := rec.ToTransaction(0); err != nil {
						invalid++
						fmt.Fprintf(out, "record %d (%s): %v\n", i, rec.ID, err)
					}
				}
				fmt.Fprintf(out, "dry run: %d valid, %d invalid\n", len(doc.Records)-invalid, invalid)
				return nil
			}

			rt, err := open()
			if err != nil {
				return err
			}
			defer rt.close()

			importer := legacy.NewImporter(rt.db.CreateUnitOfWork(), rt.tp, rt.log, rt.cfg.Lifecycle.CancellationWindow)
			report, err := importer.Import(cmd.Context(), doc.Records)
			if err != nil {
				return err
			}

			for _, e := range report.Errors {
				fmt.Fprintln(out, e)
			}
			fmt.Fprintf(out, "imported %d, duplicates %d, failed %d\n", report.Imported, report.Duplicates, report.Failed)
			if report.Failed > 0 {
				return fmt.Errorf("%d records failed", report.Failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file without writing")
	return cmd
}
