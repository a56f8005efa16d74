package main

import (
	"fmt"

	"github.com/amirhossein-jamali/escrow-engine/internal/infrastructure/adapter/database/migration"
	"github.com/spf13/cobra"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Bring the database schema up to date",
		Long: `Create or upgrade the escrow tables and indexes.

Rows written by the older flows get their status vocabulary backfilled on the
way to schema ` + migration.CurrentSchemaVersion + `.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := open()
			if err != nil {
				return err
			}
			defer rt.close()

			if err := rt.db.Migrate(cmd.Context()); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %s\n", migration.CurrentSchemaVersion)
			return nil
		},
	}
}
