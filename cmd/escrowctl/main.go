package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version is set at build time
var Version = "dev"

var (
	environment string
	configDir   string
	verbose     bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "escrowctl",
		Short:         "Administration commands for the escrow engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&environment, "env", "e", "", "configuration environment (defaults to ESC_ENV or development)")
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory holding <env>.yaml")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(importLegacyCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
