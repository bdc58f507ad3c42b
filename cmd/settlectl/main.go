package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// settlectl is the operator CLI: protocol setup, pause switch, fee updates,
// record lookups and store maintenance.

func main() {
	rootCmd := &cobra.Command{
		Use:           "settlectl",
		Short:         "Settlement protocol operator tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		initCmd(),
		pauseCmd(true),
		pauseCmd(false),
		setFeeCmd(),
		stateCmd(),
		escrowCmd(),
		agreementCmd(),
		propertyCmd(),
		purgeCmd(),
		migrateCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
