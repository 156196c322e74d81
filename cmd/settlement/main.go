package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "settlement",
	Short: "Bank payment batching and reconciliation engine",
	Long: `settlement groups unpaid invoices into per-bank payment batches,
delivers the batch files over SFTP and reconciles the bank's response
files back onto transactions and invoices.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(batchCmd())
	rootCmd.AddCommand(bankCmd())
	rootCmd.AddCommand(reconCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(refundCmd())
	rootCmd.AddCommand(workerCmd())
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	err := rootCmd.ExecuteContext(ctx)
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
