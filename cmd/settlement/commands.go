package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/example/bank-settlement/internal/bank"
	"github.com/example/bank-settlement/internal/worker"
)

func batchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Create and manage payment batches",
	}

	var (
		bankCode string
		dateStr  string
		invoices []string
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Group unpaid invoices into a new batch",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			date, err := time.ParseInLocation("2006-01-02", dateStr, time.UTC)
			if err != nil {
				return fmt.Errorf("invalid --date: %w", err)
			}
			ids := make([]uuid.UUID, 0, len(invoices))
			for _, raw := range invoices {
				id, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Errorf("invalid --invoice %q: %w", raw, err)
				}
				ids = append(ids, id)
			}

			b, err := a.manager.CreateBatch(cmd.Context(), bankCode, date, ids...)
			if err != nil {
				return err
			}
			fmt.Printf("created batch %s (%s): %d transactions, total %d\n",
				b.BatchNumber, b.ID, b.TotalTransactions, b.TotalAmount)
			return nil
		},
	}
	create.Flags().StringVar(&bankCode, "bank", "", "bank code")
	create.Flags().StringVar(&dateStr, "date", "", "processing date (YYYY-MM-DD)")
	create.Flags().StringArrayVar(&invoices, "invoice", nil, "invoice id (repeatable; default: all eligible)")
	_ = create.MarkFlagRequired("bank")
	_ = create.MarkFlagRequired("date")

	cmd.AddCommand(create)
	cmd.AddCommand(batchAction("generate", "Render the bank file for a batch",
		func(ctx context.Context, a *app, id uuid.UUID) error {
			return a.orch.GenerateFile(ctx, id)
		}))
	cmd.AddCommand(batchAction("upload", "Generate and deliver a batch to the bank",
		func(ctx context.Context, a *app, id uuid.UUID) error {
			return a.orch.Dispatch(ctx, id)
		}))
	cmd.AddCommand(batchAction("cancel", "Cancel a batch that has not been uploaded",
		func(ctx context.Context, a *app, id uuid.UUID) error {
			return a.manager.CancelBatch(ctx, id)
		}))
	cmd.AddCommand(batchAction("requeue", "Put a failed batch back on the upload path",
		func(ctx context.Context, a *app, id uuid.UUID) error {
			return a.orch.RequeueFailed(ctx, id)
		}))
	return cmd
}

func batchAction(use, short string, fn func(context.Context, *app, uuid.UUID) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <batch-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid batch id: %w", err)
			}
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			return fn(cmd.Context(), a, id)
		},
	}
}

func bankCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bank",
		Short: "Manage bank connection profiles",
	}

	var file string
	load := &cobra.Command{
		Use:   "load",
		Short: "Load bank profiles from a JSON file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			configs, err := bank.ParseProfiles(data)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			for i := range configs {
				cfg := &configs[i]
				if err := a.store.SaveBankConfig(cmd.Context(), cfg); err != nil {
					return fmt.Errorf("save bank %s: %w", cfg.BankCode, err)
				}
				fmt.Printf("saved bank %s\n", cfg.BankCode)
			}
			return nil
		},
	}
	load.Flags().StringVar(&file, "file", "", "JSON file with an array of bank profiles")
	_ = load.MarkFlagRequired("file")

	list := &cobra.Command{
		Use:   "list",
		Short: "List active bank profiles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			configs, err := a.store.ListActiveBankConfigs(cmd.Context())
			if err != nil {
				return err
			}
			for i := range configs {
				c := &configs[i]
				fmt.Printf("%s\t%s:%d\t%s\t%s\n", c.BankCode, c.Host, c.Port, c.FileFormat, c.Encoding)
			}
			return nil
		},
	}

	cmd.AddCommand(load, list)
	return cmd
}

func reconCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recon",
		Short: "Check and process reconciliation files",
	}

	var bankCode string
	check := &cobra.Command{
		Use:   "check",
		Short: "List unprocessed reconciliation files for a bank",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			files, err := a.engine.CheckFiles(cmd.Context(), bankCode)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				fmt.Println("nothing new")
				return nil
			}
			for _, f := range files {
				fmt.Println(f)
			}
			return nil
		},
	}
	check.Flags().StringVar(&bankCode, "bank", "", "bank code")
	_ = check.MarkFlagRequired("bank")

	var (
		procBank string
		procFile string
	)
	process := &cobra.Command{
		Use:   "process",
		Short: "Process one reconciliation file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			log, err := a.engine.ProcessFile(cmd.Context(), procBank, procFile)
			if err != nil {
				return err
			}
			fmt.Printf("%s: %s, %d/%d matched, %d unmatched, %d failed\n",
				log.FileName, log.Status, log.MatchedRecords, log.TotalRecords,
				log.UnmatchedRecords, log.FailedRecords)
			return nil
		},
	}
	process.Flags().StringVar(&procBank, "bank", "", "bank code")
	process.Flags().StringVar(&procFile, "file", "", "reconciliation file name")
	_ = process.MarkFlagRequired("bank")
	_ = process.MarkFlagRequired("file")

	var runBank string
	run := &cobra.Command{
		Use:   "run",
		Short: "Check a bank and process everything new",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			n, err := a.engine.Run(cmd.Context(), runBank)
			if err != nil {
				return err
			}
			fmt.Printf("processed %d file(s)\n", n)
			return nil
		},
	}
	run.Flags().StringVar(&runBank, "bank", "", "bank code")
	_ = run.MarkFlagRequired("bank")

	var note string
	resolve := &cobra.Command{
		Use:   "resolve <log-id>",
		Short: "Close out an unmatched or manual-review log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid log id: %w", err)
			}
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			return a.engine.Resolve(cmd.Context(), id, note)
		},
	}
	resolve.Flags().StringVar(&note, "note", "", "operator note")

	cmd.AddCommand(check, process, run, resolve)
	return cmd
}

func reportCmd() *cobra.Command {
	var (
		bankCode string
		fromStr  string
		toStr    string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Summarize batch and transaction standing for a bank",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			to := time.Now().UTC()
			from := to.AddDate(0, 0, -7)
			if fromStr != "" {
				if from, err = time.ParseInLocation("2006-01-02", fromStr, time.UTC); err != nil {
					return fmt.Errorf("invalid --from: %w", err)
				}
			}
			if toStr != "" {
				if to, err = time.ParseInLocation("2006-01-02", toStr, time.UTC); err != nil {
					return fmt.Errorf("invalid --to: %w", err)
				}
				to = to.AddDate(0, 0, 1)
			}

			report, err := a.engine.Report(cmd.Context(), bankCode, from, to)
			if err != nil {
				return err
			}
			fmt.Printf("bank %s, %s to %s\n", bankCode,
				from.Format("2006-01-02"), to.Format("2006-01-02"))
			fmt.Println("batches:")
			for status, n := range report.BatchCounts {
				fmt.Printf("  %-12s %d\n", status, n)
			}
			fmt.Println("transactions:")
			for status, n := range report.TransactionCounts {
				fmt.Printf("  %-12s %d (amount %d)\n", status, n, report.TransactionAmounts[status])
			}
			fmt.Printf("total amount: %d\n", report.TotalAmount)
			return nil
		},
	}
	cmd.Flags().StringVar(&bankCode, "bank", "", "bank code")
	cmd.Flags().StringVar(&fromStr, "from", "", "start date (YYYY-MM-DD, default: 7 days ago)")
	cmd.Flags().StringVar(&toStr, "to", "", "end date (YYYY-MM-DD, inclusive, default: today)")
	_ = cmd.MarkFlagRequired("bank")
	return cmd
}

func refundCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refund <transaction-id>",
		Short: "Mark a settled transaction as refunded",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			return a.manager.MarkRefunded(cmd.Context(), args[0])
		},
	}
}

func workerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the retry and reconciliation polling loops",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			w := worker.New(a.store, a.orch, a.engine, a.logger, worker.Config{
				RetryInterval: a.cfg.RetryInterval,
				ReconInterval: a.cfg.ReconInterval,
			})
			if err := w.Run(cmd.Context()); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}
