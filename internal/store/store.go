// Package store persists the settlement engine's state. Two
// implementations share one interface: Postgres (pgx) for production and
// SQLite (database/sql) for tests and single-node deployments.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/example/bank-settlement/internal/bank"
	"github.com/example/bank-settlement/internal/payment"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique constraint rejects a write, e.g.
// two concurrent batch creations racing for the same batch number.
var ErrDuplicate = errors.New("duplicate key")

// StatusReport summarizes a bank's settlement position over a date range.
type StatusReport struct {
	BankCode           string
	From               time.Time
	To                 time.Time
	BatchCounts        map[payment.BatchStatus]int
	TransactionCounts  map[payment.TransactionStatus]int
	TransactionAmounts map[payment.TransactionStatus]int64
	TotalAmount        int64
}

// Store is the engine's persistence surface. Atomic runs a function
// against a transaction-scoped store; every mutation inside either
// commits as a unit or not at all, which the reconciliation path depends
// on for crash safety.
type Store interface {
	Atomic(ctx context.Context, fn func(Store) error) error

	// Bank configs (written by the admin surface, read by the engine).
	GetBankConfig(ctx context.Context, bankCode string) (*bank.Config, error)
	ListActiveBankConfigs(ctx context.Context) ([]bank.Config, error)
	SaveBankConfig(ctx context.Context, cfg *bank.Config) error

	// Batches.
	CreateBatch(ctx context.Context, batch *payment.PaymentBatch, txns []payment.PaymentTransaction) error
	GetBatch(ctx context.Context, id uuid.UUID) (*payment.PaymentBatch, error)
	UpdateBatch(ctx context.Context, batch *payment.PaymentBatch) error
	CountBatches(ctx context.Context, bankCode string, processingDate time.Time) (int, error)
	ListDueRetries(ctx context.Context, now time.Time) ([]payment.PaymentBatch, error)
	ListBatchTransactions(ctx context.Context, batchID uuid.UUID) ([]payment.PaymentTransaction, error)

	// Transactions.
	GetTransactionByTransactionID(ctx context.Context, transactionID string) (*payment.PaymentTransaction, error)
	UpdateTransaction(ctx context.Context, txn *payment.PaymentTransaction) error

	// Invoices.
	SaveInvoice(ctx context.Context, inv *payment.Invoice) error
	GetInvoice(ctx context.Context, id uuid.UUID) (*payment.Invoice, error)
	ListEligibleInvoices(ctx context.Context, bankCode string) ([]payment.Invoice, error)
	UpdateInvoice(ctx context.Context, inv *payment.Invoice) error

	// Reconciliation logs.
	CreateReconLog(ctx context.Context, log *payment.ReconciliationLog) error
	GetReconLog(ctx context.Context, id uuid.UUID) (*payment.ReconciliationLog, error)
	GetReconLogByFileName(ctx context.Context, bankCode, fileName string) (*payment.ReconciliationLog, error)
	ListReconFileNames(ctx context.Context, bankCode string) ([]string, error)
	UpdateReconLog(ctx context.Context, log *payment.ReconciliationLog) error

	// Reporting.
	StatusReport(ctx context.Context, bankCode string, from, to time.Time) (*StatusReport, error)
}
