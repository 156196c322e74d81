// Package payment defines the core entities of the settlement engine:
// payment batches, the transactions they carry, reconciliation logs, and
// the invoices they ultimately pay down. All monetary amounts are int64
// minor units (e.g. cents); settlement files never carry fractions.
package payment

import (
	"time"

	"github.com/google/uuid"
)

// BatchStatus represents the lifecycle state of a payment batch.
type BatchStatus string

const (
	BatchDraft      BatchStatus = "DRAFT"
	BatchGenerated  BatchStatus = "GENERATED"
	BatchUploaded   BatchStatus = "UPLOADED"
	BatchProcessing BatchStatus = "PROCESSING"
	BatchReconciled BatchStatus = "RECONCILED"
	BatchFailed     BatchStatus = "FAILED"
	BatchCancelled  BatchStatus = "CANCELLED"
)

// TransactionStatus represents the outcome state of a single payment.
type TransactionStatus string

const (
	TxnPending  TransactionStatus = "PENDING"
	TxnSuccess  TransactionStatus = "SUCCESS"
	TxnFailed   TransactionStatus = "FAILED"
	TxnRejected TransactionStatus = "REJECTED"
	TxnRefunded TransactionStatus = "REFUNDED"
)

// ReconLogStatus represents the processing state of one reconciliation file.
type ReconLogStatus string

const (
	ReconPending      ReconLogStatus = "PENDING"
	ReconMatched      ReconLogStatus = "MATCHED"
	ReconUnmatched    ReconLogStatus = "UNMATCHED"
	ReconManualReview ReconLogStatus = "MANUAL_REVIEW"
	ReconResolved     ReconLogStatus = "RESOLVED"
)

// PaymentStatus tracks how much of an invoice has been collected.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentPaid    PaymentStatus = "PAID"
)

// InvoiceStatusIssued is the only invoice document state eligible for
// batching. Other document states (draft, void) belong to the upstream
// invoicing service.
const InvoiceStatusIssued = "ISSUED"

// PaymentBatch groups the transactions submitted to one bank in one file.
//
// TotalAmount must always equal the sum of the batch's transaction amounts
// and TotalTransactions their count. A batch is immutable once it reaches
// RECONCILED or CANCELLED.
type PaymentBatch struct {
	ID                uuid.UUID
	BatchNumber       string // deterministic: bank code + date + sequence, unique
	BankCode          string
	ProcessingDate    time.Time
	FileName          string
	TotalTransactions int
	TotalAmount       int64
	Status            BatchStatus
	GeneratedAt       *time.Time
	UploadedAt        *time.Time
	ReconciledAt      *time.Time
	ErrorMessage      string
	RetryCount        int
	NextRetryAt       *time.Time // persisted retry schedule, survives restarts
	CreatedAt         time.Time
}

// PaymentTransaction is a single debit instruction inside a batch.
// TransactionID is the identifier written into the settlement file and is
// what the bank echoes back in reconciliation records.
type PaymentTransaction struct {
	ID                  uuid.UUID
	BatchID             uuid.UUID
	TransactionID       string // zero-padded sequence scoped by batch number, globally unique
	CustomerID          uuid.UUID
	InvoiceID           uuid.UUID
	AccountNumber       string
	AccountHolder       string
	Amount              int64 // minor units, always > 0
	Status              TransactionStatus
	BankReference       string
	BankResponseCode    string
	BankResponseMessage string
	ScheduledDate       time.Time
	ProcessedDate       *time.Time
	CreatedAt           time.Time
}

// ReconciliationLog records the processing of one reconciliation file.
// FileName is the processed-once key: a file name with a MATCHED log is
// never applied again. BatchID is nullable because a single bank file may
// cover transactions from several batches; matching is by record content.
// MatchedRecords counts records that settled SUCCESS, FailedRecords those
// the bank reported failed or rejected, UnmatchedRecords those with no
// transaction to apply to.
type ReconciliationLog struct {
	ID               uuid.UUID
	BatchID          *uuid.UUID
	BankCode         string
	FileName         string // unique
	TotalRecords     int
	MatchedRecords   int
	UnmatchedRecords int
	FailedRecords    int
	Status           ReconLogStatus
	ProcessedAt      *time.Time
	ErrorDetails     string
	CreatedAt        time.Time
}

// Invoice is the engine's read/update view of the upstream invoice record.
// The document lifecycle (issuing, voiding) belongs to the invoicing
// service; the engine only drives PaymentStatus from successful
// transactions and accumulates PaidAmount.
type Invoice struct {
	ID            uuid.UUID
	InvoiceNumber string
	CustomerID    uuid.UUID
	BankCode      string // bank the customer is configured to pay through
	AccountNumber string
	AccountHolder string
	TotalAmount   int64
	PaidAmount    int64
	Status        string
	PaymentStatus PaymentStatus
	CreatedAt     time.Time
}

// UnpaidBalance is the amount still collectible on the invoice.
func (inv *Invoice) UnpaidBalance() int64 {
	return inv.TotalAmount - inv.PaidAmount
}

// RecomputePaymentStatus derives the invoice payment state from the sum of
// settled amounts. It moves in both directions: a refund that drops
// PaidAmount back to zero returns the invoice to PENDING.
func RecomputePaymentStatus(inv *Invoice) {
	switch {
	case inv.PaidAmount >= inv.TotalAmount && inv.TotalAmount > 0:
		inv.PaymentStatus = PaymentPaid
	case inv.PaidAmount > 0:
		inv.PaymentStatus = PaymentPartial
	default:
		inv.PaymentStatus = PaymentPending
	}
}
