// Package batch assembles eligible invoices into payment batches and
// manages the batch lifecycle up to file generation.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/example/bank-settlement/internal/payment"
	"github.com/example/bank-settlement/internal/store"
	"github.com/example/bank-settlement/pkg/audit"
)

// createAttempts bounds retries when a concurrent creator takes the
// same batch sequence number.
const createAttempts = 3

type Manager struct {
	store  store.Store
	audit  audit.Recorder
	logger *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

type Option func(*Manager)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

func NewManager(st store.Store, rec audit.Recorder, logger *slog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:  st,
		audit:  rec,
		logger: logger,
		now:    time.Now,
		locks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m
}

// lockFor serializes batch creation per bank and processing date so
// sequence numbers are assigned without races in this process.
func (m *Manager) lockFor(bankCode string, date time.Time) *sync.Mutex {
	key := bankCode + "|" + date.Format("20060102")
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok := m.locks[key]; ok {
		return l
	}
	l := &sync.Mutex{}
	m.locks[key] = l
	return l
}

// CreateBatch groups unpaid invoices for a bank into a new DRAFT batch.
// With no explicit invoice IDs it takes everything currently eligible.
func (m *Manager) CreateBatch(ctx context.Context, bankCode string, processingDate time.Time, invoiceIDs ...uuid.UUID) (*payment.PaymentBatch, error) {
	cfg, err := m.store.GetBankConfig(ctx, bankCode)
	if errors.Is(err, store.ErrNotFound) {
		return nil, payment.Validationf("unknown bank %s", bankCode)
	}
	if err != nil {
		return nil, fmt.Errorf("load bank config: %w", err)
	}
	if !cfg.IsActive {
		return nil, payment.Validationf("bank %s is not active", bankCode)
	}

	processingDate = processingDate.UTC().Truncate(24 * time.Hour)
	now := m.now().UTC()
	if processingDate.Before(now.Truncate(24 * time.Hour)) {
		return nil, payment.Validationf("processing date %s is in the past", processingDate.Format("2006-01-02"))
	}
	if cfg.CutoffPassed(processingDate, now) {
		return nil, payment.Validationf("cutoff %s passed for bank %s on %s",
			cfg.CutoffTime, bankCode, processingDate.Format("2006-01-02"))
	}

	invoices, err := m.selectInvoices(ctx, bankCode, invoiceIDs)
	if err != nil {
		return nil, err
	}
	if len(invoices) == 0 {
		return nil, payment.Validationf("no eligible invoices for bank %s", bankCode)
	}

	lock := m.lockFor(bankCode, processingDate)
	lock.Lock()
	defer lock.Unlock()

	var batch *payment.PaymentBatch
	for attempt := 0; attempt < createAttempts; attempt++ {
		seq, err := m.store.CountBatches(ctx, bankCode, processingDate)
		if err != nil {
			return nil, fmt.Errorf("count batches: %w", err)
		}
		batch = m.buildBatch(cfg.BankCode, processingDate, seq+1+attempt, invoices, now)

		err = m.store.CreateBatch(ctx, batch, buildTransactions(batch, invoices, now))
		if errors.Is(err, store.ErrDuplicate) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("create batch: %w", err)
		}

		m.logger.Info("batch created",
			"batch_number", batch.BatchNumber,
			"bank_code", bankCode,
			"transactions", batch.TotalTransactions,
			"total_amount", batch.TotalAmount)
		if m.audit != nil {
			m.audit.Record(audit.Event{
				Kind:     audit.KindBatchCreated,
				BankCode: bankCode,
				Ref:      batch.BatchNumber,
				Detail:   fmt.Sprintf("%d transactions, %d total", batch.TotalTransactions, batch.TotalAmount),
			})
		}
		return batch, nil
	}
	return nil, fmt.Errorf("create batch: sequence contention for %s on %s",
		bankCode, processingDate.Format("2006-01-02"))
}

func (m *Manager) selectInvoices(ctx context.Context, bankCode string, ids []uuid.UUID) ([]payment.Invoice, error) {
	if len(ids) == 0 {
		invoices, err := m.store.ListEligibleInvoices(ctx, bankCode)
		if err != nil {
			return nil, fmt.Errorf("list eligible invoices: %w", err)
		}
		return invoices, nil
	}

	invoices := make([]payment.Invoice, 0, len(ids))
	for _, id := range ids {
		inv, err := m.store.GetInvoice(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return nil, payment.Validationf("invoice %s not found", id)
		}
		if err != nil {
			return nil, fmt.Errorf("load invoice %s: %w", id, err)
		}
		if inv.BankCode != bankCode {
			return nil, payment.Validationf("invoice %s belongs to bank %s", inv.InvoiceNumber, inv.BankCode)
		}
		if inv.Status != payment.InvoiceStatusIssued || inv.UnpaidBalance() <= 0 {
			return nil, payment.Validationf("invoice %s is not collectible", inv.InvoiceNumber)
		}
		invoices = append(invoices, *inv)
	}
	return invoices, nil
}

func (m *Manager) buildBatch(bankCode string, date time.Time, seq int, invoices []payment.Invoice, now time.Time) *payment.PaymentBatch {
	var total int64
	for i := range invoices {
		total += invoices[i].UnpaidBalance()
	}
	return &payment.PaymentBatch{
		ID:                uuid.New(),
		BatchNumber:       fmt.Sprintf("%s-%s-%03d", bankCode, date.Format("20060102"), seq),
		BankCode:          bankCode,
		ProcessingDate:    date,
		TotalTransactions: len(invoices),
		TotalAmount:       total,
		Status:            payment.BatchDraft,
		CreatedAt:         now,
	}
}

func buildTransactions(batch *payment.PaymentBatch, invoices []payment.Invoice, now time.Time) []payment.PaymentTransaction {
	prefix := strings.ReplaceAll(batch.BatchNumber, "-", "")
	txns := make([]payment.PaymentTransaction, len(invoices))
	for i := range invoices {
		inv := &invoices[i]
		txns[i] = payment.PaymentTransaction{
			ID:            uuid.New(),
			BatchID:       batch.ID,
			TransactionID: fmt.Sprintf("%s%04d", prefix, i+1),
			CustomerID:    inv.CustomerID,
			InvoiceID:     inv.ID,
			AccountNumber: inv.AccountNumber,
			AccountHolder: inv.AccountHolder,
			Amount:        inv.UnpaidBalance(),
			Status:        payment.TxnPending,
			ScheduledDate: batch.ProcessingDate,
			CreatedAt:     now,
		}
	}
	return txns
}

// CancelBatch withdraws a batch that has not been uploaded yet.
func (m *Manager) CancelBatch(ctx context.Context, batchID uuid.UUID) error {
	batch, err := m.store.GetBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("load batch: %w", err)
	}
	if err := payment.TransitionBatch(batch, payment.BatchCancelled); err != nil {
		return err
	}
	if err := m.store.UpdateBatch(ctx, batch); err != nil {
		return fmt.Errorf("update batch: %w", err)
	}

	m.logger.Info("batch cancelled", "batch_number", batch.BatchNumber, "bank_code", batch.BankCode)
	if m.audit != nil {
		m.audit.Record(audit.Event{
			Kind:     audit.KindBatchCancelled,
			BankCode: batch.BankCode,
			Ref:      batch.BatchNumber,
		})
	}
	return nil
}

// MarkRefunded reverses a settled transaction and reopens the unpaid
// balance on its invoice.
func (m *Manager) MarkRefunded(ctx context.Context, transactionID string) error {
	var bankCode string
	err := m.store.Atomic(ctx, func(st store.Store) error {
		txn, err := st.GetTransactionByTransactionID(ctx, transactionID)
		if err != nil {
			return fmt.Errorf("load transaction: %w", err)
		}
		if err := payment.TransitionTransaction(txn, payment.TxnRefunded); err != nil {
			return err
		}
		if err := st.UpdateTransaction(ctx, txn); err != nil {
			return fmt.Errorf("update transaction: %w", err)
		}

		inv, err := st.GetInvoice(ctx, txn.InvoiceID)
		if err != nil {
			return fmt.Errorf("load invoice: %w", err)
		}
		inv.PaidAmount -= txn.Amount
		if inv.PaidAmount < 0 {
			inv.PaidAmount = 0
		}
		payment.RecomputePaymentStatus(inv)
		if err := st.UpdateInvoice(ctx, inv); err != nil {
			return fmt.Errorf("update invoice: %w", err)
		}
		bankCode = inv.BankCode
		return nil
	})
	if err != nil {
		return err
	}

	m.logger.Info("transaction refunded", "transaction_id", transactionID)
	if m.audit != nil {
		m.audit.Record(audit.Event{
			Kind:     audit.KindTxnRefunded,
			BankCode: bankCode,
			Ref:      transactionID,
		})
	}
	return nil
}
