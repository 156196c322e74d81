// Package recon ingests bank reconciliation files and settles the
// transactions and invoices they report on.
package recon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/example/bank-settlement/internal/bank"
	"github.com/example/bank-settlement/internal/codec"
	"github.com/example/bank-settlement/internal/payment"
	"github.com/example/bank-settlement/internal/store"
	"github.com/example/bank-settlement/pkg/audit"
)

// Fetcher is the transport surface the engine needs.
type Fetcher interface {
	Download(ctx context.Context, cfg *bank.Config, remotePath string) ([]byte, error)
	ListDir(ctx context.Context, cfg *bank.Config, dir string) ([]string, error)
	Rename(ctx context.Context, cfg *bank.Config, oldPath, newPath string) error
}

type Engine struct {
	store     store.Store
	transport Fetcher
	audit     audit.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Engine)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(st store.Store, tr Fetcher, rec audit.Recorder, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:     st,
		transport: tr,
		audit:     rec,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// CheckFiles lists the bank's download directory and returns the
// reconciliation files that have not been processed yet.
func (e *Engine) CheckFiles(ctx context.Context, bankCode string) ([]string, error) {
	cfg, err := e.store.GetBankConfig(ctx, bankCode)
	if err != nil {
		return nil, fmt.Errorf("load bank config: %w", err)
	}
	matcher, err := bank.CompilePattern(cfg.ReconPattern)
	if err != nil {
		return nil, fmt.Errorf("recon pattern for bank %s: %w", bankCode, err)
	}

	names, err := e.transport.ListDir(ctx, cfg, cfg.DownloadPath)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", cfg.DownloadPath, err)
	}
	seen, err := e.store.ListReconFileNames(ctx, bankCode)
	if err != nil {
		return nil, fmt.Errorf("list processed files: %w", err)
	}
	known := make(map[string]struct{}, len(seen))
	for _, n := range seen {
		known[n] = struct{}{}
	}

	var fresh []string
	for _, name := range names {
		if !matcher.MatchString(name) {
			continue
		}
		if _, ok := known[name]; ok {
			continue
		}
		fresh = append(fresh, name)
	}
	return fresh, nil
}

// ProcessFile downloads one reconciliation file, applies its outcomes
// to the matching transactions and invoices in a single transaction,
// and archives the file. A file whose log is already MATCHED or
// RESOLVED is skipped. A file that cannot be parsed is parked for
// manual review without touching any payment state.
func (e *Engine) ProcessFile(ctx context.Context, bankCode, fileName string) (*payment.ReconciliationLog, error) {
	cfg, err := e.store.GetBankConfig(ctx, bankCode)
	if err != nil {
		return nil, fmt.Errorf("load bank config: %w", err)
	}

	existing, err := e.store.GetReconLogByFileName(ctx, bankCode, fileName)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load recon log: %w", err)
	}
	if existing != nil {
		if existing.Status == payment.ReconMatched || existing.Status == payment.ReconResolved {
			return existing, nil
		}
		// UNMATCHED or MANUAL_REVIEW: the bank re-sent the file.
		if err := payment.TransitionReconLog(existing, payment.ReconPending); err != nil {
			return nil, err
		}
	}

	data, err := e.transport.Download(ctx, cfg, path.Join(cfg.DownloadPath, fileName))
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", fileName, err)
	}

	c, err := codec.ForConfig(cfg)
	if err != nil {
		return nil, err
	}
	records, err := c.Decode(data, cfg)
	if err != nil {
		var perr *codec.ParseError
		if errors.As(err, &perr) {
			log, logErr := e.parkForReview(ctx, existing, bankCode, fileName, perr)
			if logErr != nil {
				return nil, logErr
			}
			return log, err
		}
		return nil, fmt.Errorf("decode %s: %w", fileName, err)
	}

	log := existing
	if log == nil {
		log = &payment.ReconciliationLog{
			BankCode: bankCode,
			FileName: fileName,
			Status:   payment.ReconPending,
		}
	}

	err = e.store.Atomic(ctx, func(st store.Store) error {
		if existing == nil {
			if err := st.CreateReconLog(ctx, log); err != nil {
				return fmt.Errorf("create recon log: %w", err)
			}
		}
		return e.apply(ctx, st, cfg, log, records)
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("reconciliation file processed",
		"bank_code", bankCode,
		"file_name", fileName,
		"total", log.TotalRecords,
		"matched", log.MatchedRecords,
		"unmatched", log.UnmatchedRecords,
		"failed", log.FailedRecords)
	if e.audit != nil {
		e.audit.Record(audit.Event{
			Kind:     audit.KindReconProcessed,
			BankCode: bankCode,
			Ref:      fileName,
			Detail:   fmt.Sprintf("%d/%d matched", log.MatchedRecords, log.TotalRecords),
		})
	}

	e.archive(ctx, cfg, fileName)
	return log, nil
}

// apply settles every record in the file against the stored
// transactions. Records already settled with the same outcome are
// counted without being applied twice, so re-running a file after a
// partial day is safe.
func (e *Engine) apply(ctx context.Context, st store.Store, cfg *bank.Config, log *payment.ReconciliationLog, records []codec.DetailRecord) error {
	now := e.now().UTC()
	batchIDs := make(map[uuid.UUID]struct{})

	log.TotalRecords = len(records)
	log.MatchedRecords = 0
	log.UnmatchedRecords = 0
	log.FailedRecords = 0

	for i := range records {
		rec := &records[i]
		txn, err := st.GetTransactionByTransactionID(ctx, rec.TransactionID)
		if errors.Is(err, store.ErrNotFound) {
			log.UnmatchedRecords++
			continue
		}
		if err != nil {
			return fmt.Errorf("load transaction %s: %w", rec.TransactionID, err)
		}

		outcome := cfg.ResponseCodes.Outcome(rec.ResponseCode)
		if txn.Status == outcome {
			if outcome == payment.TxnSuccess {
				log.MatchedRecords++
			} else {
				log.FailedRecords++
			}
			continue
		}
		if err := payment.TransitionTransaction(txn, outcome); err != nil {
			log.UnmatchedRecords++
			continue
		}

		txn.BankReference = rec.BankReference
		txn.BankResponseCode = rec.ResponseCode
		txn.BankResponseMessage = rec.ResponseMessage
		if ts, err := time.ParseInLocation("20060102", rec.ProcessedDate, time.UTC); err == nil {
			txn.ProcessedDate = &ts
		} else {
			txn.ProcessedDate = &now
		}
		if err := st.UpdateTransaction(ctx, txn); err != nil {
			return fmt.Errorf("update transaction %s: %w", txn.TransactionID, err)
		}
		batchIDs[txn.BatchID] = struct{}{}

		if outcome == payment.TxnSuccess {
			if err := e.settleInvoice(ctx, st, txn); err != nil {
				return err
			}
			log.MatchedRecords++
		} else {
			log.FailedRecords++
		}
	}

	status := payment.ReconMatched
	if log.UnmatchedRecords > 0 {
		status = payment.ReconUnmatched
	}
	if err := payment.TransitionReconLog(log, status); err != nil {
		return err
	}
	log.ProcessedAt = &now
	if len(batchIDs) == 1 && log.BatchID == nil {
		for id := range batchIDs {
			bid := id
			log.BatchID = &bid
		}
	}
	if err := st.UpdateReconLog(ctx, log); err != nil {
		return fmt.Errorf("update recon log: %w", err)
	}

	for id := range batchIDs {
		if err := e.settleBatch(ctx, st, id, now); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) settleInvoice(ctx context.Context, st store.Store, txn *payment.PaymentTransaction) error {
	inv, err := st.GetInvoice(ctx, txn.InvoiceID)
	if err != nil {
		return fmt.Errorf("load invoice for %s: %w", txn.TransactionID, err)
	}
	inv.PaidAmount += txn.Amount
	if inv.PaidAmount > inv.TotalAmount {
		inv.PaidAmount = inv.TotalAmount
	}
	payment.RecomputePaymentStatus(inv)
	if err := st.UpdateInvoice(ctx, inv); err != nil {
		return fmt.Errorf("update invoice %s: %w", inv.InvoiceNumber, err)
	}
	return nil
}

// settleBatch moves the batch forward once every transaction in it has
// a final outcome.
func (e *Engine) settleBatch(ctx context.Context, st store.Store, batchID uuid.UUID, now time.Time) error {
	batch, err := st.GetBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("load batch: %w", err)
	}
	if batch.Status == payment.BatchUploaded {
		if err := payment.TransitionBatch(batch, payment.BatchProcessing); err != nil {
			return err
		}
	}
	if batch.Status != payment.BatchProcessing {
		return st.UpdateBatch(ctx, batch)
	}

	txns, err := st.ListBatchTransactions(ctx, batchID)
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}
	pending := 0
	for i := range txns {
		if txns[i].Status == payment.TxnPending {
			pending++
		}
	}
	if pending == 0 {
		if err := payment.TransitionBatch(batch, payment.BatchReconciled); err != nil {
			return err
		}
		batch.ReconciledAt = &now
	}
	return st.UpdateBatch(ctx, batch)
}

func (e *Engine) parkForReview(ctx context.Context, existing *payment.ReconciliationLog, bankCode, fileName string, perr *codec.ParseError) (*payment.ReconciliationLog, error) {
	now := e.now().UTC()
	log := existing
	if log == nil {
		log = &payment.ReconciliationLog{
			BankCode: bankCode,
			FileName: fileName,
			Status:   payment.ReconPending,
		}
	}
	if err := payment.TransitionReconLog(log, payment.ReconManualReview); err != nil {
		return nil, err
	}
	log.ErrorDetails = perr.Error()
	log.ProcessedAt = &now

	var err error
	if existing == nil {
		err = e.store.CreateReconLog(ctx, log)
	} else {
		err = e.store.UpdateReconLog(ctx, log)
	}
	if err != nil {
		return nil, fmt.Errorf("record manual review: %w", err)
	}

	e.logger.Warn("reconciliation file parked for manual review",
		"bank_code", bankCode, "file_name", fileName, "error", perr.Error())
	if e.audit != nil {
		e.audit.Record(audit.Event{
			Kind:     audit.KindReconReview,
			BankCode: bankCode,
			Ref:      fileName,
			Detail:   perr.Error(),
		})
	}
	return log, nil
}

// archive moves a processed file out of the pickup directory. The
// settlement already committed, so an archive failure is only logged.
func (e *Engine) archive(ctx context.Context, cfg *bank.Config, fileName string) {
	if cfg.ArchivePath == "" {
		return
	}
	oldPath := path.Join(cfg.DownloadPath, fileName)
	newPath := path.Join(cfg.ArchivePath, fileName)
	if err := e.transport.Rename(ctx, cfg, oldPath, newPath); err != nil {
		e.logger.Warn("archive failed",
			"bank_code", cfg.BankCode, "file_name", fileName, "error", err.Error())
	}
}

// Run checks a bank's pickup directory and processes everything new.
func (e *Engine) Run(ctx context.Context, bankCode string) (int, error) {
	files, err := e.CheckFiles(ctx, bankCode)
	if err != nil {
		return 0, err
	}
	processed := 0
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		if _, err := e.ProcessFile(ctx, bankCode, name); err != nil {
			e.logger.Error("process reconciliation file",
				"bank_code", bankCode, "file_name", name, "error", err.Error())
			continue
		}
		processed++
	}
	return processed, nil
}

// Resolve closes out an unmatched or manual-review log after an
// operator has handled it.
func (e *Engine) Resolve(ctx context.Context, logID uuid.UUID, note string) error {
	log, err := e.store.GetReconLog(ctx, logID)
	if err != nil {
		return fmt.Errorf("load recon log: %w", err)
	}
	if err := payment.TransitionReconLog(log, payment.ReconResolved); err != nil {
		return err
	}
	if note != "" {
		if log.ErrorDetails != "" {
			log.ErrorDetails += "; "
		}
		log.ErrorDetails += "resolved: " + note
	}
	if err := e.store.UpdateReconLog(ctx, log); err != nil {
		return fmt.Errorf("update recon log: %w", err)
	}

	e.logger.Info("reconciliation log resolved", "file_name", log.FileName)
	if e.audit != nil {
		e.audit.Record(audit.Event{
			Kind:     audit.KindReconResolved,
			BankCode: log.BankCode,
			Ref:      log.FileName,
			Detail:   note,
		})
	}
	return nil
}

// Report summarizes batch and transaction standing for a bank over a
// date range.
func (e *Engine) Report(ctx context.Context, bankCode string, from, to time.Time) (*store.StatusReport, error) {
	return e.store.StatusReport(ctx, bankCode, from, to)
}
