// Package upload turns generated batches into bank files and drives
// their delivery over SFTP, including the persisted retry schedule.
package upload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/example/bank-settlement/internal/bank"
	"github.com/example/bank-settlement/internal/breaker"
	"github.com/example/bank-settlement/internal/codec"
	"github.com/example/bank-settlement/internal/payment"
	"github.com/example/bank-settlement/internal/store"
	"github.com/example/bank-settlement/pkg/audit"
)

// Uploader is the transport surface the orchestrator needs.
type Uploader interface {
	Upload(ctx context.Context, cfg *bank.Config, remotePath string, data []byte) error
}

type Orchestrator struct {
	store     store.Store
	transport Uploader
	audit     audit.Recorder
	logger    *slog.Logger
	now       func() time.Time
}

type Option func(*Orchestrator)

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(st store.Store, tr Uploader, rec audit.Recorder, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:     st,
		transport: tr,
		audit:     rec,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// GenerateFile assigns the batch its bank file name and marks it ready
// for upload. Calling it again once the batch has reached GENERATED or
// moved further along is a no-op.
func (o *Orchestrator) GenerateFile(ctx context.Context, batchID uuid.UUID) error {
	batch, err := o.store.GetBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("load batch: %w", err)
	}
	switch batch.Status {
	case payment.BatchGenerated, payment.BatchUploaded, payment.BatchProcessing, payment.BatchReconciled:
		return nil
	}

	cfg, err := o.store.GetBankConfig(ctx, batch.BankCode)
	if err != nil {
		return fmt.Errorf("load bank config: %w", err)
	}
	txns, err := o.store.ListBatchTransactions(ctx, batchID)
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}

	// Encode up front so a layout problem surfaces here, not at upload.
	c, err := codec.ForConfig(cfg)
	if err != nil {
		return err
	}
	if _, err := c.Encode(batch, txns, cfg); err != nil {
		return fmt.Errorf("encode batch %s: %w", batch.BatchNumber, err)
	}

	batch.FileName = bank.RenderFileName(cfg.PaymentPattern, batch.ProcessingDate, batch.BatchNumber)
	now := o.now().UTC()
	batch.GeneratedAt = &now
	if err := payment.TransitionBatch(batch, payment.BatchGenerated); err != nil {
		return err
	}
	if err := o.store.UpdateBatch(ctx, batch); err != nil {
		return fmt.Errorf("update batch: %w", err)
	}

	o.logger.Info("file generated",
		"batch_number", batch.BatchNumber,
		"file_name", batch.FileName)
	if o.audit != nil {
		o.audit.Record(audit.Event{
			Kind:     audit.KindFileGenerated,
			BankCode: batch.BankCode,
			Ref:      batch.BatchNumber,
			Detail:   batch.FileName,
		})
	}
	return nil
}

// UploadFile delivers a generated batch to the bank. On transport
// failure the retry schedule is persisted; once attempts are exhausted
// the batch fails. A fast-fail from an open circuit reschedules the
// batch without spending an attempt. A batch the bank already has is a
// no-op, so a duplicate dispatch never re-sends money.
func (o *Orchestrator) UploadFile(ctx context.Context, batchID uuid.UUID) error {
	batch, err := o.store.GetBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("load batch: %w", err)
	}
	switch batch.Status {
	case payment.BatchUploaded, payment.BatchProcessing, payment.BatchReconciled:
		return nil
	case payment.BatchGenerated:
	default:
		return payment.Validationf("batch %s is %s, not ready for upload", batch.BatchNumber, batch.Status)
	}

	cfg, err := o.store.GetBankConfig(ctx, batch.BankCode)
	if err != nil {
		return fmt.Errorf("load bank config: %w", err)
	}
	txns, err := o.store.ListBatchTransactions(ctx, batchID)
	if err != nil {
		return fmt.Errorf("load transactions: %w", err)
	}
	c, err := codec.ForConfig(cfg)
	if err != nil {
		return err
	}
	data, err := c.Encode(batch, txns, cfg)
	if err != nil {
		return fmt.Errorf("encode batch %s: %w", batch.BatchNumber, err)
	}

	remotePath := path.Join(cfg.UploadPath, batch.FileName)
	if err := o.transport.Upload(ctx, cfg, remotePath, data); err != nil {
		return o.recordFailure(ctx, batch, cfg.RetryAttempts, cfg.RetryDelay(), err)
	}

	now := o.now().UTC()
	batch.UploadedAt = &now
	batch.ErrorMessage = ""
	batch.NextRetryAt = nil
	if err := payment.TransitionBatch(batch, payment.BatchUploaded); err != nil {
		return err
	}
	if err := o.store.UpdateBatch(ctx, batch); err != nil {
		return fmt.Errorf("update batch: %w", err)
	}

	o.logger.Info("file uploaded",
		"batch_number", batch.BatchNumber,
		"file_name", batch.FileName,
		"remote_path", remotePath)
	if o.audit != nil {
		o.audit.Record(audit.Event{
			Kind:     audit.KindFileUploaded,
			BankCode: batch.BankCode,
			Ref:      batch.BatchNumber,
			Detail:   remotePath,
		})
	}
	return nil
}

func (o *Orchestrator) recordFailure(ctx context.Context, batch *payment.PaymentBatch, maxAttempts int, delay time.Duration, cause error) error {
	now := o.now().UTC()
	batch.ErrorMessage = cause.Error()

	var open *breaker.CircuitOpenError
	switch {
	case errors.As(cause, &open):
		// The attempt never reached the bank, so it does not count.
		next := now.Add(open.RetryAfter)
		batch.NextRetryAt = &next
	case batch.RetryCount+1 < maxAttempts:
		batch.RetryCount++
		next := now.Add(delay)
		batch.NextRetryAt = &next
	default:
		batch.RetryCount++
		batch.NextRetryAt = nil
		if err := payment.TransitionBatch(batch, payment.BatchFailed); err != nil {
			return err
		}
	}

	if err := o.store.UpdateBatch(ctx, batch); err != nil {
		return fmt.Errorf("update batch after failed upload: %w", err)
	}

	o.logger.Error("upload failed",
		"batch_number", batch.BatchNumber,
		"retry_count", batch.RetryCount,
		"status", string(batch.Status),
		"error", cause.Error())
	if o.audit != nil {
		o.audit.Record(audit.Event{
			Kind:     audit.KindUploadFailed,
			BankCode: batch.BankCode,
			Ref:      batch.BatchNumber,
			Detail:   cause.Error(),
		})
	}
	return fmt.Errorf("upload batch %s: %w", batch.BatchNumber, cause)
}

// Dispatch is the generate-then-upload convenience used by the CLI.
func (o *Orchestrator) Dispatch(ctx context.Context, batchID uuid.UUID) error {
	if err := o.GenerateFile(ctx, batchID); err != nil {
		return err
	}
	return o.UploadFile(ctx, batchID)
}

// ProcessDueRetries re-drives every batch whose retry timer has come
// due. Individual failures are already persisted per batch, so the
// sweep keeps going and reports how many batches were retried.
func (o *Orchestrator) ProcessDueRetries(ctx context.Context) (int, error) {
	batches, err := o.store.ListDueRetries(ctx, o.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("list due retries: %w", err)
	}
	for i := range batches {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := o.UploadFile(ctx, batches[i].ID); err != nil {
			o.logger.Warn("retry attempt failed",
				"batch_number", batches[i].BatchNumber, "error", err.Error())
		}
	}
	return len(batches), nil
}

// RequeueFailed puts an exhausted batch back on the upload path after
// an operator has cleared the underlying problem.
func (o *Orchestrator) RequeueFailed(ctx context.Context, batchID uuid.UUID) error {
	batch, err := o.store.GetBatch(ctx, batchID)
	if err != nil {
		return fmt.Errorf("load batch: %w", err)
	}
	if err := payment.TransitionBatch(batch, payment.BatchGenerated); err != nil {
		return err
	}
	batch.RetryCount = 0
	batch.ErrorMessage = ""
	batch.NextRetryAt = nil
	if err := o.store.UpdateBatch(ctx, batch); err != nil {
		return fmt.Errorf("update batch: %w", err)
	}
	o.logger.Info("batch requeued", "batch_number", batch.BatchNumber)
	return nil
}
