package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/bank-settlement/internal/bank"
	"github.com/example/bank-settlement/internal/payment"
)

// Postgres is the pgx implementation of Store used in production.
type Postgres struct {
	pool *pgxpool.Pool
	q    pgQuerier
	opts options
}

type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPostgres wraps an existing pool. Migrate must have been applied.
func NewPostgres(pool *pgxpool.Pool, opts ...Option) *Postgres {
	s := &Postgres{pool: pool, q: pool}
	for _, opt := range opts {
		opt(&s.opts)
	}
	return s
}

// OpenPostgres connects, pings, and applies the schema.
func OpenPostgres(ctx context.Context, databaseURL string, opts ...Option) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, PostgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return NewPostgres(pool, opts...), nil
}

// Close releases the pool.
func (s *Postgres) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Atomic runs fn inside a transaction, reusing the transaction when the
// store is already scoped to one.
func (s *Postgres) Atomic(ctx context.Context, fn func(Store) error) error {
	if _, ok := s.q.(pgx.Tx); ok {
		return fn(s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if err := fn(&Postgres{pool: s.pool, q: tx, opts: s.opts}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func mapPgErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

// --- bank configs ---

func (s *Postgres) SaveBankConfig(ctx context.Context, cfg *bank.Config) error {
	if cfg.ID == uuid.Nil {
		cfg.ID = uuid.New()
	}
	now := time.Now().UTC()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	payLayout, err := json.Marshal(cfg.PaymentLayout)
	if err != nil {
		return err
	}
	reconLayout, err := json.Marshal(cfg.ReconLayout)
	if err != nil {
		return err
	}
	codes, err := json.Marshal(cfg.ResponseCodes)
	if err != nil {
		return err
	}
	password, privateKey, err := sealSecrets(s.opts.sealer, cfg)
	if err != nil {
		return err
	}

	_, err = s.q.Exec(ctx, `
		INSERT INTO bank_configs (
			id, bank_code, host, port, username, password, private_key, host_key,
			upload_path, download_path, archive_path,
			file_format, encoding, delimiter, payment_pattern, recon_pattern,
			payment_layout, recon_layout, response_codes,
			retry_attempts, retry_delay_minutes, failure_threshold, cooldown_seconds,
			cutoff_time, is_active, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26,$27)
		ON CONFLICT (bank_code) DO UPDATE SET
			host=EXCLUDED.host, port=EXCLUDED.port, username=EXCLUDED.username,
			password=EXCLUDED.password, private_key=EXCLUDED.private_key, host_key=EXCLUDED.host_key,
			upload_path=EXCLUDED.upload_path, download_path=EXCLUDED.download_path,
			archive_path=EXCLUDED.archive_path, file_format=EXCLUDED.file_format,
			encoding=EXCLUDED.encoding, delimiter=EXCLUDED.delimiter,
			payment_pattern=EXCLUDED.payment_pattern, recon_pattern=EXCLUDED.recon_pattern,
			payment_layout=EXCLUDED.payment_layout, recon_layout=EXCLUDED.recon_layout,
			response_codes=EXCLUDED.response_codes, retry_attempts=EXCLUDED.retry_attempts,
			retry_delay_minutes=EXCLUDED.retry_delay_minutes, failure_threshold=EXCLUDED.failure_threshold,
			cooldown_seconds=EXCLUDED.cooldown_seconds, cutoff_time=EXCLUDED.cutoff_time,
			is_active=EXCLUDED.is_active, updated_at=EXCLUDED.updated_at`,
		cfg.ID.String(), cfg.BankCode, cfg.Host, cfg.Port, cfg.Username, password,
		privateKey, cfg.HostKey, cfg.UploadPath, cfg.DownloadPath, cfg.ArchivePath,
		string(cfg.FileFormat), cfg.Encoding, cfg.Delimiter, cfg.PaymentPattern, cfg.ReconPattern,
		payLayout, reconLayout, codes,
		cfg.RetryAttempts, cfg.RetryDelayMinutes, cfg.FailureThreshold, cfg.CooldownSeconds,
		cfg.CutoffTime, cfg.IsActive, cfg.CreatedAt, cfg.UpdatedAt)
	return mapPgErr(err)
}

const pgBankConfigColumns = `id::text, bank_code, host, port, username, password, private_key, host_key,
	upload_path, download_path, archive_path,
	file_format, encoding, delimiter, payment_pattern, recon_pattern,
	payment_layout, recon_layout, response_codes,
	retry_attempts, retry_delay_minutes, failure_threshold, cooldown_seconds,
	cutoff_time, is_active, created_at, updated_at`

func scanPgBankConfig(row rowScanner) (*bank.Config, error) {
	var (
		cfg                           bank.Config
		id, format                    string
		payLayout, reconLayout, codes []byte
	)
	err := row.Scan(&id, &cfg.BankCode, &cfg.Host, &cfg.Port, &cfg.Username, &cfg.Password,
		&cfg.PrivateKey, &cfg.HostKey, &cfg.UploadPath, &cfg.DownloadPath, &cfg.ArchivePath,
		&format, &cfg.Encoding, &cfg.Delimiter, &cfg.PaymentPattern, &cfg.ReconPattern,
		&payLayout, &reconLayout, &codes,
		&cfg.RetryAttempts, &cfg.RetryDelayMinutes, &cfg.FailureThreshold, &cfg.CooldownSeconds,
		&cfg.CutoffTime, &cfg.IsActive, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if cfg.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	cfg.FileFormat = bank.FileFormat(format)
	if err := json.Unmarshal(payLayout, &cfg.PaymentLayout); err != nil {
		return nil, fmt.Errorf("payment layout for %s: %w", cfg.BankCode, err)
	}
	if err := json.Unmarshal(reconLayout, &cfg.ReconLayout); err != nil {
		return nil, fmt.Errorf("recon layout for %s: %w", cfg.BankCode, err)
	}
	if err := json.Unmarshal(codes, &cfg.ResponseCodes); err != nil {
		return nil, fmt.Errorf("response codes for %s: %w", cfg.BankCode, err)
	}
	return &cfg, nil
}

func (s *Postgres) GetBankConfig(ctx context.Context, bankCode string) (*bank.Config, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+pgBankConfigColumns+` FROM bank_configs WHERE bank_code = $1`, bankCode)
	cfg, err := scanPgBankConfig(row)
	if err != nil {
		return nil, mapPgErr(err)
	}
	if err := openSecrets(s.opts.sealer, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *Postgres) ListActiveBankConfigs(ctx context.Context) ([]bank.Config, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+pgBankConfigColumns+` FROM bank_configs WHERE is_active ORDER BY bank_code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []bank.Config
	for rows.Next() {
		cfg, err := scanPgBankConfig(rows)
		if err != nil {
			return nil, err
		}
		if err := openSecrets(s.opts.sealer, cfg); err != nil {
			return nil, err
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

// --- batches ---

func (s *Postgres) CreateBatch(ctx context.Context, batch *payment.PaymentBatch, txns []payment.PaymentTransaction) error {
	return s.Atomic(ctx, func(st Store) error {
		tx := st.(*Postgres)
		_, err := tx.q.Exec(ctx, `
			INSERT INTO payment_batches (
				id, batch_number, bank_code, processing_date, file_name,
				total_transactions, total_amount, status,
				generated_at, uploaded_at, reconciled_at,
				error_message, retry_count, next_retry_at, created_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
			batch.ID.String(), batch.BatchNumber, batch.BankCode, batch.ProcessingDate, batch.FileName,
			batch.TotalTransactions, batch.TotalAmount, string(batch.Status),
			batch.GeneratedAt, batch.UploadedAt, batch.ReconciledAt,
			batch.ErrorMessage, batch.RetryCount, batch.NextRetryAt, batch.CreatedAt)
		if err != nil {
			return mapPgErr(err)
		}
		for i := range txns {
			if err := tx.insertTransaction(ctx, &txns[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Postgres) insertTransaction(ctx context.Context, txn *payment.PaymentTransaction) error {
	_, err := s.q.Exec(ctx, `
		INSERT INTO payment_transactions (
			id, batch_id, transaction_id, customer_id, invoice_id,
			account_number, account_holder, amount, status,
			bank_reference, bank_response_code, bank_response_message,
			scheduled_date, processed_date, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		txn.ID.String(), txn.BatchID.String(), txn.TransactionID,
		txn.CustomerID.String(), txn.InvoiceID.String(),
		txn.AccountNumber, txn.AccountHolder, txn.Amount, string(txn.Status),
		txn.BankReference, txn.BankResponseCode, txn.BankResponseMessage,
		txn.ScheduledDate, txn.ProcessedDate, txn.CreatedAt)
	return mapPgErr(err)
}

const pgBatchColumns = `id::text, batch_number, bank_code, processing_date, file_name,
	total_transactions, total_amount, status, generated_at, uploaded_at, reconciled_at,
	error_message, retry_count, next_retry_at, created_at`

func scanPgBatch(row rowScanner) (*payment.PaymentBatch, error) {
	var (
		b          payment.PaymentBatch
		id, status string
	)
	err := row.Scan(&id, &b.BatchNumber, &b.BankCode, &b.ProcessingDate, &b.FileName,
		&b.TotalTransactions, &b.TotalAmount, &status,
		&b.GeneratedAt, &b.UploadedAt, &b.ReconciledAt,
		&b.ErrorMessage, &b.RetryCount, &b.NextRetryAt, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	if b.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	b.Status = payment.BatchStatus(status)
	return &b, nil
}

func (s *Postgres) GetBatch(ctx context.Context, id uuid.UUID) (*payment.PaymentBatch, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+pgBatchColumns+` FROM payment_batches WHERE id = $1`, id.String())
	b, err := scanPgBatch(row)
	if err != nil {
		return nil, mapPgErr(err)
	}
	return b, nil
}

func (s *Postgres) UpdateBatch(ctx context.Context, batch *payment.PaymentBatch) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE payment_batches SET
			file_name = $1, total_transactions = $2, total_amount = $3, status = $4,
			generated_at = $5, uploaded_at = $6, reconciled_at = $7,
			error_message = $8, retry_count = $9, next_retry_at = $10
		WHERE id = $11`,
		batch.FileName, batch.TotalTransactions, batch.TotalAmount, string(batch.Status),
		batch.GeneratedAt, batch.UploadedAt, batch.ReconciledAt,
		batch.ErrorMessage, batch.RetryCount, batch.NextRetryAt, batch.ID.String())
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) CountBatches(ctx context.Context, bankCode string, processingDate time.Time) (int, error) {
	start, end := dayRange(processingDate)
	var n int
	err := s.q.QueryRow(ctx, `
		SELECT COUNT(*) FROM payment_batches
		WHERE bank_code = $1 AND processing_date >= $2 AND processing_date < $3`,
		bankCode, start, end).Scan(&n)
	return n, err
}

func (s *Postgres) ListDueRetries(ctx context.Context, now time.Time) ([]payment.PaymentBatch, error) {
	rows, err := s.q.Query(ctx, `
		SELECT `+pgBatchColumns+` FROM payment_batches
		WHERE next_retry_at IS NOT NULL AND next_retry_at <= $1 AND status = $2
		ORDER BY next_retry_at`,
		now, string(payment.BatchGenerated))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []payment.PaymentBatch
	for rows.Next() {
		b, err := scanPgBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

const pgTxnColumns = `id::text, batch_id::text, transaction_id, customer_id::text, invoice_id::text,
	account_number, account_holder, amount, status,
	bank_reference, bank_response_code, bank_response_message,
	scheduled_date, processed_date, created_at`

func scanPgTransaction(row rowScanner) (*payment.PaymentTransaction, error) {
	var (
		t                          payment.PaymentTransaction
		id, batchID, custID, invID string
		status                     string
	)
	err := row.Scan(&id, &batchID, &t.TransactionID, &custID, &invID,
		&t.AccountNumber, &t.AccountHolder, &t.Amount, &status,
		&t.BankReference, &t.BankResponseCode, &t.BankResponseMessage,
		&t.ScheduledDate, &t.ProcessedDate, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if t.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if t.BatchID, err = uuid.Parse(batchID); err != nil {
		return nil, err
	}
	if t.CustomerID, err = uuid.Parse(custID); err != nil {
		return nil, err
	}
	if t.InvoiceID, err = uuid.Parse(invID); err != nil {
		return nil, err
	}
	t.Status = payment.TransactionStatus(status)
	return &t, nil
}

func (s *Postgres) ListBatchTransactions(ctx context.Context, batchID uuid.UUID) ([]payment.PaymentTransaction, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+pgTxnColumns+` FROM payment_transactions WHERE batch_id = $1 ORDER BY transaction_id`,
		batchID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []payment.PaymentTransaction
	for rows.Next() {
		t, err := scanPgTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}

func (s *Postgres) GetTransactionByTransactionID(ctx context.Context, transactionID string) (*payment.PaymentTransaction, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+pgTxnColumns+` FROM payment_transactions WHERE transaction_id = $1`, transactionID)
	t, err := scanPgTransaction(row)
	if err != nil {
		return nil, mapPgErr(err)
	}
	return t, nil
}

func (s *Postgres) UpdateTransaction(ctx context.Context, txn *payment.PaymentTransaction) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE payment_transactions SET
			status = $1, bank_reference = $2, bank_response_code = $3,
			bank_response_message = $4, processed_date = $5
		WHERE id = $6`,
		string(txn.Status), txn.BankReference, txn.BankResponseCode,
		txn.BankResponseMessage, txn.ProcessedDate, txn.ID.String())
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- invoices ---

func (s *Postgres) SaveInvoice(ctx context.Context, inv *payment.Invoice) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO invoices (
			id, invoice_number, customer_id, bank_code, account_number, account_holder,
			total_amount, paid_amount, status, payment_status, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		inv.ID.String(), inv.InvoiceNumber, inv.CustomerID.String(), inv.BankCode,
		inv.AccountNumber, inv.AccountHolder, inv.TotalAmount, inv.PaidAmount,
		inv.Status, string(inv.PaymentStatus), inv.CreatedAt)
	return mapPgErr(err)
}

const pgInvoiceColumns = `id::text, invoice_number, customer_id::text, bank_code, account_number, account_holder,
	total_amount, paid_amount, status, payment_status, created_at`

func scanPgInvoice(row rowScanner) (*payment.Invoice, error) {
	var (
		inv        payment.Invoice
		id, custID string
		payStatus  string
	)
	err := row.Scan(&id, &inv.InvoiceNumber, &custID, &inv.BankCode,
		&inv.AccountNumber, &inv.AccountHolder,
		&inv.TotalAmount, &inv.PaidAmount, &inv.Status, &payStatus, &inv.CreatedAt)
	if err != nil {
		return nil, err
	}
	if inv.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if inv.CustomerID, err = uuid.Parse(custID); err != nil {
		return nil, err
	}
	inv.PaymentStatus = payment.PaymentStatus(payStatus)
	return &inv, nil
}

func (s *Postgres) GetInvoice(ctx context.Context, id uuid.UUID) (*payment.Invoice, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+pgInvoiceColumns+` FROM invoices WHERE id = $1`, id.String())
	inv, err := scanPgInvoice(row)
	if err != nil {
		return nil, mapPgErr(err)
	}
	return inv, nil
}

func (s *Postgres) ListEligibleInvoices(ctx context.Context, bankCode string) ([]payment.Invoice, error) {
	// Invoices already riding in a live batch are not offered again.
	rows, err := s.q.Query(ctx, `
		SELECT `+pgInvoiceColumns+` FROM invoices
		WHERE bank_code = $1 AND status = $2 AND payment_status = ANY($3)
		AND id NOT IN (
			SELECT t.invoice_id FROM payment_transactions t
			JOIN payment_batches b ON b.id = t.batch_id
			WHERE t.status = $4 AND b.status != $5
		)
		ORDER BY invoice_number`,
		bankCode, payment.InvoiceStatusIssued,
		[]string{string(payment.PaymentPending), string(payment.PaymentPartial)},
		string(payment.TxnPending), string(payment.BatchCancelled))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []payment.Invoice
	for rows.Next() {
		inv, err := scanPgInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

func (s *Postgres) UpdateInvoice(ctx context.Context, inv *payment.Invoice) error {
	tag, err := s.q.Exec(ctx, `
		UPDATE invoices SET paid_amount = $1, status = $2, payment_status = $3 WHERE id = $4`,
		inv.PaidAmount, inv.Status, string(inv.PaymentStatus), inv.ID.String())
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- reconciliation logs ---

func (s *Postgres) CreateReconLog(ctx context.Context, log *payment.ReconciliationLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now().UTC()
	}
	var batchID any
	if log.BatchID != nil {
		batchID = log.BatchID.String()
	}
	_, err := s.q.Exec(ctx, `
		INSERT INTO reconciliation_logs (
			id, batch_id, bank_code, file_name,
			total_records, matched_records, unmatched_records, failed_records,
			status, processed_at, error_details, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		log.ID.String(), batchID, log.BankCode, log.FileName,
		log.TotalRecords, log.MatchedRecords, log.UnmatchedRecords, log.FailedRecords,
		string(log.Status), log.ProcessedAt, log.ErrorDetails, log.CreatedAt)
	return mapPgErr(err)
}

const pgReconColumns = `id::text, batch_id::text, bank_code, file_name,
	total_records, matched_records, unmatched_records, failed_records,
	status, processed_at, error_details, created_at`

func scanPgReconLog(row rowScanner) (*payment.ReconciliationLog, error) {
	var (
		l       payment.ReconciliationLog
		id      string
		batchID *string
		status  string
	)
	err := row.Scan(&id, &batchID, &l.BankCode, &l.FileName,
		&l.TotalRecords, &l.MatchedRecords, &l.UnmatchedRecords, &l.FailedRecords,
		&status, &l.ProcessedAt, &l.ErrorDetails, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	if l.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if batchID != nil {
		parsed, err := uuid.Parse(*batchID)
		if err != nil {
			return nil, err
		}
		l.BatchID = &parsed
	}
	l.Status = payment.ReconLogStatus(status)
	return &l, nil
}

func (s *Postgres) GetReconLog(ctx context.Context, id uuid.UUID) (*payment.ReconciliationLog, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+pgReconColumns+` FROM reconciliation_logs WHERE id = $1`, id.String())
	l, err := scanPgReconLog(row)
	if err != nil {
		return nil, mapPgErr(err)
	}
	return l, nil
}

func (s *Postgres) GetReconLogByFileName(ctx context.Context, bankCode, fileName string) (*payment.ReconciliationLog, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+pgReconColumns+` FROM reconciliation_logs WHERE bank_code = $1 AND file_name = $2`,
		bankCode, fileName)
	l, err := scanPgReconLog(row)
	if err != nil {
		return nil, mapPgErr(err)
	}
	return l, nil
}

func (s *Postgres) ListReconFileNames(ctx context.Context, bankCode string) ([]string, error) {
	rows, err := s.q.Query(ctx,
		`SELECT file_name FROM reconciliation_logs WHERE bank_code = $1`, bankCode)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *Postgres) UpdateReconLog(ctx context.Context, log *payment.ReconciliationLog) error {
	var batchID any
	if log.BatchID != nil {
		batchID = log.BatchID.String()
	}
	tag, err := s.q.Exec(ctx, `
		UPDATE reconciliation_logs SET
			batch_id = $1, total_records = $2, matched_records = $3,
			unmatched_records = $4, failed_records = $5, status = $6,
			processed_at = $7, error_details = $8
		WHERE id = $9`,
		batchID, log.TotalRecords, log.MatchedRecords,
		log.UnmatchedRecords, log.FailedRecords, string(log.Status),
		log.ProcessedAt, log.ErrorDetails, log.ID.String())
	if err != nil {
		return mapPgErr(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- reporting ---

func (s *Postgres) StatusReport(ctx context.Context, bankCode string, from, to time.Time) (*StatusReport, error) {
	report := &StatusReport{
		BankCode:           bankCode,
		From:               from,
		To:                 to,
		BatchCounts:        make(map[payment.BatchStatus]int),
		TransactionCounts:  make(map[payment.TransactionStatus]int),
		TransactionAmounts: make(map[payment.TransactionStatus]int64),
	}

	rows, err := s.q.Query(ctx, `
		SELECT status, COUNT(*) FROM payment_batches
		WHERE bank_code = $1 AND processing_date >= $2 AND processing_date <= $3
		GROUP BY status`,
		bankCode, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		report.BatchCounts[payment.BatchStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	txRows, err := s.q.Query(ctx, `
		SELECT t.status, COUNT(*), COALESCE(SUM(t.amount), 0)
		FROM payment_transactions t
		JOIN payment_batches b ON b.id = t.batch_id
		WHERE b.bank_code = $1 AND b.processing_date >= $2 AND b.processing_date <= $3
		GROUP BY t.status`,
		bankCode, from, to)
	if err != nil {
		return nil, err
	}
	defer txRows.Close()
	for txRows.Next() {
		var status string
		var n int
		var sum int64
		if err := txRows.Scan(&status, &n, &sum); err != nil {
			return nil, err
		}
		report.TransactionCounts[payment.TransactionStatus(status)] = n
		report.TransactionAmounts[payment.TransactionStatus(status)] = sum
		report.TotalAmount += sum
	}
	return report, txRows.Err()
}
