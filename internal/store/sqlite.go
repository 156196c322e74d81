package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/example/bank-settlement/internal/bank"
	"github.com/example/bank-settlement/internal/payment"
)

// SQLite is the database/sql implementation of Store. It backs unit tests
// with in-memory databases and small single-node deployments with a file.
type SQLite struct {
	db   *sql.DB
	q    querier
	opts options
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// OpenSQLite opens (or creates) a SQLite database and applies the schema.
// Use ":memory:" for tests.
func OpenSQLite(path string, opts ...Option) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; a single connection avoids both lock
	// contention and the separate-database surprise of :memory:.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(SQLiteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	s := &SQLite{db: db, q: db}
	for _, opt := range opts {
		opt(&s.opts)
	}
	return s, nil
}

// Close releases the underlying database.
func (s *SQLite) Close() error { return s.db.Close() }

// Atomic runs fn inside a transaction. A store that is already
// transaction-scoped simply reuses its transaction.
func (s *SQLite) Atomic(ctx context.Context, fn func(Store) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(&SQLite{db: s.db, q: tx, opts: s.opts}); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func mapSQLiteErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %v", ErrDuplicate, err)
	}
	return err
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}

// --- bank configs ---

func (s *SQLite) SaveBankConfig(ctx context.Context, cfg *bank.Config) error {
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

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO bank_configs (
			id, bank_code, host, port, username, password, private_key, host_key,
			upload_path, download_path, archive_path,
			file_format, encoding, delimiter, payment_pattern, recon_pattern,
			payment_layout, recon_layout, response_codes,
			retry_attempts, retry_delay_minutes, failure_threshold, cooldown_seconds,
			cutoff_time, is_active, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(bank_code) DO UPDATE SET
			host=excluded.host, port=excluded.port, username=excluded.username,
			password=excluded.password, private_key=excluded.private_key, host_key=excluded.host_key,
			upload_path=excluded.upload_path, download_path=excluded.download_path,
			archive_path=excluded.archive_path, file_format=excluded.file_format,
			encoding=excluded.encoding, delimiter=excluded.delimiter,
			payment_pattern=excluded.payment_pattern, recon_pattern=excluded.recon_pattern,
			payment_layout=excluded.payment_layout, recon_layout=excluded.recon_layout,
			response_codes=excluded.response_codes, retry_attempts=excluded.retry_attempts,
			retry_delay_minutes=excluded.retry_delay_minutes, failure_threshold=excluded.failure_threshold,
			cooldown_seconds=excluded.cooldown_seconds, cutoff_time=excluded.cutoff_time,
			is_active=excluded.is_active, updated_at=excluded.updated_at`,
		cfg.ID.String(), cfg.BankCode, cfg.Host, cfg.Port, cfg.Username, password,
		privateKey, cfg.HostKey, cfg.UploadPath, cfg.DownloadPath, cfg.ArchivePath,
		string(cfg.FileFormat), cfg.Encoding, cfg.Delimiter, cfg.PaymentPattern, cfg.ReconPattern,
		string(payLayout), string(reconLayout), string(codes),
		cfg.RetryAttempts, cfg.RetryDelayMinutes, cfg.FailureThreshold, cfg.CooldownSeconds,
		cfg.CutoffTime, cfg.IsActive, cfg.CreatedAt, cfg.UpdatedAt)
	return mapSQLiteErr(err)
}

const bankConfigColumns = `id, bank_code, host, port, username, password, private_key, host_key,
	upload_path, download_path, archive_path,
	file_format, encoding, delimiter, payment_pattern, recon_pattern,
	payment_layout, recon_layout, response_codes,
	retry_attempts, retry_delay_minutes, failure_threshold, cooldown_seconds,
	cutoff_time, is_active, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBankConfig(row rowScanner) (*bank.Config, error) {
	var (
		cfg                           bank.Config
		id, format                    string
		payLayout, reconLayout, codes string
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
	cfg.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	cfg.FileFormat = bank.FileFormat(format)
	if err := json.Unmarshal([]byte(payLayout), &cfg.PaymentLayout); err != nil {
		return nil, fmt.Errorf("payment layout for %s: %w", cfg.BankCode, err)
	}
	if err := json.Unmarshal([]byte(reconLayout), &cfg.ReconLayout); err != nil {
		return nil, fmt.Errorf("recon layout for %s: %w", cfg.BankCode, err)
	}
	if err := json.Unmarshal([]byte(codes), &cfg.ResponseCodes); err != nil {
		return nil, fmt.Errorf("response codes for %s: %w", cfg.BankCode, err)
	}
	return &cfg, nil
}

func (s *SQLite) GetBankConfig(ctx context.Context, bankCode string) (*bank.Config, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+bankConfigColumns+` FROM bank_configs WHERE bank_code = ?`, bankCode)
	cfg, err := scanBankConfig(row)
	if err != nil {
		return nil, mapSQLiteErr(err)
	}
	if err := openSecrets(s.opts.sealer, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (s *SQLite) ListActiveBankConfigs(ctx context.Context) ([]bank.Config, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+bankConfigColumns+` FROM bank_configs WHERE is_active = 1 ORDER BY bank_code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var configs []bank.Config
	for rows.Next() {
		cfg, err := scanBankConfig(rows)
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

func (s *SQLite) CreateBatch(ctx context.Context, batch *payment.PaymentBatch, txns []payment.PaymentTransaction) error {
	return s.Atomic(ctx, func(st Store) error {
		tx := st.(*SQLite)
		_, err := tx.q.ExecContext(ctx, `
			INSERT INTO payment_batches (
				id, batch_number, bank_code, processing_date, file_name,
				total_transactions, total_amount, status,
				generated_at, uploaded_at, reconciled_at,
				error_message, retry_count, next_retry_at, created_at
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			batch.ID.String(), batch.BatchNumber, batch.BankCode, batch.ProcessingDate, batch.FileName,
			batch.TotalTransactions, batch.TotalAmount, string(batch.Status),
			nullTime(batch.GeneratedAt), nullTime(batch.UploadedAt), nullTime(batch.ReconciledAt),
			batch.ErrorMessage, batch.RetryCount, nullTime(batch.NextRetryAt), batch.CreatedAt)
		if err != nil {
			return mapSQLiteErr(err)
		}
		for i := range txns {
			if err := tx.insertTransaction(ctx, &txns[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLite) insertTransaction(ctx context.Context, txn *payment.PaymentTransaction) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO payment_transactions (
			id, batch_id, transaction_id, customer_id, invoice_id,
			account_number, account_holder, amount, status,
			bank_reference, bank_response_code, bank_response_message,
			scheduled_date, processed_date, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		txn.ID.String(), txn.BatchID.String(), txn.TransactionID,
		txn.CustomerID.String(), txn.InvoiceID.String(),
		txn.AccountNumber, txn.AccountHolder, txn.Amount, string(txn.Status),
		txn.BankReference, txn.BankResponseCode, txn.BankResponseMessage,
		txn.ScheduledDate, nullTime(txn.ProcessedDate), txn.CreatedAt)
	return mapSQLiteErr(err)
}

const batchColumns = `id, batch_number, bank_code, processing_date, file_name,
	total_transactions, total_amount, status, generated_at, uploaded_at, reconciled_at,
	error_message, retry_count, next_retry_at, created_at`

func scanBatch(row rowScanner) (*payment.PaymentBatch, error) {
	var (
		b                          payment.PaymentBatch
		id, status                 string
		genAt, upAt, recAt, nextAt sql.NullTime
	)
	err := row.Scan(&id, &b.BatchNumber, &b.BankCode, &b.ProcessingDate, &b.FileName,
		&b.TotalTransactions, &b.TotalAmount, &status, &genAt, &upAt, &recAt,
		&b.ErrorMessage, &b.RetryCount, &nextAt, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	b.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	b.Status = payment.BatchStatus(status)
	b.GeneratedAt = timePtr(genAt)
	b.UploadedAt = timePtr(upAt)
	b.ReconciledAt = timePtr(recAt)
	b.NextRetryAt = timePtr(nextAt)
	return &b, nil
}

func (s *SQLite) GetBatch(ctx context.Context, id uuid.UUID) (*payment.PaymentBatch, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+batchColumns+` FROM payment_batches WHERE id = ?`, id.String())
	b, err := scanBatch(row)
	if err != nil {
		return nil, mapSQLiteErr(err)
	}
	return b, nil
}

func (s *SQLite) UpdateBatch(ctx context.Context, batch *payment.PaymentBatch) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE payment_batches SET
			file_name = ?, total_transactions = ?, total_amount = ?, status = ?,
			generated_at = ?, uploaded_at = ?, reconciled_at = ?,
			error_message = ?, retry_count = ?, next_retry_at = ?
		WHERE id = ?`,
		batch.FileName, batch.TotalTransactions, batch.TotalAmount, string(batch.Status),
		nullTime(batch.GeneratedAt), nullTime(batch.UploadedAt), nullTime(batch.ReconciledAt),
		batch.ErrorMessage, batch.RetryCount, nullTime(batch.NextRetryAt), batch.ID.String())
	if err != nil {
		return mapSQLiteErr(err)
	}
	return requireRow(res)
}

func (s *SQLite) CountBatches(ctx context.Context, bankCode string, processingDate time.Time) (int, error) {
	start, end := dayRange(processingDate)
	var n int
	err := s.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM payment_batches
		WHERE bank_code = ? AND processing_date >= ? AND processing_date < ?`,
		bankCode, start, end).Scan(&n)
	return n, err
}

// dayRange normalizes a processing date to its UTC day window.
func dayRange(d time.Time) (time.Time, time.Time) {
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

func (s *SQLite) ListDueRetries(ctx context.Context, now time.Time) ([]payment.PaymentBatch, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+batchColumns+` FROM payment_batches
		WHERE next_retry_at IS NOT NULL AND next_retry_at <= ? AND status = ?
		ORDER BY next_retry_at`,
		now, string(payment.BatchGenerated))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBatches(rows)
}

func collectBatches(rows *sql.Rows) ([]payment.PaymentBatch, error) {
	var batches []payment.PaymentBatch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, err
		}
		batches = append(batches, *b)
	}
	return batches, rows.Err()
}

const txnColumns = `id, batch_id, transaction_id, customer_id, invoice_id,
	account_number, account_holder, amount, status,
	bank_reference, bank_response_code, bank_response_message,
	scheduled_date, processed_date, created_at`

func scanTransaction(row rowScanner) (*payment.PaymentTransaction, error) {
	var (
		t                          payment.PaymentTransaction
		id, batchID, custID, invID string
		status                     string
		procAt                     sql.NullTime
	)
	err := row.Scan(&id, &batchID, &t.TransactionID, &custID, &invID,
		&t.AccountNumber, &t.AccountHolder, &t.Amount, &status,
		&t.BankReference, &t.BankResponseCode, &t.BankResponseMessage,
		&t.ScheduledDate, &procAt, &t.CreatedAt)
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
	t.ProcessedDate = timePtr(procAt)
	return &t, nil
}

func (s *SQLite) ListBatchTransactions(ctx context.Context, batchID uuid.UUID) ([]payment.PaymentTransaction, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT `+txnColumns+` FROM payment_transactions WHERE batch_id = ? ORDER BY transaction_id`,
		batchID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txns []payment.PaymentTransaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, *t)
	}
	return txns, rows.Err()
}

func (s *SQLite) GetTransactionByTransactionID(ctx context.Context, transactionID string) (*payment.PaymentTransaction, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+txnColumns+` FROM payment_transactions WHERE transaction_id = ?`, transactionID)
	t, err := scanTransaction(row)
	if err != nil {
		return nil, mapSQLiteErr(err)
	}
	return t, nil
}

func (s *SQLite) UpdateTransaction(ctx context.Context, txn *payment.PaymentTransaction) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE payment_transactions SET
			status = ?, bank_reference = ?, bank_response_code = ?,
			bank_response_message = ?, processed_date = ?
		WHERE id = ?`,
		string(txn.Status), txn.BankReference, txn.BankResponseCode,
		txn.BankResponseMessage, nullTime(txn.ProcessedDate), txn.ID.String())
	if err != nil {
		return mapSQLiteErr(err)
	}
	return requireRow(res)
}

// --- invoices ---

func (s *SQLite) SaveInvoice(ctx context.Context, inv *payment.Invoice) error {
	if inv.ID == uuid.Nil {
		inv.ID = uuid.New()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now().UTC()
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO invoices (
			id, invoice_number, customer_id, bank_code, account_number, account_holder,
			total_amount, paid_amount, status, payment_status, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		inv.ID.String(), inv.InvoiceNumber, inv.CustomerID.String(), inv.BankCode,
		inv.AccountNumber, inv.AccountHolder, inv.TotalAmount, inv.PaidAmount,
		inv.Status, string(inv.PaymentStatus), inv.CreatedAt)
	return mapSQLiteErr(err)
}

const invoiceColumns = `id, invoice_number, customer_id, bank_code, account_number, account_holder,
	total_amount, paid_amount, status, payment_status, created_at`

func scanInvoice(row rowScanner) (*payment.Invoice, error) {
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

func (s *SQLite) GetInvoice(ctx context.Context, id uuid.UUID) (*payment.Invoice, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id.String())
	inv, err := scanInvoice(row)
	if err != nil {
		return nil, mapSQLiteErr(err)
	}
	return inv, nil
}

func (s *SQLite) ListEligibleInvoices(ctx context.Context, bankCode string) ([]payment.Invoice, error) {
	// Invoices already riding in a live batch are not offered again.
	rows, err := s.q.QueryContext(ctx, `
		SELECT `+invoiceColumns+` FROM invoices
		WHERE bank_code = ? AND status = ? AND payment_status IN (?, ?)
		AND id NOT IN (
			SELECT t.invoice_id FROM payment_transactions t
			JOIN payment_batches b ON b.id = t.batch_id
			WHERE t.status = ? AND b.status != ?
		)
		ORDER BY invoice_number`,
		bankCode, payment.InvoiceStatusIssued,
		string(payment.PaymentPending), string(payment.PaymentPartial),
		string(payment.TxnPending), string(payment.BatchCancelled))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []payment.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, *inv)
	}
	return invoices, rows.Err()
}

func (s *SQLite) UpdateInvoice(ctx context.Context, inv *payment.Invoice) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE invoices SET paid_amount = ?, status = ?, payment_status = ? WHERE id = ?`,
		inv.PaidAmount, inv.Status, string(inv.PaymentStatus), inv.ID.String())
	if err != nil {
		return mapSQLiteErr(err)
	}
	return requireRow(res)
}

// --- reconciliation logs ---

func (s *SQLite) CreateReconLog(ctx context.Context, log *payment.ReconciliationLog) error {
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
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO reconciliation_logs (
			id, batch_id, bank_code, file_name,
			total_records, matched_records, unmatched_records, failed_records,
			status, processed_at, error_details, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		log.ID.String(), batchID, log.BankCode, log.FileName,
		log.TotalRecords, log.MatchedRecords, log.UnmatchedRecords, log.FailedRecords,
		string(log.Status), nullTime(log.ProcessedAt), log.ErrorDetails, log.CreatedAt)
	return mapSQLiteErr(err)
}

const reconColumns = `id, batch_id, bank_code, file_name,
	total_records, matched_records, unmatched_records, failed_records,
	status, processed_at, error_details, created_at`

func scanReconLog(row rowScanner) (*payment.ReconciliationLog, error) {
	var (
		l       payment.ReconciliationLog
		id      string
		batchID sql.NullString
		status  string
		procAt  sql.NullTime
	)
	err := row.Scan(&id, &batchID, &l.BankCode, &l.FileName,
		&l.TotalRecords, &l.MatchedRecords, &l.UnmatchedRecords, &l.FailedRecords,
		&status, &procAt, &l.ErrorDetails, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	if l.ID, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if batchID.Valid {
		parsed, err := uuid.Parse(batchID.String)
		if err != nil {
			return nil, err
		}
		l.BatchID = &parsed
	}
	l.Status = payment.ReconLogStatus(status)
	l.ProcessedAt = timePtr(procAt)
	return &l, nil
}

func (s *SQLite) GetReconLog(ctx context.Context, id uuid.UUID) (*payment.ReconciliationLog, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+reconColumns+` FROM reconciliation_logs WHERE id = ?`, id.String())
	l, err := scanReconLog(row)
	if err != nil {
		return nil, mapSQLiteErr(err)
	}
	return l, nil
}

func (s *SQLite) GetReconLogByFileName(ctx context.Context, bankCode, fileName string) (*payment.ReconciliationLog, error) {
	row := s.q.QueryRowContext(ctx,
		`SELECT `+reconColumns+` FROM reconciliation_logs WHERE bank_code = ? AND file_name = ?`,
		bankCode, fileName)
	l, err := scanReconLog(row)
	if err != nil {
		return nil, mapSQLiteErr(err)
	}
	return l, nil
}

func (s *SQLite) ListReconFileNames(ctx context.Context, bankCode string) ([]string, error) {
	rows, err := s.q.QueryContext(ctx,
		`SELECT file_name FROM reconciliation_logs WHERE bank_code = ?`, bankCode)
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

func (s *SQLite) UpdateReconLog(ctx context.Context, log *payment.ReconciliationLog) error {
	var batchID any
	if log.BatchID != nil {
		batchID = log.BatchID.String()
	}
	res, err := s.q.ExecContext(ctx, `
		UPDATE reconciliation_logs SET
			batch_id = ?, total_records = ?, matched_records = ?,
			unmatched_records = ?, failed_records = ?, status = ?,
			processed_at = ?, error_details = ?
		WHERE id = ?`,
		batchID, log.TotalRecords, log.MatchedRecords,
		log.UnmatchedRecords, log.FailedRecords, string(log.Status),
		nullTime(log.ProcessedAt), log.ErrorDetails, log.ID.String())
	if err != nil {
		return mapSQLiteErr(err)
	}
	return requireRow(res)
}

// --- reporting ---

func (s *SQLite) StatusReport(ctx context.Context, bankCode string, from, to time.Time) (*StatusReport, error) {
	report := &StatusReport{
		BankCode:           bankCode,
		From:               from,
		To:                 to,
		BatchCounts:        make(map[payment.BatchStatus]int),
		TransactionCounts:  make(map[payment.TransactionStatus]int),
		TransactionAmounts: make(map[payment.TransactionStatus]int64),
	}

	rows, err := s.q.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM payment_batches
		WHERE bank_code = ? AND processing_date >= ? AND processing_date <= ?
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

	txRows, err := s.q.QueryContext(ctx, `
		SELECT t.status, COUNT(*), COALESCE(SUM(t.amount), 0)
		FROM payment_transactions t
		JOIN payment_batches b ON b.id = t.batch_id
		WHERE b.bank_code = ? AND b.processing_date >= ? AND b.processing_date <= ?
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

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
