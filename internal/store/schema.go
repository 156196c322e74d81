package store

// SQLiteSchema creates the engine tables for the SQLite store. The
// Postgres migration below is the dialect twin; keep them in sync.
const SQLiteSchema = `
CREATE TABLE IF NOT EXISTS bank_configs (
	id TEXT PRIMARY KEY,
	bank_code TEXT UNIQUE NOT NULL,
	host TEXT NOT NULL,
	port INTEGER NOT NULL,
	username TEXT NOT NULL,
	password TEXT NOT NULL DEFAULT '',
	private_key BLOB,
	host_key BLOB,
	upload_path TEXT NOT NULL,
	download_path TEXT NOT NULL,
	archive_path TEXT NOT NULL,
	file_format TEXT NOT NULL,
	encoding TEXT NOT NULL DEFAULT 'UTF-8',
	delimiter TEXT NOT NULL DEFAULT '',
	payment_pattern TEXT NOT NULL,
	recon_pattern TEXT NOT NULL,
	payment_layout TEXT NOT NULL DEFAULT '{}',
	recon_layout TEXT NOT NULL DEFAULT '{}',
	response_codes TEXT NOT NULL DEFAULT '{}',
	retry_attempts INTEGER NOT NULL DEFAULT 3,
	retry_delay_minutes INTEGER NOT NULL DEFAULT 30,
	failure_threshold INTEGER NOT NULL DEFAULT 5,
	cooldown_seconds INTEGER NOT NULL DEFAULT 300,
	cutoff_time TEXT NOT NULL DEFAULT '',
	is_active INTEGER NOT NULL DEFAULT 1,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS payment_batches (
	id TEXT PRIMARY KEY,
	batch_number TEXT UNIQUE NOT NULL,
	bank_code TEXT NOT NULL,
	processing_date TIMESTAMP NOT NULL,
	file_name TEXT NOT NULL DEFAULT '',
	total_transactions INTEGER NOT NULL,
	total_amount INTEGER NOT NULL,
	status TEXT NOT NULL,
	generated_at TIMESTAMP,
	uploaded_at TIMESTAMP,
	reconciled_at TIMESTAMP,
	error_message TEXT NOT NULL DEFAULT '',
	retry_count INTEGER NOT NULL DEFAULT 0,
	next_retry_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_batches_bank_date ON payment_batches(bank_code, processing_date);
CREATE INDEX IF NOT EXISTS idx_batches_retry ON payment_batches(next_retry_at) WHERE next_retry_at IS NOT NULL;

CREATE TABLE IF NOT EXISTS payment_transactions (
	id TEXT PRIMARY KEY,
	batch_id TEXT NOT NULL REFERENCES payment_batches(id),
	transaction_id TEXT UNIQUE NOT NULL,
	customer_id TEXT NOT NULL,
	invoice_id TEXT NOT NULL,
	account_number TEXT NOT NULL,
	account_holder TEXT NOT NULL,
	amount INTEGER NOT NULL CHECK (amount > 0),
	status TEXT NOT NULL,
	bank_reference TEXT NOT NULL DEFAULT '',
	bank_response_code TEXT NOT NULL DEFAULT '',
	bank_response_message TEXT NOT NULL DEFAULT '',
	scheduled_date TIMESTAMP NOT NULL,
	processed_date TIMESTAMP,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_txns_batch ON payment_transactions(batch_id);
CREATE INDEX IF NOT EXISTS idx_txns_invoice ON payment_transactions(invoice_id);

CREATE TABLE IF NOT EXISTS invoices (
	id TEXT PRIMARY KEY,
	invoice_number TEXT UNIQUE NOT NULL,
	customer_id TEXT NOT NULL,
	bank_code TEXT NOT NULL,
	account_number TEXT NOT NULL,
	account_holder TEXT NOT NULL,
	total_amount INTEGER NOT NULL,
	paid_amount INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	payment_status TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_invoices_eligibility ON invoices(bank_code, status, payment_status);

CREATE TABLE IF NOT EXISTS reconciliation_logs (
	id TEXT PRIMARY KEY,
	batch_id TEXT,
	bank_code TEXT NOT NULL,
	file_name TEXT UNIQUE NOT NULL,
	total_records INTEGER NOT NULL DEFAULT 0,
	matched_records INTEGER NOT NULL DEFAULT 0,
	unmatched_records INTEGER NOT NULL DEFAULT 0,
	failed_records INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	processed_at TIMESTAMP,
	error_details TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recon_bank ON reconciliation_logs(bank_code);
`

// PostgresSchema is the production migration.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS bank_configs (
	id UUID PRIMARY KEY,
	bank_code TEXT UNIQUE NOT NULL,
	host TEXT NOT NULL,
	port INTEGER NOT NULL,
	username TEXT NOT NULL,
	password TEXT NOT NULL DEFAULT '',
	private_key BYTEA,
	host_key BYTEA,
	upload_path TEXT NOT NULL,
	download_path TEXT NOT NULL,
	archive_path TEXT NOT NULL,
	file_format TEXT NOT NULL,
	encoding TEXT NOT NULL DEFAULT 'UTF-8',
	delimiter TEXT NOT NULL DEFAULT '',
	payment_pattern TEXT NOT NULL,
	recon_pattern TEXT NOT NULL,
	payment_layout JSONB NOT NULL DEFAULT '{}',
	recon_layout JSONB NOT NULL DEFAULT '{}',
	response_codes JSONB NOT NULL DEFAULT '{}',
	retry_attempts INTEGER NOT NULL DEFAULT 3,
	retry_delay_minutes INTEGER NOT NULL DEFAULT 30,
	failure_threshold INTEGER NOT NULL DEFAULT 5,
	cooldown_seconds INTEGER NOT NULL DEFAULT 300,
	cutoff_time TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS payment_batches (
	id UUID PRIMARY KEY,
	batch_number TEXT UNIQUE NOT NULL,
	bank_code TEXT NOT NULL,
	processing_date TIMESTAMPTZ NOT NULL,
	file_name TEXT NOT NULL DEFAULT '',
	total_transactions INTEGER NOT NULL,
	total_amount BIGINT NOT NULL,
	status TEXT NOT NULL,
	generated_at TIMESTAMPTZ,
	uploaded_at TIMESTAMPTZ,
	reconciled_at TIMESTAMPTZ,
	error_message TEXT NOT NULL DEFAULT '',
	retry_count INTEGER NOT NULL DEFAULT 0,
	next_retry_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_batches_bank_date ON payment_batches(bank_code, processing_date);
CREATE INDEX IF NOT EXISTS idx_batches_retry ON payment_batches(next_retry_at) WHERE next_retry_at IS NOT NULL;

CREATE TABLE IF NOT EXISTS payment_transactions (
	id UUID PRIMARY KEY,
	batch_id UUID NOT NULL REFERENCES payment_batches(id),
	transaction_id TEXT UNIQUE NOT NULL,
	customer_id UUID NOT NULL,
	invoice_id UUID NOT NULL,
	account_number TEXT NOT NULL,
	account_holder TEXT NOT NULL,
	amount BIGINT NOT NULL CHECK (amount > 0),
	status TEXT NOT NULL,
	bank_reference TEXT NOT NULL DEFAULT '',
	bank_response_code TEXT NOT NULL DEFAULT '',
	bank_response_message TEXT NOT NULL DEFAULT '',
	scheduled_date TIMESTAMPTZ NOT NULL,
	processed_date TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_txns_batch ON payment_transactions(batch_id);
CREATE INDEX IF NOT EXISTS idx_txns_invoice ON payment_transactions(invoice_id);

CREATE TABLE IF NOT EXISTS invoices (
	id UUID PRIMARY KEY,
	invoice_number TEXT UNIQUE NOT NULL,
	customer_id UUID NOT NULL,
	bank_code TEXT NOT NULL,
	account_number TEXT NOT NULL,
	account_holder TEXT NOT NULL,
	total_amount BIGINT NOT NULL,
	paid_amount BIGINT NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	payment_status TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_invoices_eligibility ON invoices(bank_code, status, payment_status);

CREATE TABLE IF NOT EXISTS reconciliation_logs (
	id UUID PRIMARY KEY,
	batch_id UUID,
	bank_code TEXT NOT NULL,
	file_name TEXT UNIQUE NOT NULL,
	total_records INTEGER NOT NULL DEFAULT 0,
	matched_records INTEGER NOT NULL DEFAULT 0,
	unmatched_records INTEGER NOT NULL DEFAULT 0,
	failed_records INTEGER NOT NULL DEFAULT 0,
	status TEXT NOT NULL,
	processed_at TIMESTAMPTZ,
	error_details TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_recon_bank ON reconciliation_logs(bank_code);
`
