// Package bank holds per-institution settlement configuration: connection
// details, remote directories, file format and layout, retry policy, and
// the bank's response-code conventions. Configs are owned and mutated by
// the admin surface; the engine reads them through a store.
package bank

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/bank-settlement/internal/payment"
)

// PEM holds key material as PEM text. A plain byte slice would make
// JSON profiles carry it base64-encoded; PEM keeps the text verbatim so
// operators can paste a key file into a profile as-is.
type PEM []byte

func (p PEM) MarshalJSON() ([]byte, error) {
	return json.Marshal(string(p))
}

func (p *PEM) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	*p = PEM(s)
	return nil
}

// Scan implements sql.Scanner: database/sql special-cases only *[]byte,
// so the named type must map NULL and raw values itself.
func (p *PEM) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = nil
	case []byte:
		*p = PEM(append([]byte(nil), v...))
	case string:
		*p = PEM(v)
	default:
		return fmt.Errorf("unsupported Scan, storing driver.Value type %T into type *bank.PEM", src)
	}
	return nil
}

// Value implements driver.Valuer; an empty key is stored as NULL.
func (p PEM) Value() (driver.Value, error) {
	if len(p) == 0 {
		return nil, nil
	}
	return []byte(p), nil
}

// FileFormat selects the codec used for a bank's files.
type FileFormat string

const (
	FormatFixedWidth FileFormat = "fixed_width"
	FormatCSV        FileFormat = "csv"
)

// Config is the full settlement profile of one bank.
type Config struct {
	ID       uuid.UUID `json:"id,omitempty"`
	BankCode string    `json:"bank_code"` // unique

	// SFTP connection.
	Host       string `json:"host"`
	Port       int    `json:"port"`
	Username   string `json:"username"`
	Password   string `json:"password,omitempty"`    // empty when PrivateKey is set
	PrivateKey PEM    `json:"private_key,omitempty"` // empty when Password is set
	HostKey    PEM    `json:"host_key,omitempty"`    // expected server public key, optional pinning

	// Remote directories.
	UploadPath   string `json:"upload_path"`
	DownloadPath string `json:"download_path"`
	ArchivePath  string `json:"archive_path"`

	// File format.
	FileFormat     FileFormat `json:"file_format"`
	Encoding       string     `json:"encoding"`            // "UTF-8", "EUC-KR", "SHIFT_JIS", ...
	Delimiter      string     `json:"delimiter,omitempty"` // csv only
	PaymentPattern string     `json:"payment_pattern"`     // e.g. "PAY_{YYYYMMDD}_{BATCH}.txt"
	ReconPattern   string     `json:"recon_pattern"`       // e.g. "REC_{YYYYMMDD}.txt"

	// Record layouts for the fixed-width codec, bank-supplied.
	PaymentLayout RecordLayout `json:"payment_layout,omitempty"`
	ReconLayout   RecordLayout `json:"recon_layout,omitempty"`

	// Outcome mapping for reconciliation response codes. Banks disagree on
	// what "success" looks like ("000" vs "1"), so the table is per bank.
	ResponseCodes CodeTable `json:"response_codes"`

	// Failure handling.
	RetryAttempts     int `json:"retry_attempts"`
	RetryDelayMinutes int `json:"retry_delay_minutes"`
	FailureThreshold  int `json:"failure_threshold"` // consecutive failures before the breaker opens
	CooldownSeconds   int `json:"cooldown_seconds"`  // breaker open window

	CutoffTime string `json:"cutoff_time,omitempty"` // "HH:MM", local to the bank's clearing day
	IsActive   bool   `json:"is_active"`

	CreatedAt time.Time `json:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// RetryDelay returns the configured delay between upload attempts.
func (c *Config) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelayMinutes) * time.Minute
}

// Cooldown returns the breaker open window.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// Validate checks that a config is usable by the engine. The admin surface
// is expected to have validated on write; the engine re-checks on read
// because a half-migrated row must not produce a malformed bank file.
func (c *Config) Validate() error {
	var missing []string
	if c.BankCode == "" {
		missing = append(missing, "bank_code")
	}
	if c.Host == "" {
		missing = append(missing, "host")
	}
	if c.Username == "" {
		missing = append(missing, "username")
	}
	if c.Password == "" && len(c.PrivateKey) == 0 {
		missing = append(missing, "password or private_key")
	}
	if c.UploadPath == "" {
		missing = append(missing, "upload_path")
	}
	if c.DownloadPath == "" {
		missing = append(missing, "download_path")
	}
	if c.ArchivePath == "" {
		missing = append(missing, "archive_path")
	}
	if len(missing) > 0 {
		return fmt.Errorf("bank config %s missing: %s", c.BankCode, strings.Join(missing, ", "))
	}
	if c.FileFormat != FormatFixedWidth && c.FileFormat != FormatCSV {
		return fmt.Errorf("bank config %s: unknown file format %q", c.BankCode, c.FileFormat)
	}
	if c.FileFormat == FormatCSV && c.Delimiter == "" {
		return fmt.Errorf("bank config %s: csv format requires a delimiter", c.BankCode)
	}
	if c.CutoffTime != "" {
		if _, err := time.Parse("15:04", c.CutoffTime); err != nil {
			return fmt.Errorf("bank config %s: bad cutoff time %q", c.BankCode, c.CutoffTime)
		}
	}
	return nil
}

// CutoffPassed reports whether the bank's submission cutoff for the given
// processing date has already passed at time now. An empty cutoff means
// the bank accepts files all day.
func (c *Config) CutoffPassed(processingDate, now time.Time) bool {
	if c.CutoffTime == "" {
		return false
	}
	cutoff, err := time.Parse("15:04", c.CutoffTime)
	if err != nil {
		return false
	}
	deadline := time.Date(processingDate.Year(), processingDate.Month(), processingDate.Day(),
		cutoff.Hour(), cutoff.Minute(), 0, 0, now.Location())
	return now.After(deadline)
}

// CodeTable maps a bank's reconciliation response codes to transaction
// outcomes. Codes absent from the table are conservative failures.
type CodeTable struct {
	Success  []string `json:"success"`
	Rejected []string `json:"rejected"`
	// Everything else is FAILED.
}

// Outcome classifies a single response code.
func (t CodeTable) Outcome(code string) payment.TransactionStatus {
	for _, c := range t.Success {
		if c == code {
			return payment.TxnSuccess
		}
	}
	for _, c := range t.Rejected {
		if c == code {
			return payment.TxnRejected
		}
	}
	return payment.TxnFailed
}
