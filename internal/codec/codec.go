// Package codec encodes outbound payment files and decodes inbound
// reconciliation files. The two concrete codecs (fixed-width and CSV) are
// selected by bank configuration; both are pure functions of their inputs
// so that re-encoding an unchanged batch is byte-identical, which auditors
// rely on.
package codec

import (
	"fmt"

	"github.com/example/bank-settlement/internal/bank"
	"github.com/example/bank-settlement/internal/payment"
)

// DetailRecord is one parsed detail line of a reconciliation file.
type DetailRecord struct {
	Seq             int
	TransactionID   string
	BankReference   string
	ResponseCode    string
	ResponseMessage string
	ProcessedDate   string // YYYYMMDD as reported by the bank
}

// Codec converts between engine entities and a bank's file bytes.
// Encode produces an outbound payment file; Decode parses an inbound
// reconciliation file. The directions are asymmetric on purpose: we never
// decode our own payment files and never encode reconciliations.
type Codec interface {
	Encode(batch *payment.PaymentBatch, txns []payment.PaymentTransaction, cfg *bank.Config) ([]byte, error)
	Decode(data []byte, cfg *bank.Config) ([]DetailRecord, error)
}

// ParseError reports a malformed inbound file. Parse errors route the
// file to manual review; they never cause partial application.
type ParseError struct {
	Line   int // 1-based, 0 when the error is file-level
	Reason string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Reason)
	}
	return "parse error: " + e.Reason
}

// ForConfig selects the codec for a bank's configured file format.
func ForConfig(cfg *bank.Config) (Codec, error) {
	switch cfg.FileFormat {
	case bank.FormatFixedWidth:
		return &FixedWidth{}, nil
	case bank.FormatCSV:
		return &CSV{}, nil
	default:
		return nil, fmt.Errorf("no codec for file format %q", cfg.FileFormat)
	}
}
