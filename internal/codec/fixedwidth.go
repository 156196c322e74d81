package codec

import (
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/text/encoding"

	"github.com/example/bank-settlement/internal/bank"
	"github.com/example/bank-settlement/internal/payment"
)

// FixedWidth implements the positional record format most domestic banks
// still run: an H header line, one D line per detail with exact byte
// positions from the bank-supplied layout, and a T trailer carrying the
// detail count for integrity checking. Lines end with CRLF. Layout
// widths are byte positions in the bank's wire charset, so every value
// is transcoded before it is padded or sliced; a Hangul holder name
// occupies its EUC-KR width on the wire, not its UTF-8 width.
type FixedWidth struct{}

const crlf = "\r\n"

// Encode renders a payment batch into the bank's fixed-width layout.
// The output depends only on the batch and transactions, never the clock.
func (FixedWidth) Encode(batch *payment.PaymentBatch, txns []payment.PaymentTransaction, cfg *bank.Config) ([]byte, error) {
	layout := cfg.PaymentLayout
	if len(layout.Fields) == 0 {
		layout = bank.DefaultPaymentLayout()
	}
	enc, err := resolveEncoding(cfg.Encoding)
	if err != nil {
		return nil, err
	}

	// Header and trailer are ASCII, identical in every supported charset.
	var b strings.Builder
	b.WriteString("H")
	b.WriteString(batch.ProcessingDate.Format("20060102"))
	b.WriteString(cfg.BankCode)
	b.WriteString(crlf)

	for i, txn := range txns {
		line, err := formatWire(layout, map[string]string{
			bank.FieldSeq:           strconv.Itoa(i + 1),
			bank.FieldTransactionID: txn.TransactionID,
			bank.FieldAccountNumber: txn.AccountNumber,
			bank.FieldAccountHolder: txn.AccountHolder,
			bank.FieldAmount:        strconv.FormatInt(txn.Amount, 10),
		}, enc)
		if err != nil {
			return nil, fmt.Errorf("detail %d: %w", i+1, err)
		}
		b.WriteString("D")
		b.WriteString(line)
		b.WriteString(crlf)
	}

	b.WriteString("T")
	b.WriteString(fmt.Sprintf("%06d", len(txns)))
	b.WriteString(crlf)

	return []byte(b.String()), nil
}

// formatWire renders one detail record with every value already in the
// wire charset, so the layout pads text to its true on-wire width. Only
// text fields truncate; numeric overflow stays an error.
func formatWire(layout bank.RecordLayout, values map[string]string, enc encoding.Encoding) (string, error) {
	wire := make(map[string]string, len(values))
	for _, f := range layout.Fields {
		v, err := transcodeField(enc, values[f.Name], f.Length, f.Type == bank.FieldText)
		if err != nil {
			return "", fmt.Errorf("field %s: %w", f.Name, err)
		}
		wire[f.Name] = v
	}
	return layout.Format(wire)
}

// Decode parses a reconciliation file. A trailer whose declared count
// disagrees with the parsed detail count is a parse error, not a silent
// truncation.
func (FixedWidth) Decode(data []byte, cfg *bank.Config) ([]DetailRecord, error) {
	layout := cfg.ReconLayout
	if len(layout.Fields) == 0 {
		layout = bank.DefaultReconLayout()
	}
	enc, err := resolveEncoding(cfg.Encoding)
	if err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}
	dec := enc.NewDecoder()

	// Slice in the wire byte domain first; field values are decoded to
	// UTF-8 individually after extraction.
	lines := splitLines(string(data))
	if len(lines) == 0 {
		return nil, &ParseError{Reason: "empty file"}
	}
	if !strings.HasPrefix(lines[0], "H") {
		return nil, &ParseError{Line: 1, Reason: "missing header record"}
	}

	var (
		records      []DetailRecord
		trailerCount = -1
	)
	for i, line := range lines[1:] {
		lineNo := i + 2
		switch {
		case strings.HasPrefix(line, "D"):
			if trailerCount >= 0 {
				return nil, &ParseError{Line: lineNo, Reason: "detail record after trailer"}
			}
			values, err := layout.Parse(line[1:])
			if err != nil {
				return nil, &ParseError{Line: lineNo, Reason: err.Error()}
			}
			for name, v := range values {
				u, derr := dec.Bytes([]byte(v))
				if derr != nil {
					return nil, &ParseError{Line: lineNo, Reason: fmt.Sprintf("field %s: %v", name, derr)}
				}
				values[name] = string(u)
			}
			rec, err := detailFromValues(values)
			if err != nil {
				return nil, &ParseError{Line: lineNo, Reason: err.Error()}
			}
			records = append(records, rec)
		case strings.HasPrefix(line, "T"):
			n, err := strconv.Atoi(strings.TrimSpace(line[1:]))
			if err != nil {
				return nil, &ParseError{Line: lineNo, Reason: "unreadable trailer count"}
			}
			trailerCount = n
		default:
			return nil, &ParseError{Line: lineNo, Reason: fmt.Sprintf("unknown record type %q", line[:1])}
		}
	}

	if trailerCount < 0 {
		return nil, &ParseError{Reason: "missing trailer record"}
	}
	if trailerCount != len(records) {
		return nil, &ParseError{Reason: fmt.Sprintf(
			"trailer declares %d records, file contains %d", trailerCount, len(records))}
	}
	return records, nil
}

func detailFromValues(values map[string]string) (DetailRecord, error) {
	seq := 0
	if s := values[bank.FieldSeq]; s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return DetailRecord{}, fmt.Errorf("bad sequence %q", s)
		}
		seq = n
	}
	return DetailRecord{
		Seq:             seq,
		TransactionID:   values[bank.FieldTransactionID],
		BankReference:   values[bank.FieldBankReference],
		ResponseCode:    values[bank.FieldResponseCode],
		ResponseMessage: values[bank.FieldResponseMessage],
		ProcessedDate:   values[bank.FieldProcessedDate],
	}, nil
}

// splitLines splits on CRLF or bare LF and drops a trailing empty line.
// Some banks terminate the last record, some don't. Splitting raw wire
// bytes is safe: EUC-KR and Shift_JIS never use 0x0A or 0x0D as trail
// bytes.
func splitLines(s string) []string {
	s = strings.ReplaceAll(s, crlf, "\n")
	lines := strings.Split(s, "\n")
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
