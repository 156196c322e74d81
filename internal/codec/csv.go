package codec

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"

	"github.com/example/bank-settlement/internal/bank"
	"github.com/example/bank-settlement/internal/payment"
)

// CSV implements the delimited format: a labeled header row and one row
// per record, joined with the bank's configured delimiter.
type CSV struct{}

var csvPaymentHeader = []string{
	"Sequence", "Transaction ID", "Account Number", "Account Holder", "Amount",
}

var csvReconHeader = []string{
	"Sequence", "Transaction ID", "Bank Reference", "Response Code", "Response Message", "Processed Date",
}

func delimiterRune(cfg *bank.Config) (rune, error) {
	runes := []rune(cfg.Delimiter)
	if len(runes) != 1 {
		return 0, fmt.Errorf("csv delimiter must be a single character, got %q", cfg.Delimiter)
	}
	return runes[0], nil
}

// Encode renders a payment batch as delimited rows: exactly one header
// row plus one row per transaction.
func (CSV) Encode(batch *payment.PaymentBatch, txns []payment.PaymentTransaction, cfg *bank.Config) ([]byte, error) {
	delim, err := delimiterRune(cfg)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = delim
	w.UseCRLF = true

	if err := w.Write(csvPaymentHeader); err != nil {
		return nil, err
	}
	for i, txn := range txns {
		row := []string{
			strconv.Itoa(i + 1),
			txn.TransactionID,
			txn.AccountNumber,
			txn.AccountHolder,
			strconv.FormatInt(txn.Amount, 10),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return encodeCharset(cfg.Encoding, buf.Bytes())
}

// Decode parses a delimited reconciliation file. The header row is
// required; rows with the wrong column count are parse errors.
func (CSV) Decode(data []byte, cfg *bank.Config) ([]DetailRecord, error) {
	delim, err := delimiterRune(cfg)
	if err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}

	utf8Data, err := decodeCharset(cfg.Encoding, data)
	if err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}

	r := csv.NewReader(bytes.NewReader(utf8Data))
	r.Comma = delim
	r.FieldsPerRecord = len(csvReconHeader)

	rows, err := r.ReadAll()
	if err != nil {
		return nil, &ParseError{Reason: err.Error()}
	}
	if len(rows) == 0 {
		return nil, &ParseError{Reason: "empty file"}
	}

	var records []DetailRecord
	for i, row := range rows[1:] { // skip header
		seq, err := strconv.Atoi(row[0])
		if err != nil {
			return nil, &ParseError{Line: i + 2, Reason: fmt.Sprintf("bad sequence %q", row[0])}
		}
		records = append(records, DetailRecord{
			Seq:             seq,
			TransactionID:   row[1],
			BankReference:   row[2],
			ResponseCode:    row[3],
			ResponseMessage: row[4],
			ProcessedDate:   row[5],
		})
	}
	return records, nil
}
