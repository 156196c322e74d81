package bank

import (
	"fmt"
	"strings"
)

// FieldType drives padding and alignment defaults for a layout field.
type FieldType string

const (
	FieldText    FieldType = "text"    // left-aligned, space padded, truncated
	FieldNumeric FieldType = "numeric" // right-aligned, zero padded
	FieldDate    FieldType = "date"    // YYYYMMDD, right-aligned, zero padded
)

// Field is one column of a fixed-width record. Layouts are bank-supplied
// configuration, not code: two banks rarely agree on a byte position.
type Field struct {
	Name   string    `json:"name"`
	Length int       `json:"length"`
	Type   FieldType `json:"type"`
	Pad    string    `json:"pad,omitempty"`   // override, single character
	Align  string    `json:"align,omitempty"` // override, "left" or "right"
}

func (f Field) pad() string {
	if f.Pad != "" {
		return f.Pad
	}
	if f.Type == FieldNumeric || f.Type == FieldDate {
		return "0"
	}
	return " "
}

func (f Field) align() string {
	if f.Align != "" {
		return f.Align
	}
	if f.Type == FieldNumeric || f.Type == FieldDate {
		return "right"
	}
	return "left"
}

// Format renders a value into the field's exact width. Text overflow is
// truncated; numeric overflow is an error because silently dropping
// digits of an amount would corrupt the file.
func (f Field) Format(value string) (string, error) {
	if len(value) > f.Length {
		if f.Type == FieldText {
			return value[:f.Length], nil
		}
		return "", fmt.Errorf("field %s: value %q exceeds width %d", f.Name, value, f.Length)
	}
	padding := strings.Repeat(f.pad(), f.Length-len(value))
	if f.align() == "right" {
		return padding + value, nil
	}
	return value + padding, nil
}

// Extract pulls the field's value out of its slot, stripping padding.
func (f Field) Extract(slot string) string {
	if f.align() == "right" {
		return strings.TrimLeft(slot, f.pad())
	}
	return strings.TrimRight(slot, f.pad())
}

// RecordLayout is the ordered field list of one detail record.
type RecordLayout struct {
	Fields []Field `json:"fields"`
}

// Width is the total record width excluding the record-type byte.
func (l RecordLayout) Width() int {
	w := 0
	for _, f := range l.Fields {
		w += f.Length
	}
	return w
}

// Format renders a record from named values. Missing names render as an
// empty (fully padded) field.
func (l RecordLayout) Format(values map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(l.Width())
	for _, f := range l.Fields {
		s, err := f.Format(values[f.Name])
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// Parse splits a record line into named values. The line must be exactly
// the layout's width.
func (l RecordLayout) Parse(line string) (map[string]string, error) {
	if len(line) != l.Width() {
		return nil, fmt.Errorf("record is %d bytes, layout expects %d", len(line), l.Width())
	}
	values := make(map[string]string, len(l.Fields))
	pos := 0
	for _, f := range l.Fields {
		values[f.Name] = f.Extract(line[pos : pos+f.Length])
		pos += f.Length
	}
	return values, nil
}

// Canonical field names used by the codec. Bank layouts may carry extra
// filler fields; these are the ones the engine reads and writes.
const (
	FieldSeq             = "seq"
	FieldTransactionID   = "transaction_id"
	FieldAccountNumber   = "account_number"
	FieldAccountHolder   = "account_holder"
	FieldAmount          = "amount"
	FieldBankReference   = "bank_reference"
	FieldResponseCode    = "response_code"
	FieldResponseMessage = "response_message"
	FieldProcessedDate   = "processed_date"
)

// DefaultPaymentLayout mirrors the illustrative outbound detail record:
// D{seq6}{transaction_id20}{account16}{holder20}{amount13}.
func DefaultPaymentLayout() RecordLayout {
	return RecordLayout{Fields: []Field{
		{Name: FieldSeq, Length: 6, Type: FieldNumeric},
		{Name: FieldTransactionID, Length: 20, Type: FieldText},
		{Name: FieldAccountNumber, Length: 16, Type: FieldText},
		{Name: FieldAccountHolder, Length: 20, Type: FieldText},
		{Name: FieldAmount, Length: 13, Type: FieldNumeric},
	}}
}

// DefaultReconLayout mirrors the illustrative inbound detail record:
// D{seq6}{transaction_id20}{reference17}{code3}{message100}{date8}.
func DefaultReconLayout() RecordLayout {
	return RecordLayout{Fields: []Field{
		{Name: FieldSeq, Length: 6, Type: FieldNumeric},
		{Name: FieldTransactionID, Length: 20, Type: FieldText},
		{Name: FieldBankReference, Length: 17, Type: FieldText},
		{Name: FieldResponseCode, Length: 3, Type: FieldText},
		{Name: FieldResponseMessage, Length: 100, Type: FieldText},
		{Name: FieldProcessedDate, Length: 8, Type: FieldDate},
	}}
}
