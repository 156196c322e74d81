package codec

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/bank-settlement/internal/bank"
	"github.com/example/bank-settlement/internal/payment"
)

func fixedWidthConfig() *bank.Config {
	return &bank.Config{
		BankCode:   "KB001",
		FileFormat: bank.FormatFixedWidth,
		Encoding:   "UTF-8",
	}
}

func csvConfig() *bank.Config {
	return &bank.Config{
		BankCode:   "SH002",
		FileFormat: bank.FormatCSV,
		Encoding:   "UTF-8",
		Delimiter:  ",",
	}
}

func sampleBatch() (*payment.PaymentBatch, []payment.PaymentTransaction) {
	batch := &payment.PaymentBatch{
		BatchNumber:    "KB001-20260115-001",
		BankCode:       "KB001",
		ProcessingDate: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
	}
	txns := []payment.PaymentTransaction{
		{TransactionID: "KB00120260115001", AccountNumber: "110123456789", AccountHolder: "KIM MINJUN", Amount: 1000},
		{TransactionID: "KB00120260115002", AccountNumber: "110987654321", AccountHolder: "LEE SEOYEON", Amount: 2000},
		{TransactionID: "KB00120260115003", AccountNumber: "110555555555", AccountHolder: "PARK JIHO", Amount: 1500},
	}
	return batch, txns
}

func TestForConfig(t *testing.T) {
	c, err := ForConfig(fixedWidthConfig())
	require.NoError(t, err)
	assert.IsType(t, &FixedWidth{}, c)

	c, err = ForConfig(csvConfig())
	require.NoError(t, err)
	assert.IsType(t, &CSV{}, c)

	_, err = ForConfig(&bank.Config{FileFormat: "xml"})
	assert.Error(t, err)
}

func TestFixedWidthEncode(t *testing.T) {
	batch, txns := sampleBatch()
	data, err := FixedWidth{}.Encode(batch, txns, fixedWidthConfig())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\r\n"), "\r\n")
	require.Len(t, lines, 5) // header + 3 details + trailer

	assert.Equal(t, "H20260115KB001", lines[0])
	assert.Equal(t, "T000003", lines[4])

	layout := bank.DefaultPaymentLayout()
	require.Equal(t, "D", lines[1][:1])
	values, err := layout.Parse(lines[1][1:])
	require.NoError(t, err)
	assert.Equal(t, "1", values[bank.FieldSeq])
	assert.Equal(t, "KB00120260115001", values[bank.FieldTransactionID])
	assert.Equal(t, "1000", values[bank.FieldAmount])
}

func TestFixedWidthEncodeDeterministic(t *testing.T) {
	batch, txns := sampleBatch()
	cfg := fixedWidthConfig()

	first, err := FixedWidth{}.Encode(batch, txns, cfg)
	require.NoError(t, err)
	second, err := FixedWidth{}.Encode(batch, txns, cfg)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestFixedWidthEncodeLegacyCharset(t *testing.T) {
	batch, txns := sampleBatch()
	txns[0].AccountHolder = "김민준"
	cfg := fixedWidthConfig()
	cfg.Encoding = "EUC-KR"

	data, err := FixedWidth{}.Encode(batch, txns, cfg)
	require.NoError(t, err)
	// EUC-KR hangul is 2 bytes per syllable; the UTF-8 form is 3.
	assert.NotContains(t, string(data), "김민준")
	assert.Contains(t, string(data), "KB001")

	// Layout widths are wire bytes: the multibyte holder must not shift
	// the fields behind it.
	width := 1 + bank.DefaultPaymentLayout().Width()
	lines := strings.Split(strings.TrimRight(string(data), "\r\n"), "\r\n")
	require.Len(t, lines, 5)
	for _, line := range lines[1:4] {
		assert.Len(t, line, width)
	}
	// The amount still sits in its slot on the hangul line.
	assert.True(t, strings.HasSuffix(lines[1], "0000000001000"), lines[1])
}

func TestFixedWidthDecodeLegacyCharset(t *testing.T) {
	cfg := fixedWidthConfig()
	cfg.Encoding = "EUC-KR"

	enc, err := resolveEncoding(cfg.Encoding)
	require.NoError(t, err)
	layout := bank.DefaultReconLayout()
	line, err := formatWire(layout, map[string]string{
		bank.FieldSeq:             "1",
		bank.FieldTransactionID:   "KB00120260115001",
		bank.FieldBankReference:   "REF001",
		bank.FieldResponseCode:    "R01",
		bank.FieldResponseMessage: "잔액부족",
		bank.FieldProcessedDate:   "20260116",
	}, enc)
	require.NoError(t, err)
	require.Len(t, line, layout.Width())

	data := []byte("H20260116KB001\r\nD" + line + "\r\nT000001\r\n")
	records, err := FixedWidth{}.Decode(data, cfg)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "KB00120260115001", records[0].TransactionID)
	assert.Equal(t, "잔액부족", records[0].ResponseMessage)
}

func TestTranscodeFieldTruncatesOnCharacterBoundary(t *testing.T) {
	enc, err := resolveEncoding("EUC-KR")
	require.NoError(t, err)

	long := strings.Repeat("김", 11) // 22 wire bytes
	got, err := transcodeField(enc, long, 20, true)
	require.NoError(t, err)
	assert.Len(t, got, 20)

	// An odd budget never splits a 2-byte syllable.
	got, err = transcodeField(enc, long, 21, true)
	require.NoError(t, err)
	assert.Len(t, got, 20)
}

// buildReconFile renders a reconciliation file the way a bank would.
func buildReconFile(t *testing.T, cfg *bank.Config, details []map[string]string) []byte {
	t.Helper()
	layout := cfg.ReconLayout
	if len(layout.Fields) == 0 {
		layout = bank.DefaultReconLayout()
	}
	var b strings.Builder
	b.WriteString("H20260116" + cfg.BankCode + "\r\n")
	for _, d := range details {
		line, err := layout.Format(d)
		require.NoError(t, err)
		b.WriteString("D" + line + "\r\n")
	}
	b.WriteString(fmt.Sprintf("T%06d\r\n", len(details)))
	return []byte(b.String())
}

func TestFixedWidthDecode(t *testing.T) {
	cfg := fixedWidthConfig()
	data := buildReconFile(t, cfg, []map[string]string{
		{
			bank.FieldSeq:             "1",
			bank.FieldTransactionID:   "KB00120260115001",
			bank.FieldBankReference:   "REF001",
			bank.FieldResponseCode:    "000",
			bank.FieldResponseMessage: "COMPLETED",
			bank.FieldProcessedDate:   "20260116",
		},
		{
			bank.FieldSeq:             "2",
			bank.FieldTransactionID:   "KB00120260115002",
			bank.FieldBankReference:   "REF002",
			bank.FieldResponseCode:    "R01",
			bank.FieldResponseMessage: "INSUFFICIENT FUNDS",
			bank.FieldProcessedDate:   "20260116",
		},
	})

	records, err := FixedWidth{}.Decode(data, cfg)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, 1, records[0].Seq)
	assert.Equal(t, "KB00120260115001", records[0].TransactionID)
	assert.Equal(t, "000", records[0].ResponseCode)
	assert.Equal(t, "REF002", records[1].BankReference)
	assert.Equal(t, "INSUFFICIENT FUNDS", records[1].ResponseMessage)
	assert.Equal(t, "20260116", records[1].ProcessedDate)
}

func TestFixedWidthDecodeTrailerMismatch(t *testing.T) {
	cfg := fixedWidthConfig()
	data := buildReconFile(t, cfg, []map[string]string{
		{bank.FieldSeq: "1", bank.FieldTransactionID: "KB00120260115001", bank.FieldResponseCode: "000", bank.FieldProcessedDate: "20260116"},
	})
	// Corrupt the trailer count.
	corrupted := strings.Replace(string(data), "T000001", "T000005", 1)

	_, err := FixedWidth{}.Decode([]byte(corrupted), cfg)
	require.Error(t, err)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Reason, "trailer declares 5")
}

func TestFixedWidthDecodeMalformed(t *testing.T) {
	cfg := fixedWidthConfig()

	cases := map[string]string{
		"empty":          "",
		"no header":      "D000001\r\nT000001\r\n",
		"unknown record": "H20260116KB001\r\nX\r\nT000000\r\n",
		"no trailer":     "H20260116KB001\r\n",
		"short detail":   "H20260116KB001\r\nDshort\r\nT000001\r\n",
	}
	for name, raw := range cases {
		_, err := FixedWidth{}.Decode([]byte(raw), cfg)
		assert.Error(t, err, name)
		var perr *ParseError
		assert.ErrorAs(t, err, &perr, name)
	}
}

func TestCSVEncodeLineCount(t *testing.T) {
	batch, txns := sampleBatch()
	data, err := CSV{}.Encode(batch, txns[:2], csvConfig())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimRight(string(data), "\r\n"), "\r\n")
	require.Len(t, lines, 3) // 1 header + 2 rows
	assert.Equal(t, "Sequence,Transaction ID,Account Number,Account Holder,Amount", lines[0])
	assert.Equal(t, "1,KB00120260115001,110123456789,KIM MINJUN,1000", lines[1])
}

func TestCSVEncodeCustomDelimiter(t *testing.T) {
	batch, txns := sampleBatch()
	cfg := csvConfig()
	cfg.Delimiter = "|"

	data, err := CSV{}.Encode(batch, txns[:1], cfg)
	require.NoError(t, err)
	assert.Contains(t, string(data), "1|KB00120260115001|")
}

func TestCSVDecode(t *testing.T) {
	raw := "Sequence,Transaction ID,Bank Reference,Response Code,Response Message,Processed Date\r\n" +
		"1,KB00120260115001,REF001,000,COMPLETED,20260116\r\n" +
		"2,KB00120260115002,REF002,R01,INSUFFICIENT FUNDS,20260116\r\n"

	records, err := CSV{}.Decode([]byte(raw), csvConfig())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "000", records[0].ResponseCode)
	assert.Equal(t, 2, records[1].Seq)
}

func TestCSVDecodeWrongColumnCount(t *testing.T) {
	raw := "Sequence,Transaction ID,Bank Reference,Response Code,Response Message,Processed Date\r\n" +
		"1,KB00120260115001,REF001\r\n"

	_, err := CSV{}.Decode([]byte(raw), csvConfig())
	require.Error(t, err)
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestReconRoundTrip(t *testing.T) {
	// Encoding our own transaction IDs into reconciliation-style records
	// and decoding them back must preserve every ID.
	cfg := fixedWidthConfig()
	_, txns := sampleBatch()

	var details []map[string]string
	for i, txn := range txns {
		details = append(details, map[string]string{
			bank.FieldSeq:             fmt.Sprint(i + 1),
			bank.FieldTransactionID:   txn.TransactionID,
			bank.FieldBankReference:   fmt.Sprintf("REF%03d", i+1),
			bank.FieldResponseCode:    "000",
			bank.FieldResponseMessage: "OK",
			bank.FieldProcessedDate:   "20260116",
		})
	}
	data := buildReconFile(t, cfg, details)

	records, err := FixedWidth{}.Decode(data, cfg)
	require.NoError(t, err)
	require.Len(t, records, len(txns))
	for i, rec := range records {
		assert.Equal(t, txns[i].TransactionID, rec.TransactionID)
	}
}
