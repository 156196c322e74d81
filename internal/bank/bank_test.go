package bank

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/bank-settlement/internal/payment"
)

func TestFieldFormat(t *testing.T) {
	amount := Field{Name: "amount", Length: 13, Type: FieldNumeric}

	s, err := amount.Format("4500")
	require.NoError(t, err)
	assert.Equal(t, "0000000004500", s)
	assert.Equal(t, "4500", amount.Extract(s))

	holder := Field{Name: "holder", Length: 10, Type: FieldText}
	s, err = holder.Format("KIM MINJUN AND SONS")
	require.NoError(t, err)
	assert.Equal(t, "KIM MINJUN", s)

	s, err = holder.Format("KIM")
	require.NoError(t, err)
	assert.Equal(t, "KIM       ", s)
	assert.Equal(t, "KIM", holder.Extract(s))

	// Numeric overflow must not be silently truncated.
	_, err = amount.Format("99999999999999999")
	assert.Error(t, err)
}

func TestRecordLayoutRoundTrip(t *testing.T) {
	layout := DefaultReconLayout()
	assert.Equal(t, 154, layout.Width())

	values := map[string]string{
		FieldSeq:             "1",
		FieldTransactionID:   "KB001202601150010001",
		FieldBankReference:   "REF123",
		FieldResponseCode:    "000",
		FieldResponseMessage: "OK",
		FieldProcessedDate:   "20260115",
	}
	line, err := layout.Format(values)
	require.NoError(t, err)
	require.Len(t, line, layout.Width())

	parsed, err := layout.Parse(line)
	require.NoError(t, err)
	assert.Equal(t, "1", parsed[FieldSeq])
	assert.Equal(t, "KB001202601150010001", parsed[FieldTransactionID])
	assert.Equal(t, "000", parsed[FieldResponseCode])
	assert.Equal(t, "20260115", parsed[FieldProcessedDate])

	_, err = layout.Parse(line + "X")
	assert.Error(t, err)
}

func TestRenderFileName(t *testing.T) {
	date := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	name := RenderFileName("PAY_{YYYYMMDD}_{BATCH}.txt", date, "KB001-20260115-001")
	assert.Equal(t, "PAY_20260115_KB001-20260115-001.txt", name)
}

func TestCompilePattern(t *testing.T) {
	re, err := CompilePattern("REC_{YYYYMMDD}.txt")
	require.NoError(t, err)

	assert.True(t, re.MatchString("REC_20260115.txt"))
	assert.False(t, re.MatchString("REC_2026011.txt"))
	assert.False(t, re.MatchString("PAY_20260115.txt"))
	assert.False(t, re.MatchString("REC_20260115.txt.tmp"))
}

func TestCodeTableOutcome(t *testing.T) {
	// Two banks with conflicting success conventions.
	kb := CodeTable{Success: []string{"000"}, Rejected: []string{"R01", "R02"}}
	sh := CodeTable{Success: []string{"1"}, Rejected: []string{"9"}}

	assert.Equal(t, payment.TxnSuccess, kb.Outcome("000"))
	assert.Equal(t, payment.TxnRejected, kb.Outcome("R01"))
	assert.Equal(t, payment.TxnFailed, kb.Outcome("1")) // success only for the other bank

	assert.Equal(t, payment.TxnSuccess, sh.Outcome("1"))
	assert.Equal(t, payment.TxnRejected, sh.Outcome("9"))
	assert.Equal(t, payment.TxnFailed, sh.Outcome("000"))
}

func TestConfigValidate(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	cfg.Host = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Password = ""
	cfg.PrivateKey = nil
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.FileFormat = FormatCSV
	cfg.Delimiter = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.CutoffTime = "2pm"
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.CutoffTime = "14:00"
	assert.NoError(t, cfg.Validate())
}

func TestCutoffPassed(t *testing.T) {
	cfg := validConfig()
	cfg.CutoffTime = "15:00"

	date := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	before := time.Date(2026, 1, 15, 14, 59, 0, 0, time.UTC)
	after := time.Date(2026, 1, 15, 15, 1, 0, 0, time.UTC)

	assert.False(t, cfg.CutoffPassed(date, before))
	assert.True(t, cfg.CutoffPassed(date, after))

	cfg.CutoffTime = ""
	assert.False(t, cfg.CutoffPassed(date, after))
}

func validConfig() *Config {
	return &Config{
		BankCode:     "KB001",
		Host:         "sftp.kb001.example",
		Port:         22,
		Username:     "settle",
		Password:     "secret",
		UploadPath:   "/in",
		DownloadPath: "/out",
		ArchivePath:  "/out/archive",
		FileFormat:   FormatFixedWidth,
		Encoding:     "UTF-8",
	}
}
