package recon

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/bank-settlement/internal/bank"
	"github.com/example/bank-settlement/internal/payment"
	"github.com/example/bank-settlement/internal/store"
	"github.com/example/bank-settlement/pkg/audit"
)

type fakeRemote struct {
	files     map[string][]byte
	renames   map[string]string
	downloads int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{files: make(map[string][]byte), renames: make(map[string]string)}
}

func (f *fakeRemote) Download(_ context.Context, _ *bank.Config, remotePath string) ([]byte, error) {
	f.downloads++
	data, ok := f.files[remotePath]
	if !ok {
		return nil, fmt.Errorf("no such file %s", remotePath)
	}
	return data, nil
}

func (f *fakeRemote) ListDir(_ context.Context, _ *bank.Config, dir string) ([]string, error) {
	var names []string
	for p := range f.files {
		if path.Dir(p) == dir {
			names = append(names, path.Base(p))
		}
	}
	return names, nil
}

func (f *fakeRemote) Rename(_ context.Context, _ *bank.Config, oldPath, newPath string) error {
	data, ok := f.files[oldPath]
	if !ok {
		return fmt.Errorf("no such file %s", oldPath)
	}
	delete(f.files, oldPath)
	f.files[newPath] = data
	f.renames[oldPath] = newPath
	return nil
}

type fixture struct {
	engine *Engine
	store  *store.SQLite
	remote *fakeRemote
	trail  *audit.Trail
	clock  time.Time

	batch    *payment.PaymentBatch
	txns     []payment.PaymentTransaction
	invoices []*payment.Invoice
}

func newFixture(t *testing.T, amounts ...int64) *fixture {
	t.Helper()
	ctx := context.Background()

	st, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := &bank.Config{
		BankCode:       "KB001",
		Host:           "sftp.kb001.example",
		Port:           22,
		Username:       "settle",
		Password:       "secret",
		UploadPath:     "/in",
		DownloadPath:   "/out",
		ArchivePath:    "/out/archive",
		FileFormat:     bank.FormatFixedWidth,
		Encoding:       "UTF-8",
		PaymentPattern: "PAY_{YYYYMMDD}_{BATCH}.txt",
		ReconPattern:   "REC_{YYYYMMDD}.txt",
		ResponseCodes:  bank.CodeTable{Success: []string{"000"}, Rejected: []string{"R01"}},
		IsActive:       true,
	}
	require.NoError(t, st.SaveBankConfig(ctx, cfg))

	f := &fixture{
		store:  st,
		remote: newFakeRemote(),
		trail:  audit.NewTrail(),
		clock:  time.Date(2026, 1, 16, 8, 0, 0, 0, time.UTC),
	}
	f.engine = NewEngine(st, f.remote, f.trail,
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithClock(func() time.Time { return f.clock }))

	uploadedAt := f.clock.Add(-12 * time.Hour)
	f.batch = &payment.PaymentBatch{
		ID:             uuid.New(),
		BatchNumber:    "KB001-20260115-001",
		BankCode:       "KB001",
		ProcessingDate: time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		FileName:       "PAY_20260115_KB001-20260115-001.txt",
		Status:         payment.BatchUploaded,
		UploadedAt:     &uploadedAt,
		CreatedAt:      uploadedAt,
	}
	var total int64
	for i, amt := range amounts {
		inv := &payment.Invoice{
			InvoiceNumber: fmt.Sprintf("INV-%03d", i+1),
			CustomerID:    uuid.New(),
			BankCode:      "KB001",
			AccountNumber: "110123456789",
			AccountHolder: "HOLDER",
			TotalAmount:   amt,
			Status:        payment.InvoiceStatusIssued,
			PaymentStatus: payment.PaymentPending,
		}
		require.NoError(t, st.SaveInvoice(ctx, inv))
		f.invoices = append(f.invoices, inv)

		f.txns = append(f.txns, payment.PaymentTransaction{
			ID:            uuid.New(),
			BatchID:       f.batch.ID,
			TransactionID: fmt.Sprintf("KB00120260115001%04d", i+1),
			CustomerID:    inv.CustomerID,
			InvoiceID:     inv.ID,
			AccountNumber: inv.AccountNumber,
			AccountHolder: inv.AccountHolder,
			Amount:        amt,
			Status:        payment.TxnPending,
			ScheduledDate: f.batch.ProcessingDate,
			CreatedAt:     uploadedAt,
		})
		total += amt
	}
	f.batch.TotalTransactions = len(f.txns)
	f.batch.TotalAmount = total
	require.NoError(t, st.CreateBatch(ctx, f.batch, f.txns))
	return f
}

func (f *fixture) detail(txnID, code, message string) map[string]string {
	return map[string]string{
		bank.FieldSeq:             "1",
		bank.FieldTransactionID:   txnID,
		bank.FieldBankReference:   "REF" + txnID[len(txnID)-4:],
		bank.FieldResponseCode:    code,
		bank.FieldResponseMessage: message,
		bank.FieldProcessedDate:   "20260116",
	}
}

func (f *fixture) putReconFile(t *testing.T, name string, details []map[string]string) {
	t.Helper()
	layout := bank.DefaultReconLayout()
	var b strings.Builder
	b.WriteString("H20260116KB001\r\n")
	for _, d := range details {
		line, err := layout.Format(d)
		require.NoError(t, err)
		b.WriteString("D" + line + "\r\n")
	}
	b.WriteString(fmt.Sprintf("T%06d\r\n", len(details)))
	f.remote.files["/out/"+name] = []byte(b.String())
}

func TestCheckFiles(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	f.putReconFile(t, "REC_20260116.txt", nil)
	f.remote.files["/out/unrelated.dat"] = []byte("x")

	files, err := f.engine.CheckFiles(ctx, "KB001")
	require.NoError(t, err)
	assert.Equal(t, []string{"REC_20260116.txt"}, files)

	// Already-processed names drop out of the listing.
	require.NoError(t, f.store.CreateReconLog(ctx, &payment.ReconciliationLog{
		BankCode: "KB001",
		FileName: "REC_20260116.txt",
		Status:   payment.ReconPending,
	}))
	files, err = f.engine.CheckFiles(ctx, "KB001")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestProcessFileAllMatched(t *testing.T) {
	f := newFixture(t, 1000, 2000)
	ctx := context.Background()

	f.putReconFile(t, "REC_20260116.txt", []map[string]string{
		f.detail(f.txns[0].TransactionID, "000", "COMPLETED"),
		f.detail(f.txns[1].TransactionID, "000", "COMPLETED"),
	})

	log, err := f.engine.ProcessFile(ctx, "KB001", "REC_20260116.txt")
	require.NoError(t, err)
	assert.Equal(t, payment.ReconMatched, log.Status)
	assert.Equal(t, 2, log.TotalRecords)
	assert.Equal(t, 2, log.MatchedRecords)
	assert.Zero(t, log.UnmatchedRecords)
	require.NotNil(t, log.BatchID)
	assert.Equal(t, f.batch.ID, *log.BatchID)

	txn, err := f.store.GetTransactionByTransactionID(ctx, f.txns[0].TransactionID)
	require.NoError(t, err)
	assert.Equal(t, payment.TxnSuccess, txn.Status)
	assert.Equal(t, "000", txn.BankResponseCode)
	assert.NotEmpty(t, txn.BankReference)
	require.NotNil(t, txn.ProcessedDate)

	inv, err := f.store.GetInvoice(ctx, f.invoices[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), inv.PaidAmount)
	assert.Equal(t, payment.PaymentPaid, inv.PaymentStatus)

	batch, err := f.store.GetBatch(ctx, f.batch.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.BatchReconciled, batch.Status)
	require.NotNil(t, batch.ReconciledAt)

	// File moved out of the pickup directory.
	assert.Equal(t, "/out/archive/REC_20260116.txt", f.remote.renames["/out/REC_20260116.txt"])
	assert.Contains(t, f.trail.Entries()[len(f.trail.Entries())-1].Payload, "recon.processed")
}

func TestProcessFileRejectedRecord(t *testing.T) {
	f := newFixture(t, 1000, 2000)
	ctx := context.Background()

	f.putReconFile(t, "REC_20260116.txt", []map[string]string{
		f.detail(f.txns[0].TransactionID, "000", "COMPLETED"),
		f.detail(f.txns[1].TransactionID, "R01", "INSUFFICIENT FUNDS"),
	})

	log, err := f.engine.ProcessFile(ctx, "KB001", "REC_20260116.txt")
	require.NoError(t, err)
	assert.Equal(t, payment.ReconMatched, log.Status)
	assert.Equal(t, 1, log.MatchedRecords)
	assert.Equal(t, 1, log.FailedRecords)
	assert.Zero(t, log.UnmatchedRecords)

	txn, err := f.store.GetTransactionByTransactionID(ctx, f.txns[1].TransactionID)
	require.NoError(t, err)
	assert.Equal(t, payment.TxnRejected, txn.Status)

	// A rejected payment leaves its invoice open.
	inv, err := f.store.GetInvoice(ctx, f.invoices[1].ID)
	require.NoError(t, err)
	assert.Zero(t, inv.PaidAmount)
	assert.Equal(t, payment.PaymentPending, inv.PaymentStatus)

	// Every transaction has a final outcome, so the batch settles.
	batch, err := f.store.GetBatch(ctx, f.batch.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.BatchReconciled, batch.Status)
}

func TestProcessFileCountsOnlySettledAsMatched(t *testing.T) {
	f := newFixture(t, 1000, 2000, 1500)
	ctx := context.Background()

	f.putReconFile(t, "REC_20260116.txt", []map[string]string{
		f.detail(f.txns[0].TransactionID, "000", "COMPLETED"),
		f.detail(f.txns[1].TransactionID, "000", "COMPLETED"),
		f.detail(f.txns[2].TransactionID, "E03", "ACCOUNT CLOSED"),
	})

	log, err := f.engine.ProcessFile(ctx, "KB001", "REC_20260116.txt")
	require.NoError(t, err)
	assert.Equal(t, 3, log.TotalRecords)
	assert.Equal(t, 2, log.MatchedRecords)
	assert.Equal(t, 1, log.FailedRecords)
	assert.Zero(t, log.UnmatchedRecords)

	// Reprocessing after a re-send reports the same counts.
	log.Status = payment.ReconUnmatched
	require.NoError(t, f.store.UpdateReconLog(ctx, log))
	f.putReconFile(t, "REC_20260116.txt", []map[string]string{
		f.detail(f.txns[0].TransactionID, "000", "COMPLETED"),
		f.detail(f.txns[1].TransactionID, "000", "COMPLETED"),
		f.detail(f.txns[2].TransactionID, "E03", "ACCOUNT CLOSED"),
	})
	log, err = f.engine.ProcessFile(ctx, "KB001", "REC_20260116.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, log.MatchedRecords)
	assert.Equal(t, 1, log.FailedRecords)
}

func TestProcessFileUnknownTransaction(t *testing.T) {
	f := newFixture(t, 1000, 2000)
	ctx := context.Background()

	f.putReconFile(t, "REC_20260116.txt", []map[string]string{
		f.detail(f.txns[0].TransactionID, "000", "COMPLETED"),
		f.detail("KB00120260115009999", "000", "COMPLETED"),
	})

	log, err := f.engine.ProcessFile(ctx, "KB001", "REC_20260116.txt")
	require.NoError(t, err)
	assert.Equal(t, payment.ReconUnmatched, log.Status)
	assert.Equal(t, 1, log.MatchedRecords)
	assert.Equal(t, 1, log.UnmatchedRecords)

	// Second transaction never showed up, batch keeps waiting.
	batch, err := f.store.GetBatch(ctx, f.batch.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.BatchProcessing, batch.Status)
}

func TestProcessFileParseErrorParksForReview(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	// Trailer declares more records than the file holds.
	f.remote.files["/out/REC_20260116.txt"] = []byte("H20260116KB001\r\nT000005\r\n")

	_, err := f.engine.ProcessFile(ctx, "KB001", "REC_20260116.txt")
	require.Error(t, err)

	log, err := f.store.GetReconLogByFileName(ctx, "KB001", "REC_20260116.txt")
	require.NoError(t, err)
	assert.Equal(t, payment.ReconManualReview, log.Status)
	assert.NotEmpty(t, log.ErrorDetails)

	// Nothing settled, nothing archived.
	txn, err := f.store.GetTransactionByTransactionID(ctx, f.txns[0].TransactionID)
	require.NoError(t, err)
	assert.Equal(t, payment.TxnPending, txn.Status)
	assert.Empty(t, f.remote.renames)
	assert.Contains(t, f.trail.Entries()[len(f.trail.Entries())-1].Payload, "recon.manual_review")
}

func TestProcessFileIdempotent(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	f.putReconFile(t, "REC_20260116.txt", []map[string]string{
		f.detail(f.txns[0].TransactionID, "000", "COMPLETED"),
	})

	_, err := f.engine.ProcessFile(ctx, "KB001", "REC_20260116.txt")
	require.NoError(t, err)
	downloads := f.remote.downloads

	log, err := f.engine.ProcessFile(ctx, "KB001", "REC_20260116.txt")
	require.NoError(t, err)
	assert.Equal(t, payment.ReconMatched, log.Status)
	assert.Equal(t, downloads, f.remote.downloads)

	inv, err := f.store.GetInvoice(ctx, f.invoices[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), inv.PaidAmount)
}

func TestProcessFileRedrivesCorrectedFile(t *testing.T) {
	f := newFixture(t, 1000, 2000)
	ctx := context.Background()

	// First drop has a typo in one transaction id.
	f.putReconFile(t, "REC_20260116.txt", []map[string]string{
		f.detail(f.txns[0].TransactionID, "000", "COMPLETED"),
		f.detail("KB00120260115009999", "000", "COMPLETED"),
	})
	log, err := f.engine.ProcessFile(ctx, "KB001", "REC_20260116.txt")
	require.NoError(t, err)
	require.Equal(t, payment.ReconUnmatched, log.Status)

	// Bank re-sends the corrected file under the same name.
	f.putReconFile(t, "REC_20260116.txt", []map[string]string{
		f.detail(f.txns[0].TransactionID, "000", "COMPLETED"),
		f.detail(f.txns[1].TransactionID, "000", "COMPLETED"),
	})
	log, err = f.engine.ProcessFile(ctx, "KB001", "REC_20260116.txt")
	require.NoError(t, err)
	assert.Equal(t, payment.ReconMatched, log.Status)
	assert.Equal(t, 2, log.MatchedRecords)

	// The record settled in the first pass is not applied twice.
	inv, err := f.store.GetInvoice(ctx, f.invoices[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), inv.PaidAmount)

	batch, err := f.store.GetBatch(ctx, f.batch.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.BatchReconciled, batch.Status)
}

func TestRun(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	f.putReconFile(t, "REC_20260116.txt", []map[string]string{
		f.detail(f.txns[0].TransactionID, "000", "COMPLETED"),
	})

	n, err := f.engine.Run(ctx, "KB001")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Everything new has been consumed.
	n, err = f.engine.Run(ctx, "KB001")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestResolve(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	f.remote.files["/out/REC_20260116.txt"] = []byte("garbage")
	_, err := f.engine.ProcessFile(ctx, "KB001", "REC_20260116.txt")
	require.Error(t, err)

	log, err := f.store.GetReconLogByFileName(ctx, "KB001", "REC_20260116.txt")
	require.NoError(t, err)

	require.NoError(t, f.engine.Resolve(ctx, log.ID, "bank confirmed file was corrupt"))
	log, err = f.store.GetReconLog(ctx, log.ID)
	require.NoError(t, err)
	assert.Equal(t, payment.ReconResolved, log.Status)
	assert.Contains(t, log.ErrorDetails, "bank confirmed file was corrupt")

	// Resolving twice is an invalid transition.
	err = f.engine.Resolve(ctx, log.ID, "again")
	var terr *payment.InvalidStateTransitionError
	assert.ErrorAs(t, err, &terr)
}

func TestReport(t *testing.T) {
	f := newFixture(t, 1000)
	ctx := context.Background()

	f.putReconFile(t, "REC_20260116.txt", []map[string]string{
		f.detail(f.txns[0].TransactionID, "000", "COMPLETED"),
	})
	_, err := f.engine.ProcessFile(ctx, "KB001", "REC_20260116.txt")
	require.NoError(t, err)

	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	report, err := f.engine.Report(ctx, "KB001", from, to)
	require.NoError(t, err)
	assert.Equal(t, 1, report.BatchCounts[payment.BatchReconciled])
	assert.Equal(t, 1, report.TransactionCounts[payment.TxnSuccess])
	assert.Equal(t, int64(1000), report.TotalAmount)
}
