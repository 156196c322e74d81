package payment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowedBatchTransitions(t *testing.T) {
	allowed := AllowedBatchTransitions()

	assert.Contains(t, allowed[BatchDraft], BatchGenerated)
	assert.Contains(t, allowed[BatchDraft], BatchCancelled)
	assert.NotContains(t, allowed[BatchDraft], BatchUploaded)

	assert.Contains(t, allowed[BatchGenerated], BatchUploaded)
	assert.Contains(t, allowed[BatchGenerated], BatchCancelled)

	// Once bytes are in flight, cancellation is no longer possible.
	assert.NotContains(t, allowed[BatchUploaded], BatchCancelled)
	assert.NotContains(t, allowed[BatchProcessing], BatchCancelled)

	// Terminal states.
	assert.Empty(t, allowed[BatchReconciled])
	assert.Empty(t, allowed[BatchCancelled])
}

func TestTransitionBatch(t *testing.T) {
	b := &PaymentBatch{BatchNumber: "KB001-20260115-001", Status: BatchDraft}

	require.NoError(t, TransitionBatch(b, BatchGenerated))
	require.NoError(t, TransitionBatch(b, BatchUploaded))
	require.NoError(t, TransitionBatch(b, BatchProcessing))
	require.NoError(t, TransitionBatch(b, BatchReconciled))
	assert.Equal(t, BatchReconciled, b.Status)

	err := TransitionBatch(b, BatchFailed)
	require.Error(t, err)

	var stErr *InvalidStateTransitionError
	require.ErrorAs(t, err, &stErr)
	assert.Equal(t, "batch", stErr.Entity)
	assert.Equal(t, string(BatchReconciled), stErr.From)
	// The failed transition must not mutate the batch.
	assert.Equal(t, BatchReconciled, b.Status)
}

func TestTransitionBatch_SkipNotAllowed(t *testing.T) {
	b := &PaymentBatch{BatchNumber: "KB001-20260115-001", Status: BatchDraft}
	err := TransitionBatch(b, BatchUploaded)
	require.Error(t, err)
	assert.Equal(t, BatchDraft, b.Status)
}

func TestTransitionTransaction(t *testing.T) {
	txn := &PaymentTransaction{TransactionID: "0001", Status: TxnPending}

	require.NoError(t, TransitionTransaction(txn, TxnSuccess))
	require.NoError(t, TransitionTransaction(txn, TxnRefunded))

	// Refunded is terminal.
	assert.Error(t, TransitionTransaction(txn, TxnSuccess))

	failed := &PaymentTransaction{TransactionID: "0002", Status: TxnFailed}
	assert.Error(t, TransitionTransaction(failed, TxnSuccess))
}

func TestTransitionReconLog(t *testing.T) {
	l := &ReconciliationLog{FileName: "REC_20260115.txt", Status: ReconPending}

	require.NoError(t, TransitionReconLog(l, ReconManualReview))
	require.NoError(t, TransitionReconLog(l, ReconResolved))
	assert.Error(t, TransitionReconLog(l, ReconMatched))

	m := &ReconciliationLog{FileName: "REC_20260116.txt", Status: ReconPending}
	require.NoError(t, TransitionReconLog(m, ReconMatched))
	// Matched is terminal; a matched file is never reprocessed.
	assert.Error(t, TransitionReconLog(m, ReconResolved))
}

func TestRecomputePaymentStatus(t *testing.T) {
	inv := &Invoice{TotalAmount: 4500, PaymentStatus: PaymentPending}

	RecomputePaymentStatus(inv)
	assert.Equal(t, PaymentPending, inv.PaymentStatus)

	inv.PaidAmount = 1000
	RecomputePaymentStatus(inv)
	assert.Equal(t, PaymentPartial, inv.PaymentStatus)

	inv.PaidAmount = 4500
	RecomputePaymentStatus(inv)
	assert.Equal(t, PaymentPaid, inv.PaymentStatus)

	assert.Equal(t, int64(0), inv.UnpaidBalance())
}
