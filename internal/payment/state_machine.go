package payment

import (
	"fmt"
)

// InvalidStateTransitionError reports a transition not present in the
// allowed-transition table for an entity.
type InvalidStateTransitionError struct {
	Entity string
	ID     string
	From   string
	To     string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid %s transition from %s to %s for %s", e.Entity, e.From, e.To, e.ID)
}

// AllowedBatchTransitions defines the valid batch state transitions.
// CANCELLED is reachable only before any bytes have left the building;
// RECONCILED and CANCELLED are terminal.
func AllowedBatchTransitions() map[BatchStatus][]BatchStatus {
	return map[BatchStatus][]BatchStatus{
		BatchDraft:      {BatchGenerated, BatchCancelled},
		BatchGenerated:  {BatchUploaded, BatchFailed, BatchCancelled},
		BatchUploaded:   {BatchProcessing, BatchReconciled, BatchFailed},
		BatchProcessing: {BatchReconciled, BatchFailed},
		BatchFailed:     {BatchGenerated}, // operator re-drive after fixing the cause
		BatchReconciled: {},
		BatchCancelled:  {},
	}
}

// AllowedTransactionTransitions defines the valid transaction outcomes.
// REFUNDED is a manual, externally triggered follow-up to SUCCESS.
func AllowedTransactionTransitions() map[TransactionStatus][]TransactionStatus {
	return map[TransactionStatus][]TransactionStatus{
		TxnPending:  {TxnSuccess, TxnFailed, TxnRejected},
		TxnSuccess:  {TxnRefunded},
		TxnFailed:   {},
		TxnRejected: {},
		TxnRefunded: {},
	}
}

// AllowedReconLogTransitions defines the reconciliation log lifecycle.
// RESOLVED is the manual close-out of anything that needed a human.
// Going back to PENDING re-drives a file the bank has re-sent under
// the same name.
func AllowedReconLogTransitions() map[ReconLogStatus][]ReconLogStatus {
	return map[ReconLogStatus][]ReconLogStatus{
		ReconPending:      {ReconMatched, ReconUnmatched, ReconManualReview},
		ReconUnmatched:    {ReconResolved, ReconPending},
		ReconManualReview: {ReconResolved, ReconPending},
		ReconMatched:      {},
		ReconResolved:     {},
	}
}

func contains[S ~string](list []S, v S) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// TransitionBatch moves a batch to the target status, rejecting any
// transition not in the allowed table.
func TransitionBatch(b *PaymentBatch, to BatchStatus) error {
	if !contains(AllowedBatchTransitions()[b.Status], to) {
		return &InvalidStateTransitionError{
			Entity: "batch",
			ID:     b.BatchNumber,
			From:   string(b.Status),
			To:     string(to),
		}
	}
	b.Status = to
	return nil
}

// TransitionTransaction moves a transaction to the target status.
func TransitionTransaction(t *PaymentTransaction, to TransactionStatus) error {
	if !contains(AllowedTransactionTransitions()[t.Status], to) {
		return &InvalidStateTransitionError{
			Entity: "transaction",
			ID:     t.TransactionID,
			From:   string(t.Status),
			To:     string(to),
		}
	}
	t.Status = to
	return nil
}

// TransitionReconLog moves a reconciliation log to the target status.
func TransitionReconLog(l *ReconciliationLog, to ReconLogStatus) error {
	if !contains(AllowedReconLogTransitions()[l.Status], to) {
		return &InvalidStateTransitionError{
			Entity: "reconciliation_log",
			ID:     l.FileName,
			From:   string(l.Status),
			To:     string(to),
		}
	}
	l.Status = to
	return nil
}

// IsTerminalBatch reports whether the batch can no longer change.
func IsTerminalBatch(s BatchStatus) bool {
	return len(AllowedBatchTransitions()[s]) == 0
}
