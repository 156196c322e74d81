package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Kind identifies what happened to a settlement object.
type Kind string

const (
	KindBatchCreated   Kind = "batch.created"
	KindBatchCancelled Kind = "batch.cancelled"
	KindFileGenerated  Kind = "file.generated"
	KindFileUploaded   Kind = "file.uploaded"
	KindUploadFailed   Kind = "upload.failed"
	KindReconProcessed Kind = "recon.processed"
	KindReconReview    Kind = "recon.manual_review"
	KindReconResolved  Kind = "recon.resolved"
	KindTxnRefunded    Kind = "transaction.refunded"
)

// Event is the audit payload before it is chained.
type Event struct {
	Kind     Kind   `json:"kind"`
	BankCode string `json:"bank_code,omitempty"`
	Ref      string `json:"ref"` // batch number, file name or transaction id
	Detail   string `json:"detail,omitempty"`
}

// Entry is a chained audit record. Each entry's hash covers the
// previous entry's hash, so rewriting history breaks verification.
type Entry struct {
	Timestamp    string `json:"timestamp"`
	PreviousHash string `json:"previous_hash"`
	Payload      string `json:"payload"`
	Hash         string `json:"hash"`
}

// Recorder is what settlement components depend on. A nil *Trail is a
// valid Recorder that drops everything, so wiring audit is optional.
type Recorder interface {
	Record(ev Event)
}

// Trail is a tamper-evident audit log using hash chaining.
type Trail struct {
	mu       sync.Mutex
	prevHash string
	entries  []Entry
}

func NewTrail() *Trail {
	return &Trail{prevHash: strings.Repeat("0", 64)}
}

// Record appends the event to the chain.
func (t *Trail) Record(ev Event) {
	if t == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		payload = []byte(fmt.Sprintf(`{"kind":%q,"ref":"marshal failed"}`, ev.Kind))
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	entry := Entry{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		PreviousHash: t.prevHash,
		Payload:      string(payload),
	}
	entry.Hash = entryHash(entry)
	t.prevHash = entry.Hash
	t.entries = append(t.entries, entry)
}

// Entries returns a snapshot of the chain.
func (t *Trail) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func entryHash(e Entry) string {
	sum := sha256.Sum256([]byte(e.PreviousHash + "|" + e.Timestamp + "|" + e.Payload))
	return hex.EncodeToString(sum[:])
}

// Verify checks that the entries form an unbroken hash chain.
func Verify(entries []Entry) bool {
	for i, entry := range entries {
		if i > 0 && entry.PreviousHash != entries[i-1].Hash {
			return false
		}
		if entryHash(entry) != entry.Hash {
			return false
		}
	}
	return true
}
