package transport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/bank-settlement/internal/bank"
	"github.com/example/bank-settlement/internal/breaker"
)

type fakeSession struct {
	files  map[string][]byte
	failOp error
	closed bool
}

func (s *fakeSession) Put(path string, data []byte) error {
	if s.failOp != nil {
		return s.failOp
	}
	s.files[path] = data
	return nil
}

func (s *fakeSession) Get(path string) ([]byte, error) {
	if s.failOp != nil {
		return nil, s.failOp
	}
	data, ok := s.files[path]
	if !ok {
		return nil, errors.New("no such file")
	}
	return data, nil
}

func (s *fakeSession) List(string) ([]string, error) {
	if s.failOp != nil {
		return nil, s.failOp
	}
	var names []string
	for name := range s.files {
		names = append(names, name)
	}
	return names, nil
}

func (s *fakeSession) Rename(oldPath, newPath string) error {
	if s.failOp != nil {
		return s.failOp
	}
	s.files[newPath] = s.files[oldPath]
	delete(s.files, oldPath)
	return nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeDialer struct {
	session Session
	dialErr error
	dials   int
}

func (d *fakeDialer) Dial(ctx context.Context, cfg *bank.Config) (Session, error) {
	d.dials++
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	return d.session, nil
}

func testConfig() *bank.Config {
	return &bank.Config{
		BankCode:         "KB001",
		Host:             "sftp.kb001.example",
		Port:             22,
		Username:         "settle",
		Password:         "secret",
		FailureThreshold: 2,
		CooldownSeconds:  60,
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTransport(d Dialer) *Transport {
	return New(d, breaker.NewRegistry(), testLogger(), Options{Timeout: time.Second, PoolSize: 1})
}

func TestUploadAndDownload(t *testing.T) {
	sess := &fakeSession{files: map[string][]byte{}}
	dialer := &fakeDialer{session: sess}
	tr := newTestTransport(dialer)

	err := tr.Upload(context.Background(), testConfig(), "/in/PAY_20260115.txt", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), sess.files["/in/PAY_20260115.txt"])
	// Scoped acquisition: the session is released after the operation.
	assert.True(t, sess.closed)

	data, err := tr.Download(context.Background(), testConfig(), "/in/PAY_20260115.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)
	assert.Equal(t, 2, dialer.dials)
}

func TestSessionReleasedOnFailure(t *testing.T) {
	sess := &fakeSession{files: map[string][]byte{}, failOp: errors.New("permission denied")}
	tr := newTestTransport(&fakeDialer{session: sess})

	err := tr.Upload(context.Background(), testConfig(), "/in/x.txt", []byte("x"))
	require.Error(t, err)
	assert.True(t, sess.closed)
}

func TestBreakerTripsAfterConsecutiveFailures(t *testing.T) {
	dialer := &fakeDialer{dialErr: errors.New("connection refused")}
	tr := newTestTransport(dialer)
	cfg := testConfig() // threshold 2

	require.Error(t, tr.Upload(context.Background(), cfg, "/in/x.txt", nil))
	require.Error(t, tr.Upload(context.Background(), cfg, "/in/x.txt", nil))
	assert.Equal(t, 2, dialer.dials)

	// Breaker is open: the call fails fast with no dial attempt.
	err := tr.Upload(context.Background(), cfg, "/in/x.txt", nil)
	var openErr *breaker.CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	assert.Equal(t, 2, dialer.dials)
}

func TestBreakerIsolationBetweenBanks(t *testing.T) {
	dialer := &fakeDialer{dialErr: errors.New("connection refused")}
	tr := newTestTransport(dialer)

	kb := testConfig()
	kb.FailureThreshold = 1
	require.Error(t, tr.Upload(context.Background(), kb, "/in/x.txt", nil))

	var openErr *breaker.CircuitOpenError
	require.ErrorAs(t, tr.Upload(context.Background(), kb, "/in/x.txt", nil), &openErr)

	// The other bank still gets real attempts.
	sh := testConfig()
	sh.BankCode = "SH002"
	dialsBefore := dialer.dials
	require.Error(t, tr.Upload(context.Background(), sh, "/in/x.txt", nil))
	assert.Equal(t, dialsBefore+1, dialer.dials)
}

func TestSuccessResetsBreaker(t *testing.T) {
	sess := &fakeSession{files: map[string][]byte{}}
	dialer := &fakeDialer{session: sess, dialErr: errors.New("timeout")}
	tr := newTestTransport(dialer)
	cfg := testConfig() // threshold 2

	require.Error(t, tr.Upload(context.Background(), cfg, "/in/x.txt", nil))

	dialer.dialErr = nil
	require.NoError(t, tr.Upload(context.Background(), cfg, "/in/x.txt", []byte("x")))

	// Counter was reset; one new failure must not trip the threshold of 2.
	dialer.dialErr = errors.New("timeout")
	require.Error(t, tr.Upload(context.Background(), cfg, "/in/x.txt", nil))
	dialer.dialErr = nil
	require.NoError(t, tr.Upload(context.Background(), cfg, "/in/x.txt", []byte("x")))
}

// hungSession blocks every operation until the session is closed, the
// way a dead SFTP server with an open TCP connection behaves.
type hungSession struct {
	closed    chan struct{}
	closeOnce sync.Once
}

func newHungSession() *hungSession { return &hungSession{closed: make(chan struct{})} }

func (s *hungSession) wait() error {
	<-s.closed
	return errors.New("connection closed")
}

func (s *hungSession) Put(string, []byte) error      { return s.wait() }
func (s *hungSession) Get(string) ([]byte, error)    { return nil, s.wait() }
func (s *hungSession) List(string) ([]string, error) { return nil, s.wait() }
func (s *hungSession) Rename(string, string) error   { return s.wait() }
func (s *hungSession) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func TestOperationTimeoutClosesHungSession(t *testing.T) {
	sess := newHungSession()
	dialer := &fakeDialer{session: sess}
	tr := New(dialer, breaker.NewRegistry(), testLogger(),
		Options{Timeout: 50 * time.Millisecond, PoolSize: 1})
	cfg := testConfig()

	start := time.Now()
	err := tr.Upload(context.Background(), cfg, "/in/x.txt", []byte("x"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)

	select {
	case <-sess.closed:
	default:
		t.Fatal("hung session was not closed")
	}

	// The pool slot came back: the next call gets through immediately.
	dialer.session = &fakeSession{files: map[string][]byte{}}
	require.NoError(t, tr.Upload(context.Background(), cfg, "/in/x.txt", []byte("x")))
}

func TestCancelledContextDoesNotFeedBreaker(t *testing.T) {
	sess := &fakeSession{files: map[string][]byte{}}
	tr := newTestTransport(&fakeDialer{session: sess})
	cfg := testConfig()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tr.Upload(ctx, cfg, "/in/x.txt", nil)
	require.ErrorIs(t, err, context.Canceled)

	// Next call with a live context goes straight through.
	require.NoError(t, tr.Upload(context.Background(), cfg, "/in/x.txt", []byte("x")))
}
