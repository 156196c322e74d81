// Package transport moves files to and from bank SFTP endpoints. Every
// operation is scoped: the connection is acquired, used for one logical
// operation, and released on every exit path. All calls are guarded by
// the bank's circuit breaker and a bounded per-bank connection pool.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/example/bank-settlement/internal/bank"
	"github.com/example/bank-settlement/internal/breaker"
)

// Session is one live SFTP connection. Implementations must be safe to
// close more than once.
type Session interface {
	Put(path string, data []byte) error
	Get(path string) ([]byte, error)
	List(dir string) ([]string, error)
	Rename(oldPath, newPath string) error
	Close() error
}

// Dialer opens an authenticated session for a bank config. The real
// implementation speaks SSH; tests substitute fakes.
type Dialer interface {
	Dial(ctx context.Context, cfg *bank.Config) (Session, error)
}

// Transport is the breaker-guarded SFTP client shared by the upload and
// reconciliation paths.
type Transport struct {
	dialer   Dialer
	breakers *breaker.Registry
	logger   *slog.Logger
	timeout  time.Duration
	poolSize int

	mu    sync.Mutex
	slots map[string]chan struct{} // per-bank bounded connection slots
}

// Options tune the transport.
type Options struct {
	Timeout  time.Duration // per-operation wall clock budget
	PoolSize int           // max concurrent connections per bank
}

// New creates a transport over the given dialer and breaker registry.
func New(dialer Dialer, breakers *breaker.Registry, logger *slog.Logger, opts Options) *Transport {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = 2
	}
	return &Transport{
		dialer:   dialer,
		breakers: breakers,
		logger:   logger,
		timeout:  opts.Timeout,
		poolSize: opts.PoolSize,
		slots:    make(map[string]chan struct{}),
	}
}

func (t *Transport) slotFor(bankCode string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.slots[bankCode]
	if !ok {
		s = make(chan struct{}, t.poolSize)
		t.slots[bankCode] = s
	}
	return s
}

// withSession runs one operation inside a scoped connection. The breaker
// is consulted before any I/O; success resets it, failure feeds it.
func (t *Transport) withSession(ctx context.Context, cfg *bank.Config, op string, fn func(Session) error) error {
	br := t.breakers.For(cfg.BankCode, cfg.FailureThreshold, cfg.Cooldown())
	if err := br.Allow(); err != nil {
		t.logger.Warn("sftp call rejected", "bank", cfg.BankCode, "op", op, "error", err)
		return err
	}

	// A cancelled caller never reaches the wire and never feeds the breaker.
	if err := ctx.Err(); err != nil {
		return err
	}
	slot := t.slotFor(cfg.BankCode)
	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-slot }()

	opCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	sess, err := t.dialer.Dial(opCtx, cfg)
	if err != nil {
		br.Failure()
		t.logger.Error("sftp connect failed", "bank", cfg.BankCode, "op", op, "error", err)
		return fmt.Errorf("connect to bank %s: %w", cfg.BankCode, err)
	}
	defer sess.Close()

	// The transfer itself must respect the operation budget. Closing the
	// session is what unblocks a hung fn; the goroutine then drains into
	// the buffered channel.
	done := make(chan error, 1)
	go func() { done <- fn(sess) }()
	select {
	case err = <-done:
	case <-opCtx.Done():
		sess.Close()
		err = opCtx.Err()
	}
	if err != nil {
		br.Failure()
		t.logger.Error("sftp operation failed", "bank", cfg.BankCode, "op", op, "error", err)
		return fmt.Errorf("%s on bank %s: %w", op, cfg.BankCode, err)
	}

	br.Success()
	t.logger.Info("sftp operation ok",
		"bank", cfg.BankCode, "op", op, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Upload writes a file to the bank.
func (t *Transport) Upload(ctx context.Context, cfg *bank.Config, remotePath string, data []byte) error {
	return t.withSession(ctx, cfg, "put", func(s Session) error {
		return s.Put(remotePath, data)
	})
}

// Download fetches a file from the bank.
func (t *Transport) Download(ctx context.Context, cfg *bank.Config, remotePath string) ([]byte, error) {
	var data []byte
	err := t.withSession(ctx, cfg, "get", func(s Session) error {
		var err error
		data, err = s.Get(remotePath)
		return err
	})
	return data, err
}

// ListDir lists file names in a remote directory.
func (t *Transport) ListDir(ctx context.Context, cfg *bank.Config, dir string) ([]string, error) {
	var names []string
	err := t.withSession(ctx, cfg, "list", func(s Session) error {
		var err error
		names, err = s.List(dir)
		return err
	})
	return names, err
}

// Rename moves a remote file, used to archive processed reconciliations.
func (t *Transport) Rename(ctx context.Context, cfg *bank.Config, oldPath, newPath string) error {
	return t.withSession(ctx, cfg, "rename", func(s Session) error {
		return s.Rename(oldPath, newPath)
	})
}
