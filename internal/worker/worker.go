// Package worker runs the periodic settlement loops: re-driving due
// upload retries and polling every active bank for reconciliation
// files.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/example/bank-settlement/internal/store"
)

// Retrier sweeps batches whose retry timer has come due.
type Retrier interface {
	ProcessDueRetries(ctx context.Context) (int, error)
}

// Poller checks one bank for new reconciliation files.
type Poller interface {
	Run(ctx context.Context, bankCode string) (int, error)
}

type Worker struct {
	store  store.Store
	upload Retrier
	recon  Poller
	logger *slog.Logger

	retryInterval time.Duration
	reconInterval time.Duration

	mu       sync.Mutex
	inFlight map[string]bool
	wg       sync.WaitGroup
}

type Config struct {
	RetryInterval time.Duration
	ReconInterval time.Duration
}

func New(st store.Store, up Retrier, rec Poller, logger *slog.Logger, cfg Config) *Worker {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Minute
	}
	if cfg.ReconInterval <= 0 {
		cfg.ReconInterval = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:         st,
		upload:        up,
		recon:         rec,
		logger:        logger,
		retryInterval: cfg.RetryInterval,
		reconInterval: cfg.ReconInterval,
		inFlight:      make(map[string]bool),
	}
}

// Run blocks until the context is cancelled, then waits for in-flight
// bank polls to finish.
func (w *Worker) Run(ctx context.Context) error {
	retryTick := time.NewTicker(w.retryInterval)
	defer retryTick.Stop()
	reconTick := time.NewTicker(w.reconInterval)
	defer reconTick.Stop()

	w.logger.Info("worker started",
		"retry_interval", w.retryInterval.String(),
		"recon_interval", w.reconInterval.String())

	for {
		select {
		case <-ctx.Done():
			w.wg.Wait()
			w.logger.Info("worker stopped")
			return ctx.Err()
		case <-retryTick.C:
			w.sweepRetries(ctx)
		case <-reconTick.C:
			w.pollBanks(ctx)
		}
	}
}

func (w *Worker) sweepRetries(ctx context.Context) {
	n, err := w.upload.ProcessDueRetries(ctx)
	if err != nil {
		w.logger.Error("retry sweep failed", "error", err.Error())
		return
	}
	if n > 0 {
		w.logger.Info("retry sweep", "batches", n)
	}
}

// pollBanks fans out one poll per active bank. A bank whose previous
// poll is still running is skipped this tick.
func (w *Worker) pollBanks(ctx context.Context) {
	configs, err := w.store.ListActiveBankConfigs(ctx)
	if err != nil {
		w.logger.Error("list active banks failed", "error", err.Error())
		return
	}
	for i := range configs {
		bankCode := configs[i].BankCode
		if !w.claim(bankCode) {
			continue
		}
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer w.release(bankCode)
			n, err := w.recon.Run(ctx, bankCode)
			if err != nil {
				w.logger.Error("reconciliation poll failed",
					"bank_code", bankCode, "error", err.Error())
				return
			}
			if n > 0 {
				w.logger.Info("reconciliation poll",
					"bank_code", bankCode, "files", n)
			}
		}()
	}
}

func (w *Worker) claim(bankCode string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.inFlight[bankCode] {
		return false
	}
	w.inFlight[bankCode] = true
	return true
}

func (w *Worker) release(bankCode string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.inFlight, bankCode)
}
