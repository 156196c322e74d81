// Package breaker isolates a failing bank endpoint. Each bank code gets
// its own breaker; breakers never share state across banks, so one
// institution's outage cannot block another's settlement window.
package breaker

import (
	"fmt"
	"sync"
	"time"
)

// State is the breaker position.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// CircuitOpenError is returned while the breaker is open. Callers see it
// before any network I/O happens and it never consumes retry budget.
type CircuitOpenError struct {
	BankCode   string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit open for bank %s, retry after %s", e.BankCode, e.RetryAfter.Round(time.Second))
}

// Clock abstracts time for deterministic cooldown tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Breaker is a per-bank failure-isolation state machine:
// CLOSED -> OPEN after Threshold consecutive failures, OPEN -> HALF_OPEN
// once Cooldown elapses, HALF_OPEN -> CLOSED on a successful probe or back
// to OPEN (restarting the cooldown) on a failed one.
type Breaker struct {
	bankCode  string
	threshold int
	cooldown  time.Duration
	clock     Clock

	mu         sync.Mutex
	state      State
	failures   int
	openedAt   time.Time
	probeInUse bool
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithClock injects a test clock.
func WithClock(c Clock) Option {
	return func(b *Breaker) { b.clock = c }
}

// New creates a closed breaker for one bank.
func New(bankCode string, threshold int, cooldown time.Duration, opts ...Option) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = time.Minute
	}
	b := &Breaker{
		bankCode:  bankCode,
		threshold: threshold,
		cooldown:  cooldown,
		clock:     realClock{},
		state:     StateClosed,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Allow reports whether a call may proceed. While open it fails fast with
// CircuitOpenError. After the cooldown it admits exactly one half-open
// probe; concurrent callers keep failing fast until the probe reports.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		elapsed := b.clock.Now().Sub(b.openedAt)
		if elapsed < b.cooldown {
			return &CircuitOpenError{BankCode: b.bankCode, RetryAfter: b.cooldown - elapsed}
		}
		b.state = StateHalfOpen
		b.probeInUse = true
		return nil
	case StateHalfOpen:
		if b.probeInUse {
			return &CircuitOpenError{BankCode: b.bankCode, RetryAfter: b.cooldown}
		}
		b.probeInUse = true
		return nil
	}
	return nil
}

// Success records a successful call, closing the breaker and resetting
// the consecutive-failure counter.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
	b.probeInUse = false
}

// Failure records a failed call. In CLOSED it counts toward the
// threshold; in HALF_OPEN the failed probe reopens the breaker and
// restarts the cooldown.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.trip()
	case StateClosed:
		b.failures++
		if b.failures >= b.threshold {
			b.trip()
		}
	}
}

func (b *Breaker) trip() {
	b.state = StateOpen
	b.openedAt = b.clock.Now()
	b.probeInUse = false
}

// State returns the current position, accounting for an elapsed cooldown.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.clock.Now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Registry hands out one breaker per bank code.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	opts     []Option
}

// NewRegistry creates an empty breaker registry. Options apply to every
// breaker the registry creates.
func NewRegistry(opts ...Option) *Registry {
	return &Registry{breakers: make(map[string]*Breaker), opts: opts}
}

// For returns the breaker for a bank, creating it on first use with the
// given policy. The policy of an existing breaker is not changed.
func (r *Registry) For(bankCode string, threshold int, cooldown time.Duration) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[bankCode]; ok {
		return b
	}
	b := New(bankCode, threshold, cooldown, r.opts...)
	r.breakers[bankCode] = b
	return b
}
