// Package resilience provides the failover primitives the provider clients
// are built on: a three-state circuit breaker and an ordered provider chain
// with a per-entry breaker. A provider that repeatedly fails to serve is
// bypassed until its cooldown elapses, so fallbacks take over without every
// call paying the primary's failure latency.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Do] while the breaker is open and
// its cooldown has not elapsed.
var ErrBreakerOpen = errors.New("resilience: breaker is open")

// breakerState is the breaker's operating mode.
type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

func (s breakerState) String() string {
	switch s {
	case stateClosed:
		return "closed"
	case stateOpen:
		return "open"
	case stateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig holds the tuning knobs for a [Breaker]. Zero values are
// replaced with defaults in [NewBreaker].
type BreakerConfig struct {
	// Name labels the breaker in log messages.
	Name string

	// Trip is the number of consecutive failures that opens the breaker.
	// Default: 5.
	Trip int

	// Cooldown is how long the breaker stays open before probing again.
	// Default: 30s.
	Cooldown time.Duration

	// Probes is how many consecutive probe successes close a half-open
	// breaker. Any probe failure re-opens it. Default: 2.
	Probes int
}

// Breaker is a three-state circuit breaker (closed, open, half-open).
type Breaker struct {
	name     string
	trip     int
	cooldown time.Duration
	probes   int

	mu        sync.Mutex
	state     breakerState
	failures  int
	successes int
	openedAt  time.Time
}

// NewBreaker creates a Breaker from cfg, filling in defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Trip <= 0 {
		cfg.Trip = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 2
	}
	return &Breaker{
		name:     cfg.Name,
		trip:     cfg.Trip,
		cooldown: cfg.Cooldown,
		probes:   cfg.Probes,
	}
}

// Do runs fn unless the breaker is open. While open, calls fail fast with
// [ErrBreakerOpen] until the cooldown elapses; the first call after that is a
// probe.
func (b *Breaker) Do(fn func() error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn()
	b.record(err)
	return err
}

// admit decides whether a call may proceed and advances open → half-open.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateOpen {
		if time.Since(b.openedAt) < b.cooldown {
			return ErrBreakerOpen
		}
		b.state = stateHalfOpen
		b.successes = 0
		slog.Info("breaker probing", "breaker", b.name)
	}
	return nil
}

// record applies a call outcome to the state machine.
func (b *Breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.failures++
		if b.state == stateHalfOpen || b.failures >= b.trip {
			if b.state != stateOpen {
				slog.Warn("breaker opened", "breaker", b.name, "failures", b.failures)
			}
			b.state = stateOpen
			b.openedAt = time.Now()
			b.successes = 0
		}
		return
	}

	b.failures = 0
	if b.state == stateHalfOpen {
		b.successes++
		if b.successes >= b.probes {
			b.state = stateClosed
			slog.Info("breaker closed", "breaker", b.name)
		}
	}
}

// Open reports whether calls would currently fail fast.
func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateOpen && time.Since(b.openedAt) < b.cooldown
}

// Reset forces the breaker back to closed, clearing all counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = stateClosed
	b.failures = 0
	b.successes = 0
}
