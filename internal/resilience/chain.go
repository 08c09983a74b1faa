package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every entry in a [Chain] fails or is
// breaker-open.
var ErrAllFailed = errors.New("resilience: all providers failed")

// chainEntry pairs a provider value with its dedicated breaker.
type chainEntry[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Chain is an ordered list of same-typed providers, each guarded by its own
// circuit breaker. Entries are tried in registration order; breaker-open
// entries are skipped without paying their failure latency.
//
// Chain is safe for concurrent use after construction; Add must not race
// with Try.
type Chain[T any] struct {
	entries []chainEntry[T]
	breaker BreakerConfig
}

// NewChain creates an empty chain whose per-entry breakers share cfg.
func NewChain[T any](cfg BreakerConfig) *Chain[T] {
	return &Chain[T]{breaker: cfg}
}

// Add appends a named provider to the chain.
func (c *Chain[T]) Add(name string, value T) {
	cfg := c.breaker
	cfg.Name = name
	c.entries = append(c.entries, chainEntry[T]{
		name:    name,
		value:   value,
		breaker: NewBreaker(cfg),
	})
}

// Len returns the number of registered providers.
func (c *Chain[T]) Len() int { return len(c.entries) }

// Names returns the provider names in chain order.
func (c *Chain[T]) Names() []string {
	out := make([]string, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.name
	}
	return out
}

// Try runs fn against each entry in order until one succeeds. The winning
// entry's name is passed back so callers can log which provider served.
// Returns [ErrAllFailed] wrapping the last error when nothing succeeds.
func Try[T, R any](c *Chain[T], fn func(name string, value T) (R, error)) (R, error) {
	var (
		zero    R
		lastErr error = ErrBreakerOpen
	)
	for i := range c.entries {
		entry := &c.entries[i]
		var result R
		err := entry.breaker.Do(func() error {
			var innerErr error
			result, innerErr = fn(entry.name, entry.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping provider, breaker open", "provider", entry.name)
		} else {
			slog.Warn("provider failed, trying next", "provider", entry.name, "error", err)
		}
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}
