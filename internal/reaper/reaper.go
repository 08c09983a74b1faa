// Package reaper runs the background sweeps that keep the relay from
// leaking: idle ASR handles, stale synthesis streams and cache entries, idle
// sessions, and abandoned pairing queue entries.
package reaper

import (
	"context"
	"log/slog"
	"time"
)

// task is one registered sweep. Sweep returns how many items it reaped.
type task struct {
	name  string
	sweep func(now time.Time) int
}

// Reaper drives all registered sweeps on a fixed cadence.
type Reaper struct {
	cadence time.Duration
	tasks   []task
	log     *slog.Logger
	now     func() time.Time
}

// New creates a reaper. Register sweeps before calling Run.
func New(cadence time.Duration) *Reaper {
	return &Reaper{
		cadence: cadence,
		log:     slog.Default().With("component", "reaper"),
		now:     time.Now,
	}
}

// Register adds a named sweep. Not safe to call after Run starts.
func (r *Reaper) Register(name string, sweep func(now time.Time) int) {
	r.tasks = append(r.tasks, task{name: name, sweep: sweep})
}

// Run sweeps on the cadence until ctx is cancelled. Always returns nil so it
// can sit in an errgroup without taking the process down.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cadence)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.sweepAll()
		case <-ctx.Done():
			return nil
		}
	}
}

// sweepAll runs every registered sweep once.
func (r *Reaper) sweepAll() {
	now := r.now()
	for _, t := range r.tasks {
		if n := t.sweep(now); n > 0 {
			r.log.Info("sweep reaped items", "task", t.name, "count", n)
		}
	}
}
