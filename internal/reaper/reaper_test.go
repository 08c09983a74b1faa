package reaper

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestRun_SweepsOnCadence(t *testing.T) {
	r := New(10 * time.Millisecond)

	var swept atomic.Int32
	r.Register("counting", func(time.Time) int {
		swept.Add(1)
		return 0
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := r.Run(ctx); err != nil {
			t.Errorf("Run: %v", err)
		}
	}()

	deadline := time.After(2 * time.Second)
	for swept.Load() < 3 {
		select {
		case <-deadline:
			t.Fatal("sweeps did not run")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done
}

func TestSweepAll_RunsEveryTask(t *testing.T) {
	r := New(time.Hour)
	r.now = func() time.Time { return time.Unix(100, 0) }

	var sawNow time.Time
	ran := 0
	r.Register("a", func(now time.Time) int { ran++; sawNow = now; return 1 })
	r.Register("b", func(time.Time) int { ran++; return 0 })

	r.sweepAll()
	if ran != 2 {
		t.Errorf("tasks run = %d, want 2", ran)
	}
	if !sawNow.Equal(time.Unix(100, 0)) {
		t.Errorf("sweep time = %v", sawNow)
	}
}
