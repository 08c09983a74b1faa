package audio

import (
	"sync"
	"time"
)

// Ring is the rolling per-participant audio buffer. It retains the most
// recent maxAge of PCM frames for emotion analysis; older frames are evicted
// on every Append.
//
// All methods are safe for concurrent use.
type Ring struct {
	mu      sync.Mutex
	frames  []ringFrame
	bytes   int
	maxAge  time.Duration
	maxByte int
}

type ringFrame struct {
	data []byte
	at   time.Time
}

// NewRing creates a ring buffer retaining up to maxAge of audio. A byte
// ceiling derived from maxAge at the pipeline sample rate bounds memory even
// when frame timestamps misbehave.
func NewRing(maxAge time.Duration) *Ring {
	return &Ring{
		maxAge:  maxAge,
		maxByte: int(maxAge.Seconds()*float64(SampleRate*Channels*bytesPerSample)) + MaxFrameBytes,
	}
}

// Append records a frame with the current timestamp and evicts expired
// frames.
func (r *Ring) Append(data []byte) {
	r.AppendAt(data, time.Now())
}

// AppendAt records a frame with an explicit timestamp. Exposed for tests.
func (r *Ring) AppendAt(data []byte, at time.Time) {
	cp := make([]byte, len(data))
	copy(cp, data)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.frames = append(r.frames, ringFrame{data: cp, at: at})
	r.bytes += len(cp)
	r.evict(at)
}

// Snapshot returns a contiguous copy of the retained audio, oldest first.
func (r *Ring) Snapshot() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]byte, 0, r.bytes)
	for _, f := range r.frames {
		out = append(out, f.data...)
	}
	return out
}

// Reset discards all retained audio.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
	r.bytes = 0
}

// evict removes frames older than maxAge and, as a backstop, trims from the
// front until the byte ceiling holds. Must be called with r.mu held.
func (r *Ring) evict(now time.Time) {
	cutoff := now.Add(-r.maxAge)
	start := 0
	for start < len(r.frames) && r.frames[start].at.Before(cutoff) {
		r.bytes -= len(r.frames[start].data)
		start++
	}
	for start < len(r.frames) && r.bytes > r.maxByte {
		r.bytes -= len(r.frames[start].data)
		start++
	}
	if start > 0 {
		// Copy to a fresh slice so evicted frames can be garbage collected.
		keep := make([]ringFrame, len(r.frames)-start)
		copy(keep, r.frames[start:])
		r.frames = keep
	}
}
