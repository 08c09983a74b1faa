// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to return canned audio chunks, inject per-call errors (e.g.
// tts.ErrRateLimited to exercise backoff), and inspect issued requests.
package mock

import (
	"context"
	"sync"

	"github.com/voxbridge/voxbridge/pkg/provider/tts"
)

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// Chunks are emitted on the returned channel for every successful call.
	// When nil, a single chunk derived from the request text is emitted.
	Chunks [][]byte

	// Errs are returned one per call, in order, before Chunks is consulted.
	// A nil entry means that call succeeds.
	Errs []error

	// Calls records every Synthesize request in order.
	Calls []tts.Request
}

// Synthesize records the call, pops the next injected error, and streams the
// canned chunks on a fresh channel.
func (p *Provider) Synthesize(ctx context.Context, req tts.Request) (<-chan []byte, error) {
	p.mu.Lock()
	p.Calls = append(p.Calls, req)
	var err error
	if len(p.Errs) > 0 {
		err = p.Errs[0]
		p.Errs = p.Errs[1:]
	}
	chunks := p.Chunks
	p.mu.Unlock()

	if err != nil {
		return nil, err
	}

	if chunks == nil {
		chunks = [][]byte{[]byte("audio:" + req.Text)}
	}

	ch := make(chan []byte, len(chunks))
	go func() {
		defer close(ch)
		for _, c := range chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// CallCount returns the number of Synthesize calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// LastCall returns the most recent request, or a zero Request when none.
func (p *Provider) LastCall() tts.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Calls) == 0 {
		return tts.Request{}
	}
	return p.Calls[len(p.Calls)-1]
}

// Reset clears recorded calls and injected errors. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
	p.Errs = nil
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)
