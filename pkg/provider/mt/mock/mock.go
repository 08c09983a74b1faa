// Package mock provides test doubles for the mt package interfaces.
//
// Use Provider to return canned translations, inject per-call errors, and
// inspect the requests a caller issued.
package mock

import (
	"context"
	"sync"

	"github.com/voxbridge/voxbridge/pkg/provider/mt"
	"github.com/voxbridge/voxbridge/pkg/types"
)

// Provider is a mock implementation of mt.Provider.
type Provider struct {
	mu sync.Mutex

	// Translation is returned by every successful Translate call. When its
	// Text is empty, Translate echoes the request text prefixed with the
	// target language ("tr:hello").
	Translation types.Translation

	// Errs are returned one per call, in order, before Translation is
	// consulted. A nil entry means that call succeeds.
	Errs []error

	// Calls records every Translate request in order.
	Calls []mt.Request
}

// Translate records the call, pops the next injected error, and returns the
// canned translation.
func (p *Provider) Translate(_ context.Context, req mt.Request) (types.Translation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, req)

	if len(p.Errs) > 0 {
		err := p.Errs[0]
		p.Errs = p.Errs[1:]
		if err != nil {
			return types.Translation{}, err
		}
	}

	t := p.Translation
	if t.Text == "" {
		t.Text = req.TargetLang + ":" + req.Text
	}
	if t.Confidence == 0 {
		t.Confidence = 0.9
	}
	if t.DetectedLanguage == "" {
		t.DetectedLanguage = req.SourceLang
	}
	return t, nil
}

// CallCount returns the number of Translate calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// Reset clears recorded calls and injected errors. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = nil
	p.Errs = nil
}

// Ensure Provider implements mt.Provider at compile time.
var _ mt.Provider = (*Provider)(nil)
