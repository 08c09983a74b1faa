// Package mt defines the Provider interface for machine translation backends
// and the Client wrapper that adds the pipeline-level translation semantics:
// protected spans, a hard timeout, and a single retry on transient failures.
//
// Providers translate text between two BCP-47 language tags and classify
// failures into the taxonomy the pipeline routes on: quota exhaustion and
// invalid credentials are fatal for the utterance, transient network and 5xx
// failures are retried once, everything else is surfaced as-is.
package mt

import (
	"context"
	"errors"
	"fmt"

	"github.com/voxbridge/voxbridge/pkg/types"
)

// Request is a single translation request.
type Request struct {
	// Text is the source text. Never empty by the time it reaches a provider.
	Text string

	// SourceLang is the BCP-47 source language tag.
	SourceLang string

	// TargetLang is the BCP-47 target language tag.
	TargetLang string
}

// Provider is the abstraction over any machine translation backend.
type Provider interface {
	// Translate translates a single text. Implementations classify provider
	// failures with ErrQuotaExhausted, ErrAuthInvalid, or *ProviderError.
	Translate(ctx context.Context, req Request) (types.Translation, error)
}

// ErrQuotaExhausted marks a provider quota/character-limit failure. Fatal for
// the current utterance; the next utterance is attempted fresh.
var ErrQuotaExhausted = errors.New("mt: provider quota exhausted")

// ErrAuthInvalid marks rejected credentials. Fatal for the current utterance.
var ErrAuthInvalid = errors.New("mt: provider credentials rejected")

// ErrEmptyText is returned by the Client when asked to translate nothing.
var ErrEmptyText = errors.New("mt: empty text")

// ProviderError carries the HTTP-level classification of a translation
// failure.
type ProviderError struct {
	// Provider is the reporting provider's name (e.g. "deepl").
	Provider string

	// Status is the HTTP status code.
	Status int

	// Temporary marks failures worth a single retry (network errors, 5xx).
	Temporary bool

	// Message is the provider's error body, truncated.
	Message string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("mt: %s: status %d: %s", e.Provider, e.Status, e.Message)
}

// IsTemporary reports whether err is worth a single retry: a transient
// *ProviderError or a plain transport error (timeouts excluded by the caller
// through context inspection).
func IsTemporary(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Temporary
	}
	if errors.Is(err, ErrQuotaExhausted) || errors.Is(err, ErrAuthInvalid) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	// Plain transport errors (connection refused, reset) have no
	// classification; treat them as transient.
	return err != nil
}
