// Package tts defines the Provider interface for streaming speech synthesis
// backends. A provider turns text plus a voice-settings bundle into a stream
// of audio chunks delivered over a channel.
package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/voxbridge/voxbridge/pkg/types"
)

// Request is a single synthesis request.
type Request struct {
	// VoiceID is the provider-opaque voice identifier.
	VoiceID string

	// Text is the text to synthesize. Never empty by the time it reaches a
	// provider.
	Text string

	// Language is the BCP-47 target language tag.
	Language string

	// Settings is the voice-settings bundle, already clamped to valid ranges.
	Settings types.VoiceSettings
}

// Provider is the abstraction over any streaming TTS backend.
type Provider interface {
	// Synthesize starts a synthesis stream. The returned channel emits audio
	// chunks as they arrive and is closed when the stream completes or ctx is
	// cancelled. Rate-limit rejections are reported as ErrRateLimited before
	// any channel is returned; the caller owns backoff.
	Synthesize(ctx context.Context, req Request) (<-chan []byte, error)
}

// ErrRateLimited marks a provider "too many requests" rejection. The caller
// retries with exponential backoff.
var ErrRateLimited = errors.New("tts: provider rate limited")

// ProviderError carries the HTTP-level classification of a synthesis failure
// that is not a rate limit.
type ProviderError struct {
	// Provider is the reporting provider's name (e.g. "elevenlabs").
	Provider string

	// Status is the HTTP status code.
	Status int

	// Message is the provider's error body, truncated.
	Message string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("tts: %s: status %d: %s", e.Provider, e.Status, e.Message)
}
