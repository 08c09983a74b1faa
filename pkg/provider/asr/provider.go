// Package asr defines the Provider interface for streaming speech
// recognition backends.
//
// An ASR provider wraps a real-time transcription service (e.g. Deepgram or
// AssemblyAI) or a batch recognizer adapted into streaming shape, and exposes
// a uniform interface. The central abstraction is SessionHandle: once opened,
// a session accepts raw PCM audio frames and emits two channels — normalized
// Transcript values (partials and finals on one stream, distinguished by
// IsFinal) and errors. Results are always delivered in the normalized
// types.Transcript shape; callers never see provider-specific fields.
//
// Implementations must be safe for concurrent use. Multiple sessions may be
// open simultaneously (one per participant).
package asr

import (
	"context"
	"errors"
	"fmt"

	"github.com/voxbridge/voxbridge/pkg/types"
)

// StreamConfig describes the audio format and recognition target for a new
// ASR session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz (pipeline fixed: 16000).
	SampleRate int

	// Channels is the number of audio channels (pipeline fixed: 1).
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g. "en", "tr").
	Language string
}

// SessionHandle represents an open ASR streaming session.
//
// Callers must call Close when the session is no longer needed; failing to do
// so may leak goroutines and network connections inside the provider. All
// methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw 16-bit little-endian PCM bytes for
	// transcription. Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Results returns a read-only channel emitting normalized Transcript
	// values, partials and finals interleaved in provider order. The channel
	// is closed when the session ends.
	Results() <-chan types.Transcript

	// Errors returns a read-only channel emitting stream-level errors. A
	// *StreamError carries the provider's close classification so callers can
	// decide between transparent recreation and fallback. The channel is
	// closed when the session ends.
	Errors() <-chan error

	// Close terminates the session, flushes pending audio where the provider
	// supports it, and releases all resources. After Close returns, the
	// Results and Errors channels will be closed. Calling Close more than
	// once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any streaming ASR backend.
type Provider interface {
	// StartStream opens a new streaming transcription session. The returned
	// SessionHandle is ready to accept audio immediately. The caller owns the
	// handle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}

// Recognizer is the abstraction over a batch (one-shot) recognizer: it
// transcribes a complete PCM buffer synchronously. Batch recognizers are
// adapted into the streaming Provider contract by the chunked package.
type Recognizer interface {
	// Recognize transcribes a complete 16 kHz mono 16-bit PCM buffer.
	Recognize(ctx context.Context, pcm []byte, language string) (types.Transcript, error)
}

// ErrSessionClosed is returned by SendAudio after Close.
var ErrSessionClosed = errors.New("asr: session is closed")

// StreamError is the classified form of a stream-level failure. Providers
// wrap websocket close codes and provider error payloads into this type so
// that the multiplexer can route on the classification alone.
type StreamError struct {
	// Provider is the reporting provider's name (e.g. "deepgram").
	Provider string

	// Code is the websocket close status or provider error code, when known.
	Code int

	// Timeout marks provider-declared stream timeouts. The multiplexer
	// recreates the stream transparently on these.
	Timeout bool

	// Fatal marks non-recoverable failures (protocol errors, auth). The
	// multiplexer advances to the next provider in the route on these.
	Fatal bool

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	return fmt.Sprintf("asr: %s stream error (code=%d timeout=%t fatal=%t): %v",
		e.Provider, e.Code, e.Timeout, e.Fatal, e.Err)
}

// Unwrap returns the underlying error.
func (e *StreamError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a provider-declared stream timeout,
// eligible for transparent stream recreation.
func IsTimeout(err error) bool {
	var se *StreamError
	return errors.As(err, &se) && se.Timeout
}

// IsFatal reports whether err is a non-recoverable stream failure that
// should trigger provider fallback.
func IsFatal(err error) bool {
	var se *StreamError
	return errors.As(err, &se) && se.Fatal
}
