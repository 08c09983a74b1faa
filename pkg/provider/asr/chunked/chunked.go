// Package chunked adapts a batch asr.Recognizer into the streaming
// asr.Provider contract. It is the last rung of the recognition ladder: when
// no streaming provider can hold a session, incoming PCM is accumulated per
// handle and flushed to the recognizer in fixed-duration chunks, emitting
// finals only.
//
// Agglutinative languages get a shorter flush interval: with rich suffix
// morphology a word's meaning settles late, so smaller chunks keep the
// downstream gate from waiting on overly long batches.
package chunked

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/provider/asr"
	"github.com/voxbridge/voxbridge/pkg/types"
)

const (
	// flushAgglutinative is the chunk duration for agglutinative-routed
	// languages.
	flushAgglutinative = 1500 * time.Millisecond

	// flushDefault is the chunk duration for everything else.
	flushDefault = 2 * time.Second

	// silenceRMS is the energy floor below which a chunk carries no speech
	// and is not worth a recognizer round trip.
	silenceRMS = 300.0
)

// Provider implements asr.Provider on top of a batch recognizer.
type Provider struct {
	rec asr.Recognizer
}

// New creates a chunked Provider around rec.
func New(rec asr.Recognizer) (*Provider, error) {
	if rec == nil {
		return nil, errors.New("chunked: recognizer must not be nil")
	}
	return &Provider{rec: rec}, nil
}

// Name identifies the provider in logs and stream errors.
func (p *Provider) Name() string { return "chunked" }

// StartStream opens a chunked pseudo-stream. No network connection is
// established until the first flush.
func (p *Provider) StartStream(ctx context.Context, cfg asr.StreamConfig) (asr.SessionHandle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	interval := flushDefault
	if types.IsAgglutinative(cfg.Language) {
		interval = flushAgglutinative
	}

	s := &session{
		rec:      p.rec,
		language: cfg.Language,
		interval: interval,
		results:  make(chan types.Transcript, 64),
		errs:     make(chan error, 8),
		audioCh:  make(chan []byte, 256),
		done:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.processLoop(ctx)

	return s, nil
}

// session is a live chunked pseudo-stream. It implements asr.SessionHandle.
// All buffer state is confined to the processLoop goroutine.
type session struct {
	rec      asr.Recognizer
	language string
	interval time.Duration

	results chan types.Transcript
	errs    chan error
	audioCh chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio queues a PCM chunk for accumulation.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return asr.ErrSessionClosed
	default:
	}
	select {
	case s.audioCh <- chunk:
		return nil
	case <-s.done:
		return asr.ErrSessionClosed
	}
}

// Results returns the channel of final transcripts. Chunked recognition
// never emits partials.
func (s *session) Results() <-chan types.Transcript { return s.results }

// Errors returns the channel of recognizer errors.
func (s *session) Errors() <-chan error { return s.errs }

// Close flushes the remaining buffer and tears the session down.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
	return nil
}

// processLoop accumulates audio and flushes it to the recognizer on a fixed
// cadence. A final flush runs on teardown with a fresh context so buffered
// speech is not lost to cancellation.
func (s *session) processLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.results)
	defer close(s.errs)

	var buffer []byte
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	doFlush := func(flushCtx context.Context) {
		pcm := buffer
		buffer = nil
		if len(pcm) == 0 || audio.RMS(pcm) < silenceRMS {
			return
		}

		tr, err := s.rec.Recognize(flushCtx, pcm, s.language)
		if err != nil {
			select {
			case s.errs <- err:
			default:
			}
			return
		}
		if tr.Text == "" {
			return
		}
		select {
		case s.results <- tr:
		case <-s.done:
		}
	}

	flushWithTimeout := func() {
		fc, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		doFlush(fc)
	}

	for {
		select {
		case <-ctx.Done():
			flushWithTimeout()
			return
		case <-s.done:
			flushWithTimeout()
			return
		case chunk := <-s.audioCh:
			buffer = append(buffer, chunk...)
		case <-ticker.C:
			doFlush(ctx)
		}
	}
}
