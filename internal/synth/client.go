// Package synth wraps the TTS provider with the relay's synthesis policy:
// a time-bounded dedup cache, rate-limit backoff, the partial-text floor,
// emotion-derived voice settings, and idle-stream reaping.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voxbridge/voxbridge/internal/config"
	"github.com/voxbridge/voxbridge/internal/observe"
	"github.com/voxbridge/voxbridge/pkg/provider/tts"
	"github.com/voxbridge/voxbridge/pkg/types"
)

const (
	// totalTimeout bounds one synthesis including all rate-limit retries.
	totalTimeout = 15 * time.Second

	// Partial synthesis floor: fragments below this are not worth speaking.
	partialMinChars = 20
	partialMinWords = 4

	// defaultRetryBase is the first rate-limit backoff; it doubles per
	// attempt.
	defaultRetryBase = time.Second

	// defaultBucket keys cache entries when no emotional profile is given.
	defaultBucket = "default"
)

// ErrEmptyText is returned for requests with no text.
var ErrEmptyText = errors.New("synth: empty text")

// ErrPartialTooShort is returned when a non-final request is below the
// partial synthesis floor. Callers treat it as a skip, not a failure.
var ErrPartialTooShort = errors.New("synth: partial below synthesis floor")

// Request is one synthesis job.
type Request struct {
	VoiceID  string
	Text     string
	Language string

	// Profile supplies emotion-derived voice settings. Nil selects
	// language-default settings.
	Profile *types.EmotionalProfile

	// IsFinal requests are synthesized unconditionally when non-empty;
	// partials must clear the length floor first.
	IsFinal bool
}

// stream tracks one in-flight synthesis for idle reaping.
type stream struct {
	cancel context.CancelFunc

	mu   sync.Mutex
	last time.Time
}

func (s *stream) touch(now time.Time) {
	s.mu.Lock()
	s.last = now
	s.mu.Unlock()
}

func (s *stream) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Client is the synthesis front door used by the pipeline. Safe for
// concurrent use across sessions; the cache is deliberately shared.
type Client struct {
	provider  tts.Provider
	name      string
	cache     *cache
	attempts  int
	retryBase time.Duration
	metrics   *observe.Metrics
	log       *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	nextID  int
	streams map[int]*stream
}

// NewClient creates a synthesis client over the given provider. name labels
// the provider in metrics; a nil metrics falls back to the package default.
func NewClient(name string, provider tts.Provider, cfg config.SynthesisConfig, metrics *observe.Metrics) *Client {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Client{
		provider:  provider,
		name:      name,
		cache:     newCache(cfg.CacheExactTTL.Std(), cfg.CacheNearTTL.Std(), cfg.CacheMaxAge.Std()),
		attempts:  cfg.RetryAttempts,
		retryBase: defaultRetryBase,
		metrics:   metrics,
		log:       slog.Default().With("component", "synth"),
		now:       time.Now,
		streams:   make(map[int]*stream),
	}
}

// Synthesize returns a channel of audio chunks for the request. Cache hits
// deliver the prior bytes immediately; misses stream from the provider with
// rate-limit backoff. The channel is closed when the stream ends or the
// 15 s total budget expires.
func (c *Client) Synthesize(ctx context.Context, req Request) (<-chan []byte, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrEmptyText
	}
	if !req.IsFinal && (len(text) < partialMinChars || len(strings.Fields(text)) < partialMinWords) {
		return nil, ErrPartialTooShort
	}

	bucket := defaultBucket
	if req.Profile != nil {
		bucket = req.Profile.Bucket()
	}
	key := cacheKey{
		voiceID: req.VoiceID,
		text:    types.Normalize(text),
		lang:    types.PrimaryLang(req.Language),
		bucket:  bucket,
	}

	now := c.now()
	if cached, kind := c.cache.lookup(key, now); cached != nil {
		c.metrics.RecordCacheHit(ctx, kind)
		c.log.Debug("synthesis cache hit", "kind", kind, "voice_id", req.VoiceID)
		out := make(chan []byte, 1)
		out <- cached
		close(out)
		return out, nil
	}

	sctx, cancel := context.WithTimeout(ctx, totalTimeout)

	provReq := tts.Request{
		VoiceID:  req.VoiceID,
		Text:     text,
		Language: req.Language,
		Settings: c.voiceSettings(req),
	}

	var chunks <-chan []byte
	var err error
	for attempt := 1; ; attempt++ {
		chunks, err = c.provider.Synthesize(sctx, provReq)
		if err == nil {
			break
		}
		if !errors.Is(err, tts.ErrRateLimited) || attempt >= c.attempts {
			cancel()
			c.metrics.RecordProviderError(ctx, c.name, "tts")
			return nil, fmt.Errorf("synth: synthesize: %w", err)
		}

		backoff := c.retryBase << (attempt - 1)
		c.log.Warn("tts rate limited, backing off",
			"attempt", attempt, "backoff", backoff)
		select {
		case <-time.After(backoff):
		case <-sctx.Done():
			cancel()
			return nil, fmt.Errorf("synth: synthesize: %w", sctx.Err())
		}
	}

	s := &stream{cancel: cancel, last: now}
	id := c.register(s)

	out := make(chan []byte, 64)
	go c.forward(sctx, id, s, chunks, out, key)
	return out, nil
}

// forward relays provider chunks to the caller, accumulates them for the
// cache, and tears the stream down on completion or timeout.
func (c *Client) forward(ctx context.Context, id int, s *stream, in <-chan []byte, out chan<- []byte, key cacheKey) {
	defer func() {
		close(out)
		c.unregister(id)
		s.cancel()
	}()

	var buf []byte
	for {
		select {
		case chunk, ok := <-in:
			if !ok {
				// Stream completed; only complete results are cached so a
				// hit always replays the full utterance.
				if len(buf) > 0 {
					c.cache.insert(key, buf, c.now())
				}
				return
			}
			buf = append(buf, chunk...)
			s.touch(c.now())
			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// voiceSettings picks the synthesis bundle: the profile's settings when
// present, otherwise a language default — steadier delivery for
// agglutinative languages, a touch more style for analytic ones. All values
// are clamped to [0,1].
func (c *Client) voiceSettings(req Request) types.VoiceSettings {
	var s types.VoiceSettings
	if req.Profile != nil {
		s = req.Profile.Voice
	} else if types.IsAgglutinative(req.Language) {
		s = types.VoiceSettings{Stability: 0.6, SimilarityBoost: 0.75, Style: 0.1, SpeakerBoost: true}
	} else {
		s = types.VoiceSettings{Stability: 0.45, SimilarityBoost: 0.75, Style: 0.2, SpeakerBoost: true}
	}
	s.Stability = clamp01(s.Stability)
	s.SimilarityBoost = clamp01(s.SimilarityBoost)
	s.Style = clamp01(s.Style)
	return s
}

// Sweep cancels streams idle longer than streamIdle and evicts expired
// cache entries. Called by the reaper; returns the number of items reaped.
func (c *Client) Sweep(now time.Time, streamIdle time.Duration) int {
	n := c.cache.sweep(now)

	c.mu.Lock()
	var stale []*stream
	for id, s := range c.streams {
		if now.Sub(s.idleSince()) > streamIdle {
			stale = append(stale, s)
			delete(c.streams, id)
			n++
		}
	}
	c.mu.Unlock()

	for _, s := range stale {
		s.cancel()
	}
	if len(stale) > 0 {
		c.log.Info("reaped idle synthesis streams", "count", len(stale))
	}
	return n
}

func (c *Client) register(s *stream) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	c.streams[c.nextID] = s
	return c.nextID
}

func (c *Client) unregister(id int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.streams, id)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
