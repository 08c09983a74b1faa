// Package asr multiplexes speech-recognition providers behind a single
// caller-stable handle.
//
// A participant opens one [Handle] for its language; internally the client
// routes across providers in priority order — primary streaming, secondary
// streaming, batch mode for languages the table routes there, and a chunked
// REST fallback as the last resort. Stream timeouts recreate the underlying
// session transparently: the handle identity, its channels, and the frame
// path are preserved, and the caller never observes a gap. Non-recoverable
// stream errors advance the route instead. Only when the whole route is
// exhausted does an error reach the caller.
package asr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/voxbridge/voxbridge/internal/observe"
	"github.com/voxbridge/voxbridge/internal/resilience"
	"github.com/voxbridge/voxbridge/pkg/audio"
	providers "github.com/voxbridge/voxbridge/pkg/provider/asr"
	"github.com/voxbridge/voxbridge/pkg/types"
)

// openTimeout bounds one provider StartStream attempt during recovery.
const openTimeout = 10 * time.Second

// ErrExhausted is surfaced once when every provider in the route has failed.
var ErrExhausted = errors.New("asr: all providers exhausted")

// Named pairs a provider with its registry name for logging and metrics.
type Named struct {
	Name     string
	Provider providers.Provider
}

// Config assembles the provider route.
type Config struct {
	// Streaming providers in priority order (primary first).
	Streaming []Named

	// Batch is the batch-mode provider, preferred for languages listed in
	// BatchLanguages. Optional.
	Batch *Named

	// Fallback is the chunked REST fallback, always last in the route.
	// Optional but strongly recommended.
	Fallback *Named

	// BatchLanguages lists language tags routed to the batch provider first.
	BatchLanguages []string

	// Breaker configures the per-provider circuit breakers guarding
	// StartStream.
	Breaker resilience.BreakerConfig
}

type entry struct {
	name     string
	provider providers.Provider
	breaker  *resilience.Breaker
}

// Client is the ASR multiplexer. One Client serves all participants; each
// Open returns an independent Handle.
type Client struct {
	streaming []*entry
	batch     *entry
	fallback  *entry
	batchLang map[string]bool
	metrics   *observe.Metrics
	log       *slog.Logger

	mu      sync.Mutex
	handles map[*Handle]struct{}
}

// NewClient builds the multiplexer from cfg. A nil metrics falls back to the
// package default.
func NewClient(cfg Config, metrics *observe.Metrics) *Client {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	c := &Client{
		batchLang: make(map[string]bool, len(cfg.BatchLanguages)),
		metrics:   metrics,
		log:       slog.Default().With("component", "asr"),
		handles:   make(map[*Handle]struct{}),
	}
	mk := func(n Named) *entry {
		bc := cfg.Breaker
		bc.Name = "asr-" + n.Name
		return &entry{name: n.Name, provider: n.Provider, breaker: resilience.NewBreaker(bc)}
	}
	for _, n := range cfg.Streaming {
		c.streaming = append(c.streaming, mk(n))
	}
	if cfg.Batch != nil {
		c.batch = mk(*cfg.Batch)
	}
	if cfg.Fallback != nil {
		c.fallback = mk(*cfg.Fallback)
	}
	for _, l := range cfg.BatchLanguages {
		c.batchLang[types.PrimaryLang(l)] = true
	}
	return c
}

// route returns the provider order for a language. Batch-routed languages
// lead with the batch provider; everyone ends at the chunked fallback.
func (c *Client) route(language string) []*entry {
	var r []*entry
	if c.batch != nil && c.batchLang[types.PrimaryLang(language)] {
		r = append(r, c.batch)
	}
	r = append(r, c.streaming...)
	if c.fallback != nil {
		r = append(r, c.fallback)
	}
	return r
}

// Open starts recognition for one participant. The returned Handle stays
// valid across internal provider recreation and fallback.
func (c *Client) Open(ctx context.Context, participantID, language string) (*Handle, error) {
	route := c.route(language)
	if len(route) == 0 {
		return nil, fmt.Errorf("asr: open: no providers configured")
	}

	h := &Handle{
		client:        c,
		participantID: participantID,
		language:      language,
		streamCfg: providers.StreamConfig{
			SampleRate: audio.SampleRate,
			Channels:   audio.Channels,
			Language:   language,
		},
		route:   route,
		results: make(chan types.Transcript, 64),
		errs:    make(chan error, 8),
		done:    make(chan struct{}),
		last:    time.Now(),
		ctx:     ctx,
	}

	sess, idx, err := h.openFrom(0)
	if err != nil {
		return nil, fmt.Errorf("asr: open: %w", err)
	}
	h.sess = sess
	h.routeIdx = idx

	c.mu.Lock()
	c.handles[h] = struct{}{}
	c.mu.Unlock()

	h.wg.Add(1)
	go h.run()

	c.log.Info("asr session opened",
		"participant_id", participantID,
		"language", language,
		"provider", route[idx].name)
	return h, nil
}

// Sweep closes handles whose last activity is older than idle. Called by the
// reaper; returns the number of handles closed.
func (c *Client) Sweep(now time.Time, idle time.Duration) int {
	c.mu.Lock()
	var stale []*Handle
	for h := range c.handles {
		if now.Sub(h.lastActivity()) > idle {
			stale = append(stale, h)
		}
	}
	c.mu.Unlock()

	for _, h := range stale {
		c.log.Info("reaping idle asr handle", "participant_id", h.participantID)
		_ = h.Close()
	}
	return len(stale)
}

func (c *Client) remove(h *Handle) {
	c.mu.Lock()
	delete(c.handles, h)
	c.mu.Unlock()
}

// Handle is the caller-stable recognition session for one participant.
type Handle struct {
	client        *Client
	participantID string
	language      string
	streamCfg     providers.StreamConfig
	route         []*entry
	ctx           context.Context

	results chan types.Transcript
	errs    chan error
	done    chan struct{}
	wg      sync.WaitGroup

	mu       sync.Mutex
	sess     providers.SessionHandle
	routeIdx int
	closed   bool
	last     time.Time
}

// Results emits normalized transcripts. Closed when the handle ends.
func (h *Handle) Results() <-chan types.Transcript { return h.results }

// Errors emits handle-level errors: only route exhaustion reaches here;
// recoverable stream errors are absorbed internally. Closed when the handle
// ends.
func (h *Handle) Errors() <-chan error { return h.errs }

// SendAudio forwards one PCM frame to the current underlying session.
// Frames that race a stream swap are dropped silently; the next frame lands
// on the fresh stream.
func (h *Handle) SendAudio(chunk []byte) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return providers.ErrSessionClosed
	}
	sess := h.sess
	h.last = time.Now()
	h.mu.Unlock()

	if sess == nil {
		return nil
	}
	if err := sess.SendAudio(chunk); err != nil {
		h.client.log.Debug("frame dropped during stream swap",
			"participant_id", h.participantID, "error", err)
	}
	return nil
}

// Close tears the handle down: closes the underlying session, stops the
// pump, and closes both output channels. Idempotent.
func (h *Handle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	sess := h.sess
	close(h.done)
	h.mu.Unlock()

	if sess != nil {
		_ = sess.Close()
	}
	h.wg.Wait()
	h.client.remove(h)
	return nil
}

func (h *Handle) lastActivity() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

func (h *Handle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// run pumps sessions until the handle closes or the route is exhausted.
func (h *Handle) run() {
	defer func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		h.client.remove(h)
		close(h.results)
		close(h.errs)
		h.wg.Done()
	}()

	for {
		h.mu.Lock()
		sess := h.sess
		h.mu.Unlock()
		if sess == nil {
			return
		}

		reason := h.pumpOne(sess)
		if h.isClosed() || errors.Is(reason, errHandleDone) {
			return
		}
		if !h.recover(reason) {
			select {
			case h.errs <- fmt.Errorf("%w: %v", ErrExhausted, reason):
			default:
			}
			return
		}
	}
}

// errHandleDone signals pumpOne returned because the handle was closed.
var errHandleDone = errors.New("asr: handle done")

// errStreamEnded signals the session's channels closed without a classified
// error; treated like a timeout (silent recreate).
var errStreamEnded = errors.New("asr: stream ended")

// pumpOne drains one session until it errors, ends, or the handle closes.
func (h *Handle) pumpOne(sess providers.SessionHandle) error {
	results, errsCh := sess.Results(), sess.Errors()
	for results != nil || errsCh != nil {
		select {
		case <-h.done:
			return errHandleDone
		case r, ok := <-results:
			if !ok {
				results = nil
				continue
			}
			if r.Language == "" {
				r.Language = h.language
			}
			h.mu.Lock()
			h.last = time.Now()
			h.mu.Unlock()
			select {
			case h.results <- r:
			case <-h.done:
				return errHandleDone
			}
		case err, ok := <-errsCh:
			if !ok {
				errsCh = nil
				continue
			}
			return err
		}
	}
	return errStreamEnded
}

// recover replaces the failed session. Timeouts (and silent stream ends)
// retry the same provider first; anything else — and a failed retry —
// advances down the route.
func (h *Handle) recover(reason error) bool {
	h.mu.Lock()
	idx := h.routeIdx
	h.mu.Unlock()

	start := idx
	if providers.IsTimeout(reason) || errors.Is(reason, errStreamEnded) {
		// Timeouts recreate on the same provider; openFrom falls through to
		// the rest of the route if that fails.
		h.client.log.Info("asr stream timed out, recreating",
			"participant_id", h.participantID,
			"provider", h.route[idx].name)
	} else {
		h.client.log.Warn("asr stream failed, advancing provider route",
			"participant_id", h.participantID,
			"provider", h.route[idx].name,
			"error", reason)
		start = idx + 1
	}

	sess, newIdx, err := h.openFrom(start)
	if err != nil {
		return false
	}
	h.swap(sess, newIdx)
	if newIdx != idx {
		h.client.log.Info("asr provider switched",
			"participant_id", h.participantID,
			"provider", h.route[newIdx].name)
	}
	return true
}

func (h *Handle) swap(sess providers.SessionHandle, idx int) {
	h.mu.Lock()
	old := h.sess
	h.sess = sess
	h.routeIdx = idx
	h.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}

// openFrom tries route entries starting at start, respecting each entry's
// breaker. Returns the session and the index that served.
func (h *Handle) openFrom(start int) (providers.SessionHandle, int, error) {
	var lastErr error = ErrExhausted
	for i := start; i < len(h.route); i++ {
		e := h.route[i]
		var sess providers.SessionHandle
		err := e.breaker.Do(func() error {
			ctx, cancel := context.WithTimeout(h.ctx, openTimeout)
			defer cancel()
			var openErr error
			sess, openErr = e.provider.StartStream(ctx, h.streamCfg)
			return openErr
		})
		if err == nil {
			h.client.metrics.RecordProviderRequest(h.ctx, e.name, "asr", "ok")
			return sess, i, nil
		}
		lastErr = err
		if !errors.Is(err, resilience.ErrBreakerOpen) {
			h.client.metrics.RecordProviderRequest(h.ctx, e.name, "asr", "error")
			h.client.metrics.RecordProviderError(h.ctx, e.name, "asr")
		}
	}
	return nil, 0, lastErr
}
