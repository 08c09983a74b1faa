// Package deepgram provides a Deepgram-backed ASR provider using the Deepgram
// streaming WebSocket API, plus a one-shot REST recognizer for chunked
// fallback. It implements asr.Provider and asr.Recognizer.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/voxbridge/voxbridge/pkg/provider/asr"
	"github.com/voxbridge/voxbridge/pkg/types"
)

const (
	streamEndpoint = "wss://api.deepgram.com/v1/listen"
	batchEndpoint  = "https://api.deepgram.com/v1/listen"
	defaultModel   = "nova-3"

	// keepaliveInterval is how often a KeepAlive message is sent during
	// silence. Deepgram closes idle streams after ~12 seconds of inactivity
	// without it; the stream timeout the server itself declares arrives as a
	// 1011 close.
	keepaliveInterval = 15 * time.Second
)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithHTTPClient overrides the HTTP client used for batch recognition.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements asr.Provider and asr.Recognizer backed by Deepgram.
type Provider struct {
	apiKey     string
	model      string
	httpClient *http.Client
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name identifies the provider in logs and stream errors.
func (p *Provider) Name() string { return "deepgram" }

// StartStream opens a streaming transcription session with Deepgram.
func (p *Provider) StartStream(ctx context.Context, cfg asr.StreamConfig) (asr.SessionHandle, error) {
	wsURL, err := p.buildURL(cfg)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("deepgram: dial: %w", err)
	}

	sess := &session{
		conn:     conn,
		language: cfg.Language,
		results:  make(chan types.Transcript, 64),
		errs:     make(chan error, 8),
		audio:    make(chan []byte, 256),
		done:     make(chan struct{}),
	}

	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop(ctx)

	return sess, nil
}

// buildURL constructs the Deepgram streaming endpoint URL for the given config.
func (p *Provider) buildURL(cfg asr.StreamConfig) (string, error) {
	u, err := url.Parse(streamEndpoint)
	if err != nil {
		return "", err
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", cfg.Language)
	q.Set("encoding", "linear16")
	q.Set("punctuate", "true")
	q.Set("interim_results", "true")
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ---- streaming session ----

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// session is a live Deepgram streaming session. It implements asr.SessionHandle.
type session struct {
	conn     *websocket.Conn
	language string
	results  chan types.Transcript
	errs     chan error
	audio    chan []byte

	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// SendAudio queues a PCM audio chunk for delivery to Deepgram.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return asr.ErrSessionClosed
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return asr.ErrSessionClosed
	}
}

// Results returns the channel of normalized transcripts.
func (s *session) Results() <-chan types.Transcript { return s.results }

// Errors returns the channel of stream-level errors.
func (s *session) Errors() <-chan error { return s.errs }

// Close terminates the session cleanly.
func (s *session) Close() error {
	s.once.Do(func() {
		close(s.done)
		// Ask Deepgram to flush pending audio before tearing down.
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"type":"CloseStream"}`))
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

// writeLoop reads from the audio channel and sends binary messages to
// Deepgram. During silence it sends KeepAlive messages so Deepgram does not
// close the idle stream.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()

	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			if err := s.conn.Write(ctx, websocket.MessageBinary, chunk); err != nil {
				return
			}
			keepalive.Reset(keepaliveInterval)
		case <-keepalive.C:
			if err := s.conn.Write(ctx, websocket.MessageText, []byte(`{"type":"KeepAlive"}`)); err != nil {
				return
			}
		case <-s.done:
			// Drain the audio channel before exiting.
			for {
				select {
				case chunk, ok := <-s.audio:
					if !ok {
						return
					}
					_ = s.conn.Write(ctx, websocket.MessageBinary, chunk)
				default:
					return
				}
			}
		}
	}
}

// readLoop receives JSON messages from Deepgram and dispatches normalized
// transcripts and classified errors.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.results)
	defer close(s.errs)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			select {
			case <-s.done:
				// Close was requested; this is the expected teardown path.
			default:
				s.errs <- classifyCloseError(err)
			}
			return
		}

		t, ok := parseResponse(msg, s.language)
		if !ok {
			continue
		}

		select {
		case s.results <- t:
		case <-s.done:
		}
	}
}

// classifyCloseError maps a websocket read error onto the stream error
// taxonomy. Deepgram declares stream timeouts (NET-0001) with close status
// 1011; protocol and policy violations are non-recoverable.
func classifyCloseError(err error) error {
	status := websocket.CloseStatus(err)
	se := &asr.StreamError{
		Provider: "deepgram",
		Code:     int(status),
		Err:      err,
	}
	switch status {
	case websocket.StatusInternalError: // 1011, Deepgram NET-0001 stream timeout
		se.Timeout = true
	case websocket.StatusProtocolError, websocket.StatusUnsupportedData, websocket.StatusPolicyViolation:
		se.Fatal = true
	}
	return se
}

// parseResponse parses a raw Deepgram WebSocket message into a normalized
// Transcript. Returns (zero, false) if the message should be ignored.
func parseResponse(data []byte, language string) (types.Transcript, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return types.Transcript{}, false
	}
	if resp.Type != "Results" {
		return types.Transcript{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return types.Transcript{}, false
	}

	alt := resp.Channel.Alternatives[0]
	if alt.Transcript == "" {
		return types.Transcript{}, false
	}

	return types.Transcript{
		Text:       alt.Transcript,
		IsFinal:    resp.IsFinal,
		Confidence: alt.Confidence,
		Language:   language,
		Timestamp:  time.Now(),
	}, true
}

// ---- batch recognition ----

// batchResponse is the JSON structure returned by the pre-recorded endpoint.
type batchResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// Recognize transcribes a complete PCM buffer through the Deepgram
// pre-recorded REST endpoint. Used by the chunked fallback adapter when the
// streaming session cannot be kept alive.
func (p *Provider) Recognize(ctx context.Context, pcm []byte, language string) (types.Transcript, error) {
	u, err := url.Parse(batchEndpoint)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", language)
	q.Set("encoding", "linear16")
	q.Set("sample_rate", "16000")
	q.Set("punctuate", "true")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(pcm))
	if err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "audio/raw")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: recognize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return types.Transcript{}, fmt.Errorf("deepgram: recognize: status %d: %s", resp.StatusCode, body)
	}

	var br batchResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		return types.Transcript{}, fmt.Errorf("deepgram: recognize decode: %w", err)
	}
	if len(br.Results.Channels) == 0 || len(br.Results.Channels[0].Alternatives) == 0 {
		return types.Transcript{}, errors.New("deepgram: recognize: empty result")
	}

	alt := br.Results.Channels[0].Alternatives[0]
	return types.Transcript{
		Text:       alt.Transcript,
		IsFinal:    true,
		Confidence: alt.Confidence,
		Language:   language,
		Timestamp:  time.Now(),
	}, nil
}
