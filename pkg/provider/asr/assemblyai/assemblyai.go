// Package assemblyai provides an AssemblyAI-backed ASR provider using the
// AssemblyAI real-time WebSocket API. It implements asr.Provider.
package assemblyai

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/voxbridge/voxbridge/pkg/provider/asr"
	"github.com/voxbridge/voxbridge/pkg/types"
)

const realtimeEndpoint = "wss://api.assemblyai.com/v2/realtime/ws"

// Provider implements asr.Provider backed by the AssemblyAI real-time API.
type Provider struct {
	apiKey string
}

// New creates a new AssemblyAI Provider. apiKey must be non-empty.
func New(apiKey string) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("assemblyai: apiKey must not be empty")
	}
	return &Provider{apiKey: apiKey}, nil
}

// Name identifies the provider in logs and stream errors.
func (p *Provider) Name() string { return "assemblyai" }

// StartStream opens a real-time transcription session with AssemblyAI.
func (p *Provider) StartStream(ctx context.Context, cfg asr.StreamConfig) (asr.SessionHandle, error) {
	u, err := url.Parse(realtimeEndpoint)
	if err != nil {
		return nil, fmt.Errorf("assemblyai: parse endpoint: %w", err)
	}
	q := u.Query()
	q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	if cfg.Language != "" {
		q.Set("language_code", cfg.Language)
	}
	u.RawQuery = q.Encode()

	headers := http.Header{}
	headers.Set("Authorization", p.apiKey)

	conn, _, err := websocket.Dial(ctx, u.String(), &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("assemblyai: dial: %w", err)
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

// ---- session ----

// realtimeMessage covers the message types AssemblyAI sends over the socket.
type realtimeMessage struct {
	MessageType string  `json:"message_type"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	Error       string  `json:"error"`
}

// audioMessage is the base64-wrapped audio frame sent to AssemblyAI.
type audioMessage struct {
	AudioData string `json:"audio_data"`
}

// session is a live AssemblyAI real-time session. It implements asr.SessionHandle.
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

// SendAudio queues a PCM audio chunk for delivery to AssemblyAI.
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
		_ = s.conn.Write(context.Background(), websocket.MessageText, []byte(`{"terminate_session":true}`))
		s.wg.Wait()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}

// writeLoop reads from the audio channel and sends base64-wrapped frames.
func (s *session) writeLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case chunk, ok := <-s.audio:
			if !ok {
				return
			}
			if err := s.writeFrame(ctx, chunk); err != nil {
				return
			}
		case <-s.done:
			for {
				select {
				case chunk, ok := <-s.audio:
					if !ok {
						return
					}
					_ = s.writeFrame(ctx, chunk)
				default:
					return
				}
			}
		}
	}
}

func (s *session) writeFrame(ctx context.Context, chunk []byte) error {
	msg, err := json.Marshal(audioMessage{
		AudioData: base64.StdEncoding.EncodeToString(chunk),
	})
	if err != nil {
		return err
	}
	return s.conn.Write(ctx, websocket.MessageText, msg)
}

// readLoop receives JSON messages and dispatches normalized transcripts.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.results)
	defer close(s.errs)

	for {
		_, msg, err := s.conn.Read(ctx)
		if err != nil {
			select {
			case <-s.done:
			default:
				s.errs <- classifyCloseError(err)
			}
			return
		}

		t, ok := parseMessage(msg, s.language)
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
// taxonomy. AssemblyAI uses 4xxx close codes for session errors; 1013 marks
// server overload, which is worth retrying on the same provider.
func classifyCloseError(err error) error {
	status := websocket.CloseStatus(err)
	se := &asr.StreamError{
		Provider: "assemblyai",
		Code:     int(status),
		Err:      err,
	}
	switch {
	case status == websocket.StatusInternalError || status == websocket.StatusTryAgainLater:
		se.Timeout = true
	case status >= 4000 && status < 5000:
		// Session-level errors (bad sample rate, auth, quota) are not
		// recoverable by reconnecting.
		se.Fatal = true
	}
	return se
}

// parseMessage parses a raw real-time message into a normalized Transcript.
// Returns (zero, false) for session events and empty transcripts.
func parseMessage(data []byte, language string) (types.Transcript, bool) {
	var msg realtimeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return types.Transcript{}, false
	}
	if msg.Text == "" {
		return types.Transcript{}, false
	}

	switch msg.MessageType {
	case "PartialTranscript":
		return types.Transcript{
			Text:       msg.Text,
			IsFinal:    false,
			Confidence: msg.Confidence,
			Language:   language,
			Timestamp:  time.Now(),
		}, true
	case "FinalTranscript":
		return types.Transcript{
			Text:       msg.Text,
			IsFinal:    true,
			Confidence: msg.Confidence,
			Language:   language,
			Timestamp:  time.Now(),
		}, true
	default:
		return types.Transcript{}, false
	}
}
