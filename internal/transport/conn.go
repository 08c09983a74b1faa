package transport

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// writeBuffer bounds outbound messages queued behind the single writer.
const writeBuffer = 256

// ErrConnClosed is returned by Send after the connection has ended.
var ErrConnClosed = errors.New("transport: connection closed")

// Handler receives decoded client traffic. Implemented by the pipeline
// coordinator.
type Handler interface {
	// OnJoin handles the opening join-session request.
	OnJoin(ctx context.Context, c *Conn, join JoinSession)

	// OnAudio delivers one decoded PCM frame from a joined participant.
	OnAudio(c *Conn, pcm []byte)

	// OnDisconnect fires exactly once when the connection ends.
	OnDisconnect(c *Conn)
}

// Conn wraps one websocket with a single-writer outbound queue and the
// application heartbeat. All Sends funnel through the writer goroutine, so
// concurrent pipeline emissions never interleave frames.
type Conn struct {
	ws  *websocket.Conn
	log *slog.Logger

	out  chan any
	done chan struct{}
	once sync.Once

	mu            sync.Mutex
	participantID string
	awaitingPong  bool
}

func newConn(ws *websocket.Conn, log *slog.Logger) *Conn {
	return &Conn{
		ws:   ws,
		log:  log,
		out:  make(chan any, writeBuffer),
		done: make(chan struct{}),
	}
}

// BindParticipant attaches the registry identity after a successful join.
func (c *Conn) BindParticipant(id string) {
	c.mu.Lock()
	c.participantID = id
	c.mu.Unlock()
}

// ParticipantID returns the bound registry identity ("" before join).
func (c *Conn) ParticipantID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.participantID
}

// Send queues one JSON message for the writer goroutine. Non-blocking
// failure modes: a closed connection returns ErrConnClosed, a full queue
// drops the message and returns nil so a slow reader cannot stall the
// pipeline.
func (c *Conn) Send(v any) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.out <- v:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		c.log.Warn("outbound queue full, dropping message")
		return nil
	}
}

// Close tears the websocket down. Idempotent.
func (c *Conn) Close() error {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close(websocket.StatusNormalClosure, "bye")
	})
	return nil
}

// serve runs the connection lifecycle: writer, heartbeat, and the read
// loop. Blocks until the connection ends; the caller handles OnDisconnect.
func (c *Conn) serve(ctx context.Context, h Handler, heartbeat time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.Close()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.writeLoop(ctx)
	}()

	if heartbeat > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.heartbeatLoop(ctx, heartbeat)
		}()
	}

	c.readLoop(ctx, h)
	cancel()
	wg.Wait()
}

func (c *Conn) writeLoop(ctx context.Context) {
	for {
		select {
		case v := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := wsjson.Write(wctx, c.ws, v)
			cancel()
			if err != nil {
				c.log.Debug("write failed, closing connection", "error", err)
				c.Close()
				return
			}
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}
	}
}

// heartbeatLoop pings on a fixed cadence. A ping that goes unanswered for a
// full interval ends the connection.
func (c *Conn) heartbeatLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			missed := c.awaitingPong
			c.awaitingPong = true
			c.mu.Unlock()
			if missed {
				c.log.Info("heartbeat missed, closing connection",
					"participant_id", c.ParticipantID())
				c.Close()
				return
			}
			_ = c.Send(HeartbeatPing{Type: TypeHeartbeatPing})
		case <-ctx.Done():
			return
		case <-c.done:
			return
		}
	}
}

func (c *Conn) notePong() {
	c.mu.Lock()
	c.awaitingPong = false
	c.mu.Unlock()
}

func (c *Conn) readLoop(ctx context.Context, h Handler) {
	for {
		typ, raw, err := c.ws.Read(ctx)
		if err != nil {
			return
		}

		// Binary frames are raw PCM audio; everything else is framed JSON.
		if typ == websocket.MessageBinary {
			if c.ParticipantID() == "" {
				_ = c.Send(ProtocolError{Type: TypeError, Message: "join before streaming audio"})
				continue
			}
			h.OnAudio(c, raw)
			continue
		}
		if typ != websocket.MessageText {
			continue
		}

		msg, err := decode(raw)
		if err != nil {
			c.log.Debug("rejecting frame", "error", err)
			_ = c.Send(ProtocolError{Type: TypeError, Message: err.Error()})
			continue
		}

		switch m := msg.(type) {
		case JoinSession:
			h.OnJoin(ctx, c, m)
		case StreamingAudio:
			if c.ParticipantID() == "" {
				_ = c.Send(ProtocolError{Type: TypeError, Message: "join before streaming audio"})
				continue
			}
			pcm, err := base64.StdEncoding.DecodeString(m.Audio)
			if err != nil {
				_ = c.Send(ProtocolError{Type: TypeError, Message: "audio is not valid base64"})
				continue
			}
			h.OnAudio(c, pcm)
		case HeartbeatPong:
			c.notePong()
		}
	}
}
