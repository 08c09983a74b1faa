package transport

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

func TestDecode(t *testing.T) {
	t.Run("join-session", func(t *testing.T) {
		msg, err := decode([]byte(`{"type":"join-session","role":"patient","language":"tr","voiceId":"v1"}`))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		join, ok := msg.(JoinSession)
		if !ok {
			t.Fatalf("decoded %T, want JoinSession", msg)
		}
		if join.Role != "patient" || join.Language != "tr" || join.VoiceID != "v1" {
			t.Errorf("join = %+v", join)
		}
	})

	t.Run("streaming-audio", func(t *testing.T) {
		msg, err := decode([]byte(`{"type":"streaming-audio","audio":"AAAA"}`))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if _, ok := msg.(StreamingAudio); !ok {
			t.Fatalf("decoded %T, want StreamingAudio", msg)
		}
	})

	t.Run("heartbeat-pong", func(t *testing.T) {
		msg, err := decode([]byte(`{"type":"heartbeat-pong"}`))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if _, ok := msg.(HeartbeatPong); !ok {
			t.Fatalf("decoded %T, want HeartbeatPong", msg)
		}
	})

	t.Run("unknown type", func(t *testing.T) {
		if _, err := decode([]byte(`{"type":"mystery"}`)); err == nil {
			t.Error("expected error for unknown type")
		}
	})

	t.Run("malformed json", func(t *testing.T) {
		if _, err := decode([]byte(`{"type":`)); err == nil {
			t.Error("expected error for malformed frame")
		}
	})
}

// recordingHandler captures callbacks for lifecycle tests.
type recordingHandler struct {
	mu          sync.Mutex
	joins       []JoinSession
	audio       [][]byte
	disconnects int
}

func (h *recordingHandler) OnJoin(_ context.Context, c *Conn, join JoinSession) {
	h.mu.Lock()
	h.joins = append(h.joins, join)
	h.mu.Unlock()
	c.BindParticipant("p1")
	_ = c.Send(SessionJoined{Type: TypeSessionJoined, SessionID: "s1", ParticipantID: "p1"})
}

func (h *recordingHandler) OnAudio(_ *Conn, pcm []byte) {
	h.mu.Lock()
	h.audio = append(h.audio, pcm)
	h.mu.Unlock()
}

func (h *recordingHandler) OnDisconnect(_ *Conn) {
	h.mu.Lock()
	h.disconnects++
	h.mu.Unlock()
}

// startPair serves one websocket connection through h and dials it.
func startPair(t *testing.T, h Handler, heartbeat time.Duration) *websocket.Conn {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		c := newConn(ws, slog.Default())
		c.serve(r.Context(), h, heartbeat)
		h.OnDisconnect(c)
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	ws, _, err := websocket.Dial(ctx, "ws://"+strings.TrimPrefix(srv.URL, "http://"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close(websocket.StatusNormalClosure, "") })
	return ws
}

func readMsg(t *testing.T, ws *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var m map[string]any
	if err := wsjson.Read(ctx, ws, &m); err != nil {
		t.Fatalf("read: %v", err)
	}
	return m
}

func TestConn_JoinAndAudio(t *testing.T) {
	h := &recordingHandler{}
	ws := startPair(t, h, 0)

	ctx := context.Background()
	if err := wsjson.Write(ctx, ws, JoinSession{Type: TypeJoinSession, Role: "patient", Language: "tr", VoiceID: "v1"}); err != nil {
		t.Fatalf("write join: %v", err)
	}

	reply := readMsg(t, ws)
	if reply["type"] != TypeSessionJoined {
		t.Fatalf("reply type = %v, want session-joined", reply["type"])
	}
	if reply["participantId"] != "p1" {
		t.Errorf("participantId = %v", reply["participantId"])
	}

	pcm := []byte{1, 2, 3, 4}
	if err := wsjson.Write(ctx, ws, StreamingAudio{Type: TypeStreamingAudio, Audio: base64.StdEncoding.EncodeToString(pcm)}); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		h.mu.Lock()
		n := len(h.audio)
		h.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("audio frame never delivered")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestConn_BinaryAudioFrame(t *testing.T) {
	h := &recordingHandler{}
	ws := startPair(t, h, 0)

	ctx := context.Background()
	if err := wsjson.Write(ctx, ws, JoinSession{Type: TypeJoinSession, Role: "patient", Language: "tr", VoiceID: "v1"}); err != nil {
		t.Fatalf("write join: %v", err)
	}
	if reply := readMsg(t, ws); reply["type"] != TypeSessionJoined {
		t.Fatalf("reply type = %v, want session-joined", reply["type"])
	}

	pcm := []byte{5, 6, 7, 8}
	if err := ws.Write(ctx, websocket.MessageBinary, pcm); err != nil {
		t.Fatalf("write binary frame: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		h.mu.Lock()
		n := len(h.audio)
		h.mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("binary audio frame never delivered")
		case <-time.After(5 * time.Millisecond):
		}
	}
	h.mu.Lock()
	got := h.audio[0]
	h.mu.Unlock()
	if string(got) != string(pcm) {
		t.Errorf("delivered frame = %v, want %v", got, pcm)
	}
}

func TestConn_BinaryBeforeJoinRejected(t *testing.T) {
	h := &recordingHandler{}
	ws := startPair(t, h, 0)

	ctx := context.Background()
	if err := ws.Write(ctx, websocket.MessageBinary, []byte{1, 2}); err != nil {
		t.Fatalf("write: %v", err)
	}

	reply := readMsg(t, ws)
	if reply["type"] != TypeError {
		t.Fatalf("reply type = %v, want error", reply["type"])
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.audio) != 0 {
		t.Error("unjoined binary audio reached the handler")
	}
}

func TestConn_AudioBeforeJoinRejected(t *testing.T) {
	h := &recordingHandler{}
	ws := startPair(t, h, 0)

	ctx := context.Background()
	if err := wsjson.Write(ctx, ws, StreamingAudio{Type: TypeStreamingAudio, Audio: "AAAA"}); err != nil {
		t.Fatalf("write: %v", err)
	}

	reply := readMsg(t, ws)
	if reply["type"] != TypeError {
		t.Fatalf("reply type = %v, want error", reply["type"])
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.audio) != 0 {
		t.Error("unjoined audio reached the handler")
	}
}

func TestConn_HeartbeatDisconnectsSilentClient(t *testing.T) {
	h := &recordingHandler{}
	ws := startPair(t, h, 30*time.Millisecond)

	// First message must be the ping.
	if m := readMsg(t, ws); m["type"] != TypeHeartbeatPing {
		t.Fatalf("first message = %v, want heartbeat-ping", m["type"])
	}

	// Never answer: the server closes within one further interval.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		var m map[string]any
		if err := wsjson.Read(ctx, ws, &m); err != nil {
			return // closed as expected
		}
	}
}

func TestConn_PongKeepsConnectionAlive(t *testing.T) {
	h := &recordingHandler{}
	ws := startPair(t, h, 40*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Answer three pings; the connection must survive all of them.
	for i := 0; i < 3; i++ {
		var m map[string]any
		if err := wsjson.Read(ctx, ws, &m); err != nil {
			t.Fatalf("connection closed on ping %d: %v", i, err)
		}
		if m["type"] != TypeHeartbeatPing {
			continue
		}
		if err := wsjson.Write(ctx, ws, HeartbeatPong{Type: TypeHeartbeatPong}); err != nil {
			t.Fatalf("write pong: %v", err)
		}
	}
}

func TestConn_SendAfterClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		c := newConn(ws, slog.Default())
		c.Close()
		if err := c.Send(HeartbeatPing{Type: TypeHeartbeatPing}); err != ErrConnClosed {
			t.Errorf("Send after Close = %v, want ErrConnClosed", err)
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ws, _, err := websocket.Dial(ctx, "ws://"+strings.TrimPrefix(srv.URL, "http://"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	ws.Close(websocket.StatusNormalClosure, "")
}
