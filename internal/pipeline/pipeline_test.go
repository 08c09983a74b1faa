package pipeline

import (
	"context"
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/voxbridge/voxbridge/internal/asr"
	"github.com/voxbridge/voxbridge/internal/config"
	"github.com/voxbridge/voxbridge/internal/registry"
	"github.com/voxbridge/voxbridge/internal/resilience"
	"github.com/voxbridge/voxbridge/internal/synth"
	"github.com/voxbridge/voxbridge/internal/transport"
	asrprov "github.com/voxbridge/voxbridge/pkg/provider/asr"
	asrmock "github.com/voxbridge/voxbridge/pkg/provider/asr/mock"
	"github.com/voxbridge/voxbridge/pkg/provider/mt"
	mtmock "github.com/voxbridge/voxbridge/pkg/provider/mt/mock"
	"github.com/voxbridge/voxbridge/pkg/provider/tts"
	ttsmock "github.com/voxbridge/voxbridge/pkg/provider/tts/mock"
	"github.com/voxbridge/voxbridge/pkg/types"
)

// fakeConn is an in-memory clientConn recording everything sent to it.
type fakeConn struct {
	mu     sync.Mutex
	pid    string
	msgs   []any
	closed bool
}

func (f *fakeConn) Send(v any) error {
	f.mu.Lock()
	f.msgs = append(f.msgs, v)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) BindParticipant(id string) {
	f.mu.Lock()
	f.pid = id
	f.mu.Unlock()
}

func (f *fakeConn) ParticipantID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pid
}

func (f *fakeConn) all() []any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]any, len(f.msgs))
	copy(out, f.msgs)
	return out
}

func countType[T any](f *fakeConn) int {
	n := 0
	for _, m := range f.all() {
		if _, ok := m.(T); ok {
			n++
		}
	}
	return n
}

func lastOf[T any](f *fakeConn) (T, bool) {
	var out T
	found := false
	for _, m := range f.all() {
		if v, ok := m.(T); ok {
			out, found = v, true
		}
	}
	return out, found
}

// asrFactory creates one mock session per StartStream, retrievable by
// language.
type asrFactory struct {
	mu       sync.Mutex
	sessions map[string]*asrmock.Session
}

func (f *asrFactory) StartStream(_ context.Context, cfg asrprov.StreamConfig) (asrprov.SessionHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sessions == nil {
		f.sessions = make(map[string]*asrmock.Session)
	}
	s := asrmock.NewSession()
	f.sessions[cfg.Language] = s
	return s, nil
}

func (f *asrFactory) byLang(t *testing.T, lang string) *asrmock.Session {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		f.mu.Lock()
		s := f.sessions[lang]
		f.mu.Unlock()
		if s != nil {
			return s
		}
		select {
		case <-deadline:
			t.Fatalf("no asr session opened for %s", lang)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

type env struct {
	co  *Coordinator
	reg *registry.Registry
	asr *asrFactory
	mt  *mtmock.Provider
	tts tts.Provider
}

func newEnv(t *testing.T, ttsProvider tts.Provider) *env {
	t.Helper()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	factory := &asrFactory{}
	asrClient := asr.NewClient(asr.Config{
		Streaming: []asr.Named{{Name: "mock", Provider: factory}},
	}, nil)

	mtProv := &mtmock.Provider{}
	chain := resilience.NewChain[mt.Provider](resilience.BreakerConfig{})
	chain.Add("mock", mtProv)
	translator, err := NewChainTranslator(chain, cfg.Translation, nil)
	if err != nil {
		t.Fatalf("translator: %v", err)
	}

	if ttsProvider == nil {
		ttsProvider = &ttsmock.Provider{}
	}
	synthClient := synth.NewClient("mock", ttsProvider, cfg.Synthesis, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	reg := registry.New(0)
	co := NewCoordinator(ctx, *cfg, reg, asrClient, translator, synthClient, nil)
	return &env{co: co, reg: reg, asr: factory, mt: mtProv, tts: ttsProvider}
}

func waitUntil(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %s", what)
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func join(e *env, c *fakeConn, role, lang, voice string) {
	e.co.handleJoin(c, transport.JoinSession{
		Type: transport.TypeJoinSession, Role: role, Language: lang, VoiceID: voice,
	})
}

func TestJoin_PairingLifecycle(t *testing.T) {
	e := newEnv(t, nil)

	a := &fakeConn{}
	join(e, a, "doctor", "tr", "v_tr")

	if countType[transport.SessionJoined](a) != 1 {
		t.Fatal("first joiner did not get session-joined")
	}
	if countType[transport.WaitingForPartner](a) != 1 {
		t.Fatal("first joiner did not get waiting-for-partner")
	}

	b := &fakeConn{}
	join(e, b, "patient", "en", "v_en")

	readyA, okA := lastOf[transport.SessionReady](a)
	readyB, okB := lastOf[transport.SessionReady](b)
	if !okA || !okB {
		t.Fatal("session-ready missing on one side")
	}
	if readyA.PartnerLanguage != "en" || readyB.PartnerLanguage != "tr" {
		t.Errorf("partner languages = %q/%q, want en/tr", readyA.PartnerLanguage, readyB.PartnerLanguage)
	}
	if readyA.PartnerRole != "patient" || readyB.PartnerRole != "doctor" {
		t.Errorf("partner roles = %q/%q", readyA.PartnerRole, readyB.PartnerRole)
	}

	sess, ok := e.reg.GetSession(readyA.SessionID)
	if !ok || sess.Status() != registry.StatusActive {
		t.Error("session not active after pairing")
	}
}

func TestJoin_SameLanguageStaysPending(t *testing.T) {
	e := newEnv(t, nil)

	a := &fakeConn{}
	join(e, a, "doctor", "tr", "v_tr")
	c := &fakeConn{}
	join(e, c, "patient", "tr", "v_tr2")

	if countType[transport.WaitingForPartner](c) != 1 {
		t.Error("same-language joiner was not parked")
	}
	if countType[transport.SessionReady](a)+countType[transport.SessionReady](c) != 0 {
		t.Error("session-ready sent despite language clash")
	}
}

func TestJoin_InvalidPayloadRejected(t *testing.T) {
	e := newEnv(t, nil)

	c := &fakeConn{}
	e.co.handleJoin(c, transport.JoinSession{Type: transport.TypeJoinSession, Role: "doctor", Language: "tr"})

	if countType[transport.ProtocolError](c) != 1 {
		t.Fatal("missing voiceId was not rejected")
	}
	if _, _, parts, _ := e.reg.Counts(); parts != 0 {
		t.Error("invalid join registered a participant")
	}
}

// activePair joins an en speaker and a tr listener and returns their conns.
func activePair(t *testing.T, e *env) (speaker, partner *fakeConn) {
	t.Helper()
	partner = &fakeConn{}
	join(e, partner, "doctor", "tr", "v_tr")
	speaker = &fakeConn{}
	join(e, speaker, "patient", "en", "v_en")
	waitUntil(t, "session activation", func() bool {
		return countType[transport.SessionReady](speaker) == 1
	})
	return speaker, partner
}

func TestUtterance_TranslatedAndRoutedToPartner(t *testing.T) {
	e := newEnv(t, nil)
	speaker, partner := activePair(t, e)

	sess := e.asr.byLang(t, "en")
	sess.ResultsCh <- types.Transcript{Text: "hello", Confidence: 0.5, Language: "en"}
	sess.ResultsCh <- types.Transcript{Text: "hello, how are you", Confidence: 0.92, Language: "en", IsFinal: true}

	waitUntil(t, "synthesized audio at partner", func() bool {
		return countType[transport.SynthesizedAudio](partner) >= 1
	})

	// The speaker sees its own transcription stream.
	if n := countType[transport.LiveTranscription](speaker); n != 2 {
		t.Errorf("speaker transcriptions = %d, want 2", n)
	}

	selfTr, ok := lastOf[transport.LiveTranslation](speaker)
	if !ok || selfTr.Speaker != "self" {
		t.Errorf("speaker live-translation = %+v, want speaker=self", selfTr)
	}
	if selfTr.Text != "tr:hello, how are you" {
		t.Errorf("translated text = %q", selfTr.Text)
	}
	if selfTr.FromLanguage != "en" || selfTr.ToLanguage != "tr" {
		t.Errorf("languages = %s→%s", selfTr.FromLanguage, selfTr.ToLanguage)
	}
	if selfTr.Confidence != 0.92 {
		t.Errorf("translation confidence = %f, want 0.92", selfTr.Confidence)
	}
	if selfTr.Emotion == "" || selfTr.EmotionIntensity <= 0 {
		t.Errorf("emotion summary missing: %q/%f", selfTr.Emotion, selfTr.EmotionIntensity)
	}

	partnerTr, ok := lastOf[transport.LiveTranslation](partner)
	if !ok || partnerTr.Speaker != "partner" {
		t.Errorf("partner live-translation = %+v, want speaker=partner", partnerTr)
	}

	// Audio reaches the partner only, and decodes to the provider's output.
	sa, _ := lastOf[transport.SynthesizedAudio](partner)
	decoded, err := base64.StdEncoding.DecodeString(sa.Audio)
	if err != nil {
		t.Fatalf("audio is not base64: %v", err)
	}
	if string(decoded) != "audio:tr:hello, how are you" {
		t.Errorf("audio = %q", decoded)
	}
	if sa.TargetLanguage != "tr" {
		t.Errorf("target language = %q, want tr", sa.TargetLanguage)
	}
	if countType[transport.SynthesizedAudio](speaker) != 0 {
		t.Error("speaker received its own synthesized audio")
	}

	stats, ok := lastOf[transport.LatencyStats](speaker)
	if !ok {
		t.Fatal("speaker got no latency-stats")
	}
	if stats.TotalMs < 0 || stats.SessionAvgMs < 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestUtterance_DuplicateFinalFiresOnce(t *testing.T) {
	e := newEnv(t, nil)
	_, partner := activePair(t, e)

	sess := e.asr.byLang(t, "en")
	sess.ResultsCh <- types.Transcript{Text: "thank you doctor", Confidence: 0.9, Language: "en", IsFinal: true}
	sess.ResultsCh <- types.Transcript{Text: "thank you doctor", Confidence: 0.9, Language: "en", IsFinal: true}

	waitUntil(t, "first synthesis", func() bool {
		return countType[transport.SynthesizedAudio](partner) >= 1
	})
	time.Sleep(50 * time.Millisecond)

	if got := e.mt.CallCount(); got != 1 {
		t.Errorf("translate calls = %d, want 1 (duplicate suppressed)", got)
	}
	if got := countType[transport.SynthesizedAudio](partner); got != 1 {
		t.Errorf("synthesized-audio messages = %d, want 1", got)
	}
}

func TestTranslationFailure_SurfacesPipelineError(t *testing.T) {
	e := newEnv(t, nil)
	speaker, partner := activePair(t, e)

	// Both the first call and its one retry fail.
	e.mt.Errs = []error{
		&mt.ProviderError{Provider: "mock", Status: 500, Temporary: true, Message: "boom"},
		&mt.ProviderError{Provider: "mock", Status: 500, Temporary: true, Message: "boom"},
	}

	sess := e.asr.byLang(t, "en")
	sess.ResultsCh <- types.Transcript{Text: "hello, how are you", Confidence: 0.92, Language: "en", IsFinal: true}

	waitUntil(t, "pipeline error", func() bool {
		last, ok := lastOf[transport.StageError](speaker)
		return ok && last.Type == transport.TypePipelineError
	})
	if countType[transport.SynthesizedAudio](partner) != 0 {
		t.Error("synthesis ran despite translation failure")
	}
}

// blockingTTS emits one chunk and then holds the stream open until release
// or cancellation.
type blockingTTS struct {
	mu      sync.Mutex
	release chan struct{}
	calls   int
}

func (b *blockingTTS) Synthesize(ctx context.Context, req tts.Request) (<-chan []byte, error) {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()

	ch := make(chan []byte, 1)
	ch <- []byte("audio:" + req.Text)
	go func() {
		defer close(ch)
		select {
		case <-b.release:
			select {
			case ch <- []byte("tail"):
			case <-ctx.Done():
			}
		case <-ctx.Done():
		}
	}()
	return ch, nil
}

func TestDisconnect_CancelsInFlightSynthesis(t *testing.T) {
	blocking := &blockingTTS{release: make(chan struct{})}
	e := newEnv(t, blocking)
	speaker, partner := activePair(t, e)

	sess := e.asr.byLang(t, "en")
	sess.ResultsCh <- types.Transcript{Text: "hello, how are you", Confidence: 0.92, Language: "en", IsFinal: true}

	waitUntil(t, "first audio chunk", func() bool {
		return countType[transport.SynthesizedAudio](partner) >= 1
	})

	// Speaker drops mid-stream.
	e.co.handleLeave(speaker)

	waitUntil(t, "partner notification", func() bool {
		return countType[transport.PartnerDisconnected](partner) == 1 &&
			countType[transport.WaitingForPartner](partner) >= 1
	})

	// No further audio arrives after cancellation.
	time.Sleep(50 * time.Millisecond)
	if got := countType[transport.SynthesizedAudio](partner); got != 1 {
		t.Errorf("audio after disconnect = %d messages, want 1", got)
	}

	// The partner is pairable again; a new speaker forms a fresh session.
	next := &fakeConn{}
	join(e, next, "patient", "en", "v_en2")
	waitUntil(t, "new session", func() bool {
		return countType[transport.SessionReady](next) == 1
	})
}

func TestReconnect_PreservesSessionAndPipeline(t *testing.T) {
	e := newEnv(t, nil)
	speaker, partner := activePair(t, e)

	pid := speaker.ParticipantID()

	// Same triple: transport swap, same participant and session.
	fresh := &fakeConn{}
	join(e, fresh, "patient", "en", "v_en")

	if fresh.ParticipantID() != pid {
		t.Fatal("reconnect created a new participant")
	}
	if countType[transport.SessionReady](fresh) != 1 {
		t.Error("rejoiner did not get session-ready")
	}
	speaker.mu.Lock()
	closed := speaker.closed
	speaker.mu.Unlock()
	if !closed {
		t.Error("stale transport was not closed")
	}

	// The stale transport's disconnect must not tear the session down.
	e.co.handleLeave(speaker)
	p, ok := e.reg.GetParticipant(pid)
	if !ok {
		t.Fatal("participant removed by stale disconnect")
	}
	sess, _ := e.reg.GetSession(p.SessionID())
	if sess.Status() != registry.StatusActive {
		t.Error("session no longer active")
	}

	// The pipeline still routes to the swapped transport.
	sessASR := e.asr.byLang(t, "en")
	sessASR.ResultsCh <- types.Transcript{Text: "hello, how are you", Confidence: 0.92, Language: "en", IsFinal: true}
	waitUntil(t, "audio after reconnect", func() bool {
		return countType[transport.SynthesizedAudio](partner) >= 1
	})
}

func TestAudio_InvalidFrameRejected(t *testing.T) {
	e := newEnv(t, nil)
	speaker, _ := activePair(t, e)

	e.co.handleAudio(speaker, []byte{1, 2, 3}) // odd length
	if countType[transport.ProtocolError](speaker) != 1 {
		t.Error("invalid frame was not rejected")
	}
}

func TestAudio_FlowsToASR(t *testing.T) {
	e := newEnv(t, nil)
	speaker, _ := activePair(t, e)

	frame := make([]byte, 320)
	e.co.handleAudio(speaker, frame)

	sess := e.asr.byLang(t, "en")
	waitUntil(t, "frame at provider", func() bool {
		return sess.SendAudioCallCount() == 1
	})
}

func TestSweepSessions_EndsIdleSession(t *testing.T) {
	e := newEnv(t, nil)
	speaker, partner := activePair(t, e)

	if n := e.co.SweepSessions(time.Now()); n != 0 {
		t.Fatalf("fresh session reaped: %d", n)
	}
	if n := e.co.SweepSessions(time.Now().Add(10 * time.Minute)); n != 1 {
		t.Fatalf("reaped = %d, want 1", n)
	}

	for _, c := range []*fakeConn{speaker, partner} {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		if !closed {
			t.Error("participant transport left open after reaping")
		}
	}
	if active, _, parts, _ := e.reg.Counts(); active != 0 || parts != 0 {
		t.Errorf("registry not empty after sweep: %d active, %d participants", active, parts)
	}
}

func TestSweepSessions_ClosesStalePendingConn(t *testing.T) {
	e := newEnv(t, nil)

	waiter := &fakeConn{}
	join(e, waiter, "doctor", "tr", "v_tr")

	if n := e.co.SweepSessions(time.Now().Add(31 * time.Minute)); n != 1 {
		t.Fatalf("reaped = %d, want 1", n)
	}
	waiter.mu.Lock()
	closed := waiter.closed
	waiter.mu.Unlock()
	if !closed {
		t.Error("stale waiter's transport left open after reaping")
	}
	if _, pending, parts, waiting := e.reg.Counts(); pending != 0 || parts != 0 || waiting != 0 {
		t.Errorf("registry not empty after sweep: %d pending, %d participants, %d waiting", pending, parts, waiting)
	}
}
