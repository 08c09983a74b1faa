package pipeline

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/voxbridge/voxbridge/internal/asr"
	"github.com/voxbridge/voxbridge/internal/emotion"
	"github.com/voxbridge/voxbridge/internal/gate"
	"github.com/voxbridge/voxbridge/internal/registry"
	"github.com/voxbridge/voxbridge/internal/synth"
	"github.com/voxbridge/voxbridge/internal/transport"
	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/types"
)

// ringAge is how much recent audio the emotion analyzer sees.
const ringAge = 5 * time.Second

// utteranceBacklog bounds queued utterances per participant. The queue is the
// serialization point: one worker drains it, so translation and emission for
// consecutive utterances never reorder.
const utteranceBacklog = 16

// runtime is the per-participant pipeline: audio ingestion, the ASR handle,
// the utterance gate, and the translate→synthesize worker. Created when a
// session activates, destroyed when it ends.
type runtime struct {
	co   *Coordinator
	self *registry.Participant
	sess *registry.Session
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	ring      *audio.Ring
	asrHandle *asr.Handle
	gate      *gate.Gate
	utt       chan types.Utterance
	wg        sync.WaitGroup

	mu          sync.Mutex
	lastFrameAt time.Time
}

// newRuntime opens the ASR stream and starts the pipeline goroutines.
func (co *Coordinator) newRuntime(sess *registry.Session, p *registry.Participant) (*runtime, error) {
	ctx, cancel := context.WithCancel(co.ctx)

	handle, err := co.asr.Open(ctx, p.ID, p.Language)
	if err != nil {
		cancel()
		return nil, err
	}

	r := &runtime{
		co:        co,
		self:      p,
		sess:      sess,
		log:       co.log.With("participant_id", p.ID, "session_id", sess.ID),
		ctx:       ctx,
		cancel:    cancel,
		ring:      audio.NewRing(ringAge),
		asrHandle: handle,
		utt:       make(chan types.Utterance, utteranceBacklog),
	}
	r.gate = gate.New(co.cfg.Gate, gate.Params{
		ParticipantID: p.ID,
		Language:      p.Language,
		Role:          p.Role,
	}, r.enqueue)

	r.wg.Add(3)
	go r.transcriptLoop()
	go r.errorLoop()
	go r.processLoop()
	return r, nil
}

// stop tears the runtime down and cancels in-flight provider work.
func (r *runtime) stop() {
	r.cancel()
	r.gate.Close()
	_ = r.asrHandle.Close()
	r.wg.Wait()
}

// ingest handles one decoded PCM frame from the participant.
func (r *runtime) ingest(pcm []byte) {
	r.ring.Append(pcm)
	r.sess.RecordMessage()

	r.mu.Lock()
	r.lastFrameAt = time.Now()
	r.mu.Unlock()

	_ = r.asrHandle.SendAudio(pcm)
}

// enqueue is the gate's fire callback. Drops under sustained backlog rather
// than blocking the gate's timer goroutine.
func (r *runtime) enqueue(u types.Utterance) {
	r.co.metrics.RecordUtterance(r.ctx, u.Language)
	select {
	case r.utt <- u:
	case <-r.ctx.Done():
	default:
		r.log.Warn("utterance backlog full, dropping", "text_len", len(u.Text))
	}
}

// transcriptLoop forwards recognition results to the speaker and the gate.
func (r *runtime) transcriptLoop() {
	defer r.wg.Done()
	for t := range r.asrHandle.Results() {
		r.send(r.self, transport.LiveTranscription{
			Type:       transport.TypeLiveTranscription,
			Text:       t.Text,
			IsFinal:    t.IsFinal,
			Confidence: t.Confidence,
			Language:   t.Language,
		})
		r.gate.Consider(t)
	}
}

// errorLoop surfaces recognition route exhaustion to the speaker.
func (r *runtime) errorLoop() {
	defer r.wg.Done()
	for err := range r.asrHandle.Errors() {
		r.log.Error("speech recognition failed", "error", err)
		r.sess.RecordError()
		r.send(r.self, transport.StageError{
			Type:    transport.TypeTranscriptionError,
			Message: "speech recognition is temporarily unavailable",
		})
	}
}

// processLoop drains fired utterances strictly in order.
func (r *runtime) processLoop() {
	defer r.wg.Done()
	for {
		select {
		case u := <-r.utt:
			r.process(u)
		case <-r.ctx.Done():
			return
		}
	}
}

// process runs one utterance through translate → synthesize → route to the
// partner. Emotion analysis runs in parallel with the translation call and
// degrades to the neutral profile on any failure.
func (r *runtime) process(u types.Utterance) {
	partner, ok := r.co.reg.FindPartner(r.self.ID)
	if !ok {
		r.log.Debug("utterance dropped, no partner", "text_len", len(u.Text))
		return
	}

	r.mu.Lock()
	lastFrame := r.lastFrameAt
	r.mu.Unlock()
	var transcriptionMs int64
	if !lastFrame.IsZero() && u.Timestamp.After(lastFrame) {
		transcriptionMs = u.Timestamp.Sub(lastFrame).Milliseconds()
	}

	profCh := make(chan types.EmotionalProfile, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.log.Warn("emotion analysis panicked", "panic", rec)
				profCh <- types.NeutralProfile()
			}
		}()
		profCh <- emotion.Analyze(r.ring.Snapshot(), u.Text, u.Language)
	}()

	mtStart := time.Now()
	tr, err := r.co.translator.Translate(r.ctx, u.Text, u.Language, partner.Language)
	translationMs := time.Since(mtStart).Milliseconds()
	r.co.metrics.MTDuration.Record(r.ctx, time.Since(mtStart).Seconds())
	if err != nil {
		r.log.Error("translation failed", "error", err)
		r.sess.RecordError()
		r.send(r.self, transport.StageError{
			Type:    transport.TypePipelineError,
			Message: "translation failed for the last utterance",
		})
		return
	}

	profile := <-profCh

	r.send(r.self, transport.LiveTranslation{
		Type:             transport.TypeLiveTranslation,
		Text:             tr.Text,
		OriginalText:     u.Text,
		IsFinal:          true,
		Speaker:          "self",
		FromLanguage:     u.Language,
		ToLanguage:       partner.Language,
		Confidence:       u.Confidence,
		Emotion:          string(profile.Primary),
		EmotionIntensity: profile.Intensity,
	})
	r.send(partner, transport.LiveTranslation{
		Type:             transport.TypeLiveTranslation,
		Text:             tr.Text,
		OriginalText:     u.Text,
		IsFinal:          true,
		Speaker:          "partner",
		FromLanguage:     u.Language,
		ToLanguage:       partner.Language,
		Confidence:       u.Confidence,
		Emotion:          string(profile.Primary),
		EmotionIntensity: profile.Intensity,
	})

	synthStart := time.Now()
	chunks, err := r.co.synth.Synthesize(r.ctx, synth.Request{
		VoiceID:  partner.VoiceID,
		Text:     tr.Text,
		Language: partner.Language,
		Profile:  &profile,
		IsFinal:  true,
	})
	if err != nil {
		if errors.Is(err, synth.ErrPartialTooShort) || errors.Is(err, synth.ErrEmptyText) {
			return
		}
		r.log.Error("synthesis failed", "error", err)
		r.sess.RecordError()
		r.send(r.self, transport.StageError{
			Type:    transport.TypeSynthesisError,
			Message: "synthesis failed for the last utterance",
		})
		return
	}

	// Synthesized audio goes to the partner and only the partner.
	var synthesisMs int64
	first := true
	for chunk := range chunks {
		if first {
			synthesisMs = time.Since(synthStart).Milliseconds()
			r.co.metrics.TTSDuration.Record(r.ctx, time.Since(synthStart).Seconds())
			first = false
		}
		r.send(partner, transport.SynthesizedAudio{
			Type:           transport.TypeSynthesizedAudio,
			Audio:          base64.StdEncoding.EncodeToString(chunk),
			TargetLanguage: partner.Language,
			IsFinal:        true,
		})
	}
	if first {
		// The stream produced nothing (cancelled before the first chunk).
		return
	}

	totalMs := time.Since(u.Timestamp).Milliseconds()
	r.co.metrics.PipelineDuration.Record(r.ctx, time.Since(u.Timestamp).Seconds())
	sessionAvg := r.sess.RecordTranslation(totalMs)

	r.send(r.self, transport.LatencyStats{
		Type:            transport.TypeLatencyStats,
		TranscriptionMs: transcriptionMs,
		TranslationMs:   translationMs,
		SynthesisMs:     synthesisMs,
		TotalMs:         totalMs,
		SessionAvgMs:    sessionAvg,
	})
}

// send resolves the participant's current transport and delivers one
// message. Resolution goes through the participant so reconnect swaps are
// picked up mid-stream.
func (r *runtime) send(p *registry.Participant, msg any) {
	conn := p.Conn()
	if conn == nil {
		return
	}
	if err := conn.Send(msg); err != nil {
		r.log.Debug("send failed", "to", p.ID, "error", err)
	}
}
