// Package pipeline orchestrates the relay: it receives client traffic from
// the transport layer, drives pairing through the registry, and runs one
// per-participant runtime (ASR handle, utterance gate, translate→synthesize
// worker) for every active session.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/voxbridge/voxbridge/internal/asr"
	"github.com/voxbridge/voxbridge/internal/config"
	"github.com/voxbridge/voxbridge/internal/health"
	"github.com/voxbridge/voxbridge/internal/observe"
	"github.com/voxbridge/voxbridge/internal/registry"
	"github.com/voxbridge/voxbridge/internal/synth"
	"github.com/voxbridge/voxbridge/internal/transport"
	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/provider/mt"
)

// Coordinator implements transport.Handler and owns all per-participant
// runtimes. One Coordinator serves the whole process.
type Coordinator struct {
	cfg        config.Config
	reg        *registry.Registry
	asr        *asr.Client
	translator *mt.Client
	synth      *synth.Client
	metrics    *observe.Metrics
	log        *slog.Logger
	ctx        context.Context

	mu       sync.Mutex
	runtimes map[string]*runtime

	gaugeMu     sync.Mutex
	lastActive  int
	lastParts   int
	lastWaiting int
}

// NewCoordinator wires the pipeline. ctx is the process lifetime; cancelling
// it stops every runtime.
func NewCoordinator(ctx context.Context, cfg config.Config, reg *registry.Registry, asrClient *asr.Client, translator *mt.Client, synthClient *synth.Client, metrics *observe.Metrics) *Coordinator {
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Coordinator{
		cfg:        cfg,
		reg:        reg,
		asr:        asrClient,
		translator: translator,
		synth:      synthClient,
		metrics:    metrics,
		log:        slog.Default().With("component", "pipeline"),
		ctx:        ctx,
		runtimes:   make(map[string]*runtime),
	}
}

// Snapshot feeds the health endpoints.
func (co *Coordinator) Snapshot() health.Snapshot {
	active, pending, parts, waiting := co.reg.Counts()
	return health.Snapshot{
		ActiveSessions:  active,
		PendingSessions: pending,
		Participants:    parts,
		Waiting:         waiting,
	}
}

// clientConn is what the coordinator needs from a transport connection.
// *transport.Conn satisfies it; tests substitute fakes.
type clientConn interface {
	registry.Sender
	BindParticipant(id string)
	ParticipantID() string
}

// OnJoin implements transport.Handler.
func (co *Coordinator) OnJoin(_ context.Context, c *transport.Conn, join transport.JoinSession) {
	co.handleJoin(c, join)
}

// OnAudio implements transport.Handler.
func (co *Coordinator) OnAudio(c *transport.Conn, pcm []byte) {
	co.handleAudio(c, pcm)
}

// OnDisconnect implements transport.Handler.
func (co *Coordinator) OnDisconnect(c *transport.Conn) {
	co.handleLeave(c)
}

// handleJoin validates a join-session request, registers the participant,
// and either activates a session or parks the joiner in a pairing queue.
func (co *Coordinator) handleJoin(c clientConn, join transport.JoinSession) {
	if join.Role == "" || join.Language == "" || join.VoiceID == "" {
		_ = c.Send(transport.ProtocolError{
			Type:    transport.TypeError,
			Message: "join-session requires role, language, and voiceId",
		})
		return
	}

	sess, p, outcome := co.reg.AddUser(join.Role, join.Language, join.VoiceID, c)
	c.BindParticipant(p.ID)
	defer co.updateGauges()

	_ = c.Send(transport.SessionJoined{
		Type:          transport.TypeSessionJoined,
		SessionID:     sess.ID,
		ParticipantID: p.ID,
	})

	switch outcome {
	case registry.OutcomeWaiting:
		_ = c.Send(transport.WaitingForPartner{Type: transport.TypeWaitingForPartner})

	case registry.OutcomeMatched:
		co.startSession(sess)

	case registry.OutcomeReconnected:
		if sess.Status() == registry.StatusActive {
			if partner := sess.Partner(p.ID); partner != nil {
				_ = c.Send(transport.SessionReady{
					Type:            transport.TypeSessionReady,
					SessionID:       sess.ID,
					PartnerLanguage: partner.Language,
					PartnerRole:     partner.Role,
				})
			}
		} else {
			_ = c.Send(transport.WaitingForPartner{Type: transport.TypeWaitingForPartner})
		}
	}
}

// startSession creates both runtimes and announces readiness to both sides.
func (co *Coordinator) startSession(sess *registry.Session) {
	members := sess.Participants()
	for _, p := range members {
		rt, err := co.newRuntime(sess, p)
		if err != nil {
			co.log.Error("asr open failed at session start",
				"participant_id", p.ID, "error", err)
			if conn := p.Conn(); conn != nil {
				_ = conn.Send(transport.StageError{
					Type:    transport.TypeTranscriptionError,
					Message: "speech recognition is temporarily unavailable",
				})
			}
			continue
		}
		co.mu.Lock()
		co.runtimes[p.ID] = rt
		co.mu.Unlock()
	}

	for _, p := range members {
		partner := sess.Partner(p.ID)
		if partner == nil {
			continue
		}
		if conn := p.Conn(); conn != nil {
			_ = conn.Send(transport.SessionReady{
				Type:            transport.TypeSessionReady,
				SessionID:       sess.ID,
				PartnerLanguage: partner.Language,
				PartnerRole:     partner.Role,
			})
		}
	}
	co.log.Info("session started", "session_id", sess.ID)
}

// handleAudio feeds one decoded PCM frame into the participant's runtime.
// Frames from a waiting participant are acknowledged but not processed.
func (co *Coordinator) handleAudio(c clientConn, pcm []byte) {
	if err := audio.ValidateFrame(pcm); err != nil {
		_ = c.Send(transport.ProtocolError{
			Type:    transport.TypeError,
			Message: err.Error(),
		})
		return
	}

	pid := c.ParticipantID()
	co.reg.Touch(pid)

	co.mu.Lock()
	rt := co.runtimes[pid]
	co.mu.Unlock()
	if rt != nil {
		rt.ingest(pcm)
	}
}

// handleLeave tears the participant down and requeues its partner. A stale
// connection left over from a reconnect swap is ignored.
func (co *Coordinator) handleLeave(c clientConn) {
	pid := c.ParticipantID()
	if pid == "" {
		return
	}
	if p, ok := co.reg.GetParticipant(pid); ok && p.Conn() != registry.Sender(c) {
		co.log.Debug("ignoring stale transport", "participant_id", pid)
		return
	}
	defer co.updateGauges()

	ended, partner := co.reg.RemoveUser(pid)
	co.stopRuntime(pid)

	if ended == nil {
		return
	}
	if partner != nil {
		co.stopRuntime(partner.ID)
		if conn := partner.Conn(); conn != nil {
			_ = conn.Send(transport.PartnerDisconnected{Type: transport.TypePartnerDisconnected})
			_ = conn.Send(transport.WaitingForPartner{Type: transport.TypeWaitingForPartner})
		}
	}
}

// SweepSessions applies the registry reaping rules and tears down the
// runtimes of every session that ended. Called by the reaper.
func (co *Coordinator) SweepSessions(now time.Time) int {
	ended := co.reg.Sweep(now,
		co.cfg.Reaper.SessionIdle.Std(),
		co.cfg.Reaper.PendingMaxAge.Std())
	for _, sess := range ended {
		for _, p := range sess.Participants() {
			co.stopRuntime(p.ID)
			if conn := p.Conn(); conn != nil {
				_ = conn.Close()
			}
		}
	}
	co.updateGauges()
	return len(ended)
}

func (co *Coordinator) stopRuntime(pid string) {
	co.mu.Lock()
	rt := co.runtimes[pid]
	delete(co.runtimes, pid)
	co.mu.Unlock()
	if rt != nil {
		rt.stop()
	}
}

// updateGauges reconciles the session gauges against the registry counts.
func (co *Coordinator) updateGauges() {
	active, _, parts, waiting := co.reg.Counts()
	co.gaugeMu.Lock()
	defer co.gaugeMu.Unlock()
	co.metrics.ActiveSessions.Add(co.ctx, int64(active-co.lastActive))
	co.metrics.ActiveParticipants.Add(co.ctx, int64(parts-co.lastParts))
	co.metrics.WaitingParticipants.Add(co.ctx, int64(waiting-co.lastWaiting))
	co.lastActive, co.lastParts, co.lastWaiting = active, parts, waiting
}
