// Package registry owns the session control plane: participants, sessions,
// and the first-come-first-served pairing queues that bind two speakers of
// different languages into a session.
//
// The registry is a process-wide singleton guarded by a single read-biased
// lock. Pipeline tasks never touch its internals; they interact through the
// narrow operation set (AddUser, RemoveUser, GetSession, FindPartner).
package registry

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// defaultEndedGrace is how long an Ended session stays discoverable for
// idempotent cleanup notifications before it is garbage-collected, when no
// reconnect window is configured.
const defaultEndedGrace = 30 * time.Second

// Status is a session's lifecycle state.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusEnded   Status = "ended"
)

// Sender is the transport attachment of a participant. The registry treats
// it as opaque; reconnection swaps it in place.
type Sender interface {
	// Send writes one JSON control message to the client.
	Send(v any) error

	// Close tears the transport down.
	Close() error
}

// Participant is one speaker's registry entry.
type Participant struct {
	ID       string
	Role     string
	Language string
	VoiceID  string
	JoinedAt time.Time

	// connMu guards conn alone; pipeline emissions read it outside the
	// registry lock.
	connMu sync.Mutex
	conn   Sender

	// mutable under the registry lock
	sessionID    string
	lastActivity time.Time
	enqueuedAt   time.Time
}

// Conn returns the current transport attachment.
func (p *Participant) Conn() Sender {
	p.connMu.Lock()
	defer p.connMu.Unlock()
	return p.conn
}

func (p *Participant) setConn(c Sender) (old Sender) {
	p.connMu.Lock()
	old = p.conn
	p.conn = c
	p.connMu.Unlock()
	return old
}

// SessionID returns the session this participant belongs to ("" when
// waiting).
func (p *Participant) SessionID() string { return p.sessionID }

// Stats are a session's rolling counters. Updated under the session's
// registry lock via the Record* methods.
type Stats struct {
	Messages     int
	Translations int
	Errors       int

	totalLatencyMs int64
}

// AvgLatencyMs is the rolling average total latency across the session.
func (s Stats) AvgLatencyMs() int64 {
	if s.Translations == 0 {
		return 0
	}
	return s.totalLatencyMs / int64(s.Translations)
}

// Session binds up to two participants. A Pending session holds exactly
// one; an Active session holds exactly two with different languages.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu           sync.Mutex
	status       Status
	endedAt      time.Time
	participants []*Participant
	stats        Stats
}

// Status returns the session's lifecycle state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// EndedAt returns when the session ended (zero while not Ended).
func (s *Session) EndedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endedAt
}

// Participants returns a copy of the participant list.
func (s *Session) Participants() []*Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Participant, len(s.participants))
	copy(out, s.participants)
	return out
}

// Partner returns the other participant, or nil when the session is not
// Active or participantID is not a member.
func (s *Session) Partner(participantID string) *Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.participants) != 2 {
		return nil
	}
	switch participantID {
	case s.participants[0].ID:
		return s.participants[1]
	case s.participants[1].ID:
		return s.participants[0]
	}
	return nil
}

// RecordMessage bumps the message counter.
func (s *Session) RecordMessage() {
	s.mu.Lock()
	s.stats.Messages++
	s.mu.Unlock()
}

// RecordTranslation folds one utterance's total latency into the rolling
// statistics and returns the updated session average.
func (s *Session) RecordTranslation(totalMs int64) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Translations++
	s.stats.totalLatencyMs += totalMs
	return s.stats.AvgLatencyMs()
}

// RecordError bumps the error counter.
func (s *Session) RecordError() {
	s.mu.Lock()
	s.stats.Errors++
	s.mu.Unlock()
}

// Stats returns a copy of the rolling counters.
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Outcome tells the caller what AddUser did.
type Outcome int

const (
	// OutcomeWaiting: no partner available; the participant was enqueued and
	// a Pending session created.
	OutcomeWaiting Outcome = iota

	// OutcomeMatched: a partner was found; the returned session is Active.
	OutcomeMatched

	// OutcomeReconnected: an existing participant matched by
	// (role, language, voiceID); only the transport was swapped.
	OutcomeReconnected
)

// Registry is the session control plane.
type Registry struct {
	log   *slog.Logger
	now   func() time.Time
	grace time.Duration

	mu           sync.RWMutex
	sessions     map[string]*Session
	participants map[string]*Participant
	waiting      map[string][]*Participant // role → FIFO
}

// New creates an empty registry. grace is how long Ended sessions stay
// discoverable (the reconnect window); zero selects the default.
func New(grace time.Duration) *Registry {
	if grace <= 0 {
		grace = defaultEndedGrace
	}
	return &Registry{
		log:          slog.Default().With("component", "registry"),
		now:          time.Now,
		grace:        grace,
		sessions:     make(map[string]*Session),
		participants: make(map[string]*Participant),
		waiting:      make(map[string][]*Participant),
	}
}

// AddUser registers a joining participant and applies the matching policy:
// reconnect by (role, language, voiceID), else pair with the earliest
// enqueued waiter of a different role speaking a different language, else
// enqueue into the joiner's own role list with a fresh Pending session.
func (r *Registry) AddUser(role, language, voiceID string, conn Sender) (*Session, *Participant, Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()

	// 1. Reconnection: swap the transport in place.
	for _, p := range r.participants {
		if p.Role == role && p.Language == language && p.VoiceID == voiceID {
			if old := p.setConn(conn); old != nil {
				_ = old.Close()
			}
			p.lastActivity = now
			r.log.Info("participant reconnected",
				"participant_id", p.ID, "session_id", p.sessionID)
			return r.sessions[p.sessionID], p, OutcomeReconnected
		}
	}

	p := &Participant{
		ID:           uuid.NewString(),
		Role:         role,
		Language:     language,
		VoiceID:      voiceID,
		JoinedAt:     now,
		conn:         conn,
		lastActivity: now,
	}
	r.participants[p.ID] = p

	// 2. Scan other roles' waiting lists for the earliest different-language
	// waiter.
	if w := r.takeWaiterLocked(role, language); w != nil {
		sess := r.sessions[w.sessionID]
		sess.mu.Lock()
		sess.status = StatusActive
		sess.participants = append(sess.participants, p)
		sess.mu.Unlock()
		p.sessionID = sess.ID

		r.log.Info("session activated",
			"session_id", sess.ID,
			"languages", []string{w.Language, p.Language})
		return sess, p, OutcomeMatched
	}

	// 3. No match: enqueue and create a Pending session.
	sess := &Session{
		ID:           uuid.NewString(),
		CreatedAt:    now,
		status:       StatusPending,
		participants: []*Participant{p},
	}
	r.sessions[sess.ID] = sess
	p.sessionID = sess.ID
	p.enqueuedAt = now
	r.waiting[role] = append(r.waiting[role], p)

	r.log.Info("participant waiting for partner",
		"participant_id", p.ID, "session_id", sess.ID, "language", language)
	return sess, p, OutcomeWaiting
}

// takeWaiterLocked removes and returns the earliest-enqueued waiter whose
// role and language both differ from the joiner's. The waiter's Pending
// session is removed; the caller folds the waiter into the joint session.
func (r *Registry) takeWaiterLocked(role, language string) *Participant {
	var (
		best     *Participant
		bestRole string
		bestIdx  int
	)
	for wRole, queue := range r.waiting {
		if wRole == role {
			continue
		}
		for i, w := range queue {
			if w.Language == language {
				continue
			}
			if best == nil || w.enqueuedAt.Before(best.enqueuedAt) {
				best, bestRole, bestIdx = w, wRole, i
			}
			break // queue is FIFO; the first eligible entry is its earliest
		}
	}
	if best == nil {
		return nil
	}

	r.waiting[bestRole] = append(r.waiting[bestRole][:bestIdx], r.waiting[bestRole][bestIdx+1:]...)
	return best
}

// RemoveUser drops a participant. If it was in an Active session the session
// is Ended and the partner is re-enqueued into its pairing queue with a
// fresh Pending session. Returns the ended session and the requeued partner
// (both nil-able).
func (r *Registry) RemoveUser(participantID string) (*Session, *Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[participantID]
	if !ok {
		return nil, nil
	}
	delete(r.participants, participantID)
	r.dequeueLocked(p)

	sess := r.sessions[p.sessionID]
	if sess == nil {
		return nil, nil
	}

	now := r.now()
	sess.mu.Lock()
	wasActive := sess.status == StatusActive
	var partner *Participant
	if wasActive {
		for _, sp := range sess.participants {
			if sp.ID != participantID {
				partner = sp
			}
		}
	}
	sess.status = StatusEnded
	sess.endedAt = now
	sess.mu.Unlock()

	if !wasActive {
		// A lone Pending participant leaves nothing behind.
		delete(r.sessions, sess.ID)
		return nil, nil
	}

	// Requeue the partner as Pending in a fresh session.
	if partner != nil {
		fresh := &Session{
			ID:           uuid.NewString(),
			CreatedAt:    now,
			status:       StatusPending,
			participants: []*Participant{partner},
		}
		r.sessions[fresh.ID] = fresh
		partner.sessionID = fresh.ID
		partner.enqueuedAt = now
		partner.lastActivity = now
		r.waiting[partner.Role] = append(r.waiting[partner.Role], partner)

		r.log.Info("partner requeued",
			"participant_id", partner.ID, "session_id", fresh.ID)
	}

	r.log.Info("session ended", "session_id", sess.ID)
	return sess, partner
}

// dequeueLocked removes p from its role's waiting list, if present.
func (r *Registry) dequeueLocked(p *Participant) {
	queue := r.waiting[p.Role]
	for i, w := range queue {
		if w.ID == p.ID {
			r.waiting[p.Role] = append(queue[:i], queue[i+1:]...)
			return
		}
	}
}

// GetSession returns a session by id. Ended sessions remain discoverable
// until their grace window lapses.
func (r *Registry) GetSession(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// GetParticipant returns a participant by id.
func (r *Registry) GetParticipant(id string) (*Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[id]
	return p, ok
}

// FindPartner returns the opposite participant of an Active session.
func (r *Registry) FindPartner(participantID string) (*Participant, bool) {
	r.mu.RLock()
	p, ok := r.participants[participantID]
	var sess *Session
	if ok {
		sess = r.sessions[p.sessionID]
	}
	r.mu.RUnlock()

	if sess == nil {
		return nil, false
	}
	partner := sess.Partner(participantID)
	return partner, partner != nil
}

// Touch refreshes a participant's last-activity timestamp.
func (r *Registry) Touch(participantID string) {
	r.mu.Lock()
	if p, ok := r.participants[participantID]; ok {
		p.lastActivity = r.now()
	}
	r.mu.Unlock()
}

// Counts reports registry sizes for health and metrics.
func (r *Registry) Counts() (activeSessions, pendingSessions, participants, waiting int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sessions {
		switch s.Status() {
		case StatusActive:
			activeSessions++
		case StatusPending:
			pendingSessions++
		}
	}
	participants = len(r.participants)
	for _, q := range r.waiting {
		waiting += len(q)
	}
	return
}

// Sweep applies the registry's reaping rules: garbage-collect Ended
// sessions past their grace window, end Active sessions where both
// participants have been silent longer than sessionIdle, and drop Pending
// sessions older than pendingMaxAge. Returns every session ended by this
// sweep, stale Pending ones included, so the caller can tear down their
// runtimes and close their transports.
func (r *Registry) Sweep(now time.Time, sessionIdle, pendingMaxAge time.Duration) []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	var ended []*Session
	for id, s := range r.sessions {
		s.mu.Lock()
		status := s.status
		switch status {
		case StatusEnded:
			if now.Sub(s.endedAt) > r.grace {
				delete(r.sessions, id)
			}
			s.mu.Unlock()

		case StatusPending:
			if now.Sub(s.CreatedAt) > pendingMaxAge {
				s.status = StatusEnded
				s.endedAt = now
				members := append([]*Participant(nil), s.participants...)
				s.mu.Unlock()
				for _, p := range members {
					delete(r.participants, p.ID)
					r.dequeueLocked(p)
				}
				delete(r.sessions, id)
				ended = append(ended, s)
				r.log.Info("reaped stale pending session", "session_id", id)
			} else {
				s.mu.Unlock()
			}

		case StatusActive:
			idle := true
			for _, p := range s.participants {
				if now.Sub(p.lastActivity) <= sessionIdle {
					idle = false
					break
				}
			}
			if idle {
				s.status = StatusEnded
				s.endedAt = now
				members := append([]*Participant(nil), s.participants...)
				s.mu.Unlock()
				for _, p := range members {
					delete(r.participants, p.ID)
				}
				ended = append(ended, s)
				r.log.Info("reaped idle session", "session_id", id)
			} else {
				s.mu.Unlock()
			}

		default:
			s.mu.Unlock()
		}
	}
	return ended
}
