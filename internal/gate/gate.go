// Package gate implements the utterance gate: the per-participant state
// machine that turns a noisy stream of partial transcripts into discrete,
// translation-worthy utterances.
//
// The gate is driven by three signals: incoming partial/final text, its
// confidence, and elapsed real time. A completion scorer estimates how
// finished a candidate sounds; the decision policy either fires immediately,
// arms a timer scaled to the speaker's learned cadence, or keeps
// accumulating. Committed utterances feed an adaptive [Profile] so the gate
// tracks each speaker's sentence length and pause rhythm.
package gate

import (
	"sync"
	"time"

	"github.com/voxbridge/voxbridge/internal/config"
	"github.com/voxbridge/voxbridge/pkg/types"
)

// dedupWindow is how long a normalized text is considered a duplicate of the
// previously committed utterance.
const dedupWindow = 3 * time.Second

// minTimerBound is the shortest normal-timer duration.
const minTimerBound = 500 * time.Millisecond

// formalRoles get a slightly longer timer: formal speakers tend toward
// longer, structured sentences that should not be cut mid-thought.
var formalRoles = map[string]bool{
	"doctor": true, "nurse": true, "agent": true, "attorney": true,
}

// Params identifies the participant a Gate serves.
type Params struct {
	ParticipantID string
	Language      string
	Role          string
}

// pending is the current best candidate awaiting commitment.
type pending struct {
	text       string
	confidence float64
	startedAt  time.Time
}

// Gate is the per-participant utterance gate. All methods are safe for
// concurrent use; the fire callback runs without the internal lock held and
// is invoked in commitment order.
type Gate struct {
	cfg  config.GateConfig
	lang LangData
	p    Params
	fire func(types.Utterance)
	now  func() time.Time

	// fireMu serializes fire invocations; it is acquired before g.mu is
	// released on commit, so callback order matches commitment order.
	fireMu sync.Mutex

	mu            sync.Mutex
	profile       *Profile
	cand          pending
	timer         *time.Timer
	timerGen      int
	lastProcessed struct {
		norm string
		at   time.Time
	}
	closed bool
}

// New creates a gate for one participant. fire is called once per committed
// utterance, in order.
func New(cfg config.GateConfig, p Params, fire func(types.Utterance)) *Gate {
	return &Gate{
		cfg:     cfg,
		lang:    ForLanguage(p.Language),
		p:       p,
		fire:    fire,
		now:     time.Now,
		profile: NewProfile(float64(cfg.SentenceCompletionThreshold.Std().Milliseconds())),
	}
}

// Consider feeds one transcript candidate into the gate. Partial and final
// transcripts take the same path; finals additionally qualify for immediate
// firing when substantial and confident.
func (g *Gate) Consider(t types.Transcript) {
	g.mu.Lock()

	if g.closed {
		g.mu.Unlock()
		return
	}

	norm := types.Normalize(t.Text)
	if norm == "" {
		g.mu.Unlock()
		return
	}

	now := g.now()
	if norm == g.lastProcessed.norm && now.Sub(g.lastProcessed.at) < dedupWindow {
		g.mu.Unlock()
		return
	}

	// A new candidate always supersedes any armed timer; the policy below
	// decides whether to re-arm.
	g.stopTimerLocked()

	if g.cand.text == "" {
		g.cand = pending{text: t.Text, confidence: t.Confidence, startedAt: now}
	} else if len(t.Text) > len(g.cand.text) {
		g.cand.text = t.Text
		g.cand.confidence = t.Confidence
	} else if t.IsFinal && norm == types.Normalize(g.cand.text) {
		// A final confirming the pending partial upgrades its confidence.
		g.cand.confidence = t.Confidence
	}

	text := g.cand.text
	conf := g.cand.confidence
	score := g.completionScore(text, conf)
	wc := len(words(text))

	urgent := containsAny(text, g.lang.Urgency)
	domain := containsAny(text, g.lang.DomainTerms)
	question := g.isQuestion(text)

	immediate := urgent ||
		(score >= 0.8 && conf >= g.cfg.MinConfidenceThreshold) ||
		(question && score >= 0.6) ||
		(t.IsFinal && wc >= g.cfg.MinWordsForProcessing && t.Confidence >= g.cfg.MinConfidenceThreshold) ||
		(domain && score >= 0.6)

	if immediate {
		g.fireMu.Lock()
		u := g.commitLocked(score)
		g.mu.Unlock()
		g.fire(u)
		g.fireMu.Unlock()
		return
	}

	switch {
	case wc <= 2:
		g.armTimerLocked(g.cfg.ShortMessageTimeout.Std())
	case wc >= g.cfg.MinWordsForProcessing && score >= 0.4:
		g.armTimerLocked(g.timerDuration(score, domain))
	}
	// Otherwise: accumulate and wait for the next candidate.

	g.mu.Unlock()
}

// Close cancels any armed timer and stops the gate. Subsequent Consider
// calls are no-ops.
func (g *Gate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.stopTimerLocked()
	g.cand = pending{}
}

// Profile returns the adaptive profile. Exposed for inspection; callers must
// not mutate it concurrently with Consider.
func (g *Gate) Profile() *Profile {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.profile
}

// timerDuration derives the normal-timer duration from the completion score
// and the speaker's learned pause, bounded to [500 ms, emergency timeout].
func (g *Gate) timerDuration(score float64, domain bool) time.Duration {
	base := g.profile.AvgPauseMs
	if lo := float64(g.cfg.ConversationalPauseThreshold.Std().Milliseconds()); base < lo {
		base = lo
	}
	if hi := float64(g.cfg.ThoughtCompletionThreshold.Std().Milliseconds()); base > hi {
		base = hi
	}

	switch {
	case score >= 0.6:
		base *= 0.6
	case score <= 0.3:
		base *= 1.4
	}
	if formalRoles[g.p.Role] {
		base *= 1.1
	}
	if domain {
		base *= 1.2
	}

	d := time.Duration(base) * time.Millisecond
	if d < minTimerBound {
		d = minTimerBound
	}
	if max := g.cfg.EmergencyTimeout.Std(); d > max {
		d = max
	}
	return d
}

// armTimerLocked starts a single-shot timer that commits the current
// candidate on expiry unless a newer candidate arrives first.
func (g *Gate) armTimerLocked(d time.Duration) {
	g.timerGen++
	gen := g.timerGen
	g.timer = time.AfterFunc(d, func() { g.onTimer(gen) })
}

// stopTimerLocked cancels an armed timer and invalidates its generation so a
// concurrently expiring callback becomes a no-op.
func (g *Gate) stopTimerLocked() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.timerGen++
}

// onTimer commits the pending candidate when the timer generation still
// matches (no newer candidate arrived since arming).
func (g *Gate) onTimer(gen int) {
	g.mu.Lock()
	if g.closed || gen != g.timerGen || g.cand.text == "" {
		g.mu.Unlock()
		return
	}
	score := g.completionScore(g.cand.text, g.cand.confidence)
	g.fireMu.Lock()
	u := g.commitLocked(score)
	g.mu.Unlock()
	g.fire(u)
	g.fireMu.Unlock()
}

// commitLocked builds the utterance from the pending candidate, folds it
// into the profile, records the dedup reference, and resets the candidate.
// Must be called with g.mu held.
func (g *Gate) commitLocked(score float64) types.Utterance {
	now := g.now()
	text := g.cand.text
	conf := g.cand.confidence
	wc := len(words(text))

	pauseMs := float64(now.Sub(g.cand.startedAt).Milliseconds())
	g.profile.observe(wc, pauseMs, conf, score)

	g.lastProcessed.norm = types.Normalize(text)
	g.lastProcessed.at = now

	g.cand = pending{}
	g.stopTimerLocked()

	return types.Utterance{
		Text:            text,
		Language:        g.p.Language,
		Confidence:      conf,
		CompletionScore: score,
		Timestamp:       now,
		ParticipantID:   g.p.ParticipantID,
	}
}
