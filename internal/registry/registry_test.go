package registry

import (
	"testing"
	"time"
)

// fakeConn is a minimal Sender for registry tests.
type fakeConn struct {
	closed bool
	sent   []any
}

func (f *fakeConn) Send(v any) error { f.sent = append(f.sent, v); return nil }
func (f *fakeConn) Close() error     { f.closed = true; return nil }

func TestAddUser_FirstJoinerWaits(t *testing.T) {
	r := New(0)

	sess, p, outcome := r.AddUser("patient", "tr", "v_tr", &fakeConn{})
	if outcome != OutcomeWaiting {
		t.Fatalf("outcome = %v, want OutcomeWaiting", outcome)
	}
	if sess.Status() != StatusPending {
		t.Errorf("status = %v, want pending", sess.Status())
	}
	if p.ID == "" || sess.ID == "" {
		t.Error("missing generated ids")
	}

	active, pending, participants, waiting := r.Counts()
	if active != 0 || pending != 1 || participants != 1 || waiting != 1 {
		t.Errorf("counts = %d/%d/%d/%d, want 0/1/1/1", active, pending, participants, waiting)
	}
}

func TestAddUser_PairsOppositeRoleDifferentLanguage(t *testing.T) {
	r := New(0)

	_, p1, _ := r.AddUser("patient", "tr", "v_tr", &fakeConn{})
	sess, p2, outcome := r.AddUser("doctor", "en", "v_en", &fakeConn{})

	if outcome != OutcomeMatched {
		t.Fatalf("outcome = %v, want OutcomeMatched", outcome)
	}
	if sess.Status() != StatusActive {
		t.Errorf("status = %v, want active", sess.Status())
	}

	partner := sess.Partner(p2.ID)
	if partner == nil || partner.ID != p1.ID {
		t.Fatalf("partner of joiner = %v, want the waiter", partner)
	}
	if got := sess.Partner(p1.ID); got == nil || got.ID != p2.ID {
		t.Errorf("partner lookup is not symmetric")
	}

	// The waiter's pairing queue drained.
	_, pending, _, waiting := r.Counts()
	if pending != 0 || waiting != 0 {
		t.Errorf("pending=%d waiting=%d after match, want 0/0", pending, waiting)
	}
}

func TestAddUser_SameLanguageNeverPairs(t *testing.T) {
	r := New(0)

	r.AddUser("patient", "en", "v1", &fakeConn{})
	sess, _, outcome := r.AddUser("doctor", "en", "v2", &fakeConn{})

	if outcome != OutcomeWaiting {
		t.Fatalf("outcome = %v, want OutcomeWaiting for same-language pair", outcome)
	}
	if sess.Status() != StatusPending {
		t.Errorf("status = %v, want pending", sess.Status())
	}

	// A different-language speaker still matches the earliest eligible waiter.
	sess2, _, outcome := r.AddUser("doctor", "tr", "v3", &fakeConn{})
	if outcome != OutcomeMatched {
		t.Fatalf("outcome = %v, want OutcomeMatched", outcome)
	}
	members := sess2.Participants()
	if len(members) != 2 {
		t.Fatalf("participants = %d, want 2", len(members))
	}
	if members[0].Language == members[1].Language {
		t.Error("paired participants share a language")
	}
}

func TestAddUser_SameRoleNeverPairs(t *testing.T) {
	r := New(0)

	r.AddUser("patient", "tr", "v1", &fakeConn{})
	_, _, outcome := r.AddUser("patient", "en", "v2", &fakeConn{})
	if outcome != OutcomeWaiting {
		t.Errorf("outcome = %v, want OutcomeWaiting for same-role pair", outcome)
	}
}

func TestAddUser_FCFSAcrossWaiters(t *testing.T) {
	r := New(0)
	now := time.Now()
	step := 0
	r.now = func() time.Time {
		step++
		return now.Add(time.Duration(step) * time.Second)
	}

	_, first, _ := r.AddUser("patient", "tr", "v1", &fakeConn{})
	r.AddUser("patient", "es", "v2", &fakeConn{})

	sess, joiner, outcome := r.AddUser("doctor", "en", "v3", &fakeConn{})
	if outcome != OutcomeMatched {
		t.Fatalf("outcome = %v, want OutcomeMatched", outcome)
	}
	if partner := sess.Partner(joiner.ID); partner.ID != first.ID {
		t.Errorf("matched %s, want the earliest waiter %s", partner.ID, first.ID)
	}
}

func TestAddUser_ReconnectSwapsTransportOnly(t *testing.T) {
	r := New(0)

	old := &fakeConn{}
	sess, p, _ := r.AddUser("patient", "tr", "v_tr", old)

	fresh := &fakeConn{}
	sess2, p2, outcome := r.AddUser("patient", "tr", "v_tr", fresh)

	if outcome != OutcomeReconnected {
		t.Fatalf("outcome = %v, want OutcomeReconnected", outcome)
	}
	if p2.ID != p.ID {
		t.Errorf("reconnect created a new participant")
	}
	if sess2.ID != sess.ID {
		t.Errorf("reconnect created a new session")
	}
	if p2.Conn() != Sender(fresh) {
		t.Error("transport was not swapped")
	}
	if !old.closed {
		t.Error("stale transport was not closed")
	}

	// No duplicate registry entries.
	_, _, participants, waiting := r.Counts()
	if participants != 1 || waiting != 1 {
		t.Errorf("participants=%d waiting=%d, want 1/1", participants, waiting)
	}
}

func TestAddUser_DifferentVoiceIsNotAReconnect(t *testing.T) {
	r := New(0)

	r.AddUser("patient", "tr", "v_a", &fakeConn{})
	_, _, outcome := r.AddUser("patient", "tr", "v_b", &fakeConn{})
	if outcome != OutcomeWaiting {
		t.Errorf("outcome = %v, want OutcomeWaiting for a different voice id", outcome)
	}
}

func TestRemoveUser_RequeuesPartner(t *testing.T) {
	r := New(0)

	_, p1, _ := r.AddUser("patient", "tr", "v1", &fakeConn{})
	sess, p2, _ := r.AddUser("doctor", "en", "v2", &fakeConn{})

	ended, partner := r.RemoveUser(p1.ID)
	if ended == nil || ended.ID != sess.ID {
		t.Fatalf("ended session = %v, want %s", ended, sess.ID)
	}
	if ended.Status() != StatusEnded {
		t.Errorf("status = %v, want ended", ended.Status())
	}
	if partner == nil || partner.ID != p2.ID {
		t.Fatalf("requeued partner = %v, want %s", partner, p2.ID)
	}
	if partner.SessionID() == sess.ID {
		t.Error("partner still attached to the ended session")
	}

	// The partner is pairable again.
	sess2, _, outcome := r.AddUser("patient", "es", "v3", &fakeConn{})
	if outcome != OutcomeMatched {
		t.Fatalf("outcome = %v, want OutcomeMatched against the requeued partner", outcome)
	}
	if got := sess2.Partner(partner.ID); got == nil {
		t.Error("requeued partner not in the new session")
	}
}

func TestRemoveUser_PendingLeavesNothing(t *testing.T) {
	r := New(0)

	_, p, _ := r.AddUser("patient", "tr", "v1", &fakeConn{})
	ended, partner := r.RemoveUser(p.ID)
	if ended != nil || partner != nil {
		t.Errorf("remove of a lone waiter = (%v, %v), want nils", ended, partner)
	}

	active, pending, participants, waiting := r.Counts()
	if active+pending+participants+waiting != 0 {
		t.Errorf("registry not empty: %d/%d/%d/%d", active, pending, participants, waiting)
	}
}

func TestRemoveUser_UnknownIsNoop(t *testing.T) {
	r := New(0)
	if ended, partner := r.RemoveUser("nope"); ended != nil || partner != nil {
		t.Error("unknown id produced results")
	}
}

func TestEndedSessionGrace(t *testing.T) {
	r := New(0)
	base := time.Now()
	r.now = func() time.Time { return base }

	_, p1, _ := r.AddUser("patient", "tr", "v1", &fakeConn{})
	sess, _, _ := r.AddUser("doctor", "en", "v2", &fakeConn{})
	r.RemoveUser(p1.ID)

	// Discoverable within the grace window.
	r.Sweep(base.Add(10*time.Second), 3*time.Minute, 30*time.Minute)
	if _, ok := r.GetSession(sess.ID); !ok {
		t.Fatal("ended session dropped inside the grace window")
	}

	r.Sweep(base.Add(time.Minute), 3*time.Minute, 30*time.Minute)
	if _, ok := r.GetSession(sess.ID); ok {
		t.Error("ended session survived past the grace window")
	}
}

func TestSweep_EndsIdleActiveSession(t *testing.T) {
	r := New(0)
	base := time.Now()
	r.now = func() time.Time { return base }

	_, p1, _ := r.AddUser("patient", "tr", "v1", &fakeConn{})
	sess, p2, _ := r.AddUser("doctor", "en", "v2", &fakeConn{})

	// One active participant keeps the session alive.
	r.now = func() time.Time { return base.Add(4 * time.Minute) }
	r.Touch(p1.ID)
	ended := r.Sweep(base.Add(4*time.Minute), 3*time.Minute, 30*time.Minute)
	if len(ended) != 0 {
		t.Fatalf("session reaped while one side is active")
	}

	// Both silent past the idle bound: reaped.
	ended = r.Sweep(base.Add(10*time.Minute), 3*time.Minute, 30*time.Minute)
	if len(ended) != 1 || ended[0].ID != sess.ID {
		t.Fatalf("ended = %v, want [%s]", ended, sess.ID)
	}
	if _, ok := r.GetParticipant(p2.ID); ok {
		t.Error("participant survived session reaping")
	}
}

func TestSweep_DropsStalePendingSession(t *testing.T) {
	r := New(0)
	base := time.Now()
	r.now = func() time.Time { return base }

	sess, p, _ := r.AddUser("patient", "tr", "v1", &fakeConn{})

	if ended := r.Sweep(base.Add(29*time.Minute), 3*time.Minute, 30*time.Minute); len(ended) != 0 {
		t.Fatal("pending session dropped too early")
	}

	ended := r.Sweep(base.Add(31*time.Minute), 3*time.Minute, 30*time.Minute)
	if len(ended) != 1 || ended[0].ID != sess.ID {
		t.Fatalf("ended = %v, want the stale pending session", ended)
	}
	if _, ok := r.GetSession(sess.ID); ok {
		t.Error("stale pending session survived")
	}
	if _, ok := r.GetParticipant(p.ID); ok {
		t.Error("stale waiter survived")
	}
	if _, _, _, waiting := r.Counts(); waiting != 0 {
		t.Errorf("waiting = %d, want 0", waiting)
	}
}

func TestFindPartner(t *testing.T) {
	r := New(0)

	_, p1, _ := r.AddUser("patient", "tr", "v1", &fakeConn{})

	if _, ok := r.FindPartner(p1.ID); ok {
		t.Error("waiter has a partner")
	}

	_, p2, _ := r.AddUser("doctor", "en", "v2", &fakeConn{})
	partner, ok := r.FindPartner(p1.ID)
	if !ok || partner.ID != p2.ID {
		t.Fatalf("partner = %v, want %s", partner, p2.ID)
	}
}

func TestSessionStats(t *testing.T) {
	r := New(0)
	r.AddUser("patient", "tr", "v1", &fakeConn{})
	sess, _, _ := r.AddUser("doctor", "en", "v2", &fakeConn{})

	if avg := sess.RecordTranslation(900); avg != 900 {
		t.Errorf("avg after first = %d, want 900", avg)
	}
	if avg := sess.RecordTranslation(1100); avg != 1000 {
		t.Errorf("avg after second = %d, want 1000", avg)
	}
	sess.RecordMessage()
	sess.RecordError()

	st := sess.Stats()
	if st.Translations != 2 || st.Messages != 1 || st.Errors != 1 {
		t.Errorf("stats = %+v", st)
	}
	if st.AvgLatencyMs() != 1000 {
		t.Errorf("avg = %d, want 1000", st.AvgLatencyMs())
	}
}
