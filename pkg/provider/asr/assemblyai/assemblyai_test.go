package assemblyai

import "testing"

func TestParseMessage_Partial(t *testing.T) {
	raw := []byte(`{"message_type":"PartialTranscript","text":"hello th","confidence":0.6}`)
	tr, ok := parseMessage(raw, "en")
	if !ok {
		t.Fatal("expected ok=true")
	}
	if tr.IsFinal {
		t.Error("expected IsFinal=false")
	}
	if tr.Text != "hello th" {
		t.Errorf("want %q, got %q", "hello th", tr.Text)
	}
	if tr.Language != "en" {
		t.Errorf("want language en, got %q", tr.Language)
	}
}

func TestParseMessage_Final(t *testing.T) {
	raw := []byte(`{"message_type":"FinalTranscript","text":"Hello there.","confidence":0.93}`)
	tr, ok := parseMessage(raw, "en")
	if !ok {
		t.Fatal("expected ok=true")
	}
	if !tr.IsFinal {
		t.Error("expected IsFinal=true")
	}
	if tr.Confidence != 0.93 {
		t.Errorf("want confidence 0.93, got %f", tr.Confidence)
	}
}

func TestParseMessage_SessionEvents(t *testing.T) {
	for _, raw := range []string{
		`{"message_type":"SessionBegins","session_id":"abc"}`,
		`{"message_type":"SessionTerminated"}`,
		`{"message_type":"PartialTranscript","text":""}`,
		`{invalid`,
	} {
		if _, ok := parseMessage([]byte(raw), "en"); ok {
			t.Errorf("expected ok=false for %s", raw)
		}
	}
}

func TestNew_EmptyAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}
