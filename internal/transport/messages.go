package transport

import (
	"encoding/json"
	"fmt"
)

// Message types, client → server.
const (
	TypeJoinSession    = "join-session"
	TypeStreamingAudio = "streaming-audio"
	TypeHeartbeatPong  = "heartbeat-pong"
)

// Message types, server → client.
const (
	TypeSessionJoined       = "session-joined"
	TypeWaitingForPartner   = "waiting-for-partner"
	TypeSessionReady        = "session-ready"
	TypeLiveTranscription   = "live-transcription"
	TypeLiveTranslation     = "live-translation"
	TypeSynthesizedAudio    = "synthesized-audio"
	TypeLatencyStats        = "latency-stats"
	TypePipelineError       = "pipeline-error"
	TypeTranscriptionError  = "transcription-error"
	TypeSynthesisError      = "synthesis-error"
	TypePartnerDisconnected = "partner-disconnected"
	TypeHeartbeatPing       = "heartbeat-ping"
	TypeError               = "error"
)

// Envelope is the tag every frame carries.
type Envelope struct {
	Type string `json:"type"`
}

// JoinSession is the client's opening request.
type JoinSession struct {
	Type     string `json:"type"`
	Role     string `json:"role"`
	Language string `json:"language"`
	VoiceID  string `json:"voiceId"`
}

// StreamingAudio carries one base64 PCM frame from the client.
type StreamingAudio struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

// HeartbeatPong answers a server ping.
type HeartbeatPong struct {
	Type string `json:"type"`
}

// SessionJoined confirms registration and hands out the ids.
type SessionJoined struct {
	Type          string `json:"type"`
	SessionID     string `json:"sessionId"`
	ParticipantID string `json:"participantId"`
}

// WaitingForPartner tells a lone joiner to stand by.
type WaitingForPartner struct {
	Type string `json:"type"`
}

// SessionReady announces an activated pair to both sides.
type SessionReady struct {
	Type            string `json:"type"`
	SessionID       string `json:"sessionId"`
	PartnerLanguage string `json:"partnerLanguage"`
	PartnerRole     string `json:"partnerRole"`
}

// LiveTranscription echoes the speaker's own recognized text.
type LiveTranscription struct {
	Type       string  `json:"type"`
	Text       string  `json:"text"`
	IsFinal    bool    `json:"isFinal"`
	Confidence float64 `json:"confidence,omitempty"`
	Language   string  `json:"language,omitempty"`
}

// LiveTranslation delivers translated text. Speaker is "self" on the
// speaker's own copy and "partner" on the listener's. Emotion and
// EmotionIntensity summarize the profile the synthesis will render with.
type LiveTranslation struct {
	Type             string  `json:"type"`
	Text             string  `json:"text"`
	OriginalText     string  `json:"originalText,omitempty"`
	IsFinal          bool    `json:"isFinal"`
	Speaker          string  `json:"speaker"`
	FromLanguage     string  `json:"fromLanguage,omitempty"`
	ToLanguage       string  `json:"toLanguage,omitempty"`
	Confidence       float64 `json:"confidence,omitempty"`
	Emotion          string  `json:"emotion,omitempty"`
	EmotionIntensity float64 `json:"emotionIntensity,omitempty"`
}

// SynthesizedAudio carries base64 synthesized speech to the listener.
type SynthesizedAudio struct {
	Type           string `json:"type"`
	Audio          string `json:"audio"`
	TargetLanguage string `json:"targetLanguage"`
	IsFinal        bool   `json:"isFinal"`
}

// LatencyStats reports per-utterance stage latencies plus the rolling
// session average.
type LatencyStats struct {
	Type            string `json:"type"`
	TranscriptionMs int64  `json:"transcriptionMs"`
	TranslationMs   int64  `json:"translationMs"`
	SynthesisMs     int64  `json:"synthesisMs"`
	TotalMs         int64  `json:"totalMs"`
	SessionAvgMs    int64  `json:"sessionAvgMs"`
}

// StageError reports a recoverable pipeline failure. Type is one of
// TypePipelineError, TypeTranscriptionError, TypeSynthesisError.
type StageError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PartnerDisconnected tells the surviving side its partner left.
type PartnerDisconnected struct {
	Type string `json:"type"`
}

// HeartbeatPing is the server's liveness probe.
type HeartbeatPing struct {
	Type string `json:"type"`
}

// ProtocolError reports a request the server refused.
type ProtocolError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// decode parses one inbound frame into its concrete type.
func decode(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("transport: malformed frame: %w", err)
	}
	switch env.Type {
	case TypeJoinSession:
		var m JoinSession
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("transport: bad join-session: %w", err)
		}
		return m, nil
	case TypeStreamingAudio:
		var m StreamingAudio
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, fmt.Errorf("transport: bad streaming-audio: %w", err)
		}
		return m, nil
	case TypeHeartbeatPong:
		return HeartbeatPong{Type: TypeHeartbeatPong}, nil
	default:
		return nil, fmt.Errorf("transport: unknown message type %q", env.Type)
	}
}
