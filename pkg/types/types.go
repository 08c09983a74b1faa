// Package types defines the shared types used across all voxbridge packages.
//
// These types form the lingua franca between providers, the utterance gate,
// the emotion analyzer, and the pipeline orchestrator. They are intentionally
// minimal — each package defines its own domain types, but cross-cutting data
// structures live here to avoid circular imports.
package types

import "time"

// Transcript is the normalized speech-to-text result shape. Every ASR
// provider's output is converted into this form before it reaches the
// pipeline orchestrator — the orchestrator never sees provider-specific
// fields.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score in [0,1]. May be zero when
	// the provider does not report confidence.
	Confidence float64

	// Language is the BCP-47 language tag the recognition ran under.
	Language string

	// IsFinal indicates whether this is an authoritative (final) or interim
	// (partial) transcript.
	IsFinal bool

	// Timestamp marks when the transcript was produced.
	Timestamp time.Time
}

// Utterance is an immutable unit committed by the utterance gate. Utterances
// are the only things that trigger translation and synthesis.
type Utterance struct {
	// Text is the full utterance text (the longest candidate observed).
	Text string

	// Language is the speaker's source language tag.
	Language string

	// Confidence is the ASR confidence of the committing candidate, in [0,1].
	Confidence float64

	// CompletionScore is the gate's estimate in [0,1] that the text is a
	// complete thought.
	CompletionScore float64

	// Timestamp is when the gate fired.
	Timestamp time.Time

	// ParticipantID identifies the speaker that produced the utterance.
	ParticipantID string
}

// Translation is the normalized machine-translation result.
type Translation struct {
	// Text is the translated text.
	Text string

	// DetectedLanguage is the source language detected by the provider, when
	// reported. Empty otherwise.
	DetectedLanguage string

	// Confidence is the provider-reported translation confidence in [0,1].
	// Providers that do not report confidence leave it at 1.
	Confidence float64
}

// Emotion is a primary-emotion label from the analyzer's closed set.
type Emotion string

const (
	EmotionNeutral   Emotion = "neutral"
	EmotionHappy     Emotion = "happy"
	EmotionSad       Emotion = "sad"
	EmotionAngry     Emotion = "angry"
	EmotionSurprised Emotion = "surprised"
	EmotionSarcastic Emotion = "sarcastic"
	EmotionExcited   Emotion = "excited"
	EmotionCalm      Emotion = "calm"
	EmotionUrgent    Emotion = "urgent"
	EmotionConfident Emotion = "confident"
	EmotionNervous   Emotion = "nervous"
)

// VoiceSettings is the synthesis parameter bundle sent to the TTS provider.
// Stability, SimilarityBoost, and Style are clamped to [0,1] before use.
type VoiceSettings struct {
	// Stability controls consistency of delivery. Lower values produce more
	// expressive, variable speech.
	Stability float64 `json:"stability"`

	// SimilarityBoost controls adherence to the reference voice timbre.
	SimilarityBoost float64 `json:"similarity_boost"`

	// Style amplifies the expressive style of the reference voice.
	Style float64 `json:"style"`

	// SpeakerBoost enables the provider's speaker-boost enhancement.
	SpeakerBoost bool `json:"use_speaker_boost"`
}

// EmotionalProfile is the per-utterance emotional state derived by the
// analyzer from the rolling audio buffer and the transcript. It is transient:
// rebuilt for every utterance and never persisted.
type EmotionalProfile struct {
	// Primary is the dominant emotion label.
	Primary Emotion

	// Intensity is the strength of the primary emotion in [0,1].
	Intensity float64

	// Confidence is the analyzer's confidence in the classification, in [0,1].
	Confidence float64

	// Tonality is a coarse delivery label derived from the audio features
	// (e.g. "rising", "flat", "animated").
	Tonality string

	// Voice is the synthesis parameter bundle derived from (Primary, Intensity).
	Voice VoiceSettings
}

// Bucket returns the cache-key bucket for the profile: the primary emotion
// label plus a coarse intensity band. Two profiles in the same bucket produce
// indistinguishable synthesis settings for caching purposes.
func (p EmotionalProfile) Bucket() string {
	band := "low"
	switch {
	case p.Intensity >= 0.66:
		band = "high"
	case p.Intensity >= 0.33:
		band = "mid"
	}
	return string(p.Primary) + "/" + band
}

// NeutralProfile returns the default profile used when emotion analysis
// fails or no audio is available.
func NeutralProfile() EmotionalProfile {
	return EmotionalProfile{
		Primary:    EmotionNeutral,
		Intensity:  0.3,
		Confidence: 0.5,
		Tonality:   "flat",
		Voice: VoiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Style:           0.0,
			SpeakerBoost:    true,
		},
	}
}
