// Package emotion derives per-utterance voice-synthesis parameters from raw
// audio features and text sentiment. It is pure computation: no external
// service, no persistent state, deterministic output for identical input.
//
// The pipeline calls [Analyze] with the participant's rolling audio buffer
// (last ≤ 5 s) and the committed transcript. Any degenerate input falls back
// to [types.NeutralProfile].
package emotion

import (
	"strings"

	"github.com/voxbridge/voxbridge/pkg/types"
)

// minPrimaryScore is the floor below which no emotion is considered
// detected and the neutral profile is returned.
const minPrimaryScore = 0.2

// emotionOrder fixes the argmax iteration order so ties resolve
// deterministically, higher-priority emotions first.
var emotionOrder = []types.Emotion{
	types.EmotionUrgent,
	types.EmotionAngry,
	types.EmotionExcited,
	types.EmotionSurprised,
	types.EmotionHappy,
	types.EmotionSad,
	types.EmotionNervous,
	types.EmotionConfident,
	types.EmotionSarcastic,
	types.EmotionCalm,
}

// Analyze fuses audio features and text sentiment into an emotional profile.
// pcm may be empty (text-only analysis); text may be empty (audio-only).
// When neither carries signal the neutral profile is returned.
func Analyze(pcm []byte, text, language string) types.EmotionalProfile {
	if len(pcm) == 0 && strings.TrimSpace(text) == "" {
		return types.NeutralProfile()
	}

	feats := Extract(pcm)
	scores, textIntensity := textScores(text, language)
	fuseAudio(scores, feats)

	primary, maxScore := argmax(scores)
	if maxScore < minPrimaryScore {
		p := types.NeutralProfile()
		p.Tonality = tonality(feats)
		return p
	}

	intensity := clamp01(maxScore)
	confidence := clamp01((feats.Clarity + textIntensity + intensity) / 3)

	return types.EmotionalProfile{
		Primary:    primary,
		Intensity:  intensity,
		Confidence: confidence,
		Tonality:   tonality(feats),
		Voice:      SettingsFor(primary, intensity),
	}
}

// fuseAudio folds audio-feature evidence into the per-emotion scores.
// Thresholds are in PCM sample units (energy) and Hz (pitch).
func fuseAudio(scores map[types.Emotion]float64, f Features) {
	if f.Clarity == 0 {
		return
	}

	switch {
	case f.Energy > 6000:
		scores[types.EmotionAngry] += 0.2
		scores[types.EmotionExcited] += 0.15
		scores[types.EmotionUrgent] += 0.1
	case f.Energy > 3000:
		scores[types.EmotionExcited] += 0.15
		scores[types.EmotionConfident] += 0.1
	case f.Energy < 800:
		scores[types.EmotionCalm] += 0.2
		scores[types.EmotionSad] += 0.1
	}

	switch {
	case f.Pitch > 250:
		scores[types.EmotionSurprised] += 0.15
		scores[types.EmotionExcited] += 0.1
		scores[types.EmotionNervous] += 0.1
	case f.Pitch > 0 && f.Pitch < 120:
		scores[types.EmotionCalm] += 0.1
		scores[types.EmotionConfident] += 0.1
	}

	if f.Tempo > 3 {
		scores[types.EmotionUrgent] += 0.15
		scores[types.EmotionNervous] += 0.1
	}
	if f.EnvelopeVar > 0.6 {
		scores[types.EmotionExcited] += 0.1
		scores[types.EmotionSurprised] += 0.05
	}
}

// argmax selects the highest-scoring emotion in fixed priority order.
func argmax(scores map[types.Emotion]float64) (types.Emotion, float64) {
	best := types.EmotionNeutral
	var bestScore float64
	for _, emo := range emotionOrder {
		if s := scores[emo]; s > bestScore {
			best, bestScore = emo, s
		}
	}
	return best, bestScore
}

// tonality labels the delivery style from the audio features.
func tonality(f Features) string {
	switch {
	case f.Clarity == 0:
		return "flat"
	case f.EnvelopeVar > 0.6 || f.Tempo > 3:
		return "animated"
	case f.Pitch > 200:
		return "rising"
	default:
		return "flat"
	}
}
