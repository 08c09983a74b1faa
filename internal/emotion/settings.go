package emotion

import "github.com/voxbridge/voxbridge/pkg/types"

// baseSettings maps each primary emotion to a baseline synthesis bundle at
// zero intensity. Intensity pulls stability down and style up from these
// baselines; all values are clamped to [0,1] on the way out.
var baseSettings = map[types.Emotion]types.VoiceSettings{
	types.EmotionNeutral:   {Stability: 0.50, SimilarityBoost: 0.75, Style: 0.00, SpeakerBoost: true},
	types.EmotionHappy:     {Stability: 0.40, SimilarityBoost: 0.75, Style: 0.30, SpeakerBoost: true},
	types.EmotionSad:       {Stability: 0.60, SimilarityBoost: 0.80, Style: 0.15, SpeakerBoost: true},
	types.EmotionAngry:     {Stability: 0.30, SimilarityBoost: 0.70, Style: 0.45, SpeakerBoost: true},
	types.EmotionSurprised: {Stability: 0.35, SimilarityBoost: 0.70, Style: 0.40, SpeakerBoost: true},
	types.EmotionSarcastic: {Stability: 0.45, SimilarityBoost: 0.75, Style: 0.35, SpeakerBoost: true},
	types.EmotionExcited:   {Stability: 0.30, SimilarityBoost: 0.70, Style: 0.50, SpeakerBoost: true},
	types.EmotionCalm:      {Stability: 0.70, SimilarityBoost: 0.80, Style: 0.05, SpeakerBoost: true},
	types.EmotionUrgent:    {Stability: 0.25, SimilarityBoost: 0.70, Style: 0.40, SpeakerBoost: true},
	types.EmotionConfident: {Stability: 0.55, SimilarityBoost: 0.80, Style: 0.25, SpeakerBoost: true},
	types.EmotionNervous:   {Stability: 0.40, SimilarityBoost: 0.70, Style: 0.30, SpeakerBoost: true},
}

// SettingsFor maps (emotion, intensity) to a synthesis bundle. The mapping
// is a pure function: identical inputs always produce identical settings.
func SettingsFor(emo types.Emotion, intensity float64) types.VoiceSettings {
	base, ok := baseSettings[emo]
	if !ok {
		base = baseSettings[types.EmotionNeutral]
	}
	intensity = clamp01(intensity)

	return types.VoiceSettings{
		Stability:       clamp01(base.Stability - 0.2*intensity),
		SimilarityBoost: clamp01(base.SimilarityBoost),
		Style:           clamp01(base.Style + 0.3*intensity),
		SpeakerBoost:    base.SpeakerBoost,
	}
}
