package emotion

import (
	"encoding/binary"
	"math"
	"reflect"
	"testing"

	"github.com/voxbridge/voxbridge/pkg/audio"
	"github.com/voxbridge/voxbridge/pkg/types"
)

// sinePCM produces a 16 kHz mono s16le sine buffer.
func sinePCM(freq float64, amplitude int16, dur float64) []byte {
	n := int(float64(audio.SampleRate) * dur)
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		v := int16(float64(amplitude) * math.Sin(2*math.Pi*freq*float64(i)/float64(audio.SampleRate)))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func TestAnalyze_EmptyInputIsNeutral(t *testing.T) {
	got := Analyze(nil, "", "en")
	want := types.NeutralProfile()
	if !reflect.DeepEqual(got, want) {
		t.Errorf("profile = %+v, want neutral", got)
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	pcm := sinePCM(150, 8000, 2)
	a := Analyze(pcm, "this is absolutely amazing!", "en")
	b := Analyze(pcm, "this is absolutely amazing!", "en")
	if !reflect.DeepEqual(a, b) {
		t.Errorf("repeated analysis differs:\n%+v\n%+v", a, b)
	}
}

func TestAnalyze_UrgentKeywords(t *testing.T) {
	got := Analyze(nil, "help, I need an ambulance immediately!", "en")
	if got.Primary != types.EmotionUrgent {
		t.Errorf("primary = %q, want urgent", got.Primary)
	}
	if got.Intensity <= 0 || got.Intensity > 1 {
		t.Errorf("intensity = %f, want in (0,1]", got.Intensity)
	}
}

func TestAnalyze_HappyKeywordsTurkish(t *testing.T) {
	got := Analyze(nil, "harika, çok teşekkürler!", "tr")
	if got.Primary != types.EmotionHappy && got.Primary != types.EmotionExcited {
		t.Errorf("primary = %q, want happy or excited", got.Primary)
	}
}

func TestAnalyze_WeakSignalFallsBackToNeutral(t *testing.T) {
	got := Analyze(nil, "the appointment", "en")
	if got.Primary != types.EmotionNeutral {
		t.Errorf("primary = %q, want neutral", got.Primary)
	}
}

func TestAnalyze_ConfidenceBounds(t *testing.T) {
	got := Analyze(sinePCM(200, 10000, 3), "WOW THIS IS UNBELIEVABLE!", "en")
	if got.Confidence < 0 || got.Confidence > 1 {
		t.Errorf("confidence = %f, want in [0,1]", got.Confidence)
	}
	if got.Intensity < 0 || got.Intensity > 1 {
		t.Errorf("intensity = %f, want in [0,1]", got.Intensity)
	}
}

func TestExtract_SilenceHasZeroClarity(t *testing.T) {
	silent := make([]byte, audio.SampleRate*2) // 1 s of zeros
	f := Extract(silent)
	if f.Clarity != 0 {
		t.Errorf("clarity = %f, want 0 for silence", f.Clarity)
	}
	if f.Energy != 0 {
		t.Errorf("energy = %f, want 0 for silence", f.Energy)
	}
}

func TestExtract_ToneFeatures(t *testing.T) {
	f := Extract(sinePCM(200, 12000, 2))
	if f.Energy < 5000 {
		t.Errorf("energy = %f, want loud", f.Energy)
	}
	// A 200 Hz sine crosses zero 400 times per second.
	if f.Pitch < 150 || f.Pitch > 250 {
		t.Errorf("pitch estimate = %f, want near 200", f.Pitch)
	}
	if f.Clarity <= 0.5 {
		t.Errorf("clarity = %f, want high for a loud 2 s tone", f.Clarity)
	}
}

func TestSettingsFor_ClampedAndDeterministic(t *testing.T) {
	for _, emo := range emotionOrder {
		for _, intensity := range []float64{-1, 0, 0.5, 1, 2} {
			s := SettingsFor(emo, intensity)
			for name, v := range map[string]float64{
				"stability":        s.Stability,
				"similarity_boost": s.SimilarityBoost,
				"style":            s.Style,
			} {
				if v < 0 || v > 1 {
					t.Errorf("%s/%s intensity %f = %f, want in [0,1]", emo, name, intensity, v)
				}
			}
		}
	}

	a := SettingsFor(types.EmotionAngry, 0.8)
	b := SettingsFor(types.EmotionAngry, 0.8)
	if a != b {
		t.Error("identical inputs produced different settings")
	}
}

func TestSettingsFor_IntensityShapesDelivery(t *testing.T) {
	low := SettingsFor(types.EmotionExcited, 0.1)
	high := SettingsFor(types.EmotionExcited, 0.9)
	if high.Stability >= low.Stability {
		t.Errorf("stability did not drop with intensity: %f vs %f", high.Stability, low.Stability)
	}
	if high.Style <= low.Style {
		t.Errorf("style did not rise with intensity: %f vs %f", high.Style, low.Style)
	}
}

func TestIsShouting(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"HELP ME NOW", true},
		{"help me now", false},
		{"OK", false}, // too short to judge
		{"This Is Title Case", false},
	}
	for _, tc := range tests {
		if got := isShouting(tc.text); got != tc.want {
			t.Errorf("isShouting(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}
