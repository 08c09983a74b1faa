package emotion

import (
	"math"

	"github.com/voxbridge/voxbridge/pkg/audio"
)

// envelopeWindowMs is the amplitude-envelope analysis window.
const envelopeWindowMs = 100

// Features are the coarse audio measurements the analyzer fuses with text
// sentiment. All extraction is deterministic; no external service is
// involved.
type Features struct {
	// Energy is the RMS amplitude in PCM sample units (0–32767).
	Energy float64

	// ZCR is the zero-crossing rate in [0,1].
	ZCR float64

	// Pitch is a crude fundamental-frequency estimate in Hz, derived from
	// the zero-crossing rate. Good enough to separate low/flat delivery
	// from high/animated delivery; not a real pitch tracker.
	Pitch float64

	// EnvelopeVar is the coefficient of variation of the amplitude envelope
	// (stddev/mean over 100 ms windows). High values mean dynamic delivery.
	EnvelopeVar float64

	// Tempo counts envelope peaks per second, a proxy for speaking rate.
	Tempo float64

	// Clarity in [0,1] reflects how much signal backed the measurements:
	// short or near-silent buffers score low.
	Clarity float64
}

// Extract computes [Features] from raw 16 kHz mono s16le PCM. An empty or
// silent buffer yields zero features with zero clarity.
func Extract(pcm []byte) Features {
	if len(pcm) < 2 {
		return Features{}
	}

	f := Features{
		Energy: audio.RMS(pcm),
		ZCR:    audio.ZeroCrossingRate(pcm),
	}

	// For voiced speech each pitch period produces two zero crossings.
	f.Pitch = f.ZCR * float64(audio.SampleRate) / 2

	env := envelope(pcm)
	mean, sd := meanStddev(env)
	if mean > 0 {
		f.EnvelopeVar = sd / mean
	}
	durSec := float64(audio.DurationMs(pcm)) / 1000
	f.Tempo = peaksPerSecond(env, mean, durSec)
	f.Clarity = clamp01(durSec) * clamp01(f.Energy/500)

	return f
}

// envelope returns mean absolute amplitude per 100 ms window.
func envelope(pcm []byte) []float64 {
	samples := audio.Samples(pcm)
	win := audio.SampleRate * envelopeWindowMs / 1000
	if win == 0 || len(samples) == 0 {
		return nil
	}

	var env []float64
	for start := 0; start < len(samples); start += win {
		end := start + win
		if end > len(samples) {
			end = len(samples)
		}
		var sum float64
		for _, s := range samples[start:end] {
			sum += math.Abs(float64(s))
		}
		env = append(env, sum/float64(end-start))
	}
	return env
}

func meanStddev(vals []float64) (mean, sd float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))
	for _, v := range vals {
		sd += (v - mean) * (v - mean)
	}
	sd = math.Sqrt(sd / float64(len(vals)))
	return mean, sd
}

// peaksPerSecond counts envelope windows that rise notably above the mean,
// normalized by buffer duration.
func peaksPerSecond(env []float64, mean, durSec float64) float64 {
	if durSec == 0 || mean == 0 {
		return 0
	}
	peaks := 0
	for _, v := range env {
		if v > 1.5*mean {
			peaks++
		}
	}
	return float64(peaks) / durSec
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
