package gate

// Exponential-moving-average weights for the adaptive profile. Sentence
// length adapts slowly; pause timing adapts a little faster so the gate
// tracks a speaker's cadence within the first few utterances.
const (
	lenAlpha   = 0.15
	pauseAlpha = 0.2

	confidenceWindow = 10
	scoreWindow      = 20

	minAvgSentenceLen = 1
	maxAvgSentenceLen = 200
)

// Profile is the per-participant adaptive state consulted and updated by the
// gate. It is owned by a single Gate and must not be shared.
type Profile struct {
	// AvgSentenceLen is the running mean utterance length in words,
	// clamped to [1, 200].
	AvgSentenceLen float64

	// AvgPauseMs is the running mean pause before the gate commits, in
	// milliseconds. Seeds the normal-timer duration.
	AvgPauseMs float64

	// Utterances counts committed utterances.
	Utterances int

	confidences []float64
	scores      []float64
}

// NewProfile returns a profile seeded with a generic conversational baseline:
// eight-word sentences and the given initial pause estimate.
func NewProfile(initialPauseMs float64) *Profile {
	return &Profile{
		AvgSentenceLen: 8,
		AvgPauseMs:     initialPauseMs,
	}
}

// observe folds one committed utterance into the running averages.
func (p *Profile) observe(wordCount int, pauseMs, confidence, score float64) {
	p.AvgSentenceLen += lenAlpha * (float64(wordCount) - p.AvgSentenceLen)
	if p.AvgSentenceLen < minAvgSentenceLen {
		p.AvgSentenceLen = minAvgSentenceLen
	}
	if p.AvgSentenceLen > maxAvgSentenceLen {
		p.AvgSentenceLen = maxAvgSentenceLen
	}

	if pauseMs > 0 {
		p.AvgPauseMs += pauseAlpha * (pauseMs - p.AvgPauseMs)
	}

	p.confidences = append(p.confidences, confidence)
	if len(p.confidences) > confidenceWindow {
		p.confidences = p.confidences[len(p.confidences)-confidenceWindow:]
	}
	p.scores = append(p.scores, score)
	if len(p.scores) > scoreWindow {
		p.scores = p.scores[len(p.scores)-scoreWindow:]
	}

	p.Utterances++
}

// RecentConfidence returns the mean of the bounded confidence window, or the
// fallback when no utterances have been observed yet.
func (p *Profile) RecentConfidence(fallback float64) float64 {
	if len(p.confidences) == 0 {
		return fallback
	}
	var sum float64
	for _, c := range p.confidences {
		sum += c
	}
	return sum / float64(len(p.confidences))
}

// RecentScore returns the mean of the bounded completion-score window, or the
// fallback when empty.
func (p *Profile) RecentScore(fallback float64) float64 {
	if len(p.scores) == 0 {
		return fallback
	}
	var sum float64
	for _, s := range p.scores {
		sum += s
	}
	return sum / float64(len(p.scores))
}
