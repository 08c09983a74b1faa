package gate

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/voxbridge/voxbridge/pkg/types"
)

// continuationSimilarity is the Jaro-Winkler threshold above which a new
// candidate is treated as a probable continuation of the previous utterance.
const continuationSimilarity = 0.88

// isQuestion reports whether text reads as a question: a question mark
// anywhere, or an interrogative first word.
func (g *Gate) isQuestion(text string) bool {
	if strings.Contains(text, "?") {
		return true
	}
	return startsWithAny(text, g.lang.Interrogatives)
}

// isContinuation reports whether norm likely extends the previously committed
// utterance: the old text is a strict prefix of the new, or the two are
// near-identical by Jaro-Winkler similarity.
func (g *Gate) isContinuation(norm string) bool {
	last := g.lastProcessed.norm
	if last == "" || norm == last {
		return false
	}
	if strings.HasPrefix(norm, last) {
		return true
	}
	return matchr.JaroWinkler(norm, last, false) >= continuationSimilarity
}

// completionScore estimates in [0,1] how likely text is a complete,
// translation-worthy thought. Signals are additive and the sum is capped
// at 1; the continuation penalty may pull weak candidates toward 0.
func (g *Gate) completionScore(text string, confidence float64) float64 {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return 0
	}

	toks := words(trimmed)
	wc := len(toks)
	question := g.isQuestion(trimmed)
	endsTerminal := strings.HasSuffix(trimmed, ".") ||
		strings.HasSuffix(trimmed, "!") ||
		strings.HasSuffix(trimmed, "?")

	var score float64

	if endsTerminal {
		score += 0.35
	}

	if question {
		switch {
		case wc >= 3:
			score += 0.4
		case wc == 2:
			score += 0.2
		default:
			score += 0.1
		}
	}

	if strings.HasSuffix(trimmed, ".") && !question {
		score += 0.3
	}
	if strings.Contains(trimmed, "!") {
		score += 0.25
	}

	if g.lang.hasCompleteStructure(trimmed) {
		score += 0.25
	}

	// Complete-thought heuristic: substantial and either punctuated or close
	// to this speaker's usual sentence length.
	avgLen := g.profile.AvgSentenceLen
	if wc >= 3 && (endsTerminal || float64(wc) >= 0.8*avgLen) {
		score += 0.3
	}

	if wc >= 3 {
		score += 0.15
	}
	if len(trimmed) >= g.cfg.MinCharactersForProcessing {
		score += 0.05
	}
	if confidence >= g.cfg.MinConfidenceThreshold {
		score += 0.1
	}

	if avgLen > 0 {
		ratio := float64(wc) / avgLen
		if ratio >= 0.8 {
			score += 0.1
		}
		if ratio >= 1.2 {
			score += 0.05
		}
	}

	if containsAny(trimmed, g.lang.DomainTerms) {
		score += 0.1
	}
	if containsAny(trimmed, g.lang.Urgency) {
		score += 0.15
	}

	if startsWithAny(trimmed, g.lang.TopicStarters) {
		score += 0.1
	}
	if g.isContinuation(types.Normalize(trimmed)) {
		score -= 0.1
	}

	if score > 1 {
		score = 1
	}
	if score < 0 {
		score = 0
	}
	return score
}
