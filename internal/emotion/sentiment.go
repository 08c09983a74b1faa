package emotion

import (
	"strings"
	"unicode"

	"github.com/voxbridge/voxbridge/pkg/types"
)

// keywordWeight is the score added per matched sentiment category.
const keywordWeight = 0.3

// sentimentTable maps emotion labels to per-language keyword lists. Only
// text-detectable emotions carry keywords; calm/confident/nervous are driven
// primarily by audio features.
type sentimentTable map[types.Emotion][]string

var sentimentTables = map[string]sentimentTable{
	"en": {
		types.EmotionHappy: {
			"great", "wonderful", "happy", "glad", "good", "thanks", "thank",
			"perfect", "love", "excellent", "relieved",
		},
		types.EmotionSad: {
			"sad", "sorry", "unfortunately", "worse", "worried", "afraid",
			"lost", "miss", "terrible", "crying",
		},
		types.EmotionAngry: {
			"angry", "furious", "annoyed", "ridiculous", "unacceptable",
			"hate", "stupid", "enough",
		},
		types.EmotionSurprised: {
			"wow", "really", "seriously", "unbelievable", "incredible",
			"what", "suddenly", "unexpected",
		},
		types.EmotionExcited: {
			"amazing", "awesome", "fantastic", "brilliant", "finally",
			"yes", "excited",
		},
		types.EmotionUrgent: {
			"help", "emergency", "urgent", "immediately", "hurry", "quick",
			"now", "ambulance",
		},
	},
	"tr": {
		types.EmotionHappy: {
			"harika", "mutlu", "güzel", "iyi", "teşekkür", "teşekkürler",
			"mükemmel", "sevindim", "rahatladım",
		},
		types.EmotionSad: {
			"üzgün", "üzgünüm", "maalesef", "kötü", "endişeli", "korkuyorum",
			"kaybettim", "berbat",
		},
		types.EmotionAngry: {
			"kızgın", "sinirli", "saçma", "kabul", "edilemez", "yeter", "bıktım",
		},
		types.EmotionSurprised: {
			"vay", "gerçekten", "cidden", "inanılmaz", "aniden", "beklenmedik",
		},
		types.EmotionExcited: {
			"muhteşem", "süper", "harikaydı", "sonunda", "heyecanlı",
		},
		types.EmotionUrgent: {
			"yardım", "imdat", "acil", "hemen", "çabuk", "ambulans",
		},
	},
}

// sentimentFor returns the keyword table for a language, falling back to
// English for unknown tags.
func sentimentFor(tag string) sentimentTable {
	if t, ok := sentimentTables[types.PrimaryLang(tag)]; ok {
		return t
	}
	return sentimentTables["en"]
}

// textScores scans text against the language's keyword table and punctuation
// cues. Returns per-emotion scores plus a text-intensity measure in [0,1].
func textScores(text, language string) (map[types.Emotion]float64, float64) {
	scores := make(map[types.Emotion]float64)
	toks := tokens(text)
	if len(toks) == 0 {
		return scores, 0
	}

	table := sentimentFor(language)
	hits := 0
	for emo, kws := range table {
		matched := 0
		for _, t := range toks {
			for _, kw := range kws {
				if t == kw {
					matched++
					break
				}
			}
		}
		if matched > 0 {
			scores[emo] += keywordWeight * float64(matched)
			hits += matched
		}
	}

	// Punctuation cues.
	exclaims := strings.Count(text, "!")
	if exclaims > 0 {
		scores[types.EmotionExcited] += 0.1 * float64(exclaims)
		scores[types.EmotionAngry] += 0.05 * float64(exclaims)
	}
	if strings.Contains(text, "?") {
		scores[types.EmotionSurprised] += 0.1
	}
	if isShouting(text) {
		scores[types.EmotionAngry] += 0.2
		scores[types.EmotionUrgent] += 0.1
	}

	intensity := clamp01(0.25*float64(hits) + 0.15*float64(exclaims))
	return scores, intensity
}

// tokens splits text into lower-cased words with punctuation stripped.
func tokens(text string) []string {
	fields := strings.Fields(strings.ToLower(text))
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,!?;:\"'()¿¡")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// isShouting reports whether the text is predominantly upper-case letters.
func isShouting(text string) bool {
	upper, letters := 0, 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				upper++
			}
		}
	}
	return letters >= 4 && float64(upper) >= 0.8*float64(letters)
}
