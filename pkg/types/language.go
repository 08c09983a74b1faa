package types

import "strings"

// agglutinativeLangs lists the primary subtags of languages with heavily
// suffixing morphology. Several components key behaviour off this set: the
// gate's grammar heuristic looks at verb endings instead of a verb word list,
// the chunked ASR fallback uses a shorter flush window (longer average word
// length means fewer words per second), and TTS language defaults use a
// slightly higher stability.
var agglutinativeLangs = map[string]bool{
	"tr": true, "fi": true, "hu": true, "ja": true,
	"ko": true, "et": true, "eu": true, "sw": true,
}

// PrimaryLang reduces a BCP-47-ish tag to its primary subtag, lower-cased
// ("en-US" → "en", "TR" → "tr").
func PrimaryLang(tag string) string {
	tag = strings.ToLower(strings.TrimSpace(tag))
	if i := strings.IndexAny(tag, "-_"); i > 0 {
		return tag[:i]
	}
	return tag
}

// IsAgglutinative reports whether the language tag belongs to the
// agglutinative set.
func IsAgglutinative(tag string) bool {
	return agglutinativeLangs[PrimaryLang(tag)]
}
