package mt

import (
	"regexp"
	"strings"
)

// Protect-token pair wrapped around spans that must survive translation
// verbatim. The brackets are uncommon enough that translation engines pass
// them through untouched; they are stripped after translation.
const (
	protectOpen  = "⟦"
	protectClose = "⟧"
)

// protectedSpanRe matches inline spans that must not be paraphrased by the
// translator: dosages, clock times, and bare numbers. Dosage first so the
// unit is captured together with its quantity.
var protectedSpanRe = regexp.MustCompile(
	`\d+(?:[.,]\d+)?\s?(?:mg|mcg|ml|mL|g|kg|IU|units?)\b` + // dosage
		`|\d{1,2}:\d{2}(?:\s?(?:[ap]\.?m\.?|[AP]\.?M\.?))?` + // clock time
		`|\d+(?:[.,]\d+)?`, // bare number
)

// ProtectSpans wraps every protected span in protect-tokens so the translator
// carries it through verbatim.
func ProtectSpans(text string) string {
	return protectedSpanRe.ReplaceAllString(text, protectOpen+"$0"+protectClose)
}

// UnprotectSpans strips the protect-tokens from translated text.
func UnprotectSpans(text string) string {
	text = strings.ReplaceAll(text, protectOpen, "")
	return strings.ReplaceAll(text, protectClose, "")
}
