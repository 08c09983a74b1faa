package gate

import (
	"strings"

	"github.com/voxbridge/voxbridge/pkg/types"
)

// LangData holds the per-language keyword and grammar tables consulted by the
// completion scorer. The tables are static data supplied at construction; the
// gate itself never learns vocabulary.
type LangData struct {
	// Interrogatives are sentence-initial question words.
	Interrogatives []string

	// TopicStarters mark the beginning of a new topic ("so", "by the way").
	TopicStarters []string

	// Urgency words trigger immediate firing regardless of completeness.
	Urgency []string

	// DomainTerms are domain-significant keywords (clinical vocabulary by
	// default; replaceable per deployment).
	DomainTerms []string

	// VerbWords is the verb word list for analytic languages. Unused when
	// Agglutinative is true.
	VerbWords []string

	// VerbEndings is the verb-suffix list for agglutinative languages, where
	// inflection lives on the word ending rather than in auxiliary words.
	VerbEndings []string

	// Agglutinative selects the suffix-based grammar heuristic.
	Agglutinative bool
}

var langTables = map[string]LangData{
	"en": {
		Interrogatives: []string{
			"what", "where", "when", "why", "who", "whose", "which", "how",
			"is", "are", "was", "were", "do", "does", "did",
			"can", "could", "will", "would", "should", "may",
		},
		TopicStarters: []string{"so", "well", "okay", "now", "first", "also", "anyway", "by the way"},
		Urgency: []string{
			"help", "emergency", "urgent", "urgently", "immediately",
			"hurry", "ambulance", "bleeding", "unconscious", "choking",
		},
		DomainTerms: []string{
			"doctor", "medication", "medicine", "prescription", "dose", "dosage",
			"allergy", "allergic", "symptom", "diagnosis", "surgery", "pain",
			"blood", "pressure", "fever", "infection", "treatment", "appointment",
		},
		VerbWords: []string{
			"is", "are", "was", "were", "am", "be", "been", "being",
			"have", "has", "had", "do", "does", "did",
			"go", "goes", "went", "need", "needs", "want", "wants",
			"take", "takes", "took", "feel", "feels", "felt",
			"hurt", "hurts", "think", "know", "see", "say", "says", "said",
			"can", "will", "would", "should", "must", "get", "got",
		},
	},
	"tr": {
		Interrogatives: []string{
			"ne", "neden", "niçin", "niye", "nerede", "nereye", "nereden",
			"kim", "kime", "nasıl", "hangi", "kaç", "mı", "mi", "mu", "mü",
		},
		TopicStarters: []string{"şimdi", "peki", "tamam", "öncelikle", "ayrıca", "bu arada", "neyse"},
		Urgency: []string{
			"yardım", "imdat", "acil", "hemen", "derhal",
			"ambulans", "kanama", "baygın", "boğuluyor",
		},
		DomainTerms: []string{
			"doktor", "ilaç", "reçete", "doz", "alerji", "alerjik",
			"belirti", "teşhis", "ameliyat", "ağrı", "kan", "tansiyon",
			"ateş", "enfeksiyon", "tedavi", "randevu",
		},
		VerbEndings: []string{
			"yor", "yorum", "yorsun", "yoruz",
			"dı", "di", "du", "dü", "tı", "ti", "tu", "tü",
			"dım", "dim", "dum", "düm", "tım", "tim", "tum", "tüm",
			"mış", "miş", "muş", "müş",
			"acak", "ecek", "acağım", "eceğim",
			"ır", "ir", "ur", "ür", "ar", "er",
			"dır", "dir", "dur", "dür", "tır", "tir",
			"malı", "meli", "sın", "sin", "ız", "iz",
		},
		Agglutinative: true,
	},
	"es": {
		Interrogatives: []string{
			"qué", "que", "dónde", "donde", "cuándo", "cuando", "por qué",
			"quién", "quien", "cómo", "como", "cuál", "cual", "cuánto", "cuanto",
		},
		TopicStarters: []string{"bueno", "entonces", "pues", "ahora", "primero", "además", "por cierto"},
		Urgency: []string{
			"ayuda", "emergencia", "urgente", "inmediatamente",
			"ambulancia", "sangrando", "inconsciente",
		},
		DomainTerms: []string{
			"doctor", "médico", "medicamento", "receta", "dosis", "alergia",
			"síntoma", "diagnóstico", "cirugía", "dolor", "sangre", "presión",
			"fiebre", "infección", "tratamiento", "cita",
		},
		VerbWords: []string{
			"es", "son", "era", "eran", "está", "están", "estaba", "estaban",
			"hay", "tiene", "tienen", "tengo", "tenía",
			"necesito", "necesita", "quiero", "quiere",
			"duele", "siento", "siente", "puedo", "puede", "debe", "debo",
			"tomo", "toma", "voy", "va", "fue",
		},
	},
	"de": {
		Interrogatives: []string{
			"was", "wo", "wohin", "woher", "wann", "warum", "wieso",
			"wer", "wen", "wem", "wie", "welche", "welcher", "welches",
		},
		TopicStarters: []string{"also", "gut", "okay", "jetzt", "zuerst", "außerdem", "übrigens"},
		Urgency: []string{
			"hilfe", "notfall", "dringend", "sofort",
			"krankenwagen", "blutet", "bewusstlos",
		},
		DomainTerms: []string{
			"arzt", "ärztin", "medikament", "rezept", "dosis", "allergie",
			"symptom", "diagnose", "operation", "schmerz", "schmerzen", "blut",
			"blutdruck", "fieber", "infektion", "behandlung", "termin",
		},
		VerbWords: []string{
			"ist", "sind", "war", "waren", "bin", "bist",
			"habe", "hat", "haben", "hatte", "hatten",
			"brauche", "braucht", "möchte", "will", "wollen",
			"tut", "weh", "fühle", "fühlt", "kann", "können", "muss", "müssen",
			"nehme", "nimmt", "gehe", "geht", "ging",
		},
	},
	"fi": {
		Interrogatives: []string{
			"mitä", "mikä", "missä", "mihin", "mistä", "milloin", "miksi",
			"kuka", "kenen", "miten", "kuinka", "montako",
		},
		TopicStarters: []string{"no", "siis", "okei", "nyt", "ensin", "lisäksi", "muuten"},
		Urgency: []string{
			"apua", "hätä", "hätätilanne", "kiireellinen", "heti",
			"ambulanssi", "vuotaa", "tajuton",
		},
		DomainTerms: []string{
			"lääkäri", "lääke", "resepti", "annos", "allergia",
			"oire", "diagnoosi", "leikkaus", "kipu", "veri", "verenpaine",
			"kuume", "tulehdus", "hoito", "aika",
		},
		VerbEndings: []string{
			"mme", "tte", "vat", "vät",
			"in", "it", "imme", "itte", "ivat", "ivät",
			"nut", "nyt", "neet", "taan", "tään", "isi", "en", "ee",
		},
		Agglutinative: true,
	},
}

// defaultLangData is the fallback for languages without a dedicated table.
// English keyword lists catch code-switching; the grammar heuristic runs in
// analytic mode with the English verb list.
var defaultLangData = langTables["en"]

// ForLanguage returns the keyword/grammar tables for a language tag. Unknown
// languages fall back to the English tables. Agglutinative languages without
// a dedicated table still get the suffix-based grammar mode.
func ForLanguage(tag string) LangData {
	p := types.PrimaryLang(tag)
	if d, ok := langTables[p]; ok {
		return d
	}
	d := defaultLangData
	if types.IsAgglutinative(p) {
		d.Agglutinative = true
		d.VerbWords = nil
	}
	return d
}

// words splits text into lower-cased whitespace-separated tokens with
// surrounding punctuation stripped.
func words(text string) []string {
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

// containsAny reports whether any token of text matches an entry in list.
// Multi-word entries ("by the way") are matched as substrings of the
// lower-cased text.
func containsAny(text string, list []string) bool {
	lower := strings.ToLower(text)
	toks := words(text)
	for _, entry := range list {
		if strings.Contains(entry, " ") {
			if strings.Contains(lower, entry) {
				return true
			}
			continue
		}
		for _, t := range toks {
			if t == entry {
				return true
			}
		}
	}
	return false
}

// startsWithAny reports whether the first token(s) of text match an entry in
// list.
func startsWithAny(text string, list []string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	toks := words(text)
	if len(toks) == 0 {
		return false
	}
	for _, entry := range list {
		if strings.Contains(entry, " ") {
			if strings.HasPrefix(lower, entry) {
				return true
			}
			continue
		}
		if toks[0] == entry {
			return true
		}
	}
	return false
}

// hasCompleteStructure is the language-aware subject+verb heuristic. For
// agglutinative languages it looks for a known verb ending on any token of a
// multi-word candidate; for analytic languages it looks for a verb word or an
// English-style gerund/past inflection.
func (d LangData) hasCompleteStructure(text string) bool {
	toks := words(text)
	if len(toks) < 2 {
		return false
	}
	if d.Agglutinative {
		for _, t := range toks {
			for _, suf := range d.VerbEndings {
				if len(t) > len(suf) && strings.HasSuffix(t, suf) {
					return true
				}
			}
		}
		return false
	}
	for _, t := range toks {
		for _, v := range d.VerbWords {
			if t == v {
				return true
			}
		}
		if len(t) > 4 && (strings.HasSuffix(t, "ing") || strings.HasSuffix(t, "ed")) {
			return true
		}
	}
	return false
}
