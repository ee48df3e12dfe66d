package helpers

import (
	"strings"
	"unicode"
)

// Dutch function words used as a lightweight language signal. Extracted
// page text that never hits these is very unlikely to be Dutch.
var dutchFunctionWords = map[string]struct{}{
	"de": {}, "het": {}, "een": {}, "van": {}, "en": {}, "voor": {},
	"niet": {}, "zijn": {}, "aan": {}, "bij": {}, "als": {}, "wordt": {},
	"deze": {}, "ook": {}, "naar": {}, "over": {}, "maar": {}, "dat": {},
	"met": {}, "door": {}, "onder": {}, "tussen": {}, "geen": {}, "kunt": {},
	"moet": {}, "belasting": {}, "aangifte": {},
}

// LooksDutch applies a light locale heuristic: a minimum density of Dutch
// function words combined with a low share of non-Latin script. Short inputs
// are rejected rather than guessed at.
func LooksDutch(text string) bool {
	words := strings.Fields(strings.ToLower(text))
	if len(words) < 30 {
		return false
	}

	var hits int
	sample := words
	if len(sample) > 500 {
		sample = sample[:500]
	}
	for _, w := range sample {
		w = strings.Trim(w, ".,;:!?\"'()[]")
		if _, ok := dutchFunctionWords[w]; ok {
			hits++
		}
	}
	density := float64(hits) / float64(len(sample))
	if density < 0.08 {
		return false
	}
	return foreignScriptRatio(text) < 0.10
}

// foreignScriptRatio returns the fraction of letters outside the Latin script.
func foreignScriptRatio(text string) float64 {
	var letters, foreign int
	runes := []rune(text)
	if len(runes) > 4000 {
		runes = runes[:4000]
	}
	for _, r := range runes {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if !unicode.Is(unicode.Latin, r) {
			foreign++
		}
	}
	if letters == 0 {
		return 1
	}
	return float64(foreign) / float64(letters)
}
