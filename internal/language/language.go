// Package language holds the ISO 639-1 codes this service accepts and a
// script-range heuristic used as a last-resort language correction for
// transcripts.
package language

import "strings"

// Baseline is assumed when no language can be detected.
const Baseline = "en"

var supported = map[string]struct{}{
	"en": {},
	"es": {},
	"hi": {},
	"te": {},
	"ta": {},
	"kn": {},
	"ml": {},
	"bn": {},
	"mr": {},
	"gu": {},
	"pa": {},
	"ur": {},
}

// Supported reports whether code is one of the codes this service handles.
func Supported(code string) bool {
	_, ok := supported[code]
	return ok
}

// Normalize lowercases and trims a candidate code, returning it only when
// supported, else the empty string.
func Normalize(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if Supported(code) {
		return code
	}
	return ""
}

// Codes returns the supported set as a sorted-ish display string for prompts.
func Codes() string {
	return "en, es, hi, te, ta, kn, ml, bn, mr, gu, pa, ur"
}

type scriptRange struct {
	lo, hi rune
	code   string
}

// Devanagari is shared by Hindi and Marathi; "hi" wins since the heuristic
// only fires when dedicated detection already failed.
var scriptRanges = []scriptRange{
	{0x0900, 0x097F, "hi"}, // Devanagari
	{0x0980, 0x09FF, "bn"}, // Bengali
	{0x0A00, 0x0A7F, "pa"}, // Gurmukhi
	{0x0A80, 0x0AFF, "gu"}, // Gujarati
	{0x0B80, 0x0BFF, "ta"}, // Tamil
	{0x0C00, 0x0C7F, "te"}, // Telugu
	{0x0C80, 0x0CFF, "kn"}, // Kannada
	{0x0D00, 0x0D7F, "ml"}, // Malayalam
	{0x0600, 0x06FF, "ur"}, // Arabic script
}

// FromScript inspects text for runes in a known non-Latin script range and
// returns the corresponding code, or "" when nothing matches.
func FromScript(text string) string {
	for _, r := range text {
		for _, sr := range scriptRanges {
			if r >= sr.lo && r <= sr.hi {
				return sr.code
			}
		}
	}
	return ""
}
