package textfilter

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Rarity normalises a rarity label so that "rare", "RARE" and " Rare " all
// read "Rare". Blank labels stay blank.
func Rarity(label string) string {
	label = strings.Join(strings.Fields(label), " ")
	if label == "" {
		return ""
	}
	return cases.Title(language.English).String(strings.ToLower(label))
}

// RarityOr returns the first non-blank normalised label.
func RarityOr(labels ...string) string {
	for _, l := range labels {
		if r := Rarity(l); r != "" {
			return r
		}
	}
	return ""
}

// Fold returns a lookup key for a content name: case folded, punctuation
// apostrophes unified and inner whitespace collapsed. It is used to match
// names typed by players against content names.
func Fold(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '‘', '’', '`':
			return '\''
		}
		if unicode.IsSpace(r) {
			return ' '
		}
		return r
	}, name)
	name = strings.Join(strings.Fields(name), " ")
	return cases.Fold().String(name)
}

// Clean trims a player-supplied value and rejects control characters.
// It reports false when nothing usable remains.
func Clean(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, r := range s {
		if unicode.IsControl(r) {
			return "", false
		}
	}
	return s, true
}
