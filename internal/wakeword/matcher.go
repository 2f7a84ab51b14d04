package wakeword

import "strings"

// DefaultVariants are the phonetic spellings recognizers produce for "Angel".
var DefaultVariants = []string{
	"angel", "anjel", "ange", "angie",
	"angela", "angèle", "angele", "andel", "anchel",
}

var angelFamily = map[string]bool{"angel": true, "angele": true}

// Matcher decides whether a transcript contains the configured wake word.
type Matcher struct {
	word           string
	normalized     string
	variants       []string
	strippedTarget []string
	fuzzyThreshold float64
}

// NewMatcher builds a matcher for wakeWord. Variants only apply to the word they
// were written for: the built-in list is used for the "angel" family, any other
// word matches on itself plus extraVariants.
func NewMatcher(wakeWord string, extraVariants []string, fuzzyThreshold float64) *Matcher {
	normalized := normalize(wakeWord)
	stripped := StripDiacritics(normalized)

	m := &Matcher{
		word:           strings.TrimSpace(wakeWord),
		normalized:     normalized,
		fuzzyThreshold: fuzzyThreshold,
	}

	seen := map[string]bool{}
	addVariant := func(v string) {
		v = normalize(v)
		if v == "" || seen[v] {
			return
		}
		seen[v] = true
		m.variants = append(m.variants, v)
	}

	if angelFamily[stripped] {
		for _, v := range DefaultVariants {
			addVariant(v)
		}
		m.strippedTarget = []string{"angel", "angele"}
	} else {
		addVariant(normalized)
		if stripped != "" {
			m.strippedTarget = []string{stripped}
		}
	}
	for _, v := range extraVariants {
		addVariant(v)
	}
	return m
}

// Word returns the wake word as configured.
func (m *Matcher) Word() string {
	return m.word
}

// Variants returns the normalized variant list.
func (m *Matcher) Variants() []string {
	return append([]string(nil), m.variants...)
}

// Contains reports whether transcript matches the wake word by exact
// substring, variant substring or similarity, or diacritic-stripped substring.
func (m *Matcher) Contains(transcript string) bool {
	text := normalize(transcript)
	if text == "" || m.normalized == "" {
		return false
	}
	if strings.Contains(text, m.normalized) {
		return true
	}

	for _, v := range m.variants {
		if strings.Contains(text, v) {
			return true
		}
	}
	for _, v := range m.variants {
		if Similarity(text, v) > m.fuzzyThreshold {
			return true
		}
	}

	stripped := StripDiacritics(text)
	for _, target := range m.strippedTarget {
		if strings.Contains(stripped, target) {
			return true
		}
	}
	return false
}

// IsCandidate reports whether transcript plausibly contains the wake word.
// Candidates get a confidence bonus and a lowered acceptance threshold.
func (m *Matcher) IsCandidate(transcript string) bool {
	return m.Contains(transcript)
}
