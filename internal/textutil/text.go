// Package textutil holds the tokenization shared by expansion, scoring and synthesis.
package textutil

import (
	"strings"
	"unicode"
)

var stopwords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true, "be": true,
	"by": true, "for": true, "from": true, "has": true, "have": true, "how": true, "in": true,
	"into": true, "is": true, "it": true, "its": true, "latest": true, "new": true, "news": true,
	"of": true, "on": true, "or": true, "over": true, "that": true, "the": true, "this": true,
	"to": true, "vs": true, "was": true, "what": true, "when": true, "why": true, "will": true,
	"with": true, "about": true, "after": true, "your": true, "you": true, "we": true, "our": true,
}

// IsStopword reports whether a lowercase token carries no topical signal.
func IsStopword(token string) bool {
	return stopwords[token]
}

// Words splits text on anything that is not a letter or digit, keeping case.
func Words(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Tokens returns the lowercase words of text.
func Tokens(text string) []string {
	words := Words(text)
	for i, w := range words {
		words[i] = strings.ToLower(w)
	}
	return words
}

// ContentTokens returns the lowercase non-stopword tokens of text, first
// occurrence order, without duplicates.
func ContentTokens(text string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range Tokens(text) {
		if IsStopword(t) || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// Stem strips a few common English suffixes so that "databases" and
// "database" or "scaling" and "scale" compare equal.
func Stem(token string) string {
	switch {
	case len(token) > 4 && strings.HasSuffix(token, "ies"):
		return strings.TrimSuffix(token, "ies") + "y"
	case len(token) > 5 && strings.HasSuffix(token, "ing"):
		return strings.TrimSuffix(token, "ing")
	case len(token) > 4 && strings.HasSuffix(token, "ed"):
		return strings.TrimSuffix(token, "ed")
	case len(token) > 4 && (strings.HasSuffix(token, "ses") || strings.HasSuffix(token, "xes") ||
		strings.HasSuffix(token, "ches") || strings.HasSuffix(token, "shes")):
		return strings.TrimSuffix(token, "es")
	case len(token) > 3 && strings.HasSuffix(token, "s") && !strings.HasSuffix(token, "ss"):
		return strings.TrimSuffix(token, "s")
	default:
		return token
	}
}

// StemAll stems every token of text in order.
func StemAll(text string) []string {
	tokens := Tokens(text)
	for i, t := range tokens {
		tokens[i] = normalizeStem(t)
	}
	return tokens
}

// normalizeStem also drops a trailing "e" so verb forms meet their base.
func normalizeStem(t string) string {
	s := Stem(t)
	if len(s) > 4 && strings.HasSuffix(s, "e") {
		s = strings.TrimSuffix(s, "e")
	}
	return s
}

// ContainsPhrase reports whether the stemmed token sequence of phrase occurs
// contiguously in haystack (already stemmed with StemAll).
func ContainsPhrase(haystack []string, phrase string) bool {
	needle := StemAll(phrase)
	if len(needle) == 0 || len(needle) > len(haystack) {
		return false
	}
outer:
	for i := 0; i+len(needle) <= len(haystack); i++ {
		for j, n := range needle {
			if haystack[i+j] != n {
				continue outer
			}
		}
		return true
	}
	return false
}

// Slug lowercases text and joins its tokens with dashes. maxLen counts runes.
func Slug(text string, maxLen int) string {
	s := strings.Join(Tokens(text), "-")
	if r := []rune(s); maxLen > 0 && len(r) > maxLen {
		s = strings.TrimRight(string(r[:maxLen]), "-")
	}
	return s
}

// FirstSentence returns text up to and including the first sentence terminator.
func FirstSentence(text string) string {
	text = strings.TrimSpace(text)
	for i, r := range text {
		if (r == '.' || r == '!' || r == '?') && (i+1 == len(text) || text[i+1] == ' ' || text[i+1] == '\n') {
			return text[:i+1]
		}
	}
	return text
}

// TruncateWords cuts text to at most n words, preferring to end at a
// sentence boundary. The bool reports whether anything was cut.
func TruncateWords(text string, n int) (string, bool) {
	words := strings.Fields(text)
	if n <= 0 || len(words) <= n {
		return text, false
	}
	cut := strings.Join(words[:n], " ")
	if idx := strings.LastIndexAny(cut, ".!?"); idx > len(cut)/2 {
		return cut[:idx+1], true
	}
	return cut + " ...", true
}
