// Package text holds the lyric normalization and tokenization shared by
// training and inference. Both sides must go through these functions so the
// vectorizer sees identical input.
package text

import (
	"strings"
	"unicode"
)

// minTokenLen is the shortest run of letters kept as a token.
const minTokenLen = 2

// Normalize lower-cases s and keeps only the letters a-z and spaces.
// Every whitespace rune becomes one ASCII space; runs are not collapsed, so
// "Rock & Roll" becomes "rock  roll". Everything else is dropped.
func Normalize(s string) string {
	var sb strings.Builder
	sb.Grow(len(s))

	for _, r := range s {
		r = unicode.ToLower(r)
		switch {
		case r >= 'a' && r <= 'z':
			sb.WriteRune(r)
		case unicode.IsSpace(r):
			sb.WriteByte(' ')
		}
	}
	return sb.String()
}

// Tokenize splits normalized text into terms of at least two letters.
// Stop words are kept; the vectorizer decides what to drop.
func Tokenize(normalized string) []string {
	fields := strings.Fields(normalized)
	tokens := fields[:0]
	for _, f := range fields {
		if len(f) >= minTokenLen {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// IsBlank reports whether s has no non-whitespace runes.
func IsBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
