package index

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MinTokenLen is the shortest token kept, in runes.
const MinTokenLen = 3

// Tokenize lower-cases text, strips punctuation and splits it on whitespace.
// Tokens shorter than MinTokenLen are dropped and duplicates are removed,
// keeping first-seen order. The result is nil when nothing survives.
func Tokenize(text string) []string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}

	var tokens []string
	seen := make(map[string]struct{})
	for _, f := range strings.Fields(b.String()) {
		if utf8.RuneCountInString(f) < MinTokenLen {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}
