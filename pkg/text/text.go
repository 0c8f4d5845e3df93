// Package text holds the normalization rules shared by stored search fields
// and autocomplete prefixes.
package text

import (
	"strings"
	"unicode"
)

var stopwords = map[string]bool{"the": true, "a": true, "an": true}

// Normalize lowercases s, trims it and collapses inner whitespace to single
// spaces.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Tokens splits the normalized form of s on whitespace.
func Tokens(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

// SearchName is the normalized form of s with leading stopwords removed, so
// "The Beatles" searches and sorts as "beatles". A name made only of
// stopwords is kept as is.
func SearchName(s string) string {
	tokens := Tokens(s)
	i := 0
	for i < len(tokens)-1 && stopwords[tokens[i]] {
		i++
	}
	return strings.Join(tokens[i:], " ")
}

// MatchesPrefix reports whether every token of query is a prefix of a
// distinct token of candidate, under some assignment of query tokens to
// candidate tokens.
func MatchesPrefix(query, candidate string) bool {
	want := Tokens(query)
	if len(want) == 0 {
		return false
	}
	have := Tokens(candidate)
	if len(want) > len(have) {
		return false
	}
	return assignPrefixes(want, have, make([]bool, len(have)))
}

// assignPrefixes backtracks over the candidate tokens still free in used.
func assignPrefixes(want, have []string, used []bool) bool {
	if len(want) == 0 {
		return true
	}
	for i, c := range have {
		if used[i] || !strings.HasPrefix(c, want[0]) {
			continue
		}
		used[i] = true
		if assignPrefixes(want[1:], have, used) {
			return true
		}
		used[i] = false
	}
	return false
}

// Slug renders s as a lowercase, hyphen separated identifier.
func Slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if dash && b.Len() > 0 {
				b.WriteByte('-')
			}
			b.WriteRune(r)
			dash = false
		default:
			dash = true
		}
	}
	return b.String()
}
