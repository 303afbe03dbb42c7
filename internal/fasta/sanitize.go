package fasta

import (
	"strings"
	"unicode"
)

// disallowed lists the characters that break file names or the engine's
// identifier parsing. Whitespace is handled separately.
const disallowed = "|,.()'/[]{}:"

// SanitizeID replaces every disallowed character and every whitespace
// character of id with an underscore. SanitizeID(SanitizeID(x)) == SanitizeID(x).
func SanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || strings.ContainsRune(disallowed, r) {
			return '_'
		}
		return r
	}, id)
}
