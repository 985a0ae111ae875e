package classify

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldTransformer strips combining marks after NFD decomposition, so that
// "cirúrgico" and "cirurgico" compare equal.
var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases s and removes diacritics. All keyword tables in this
// package are stored in folded form; every input must pass through Fold
// before matching.
func Fold(s string) string {
	out, _, err := transform.String(foldTransformer, s)
	if err != nil {
		// Fall back to plain lowering on malformed input.
		return strings.ToLower(s)
	}
	return strings.ToLower(out)
}
