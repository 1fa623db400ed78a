// Package normalize provides the text normalizer applied to aliases at index
// time and to mentions at resolution time. The same function must be used on
// both sides or exact lookups will silently miss.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Func is a pure text normalizer: deterministic, no I/O.
type Func func(string) string

// markReplacer strips punctuation that never carries meaning for matching.
var markReplacer = strings.NewReplacer(",", "", "™", "", "®", "")

var (
	reLooseApostrophe  = regexp.MustCompile(` '|' `)
	rePossessive       = regexp.MustCompile(`([^\p{N}\s]+)'s `)
	reLeadingSpecial   = regexp.MustCompile(`^[^\p{L}\p{N}\p{Sc}&']+`)
	reTrailingSpecial  = regexp.MustCompile(`[^\p{L}\p{N}&']+$`)
	reInteriorSpecial  = regexp.MustCompile(`[^\p{L}\p{N}\p{Sc}&'\s]+`)
	reRepeatApostrophe = regexp.MustCompile(`''+`)
)

// Default returns the standard normalizer: lowercase, diacritic folding,
// punctuation stripping, possessive-apostrophe spacing, and whitespace
// collapsing.
func Default() Func {
	return Text
}

// Text normalizes a single surface form.
func Text(s string) string {
	s = strings.ToLower(s)
	s = foldASCII(s)
	s = markReplacer.Replace(s)
	s = reLooseApostrophe.ReplaceAllString(s, "")
	s = reRepeatApostrophe.ReplaceAllString(s, "'")
	s = rePossessive.ReplaceAllString(s, "$1 's ")
	s = reLeadingSpecial.ReplaceAllString(s, "")
	s = reTrailingSpecial.ReplaceAllString(s, "")
	s = reInteriorSpecial.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// foldASCII removes combining marks so that accented characters match their
// plain equivalents ("São" matches "Sao").
func foldASCII(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
