// Package compare implements the text comparison primitives behind every
// pass/fail judgment in talkdrill: normalization, character-level similarity
// scoring, word-level alignment of an attempt against a reference sentence,
// and the strict exact-match check.
//
// All functions in this package are pure and total — they never fail and
// perform no I/O. The similarity score is an advisory signal for typed
// practice and the sole pass criterion for spoken practice; exact matching
// (after normalization) is the authority for typed practice.
package compare

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// strippedPunctuation is the fixed set of punctuation characters removed by
// [Normalize]. It covers ASCII punctuation plus the CJK marks that appear in
// generated bilingual dialogue text.
const strippedPunctuation = "-。，！？；：（）【】「」『』“”‘’'\".,!?;:()[]{}/\\=_+<>~`@#$%^&*|"

// Normalize canonicalizes s for comparison: it lower-cases the input, strips
// the fixed punctuation set, collapses runs of whitespace to a single space,
// and trims leading and trailing whitespace. Normalize is idempotent.
func Normalize(s string) string {
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if strings.ContainsRune(strippedPunctuation, r) {
			continue
		}
		b.WriteRune(r)
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Similarity returns a likeness score in [0, 100] between a and b, computed
// as character-level Levenshtein distance over the normalized forms:
//
//	score = (1 - distance/maxLen) * 100
//
// where maxLen is the length of the longer normalized string. Two strings
// that both normalize to empty are 100% similar.
func Similarity(a, b string) float64 {
	na := []rune(Normalize(a))
	nb := []rune(Normalize(b))

	maxLen := len(na)
	if len(nb) > maxLen {
		maxLen = len(nb)
	}
	if maxLen == 0 {
		return 100
	}

	d := matchr.Levenshtein(string(na), string(nb))
	return (1 - float64(d)/float64(maxLen)) * 100
}

// ExactMatch reports whether attempt reproduces reference exactly up to
// normalization. This is the authoritative pass/fail signal for typed
// practice; case, punctuation, and whitespace differences never count
// against the learner.
func ExactMatch(reference, attempt string) bool {
	return Normalize(reference) == Normalize(attempt)
}
